// Package messaging is the append-only provider/patient/admin message thread.
package messaging

import (
	"context"
	"strings"
	"time"

	"beaconhealth.org/internal/apperr"
	"beaconhealth.org/internal/identity"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// ParsePriority defaults an empty label to normal.
func ParsePriority(raw string) (Priority, error) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(raw))); p {
	case "":
		return PriorityNormal, nil
	case PriorityLow, PriorityNormal, PriorityHigh:
		return p, nil
	default:
		return "", apperr.Invalid("priority", "must be one of low, normal, high")
	}
}

// Message is immutable once sent except for Read.
type Message struct {
	ID            string        `json:"id"`
	SenderRole    identity.Role `json:"sender_role"`
	SenderID      string        `json:"sender_id"`
	RecipientRole identity.Role `json:"recipient_role"`
	RecipientID   string        `json:"recipient_id"`
	Subject       string        `json:"subject,omitempty"`
	Body          string        `json:"body"`
	AppID         string        `json:"app_id,omitempty"`
	Priority      Priority      `json:"priority"`
	Read          bool          `json:"read"`
	CreatedAt     time.Time     `json:"created_at"`
}

// Involves reports whether participantID is the sender or the recipient.
func (m Message) Involves(participantID string) bool {
	return m.SenderID == participantID || m.RecipientID == participantID
}

// Draft is the input to SendMessage.
type Draft struct {
	SenderRole    string `json:"sender_role" yaml:"sender_role"`
	SenderID      string `json:"sender_id" yaml:"sender_id"`
	RecipientRole string `json:"recipient_role" yaml:"recipient_role"`
	RecipientID   string `json:"recipient_id" yaml:"recipient_id"`
	Subject       string `json:"subject,omitempty" yaml:"subject,omitempty"`
	Body          string `json:"body" yaml:"body"`
	AppRef        string `json:"app,omitempty" yaml:"app,omitempty"`
	Priority      string `json:"priority,omitempty" yaml:"priority,omitempty"`
}

// Prepare validates d and returns the message skeleton without id, app or timestamp.
func (d Draft) Prepare() (Message, error) {
	senderRole, err := identity.ParseRole("sender_role", d.SenderRole)
	if err != nil {
		return Message{}, err
	}
	recipientRole, err := identity.ParseRole("recipient_role", d.RecipientRole)
	if err != nil {
		return Message{}, err
	}
	m := Message{
		SenderRole:    senderRole,
		SenderID:      strings.TrimSpace(d.SenderID),
		RecipientRole: recipientRole,
		RecipientID:   strings.TrimSpace(d.RecipientID),
		Subject:       strings.TrimSpace(d.Subject),
		Body:          d.Body,
	}
	if m.SenderID == "" {
		return Message{}, apperr.Invalid("sender_id", "is required")
	}
	if m.RecipientID == "" {
		return Message{}, apperr.Invalid("recipient_id", "is required")
	}
	if strings.TrimSpace(d.Body) == "" {
		return Message{}, apperr.Invalid("body", "must not be empty")
	}
	if len(m.Subject) > 256 {
		return Message{}, apperr.Invalid("subject", "must be at most 256 characters")
	}
	if m.Priority, err = ParsePriority(d.Priority); err != nil {
		return Message{}, err
	}
	return m, nil
}

// InboxQuery selects the messages visible to one participant.
type InboxQuery struct {
	ParticipantID string
	// Role keeps only messages where the participant acts in that role.
	Role identity.Role
	// UnreadOnly keeps unread messages addressed to the participant.
	UnreadOnly bool
}

func (q InboxQuery) Match(m Message) bool {
	switch {
	case q.UnreadOnly:
		if m.RecipientID != q.ParticipantID || m.Read {
			return false
		}
	case !m.Involves(q.ParticipantID):
		return false
	}
	if q.Role == "" {
		return true
	}
	return (m.SenderID == q.ParticipantID && m.SenderRole == q.Role) ||
		(m.RecipientID == q.ParticipantID && m.RecipientRole == q.Role)
}

// Service is the MessageThread contract.
type Service interface {
	SendMessage(ctx context.Context, d Draft) (Message, error)
	Inbox(ctx context.Context, q InboxQuery) ([]Message, error)
	MarkRead(ctx context.Context, id string) (Message, error)
	UnreadCount(ctx context.Context, participantID string) (int, error)
}
