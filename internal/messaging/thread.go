package messaging

import (
	"context"
	"strings"
	"sync"

	"beaconhealth.org/internal/apperr"
	"beaconhealth.org/internal/catalog"
	"beaconhealth.org/internal/clock"
	"beaconhealth.org/internal/ids"
)

// InMemory implements Service with in-process concurrency safety.
type InMemory struct {
	mu    sync.RWMutex
	apps  catalog.Resolver // nil disables app references
	clock clock.Clock
	msgs  []*Message // append order == creation order
	byID  map[string]*Message
}

var _ Service = (*InMemory)(nil)

type Option func(*InMemory)

func WithClock(c clock.Clock) Option {
	return func(s *InMemory) {
		if c != nil {
			s.clock = c
		}
	}
}

func NewInMemory(apps catalog.Resolver, opts ...Option) *InMemory {
	s := &InMemory{
		apps:  apps,
		clock: clock.System{},
		byID:  make(map[string]*Message),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *InMemory) SendMessage(ctx context.Context, d Draft) (Message, error) {
	m, err := d.Prepare()
	if err != nil {
		return Message{}, err
	}
	if ref := strings.TrimSpace(d.AppRef); ref != "" {
		if s.apps == nil {
			return Message{}, apperr.Invalid("app", "app references are not supported")
		}
		app, err := s.apps.ResolveApp(ctx, ref)
		if err != nil {
			return Message{}, err
		}
		m.AppID = app.ID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	m.CreatedAt = s.clock.Now()
	m.ID = ids.NewAt(m.CreatedAt)
	s.msgs = append(s.msgs, &m)
	s.byID[m.ID] = &m
	return m, nil
}

// Inbox returns matching messages newest first.
func (s *InMemory) Inbox(ctx context.Context, q InboxQuery) ([]Message, error) {
	q.ParticipantID = strings.TrimSpace(q.ParticipantID)
	if q.ParticipantID == "" {
		return nil, apperr.Invalid("participant_id", "is required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := []Message{}
	for i := len(s.msgs) - 1; i >= 0; i-- {
		if m := s.msgs[i]; q.Match(*m) {
			res = append(res, *m)
		}
	}
	return res, nil
}

func (s *InMemory) MarkRead(ctx context.Context, id string) (Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok {
		return Message{}, apperr.NotFound("message", id)
	}
	m.Read = true
	return *m, nil
}

func (s *InMemory) UnreadCount(ctx context.Context, participantID string) (int, error) {
	msgs, err := s.Inbox(ctx, InboxQuery{ParticipantID: participantID, UnreadOnly: true})
	if err != nil {
		return 0, err
	}
	return len(msgs), nil
}
