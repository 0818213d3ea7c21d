package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"beaconhealth.org/internal/apperr"
	"beaconhealth.org/internal/identity"
	"beaconhealth.org/internal/ids"
	"beaconhealth.org/internal/messaging"
)

const messageCols = `id, sender_role, sender_id, recipient_role, recipient_id, subject, body,
	coalesce(app_id, ''), priority, read, created_at`

func scanMessage(row rowScanner) (messaging.Message, error) {
	var (
		m                         messaging.Message
		senderRole, recipientRole string
		priority                  string
	)
	err := row.Scan(&m.ID, &senderRole, &m.SenderID, &recipientRole, &m.RecipientID, &m.Subject, &m.Body,
		&m.AppID, &priority, &m.Read, &m.CreatedAt)
	if err != nil {
		return messaging.Message{}, err
	}
	m.SenderRole = identity.Role(senderRole)
	m.RecipientRole = identity.Role(recipientRole)
	m.Priority = messaging.Priority(priority)
	return m, nil
}

func (s *Store) SendMessage(ctx context.Context, d messaging.Draft) (messaging.Message, error) {
	m, err := d.Prepare()
	if err != nil {
		return messaging.Message{}, err
	}
	err = s.inTx(ctx, nil, func(tx *sql.Tx) error {
		if ref := strings.TrimSpace(d.AppRef); ref != "" {
			app, err := s.resolveApp(ctx, tx, ref)
			if err != nil {
				return err
			}
			m.AppID = app.ID
		}
		m.CreatedAt = s.clock.Now()
		m.ID = ids.NewAt(m.CreatedAt)
		if _, err := tx.ExecContext(ctx, `
			insert into messages (id, sender_role, sender_id, recipient_role, recipient_id, subject, body, app_id, priority, read, created_at)
			values ($1,$2,$3,$4,$5,$6,$7,nullif($8,''),$9,false,$10)
		`, m.ID, string(m.SenderRole), m.SenderID, string(m.RecipientRole), m.RecipientID,
			m.Subject, m.Body, m.AppID, string(m.Priority), m.CreatedAt); err != nil {
			return mapWriteError("insert message", err)
		}
		return nil
	})
	if err != nil {
		return messaging.Message{}, err
	}
	return m, nil
}

func (s *Store) Inbox(ctx context.Context, q messaging.InboxQuery) ([]messaging.Message, error) {
	q.ParticipantID = strings.TrimSpace(q.ParticipantID)
	if q.ParticipantID == "" {
		return nil, apperr.Invalid("participant_id", "is required")
	}
	args := []any{q.ParticipantID}
	where := "(sender_id=$1 or recipient_id=$1)"
	if q.UnreadOnly {
		where = "recipient_id=$1 and not read"
	}
	if q.Role != "" {
		args = append(args, string(q.Role))
		where += " and ((sender_id=$1 and sender_role=$2) or (recipient_id=$1 and recipient_role=$2))"
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+messageCols+` from messages
		where `+where+`
		order by created_at desc, id desc
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("inbox: %w", err)
	}
	defer rows.Close()

	res := []messaging.Message{}
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Store) MarkRead(ctx context.Context, id string) (messaging.Message, error) {
	m, err := scanMessage(s.db.QueryRowContext(ctx, `
		update messages set read = true where id=$1
		returning `+messageCols+`
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return messaging.Message{}, apperr.NotFound("message", id)
	}
	if err != nil {
		return messaging.Message{}, fmt.Errorf("mark read: %w", err)
	}
	return m, nil
}

func (s *Store) UnreadCount(ctx context.Context, participantID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		select count(*) from messages where recipient_id=$1 and not read
	`, strings.TrimSpace(participantID)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("unread count: %w", err)
	}
	return n, nil
}
