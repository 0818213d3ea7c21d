package audit

import (
	"context"
	"errors"
	"strings"

	"beaconhealth.org/internal/identity"
	"beaconhealth.org/internal/obs"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the audit request id from context if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit log entry enriched with the request id and the
// caller label. The label is self-declared and recorded as given.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	copyFields := make(map[string]any, len(fields))
	for k, v := range fields {
		copyFields[k] = v
	}

	e := obs.Logger().Info().
		Str("type", "audit").
		Str("event", event).
		Interface("fields", copyFields)
	if rid := RequestIDFromContext(ctx); rid != "" {
		e = e.Str("request_id", rid)
	}
	if actor, ok := identity.ActorFromContext(ctx); ok {
		e = e.Str("actor_role", string(actor.Role)).Str("actor_id", actor.ID)
	}
	e.Msg("audit")
	return nil
}
