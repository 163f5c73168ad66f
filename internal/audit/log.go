package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"danaya.health/portal/internal/auth"
	"danaya.health/portal/internal/obs"
)

// Events recorded by the portal.
const (
	EventLoginSucceeded = "session.login.succeeded"
	EventLoginFailed    = "session.login.failed"
	EventLogout         = "session.logout"
	EventResumed        = "session.resumed"
	EventExpired        = "session.expired"
	EventContextFailed  = "session.context.failed"
	EventNavigation     = "navigation"
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

// LogEvent writes an audit log entry enriched with request, session and identity
// context. Passwords and tokens must never be passed in fields.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"type":  "audit",
		"event": event,
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if sid, ok := auth.SessionIDFromContext(ctx); ok {
		entry["session_id"] = sid
	}
	if id, ok := auth.IdentityFromContext(ctx); ok {
		if id.UserID != "" {
			entry["user_id"] = id.UserID
		}
		entry["email"] = id.Email
		entry["role"] = string(id.Role)
	}
	copyFields := make(map[string]any, len(fields))
	for k, v := range fields {
		copyFields[k] = v
	}
	entry["fields"] = copyFields

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))
	return nil
}
