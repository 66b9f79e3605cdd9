package audit

import (
	"context"
	"errors"
	"strings"

	"mitmlab.org/internal/auth"
	"mitmlab.org/internal/obs"
)

// LogEvent writes an audit log line enriched with the connection and user
// carried by ctx.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	copyFields := make(map[string]any, len(fields))
	for k, v := range fields {
		copyFields[k] = v
	}

	e := obs.Logger().Info().Str("type", "audit").Str("event", event)
	if connID, ok := auth.ConnectionFromContext(ctx); ok {
		e = e.Str("conn_id", connID)
	}
	if userID, ok := auth.UserIDFromContext(ctx); ok {
		e = e.Str("user_id", userID)
	}
	e.Interface("fields", copyFields).Msg("audit")
	return nil
}
