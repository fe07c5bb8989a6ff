package server

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"

	"github.com/mikeboe/aegis/pkg/database"
)

// RunLogHandler is a slog.Handler that writes records to the agent_logs
// table. Each query run gets its own handler so log lines land next to the
// transcript they explain.
type RunLogHandler struct {
	DB    *database.PostgresDB
	RunID uuid.UUID
}

func NewRunLogHandler(db *database.PostgresDB, runID uuid.UUID) *RunLogHandler {
	return &RunLogHandler{
		DB:    db,
		RunID: runID,
	}
}

func (h *RunLogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return true
}

func (h *RunLogHandler) Handle(ctx context.Context, r slog.Record) error {
	attrs := make(map[string]interface{})
	r.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.Any()
		return true
	})

	metaJSON, err := json.Marshal(attrs)
	if err != nil {
		metaJSON = []byte("{}")
	}

	query := `
		INSERT INTO agent_logs (run_id, timestamp, level, message, metadata)
		VALUES ($1, $2, $3, $4, $5)
	`

	// Background context so log rows persist even when the request context
	// is already cancelled.
	_, err = h.DB.Pool.Exec(context.Background(), query, h.RunID, r.Time, r.Level.String(), r.Message, metaJSON)
	return err
}

// WithAttrs and WithGroup return the handler unchanged. Run logs are flat;
// the attribute set of each record is captured in Handle.
func (h *RunLogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h
}

func (h *RunLogHandler) WithGroup(name string) slog.Handler {
	return h
}
