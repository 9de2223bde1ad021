package observability

import (
	"context"
	"log/slog"
)

// SlogObserver writes every event to a structured logger via slog.
type SlogObserver struct {
	logger *slog.Logger
}

// NewSlogObserver creates a SlogObserver writing through logger.
func NewSlogObserver(logger *slog.Logger) *SlogObserver {
	return &SlogObserver{logger: logger}
}

func (o *SlogObserver) OnEvent(ctx context.Context, event Event) {
	level := slog.LevelInfo
	switch event.Level {
	case LevelVerbose:
		level = slog.LevelDebug
	case LevelWarning:
		level = slog.LevelWarn
	case LevelError:
		level = slog.LevelError
	}

	o.logger.Log(ctx, level, "event",
		"type", event.Type,
		"source", event.Source,
		"job_id", event.JobID,
		"item_id", event.ItemID,
		"agent_id", event.AgentID,
		"timestamp", event.Timestamp,
		"data", event.Data,
	)
}
