package eventlog

import (
	"context"

	"github.com/tailored-agentic-units/flowkernel/internal/observability"
)

// ObserverWriter adapts an observability.Observer event stream onto a
// durable Writer, so every in-process event is also appended to the
// JSONL event log. Construct with the job id the writer's file is
// scoped to.
type ObserverWriter struct {
	JobID  string
	Writer Writer
}

func (o ObserverWriter) OnEvent(_ context.Context, event observability.Event) {
	_ = o.Writer.Write(Record{
		Timestamp:     event.Timestamp,
		JobID:         o.JobID,
		EventType:     string(event.Type),
		WorkItemID:    event.ItemID,
		AgentID:       event.AgentID,
		CorrelationID: event.Source,
		Data:          event.Data,
	})
}

var _ observability.Observer = ObserverWriter{}
