// Package observability provides in-process event dispatch for the
// workflow engine, generalized from the teacher's Observer registry
// to the job/agent/checkpoint/DLQ/resume/phase event model this
// engine needs. Durable recording of the same events is handled
// separately by package eventlog.
package observability

import (
	"context"
	"time"
)

// Observer receives execution events from the engine's components.
// Implementations must not affect execution flow: errors or delays in
// OnEvent must not propagate to the caller.
type Observer interface {
	OnEvent(ctx context.Context, event Event)
}

// Level is a coarse severity for an Event.
type Level string

const (
	LevelVerbose Level = "verbose"
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// EventType categorizes observable occurrences across the engine.
type EventType string

const (
	EventJobStart       EventType = "job.start"
	EventJobComplete    EventType = "job.complete"
	EventPhaseTransition EventType = "job.phase_transition"

	EventAgentStart    EventType = "agent.start"
	EventAgentComplete EventType = "agent.complete"
	EventAgentRetry    EventType = "agent.retry"

	EventCheckpointSave   EventType = "checkpoint.save"
	EventCheckpointLoad   EventType = "checkpoint.load"

	EventDLQAdd    EventType = "dlq.add"
	EventDLQRemove EventType = "dlq.remove"
	EventDLQEvict  EventType = "dlq.evict"

	EventResumeBegin EventType = "resume.begin"
	EventResumeEnd   EventType = "resume.end"

	EventCircuitOpen     EventType = "circuit.open"
	EventCircuitHalfOpen EventType = "circuit.half_open"
	EventCircuitClosed   EventType = "circuit.closed"

	EventWorktreeCreate  EventType = "worktree.create"
	EventWorktreeMerge   EventType = "worktree.merge"
	EventWorktreeCleanup EventType = "worktree.cleanup"

	EventReduceStart    EventType = "reduce.start"
	EventReduceComplete EventType = "reduce.complete"
)

// Event is one observable occurrence. Data carries execution telemetry
// (ids, durations, counts), never raw application payloads.
type Event struct {
	Type      EventType
	Level     Level
	Timestamp time.Time
	Source    string
	JobID     string
	ItemID    string
	AgentID   string
	Data      map[string]any
}
