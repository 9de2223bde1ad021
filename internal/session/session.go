// Package session wraps one job execution end-to-end: identity, phase
// tracking, accumulated metrics, and a progress snapshot consumed by
// the CLI and the event log. Grounded on the teacher's session package
// (lifecycle object + config-driven constructor), generalized from a
// chat conversation's message history to a job run's phase/metric
// history, persisted with the same atomic-write helper used by the
// state store.
package session

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tailored-agentic-units/flowkernel/internal/atomicfile"
	"github.com/tailored-agentic-units/flowkernel/internal/ferrors"
	"github.com/tailored-agentic-units/flowkernel/internal/job"
	"github.com/tailored-agentic-units/flowkernel/internal/observability"
)

// Phase is the session's own coarse lifecycle stage, distinct from
// job.Phase: a session exists before a job is created and after a job
// completes.
type Phase string

const (
	PhaseCreated  Phase = "created"
	PhaseSetup    Phase = "setup"
	PhaseMap      Phase = "map"
	PhaseReduce   Phase = "reduce"
	PhaseComplete Phase = "complete"
	PhaseFailed   Phase = "failed"
)

// Metrics accumulates counters over a session's lifetime.
type Metrics struct {
	ItemsProcessed int           `json:"items_processed"`
	ItemsSucceeded int           `json:"items_succeeded"`
	ItemsFailed    int           `json:"items_failed"`
	BytesWritten   int64         `json:"bytes_written"`
	WallClock      time.Duration `json:"wall_clock"`
}

// Progress is a point-in-time, immutable snapshot of a session.
type Progress struct {
	SessionID string    `json:"session_id"`
	JobID     job.ID    `json:"job_id"`
	Phase     Phase     `json:"phase"`
	Metrics   Metrics   `json:"metrics"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Session tracks one job run in memory and persists snapshots on
// demand. Safe for concurrent use.
type Session struct {
	mu sync.RWMutex

	id        string
	jobID     job.ID
	phase     Phase
	metrics   Metrics
	startedAt time.Time
	updatedAt time.Time

	root     string // sessions dir
	observer observability.Observer
}

// Config configures session creation. The zero value is valid and
// produces an in-memory-only session (no persistence root).
type Config struct {
	Root     string
	Observer observability.Observer
}

// DefaultConfig returns the zero Config.
func DefaultConfig() Config { return Config{} }

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source == nil {
		return
	}
	if source.Root != "" {
		c.Root = source.Root
	}
	if source.Observer != nil {
		c.Observer = source.Observer
	}
}

// New creates a Session bound to jobID with a fresh UUIDv7 session id.
func New(jobID job.ID, cfg Config) *Session {
	now := time.Now()
	obs := cfg.Observer
	if obs == nil {
		obs = observability.NoOpObserver{}
	}
	return &Session{
		id:        uuid.Must(uuid.NewV7()).String(),
		jobID:     jobID,
		phase:     PhaseCreated,
		startedAt: now,
		updatedAt: now,
		root:      cfg.Root,
		observer:  obs,
	}
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Transition advances the session to a new phase and emits a
// phase-transition event.
func (s *Session) Transition(ctx context.Context, phase Phase) {
	s.mu.Lock()
	s.phase = phase
	s.updatedAt = time.Now()
	s.mu.Unlock()

	s.observer.OnEvent(ctx, observability.Event{
		Type:      observability.EventPhaseTransition,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    "session.Session",
		JobID:     string(s.jobID),
		Data:      map[string]any{"session_id": s.id, "phase": string(phase)},
	})
}

// RecordItemSuccess updates metrics for one successfully processed
// item.
func (s *Session) RecordItemSuccess(bytesWritten int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.ItemsProcessed++
	s.metrics.ItemsSucceeded++
	s.metrics.BytesWritten += bytesWritten
	s.updatedAt = time.Now()
}

// RecordItemFailure updates metrics for one terminally failed item.
func (s *Session) RecordItemFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.ItemsProcessed++
	s.metrics.ItemsFailed++
	s.updatedAt = time.Now()
}

// Progress returns a defensive copy of the session's current state,
// with WallClock computed as time elapsed since creation.
func (s *Session) Progress() Progress {
	s.mu.RLock()
	defer s.mu.RUnlock()

	metrics := s.metrics
	metrics.WallClock = time.Since(s.startedAt)

	return Progress{
		SessionID: s.id,
		JobID:     s.jobID,
		Phase:     s.phase,
		Metrics:   metrics,
		StartedAt: s.startedAt,
		UpdatedAt: s.updatedAt,
	}
}

func (s *Session) path() string {
	return filepath.Join(s.root, "sessions", s.id+".json")
}

// Persist writes the current progress snapshot to
// sessions/<session_id>.json. A zero-value root is treated as
// "persistence disabled" and Persist is a no-op.
func (s *Session) Persist() error {
	if s.root == "" {
		return nil
	}
	progress := s.Progress()
	data, err := json.MarshalIndent(progress, "", "  ")
	if err != nil {
		return ferrors.Wrap(ferrors.KindSerialization, err, "marshal session progress %s", s.id)
	}
	if err := atomicfile.Write(s.path(), data, 0o644); err != nil {
		return ferrors.Wrap(ferrors.KindIO, err, "persist session %s", s.id)
	}
	return nil
}

// Load reads a persisted Progress snapshot for sessionID from root.
func Load(root, sessionID string) (Progress, error) {
	data, err := atomicfile.Read(filepath.Join(root, "sessions", sessionID+".json"))
	if err != nil {
		return Progress{}, ferrors.Wrap(ferrors.KindIO, err, "load session %s", sessionID)
	}
	var progress Progress
	if err := json.Unmarshal(data, &progress); err != nil {
		return Progress{}, ferrors.Wrap(ferrors.KindSerialization, err, "decode session %s", sessionID)
	}
	return progress, nil
}

// List returns the progress snapshots of every session persisted under
// root, sorted by StartedAt descending. Files that fail to decode are
// skipped.
func List(root string) ([]Progress, error) {
	entries, err := listSessionFiles(root)
	if err != nil {
		return nil, err
	}

	out := make([]Progress, 0, len(entries))
	for _, name := range entries {
		id := name[:len(name)-len(filepath.Ext(name))]
		p, err := Load(root, id)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	sortByStartedAtDesc(out)
	return out, nil
}
