package checkpoint

import (
	"context"
	"sync"
	"time"

	"github.com/tailored-agentic-units/flowkernel/internal/job"
	"github.com/tailored-agentic-units/flowkernel/internal/observability"
)

// Controller decides when to persist a checkpoint and performs the
// persist-time transformation required by §4.4's ordering rule:
// in-progress items reset to pending before the snapshot is written.
type Controller struct {
	mu sync.Mutex

	store    *Store
	observer observability.Observer

	itemInterval  int
	timeInterval  time.Duration
	itemsSince    int
	lastPersistAt time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithItemInterval overrides the default items-since-last-checkpoint
// trigger (default 10).
func WithItemInterval(n int) Option {
	return func(c *Controller) { c.itemInterval = n }
}

// WithTimeInterval overrides the default wall-clock trigger (default
// 30s).
func WithTimeInterval(d time.Duration) Option {
	return func(c *Controller) { c.timeInterval = d }
}

// WithObserver overrides the default no-op observer.
func WithObserver(o observability.Observer) Option {
	return func(c *Controller) { c.observer = o }
}

// NewController creates a Controller backed by store.
func NewController(store *Store, opts ...Option) *Controller {
	c := &Controller{
		store:        store,
		observer:     observability.NoOpObserver{},
		itemInterval: 10,
		timeInterval: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RecordItemCompletion increments the items-since-last-checkpoint
// counter; call this once per terminal item disposition (success or
// failure), before consulting ShouldCheckpoint.
func (c *Controller) RecordItemCompletion() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.itemsSince++
}

// ShouldCheckpoint reports whether the item-count or wall-clock
// trigger has fired since the last persisted checkpoint.
func (c *Controller) ShouldCheckpoint() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.itemsSince >= c.itemInterval {
		return true
	}
	return !c.lastPersistAt.IsZero() && time.Since(c.lastPersistAt) >= c.timeInterval
}

// Persist writes a checkpoint for the given state and reason,
// resetting in-progress items to pending first (a crashed agent's
// partial work is discarded on resume) and bumping
// CheckpointVersion. It resets the interval counters on success.
func (c *Controller) Persist(ctx context.Context, s *job.State, reason Reason) error {
	snapshot := s.Clone()
	snapshot.ResetInProgressToPending()
	snapshot.CheckpointVersion++

	if err := job.Partition(snapshot); err != nil {
		return err
	}

	if err := c.store.Save(Checkpoint{
		CheckpointID: job.CheckpointID(snapshot.CheckpointVersion),
		Reason:       reason,
		State:        snapshot,
	}); err != nil {
		return err
	}

	// The in-memory controller's own state advances the version too,
	// so the next Persist call produces a strictly higher version
	// even though the snapshot taken above was a defensive copy.
	s.CheckpointVersion = snapshot.CheckpointVersion

	c.mu.Lock()
	c.itemsSince = 0
	c.lastPersistAt = time.Now()
	c.mu.Unlock()

	c.observer.OnEvent(ctx, observability.Event{
		Type:      observability.EventCheckpointSave,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    "checkpoint.Controller",
		JobID:     string(s.JobID),
		Data: map[string]any{
			"checkpoint_id": snapshot.CheckpointVersion,
			"reason":        reason,
		},
	})

	return nil
}

// PersistOnPhaseTransition always persists regardless of interval
// triggers, per §4.4's unconditional phase-transition trigger.
func (c *Controller) PersistOnPhaseTransition(ctx context.Context, s *job.State, newPhase job.Phase) error {
	s.Phase = newPhase
	return c.Persist(ctx, s, ReasonPhaseTransition)
}

// Load retrieves the latest valid checkpoint, logging a CheckpointLoad
// event, and returns its State ready for resumed execution.
func (c *Controller) Load(ctx context.Context) (*job.State, []string, error) {
	cp, skipped, err := c.store.LoadLatest()
	if err != nil {
		return nil, skipped, err
	}

	c.observer.OnEvent(ctx, observability.Event{
		Type:      observability.EventCheckpointLoad,
		Level:     observability.LevelInfo,
		Timestamp: time.Now(),
		Source:    "checkpoint.Controller",
		JobID:     string(cp.State.JobID),
		Data: map[string]any{
			"checkpoint_id": cp.CheckpointID,
			"skipped_files": len(skipped),
		},
	})

	return cp.State, skipped, nil
}
