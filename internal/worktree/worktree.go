// Package worktree implements per-agent branch isolation: a writable
// checkout of the repository per session, merged back into its target
// branch on success and pruned on cleanup. Generalized from the
// teacher's functional-option Kernel constructor
// (kernel/kernel.go's New(cfg, opts...)) applied to worktree lifecycle
// state instead of agent/session/memory subsystems.
package worktree

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tailored-agentic-units/flowkernel/internal/ferrors"
	"github.com/tailored-agentic-units/flowkernel/internal/gitops"
)

// Status is a session's lifecycle state.
type Status string

const (
	StatusActive      Status = "active"
	StatusMerged      Status = "merged"
	StatusCleanedUp   Status = "cleaned_up"
	StatusInterrupted Status = "interrupted"
	StatusFailed      Status = "failed"
	StatusAbandoned   Status = "abandoned"
)

// IterationStats tracks how many template iterations a session has run
// against its configured maximum, for templates that loop (goal_seek).
type IterationStats struct {
	Completed int `json:"completed"`
	Max       int `json:"max"`
}

// WorkStats summarizes the changes a session has accumulated.
type WorkStats struct {
	FilesChanged int `json:"files_changed"`
	Commits      int `json:"commits"`
}

// Session is one branch-isolated checkout.
type Session struct {
	Name           string         `json:"name"`
	Path           string         `json:"path"`
	Branch         string         `json:"branch"`
	OriginalBranch string         `json:"original_branch"`
	Status         Status         `json:"status"`
	Iterations     IterationStats `json:"iterations"`
	Stats          WorkStats      `json:"stats"`
	CreatedAt      time.Time      `json:"created_at"`
	MergedAt       *time.Time     `json:"merged_at,omitempty"`
	Error          string         `json:"error,omitempty"`
	InterruptedAt  *time.Time     `json:"interrupted_at,omitempty"`
	Resumable      bool           `json:"resumable"`
}

// branchPrefix names session branches; deliberately generic, not tied
// to any one tool's identity.
const branchPrefix = "session"

// Option configures a Manager after construction.
type Option func(*Manager)

// WithWorktreeRoot overrides the default "<repoRoot>/.worktrees" base
// directory under which session checkouts are created.
func WithWorktreeRoot(dir string) Option {
	return func(m *Manager) { m.worktreeRoot = dir }
}

// WithNameGenerator overrides the default uuid-based session namer,
// primarily for deterministic tests.
func WithNameGenerator(fn func() string) Option {
	return func(m *Manager) { m.nameGen = fn }
}

// Manager tracks and mutates worktree sessions for a single repo
// checkout at repoRoot.
type Manager struct {
	mu sync.Mutex

	repoRoot     string
	worktreeRoot string
	nameGen      func() string

	runner   *gitops.Runner
	sessions map[string]*Session
}

// New constructs a Manager rooted at repoRoot.
func New(repoRoot string, opts ...Option) *Manager {
	m := &Manager{
		repoRoot:     repoRoot,
		worktreeRoot: filepath.Join(repoRoot, ".worktrees"),
		nameGen:      func() string { return uuid.NewString()[:8] },
		runner:       gitops.NewRunner(repoRoot),
		sessions:     make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CreateSession creates a new branch-isolated worktree. The branch is
// based on the branch checked out in repoRoot at call time (or the
// default branch, if HEAD is detached there).
func (m *Manager) CreateSession(ctx context.Context) (*Session, error) {
	original, err := m.runner.CurrentBranch(ctx)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.KindWorktreeError, err, "determine current branch")
	}
	if original == "" {
		original, err = m.runner.DefaultBranch(ctx)
		if err != nil {
			return nil, ferrors.Wrap(ferrors.KindWorktreeError, err, "determine default branch")
		}
	}

	name := m.nameGen()
	branch := fmt.Sprintf("%s-%s", branchPrefix, name)
	path := filepath.Join(m.worktreeRoot, name)

	if err := m.runner.AddWorktree(ctx, path, branch, original); err != nil {
		return nil, ferrors.Wrap(ferrors.KindWorktreeError, err, "create worktree %s", name)
	}

	sess := &Session{
		Name:           name,
		Path:           path,
		Branch:         branch,
		OriginalBranch: original,
		Status:         StatusActive,
		CreatedAt:      time.Now(),
	}

	m.mu.Lock()
	m.sessions[name] = sess
	m.mu.Unlock()

	return sess, nil
}

// GetMergeTarget returns session.OriginalBranch if it still exists,
// otherwise the repository's current default branch.
func (m *Manager) GetMergeTarget(ctx context.Context, session *Session) (string, error) {
	if m.runner.BranchExists(ctx, session.OriginalBranch) {
		return session.OriginalBranch, nil
	}
	return m.runner.DefaultBranch(ctx)
}

// MergeSession merges session.Branch into its merge target with
// --no-ff, recovering any incomplete prior merge in the target
// workspace first.
func (m *Manager) MergeSession(ctx context.Context, session *Session) error {
	target, err := m.GetMergeTarget(ctx, session)
	if err != nil {
		return ferrors.Wrap(ferrors.KindWorktreeError, err, "resolve merge target for %s", session.Name)
	}

	targetRunner := gitops.NewRunner(m.repoRoot)
	if err := targetRunner.Checkout(ctx, target); err != nil {
		return ferrors.Wrap(ferrors.KindWorktreeError, err, "checkout merge target %s", target)
	}

	msg := fmt.Sprintf("merge session %s into %s", session.Name, target)
	if err := targetRunner.MergeNoFF(ctx, session.Branch, msg); err != nil {
		return err
	}

	mergedAt := time.Now()
	m.mu.Lock()
	if s, ok := m.sessions[session.Name]; ok {
		s.Status = StatusMerged
		s.MergedAt = &mergedAt
	}
	m.mu.Unlock()

	return nil
}

// CleanupOptions controls how CleanupSession disposes of a session's
// worktree and branch.
type CleanupOptions struct {
	// Force passes --force/-D to the worktree removal and branch
	// deletion, for sessions whose working tree may be dirty.
	Force bool
	// PreserveOnFailure, when true, skips removal if the session has
	// any commits not yet merged into its target branch: the worktree
	// and branch are left on disk, the session is marked Abandoned and
	// Resumable, and a later resume can recover the work instead of
	// losing it to a forced cleanup.
	PreserveOnFailure bool
}

// CleanupSession removes the worktree and deletes its branch, unless
// opts.PreserveOnFailure applies and the session has unmerged commits,
// in which case it is left in place and marked Abandoned/Resumable.
func (m *Manager) CleanupSession(ctx context.Context, name string, opts CleanupOptions) error {
	m.mu.Lock()
	sess, ok := m.sessions[name]
	m.mu.Unlock()
	if !ok {
		return ferrors.New(ferrors.KindNotFound, "no such session %s", name)
	}

	if opts.PreserveOnFailure {
		commits, err := m.commitsAhead(ctx, sess)
		if err != nil {
			return ferrors.Wrap(ferrors.KindWorktreeError, err, "count commits for %s", name)
		}
		if commits > 0 {
			m.mu.Lock()
			sess.Status = StatusAbandoned
			sess.Stats.Commits = commits
			sess.Resumable = true
			m.mu.Unlock()
			return nil
		}
	}

	if err := m.runner.RemoveWorktree(ctx, sess.Path, opts.Force); err != nil {
		return ferrors.Wrap(ferrors.KindWorktreeError, err, "remove worktree %s", name)
	}
	if err := m.runner.DeleteBranch(ctx, sess.Branch, opts.Force); err != nil {
		return ferrors.Wrap(ferrors.KindWorktreeError, err, "delete branch for %s", name)
	}

	m.mu.Lock()
	sess.Status = StatusCleanedUp
	m.mu.Unlock()

	return nil
}

// MarkFailed records that a session's template run ended in error,
// ahead of the caller deciding how to dispose of the worktree.
func (m *Manager) MarkFailed(name string, cause error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[name]; ok {
		s.Status = StatusFailed
		s.Error = cause.Error()
	}
}

// commitsAhead counts commits on sess.Branch not yet present on
// OriginalBranch, using a Runner rooted at the session's own worktree
// so it reflects that checkout's HEAD even if repoRoot has since moved.
func (m *Manager) commitsAhead(ctx context.Context, sess *Session) (int, error) {
	entries, err := gitops.NewRunner(sess.Path).Log(ctx, sess.OriginalBranch, "HEAD")
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// MarkInterrupted records that a session's owning process died before
// it reached a terminal status, for callers reconstructing state after
// a crash. Only Active sessions are changed.
func (m *Manager) MarkInterrupted(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[name]; ok && s.Status == StatusActive {
		s.Status = StatusInterrupted
		now := time.Now()
		s.InterruptedAt = &now
		s.Resumable = true
	}
}

// ListInterruptedSessions returns all sessions currently marked
// Interrupted.
func (m *Manager) ListInterruptedSessions() []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Session
	for _, s := range m.sessions {
		if s.Status == StatusInterrupted {
			out = append(out, s)
		}
	}
	return out
}

// Session looks up a tracked session by name.
func (m *Manager) Session(name string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[name]
	return s, ok
}
