// Package resumelock implements cross-process mutual exclusion for job
// resume: exactly one process may hold the resume lock for a given
// job_id at a time, enforced by an atomically-written lock file rather
// than flock, so the same reclamation logic works across platforms.
// Grounded on the teacher's atomic-write pattern (memory.fileStore)
// generalized by package atomicfile.
package resumelock

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/tailored-agentic-units/flowkernel/internal/atomicfile"
	"github.com/tailored-agentic-units/flowkernel/internal/ferrors"
	"github.com/tailored-agentic-units/flowkernel/internal/job"
)

// DefaultTTL is how long a lock is honored before it is considered
// stale even if its owning process is still alive (clock skew,
// orphaned lock from a killed process group, etc).
const DefaultTTL = 6 * time.Hour

// lockInfo is the persisted content of a lock file.
type lockInfo struct {
	PID        int       `json:"pid"`
	Hostname   string    `json:"hostname"`
	AcquiredAt time.Time `json:"acquired_at"`
	TTL        time.Duration `json:"ttl"`
}

func (l lockInfo) expired(now time.Time) bool {
	if l.TTL <= 0 {
		return false
	}
	return now.Sub(l.AcquiredAt) >= l.TTL
}

// HolderInfo describes the process currently holding a lock, returned
// to callers that need to report "already in progress" details.
type HolderInfo struct {
	PID        int
	Hostname   string
	AcquiredAt time.Time
}

// Guard represents an acquired lock. Callers must call Close to
// release it; an unreleased Guard on process exit is reclaimed by a
// later acquirer once it is stale (TTL elapsed or PID no longer
// alive).
type Guard struct {
	path string
}

// Close releases the lock by removing its file.
func (g *Guard) Close() error {
	if g == nil {
		return nil
	}
	return atomicfile.Remove(g.path)
}

// Manager acquires and releases resume locks rooted at
// baseDir/resume_locks.
type Manager struct {
	root string
	ttl  time.Duration
}

// New creates a Manager rooted at baseDir/resume_locks.
func New(baseDir string) *Manager {
	return &Manager{root: filepath.Join(baseDir, "resume_locks"), ttl: DefaultTTL}
}

func (m *Manager) lockPath(jobID job.ID) string {
	return filepath.Join(m.root, string(jobID)+".lock")
}

// Acquire takes the resume lock for jobID, reclaiming it first if the
// existing holder is stale (TTL elapsed or its PID is no longer
// alive). It returns a *ferrors.Error of KindConflict whose message
// contains "already in progress" when a live holder is found.
func (m *Manager) Acquire(jobID job.ID) (*Guard, error) {
	path := m.lockPath(jobID)

	if existing, ok, err := m.read(path); err != nil {
		return nil, err
	} else if ok {
		if !m.isStale(existing) {
			return nil, ferrors.New(ferrors.KindConflict,
				"resume already in progress for job %s (pid %d on %s, acquired %s)",
				jobID, existing.PID, existing.Hostname, existing.AcquiredAt.Format(time.RFC3339)).
				WithContext("pid", existing.PID).
				WithContext("hostname", existing.Hostname).
				WithContext("acquired_at", existing.AcquiredAt)
		}
		// Stale: fall through and overwrite.
	}

	info := lockInfo{
		PID:        os.Getpid(),
		Hostname:   hostname(),
		AcquiredAt: timeNow(),
		TTL:        m.ttl,
	}
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return nil, ferrors.Wrap(ferrors.KindSerialization, err, "marshal resume lock for job %s", jobID)
	}
	if err := atomicfile.Write(path, data, 0o644); err != nil {
		return nil, ferrors.Wrap(ferrors.KindIO, err, "persist resume lock for job %s", jobID)
	}
	return &Guard{path: path}, nil
}

// Holder returns the current lock holder for jobID, if a lock file
// exists.
func (m *Manager) Holder(jobID job.ID) (HolderInfo, bool, error) {
	info, ok, err := m.read(m.lockPath(jobID))
	if err != nil || !ok {
		return HolderInfo{}, ok, err
	}
	return HolderInfo{PID: info.PID, Hostname: info.Hostname, AcquiredAt: info.AcquiredAt}, true, nil
}

func (m *Manager) read(path string) (lockInfo, bool, error) {
	data, err := atomicfile.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return lockInfo{}, false, nil
		}
		return lockInfo{}, false, ferrors.Wrap(ferrors.KindIO, err, "read resume lock")
	}
	var info lockInfo
	if err := json.Unmarshal(data, &info); err != nil {
		// A lock file that fails to deserialize is treated as stale:
		// it cannot represent a live holder we can identify.
		return lockInfo{}, false, nil
	}
	return info, true, nil
}

func (m *Manager) isStale(info lockInfo) bool {
	if info.expired(timeNow()) {
		return true
	}
	return !processAlive(info.PID)
}

// timeNow is a seam for tests; production code always uses time.Now.
var timeNow = time.Now

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}
