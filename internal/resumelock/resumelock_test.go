package resumelock

import (
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/tailored-agentic-units/flowkernel/internal/job"
)

func TestAcquireThenReleaseAllowsReacquire(t *testing.T) {
	m := New(t.TempDir())

	g, err := m.Acquire("job-1")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if err := g.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	g2, err := m.Acquire("job-1")
	if err != nil {
		t.Fatalf("second Acquire() error = %v", err)
	}
	_ = g2.Close()
}

func TestAcquireWhileHeldByLiveProcessFails(t *testing.T) {
	m := New(t.TempDir())

	g, err := m.Acquire("job-1")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer g.Close()

	_, err = m.Acquire("job-1")
	if err == nil {
		t.Fatal("expected second Acquire() to fail while lock is held")
	}
	if !strings.Contains(err.Error(), "already in progress") {
		t.Errorf("error = %v, want message containing %q", err, "already in progress")
	}
}

func TestHolderReportsPidHostnameAcquiredAt(t *testing.T) {
	m := New(t.TempDir())
	g, err := m.Acquire("job-1")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer g.Close()

	holder, ok, err := m.Holder("job-1")
	if err != nil {
		t.Fatalf("Holder() error = %v", err)
	}
	if !ok {
		t.Fatal("expected a holder to be reported")
	}
	if holder.PID != os.Getpid() {
		t.Errorf("PID = %d, want %d", holder.PID, os.Getpid())
	}
	if holder.Hostname == "" {
		t.Error("expected non-empty hostname")
	}
	if holder.AcquiredAt.IsZero() {
		t.Error("expected non-zero AcquiredAt")
	}
}

func TestStaleLockByTTLIsReclaimed(t *testing.T) {
	m := New(t.TempDir())
	m.ttl = time.Millisecond

	g, err := m.Acquire("job-1")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	_ = g

	time.Sleep(5 * time.Millisecond)

	g2, err := m.Acquire("job-1")
	if err != nil {
		t.Fatalf("expected stale lock to be reclaimed, got error = %v", err)
	}
	_ = g2.Close()
}

func TestStaleLockByDeadPidIsReclaimed(t *testing.T) {
	m := New(t.TempDir())

	g, err := m.Acquire("job-1")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	_ = g

	// Overwrite the lock file with an implausible pid that cannot be
	// alive, simulating a crashed holder.
	holder, ok, err := m.Holder("job-1")
	if err != nil || !ok {
		t.Fatalf("Holder() error = %v, ok = %v", err, ok)
	}
	_ = holder

	info := lockInfo{PID: 999999999, Hostname: "gone", AcquiredAt: time.Now(), TTL: DefaultTTL}
	data, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		t.Fatalf("MarshalIndent() error = %v", err)
	}
	if err := os.WriteFile(m.lockPath("job-1"), data, 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	g2, err := m.Acquire("job-1")
	if err != nil {
		t.Fatalf("expected dead-pid lock to be reclaimed, got error = %v", err)
	}
	_ = g2.Close()
}

func TestJobIDIsolatesLocks(t *testing.T) {
	m := New(t.TempDir())
	g1, err := m.Acquire(job.ID("job-a"))
	if err != nil {
		t.Fatalf("Acquire(job-a) error = %v", err)
	}
	defer g1.Close()

	g2, err := m.Acquire(job.ID("job-b"))
	if err != nil {
		t.Fatalf("Acquire(job-b) error = %v", err)
	}
	defer g2.Close()
}
