package worktree

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func initRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not available")
	}
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v\n%s", args, err, out)
		}
	}
	run("init", "-b", "main")
	run("config", "user.name", "test")
	run("config", "user.email", "test@example.com")
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	run("add", ".")
	run("commit", "-m", "initial")
	return dir
}

func sequentialNamer() func() string {
	n := 0
	return func() string {
		n++
		return "s" + string(rune('0'+n))
	}
}

func TestCreateSessionBranchesFromCurrent(t *testing.T) {
	dir := initRepo(t)
	m := New(dir, WithNameGenerator(sequentialNamer()))
	ctx := context.Background()

	sess, err := m.CreateSession(ctx)
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if sess.OriginalBranch != "main" {
		t.Errorf("OriginalBranch = %q, want main", sess.OriginalBranch)
	}
	if sess.Branch != "session-s1" {
		t.Errorf("Branch = %q, want session-s1", sess.Branch)
	}
	if _, err := os.Stat(sess.Path); err != nil {
		t.Errorf("expected worktree dir to exist, stat error = %v", err)
	}
	if sess.Status != StatusActive {
		t.Errorf("Status = %v, want Active", sess.Status)
	}
}

func TestGetMergeTargetReturnsExistingOriginalBranch(t *testing.T) {
	dir := initRepo(t)
	m := New(dir, WithNameGenerator(sequentialNamer()))
	ctx := context.Background()

	sess, err := m.CreateSession(ctx)
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	target, err := m.GetMergeTarget(ctx, sess)
	if err != nil {
		t.Fatalf("GetMergeTarget() error = %v", err)
	}
	if target != "main" {
		t.Errorf("GetMergeTarget() = %q, want main", target)
	}
}

func TestMergeSessionAndCleanup(t *testing.T) {
	dir := initRepo(t)
	m := New(dir, WithNameGenerator(sequentialNamer()))
	ctx := context.Background()

	sess, err := m.CreateSession(ctx)
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	if err := os.WriteFile(filepath.Join(sess.Path, "new.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	cmd := exec.Command("git", "add", ".")
	cmd.Dir = sess.Path
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git add: %v\n%s", err, out)
	}
	cmd = exec.Command("git", "commit", "-m", "add file")
	cmd.Dir = sess.Path
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git commit: %v\n%s", err, out)
	}

	if err := m.MergeSession(ctx, sess); err != nil {
		t.Fatalf("MergeSession() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "new.txt")); err != nil {
		t.Errorf("expected new.txt merged into repo root, stat error = %v", err)
	}

	if err := m.CleanupSession(ctx, sess.Name, CleanupOptions{}); err != nil {
		t.Fatalf("CleanupSession() error = %v", err)
	}
	if _, err := os.Stat(sess.Path); !os.IsNotExist(err) {
		t.Errorf("expected worktree dir removed after cleanup, stat error = %v", err)
	}
}

func TestCleanupSessionPreservesUnmergedCommitsOnFailure(t *testing.T) {
	dir := initRepo(t)
	m := New(dir, WithNameGenerator(sequentialNamer()))
	ctx := context.Background()

	sess, err := m.CreateSession(ctx)
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	if err := os.WriteFile(filepath.Join(sess.Path, "partial.txt"), []byte("x"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	cmd := exec.Command("git", "add", ".")
	cmd.Dir = sess.Path
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git add: %v\n%s", err, out)
	}
	cmd = exec.Command("git", "commit", "-m", "partial work")
	cmd.Dir = sess.Path
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("git commit: %v\n%s", err, out)
	}

	m.MarkFailed(sess.Name, context.Canceled)
	if err := m.CleanupSession(ctx, sess.Name, CleanupOptions{Force: true, PreserveOnFailure: true}); err != nil {
		t.Fatalf("CleanupSession() error = %v", err)
	}

	if _, err := os.Stat(sess.Path); err != nil {
		t.Errorf("expected worktree dir preserved, stat error = %v", err)
	}
	got, _ := m.Session(sess.Name)
	if got.Status != StatusAbandoned {
		t.Errorf("Status = %v, want Abandoned", got.Status)
	}
	if !got.Resumable {
		t.Error("expected Resumable to be true")
	}
	if got.Stats.Commits != 1 {
		t.Errorf("Stats.Commits = %d, want 1", got.Stats.Commits)
	}
}

func TestCleanupSessionPreserveOnFailureStillRemovesWithoutCommits(t *testing.T) {
	dir := initRepo(t)
	m := New(dir, WithNameGenerator(sequentialNamer()))
	ctx := context.Background()

	sess, err := m.CreateSession(ctx)
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	if err := m.CleanupSession(ctx, sess.Name, CleanupOptions{Force: true, PreserveOnFailure: true}); err != nil {
		t.Fatalf("CleanupSession() error = %v", err)
	}
	if _, err := os.Stat(sess.Path); !os.IsNotExist(err) {
		t.Errorf("expected worktree dir removed when no commits exist, stat error = %v", err)
	}
}

func TestMarkInterruptedAndList(t *testing.T) {
	dir := initRepo(t)
	m := New(dir, WithNameGenerator(sequentialNamer()))
	ctx := context.Background()

	sess, err := m.CreateSession(ctx)
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	if len(m.ListInterruptedSessions()) != 0 {
		t.Fatal("expected no interrupted sessions initially")
	}
	m.MarkInterrupted(sess.Name)

	interrupted := m.ListInterruptedSessions()
	if len(interrupted) != 1 || interrupted[0].Name != sess.Name {
		t.Errorf("ListInterruptedSessions() = %v, want [%s]", interrupted, sess.Name)
	}
}

func TestCleanupUnknownSessionErrors(t *testing.T) {
	dir := initRepo(t)
	m := New(dir)
	if err := m.CleanupSession(context.Background(), "nope", CleanupOptions{}); err == nil {
		t.Fatal("expected error for unknown session")
	}
}
