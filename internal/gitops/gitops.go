// Package gitops wraps the real git binary for the operations the
// worktree manager needs: branch lifecycle, status, merge, and
// incomplete-merge recovery. No retrieved example imports a git
// library that models `git worktree` and `.git/MERGE_HEAD` recovery
// faithfully (go-git/go-git/v5 appears only as an unretrieved manifest
// dependency), so this shells the real binary via os/exec, the same
// "wrap the real CLI" approach the teacher pack uses for other
// external tools.
package gitops

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/tailored-agentic-units/flowkernel/internal/ferrors"
)

// Runner executes git commands rooted at a working directory.
type Runner struct {
	Dir string
	Git string // path to the git binary; defaults to "git"
}

// NewRunner creates a Runner rooted at dir.
func NewRunner(dir string) *Runner {
	return &Runner{Dir: dir, Git: "git"}
}

func (r *Runner) bin() string {
	if r.Git == "" {
		return "git"
	}
	return r.Git
}

// run executes git with args in r.Dir, returning combined stdout and
// a structured error naming the operation on failure.
func (r *Runner) run(ctx context.Context, op string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, r.bin(), args...)
	cmd.Dir = r.Dir
	var out, errBuf bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errBuf
	if err := cmd.Run(); err != nil {
		return out.String(), ferrors.Wrap(ferrors.KindCommandFailed, err, "git %s", op).
			WithContext("args", args).
			WithContext("stderr", strings.TrimSpace(errBuf.String()))
	}
	return out.String(), nil
}

// CurrentBranch returns the checked-out branch name, or "" if HEAD is
// detached.
func (r *Runner) CurrentBranch(ctx context.Context) (string, error) {
	out, err := r.run(ctx, "current-branch", "symbolic-ref", "--short", "-q", "HEAD")
	if err != nil {
		if ferrors.KindOf(err) == ferrors.KindCommandFailed {
			return "", nil // detached HEAD: symbolic-ref fails by design
		}
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// DefaultBranch returns the remote-published default branch, falling
// back to whichever of master/main exists locally.
func (r *Runner) DefaultBranch(ctx context.Context) (string, error) {
	out, err := r.run(ctx, "default-branch", "symbolic-ref", "--short", "-q", "refs/remotes/origin/HEAD")
	if err == nil {
		name := strings.TrimSpace(out)
		name = strings.TrimPrefix(name, "origin/")
		if name != "" {
			return name, nil
		}
	}
	for _, candidate := range []string{"main", "master"} {
		if r.BranchExists(ctx, candidate) {
			return candidate, nil
		}
	}
	return "main", nil
}

// BranchExists reports whether name is a local branch.
func (r *Runner) BranchExists(ctx context.Context, name string) bool {
	_, err := r.run(ctx, "branch-exists", "show-ref", "--verify", "--quiet", "refs/heads/"+name)
	return err == nil
}

// CreateBranch creates name pointing at from's tip (from may be "" for
// the current HEAD).
func (r *Runner) CreateBranch(ctx context.Context, name, from string) error {
	args := []string{"branch", name}
	if from != "" {
		args = append(args, from)
	}
	_, err := r.run(ctx, "create-branch", args...)
	return err
}

// DeleteBranch removes a local branch. Missing-branch is not fatal.
// force uses -D instead of -d.
func (r *Runner) DeleteBranch(ctx context.Context, name string, force bool) error {
	flag := "-d"
	if force {
		flag = "-D"
	}
	_, err := r.run(ctx, "delete-branch", "branch", flag, name)
	if err != nil && !r.BranchExists(ctx, name) {
		return nil
	}
	return err
}

// AddWorktree creates a worktree at path on a new branch.
func (r *Runner) AddWorktree(ctx context.Context, path, branch, from string) error {
	args := []string{"worktree", "add", "-b", branch, path}
	if from != "" {
		args = append(args, from)
	}
	_, err := r.run(ctx, "worktree-add", args...)
	return err
}

// RemoveWorktree removes a worktree. force passes --force.
func (r *Runner) RemoveWorktree(ctx context.Context, path string, force bool) error {
	args := []string{"worktree", "remove", path}
	if force {
		args = append(args, "--force")
	}
	_, err := r.run(ctx, "worktree-remove", args...)
	return err
}

// Checkout switches the working tree to ref.
func (r *Runner) Checkout(ctx context.Context, ref string) error {
	_, err := r.run(ctx, "checkout", "checkout", ref)
	return err
}

// HasIncompleteMerge is a pure decision over worktree filesystem
// state: true if .git/MERGE_HEAD exists in workDir.
func HasIncompleteMerge(workDir string) bool {
	_, err := os.Stat(filepath.Join(workDir, ".git", "MERGE_HEAD"))
	return err == nil
}

// HasStagedChanges reports whether the index differs from HEAD.
func (r *Runner) HasStagedChanges(ctx context.Context) (bool, error) {
	out, err := r.run(ctx, "diff-staged", "diff", "--cached", "--name-only")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

// ShouldCommitStaged is a pure decision combining the two facts a
// merge-recovery step needs.
func ShouldCommitStaged(hasIncompleteMerge, hasStagedChanges bool) bool {
	return hasIncompleteMerge && hasStagedChanges
}

// CommitStagedNoEdit commits the index reusing the in-progress merge
// commit message.
func (r *Runner) CommitStagedNoEdit(ctx context.Context) error {
	_, err := r.run(ctx, "commit-no-edit", "commit", "--no-edit")
	return err
}

// AbortMerge aborts an in-progress merge.
func (r *Runner) AbortMerge(ctx context.Context) error {
	_, err := r.run(ctx, "merge-abort", "merge", "--abort")
	return err
}

// RecoverIncompleteMerge implements §4.3's recovery step: if the
// target workspace has an in-progress merge, commit staged changes
// with --no-edit, or abort the prior merge if nothing is staged.
func (r *Runner) RecoverIncompleteMerge(ctx context.Context) error {
	if !HasIncompleteMerge(r.Dir) {
		return nil
	}
	staged, err := r.HasStagedChanges(ctx)
	if err != nil {
		return err
	}
	if ShouldCommitStaged(true, staged) {
		return r.CommitStagedNoEdit(ctx)
	}
	return r.AbortMerge(ctx)
}

// MergeNoFF performs a non-fast-forward merge of branch into the
// currently checked out ref, after recovering any incomplete prior
// merge.
func (r *Runner) MergeNoFF(ctx context.Context, branch, message string) error {
	if err := r.RecoverIncompleteMerge(ctx); err != nil {
		return err
	}
	args := []string{"merge", "--no-ff", branch}
	if message != "" {
		args = append(args, "-m", message)
	}
	_, err := r.run(ctx, "merge-no-ff", args...)
	if err != nil {
		return ferrors.Wrap(ferrors.KindMergeConflict, err, "merge %s", branch)
	}
	return nil
}

// ModifiedFiles lists paths with uncommitted modifications (tracked,
// staged or unstaged).
func (r *Runner) ModifiedFiles(ctx context.Context) ([]string, error) {
	out, err := r.run(ctx, "status-modified", "status", "--porcelain")
	if err != nil {
		return nil, err
	}
	var files []string
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if len(line) < 4 {
			continue
		}
		files = append(files, strings.TrimSpace(line[3:]))
	}
	return files, nil
}

// LogEntry is one commit as reported by Log.
type LogEntry struct {
	Hash    string
	Author  string
	Subject string
}

const logEntrySep = "\x1f" // unit separator, never appears in commit metadata

// Log returns commits in from..to (to defaults to HEAD, from to the
// repository root when empty), oldest first.
func (r *Runner) Log(ctx context.Context, from, to string) ([]LogEntry, error) {
	if to == "" {
		to = "HEAD"
	}
	rangeArg := to
	if from != "" {
		rangeArg = from + ".." + to
	}
	out, err := r.run(ctx, "log", "log", "--reverse", "--format=%H"+logEntrySep+"%an"+logEntrySep+"%s", rangeArg)
	if err != nil {
		return nil, err
	}
	var entries []LogEntry
	for _, line := range strings.Split(strings.TrimRight(out, "\n"), "\n") {
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, logEntrySep, 3)
		if len(fields) != 3 {
			continue
		}
		entries = append(entries, LogEntry{Hash: fields[0], Author: fields[1], Subject: fields[2]})
	}
	return entries, nil
}
