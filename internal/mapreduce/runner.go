package mapreduce

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/tailored-agentic-units/flowkernel/internal/job"
	"github.com/tailored-agentic-units/flowkernel/internal/stepexec"
	"github.com/tailored-agentic-units/flowkernel/internal/worktree"
)

// RunResult is what one item's template execution produced.
type RunResult struct {
	Output        string
	Commits       []string
	FilesModified []string
}

// ItemRunner executes one work item's agent template to completion (or
// failure) and reports what happened. Implementations own worktree
// isolation; the Executor only sequences dispatch, retries and
// bookkeeping.
type ItemRunner interface {
	RunItem(ctx context.Context, item job.WorkItem, vars stepexec.Vars) (RunResult, error)
}

// WorktreeItemRunner is the production ItemRunner: it requests a fresh
// isolated worktree per attempt, runs the agent template steps
// sequentially in it via a stepexec.Dispatcher, and merges on success.
type WorktreeItemRunner struct {
	Worktrees *worktree.Manager
	Dispatch  stepexec.Dispatcher
	Template  []stepexec.Step
}

// RunItem implements ItemRunner.
func (r *WorktreeItemRunner) RunItem(ctx context.Context, item job.WorkItem, vars stepexec.Vars) (RunResult, error) {
	sess, err := r.Worktrees.CreateSession(ctx)
	if err != nil {
		return RunResult{}, fmt.Errorf("create worktree for item %s: %w", item.ID, err)
	}

	var out RunResult
	for _, step := range r.Template {
		stepCtx := ctx
		var cancel context.CancelFunc
		if step.Timeout > 0 {
			stepCtx, cancel = context.WithTimeout(ctx, step.Timeout)
		}
		output, err := r.Dispatch.Run(stepCtx, sess.Path, step, vars)
		if cancel != nil {
			cancel()
		}
		if output.Stdout != "" {
			out.Output += output.Stdout
		}
		if err != nil {
			if step.IgnoreErrors {
				continue
			}
			r.Worktrees.MarkFailed(sess.Name, err)
			// Cleanup (and, when preserving, the commit count it needs)
			// must still run its git commands after a cancellation, so
			// this detaches from ctx's cancellation rather than reusing
			// it directly.
			_ = r.Worktrees.CleanupSession(context.WithoutCancel(ctx), sess.Name, worktree.CleanupOptions{
				Force:             true,
				PreserveOnFailure: ctx.Err() != nil,
			})
			return out, fmt.Errorf("step %s for item %s: %w", step.ID, item.ID, err)
		}
	}

	if err := r.Worktrees.MergeSession(ctx, sess); err != nil {
		r.Worktrees.MarkFailed(sess.Name, err)
		_ = r.Worktrees.CleanupSession(context.WithoutCancel(ctx), sess.Name, worktree.CleanupOptions{
			Force:             true,
			PreserveOnFailure: ctx.Err() != nil,
		})
		return out, fmt.Errorf("merge worktree for item %s: %w", item.ID, err)
	}
	if err := r.Worktrees.CleanupSession(ctx, sess.Name, worktree.CleanupOptions{}); err != nil {
		return out, fmt.Errorf("cleanup worktree for item %s: %w", item.ID, err)
	}

	return out, nil
}

// varsFromItem flattens a work item's JSON data into the flat
// string-keyed variable map step substitution expects. Top-level fields
// become variables keyed by name (strings as-is, numbers and booleans
// formatted with %v, anything else as JSON); the whole item is also
// available as "item" (its stored JSON data, unchanged).
func varsFromItem(item job.WorkItem) stepexec.Vars {
	vars := stepexec.Vars{"item_id": string(item.ID)}

	var raw map[string]any
	if len(item.Data) > 0 {
		if err := json.Unmarshal(item.Data, &raw); err == nil {
			for k, v := range raw {
				switch tv := v.(type) {
				case string:
					vars[k] = tv
				case float64, bool:
					vars[k] = fmt.Sprintf("%v", tv)
				default:
					b, _ := json.Marshal(tv)
					vars[k] = string(b)
				}
			}
		}
	}
	if len(item.Data) > 0 {
		vars["item"] = string(item.Data)
	}
	return vars
}

func now() time.Time { return time.Now() }
