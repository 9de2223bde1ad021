package stepexec

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ClaudeInvoker is the narrow seam through which an agent template's
// "claude" steps reach an actual Claude CLI invocation. The engine
// core never shells out to Claude itself; callers inject a concrete
// invoker (or a stub in tests).
type ClaudeInvoker func(ctx context.Context, workDir, prompt string, vars Vars) (Output, error)

// ClaudeRunner executes KindClaude steps by delegating to an injected
// ClaudeInvoker. With a nil Invoker it returns an error immediately,
// which keeps misconfiguration visible instead of silently no-oping.
type ClaudeRunner struct {
	Invoker ClaudeInvoker
}

func (r ClaudeRunner) Run(ctx context.Context, workDir string, step Step, vars Vars) (Output, error) {
	if step.Kind != KindClaude {
		return Output{}, fmt.Errorf("claude runner cannot execute step kind %q", step.Kind)
	}
	if r.Invoker == nil {
		return Output{}, fmt.Errorf("step %q: no claude invoker configured", step.ID)
	}
	return r.Invoker(ctx, workDir, substitute(step.ClaudePrompt, vars), vars)
}

// HandlerFunc is the seam through which a named "handler" step reaches
// caller-defined logic that has no shell or Claude equivalent (e.g. a
// built-in like notifying an external system). Dispatcher looks one up
// by Step.HandlerName; an unregistered name is a visible error rather
// than a silent no-op, matching ClaudeRunner's treatment of a missing
// invoker.
type HandlerFunc func(ctx context.Context, workDir string, vars Vars) (Output, error)

// Dispatcher routes a Step to the Runner registered for its Kind.
// goal_seek is treated as a retryable shell-equivalent step; foreach
// and handler are resolved here too, so every Kind in the tagged union
// is dispatchable without a caller-side expansion pass.
type Dispatcher struct {
	Shell    Runner
	Claude   Runner
	Handlers map[string]HandlerFunc
}

func NewDispatcher(claude ClaudeInvoker) Dispatcher {
	return Dispatcher{
		Shell:  ShellRunner{},
		Claude: ClaudeRunner{Invoker: claude},
	}
}

func (d Dispatcher) Run(ctx context.Context, workDir string, step Step, vars Vars) (Output, error) {
	switch step.Kind {
	case KindShell, KindTest, KindGoalSeek:
		return d.Shell.Run(ctx, workDir, withShellKind(step), vars)
	case KindClaude:
		return d.Claude.Run(ctx, workDir, step, vars)
	case KindHandler:
		return d.runHandler(ctx, workDir, step, vars)
	case KindForeach:
		return d.runForeach(ctx, workDir, step, vars)
	default:
		return Output{}, fmt.Errorf("step %q: unknown kind %q", step.ID, step.Kind)
	}
}

func (d Dispatcher) runHandler(ctx context.Context, workDir string, step Step, vars Vars) (Output, error) {
	if step.HandlerName == "" {
		return Output{}, fmt.Errorf("step %q: handler step has no handler name", step.ID)
	}
	fn, ok := d.Handlers[step.HandlerName]
	if !ok {
		return Output{}, fmt.Errorf("step %q: no handler registered for %q", step.ID, step.HandlerName)
	}
	return fn(ctx, workDir, vars)
}

// runForeach iterates the JSON array found in vars under the key named
// by ForeachItems, running the nested Steps once per element with
// "foreach_item" and "foreach_index" bound into a copy of vars. Nested
// step failures abort the loop unless the failing step sets
// IgnoreErrors, mirroring the sequential template semantics the map
// and reduce executors already apply to their own step lists.
func (d Dispatcher) runForeach(ctx context.Context, workDir string, step Step, vars Vars) (Output, error) {
	raw, ok := vars[step.ForeachItems]
	if !ok {
		return Output{}, fmt.Errorf("step %q: foreach variable %q not found", step.ID, step.ForeachItems)
	}
	var elements []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &elements); err != nil {
		return Output{}, fmt.Errorf("step %q: foreach variable %q is not a JSON array: %w", step.ID, step.ForeachItems, err)
	}

	start := time.Now()
	var combined Output
	for i, elem := range elements {
		iterVars := make(Vars, len(vars)+2)
		for k, v := range vars {
			iterVars[k] = v
		}
		iterVars["foreach_item"] = string(elem)
		iterVars["foreach_index"] = strconv.Itoa(i)

		for _, nested := range step.Steps {
			out, err := d.Run(ctx, workDir, nested, iterVars)
			combined.Stdout += out.Stdout
			combined.Stderr += out.Stderr
			if err != nil {
				if nested.IgnoreErrors {
					continue
				}
				combined.Duration = time.Since(start)
				return combined, fmt.Errorf("step %q: foreach iteration %d step %q: %w", step.ID, i, nested.ID, err)
			}
		}
	}
	combined.Duration = time.Since(start)
	return combined, nil
}

// withShellKind normalizes goal_seek steps (retried shell commands
// with a success predicate evaluated by the caller) to a plain shell
// step for execution purposes.
func withShellKind(step Step) Step {
	if step.Kind == KindGoalSeek {
		step.Kind = KindShell
		if step.Command == "" {
			step.Command = step.Goal
		}
	}
	return step
}
