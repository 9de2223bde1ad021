// Package stepexec defines the tagged-union workflow step type and the
// narrow Runner interface used to execute it. The actual Claude CLI
// and arbitrary shell command executors are external collaborators
// (see package doc); only a generic shell runner is implemented here,
// plus the seam a caller uses to inject a Claude runner.
package stepexec

import (
	"context"
	"time"
)

// Kind tags the variant of a Step.
type Kind string

const (
	KindShell    Kind = "shell"
	KindClaude   Kind = "claude"
	KindTest     Kind = "test"
	KindGoalSeek Kind = "goal_seek"
	KindForeach  Kind = "foreach"
	KindHandler  Kind = "handler"
)

// Step is one entry of an agent_template or reduce commands list.
// Fields not relevant to Kind are left zero; this mirrors the YAML
// workflow surface's dynamic-typed option bag collapsed into a typed,
// tagged struct (spec's redesign note on option bags).
type Step struct {
	Kind           Kind              `json:"kind" yaml:"kind"`
	ID             string            `json:"id,omitempty" yaml:"id,omitempty"`
	Command        string            `json:"command,omitempty" yaml:"shell,omitempty"`
	ClaudePrompt   string            `json:"claude_prompt,omitempty" yaml:"claude,omitempty"`
	Goal           string            `json:"goal,omitempty" yaml:"goal_seek,omitempty"`
	ForeachItems   string            `json:"foreach_items,omitempty" yaml:"foreach,omitempty"`
	HandlerName    string            `json:"handler_name,omitempty" yaml:"handler,omitempty"`
	Steps          []Step            `json:"steps,omitempty" yaml:"steps,omitempty"`
	OnFailure      string            `json:"on_failure,omitempty" yaml:"on_failure,omitempty"`
	Timeout        time.Duration     `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	CaptureOutput  bool              `json:"capture_output,omitempty" yaml:"capture_output,omitempty"`
	IgnoreErrors   bool              `json:"ignore_errors,omitempty" yaml:"ignore_errors,omitempty"`
	RetryAttempts  int               `json:"retry,omitempty" yaml:"retry,omitempty"`
	Env            map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
}

// Vars is the variable context injected into a Step at execution time:
// work-item fields plus accumulated map/reduce context variables.
type Vars map[string]string

// Output is the result of running a single Step.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Runner executes a single Step against a working directory with the
// given variable context. Implementations must honor ctx cancellation
// cooperatively at the next suspension point (spec's suspension-point
// model): a subprocess runner sends the process a terminate signal and
// returns ctx.Err() wrapped.
type Runner interface {
	Run(ctx context.Context, workDir string, step Step, vars Vars) (Output, error)
}
