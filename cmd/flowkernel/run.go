package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/flowkernel/internal/checkpoint"
	"github.com/tailored-agentic-units/flowkernel/internal/config"
	"github.com/tailored-agentic-units/flowkernel/internal/dlq"
	"github.com/tailored-agentic-units/flowkernel/internal/errorpolicy"
	"github.com/tailored-agentic-units/flowkernel/internal/errorpolicytypes"
	"github.com/tailored-agentic-units/flowkernel/internal/eventlog"
	"github.com/tailored-agentic-units/flowkernel/internal/input"
	"github.com/tailored-agentic-units/flowkernel/internal/job"
	"github.com/tailored-agentic-units/flowkernel/internal/mapreduce"
	"github.com/tailored-agentic-units/flowkernel/internal/observability"
	"github.com/tailored-agentic-units/flowkernel/internal/session"
	"github.com/tailored-agentic-units/flowkernel/internal/stepexec"
	"github.com/tailored-agentic-units/flowkernel/internal/worktree"
)

// multiObserver fans events out to every wrapped observer. Glue for
// the CLI wiring layer only: the live slog sink and the durable JSONL
// writer both need every event, and no core package is the right
// place to own that composition.
type multiObserver []observability.Observer

func (m multiObserver) OnEvent(ctx context.Context, event observability.Event) {
	for _, o := range m {
		o.OnEvent(ctx, event)
	}
}

func newRunCommand() *cobra.Command {
	var (
		repoRoot   string
		configPath string
		maxDLQ     int
	)

	cmd := &cobra.Command{
		Use:   "run <workflow.yaml>",
		Short: "Run a workflow to completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, err := LoadWorkflowFile(args[0])
			if err != nil {
				return err
			}

			loader := config.NewLoader()
			if configPath != "" {
				if err := loader.MergeFile(configPath); err != nil {
					return err
				}
			}
			cfg, err := loader.Load()
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}

			if repoRoot == "" {
				repoRoot, err = os.Getwd()
				if err != nil {
					return err
				}
			}

			jobID := job.ID(uuid.Must(uuid.NewV7()).String())
			log := logger()

			eventLogPath := filepath.Join(stateDir, string(jobID), "events.jsonl")
			if err := os.MkdirAll(filepath.Dir(eventLogPath), 0o755); err != nil {
				return err
			}
			jsonlWriter, err := eventlog.NewJsonlEventWriter(eventLogPath)
			if err != nil {
				return fmt.Errorf("open event log: %w", err)
			}
			defer jsonlWriter.Close()

			observer := multiObserver{
				observability.NewSlogObserver(log),
				eventlog.ObserverWriter{JobID: string(jobID), Writer: jsonlWriter},
			}

			if wf.IsMapReduce() {
				return runMapReduce(cmd.Context(), wf, jobID, repoRoot, cfg, observer, maxDLQ)
			}
			return runPlainWorkflow(cmd.Context(), wf, repoRoot, observer)
		},
	}

	cmd.Flags().StringVar(&repoRoot, "repo", "", "repository root to run against (default: current directory)")
	cmd.Flags().StringVar(&configPath, "config", "", "project configuration file to merge over defaults")
	cmd.Flags().IntVar(&maxDLQ, "max-dlq-items", 1000, "maximum items retained in the dead-letter queue")

	return cmd
}

func runPlainWorkflow(ctx context.Context, wf *WorkflowFile, repoRoot string, observer observability.Observer) error {
	dispatch := stepexec.NewDispatcher(nil)
	vars := stepexec.Vars{}
	for _, step := range wf.Commands {
		out, err := dispatch.Run(ctx, repoRoot, step, vars)
		if err != nil && !step.IgnoreErrors {
			return fmt.Errorf("step %q: %w", step.ID, err)
		}
		if out.Stdout != "" {
			fmt.Println(out.Stdout)
		}
	}
	return nil
}

func runMapReduce(ctx context.Context, wf *WorkflowFile, jobID job.ID, repoRoot string, cfg config.Config, observer observability.Observer, maxDLQ int) error {
	items, err := loadWorkItems(wf.Map)
	if err != nil {
		return err
	}

	policy := errorpolicytypes.DefaultPolicy()
	if wf.ErrorPolicy != nil {
		policy = *wf.ErrorPolicy
	}

	jobCfg := job.Config{
		MaxParallel:     wf.Map.MaxParallel,
		RetryOnFailure:  wf.Map.RetryOnFailure,
		TimeoutPerAgent: wf.Map.TimeoutPerAgent,
		ErrorPolicy:     policy,
	}
	if jobCfg.MaxParallel == 0 {
		jobCfg.MaxParallel = cfg.MapReduce.MaxParallel
	}
	if jobCfg.MaxParallel == 0 {
		jobCfg.MaxParallel = 1
	}

	state := job.New(jobID, items, jobCfg, wf.Map.AgentTemplate)
	if wf.Reduce != nil {
		state.ReduceCommands = wf.Reduce.Commands
	}
	state.EnvSnapshot = snapshotEnv()

	store := checkpoint.NewStore(stateDir, jobID)
	ctrl := checkpoint.NewController(store, checkpoint.WithObserver(observer))

	dlqQueue, err := dlq.New(filepath.Join(stateDir, string(jobID), "dlq"), jobID, maxDLQ)
	if err != nil {
		return fmt.Errorf("open dead-letter queue: %w", err)
	}

	worktrees := worktree.New(repoRoot)
	runner := &mapreduce.WorktreeItemRunner{
		Worktrees: worktrees,
		Dispatch:  stepexec.NewDispatcher(nil),
		Template:  wf.Map.AgentTemplate,
	}

	sess := session.New(jobID, session.Config{Root: stateDir, Observer: observer})
	sess.Transition(ctx, session.PhaseSetup)
	defer sess.Persist()

	sess.Transition(ctx, session.PhaseMap)
	executor := &mapreduce.Executor{
		State:      state,
		Runner:     runner,
		Policy:     errorpolicy.NewEngine(policy),
		DLQ:        dlqQueue,
		Checkpoint: ctrl,
		Observer:   observer,
	}
	if err := executor.Run(ctx); err != nil {
		sess.Transition(ctx, session.PhaseFailed)
		return fmt.Errorf("map phase: %w", err)
	}

	if err := ctrl.PersistOnPhaseTransition(ctx, state, job.PhaseReduce); err != nil {
		return fmt.Errorf("checkpoint before reduce: %w", err)
	}

	if wf.Reduce != nil {
		sess.Transition(ctx, session.PhaseReduce)
		reduceExec := &mapreduce.ReduceExecutor{
			State:    state,
			Dispatch: stepexec.NewDispatcher(nil),
			WorkDir:  repoRoot,
			Observer: observer,
		}
		if err := reduceExec.Run(ctx); err != nil {
			sess.Transition(ctx, session.PhaseFailed)
			return fmt.Errorf("reduce phase: %w", err)
		}
	}

	sess.Transition(ctx, session.PhaseComplete)

	fmt.Printf("job %s complete: %d succeeded, %d failed, %d total\n",
		jobID, state.SuccessfulCount, state.FailedCount, state.TotalItems)
	return nil
}

func loadWorkItems(m *MapSection) ([]job.WorkItem, error) {
	if kind, params, ok := parseGeneratedInputSpec(m.Input); ok {
		provider, err := input.ProviderForKind(kind, params)
		if err != nil {
			return nil, err
		}
		count := 10
		if n, ok := params["count"].(float64); ok {
			count = int(n)
		}
		return provider.Generate(count)
	}
	return input.ExtractFromFile(m.Input, m.JSONPath)
}

// parseGeneratedInputSpec recognizes "generate:<kind>:<json-params>"
// as an alternative to a file path in MapSection.Input, so workflows
// can drive synthetic inputs without staging a JSON fixture on disk.
func parseGeneratedInputSpec(spec string) (kind string, params map[string]any, ok bool) {
	const prefix = "generate:"
	if len(spec) <= len(prefix) || spec[:len(prefix)] != prefix {
		return "", nil, false
	}
	rest := spec[len(prefix):]
	sep := -1
	for i, r := range rest {
		if r == ':' {
			sep = i
			break
		}
	}
	if sep < 0 {
		return rest, map[string]any{}, true
	}
	kind = rest[:sep]
	params = map[string]any{}
	_ = json.Unmarshal([]byte(rest[sep+1:]), &params)
	return kind, params, true
}

func snapshotEnv() map[string]string {
	keys := []string{"CLAUDE_API_KEY", "LOG_LEVEL", "AUTO_COMMIT", "EDITOR", "MAX_CONCURRENT"}
	snap := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := os.LookupEnv(k); ok {
			snap[k] = v
		}
	}
	return snap
}
