package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/flowkernel/internal/checkpoint"
	"github.com/tailored-agentic-units/flowkernel/internal/dlq"
	"github.com/tailored-agentic-units/flowkernel/internal/job"
	"github.com/tailored-agentic-units/flowkernel/internal/resume"
	"github.com/tailored-agentic-units/flowkernel/internal/resumelock"
)

func resumeJob(ctx context.Context, jobID job.ID, opts resume.Options, maxDLQItems int) error {
	lock := resumelock.New(stateDir)
	store := checkpoint.NewStore(stateDir, jobID)
	ctrl := checkpoint.NewController(store)
	dlqQueue, err := dlq.New(filepath.Join(stateDir, string(jobID), "dlq"), jobID, maxDLQItems)
	if err != nil {
		return fmt.Errorf("open dead-letter queue: %w", err)
	}

	mgr := resume.New(lock, ctrl, dlqQueue)
	outcome, err := mgr.Resume(ctx, jobID, opts)
	if err != nil {
		return err
	}
	return printResumeOutcome(jobID, outcome)
}

func newResumeJobCommand() *cobra.Command {
	var (
		resetFailed bool
		includeDLQ  bool
		checkEnv    bool
		force       bool
		maxDLQItems int
	)

	cmd := &cobra.Command{
		Use:   "resume-job <job-id>",
		Short: "Resume a crashed or interrupted job from its last checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return resumeJob(cmd.Context(), job.ID(args[0]), resume.Options{
				ResetFailedAgents:   resetFailed,
				IncludeDLQItems:     includeDLQ,
				ValidateEnvironment: checkEnv,
				Force:               force,
			}, maxDLQItems)
		},
	}

	cmd.Flags().BoolVar(&resetFailed, "reset-failed", false, "requeue previously failed items")
	cmd.Flags().BoolVar(&includeDLQ, "include-dlq", false, "requeue reprocess-eligible dead-letter items")
	cmd.Flags().BoolVar(&checkEnv, "check-env", false, "report environment variables that drifted since the job started")
	cmd.Flags().BoolVar(&force, "force", false, "resume even if the checkpoint reports the job already complete")
	cmd.Flags().IntVar(&maxDLQItems, "max-dlq-items", 1000, "maximum items retained in the dead-letter queue")

	return cmd
}

func newResumeCommand() *cobra.Command {
	var (
		path           string
		fromCheckpoint string
		force          bool
		maxDLQItems    int
	)

	cmd := &cobra.Command{
		Use:   "resume <session-id>",
		Short: "Resume a job by its session id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if path != "" {
				stateDir = path
			}
			progress, err := loadSession(args[0])
			if err != nil {
				return err
			}
			if fromCheckpoint != "" {
				fmt.Printf("note: --from-checkpoint is advisory; resuming from the latest valid checkpoint for job %s\n", progress.JobID)
			}
			return resumeJob(cmd.Context(), progress.JobID, resume.Options{Force: force}, maxDLQItems)
		},
	}

	cmd.Flags().StringVar(&path, "path", "", "state directory to resume from (default: --state-dir)")
	cmd.Flags().StringVar(&fromCheckpoint, "from-checkpoint", "", "checkpoint id to resume from (advisory; the latest valid checkpoint always wins)")
	cmd.Flags().BoolVar(&force, "force", false, "resume even if the checkpoint reports the job already complete")
	cmd.Flags().IntVar(&maxDLQItems, "max-dlq-items", 1000, "maximum items retained in the dead-letter queue")

	return cmd
}

func printResumeOutcome(jobID job.ID, outcome resume.Outcome) error {
	switch outcome.Kind {
	case resume.OutcomeFullWorkflowCompleted:
		fmt.Printf("job %s already completed (map and reduce); nothing to resume\n", jobID)
	case resume.OutcomeMapOnlyCompleted:
		fmt.Printf("job %s already completed its map-only workflow; nothing to resume\n", jobID)
	case resume.OutcomeReadyToExecute:
		fmt.Printf("job %s ready to resume: phase=%s remaining=%d\n", jobID, outcome.Phase, len(outcome.RemainingItems))
	}
	for _, mismatch := range outcome.EnvMismatches {
		fmt.Printf("  environment drift: %s expected=%s actual=%s\n", mismatch.Name, mismatch.Expected, mismatch.Actual)
	}
	return nil
}
