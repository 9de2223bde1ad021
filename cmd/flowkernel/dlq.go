package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/flowkernel/internal/dlq"
	"github.com/tailored-agentic-units/flowkernel/internal/job"
)

func openDLQ(jobID string, maxItems int) (*dlq.Queue, error) {
	return dlq.New(filepath.Join(stateDir, jobID, "dlq"), job.ID(jobID), maxItems)
}

func newDLQCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect and manage a job's dead-letter queue",
	}
	root.AddCommand(
		newDLQListCommand(),
		newDLQInspectCommand(),
		newDLQReprocessCommand(),
		newDLQPurgeCommand(),
	)
	return root
}

func newDLQListCommand() *cobra.Command {
	var (
		jobID             string
		errorType         string
		reprocessEligible bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dead-letter items for a job",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := openDLQ(jobID, 1000)
			if err != nil {
				return err
			}
			filter := dlq.Filter{ErrorType: errorType}
			if cmd.Flags().Changed("reprocess-eligible") {
				filter.ReprocessEligible = &reprocessEligible
			}
			for _, item := range q.List(filter) {
				fmt.Printf("%s\tfailures=%d\tsignature=%s\teligible=%t\tlast=%s\n",
					item.ItemID, item.FailureCount, item.ErrorSignature, item.ReprocessEligible,
					item.LastAttempt.Format(time.RFC3339))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&jobID, "job", "", "job id")
	cmd.Flags().StringVar(&errorType, "error-type", "", "filter by recorded error type")
	cmd.Flags().BoolVar(&reprocessEligible, "reprocess-eligible", false, "filter by reprocess eligibility")
	cmd.MarkFlagRequired("job")
	return cmd
}

func newDLQInspectCommand() *cobra.Command {
	var jobID string

	cmd := &cobra.Command{
		Use:   "inspect <item-id>",
		Short: "Show full failure history for one dead-letter item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := openDLQ(jobID, 1000)
			if err != nil {
				return err
			}
			item, ok := q.Get(job.ItemID(args[0]))
			if !ok {
				return fmt.Errorf("item %s not found in dead-letter queue for job %s", args[0], jobID)
			}
			fmt.Printf("item: %s\nsignature: %s\nfailures: %d\nfirst attempt: %s\nlast attempt: %s\neligible: %t\nmanual review: %t\n",
				item.ItemID, item.ErrorSignature, item.FailureCount,
				item.FirstAttempt.Format(time.RFC3339), item.LastAttempt.Format(time.RFC3339),
				item.ReprocessEligible, item.ManualReviewRequired)
			for _, h := range item.FailureHistory {
				fmt.Printf("  %s [%s] %s\n", h.Timestamp.Format(time.RFC3339), h.ErrorType, h.Message)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&jobID, "job", "", "job id")
	cmd.MarkFlagRequired("job")
	return cmd
}

func newDLQReprocessCommand() *cobra.Command {
	var jobID string

	cmd := &cobra.Command{
		Use:   "reprocess <item-id>...",
		Short: "Remove eligible items from the dead-letter queue for resubmission",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := openDLQ(jobID, 1000)
			if err != nil {
				return err
			}
			ids := make([]job.ItemID, len(args))
			for i, a := range args {
				ids[i] = job.ItemID(a)
			}
			reprocessed, skipped, err := q.Reprocess(ids)
			if err != nil {
				return err
			}
			fmt.Printf("reprocessed %d item(s)\n", len(reprocessed))
			if len(skipped) > 0 {
				fmt.Printf("skipped %d item(s) not eligible or not found: %v\n", len(skipped), skipped)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&jobID, "job", "", "job id")
	cmd.MarkFlagRequired("job")
	return cmd
}

func newDLQPurgeCommand() *cobra.Command {
	var (
		jobID     string
		olderThan time.Duration
	)

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove dead-letter items older than a cutoff",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := openDLQ(jobID, 1000)
			if err != nil {
				return err
			}
			n, err := q.PurgeOldItems(time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Printf("purged %d item(s)\n", n)
			return nil
		},
	}
	cmd.Flags().StringVar(&jobID, "job", "", "job id")
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "purge items last attempted before this long ago")
	cmd.MarkFlagRequired("job")
	return cmd
}
