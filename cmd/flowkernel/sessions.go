package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/flowkernel/internal/session"
)

func loadSession(sessionID string) (session.Progress, error) {
	return session.Load(stateDir, sessionID)
}

func newSessionsCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "sessions",
		Short: "Inspect past and in-progress run sessions",
	}
	root.AddCommand(newSessionsListCommand())
	return root
}

func newSessionsListCommand() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded sessions, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			sessions, err := session.List(stateDir)
			if err != nil {
				return err
			}
			for _, s := range sessions {
				if status != "" && string(s.Phase) != status {
					continue
				}
				fmt.Printf("%s\tjob=%s\tphase=%s\tstarted=%s\tsucceeded=%d\tfailed=%d\n",
					s.SessionID, s.JobID, s.Phase, s.StartedAt.Format("2006-01-02T15:04:05"),
					s.Metrics.ItemsSucceeded, s.Metrics.ItemsFailed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "filter by phase (created, setup, map, reduce, complete, failed)")
	return cmd
}
