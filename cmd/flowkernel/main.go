// Command flowkernel is the CLI entrypoint for the durable MapReduce
// workflow engine. Grounded on the teacher's cmd/kernel/main.go
// signal-context shutdown pattern, generalized from a single flag-
// parsed command to a cobra subcommand tree since the engine exposes
// several independent operations (run, resume, sessions, dlq,
// changelog) rather than one.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

var (
	stateDir string
	verbose  bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := newRootCommand()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "flowkernel",
		Short: "Durable, resumable, parallel MapReduce workflow engine",
	}

	root.PersistentFlags().StringVar(&stateDir, "state-dir", defaultStateDir(), "root directory for checkpoints, DLQ, sessions, and locks")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(
		newRunCommand(),
		newResumeCommand(),
		newResumeJobCommand(),
		newSessionsCommand(),
		newDLQCommand(),
		newChangelogCommand(),
	)
	return root
}

func defaultStateDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home + "/.local/state/flowkernel"
	}
	return ".flowkernel"
}

func logger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
