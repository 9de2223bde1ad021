package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	flog "github.com/tailored-agentic-units/flowkernel/internal/changelog"
)

func newChangelogCommand() *cobra.Command {
	var repoRoot string

	root := &cobra.Command{
		Use:   "changelog",
		Short: "Generate and manage a Keep a Changelog document from commit history",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if repoRoot == "" {
				wd, err := os.Getwd()
				if err != nil {
					return err
				}
				repoRoot = wd
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&repoRoot, "repo", "", "repository root (default: current directory)")

	root.AddCommand(
		newChangelogGenerateCommand(&repoRoot),
		newChangelogValidateCommand(),
		newChangelogReleaseCommand(),
		newChangelogExportCommand(),
		newChangelogAddCommand(),
		newChangelogStatsCommand(),
	)
	return root
}

func newChangelogGenerateCommand(repoRoot *string) *cobra.Command {
	var (
		output string
		from   string
		to     string
		filter string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a changelog from conventional commits",
		RunE: func(cmd *cobra.Command, args []string) error {
			gen := flog.New(*repoRoot)
			grouped, err := gen.Generate(cmd.Context(), flog.GenerateOptions{From: from, To: to, Filter: filter})
			if err != nil {
				return err
			}
			markdown := flog.RenderMarkdown(grouped)
			if dryRun {
				fmt.Print(markdown)
				return nil
			}
			if err := flog.WriteFile(output, grouped); err != nil {
				return err
			}
			fmt.Printf("changelog generated: %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVar(&output, "output", "CHANGELOG.md", "output file path")
	cmd.Flags().StringVar(&from, "from", "", "starting commit or ref (exclusive)")
	cmd.Flags().StringVar(&to, "to", "", "ending commit or ref (default: HEAD)")
	cmd.Flags().StringVar(&filter, "filter", "", "only include commits whose subject matches this regexp")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print to stdout instead of writing the file")
	return cmd
}

func newChangelogValidateCommand() *cobra.Command {
	var strict bool

	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a changelog file's structure",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			problems := flog.Validate(args[0], strict)
			if len(problems) == 0 {
				fmt.Println("valid")
				return nil
			}
			for _, p := range problems {
				fmt.Println(p)
			}
			return fmt.Errorf("%d validation problem(s)", len(problems))
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "also flag entries outside a recognized category")
	return cmd
}

func newChangelogReleaseCommand() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "release <version>",
		Short: "Print the release header for a version cut (dry-run only)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			header := flog.ReleaseHeader(args[0], time.Now())
			fmt.Println(header)
			if !dryRun {
				fmt.Println("note: release is dry-run only; edit the changelog file directly to cut a release")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", true, "preview only, never mutates the changelog file")
	return cmd
}

func newChangelogExportCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <input>",
		Short: "Print entry and category totals of an existing changelog (does not re-render it)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := flog.AnalyzeFile(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("%d total entries across %d categories\n", stats.TotalEntries, len(stats.ByCategory))
			return nil
		},
	}
	return cmd
}

func newChangelogAddCommand() *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "add <category> <description>",
		Short: "Append a manual entry to the Unreleased section",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return flog.AddEntry(file, args[0], args[1])
		},
	}
	cmd.Flags().StringVar(&file, "file", "CHANGELOG.md", "changelog file to update")
	return cmd
}

func newChangelogStatsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats <file>",
		Short: "Show entry counts by category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := flog.AnalyzeFile(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("total: %d\n", stats.TotalEntries)
			for category, count := range stats.ByCategory {
				fmt.Printf("  %s: %d\n", category, count)
			}
			return nil
		},
	}
	return cmd
}
