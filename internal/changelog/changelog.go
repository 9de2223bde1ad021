// Package changelog implements the changelog subcommand's Keep a
// Changelog generator: conventional-commit parsing over git history,
// grouped markdown rendering, and validation/stats over an existing
// file. Grounded on internal/gitops for the git access (the same
// "wrap the real binary" approach used for worktree operations) and
// the teacher's Config/DefaultConfig/New constructor idiom.
package changelog

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/tailored-agentic-units/flowkernel/internal/ferrors"
	"github.com/tailored-agentic-units/flowkernel/internal/gitops"
)

// Entry is one changelog line, attributable back to the commit it was
// derived from.
type Entry struct {
	Category    string
	Description string
	Commit      string
	Author      string
	PRNumber    int
}

// categoryOrder fixes the Keep a Changelog section order; categories
// outside this set are dropped rather than appended, matching the
// original generator's behavior of skipping non-mapped commit types.
var categoryOrder = []string{"Added", "Changed", "Deprecated", "Removed", "Fixed", "Security", "Documentation"}

var commitTypeCategory = map[string]string{
	"feat":     "Added",
	"fix":      "Fixed",
	"docs":     "Documentation",
	"refactor": "Changed",
	"perf":     "Changed",
	"chore":    "Changed",
}

var (
	conventionalCommitRe = regexp.MustCompile(`^(feat|fix|docs|style|refactor|perf|test|chore|build|ci)(?:\(([^)]+)\))?: (.+)$`)
	prNumberRe           = regexp.MustCompile(`#(\d+)`)
)

// Generator produces and maintains a Keep a Changelog markdown file
// from a git repository's commit history. It is a concrete type; no
// separate generator interface is defined.
type Generator struct {
	Repo *gitops.Runner
}

// New constructs a Generator rooted at repoRoot.
func New(repoRoot string) *Generator {
	return &Generator{Repo: gitops.NewRunner(repoRoot)}
}

// GenerateOptions configures Generate.
type GenerateOptions struct {
	From   string
	To     string
	Filter string
}

// Generate builds grouped changelog entries from the commit range
// described by opts. An empty From walks the whole history up to To
// (HEAD if To is also empty).
func (g *Generator) Generate(ctx context.Context, opts GenerateOptions) (map[string][]Entry, error) {
	commits, err := g.Repo.Log(ctx, opts.From, opts.To)
	if err != nil {
		return nil, err
	}

	var filterRe *regexp.Regexp
	if opts.Filter != "" {
		filterRe, err = regexp.Compile(opts.Filter)
		if err != nil {
			return nil, ferrors.Wrap(ferrors.KindValidationFailed, err, "compile filter %q", opts.Filter)
		}
	}

	grouped := make(map[string][]Entry)
	for _, commit := range commits {
		if filterRe != nil && !filterRe.MatchString(commit.Subject) {
			continue
		}
		entry, ok := parseConventionalCommit(commit)
		if !ok {
			continue
		}
		grouped[entry.Category] = append(grouped[entry.Category], entry)
	}
	return grouped, nil
}

func parseConventionalCommit(commit gitops.LogEntry) (Entry, bool) {
	match := conventionalCommitRe.FindStringSubmatch(commit.Subject)
	if match == nil {
		return Entry{}, false
	}
	category, ok := commitTypeCategory[match[1]]
	if !ok {
		return Entry{}, false
	}
	entry := Entry{
		Category:    category,
		Description: match[3],
		Author:      commit.Author,
	}
	if len(commit.Hash) >= 8 {
		entry.Commit = commit.Hash[:8]
	} else {
		entry.Commit = commit.Hash
	}
	if m := prNumberRe.FindStringSubmatch(commit.Subject); m != nil {
		fmt.Sscanf(m[1], "%d", &entry.PRNumber)
	}
	return entry, true
}

// RenderMarkdown formats grouped entries as a Keep a Changelog
// document with a single Unreleased section.
func RenderMarkdown(grouped map[string][]Entry) string {
	var b strings.Builder
	b.WriteString("# Changelog\n\n")
	b.WriteString("All notable changes to this project will be documented in this file.\n\n")
	b.WriteString("The format is based on [Keep a Changelog](https://keepachangelog.com/en/1.1.0/),\n")
	b.WriteString("and this project adheres to [Semantic Versioning](https://semver.org/spec/v2.0.0.html).\n\n")
	if len(grouped) == 0 {
		return b.String()
	}
	b.WriteString("## [Unreleased]\n\n")
	writeCategorySections(&b, grouped)
	return b.String()
}

func writeCategorySections(b *strings.Builder, grouped map[string][]Entry) {
	for _, category := range categoryOrder {
		entries, ok := grouped[category]
		if !ok || len(entries) == 0 {
			continue
		}
		fmt.Fprintf(b, "### %s\n", category)
		for _, e := range entries {
			if e.Commit != "" {
				fmt.Fprintf(b, "- %s (%s)\n", e.Description, e.Commit)
			} else {
				fmt.Fprintf(b, "- %s\n", e.Description)
			}
		}
		b.WriteString("\n")
	}
}

// WriteFile renders and writes grouped entries to path.
func WriteFile(path string, grouped map[string][]Entry) error {
	if err := os.WriteFile(path, []byte(RenderMarkdown(grouped)), 0o644); err != nil {
		return ferrors.Wrap(ferrors.KindIO, err, "write changelog %s", path)
	}
	return nil
}

// Stats summarizes an existing changelog file by section.
type Stats struct {
	TotalEntries int
	ByCategory   map[string]int
}

// AnalyzeFile reads path and counts bullet entries per "### Category"
// heading.
func AnalyzeFile(path string) (Stats, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Stats{}, ferrors.Wrap(ferrors.KindIO, err, "read changelog %s", path)
	}
	stats := Stats{ByCategory: make(map[string]int)}
	current := ""
	for _, line := range strings.Split(string(data), "\n") {
		switch {
		case strings.HasPrefix(line, "### "):
			current = strings.TrimSpace(strings.TrimPrefix(line, "### "))
		case strings.HasPrefix(line, "- ") && current != "":
			stats.ByCategory[current]++
			stats.TotalEntries++
		}
	}
	return stats, nil
}

// Validate checks that path exists, starts with a top-level heading,
// and (in strict mode) that every entry line falls under a recognized
// category heading.
func Validate(path string, strict bool) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		return []string{fmt.Sprintf("cannot read %s: %v", path, err)}
	}
	lines := strings.Split(string(data), "\n")
	if len(lines) == 0 || !strings.HasPrefix(lines[0], "# ") {
		return []string{"file does not start with a top-level heading"}
	}
	if !strict {
		return nil
	}
	known := make(map[string]bool, len(categoryOrder))
	for _, c := range categoryOrder {
		known[c] = true
	}
	var problems []string
	current := ""
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "### "):
			current = strings.TrimSpace(strings.TrimPrefix(line, "### "))
		case strings.HasPrefix(line, "- "):
			if current == "" {
				problems = append(problems, fmt.Sprintf("line %d: entry outside any category", i+1))
			} else if !known[current] {
				problems = append(problems, fmt.Sprintf("line %d: unrecognized category %q", i+1, current))
			}
		}
	}
	return problems
}

// AddEntry appends a manually authored entry under the Unreleased
// section of an existing changelog file, creating the section if
// absent.
func AddEntry(path, category, description string) error {
	grouped, err := readUnreleased(path)
	if err != nil {
		return err
	}
	grouped[category] = append(grouped[category], Entry{Category: category, Description: description})
	return WriteFile(path, grouped)
}

func readUnreleased(path string) (map[string][]Entry, error) {
	grouped := make(map[string][]Entry)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return grouped, nil
	}
	if err != nil {
		return nil, ferrors.Wrap(ferrors.KindIO, err, "read changelog %s", path)
	}
	current := ""
	inUnreleased := false
	for _, line := range strings.Split(string(data), "\n") {
		switch {
		case strings.HasPrefix(line, "## [Unreleased]"):
			inUnreleased = true
		case strings.HasPrefix(line, "## ["):
			inUnreleased = false
		case inUnreleased && strings.HasPrefix(line, "### "):
			current = strings.TrimSpace(strings.TrimPrefix(line, "### "))
		case inUnreleased && strings.HasPrefix(line, "- ") && current != "":
			grouped[current] = append(grouped[current], Entry{Category: current, Description: strings.TrimPrefix(line, "- ")})
		}
	}
	return grouped, nil
}

// ReleaseHeader formats a dated release header; the CLI's release
// command prints it and never mutates the changelog file.
func ReleaseHeader(version string, date time.Time) string {
	if version == "" {
		version = "unreleased"
	}
	return fmt.Sprintf("## [%s] - %s", version, date.Format("2006-01-02"))
}
