// Package ferrors defines the tagged-union error type shared by every
// component of the workflow engine, plus secret-masking helpers for
// user-visible failure messages.
//
// Errors are never formatted strings alone: callers attach structured
// context (paths, ids, versions) as key/value pairs so a presentation
// layer (CLI, event log) can render them without re-parsing text.
package ferrors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind categorizes an Error per the engine's error taxonomy.
type Kind string

const (
	KindNotFound               Kind = "not_found"
	KindConflict               Kind = "conflict"
	KindValidationFailed       Kind = "validation_failed"
	KindTimeout                Kind = "timeout"
	KindCommandFailed          Kind = "command_failed"
	KindCommitValidationFailed Kind = "commit_validation_failed"
	KindWorktreeError          Kind = "worktree_error"
	KindMergeConflict          Kind = "merge_conflict"
	KindResourceExhausted      Kind = "resource_exhausted"
	KindIO                     Kind = "io"
	KindSerialization          Kind = "serialization"
	KindGeneral                Kind = "general"
)

// Error is the engine-wide structured error. It always carries a Kind
// and a one-line Cause; Context holds structured fields; Suggestions
// holds concrete next actions for a human reading the failure.
type Error struct {
	Kind        Kind
	Cause       string
	Context     map[string]any
	Suggestions []string
	Err         error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	b.WriteString(": ")
	b.WriteString(e.Cause)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error of the given kind with a formatted cause.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Cause: fmt.Sprintf(format, args...)}
}

// Wrap attaches a Kind and cause to an existing error.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Cause: fmt.Sprintf(format, args...), Err: err}
}

// WithContext returns a copy of e with the given key/value merged into
// its structured context.
func (e *Error) WithContext(key string, value any) *Error {
	ctx := make(map[string]any, len(e.Context)+1)
	for k, v := range e.Context {
		ctx[k] = v
	}
	ctx[key] = value
	return &Error{Kind: e.Kind, Cause: e.Cause, Context: ctx, Suggestions: e.Suggestions, Err: e.Err}
}

// WithSuggestion appends a concrete next action.
func (e *Error) WithSuggestion(s string) *Error {
	suggestions := make([]string, len(e.Suggestions), len(e.Suggestions)+1)
	copy(suggestions, e.Suggestions)
	suggestions = append(suggestions, s)
	return &Error{Kind: e.Kind, Cause: e.Cause, Context: e.Context, Suggestions: suggestions, Err: e.Err}
}

// Is supports errors.Is comparisons by Kind when target is also *Error.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error,
// otherwise returns KindGeneral.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindGeneral
}

// MaskSecret masks a secret value for display: the first 4 characters
// plus "***", or "***" alone when the value has 4 or fewer characters.
func MaskSecret(value string) string {
	if len(value) <= 4 {
		return "***"
	}
	return value[:4] + "***"
}

// Summarize groups a set of per-item errors into a single message,
// mirroring the "single failure vs. categorized-by-frequency" shape
// used across the engine for batch failure reporting.
func Summarize(prefix string, errs []error) string {
	if len(errs) == 0 {
		return prefix
	}
	if len(errs) == 1 {
		return fmt.Sprintf("%s: %v", prefix, errs[0])
	}

	counts := make(map[string]int)
	for _, err := range errs {
		counts[err.Error()]++
	}

	type summary struct {
		msg   string
		count int
	}
	summaries := make([]summary, 0, len(counts))
	for msg, count := range counts {
		summaries = append(summaries, summary{msg, count})
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].count > summaries[j].count })

	parts := make([]string, 0, len(summaries))
	for _, s := range summaries {
		if s.count == 1 {
			parts = append(parts, fmt.Sprintf("%q (1 item)", s.msg))
		} else {
			parts = append(parts, fmt.Sprintf("%q (%d items)", s.msg, s.count))
		}
	}

	return fmt.Sprintf("%s: %d failed with %d distinct errors: %s",
		prefix, len(errs), len(counts), strings.Join(parts, ", "))
}
