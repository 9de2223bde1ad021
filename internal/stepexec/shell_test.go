package stepexec

import (
	"context"
	"testing"
	"time"
)

func TestShellRunnerSubstitutesVars(t *testing.T) {
	r := ShellRunner{}
	out, err := r.Run(context.Background(), t.TempDir(), Step{
		Kind:    KindShell,
		ID:      "echo",
		Command: "echo $name",
	}, Vars{"name": "world"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out.Stdout != "world\n" {
		t.Errorf("Stdout = %q, want %q", out.Stdout, "world\n")
	}
}

func TestShellRunnerTimeout(t *testing.T) {
	r := ShellRunner{}
	_, err := r.Run(context.Background(), t.TempDir(), Step{
		Kind:    KindShell,
		ID:      "sleep",
		Command: "sleep 2",
		Timeout: 10 * time.Millisecond,
	}, nil)
	if err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestShellRunnerRejectsWrongKind(t *testing.T) {
	r := ShellRunner{}
	_, err := r.Run(context.Background(), t.TempDir(), Step{Kind: KindClaude}, nil)
	if err == nil {
		t.Fatal("expected error for mismatched step kind")
	}
}

func TestClaudeRunnerRequiresInvoker(t *testing.T) {
	r := ClaudeRunner{}
	_, err := r.Run(context.Background(), t.TempDir(), Step{Kind: KindClaude, ID: "ask"}, nil)
	if err == nil {
		t.Fatal("expected error when no invoker is configured")
	}
}

func TestDispatcherRunsForeachOverJSONArray(t *testing.T) {
	d := NewDispatcher(nil)
	out, err := d.Run(context.Background(), t.TempDir(), Step{
		Kind:         KindForeach,
		ID:           "per-file",
		ForeachItems: "files",
		Steps: []Step{
			{Kind: KindShell, ID: "echo-item", Command: "echo $foreach_index:$foreach_item"},
		},
	}, Vars{"files": `["a","b"]`})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := "0:a\n1:b\n"
	if out.Stdout != want {
		t.Errorf("Stdout = %q, want %q", out.Stdout, want)
	}
}

func TestDispatcherForeachMissingVariableErrors(t *testing.T) {
	d := NewDispatcher(nil)
	_, err := d.Run(context.Background(), t.TempDir(), Step{
		Kind:         KindForeach,
		ID:           "per-file",
		ForeachItems: "missing",
	}, Vars{})
	if err == nil {
		t.Fatal("expected error for unresolved foreach variable")
	}
}

func TestDispatcherForeachAbortsOnNestedFailure(t *testing.T) {
	d := NewDispatcher(nil)
	_, err := d.Run(context.Background(), t.TempDir(), Step{
		Kind:         KindForeach,
		ID:           "per-file",
		ForeachItems: "files",
		Steps: []Step{
			{Kind: KindShell, ID: "fail", Command: "exit 1"},
		},
	}, Vars{"files": `["a"]`})
	if err == nil {
		t.Fatal("expected foreach to abort on a nested step failure")
	}
}

func TestDispatcherRunsRegisteredHandler(t *testing.T) {
	d := NewDispatcher(nil)
	called := false
	d.Handlers = map[string]HandlerFunc{
		"notify": func(ctx context.Context, workDir string, vars Vars) (Output, error) {
			called = true
			return Output{Stdout: "notified"}, nil
		},
	}
	out, err := d.Run(context.Background(), t.TempDir(), Step{
		Kind:        KindHandler,
		ID:          "notify-step",
		HandlerName: "notify",
	}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !called || out.Stdout != "notified" {
		t.Errorf("handler not invoked as expected, out = %+v", out)
	}
}

func TestDispatcherHandlerRequiresRegistration(t *testing.T) {
	d := NewDispatcher(nil)
	_, err := d.Run(context.Background(), t.TempDir(), Step{
		Kind:        KindHandler,
		ID:          "notify-step",
		HandlerName: "unregistered",
	}, nil)
	if err == nil {
		t.Fatal("expected error for unregistered handler name")
	}
}

func TestDispatcherRoutesGoalSeekToShell(t *testing.T) {
	d := NewDispatcher(nil)
	out, err := d.Run(context.Background(), t.TempDir(), Step{
		Kind: KindGoalSeek,
		Goal: "true",
	}, nil)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", out.ExitCode)
	}
}
