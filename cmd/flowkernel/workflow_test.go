package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeWorkflowFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "workflow.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoadWorkflowFileParsesMapReduceShape(t *testing.T) {
	path := writeWorkflowFile(t, `
name: analyze-files
description: per-file analysis
map:
  input: files.json
  json_path: ".files[]"
  max_parallel: 4
  timeout_per_agent: 30s
  agent_template:
    - kind: claude
      claude: "analyze ${item}"
reduce:
  commands:
    - kind: shell
      shell: "echo done"
`)

	wf, err := LoadWorkflowFile(path)
	if err != nil {
		t.Fatalf("LoadWorkflowFile() error = %v", err)
	}
	if wf.Name != "analyze-files" {
		t.Errorf("Name = %q, want analyze-files", wf.Name)
	}
	if !wf.IsMapReduce() {
		t.Fatal("expected IsMapReduce() to be true")
	}
	if wf.Map.MaxParallel != 4 {
		t.Errorf("MaxParallel = %d, want 4", wf.Map.MaxParallel)
	}
	if len(wf.Map.AgentTemplate) != 1 {
		t.Fatalf("len(AgentTemplate) = %d, want 1", len(wf.Map.AgentTemplate))
	}
	if wf.Reduce == nil || len(wf.Reduce.Commands) != 1 {
		t.Fatal("expected one reduce command")
	}
}

func TestLoadWorkflowFilePlainCommandsIsNotMapReduce(t *testing.T) {
	path := writeWorkflowFile(t, `
name: lint
commands:
  - kind: shell
    shell: "golangci-lint run"
`)

	wf, err := LoadWorkflowFile(path)
	if err != nil {
		t.Fatalf("LoadWorkflowFile() error = %v", err)
	}
	if wf.IsMapReduce() {
		t.Error("expected IsMapReduce() to be false for a plain command workflow")
	}
	if len(wf.Commands) != 1 {
		t.Fatalf("len(Commands) = %d, want 1", len(wf.Commands))
	}
}

func TestLoadWorkflowFileRejectsMissingName(t *testing.T) {
	path := writeWorkflowFile(t, `
commands:
  - kind: shell
    shell: "echo hi"
`)

	if _, err := LoadWorkflowFile(path); err == nil {
		t.Fatal("expected error for workflow with no name")
	}
}

func TestLoadWorkflowFileMissingFile(t *testing.T) {
	if _, err := LoadWorkflowFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestParseGeneratedInputSpec(t *testing.T) {
	kind, params, ok := parseGeneratedInputSpec(`generate:range:{"start":5,"step":2}`)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if kind != "range" {
		t.Errorf("kind = %q, want range", kind)
	}
	if params["start"] != 5.0 {
		t.Errorf("params[start] = %v, want 5", params["start"])
	}
}

func TestParseGeneratedInputSpecWithoutParams(t *testing.T) {
	kind, params, ok := parseGeneratedInputSpec("generate:uuid")
	if !ok {
		t.Fatal("expected ok=true")
	}
	if kind != "uuid" {
		t.Errorf("kind = %q, want uuid", kind)
	}
	if len(params) != 0 {
		t.Errorf("params = %v, want empty", params)
	}
}

func TestParseGeneratedInputSpecRejectsFilePath(t *testing.T) {
	if _, _, ok := parseGeneratedInputSpec("files.json"); ok {
		t.Fatal("expected ok=false for a plain file path")
	}
}
