package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultsLoadWithoutAnyFile(t *testing.T) {
	loader := NewLoader()
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.MapReduce.MaxParallel != 5 {
		t.Errorf("MaxParallel = %d, want 5", cfg.MapReduce.MaxParallel)
	}
}

func TestProjectFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "log_level: debug\nmapreduce:\n  max_parallel: 9\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	loader := NewLoader()
	if err := loader.MergeFile(path); err != nil {
		t.Fatalf("MergeFile() error = %v", err)
	}
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.MapReduce.MaxParallel != 9 {
		t.Errorf("MaxParallel = %d, want 9", cfg.MapReduce.MaxParallel)
	}
}

func TestProjectFileOverridesGlobalFile(t *testing.T) {
	dir := t.TempDir()
	globalPath := filepath.Join(dir, "global.yaml")
	projectPath := filepath.Join(dir, "project.yaml")
	if err := os.WriteFile(globalPath, []byte("log_level: warn\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if err := os.WriteFile(projectPath, []byte("log_level: debug\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	loader := NewLoader()
	if err := loader.MergeFile(globalPath); err != nil {
		t.Fatalf("MergeFile(global) error = %v", err)
	}
	if err := loader.MergeFile(projectPath); err != nil {
		t.Fatalf("MergeFile(project) error = %v", err)
	}
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug (project file wins)", cfg.LogLevel)
	}
}

func TestLegacyEnvAliasOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("log_level: debug\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	t.Setenv("LOG_LEVEL", "error")

	loader := NewLoader()
	if err := loader.MergeFile(path); err != nil {
		t.Fatalf("MergeFile() error = %v", err)
	}
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LogLevel != "error" {
		t.Errorf("LogLevel = %q, want error (env alias wins over file)", cfg.LogLevel)
	}
}

func TestStructuredEnvVarOverridesNestedField(t *testing.T) {
	t.Setenv("MAPREDUCE__MAX_PARALLEL", "17")

	loader := NewLoader()
	cfg, err := loader.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MapReduce.MaxParallel != 17 {
		t.Errorf("MaxParallel = %d, want 17", cfg.MapReduce.MaxParallel)
	}
}

func TestWatchProjectFileDeliversReloadedConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("log_level: info\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	loader := NewLoader()
	if err := loader.MergeFile(path); err != nil {
		t.Fatalf("MergeFile() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w, err := WatchProjectFile(ctx, loader, path)
	if err != nil {
		t.Fatalf("WatchProjectFile() error = %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	if err := os.WriteFile(path, []byte("log_level: debug\n"), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	select {
	case cfg := <-w.Changes:
		if cfg.LogLevel != "debug" {
			t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}
