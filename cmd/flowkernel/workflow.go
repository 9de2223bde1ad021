package main

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tailored-agentic-units/flowkernel/internal/errorpolicytypes"
	"github.com/tailored-agentic-units/flowkernel/internal/ferrors"
	"github.com/tailored-agentic-units/flowkernel/internal/stepexec"
)

// WorkflowFile is the on-disk shape of a workflow YAML document: a
// plain command chain, or (when Map is set) a MapReduce job.
type WorkflowFile struct {
	Name        string             `yaml:"name"`
	Description string             `yaml:"description,omitempty"`
	Commands    []stepexec.Step    `yaml:"commands,omitempty"`
	Map         *MapSection        `yaml:"map,omitempty"`
	Reduce      *ReduceSection     `yaml:"reduce,omitempty"`
	ErrorPolicy *errorpolicytypes.Policy `yaml:"error_policy,omitempty"`
}

// MapSection configures the input and per-item execution of the map
// phase.
type MapSection struct {
	Input           string          `yaml:"input"`
	JSONPath        string          `yaml:"json_path"`
	MaxParallel     int             `yaml:"max_parallel"`
	TimeoutPerAgent time.Duration   `yaml:"timeout_per_agent"` // Go duration string (e.g. "30s"); yaml.v3 rejects integer nanoseconds
	RetryOnFailure  int             `yaml:"retry_on_failure"`
	AgentTemplate   []stepexec.Step `yaml:"agent_template"`
	Filter          string          `yaml:"filter,omitempty"`
	SortBy          string          `yaml:"sort_by,omitempty"`
}

// ReduceSection configures the reduce phase's sequential step list.
type ReduceSection struct {
	Commands []stepexec.Step `yaml:"commands"`
}

// LoadWorkflowFile reads and parses a workflow YAML document.
func LoadWorkflowFile(path string) (*WorkflowFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.KindIO, err, "read workflow file %s", path)
	}
	var wf WorkflowFile
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return nil, ferrors.Wrap(ferrors.KindSerialization, err, "parse workflow file %s", path)
	}
	if wf.Name == "" {
		return nil, ferrors.New(ferrors.KindValidationFailed, "workflow file %s has no name", path)
	}
	return &wf, nil
}

// IsMapReduce reports whether the workflow has a map phase.
func (wf *WorkflowFile) IsMapReduce() bool { return wf.Map != nil }
