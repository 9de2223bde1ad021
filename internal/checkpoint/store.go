// Package checkpoint implements the State Store (atomic persistence of
// job.State snapshots) and the Checkpoint Controller (trigger policy
// and phase-transition bookkeeping) described by the engine's
// persistence layout. Generalized from the teacher's
// orchestrate/state.CheckpointStore registry and memory.fileStore's
// atomic-write pattern.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/tailored-agentic-units/flowkernel/internal/atomicfile"
	"github.com/tailored-agentic-units/flowkernel/internal/ferrors"
	"github.com/tailored-agentic-units/flowkernel/internal/job"
)

// Reason is why a checkpoint was written.
type Reason string

const (
	ReasonInitial         Reason = "initial"
	ReasonInterval        Reason = "interval"
	ReasonPhaseTransition Reason = "phase_transition"
	ReasonManual          Reason = "manual"
	ReasonBeforeShutdown  Reason = "before_shutdown"
)

// Checkpoint is a persisted snapshot of job.State tagged with its
// reason and id.
type Checkpoint struct {
	CheckpointID job.CheckpointID `json:"checkpoint_id"`
	Reason       Reason           `json:"reason"`
	State        *job.State       `json:"state"`
}

// Store persists and restores job.State for a single job, identified
// by the monotonic checkpoint version embedded in the file name. It
// satisfies the State Store contract of §4.4: atomic writes, "latest
// wins" recovery, and silent discard of any file that fails to
// deserialize.
type Store struct {
	root string // state/<job_id>/checkpoints
}

// NewStore creates a Store rooted at stateDir/<job_id>/checkpoints.
func NewStore(stateDir string, jobID job.ID) *Store {
	return &Store{root: filepath.Join(stateDir, string(jobID), "checkpoints")}
}

func (s *Store) fileName(jobID job.ID, version job.CheckpointID) string {
	return filepath.Join(s.root, fmt.Sprintf("%s-%d.checkpoint.json", jobID, version))
}

// Save writes a new checkpoint file for the given state at its
// CheckpointVersion. Callers must increment CheckpointVersion before
// calling Save; Save does not mutate the version itself, preserving
// the invariant that version strictly increases on every persisted
// write and that there is exactly one writer per job_id at a time
// (enforced by the Resume Lock, not by this type).
func (s *Store) Save(cp Checkpoint) error {
	if cp.State == nil {
		return ferrors.New(ferrors.KindValidationFailed, "checkpoint has no state")
	}
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return ferrors.Wrap(ferrors.KindSerialization, err, "marshal checkpoint")
	}
	path := s.fileName(cp.State.JobID, job.CheckpointID(cp.State.CheckpointVersion))
	if err := atomicfile.Write(path, data, 0o644); err != nil {
		return ferrors.Wrap(ferrors.KindIO, err, "persist checkpoint %d", cp.State.CheckpointVersion)
	}
	return nil
}

// LoadLatest returns the highest-version checkpoint that deserializes
// successfully, skipping (and logging via the returned skipped slice)
// any file name that parses as a checkpoint but fails to decode —
// recovery from a partial write.
func (s *Store) LoadLatest() (Checkpoint, []string, error) {
	versions, err := s.listVersionsDescending()
	if err != nil {
		return Checkpoint{}, nil, err
	}
	if len(versions) == 0 {
		return Checkpoint{}, nil, ferrors.New(ferrors.KindNotFound, "no checkpoint found")
	}

	var skipped []string
	for _, v := range versions {
		path := s.fileNameForVersion(v)
		data, err := atomicfile.Read(path)
		if err != nil {
			skipped = append(skipped, path)
			continue
		}
		var cp Checkpoint
		if err := json.Unmarshal(data, &cp); err != nil {
			skipped = append(skipped, path)
			continue
		}
		return cp, skipped, nil
	}

	return Checkpoint{}, skipped, ferrors.New(ferrors.KindNotFound, "no checkpoint deserialized successfully")
}

func (s *Store) fileNameForVersion(v job.CheckpointID) string {
	entries, _ := os.ReadDir(s.root)
	prefix := fmt.Sprintf("-%d.checkpoint.json", v)
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), prefix) {
			return filepath.Join(s.root, e.Name())
		}
	}
	return ""
}

func (s *Store) listVersionsDescending() ([]job.CheckpointID, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, ferrors.Wrap(ferrors.KindIO, err, "list checkpoints dir")
	}

	var versions []job.CheckpointID
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".checkpoint.json") {
			continue
		}
		parts := strings.Split(strings.TrimSuffix(name, ".checkpoint.json"), "-")
		if len(parts) < 2 {
			continue
		}
		v, err := strconv.ParseUint(parts[len(parts)-1], 10, 64)
		if err != nil {
			continue
		}
		versions = append(versions, job.CheckpointID(v))
	}

	sort.Slice(versions, func(i, j int) bool { return versions[i] > versions[j] })
	return versions, nil
}
