// Package job defines the persisted data model shared by every
// component of the workflow engine: work items, job state, agent
// results, and the partition invariant that ties them together.
package job

import "fmt"

// ID is an opaque, globally unique job identifier.
type ID string

// ItemID identifies a work item uniquely within a job. By convention
// generated items are named "item_N" for input index N.
type ItemID string

// ItemIDForIndex returns the conventional id for the Nth work item.
func ItemIDForIndex(n int) ItemID {
	return ItemID(fmt.Sprintf("item_%d", n))
}

// AgentID identifies a single agent attempt (one per worktree spawn).
type AgentID string

// CheckpointID is monotonic within a job.
type CheckpointID uint64

// SessionID is an opaque session identifier.
type SessionID string
