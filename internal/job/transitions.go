package job

import "time"

// StartItem moves an item from pending to in-progress. It is a no-op
// if the item is not currently pending (defensive against duplicate
// dispatch, which should not happen given FIFO queue semantics but is
// cheap to guard).
func (s *State) StartItem(id ItemID) {
	for i, p := range s.PendingItems {
		if p == id {
			s.PendingItems = append(s.PendingItems[:i], s.PendingItems[i+1:]...)
			s.InProgressItems = append(s.InProgressItems, id)
			return
		}
	}
}

// CompleteItem atomically moves an item from in-progress to completed
// and records its result, per the checkpoint ordering rule that a
// success is recorded in the same persist step as the state move.
func (s *State) CompleteItem(result AgentResult) {
	s.removeInProgress(result.ItemID)
	delete(s.FailedAgents, result.ItemID)
	s.CompletedAgents[result.ItemID] = struct{}{}
	s.AgentResults[result.ItemID] = result
	s.SuccessfulCount = len(s.CompletedAgents)
	s.UpdatedAt = time.Now()
}

// FailItem atomically moves an item from in-progress to failed,
// recording retry history. A subsequent RequeueItem call puts it back
// in pending for a retry attempt.
func (s *State) FailItem(result AgentResult) {
	s.removeInProgress(result.ItemID)
	prev := s.FailedAgents[result.ItemID]
	s.FailedAgents[result.ItemID] = FailureRecord{
		Attempts:    prev.Attempts + 1,
		LastError:   result.ErrorMessage,
		LastAttempt: time.Now(),
	}
	s.AgentResults[result.ItemID] = result
	s.FailedCount = len(s.FailedAgents)
	s.UpdatedAt = time.Now()
}

// RequeueItem moves a failed item back to pending for a retry. The
// failure record is removed from FailedAgents so the partition
// invariant holds for the new pending membership; callers that want
// to preserve retry history for display should read it before calling
// RequeueItem.
func (s *State) RequeueItem(id ItemID) {
	if _, ok := s.FailedAgents[id]; !ok {
		return
	}
	delete(s.FailedAgents, id)
	s.FailedCount = len(s.FailedAgents)
	s.PendingItems = append(s.PendingItems, id)
}

// ResetInProgressToPending reverts every in-progress item back to
// pending: on checkpoint persist, a crashed agent's partial work is
// discarded and the item is rerun.
func (s *State) ResetInProgressToPending() {
	if len(s.InProgressItems) == 0 {
		return
	}
	s.PendingItems = append(s.PendingItems, s.InProgressItems...)
	s.InProgressItems = nil
}

func (s *State) removeInProgress(id ItemID) {
	for i, p := range s.InProgressItems {
		if p == id {
			s.InProgressItems = append(s.InProgressItems[:i], s.InProgressItems[i+1:]...)
			return
		}
	}
}

// RemainingCount returns the number of items not yet terminally
// resolved (pending + in-progress).
func (s *State) RemainingCount() int {
	return len(s.PendingItems) + len(s.InProgressItems)
}

// MapExhausted reports whether every item has reached a terminal
// completed/failed state (invariant 4's precondition for starting
// reduce).
func (s *State) MapExhausted() bool {
	return s.RemainingCount() == 0
}
