package job

import "fmt"

// Partition verifies invariant 1: every work item id appears in
// exactly one of {completed, failed, pending, in_progress}, and
// invariant 2: completed count does not exceed total.
func Partition(s *State) error {
	seen := make(map[ItemID]string, s.TotalItems)

	mark := func(id ItemID, bucket string) error {
		if prev, ok := seen[id]; ok {
			return fmt.Errorf("item %q present in both %q and %q", id, prev, bucket)
		}
		seen[id] = bucket
		return nil
	}

	for id := range s.CompletedAgents {
		if err := mark(id, "completed"); err != nil {
			return err
		}
	}
	for id := range s.FailedAgents {
		if err := mark(id, "failed"); err != nil {
			return err
		}
	}
	for _, id := range s.PendingItems {
		if err := mark(id, "pending"); err != nil {
			return err
		}
	}
	for _, id := range s.InProgressItems {
		if err := mark(id, "in_progress"); err != nil {
			return err
		}
	}

	if len(seen) != len(s.WorkItems) {
		return fmt.Errorf("partition covers %d items, expected %d", len(seen), len(s.WorkItems))
	}
	for _, item := range s.WorkItems {
		if _, ok := seen[item.ID]; !ok {
			return fmt.Errorf("item %q missing from partition", item.ID)
		}
	}

	if len(s.CompletedAgents) > s.TotalItems {
		return fmt.Errorf("completed count %d exceeds total items %d", len(s.CompletedAgents), s.TotalItems)
	}

	return nil
}
