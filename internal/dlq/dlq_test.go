package dlq

import (
	"testing"
	"time"

	"github.com/tailored-agentic-units/flowkernel/internal/job"
)

func mustQueue(t *testing.T, maxItems int) *Queue {
	t.Helper()
	q, err := New(t.TempDir(), "job-1", maxItems)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return q
}

func TestAddRemoveRoundTrip(t *testing.T) {
	q := mustQueue(t, 0)
	item := Item{ItemID: "item_1", LastAttempt: time.Now(), ReprocessEligible: true}

	if err := q.Add(item); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if !q.Contains("item_1") {
		t.Fatal("expected item present after Add")
	}

	if err := q.Remove("item_1"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if q.Contains("item_1") {
		t.Fatal("expected item absent after Remove")
	}
}

func TestAddIsIdempotentByID(t *testing.T) {
	q := mustQueue(t, 0)
	first := Item{ItemID: "item_1", FailureCount: 1, LastAttempt: time.Now()}
	second := Item{ItemID: "item_1", FailureCount: 2, LastAttempt: time.Now()}

	if err := q.Add(first); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if err := q.Add(second); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	got, ok := q.Get("item_1")
	if !ok {
		t.Fatal("expected item present")
	}
	if got.FailureCount != 2 {
		t.Errorf("FailureCount = %d, want 2 (second add should overwrite)", got.FailureCount)
	}
}

func TestListSortedByLastAttemptDescending(t *testing.T) {
	q := mustQueue(t, 0)
	now := time.Now()
	_ = q.Add(Item{ItemID: "item_1", LastAttempt: now.Add(-time.Hour)})
	_ = q.Add(Item{ItemID: "item_2", LastAttempt: now})

	list := q.List(Filter{})
	if len(list) != 2 {
		t.Fatalf("List() returned %d items, want 2", len(list))
	}
	if list[0].ItemID != "item_2" {
		t.Errorf("List()[0] = %q, want item_2 (most recent first)", list[0].ItemID)
	}
}

func TestReprocessSkipsIneligible(t *testing.T) {
	q := mustQueue(t, 0)
	_ = q.Add(Item{ItemID: "item_1", ReprocessEligible: true})
	_ = q.Add(Item{ItemID: "item_2", ReprocessEligible: false})

	reprocessed, skipped, err := q.Reprocess([]job.ItemID{"item_1", "item_2"})
	if err != nil {
		t.Fatalf("Reprocess() error = %v", err)
	}
	if len(reprocessed) != 1 || reprocessed[0].ItemID != "item_1" {
		t.Errorf("reprocessed = %v, want [item_1]", reprocessed)
	}
	if len(skipped) != 1 || skipped[0] != "item_2" {
		t.Errorf("skipped = %v, want [item_2]", skipped)
	}
	if q.Contains("item_1") {
		t.Error("expected item_1 removed after reprocess")
	}
	if !q.Contains("item_2") {
		t.Error("expected item_2 to remain (ineligible)")
	}
}

func TestCapacityEvictionEvictsOldestTenPercent(t *testing.T) {
	q := mustQueue(t, 10)
	now := time.Now()
	for i := 0; i < 11; i++ {
		id := job.ItemIDForIndex(i)
		if err := q.Add(Item{ItemID: id, LastAttempt: now.Add(time.Duration(i) * time.Minute)}); err != nil {
			t.Fatalf("Add() error = %v", err)
		}
	}

	list := q.List(Filter{})
	if len(list) != 10 {
		t.Fatalf("expected 10 items after eviction (max(1, 11/10)=1 evicted), got %d", len(list))
	}
	if q.Contains(job.ItemIDForIndex(0)) {
		t.Error("expected oldest item evicted")
	}
}

func TestErrorSignatureDropsPathsAndDigits(t *testing.T) {
	sig := ErrorSignature("timeout", "connection to /var/run/socket123 failed after 42 retries at host abc")
	if sig == "" {
		t.Fatal("expected non-empty signature")
	}
	if containsToken(sig, "42") {
		t.Errorf("expected all-digit token dropped, got %q", sig)
	}
	if containsToken(sig, "/var/run/socket123") {
		t.Errorf("expected path token dropped, got %q", sig)
	}
}

func TestErrorSignatureStableAcrossVariableTokens(t *testing.T) {
	a := ErrorSignature("timeout", "request to /tmp/a failed after 3 retries")
	b := ErrorSignature("timeout", "request to /tmp/b failed after 9 retries")
	if a != b {
		t.Errorf("expected stable signature across variable tokens, got %q vs %q", a, b)
	}
}

func containsToken(s, token string) bool {
	for _, f := range splitFields(s) {
		if f == token {
			return true
		}
	}
	return false
}

func splitFields(s string) []string {
	var out []string
	cur := ""
	for _, r := range s {
		if r == ' ' || r == ':' {
			if cur != "" {
				out = append(out, cur)
				cur = ""
			}
			continue
		}
		cur += string(r)
	}
	if cur != "" {
		out = append(out, cur)
	}
	return out
}

func TestAnalyzePatternsGroupsBySignature(t *testing.T) {
	q := mustQueue(t, 0)
	now := time.Now()
	_ = q.Add(Item{ItemID: "item_1", ErrorSignature: "timeout::x", LastAttempt: now})
	_ = q.Add(Item{ItemID: "item_2", ErrorSignature: "timeout::x", LastAttempt: now})
	_ = q.Add(Item{ItemID: "item_3", ErrorSignature: "conflict::y", LastAttempt: now})

	buckets := q.AnalyzePatterns()
	if len(buckets) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(buckets))
	}
	if buckets[0].Count != 2 {
		t.Errorf("expected most frequent bucket first with count 2, got %d", buckets[0].Count)
	}
}

func TestPurgeOldItems(t *testing.T) {
	q := mustQueue(t, 0)
	now := time.Now()
	_ = q.Add(Item{ItemID: "old", LastAttempt: now.Add(-48 * time.Hour)})
	_ = q.Add(Item{ItemID: "new", LastAttempt: now})

	n, err := q.PurgeOldItems(now.Add(-24 * time.Hour))
	if err != nil {
		t.Fatalf("PurgeOldItems() error = %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d items, want 1", n)
	}
	if q.Contains("old") {
		t.Error("expected old item purged")
	}
	if !q.Contains("new") {
		t.Error("expected new item retained")
	}
}

func TestLoadFromDiskRebuildsCache(t *testing.T) {
	dir := t.TempDir()
	q1, err := New(dir, "job-1", 0)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	_ = q1.Add(Item{ItemID: "item_1", LastAttempt: time.Now()})

	q2, err := New(dir, "job-1", 0)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if !q2.Contains("item_1") {
		t.Error("expected second Queue instance to load existing items from disk")
	}
}
