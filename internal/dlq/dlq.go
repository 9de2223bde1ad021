// Package dlq implements the dead-letter queue: durable storage for
// items whose retries were exhausted, with listing, pattern analysis,
// and reprocessing. Persistence follows the same atomic write pattern
// as package checkpoint (both trace back to the teacher's
// memory.fileStore).
package dlq

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/tailored-agentic-units/flowkernel/internal/atomicfile"
	"github.com/tailored-agentic-units/flowkernel/internal/ferrors"
	"github.com/tailored-agentic-units/flowkernel/internal/job"
)

// FailureDetail is one recorded failure for an item's history.
type FailureDetail struct {
	Timestamp time.Time `json:"timestamp"`
	ErrorType string    `json:"error_type"`
	Message   string    `json:"message"`
}

// Item is one dead-letter entry.
type Item struct {
	ItemID               job.ItemID      `json:"item_id"`
	ItemData             json.RawMessage `json:"item_data"`
	FirstAttempt         time.Time       `json:"first_attempt"`
	LastAttempt          time.Time       `json:"last_attempt"`
	FailureCount         int             `json:"failure_count"`
	FailureHistory       []FailureDetail `json:"failure_history"`
	ErrorSignature       string          `json:"error_signature"`
	WorktreeArtifacts    string          `json:"worktree_artifacts,omitempty"`
	ReprocessEligible    bool            `json:"reprocess_eligible"`
	ManualReviewRequired bool            `json:"manual_review_required"`
}

// index.json content.
type indexFile struct {
	Timestamp time.Time   `json:"timestamp"`
	Count     int         `json:"count"`
	IDs       []job.ItemID `json:"ids"`
}

// Queue is the job-scoped dead-letter queue.
type Queue struct {
	mu       sync.Mutex
	root     string // mapreduce/jobs/<job_id>/dlq
	maxItems int
	cache    map[job.ItemID]Item
}

const defaultMaxItems = 1000

// New creates a Queue rooted at baseDir/mapreduce/jobs/<job_id>/dlq,
// loading any items already on disk into the in-memory cache.
func New(baseDir string, jobID job.ID, maxItems int) (*Queue, error) {
	if maxItems <= 0 {
		maxItems = defaultMaxItems
	}
	root := filepath.Join(baseDir, "mapreduce", "jobs", string(jobID), "dlq")
	q := &Queue{root: root, maxItems: maxItems, cache: make(map[job.ItemID]Item)}

	entries, err := os.ReadDir(filepath.Join(root, "items"))
	if err != nil {
		if os.IsNotExist(err) {
			return q, nil
		}
		return nil, ferrors.Wrap(ferrors.KindIO, err, "list dlq items")
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := atomicfile.Read(filepath.Join(root, "items", e.Name()))
		if err != nil {
			continue
		}
		var item Item
		if err := json.Unmarshal(data, &item); err != nil {
			continue
		}
		q.cache[item.ItemID] = item
	}
	return q, nil
}

func (q *Queue) itemPath(id job.ItemID) string {
	return filepath.Join(q.root, "items", string(id)+".json")
}

func (q *Queue) indexPath() string {
	return filepath.Join(q.root, "index.json")
}

// Add persists item first, then updates the in-memory cache (disk
// write ordered before cache update, per §4.5). Add is idempotent by
// ItemID: a second Add for the same id overwrites the first.
func (q *Queue) Add(item Item) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	data, err := json.MarshalIndent(item, "", "  ")
	if err != nil {
		return ferrors.Wrap(ferrors.KindSerialization, err, "marshal dlq item %s", item.ItemID)
	}
	if err := atomicfile.Write(q.itemPath(item.ItemID), data, 0o644); err != nil {
		return ferrors.Wrap(ferrors.KindIO, err, "persist dlq item %s", item.ItemID)
	}
	q.cache[item.ItemID] = item

	if err := q.rewriteIndexLocked(); err != nil {
		return err
	}

	return q.evictIfOverCapacityLocked()
}

// Remove deletes the item's file and cache entry.
func (q *Queue) Remove(id job.ItemID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.removeLocked(id)
}

func (q *Queue) removeLocked(id job.ItemID) error {
	if _, ok := q.cache[id]; !ok {
		return nil
	}
	if err := atomicfile.Remove(q.itemPath(id)); err != nil {
		return err
	}
	delete(q.cache, id)
	return q.rewriteIndexLocked()
}

// Contains reports whether id currently has a DLQ entry.
func (q *Queue) Contains(id job.ItemID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.cache[id]
	return ok
}

// Get returns the DLQ entry for id, if present.
func (q *Queue) Get(id job.ItemID) (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	item, ok := q.cache[id]
	return item, ok
}

// Filter selects which items List returns.
type Filter struct {
	ErrorType            string
	ReprocessEligible    *bool
	Since                time.Time
	Until                time.Time
	ErrorSignatureSubstr string
}

func (f Filter) matches(item Item) bool {
	if f.ErrorType != "" {
		matched := false
		for _, d := range item.FailureHistory {
			if d.ErrorType == f.ErrorType {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	if f.ReprocessEligible != nil && item.ReprocessEligible != *f.ReprocessEligible {
		return false
	}
	if !f.Since.IsZero() && item.LastAttempt.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && item.LastAttempt.After(f.Until) {
		return false
	}
	if f.ErrorSignatureSubstr != "" && !strings.Contains(item.ErrorSignature, f.ErrorSignatureSubstr) {
		return false
	}
	return true
}

// List returns items matching filter, sorted by LastAttempt descending.
func (q *Queue) List(filter Filter) []Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Item, 0, len(q.cache))
	for _, item := range q.cache {
		if filter.matches(item) {
			out = append(out, item)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastAttempt.After(out[j].LastAttempt) })
	return out
}

// PatternBucket summarizes one error-signature group for analyze_patterns.
type PatternBucket struct {
	ErrorSignature string
	Count          int
	ByHour         map[string]int // "2006-01-02T15" -> count
}

// AnalyzePatterns groups DLQ items by ErrorSignature and bucketizes
// occurrences by hour.
func (q *Queue) AnalyzePatterns() []PatternBucket {
	q.mu.Lock()
	defer q.mu.Unlock()

	buckets := make(map[string]*PatternBucket)
	for _, item := range q.cache {
		b, ok := buckets[item.ErrorSignature]
		if !ok {
			b = &PatternBucket{ErrorSignature: item.ErrorSignature, ByHour: make(map[string]int)}
			buckets[item.ErrorSignature] = b
		}
		b.Count++
		b.ByHour[item.LastAttempt.Format("2006-01-02T15")]++
	}

	out := make([]PatternBucket, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	return out
}

// Reprocess returns the item data for eligible ids and removes them
// atomically from the DLQ. Ids that are absent or not
// ReprocessEligible are skipped and reported in the second return
// value.
func (q *Queue) Reprocess(ids []job.ItemID) ([]Item, []job.ItemID, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var reprocessed []Item
	var skipped []job.ItemID
	for _, id := range ids {
		item, ok := q.cache[id]
		if !ok || !item.ReprocessEligible {
			skipped = append(skipped, id)
			continue
		}
		if err := q.removeLocked(id); err != nil {
			return reprocessed, skipped, err
		}
		reprocessed = append(reprocessed, item)
	}
	return reprocessed, skipped, nil
}

// PurgeOldItems removes items whose LastAttempt is before cutoff.
func (q *Queue) PurgeOldItems(cutoff time.Time) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var ids []job.ItemID
	for id, item := range q.cache {
		if item.LastAttempt.Before(cutoff) {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		if err := q.removeLocked(id); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

// evictIfOverCapacityLocked evicts the oldest 10% (minimum 1) of items
// by LastAttempt when the queue exceeds maxItems.
func (q *Queue) evictIfOverCapacityLocked() error {
	if len(q.cache) <= q.maxItems {
		return nil
	}

	items := make([]Item, 0, len(q.cache))
	for _, item := range q.cache {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool { return items[i].LastAttempt.Before(items[j].LastAttempt) })

	evictCount := len(q.cache) / 10
	if evictCount < 1 {
		evictCount = 1
	}
	for i := 0; i < evictCount && i < len(items); i++ {
		if err := q.removeLocked(items[i].ItemID); err != nil {
			return err
		}
	}
	return nil
}

func (q *Queue) rewriteIndexLocked() error {
	ids := make([]job.ItemID, 0, len(q.cache))
	for id := range q.cache {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	data, err := json.MarshalIndent(indexFile{Timestamp: time.Now(), Count: len(ids), IDs: ids}, "", "  ")
	if err != nil {
		return ferrors.Wrap(ferrors.KindSerialization, err, "marshal dlq index")
	}
	if err := atomicfile.Write(q.indexPath(), data, 0o644); err != nil {
		return ferrors.Wrap(ferrors.KindIO, err, "persist dlq index")
	}
	return nil
}

var (
	allDigits = regexp.MustCompile(`^[0-9]+$`)
	pathLike  = regexp.MustCompile(`[/\\]`)
)

// ErrorSignature derives a stable grouping key from an error kind and
// message: tokens that are paths or all-digit are dropped, and the
// first 10 remaining tokens are joined by single spaces.
func ErrorSignature(kind, message string) string {
	tokens := strings.Fields(message)
	kept := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if allDigits.MatchString(t) || pathLike.MatchString(t) || looksLikeAbsolutePath(t) {
			continue
		}
		kept = append(kept, t)
		if len(kept) == 10 {
			break
		}
	}
	return fmt.Sprintf("%s::%s", kind, strings.Join(kept, " "))
}

func looksLikeAbsolutePath(token string) bool {
	return strings.HasPrefix(token, "/") || strings.HasPrefix(token, "./") || strings.HasPrefix(token, "../")
}
