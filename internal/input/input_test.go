package input

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestExtractFromFileAppliesPathExpression(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "items.json")
	content := `{"items": [{"name": "a"}, {"name": "b"}, {"name": "c"}]}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	items, err := ExtractFromFile(path, ".items[]")
	if err != nil {
		t.Fatalf("ExtractFromFile() error = %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("len(items) = %d, want 3", len(items))
	}
	if items[0].ID != "item_0" || items[2].ID != "item_2" {
		t.Errorf("unexpected item ids: %v", items)
	}

	var decoded struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(items[1].Data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded.Name != "b" {
		t.Errorf("Data = %s, want name=b", items[1].Data)
	}
}

func TestExtractFromFileMissingFile(t *testing.T) {
	if _, err := ExtractFromFile(filepath.Join(t.TempDir(), "missing.json"), "."); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestExtractFromFileInvalidPathExpression(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "items.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := ExtractFromFile(path, "[[["); err == nil {
		t.Fatal("expected error for invalid path expression")
	}
}

func TestSequenceProvider(t *testing.T) {
	items, err := NewSequenceProvider().Generate(4)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	for i, item := range items {
		var v int
		if err := json.Unmarshal(item.Data, &v); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		if v != i {
			t.Errorf("item %d = %d, want %d", i, v, i)
		}
	}
}

func TestRangeProvider(t *testing.T) {
	items, err := NewRangeProvider(10, 5).Generate(3)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	want := []int{10, 15, 20}
	for i, item := range items {
		var v int
		json.Unmarshal(item.Data, &v)
		if v != want[i] {
			t.Errorf("item %d = %d, want %d", i, v, want[i])
		}
	}
}

func TestUUIDProviderProducesDistinctValues(t *testing.T) {
	items, err := NewUUIDProvider().Generate(5)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	seen := make(map[string]bool)
	for _, item := range items {
		var v string
		json.Unmarshal(item.Data, &v)
		if seen[v] {
			t.Fatalf("duplicate uuid %s", v)
		}
		seen[v] = true
	}
}

func TestTimestampProviderSpacesByInterval(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	items, err := NewTimestampProvider(start, time.Hour).Generate(2)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	var first, second string
	json.Unmarshal(items[0].Data, &first)
	json.Unmarshal(items[1].Data, &second)
	t0, _ := time.Parse(time.RFC3339, first)
	t1, _ := time.Parse(time.RFC3339, second)
	if t1.Sub(t0) != time.Hour {
		t.Errorf("interval = %v, want 1h", t1.Sub(t0))
	}
}

func TestGridProviderRowMajorOrder(t *testing.T) {
	items, err := NewGridProvider(3).Generate(4)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	var p GridPoint
	json.Unmarshal(items[3].Data, &p)
	if p.Row != 1 || p.Col != 0 {
		t.Errorf("point 3 = %+v, want {1 0}", p)
	}
}

func TestFibonacciProvider(t *testing.T) {
	items, err := NewFibonacciProvider().Generate(6)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	want := []int{0, 1, 1, 2, 3, 5}
	for i, item := range items {
		var v int
		json.Unmarshal(item.Data, &v)
		if v != want[i] {
			t.Errorf("item %d = %d, want %d", i, v, want[i])
		}
	}
}

func TestFactorialProvider(t *testing.T) {
	items, err := NewFactorialProvider().Generate(5)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	want := []int64{1, 1, 2, 6, 24}
	for i, item := range items {
		var v int64
		json.Unmarshal(item.Data, &v)
		if v != want[i] {
			t.Errorf("item %d = %d, want %d", i, v, want[i])
		}
	}
}

func TestPrimeProvider(t *testing.T) {
	items, err := NewPrimeProvider().Generate(5)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	want := []int{2, 3, 5, 7, 11}
	for i, item := range items {
		var v int
		json.Unmarshal(item.Data, &v)
		if v != want[i] {
			t.Errorf("item %d = %d, want %d", i, v, want[i])
		}
	}
}

func TestRandomProviderRespectsBounds(t *testing.T) {
	items, err := NewRandomProvider(10, 20).Generate(50)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	for _, item := range items {
		var v int
		json.Unmarshal(item.Data, &v)
		if v < 10 || v >= 20 {
			t.Fatalf("value %d out of bounds [10,20)", v)
		}
	}
}

func TestRandomProviderRejectsInvertedBounds(t *testing.T) {
	if _, err := NewRandomProvider(20, 10).Generate(1); err == nil {
		t.Fatal("expected error for max <= min")
	}
}

func TestProviderForKindUnknown(t *testing.T) {
	if _, err := ProviderForKind("not-a-kind", nil); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestProviderForKindRange(t *testing.T) {
	p, err := ProviderForKind("range", map[string]any{"start": 2.0, "step": 3.0})
	if err != nil {
		t.Fatalf("ProviderForKind() error = %v", err)
	}
	items, err := p.Generate(2)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	var v int
	json.Unmarshal(items[1].Data, &v)
	if v != 5 {
		t.Errorf("item 1 = %d, want 5", v)
	}
}
