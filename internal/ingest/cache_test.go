package ingest

import (
	"path/filepath"
	"testing"

	"github.com/qazmed/diagdex/internal/protocol"
)

func cachePayload(index int) protocol.ChunkPayload {
	return protocol.ChunkPayload{
		Title:      "Острый бронхит",
		SourceFile: "a.pdf",
		ICDCodes:   []string{"J20.9"},
		ChunkType:  protocol.ChunkClinical,
		ChunkIndex: index,
		Text:       "кашель",
	}
}

func TestCacheAppendAndLoad(t *testing.T) {
	cache := NewCache(filepath.Join(t.TempDir(), "points_cache.jsonl"))

	if cache.Exists() {
		t.Error("Exists() = true before first append")
	}
	ids, err := cache.IDs()
	if err != nil {
		t.Fatalf("IDs() on missing cache: %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("missing cache has %d ids, want 0", len(ids))
	}

	first := []CachedPoint{
		{ID: "p1", Vector: []float32{1, 0}, Payload: cachePayload(0)},
		{ID: "p2", Vector: []float32{0, 1}, Payload: cachePayload(1)},
	}
	if err := cache.Append(first); err != nil {
		t.Fatalf("Append() error: %v", err)
	}
	if err := cache.Append([]CachedPoint{{ID: "p3", Vector: []float32{1, 1}, Payload: cachePayload(2)}}); err != nil {
		t.Fatalf("second Append() error: %v", err)
	}

	ids, err = cache.IDs()
	if err != nil {
		t.Fatalf("IDs() error: %v", err)
	}
	if len(ids) != 3 {
		t.Errorf("got %d ids, want 3", len(ids))
	}

	points, err := cache.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(points) != 3 {
		t.Fatalf("got %d points, want 3", len(points))
	}
	if points[0].ID != "p1" || points[0].Payload.Title != "Острый бронхит" {
		t.Errorf("first point = %+v", points[0])
	}
}

func TestCacheLoadLastDuplicateWins(t *testing.T) {
	cache := NewCache(filepath.Join(t.TempDir(), "points_cache.jsonl"))
	if err := cache.Append([]CachedPoint{
		{ID: "p1", Vector: []float32{1, 0}, Payload: cachePayload(0)},
		{ID: "p1", Vector: []float32{0, 1}, Payload: cachePayload(0)},
	}); err != nil {
		t.Fatal(err)
	}

	points, err := cache.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if len(points) != 1 {
		t.Fatalf("got %d points, want 1 after dedup", len(points))
	}
	if points[0].Vector[1] != 1 {
		t.Errorf("vector = %v, want the later duplicate", points[0].Vector)
	}
}

func TestCacheLoadMissingFails(t *testing.T) {
	cache := NewCache(filepath.Join(t.TempDir(), "points_cache.jsonl"))
	if _, err := cache.Load(); err == nil {
		t.Fatal("expected error loading a missing cache")
	}
}
