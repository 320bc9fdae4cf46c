package ingest

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/qazmed/diagdex/internal/protocol"
)

// CachedPoint is one line of the embedding cache: everything needed to upload
// the point without calling the embedding model again.
type CachedPoint struct {
	ID      string                `json:"id"`
	Vector  []float32             `json:"vector"`
	Payload protocol.ChunkPayload `json:"payload"`
}

// Cache is an append-only JSONL file of embedded points. Appending is the
// only write: an interrupted encode run loses nothing already paid for, and
// the next run resumes where it stopped.
type Cache struct {
	path string
}

func NewCache(path string) *Cache {
	return &Cache{path: path}
}

func (c *Cache) Path() string { return c.path }

// Exists reports whether the cache file is present on disk.
func (c *Cache) Exists() bool {
	info, err := os.Stat(c.path)
	return err == nil && !info.IsDir()
}

// IDs returns the set of point ids already cached. A missing file is an empty
// cache, not an error.
func (c *Cache) IDs() (map[string]struct{}, error) {
	ids := make(map[string]struct{})
	err := c.scan(func(p CachedPoint) {
		ids[p.ID] = struct{}{}
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Load reads every cached point in file order. Later duplicates of an id win,
// matching upsert semantics.
func (c *Cache) Load() ([]CachedPoint, error) {
	if !c.Exists() {
		return nil, fmt.Errorf("embedding cache %s does not exist: run the encode stage first", c.path)
	}
	seen := make(map[string]int)
	var points []CachedPoint
	err := c.scan(func(p CachedPoint) {
		if i, ok := seen[p.ID]; ok {
			points[i] = p
			return
		}
		seen[p.ID] = len(points)
		points = append(points, p)
	})
	if err != nil {
		return nil, err
	}
	return points, nil
}

// Append writes the points to the end of the cache file, creating it on first
// use.
func (c *Cache) Append(points []CachedPoint) error {
	if len(points) == 0 {
		return nil
	}
	f, err := os.OpenFile(c.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, p := range points {
		if err := enc.Encode(p); err != nil {
			return fmt.Errorf("write cache: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush cache: %w", err)
	}
	return nil
}

func (c *Cache) scan(fn func(CachedPoint)) error {
	f, err := os.Open(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open cache: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 64*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var p CachedPoint
		if err := json.Unmarshal([]byte(line), &p); err != nil {
			return fmt.Errorf("cache %s line %d: %w", c.path, lineNo, err)
		}
		fn(p)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read cache: %w", err)
	}
	return nil
}
