package vecstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/qazmed/diagdex/internal/protocol"
)

// LocalStore keeps vectors in a SQLite file and answers searches with a
// brute-force cosine scan. It exists so ingestion and retrieval can run
// without a Qdrant server; the corpus is small enough for a full scan.
type LocalStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewLocalStore opens (or creates) the store under dir.
func NewLocalStore(dir string) (*LocalStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("local store dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", filepath.Join(dir, "vectors.db"))
	if err != nil {
		return nil, fmt.Errorf("open vector db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	store := &LocalStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// EnsureCollection records the collection's dimensionality. A mismatch with a
// previous run wipes the collection, same contract as the Qdrant store.
func (s *LocalStore) EnsureCollection(ctx context.Context, name string, dims int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var stored int
	err := s.db.QueryRowContext(ctx, `SELECT dims FROM collections WHERE name = ?`, name).Scan(&stored)
	switch {
	case err == sql.ErrNoRows:
		_, err = s.db.ExecContext(ctx, `INSERT INTO collections (name, dims) VALUES (?, ?)`, name, dims)
		return err
	case err != nil:
		return err
	case stored == dims:
		return nil
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM points WHERE collection = ?`, name); err != nil {
		return fmt.Errorf("recreate collection %s (dim %d != %d): %w", name, stored, dims, err)
	}
	_, err = s.db.ExecContext(ctx, `UPDATE collections SET dims = ? WHERE name = ?`, dims, name)
	return err
}

func (s *LocalStore) UpsertPoints(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO points
		(id, collection, payload, vector) VALUES (?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, p := range points {
		if err := validatePayload(p.Payload); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("point %s: %w", p.ID, err)
		}
		payloadJSON, err := json.Marshal(p.Payload)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		vectorJSON, err := encodeVector(p.Vector)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		if _, err := stmt.ExecContext(ctx, p.ID, collection, string(payloadJSON), vectorJSON); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (s *LocalStore) SearchPoints(ctx context.Context, collection string, vector []float32, limit int) ([]SearchPoint, error) {
	if limit <= 0 {
		limit = 10
	}
	queryVec, queryNorm := toFloat64Vector(vector)
	if len(queryVec) == 0 || queryNorm == 0 {
		return nil, fmt.Errorf("vector query is empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx, `SELECT id, payload, vector FROM points WHERE collection = ?`, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []SearchPoint
	for rows.Next() {
		var id, payloadJSON, vectorJSON string
		if err := rows.Scan(&id, &payloadJSON, &vectorJSON); err != nil {
			return nil, err
		}
		vec, err := decodeVector(vectorJSON)
		if err != nil {
			continue
		}
		var payload protocol.ChunkPayload
		if err := json.Unmarshal([]byte(payloadJSON), &payload); err != nil {
			return nil, fmt.Errorf("point %s: decode payload: %w", id, err)
		}
		hits = append(hits, SearchPoint{
			ID:      id,
			Score:   cosineSimilarity(queryVec, vec, queryNorm),
			Payload: payload,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *LocalStore) ScrollPointIDs(ctx context.Context, collection string) (map[string]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM points WHERE collection = ?`, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

func (s *LocalStore) Close() error {
	return s.db.Close()
}

func (s *LocalStore) initSchema() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA busy_timeout=5000;`,
		`CREATE TABLE IF NOT EXISTS collections (
			name TEXT PRIMARY KEY,
			dims INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS points (
			id TEXT PRIMARY KEY,
			collection TEXT NOT NULL,
			payload TEXT NOT NULL,
			vector TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_points_collection ON points (collection);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init vector db: %w", err)
		}
	}
	return nil
}

func encodeVector(vec []float32) (string, error) {
	data := make([]float64, len(vec))
	for i, val := range vec {
		data[i] = float64(val)
	}
	out, err := json.Marshal(data)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func decodeVector(raw string) ([]float64, error) {
	var vec []float64
	if err := json.Unmarshal([]byte(raw), &vec); err != nil {
		return nil, err
	}
	return vec, nil
}

func toFloat64Vector(vec []float32) ([]float64, float64) {
	out := make([]float64, len(vec))
	var sum float64
	for i, val := range vec {
		v := float64(val)
		out[i] = v
		sum += v * v
	}
	return out, math.Sqrt(sum)
}

func cosineSimilarity(query []float64, vec []float64, queryNorm float64) float64 {
	if len(query) == 0 || len(query) != len(vec) || queryNorm == 0 {
		return 0
	}
	var dot float64
	var norm float64
	for i, val := range vec {
		dot += query[i] * val
		norm += val * val
	}
	if norm == 0 {
		return 0
	}
	return dot / (queryNorm * math.Sqrt(norm))
}
