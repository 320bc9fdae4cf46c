// Package ingest turns the protocol corpus into an uploaded vector index in
// two resumable stages: encode (chunk, embed, cache) and upload (diff the
// cache against the collection, upsert what is missing).
package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/qazmed/diagdex/internal/embedding"
	"github.com/qazmed/diagdex/internal/protocol"
	"github.com/qazmed/diagdex/internal/vecstore"
)

// encodeFlushSize bounds how many embedded chunks accumulate in memory before
// they are appended to the cache. A crash mid-run loses at most one flush.
const encodeFlushSize = 64

type Pipeline struct {
	store       vecstore.Store
	embedder    *embedding.Service
	cache       *Cache
	collection  string
	uploadBatch int
	progress    ProgressReporter
	log         *zap.Logger
}

type Options struct {
	Collection  string
	UploadBatch int
}

func NewPipeline(store vecstore.Store, embedder *embedding.Service, cache *Cache, opts Options, progress ProgressReporter, log *zap.Logger) *Pipeline {
	if opts.UploadBatch <= 0 {
		opts.UploadBatch = 256
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Pipeline{
		store:       store,
		embedder:    embedder,
		cache:       cache,
		collection:  opts.Collection,
		uploadBatch: opts.UploadBatch,
		progress:    progress,
		log:         log,
	}
}

type EncodeStats struct {
	Records        int
	InvalidRecords int
	Chunks         int
	CacheHits      int
	Embedded       int
}

// EncodeAndCache chunks the records, embeds every chunk not yet in the cache
// and appends the results. Already-cached ids are never re-embedded, so
// re-running after an interruption only pays for what is missing.
func (p *Pipeline) EncodeAndCache(ctx context.Context, records []protocol.Record) (EncodeStats, error) {
	stats := EncodeStats{Records: len(records)}

	cached, err := p.cache.IDs()
	if err != nil {
		return stats, err
	}

	var pending []protocol.Chunk
	for _, rec := range records {
		chunks := protocol.BuildChunks(rec)
		if len(chunks) == 0 {
			stats.InvalidRecords++
			continue
		}
		stats.Chunks += len(chunks)
		for _, c := range chunks {
			if _, ok := cached[c.ID()]; ok {
				stats.CacheHits++
				continue
			}
			pending = append(pending, c)
		}
	}
	p.log.Info("encode stage",
		zap.Int("records", stats.Records),
		zap.Int("chunks", stats.Chunks),
		zap.Int("cache_hits", stats.CacheHits),
		zap.Int("to_embed", len(pending)))
	if len(pending) == 0 {
		return stats, nil
	}

	if p.progress != nil {
		p.progress.Start(len(pending), "encoding")
		defer p.progress.Finish()
	}
	for start := 0; start < len(pending); start += encodeFlushSize {
		end := start + encodeFlushSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]
		texts := make([]string, len(batch))
		for i, c := range batch {
			texts[i] = c.EmbedText
		}
		vectors, err := p.embedder.EmbedDocuments(ctx, texts)
		if err != nil {
			return stats, fmt.Errorf("embed chunks %d-%d: %w", start, end, err)
		}
		points := make([]CachedPoint, len(batch))
		for i, c := range batch {
			points[i] = CachedPoint{ID: c.ID(), Vector: vectors[i], Payload: c.Payload}
		}
		if err := p.cache.Append(points); err != nil {
			return stats, err
		}
		stats.Embedded += len(points)
		if p.progress != nil {
			for range batch {
				p.progress.Increment()
			}
		}
	}
	return stats, nil
}

type UploadStats struct {
	CachedPoints   int
	AlreadyPresent int
	Uploaded       int
}

// UploadFromCache upserts every cached point the collection does not already
// hold. Points present on the server are skipped, so the stage is idempotent
// and a second run uploads nothing.
func (p *Pipeline) UploadFromCache(ctx context.Context) (UploadStats, error) {
	var stats UploadStats

	points, err := p.cache.Load()
	if err != nil {
		return stats, err
	}
	stats.CachedPoints = len(points)
	if len(points) == 0 {
		return stats, fmt.Errorf("embedding cache %s is empty", p.cache.Path())
	}

	dims := len(points[0].Vector)
	if err := p.store.EnsureCollection(ctx, p.collection, dims); err != nil {
		return stats, err
	}

	existing, err := p.store.ScrollPointIDs(ctx, p.collection)
	if err != nil {
		return stats, fmt.Errorf("scroll existing points: %w", err)
	}

	var missing []vecstore.Point
	for _, cp := range points {
		if _, ok := existing[cp.ID]; ok {
			stats.AlreadyPresent++
			continue
		}
		missing = append(missing, vecstore.Point{ID: cp.ID, Vector: cp.Vector, Payload: cp.Payload})
	}
	p.log.Info("upload stage",
		zap.Int("cached", stats.CachedPoints),
		zap.Int("present", stats.AlreadyPresent),
		zap.Int("to_upload", len(missing)))
	if len(missing) == 0 {
		return stats, nil
	}

	if p.progress != nil {
		p.progress.Start(len(missing), "uploading")
		defer p.progress.Finish()
	}
	for start := 0; start < len(missing); start += p.uploadBatch {
		end := start + p.uploadBatch
		if end > len(missing) {
			end = len(missing)
		}
		batch := missing[start:end]
		if err := p.store.UpsertPoints(ctx, p.collection, batch); err != nil {
			return stats, fmt.Errorf("upload batch %d-%d: %w", start, end, err)
		}
		stats.Uploaded += len(batch)
		if p.progress != nil {
			for range batch {
				p.progress.Increment()
			}
		}
	}
	return stats, nil
}
