package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/qazmed/diagdex/internal/config"
	"github.com/qazmed/diagdex/internal/embedding"
	"github.com/qazmed/diagdex/internal/ingest"
	"github.com/qazmed/diagdex/internal/keyword"
	"github.com/qazmed/diagdex/internal/protocol"
)

// handleIngest implements the ingest subcommand
func handleIngest(cfg *config.Config, logger *zap.Logger, args []string) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	input := fs.String("input", "", "Corpus file or glob of JSONL protocol records")
	cachePath := fs.String("cache", "", "Embedding cache file (default from config)")
	url := fs.String("url", "", "Override Qdrant URL")
	collection := fs.String("collection", "", "Override collection name")
	encodeOnly := fs.Bool("encode-only", false, "Only chunk and embed into the cache, skip upload")
	uploadOnly := fs.Bool("upload-only", false, "Only upload an existing cache, skip encoding")
	local := fs.String("local", "", "Use the embedded SQLite store at this directory")
	keywordDir := fs.String("keyword-index", "", "Also build a keyword index at this directory (default from config)")
	demoQuery := fs.String("query", "", "Run a demo search with this query after ingestion")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `USAGE:
    diagdex ingest [options]

DESCRIPTION:
    Build the vector index from a protocol corpus.
    This will:
      1. Load JSONL protocol records and split them into bounded chunks
      2. Embed each chunk and append it to the local cache
      3. Upload cached points the collection does not already hold

    Both stages are idempotent: re-running skips cached embeddings and
    already-uploaded points.

OPTIONS:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
EXAMPLES:
    # Full ingestion
    diagdex ingest -input protocols.jsonl

    # Ingest several corpus files
    diagdex ingest -input 'corpus/*.jsonl'

    # Split the stages
    diagdex ingest -input protocols.jsonl -encode-only
    diagdex ingest -upload-only

    # Verify retrieval right after ingesting
    diagdex ingest -input protocols.jsonl -query "кашель, температура 38"
`)
	}

	if err := fs.Parse(args); err != nil {
		log.Fatalf("Failed to parse arguments: %v", err)
	}

	if *url != "" {
		cfg.Qdrant.URL = *url
	}
	if *collection != "" {
		cfg.Qdrant.Collection = *collection
	}
	if *local != "" {
		cfg.Qdrant.LocalPath = *local
	}
	if *cachePath == "" {
		*cachePath = cfg.Ingest.CacheFile
	}
	if *keywordDir == "" {
		*keywordDir = cfg.Ingest.KeywordIndex
	}
	if *encodeOnly && *uploadOnly {
		log.Fatalf("-encode-only and -upload-only are mutually exclusive")
	}
	if !*uploadOnly && *input == "" {
		log.Fatalf("-input is required (or use -upload-only with an existing cache)")
	}

	store, err := newStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open vector store: %v", err)
	}
	defer store.Close()

	embedder, err := embedding.NewService(&cfg.Embedding)
	if err != nil {
		log.Fatalf("Failed to create embedding service: %v", err)
	}

	cache := ingest.NewCache(*cachePath)
	progress := ingest.NewProgress(ingest.DefaultProgressEnabled())
	pipeline := ingest.NewPipeline(store, embedder, cache, ingest.Options{
		Collection:  cfg.Qdrant.Collection,
		UploadBatch: cfg.Ingest.UploadBatch,
	}, progress, logger)

	ctx := context.Background()
	startTime := time.Now()

	if !*uploadOnly {
		records, err := protocol.LoadRecords(*input)
		if err != nil {
			log.Fatalf("Failed to load corpus: %v", err)
		}
		fmt.Printf("Encoding %d records from %s\n", len(records), *input)

		stats, err := pipeline.EncodeAndCache(ctx, records)
		if err != nil {
			log.Fatalf("Encoding failed: %v", err)
		}
		fmt.Printf("Encoded: %d chunks (%d cached, %d skipped records)\n",
			stats.Embedded, stats.CacheHits, stats.InvalidRecords)

		if *keywordDir != "" {
			if err := buildKeywordIndex(cache, *keywordDir); err != nil {
				log.Fatalf("Keyword index build failed: %v", err)
			}
			fmt.Printf("Keyword index written to %s\n", *keywordDir)
		}
	}

	if !*encodeOnly {
		stats, err := pipeline.UploadFromCache(ctx)
		if err != nil {
			log.Fatalf("Upload failed: %v", err)
		}
		fmt.Printf("Uploaded: %d points (%d already present, %d cached total)\n",
			stats.Uploaded, stats.AlreadyPresent, stats.CachedPoints)
	}

	fmt.Printf("\nDone in %v\n", time.Since(startTime).Round(time.Millisecond))

	if *demoQuery != "" {
		fmt.Printf("\nDemo search: %q\n", *demoQuery)
		runVectorSearch(cfg, logger, store, embedder, *demoQuery)
	}
}

// buildKeywordIndex rebuilds the full-text index from the embedding cache, so
// it always reflects exactly what the vector index will hold.
func buildKeywordIndex(cache *ingest.Cache, dir string) error {
	points, err := cache.Load()
	if err != nil {
		return err
	}
	idx, err := keyword.Create(dir)
	if err != nil {
		return err
	}
	defer idx.Close()
	for _, p := range points {
		if err := idx.IndexChunk(p.ID, p.Payload); err != nil {
			return fmt.Errorf("index point %s: %w", p.ID, err)
		}
	}
	return nil
}
