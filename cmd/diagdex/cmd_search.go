package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/qazmed/diagdex/internal/config"
	"github.com/qazmed/diagdex/internal/embedding"
	"github.com/qazmed/diagdex/internal/keyword"
	"github.com/qazmed/diagdex/internal/rerank"
	"github.com/qazmed/diagdex/internal/retrieval"
	"github.com/qazmed/diagdex/internal/vecstore"
)

// handleSearch implements the search subcommand
func handleSearch(cfg *config.Config, logger *zap.Logger, args []string) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	useKeyword := fs.Bool("keyword", false, "Search the keyword index instead of the vector index")
	keywordDir := fs.String("index", "", "Keyword index directory (default from config)")
	topK := fs.Int("top", 0, "Number of results (default from config)")
	noRerank := fs.Bool("no-rerank", false, "Skip cross-encoder reranking")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `USAGE:
    diagdex search [options] <query>

DESCRIPTION:
    Query the protocol index directly, without diagnosis generation.
    Vector mode embeds the query and searches by similarity (reranked
    when the reranker is configured); keyword mode matches exact terms,
    titles and ICD codes in the full-text index.

OPTIONS:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
EXAMPLES:
    diagdex search "боль в горле, температура"
    diagdex search -no-rerank "кашель"
    diagdex search -keyword "J20.9"
`)
	}

	if err := fs.Parse(args); err != nil {
		log.Fatalf("Failed to parse arguments: %v", err)
	}
	query := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if query == "" {
		fs.Usage()
		os.Exit(1)
	}
	if *topK <= 0 {
		*topK = cfg.Retrieval.TopK
	}

	if *useKeyword {
		if *keywordDir == "" {
			*keywordDir = cfg.Ingest.KeywordIndex
		}
		if *keywordDir == "" {
			log.Fatalf("No keyword index configured: set ingest.keyword_index or pass -index")
		}
		runKeywordSearch(*keywordDir, query, *topK)
		return
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

	var reranker rerank.Reranker
	if cfg.Rerank.Enabled && !*noRerank {
		reranker, err = rerank.NewHTTPClient(&cfg.Rerank)
		if err != nil {
			log.Fatalf("Failed to create reranker: %v", err)
		}
	}

	retriever := retrieval.New(store, embedder, reranker, retrieval.Options{
		Collection: cfg.Qdrant.Collection,
		TopK:       *topK,
		PoolSize:   cfg.Retrieval.PoolSize,
	}, logger)

	candidates, err := retriever.Retrieve(context.Background(), query)
	if err != nil {
		if errors.Is(err, retrieval.ErrNoContext) {
			fmt.Println("No matching protocols found. Is the collection populated?")
			os.Exit(1)
		}
		log.Fatalf("Search failed: %v", err)
	}
	printCandidates(candidates)
}

func runKeywordSearch(dir, query string, topK int) {
	idx, err := keyword.Open(dir)
	if err != nil {
		log.Fatalf("Failed to open keyword index: %v", err)
	}
	defer idx.Close()

	hits, err := idx.Search(query, topK)
	if err != nil {
		log.Fatalf("Keyword search failed: %v", err)
	}
	if len(hits) == 0 {
		fmt.Println("No matches.")
		return
	}
	for i, hit := range hits {
		fmt.Printf("%2d. [%.3f] %s\n", i+1, hit.Score, hit.Title)
		fmt.Printf("    %s | %s | %s\n", hit.SourceFile, hit.ChunkType, hit.ICDCodes)
	}
}

// runVectorSearch is the similarity-only search used by the post-ingest demo
// query.
func runVectorSearch(cfg *config.Config, logger *zap.Logger, store vecstore.Store, embedder *embedding.Service, query string) {
	retriever := retrieval.New(store, embedder, nil, retrieval.Options{
		Collection: cfg.Qdrant.Collection,
		TopK:       cfg.Retrieval.TopK,
		PoolSize:   cfg.Retrieval.PoolSize,
	}, logger)

	candidates, err := retriever.Retrieve(context.Background(), query)
	if err != nil {
		log.Fatalf("Demo search failed: %v", err)
	}
	printCandidates(candidates)
}

func printCandidates(candidates []retrieval.Candidate) {
	for i, c := range candidates {
		codes := strings.Join(c.Payload.ICDCodes, ", ")
		excerpt := c.Payload.Text
		if runes := []rune(excerpt); len(runes) > 160 {
			excerpt = string(runes[:160]) + "…"
		}
		fmt.Printf("%2d. [%.3f] %s\n", i+1, c.Score, c.Payload.Title)
		fmt.Printf("    %s | %s | %s\n", c.Payload.SourceFile, c.Payload.ChunkType, codes)
		fmt.Printf("    %s\n", excerpt)
	}
}
