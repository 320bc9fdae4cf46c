// Package keyword maintains a full-text index over protocol chunks for exact
// term lookup, a complement to vector search when the operator knows the
// wording (a drug name, a specific ICD code).
package keyword

import (
	"fmt"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/qazmed/diagdex/internal/protocol"
)

// chunkDoc is the indexed shape of a chunk. Text is indexed but not stored;
// hits carry enough payload fields to render a result without the vector
// store.
type chunkDoc struct {
	Title      string `json:"title"`
	SourceFile string `json:"source_file"`
	ChunkType  string `json:"chunk_type"`
	ICDCodes   string `json:"icd_codes"`
	Text       string `json:"text"`
}

type Hit struct {
	ID         string
	Score      float64
	Title      string
	SourceFile string
	ChunkType  string
	ICDCodes   string
}

type Index struct {
	index bleve.Index
}

// Create resets dir and builds a fresh index there.
func Create(dir string) (*Index, error) {
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("reset keyword index dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create keyword index dir: %w", err)
	}
	index, err := bleve.New(dir, buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("create keyword index: %w", err)
	}
	return &Index{index: index}, nil
}

// Open opens an existing index for querying.
func Open(dir string) (*Index, error) {
	index, err := bleve.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("open keyword index: %w", err)
	}
	return &Index{index: index}, nil
}

func (x *Index) Close() error {
	return x.index.Close()
}

// IndexChunk adds one chunk payload under its point id.
func (x *Index) IndexChunk(id string, p protocol.ChunkPayload) error {
	codes := ""
	for i, c := range p.ICDCodes {
		if i > 0 {
			codes += " "
		}
		codes += c
	}
	return x.index.Index(id, chunkDoc{
		Title:      p.Title,
		SourceFile: p.SourceFile,
		ChunkType:  p.ChunkType,
		ICDCodes:   codes,
		Text:       p.Text,
	})
}

// Search runs a disjunction over text, title and ICD codes, title and codes
// boosted above body text.
func (x *Index) Search(query string, topK int) ([]Hit, error) {
	if topK <= 0 {
		topK = 10
	}

	textQuery := bleve.NewMatchQuery(query)
	textQuery.SetField("text")
	textQuery.SetBoost(1.0)
	titleQuery := bleve.NewMatchQuery(query)
	titleQuery.SetField("title")
	titleQuery.SetBoost(2.0)
	codeQuery := bleve.NewMatchQuery(query)
	codeQuery.SetField("icd_codes")
	codeQuery.SetBoost(3.0)

	disjunction := bleve.NewDisjunctionQuery([]blevequery.Query{
		textQuery, titleQuery, codeQuery,
	}...)

	req := bleve.NewSearchRequestOptions(disjunction, topK, 0, false)
	req.Fields = []string{"title", "source_file", "chunk_type", "icd_codes"}

	res, err := x.index.Search(req)
	if err != nil {
		return nil, err
	}

	var hits []Hit
	for _, hit := range res.Hits {
		title, _ := hit.Fields["title"].(string)
		sourceFile, _ := hit.Fields["source_file"].(string)
		chunkType, _ := hit.Fields["chunk_type"].(string)
		codes, _ := hit.Fields["icd_codes"].(string)
		hits = append(hits, Hit{
			ID:         hit.ID,
			Score:      hit.Score,
			Title:      title,
			SourceFile: sourceFile,
			ChunkType:  chunkType,
			ICDCodes:   codes,
		})
	}
	return hits, nil
}

func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultField = "text"

	docMapping := bleve.NewDocumentMapping()

	textField := bleve.NewTextFieldMapping()
	textField.Store = false
	textField.Index = true
	docMapping.AddFieldMappingsAt("text", textField)

	titleField := bleve.NewTextFieldMapping()
	titleField.Store = true
	titleField.Index = true
	docMapping.AddFieldMappingsAt("title", titleField)

	sourceField := bleve.NewTextFieldMapping()
	sourceField.Store = true
	sourceField.Index = true
	docMapping.AddFieldMappingsAt("source_file", sourceField)

	typeField := bleve.NewTextFieldMapping()
	typeField.Store = true
	typeField.Index = true
	typeField.Analyzer = "keyword"
	docMapping.AddFieldMappingsAt("chunk_type", typeField)

	codesField := bleve.NewTextFieldMapping()
	codesField.Store = true
	codesField.Index = true
	docMapping.AddFieldMappingsAt("icd_codes", codesField)

	indexMapping.DefaultMapping = docMapping
	return indexMapping
}
