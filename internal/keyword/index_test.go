package keyword

import (
	"path/filepath"
	"testing"

	"github.com/qazmed/diagdex/internal/protocol"
)

func TestIndexAndSearch(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "keyword")
	idx, err := Create(dir)
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	docs := []struct {
		id      string
		payload protocol.ChunkPayload
	}{
		{"p1", protocol.ChunkPayload{
			Title:      "Острый бронхит",
			SourceFile: "bronchitis.pdf",
			ICDCodes:   []string{"J20.9"},
			ChunkType:  protocol.ChunkClinical,
			Text:       "кашель, повышение температуры",
		}},
		{"p2", protocol.ChunkPayload{
			Title:      "Пневмония",
			SourceFile: "pneumonia.pdf",
			ICDCodes:   []string{"J18.9"},
			ChunkType:  protocol.ChunkTreatment,
			Text:       "амоксициллин внутрь",
		}},
	}
	for _, d := range docs {
		if err := idx.IndexChunk(d.id, d.payload); err != nil {
			t.Fatalf("IndexChunk(%s) error: %v", d.id, err)
		}
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	idx, err = Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer idx.Close()

	hits, err := idx.Search("амоксициллин", 10)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1", len(hits))
	}
	if hits[0].ID != "p2" || hits[0].Title != "Пневмония" {
		t.Errorf("hit = %+v", hits[0])
	}
	if hits[0].ICDCodes != "J18.9" {
		t.Errorf("hit codes = %q, want J18.9", hits[0].ICDCodes)
	}
}

func TestSearchByICDCode(t *testing.T) {
	idx, err := Create(filepath.Join(t.TempDir(), "keyword"))
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	defer idx.Close()

	err = idx.IndexChunk("p1", protocol.ChunkPayload{
		Title:      "Острый бронхит",
		SourceFile: "bronchitis.pdf",
		ICDCodes:   []string{"J20.9", "J20.8"},
		ChunkType:  protocol.ChunkClinical,
		Text:       "кашель",
	})
	if err != nil {
		t.Fatal(err)
	}

	hits, err := idx.Search("J20.9", 10)
	if err != nil {
		t.Fatalf("Search() error: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("got %d hits for code query, want 1", len(hits))
	}
}
