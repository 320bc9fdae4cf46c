package protocol

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strings"
)

// Chunk types carried in the index payload.
const (
	ChunkClinical  = "clinical"
	ChunkTreatment = "treatment"
	ChunkSliding   = "sliding"
)

const (
	// chunkLimit bounds the body of every chunk. Small chunks keep the
	// embedding focused on one clinical aspect.
	chunkLimit = 1000

	// Sliding-window fallback parameters: skip the approval boilerplate at
	// the head of the document, step through at most slidingScanCap chars,
	// and drop windows too short to carry signal.
	slidingSkip    = 600
	slidingStep    = 800
	slidingScanCap = 5000
	slidingMinLen  = 150
)

// ChunkPayload is the metadata stored alongside every vector in the index.
// It denormalizes the parent record so a retrieved point is self-contained:
// the generator needs the title and the permitted code list without a second
// lookup.
type ChunkPayload struct {
	Title      string   `json:"title"`
	SourceFile string   `json:"source_file"`
	ProtocolID string   `json:"protocol_id"`
	ICDCodes   []string `json:"icd_codes"`
	ChunkType  string   `json:"chunk_type"`
	ChunkIndex int      `json:"chunk_index"`
	Text       string   `json:"text"`
}

// Chunk pairs the text that goes to the embedding model with the payload that
// goes to the index. EmbedText carries a contextual prefix naming the protocol
// so the title is present in-vector; the stored payload text stays unprefixed.
type Chunk struct {
	EmbedText string
	Payload   ChunkPayload
}

// PointID derives the stable identity of a chunk from its coordinates, not
// its content, formatted as a UUID string for the vector index. Re-ingesting
// unchanged input therefore produces the same ids and becomes a no-op.
//
// Because content is not part of the key, a protocol whose section boundaries
// shift between corpus versions reuses ids for different text and re-embedding
// is silently skipped; clear the cache when replacing the corpus.
func PointID(sourceFile, protocolID string, chunkIndex int, chunkType string) string {
	key := fmt.Sprintf("%s__%s__%d__%s", sourceFile, protocolID, chunkIndex, chunkType)
	sum := md5.Sum([]byte(key))
	h := hex.EncodeToString(sum[:])
	return fmt.Sprintf("%s-%s-%s-%s-%s", h[:8], h[8:12], h[12:16], h[16:20], h[20:32])
}

// ID returns the chunk's stable point id.
func (c Chunk) ID() string {
	p := c.Payload
	return PointID(p.SourceFile, p.ProtocolID, p.ChunkIndex, p.ChunkType)
}

// BuildChunks turns one record into an ordered list of bounded chunks.
//
// The clinical picture (symptoms + diagnostics) and the treatment section are
// each windowed into fixed-size slices; when neither section was found the
// raw text is scanned with a sliding window instead. Windowing is plain
// character slicing with no sentence detection: mid-sentence truncation is
// accepted in exchange for full coverage.
//
// Invalid records (no text, or no ICD codes to ground a diagnosis) yield no
// chunks at all.
func BuildChunks(rec Record) []Chunk {
	if !rec.Valid() {
		return nil
	}

	title := ExtractTitle(rec.Text, rec.SourceFile)
	base := ChunkPayload{
		Title:      title,
		SourceFile: rec.SourceFile,
		ProtocolID: rec.ProtocolID,
		ICDCodes:   rec.ICDCodes,
	}

	sections := ExtractSections(rec.Text)
	var chunks []Chunk

	clinical := strings.TrimSpace(strings.Join(nonEmpty(
		sections[SectionSymptoms],
		sections[SectionDiagnosis],
	), " "))
	for i, part := range windowRunes(clinical, chunkLimit) {
		payload := base
		payload.ChunkType = ChunkClinical
		payload.ChunkIndex = i
		payload.Text = part
		chunks = append(chunks, Chunk{
			EmbedText: fmt.Sprintf("Протокол: %s. Клиническая картина: %s", title, part),
			Payload:   payload,
		})
	}

	treatment := strings.TrimSpace(sections[SectionTreatment])
	for i, part := range windowRunes(treatment, chunkLimit) {
		payload := base
		payload.ChunkType = ChunkTreatment
		payload.ChunkIndex = i
		payload.Text = part
		chunks = append(chunks, Chunk{
			EmbedText: fmt.Sprintf("Протокол: %s. Лечение и тактика: %s", title, part),
			Payload:   payload,
		})
	}

	if len(chunks) == 0 {
		chunks = slidingChunks(rec.Text, title, base)
	}
	return chunks
}

// slidingChunks is the fallback when section extraction found nothing: step
// through the raw text past the header boilerplate and keep every window long
// enough to be more than noise.
func slidingChunks(text, title string, base ChunkPayload) []Chunk {
	runes := []rune(text)
	if len(runes) > slidingSkip {
		runes = runes[slidingSkip:]
	} else {
		runes = nil
	}

	scan := len(runes)
	if scan > slidingScanCap {
		scan = slidingScanCap
	}

	var chunks []Chunk
	index := 0
	for start := 0; start < scan; start += slidingStep {
		end := start + chunkLimit
		if end > len(runes) {
			end = len(runes)
		}
		part := strings.TrimSpace(string(runes[start:end]))
		if len([]rune(part)) < slidingMinLen {
			index++
			continue
		}
		payload := base
		payload.ChunkType = ChunkSliding
		payload.ChunkIndex = index
		payload.Text = part
		chunks = append(chunks, Chunk{
			EmbedText: fmt.Sprintf("Протокол: %s. Содержание: %s", title, part),
			Payload:   payload,
		})
		index++
	}
	return chunks
}

// windowRunes splits text into consecutive non-overlapping slices of at most
// limit characters.
func windowRunes(text string, limit int) []string {
	if text == "" {
		return nil
	}
	runes := []rune(text)
	var parts []string
	for start := 0; start < len(runes); start += limit {
		end := start + limit
		if end > len(runes) {
			end = len(runes)
		}
		parts = append(parts, string(runes[start:end]))
	}
	return parts
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
