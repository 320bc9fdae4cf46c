package protocol

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// Record is one source document of the protocol corpus: the raw text of a
// clinical protocol plus the identifiers and ICD-10 codes attached to it.
type Record struct {
	Text       string   `json:"text"`
	SourceFile string   `json:"source_file"`
	ProtocolID string   `json:"protocol_id"`
	ICDCodes   []string `json:"icd_codes"`
}

// Valid reports whether the record can ground a diagnosis. A record without
// text has nothing to embed; a record without codes cannot constrain the
// generator and would pollute the index.
func (r Record) Valid() bool {
	return strings.TrimSpace(r.Text) != "" && len(r.ICDCodes) > 0
}

// LoadRecords reads line-delimited JSON records from every file matching the
// given glob pattern. A plain path without meta characters matches itself.
func LoadRecords(pattern string) ([]Record, error) {
	paths, err := expandPattern(pattern)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no corpus files match %q", pattern)
	}
	var records []Record
	for _, path := range paths {
		recs, err := loadJSONL(path)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		records = append(records, recs...)
	}
	return records, nil
}

func expandPattern(pattern string) ([]string, error) {
	if !strings.ContainsAny(pattern, "*?[{") {
		if _, err := os.Stat(pattern); err != nil {
			return nil, fmt.Errorf("corpus file: %w", err)
		}
		return []string{pattern}, nil
	}
	paths, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, fmt.Errorf("bad corpus pattern %q: %w", pattern, err)
	}
	sort.Strings(paths)
	return paths, nil
}

func loadJSONL(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 64*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return records, nil
}
