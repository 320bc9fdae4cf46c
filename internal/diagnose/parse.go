package diagnose

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Diagnosis is one ranked entry of the model's answer.
type Diagnosis struct {
	Rank        int    `json:"rank"`
	Diagnosis   string `json:"diagnosis"`
	ICD10Code   string `json:"icd10_code"`
	Explanation string `json:"explanation"`
}

var (
	fenceOpen  = regexp.MustCompile("^```(?:json)?\\s*")
	fenceClose = regexp.MustCompile("\\s*```$")

	// partialJSON salvages a diagnoses object out of truncated or decorated
	// output when strict parsing fails.
	partialJSON = regexp.MustCompile(`(?s)\{.*"diagnoses"\s*:\s*\[.*?\].*?\}`)
)

// parseDiagnoses extracts the diagnosis list from raw model output. Markdown
// code fences are stripped first; when the remainder is not valid JSON, the
// largest embedded object holding a "diagnoses" array is tried before giving
// up with a FormatError.
func parseDiagnoses(raw string) ([]Diagnosis, error) {
	text := strings.TrimSpace(raw)
	text = fenceOpen.ReplaceAllString(text, "")
	text = fenceClose.ReplaceAllString(text, "")

	var parsed struct {
		Diagnoses *[]Diagnosis `json:"diagnoses"`
	}
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		match := partialJSON.FindString(text)
		if match == "" {
			return nil, newFormatError("model returned invalid JSON", text)
		}
		if err := json.Unmarshal([]byte(match), &parsed); err != nil {
			return nil, newFormatError("model returned invalid JSON", text)
		}
	}
	if parsed.Diagnoses == nil {
		return nil, newFormatError("model response has no diagnoses field", text)
	}
	return *parsed.Diagnoses, nil
}
