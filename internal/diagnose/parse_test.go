package diagnose

import (
	"errors"
	"strings"
	"testing"
)

func TestParseDiagnoses(t *testing.T) {
	valid := `{"diagnoses":[{"rank":1,"diagnosis":"Острый бронхит","icd10_code":"J20.9","explanation":"кашель и температура"}]}`

	cases := []struct {
		name string
		raw  string
	}{
		{"plain json", valid},
		{"fenced json", "```json\n" + valid + "\n```"},
		{"fenced without language", "```\n" + valid + "\n```"},
		{"prose around json", "Вот результат анализа:\n" + valid + "\nНадеюсь, это поможет."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			diagnoses, err := parseDiagnoses(tc.raw)
			if err != nil {
				t.Fatalf("parseDiagnoses() error: %v", err)
			}
			if len(diagnoses) != 1 {
				t.Fatalf("got %d diagnoses, want 1", len(diagnoses))
			}
			d := diagnoses[0]
			if d.Rank != 1 || d.ICD10Code != "J20.9" || d.Diagnosis != "Острый бронхит" {
				t.Errorf("diagnosis = %+v", d)
			}
		})
	}
}

func TestParseDiagnosesInvalid(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"not json", "извините, не могу помочь"},
		{"json without diagnoses", `{"answer":"бронхит"}`},
		{"empty", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := parseDiagnoses(tc.raw)
			if err == nil {
				t.Fatal("expected error")
			}
			var fe *FormatError
			if !errors.As(err, &fe) {
				t.Fatalf("error type = %T, want *FormatError", err)
			}
		})
	}
}

func TestFormatErrorExcerptBounded(t *testing.T) {
	raw := strings.Repeat("ъ", 1000)
	_, err := parseDiagnoses(raw)
	var fe *FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("error type = %T, want *FormatError", err)
	}
	if got := len([]rune(fe.Excerpt)); got != excerptLimit {
		t.Errorf("excerpt has %d runes, want %d", got, excerptLimit)
	}
}

func TestParseDiagnosesSalvagesTrailingGarbage(t *testing.T) {
	// A diagnoses object followed by truncated trailing output.
	raw := `{"diagnoses":[{"rank":1,"diagnosis":"Пневмония","icd10_code":"J18.9","explanation":"хрипы"}]} и ещё я хотел доба`
	diagnoses, err := parseDiagnoses(raw)
	if err != nil {
		t.Fatalf("parseDiagnoses() error: %v", err)
	}
	if len(diagnoses) != 1 || diagnoses[0].ICD10Code != "J18.9" {
		t.Errorf("diagnoses = %+v", diagnoses)
	}
}
