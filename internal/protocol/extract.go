package protocol

import (
	"path/filepath"
	"regexp"
	"strings"
)

// Section names produced by ExtractSections.
const (
	SectionSymptoms  = "symptoms"
	SectionDiagnosis = "diagnosis"
	SectionTreatment = "treatment"
)

// maxSectionChars caps how much of a section is kept. Long protocols repeat
// tables and references past this point.
const maxSectionChars = 5000

// sectionBound pairs the marker that opens a section with the markers that
// close it. The corpus is structured with numbered and Roman-numeral headings,
// so a section runs from its keyword anchor to the next structural break.
type sectionBound struct {
	name  string
	start *regexp.Regexp
	end   *regexp.Regexp
}

var sectionBounds = []sectionBound{
	{
		name:  SectionSymptoms,
		start: regexp.MustCompile(`(?i)жалоб[ыи]|клинические\s+критерии|критерии\s+диагностики|клиническая\s+картина`),
		end:   regexp.MustCompile(`\n\s*\d+\.\d+\s|\nI{1,3}V?\b|\nVII?\b`),
	},
	{
		name:  SectionDiagnosis,
		start: regexp.MustCompile(`(?i)диагностик[аи]|лабораторн|инструментальн`),
		end:   regexp.MustCompile(`(?i)\nI{1,3}V?\b|\nVII?\b|лечение`),
	},
	{
		name:  SectionTreatment,
		start: regexp.MustCompile(`(?i)лечение|медикаментозн|хирургическ`),
		end:   regexp.MustCompile(`(?i)\nV{1,3}\b|\nVII?\b|профилактика`),
	},
}

var titlePattern = regexp.MustCompile(`(?i)КЛИНИЧЕСКИЙ ПРОТОКОЛ ДИАГНОСТИКИ И ЛЕЧЕНИЯ\s+([^\n]{5,150})`)

// ExtractSections pulls the named clinical sections out of raw protocol text.
// A section missing its opening marker is simply absent from the result;
// callers must cope with partial or empty extraction.
func ExtractSections(text string) map[string]string {
	sections := make(map[string]string)
	for _, bound := range sectionBounds {
		loc := bound.start.FindStringIndex(text)
		if loc == nil {
			continue
		}
		rest := text[loc[1]:]
		if end := bound.end.FindStringIndex(rest); end != nil {
			rest = rest[:end[0]]
		}
		body := strings.TrimSpace(rest)
		if body == "" {
			continue
		}
		sections[bound.name] = truncateRunes(body, maxSectionChars)
	}
	return sections
}

// ExtractTitle returns the protocol's real heading, falling back to the source
// filename (minus extension) when the canonical heading is absent.
func ExtractTitle(text, sourceFile string) string {
	if m := titlePattern.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	base := sourceFile
	if ext := filepath.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	return strings.TrimSpace(base)
}

func truncateRunes(text string, max int) string {
	if max <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max])
}
