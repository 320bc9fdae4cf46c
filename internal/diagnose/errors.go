package diagnose

import "fmt"

// excerptLimit bounds how much raw model output an error message carries.
const excerptLimit = 300

// ValidationError reports unusable caller input, as opposed to an upstream
// failure.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// FormatError reports model output that could not be parsed into the expected
// diagnoses structure, with a bounded excerpt of the raw text for debugging.
type FormatError struct {
	Reason  string
	Excerpt string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s:\n%s", e.Reason, e.Excerpt)
}

func newFormatError(reason, raw string) *FormatError {
	runes := []rune(raw)
	if len(runes) > excerptLimit {
		runes = runes[:excerptLimit]
	}
	return &FormatError{Reason: reason, Excerpt: string(runes)}
}
