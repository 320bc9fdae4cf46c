package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/qazmed/diagdex/internal/config"
	"github.com/qazmed/diagdex/internal/diagnose"
	"github.com/qazmed/diagdex/internal/retrieval"
	"github.com/qazmed/diagdex/internal/vecstore"
)

// handleDiagnose implements the diagnose subcommand
func handleDiagnose(cfg *config.Config, logger *zap.Logger, args []string) {
	fs := flag.NewFlagSet("diagnose", flag.ExitOnError)
	backend := fs.String("backend", "", "Force a backend: full | light | static (default: best available)")
	asJSON := fs.Bool("json", false, "Print the raw JSON result")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `USAGE:
    diagdex diagnose [options] <symptoms...>

DESCRIPTION:
    Map a free-text symptom description to ranked ICD-10 diagnoses.
    Retrieval pulls matching protocol chunks from the vector index,
    the completion model picks diagnoses strictly from those protocols.

OPTIONS:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
EXAMPLES:
    diagdex diagnose "кашель, температура 38, боль в груди"
    diagdex diagnose -json "отек и боль в голени"
`)
	}

	if err := fs.Parse(args); err != nil {
		log.Fatalf("Failed to parse arguments: %v", err)
	}
	symptoms := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if symptoms == "" {
		fs.Usage()
		os.Exit(1)
	}

	store, err := newStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open vector store: %v", err)
	}
	defer store.Close()

	diagnoser, selected := selectBackend(cfg, store, logger, *backend)
	logger.Info("diagnosing", zap.String("backend", selected))

	result, err := diagnoser.Diagnose(context.Background(), symptoms)
	if err != nil {
		var ve *diagnose.ValidationError
		var fe *diagnose.FormatError
		switch {
		case errors.As(err, &ve):
			log.Fatalf("Invalid input: %v", ve)
		case errors.Is(err, retrieval.ErrNoContext):
			log.Fatalf("No matching protocols in the index. Run `diagdex ingest` first.")
		case errors.As(err, &fe):
			log.Fatalf("Model output could not be parsed: %v", fe)
		default:
			log.Fatalf("Diagnosis failed: %v", err)
		}
	}

	if *asJSON {
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			log.Fatalf("Failed to encode result: %v", err)
		}
		fmt.Println(string(out))
		return
	}

	if selected == diagnose.BackendStatic {
		fmt.Fprintln(os.Stderr, "Warning: no retrieval backend available; these are static fallback examples, not a clinical assessment.")
	}
	fmt.Printf("Symptoms: %s\n\n", symptoms)
	for _, d := range result.Diagnoses {
		fmt.Printf("%d. %s (%s)\n   %s\n", d.Rank, d.Diagnosis, d.ICD10Code, d.Explanation)
	}
	if result.ProcessingTime > 0 {
		fmt.Printf("\nProcessed in %.2fs (backend: %s)\n", result.ProcessingTime, selected)
	}
}

func selectBackend(cfg *config.Config, store vecstore.Store, logger *zap.Logger, forced string) (diagnose.Diagnoser, string) {
	switch forced {
	case "":
		return diagnose.Select(cfg, store, logger)
	case diagnose.BackendStatic:
		return diagnose.StaticDiagnoser{}, diagnose.BackendStatic
	case diagnose.BackendFull, diagnose.BackendLight:
		d, name := diagnose.Select(cfg, store, logger)
		if name != forced {
			log.Fatalf("Backend %q unavailable (selected %q); check the configuration", forced, name)
		}
		return d, name
	default:
		log.Fatalf("Unknown backend %q: use full, light or static", forced)
		return nil, ""
	}
}
