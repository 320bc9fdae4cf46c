package internal

import (
	"fmt"
	"os"
)

const Version = "1.0.0"

// PrintUsage writes the top-level usage and subcommand list to stderr.
func PrintUsage() {
	fmt.Fprintf(os.Stderr, `diagdex - Retrieval-Grounded Clinical Diagnosis over Protocol Corpora

Version: %s

USAGE:
    diagdex [global options] <command> [command options]

GLOBAL OPTIONS:
    -config <path>
        Path to config file (default: ~/.diagdex/config/diagdex.yaml)

    -v, -version
        Show version information

    -h, -help
        Show this help message

COMMANDS:
    ingest
        Chunk, embed and upload the protocol corpus to the vector index

    diagnose
        Map free-text symptoms to ranked ICD-10 diagnoses

    search
        Query the index directly (vector or keyword mode) without the LLM

EXAMPLES:
    # Ingest a corpus (encode + upload)
    diagdex ingest -input protocols.jsonl

    # Encode only, upload later
    diagdex ingest -input 'corpus/*.jsonl' -encode-only
    diagdex ingest -upload-only

    # Diagnose
    diagdex diagnose "кашель, температура 38, боль в груди"

    # Inspect the index
    diagdex search "боль в горле"
    diagdex search -keyword "J20.9"

For detailed help on each command, use:
    diagdex <command> -help
`, Version)
}
