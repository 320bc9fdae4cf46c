package internal

import (
	"fmt"
	"os"

	"github.com/qazmed/diagdex/internal/config"
)

// LoadConfig reads the YAML configuration from the given path, or from the
// default location when the path is empty.
func LoadConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		return config.LoadFromFile(configPath)
	}
	return config.Load()
}

// PrintConfigExample prints a starter configuration to stderr.
func PrintConfigExample() {
	homeDir, _ := os.UserHomeDir()
	configPath := fmt.Sprintf("%s/.diagdex/config/diagdex.yaml", homeDir)

	fmt.Fprintf(os.Stderr, `Create a configuration file at %s:

qdrant:
  url: http://localhost:6333
  collection: medical_protocols_v5
  # local_path: ~/.diagdex/data   # embedded SQLite store instead of a server

embedding:
  provider: local                 # "local" or "inference"
  endpoint: http://localhost:8080
  model: BAAI/bge-m3
  dimensions: 1024
  batch_size: 16

rerank:
  enabled: true
  endpoint: http://localhost:8081

llm:
  endpoint: https://hub.qazcode.ai/v1
  api_key: $LLM_API_KEY
  model: oss-120b

Usage:
  1. Create the config file
  2. Ingest a corpus: diagdex ingest -input protocols.jsonl
  3. Diagnose: diagdex diagnose "кашель, температура 38"
`, configPath)
}
