package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/qazmed/diagdex/cmd/diagdex/internal"
	"github.com/qazmed/diagdex/internal/config"
)

func main() {
	// Secrets like $LLM_API_KEY may live in a local .env file.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		internal.PrintUsage()
		os.Exit(1)
	}

	configPath := ""
	args := os.Args[1:]

	for _, arg := range args {
		if arg == "-h" || arg == "-help" || arg == "--help" {
			internal.PrintUsage()
			os.Exit(0)
		}
		if arg == "-v" || arg == "-version" || arg == "--version" {
			fmt.Printf("diagdex version %s\n", internal.Version)
			os.Exit(0)
		}
	}

	validSubcommands := map[string]bool{
		"ingest":   true,
		"diagnose": true,
		"search":   true,
	}

	subcommandIndex := -1
	for i, arg := range args {
		if !strings.HasPrefix(arg, "-") && validSubcommands[arg] {
			subcommandIndex = i
			break
		}
	}

	if subcommandIndex == -1 {
		fmt.Fprintf(os.Stderr, "Error: No subcommand specified\n\n")
		internal.PrintUsage()
		os.Exit(1)
	}

	// Global flags come before the subcommand.
	globalFlags := args[:subcommandIndex]
	for i := 0; i < len(globalFlags); i++ {
		flag := globalFlags[i]
		if flag == "-config" || flag == "--config" {
			if i+1 < len(globalFlags) {
				configPath = globalFlags[i+1]
				i++
			}
		} else if strings.HasPrefix(flag, "-") {
			fmt.Fprintf(os.Stderr, "Error: Unknown global flag: %s\n\n", flag)
			internal.PrintUsage()
			os.Exit(1)
		}
	}

	subcommand := args[subcommandIndex]
	subcommandArgs := args[subcommandIndex+1:]

	cfg, err := internal.LoadConfig(configPath)
	if err != nil {
		if config.IsConfigNotFound(err) {
			if notFoundErr, ok := err.(*config.ConfigNotFoundError); ok && subcommand == "ingest" {
				created, createErr := config.WriteDefaultTemplate(notFoundErr.RequestedPath)
				if createErr != nil {
					fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
					fmt.Fprintf(os.Stderr, "Also failed to create default config at %s: %v\n\n", notFoundErr.RequestedPath, createErr)
					internal.PrintConfigExample()
					os.Exit(1)
				}
				if created {
					fmt.Fprintf(os.Stderr, "Created default config at %s\n", notFoundErr.RequestedPath)
				}
				fmt.Fprintln(os.Stderr, "Please review the config file and rerun `diagdex ingest`.")
				os.Exit(1)
			}
			fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
			internal.PrintConfigExample()
			os.Exit(1)
		}
		log.Fatalf("Failed to load config: %v\n", err)
	}

	logger, err := internal.NewLogger(subcommand)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize log file: %v\n", err)
		logger = zap.NewNop()
	}
	defer logger.Sync()

	switch subcommand {
	case "ingest":
		handleIngest(cfg, logger, subcommandArgs)
	case "diagnose":
		handleDiagnose(cfg, logger, subcommandArgs)
	case "search":
		handleSearch(cfg, logger, subcommandArgs)
	default:
		fmt.Printf("Unknown subcommand: %s\n\n", subcommand)
		internal.PrintUsage()
		os.Exit(1)
	}
}
