// Package cmd contains the CLI entry points. main.go stays minimal;
// everything testable lives here.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/cicada-project/cleo/internal/log"
)

// Execute is the main entry point. It routes the first argument to a
// subcommand; with no arguments the server starts.
func Execute() error {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version", "--version", "-v":
			return printVersionInfo()
		case "help", "--help", "-h":
			printHelp()
			return nil
		case "migrate":
			initDefaultLogger()
			return runMigrate()
		case "serve":
			initDefaultLogger()
			return runServe()
		default:
			printHelp()
			return fmt.Errorf("unknown command: %s", os.Args[1])
		}
	}

	initDefaultLogger()
	return runServe()
}

// initDefaultLogger installs the process-wide structured logger.
// DEBUG set in the environment (any value) enables debug level.
func initDefaultLogger() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	logger := log.New(log.Config{Level: level, JSON: os.Getenv("LOG_FORMAT") == "json"})
	slog.SetDefault(logger)
}

// printHelp displays the usage message.
func printHelp() {
	fmt.Println("Cleo - streaming retrieval-augmented chat server")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  cleo               Start the HTTP API server (default)")
	fmt.Println("  cleo serve         Start the HTTP API server")
	fmt.Println("  cleo migrate       Run database migrations and exit")
	fmt.Println("  cleo version       Show version information")
	fmt.Println("  cleo help          Show this help")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  GEMINI_API_KEY     Required: Gemini API key")
	fmt.Println("  DATABASE_URL       Optional: overrides postgres settings")
	fmt.Println("  DEBUG              Optional: enable debug logging")
	fmt.Println("  LOG_FORMAT         Optional: 'json' for JSON logs")
}
