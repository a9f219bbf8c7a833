package app

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"horse.fit/event-pipeline/internal/cli"
	"horse.fit/event-pipeline/internal/config"
	"horse.fit/event-pipeline/internal/logging"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "health":
		return runHealth(args[1:])
	case "parse":
		return runParse(args[1:])
	case "ingest":
		return runIngest(args[1:])
	case "merge":
		return runMerge(args[1:])
	case "cleanup":
		return runCleanup(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "event-pipeline CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  event-pipeline <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health    Verify database connectivity")
	fmt.Fprintln(os.Stderr, "  parse     Recover events from saved extraction responses (offline)")
	fmt.Fprintln(os.Stderr, "  ingest    Extract, dedup and insert events from the source catalog or one URL")
	fmt.Fprintln(os.Stderr, "  merge     Collapse per-day listings of multi-day events (dry-run unless MERGE=true or --apply)")
	fmt.Fprintln(os.Stderr, "  cleanup   Remove historical duplicates (dry-run unless DELETE=true or --apply)")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"event-pipeline <command> -h\" for command-specific flags.")
}

// loadRuntime loads the env file, configuration and logger shared by every
// database-backed command. The returned code is non-zero on failure.
func loadRuntime(envLoader *cli.EnvLoader) (*config.Config, zerolog.Logger, int) {
	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, zerolog.Nop(), 1
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return nil, zerolog.Nop(), 1
	}
	return cfg, logger, 0
}
