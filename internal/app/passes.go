package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/event-pipeline/internal/cli"
	"horse.fit/event-pipeline/internal/db"
	"horse.fit/event-pipeline/internal/globaltime"
	"horse.fit/event-pipeline/internal/ingest"
	"horse.fit/event-pipeline/internal/metrics"
)

func runMerge(args []string) int {
	fs := flag.NewFlagSet("merge", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 10*time.Minute, "Command timeout")
	apply := fs.Bool("apply", false, "Write the merges (same as MERGE=true)")
	maxDays := fs.Int("max-days", -1, "Maximum days between first and last listing, 0 for same-day only (default: MERGE_MAX_DAYS_APART)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, logger, code := loadRuntime(envLoader)
	if code != 0 {
		return code
	}
	if *maxDays < 0 {
		*maxDays = cfg.MergeMaxDaysApart
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("merge command failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	recorder := metrics.NewRecorder()
	svc, err := ingest.NewService(ingest.Dependencies{Store: pool, Metrics: recorder}, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize merge: %v\n", err)
		return 1
	}

	started := globaltime.UTC()
	report, err := svc.Merge(ctx, ingest.MergeOptions{MaxDaysApart: *maxDays, Apply: *apply || cfg.MergeApply})
	finished := globaltime.UTC()
	recorder.ObserveRun("merge", finished.Sub(started), finished, err == nil)
	pushMetrics(recorder, cfg, "merge", logger)
	if err != nil {
		logger.Error().Err(err).Msg("merge failed")
		fmt.Fprintf(os.Stderr, "Merge failed: %v\n", err)
		return 1
	}

	for _, group := range report.Groups {
		fmt.Printf("merge group keep=%s name=%q start=%s end=%s absorbed=%d\n",
			group.Keep.ID, group.Keep.Name, group.StartDate, group.EndDate, len(group.Absorbed))
	}
	logger.Info().
		Int("groups", len(report.Groups)).
		Int("applied", report.Applied).
		Int("absorbed", report.Absorbed).
		Int("failed", report.Failed).
		Bool("dry_run", report.DryRun).
		Msg("merge completed")
	fmt.Printf("merge groups=%d applied=%d absorbed=%d failed=%d dry_run=%t max_days=%d\n",
		len(report.Groups), report.Applied, report.Absorbed, report.Failed, report.DryRun, *maxDays)
	if report.Failed > 0 {
		return 1
	}
	return 0
}

func runCleanup(args []string) int {
	fs := flag.NewFlagSet("cleanup", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 10*time.Minute, "Command timeout")
	apply := fs.Bool("apply", false, "Delete the duplicates (same as DELETE=true)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, logger, code := loadRuntime(envLoader)
	if code != 0 {
		return code
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("cleanup command failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	recorder := metrics.NewRecorder()
	svc, err := ingest.NewService(ingest.Dependencies{Store: pool, Metrics: recorder}, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize cleanup: %v\n", err)
		return 1
	}

	started := globaltime.UTC()
	report, err := svc.Cleanup(ctx, ingest.CleanupOptions{Apply: *apply || cfg.DeleteApply})
	finished := globaltime.UTC()
	recorder.ObserveRun("cleanup", finished.Sub(started), finished, err == nil)
	pushMetrics(recorder, cfg, "cleanup", logger)
	if err != nil {
		logger.Error().Err(err).Msg("cleanup failed")
		fmt.Fprintf(os.Stderr, "Cleanup failed: %v\n", err)
		return 1
	}

	for _, group := range report.Groups {
		for _, removal := range group.Remove {
			fmt.Printf("cleanup duplicate keep=%s remove=%s signal=%s matched=%q\n",
				group.Keep.ID, removal.Event.ID, removal.Signal, removal.MatchedKey)
		}
	}
	logger.Info().
		Int("groups", len(report.Groups)).
		Int("planned", report.Planned).
		Int64("deleted", report.Deleted).
		Bool("dry_run", report.DryRun).
		Msg("cleanup completed")
	fmt.Printf("cleanup groups=%d planned=%d deleted=%d dry_run=%t\n",
		len(report.Groups), report.Planned, report.Deleted, report.DryRun)
	return 0
}
