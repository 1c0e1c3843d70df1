package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/echocave/internal/blob"
	"horse.fit/echocave/internal/cli"
)

// runAI backfills AI metadata for active entries that have none, one entry
// at a time, best-effort.
func runAI(args []string) int {
	fs := flag.NewFlagSet("ai", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 60*time.Minute, "Command timeout")
	limit := fs.Int("limit", 0, "Maximum entries to analyze (0 = all)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	rt, err := bootstrap(ctx, envLoader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed: %v\n", err)
		return 1
	}
	defer rt.close()

	moderator, err := rt.buildAIModerator()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build AI moderator: %v\n", err)
		return 1
	}
	if moderator == nil {
		fmt.Fprintln(os.Stderr, "AI moderation is disabled (ENABLE_AI off or no endpoints)")
		return 2
	}

	blobs, err := blob.NewLocalStore(rt.cfg.BlobDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open blob store: %v\n", err)
		return 1
	}

	ids, err := rt.pool.ListActiveCaveIDsMissingMeta(ctx)
	if err != nil {
		rt.logger.Error().Err(err).Msg("missing-meta listing failed")
		fmt.Fprintf(os.Stderr, "Failed to list entries: %v\n", err)
		return 1
	}
	if *limit > 0 && len(ids) > *limit {
		ids = ids[:*limit]
	}

	analyzed, skipped, failed := 0, 0, 0
	for _, id := range ids {
		cave, err := rt.pool.GetCave(ctx, id)
		if err != nil {
			failed++
			rt.logger.Error().Err(err).Int64("cave_id", id).Msg("entry load failed")
			continue
		}

		media := make(map[string][]byte)
		for _, file := range cave.MediaFiles() {
			data, err := blobs.Read(file)
			if err != nil {
				rt.logger.Warn().Err(err).Int64("cave_id", id).Str("file", file).Msg("media unavailable for analysis")
				continue
			}
			media[file] = data
		}

		meta, err := moderator.Analyze(ctx, cave, media)
		if err != nil {
			failed++
			rt.logger.Error().Err(err).Int64("cave_id", id).Msg("analysis failed")
			continue
		}
		if meta == nil {
			skipped++
			continue
		}
		if err := rt.pool.UpsertMeta(ctx, meta); err != nil {
			failed++
			rt.logger.Error().Err(err).Int64("cave_id", id).Msg("meta upsert failed")
			continue
		}
		analyzed++
	}

	rt.logger.Info().Int("analyzed", analyzed).Int("skipped", skipped).Int("failed", failed).Msg("ai backfill finished")
	fmt.Printf("analyzed %d entries, %d skipped, %d failed\n", analyzed, skipped, failed)
	return 0
}
