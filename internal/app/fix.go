package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/echocave/internal/cli"
	"horse.fit/echocave/internal/db"
)

// runFix sweeps the archive: stale preload rows are tombstoned (a preload
// row surviving a restart can never be committed), and hash/meta rows whose
// entry is gone or tombstoned are reported and optionally pruned.
func runFix(args []string) int {
	fs := flag.NewFlagSet("fix", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 10*time.Minute, "Command timeout")
	prune := fs.Bool("prune", false, "Delete orphaned hash/meta rows instead of only reporting them")

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

	swept, err := sweepPreload(ctx, rt)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Preload sweep failed: %v\n", err)
		return 1
	}

	orphanHashes, orphanMetas, err := sweepOrphans(ctx, rt, *prune)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Orphan sweep failed: %v\n", err)
		return 1
	}

	rt.logger.Info().
		Int("preload_swept", swept).
		Int("orphan_hash_entries", orphanHashes).
		Int("orphan_meta_entries", orphanMetas).
		Bool("pruned", *prune).
		Msg("fix sweep finished")
	fmt.Printf("tombstoned %d stale preload rows; %d entries with orphaned hashes, %d with orphaned meta", swept, orphanHashes, orphanMetas)
	if *prune {
		fmt.Print(" (pruned)")
	}
	fmt.Println()
	return 0
}

func sweepPreload(ctx context.Context, rt *runtime) (int, error) {
	stale, err := rt.pool.ListCavesByStatus(ctx, db.StatusPreload)
	if err != nil {
		return 0, err
	}
	swept := 0
	for i := range stale {
		if err := rt.pool.SetCaveStatus(ctx, stale[i].ID, db.StatusDelete); err != nil {
			rt.logger.Error().Err(err).Int64("cave_id", stale[i].ID).Msg("preload tombstone failed")
			continue
		}
		swept++
	}
	return swept, nil
}

func sweepOrphans(ctx context.Context, rt *runtime, prune bool) (int, int, error) {
	hashes, err := rt.pool.ListHashes(ctx, "")
	if err != nil {
		return 0, 0, err
	}
	metas, err := rt.pool.ListAllMeta(ctx)
	if err != nil {
		return 0, 0, err
	}

	owners := make(map[int64]bool)
	isOrphan := func(id int64) bool {
		if live, known := owners[id]; known {
			return !live
		}
		cave, err := rt.pool.GetCave(ctx, id)
		live := err == nil && cave.Status != db.StatusDelete
		owners[id] = live
		return !live
	}

	orphanHashOwners := make(map[int64]struct{})
	for _, h := range hashes {
		if isOrphan(h.CaveID) {
			orphanHashOwners[h.CaveID] = struct{}{}
		}
	}
	orphanMetaOwners := make(map[int64]struct{})
	for _, m := range metas {
		if isOrphan(m.CaveID) {
			orphanMetaOwners[m.CaveID] = struct{}{}
		}
	}

	if prune {
		for id := range orphanHashOwners {
			if err := rt.pool.DeleteHashesFor(ctx, id); err != nil {
				rt.logger.Error().Err(err).Int64("cave_id", id).Msg("orphan hash prune failed")
			}
		}
		for id := range orphanMetaOwners {
			if err := rt.pool.DeleteMetaFor(ctx, id); err != nil {
				rt.logger.Error().Err(err).Int64("cave_id", id).Msg("orphan meta prune failed")
			}
		}
	}
	return len(orphanHashOwners), len(orphanMetaOwners), nil
}
