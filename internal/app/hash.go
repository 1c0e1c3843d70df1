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
	"horse.fit/echocave/internal/db"
	"horse.fit/echocave/internal/hashing"
)

// runHash rebuilds every active entry's hash records from stored media and
// text, one entry at a time. A failing entry is counted and skipped, never
// fatal for the batch.
func runHash(args []string) int {
	fs := flag.NewFlagSet("hash", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Minute, "Command timeout")

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

	blobs, err := blob.NewLocalStore(rt.cfg.BlobDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open blob store: %v\n", err)
		return 1
	}

	caves, err := rt.pool.ListCavesByStatus(ctx, db.StatusActive)
	if err != nil {
		rt.logger.Error().Err(err).Msg("active entry listing failed")
		fmt.Fprintf(os.Stderr, "Failed to list entries: %v\n", err)
		return 1
	}

	rebuilt, failed := 0, 0
	for i := range caves {
		cave := &caves[i]
		if err := rebuildHashes(ctx, rt, blobs, cave); err != nil {
			failed++
			rt.logger.Error().Err(err).Int64("cave_id", cave.ID).Msg("hash rebuild failed")
			continue
		}
		rebuilt++
	}

	rt.logger.Info().Int("rebuilt", rebuilt).Int("failed", failed).Msg("hash rebuild finished")
	fmt.Printf("rebuilt %d entries, %d failed\n", rebuilt, failed)
	return 0
}

func rebuildHashes(ctx context.Context, rt *runtime, blobs blob.Store, cave *db.Cave) error {
	var rows []db.CaveHash

	if textHash := hashing.Simhash(cave.Texts()); textHash != "" {
		rows = append(rows, db.CaveHash{CaveID: cave.ID, Hash: textHash, Kind: db.HashText})
	}

	seen := make(map[string]struct{})
	for _, file := range cave.MediaFiles() {
		if !hashing.IsSupportedImage(file) {
			continue
		}
		data, err := blobs.Read(file)
		if err != nil {
			return fmt.Errorf("read media %s: %w", file, err)
		}
		hash, err := hashing.PHash(hashing.Sanitize(data))
		if err != nil {
			rt.logger.Warn().Err(err).Int64("cave_id", cave.ID).Str("file", file).Msg("media undecodable, skipped")
			continue
		}
		if _, dup := seen[hash]; dup {
			continue
		}
		seen[hash] = struct{}{}
		rows = append(rows, db.CaveHash{CaveID: cave.ID, Hash: hash, Kind: db.HashImage})
	}

	if err := rt.pool.DeleteHashesFor(ctx, cave.ID); err != nil {
		return err
	}
	return rt.pool.UpsertHashes(ctx, rows)
}
