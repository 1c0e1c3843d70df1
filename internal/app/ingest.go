package app

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"horse.fit/echocave/internal/cli"
	"horse.fit/echocave/internal/globaltime"
	"horse.fit/echocave/internal/review"
)

type ingestPayload struct {
	ChannelID string                `json:"channel_id"`
	UserID    string                `json:"user_id"`
	Elements  []review.ElementInput `json:"elements"`
}

func runIngest(args []string) int {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 15*time.Minute, "Command timeout")
	payload := fs.String("payload", "", "Submission JSON: {channel_id, user_id, elements: [{type, text|url, ext}]}")
	payloadFile := fs.String("payload-file", "", "Path to submission JSON file (overrides --payload)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	payloadJSON, err := loadJSONInput(*payload, *payloadFile, "payload")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid payload: %v\n", err)
		return 2
	}

	var parsed ingestPayload
	if err := json.Unmarshal(payloadJSON, &parsed); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid payload: %v\n", err)
		return 2
	}
	if strings.TrimSpace(parsed.ChannelID) == "" || strings.TrimSpace(parsed.UserID) == "" {
		fmt.Fprintln(os.Stderr, "Invalid payload: channel_id and user_id are required")
		return 2
	}
	if len(parsed.Elements) == 0 {
		fmt.Fprintln(os.Stderr, "Invalid payload: at least one element is required")
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

	orchestrator, idPool, err := rt.buildOrchestrator()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build pipeline: %v\n", err)
		return 1
	}

	id, err := idPool.Allocate(ctx)
	if err != nil {
		rt.logger.Error().Err(err).Msg("id allocation failed")
		fmt.Fprintf(os.Stderr, "Failed to allocate entry id: %v\n", err)
		return 1
	}

	sub, sources, err := review.BuildSubmission(id, parsed.ChannelID, parsed.UserID, parsed.Elements, globaltime.UTC())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid payload: %v\n", err)
		return 2
	}
	if err := rt.pool.UpsertCave(ctx, sub); err != nil {
		rt.logger.Error().Err(err).Msg("preload insert failed")
		fmt.Fprintf(os.Stderr, "Failed to insert entry: %v\n", err)
		return 1
	}

	result, err := orchestrator.Ingest(ctx, review.Request{Submission: sub, MediaSources: sources})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
		return 1
	}

	rt.logger.Info().
		Int64("cave_id", id).
		Str("status", string(result.Status)).
		Bool("rejected", result.Rejected).
		Msg("ingest finished")
	fmt.Printf("entry %d: %s\n", id, result.Message)
	return 0
}
