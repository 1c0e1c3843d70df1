package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"horse.fit/echocave/internal/blob"
	"horse.fit/echocave/internal/cli"
	"horse.fit/echocave/internal/config"
	"horse.fit/echocave/internal/db"
	"horse.fit/echocave/internal/fetch"
	"horse.fit/echocave/internal/llm"
	"horse.fit/echocave/internal/logging"
	"horse.fit/echocave/internal/moderation"
	"horse.fit/echocave/internal/review"
)

// runtime bundles everything a command needs after bootstrap.
type runtime struct {
	cfg    *config.Config
	logger zerolog.Logger
	pool   *db.Pool
}

func bootstrap(ctx context.Context, envLoader *cli.EnvLoader) (*runtime, error) {
	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	return &runtime{cfg: cfg, logger: logger, pool: pool}, nil
}

func (r *runtime) close() {
	if r != nil && r.pool != nil {
		_ = r.pool.Close()
	}
}

// stdoutNotifier relays pipeline messages to the terminal; the chat surface
// plugs in its own Notifier.
type stdoutNotifier struct{}

func (stdoutNotifier) Notify(_ context.Context, sub *db.Cave, message string) error {
	fmt.Printf("[cave %d] %s\n", sub.ID, message)
	return nil
}

// logReviewQueue stands in for the manual-review surface.
type logReviewQueue struct {
	logger zerolog.Logger
}

func (q logReviewQueue) Dispatch(_ context.Context, sub *db.Cave) error {
	q.logger.Info().Int64("cave_id", sub.ID).Msg("entry queued for manual review")
	return nil
}

// buildAIModerator wires the LLM client when AI moderation is enabled and
// endpoints are configured; otherwise returns nil.
func (r *runtime) buildAIModerator() (*moderation.AIModerator, error) {
	if !r.cfg.EnableAI {
		return nil, nil
	}
	endpoints, err := r.cfg.LoadEndpoints()
	if err != nil {
		return nil, err
	}
	if len(endpoints) == 0 {
		r.logger.Warn().Msg("ENABLE_AI is set but no endpoints are configured; AI moderation disabled")
		return nil, nil
	}
	prompt, err := r.cfg.ResolveSystemPrompt()
	if err != nil {
		return nil, err
	}
	client := llm.NewClient(endpoints, r.cfg.LLMTimeout, r.cfg.LLMRetryCooldown, r.logger)
	return moderation.NewAIModerator(client, r.pool, prompt, r.logger), nil
}

func (r *runtime) buildOrchestrator() (*review.Orchestrator, *review.IDPool, error) {
	blobs, err := blob.NewLocalStore(r.cfg.BlobDir)
	if err != nil {
		return nil, nil, err
	}

	ai, err := r.buildAIModerator()
	if err != nil {
		return nil, nil, err
	}

	sim := moderation.NewSimilarityModerator(r.pool, r.cfg.TextThreshold, r.cfg.ImageThreshold, r.logger)
	idPool := review.NewIDPool(r.pool)

	var aiGate review.AIGate
	if ai != nil {
		aiGate = ai
	}

	orchestrator := review.NewOrchestrator(
		r.pool,
		blobs,
		fetch.NewHTTPFetcher(r.cfg.MediaTimeout),
		sim,
		aiGate,
		stdoutNotifier{},
		logReviewQueue{logger: r.logger},
		idPool,
		r.cfg,
		r.logger,
	)
	return orchestrator, idPool, nil
}

func loadJSONInput(inline, filePath, label string) (json.RawMessage, error) {
	if strings.TrimSpace(filePath) != "" {
		raw, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("read %s file: %w", label, err)
		}
		return json.RawMessage(raw), nil
	}
	if strings.TrimSpace(inline) == "" {
		return nil, fmt.Errorf("%s is required", label)
	}
	return json.RawMessage(inline), nil
}
