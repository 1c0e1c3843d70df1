package review

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"horse.fit/echocave/internal/blob"
	"horse.fit/echocave/internal/config"
	"horse.fit/echocave/internal/db"
	"horse.fit/echocave/internal/fetch"
	"horse.fit/echocave/internal/hashing"
	"horse.fit/echocave/internal/moderation"
)

// Store is the slice of the database the orchestrator commits through.
type Store interface {
	UpsertCave(ctx context.Context, row *db.Cave) error
	UpsertHashes(ctx context.Context, rows []db.CaveHash) error
	UpsertMeta(ctx context.Context, row *db.CaveMeta) error
}

// SimilarityGate is the similarity moderator contract.
type SimilarityGate interface {
	Check(ctx context.Context, sub *db.Cave, media map[string][]byte) (moderation.Decision, error)
}

// AIGate is the AI moderator contract.
type AIGate interface {
	Analyze(ctx context.Context, sub *db.Cave, media map[string][]byte) (*db.CaveMeta, error)
	CheckDuplicates(ctx context.Context, meta *db.CaveMeta, sub *db.Cave) ([]int64, error)
}

// Notifier relays a user-facing message through the chat surface.
type Notifier interface {
	Notify(ctx context.Context, sub *db.Cave, message string) error
}

// ReviewQueue hands a pending entry to the manual-review surface.
type ReviewQueue interface {
	Dispatch(ctx context.Context, sub *db.Cave) error
}

// Orchestrator drives the ingest state machine: download and dedupe media,
// run the moderators in order, commit media/meta/hashes, decide the final
// status, and tombstone the row on any failure.
type Orchestrator struct {
	store    Store
	blobs    blob.Store
	fetcher  fetch.Fetcher
	sim      SimilarityGate
	ai       AIGate
	notifier Notifier
	reviewer ReviewQueue
	pool     *IDPool
	cfg      *config.Config
	logger   zerolog.Logger
}

func NewOrchestrator(
	store Store,
	blobs blob.Store,
	fetcher fetch.Fetcher,
	sim SimilarityGate,
	ai AIGate,
	notifier Notifier,
	reviewer ReviewQueue,
	pool *IDPool,
	cfg *config.Config,
	logger zerolog.Logger,
) *Orchestrator {
	return &Orchestrator{
		store:    store,
		blobs:    blobs,
		fetcher:  fetcher,
		sim:      sim,
		ai:       ai,
		notifier: notifier,
		reviewer: reviewer,
		pool:     pool,
		cfg:      cfg,
		logger:   logger,
	}
}

// Request is one submission entering the pipeline. The entry row already
// exists in preload status; MediaSources maps each media element's file
// name to its download URL. A media element with no source is read back
// from the blob store (re-ingest paths).
type Request struct {
	Submission   *db.Cave
	MediaSources map[string]string
}

// Result summarizes the pipeline outcome for the chat surface.
type Result struct {
	Status   db.Status
	Rejected bool
	Message  string
}

// Ingest runs the full pipeline for one submission. Content rejections
// return a Result with Rejected set and a nil error. A nil submission or a
// submission not in preload status returns an error without touching the
// row; any other error return means an external collaborator failed and
// the row was tombstoned.
func (o *Orchestrator) Ingest(ctx context.Context, req Request) (Result, error) {
	if o == nil || o.store == nil {
		return Result{}, fmt.Errorf("orchestrator is not initialized")
	}
	sub := req.Submission
	if sub == nil {
		return Result{}, fmt.Errorf("submission is nil")
	}
	if sub.Status != db.StatusPreload {
		return Result{}, fmt.Errorf("submission %d is %s, expected %s", sub.ID, sub.Status, db.StatusPreload)
	}

	if sub.Texts() == "" && len(sub.MediaFiles()) == 0 {
		o.tombstone(ctx, sub)
		return o.rejected(ctx, sub, MsgNoContent()), nil
	}

	result, err := o.run(ctx, req)
	if err != nil {
		o.logger.Error().Err(err).Int64("cave_id", sub.ID).Msg("ingest failed, tombstoning entry")
		o.tombstone(ctx, sub)
		o.notify(ctx, sub, MsgProcessingFailed(err))
		return Result{Status: db.StatusDelete, Message: MsgProcessingFailed(err)}, err
	}
	return result, nil
}

func (o *Orchestrator) run(ctx context.Context, req Request) (Result, error) {
	sub := req.Submission

	buffers, err := o.downloadAndDedupe(ctx, sub, req.MediaSources)
	if err != nil {
		return Result{}, err
	}

	var held []db.CaveHash
	if o.cfg.EnableSimilarity && o.sim != nil {
		decision, err := o.sim.Check(ctx, sub, buffers)
		if err != nil {
			return Result{}, err
		}
		if decision.Verdict == moderation.VerdictReject {
			r := decision.Rejection
			o.tombstone(ctx, sub)
			return o.rejected(ctx, sub, MsgSimilarityReject(r.PriorID, r.Kind, r.Similarity)), nil
		}
		held = decision.HeldHashes
	}

	var meta *db.CaveMeta
	if o.cfg.EnableAI && o.ai != nil {
		meta, err = o.ai.Analyze(ctx, sub, buffers)
		if err != nil {
			return Result{}, err
		}
		if meta != nil {
			duplicates, err := o.ai.CheckDuplicates(ctx, meta, sub)
			if err != nil {
				return Result{}, err
			}
			if len(duplicates) > 0 {
				o.tombstone(ctx, sub)
				return o.rejected(ctx, sub, MsgSemanticReject(duplicates)), nil
			}
		}
	}

	status, lowRating := o.decideStatus(meta)
	if lowRating {
		o.tombstone(ctx, sub)
		return o.rejected(ctx, sub, MsgAILowRating(meta.Rating)), nil
	}

	if err := o.persistMedia(ctx, sub, buffers); err != nil {
		return Result{}, err
	}
	if meta != nil {
		if err := o.store.UpsertMeta(ctx, meta); err != nil {
			return Result{}, err
		}
	}
	if len(held) > 0 {
		if err := o.store.UpsertHashes(ctx, held); err != nil {
			return Result{}, err
		}
	}

	sub.Status = status
	if err := o.store.UpsertCave(ctx, sub); err != nil {
		return Result{}, err
	}

	message := MsgAccepted(sub.ID)
	if status == db.StatusPending {
		message = MsgPending(sub.ID)
		if o.reviewer != nil {
			if err := o.reviewer.Dispatch(ctx, sub); err != nil {
				return Result{}, fmt.Errorf("dispatch manual review: %w", err)
			}
		}
	}
	o.notify(ctx, sub, message)

	o.logger.Info().
		Int64("cave_id", sub.ID).
		Str("status", string(status)).
		Int("hashes", len(held)).
		Bool("meta", meta != nil).
		Msg("ingest completed")
	return Result{Status: status, Message: message}, nil
}

// downloadAndDedupe fetches every media element, sanitizes images, and
// collapses attachments sharing a pHash onto one canonical file name.
func (o *Orchestrator) downloadAndDedupe(ctx context.Context, sub *db.Cave, sources map[string]string) (map[string][]byte, error) {
	buffers := make(map[string][]byte)
	canonical := make(map[string]string)

	for i := range sub.Elements {
		el := &sub.Elements[i]
		if el.Type != db.ElementMedia || el.File == "" {
			continue
		}
		if _, done := buffers[el.File]; done {
			continue
		}

		data, err := o.loadMedia(ctx, el.File, sources)
		if err != nil {
			return nil, err
		}

		if !hashing.IsSupportedImage(el.File) {
			buffers[el.File] = data
			continue
		}

		data = hashing.Sanitize(data)
		hash, err := hashing.PHash(data)
		if err != nil {
			o.logger.Warn().Err(err).Int64("cave_id", sub.ID).Str("file", el.File).Msg("media undecodable, stored without hash")
			buffers[el.File] = data
			continue
		}
		if existing, dup := canonical[hash]; dup {
			el.File = existing
			continue
		}
		canonical[hash] = el.File
		buffers[el.File] = data
	}
	return buffers, nil
}

func (o *Orchestrator) loadMedia(ctx context.Context, fileName string, sources map[string]string) ([]byte, error) {
	if url, ok := sources[fileName]; ok && url != "" {
		if o.fetcher == nil {
			return nil, fmt.Errorf("no fetcher configured for media %s", fileName)
		}
		return o.fetcher.Fetch(ctx, url)
	}
	if o.blobs == nil {
		return nil, fmt.Errorf("no source for media %s", fileName)
	}
	data, err := o.blobs.Read(fileName)
	if err != nil {
		return nil, fmt.Errorf("load media %s: %w", fileName, err)
	}
	return data, nil
}

func (o *Orchestrator) persistMedia(ctx context.Context, sub *db.Cave, buffers map[string][]byte) error {
	if o.blobs == nil {
		return nil
	}
	// Save in element order for predictable behavior on partial failure.
	saved := make(map[string]struct{}, len(buffers))
	for _, el := range sub.Elements {
		if el.Type != db.ElementMedia {
			continue
		}
		data, ok := buffers[el.File]
		if !ok {
			continue
		}
		if _, done := saved[el.File]; done {
			continue
		}
		if err := o.blobs.Save(el.File, data); err != nil {
			return fmt.Errorf("persist media %s: %w", el.File, err)
		}
		saved[el.File] = struct{}{}
	}
	return nil
}

// decideStatus applies the transition table. The second return is true when
// the entry must instead be rejected for a low AI rating.
func (o *Orchestrator) decideStatus(meta *db.CaveMeta) (db.Status, bool) {
	if !o.cfg.EnablePend {
		return db.StatusActive, false
	}
	if o.cfg.EnableAI && o.cfg.EnableAutoApprove && meta != nil {
		if meta.Rating >= o.cfg.AutoApproveThreshold {
			return db.StatusActive, false
		}
		if o.cfg.ReviewFailRejects() {
			return db.StatusDelete, true
		}
	}
	return db.StatusPending, false
}

// tombstone forces the row to delete status and sweeps reusable IDs. Runs
// on every failure path, so its own errors are logged, not returned.
func (o *Orchestrator) tombstone(ctx context.Context, sub *db.Cave) {
	sub.Status = db.StatusDelete
	if err := o.store.UpsertCave(ctx, sub); err != nil {
		o.logger.Error().Err(err).Int64("cave_id", sub.ID).Msg("tombstone write failed")
	}
	if o.pool != nil {
		o.pool.Release(sub.ID)
		if err := o.pool.Harvest(ctx); err != nil {
			o.logger.Warn().Err(err).Msg("id pool harvest failed")
		}
	}
}

func (o *Orchestrator) rejected(ctx context.Context, sub *db.Cave, message string) Result {
	o.notify(ctx, sub, message)
	return Result{Status: db.StatusDelete, Rejected: true, Message: message}
}

func (o *Orchestrator) notify(ctx context.Context, sub *db.Cave, message string) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.Notify(ctx, sub, message); err != nil {
		o.logger.Warn().Err(err).Int64("cave_id", sub.ID).Msg("notify failed")
	}
}
