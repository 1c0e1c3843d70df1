package moderation

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"horse.fit/echocave/internal/db"
	"horse.fit/echocave/internal/hashing"
)

// HashLister reads persisted hash records.
type HashLister interface {
	ListHashes(ctx context.Context, kind db.HashKind) ([]db.CaveHash, error)
}

// SimilarityModerator rejects a submission when any persisted text Simhash
// or image pHash scores at or above its threshold against the submission's
// fingerprints.
type SimilarityModerator struct {
	store          HashLister
	textThreshold  float64
	imageThreshold float64
	logger         zerolog.Logger
}

func NewSimilarityModerator(store HashLister, textThreshold, imageThreshold float64, logger zerolog.Logger) *SimilarityModerator {
	return &SimilarityModerator{
		store:          store,
		textThreshold:  textThreshold,
		imageThreshold: imageThreshold,
		logger:         logger,
	}
}

// Check fingerprints the submission and scans the persisted records. The
// text gate runs first, then the image gate; the first record crossing a
// threshold rejects. On pass, the hashes that would be persisted are held
// in the decision for the orchestrator to commit.
func (m *SimilarityModerator) Check(ctx context.Context, sub *db.Cave, media map[string][]byte) (Decision, error) {
	if m == nil || m.store == nil {
		return Decision{}, fmt.Errorf("similarity moderator is not initialized")
	}
	if sub == nil {
		return Decision{}, fmt.Errorf("submission is nil")
	}

	var held []db.CaveHash

	textHash := hashing.Simhash(sub.Texts())
	if textHash != "" {
		existing, err := m.store.ListHashes(ctx, db.HashText)
		if err != nil {
			return Decision{}, fmt.Errorf("list text hashes: %w", err)
		}
		for _, record := range existing {
			if record.CaveID == sub.ID {
				continue
			}
			if sim := hashing.Similarity(textHash, record.Hash); sim >= m.textThreshold {
				return Reject(record.CaveID, db.HashText, sim), nil
			}
		}
		held = append(held, db.CaveHash{CaveID: sub.ID, Hash: textHash, Kind: db.HashText})
	}

	imageHashes, rejection, err := m.checkImages(ctx, sub, media)
	if err != nil {
		return Decision{}, err
	}
	if rejection != nil {
		return Decision{Verdict: VerdictReject, Rejection: rejection}, nil
	}
	held = append(held, imageHashes...)

	if len(held) == 0 {
		return Skip(), nil
	}
	return Pass(held), nil
}

func (m *SimilarityModerator) checkImages(ctx context.Context, sub *db.Cave, media map[string][]byte) ([]db.CaveHash, *Rejection, error) {
	var existing []db.CaveHash
	var held []db.CaveHash
	seen := make(map[string]struct{})

	for _, el := range sub.Elements {
		if el.Type != db.ElementMedia || !hashing.IsSupportedImage(el.File) {
			continue
		}
		buf, ok := media[el.File]
		if !ok {
			continue
		}

		hash, err := hashing.PHash(hashing.Sanitize(buf))
		if err != nil {
			// Corrupt media is skipped for hashing but still stored.
			m.logger.Warn().Err(err).Int64("cave_id", sub.ID).Str("file", el.File).Msg("phash failed, skipping media for hashing")
			continue
		}
		if _, dup := seen[hash]; dup {
			continue
		}
		seen[hash] = struct{}{}

		if existing == nil {
			records, err := m.store.ListHashes(ctx, db.HashImage)
			if err != nil {
				return nil, nil, fmt.Errorf("list image hashes: %w", err)
			}
			existing = records
			if existing == nil {
				existing = []db.CaveHash{}
			}
		}
		for _, record := range existing {
			if record.CaveID == sub.ID {
				continue
			}
			if sim := hashing.Similarity(hash, record.Hash); sim >= m.imageThreshold {
				return nil, &Rejection{PriorID: record.CaveID, Kind: db.HashImage, Similarity: sim}, nil
			}
		}
		held = append(held, db.CaveHash{CaveID: sub.ID, Hash: hash, Kind: db.HashImage})
	}
	return held, nil, nil
}
