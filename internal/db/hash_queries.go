package db

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"
)

// ListHashes returns all hash records, optionally restricted to one kind.
func (p *Pool) ListHashes(ctx context.Context, kind HashKind) ([]CaveHash, error) {
	if p == nil || p.gdb == nil {
		return nil, fmt.Errorf("database pool is not initialized")
	}
	q := p.gdb.WithContext(ctx).Model(&CaveHash{})
	if kind != "" {
		q = q.Where("type = ?", kind)
	}
	var rows []CaveHash
	if err := q.Order("cave_id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list cave hashes: %w", err)
	}
	return rows, nil
}

// UpsertHashes writes hash records; existing triples are left untouched.
func (p *Pool) UpsertHashes(ctx context.Context, rows []CaveHash) error {
	if p == nil || p.gdb == nil {
		return fmt.Errorf("database pool is not initialized")
	}
	if len(rows) == 0 {
		return nil
	}
	err := p.gdb.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error
	if err != nil {
		return fmt.Errorf("upsert cave hashes: %w", err)
	}
	return nil
}

// DeleteHashesFor removes every hash record owned by one entry.
func (p *Pool) DeleteHashesFor(ctx context.Context, caveID int64) error {
	if p == nil || p.gdb == nil {
		return fmt.Errorf("database pool is not initialized")
	}
	err := p.gdb.WithContext(ctx).
		Where("cave_id = ?", caveID).
		Delete(&CaveHash{}).Error
	if err != nil {
		return fmt.Errorf("delete hashes for cave %d: %w", caveID, err)
	}
	return nil
}

// CountHashesFor reports how many hash records reference one entry.
func (p *Pool) CountHashesFor(ctx context.Context, caveID int64) (int64, error) {
	if p == nil || p.gdb == nil {
		return 0, fmt.Errorf("database pool is not initialized")
	}
	var n int64
	err := p.gdb.WithContext(ctx).
		Model(&CaveHash{}).
		Where("cave_id = ?", caveID).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count hashes for cave %d: %w", caveID, err)
	}
	return n, nil
}
