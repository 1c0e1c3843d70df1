package db

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"
)

// GetMeta fetches the AI metadata row for one entry. Returns ErrNotFound
// when the entry has no metadata.
func (p *Pool) GetMeta(ctx context.Context, caveID int64) (*CaveMeta, error) {
	if p == nil || p.gdb == nil {
		return nil, fmt.Errorf("database pool is not initialized")
	}
	var row CaveMeta
	if err := p.gdb.WithContext(ctx).First(&row, "cave_id = ?", caveID).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// UpsertMeta inserts or replaces the AI metadata for one entry.
func (p *Pool) UpsertMeta(ctx context.Context, row *CaveMeta) error {
	if p == nil || p.gdb == nil {
		return fmt.Errorf("database pool is not initialized")
	}
	if row == nil {
		return fmt.Errorf("meta row is nil")
	}
	err := p.gdb.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "cave_id"}},
			UpdateAll: true,
		}).
		Create(row).Error
	if err != nil {
		return fmt.Errorf("upsert cave meta %d: %w", row.CaveID, err)
	}
	return nil
}

// ListMetaByKind returns metadata rows sharing one type string.
func (p *Pool) ListMetaByKind(ctx context.Context, kind string) ([]CaveMeta, error) {
	if p == nil || p.gdb == nil {
		return nil, fmt.Errorf("database pool is not initialized")
	}
	var rows []CaveMeta
	err := p.gdb.WithContext(ctx).
		Where("type = ?", kind).
		Order("cave_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list cave meta by type %s: %w", kind, err)
	}
	return rows, nil
}

// ListAllMeta returns every metadata row ordered by entry ID.
func (p *Pool) ListAllMeta(ctx context.Context) ([]CaveMeta, error) {
	if p == nil || p.gdb == nil {
		return nil, fmt.Errorf("database pool is not initialized")
	}
	var rows []CaveMeta
	if err := p.gdb.WithContext(ctx).Order("cave_id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list cave meta: %w", err)
	}
	return rows, nil
}

// DeleteMetaFor removes the metadata row owned by one entry.
func (p *Pool) DeleteMetaFor(ctx context.Context, caveID int64) error {
	if p == nil || p.gdb == nil {
		return fmt.Errorf("database pool is not initialized")
	}
	err := p.gdb.WithContext(ctx).
		Where("cave_id = ?", caveID).
		Delete(&CaveMeta{}).Error
	if err != nil {
		return fmt.Errorf("delete meta for cave %d: %w", caveID, err)
	}
	return nil
}

// ListActiveCaveIDsMissingMeta lists active entries without AI metadata,
// used by the metadata backfill command.
func (p *Pool) ListActiveCaveIDsMissingMeta(ctx context.Context) ([]int64, error) {
	if p == nil || p.gdb == nil {
		return nil, fmt.Errorf("database pool is not initialized")
	}
	sub := p.gdb.Model(&CaveMeta{}).Select("cave_id")
	var ids []int64
	err := p.gdb.WithContext(ctx).
		Model(&Cave{}).
		Where("status = ?", StatusActive).
		Where("id NOT IN (?)", sub).
		Order("id ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list active caves missing meta: %w", err)
	}
	return ids, nil
}

// CountMetaFor reports whether one entry owns a metadata row.
func (p *Pool) CountMetaFor(ctx context.Context, caveID int64) (int64, error) {
	if p == nil || p.gdb == nil {
		return 0, fmt.Errorf("database pool is not initialized")
	}
	var n int64
	err := p.gdb.WithContext(ctx).
		Model(&CaveMeta{}).
		Where("cave_id = ?", caveID).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count meta for cave %d: %w", caveID, err)
	}
	return n, nil
}
