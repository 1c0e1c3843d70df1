package db

import (
	"context"
	"database/sql"
	"fmt"

	"gorm.io/gorm/clause"
)

// GetCave fetches one entry by ID. Returns ErrNotFound when absent.
func (p *Pool) GetCave(ctx context.Context, id int64) (*Cave, error) {
	if p == nil || p.gdb == nil {
		return nil, fmt.Errorf("database pool is not initialized")
	}
	var row Cave
	if err := p.gdb.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// UpsertCave inserts or fully replaces one entry row.
func (p *Pool) UpsertCave(ctx context.Context, row *Cave) error {
	if p == nil || p.gdb == nil {
		return fmt.Errorf("database pool is not initialized")
	}
	if row == nil {
		return fmt.Errorf("cave row is nil")
	}
	err := p.gdb.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(row).Error
	if err != nil {
		return fmt.Errorf("upsert cave %d: %w", row.ID, err)
	}
	return nil
}

// ListCavesByStatus returns entries with the given status ordered by ID.
func (p *Pool) ListCavesByStatus(ctx context.Context, status Status) ([]Cave, error) {
	if p == nil || p.gdb == nil {
		return nil, fmt.Errorf("database pool is not initialized")
	}
	var rows []Cave
	err := p.gdb.WithContext(ctx).
		Where("status = ?", status).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list caves by status %s: %w", status, err)
	}
	return rows, nil
}

// SetCaveStatus updates just the status column of one entry.
func (p *Pool) SetCaveStatus(ctx context.Context, id int64, status Status) error {
	if p == nil || p.gdb == nil {
		return fmt.Errorf("database pool is not initialized")
	}
	err := p.gdb.WithContext(ctx).
		Model(&Cave{}).
		Where("id = ?", id).
		Update("status", status).Error
	if err != nil {
		return fmt.Errorf("set cave %d status %s: %w", id, status, err)
	}
	return nil
}

// MaxCaveID returns the highest allocated entry ID, 0 when the table is empty.
func (p *Pool) MaxCaveID(ctx context.Context) (int64, error) {
	if p == nil || p.gdb == nil {
		return 0, fmt.Errorf("database pool is not initialized")
	}
	var maxID sql.NullInt64
	err := p.gdb.WithContext(ctx).
		Model(&Cave{}).
		Select("MAX(id)").
		Scan(&maxID).Error
	if err != nil {
		return 0, fmt.Errorf("max cave id: %w", err)
	}
	if !maxID.Valid {
		return 0, nil
	}
	return maxID.Int64, nil
}

// ListDeletedIDs returns the IDs of tombstoned entries, for ID recycling.
func (p *Pool) ListDeletedIDs(ctx context.Context) ([]int64, error) {
	if p == nil || p.gdb == nil {
		return nil, fmt.Errorf("database pool is not initialized")
	}
	var ids []int64
	err := p.gdb.WithContext(ctx).
		Model(&Cave{}).
		Where("status = ?", StatusDelete).
		Order("id ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list deleted cave ids: %w", err)
	}
	return ids, nil
}
