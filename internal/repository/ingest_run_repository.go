package repository

import (
	"fmt"

	"gorm.io/gorm"

	"docqa/internal/model"
)

type IngestRunRepository struct {
	db *gorm.DB
}

func NewIngestRunRepository(db *gorm.DB) *IngestRunRepository {
	return &IngestRunRepository{db: db}
}

func (r *IngestRunRepository) Create(run *model.IngestRun) error {
	if err := r.db.Create(run).Error; err != nil {
		return fmt.Errorf("create ingest run failed: %w", err)
	}
	return nil
}

// ListRecent returns the newest runs first.
func (r *IngestRunRepository) ListRecent(limit int) ([]model.IngestRun, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var runs []model.IngestRun
	if err := r.db.Order("created_at DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("list ingest runs failed: %w", err)
	}
	return runs, nil
}

func (r *IngestRunRepository) ListBySource(source string, limit int) ([]model.IngestRun, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var runs []model.IngestRun
	if err := r.db.Where("source = ?", source).Order("created_at DESC").Limit(limit).Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("list ingest runs by source failed: %w", err)
	}
	return runs, nil
}
