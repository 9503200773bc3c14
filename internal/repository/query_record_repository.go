package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"docqa/internal/model"
)

type QueryRecordRepository struct {
	db *gorm.DB
}

func NewQueryRecordRepository(db *gorm.DB) *QueryRecordRepository {
	return &QueryRecordRepository{db: db}
}

func (r *QueryRecordRepository) Create(record *model.QueryRecord) error {
	if err := r.db.Create(record).Error; err != nil {
		return fmt.Errorf("create query record failed: %w", err)
	}
	return nil
}

func (r *QueryRecordRepository) GetByRunID(runID string) (*model.QueryRecord, error) {
	var record model.QueryRecord
	if err := r.db.Where("run_id = ?", runID).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query record by run id failed: %w", err)
	}
	return &record, nil
}

func (r *QueryRecordRepository) ListRecent(limit int) ([]model.QueryRecord, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var records []model.QueryRecord
	if err := r.db.Order("created_at DESC").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list query records failed: %w", err)
	}
	return records, nil
}
