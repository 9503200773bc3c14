package model

import "time"

const (
	RunStatusSucceeded = "succeeded"
	RunStatusFailed    = "failed"
)

// IngestRun is one execution of the ingestion pipeline.
type IngestRun struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	RunID      string    `gorm:"size:36;not null;uniqueIndex" json:"run_id"`
	Source     string    `gorm:"size:512;not null;index" json:"source"`
	IndexName  string    `gorm:"size:128;not null;index" json:"index_name"`
	ChunkCount int       `gorm:"not null" json:"chunk_count"`
	DurationMS int64     `gorm:"not null" json:"duration_ms"`
	Status     string    `gorm:"size:16;not null;index" json:"status"`
	Error      string    `gorm:"type:text" json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
