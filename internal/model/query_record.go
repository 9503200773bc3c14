package model

import "time"

type QueryRecord struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RunID     string    `gorm:"size:36;not null;uniqueIndex" json:"run_id"`
	IndexName string    `gorm:"size:128;not null;index" json:"index_name"`
	Question  string    `gorm:"type:text;not null" json:"question"`
	Answer    string    `gorm:"type:text;not null" json:"answer"`
	ChunkIDs  string    `gorm:"type:text" json:"chunk_ids"` // comma separated, in rank order
	TopK      int       `gorm:"not null" json:"top_k"`
	LatencyMS int64     `gorm:"not null" json:"latency_ms"`
	CreatedAt time.Time `json:"created_at"`
}
