package gorm

import "time"

// CycleHistory records one completed ingestion cycle
type CycleHistory struct {
	ID        string    `gorm:"column:id;primaryKey;type:uuid"`
	Event     string    `gorm:"column:event;type:varchar(50);not null"`
	Trigger   string    `gorm:"column:trigger_source;type:varchar(20);not null"`
	Total     int       `gorm:"column:total;not null"`
	Succeeded int       `gorm:"column:succeeded;not null"`
	Skipped   int       `gorm:"column:skipped;not null"`
	Failed    int       `gorm:"column:failed;not null"`
	// Failures holds the per-item failure list as JSON
	Failures   string    `gorm:"column:failures;type:text"`
	DurationMs int64     `gorm:"column:duration_ms;not null"`
	StartedAt  time.Time `gorm:"column:started_at;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for GORM
func (CycleHistory) TableName() string {
	return "cycle_history"
}
