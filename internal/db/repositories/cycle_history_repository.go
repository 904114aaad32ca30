package repositories

import (
	"context"
	"encoding/json"
	"time"

	"skywatch/indexer/internal/models"
	gormModels "skywatch/indexer/internal/models/gorm"

	gormlib "gorm.io/gorm"
)

// CycleHistoryRepo persists cycle summaries
type CycleHistoryRepo struct {
	db *gormlib.DB
}

// NewCycleHistoryRepo creates a new cycle history repository
func NewCycleHistoryRepo(db *gormlib.DB) *CycleHistoryRepo {
	return &CycleHistoryRepo{db: db}
}

// Migrate creates the cycle_history table
func (r *CycleHistoryRepo) Migrate() error {
	return r.db.AutoMigrate(&gormModels.CycleHistory{})
}

// RecordCycle stores the summary of one completed cycle
func (r *CycleHistoryRepo) RecordCycle(ctx context.Context, event, trigger string, result *models.CycleResult) error {
	failures, err := json.Marshal(result.Failed)
	if err != nil {
		failures = []byte("[]")
	}

	row := gormModels.CycleHistory{
		ID:         result.CycleID,
		Event:      event,
		Trigger:    trigger,
		Total:      result.Total,
		Succeeded:  result.Succeeded,
		Skipped:    result.Skipped,
		Failed:     len(result.Failed),
		Failures:   string(failures),
		DurationMs: result.Duration.Milliseconds(),
		StartedAt:  result.StartedAt,
	}

	return r.db.WithContext(ctx).Create(&row).Error
}

// GetLatest returns the most recent cycle summary for an event, or nil when
// no cycle has run yet
func (r *CycleHistoryRepo) GetLatest(ctx context.Context, event string) (*models.CycleResult, error) {
	var row gormModels.CycleHistory

	err := r.db.WithContext(ctx).
		Where("event = ?", event).
		Order("started_at DESC").
		First(&row).Error

	if err != nil {
		if err == gormlib.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}

	result := &models.CycleResult{
		CycleID:   row.ID,
		Total:     row.Total,
		Succeeded: row.Succeeded,
		Skipped:   row.Skipped,
		StartedAt: row.StartedAt,
	}
	result.Duration = time.Duration(row.DurationMs) * time.Millisecond

	if row.Failures != "" {
		_ = json.Unmarshal([]byte(row.Failures), &result.Failed)
	}

	return result, nil
}
