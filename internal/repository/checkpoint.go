package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"digest-relay-go/internal/model"
)

// CheckpointRepository persists per-source fetch progress
type CheckpointRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewCheckpointRepository creates a checkpoint store on top of gorm
func NewCheckpointRepository(db *gorm.DB) *CheckpointRepository {
	return &CheckpointRepository{db: db, now: time.Now}
}

// WithClock overrides the time source
func (r *CheckpointRepository) WithClock(now func() time.Time) *CheckpointRepository {
	r.now = now
	return r
}

// Get returns the checkpoint of a source. found=false is the first-run marker.
func (r *CheckpointRepository) Get(ctx context.Context, sourceID string) (model.SourceCheckpoint, bool, error) {
	var cp model.SourceCheckpoint
	err := r.db.WithContext(ctx).Where("source_id = ?", sourceID).First(&cp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.SourceCheckpoint{}, false, nil
	}
	if err != nil {
		return model.SourceCheckpoint{}, false, storageError("get checkpoint", err)
	}
	return cp, true, nil
}

// Advance moves the source cursor forward and adds newItems to the running total.
// Both steps are single statements; an id lower than the stored one is a no-op
// and reports false.
func (r *CheckpointRepository) Advance(ctx context.Context, sourceID string, lastItemID, newItems int64, title string) (bool, error) {
	if newItems < 0 {
		return false, fmt.Errorf("new items count must not be negative, got %d", newItems)
	}

	now := r.now().UTC()
	db := r.db.WithContext(ctx)

	cp := model.SourceCheckpoint{
		SourceID:       sourceID,
		Title:          title,
		LastItemID:     lastItemID,
		ItemsSeenTotal: newItems,
		LastRunAt:      now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	created := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&cp)
	if created.Error != nil {
		return false, storageError("create checkpoint", created.Error)
	}
	if created.RowsAffected == 1 {
		return true, nil
	}

	updates := map[string]any{
		"last_item_id":     lastItemID,
		"items_seen_total": gorm.Expr("items_seen_total + ?", newItems),
		"last_run_at":      now,
		"updated_at":       now,
	}
	if title != "" {
		updates["title"] = title
	}

	result := db.Model(&model.SourceCheckpoint{}).
		Where("source_id = ? AND last_item_id <= ?", sourceID, lastItemID).
		Updates(updates)
	if result.Error != nil {
		return false, storageError("advance checkpoint", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// List returns all checkpoints ordered by source id
func (r *CheckpointRepository) List(ctx context.Context) ([]model.SourceCheckpoint, error) {
	var out []model.SourceCheckpoint
	if err := r.db.WithContext(ctx).Order("source_id").Find(&out).Error; err != nil {
		return nil, storageError("list checkpoints", err)
	}
	return out, nil
}

// Delete removes a checkpoint so the source goes through its first run again
func (r *CheckpointRepository) Delete(ctx context.Context, sourceID string) (bool, error) {
	result := r.db.WithContext(ctx).Where("source_id = ?", sourceID).Delete(&model.SourceCheckpoint{})
	if result.Error != nil {
		return false, storageError("delete checkpoint", result.Error)
	}
	return result.RowsAffected > 0, nil
}
