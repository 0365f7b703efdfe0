package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"digest-relay-go/internal/model"
)

// FingerprintRepository persists the set of (content, source) pairs already seen
type FingerprintRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewFingerprintRepository creates a fingerprint store on top of gorm
func NewFingerprintRepository(db *gorm.DB) *FingerprintRepository {
	return &FingerprintRepository{db: db, now: time.Now}
}

// WithClock overrides the time source, used by retention tests
func (r *FingerprintRepository) WithClock(now func() time.Time) *FingerprintRepository {
	r.now = now
	return r
}

// Exists reports whether the (content, source) pair was inserted before
func (r *FingerprintRepository) Exists(ctx context.Context, content, sourceID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.Fingerprint{}).
		Where("source_id = ? AND key_hash = ?", sourceID, FingerprintKey(content, sourceID)).
		Count(&count).Error
	if err != nil {
		return false, storageError("check fingerprint", err)
	}
	return count > 0, nil
}

// InsertIfAbsent inserts the fingerprint in a single statement and reports
// whether a new row was written. A second insert of the same pair is a no-op.
func (r *FingerprintRepository) InsertIfAbsent(ctx context.Context, item model.Item, category model.Category) (bool, error) {
	fp := model.Fingerprint{
		SourceID:       item.SourceID,
		KeyHash:        FingerprintKey(item.Text, item.SourceID),
		Category:       category,
		Content:        truncateRunes(collapseSpace(item.Text), maxStoredContentRunes),
		PlatformItemID: item.PlatformItemID,
		ObservedAt:     item.ObservedAt,
		CreatedAt:      r.now().UTC(),
	}

	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&fp)
	if result.Error != nil {
		return false, storageError("insert fingerprint", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// PurgeOlderThan deletes fingerprints created before now-age.
// Purged items are treated as new if they reappear.
func (r *FingerprintRepository) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	if age <= 0 {
		return 0, fmt.Errorf("retention age must be positive, got %v", age)
	}
	cutoff := r.now().UTC().Add(-age)
	result := r.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&model.Fingerprint{})
	if result.Error != nil {
		return 0, storageError("purge fingerprints", result.Error)
	}
	return result.RowsAffected, nil
}

// Recent returns up to limit fingerprints, newest first
func (r *FingerprintRepository) Recent(ctx context.Context, limit int) ([]model.Fingerprint, error) {
	if limit <= 0 {
		return nil, nil
	}
	var out []model.Fingerprint
	err := r.db.WithContext(ctx).
		Where("content <> ''").
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, storageError("load recent fingerprints", err)
	}
	return out, nil
}

// Count returns the total number of stored fingerprints
func (r *FingerprintRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Fingerprint{}).Count(&count).Error; err != nil {
		return 0, storageError("count fingerprints", err)
	}
	return count, nil
}
