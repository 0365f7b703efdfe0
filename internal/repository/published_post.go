package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"digest-relay-go/internal/model"
)

// PublishedPostRepository persists digests that reached the output channel
type PublishedPostRepository struct {
	db *gorm.DB
}

// NewPublishedPostRepository creates a published post store on top of gorm
func NewPublishedPostRepository(db *gorm.DB) *PublishedPostRepository {
	return &PublishedPostRepository{db: db}
}

// ExistsSince reports whether content with this hash was published after since
func (r *PublishedPostRepository) ExistsSince(ctx context.Context, contentHash string, since time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.PublishedPost{}).
		Where("content_hash = ? AND published_at > ?", contentHash, since.UTC()).
		Count(&count).Error
	if err != nil {
		return false, storageError("check published post", err)
	}
	return count > 0, nil
}

// Record stores a successful publication
func (r *PublishedPostRepository) Record(ctx context.Context, post model.PublishedPost) error {
	if post.PublishedAt.IsZero() {
		post.PublishedAt = time.Now()
	}
	post.PublishedAt = post.PublishedAt.UTC()
	if post.ContentHash == "" {
		post.ContentHash = ContentHash(post.Content)
	}
	if err := r.db.WithContext(ctx).Create(&post).Error; err != nil {
		return storageError("record published post", err)
	}
	return nil
}

// Latest returns up to limit publications, newest first
func (r *PublishedPostRepository) Latest(ctx context.Context, limit int) ([]model.PublishedPost, error) {
	var out []model.PublishedPost
	err := r.db.WithContext(ctx).Order("published_at DESC").Limit(limit).Find(&out).Error
	if err != nil {
		return nil, storageError("list published posts", err)
	}
	return out, nil
}
