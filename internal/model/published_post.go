package model

import "time"

// PublishedPost records a digest that reached the output channel
type PublishedPost struct {
	ID          uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	TargetID    string    `json:"target_id" gorm:"type:varchar(255);not null"`
	ContentHash string    `json:"content_hash" gorm:"type:char(64);not null;index:idx_published_hash_time,priority:1"`
	Content     string    `json:"content" gorm:"type:text;not null"`
	IsFallback  bool      `json:"is_fallback"`
	PublishedAt time.Time `json:"published_at" gorm:"not null;index:idx_published_hash_time,priority:2"`
}

// TableName specifies the table name for PublishedPost
func (PublishedPost) TableName() string {
	return "published_posts"
}
