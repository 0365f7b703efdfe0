package model

import (
	"time"
)

// Fingerprint is the persisted dedup record of one (content, source) pair
type Fingerprint struct {
	ID             uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	SourceID       string    `json:"source_id" gorm:"type:varchar(255);not null;uniqueIndex:ux_fingerprint_source_key,priority:1"`
	KeyHash        string    `json:"key_hash" gorm:"type:char(64);not null;uniqueIndex:ux_fingerprint_source_key,priority:2"`
	Category       Category  `json:"category" gorm:"type:varchar(32);not null"`
	Content        string    `json:"content" gorm:"type:text"`
	PlatformItemID int64     `json:"platform_item_id"`
	ObservedAt     time.Time `json:"observed_at"`
	CreatedAt      time.Time `json:"created_at" gorm:"index"`
}

// TableName specifies the table name for Fingerprint
func (Fingerprint) TableName() string {
	return "fingerprints"
}
