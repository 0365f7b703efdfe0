package model

import "time"

// Item is a single text post read from a source; it is never persisted on its own
type Item struct {
	Text           string    `json:"text"`
	SourceID       string    `json:"source_id"`
	PlatformItemID int64     `json:"platform_item_id"`
	ObservedAt     time.Time `json:"observed_at"`
}

// ClassifiedItem is an item that survived dedup and got a category
type ClassifiedItem struct {
	Item
	Category Category `json:"category"`
}
