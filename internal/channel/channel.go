// Package channel reads recent posts from messaging-platform channels.
package channel

import (
	"context"
	"time"

	"digest-relay-go/internal/model"
)

// Client is the platform capability the reader needs.
// Adapters translate platform failures into the errors of this package.
type Client interface {
	ChannelInfo(ctx context.Context, sourceID string) (Info, error)
	ReadHistory(ctx context.Context, channelID string, limit int) ([]Message, error)
}

// Info describes a resolved channel
type Info struct {
	ID       string
	Username string
	Title    string
}

// Message is a raw platform message, newest first in history results
type Message struct {
	ID      int64
	Text    string
	Date    time.Time
	Service bool
}

// Batch is the result of one read of a source
type Batch struct {
	Info  Info
	Items []model.Item
	// Fetched counts every message returned by the platform, dropped ones included
	Fetched int
	// MaxItemID is the highest message id seen in this read, dropped ones included
	MaxItemID int64
}
