package channel

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"

	"digest-relay-go/internal/model"
)

var serviceMarkers = []string{"joined", "left the channel", "pinned"}

// serviceMarkerMaxRunes bounds the texts checked for service markers so real posts mentioning them survive
const serviceMarkerMaxRunes = 80

// ReaderConfig controls fetch depth and filtering
type ReaderConfig struct {
	InitialLimit  int
	RegularLimit  int
	MinTextLength int
	InfoTTL       time.Duration
	InfoCacheSize int
}

// Reader fetches the recent text posts of a source through a Client
type Reader struct {
	client Client
	cfg    ReaderConfig
	infos  *expirable.LRU[string, Info]
}

// NewReader creates a reader with an expiring channel info cache
func NewReader(client Client, cfg ReaderConfig) *Reader {
	if cfg.InitialLimit <= 0 {
		cfg.InitialLimit = 10
	}
	if cfg.RegularLimit <= 0 {
		cfg.RegularLimit = 20
	}
	if cfg.InfoCacheSize <= 0 {
		cfg.InfoCacheSize = 256
	}
	if cfg.InfoTTL <= 0 {
		cfg.InfoTTL = time.Hour
	}
	return &Reader{
		client: client,
		cfg:    cfg,
		infos:  expirable.NewLRU[string, Info](cfg.InfoCacheSize, nil, cfg.InfoTTL),
	}
}

// Depth returns the fetch depth for a source in its first run or in steady state
func (r *Reader) Depth(firstRun bool) int {
	if firstRun {
		return r.cfg.InitialLimit
	}
	return r.cfg.RegularLimit
}

// ReadRecent returns at most depth text items of the source, newest first.
// Every call refetches; the caller owns dedup.
func (r *Reader) ReadRecent(ctx context.Context, sourceID string, depth int) (Batch, error) {
	if depth <= 0 {
		return Batch{}, fmt.Errorf("read depth must be positive, got %d", depth)
	}

	info, err := r.resolve(ctx, sourceID)
	if err != nil {
		return Batch{}, err
	}

	messages, err := r.client.ReadHistory(ctx, info.ID, depth)
	if err != nil {
		return Batch{Info: info}, fmt.Errorf("read history of %s: %w", sourceID, err)
	}
	if len(messages) > depth {
		messages = messages[:depth]
	}

	batch := Batch{Info: info, Fetched: len(messages)}
	for _, msg := range messages {
		if msg.ID > batch.MaxItemID {
			batch.MaxItemID = msg.ID
		}
		text := strings.TrimSpace(msg.Text)
		if r.drop(msg, text) {
			continue
		}
		observed := msg.Date
		if observed.IsZero() {
			observed = time.Now()
		}
		batch.Items = append(batch.Items, model.Item{
			Text:           text,
			SourceID:       sourceID,
			PlatformItemID: msg.ID,
			ObservedAt:     observed,
		})
	}

	logrus.WithFields(logrus.Fields{
		"source_id": sourceID,
		"depth":     depth,
		"fetched":   batch.Fetched,
		"kept":      len(batch.Items),
	}).Debug("Read channel history")

	return batch, nil
}

// Forget drops the cached channel info of a source
func (r *Reader) Forget(sourceID string) {
	r.infos.Remove(sourceID)
}

func (r *Reader) resolve(ctx context.Context, sourceID string) (Info, error) {
	if info, ok := r.infos.Get(sourceID); ok {
		return info, nil
	}
	info, err := r.client.ChannelInfo(ctx, sourceID)
	if err != nil {
		return Info{}, fmt.Errorf("resolve %s: %w", sourceID, err)
	}
	if info.ID == "" {
		info.ID = sourceID
	}
	r.infos.Add(sourceID, info)
	return info, nil
}

func (r *Reader) drop(msg Message, text string) bool {
	if msg.Service || text == "" {
		return true
	}
	length := utf8.RuneCountInString(text)
	if length < r.cfg.MinTextLength {
		return true
	}
	if length <= serviceMarkerMaxRunes {
		lower := strings.ToLower(text)
		for _, marker := range serviceMarkers {
			if strings.Contains(lower, marker) {
				return true
			}
		}
	}
	return false
}
