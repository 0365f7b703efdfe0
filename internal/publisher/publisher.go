// Package publisher sends digests to the output channel at most once per content per window.
package publisher

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"digest-relay-go/internal/model"
	"digest-relay-go/internal/repository"
)

// Sender delivers a message to the output channel
type Sender interface {
	SendMessage(ctx context.Context, target, text string) error
}

// PostStore is the published post history the duplicate window is checked against
type PostStore interface {
	ExistsSince(ctx context.Context, contentHash string, since time.Time) (bool, error)
	Record(ctx context.Context, post model.PublishedPost) error
}

// Reason is the outcome of a publish attempt
type Reason string

const (
	ReasonSent            Reason = "sent"
	ReasonDuplicateWindow Reason = "duplicate_window"
	ReasonTransportError  Reason = "transport_error"
	ReasonEmptyContent    Reason = "empty_content"
)

// PublishResult describes what happened to one digest
type PublishResult struct {
	Sent      bool   `json:"sent"`
	Reason    Reason `json:"reason"`
	Truncated bool   `json:"truncated"`
	Content   string `json:"content"`
	Error     string `json:"error,omitempty"`
}

// Config controls publication limits
type Config struct {
	Target          string
	MaxMessageSize  int
	SafetyMargin    int
	DuplicateWindow time.Duration
}

// Publisher runs truncate, duplicate check, send and record as one serialized sequence
type Publisher struct {
	cfg    Config
	sender Sender
	store  PostStore
	now    func() time.Time
	mu     sync.Mutex
}

// New creates a publisher
func New(cfg Config, sender Sender, store PostStore) *Publisher {
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 4096
	}
	if cfg.SafetyMargin <= 0 {
		cfg.SafetyMargin = 100
	}
	if cfg.DuplicateWindow <= 0 {
		cfg.DuplicateWindow = 24 * time.Hour
	}
	return &Publisher{cfg: cfg, sender: sender, store: store, now: time.Now}
}

// WithClock overrides the time source
func (p *Publisher) WithClock(now func() time.Time) *Publisher {
	p.now = now
	return p
}

// Publish sends text unless identical content went out within the duplicate window.
// Transport failures are reported in the result; storage failures are returned as errors.
func (p *Publisher) Publish(ctx context.Context, text string, isFallback bool) (PublishResult, error) {
	if strings.TrimSpace(text) == "" {
		return PublishResult{Reason: ReasonEmptyContent}, nil
	}

	content, truncated := Truncate(text, p.cfg.MaxMessageSize, p.cfg.SafetyMargin)
	result := PublishResult{Truncated: truncated, Content: content}
	hash := repository.ContentHash(content)

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	exists, err := p.store.ExistsSince(ctx, hash, now.Add(-p.cfg.DuplicateWindow))
	if err != nil {
		return result, fmt.Errorf("check duplicate window: %w", err)
	}
	if exists {
		result.Reason = ReasonDuplicateWindow
		logrus.WithField("reason", result.Reason).Info("Identical digest already published, skipping")
		return result, nil
	}

	// The send happens before the record; a crash in between resends next cycle
	if err := p.sender.SendMessage(ctx, p.cfg.Target, content); err != nil {
		result.Reason = ReasonTransportError
		result.Error = err.Error()
		logrus.WithFields(logrus.Fields{
			"reason": result.Reason,
			"target": p.cfg.Target,
		}).WithError(err).Error("Failed to publish digest")
		return result, nil
	}
	result.Sent = true
	result.Reason = ReasonSent

	err = p.store.Record(ctx, model.PublishedPost{
		TargetID:    p.cfg.Target,
		ContentHash: hash,
		Content:     content,
		IsFallback:  isFallback,
		PublishedAt: now,
	})
	if err != nil {
		return result, fmt.Errorf("record published post: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"reason":      result.Reason,
		"target":      p.cfg.Target,
		"truncated":   truncated,
		"is_fallback": isFallback,
	}).Info("Digest published")
	return result, nil
}
