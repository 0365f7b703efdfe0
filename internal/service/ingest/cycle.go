// Package ingest runs the ingestion cycle: read every source, dedup, classify, build and publish a digest.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"digest-relay-go/internal/channel"
	"digest-relay-go/internal/digest"
	"digest-relay-go/internal/metrics"
	"digest-relay-go/internal/model"
	"digest-relay-go/internal/publisher"
)

// FingerprintStore is the dedup history
type FingerprintStore interface {
	InsertIfAbsent(ctx context.Context, item model.Item, category model.Category) (bool, error)
	PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error)
}

// CheckpointStore is the per-source progress
type CheckpointStore interface {
	Get(ctx context.Context, sourceID string) (model.SourceCheckpoint, bool, error)
	Advance(ctx context.Context, sourceID string, lastItemID, newItems int64, title string) (bool, error)
}

// SourceReader reads recent items of a source
type SourceReader interface {
	Depth(firstRun bool) int
	ReadRecent(ctx context.Context, sourceID string, depth int) (channel.Batch, error)
}

// Classifier assigns a category to an item
type Classifier interface {
	Classify(text, sourceID string) model.Category
}

// DigestBuilder folds new items into a digest
type DigestBuilder interface {
	Build(ctx context.Context, items []model.ClassifiedItem) (model.Digest, error)
}

// Publisher sends the rendered digest
type Publisher interface {
	Publish(ctx context.Context, text string, isFallback bool) (publisher.PublishResult, error)
}

// Config controls one cycle
type Config struct {
	Sources             []string
	Concurrency         int
	MaxAttempts         int
	RetryBackoff        time.Duration
	MaxRateLimitRetries int
	MaxRateLimitWait    time.Duration
	Retention           time.Duration
	PublishEnabled      bool
}

// Deps are the collaborators of a cycle
type Deps struct {
	Fingerprints FingerprintStore
	Checkpoints  CheckpointStore
	Reader       SourceReader
	Classifier   Classifier
	Builder      DigestBuilder
	Publisher    Publisher
	Metrics      *metrics.Metrics
}

const errCancelled = "cancelled"

// SourceStat reports what one source contributed to a cycle
type SourceStat struct {
	SourceID   string `json:"source_id"`
	Title      string `json:"title,omitempty"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
	ErrorKind  string `json:"error_kind,omitempty"`
	IsFirstRun bool   `json:"is_first_run"`
	Depth      int    `json:"depth"`
	Fetched    int    `json:"fetched"`
	NewItems   int    `json:"new_items"`
	Duplicates int    `json:"duplicates"`
	LastItemID int64  `json:"last_item_id"`
	Attempts   int    `json:"attempts"`
}

// CycleResult is the outcome of one cycle
type CycleResult struct {
	CycleID          string                   `json:"cycle_id"`
	StartedAt        time.Time                `json:"started_at"`
	FinishedAt       time.Time                `json:"finished_at"`
	NewItemsCount    int                      `json:"new_items_count"`
	PerSourceStats   []SourceStat             `json:"per_source_stats"`
	DigestIsFallback bool                     `json:"digest_is_fallback"`
	FallbackOrigin   model.FallbackOrigin     `json:"fallback_origin,omitempty"`
	DigestText       string                   `json:"digest_text,omitempty"`
	PublishResult    *publisher.PublishResult `json:"publish_result,omitempty"`
	Cancelled        bool                     `json:"cancelled"`
}

// Cycle is safe to run repeatedly; only new external content changes its effect
type Cycle struct {
	cfg  Config
	deps Deps
	now  func() time.Time
	wait func(ctx context.Context, d time.Duration) error
}

// NewCycle creates a cycle runner
func NewCycle(cfg Config, deps Deps) *Cycle {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.MaxRateLimitWait <= 0 {
		cfg.MaxRateLimitWait = 5 * time.Minute
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 30 * 24 * time.Hour
	}
	cfg.Sources = uniqueSources(cfg.Sources)
	return &Cycle{cfg: cfg, deps: deps, now: time.Now, wait: sleep}
}

// Sources returns the de-duplicated source list
func (c *Cycle) Sources() []string {
	return append([]string(nil), c.cfg.Sources...)
}

// Run reads every source, then builds and publishes one digest. Per-source
// failures end up in the stats; storage failures abort the cycle with an error.
func (c *Cycle) Run(ctx context.Context) (CycleResult, error) {
	result := CycleResult{
		CycleID:        uuid.NewString(),
		StartedAt:      c.now().UTC(),
		PerSourceStats: make([]SourceStat, len(c.cfg.Sources)),
	}
	log := logrus.WithField("cycle_id", result.CycleID)
	log.WithField("sources", len(c.cfg.Sources)).Info("Starting ingestion cycle")

	collected := make([][]model.ClassifiedItem, len(c.cfg.Sources))
	for i, source := range c.cfg.Sources {
		result.PerSourceStats[i] = SourceStat{SourceID: source, Error: errCancelled, ErrorKind: errCancelled}
	}

	process := func(ctx context.Context, i int) error {
		if ctx.Err() != nil {
			return nil
		}
		stat, items, err := c.processSource(ctx, log, c.cfg.Sources[i])
		result.PerSourceStats[i] = stat
		collected[i] = items
		return err
	}

	var fatal error
	if c.cfg.Concurrency == 1 {
		for i := range c.cfg.Sources {
			if fatal = process(ctx, i); fatal != nil {
				break
			}
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(c.cfg.Concurrency)
		for i := range c.cfg.Sources {
			i := i
			g.Go(func() error { return process(gctx, i) })
		}
		fatal = g.Wait()
	}

	var items []model.ClassifiedItem
	for _, batch := range collected {
		items = append(items, batch...)
	}
	result.NewItemsCount = len(items)

	if fatal != nil {
		return c.finish(log, result, "failed"), fmt.Errorf("ingestion cycle %s: %w", result.CycleID, fatal)
	}
	if ctx.Err() != nil {
		result.Cancelled = true
		log.Warn("Ingestion cycle cancelled, skipping digest")
		return c.finish(log, result, "cancelled"), nil
	}

	d, err := c.deps.Builder.Build(ctx, items)
	if err != nil {
		return c.finish(log, result, "failed"), fmt.Errorf("build digest: %w", err)
	}
	result.DigestIsFallback = d.IsFallback
	result.FallbackOrigin = d.FallbackOrigin
	result.DigestText = digest.Render(d)
	if d.IsFallback {
		c.deps.Metrics.Fallback(string(d.FallbackOrigin))
		log.WithField("origin", d.FallbackOrigin).Warn("Digest built from fallback content")
	}

	if !c.cfg.PublishEnabled {
		log.Info("Publishing disabled, digest not sent")
		return c.finish(log, result, "success"), nil
	}

	pr, err := c.deps.Publisher.Publish(ctx, result.DigestText, d.IsFallback)
	result.PublishResult = &pr
	if err != nil {
		return c.finish(log, result, "failed"), fmt.Errorf("publish digest: %w", err)
	}
	c.deps.Metrics.Published(string(pr.Reason))

	return c.finish(log, result, "success"), nil
}

func (c *Cycle) finish(log *logrus.Entry, result CycleResult, status string) CycleResult {
	result.FinishedAt = c.now().UTC()
	duration := result.FinishedAt.Sub(result.StartedAt)
	c.deps.Metrics.ObserveCycle(status, duration)

	fields := logrus.Fields{
		"status":      status,
		"new_items":   result.NewItemsCount,
		"is_fallback": result.DigestIsFallback,
		"duration":    duration.String(),
	}
	if result.PublishResult != nil {
		fields["reason"] = result.PublishResult.Reason
	}
	log.WithFields(fields).Info("Ingestion cycle finished")
	return result
}

// processSource reads one source and persists its progress. The returned
// error is set only for storage failures.
func (c *Cycle) processSource(ctx context.Context, log *logrus.Entry, source string) (SourceStat, []model.ClassifiedItem, error) {
	stat := SourceStat{SourceID: source}
	log = log.WithField("source_id", source)

	cp, found, err := c.deps.Checkpoints.Get(ctx, source)
	if err != nil {
		return c.storageFailure(ctx, stat, fmt.Errorf("load checkpoint of %s: %w", source, err))
	}
	stat.IsFirstRun = !found
	stat.Depth = c.deps.Reader.Depth(stat.IsFirstRun)
	stat.LastItemID = cp.LastItemID

	batch, attempts, err := c.readWithRetry(ctx, log, source, stat.Depth)
	stat.Attempts = attempts
	if err != nil {
		if ctx.Err() != nil {
			stat.Error, stat.ErrorKind = errCancelled, errCancelled
			return stat, nil, nil
		}
		stat.ErrorKind = string(channel.Classify(err))
		stat.Error = channel.Describe(err)
		c.deps.Metrics.SourceFailed(stat.ErrorKind)
		log.WithError(err).WithField("kind", stat.ErrorKind).Warn("Failed to read source")
		return stat, nil, nil
	}
	stat.Title = batch.Info.Title
	stat.Fetched = batch.Fetched

	var fresh []model.ClassifiedItem
	for _, it := range batch.Items {
		category := c.deps.Classifier.Classify(it.Text, it.SourceID)
		inserted, err := c.deps.Fingerprints.InsertIfAbsent(ctx, it, category)
		if err != nil {
			return c.storageFailure(ctx, stat, fmt.Errorf("fingerprint item %d of %s: %w", it.PlatformItemID, source, err))
		}
		if !inserted {
			stat.Duplicates++
			continue
		}
		fresh = append(fresh, model.ClassifiedItem{Item: it, Category: category})
		log.WithFields(logrus.Fields{
			"item_id":  it.PlatformItemID,
			"category": category,
		}).Debug("New item")
	}
	stat.NewItems = len(fresh)

	lastID := batch.MaxItemID
	if cp.LastItemID > lastID {
		lastID = cp.LastItemID
	}
	if _, err := c.deps.Checkpoints.Advance(ctx, source, lastID, int64(len(fresh)), batch.Info.Title); err != nil {
		return c.storageFailure(ctx, stat, fmt.Errorf("advance checkpoint of %s: %w", source, err))
	}
	stat.LastItemID = lastID
	stat.Success = true

	c.deps.Metrics.ObserveSource(source, stat.Fetched, stat.NewItems, stat.Duplicates)
	log.WithFields(logrus.Fields{
		"fetched":      stat.Fetched,
		"new_items":    stat.NewItems,
		"duplicates":   stat.Duplicates,
		"last_item_id": stat.LastItemID,
		"first_run":    stat.IsFirstRun,
	}).Info("Source processed")

	return stat, fresh, nil
}

// storageFailure aborts the cycle unless the failure is the cancellation surfacing through the store
func (c *Cycle) storageFailure(ctx context.Context, stat SourceStat, err error) (SourceStat, []model.ClassifiedItem, error) {
	if ctx.Err() != nil {
		stat.Success = false
		stat.Error, stat.ErrorKind = errCancelled, errCancelled
		return stat, nil, nil
	}
	return stat, nil, err
}

// readWithRetry waits out rate limits exactly as asked and retries transient
// failures with linear backoff. Other failures are returned at once.
func (c *Cycle) readWithRetry(ctx context.Context, log *logrus.Entry, source string, depth int) (channel.Batch, int, error) {
	attempts, rateLimited, transient := 0, 0, 0
	for {
		attempts++
		batch, err := c.deps.Reader.ReadRecent(ctx, source, depth)
		if err == nil {
			return batch, attempts, nil
		}

		var wait time.Duration
		switch channel.Classify(err) {
		case channel.KindRateLimited:
			retryAfter, _ := channel.RetryAfter(err)
			if rateLimited >= c.cfg.MaxRateLimitRetries || retryAfter > c.cfg.MaxRateLimitWait {
				return batch, attempts, err
			}
			rateLimited++
			wait = retryAfter
		case channel.KindTransient:
			transient++
			if transient >= c.cfg.MaxAttempts {
				return batch, attempts, err
			}
			wait = c.cfg.RetryBackoff * time.Duration(transient)
		default:
			return batch, attempts, err
		}

		log.WithError(err).WithFields(logrus.Fields{
			"attempt": attempts,
			"wait":    wait.String(),
		}).Warn("Retrying source read")
		if err := c.wait(ctx, wait); err != nil {
			return batch, attempts, err
		}
	}
}

// Purge removes fingerprints older than the retention period
func (c *Cycle) Purge(ctx context.Context) (int64, error) {
	n, err := c.deps.Fingerprints.PurgeOlderThan(ctx, c.cfg.Retention)
	if err != nil {
		return 0, fmt.Errorf("purge fingerprints: %w", err)
	}
	c.deps.Metrics.Purged(n)
	logrus.WithFields(logrus.Fields{
		"purged":    n,
		"retention": c.cfg.Retention.String(),
	}).Info("Fingerprint retention completed")
	return n, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func uniqueSources(sources []string) []string {
	seen := make(map[string]struct{}, len(sources))
	out := make([]string, 0, len(sources))
	for _, s := range sources {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
