// Package digest folds classified items into a categorized summary and renders it as text.
package digest

import (
	"context"
	_ "embed"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"digest-relay-go/internal/model"
)

//go:embed fallback.yaml
var fallbackData []byte

const highlightRunes = 280

// HistorySource provides previously stored items for fallback digests
type HistorySource interface {
	Recent(ctx context.Context, limit int) ([]model.Fingerprint, error)
}

// Config controls digest aggregation
type Config struct {
	FallbackThreshold   int
	HistoryLimit        int
	MaxItemsPerCategory int
	MaxHighlights       int
	KeyPointRunes       int
	// Advisories overrides the built-in notes; keys are category names in any case
	Advisories map[string][]string
}

type example struct {
	Category model.Category `yaml:"category"`
	Text     string         `yaml:"text"`
}

type fallbackFile struct {
	Examples   []example           `yaml:"examples"`
	Advisories map[string][]string `yaml:"advisories"`
}

// Builder turns classified items into a Digest
type Builder struct {
	cfg        Config
	history    HistorySource
	reducer    *reducer
	examples   []model.ClassifiedItem
	advisories map[model.Category][]string
	now        func() time.Time
}

// NewBuilder creates a builder; history may be nil to skip the stored-history fallback
func NewBuilder(cfg Config, history HistorySource) (*Builder, error) {
	if cfg.FallbackThreshold < 0 {
		return nil, fmt.Errorf("fallback threshold must not be negative")
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 10
	}
	if cfg.MaxItemsPerCategory <= 0 {
		cfg.MaxItemsPerCategory = 3
	}
	if cfg.MaxHighlights < 0 {
		cfg.MaxHighlights = 0
	}
	if cfg.KeyPointRunes <= 0 {
		cfg.KeyPointRunes = 160
	}

	var file fallbackFile
	if err := yaml.Unmarshal(fallbackData, &file); err != nil {
		return nil, fmt.Errorf("parse built-in fallback content: %w", err)
	}

	b := &Builder{
		cfg:        cfg,
		history:    history,
		reducer:    newReducer(),
		advisories: make(map[model.Category][]string),
		now:        time.Now,
	}

	base := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, ex := range file.Examples {
		category, err := model.ParseCategory(string(ex.Category))
		if err != nil {
			return nil, fmt.Errorf("built-in example %d: %w", i, err)
		}
		b.examples = append(b.examples, model.ClassifiedItem{
			Item: model.Item{
				Text:     ex.Text,
				SourceID: "builtin",
				// Earlier examples rank as more recent
				ObservedAt: base.Add(-time.Duration(i) * time.Minute),
			},
			Category: category,
		})
	}

	if err := b.loadAdvisories(file.Advisories); err != nil {
		return nil, err
	}
	if err := b.loadAdvisories(cfg.Advisories); err != nil {
		return nil, err
	}

	return b, nil
}

// WithClock overrides the time source
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

func (b *Builder) loadAdvisories(notes map[string][]string) error {
	for name, list := range notes {
		category, err := model.ParseCategory(strings.ToUpper(name))
		if err != nil {
			return fmt.Errorf("advisories: %w", err)
		}
		if len(list) > 2 {
			list = list[:2]
		}
		b.advisories[category] = list
	}
	return nil
}

// Build aggregates items into a digest. Too few items, or items that reduce
// to nothing, switch to stored history and then to built-in examples.
func (b *Builder) Build(ctx context.Context, items []model.ClassifiedItem) (model.Digest, error) {
	if len(items) >= b.cfg.FallbackThreshold {
		if d, ok := b.assemble(items); ok {
			return d, nil
		}
	}

	logrus.WithFields(logrus.Fields{
		"new_items": len(items),
		"threshold": b.cfg.FallbackThreshold,
	}).Warn("Not enough fresh items, building fallback digest")

	if b.history != nil {
		history, err := b.loadHistory(ctx)
		if err != nil {
			logrus.WithError(err).Warn("Failed to load history for fallback digest")
		} else if d, ok := b.assemble(history); ok {
			d.IsFallback = true
			d.FallbackOrigin = model.FallbackHistory
			return d, nil
		}
	}

	d, ok := b.assemble(b.examples)
	if !ok {
		return model.Digest{}, fmt.Errorf("no content available for fallback digest")
	}
	d.IsFallback = true
	d.FallbackOrigin = model.FallbackBuiltin
	return d, nil
}

func (b *Builder) loadHistory(ctx context.Context) ([]model.ClassifiedItem, error) {
	fingerprints, err := b.history.Recent(ctx, b.cfg.HistoryLimit)
	if err != nil {
		return nil, err
	}
	out := make([]model.ClassifiedItem, 0, len(fingerprints))
	for _, fp := range fingerprints {
		category, err := model.ParseCategory(string(fp.Category))
		if err != nil {
			category = model.CategoryOther
		}
		out = append(out, model.ClassifiedItem{
			Item: model.Item{
				Text:           fp.Content,
				SourceID:       fp.SourceID,
				PlatformItemID: fp.PlatformItemID,
				ObservedAt:     fp.CreatedAt,
			},
			Category: category,
		})
	}
	return out, nil
}

// assemble builds sections in category order; ok is false when every section is empty
func (b *Builder) assemble(items []model.ClassifiedItem) (model.Digest, bool) {
	byCategory := make(map[model.Category][]model.ClassifiedItem)
	for _, it := range items {
		byCategory[it.Category] = append(byCategory[it.Category], it)
	}

	d := model.Digest{GeneratedAt: b.now().UTC()}
	sources := make(map[string]struct{})

	for _, category := range model.Categories {
		group := byCategory[category]
		if len(group) == 0 {
			continue
		}
		sort.SliceStable(group, func(i, j int) bool {
			if !group[i].ObservedAt.Equal(group[j].ObservedAt) {
				return group[i].ObservedAt.After(group[j].ObservedAt)
			}
			return group[i].PlatformItemID > group[j].PlatformItemID
		})

		section := model.Section{Category: category}
		used := 0
		for _, it := range group {
			if used == b.cfg.MaxItemsPerCategory {
				break
			}
			point := b.reducer.keyPoint(it.Text, b.cfg.KeyPointRunes)
			if point == "" {
				continue
			}
			used++
			section.KeyPoints = append(section.KeyPoints, point)
			if len(section.Highlights) < b.cfg.MaxHighlights {
				section.Highlights = append(section.Highlights, b.reducer.highlight(it.Text, highlightRunes))
			}
			sources[it.SourceID] = struct{}{}
			d.ItemCount++
		}
		if used == 0 {
			continue
		}
		section.Advisories = append([]string(nil), b.advisories[category]...)
		d.Sections = append(d.Sections, section)
	}

	if len(d.Sections) == 0 {
		return model.Digest{}, false
	}
	d.SourceCount = len(sources)
	d.SummaryLine = fmt.Sprintf("%d posts from %d sources in %d categories", d.ItemCount, d.SourceCount, len(d.Sections))
	return d, true
}
