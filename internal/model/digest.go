package model

import "time"

// FallbackOrigin tells where fallback digest content came from
type FallbackOrigin string

const (
	FallbackNone    FallbackOrigin = ""
	FallbackHistory FallbackOrigin = "history"
	FallbackBuiltin FallbackOrigin = "builtin"
)

// Section holds the aggregated content of one category
type Section struct {
	Category   Category `json:"category"`
	KeyPoints  []string `json:"key_points"`
	Highlights []string `json:"highlights"`
	Advisories []string `json:"advisories"`
}

// Digest is the structured summary handed to the publisher
type Digest struct {
	Sections       []Section      `json:"sections"`
	SummaryLine    string         `json:"summary_line"`
	SourceCount    int            `json:"source_count"`
	ItemCount      int            `json:"item_count"`
	GeneratedAt    time.Time      `json:"generated_at"`
	IsFallback     bool           `json:"is_fallback"`
	FallbackOrigin FallbackOrigin `json:"fallback_origin,omitempty"`
}

// Section returns the section for a category, if present
func (d Digest) Section(c Category) (Section, bool) {
	for _, s := range d.Sections {
		if s.Category == c {
			return s, true
		}
	}
	return Section{}, false
}
