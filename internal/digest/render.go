package digest

import (
	"fmt"
	"strings"

	"digest-relay-go/internal/model"
)

// SectionSeparator splits rendered sections; truncation cuts on it
const SectionSeparator = "\n\n"

var categoryLabels = map[model.Category]string{
	model.CategoryOzon:         "🔵 OZON",
	model.CategoryWildberries:  "🟣 WILDBERRIES",
	model.CategoryYandexMarket: "🟡 YANDEX MARKET",
	model.CategoryOther:        "⚪ OTHER",
}

// Render produces the plain-text post for a digest
func Render(d model.Digest) string {
	blocks := make([]string, 0, len(d.Sections)+2)

	var header strings.Builder
	fmt.Fprintf(&header, "📊 Marketplace digest %s", d.GeneratedAt.Format("02.01.2006"))
	if d.IsFallback {
		fmt.Fprintf(&header, "\n⚠ Fallback digest (source: %s)", d.FallbackOrigin)
	}
	if d.SummaryLine != "" {
		header.WriteString("\n" + d.SummaryLine)
	}
	blocks = append(blocks, header.String())

	for _, s := range d.Sections {
		var b strings.Builder
		label, ok := categoryLabels[s.Category]
		if !ok {
			label = string(s.Category)
		}
		b.WriteString(label)
		for _, p := range s.KeyPoints {
			b.WriteString("\n• " + p)
		}
		for _, h := range s.Highlights {
			b.WriteString("\n» " + h)
		}
		for _, a := range s.Advisories {
			b.WriteString("\n💡 " + a)
		}
		blocks = append(blocks, b.String())
	}

	blocks = append(blocks, fmt.Sprintf("📡 Sources: %d · Items: %d", d.SourceCount, d.ItemCount))
	return strings.Join(blocks, SectionSeparator)
}
