package publisher

import (
	"strings"
	"unicode/utf8"
)

// TruncationMarker is appended to shortened content
const TruncationMarker = "\n\n… (digest truncated)"

const sectionBoundary = "\n\n"

// MinMessageSize is the smallest limit that leaves room for margin and the marker
func MinMessageSize(margin int) int {
	return margin + utf8.RuneCountInString(TruncationMarker) + 1
}

// Truncate shortens text to at most limit runes. It prefers to cut between
// sections and otherwise cuts limit-margin runes in. A limit that cannot hold
// the marker yields a bare cut; config validation keeps limits at or above
// MinMessageSize.
func Truncate(text string, limit, margin int) (string, bool) {
	runes := []rune(text)
	if len(runes) <= limit {
		return text, false
	}

	markerLen := utf8.RuneCountInString(TruncationMarker)
	budget := limit - markerLen
	if budget <= 0 {
		return string(runes[:limit]), true
	}

	head := string(runes[:budget])
	if idx := strings.LastIndex(head, sectionBoundary); idx > 0 {
		if kept := strings.TrimRight(head[:idx], " \n"); kept != "" {
			return kept + TruncationMarker, true
		}
	}

	cut := limit - margin
	if cut > budget {
		cut = budget
	}
	if cut < 0 {
		cut = 0
	}
	return strings.TrimRight(string(runes[:cut]), " \n") + TruncationMarker, true
}
