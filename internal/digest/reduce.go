package digest

import (
	"html"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

const ellipsis = "…"

var (
	urlExpr     = regexp.MustCompile(`(?i)\b(?:https?://|www\.|t\.me/)\S+`)
	mentionExpr = regexp.MustCompile(`[@#][\p{L}\p{N}_]+`)
	// a sentence ends at terminal punctuation followed by whitespace
	sentenceEnd = regexp.MustCompile(`[.!?…](?:\s|$)`)
)

// reducer turns raw post text into short plain strings
type reducer struct {
	policy *bluemonday.Policy
}

func newReducer() *reducer {
	return &reducer{policy: bluemonday.StrictPolicy()}
}

// clean strips markup, links, mentions, tags and non-linguistic symbols.
// Line breaks survive so the first line can be told apart.
func (r *reducer) clean(text string) string {
	text = html.UnescapeString(r.policy.Sanitize(text))
	text = urlExpr.ReplaceAllString(text, " ")
	text = mentionExpr.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.Map(keepLinguistic, line)
		line = strings.Join(strings.Fields(line), " ")
		line = strings.Trim(line, " -:;,")
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

// keyPoint is the first clause of the first line, capped on a word boundary
func (r *reducer) keyPoint(text string, limit int) string {
	cleaned := r.clean(text)
	if cleaned == "" {
		return ""
	}
	first, _, _ := strings.Cut(cleaned, "\n")
	if loc := sentenceEnd.FindStringIndex(first); loc != nil {
		end := loc[0] + utf8.RuneLen([]rune(first[loc[0]:])[0])
		first = first[:end]
	}
	return capRunes(strings.TrimSpace(first), limit)
}

// highlight is the whole cleaned text on one line, capped on a word boundary
func (r *reducer) highlight(text string, limit int) string {
	cleaned := strings.ReplaceAll(r.clean(text), "\n", " ")
	return capRunes(cleaned, limit)
}

func keepLinguistic(r rune) rune {
	switch {
	case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsSpace(r):
		return r
	case strings.ContainsRune(".,!?:;-–—()%\"'«»…/+&", r):
		return r
	case r == '₽' || r == '$' || r == '€':
		return r
	default:
		return -1
	}
}

// capRunes shortens s to at most limit runes, cutting at the last space and appending an ellipsis
func capRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	cut := runes[:limit-1]
	if i := lastSpace(cut); i > len(cut)/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(string(cut), " ,;:-") + ellipsis
}

func lastSpace(runes []rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if unicode.IsSpace(runes[i]) {
			return i
		}
	}
	return -1
}
