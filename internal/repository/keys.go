package repository

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// maxStoredContentRunes caps the text kept next to a fingerprint for fallback history
const maxStoredContentRunes = 2000

// NormalizeText folds case and collapses every run of non-alphanumeric runes
// into one space, so whitespace and punctuation drift does not defeat dedup.
func NormalizeText(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	pendingSpace := false
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSpace && b.Len() > 0 {
				b.WriteByte(' ')
			}
			pendingSpace = false
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		pendingSpace = true
	}
	return b.String()
}

// FingerprintKey is the dedup key of a (content, source) pair
func FingerprintKey(text, sourceID string) string {
	sum := sha256.Sum256([]byte(NormalizeText(text) + "\x00" + sourceID))
	return hex.EncodeToString(sum[:])
}

// ContentHash hashes exact published content for the duplicate window check
func ContentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func collapseSpace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func truncateRunes(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
