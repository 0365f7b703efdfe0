// Package telegram adapts Telegram channels to the channel and publisher interfaces.
package telegram

import "strings"

var sourcePrefixes = []string{"https://", "http://", "t.me/", "telegram.me/", "s/", "@"}

// NormalizeSourceID reduces a channel link or handle to its bare username
func NormalizeSourceID(raw string) string {
	id := strings.TrimSpace(raw)
	for _, prefix := range sourcePrefixes {
		id = strings.TrimPrefix(id, prefix)
	}
	if i := strings.IndexAny(id, "/?#"); i >= 0 {
		id = id[:i]
	}
	return id
}
