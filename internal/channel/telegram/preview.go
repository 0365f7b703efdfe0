package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"digest-relay-go/internal/channel"
)

const (
	defaultPreviewBase = "https://t.me"
	defaultRetryAfter  = 30 * time.Second
	// maxPages bounds pagination when the preview keeps returning the same page
	maxPages = 20
	// a page fetched by ChannelInfo is handed to the next ReadHistory of that channel
	firstPageTTL  = 30 * time.Second
	firstPageSize = 64
)

// PreviewClient reads public channels through the t.me/s/<name> web preview
type PreviewClient struct {
	client     *http.Client
	base       string
	limiter    *rate.Limiter
	firstPages *expirable.LRU[string, *goquery.Document]
}

// NewPreviewClient wires an HTTP client; requestsPerSecond <= 0 disables pacing
func NewPreviewClient(client *http.Client, base string, requestsPerSecond float64) *PreviewClient {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	if base == "" {
		base = defaultPreviewBase
	}
	limit := rate.Inf
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
	}
	return &PreviewClient{
		client:     client,
		base:       strings.TrimSuffix(base, "/"),
		limiter:    rate.NewLimiter(limit, 1),
		firstPages: expirable.NewLRU[string, *goquery.Document](firstPageSize, nil, firstPageTTL),
	}
}

// ChannelInfo resolves the channel title from the preview header
func (p *PreviewClient) ChannelInfo(ctx context.Context, sourceID string) (channel.Info, error) {
	name := NormalizeSourceID(sourceID)
	if name == "" {
		return channel.Info{}, fmt.Errorf("%w: empty channel name", channel.ErrSourceNotFound)
	}

	doc, err := p.fetch(ctx, name, 0)
	if err != nil {
		return channel.Info{}, err
	}

	header := doc.Find(".tgme_channel_info_header_title").First()
	if header.Length() == 0 {
		return channel.Info{}, fmt.Errorf("%w: no channel header for %s", channel.ErrSourceNotFound, name)
	}
	if !hasHistory(doc) {
		return channel.Info{}, fmt.Errorf("%w: %s has no public message stream", channel.ErrSourceUnavailable, name)
	}
	p.firstPages.Add(name, doc)

	username := strings.TrimPrefix(strings.TrimSpace(doc.Find(".tgme_channel_info_header_username").First().Text()), "@")
	if username == "" {
		username = name
	}

	return channel.Info{
		ID:       name,
		Username: username,
		Title:    strings.TrimSpace(header.Text()),
	}, nil
}

// ReadHistory pages backwards with ?before= until limit messages are collected, newest first
func (p *PreviewClient) ReadHistory(ctx context.Context, channelID string, limit int) ([]channel.Message, error) {
	name := NormalizeSourceID(channelID)
	seen := make(map[int64]struct{})
	var collected []channel.Message

	var before int64
	for page := 0; page < maxPages && len(collected) < limit; page++ {
		doc, err := p.page(ctx, name, before)
		if err != nil {
			return nil, err
		}
		if page == 0 && !hasHistory(doc) {
			return nil, fmt.Errorf("%w: %s has no public message stream", channel.ErrSourceUnavailable, name)
		}

		messages := extractMessages(doc)
		oldest := before
		added := 0
		for _, msg := range messages {
			if _, ok := seen[msg.ID]; ok {
				continue
			}
			if before > 0 && msg.ID >= before {
				continue
			}
			seen[msg.ID] = struct{}{}
			collected = append(collected, msg)
			added++
			if oldest == 0 || msg.ID < oldest {
				oldest = msg.ID
			}
		}

		if added == 0 || oldest <= 1 {
			break
		}
		before = oldest
	}

	sort.Slice(collected, func(i, j int) bool { return collected[i].ID > collected[j].ID })
	if len(collected) > limit {
		collected = collected[:limit]
	}

	logrus.WithFields(logrus.Fields{
		"source_id": name,
		"limit":     limit,
		"collected": len(collected),
	}).Debug("Fetched preview history")

	return collected, nil
}

// page returns the cached first page when ChannelInfo just fetched it
func (p *PreviewClient) page(ctx context.Context, name string, before int64) (*goquery.Document, error) {
	if before == 0 {
		if doc, ok := p.firstPages.Get(name); ok {
			p.firstPages.Remove(name)
			return doc, nil
		}
	}
	return p.fetch(ctx, name, before)
}

func hasHistory(doc *goquery.Document) bool {
	return doc.Find(".tgme_channel_history").Length() > 0
}

func (p *PreviewClient) fetch(ctx context.Context, name string, before int64) (*goquery.Document, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	pageURL := p.base + "/s/" + url.PathEscape(name)
	if before > 0 {
		pageURL += "?before=" + strconv.FormatInt(before, 10)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "digest-relay/1.0")

	resp, err := p.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: request preview: %v", channel.ErrTransient, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", channel.ErrSourceNotFound, name)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &channel.RateLimitedError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"))}
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: preview returned %s", channel.ErrTransient, resp.Status)
	default:
		return nil, fmt.Errorf("preview returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, fmt.Errorf("%w: read preview: %v", channel.ErrTransient, err)
		}
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return doc, nil
}

func extractMessages(doc *goquery.Document) []channel.Message {
	var out []channel.Message
	doc.Find(".tgme_widget_message[data-post]").Each(func(_ int, sel *goquery.Selection) {
		post, _ := sel.Attr("data-post")
		id, err := parsePostID(post)
		if err != nil {
			return
		}

		msg := channel.Message{
			ID:      id,
			Service: sel.HasClass("service_message"),
		}

		textSel := sel.Find(".tgme_widget_message_text").First()
		if textSel.Length() > 0 {
			textSel.Find("br").ReplaceWithHtml("\n")
			msg.Text = strings.TrimSpace(textSel.Text())
		}

		if datetime, ok := sel.Find(".tgme_widget_message_date time").First().Attr("datetime"); ok {
			if ts, err := time.Parse(time.RFC3339, datetime); err == nil {
				msg.Date = ts.UTC()
			}
		}

		out = append(out, msg)
	})
	return out
}

func parsePostID(post string) (int64, error) {
	idx := strings.LastIndex(post, "/")
	if idx < 0 {
		return 0, fmt.Errorf("malformed post reference %q", post)
	}
	return strconv.ParseInt(post[idx+1:], 10, 64)
}

func parseRetryAfter(value string) time.Duration {
	seconds, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || seconds < 0 {
		return defaultRetryAfter
	}
	return time.Duration(seconds) * time.Second
}
