package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"digest-relay-go/internal/config"
	"digest-relay-go/internal/handler"
)

func previewServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/s/ozon_news" {
			http.NotFound(w, r)
			return
		}
		var b strings.Builder
		b.WriteString(`<html><body><div class="tgme_channel_info_header_title">Ozon News</div><section class="tgme_channel_history">`)
		for id := 1; id <= 3; id++ {
			fmt.Fprintf(&b, `<div class="tgme_widget_message" data-post="ozon_news/%d">
<div class="tgme_widget_message_text">Ozon seller update number %d about new fees</div>
<a class="tgme_widget_message_date"><time datetime="2024-03-0%dT10:00:00+00:00"></time></a>
</div>`, id, id, id)
		}
		b.WriteString(`</section></body></html>`)
		fmt.Fprint(w, b.String())
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, previewBase string) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)

	cfg.Database.Driver = "sqlite"
	cfg.Database.Path = "file::memory:"
	cfg.Telegram.PreviewBase = previewBase
	cfg.Telegram.RequestsPerSecond = 0
	cfg.Ingest.Sources = []string{"https://t.me/ozon_news", "@ozon_news"}
	cfg.Publish.Enabled = false
	return cfg
}

func TestConfigureLogging(t *testing.T) {
	assert.NoError(t, ConfigureLogging("debug"))
	assert.Error(t, ConfigureLogging("loud"))
	require.NoError(t, ConfigureLogging("info"))
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Ingest.Sources = nil

	_, err := New(cfg)
	assert.Error(t, err)
}

func TestRunOnceEndToEnd(t *testing.T) {
	srv := previewServer(t)
	a, err := New(testConfig(t, srv.URL))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	ctx := context.Background()

	first, err := a.RunOnce(ctx)
	require.NoError(t, err)
	require.Len(t, first.PerSourceStats, 1)
	assert.Equal(t, "ozon_news", first.PerSourceStats[0].SourceID)
	assert.True(t, first.PerSourceStats[0].IsFirstRun)
	assert.Equal(t, 3, first.NewItemsCount)
	assert.NotEmpty(t, first.DigestText)
	assert.Nil(t, first.PublishResult)

	second, err := a.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second.NewItemsCount)
	assert.False(t, second.PerSourceStats[0].IsFirstRun)
	assert.Equal(t, 3, second.PerSourceStats[0].Duplicates)

	purged, err := a.Purge(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, purged)

	w := httptest.NewRecorder()
	a.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/sources", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp handler.SourcesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Sources, 1)
	assert.EqualValues(t, 3, resp.Sources[0].LastItemID)
	assert.EqualValues(t, 3, resp.Fingerprints)
}
