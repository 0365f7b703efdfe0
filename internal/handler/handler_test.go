package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"digest-relay-go/internal/db"
	"digest-relay-go/internal/metrics"
	"digest-relay-go/internal/model"
	"digest-relay-go/internal/publisher"
	"digest-relay-go/internal/repository"
	"digest-relay-go/internal/scheduler"
	"digest-relay-go/internal/service/ingest"
)

type fakeScheduler struct {
	running bool
	runErr  error
	last    *ingest.CycleResult
	runs    int
}

func (f *fakeScheduler) Start() error {
	if f.running {
		return errors.New("scheduler is already running")
	}
	f.running = true
	return nil
}

func (f *fakeScheduler) Stop() error {
	f.running = false
	return nil
}

func (f *fakeScheduler) IsRunning() bool { return f.running }

func (f *fakeScheduler) RunOnce(ctx context.Context) (ingest.CycleResult, error) {
	f.runs++
	result := ingest.CycleResult{CycleID: "c-1", NewItemsCount: 2}
	if f.runErr == nil {
		f.last = &result
	}
	return result, f.runErr
}

func (f *fakeScheduler) GetNextRun() time.Time { return time.Date(2024, 3, 4, 11, 0, 0, 0, time.UTC) }

func (f *fakeScheduler) GetLastRun() time.Time {
	if f.last == nil {
		return time.Time{}
	}
	return time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)
}

func (f *fakeScheduler) LastResult() (*ingest.CycleResult, error) { return f.last, nil }

type testServer struct {
	router      *gin.Engine
	sched       *fakeScheduler
	checkpoints *repository.CheckpointRepository
	forgotten   []string
	pingErr     error
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gdb, err := db.OpenMemory()
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	metrics.NewMetrics(reg).Published("sent")

	ts := &testServer{
		router:      gin.New(),
		sched:       &fakeScheduler{},
		checkpoints: repository.NewCheckpointRepository(gdb),
	}
	fingerprints := repository.NewFingerprintRepository(gdb)
	_, err = fingerprints.InsertIfAbsent(context.Background(),
		model.Item{Text: "ozon fee update", SourceID: "ozon_news", PlatformItemID: 1, ObservedAt: time.Now()},
		model.CategoryOzon)
	require.NoError(t, err)

	h := NewHandlers(Deps{
		Ping:         func() error { return ts.pingErr },
		Scheduler:    ts.sched,
		Checkpoints:  ts.checkpoints,
		Fingerprints: fingerprints,
		Forget:       func(id string) { ts.forgotten = append(ts.forgotten, id) },
		Sources:      []string{"ozon_news", "wb_news"},
		Gatherer:     reg,
	})
	h.SetupRoutes(ts.router)
	return ts
}

func (ts *testServer) do(method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, nil)
	ts.router.ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "stopped", resp.Scheduler)
	assert.Nil(t, resp.NextRun)

	ts.pingErr = errors.New("connection refused")
	w = ts.do(http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "digest_relay_publish_results_total")
}

func TestSchedulerEndpoints(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodPost, "/api/v1/scheduler/start")
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, ts.sched.running)

	var started SchedulerStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &started))
	assert.Equal(t, "running", started.Status)
	require.NotNil(t, started.NextCycle)

	w = ts.do(http.MethodPost, "/api/v1/scheduler/start")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = ts.do(http.MethodPost, "/api/v1/scheduler/stop")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, ts.sched.running)
}

func TestSchedulerStatusSummarizesLastCycle(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodGet, "/api/v1/scheduler/status")
	require.Equal(t, http.StatusOK, w.Code)
	var status SchedulerStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, "stopped", status.Status)
	assert.Nil(t, status.LastCycle)
	assert.Nil(t, status.LastResult)

	ts.sched.last = &ingest.CycleResult{
		CycleID:          "c-9",
		NewItemsCount:    4,
		DigestIsFallback: true,
		PerSourceStats: []ingest.SourceStat{
			{SourceID: "ozon_news", Success: true},
			{SourceID: "closed", Error: "Private channel"},
		},
		PublishResult: &publisher.PublishResult{Reason: publisher.ReasonDuplicateWindow},
	}

	w = ts.do(http.MethodGet, "/api/v1/scheduler/status")
	require.Equal(t, http.StatusOK, w.Code)
	status = SchedulerStatusResponse{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	require.NotNil(t, status.LastCycle)
	require.NotNil(t, status.LastResult)
	assert.Equal(t, "c-9", status.LastResult.CycleID)
	assert.Equal(t, 4, status.LastResult.NewItems)
	assert.Equal(t, 1, status.LastResult.FailedSources)
	assert.True(t, status.LastResult.DigestIsFallback)
	assert.Equal(t, "duplicate_window", status.LastResult.PublishReason)
}

func TestRunCycle(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodGet, "/api/v1/cycles/last")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(http.MethodPost, "/api/v1/cycles")
	require.Equal(t, http.StatusOK, w.Code)

	var result ingest.CycleResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "c-1", result.CycleID)
	assert.Equal(t, 2, result.NewItemsCount)

	w = ts.do(http.MethodGet, "/api/v1/cycles/last")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"cycle_id":"c-1"`)
}

func TestRunCycleConflict(t *testing.T) {
	ts := newTestServer(t)
	ts.sched.runErr = scheduler.ErrCycleRunning

	w := ts.do(http.MethodPost, "/api/v1/cycles")
	assert.Equal(t, http.StatusConflict, w.Code)

	ts.sched.runErr = errors.New("storage failed")
	w = ts.do(http.MethodPost, "/api/v1/cycles")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestGetSources(t *testing.T) {
	ts := newTestServer(t)
	_, err := ts.checkpoints.Advance(context.Background(), "ozon_news", 42, 3, "Ozon News")
	require.NoError(t, err)
	_, err = ts.checkpoints.Advance(context.Background(), "retired_source", 7, 1, "")
	require.NoError(t, err)

	w := ts.do(http.MethodGet, "/api/v1/sources")
	require.Equal(t, http.StatusOK, w.Code)

	var resp SourcesResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.EqualValues(t, 1, resp.Fingerprints)
	require.Len(t, resp.Sources, 3)

	assert.Equal(t, "ozon_news", resp.Sources[0].SourceID)
	assert.True(t, resp.Sources[0].Configured)
	assert.Equal(t, string(model.SourceStateSteadyState), resp.Sources[0].State)
	assert.EqualValues(t, 42, resp.Sources[0].LastItemID)

	assert.Equal(t, "retired_source", resp.Sources[1].SourceID)
	assert.False(t, resp.Sources[1].Configured)

	assert.Equal(t, "wb_news", resp.Sources[2].SourceID)
	assert.Equal(t, string(model.SourceStateFirstRun), resp.Sources[2].State)
	assert.Nil(t, resp.Sources[2].LastRunAt)
}

func TestResetSource(t *testing.T) {
	ts := newTestServer(t)
	_, err := ts.checkpoints.Advance(context.Background(), "ozon_news", 42, 3, "")
	require.NoError(t, err)

	w := ts.do(http.MethodDelete, "/api/v1/sources/ozon_news")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"ozon_news"}, ts.forgotten)

	_, found, err := ts.checkpoints.Get(context.Background(), "ozon_news")
	require.NoError(t, err)
	assert.False(t, found)

	w = ts.do(http.MethodDelete, "/api/v1/sources/ozon_news")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
