package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kotoba-hub/progress-engine/internal/application/command"
	"github.com/kotoba-hub/progress-engine/internal/domain/shared"
	"github.com/kotoba-hub/progress-engine/internal/infrastructure/messaging"
	"github.com/kotoba-hub/progress-engine/internal/infrastructure/persistence/memory"
	"github.com/kotoba-hub/progress-engine/pkg/timeutil"
)

type fakeEnqueuer struct {
	mu       sync.Mutex
	err      error
	accepted []shared.Trigger
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, trg shared.Trigger) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.accepted = append(f.accepted, trg)
	return nil
}

type fakeMetrics struct {
	snapshot messaging.MetricsSnapshot
}

func (f *fakeMetrics) Snapshot() messaging.MetricsSnapshot { return f.snapshot }

func newTestServer(t *testing.T, deps Dependencies) *Server {
	t.Helper()
	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 0
	return NewServer(cfg, deps)
}

func postTrigger(t *testing.T, srv *Server, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/triggers", bytes.NewBufferString(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestEnqueueTrigger_AcceptsValidTrigger(t *testing.T) {
	enq := &fakeEnqueuer{}
	srv := newTestServer(t, Dependencies{Enqueuer: enq})

	rec := postTrigger(t, srv, `{
		"kind": "word-review",
		"user_id": 42,
		"aux_id": 7,
		"correct": true,
		"dedup_token": "evt-1001"
	}`, nil)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, enq.accepted, 1)
	assert.Equal(t, shared.TriggerWordReview, enq.accepted[0].Kind)
	assert.Equal(t, int64(42), enq.accepted[0].UserID)
	assert.Equal(t, int64(7), enq.accepted[0].AuxID)
	assert.True(t, enq.accepted[0].Correct)
	assert.Equal(t, "evt-1001", enq.accepted[0].DedupToken)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestEnqueueTrigger_RejectsMalformedBody(t *testing.T) {
	enq := &fakeEnqueuer{}
	srv := newTestServer(t, Dependencies{Enqueuer: enq})

	rec := postTrigger(t, srv, `{not json`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, enq.accepted)
}

func TestEnqueueTrigger_RejectsMissingDedupToken(t *testing.T) {
	enq := &fakeEnqueuer{}
	srv := newTestServer(t, Dependencies{Enqueuer: enq})

	rec := postTrigger(t, srv, `{"kind": "word-review", "user_id": 42, "aux_id": 7}`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_trigger")
	assert.Empty(t, enq.accepted)
}

func TestEnqueueTrigger_RejectsUnknownKind(t *testing.T) {
	enq := &fakeEnqueuer{}
	srv := newTestServer(t, Dependencies{Enqueuer: enq})

	rec := postTrigger(t, srv, `{"kind": "pet-the-cat", "user_id": 42, "dedup_token": "evt-1"}`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown_kind")
	assert.Empty(t, enq.accepted)
}

func TestEnqueueTrigger_RequiresBearerTokenWhenConfigured(t *testing.T) {
	enq := &fakeEnqueuer{}
	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 0
	cfg.AuthToken = "sekret"
	srv := NewServer(cfg, Dependencies{Enqueuer: enq})

	body := `{"kind": "lesson-completed", "user_id": 5, "dedup_token": "evt-2"}`

	rec := postTrigger(t, srv, body, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, enq.accepted)

	rec = postTrigger(t, srv, body, map[string]string{"Authorization": "Bearer sekret"})
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Len(t, enq.accepted, 1)
}

func TestEnqueueTrigger_ReportsShutdown(t *testing.T) {
	enq := &fakeEnqueuer{err: messaging.ErrDispatcherClosed}
	srv := newTestServer(t, Dependencies{Enqueuer: enq})

	rec := postTrigger(t, srv, `{"kind": "word-review", "user_id": 42, "dedup_token": "evt-3"}`, nil)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "shutting_down")
}

func TestEnqueueTrigger_ReportsEnqueueFailure(t *testing.T) {
	enq := &fakeEnqueuer{err: errors.New("lane exploded")}
	srv := newTestServer(t, Dependencies{Enqueuer: enq})

	rec := postTrigger(t, srv, `{"kind": "word-review", "user_id": 42, "dedup_token": "evt-4"}`, nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMetrics_ExposesDispatcherCounters(t *testing.T) {
	srv := newTestServer(t, Dependencies{
		Metrics: &fakeMetrics{snapshot: messaging.MetricsSnapshot{
			Enqueued:  10,
			Succeeded: 8,
			Failed:    1,
			Retries:   3,
		}},
	})

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data struct {
			Dispatcher messaging.MetricsSnapshot `json:"dispatcher"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(10), resp.Data.Dispatcher.Enqueued)
	assert.Equal(t, int64(8), resp.Data.Dispatcher.Succeeded)
}

func TestHealth_ReportsFailingDependency(t *testing.T) {
	hc := NewHealthChecker()
	hc.AddCheck("postgres", func(context.Context) error { return nil })
	hc.AddCheck("redis", func(context.Context) error { return errors.New("connection refused") })

	srv := newTestServer(t, Dependencies{Health: hc})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

func TestApplyFreeze_ConsumesTokenOnce(t *testing.T) {
	cal := timeutil.NewCalendar(time.UTC)
	store := memory.NewActivityStore()
	srv := newTestServer(t, Dependencies{
		Freeze:   command.NewApplyFreezeHandler(store, cal, nil),
		Calendar: cal,
	})

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/users/42/freeze",
			bytes.NewBufferString(`{"day": "2026-03-14"}`))
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		return rec
	}

	rec := do()
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"consumed":true`)

	rec = do()
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"consumed":false`)
}

func TestApplyFreeze_RejectsBadDay(t *testing.T) {
	cal := timeutil.NewCalendar(time.UTC)
	srv := newTestServer(t, Dependencies{
		Freeze:   command.NewApplyFreezeHandler(memory.NewActivityStore(), cal, nil),
		Calendar: cal,
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/users/42/freeze",
		bytes.NewBufferString(`{"day": "14-03-2026"}`))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_day")
}

func TestGetUserProgress_RejectsBadUserID(t *testing.T) {
	srv := newTestServer(t, Dependencies{})

	for _, path := range []string{"/api/v1/users/abc/progress", "/api/v1/users/-3/progress"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code, path)
	}
}

func TestRateLimit_BlocksAfterLimit(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 2
	srv := NewServer(cfg, Dependencies{})

	var last int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/live", nil)
		req.RemoteAddr = "10.0.0.9:1234"
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, req)
		last = rec.Code
	}

	assert.Equal(t, http.StatusTooManyRequests, last)
}
