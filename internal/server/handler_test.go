package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"sitetrack/internal/config"
	"sitetrack/internal/metrics"
	"sitetrack/internal/model"
	"sitetrack/internal/worker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBackend struct {
	mu      sync.Mutex
	updates map[string]*model.ClientInfo
}

func (b *stubBackend) SaveVisits(context.Context, []*model.VisitRecord) error   { return nil }
func (b *stubBackend) SaveEvents(context.Context, []*model.TrackingEvent) error { return nil }

func (b *stubBackend) UpdateVisit(_ context.Context, id string, patch *model.ClientInfo) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.updates == nil {
		b.updates = make(map[string]*model.ClientInfo)
	}
	b.updates[id] = patch
	return nil
}

func newTestHandler() (*Handler, *metrics.Metrics, *worker.Manager) {
	cfg := config.Config{
		MaxBodySize:       16 * 1024,
		VisitQueueCap:     1000,
		EventQueueCap:     1000,
		FlushInterval:     time.Hour,
		SourceLimitPerMin: 100,
		GlobalLimitPerMin: 1000,
		RateWindow:        time.Minute,
		SourceStaleAfter:  2 * time.Minute,
		AnomalyWindow:     5,
		AnomalyMultiplier: 5.0,
		ShutdownTimeout:   5 * time.Second,
		CookieName:        "vid",
		CookieMaxAge:      365 * 24 * time.Hour,
	}
	m := metrics.New()
	mgr := worker.New(cfg, m, &stubBackend{})
	return NewHandler(cfg, m, mgr), m, mgr
}

func TestHandleTrackAdmitsEvent(t *testing.T) {
	h, m, _ := newTestHandler()

	body := `{"type":"click","payload":{"x":10,"y":20},"url":"/pricing","ts":1700000000}`
	req := httptest.NewRequest(http.MethodPost, "/track", strings.NewReader(body))
	req.AddCookie(&http.Cookie{Name: "vid", Value: "abc"})
	req.RemoteAddr = "203.0.113.9:55000"
	rec := httptest.NewRecorder()

	h.HandleTrack(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, int64(1), atomic.LoadInt64(&m.EventsAdmittedTotal))
	assert.Equal(t, int64(1), atomic.LoadInt64(&m.TrackRequestsTotal))
}

func TestHandleTrackRejectsMalformedJSON(t *testing.T) {
	h, m, _ := newTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/track", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()

	h.HandleTrack(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, int64(0), atomic.LoadInt64(&m.EventsAdmittedTotal))
}

func TestHandleTrackRequiresEventType(t *testing.T) {
	h, _, _ := newTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/track", strings.NewReader(`{"url":"/"}`))
	rec := httptest.NewRecorder()

	h.HandleTrack(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleTrackSilentOnRejection(t *testing.T) {
	h, m, _ := newTestHandler()

	// Saturate the per-source window; responses stay 204 throughout.
	for i := 0; i < 120; i++ {
		req := httptest.NewRequest(http.MethodPost, "/track",
			strings.NewReader(`{"type":"mouse","payload":{},"url":"/"}`))
		req.RemoteAddr = "203.0.113.9:55000"
		rec := httptest.NewRecorder()
		h.HandleTrack(rec, req)
		require.Equal(t, http.StatusNoContent, rec.Code)
	}

	assert.Equal(t, int64(100), atomic.LoadInt64(&m.EventsAdmittedTotal))
	assert.Equal(t, int64(20), atomic.LoadInt64(&m.EventsRejectedRateLimitedTotal))
}

func TestHandleEnrichPatchesBufferedVisit(t *testing.T) {
	h, m, mgr := newTestHandler()

	mgr.EnqueueVisit(&model.VisitRecord{VisitID: "abc"})

	body := `{"screen_w":1920,"screen_h":1080,"platform":"Linux"}`
	req := httptest.NewRequest(http.MethodPost, "/enrich", strings.NewReader(body))
	req.AddCookie(&http.Cookie{Name: "vid", Value: "abc"})
	rec := httptest.NewRecorder()

	h.HandleEnrich(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, int64(1), atomic.LoadInt64(&m.EnrichAppliedTotal))
}

func TestHandleEnrichUnknownIsNoOp(t *testing.T) {
	h, m, _ := newTestHandler()

	req := httptest.NewRequest(http.MethodPost, "/enrich", strings.NewReader(`{"screen_w":640}`))
	req.AddCookie(&http.Cookie{Name: "vid", Value: "ghost"})
	rec := httptest.NewRecorder()

	h.HandleEnrich(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, int64(1), atomic.LoadInt64(&m.EnrichUnknownTotal))
}

func TestVisitMiddlewareAssignsCookieAndRecordsVisit(t *testing.T) {
	h, m, _ := newTestHandler()

	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/blog/post", nil)
	req.Header.Set("User-Agent", "test-agent")
	rec := httptest.NewRecorder()

	h.VisitMiddleware(next).ServeHTTP(rec, req)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "vid", cookies[0].Name)
	assert.NotEmpty(t, cookies[0].Value)
	assert.Equal(t, int64(1), atomic.LoadInt64(&m.VisitsEnqueuedTotal))
}

func TestVisitMiddlewareKeepsExistingCookie(t *testing.T) {
	h, _, _ := newTestHandler()

	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "vid", Value: "existing"})
	rec := httptest.NewRecorder()

	h.VisitMiddleware(next).ServeHTTP(rec, req)

	// The identifier is immutable once assigned.
	assert.Empty(t, rec.Result().Cookies())
}

func TestVisitMiddlewareSkipsAssetsAndOwnEndpoints(t *testing.T) {
	h, m, _ := newTestHandler()

	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {})

	for _, target := range []string{"/track", "/enrich", "/metrics", "/health", "/app.js", "/logo.PNG"} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		rec := httptest.NewRecorder()
		h.VisitMiddleware(next).ServeHTTP(rec, req)
	}

	assert.Equal(t, int64(0), atomic.LoadInt64(&m.VisitsEnqueuedTotal))
}

func TestClientIPPrefersForwardedHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.1.24:9999"
	req.Header.Set("X-Forwarded-For", "203.0.113.1, 10.0.1.24")

	assert.Equal(t, "203.0.113.1", clientIP(req))
}

func TestClientIPFallsBackToRemoteAddr(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.50:9999"

	assert.Equal(t, "192.168.1.50", clientIP(req))
}
