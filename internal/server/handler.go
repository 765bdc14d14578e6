package server

import (
	"bytes"
	"io"
	"net/http"
	"sync/atomic"

	"sitetrack/internal/config"
	"sitetrack/internal/metrics"
	"sitetrack/internal/model"
	"sitetrack/internal/pool"
	"sitetrack/internal/timecache"
	"sitetrack/internal/worker"

	json "github.com/goccy/go-json"
)

type Handler struct {
	cfg     config.Config
	metrics *metrics.Metrics
	worker  *worker.Manager
}

func NewHandler(cfg config.Config, m *metrics.Metrics, w *worker.Manager) *Handler {
	return &Handler{
		cfg:     cfg,
		metrics: m,
		worker:  w,
	}
}

// Register mounts the collector endpoints on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/track", h.HandleTrack)
	mux.HandleFunc("/enrich", h.HandleEnrich)
	mux.HandleFunc("/metrics", h.HandleMetrics)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("ok"))
	})
}

// trackPayload is the client-emitted event shape. Payload stays opaque;
// whatever the page script sends is stored as serialized text.
type trackPayload struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	URL     string          `json:"url"`
	Ts      int64           `json:"ts"`
}

// HandleTrack ingests one client event. This is the hot path: body size
// is capped, the read buffer is pooled, and the response is 204 whether
// the event was admitted or silently dropped — a rejected tracker beacon
// is not a client error, and an error status would only teach abusive
// pages which of their floods got through.
func (h *Handler) HandleTrack(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt64(&h.metrics.TrackRequestsTotal, 1)

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var p trackPayload
	if !h.readJSON(w, r, &p) {
		return
	}
	if p.Type == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	ts := p.Ts
	if ts == 0 {
		ts = timecache.Unix()
	}

	ev := &model.TrackingEvent{
		VisitID: h.visitID(r),
		Type:    p.Type,
		Payload: string(p.Payload),
		URL:     p.URL,
		Ts:      ts,
	}

	h.worker.TryEnqueueEvent(ev, clientIP(r))
	w.WriteHeader(http.StatusNoContent)
}

// enrichPayload carries the visit identifier plus a sparse ClientInfo;
// the embedded fields decode flat from the script's JSON.
type enrichPayload struct {
	VisitID string `json:"visit_id"`
	model.ClientInfo
}

// HandleEnrich applies client-measured details to the caller's visit.
// The cookie identifier wins over the body one; an unknown identifier is
// a counted no-op, so the response is 204 either way.
func (h *Handler) HandleEnrich(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt64(&h.metrics.EnrichRequestsTotal, 1)

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var p enrichPayload
	if !h.readJSON(w, r, &p) {
		return
	}

	vid := h.visitID(r)
	if vid == "" {
		vid = p.VisitID
	}

	h.worker.Enrich(r.Context(), vid, &p.ClientInfo)
	w.WriteHeader(http.StatusNoContent)
}

// HandleMetrics dumps the internal counters as plain text.
func (h *Handler) HandleMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, h.metrics.String())
}

// readJSON reads the capped request body through the pool and decodes it
// into dst. Writes the error status itself and returns false on failure.
func (h *Handler) readJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodySize)
	defer r.Body.Close()

	buf := pool.BodyPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer pool.PutBody(buf, h.cfg.MaxBodySize*2)

	if _, err := io.Copy(buf, r.Body); err != nil {
		w.WriteHeader(http.StatusRequestEntityTooLarge)
		return false
	}

	if err := json.Unmarshal(buf.Bytes(), dst); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return false
	}
	return true
}

// visitID reads the session identifier from the visit cookie, empty when
// the browser sent none.
func (h *Handler) visitID(r *http.Request) string {
	if c, err := r.Cookie(h.cfg.CookieName); err == nil {
		return c.Value
	}
	return ""
}
