package server

import (
	"net/http"
	"path"
	"strings"
	"time"

	"sitetrack/internal/model"
	"sitetrack/internal/timecache"

	"github.com/google/uuid"
)

// statusRecorder captures the status code written by the wrapped
// handler. Handlers that never call WriteHeader implicitly answer 200.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// skippedExt lists static-asset extensions that never produce a visit.
var skippedExt = map[string]struct{}{
	".css": {}, ".js": {}, ".map": {},
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".svg": {}, ".webp": {}, ".ico": {},
	".woff": {}, ".woff2": {}, ".ttf": {},
}

func skipVisit(p string) bool {
	switch {
	case strings.HasPrefix(p, "/track"),
		strings.HasPrefix(p, "/enrich"),
		strings.HasPrefix(p, "/metrics"),
		strings.HasPrefix(p, "/health"):
		return true
	}
	_, ok := skippedExt[strings.ToLower(path.Ext(p))]
	return ok
}

// VisitMiddleware records one VisitRecord per page request. It assigns
// the visit cookie when absent, lets the wrapped handler run, then
// fire-and-forgets the record into the engine. Static assets and the
// collector's own endpoints are excluded.
func (h *Handler) VisitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if skipVisit(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		vid := h.ensureVisitID(w, r)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)

		h.worker.EnqueueVisit(&model.VisitRecord{
			VisitID:    vid,
			Ts:         timecache.Unix(),
			IP:         clientIP(r),
			UserAgent:  r.UserAgent(),
			Referrer:   r.Referer(),
			Language:   r.Header.Get("Accept-Language"),
			Path:       r.URL.Path,
			Method:     r.Method,
			Status:     rec.status,
			DurationMs: time.Since(start).Milliseconds(),
		})
	})
}

// ensureVisitID returns the session identifier from the visit cookie,
// minting and setting a fresh one when the browser has none. The value
// is immutable for the cookie's lifetime; the server never reassigns an
// existing identifier.
func (h *Handler) ensureVisitID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(h.cfg.CookieName); err == nil && c.Value != "" {
		return c.Value
	}

	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(h.cfg.CookieMaxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}
