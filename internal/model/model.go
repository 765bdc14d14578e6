// internal/model/model.go
package model

// VisitRecord is one server-observed HTTP request-response cycle.
// All records of one browser session share a VisitID, assigned via a
// long-lived cookie by the ingress middleware. The Client block starts
// unset and is filled in at most once by a later /enrich call; until the
// record is flushed it may still be patched in place (last write wins).
type VisitRecord struct {
	VisitID    string `json:"visit_id"`    // stable session identifier (365-day cookie)
	Ts         int64  `json:"ts"`          // UTC epoch seconds, timecache based
	IP         string `json:"ip"`          // client IP (XFF/X-Real-IP/RemoteAddr)
	UserAgent  string `json:"user_agent"`  // User-Agent header
	Referrer   string `json:"referrer"`    // Referer header
	Language   string `json:"language"`    // Accept-Language header
	Path       string `json:"path"`        // request path
	Method     string `json:"method"`      // request method
	Status     int    `json:"status"`      // response status code
	DurationMs int64  `json:"duration_ms"` // handler latency in milliseconds

	Client *ClientInfo `json:"client,omitempty"`
}

// ClientInfo holds the client-measured enrichment fields. Every field is
// a pointer so a sparse /enrich payload patches only what it carries and
// unset fields stay unset all the way into the store.
type ClientInfo struct {
	ScreenW        *int     `json:"screen_w,omitempty"`
	ScreenH        *int     `json:"screen_h,omitempty"`
	ViewportW      *int     `json:"viewport_w,omitempty"`
	ViewportH      *int     `json:"viewport_h,omitempty"`
	PixelRatio     *float64 `json:"pixel_ratio,omitempty"`
	Platform       *string  `json:"platform,omitempty"`
	Language       *string  `json:"lang,omitempty"`
	Timezone       *string  `json:"timezone,omitempty"`
	Connection     *string  `json:"connection,omitempty"`
	Fingerprint    *string  `json:"fingerprint,omitempty"`
	CookiesEnabled *bool    `json:"cookies,omitempty"`
	Touch          *bool    `json:"touch,omitempty"`
	LoadMs         *int64   `json:"load_ms,omitempty"`
	PaintMs        *int64   `json:"paint_ms,omitempty"`
	InteractiveMs  *int64   `json:"interactive_ms,omitempty"`
}

// Merge copies every set field of patch into c. Fields absent from patch
// are left untouched; the caller holds whatever lock protects the record.
func (c *ClientInfo) Merge(patch *ClientInfo) {
	if patch == nil {
		return
	}
	if patch.ScreenW != nil {
		c.ScreenW = patch.ScreenW
	}
	if patch.ScreenH != nil {
		c.ScreenH = patch.ScreenH
	}
	if patch.ViewportW != nil {
		c.ViewportW = patch.ViewportW
	}
	if patch.ViewportH != nil {
		c.ViewportH = patch.ViewportH
	}
	if patch.PixelRatio != nil {
		c.PixelRatio = patch.PixelRatio
	}
	if patch.Platform != nil {
		c.Platform = patch.Platform
	}
	if patch.Language != nil {
		c.Language = patch.Language
	}
	if patch.Timezone != nil {
		c.Timezone = patch.Timezone
	}
	if patch.Connection != nil {
		c.Connection = patch.Connection
	}
	if patch.Fingerprint != nil {
		c.Fingerprint = patch.Fingerprint
	}
	if patch.CookiesEnabled != nil {
		c.CookiesEnabled = patch.CookiesEnabled
	}
	if patch.Touch != nil {
		c.Touch = patch.Touch
	}
	if patch.LoadMs != nil {
		c.LoadMs = patch.LoadMs
	}
	if patch.PaintMs != nil {
		c.PaintMs = patch.PaintMs
	}
	if patch.InteractiveMs != nil {
		c.InteractiveMs = patch.InteractiveMs
	}
}

// ApplyEnrichment patches the record's Client block with the set fields
// of patch, allocating the block on first use.
func (v *VisitRecord) ApplyEnrichment(patch *ClientInfo) {
	if patch == nil {
		return
	}
	if v.Client == nil {
		v.Client = &ClientInfo{}
	}
	v.Client.Merge(patch)
}

// TrackingEvent is one discrete client-reported interaction (pageview,
// click, scroll, section view, mouse sample, visibility change, unload).
// Events are client-declared and therefore untrusted; every one passes
// through the ingestion gate. Immutable once created.
type TrackingEvent struct {
	VisitID string `json:"visit_id"` // correlation key, not enforced
	Type    string `json:"type"`     // event-type tag
	Payload string `json:"payload"`  // opaque event data, serialized text
	URL     string `json:"url"`      // page URL the event came from
	Ts      int64  `json:"ts"`       // client-supplied, trusted as-is
}
