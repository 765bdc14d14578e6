// internal/config/config.go
package config

import (
	"crypto/rand"
	"encoding/hex"
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds every start-time setting of the server. All values are
// resolved once by Load() and never change afterwards; there is no
// runtime reconfiguration.
type Config struct {

	// ---------------------------
	// Identity / network
	// ---------------------------

	ServiceName string // log field on every line
	InstanceID  string // process identifier (hostname, random hex fallback)
	HTTPAddr    string // HTTP bind address

	// ---------------------------
	// AWS / S3 backend
	// ---------------------------

	AWSRegion   string // AWS region
	RawBucket   string // bucket receiving batch objects
	VisitPrefix string // key prefix for visit batches
	EventPrefix string // key prefix for event batches

	S3Timeout time.Duration // per-attempt PutObject timeout
	S3Retries int           // attempts per batch; SDK retry stays 0

	// ---------------------------
	// Ingestion engine
	// ---------------------------

	MaxBodySize   int64         // request body ceiling for /track and /enrich
	VisitQueueCap int           // visit FIFO capacity
	EventQueueCap int           // event FIFO capacity
	FlushInterval time.Duration // drain-and-persist period

	SourceLimitPerMin int           // per-source admissions per rate window
	GlobalLimitPerMin int           // admissions per minute across all sources
	RateWindow        time.Duration // sliding-window width
	SourceStaleAfter  time.Duration // idle age before a source window is swept

	AnomalyWindow     int     // completed minutes of history
	AnomalyMultiplier float64 // throttle above history mean * multiplier

	ShutdownTimeout time.Duration // budget for the final drain-and-flush

	// ---------------------------
	// Visit cookie
	// ---------------------------

	CookieName   string        // visit-identifier cookie name
	CookieMaxAge time.Duration // cookie validity

	// ---------------------------
	// Logging
	// ---------------------------

	LogLevel   string // zerolog level name
	LogPretty  bool   // console writer for local development
	LogSampleN uint32 // sample 1/N of Debug/Info lines; 0 disables sampling
}

// Load resolves the configuration from environment variables. The AWS
// settings have no sane defaults and fail fast when missing; the engine
// tunables fall back to their documented defaults.
func Load() Config {
	return Config{
		ServiceName: getOr("SERVICE_NAME", "sitetrack"),
		InstanceID:  fallbackInstanceID(),
		HTTPAddr:    getOr("HTTP_ADDR", ":8080"),

		AWSRegion:   must("AWS_REGION"),
		RawBucket:   must("RAW_BUCKET"),
		VisitPrefix: getOr("VISIT_PREFIX", "visits"),
		EventPrefix: getOr("EVENT_PREFIX", "events"),

		S3Timeout: getOrDur("S3_TIMEOUT", 5*time.Second),
		S3Retries: getOrInt("S3_RETRIES", 3),

		MaxBodySize:   getOrInt64("MAX_BODY_SIZE", 16*1024),
		VisitQueueCap: getOrInt("VISIT_QUEUE_CAP", 10_000),
		EventQueueCap: getOrInt("EVENT_QUEUE_CAP", 10_000),
		FlushInterval: getOrDur("FLUSH_INTERVAL", 10*time.Second),

		SourceLimitPerMin: getOrInt("SOURCE_LIMIT_PER_MIN", 100),
		GlobalLimitPerMin: getOrInt("GLOBAL_LIMIT_PER_MIN", 1_000),
		RateWindow:        getOrDur("RATE_WINDOW", time.Minute),
		SourceStaleAfter:  getOrDur("SOURCE_STALE_AFTER", 2*time.Minute),

		AnomalyWindow:     getOrInt("ANOMALY_WINDOW", 5),
		AnomalyMultiplier: getOrFloat("ANOMALY_MULTIPLIER", 5.0),

		ShutdownTimeout: getOrDur("SHUTDOWN_TIMEOUT", 15*time.Second),

		CookieName:   getOr("COOKIE_NAME", "vid"),
		CookieMaxAge: getOrDur("COOKIE_MAX_AGE", 365*24*time.Hour),

		LogLevel:   getOr("LOG_LEVEL", "info"),
		LogPretty:  getOrBool("LOG_PRETTY", false),
		LogSampleN: uint32(getOrInt("LOG_SAMPLE_N", 0)),
	}
}

// must fails fast on a missing required env so a misconfigured deploy
// never starts half-working.
func must(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("missing required env: %s", key)
	}
	return v
}

func getOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getOrInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("invalid int env %s=%q: %v", key, v, err)
	}
	return n
}

func getOrInt64(key string, def int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Fatalf("invalid int64 env %s=%q: %v", key, v, err)
	}
	return n
}

func getOrFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		log.Fatalf("invalid float env %s=%q: %v", key, v, err)
	}
	return f
}

func getOrBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Fatalf("invalid bool env %s=%q: %v", key, v, err)
	}
	return b
}

func getOrDur(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Fatalf("invalid duration env %s=%q: %v", key, v, err)
	}
	return d
}

// fallbackInstanceID identifies this process in logs and object names.
// Hostname first, then 12 random hex chars, then nanos as a last resort.
func fallbackInstanceID() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	var b [6]byte
	if _, err := rand.Read(b[:]); err == nil {
		return hex.EncodeToString(b[:])
	}
	return strconv.FormatInt(time.Now().UnixNano(), 10)
}
