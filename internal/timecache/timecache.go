// internal/timecache/timecache.go
package timecache

import (
	"sync/atomic"
	"time"
)

// Cached wall clock, refreshed once per second.
//
// The visit middleware stamps every request and the store builds a
// partitioned object key per batch; at ingest volumes a time.Now() per
// call is wasted syscalls for second-level precision. Consumers accept
// up to one second of staleness.
//
// Used for:
//   - VisitRecord.Ts and TrackingEvent fallback timestamps
//   - S3 partition prefixes (dt=YYYY-MM-DD / hr=HH, UTC)

var (
	unixSec atomic.Int64

	dtVal atomic.Value // "YYYY-MM-DD"
	hrVal atomic.Value // "HH"
)

func init() {
	update()

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()

		for range ticker.C {
			update()
		}
	}()
}

func update() {
	now := time.Now().UTC()
	unixSec.Store(now.Unix())
	dtVal.Store(now.Format("2006-01-02"))
	hrVal.Store(now.Format("15"))
}

// Unix returns current UTC epoch seconds (cached, 1-second precision).
func Unix() int64 {
	return unixSec.Load()
}

// DT returns the current UTC date partition, "YYYY-MM-DD".
func DT() string {
	return dtVal.Load().(string)
}

// HR returns the current UTC hour partition, "HH".
func HR() string {
	return hrVal.Load().(string)
}
