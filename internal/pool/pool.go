package pool

import (
	"bytes"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// Reusable buffers for the two allocation-heavy paths: reading request
// bodies on /track and /enrich, and gzip-encoding batches in the store.
//
// Records themselves are not pooled. A drained batch outlives the flush
// call that produced it and buffered visits stay patchable through the
// enrichment index, so recycling them would alias live data.

var (
	// BodyPool holds buffers for request bodies. 4KB covers typical
	// tracking payloads; oversized buffers are not returned (PutBody).
	BodyPool = sync.Pool{
		New: func() any {
			return bytes.NewBuffer(make([]byte, 0, 4*1024))
		},
	}

	// BufferPool holds gzip output buffers, sized for a typical batch.
	BufferPool = sync.Pool{
		New: func() any {
			return bytes.NewBuffer(make([]byte, 0, 256*1024))
		},
	}

	// GzipPool reuses gzip writers at BestSpeed; the collector trades
	// ratio for throughput.
	GzipPool = sync.Pool{
		New: func() any {
			w, _ := gzip.NewWriterLevel(nil, gzip.BestSpeed)
			return w
		},
	}
)

// MaxBufferCap is the largest gzip buffer the pool will keep. Anything
// bigger is left to the GC so one oversized batch cannot pin memory.
const MaxBufferCap = 1 * 1024 * 1024 // 1MB

// PutBody returns buf to BodyPool unless it grew past maxCap.
func PutBody(buf *bytes.Buffer, maxCap int64) {
	if int64(buf.Cap()) <= maxCap {
		buf.Reset()
		BodyPool.Put(buf)
	}
}

// PutBuffer returns buf to BufferPool unless it grew past MaxBufferCap.
func PutBuffer(buf *bytes.Buffer) {
	if buf.Cap() <= MaxBufferCap {
		buf.Reset()
		BufferPool.Put(buf)
	}
}
