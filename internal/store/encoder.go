// internal/store/encoder.go
package store

import (
	"bytes"

	"sitetrack/internal/pool"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
)

// EncodeJSONLGZ serializes a batch as gzip-compressed JSONL: one JSON
// document per line, one object per flush cycle. This is the CPU-heavy
// step of the pipeline, so the output buffer and the gzip writer come
// from pools and only the final copy is allocated.
//
// The returned slice is owned by the caller; the pooled buffer is reused
// and must never escape.
func EncodeJSONLGZ[T any](items []T) ([]byte, error) {
	buf := pool.BufferPool.Get().(*bytes.Buffer)
	buf.Reset()

	gz := pool.GzipPool.Get().(*gzip.Writer)
	gz.Reset(buf)

	enc := json.NewEncoder(gz)

	for _, it := range items {
		if err := enc.Encode(it); err != nil {
			_ = gz.Close()
			pool.GzipPool.Put(gz)
			pool.PutBuffer(buf)
			return nil, err
		}
	}

	// Close completes the gzip stream; Flush alone leaves no footer.
	if err := gz.Close(); err != nil {
		pool.GzipPool.Put(gz)
		pool.PutBuffer(buf)
		return nil, err
	}
	pool.GzipPool.Put(gz)

	raw := buf.Bytes()
	data := make([]byte, len(raw))
	copy(data, raw)

	pool.PutBuffer(buf)

	return data, nil
}
