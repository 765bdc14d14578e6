// internal/store/s3.go
package store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"sitetrack/internal/config"
	"sitetrack/internal/metrics"
	"sitetrack/internal/model"
	"sitetrack/internal/timecache"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsCfgLib "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	zlog "github.com/rs/zerolog/log"
)

// S3Store archives batches as gzip JSONL objects, one object per drained
// batch, under time-partitioned keys:
//
//	<prefix>/dt=<YYYY-MM-DD>/hr=<HH>/<unix>_<instance>_<counter>.jsonl.gz
//
// Visits and events go to separate prefixes of the same bucket. SDK
// retries are fixed at 0; the only retry policy is the bounded app-level
// one in uploadWithRetry, so a flush attempt has a predictable worst-case
// duration.
type S3Store struct {
	cfg     config.Config
	metrics *metrics.Metrics
	client  *s3.Client

	counter uint64 // object-name sequence, wraps at 1e6
}

// NewS3Store loads the AWS config and builds the S3 client. Startup
// fails fast here; a collector that cannot reach its bucket config is
// not worth running.
func NewS3Store(cfg config.Config, m *metrics.Metrics) *S3Store {
	awsCfg, err := awsCfgLib.LoadDefaultConfig(
		context.TODO(),
		awsCfgLib.WithRegion(cfg.AWSRegion),
	)
	if err != nil {
		zlog.Fatal().Err(err).Msg("load aws config")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.RetryMaxAttempts = 0
	})

	return &S3Store{
		cfg:     cfg,
		metrics: m,
		client:  client,
	}
}

// SaveVisits implements Backend.
func (s *S3Store) SaveVisits(ctx context.Context, visits []*model.VisitRecord) error {
	data, err := EncodeJSONLGZ(visits)
	if err != nil {
		return fmt.Errorf("encode visit batch: %w", err)
	}
	return s.uploadWithRetry(ctx, s.objectKey(s.cfg.VisitPrefix), data)
}

// SaveEvents implements Backend.
func (s *S3Store) SaveEvents(ctx context.Context, events []*model.TrackingEvent) error {
	data, err := EncodeJSONLGZ(events)
	if err != nil {
		return fmt.Errorf("encode event batch: %w", err)
	}
	return s.uploadWithRetry(ctx, s.objectKey(s.cfg.EventPrefix), data)
}

// UpdateVisit implements Backend. Archived objects are immutable, so a
// keyed update cannot land here; by the time a record has been flushed
// its enrichment window is over and the patch is discarded as a no-op.
func (s *S3Store) UpdateVisit(_ context.Context, visitID string, _ *model.ClientInfo) error {
	zlog.Debug().Str("visit_id", visitID).Msg("enrichment after flush, dropped")
	return nil
}

// objectKey builds a partitioned key for a new batch object. The name
// sorts lexicographically by time, which keeps downstream scans cheap.
func (s *S3Store) objectKey(prefix string) string {
	c := atomic.AddUint64(&s.counter, 1) % 1_000_000
	name := fmt.Sprintf("%d_%s_%06d.jsonl.gz", timecache.Unix(), s.cfg.InstanceID, c)
	return fmt.Sprintf("%s/dt=%s/hr=%s/%s", prefix, timecache.DT(), timecache.HR(), name)
}

// uploadWithRetry PUTs body under key with up to S3Retries attempts and
// capped exponential backoff. The reader is rebuilt per attempt. The
// context is checked before each attempt and during backoff so shutdown
// never waits on a dead backend.
func (s *S3Store) uploadWithRetry(ctx context.Context, key string, body []byte) error {
	var lastErr error
	backoff := 200 * time.Millisecond

	for attempt := 1; attempt <= s.cfg.S3Retries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := s.putObject(ctx, key, bytes.NewReader(body), int64(len(body))); err == nil {
			return nil
		} else {
			lastErr = err
			atomic.AddInt64(&s.metrics.StoreWriteErrorsTotal, 1)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff *= 2
			if backoff > 2*time.Second {
				backoff = 2 * time.Second
			}
		}
	}

	return lastErr
}

// putObject performs a single PutObject call with the per-attempt
// timeout applied.
func (s *S3Store) putObject(ctx context.Context, key string, body io.Reader, size int64) error {
	ctx2, cancel := context.WithTimeout(ctx, s.cfg.S3Timeout)
	defer cancel()

	_, err := s.client.PutObject(ctx2, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.RawBucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
	})

	return err
}
