// Package s3archive batches audit events into JSON Lines objects in an S3
// (or S3-compatible) bucket for long-term retention.
package s3archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/lifeplan-navigator/authcore"
)

// Uploader is the subset of *s3.Client used by Sink.
type Uploader interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// ClientConfig describes the bucket endpoint.
type ClientConfig struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// NewClient builds an S3 client. A custom Endpoint switches to path-style
// addressing for MinIO and similar servers.
func NewClient(ctx context.Context, cfg ClientConfig) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// Options configures a Sink.
type Options struct {
	Bucket        string
	Prefix        string
	BatchSize     int
	FlushInterval time.Duration
	Logger        *slog.Logger
}

// Sink implements authcore.AuditSink. Events are buffered and written as
// one object per batch; a failed upload is logged and the batch dropped.
type Sink struct {
	up      Uploader
	opts    Options
	logger  *slog.Logger
	now     func() time.Time
	timeout time.Duration

	mu      sync.Mutex
	buf     bytes.Buffer
	pending int
	dropped uint64
	closed  bool

	flushMu sync.Mutex
	done    chan struct{}
	stopped chan struct{}
}

var _ authcore.AuditSink = (*Sink)(nil)

// ErrClosed is returned by Flush after Close.
var ErrClosed = errors.New("s3archive: sink closed")

// New returns a sink and starts its interval flusher when FlushInterval
// is positive.
func New(up Uploader, opts Options) (*Sink, error) {
	if up == nil {
		return nil, errors.New("s3archive: uploader is required")
	}
	if opts.Bucket == "" {
		return nil, errors.New("s3archive: bucket is required")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sink{
		up:      up,
		opts:    opts,
		logger:  logger,
		now:     time.Now,
		timeout: 30 * time.Second,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	if opts.FlushInterval > 0 {
		go s.loop(opts.FlushInterval)
	} else {
		close(s.stopped)
	}
	return s, nil
}

// Emit appends ev to the current batch and uploads it once BatchSize
// events are pending.
func (s *Sink) Emit(ctx context.Context, ev authcore.AuditEvent) {
	line, err := json.Marshal(ev)
	if err != nil {
		s.logger.ErrorContext(ctx, "audit archive encode failed", "code", ev.Code, "error", err)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.dropped++
		s.mu.Unlock()
		return
	}
	s.buf.Write(line)
	s.buf.WriteByte('\n')
	s.pending++
	full := s.pending >= s.opts.BatchSize
	s.mu.Unlock()

	if full {
		_ = s.flush(context.WithoutCancel(ctx))
	}
}

// Flush uploads any pending events.
func (s *Sink) Flush(ctx context.Context) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return s.flush(ctx)
}

func (s *Sink) flush(ctx context.Context) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	if s.pending == 0 {
		s.mu.Unlock()
		return nil
	}
	body := bytes.Clone(s.buf.Bytes())
	count := s.pending
	s.buf.Reset()
	s.pending = 0
	s.mu.Unlock()

	key := s.objectKey()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	_, err := s.up.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.opts.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		s.mu.Lock()
		s.dropped += uint64(count)
		s.mu.Unlock()
		s.logger.ErrorContext(ctx, "audit archive upload failed",
			"event", "audit_archive_failed",
			"bucket", s.opts.Bucket,
			"key", key,
			"events", count,
			"error", err,
		)
		return fmt.Errorf("put %s: %w", key, err)
	}
	s.logger.DebugContext(ctx, "audit archive uploaded", "key", key, "events", count)
	return nil
}

// objectKey is <prefix>YYYY/MM/DD/<timestamp>-<uuid>.jsonl.
func (s *Sink) objectKey() string {
	now := s.now().UTC()
	name := now.Format("20060102T150405Z") + "-" + uuid.NewString() + ".jsonl"
	return s.opts.Prefix + path.Join(now.Format("2006/01/02"), name)
}

func (s *Sink) loop(interval time.Duration) {
	defer close(s.stopped)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-t.C:
			_ = s.flush(context.Background())
		}
	}
}

// Dropped reports events lost to failed uploads or emitted after Close.
func (s *Sink) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close stops the flusher and uploads the final batch.
func (s *Sink) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.done)
	select {
	case <-s.stopped:
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.flush(ctx)
}
