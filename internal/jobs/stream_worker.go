package jobs

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/bluesearch/bluesearch/internal/domain"
	"github.com/bluesearch/bluesearch/internal/service"
)

// StreamCollector collects posts from the live firehose.
type StreamCollector interface {
	Collect(ctx context.Context, req service.StreamRequest) ([]domain.Post, error)
}

// PostIngestor turns posts into indexed passages.
type PostIngestor interface {
	IngestPosts(ctx context.Context, posts []domain.Post) (int, error)
}

// SessionArchiver stores the raw posts of one collection session and returns
// the archive's storage key.
type SessionArchiver interface {
	ArchiveSession(ctx context.Context, startedAt time.Time, posts []domain.Post) (string, error)
}

// StreamWorkerConfig bounds each background collection session.
type StreamWorkerConfig struct {
	Keywords    []string
	MaxPosts    int
	MaxDuration time.Duration
}

// StreamWorker keeps the index warm: on every tick it runs one bounded
// firehose session filtered to the configured keywords and ingests whatever
// it collected. Archiving is optional and best effort.
type StreamWorker struct {
	collector StreamCollector
	ingestor  PostIngestor
	archiver  SessionArchiver
	cfg       StreamWorkerConfig
}

// NewStreamWorker creates a new StreamWorker instance. archiver may be nil.
func NewStreamWorker(collector StreamCollector, ingestor PostIngestor, archiver SessionArchiver, cfg StreamWorkerConfig) *StreamWorker {
	return &StreamWorker{
		collector: collector,
		ingestor:  ingestor,
		archiver:  archiver,
		cfg:       cfg,
	}
}

// ProcessJobs implements the JobProcessor interface.
func (w *StreamWorker) ProcessJobs(ctx context.Context) error {
	if len(w.cfg.Keywords) == 0 {
		return nil
	}

	startedAt := time.Now().UTC()
	posts, err := w.collector.Collect(ctx, service.StreamRequest{
		Keywords:    w.cfg.Keywords,
		MaxPosts:    w.cfg.MaxPosts,
		MaxDuration: w.cfg.MaxDuration,
	})
	if err != nil {
		return fmt.Errorf("stream collection failed: %w", err)
	}
	if len(posts) == 0 {
		return nil
	}

	added, err := w.ingestor.IngestPosts(ctx, posts)
	if err != nil {
		return fmt.Errorf("stream ingest failed: %w", err)
	}
	log.Printf("stream worker: collected %d posts, indexed %d passages", len(posts), added)

	if w.archiver != nil {
		key, err := w.archiver.ArchiveSession(ctx, startedAt, posts)
		if err != nil {
			log.Printf("stream worker: session archive failed: %v", err)
		} else {
			log.Printf("stream worker: session archived to %s", key)
		}
	}
	return nil
}
