package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/bluesearch/bluesearch/internal/domain"
	"github.com/bluesearch/bluesearch/internal/telemetry"
)

// Embedder produces vector embeddings for index documents and for retrieval
// queries.
type Embedder interface {
	EmbedDocument(ctx context.Context, text string) ([]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// PassageStore persists chunk/embedding pairs and serves similarity queries
// over them. AddBatch must be idempotent for repeated (uri, index) pairs.
type PassageStore interface {
	AddBatch(ctx context.Context, chunks []domain.Chunk, embeddings [][]float32) (int, error)
	Query(ctx context.Context, embedding []float32, k, recentDays int) ([]domain.Passage, error)
	Count(ctx context.Context) (int64, error)
	Clear(ctx context.Context) error
}

const (
	defaultEmbedBatchSize  = 12
	defaultEmbedCallDelay  = 50 * time.Millisecond
	defaultEmbedBatchDelay = 200 * time.Millisecond
)

// IngestConfig controls chunking and the pacing of embedding calls.
type IngestConfig struct {
	Chunk      ChunkConfig
	BatchSize  int
	CallDelay  time.Duration
	BatchDelay time.Duration
}

// DefaultIngestConfig returns the ingestion defaults. The delays keep a large
// batch of short posts under typical embedding rate limits.
func DefaultIngestConfig() IngestConfig {
	return IngestConfig{
		Chunk:      DefaultChunkConfig(),
		BatchSize:  defaultEmbedBatchSize,
		CallDelay:  defaultEmbedCallDelay,
		BatchDelay: defaultEmbedBatchDelay,
	}
}

// IngestService turns posts into indexed passages: clean text is split into
// sliding-window chunks, each chunk is embedded with its author prefix, and
// the pairs are upserted into the store.
type IngestService struct {
	embedder Embedder
	store    PassageStore
	cfg      IngestConfig
}

// NewIngestService creates an IngestService with default configuration.
func NewIngestService(embedder Embedder, store PassageStore) *IngestService {
	return NewIngestServiceWithConfig(embedder, store, DefaultIngestConfig())
}

// NewIngestServiceWithConfig creates an IngestService with explicit
// configuration.
func NewIngestServiceWithConfig(embedder Embedder, store PassageStore, cfg IngestConfig) *IngestService {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultEmbedBatchSize
	}
	return &IngestService{
		embedder: embedder,
		store:    store,
		cfg:      cfg,
	}
}

// IngestPosts chunks, embeds, and stores the given posts, returning the
// number of passages handed to the store. A failed embedding skips that one
// chunk; the rest of the batch still lands. Re-ingesting posts already in the
// index updates them in place.
func (s *IngestService) IngestPosts(ctx context.Context, posts []domain.Post) (int, error) {
	chunks := s.chunkPosts(posts)
	if len(chunks) == 0 {
		return 0, nil
	}

	ctx, span := telemetry.StartSpan(ctx, "IngestService.IngestPosts", telemetry.SpanAttributes{
		Operation: "ingest",
	})
	defer span.End()

	total := 0
	for start := 0; start < len(chunks); start += s.cfg.BatchSize {
		end := start + s.cfg.BatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		embeddings := make([][]float32, len(batch))
		for i, chunk := range batch {
			if err := sleepCtx(ctx, s.cfg.CallDelay); err != nil {
				return total, err
			}

			embedding, err := s.embedder.EmbedDocument(ctx, embeddingText(chunk))
			if err != nil {
				if ctx.Err() != nil {
					return total, ctx.Err()
				}
				log.Printf("ingest: embedding failed for %s#%d: %v", chunk.Post.URI, chunk.Index, err)
				telemetry.AddBreadcrumb(ctx, "ingest", fmt.Sprintf("embedding skipped for %s#%d", chunk.Post.URI, chunk.Index))
				continue
			}
			embeddings[i] = embedding
		}

		added, err := s.store.AddBatch(ctx, batch, embeddings)
		if err != nil {
			span.SetError(err)
			return total, fmt.Errorf("store passages: %w", err)
		}
		total += added

		if end < len(chunks) {
			if err := sleepCtx(ctx, s.cfg.BatchDelay); err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

func (s *IngestService) chunkPosts(posts []domain.Post) []domain.Chunk {
	var chunks []domain.Chunk
	for i := range posts {
		post := &posts[i]
		text := strings.TrimSpace(post.Text)
		if text == "" {
			continue
		}

		pieces := SplitText(text, s.cfg.Chunk)
		for idx, piece := range pieces {
			chunks = append(chunks, domain.Chunk{
				Text:  piece,
				Post:  post,
				Index: idx,
				Total: len(pieces),
			})
		}
	}
	return chunks
}

// embeddingText is what actually gets embedded for a chunk: the author handle
// prefixed to the text, so retrieval can match on who said it.
func embeddingText(chunk domain.Chunk) string {
	return fmt.Sprintf("@%s: %s", chunk.Post.Author, chunk.Text)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
