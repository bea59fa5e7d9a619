package service

import (
	"context"
	"errors"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/bluesearch/bluesearch/internal/domain"
	"github.com/bluesearch/bluesearch/internal/telemetry"
)

// mentionRe captures full handles, including dotted domains, which the
// keyword extractor's word pattern would truncate.
var mentionRe = regexp.MustCompile(`@([A-Za-z0-9][A-Za-z0-9.-]*)`)

// PostSource is the Bluesky read surface the fresh retrieval tier draws
// from. Implementations establish their own session lazily; EnsureSession
// exists so the streaming tier can fail fast on bad credentials.
type PostSource interface {
	EnsureSession(ctx context.Context) error
	Timeline(ctx context.Context, limit int) ([]domain.Post, error)
	Trending(ctx context.Context, limit int) ([]domain.Post, error)
	AuthorFeed(ctx context.Context, actor string, limit int) ([]domain.Post, error)
	SearchPostsAuth(ctx context.Context, query string, limit int) ([]domain.Post, error)
	SearchPostsPublic(ctx context.Context, query string, limit int) ([]domain.Post, error)
}

// StreamRequest bounds one live firehose collection session.
type StreamRequest struct {
	Keywords    []string
	MaxPosts    int
	MaxDuration time.Duration
}

// Streamer collects posts from the live firehose until the request's bounds
// are met.
type Streamer interface {
	Collect(ctx context.Context, req StreamRequest) ([]domain.Post, error)
}

const (
	defaultTimelineLimit = 120
	defaultTrendingLimit = 120
	defaultSearchLimit   = 40
	defaultAuthorLimit   = 40
	defaultHybridCap     = 60

	maxQueryTerms = 10

	// maxCitations caps how many source links an answer carries.
	maxCitations = 6
)

// RAGConfig tunes the retrieval tiers.
type RAGConfig struct {
	// MaxResults is k for similarity retrieval.
	MaxResults int
	// RecentDays restricts retrieval to recently created posts; retrieval
	// retries without the window when it comes back empty. Zero disables it.
	RecentDays int
	// MinPassages is the quality floor for the fresh tier: fewer retrieved
	// passages than this sends the tiered path to the streaming fallback.
	MinPassages int

	TimelineLimit int
	TrendingLimit int
	SearchLimit   int
	AuthorLimit   int
	HybridCap     int

	StreamMaxPosts    int
	StreamMaxDuration time.Duration
}

// DefaultRAGConfig returns the retrieval defaults.
func DefaultRAGConfig() RAGConfig {
	return RAGConfig{
		MaxResults:        12,
		RecentDays:        14,
		MinPassages:       3,
		TimelineLimit:     defaultTimelineLimit,
		TrendingLimit:     defaultTrendingLimit,
		SearchLimit:       defaultSearchLimit,
		AuthorLimit:       defaultAuthorLimit,
		HybridCap:         defaultHybridCap,
		StreamMaxPosts:    200,
		StreamMaxDuration: 2 * time.Minute,
	}
}

func (c RAGConfig) normalized() RAGConfig {
	def := DefaultRAGConfig()
	if c.MaxResults <= 0 {
		c.MaxResults = def.MaxResults
	}
	if c.MinPassages <= 0 {
		c.MinPassages = def.MinPassages
	}
	if c.TimelineLimit <= 0 {
		c.TimelineLimit = def.TimelineLimit
	}
	if c.TrendingLimit <= 0 {
		c.TrendingLimit = def.TrendingLimit
	}
	if c.SearchLimit <= 0 {
		c.SearchLimit = def.SearchLimit
	}
	if c.AuthorLimit <= 0 {
		c.AuthorLimit = def.AuthorLimit
	}
	if c.HybridCap <= 0 {
		c.HybridCap = def.HybridCap
	}
	if c.StreamMaxPosts <= 0 {
		c.StreamMaxPosts = def.StreamMaxPosts
	}
	if c.StreamMaxDuration <= 0 {
		c.StreamMaxDuration = def.StreamMaxDuration
	}
	return c
}

// AskOptions selects the retrieval policy for a single question.
type AskOptions struct {
	// Fresh runs a hybrid search and ingests its results before retrieving.
	Fresh   bool
	Persona string
}

// StreamOptions bounds the streaming tier for a single question.
type StreamOptions struct {
	// Keywords overrides the question as the source of filter terms.
	Keywords    string
	MaxPosts    int
	MaxDuration time.Duration
	Persona     string
}

// StreamStats reports what a streaming session contributed to the index.
type StreamStats struct {
	PostsCollected int
	ChunksAdded    int
}

// RAGService orchestrates the full question path: gather candidate posts,
// ingest them, retrieve the nearest passages, and generate a grounded answer.
type RAGService struct {
	source   PostSource
	streamer Streamer
	embedder Embedder
	store    PassageStore
	ingester *IngestService
	answerer *AnswerService
	cfg      RAGConfig
}

// NewRAGService wires the orchestrator. streamer may be nil when no firehose
// endpoint is configured; the streaming tier then reports upstream
// unavailability.
func NewRAGService(
	source PostSource,
	streamer Streamer,
	embedder Embedder,
	store PassageStore,
	ingester *IngestService,
	answerer *AnswerService,
	cfg RAGConfig,
) *RAGService {
	return &RAGService{
		source:   source,
		streamer: streamer,
		embedder: embedder,
		store:    store,
		ingester: ingester,
		answerer: answerer,
		cfg:      cfg.normalized(),
	}
}

// HybridSearch gathers candidate posts from the home timeline, the trending
// feed, full-text search (authenticated and public), and the author feeds of
// any @handles in the query. Every leg is best effort: a failing leg is
// logged and skipped. Results are deduplicated by URI in arrival order and
// filtered by the query's keywords when that leaves anything.
func (s *RAGService) HybridSearch(ctx context.Context, query string) []domain.Post {
	terms := domain.ExtractKeywords(query, maxQueryTerms)

	var merged []domain.Post
	seen := make(map[string]struct{})
	add := func(posts []domain.Post, err error, leg string) {
		if err != nil {
			log.Printf("hybrid search: %s leg failed: %v", leg, err)
		}
		for _, post := range posts {
			if post.URI == "" || post.Text == "" {
				continue
			}
			if _, ok := seen[post.URI]; ok {
				continue
			}
			seen[post.URI] = struct{}{}
			merged = append(merged, post)
		}
	}

	posts, err := s.source.Timeline(ctx, s.cfg.TimelineLimit)
	add(posts, err, "timeline")

	posts, err = s.source.Trending(ctx, s.cfg.TrendingLimit)
	add(posts, err, "trending")

	for _, match := range mentionRe.FindAllStringSubmatch(query, -1) {
		actor := strings.ToLower(strings.Trim(match[1], "."))
		if actor == "" {
			continue
		}
		posts, err = s.source.AuthorFeed(ctx, actor, s.cfg.AuthorLimit)
		add(posts, err, "author feed")
	}

	posts, err = s.source.SearchPostsAuth(ctx, query, s.cfg.SearchLimit)
	add(posts, err, "search")

	posts, err = s.source.SearchPostsPublic(ctx, query, s.cfg.SearchLimit)
	add(posts, err, "public search")

	// The keyword filter is advisory: when it would discard everything, the
	// unfiltered merge is better than nothing.
	filtered := make([]domain.Post, 0, len(merged))
	for _, post := range merged {
		if domain.MatchesAnyKeyword(post.Text, terms) {
			filtered = append(filtered, post)
		}
	}
	if len(filtered) > 0 {
		merged = filtered
	}

	if len(merged) > s.cfg.HybridCap {
		merged = merged[:s.cfg.HybridCap]
	}
	return merged
}

// Ask answers a question from the index. With opts.Fresh it first runs a
// hybrid search and ingests the candidates. ErrNoRelevantPosts means
// retrieval found nothing; an answer with empty Text means retrieval found
// passages but generation produced nothing, which is a valid outcome.
func (s *RAGService) Ask(ctx context.Context, question string, opts AskOptions) (domain.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return domain.Answer{}, domain.ErrEmptyQuestion
	}

	tier := TierIndex
	if opts.Fresh {
		tier = TierFresh
	}
	ctx, span := telemetry.StartSpan(ctx, "RAGService.Ask", telemetry.SpanAttributes{
		Tier:      tier,
		Operation: "ask",
	})
	defer span.End()

	if opts.Fresh {
		candidates := s.HybridSearch(ctx, question)
		if len(candidates) > 0 {
			if _, err := s.ingester.IngestPosts(ctx, candidates); err != nil {
				if ctx.Err() != nil {
					return domain.Answer{}, ctx.Err()
				}
				log.Printf("ask: ingest failed, answering from existing index: %v", err)
			}
		}
	}

	return s.answerFromIndex(ctx, question, opts.Persona)
}

// AskStreamed answers a question from posts collected live off the firehose.
// Authentication failures propagate: without a session the identity of
// streamed authors cannot be resolved.
func (s *RAGService) AskStreamed(ctx context.Context, question string, opts StreamOptions) (domain.Answer, StreamStats, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return domain.Answer{}, StreamStats{}, domain.ErrEmptyQuestion
	}
	if s.streamer == nil {
		return domain.Answer{}, StreamStats{}, domain.NewDomainError(domain.ErrCodeUpstreamUnavailable, "no stream source configured")
	}

	ctx, span := telemetry.StartSpan(ctx, "RAGService.AskStreamed", telemetry.SpanAttributes{
		Tier:      TierStream,
		Operation: "ask",
	})
	defer span.End()

	if err := s.source.EnsureSession(ctx); err != nil {
		span.SetError(err)
		return domain.Answer{}, StreamStats{}, err
	}

	keywords := strings.TrimSpace(opts.Keywords)
	if keywords == "" {
		keywords = question
	}
	req := StreamRequest{
		Keywords:    domain.ExtractKeywords(keywords, maxQueryTerms),
		MaxPosts:    opts.MaxPosts,
		MaxDuration: opts.MaxDuration,
	}
	if req.MaxPosts <= 0 {
		req.MaxPosts = s.cfg.StreamMaxPosts
	}
	if req.MaxDuration <= 0 {
		req.MaxDuration = s.cfg.StreamMaxDuration
	}

	posts, err := s.streamer.Collect(ctx, req)
	if err != nil {
		span.SetError(err)
		return domain.Answer{}, StreamStats{}, err
	}

	stats := StreamStats{PostsCollected: len(posts)}
	if len(posts) > 0 {
		added, err := s.ingester.IngestPosts(ctx, posts)
		if err != nil {
			if ctx.Err() != nil {
				return domain.Answer{}, stats, ctx.Err()
			}
			log.Printf("stream ask: ingest failed, answering from existing index: %v", err)
		}
		stats.ChunksAdded = added
	}

	answer, err := s.answerFromIndex(ctx, question, opts.Persona)
	return answer, stats, err
}

// AskTiered runs the fresh policy first and falls back to a bounded
// streaming session when the fresh tier retrieved fewer than MinPassages
// passages or produced no answer text.
func (s *RAGService) AskTiered(ctx context.Context, question, persona string) (domain.Answer, error) {
	ctx, span := telemetry.StartSpan(ctx, "RAGService.AskTiered", telemetry.SpanAttributes{
		Tier:      TierTiered,
		Operation: "ask",
	})
	defer span.End()

	answer, err := s.Ask(ctx, question, AskOptions{Fresh: true, Persona: persona})
	if err != nil && !errors.Is(err, domain.ErrNoRelevantPosts) {
		return answer, err
	}
	if err == nil && answer.HasText() && answer.ContextUsed >= s.cfg.MinPassages {
		return answer, nil
	}

	telemetry.AddBreadcrumb(ctx, "retrieval", "fresh tier below threshold, falling back to streaming")
	streamed, _, streamErr := s.AskStreamed(ctx, question, StreamOptions{Persona: persona})
	if streamErr != nil {
		// The fallback tier could not improve on the fresh tier; keep
		// whatever the fresh tier produced.
		if err == nil && answer.HasText() {
			log.Printf("tiered ask: streaming fallback failed, keeping fresh answer: %v", streamErr)
			return answer, nil
		}
		return streamed, streamErr
	}
	return streamed, nil
}

// answerFromIndex retrieves the nearest passages and generates the answer.
func (s *RAGService) answerFromIndex(ctx context.Context, question, persona string) (domain.Answer, error) {
	passages := s.retrieve(ctx, question, s.cfg.MaxResults)
	if ctx.Err() != nil {
		return domain.Answer{}, ctx.Err()
	}
	if len(passages) == 0 {
		return domain.Answer{}, domain.ErrNoRelevantPosts
	}

	text := s.answerer.Answer(ctx, question, passages, persona)
	return domain.Answer{
		Text:        text,
		ContextUsed: len(passages),
		Sources:     citations(passages),
	}, nil
}

// retrieve embeds the question and queries the store, restricted to the
// recency window first and unrestricted when the window comes back empty.
// Faults degrade to an empty result; the caller surfaces that as
// ErrNoRelevantPosts.
func (s *RAGService) retrieve(ctx context.Context, question string, k int) []domain.Passage {
	embedding, err := s.embedder.EmbedQuery(ctx, question)
	if err != nil {
		log.Printf("retrieve: query embedding failed: %v", err)
		return nil
	}

	passages, err := s.store.Query(ctx, embedding, k, s.cfg.RecentDays)
	if err != nil {
		log.Printf("retrieve: similarity query failed: %v", err)
		telemetry.CaptureError(ctx, err)
		return nil
	}
	if len(passages) == 0 && s.cfg.RecentDays > 0 {
		passages, err = s.store.Query(ctx, embedding, k, 0)
		if err != nil {
			log.Printf("retrieve: unrestricted similarity query failed: %v", err)
			return nil
		}
	}
	return passages
}

// citations returns the first maxCitations distinct post URIs in ranked
// order.
func citations(passages []domain.Passage) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, passage := range passages {
		if passage.Chunk.Post == nil {
			continue
		}
		uri := passage.Chunk.Post.URI
		if uri == "" {
			continue
		}
		if _, ok := seen[uri]; ok {
			continue
		}
		seen[uri] = struct{}{}
		out = append(out, uri)
		if len(out) == maxCitations {
			break
		}
	}
	return out
}
