package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bluesearch/bluesearch/internal/bluesky"
	"github.com/bluesearch/bluesearch/internal/config"
	"github.com/bluesearch/bluesearch/internal/database"
	"github.com/bluesearch/bluesearch/internal/domain"
	"github.com/bluesearch/bluesearch/internal/firehose"
	"github.com/bluesearch/bluesearch/internal/openai"
	"github.com/bluesearch/bluesearch/internal/repository"
	"github.com/bluesearch/bluesearch/internal/service"
)

// pipeline holds the fully wired retrieval stack shared by every command.
type pipeline struct {
	cfg      *config.Config
	pool     *pgxpool.Pool
	repo     *repository.PassageRepository
	logs     *repository.QueryLogRepository
	bsky     *bluesky.Client
	streamer streamAdapter
	ingester *service.IngestService
	rag      *service.RAGService
}

// streamAdapter bridges the firehose subscriber to the orchestrator's
// Streamer contract.
type streamAdapter struct {
	sub *firehose.Subscriber
}

func (a streamAdapter) Collect(ctx context.Context, req service.StreamRequest) ([]domain.Post, error) {
	return a.sub.Collect(ctx, firehose.Options{
		Keywords:    req.Keywords,
		MaxPosts:    req.MaxPosts,
		MaxDuration: req.MaxDuration,
	})
}

func newPipeline(ctx context.Context) (*pipeline, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return newPipelineWithConfig(ctx, cfg)
}

func newPipelineWithConfig(ctx context.Context, cfg *config.Config) (*pipeline, error) {
	if !cfg.HasOpenAI() {
		return nil, fmt.Errorf("BLUESEARCH_OPENAI_API_KEY is required")
	}

	pool, err := database.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	repo := repository.NewPassageRepository(pool)

	bsky := bluesky.NewClient(cfg.BlueskyService)
	if cfg.HasBluesky() {
		bsky.SetCredentials(cfg.BlueskyHandle, cfg.BlueskyAppPassword)
	}

	ai := openai.NewClientWithConfig(openai.Config{
		APIKey:         cfg.OpenAIAPIKey,
		BaseURL:        cfg.OpenAIBaseURL,
		EmbeddingModel: cfg.EmbeddingModel,
		ChatModel:      cfg.ChatModel,
	})

	identity := bluesky.NewIdentityCache(bsky)
	streamer := streamAdapter{sub: firehose.NewSubscriber(cfg.JetstreamURL, identity)}

	ingestCfg := service.DefaultIngestConfig()
	ingestCfg.Chunk = service.ChunkConfig{Size: cfg.ChunkSize, Overlap: cfg.ChunkOverlap}
	ingester := service.NewIngestServiceWithConfig(ai, repo, ingestCfg)

	answerer := service.NewAnswerServiceWithConfig(ai, service.AnswerConfig{
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	})

	ragCfg := service.DefaultRAGConfig()
	ragCfg.MaxResults = cfg.MaxResults
	ragCfg.RecentDays = cfg.RecentDays
	ragCfg.MinPassages = cfg.MinPassages
	ragCfg.StreamMaxPosts = cfg.StreamMaxPosts
	ragCfg.StreamMaxDuration = cfg.StreamDuration()

	rag := service.NewRAGService(bsky, streamer, ai, repo, ingester, answerer, ragCfg)

	return &pipeline{
		cfg:      cfg,
		pool:     pool,
		repo:     repo,
		logs:     repository.NewQueryLogRepository(pool),
		bsky:     bsky,
		streamer: streamer,
		ingester: ingester,
		rag:      rag,
	}, nil
}

func (p *pipeline) Close() {
	p.pool.Close()
}

// printAnswer renders an orchestrator outcome for terminal use.
func printAnswer(w io.Writer, answer domain.Answer, err error) error {
	if errors.Is(err, domain.ErrNoRelevantPosts) {
		fmt.Fprintln(w, "I couldn't find relevant Bluesky posts to answer that question.")
		return nil
	}
	if err != nil {
		return err
	}

	if answer.HasText() {
		fmt.Fprintln(w, answer.Text)
	} else {
		fmt.Fprintln(w, "I couldn't generate an answer from the retrieved posts.")
	}

	fmt.Fprintf(w, "\n(%d passages used)\n", answer.ContextUsed)
	if len(answer.Sources) > 0 {
		fmt.Fprintln(w, "\nSources:")
		for _, uri := range answer.Sources {
			fmt.Fprintf(w, "  %s\n", domain.PostWebURL(uri))
		}
	}
	return nil
}
