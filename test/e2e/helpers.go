//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"hash/fnv"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bluesearch/bluesearch/internal/api/handlers"
	"github.com/bluesearch/bluesearch/internal/domain"
	"github.com/bluesearch/bluesearch/internal/openai"
	"github.com/bluesearch/bluesearch/internal/repository"
	"github.com/bluesearch/bluesearch/internal/server"
	"github.com/bluesearch/bluesearch/internal/service"
	"github.com/bluesearch/bluesearch/internal/testutil"
)

const cannedAnswer = "Based on the posts, the launch went well. @alice.bsky.social reported a clean liftoff."

// TestEnv wires the full pipeline against real Postgres and a fake model API.
type TestEnv struct {
	T          *testing.T
	Ctx        context.Context
	Pool       *pgxpool.Pool
	Repo       *repository.PassageRepository
	Source     *fixtureSource
	ServerURL  string
	HTTPClient *http.Client
}

// fixtureSource serves canned posts in place of the Bluesky API.
type fixtureSource struct {
	timeline []domain.Post
}

func (s *fixtureSource) EnsureSession(context.Context) error { return nil }

func (s *fixtureSource) Timeline(_ context.Context, limit int) ([]domain.Post, error) {
	if len(s.timeline) > limit {
		return s.timeline[:limit], nil
	}
	return s.timeline, nil
}

func (s *fixtureSource) Trending(context.Context, int) ([]domain.Post, error) { return nil, nil }

func (s *fixtureSource) AuthorFeed(context.Context, string, int) ([]domain.Post, error) {
	return nil, nil
}

func (s *fixtureSource) SearchPostsAuth(context.Context, string, int) ([]domain.Post, error) {
	return nil, nil
}

func (s *fixtureSource) SearchPostsPublic(context.Context, string, int) ([]domain.Post, error) {
	return nil, nil
}

// fakeEmbedding derives a deterministic unit-scale vector from the text so
// identical passages embed identically across runs.
func fakeEmbedding(text string) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	vec := make([]float32, 1536)
	for i := range vec {
		seed = seed*1664525 + 1013904223
		vec[i] = float32(seed%2000)/1000 - 1
	}
	return vec
}

// newFakeModelAPI stands in for the OpenAI API: deterministic embeddings and
// one canned chat completion.
func newFakeModelAPI(t *testing.T) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/embeddings"):
			var req struct {
				Input []string `json:"input"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			data := make([]map[string]any, 0, len(req.Input))
			for i, text := range req.Input {
				data = append(data, map[string]any{
					"object":    "embedding",
					"index":     i,
					"embedding": fakeEmbedding(text),
				})
			}
			json.NewEncoder(w).Encode(map[string]any{
				"object": "list",
				"model":  "text-embedding-ada-002",
				"data":   data,
			})
		case strings.HasSuffix(r.URL.Path, "/chat/completions"):
			json.NewEncoder(w).Encode(map[string]any{
				"id":     "chatcmpl-e2e",
				"object": "chat.completion",
				"choices": []map[string]any{
					{
						"index":         0,
						"finish_reason": "stop",
						"message": map[string]any{
							"role":    "assistant",
							"content": cannedAnswer,
						},
					},
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func fixturePosts() []domain.Post {
	base := time.Now().UTC().Add(-2 * time.Hour)
	return []domain.Post{
		{
			URI:       "at://did:plc:alice/app.bsky.feed.post/1",
			Author:    "alice.bsky.social",
			Text:      "Clean liftoff for the launch this morning, all stages nominal.",
			CreatedAt: base,
			LikeCount: 12,
		},
		{
			URI:       "at://did:plc:bob/app.bsky.feed.post/2",
			Author:    "bob.bsky.social",
			Text:      "Watching the launch stream, the booster landing looked perfect.",
			CreatedAt: base.Add(10 * time.Minute),
			LikeCount: 4,
		},
		{
			URI:       "at://did:plc:carol/app.bsky.feed.post/3",
			Author:    "carol.bsky.social",
			Text:      "Launch day! The payload deployed without a hitch.",
			CreatedAt: base.Add(20 * time.Minute),
			LikeCount: 7,
		},
	}
}

// SetupEnv starts Postgres, applies migrations, and serves the API backed by
// the fake model endpoint and a fixture post source.
func SetupEnv(t *testing.T) *TestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	t.Cleanup(func() { pgC.Terminate(ctx) })

	pool, err := pgxpool.New(ctx, pgC.ConnectionString())
	if err != nil {
		t.Fatalf("failed to create pool: %v", err)
	}
	t.Cleanup(pool.Close)
	pgC.ApplyMigrations(ctx, t, pool)

	modelAPI := newFakeModelAPI(t)
	ai := openai.NewClientWithConfig(openai.Config{
		APIKey:  "e2e-key",
		BaseURL: modelAPI.URL + "/v1",
	})

	repo := repository.NewPassageRepository(pool)
	source := &fixtureSource{timeline: fixturePosts()}

	ingestCfg := service.DefaultIngestConfig()
	ingestCfg.CallDelay = 0
	ingestCfg.BatchDelay = 0
	ingester := service.NewIngestServiceWithConfig(ai, repo, ingestCfg)
	answerer := service.NewAnswerService(ai)
	rag := service.NewRAGService(source, nil, ai, repo, ingester, answerer, service.DefaultRAGConfig())

	queryHandler := handlers.NewQueryHandler(rag, repo, repository.NewQueryLogRepository(pool))
	srv := httptest.NewServer(server.NewRouter(server.RouterConfig{QueryHandler: queryHandler}))
	t.Cleanup(srv.Close)

	return &TestEnv{
		T:          t,
		Ctx:        ctx,
		Pool:       pool,
		Repo:       repo,
		Source:     source,
		ServerURL:  srv.URL,
		HTTPClient: srv.Client(),
	}
}

// PostJSON sends a JSON body and decodes the envelope's data field into out.
func (e *TestEnv) PostJSON(path string, body any, out any) int {
	e.T.Helper()

	payload, err := json.Marshal(body)
	if err != nil {
		e.T.Fatalf("failed to marshal body: %v", err)
	}
	resp, err := e.HTTPClient.Post(e.ServerURL+path, "application/json", strings.NewReader(string(payload)))
	if err != nil {
		e.T.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	e.decodeData(resp, out)
	return resp.StatusCode
}

// GetJSON fetches a path and decodes the envelope's data field into out.
func (e *TestEnv) GetJSON(path string, out any) int {
	e.T.Helper()

	resp, err := e.HTTPClient.Get(e.ServerURL + path)
	if err != nil {
		e.T.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	e.decodeData(resp, out)
	return resp.StatusCode
}

func (e *TestEnv) decodeData(resp *http.Response, out any) {
	e.T.Helper()
	if out == nil {
		return
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		e.T.Fatalf("failed to decode response: %v", err)
	}
	if envelope.Data != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			e.T.Fatalf("failed to decode data: %v", err)
		}
	}
}
