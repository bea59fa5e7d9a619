package repository

import (
	"context"
	"testing"
	"time"

	"github.com/bluesearch/bluesearch/internal/domain"
	"github.com/bluesearch/bluesearch/internal/pagination"
	"github.com/bluesearch/bluesearch/internal/testutil"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupPool(t *testing.T) (*pgxpool.Pool, context.Context) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container := testutil.NewPostgresContainer(ctx, t)
	t.Cleanup(func() { container.Terminate(ctx) })

	pool, err := pgxpool.New(ctx, container.ConnectionString())
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	container.ApplyMigrations(ctx, t, pool)
	return pool, ctx
}

func setupRepo(t *testing.T) (*PassageRepository, context.Context) {
	pool, ctx := setupPool(t)
	return NewPassageRepository(pool), ctx
}

func testVector(fill float32) []float32 {
	vec := make([]float32, 1536)
	for i := range vec {
		vec[i] = fill
	}
	return vec
}

func testChunk(uri, text string, index, total int, createdAt time.Time) domain.Chunk {
	return domain.Chunk{
		Text:  text,
		Index: index,
		Total: total,
		Post: &domain.Post{
			URI:               uri,
			Author:            "author.bsky.social",
			AuthorDisplayName: "Author",
			Text:              text,
			CreatedAt:         createdAt,
			LikeCount:         2,
		},
	}
}

func TestPassageRepository_AddBatchIdempotent(t *testing.T) {
	repo, ctx := setupRepo(t)

	now := time.Now().UTC()
	chunks := []domain.Chunk{
		testChunk("at://did:plc:a/app.bsky.feed.post/1", "first chunk", 0, 2, now),
		testChunk("at://did:plc:a/app.bsky.feed.post/1", "second chunk", 1, 2, now),
	}
	embeddings := [][]float32{testVector(0.1), testVector(0.2)}

	added, err := repo.AddBatch(ctx, chunks, embeddings)
	require.NoError(t, err)
	assert.Equal(t, 2, added)

	// re-ingesting the same batch is a no-op for the row count
	_, err = repo.AddBatch(ctx, chunks, embeddings)
	require.NoError(t, err)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestPassageRepository_AddBatchSkipsUnusablePairs(t *testing.T) {
	repo, ctx := setupRepo(t)

	now := time.Now().UTC()
	chunks := []domain.Chunk{
		testChunk("at://did:plc:a/app.bsky.feed.post/2", "usable", 0, 3, now),
		testChunk("at://did:plc:a/app.bsky.feed.post/2", "   ", 1, 3, now),
		testChunk("at://did:plc:a/app.bsky.feed.post/2", "no embedding", 2, 3, now),
	}
	embeddings := [][]float32{testVector(0.1), testVector(0.2), nil}

	added, err := repo.AddBatch(ctx, chunks, embeddings)
	require.NoError(t, err)
	assert.Equal(t, 1, added)
}

func TestPassageRepository_QueryRanksByDistance(t *testing.T) {
	repo, ctx := setupRepo(t)

	now := time.Now().UTC()
	chunks := []domain.Chunk{
		testChunk("at://p/app.bsky.feed.post/near1", "near one", 0, 1, now),
		testChunk("at://p/app.bsky.feed.post/near2", "near two", 0, 1, now),
		testChunk("at://p/app.bsky.feed.post/near3", "near three", 0, 1, now),
		testChunk("at://p/app.bsky.feed.post/far1", "far one", 0, 1, now),
		testChunk("at://p/app.bsky.feed.post/far2", "far two", 0, 1, now),
	}
	embeddings := [][]float32{
		testVector(0.50), testVector(0.52), testVector(0.48),
		testVector(-0.9), testVector(-0.8),
	}
	_, err := repo.AddBatch(ctx, chunks, embeddings)
	require.NoError(t, err)

	results, err := repo.Query(ctx, testVector(0.5), 3, 0)
	require.NoError(t, err)
	require.Len(t, results, 3)

	uris := []string{
		results[0].Chunk.Post.URI,
		results[1].Chunk.Post.URI,
		results[2].Chunk.Post.URI,
	}
	for _, uri := range uris {
		assert.Contains(t, uri, "near")
	}
	assert.LessOrEqual(t, results[0].Distance, results[1].Distance)
	assert.LessOrEqual(t, results[1].Distance, results[2].Distance)
}

func TestPassageRepository_QueryRecencyWindow(t *testing.T) {
	repo, ctx := setupRepo(t)

	old := time.Now().UTC().AddDate(0, 0, -30)
	chunks := []domain.Chunk{
		testChunk("at://p/app.bsky.feed.post/old", "old post", 0, 1, old),
	}
	_, err := repo.AddBatch(ctx, chunks, [][]float32{testVector(0.3)})
	require.NoError(t, err)

	// window excludes everything indexed
	filtered, err := repo.Query(ctx, testVector(0.3), 5, 14)
	require.NoError(t, err)
	assert.Empty(t, filtered)

	// the unrestricted retry the orchestrator performs finds it
	unrestricted, err := repo.Query(ctx, testVector(0.3), 5, 0)
	require.NoError(t, err)
	assert.Len(t, unrestricted, 1)
}

func TestPassageRepository_Clear(t *testing.T) {
	repo, ctx := setupRepo(t)

	chunks := []domain.Chunk{
		testChunk("at://p/app.bsky.feed.post/x", "some post", 0, 1, time.Now().UTC()),
	}
	_, err := repo.AddBatch(ctx, chunks, [][]float32{testVector(0.1)})
	require.NoError(t, err)

	require.NoError(t, repo.Clear(ctx))
	require.NoError(t, repo.Clear(ctx), "clear is idempotent")

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestPassageRepository_ListPagesNewestFirst(t *testing.T) {
	repo, ctx := setupRepo(t)

	base := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	var chunks []domain.Chunk
	var embeddings [][]float32
	for i := 0; i < 5; i++ {
		uri := "at://p/app.bsky.feed.post/" + string(rune('a'+i))
		chunks = append(chunks, testChunk(uri, "post "+uri, 0, 1, base.Add(-time.Duration(i)*time.Hour)))
		embeddings = append(embeddings, testVector(0.1))
	}
	_, err := repo.AddBatch(ctx, chunks, embeddings)
	require.NoError(t, err)

	first, err := repo.List(ctx, nil, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Contains(t, first[0].Chunk.Post.URI, "/a", "newest first")
	assert.Contains(t, first[1].Chunk.Post.URI, "/b")

	cursor := &pagination.Cursor{
		LastID:    first[1].ID,
		CreatedAt: first[1].Chunk.Post.CreatedAt,
	}
	second, err := repo.List(ctx, cursor, 2)
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.Contains(t, second[0].Chunk.Post.URI, "/c")
	assert.Contains(t, second[1].Chunk.Post.URI, "/d")

	cursor = &pagination.Cursor{
		LastID:    second[1].ID,
		CreatedAt: second[1].Chunk.Post.CreatedAt,
	}
	last, err := repo.List(ctx, cursor, 2)
	require.NoError(t, err)
	require.Len(t, last, 1)
	assert.Contains(t, last[0].Chunk.Post.URI, "/e")
}

func TestPassageID_Deterministic(t *testing.T) {
	a := PassageID("at://did:plc:a/app.bsky.feed.post/1", 0)
	b := PassageID("at://did:plc:a/app.bsky.feed.post/1", 0)
	c := PassageID("at://did:plc:a/app.bsky.feed.post/1", 1)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}
