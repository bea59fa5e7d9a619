package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluesearch/bluesearch/internal/service"
)

func TestQueryLogRepository_CreateQueryLog(t *testing.T) {
	pool, ctx := setupPool(t)
	repo := NewQueryLogRepository(pool)

	id, err := repo.CreateQueryLog(ctx, service.QueryLogEntry{
		Question:     "what happened with the launch?",
		Tier:         service.TierFresh,
		Answered:     true,
		PassageCount: 4,
		DurationMs:   820,
		Sources:      []string{"at://did:plc:a/app.bsky.feed.post/1"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	var (
		question string
		tier     string
		answered bool
		count    int
	)
	err = pool.QueryRow(ctx,
		`SELECT question, tier, answered, passage_count FROM query_log WHERE id = $1`, id,
	).Scan(&question, &tier, &answered, &count)
	require.NoError(t, err)
	assert.Equal(t, "what happened with the launch?", question)
	assert.Equal(t, service.TierFresh, tier)
	assert.True(t, answered)
	assert.Equal(t, 4, count)
}

func TestQueryLogRepository_NilSources(t *testing.T) {
	pool, ctx := setupPool(t)
	repo := NewQueryLogRepository(pool)

	id, err := repo.CreateQueryLog(ctx, service.QueryLogEntry{
		Question: "anything?",
		Tier:     service.TierIndex,
	})
	require.NoError(t, err)

	var sources string
	err = pool.QueryRow(ctx, `SELECT sources::text FROM query_log WHERE id = $1`, id).Scan(&sources)
	require.NoError(t, err)
	assert.Equal(t, "[]", sources)
}
