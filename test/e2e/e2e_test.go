//go:build e2e

package e2e

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bluesearch/bluesearch/internal/api/handlers"
	"github.com/bluesearch/bluesearch/internal/pagination"
	"github.com/bluesearch/bluesearch/internal/service"
)

func TestE2E_QueryFreshPipeline(t *testing.T) {
	env := SetupEnv(t)

	var answer handlers.AnswerResponse
	code := env.PostJSON("/query", handlers.QueryRequest{Question: "how did the launch go?"}, &answer)
	require.Equal(t, 200, code)

	assert.Equal(t, cannedAnswer, answer.Answer)
	assert.Greater(t, answer.ContextUsed, 0)
	require.NotEmpty(t, answer.Sources)
	assert.Contains(t, answer.Sources[0].URL, "https://bsky.app/profile/")

	// the fresh tier indexed the fixture posts on the way through
	var status handlers.StatusResponse
	code = env.GetJSON("/status", &status)
	require.Equal(t, 200, code)
	assert.EqualValues(t, 3, status.Passages)
}

func TestE2E_QueryRecordsLog(t *testing.T) {
	env := SetupEnv(t)

	var answer handlers.AnswerResponse
	code := env.PostJSON("/query", handlers.QueryRequest{Question: "how did the launch go?"}, &answer)
	require.Equal(t, 200, code)

	var (
		question string
		tier     string
		answered bool
	)
	err := env.Pool.QueryRow(env.Ctx,
		`SELECT question, tier, answered FROM query_log ORDER BY created_at DESC LIMIT 1`,
	).Scan(&question, &tier, &answered)
	require.NoError(t, err)
	assert.Equal(t, "how did the launch go?", question)
	assert.Equal(t, service.TierFresh, tier)
	assert.True(t, answered)
}

func TestE2E_QueryEmptyIndexWithoutFresh(t *testing.T) {
	env := SetupEnv(t)

	fresh := false
	var answer handlers.AnswerResponse
	code := env.PostJSON("/query", handlers.QueryRequest{Question: "anything?", Fresh: &fresh}, &answer)
	require.Equal(t, 200, code)
	assert.Contains(t, answer.Answer, "couldn't find relevant Bluesky posts")
	assert.Empty(t, answer.Sources)
}

func TestE2E_PassagesPagination(t *testing.T) {
	env := SetupEnv(t)

	var answer handlers.AnswerResponse
	code := env.PostJSON("/query", handlers.QueryRequest{Question: "how did the launch go?"}, &answer)
	require.Equal(t, 200, code)

	var first pagination.PageResult[handlers.PassageResponse]
	code = env.GetJSON("/passages?limit=2", &first)
	require.Equal(t, 200, code)
	require.Len(t, first.Items, 2)
	require.True(t, first.HasMore)
	require.NotEmpty(t, first.Cursor)

	var second pagination.PageResult[handlers.PassageResponse]
	code = env.GetJSON("/passages?limit=2&cursor="+url.QueryEscape(first.Cursor), &second)
	require.Equal(t, 200, code)
	require.Len(t, second.Items, 1)

	seen := map[string]bool{}
	for _, item := range append(first.Items, second.Items...) {
		assert.False(t, seen[item.ID], "no passage repeats across pages")
		seen[item.ID] = true
	}
}

func TestE2E_Reset(t *testing.T) {
	env := SetupEnv(t)

	var answer handlers.AnswerResponse
	code := env.PostJSON("/query", handlers.QueryRequest{Question: "how did the launch go?"}, &answer)
	require.Equal(t, 200, code)

	code = env.PostJSON("/reset", nil, nil)
	require.Equal(t, 200, code)

	var status handlers.StatusResponse
	code = env.GetJSON("/status", &status)
	require.Equal(t, 200, code)
	assert.Zero(t, status.Passages)
}
