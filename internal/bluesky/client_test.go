package bluesky

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bluesearch/bluesearch/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSessionServer(t *testing.T, extra http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/xrpc/com.atproto.server.createSession", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"accessJwt": "jwt-token",
			"did":       "did:plc:me",
			"handle":    "me.bsky.social",
		})
	})
	if extra != nil {
		mux.HandleFunc("/", extra)
	}
	return httptest.NewServer(mux)
}

func TestLogin_Success(t *testing.T) {
	srv := newSessionServer(t, nil)
	defer srv.Close()

	client := NewClient(srv.URL)
	err := client.Login(context.Background(), "me.bsky.social", "app-pass")
	require.NoError(t, err)
	assert.True(t, client.Authenticated())
	assert.Equal(t, "did:plc:me", client.DID())
}

func TestLogin_FailureIsAuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"AuthenticationRequired"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	err := client.Login(context.Background(), "me.bsky.social", "wrong")
	require.Error(t, err)

	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrCodeAuthFailure, domainErr.Code)
}

func TestTimeline_RequiresAuth(t *testing.T) {
	client := NewClient("http://unused.invalid")
	_, err := client.Timeline(context.Background(), 10)
	assert.ErrorIs(t, err, domain.ErrBlueskyAuthFailed)
}

func TestTimeline_PagesThroughCursor(t *testing.T) {
	page := 0
	srv := newSessionServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/xrpc/app.bsky.feed.getTimeline" {
			http.NotFound(w, r)
			return
		}
		assert.Equal(t, "Bearer jwt-token", r.Header.Get("Authorization"))

		page++
		resp := map[string]any{
			"feed": []map[string]any{
				{"post": map[string]any{
					"uri":    "at://did:plc:a/app.bsky.feed.post/p" + r.URL.Query().Get("cursor"),
					"cid":    "cid1",
					"author": map[string]any{"handle": "a.bsky.social", "displayName": "A"},
					"record": map[string]any{"text": "hello &amp; welcome", "createdAt": "2025-06-01T10:00:00Z"},
					"likeCount": 3,
				}},
			},
		}
		if page == 1 {
			resp["cursor"] = "next"
		}
		json.NewEncoder(w).Encode(resp)
	})
	defer srv.Close()

	client := NewClient(srv.URL)
	require.NoError(t, client.Login(context.Background(), "me", "pass"))

	posts, err := client.Timeline(context.Background(), 120)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "hello & welcome", posts[0].Text, "text must be cleaned")
	assert.Equal(t, "A", posts[0].AuthorDisplayName)
	assert.Equal(t, 3, posts[0].LikeCount)
	assert.Equal(t, 2025, posts[0].CreatedAt.Year())
}

func TestSearchPostsPublic_MapsPosts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/xrpc/app.bsky.feed.searchPosts", r.URL.Path)
		assert.Equal(t, "climate", r.URL.Query().Get("q"))
		json.NewEncoder(w).Encode(map[string]any{
			"posts": []map[string]any{
				{
					"uri":    "at://did:plc:x/app.bsky.feed.post/1",
					"author": map[string]any{"handle": "x.bsky.social"},
					"record": map[string]any{"text": "#climate now", "createdAt": "bad-timestamp"},
				},
			},
		})
	}))
	defer srv.Close()

	client := NewClient("http://unused.invalid")
	client.publicAPI = srv.URL

	posts, err := client.SearchPostsPublic(context.Background(), "climate", 25)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "x.bsky.social", posts[0].AuthorDisplayName, "display name falls back to handle")
	assert.False(t, posts[0].CreatedAt.IsZero(), "malformed timestamp defaults to now")
}

func TestGetProfile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/xrpc/app.bsky.actor.getProfile", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{
			"did":    "did:plc:y",
			"handle": "y.bsky.social",
		})
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	profile, err := client.GetProfile(context.Background(), "did:plc:y")
	require.NoError(t, err)
	assert.Equal(t, "y.bsky.social", profile.Handle)
	assert.Equal(t, "y.bsky.social", profile.DisplayName)
}
