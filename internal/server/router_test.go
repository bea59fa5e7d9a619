package server

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bluesearch/bluesearch/internal/api/handlers"
	"github.com/bluesearch/bluesearch/internal/domain"
	"github.com/bluesearch/bluesearch/internal/pagination"
	"github.com/bluesearch/bluesearch/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubRAG struct{}

func (stubRAG) Ask(context.Context, string, service.AskOptions) (domain.Answer, error) {
	return domain.Answer{Text: "ok", ContextUsed: 1}, nil
}

func (stubRAG) AskStreamed(context.Context, string, service.StreamOptions) (domain.Answer, service.StreamStats, error) {
	return domain.Answer{Text: "ok", ContextUsed: 1}, service.StreamStats{}, nil
}

func (stubRAG) AskTiered(context.Context, string, string) (domain.Answer, error) {
	return domain.Answer{Text: "ok", ContextUsed: 1}, nil
}

type stubIndex struct{}

func (stubIndex) Count(context.Context) (int64, error) { return 0, nil }
func (stubIndex) Clear(context.Context) error          { return nil }

func (stubIndex) List(context.Context, *pagination.Cursor, int) ([]domain.Passage, error) {
	return nil, nil
}

func newTestRouter() http.Handler {
	return NewRouter(RouterConfig{
		QueryHandler: handlers.NewQueryHandler(stubRAG{}, stubIndex{}, nil),
	})
}

func TestRouter_Health(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRouter_Routes(t *testing.T) {
	router := newTestRouter()

	tests := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{http.MethodGet, "/status", "", http.StatusOK},
		{http.MethodGet, "/passages", "", http.StatusOK},
		{http.MethodPost, "/query", `{"question":"q"}`, http.StatusOK},
		{http.MethodPost, "/stream-query", `{"question":"q"}`, http.StatusOK},
		{http.MethodPost, "/reset", "", http.StatusOK},
		{http.MethodGet, "/nope", "", http.StatusNotFound},
		{http.MethodDelete, "/query", "", http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, bytes.NewBufferString(tt.body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			require.Equal(t, tt.want, rec.Code)
		})
	}
}
