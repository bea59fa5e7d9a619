package api

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bluesearch/bluesearch/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestDomainErrorToHTTP(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"validation", domain.ErrEmptyQuestion, http.StatusBadRequest},
		{"empty result", domain.ErrNoRelevantPosts, http.StatusNotFound},
		{"auth failure", domain.ErrBlueskyAuthFailed, http.StatusBadGateway},
		{"upstream", domain.NewDomainError(domain.ErrCodeUpstreamUnavailable, "firehose down"), http.StatusBadGateway},
		{"internal", domain.NewDomainError(domain.ErrCodeInternalError, "boom"), http.StatusInternalServerError},
		{"wrapped domain error", fmt.Errorf("ask: %w", domain.ErrNoRelevantPosts), http.StatusNotFound},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DomainErrorToHTTP(tt.err))
		})
	}
}

func TestHandleError(t *testing.T) {
	rec := httptest.NewRecorder()
	HandleError(rec, domain.ErrNoRelevantPosts)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "no relevant posts found")
}
