package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/bluesearch/bluesearch/internal/api"
	"github.com/bluesearch/bluesearch/internal/domain"
	"github.com/bluesearch/bluesearch/internal/pagination"
	"github.com/bluesearch/bluesearch/internal/service"
)

// Messages for the two valid "no answer" outcomes. Both are responses, not
// errors: an empty index and a refused generation are expected end states.
const (
	noRelevantPostsMessage  = "I couldn't find relevant Bluesky posts to answer that question."
	generationFailedMessage = "I couldn't generate an answer from the retrieved posts."
)

// AskService is the orchestrator surface the HTTP API exposes.
type AskService interface {
	Ask(ctx context.Context, question string, opts service.AskOptions) (domain.Answer, error)
	AskStreamed(ctx context.Context, question string, opts service.StreamOptions) (domain.Answer, service.StreamStats, error)
	AskTiered(ctx context.Context, question, persona string) (domain.Answer, error)
}

// IndexAdmin covers the index maintenance and inspection operations.
type IndexAdmin interface {
	Count(ctx context.Context) (int64, error)
	Clear(ctx context.Context) error
	List(ctx context.Context, cursor *pagination.Cursor, limit int) ([]domain.Passage, error)
}

type QueryHandler struct {
	rag   AskService
	index IndexAdmin
	logs  service.QueryLogRepository // optional
}

func NewQueryHandler(rag AskService, index IndexAdmin, logs service.QueryLogRepository) *QueryHandler {
	return &QueryHandler{rag: rag, index: index, logs: logs}
}

type QueryRequest struct {
	Question string `json:"question"`
	Persona  string `json:"persona,omitempty"`
	// Fresh runs a hybrid search before answering; defaults to true.
	Fresh *bool `json:"fresh,omitempty"`
	// Tiered falls back to a streaming session when the fresh tier comes up
	// thin. Overrides Fresh.
	Tiered bool `json:"tiered,omitempty"`
}

type StreamQueryRequest struct {
	Question string `json:"question"`
	Persona  string `json:"persona,omitempty"`
	Keywords string `json:"keywords,omitempty"`
	MaxPosts int    `json:"max_posts,omitempty"`
	Minutes  int    `json:"minutes,omitempty"`
}

type SourceResponse struct {
	URI string `json:"uri"`
	URL string `json:"url"`
}

type AnswerResponse struct {
	Answer      string           `json:"answer"`
	ContextUsed int              `json:"context_used"`
	Sources     []SourceResponse `json:"sources"`
}

type StreamAnswerResponse struct {
	AnswerResponse
	StreamedPosts int `json:"streamed_posts"`
	IndexedChunks int `json:"indexed_chunks"`
}

type StatusResponse struct {
	Status   string `json:"status"`
	Passages int64  `json:"passages"`
}

type PassageResponse struct {
	ID         string    `json:"id"`
	URI        string    `json:"uri"`
	URL        string    `json:"url"`
	Author     string    `json:"author"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
	ChunkIndex int       `json:"chunk_index"`
	ChunkTotal int       `json:"chunk_total"`
}

// Query answers a question from the index, optionally refreshing it from a
// hybrid search first.
func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Question == "" {
		api.Error(w, http.StatusBadRequest, "question is required")
		return
	}

	started := time.Now()

	var (
		answer domain.Answer
		tier   string
		err    error
	)
	if req.Tiered {
		tier = service.TierTiered
		answer, err = h.rag.AskTiered(r.Context(), req.Question, req.Persona)
	} else {
		fresh := true
		if req.Fresh != nil {
			fresh = *req.Fresh
		}
		tier = service.TierFresh
		if !fresh {
			tier = service.TierIndex
		}
		answer, err = h.rag.Ask(r.Context(), req.Question, service.AskOptions{
			Fresh:   fresh,
			Persona: req.Persona,
		})
	}

	resp, err := buildAnswerResponse(answer, err)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	h.recordQuery(r.Context(), req.Question, tier, answer, started)
	api.Success(w, http.StatusOK, resp)
}

// StreamQuery answers a question from posts collected live off the firehose.
func (h *QueryHandler) StreamQuery(w http.ResponseWriter, r *http.Request) {
	var req StreamQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Question == "" {
		api.Error(w, http.StatusBadRequest, "question is required")
		return
	}

	started := time.Now()

	answer, stats, err := h.rag.AskStreamed(r.Context(), req.Question, service.StreamOptions{
		Keywords:    req.Keywords,
		MaxPosts:    req.MaxPosts,
		MaxDuration: time.Duration(req.Minutes) * time.Minute,
		Persona:     req.Persona,
	})
	resp, err := buildAnswerResponse(answer, err)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	h.recordQuery(r.Context(), req.Question, service.TierStream, answer, started)
	api.Success(w, http.StatusOK, StreamAnswerResponse{
		AnswerResponse: resp,
		StreamedPosts:  stats.PostsCollected,
		IndexedChunks:  stats.ChunksAdded,
	})
}

// Status reports the index size.
func (h *QueryHandler) Status(w http.ResponseWriter, r *http.Request) {
	count, err := h.index.Count(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, StatusResponse{Status: "ok", Passages: count})
}

// ListPassages pages through the index newest-first.
func (h *QueryHandler) ListPassages(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 100 {
			api.Error(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = parsed
	}

	cursor, err := pagination.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		api.Error(w, http.StatusBadRequest, "invalid cursor")
		return
	}

	passages, err := h.index.List(r.Context(), cursor, limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	items := make([]PassageResponse, 0, len(passages))
	for _, p := range passages {
		post := p.Chunk.Post
		items = append(items, PassageResponse{
			ID:         p.ID,
			URI:        post.URI,
			URL:        domain.PostWebURL(post.URI),
			Author:     post.Author,
			Text:       p.Chunk.Text,
			CreatedAt:  post.CreatedAt,
			ChunkIndex: p.Chunk.Index,
			ChunkTotal: p.Chunk.Total,
		})
	}

	var next string
	if len(passages) > 0 {
		last := passages[len(passages)-1]
		next = pagination.NextCursor(last.ID, last.Chunk.Post.CreatedAt, len(passages), limit)
	}

	api.Success(w, http.StatusOK, pagination.PageResult[PassageResponse]{
		Items:   items,
		Cursor:  next,
		HasMore: next != "",
	})
}

// Reset drops every indexed passage.
func (h *QueryHandler) Reset(w http.ResponseWriter, r *http.Request) {
	if err := h.index.Clear(r.Context()); err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, map[string]string{"status": "reset"})
}

// recordQuery writes a query log entry when a log repository is configured.
// Logging is best effort and never affects the response.
func (h *QueryHandler) recordQuery(ctx context.Context, question, tier string, answer domain.Answer, started time.Time) {
	if h.logs == nil {
		return
	}
	_, err := h.logs.CreateQueryLog(ctx, service.QueryLogEntry{
		Question:     question,
		Tier:         tier,
		Answered:     answer.HasText(),
		PassageCount: answer.ContextUsed,
		DurationMs:   int(time.Since(started).Milliseconds()),
		Sources:      answer.Sources,
	})
	if err != nil {
		log.Printf("query log write failed: %v", err)
	}
}

// buildAnswerResponse turns the orchestrator outcome into a response body.
// ErrNoRelevantPosts and absent generation both map to terminal messages with
// a 200 status; every other error passes through.
func buildAnswerResponse(answer domain.Answer, err error) (AnswerResponse, error) {
	if errors.Is(err, domain.ErrNoRelevantPosts) {
		return AnswerResponse{Answer: noRelevantPostsMessage, Sources: []SourceResponse{}}, nil
	}
	if err != nil {
		return AnswerResponse{}, err
	}

	text := answer.Text
	if text == "" {
		text = generationFailedMessage
	}

	sources := make([]SourceResponse, 0, len(answer.Sources))
	for _, uri := range answer.Sources {
		sources = append(sources, SourceResponse{URI: uri, URL: domain.PostWebURL(uri)})
	}
	return AnswerResponse{
		Answer:      text,
		ContextUsed: answer.ContextUsed,
		Sources:     sources,
	}, nil
}
