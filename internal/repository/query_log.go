package repository

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bluesearch/bluesearch/internal/service"
)

// QueryLogRepository stores answered questions for evaluation/feedback loops.
type QueryLogRepository struct {
	pool *pgxpool.Pool
}

func NewQueryLogRepository(pool *pgxpool.Pool) *QueryLogRepository {
	return &QueryLogRepository{pool: pool}
}

func (r *QueryLogRepository) CreateQueryLog(ctx context.Context, entry service.QueryLogEntry) (string, error) {
	sources := entry.Sources
	if sources == nil {
		sources = []string{}
	}
	sourcesJSON, _ := json.Marshal(sources)

	var id string
	err := r.pool.QueryRow(ctx,
		`INSERT INTO query_log (question, tier, answered, passage_count, duration_ms, sources, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		entry.Question,
		entry.Tier,
		entry.Answered,
		entry.PassageCount,
		entry.DurationMs,
		sourcesJSON,
		time.Now().UTC(),
	).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}
