package service

import "context"

// Answer tiers as recorded in the query log.
const (
	TierIndex  = "index"
	TierFresh  = "fresh"
	TierStream = "stream"
	TierTiered = "tiered"
)

// QueryLogEntry captures an answered question for later evaluation.
type QueryLogEntry struct {
	Question     string
	Tier         string
	Answered     bool
	PassageCount int
	DurationMs   int
	Sources      []string
}

// QueryLogRepository persists query log entries.
type QueryLogRepository interface {
	CreateQueryLog(ctx context.Context, entry QueryLogEntry) (string, error)
}
