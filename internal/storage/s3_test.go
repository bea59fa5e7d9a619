package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSessionKey(t *testing.T) {
	startedAt := time.Date(2026, 8, 28, 14, 30, 5, 0, time.UTC)
	assert.Equal(t, "sessions/2026/08/28/20260828T143005Z.jsonl", SessionKey(startedAt))

	// non-UTC times key by their UTC instant
	est := time.FixedZone("EST", -5*3600)
	assert.Equal(t, SessionKey(startedAt), SessionKey(startedAt.In(est)))
}
