// Package pagination implements the keyset cursor used by the passage
// listing. A cursor names the (created_at, id) position of the last passage
// the client saw; the repository resumes strictly after that position, so
// pages stay stable while ingestion keeps adding rows at the head of the
// index.
package pagination

import (
	"encoding/base64"
	"errors"
	"strings"
	"time"
)

// ErrInvalidCursor reports a cursor string that did not come from
// EncodeCursor.
var ErrInvalidCursor = errors.New("invalid cursor format")

// Cursor is the decoded resume position of a passage listing.
type Cursor struct {
	LastID    string
	CreatedAt time.Time
}

// PageResult is the envelope for one page of a listing. Cursor is empty on
// the final page.
type PageResult[T any] struct {
	Items   []T    `json:"items"`
	Cursor  string `json:"cursor,omitempty"`
	HasMore bool   `json:"has_more"`
}

// EncodeCursor packs a passage ID and its post timestamp into an opaque
// cursor string.
func EncodeCursor(lastID string, createdAt time.Time) string {
	if lastID == "" {
		return ""
	}
	raw := lastID + "|" + createdAt.UTC().Format(time.RFC3339Nano)
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor unpacks a cursor produced by EncodeCursor. The empty string
// decodes to nil, which starts the listing from the newest passage.
func DecodeCursor(cursor string) (*Cursor, error) {
	if cursor == "" {
		return nil, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(cursor)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 {
		return nil, ErrInvalidCursor
	}

	createdAt, err := time.Parse(time.RFC3339Nano, parts[1])
	if err != nil {
		return nil, ErrInvalidCursor
	}

	return &Cursor{
		LastID:    parts[0],
		CreatedAt: createdAt,
	}, nil
}

// NextCursor returns the cursor for the page after this one. A short page
// means the listing is exhausted, so no cursor is issued.
func NextCursor(lastID string, createdAt time.Time, pageLen, limit int) string {
	if pageLen == 0 || pageLen < limit {
		return ""
	}
	return EncodeCursor(lastID, createdAt)
}
