package domain

import "time"

// Post represents a single Bluesky post normalized from any source
// (timeline, search, or the Jetstream firehose). Identity is the URI: two
// posts with the same URI are the same logical item.
type Post struct {
	URI               string
	CID               string
	Author            string
	AuthorDisplayName string
	Text              string
	CreatedAt         time.Time
	ReplyCount        int
	RepostCount       int
	LikeCount         int
}

// Chunk is a contiguous slice of one post's cleaned text. Index is the
// 0-based position among the post's chunks, Total the chunk count.
type Chunk struct {
	Text  string
	Post  *Post
	Index int
	Total int
}

// Passage is the persisted form of a chunk: text plus its embedding and the
// denormalized post metadata stored alongside it, as returned from retrieval.
type Passage struct {
	ID       string
	Chunk    Chunk
	Distance float32
}

// Answer is the outcome of a grounded generation request. Text is empty only
// when no answer could be produced, which callers must treat as a valid
// terminal outcome rather than an error.
type Answer struct {
	Text        string
	ContextUsed int
	Sources     []string
}

// HasText reports whether generation produced a usable answer.
func (a Answer) HasText() bool {
	return a.Text != ""
}
