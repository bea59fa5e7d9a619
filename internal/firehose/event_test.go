package firehose

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPosts_ModernCommitShape(t *testing.T) {
	msg, ok := parseMessage([]byte(`{
		"did": "did:plc:author",
		"kind": "commit",
		"commit": {
			"collection": "app.bsky.feed.post",
			"operation": "create",
			"rkey": "3kabc",
			"record": {"$type": "app.bsky.feed.post", "text": "hello", "createdAt": "2025-06-01T10:00:00Z"}
		}
	}`))
	require.True(t, ok)

	posts := extractPosts(msg)
	require.Len(t, posts, 1)
	assert.Equal(t, "hello", posts[0].record.Text)
	assert.Equal(t, "3kabc", posts[0].rkey)
	assert.Equal(t, "did:plc:author", msg.repoDID())
}

func TestExtractPosts_OperationListShape(t *testing.T) {
	msg, ok := parseMessage([]byte(`{
		"commit": {
			"repo": "did:plc:other",
			"ops": [
				{"path": "app.bsky.feed.post/3kxyz", "action": "create",
				 "record": {"text": "from ops"}},
				{"path": "app.bsky.feed.like/3klike", "action": "create",
				 "record": {"text": "ignored"}},
				{"path": "app.bsky.feed.post/3kdel", "action": "delete"}
			]
		}
	}`))
	require.True(t, ok)

	posts := extractPosts(msg)
	require.Len(t, posts, 1)
	assert.Equal(t, "from ops", posts[0].record.Text)
	assert.Equal(t, "3kxyz", posts[0].rkey)
	assert.Equal(t, "did:plc:other", msg.repoDID())
}

func TestExtractPosts_TopLevelRecord(t *testing.T) {
	msg, ok := parseMessage([]byte(`{
		"repo": "did:plc:top",
		"record": {"$type": "app.bsky.feed.post", "text": "top level"}
	}`))
	require.True(t, ok)

	posts := extractPosts(msg)
	require.Len(t, posts, 1)
	assert.Equal(t, "top level", posts[0].record.Text)
}

func TestExtractPosts_NonPostShapesSkipped(t *testing.T) {
	for name, raw := range map[string]string{
		"no record no ops":  `{"kind": "identity", "did": "did:plc:x"}`,
		"wrong collection":  `{"commit": {"collection": "app.bsky.graph.follow", "operation": "create", "record": {"text": "x"}}}`,
		"delete operation":  `{"commit": {"collection": "app.bsky.feed.post", "operation": "delete", "record": {"text": "x"}}}`,
		"wrong record type": `{"record": {"$type": "app.bsky.feed.like", "text": "x"}}`,
	} {
		t.Run(name, func(t *testing.T) {
			msg, ok := parseMessage([]byte(raw))
			require.True(t, ok)
			assert.Empty(t, extractPosts(msg))
		})
	}
}

func TestParseMessage_MalformedJSON(t *testing.T) {
	_, ok := parseMessage([]byte(`{not json`))
	assert.False(t, ok)
}
