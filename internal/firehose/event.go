package firehose

import (
	"encoding/json"
	"strings"
)

const postCollection = "app.bsky.feed.post"

// postRecord is the parsed content of an app.bsky.feed.post record.
type postRecord struct {
	Type      string `json:"$type"`
	Text      string `json:"text"`
	CreatedAt string `json:"createdAt"`
	IndexedAt string `json:"indexedAt"`
}

// candidate is one "post created" record pulled out of a feed message,
// together with the record key when the message shape carries one.
type candidate struct {
	record postRecord
	rkey   string
}

// feedMessage is the decoded wire message. Jetstream variants disagree on
// where the repo DID, the record, and the operation list live, so every
// location is kept and the extraction rules try them in order.
type feedMessage struct {
	DID    string          `json:"did"`
	Repo   string          `json:"repo"`
	Kind   string          `json:"kind"`
	Commit *feedCommit     `json:"commit"`
	Record json.RawMessage `json:"record"`
}

type feedCommit struct {
	Repo       string          `json:"repo"`
	Collection string          `json:"collection"`
	Operation  string          `json:"operation"`
	RKey       string          `json:"rkey"`
	Record     json.RawMessage `json:"record"`
	Ops        []feedOperation `json:"ops"`
	Operations []feedOperation `json:"operations"`
}

type feedOperation struct {
	Path   string          `json:"path"`
	Action string          `json:"action"`
	Op     string          `json:"op"`
	Record json.RawMessage `json:"record"`
}

func parseMessage(data []byte) (*feedMessage, bool) {
	var msg feedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, false
	}
	return &msg, true
}

// repoDID returns the author identifier, wherever the message put it.
func (m *feedMessage) repoDID() string {
	if m.Commit != nil && m.Commit.Repo != "" {
		return m.Commit.Repo
	}
	if m.Repo != "" {
		return m.Repo
	}
	return m.DID
}

// extractionRules are tried in order; each is a pure function returning the
// zero or more post candidates it finds. Messages matching no rule are
// silently skipped.
var extractionRules = []func(*feedMessage) []candidate{
	extractDirectRecord,
	extractFromOperations,
}

// extractPosts applies every extraction rule to the message.
func extractPosts(m *feedMessage) []candidate {
	var out []candidate
	for _, rule := range extractionRules {
		out = append(out, rule(m)...)
	}
	return out
}

// extractDirectRecord handles the shapes where the post record sits directly
// on the commit (modern Jetstream) or on the message itself.
func extractDirectRecord(m *feedMessage) []candidate {
	if m.Commit != nil && len(m.Commit.Record) > 0 {
		if m.Commit.Collection != "" && m.Commit.Collection != postCollection {
			return nil
		}
		if m.Commit.Operation != "" && m.Commit.Operation != "create" {
			return nil
		}
		if rec, ok := decodeRecord(m.Commit.Record); ok {
			return []candidate{{record: rec, rkey: m.Commit.RKey}}
		}
		return nil
	}
	if len(m.Record) > 0 {
		if rec, ok := decodeRecord(m.Record); ok {
			return []candidate{{record: rec}}
		}
	}
	return nil
}

// extractFromOperations scans an ops/operations list for post creations,
// falling back to the commit's record when the operation carries none.
func extractFromOperations(m *feedMessage) []candidate {
	if m.Commit == nil {
		return nil
	}
	ops := m.Commit.Ops
	if len(ops) == 0 {
		ops = m.Commit.Operations
	}

	var out []candidate
	for _, op := range ops {
		if !strings.Contains(op.Path, postCollection) {
			continue
		}
		action := op.Action
		if action == "" {
			action = op.Op
		}
		if action != "create" {
			continue
		}

		raw := op.Record
		if len(raw) == 0 {
			raw = m.Commit.Record
		}
		rec, ok := decodeRecord(raw)
		if !ok || rec.Text == "" {
			continue
		}
		out = append(out, candidate{record: rec, rkey: rkeyFromPath(op.Path)})
	}
	return out
}

func decodeRecord(raw json.RawMessage) (postRecord, bool) {
	if len(raw) == 0 {
		return postRecord{}, false
	}
	var rec postRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return postRecord{}, false
	}
	if rec.Type != "" && !strings.HasSuffix(rec.Type, postCollection) {
		return postRecord{}, false
	}
	return rec, true
}

func rkeyFromPath(path string) string {
	if idx := strings.LastIndex(path, "/"); idx >= 0 && idx < len(path)-1 {
		return path[idx+1:]
	}
	return ""
}
