package firehose

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/bluesearch/bluesearch/internal/bluesky"
	"github.com/bluesearch/bluesearch/internal/domain"
	"github.com/gorilla/websocket"
)

const (
	defaultReadTimeout    = 30 * time.Second
	defaultReconnectDelay = 500 * time.Millisecond
	maxConnectAttempts    = 3
)

// SessionState tracks where a bounded streaming session is in its lifecycle.
type SessionState string

const (
	StateConnecting   SessionState = "connecting"
	StateStreaming    SessionState = "streaming"
	StateReconnecting SessionState = "reconnecting"
	StateDone         SessionState = "done"
)

// IdentityResolver resolves an author DID to display metadata.
type IdentityResolver interface {
	Resolve(ctx context.Context, identifier string) bluesky.Profile
}

// Conn is the read surface of a streaming connection.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	Close() error
}

// ConnectFunc opens a streaming connection to the given URL.
type ConnectFunc func(ctx context.Context, url string) (Conn, error)

func websocketConnect(ctx context.Context, wsURL string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial firehose: %w", err)
	}
	return conn, nil
}

// Options bound a streaming session. Either MaxPosts or MaxDuration alone is
// sufficient to terminate; with neither set the session ends only when the
// connection attempt budget is exhausted.
type Options struct {
	Keywords    []string
	MaxPosts    int
	MaxDuration time.Duration
}

// Subscriber collects "post created" records from the Jetstream firehose
// under count/time bounds, reconnecting on transient failures. Partial
// results are valid output; ordinary network flakiness never fails a session.
// All per-session state lives in the boundedSession each Collect call
// creates, so one Subscriber can serve concurrent sessions.
type Subscriber struct {
	url      string
	identity IdentityResolver

	connect        ConnectFunc
	readTimeout    time.Duration
	reconnectDelay time.Duration
}

// NewSubscriber creates a firehose subscriber for the given Jetstream URL.
func NewSubscriber(jetstreamURL string, identity IdentityResolver) *Subscriber {
	return &Subscriber{
		url:            jetstreamURL,
		identity:       identity,
		connect:        websocketConnect,
		readTimeout:    defaultReadTimeout,
		reconnectDelay: defaultReconnectDelay,
	}
}

func (s *Subscriber) buildURL() string {
	u, err := url.Parse(s.url)
	if err != nil {
		return s.url
	}
	q := u.Query()
	q.Set("wantedCollections", postCollection)
	u.RawQuery = q.Encode()
	return u.String()
}

// Collect runs one bounded session and returns the posts gathered. The only
// error condition is a context cancellation; bound exhaustion and repeated
// connection failures both return the partial result.
func (s *Subscriber) Collect(ctx context.Context, opts Options) ([]domain.Post, error) {
	var deadline time.Time
	if opts.MaxDuration > 0 {
		deadline = time.Now().Add(opts.MaxDuration)
	}

	session := &boundedSession{
		keywords: opts.Keywords,
		maxPosts: opts.MaxPosts,
		deadline: deadline,
		state:    StateConnecting,
	}

	wsURL := s.buildURL()
	attempts := 0

	for !session.exhausted() {
		if attempts >= maxConnectAttempts {
			break
		}
		attempts++

		session.to(StateConnecting)
		log.Printf("firehose: connecting to %s (attempt %d/%d)", wsURL, attempts, maxConnectAttempts)
		conn, err := s.connect(ctx, wsURL)
		if err != nil {
			log.Printf("firehose: connect failed: %v", err)
			session.to(StateReconnecting)
			select {
			case <-ctx.Done():
				return session.collected, ctx.Err()
			case <-time.After(s.reconnectDelay):
			}
			continue
		}

		session.to(StateStreaming)
		err = s.stream(ctx, conn, session)
		conn.Close()
		if err != nil {
			if ctx.Err() != nil {
				session.to(StateDone)
				return session.collected, ctx.Err()
			}
			log.Printf("firehose: stream interrupted, reconnecting: %v", err)
			session.to(StateReconnecting)
			select {
			case <-ctx.Done():
				return session.collected, ctx.Err()
			case <-time.After(s.reconnectDelay):
			}
			continue
		}
		break
	}

	session.to(StateDone)
	log.Printf("firehose: collected %d posts", len(session.collected))
	return session.collected, nil
}

// stream reads messages from one connection until a bound is hit (nil) or
// the connection breaks (error, triggering a reconnect).
func (s *Subscriber) stream(ctx context.Context, conn Conn, session *boundedSession) error {
	msgs := make(chan []byte, 64)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go func() {
		defer close(msgs)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case msgs <- data:
			case <-done:
				return
			}
		}
	}()

	for {
		if session.exhausted() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-msgs:
			if !ok {
				return <-readErr
			}
			s.handleMessage(ctx, data, session)
		case <-time.After(s.readTimeout):
			// idle feed: not an error, just a bound re-check point
		}
	}
}

func (s *Subscriber) handleMessage(ctx context.Context, data []byte, session *boundedSession) {
	msg, ok := parseMessage(data)
	if !ok {
		return
	}

	repo := msg.repoDID()
	for _, cand := range extractPosts(msg) {
		if session.exhausted() {
			return
		}

		text := domain.CleanText(cand.record.Text)
		if text == "" {
			continue
		}
		if !domain.MatchesAnyKeyword(text, session.keywords) {
			continue
		}

		profile := bluesky.Profile{Handle: repo, DisplayName: repo}
		if repo != "" && s.identity != nil {
			profile = s.identity.Resolve(ctx, repo)
		}

		session.add(domain.Post{
			URI:               syntheticURI(repo, cand.rkey),
			Author:            profile.Handle,
			AuthorDisplayName: profile.DisplayName,
			Text:              text,
			CreatedAt:         parseCreatedAt(cand.record),
		})
	}
}

// syntheticURI builds a post URI from the author DID when the feed does not
// supply a record key.
func syntheticURI(repo, rkey string) string {
	if rkey == "" {
		rkey = "unknown"
	}
	return fmt.Sprintf("at://%s/%s/%s", repo, postCollection, rkey)
}

func parseCreatedAt(rec postRecord) time.Time {
	value := rec.CreatedAt
	if value == "" {
		value = rec.IndexedAt
	}
	if value == "" {
		return time.Now().UTC()
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Now().UTC()
	}
	return ts.UTC()
}

// boundedSession holds one Collect call's state: accumulated posts, the
// bound checks that run at both the per-message and the per-connection
// granularity, and the lifecycle state machine.
type boundedSession struct {
	keywords  []string
	maxPosts  int
	deadline  time.Time
	collected []domain.Post
	state     SessionState
}

// sessionTransitions lists the legal lifecycle moves. Done is terminal.
var sessionTransitions = map[SessionState][]SessionState{
	StateConnecting:   {StateStreaming, StateReconnecting, StateDone},
	StateStreaming:    {StateReconnecting, StateDone},
	StateReconnecting: {StateConnecting, StateDone},
}

// to moves the session to next when the transition is legal; illegal moves
// are dropped so a finished session stays done.
func (b *boundedSession) to(next SessionState) {
	if b.state == next {
		return
	}
	for _, allowed := range sessionTransitions[b.state] {
		if allowed == next {
			b.state = next
			return
		}
	}
}

func (b *boundedSession) add(p domain.Post) {
	b.collected = append(b.collected, p)
}

func (b *boundedSession) exhausted() bool {
	if b.maxPosts > 0 && len(b.collected) >= b.maxPosts {
		return true
	}
	if !b.deadline.IsZero() && time.Now().After(b.deadline) {
		return true
	}
	return false
}
