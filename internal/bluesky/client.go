package bluesky

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bluesearch/bluesearch/internal/domain"
)

const (
	defaultPDS       = "https://bsky.social"
	publicAPI        = "https://public.api.bsky.app"
	whatsHotFeedURI  = "at://did:plc:z72i7hdynmk6r22z27h6tvur/app.bsky.feed.generator/whats-hot"
	pageSize         = 50
	pageFetchDelay   = 200 * time.Millisecond
	defaultUserAgent = "bluesearch/1.0"
)

// Client is a minimal Bluesky/AT Protocol API client covering the read
// surface the retrieval pipeline needs: timelines, feeds, search, and
// profile lookups.
type Client struct {
	pds        string
	publicAPI  string
	httpClient *http.Client

	// credentials for lazy session establishment
	identifier string
	password   string

	// populated after Login
	accessJwt string
	did       string
	handle    string
}

// NewClient creates a new Bluesky API client. If pds is empty, it defaults to
// https://bsky.social.
func NewClient(pds string) *Client {
	if pds == "" {
		pds = defaultPDS
	}
	return &Client{
		pds:       pds,
		publicAPI: publicAPI,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Login authenticates with the PDS and stores the session token. Use an App
// Password, not your account password.
func (c *Client) Login(ctx context.Context, identifier, password string) error {
	body := map[string]string{
		"identifier": identifier,
		"password":   password,
	}

	var resp createSessionResponse
	if err := c.post(ctx, "/xrpc/com.atproto.server.createSession", body, &resp); err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeAuthFailure, "create session", err)
	}

	c.accessJwt = resp.AccessJwt
	c.did = resp.DID
	c.handle = resp.Handle
	return nil
}

// SetCredentials stores an identifier and App Password for lazy login via
// EnsureSession.
func (c *Client) SetCredentials(identifier, password string) {
	c.identifier = identifier
	c.password = password
}

// EnsureSession logs in with the stored credentials unless a session is
// already established.
func (c *Client) EnsureSession(ctx context.Context) error {
	if c.Authenticated() {
		return nil
	}
	if c.identifier == "" || c.password == "" {
		return domain.ErrBlueskyAuthFailed
	}
	return c.Login(ctx, c.identifier, c.password)
}

// Authenticated reports whether Login has succeeded.
func (c *Client) Authenticated() bool {
	return c.accessJwt != ""
}

// DID returns the authenticated user's DID. Only valid after Login.
func (c *Client) DID() string {
	return c.did
}

// Timeline fetches up to limit posts from the authenticated user's home
// timeline, paging through cursors in batches of 50.
func (c *Client) Timeline(ctx context.Context, limit int) ([]domain.Post, error) {
	return c.pagedFeed(ctx, "/xrpc/app.bsky.feed.getTimeline", url.Values{}, limit)
}

// Trending fetches up to limit posts from the "What's Hot" feed generator.
func (c *Client) Trending(ctx context.Context, limit int) ([]domain.Post, error) {
	params := url.Values{"feed": {whatsHotFeedURI}}
	return c.pagedFeed(ctx, "/xrpc/app.bsky.feed.getFeed", params, limit)
}

// AuthorFeed fetches up to limit posts authored by the given actor.
func (c *Client) AuthorFeed(ctx context.Context, actor string, limit int) ([]domain.Post, error) {
	params := url.Values{"actor": {actor}}
	return c.pagedFeed(ctx, "/xrpc/app.bsky.feed.getAuthorFeed", params, limit)
}

func (c *Client) pagedFeed(ctx context.Context, path string, params url.Values, limit int) ([]domain.Post, error) {
	if err := c.EnsureSession(ctx); err != nil {
		return nil, err
	}

	var out []domain.Post
	cursor := ""
	for len(out) < limit {
		batch := limit - len(out)
		if batch > pageSize {
			batch = pageSize
		}

		page := url.Values{}
		for k, v := range params {
			page[k] = v
		}
		page.Set("limit", strconv.Itoa(batch))
		if cursor != "" {
			page.Set("cursor", cursor)
		}

		var resp feedResponse
		if err := c.get(ctx, c.pds, path, page, true, &resp); err != nil {
			return out, err
		}

		for _, item := range resp.Feed {
			out = append(out, item.Post.toDomain())
		}

		cursor = resp.Cursor
		if cursor == "" || len(resp.Feed) == 0 {
			break
		}
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		case <-time.After(pageFetchDelay):
		}
	}
	return out, nil
}

// SearchPostsAuth searches posts via the authenticated XRPC endpoint.
func (c *Client) SearchPostsAuth(ctx context.Context, query string, limit int) ([]domain.Post, error) {
	if err := c.EnsureSession(ctx); err != nil {
		return nil, err
	}
	params := url.Values{"q": {query}, "limit": {strconv.Itoa(limit)}}

	var resp searchResponse
	if err := c.get(ctx, c.pds, "/xrpc/app.bsky.feed.searchPosts", params, true, &resp); err != nil {
		return nil, err
	}
	return resp.toDomain(), nil
}

// SearchPostsPublic searches posts via the unauthenticated public AppView.
// Best effort: the public search endpoint may be rate limited or unavailable.
func (c *Client) SearchPostsPublic(ctx context.Context, query string, limit int) ([]domain.Post, error) {
	params := url.Values{"q": {query}, "limit": {strconv.Itoa(limit)}}

	var resp searchResponse
	if err := c.get(ctx, c.publicAPI, "/xrpc/app.bsky.feed.searchPosts", params, false, &resp); err != nil {
		return nil, err
	}
	return resp.toDomain(), nil
}

// GetProfile resolves an actor (handle or DID) to its profile.
func (c *Client) GetProfile(ctx context.Context, actor string) (Profile, error) {
	params := url.Values{"actor": {actor}}

	var resp profileResponse
	if err := c.get(ctx, c.pds, "/xrpc/app.bsky.actor.getProfile", params, c.Authenticated(), &resp); err != nil {
		return Profile{}, err
	}

	profile := Profile{Handle: resp.Handle, DisplayName: resp.DisplayName}
	if profile.DisplayName == "" {
		profile.DisplayName = profile.Handle
	}
	return profile, nil
}

func (c *Client) get(ctx context.Context, base, path string, params url.Values, auth bool, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	req.Header.Set("Accept-Language", "en")
	if auth && c.accessJwt != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessJwt)
	}

	return c.do(req, result)
}

func (c *Client) post(ctx context.Context, path string, body any, result any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.pds+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.accessJwt != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessJwt)
	}

	return c.do(req, result)
}

func (c *Client) do(req *http.Request, result any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}

// Profile is the resolved identity of an author.
type Profile struct {
	Handle      string
	DisplayName string
}

type createSessionResponse struct {
	AccessJwt string `json:"accessJwt"`
	DID       string `json:"did"`
	Handle    string `json:"handle"`
}

type feedResponse struct {
	Feed []struct {
		Post postView `json:"post"`
	} `json:"feed"`
	Cursor string `json:"cursor"`
}

type searchResponse struct {
	Posts []postView `json:"posts"`
}

func (r searchResponse) toDomain() []domain.Post {
	out := make([]domain.Post, 0, len(r.Posts))
	for _, p := range r.Posts {
		out = append(out, p.toDomain())
	}
	return out
}

type postView struct {
	URI    string `json:"uri"`
	CID    string `json:"cid"`
	Author struct {
		Handle      string `json:"handle"`
		DisplayName string `json:"displayName"`
	} `json:"author"`
	Record struct {
		Text      string `json:"text"`
		CreatedAt string `json:"createdAt"`
	} `json:"record"`
	IndexedAt   string `json:"indexedAt"`
	ReplyCount  int    `json:"replyCount"`
	RepostCount int    `json:"repostCount"`
	LikeCount   int    `json:"likeCount"`
}

func (p postView) toDomain() domain.Post {
	displayName := p.Author.DisplayName
	if displayName == "" {
		displayName = p.Author.Handle
	}

	createdAt := parseTimestamp(p.Record.CreatedAt)
	if p.Record.CreatedAt == "" {
		createdAt = parseTimestamp(p.IndexedAt)
	}

	return domain.Post{
		URI:               p.URI,
		CID:               p.CID,
		Author:            p.Author.Handle,
		AuthorDisplayName: displayName,
		Text:              domain.CleanText(p.Record.Text),
		CreatedAt:         createdAt,
		ReplyCount:        p.ReplyCount,
		RepostCount:       p.RepostCount,
		LikeCount:         p.LikeCount,
	}
}

type profileResponse struct {
	DID         string `json:"did"`
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName"`
}

// parseTimestamp parses an ISO timestamp, defaulting to now (UTC) on missing
// or malformed values so a bad record never aborts ingestion.
func parseTimestamp(value string) time.Time {
	if value == "" {
		return time.Now().UTC()
	}
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Now().UTC()
	}
	return ts.UTC()
}
