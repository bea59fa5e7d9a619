package bluesky

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type stubResolver struct {
	profiles map[string]Profile
	err      error
	calls    int
}

func (s *stubResolver) GetProfile(ctx context.Context, actor string) (Profile, error) {
	s.calls++
	if s.err != nil {
		return Profile{}, s.err
	}
	return s.profiles[actor], nil
}

func TestIdentityCache_CachesWithinTTL(t *testing.T) {
	resolver := &stubResolver{profiles: map[string]Profile{
		"did:plc:abc": {Handle: "alice.bsky.social", DisplayName: "Alice"},
	}}
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cache := NewIdentityCacheWithTTL(resolver, time.Hour, func() time.Time { return clock })

	first := cache.Resolve(context.Background(), "did:plc:abc")
	second := cache.Resolve(context.Background(), "did:plc:abc")

	assert.Equal(t, "alice.bsky.social", first.Handle)
	assert.Equal(t, "Alice", first.DisplayName)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, resolver.calls, "second resolve must hit the cache")
}

func TestIdentityCache_RefreshesAfterTTL(t *testing.T) {
	resolver := &stubResolver{profiles: map[string]Profile{
		"did:plc:abc": {Handle: "alice.bsky.social", DisplayName: "Alice"},
	}}
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cache := NewIdentityCacheWithTTL(resolver, time.Hour, func() time.Time { return clock })

	cache.Resolve(context.Background(), "did:plc:abc")
	clock = clock.Add(61 * time.Minute)
	cache.Resolve(context.Background(), "did:plc:abc")

	assert.Equal(t, 2, resolver.calls, "expired entry must be re-resolved")
}

func TestIdentityCache_DegradedLookupNotCached(t *testing.T) {
	resolver := &stubResolver{err: errors.New("profile service down")}
	cache := NewIdentityCacheWithTTL(resolver, time.Hour, time.Now)

	degraded := cache.Resolve(context.Background(), "did:plc:broken")
	assert.Equal(t, "did:plc:broken", degraded.Handle)
	assert.Equal(t, "did:plc:broken", degraded.DisplayName)
	assert.Equal(t, 0, cache.Len(), "failures must not poison the cache")

	// next lookup retries immediately; a recovered backend overwrites the fallback
	resolver.err = nil
	resolver.profiles = map[string]Profile{
		"did:plc:broken": {Handle: "fixed.bsky.social", DisplayName: "Fixed"},
	}
	recovered := cache.Resolve(context.Background(), "did:plc:broken")
	assert.Equal(t, "fixed.bsky.social", recovered.Handle)
	assert.Equal(t, 1, cache.Len())
}

func TestIdentityCache_EmptyProfileFieldsBackfilled(t *testing.T) {
	resolver := &stubResolver{profiles: map[string]Profile{
		"did:plc:nodisplay": {Handle: "bare.bsky.social"},
	}}
	cache := NewIdentityCacheWithTTL(resolver, time.Hour, time.Now)

	p := cache.Resolve(context.Background(), "did:plc:nodisplay")
	assert.Equal(t, "bare.bsky.social", p.Handle)
	assert.Equal(t, "bare.bsky.social", p.DisplayName)
}
