package bluesky

import (
	"context"
	"sync"
	"time"
)

const defaultIdentityTTL = time.Hour

// ProfileResolver is the lookup the cache falls back to on a miss.
type ProfileResolver interface {
	GetProfile(ctx context.Context, actor string) (Profile, error)
}

type identityEntry struct {
	profile     Profile
	refreshedAt time.Time
}

// IdentityCache maps opaque author identifiers (DIDs) to display metadata
// with TTL eviction. Lookup failures degrade to the raw identifier and are
// not cached, so the next resolution retries immediately. Safe for
// concurrent use; duplicate refreshes of the same identifier are tolerated
// rather than serialized.
type IdentityCache struct {
	resolver ProfileResolver
	ttl      time.Duration
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]identityEntry
}

// NewIdentityCache creates a cache with a one hour TTL.
func NewIdentityCache(resolver ProfileResolver) *IdentityCache {
	return NewIdentityCacheWithTTL(resolver, defaultIdentityTTL, time.Now)
}

// NewIdentityCacheWithTTL creates a cache with an explicit TTL and clock.
func NewIdentityCacheWithTTL(resolver ProfileResolver, ttl time.Duration, now func() time.Time) *IdentityCache {
	return &IdentityCache{
		resolver: resolver,
		ttl:      ttl,
		now:      now,
		entries:  make(map[string]identityEntry),
	}
}

// Resolve returns display metadata for the identifier. A live cached entry is
// returned as-is; otherwise the profile is looked up and cached. On lookup
// failure the identifier itself stands in for both handle and display name.
func (c *IdentityCache) Resolve(ctx context.Context, identifier string) Profile {
	now := c.now()

	c.mu.Lock()
	entry, ok := c.entries[identifier]
	c.mu.Unlock()
	if ok && now.Sub(entry.refreshedAt) < c.ttl {
		return entry.profile
	}

	profile, err := c.resolver.GetProfile(ctx, identifier)
	if err != nil {
		// degraded resolution: do not cache, retry on next call
		return Profile{Handle: identifier, DisplayName: identifier}
	}
	if profile.Handle == "" {
		profile.Handle = identifier
	}
	if profile.DisplayName == "" {
		profile.DisplayName = profile.Handle
	}

	c.mu.Lock()
	c.entries[identifier] = identityEntry{profile: profile, refreshedAt: now}
	c.mu.Unlock()

	return profile
}

// Len returns the number of cached entries, expired or not.
func (c *IdentityCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
