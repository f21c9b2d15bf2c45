package store

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"time"

	"github.com/p-n-ai/pai-tracker/internal/unit"
)

// DefaultCacheTTL is how long a loaded document stays cached.
const DefaultCacheTTL = 10 * time.Minute

// Cache is the key/value cache in front of a Gateway.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Incr(ctx context.Context, key string) (int64, error)
}

// CachedGateway is a read-through cache for unit documents. Writes go to
// the wrapped Gateway, bump the document's version and invalidate the
// cached copy. Cache failures are logged and never fail the call.
//
// Each cached entry is tagged with the version read before the load that
// produced it, and only an entry tagged with the current version is served.
// A load that races a write therefore cannot leave the older document
// cached past the write.
type CachedGateway struct {
	Gateway
	cache  Cache
	ttl    time.Duration
	prefix string
}

type cacheEntry struct {
	Version int64     `json:"v"`
	Unit    unit.Unit `json:"unit"`
}

// NewCachedGateway wraps gw with cache. ttl <= 0 selects DefaultCacheTTL.
func NewCachedGateway(gw Gateway, cache Cache, ttl time.Duration) *CachedGateway {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedGateway{Gateway: gw, cache: cache, ttl: ttl, prefix: "unit:"}
}

func (g *CachedGateway) SaveUnit(ctx context.Context, key string, u unit.Unit) error {
	if err := g.Gateway.SaveUnit(ctx, key, u); err != nil {
		return err
	}
	if _, err := g.cache.Incr(ctx, g.versionKey(key)); err != nil {
		slog.Warn("cache version bump failed", "key", key, "error", err)
	}
	if err := g.cache.Del(ctx, g.prefix+key); err != nil {
		slog.Warn("cache invalidate failed", "key", key, "error", err)
	}
	return nil
}

func (g *CachedGateway) LoadUnit(ctx context.Context, key string) (unit.Unit, error) {
	version, verOK := g.version(ctx, key)
	if verOK {
		if u, ok := g.cached(ctx, key, version); ok {
			return u, nil
		}
	}

	u, err := g.Gateway.LoadUnit(ctx, key)
	if err != nil {
		return unit.Unit{}, err
	}
	if !verOK {
		return u, nil
	}
	if raw, err := json.Marshal(cacheEntry{Version: version, Unit: u}); err == nil {
		if err := g.cache.Set(ctx, g.prefix+key, raw, g.ttl); err != nil {
			slog.Warn("cache fill failed", "key", key, "error", err)
		}
	}
	return u, nil
}

func (g *CachedGateway) versionKey(key string) string {
	return "unitver:" + key
}

// version returns the document's current cache version. ok is false when
// the version cannot be read, in which case the cache is bypassed.
func (g *CachedGateway) version(ctx context.Context, key string) (int64, bool) {
	raw, found, err := g.cache.Get(ctx, g.versionKey(key))
	if err != nil {
		slog.Warn("cache version read failed", "key", key, "error", err)
		return 0, false
	}
	if !found {
		return 0, true
	}
	v, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		slog.Warn("dropping undecodable cache version", "key", key, "error", err)
		return 0, false
	}
	return v, true
}

func (g *CachedGateway) cached(ctx context.Context, key string, version int64) (unit.Unit, bool) {
	raw, ok, err := g.cache.Get(ctx, g.prefix+key)
	if err != nil {
		slog.Warn("cache read failed", "key", key, "error", err)
		return unit.Unit{}, false
	}
	if !ok {
		return unit.Unit{}, false
	}
	var entry cacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		slog.Warn("dropping undecodable cache entry", "key", key)
		return unit.Unit{}, false
	}
	if entry.Version != version {
		return unit.Unit{}, false
	}
	return entry.Unit, true
}
