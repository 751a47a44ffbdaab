// Package shardcache is a sharded cache client over a ring of independent
// key-value backend nodes: consistent hashing distributes keys across
// nodes, an optional tag-grouping feature co-locates related keys into one
// server-side hash bucket on one node, and a value codec preserves integer
// identity so atomic INCRBY keeps working while everything else round
// trips through gob.
//
// Construct a Cache with New (plain ring) or NewFailover (supervisor
// quorum bootstrap), then use Get/Set/Add/Delete/Incr/... the way any
// cache client is used.
package shardcache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dreamware/shardcache/internal/cacheerrors"
	"github.com/dreamware/shardcache/internal/codec"
	"github.com/dreamware/shardcache/internal/config"
	"github.com/dreamware/shardcache/internal/driver"
	"github.com/dreamware/shardcache/internal/failover"
	"github.com/dreamware/shardcache/internal/keyname"
	"github.com/dreamware/shardcache/internal/routing"
	"github.com/dreamware/shardcache/internal/tagging"
)

// DefaultTTL is used whenever a caller does not specify a ttl.
const DefaultTTL = 300 * time.Second

// NoExpiry, passed as a ttl, stores the value with no expiry at all. This
// is distinct from omitting ttl, which uses the Cache's configured
// default.
const NoExpiry time.Duration = -1

// router is the subset of routing.Client (and, by embedding,
// failover.Client) the facade depends on. Both satisfy it structurally;
// neither needs to reference this type by name.
type router interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, val []byte, ex time.Duration, nx bool) (bool, error)
	SetNX(ctx context.Context, key string, val []byte) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	IncrBy(ctx context.Context, key string, delta int64) (int64, error)
	MGet(ctx context.Context, keys []string) ([][]byte, error)
	Delete(ctx context.Context, keys ...string) (int64, error)
	DeleteTag(ctx context.Context, tags ...string) (int64, error)
	FlushDB(ctx context.Context) (map[driver.NodeName]error, error)
	Keys(ctx context.Context, pattern string) ([]string, error)
	Ping(ctx context.Context) (map[driver.NodeName]bool, error)
	Close() error
}

// Cache is the sharded cache facade: it turns a
// logical key + version into an on-the-wire storage key, encodes/decodes
// values through a Codec, and dispatches onto a router (either the plain
// ring client or the failover-aware one).
type Cache struct {
	r          router
	codec      *codec.Codec
	names      keyname.Namer
	defaultTTL time.Duration
	log        *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

// DriverFactory dials one backend node by address. The choice of driver
// (production go-redis-backed, or a test fake) is a constructor concern,
// never a routing-layer one; New takes a DriverFactory rather than
// hardcoding github.com/redis/go-redis/v9 so the whole routing/ring/tagging
// tree stays swappable in tests. NewFailover takes none: it dials each
// shard through go-redis's failover client itself.
type DriverFactory func(addr string) driver.Conn

// New builds a Cache over a plain consistent-hash ring. location is the
// ";"-delimited LOCATION string; raw is the OPTIONS map.
func New(ctx context.Context, location string, raw map[string]string, dial DriverFactory, log *zap.Logger) (*Cache, error) {
	addrs, err := config.Locations(location)
	if err != nil {
		return nil, err
	}
	opt, err := config.Parse(raw, len(addrs))
	if err != nil {
		return nil, err
	}
	if opt.ClientClass != config.ClientClassRing {
		return nil, fmt.Errorf("%w: CLIENT_CLASS %q requires NewFailover", cacheerrors.ErrImproperlyConfigured, opt.ClientClass)
	}

	tags, err := tagging.New(opt.EnableTagging, opt.TagRegex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", cacheerrors.ErrImproperlyConfigured, err)
	}

	conns := make([]driver.Conn, 0, len(addrs))
	for _, addr := range addrs {
		conns = append(conns, dial(addr))
	}

	rc, err := routing.New(conns, 0, tags, log)
	if err != nil {
		return nil, err
	}

	return newCache(rc, opt, log), nil
}

// NewFailover builds a Cache bootstrapped from a pool of Sentinel
// supervisors. location is the ";"-delimited list of supervisor
// addresses.
func NewFailover(ctx context.Context, location string, raw map[string]string, log *zap.Logger) (*Cache, error) {
	addrs, err := config.Locations(location)
	if err != nil {
		return nil, err
	}
	opt, err := config.Parse(raw, len(addrs))
	if err != nil {
		return nil, err
	}
	if opt.ClientClass != config.ClientClassFailover {
		return nil, fmt.Errorf("%w: CLIENT_CLASS %q requires New", cacheerrors.ErrImproperlyConfigured, opt.ClientClass)
	}

	tags, err := tagging.New(opt.EnableTagging, opt.TagRegex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", cacheerrors.ErrImproperlyConfigured, err)
	}

	fc, err := failover.Bootstrap(ctx, addrs, opt, tags, 0, log)
	if err != nil {
		return nil, err
	}

	return newCache(fc, opt, log), nil
}

func newCache(r router, opt config.Options, log *zap.Logger) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{
		r:          r,
		codec:      codec.New(opt.Compress),
		names:      keyname.New("shardcache"),
		defaultTTL: DefaultTTL,
		log:        log,
	}
}

func resolveVersion(version int) int {
	if version <= 0 {
		return keyname.DefaultVersion
	}
	return version
}

// resolveTTL turns a caller-supplied ttl pointer into the effective
// duration (nil → cache default) and whether the value should be written
// at all: a non-nil, non-NoExpiry ttl <= 0 means "do not store", not
// "store with an expired TTL".
func (c *Cache) resolveTTL(ttl *time.Duration) (ex time.Duration, store bool) {
	d := c.defaultTTL
	if ttl != nil {
		d = *ttl
	}
	if d == NoExpiry {
		return 0, true
	}
	if d <= 0 {
		return 0, false
	}
	return d, true
}

// Get fetches key at version (0 selects the default version 1), returning
// found=false on a miss so callers can apply their own default.
func (c *Cache) Get(ctx context.Context, key string, version int) (value any, found bool, err error) {
	storageKey := c.names.StorageKey(key, resolveVersion(version))
	raw, err := c.r.Get(ctx, storageKey)
	if err != nil {
		return nil, false, err
	}
	if raw == nil {
		return nil, false, nil
	}
	v, err := c.codec.Loads(raw)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", cacheerrors.ErrPickle, err)
	}
	return v, true, nil
}

// Set stores value under key. ttl == nil uses the Cache's configured
// default; ttl == &NoExpiry stores with no expiry; any other ttl <= 0
// means the value is not stored at all, returning false.
func (c *Cache) Set(ctx context.Context, key string, value any, ttl *time.Duration, version int) (bool, error) {
	return c.set(ctx, key, value, ttl, version, false)
}

// Add stores value under key only if it does not already exist (NX
// semantics), returning true iff the value was newly written.
func (c *Cache) Add(ctx context.Context, key string, value any, ttl *time.Duration, version int) (bool, error) {
	return c.set(ctx, key, value, ttl, version, true)
}

func (c *Cache) set(ctx context.Context, key string, value any, ttl *time.Duration, version int, nx bool) (bool, error) {
	ex, store := c.resolveTTL(ttl)
	if !store {
		return false, nil
	}
	encoded, err := c.codec.Dumps(value)
	if err != nil {
		return false, fmt.Errorf("%w: %v", cacheerrors.ErrPickle, err)
	}
	storageKey := c.names.StorageKey(key, resolveVersion(version))
	if nx {
		if ex > 0 {
			return c.r.Set(ctx, storageKey, encoded, ex, true)
		}
		return c.r.SetNX(ctx, storageKey, encoded)
	}
	return c.r.Set(ctx, storageKey, encoded, ex, false)
}

// Delete removes key at version, succeeding silently (count 0) if it was
// already absent.
func (c *Cache) Delete(ctx context.Context, key string, version int) (int64, error) {
	storageKey := c.names.StorageKey(key, resolveVersion(version))
	return c.r.Delete(ctx, storageKey)
}

// GetMany fetches keys at version via one fan-out read, returning a map
// from the caller's original keys to decoded values with misses omitted.
func (c *Cache) GetMany(ctx context.Context, keys []string, version int) (map[string]any, error) {
	if len(keys) == 0 {
		return map[string]any{}, nil
	}
	v := resolveVersion(version)
	storageKeys := make([]string, len(keys))
	for i, k := range keys {
		storageKeys[i] = c.names.StorageKey(k, v)
	}
	raws, err := c.r.MGet(ctx, storageKeys)
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(keys))
	for i, raw := range raws {
		if raw == nil {
			continue
		}
		decoded, err := c.codec.Loads(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", cacheerrors.ErrPickle, err)
		}
		out[keys[i]] = decoded
	}
	return out, nil
}

// SetMany stores every key/value pair in mapping under the same ttl and
// version. It is a for-each Set, not a pipelined batch (the router's
// primitive surface has no multi-key SET), so each key keeps Set's
// visibility guarantees.
func (c *Cache) SetMany(ctx context.Context, mapping map[string]any, ttl *time.Duration, version int) error {
	for key, value := range mapping {
		if _, err := c.Set(ctx, key, value, ttl, version); err != nil {
			return err
		}
	}
	return nil
}

// DeleteMany fans a single DEL out across the owning nodes of keys,
// returning the total count removed.
func (c *Cache) DeleteMany(ctx context.Context, keys []string, version int) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	v := resolveVersion(version)
	storageKeys := make([]string, len(keys))
	for i, k := range keys {
		storageKeys[i] = c.names.StorageKey(k, v)
	}
	return c.r.Delete(ctx, storageKeys...)
}

// HasKey reports whether key exists (and has not expired) at version.
func (c *Cache) HasKey(ctx context.Context, key string, version int) (bool, error) {
	storageKey := c.names.StorageKey(key, resolveVersion(version))
	return c.r.Exists(ctx, storageKey)
}

// Incr adds delta to the integer at key. If key is absent this returns
// cacheerrors.ErrValueError rather than implicitly creating the counter
// at 0 (plain INCRBY would otherwise do exactly that).
func (c *Cache) Incr(ctx context.Context, key string, delta int64, version int) (int64, error) {
	storageKey := c.names.StorageKey(key, resolveVersion(version))
	exists, err := c.r.Exists(ctx, storageKey)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, fmt.Errorf("%w: key %q does not exist", cacheerrors.ErrValueError, key)
	}
	return c.r.IncrBy(ctx, storageKey, delta)
}

// Decr subtracts delta from the integer at key; see Incr.
func (c *Cache) Decr(ctx context.Context, key string, delta int64, version int) (int64, error) {
	return c.Incr(ctx, key, -delta, version)
}

// IncrVersion moves the value at (key, version) to (key, version+delta)
// and returns the new version. The rename is a non-atomic get+set+delete:
// a concurrent writer to the old version between the Get and the Delete
// can be silently lost.
func (c *Cache) IncrVersion(ctx context.Context, key string, delta int, version int) (int, error) {
	return c.moveVersion(ctx, key, delta, version)
}

// DecrVersion is IncrVersion with -delta.
func (c *Cache) DecrVersion(ctx context.Context, key string, delta int, version int) (int, error) {
	return c.moveVersion(ctx, key, -delta, version)
}

func (c *Cache) moveVersion(ctx context.Context, key string, delta int, version int) (int, error) {
	oldVersion := resolveVersion(version)
	value, found, err := c.Get(ctx, key, oldVersion)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, fmt.Errorf("%w: key %q not found at version %d", cacheerrors.ErrValueError, key, oldVersion)
	}
	newVersion := oldVersion + delta
	if _, err := c.Set(ctx, key, value, nil, newVersion); err != nil {
		return 0, err
	}
	if _, err := c.Delete(ctx, key, oldVersion); err != nil {
		return 0, err
	}
	return newVersion, nil
}

// DeleteTag drops every key co-located under each of tags' buckets. Only
// meaningful when tagging is enabled; a tag containing "{" or "}" returns
// cacheerrors.ErrInvalidKey.
func (c *Cache) DeleteTag(ctx context.Context, tags ...string) (int64, error) {
	return c.r.DeleteTag(ctx, tags...)
}

// Keys broadcasts a KEYS pattern query across every node and concatenates
// the results; with tagging enabled, a bucket appears once regardless of
// how many logical keys it holds.
func (c *Cache) Keys(ctx context.Context, pattern string) ([]string, error) {
	return c.r.Keys(ctx, pattern)
}

// Ping broadcasts PING to every node, returning a map keyed by node name.
func (c *Cache) Ping(ctx context.Context) (map[driver.NodeName]bool, error) {
	return c.r.Ping(ctx)
}

// Clear broadcasts FLUSHDB to every node.
func (c *Cache) Clear(ctx context.Context) error {
	results, err := c.r.FlushDB(ctx)
	if err != nil {
		return err
	}
	for node, ferr := range results {
		if ferr != nil {
			return fmt.Errorf("shardcache: flushdb on %s: %w", node, ferr)
		}
	}
	return nil
}

// Close releases every node's pooled connections, exactly once; later
// calls return the first call's result.
func (c *Cache) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.r.Close()
	})
	return c.closeErr
}
