package routing

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/shardcache/internal/cacheerrors"
	"github.com/dreamware/shardcache/internal/driver"
)

// -- Broadcast ops: apply to every node, return a map of results. --

func (c *Client) DBSize(ctx context.Context) (map[driver.NodeName]int64, error) {
	c.log.Debug("dispatch", zap.String("category", string(categoryBroadcast)), zap.String("op", "dbsize"))
	return forEachNode(ctx, c.nameToNode, func(ctx context.Context, conn driver.Conn) (int64, error) {
		return conn.DBSize(ctx)
	})
}

func (c *Client) FlushDB(ctx context.Context) (map[driver.NodeName]error, error) {
	c.log.Debug("dispatch", zap.String("category", string(categoryBroadcast)), zap.String("op", "flushdb"))
	return forEachNode(ctx, c.nameToNode, func(ctx context.Context, conn driver.Conn) (error, error) {
		return conn.FlushDB(ctx), nil
	})
}

func (c *Client) Info(ctx context.Context) (map[driver.NodeName]string, error) {
	c.log.Debug("dispatch", zap.String("category", string(categoryBroadcast)), zap.String("op", "info"))
	return forEachNode(ctx, c.nameToNode, func(ctx context.Context, conn driver.Conn) (string, error) {
		return conn.Info(ctx)
	})
}

func (c *Client) Ping(ctx context.Context) (map[driver.NodeName]bool, error) {
	c.log.Debug("dispatch", zap.String("category", string(categoryBroadcast)), zap.String("op", "ping"))
	return forEachNode(ctx, c.nameToNode, func(ctx context.Context, conn driver.Conn) (bool, error) {
		if err := conn.Ping(ctx); err != nil {
			return false, err
		}
		return true, nil
	})
}

// Keys broadcasts KEYS pattern to every node and concatenates the results.
func (c *Client) Keys(ctx context.Context, pattern string) ([]string, error) {
	c.log.Debug("dispatch", zap.String("category", string(categoryBroadcast)), zap.String("op", "keys"))
	results, err := forEachNode(ctx, c.nameToNode, func(ctx context.Context, conn driver.Conn) ([]string, error) {
		return conn.Keys(ctx, pattern)
	})
	if err != nil {
		return nil, err
	}
	var out []string
	for _, ks := range results {
		out = append(out, ks...)
	}
	return out, nil
}

// -- Single-key routed ops --

// GetSet routes on key and calls the node's GETSET.
func (c *Client) GetSet(ctx context.Context, key string, val []byte) ([]byte, error) {
	c.log.Debug("dispatch", zap.String("category", string(categorySingleKey)), zap.String("op", "getset"))
	conn, _, _, err := c.nodeFor(key)
	if err != nil {
		return nil, err
	}
	return conn.GetSet(ctx, key, val)
}

// Lock acquires a SETNX-based lock under key with the given TTL. It returns
// a release func that deletes the lock key; release is a no-op if the lock
// was not acquired.
func (c *Client) Lock(ctx context.Context, key string, ttl time.Duration) (acquired bool, release func(context.Context) error, err error) {
	c.log.Debug("dispatch", zap.String("category", string(categorySingleKey)), zap.String("op", "lock"))
	conn, _, _, err := c.nodeFor(key)
	if err != nil {
		return false, nil, err
	}
	ok, err := conn.Set(ctx, key, []byte("1"), true, ttl)
	if err != nil {
		return false, nil, err
	}
	release = func(ctx context.Context) error {
		if !ok {
			return nil
		}
		_, err := conn.Del(ctx, key)
		return err
	}
	return ok, release, nil
}

// -- Tag-routed ops: exists, get, incrby, set, setnx --

// Get routes on key (or its bucket, if tagged) and returns the stored
// bytes, or nil if absent. A tagged key reads via HGET on the bucket.
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	c.log.Debug("dispatch", zap.String("category", string(categoryTagRoute)), zap.String("op", "get"))
	conn, bucket, tagged, err := c.nodeFor(key)
	if err != nil {
		return nil, err
	}
	if tagged {
		return conn.HGet(ctx, bucket, key)
	}
	return conn.Get(ctx, key)
}

// Exists reports whether key (or its field within its bucket) is present.
func (c *Client) Exists(ctx context.Context, key string) (bool, error) {
	c.log.Debug("dispatch", zap.String("category", string(categoryTagRoute)), zap.String("op", "exists"))
	conn, bucket, tagged, err := c.nodeFor(key)
	if err != nil {
		return false, err
	}
	if tagged {
		return conn.HExists(ctx, bucket, key)
	}
	return conn.Exists(ctx, key)
}

// IncrBy atomically adds delta to the integer stored at key.
func (c *Client) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	c.log.Debug("dispatch", zap.String("category", string(categoryTagRoute)), zap.String("op", "incrby"))
	conn, bucket, tagged, err := c.nodeFor(key)
	if err != nil {
		return 0, err
	}
	if tagged {
		return conn.HIncrBy(ctx, bucket, key, delta)
	}
	return conn.IncrBy(ctx, key, delta)
}

// SetNX stores val under key only if it is currently absent.
func (c *Client) SetNX(ctx context.Context, key string, val []byte) (bool, error) {
	c.log.Debug("dispatch", zap.String("category", string(categoryTagRoute)), zap.String("op", "setnx"))
	conn, bucket, tagged, err := c.nodeFor(key)
	if err != nil {
		return false, err
	}
	if tagged {
		return conn.HSet(ctx, bucket, key, val, true)
	}
	return conn.Set(ctx, key, val, true, 0)
}

// Set stores val under key, with optional TTL and NX semantics. Untagged
// keys use SET key val [NX] [EX ex]. Tagged keys use HSET/HSETNX bucket
// key val; when ex is set, EXPIRE is additionally issued against the
// *bucket*, since the TTL governs the whole bucket, not the individual
// field.
func (c *Client) Set(ctx context.Context, key string, val []byte, ex time.Duration, nx bool) (bool, error) {
	c.log.Debug("dispatch", zap.String("category", string(categoryTagRoute)), zap.String("op", "set"))
	conn, bucket, tagged, err := c.nodeFor(key)
	if err != nil {
		return false, err
	}
	if !tagged {
		return conn.Set(ctx, key, val, nx, ex)
	}
	ok, err := conn.HSet(ctx, bucket, key, val, nx)
	if err != nil || !ok {
		return ok, err
	}
	if ex > 0 {
		if err := conn.Expire(ctx, bucket, ex); err != nil {
			return ok, err
		}
	}
	return ok, nil
}

// -- Fan-out read/delete --

// nodeKeys groups a caller's keys that land on the same node into the
// untagged flat subset and the tagged subset (by bucket), so a node
// receives at most one MGET/DEL plus one H* call per distinct bucket,
// never one round trip per key.
type nodeKeys struct {
	conn     driver.Conn
	untagged []string
	byBucket map[string][]string
}

func (c *Client) groupByNode(keys []string) (map[driver.NodeName]*nodeKeys, error) {
	perNode := make(map[driver.NodeName]*nodeKeys)
	for _, k := range keys {
		conn, bucket, tagged, err := c.nodeFor(k)
		if err != nil {
			return nil, err
		}
		nk, ok := perNode[conn.Name()]
		if !ok {
			nk = &nodeKeys{conn: conn, byBucket: make(map[string][]string)}
			perNode[conn.Name()] = nk
		}
		if tagged {
			nk.byBucket[bucket] = append(nk.byBucket[bucket], k)
		} else {
			nk.untagged = append(nk.untagged, k)
		}
	}
	return perNode, nil
}

// MGet fetches keys, grouping by owning node so a node holding several of
// the requested keys gets one MGET for its untagged share plus one HMGET
// per distinct bucket, never one call per key. Results come back in the
// caller's key order; a missing key is nil.
func (c *Client) MGet(ctx context.Context, keys []string) ([][]byte, error) {
	c.log.Debug("dispatch", zap.String("category", string(categoryFanOut)), zap.String("op", "mget"))
	if len(keys) == 0 {
		return nil, nil
	}
	perNode, err := c.groupByNode(keys)
	if err != nil {
		return nil, err
	}

	values := make(map[string][]byte, len(keys))
	var mu sync.Mutex
	var g errgroup.Group
	for _, nk := range perNode {
		nk := nk
		g.Go(func() error {
			if len(nk.untagged) > 0 {
				vals, err := nk.conn.MGet(ctx, nk.untagged...)
				if err != nil {
					return fmt.Errorf("node %s: %w", nk.conn.Name(), err)
				}
				mu.Lock()
				for i, k := range nk.untagged {
					values[k] = vals[i]
				}
				mu.Unlock()
			}
			for bucket, fields := range nk.byBucket {
				vals, err := nk.conn.HMGet(ctx, bucket, fields...)
				if err != nil {
					return fmt.Errorf("node %s: %w", nk.conn.Name(), err)
				}
				mu.Lock()
				for i, k := range fields {
					values[k] = vals[i]
				}
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([][]byte, len(keys))
	for i, k := range keys {
		out[i] = values[k]
	}
	return out, nil
}

// Delete fans out across the owning nodes of keys, issuing one DEL per
// node for the untagged subset and one HDEL per bucket for the tagged
// subset, and returns the sum of removed counts. An empty keys list
// contacts no node.
func (c *Client) Delete(ctx context.Context, keys ...string) (int64, error) {
	c.log.Debug("dispatch", zap.String("category", string(categoryFanOut)), zap.String("op", "delete"))
	if len(keys) == 0 {
		return 0, nil
	}
	perNode, err := c.groupByNode(keys)
	if err != nil {
		return 0, err
	}

	var total int64
	var mu sync.Mutex
	var g errgroup.Group
	for _, nk := range perNode {
		nk := nk
		g.Go(func() error {
			var n int64
			if len(nk.untagged) > 0 {
				count, err := nk.conn.Del(ctx, nk.untagged...)
				if err != nil {
					return fmt.Errorf("node %s: %w", nk.conn.Name(), err)
				}
				n += count
			}
			for bucket, fields := range nk.byBucket {
				count, err := nk.conn.HDel(ctx, bucket, fields...)
				if err != nil {
					return fmt.Errorf("node %s: %w", nk.conn.Name(), err)
				}
				n += count
			}
			mu.Lock()
			total += n
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return total, nil
}

// DeleteTag drops every key under each of the given tags' buckets. A tag
// that itself contains "{" or "}" is rejected with cacheerrors.ErrInvalidKey
// before any node is contacted.
func (c *Client) DeleteTag(ctx context.Context, tags ...string) (int64, error) {
	c.log.Debug("dispatch", zap.String("category", string(categoryFanOut)), zap.String("op", "delete_tag"))
	if len(tags) == 0 {
		return 0, nil
	}
	byNode := make(map[driver.NodeName][]string)
	connByNode := make(map[driver.NodeName]driver.Conn)
	for _, tag := range tags {
		if strings.ContainsAny(tag, "{}") {
			return 0, fmt.Errorf("%w: tag %q must not contain `{` or `}`", cacheerrors.ErrInvalidKey, tag)
		}
		bucket := "{" + tag + "}"
		conn, _, _, err := c.nodeFor(bucket)
		if err != nil {
			return 0, err
		}
		byNode[conn.Name()] = append(byNode[conn.Name()], bucket)
		connByNode[conn.Name()] = conn
	}

	var total int64
	var mu sync.Mutex
	var g errgroup.Group
	for name, buckets := range byNode {
		conn, buckets := connByNode[name], buckets
		g.Go(func() error {
			n, err := conn.Del(ctx, buckets...)
			if err != nil {
				return fmt.Errorf("node %s: %w", conn.Name(), err)
			}
			mu.Lock()
			total += n
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return total, nil
}
