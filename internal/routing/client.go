// Package routing implements the ring-aware routing client: it owns one
// driver.Conn per node, a hash ring built over those node names, and the
// tag-rewriting dispatch that turns a single-key command into its hash-map
// analog when the key is tagged.
//
// Dispatch is explicit typed methods; opCategory below exists purely so
// logging/diagnostics can label a call by its dispatch kind, it does not
// drive the call path itself.
package routing

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dreamware/shardcache/internal/driver"
	"github.com/dreamware/shardcache/internal/ring"
	"github.com/dreamware/shardcache/internal/tagging"
)

// opCategory labels a command by its dispatch kind purely for logging; see
// the package doc comment.
type opCategory string

const (
	categoryBroadcast opCategory = "broadcast"
	categorySingleKey opCategory = "single-key"
	categoryTagRoute  opCategory = "tag-route"
	categoryFanOut    opCategory = "fan-out"
)

// Client is the ring-aware routing client. Build one with New; it is safe
// for concurrent use by multiple callers once constructed.
type Client struct {
	nameToNode map[driver.NodeName]driver.Conn
	ring       *ring.Ring
	tags       *tagging.Extractor
	scripts    *scriptCache
	log        *zap.Logger
}

// New builds a Client over conns (one per distinct node), each given v
// virtual positions on the ring (v<=0 selects ring.DefaultVirtualNodes).
// tags may be nil, equivalent to a disabled tagging.Extractor. log may be
// nil, in which case a no-op logger is used.
func New(conns []driver.Conn, v int, tags *tagging.Extractor, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	nameToNode := make(map[driver.NodeName]driver.Conn, len(conns))
	names := make([]driver.NodeName, 0, len(conns))
	for _, c := range conns {
		nameToNode[c.Name()] = c
		names = append(names, c.Name())
	}
	r, err := ring.New(names, v)
	if err != nil {
		return nil, err
	}
	return &Client{
		nameToNode: nameToNode,
		ring:       r,
		tags:       tags,
		scripts:    newScriptCache(),
		log:        log,
	}, nil
}

// Nodes returns the routing client's node handles in name-sorted order, for
// callers (notably the failover client) that want deterministic iteration.
func (c *Client) Nodes() []driver.Conn {
	names := make([]driver.NodeName, 0, len(c.nameToNode))
	for n := range c.nameToNode {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	out := make([]driver.Conn, len(names))
	for i, n := range names {
		out[i] = c.nameToNode[n]
	}
	return out
}

// nodeFor returns the Conn that owns key, consulting the tag extractor
// first: a tagged key is routed by hashing its bucket, not the literal
// key.
func (c *Client) nodeFor(key string) (driver.Conn, string, bool, error) {
	bucket, tagged := c.tags.BucketOf(key)
	routingKey := key
	if tagged {
		routingKey = bucket
	}
	name, ok := c.ring.Get(routingKey)
	if !ok {
		return nil, "", false, fmt.Errorf("routing: ring has no nodes")
	}
	conn, ok := c.nameToNode[name]
	if !ok {
		return nil, "", false, fmt.Errorf("routing: node %q not found", name)
	}
	return conn, bucket, tagged, nil
}

// Close closes every owned node connection exactly once. Errors from
// individual nodes are joined rather than stopping early, so one dead node
// does not prevent releasing the others' resources.
func (c *Client) Close() error {
	var errs []error
	for _, conn := range c.nameToNode {
		if err := conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	msg := "routing: close errors:"
	for _, e := range errs {
		msg += " " + e.Error() + ";"
	}
	return fmt.Errorf("%s", msg)
}

// forEachNode runs fn once per distinct node in parallel via an errgroup,
// never more than once concurrently for the same node — this is what keeps
// a single caller's consecutive commands against one node from being
// reordered during fan-out.
func forEachNode[T any](ctx context.Context, nodes map[driver.NodeName]driver.Conn, fn func(context.Context, driver.Conn) (T, error)) (map[driver.NodeName]T, error) {
	var g errgroup.Group
	results := make(map[driver.NodeName]T, len(nodes))
	var mu sync.Mutex
	for name, conn := range nodes {
		name, conn := name, conn
		g.Go(func() error {
			v, err := fn(ctx, conn)
			if err != nil {
				return fmt.Errorf("node %s: %w", name, err)
			}
			mu.Lock()
			results[name] = v
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
