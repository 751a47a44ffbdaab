// Package ring implements the consistent-hash ring that maps arbitrary keys
// onto a fixed set of node names with bounded reshuffling as the node set
// changes.
//
// Each node gets V virtual positions on the ring (hash("{node}:{i}") for
// i in [0,V)); a key is owned by the node whose virtual position is the
// first one strictly greater than the key's own hash, wrapping around to
// index 0 at the end of the ring.
package ring

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sort"

	"golang.org/x/exp/slices"

	"github.com/dreamware/shardcache/internal/driver"
)

// DefaultVirtualNodes is the number of virtual positions assigned to each
// node when the caller does not choose one.
const DefaultVirtualNodes = 100

// virtualPosition is one entry of the sorted ring: a hash and the node it
// belongs to. Positions are compared and sorted by hash, lexicographically
// on the hex digest — the hash is never decoded back into a number.
type virtualPosition struct {
	hash string
	node driver.NodeName
}

// Ring is a consistent-hash ring over a set of node names. The zero value is
// not usable; construct with New. Ring is not safe for concurrent AddNode/
// RemoveNode calls racing with each other or with Get, matching §5's note
// that ring mutation is not on the request path in the current design —
// callers that need concurrent mutation must add their own lock.
type Ring struct {
	v         int
	nodes     map[driver.NodeName]struct{}
	positions []virtualPosition // sorted by hash
}

// New builds a ring over nodes, each given v virtual positions. v<=0 selects
// DefaultVirtualNodes. New fails if nodes is empty.
func New(nodes []driver.NodeName, v int) (*Ring, error) {
	if len(nodes) == 0 {
		return nil, fmt.Errorf("ring: at least one node is required")
	}
	if v <= 0 {
		v = DefaultVirtualNodes
	}
	r := &Ring{
		v:     v,
		nodes: make(map[driver.NodeName]struct{}, len(nodes)),
	}
	for _, n := range nodes {
		r.AddNode(n)
	}
	return r, nil
}

// hashOf returns the hex-encoded MD5 digest of s, the ring's hash function.
func hashOf(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// AddNode inserts n's virtual positions into the ring. A no-op if n is
// already present.
func (r *Ring) AddNode(n driver.NodeName) {
	if _, ok := r.nodes[n]; ok {
		return
	}
	r.nodes[n] = struct{}{}
	for i := 0; i < r.v; i++ {
		h := hashOf(fmt.Sprintf("%s:%d", n, i))
		idx, _ := r.search(h)
		r.positions = slices.Insert(r.positions, idx, virtualPosition{hash: h, node: n})
	}
}

// RemoveNode deletes n's virtual positions from the ring. A no-op if n is
// absent.
func (r *Ring) RemoveNode(n driver.NodeName) {
	if _, ok := r.nodes[n]; !ok {
		return
	}
	delete(r.nodes, n)
	kept := r.positions[:0:0]
	for _, p := range r.positions {
		if p.node != n {
			kept = append(kept, p)
		}
	}
	r.positions = kept
}

// search returns the leftmost index at which hash could be inserted to keep
// r.positions sorted (the standard left-bisect insertion point).
func (r *Ring) search(hash string) (int, bool) {
	idx := sort.Search(len(r.positions), func(i int) bool {
		return r.positions[i].hash >= hash
	})
	found := idx < len(r.positions) && r.positions[idx].hash == hash
	return idx, found
}

// Get returns the node owning key, or "" and false if the ring is empty.
//
// Lookup uses strict-upper-bound (right-bisect) semantics: a key whose hash
// equals an existing virtual position's hash maps to the *next* position,
// not that one.
func (r *Ring) Get(key string) (driver.NodeName, bool) {
	if len(r.positions) == 0 {
		return "", false
	}
	h := hashOf(key)
	idx := sort.Search(len(r.positions), func(i int) bool {
		return r.positions[i].hash > h
	})
	return r.positions[idx%len(r.positions)].node, true
}

// Nodes returns the current node set in unspecified order.
func (r *Ring) Nodes() []driver.NodeName {
	out := make([]driver.NodeName, 0, len(r.nodes))
	for n := range r.nodes {
		out = append(out, n)
	}
	return out
}

// Len returns the number of virtual positions currently on the ring
// (v * number of distinct nodes).
func (r *Ring) Len() int {
	return len(r.positions)
}

// Sorted reports whether the virtual-position sequence is monotonically
// non-decreasing by hash, the invariant AddNode/RemoveNode must preserve.
// Exposed for tests.
func (r *Ring) Sorted() bool {
	for i := 1; i < len(r.positions); i++ {
		if r.positions[i-1].hash > r.positions[i].hash {
			return false
		}
	}
	return true
}
