package routing

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/dreamware/shardcache/internal/driver"
)

// scriptCache tracks, per Lua script body, its SHA-1 digest and the set of
// nodes that have already SCRIPT LOADed it. The first EvalSha call against
// a given node for a given script issues a ScriptLoad; every later call on
// that node goes straight to EvalSha.
type scriptCache struct {
	mu      sync.Mutex
	loaded  map[string]map[driver.NodeName]struct{}
	digests map[string]string
}

func newScriptCache() *scriptCache {
	return &scriptCache{
		loaded:  make(map[string]map[driver.NodeName]struct{}),
		digests: make(map[string]string),
	}
}

// EvalSha runs script on conn, loading it first if conn hasn't seen it yet.
// The digest the server returns from SCRIPT LOAD is checked against the
// locally computed SHA-1 of script; a mismatch means the node computed a
// different hash than we did, which should never happen for a well-formed
// Lua script and indicates a protocol-level problem worth surfacing loudly.
func (s *scriptCache) EvalSha(ctx context.Context, conn driver.Conn, script string, keys []string, args ...any) (any, error) {
	digest := sha1Hex(script)

	s.mu.Lock()
	nodes, ok := s.loaded[script]
	if !ok {
		nodes = make(map[driver.NodeName]struct{})
		s.loaded[script] = nodes
		s.digests[script] = digest
	}
	_, haveLoaded := nodes[conn.Name()]
	s.mu.Unlock()

	if !haveLoaded {
		serverDigest, err := conn.ScriptLoad(ctx, script)
		if err != nil {
			return nil, fmt.Errorf("routing: script load on %s: %w", conn.Name(), err)
		}
		if serverDigest != digest {
			return nil, fmt.Errorf("routing: node %s returned sha1 %s for script, want %s", conn.Name(), serverDigest, digest)
		}
		s.mu.Lock()
		nodes[conn.Name()] = struct{}{}
		s.mu.Unlock()
	}

	return conn.EvalSha(ctx, digest, keys, args...)
}

func sha1Hex(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
