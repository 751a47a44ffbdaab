package driver

import (
	"context"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"
)

// entry is one flat stored value, with its optional absolute expiry.
type entry struct {
	val     []byte
	expires time.Time // zero means no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.expires.IsZero() && now.After(e.expires)
}

// MemConn is an in-memory Conn used by this module's own test suite. It
// mirrors the behavior a real backend is expected to provide closely
// enough that the ring, routing, tagging and facade layers can be
// exercised without a live server, including hash buckets, TTLs and
// INCRBY so the tag-rewriting and expiry semantics have something real
// to hit.
type MemConn struct {
	name NodeName

	mu        sync.Mutex
	flat      map[string]entry
	buckets   map[string]map[string][]byte
	bucketExp map[string]time.Time // zero/absent means no expiry
	scripts   map[string]string    // sha1 -> script text
}

// NewMemConn returns an empty in-memory connection named name.
func NewMemConn(name NodeName) *MemConn {
	return &MemConn{
		name:      name,
		flat:      make(map[string]entry),
		buckets:   make(map[string]map[string][]byte),
		bucketExp: make(map[string]time.Time),
		scripts:   make(map[string]string),
	}
}

// liveBucket returns the bucket's field map, dropping the whole bucket first
// if its TTL has lapsed — EXPIRE on a hash key governs the key as a whole,
// so an expired bucket loses every field at once. Callers must hold mu.
func (m *MemConn) liveBucket(name string, now time.Time) map[string][]byte {
	if exp, ok := m.bucketExp[name]; ok && now.After(exp) {
		delete(m.buckets, name)
		delete(m.bucketExp, name)
		return nil
	}
	return m.buckets[name]
}

func (m *MemConn) Name() NodeName { return m.name }

func (m *MemConn) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.flat[key]
	if !ok || e.expired(time.Now()) {
		return nil, nil
	}
	return cloneBytes(e.val), nil
}

func (m *MemConn) Set(_ context.Context, key string, val []byte, nx bool, ex time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if nx {
		if e, ok := m.flat[key]; ok && !e.expired(time.Now()) {
			return false, nil
		}
	}
	var exp time.Time
	if ex > 0 {
		exp = time.Now().Add(ex)
	}
	m.flat[key] = entry{val: cloneBytes(val), expires: exp}
	return true, nil
}

// Del removes keys regardless of whether they hold a flat value or a hash
// bucket — real Redis keeps one keyspace across types, so DEL on a hash
// key removes the whole hash just as it would a string.
func (m *MemConn) Del(_ context.Context, keys ...string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, k := range keys {
		removed := false
		if _, ok := m.flat[k]; ok {
			delete(m.flat, k)
			removed = true
		}
		if _, ok := m.buckets[k]; ok {
			delete(m.buckets, k)
			delete(m.bucketExp, k)
			removed = true
		}
		if removed {
			n++
		}
	}
	return n, nil
}

func (m *MemConn) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.flat[key]
	return ok && !e.expired(time.Now()), nil
}

func (m *MemConn) IncrBy(_ context.Context, key string, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur := int64(0)
	if e, ok := m.flat[key]; ok && !e.expired(time.Now()) {
		n, err := strconv.ParseInt(string(e.val), 10, 64)
		if err != nil {
			return 0, err
		}
		cur = n
	}
	cur += delta
	m.flat[key] = entry{val: []byte(strconv.FormatInt(cur, 10))}
	return cur, nil
}

func (m *MemConn) GetSet(_ context.Context, key string, val []byte) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var old []byte
	if e, ok := m.flat[key]; ok && !e.expired(time.Now()) {
		old = cloneBytes(e.val)
	}
	m.flat[key] = entry{val: cloneBytes(val)}
	return old, nil
}

func (m *MemConn) MGet(_ context.Context, keys ...string) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(keys))
	now := time.Now()
	for i, k := range keys {
		if e, ok := m.flat[k]; ok && !e.expired(now) {
			out[i] = cloneBytes(e.val)
		}
	}
	return out, nil
}

func (m *MemConn) Keys(_ context.Context, pattern string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var out []string
	for k, e := range m.flat {
		if e.expired(now) {
			continue
		}
		if ok, _ := filepath.Match(pattern, k); ok {
			out = append(out, k)
		}
	}
	for b := range m.buckets {
		if m.liveBucket(b, now) == nil {
			continue
		}
		if ok, _ := filepath.Match(pattern, b); ok {
			out = append(out, b)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemConn) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.flat[key]; ok {
		e.expires = time.Now().Add(ttl)
		m.flat[key] = e
		return nil
	}
	if _, ok := m.buckets[key]; ok {
		m.bucketExp[key] = time.Now().Add(ttl)
	}
	return nil
}

func (m *MemConn) FlushDB(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flat = make(map[string]entry)
	m.buckets = make(map[string]map[string][]byte)
	m.bucketExp = make(map[string]time.Time)
	return nil
}

func (m *MemConn) DBSize(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	var n int64
	for _, e := range m.flat {
		if !e.expired(now) {
			n++
		}
	}
	for b := range m.buckets {
		if m.liveBucket(b, now) != nil {
			n++
		}
	}
	return n, nil
}

func (m *MemConn) Info(_ context.Context) (string, error) {
	return "mem_conn:" + string(m.name), nil
}

func (m *MemConn) Ping(_ context.Context) error { return nil }

func (m *MemConn) HGet(_ context.Context, bucket, field string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.liveBucket(bucket, time.Now())
	if b == nil {
		return nil, nil
	}
	return cloneBytes(b[field]), nil
}

func (m *MemConn) HSet(_ context.Context, bucket, field string, val []byte, nx bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.liveBucket(bucket, time.Now())
	if b == nil {
		b = make(map[string][]byte)
		m.buckets[bucket] = b
	}
	if nx {
		if _, exists := b[field]; exists {
			return false, nil
		}
	}
	b[field] = cloneBytes(val)
	return true, nil
}

func (m *MemConn) HMGet(_ context.Context, bucket string, fields ...string) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(fields))
	b := m.liveBucket(bucket, time.Now())
	for i, f := range fields {
		if b != nil {
			out[i] = cloneBytes(b[f])
		}
	}
	return out, nil
}

func (m *MemConn) HDel(_ context.Context, bucket string, fields ...string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.liveBucket(bucket, time.Now())
	if b == nil {
		return 0, nil
	}
	var n int64
	for _, f := range fields {
		if _, ok := b[f]; ok {
			delete(b, f)
			n++
		}
	}
	if len(b) == 0 {
		delete(m.buckets, bucket)
		delete(m.bucketExp, bucket)
	}
	return n, nil
}

func (m *MemConn) HExists(_ context.Context, bucket, field string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.liveBucket(bucket, time.Now())
	if b == nil {
		return false, nil
	}
	_, ok := b[field]
	return ok, nil
}

func (m *MemConn) HIncrBy(_ context.Context, bucket, field string, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.liveBucket(bucket, time.Now())
	if b == nil {
		b = make(map[string][]byte)
		m.buckets[bucket] = b
	}
	cur := int64(0)
	if v, ok := b[field]; ok {
		n, err := strconv.ParseInt(string(v), 10, 64)
		if err != nil {
			return 0, err
		}
		cur = n
	}
	cur += delta
	b[field] = []byte(strconv.FormatInt(cur, 10))
	return cur, nil
}

func (m *MemConn) HLen(_ context.Context, bucket string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.liveBucket(bucket, time.Now()))), nil
}

func (m *MemConn) HKeys(_ context.Context, bucket string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.liveBucket(bucket, time.Now())
	out := make([]string, 0, len(b))
	for f := range b {
		out = append(out, f)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemConn) ScriptLoad(_ context.Context, script string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sha := sha1Hex(script)
	m.scripts[sha] = script
	return sha, nil
}

func (m *MemConn) EvalSha(_ context.Context, sha string, _ []string, _ ...any) (any, error) {
	m.mu.Lock()
	_, ok := m.scripts[sha]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNil
	}
	// MemConn supports script registration (used by the script-cache
	// contract tests) but does not execute Lua; nothing in this module's
	// authoritative (hash-map) routing path calls EvalSha.
	return nil, nil
}

func (m *MemConn) Close() error { return nil }

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
