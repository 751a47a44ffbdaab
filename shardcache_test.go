package shardcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/shardcache/internal/cacheerrors"
	"github.com/dreamware/shardcache/internal/codec"
	"github.com/dreamware/shardcache/internal/driver"
	"github.com/dreamware/shardcache/internal/keyname"
	"github.com/dreamware/shardcache/internal/routing"
	"github.com/dreamware/shardcache/internal/tagging"
)

func newTestCache(t *testing.T, nodeCount int, tagged bool) *Cache {
	t.Helper()
	conns := make([]driver.Conn, nodeCount)
	for i := range conns {
		conns[i] = driver.NewMemConn(driver.NodeName(string(rune('a' + i))))
	}
	var ext *tagging.Extractor
	if tagged {
		e, err := tagging.New(true, "")
		require.NoError(t, err)
		ext = e
	}
	rc, err := routing.New(conns, 0, ext, nil)
	require.NoError(t, err)
	return &Cache{
		r:          rc,
		codec:      codec.New(false),
		names:      keyname.New("t"),
		defaultTTL: DefaultTTL,
	}
}

// Scenario 1.
func TestScenarioSetThenGet(t *testing.T) {
	c := newTestCache(t, 3, false)
	ctx := context.Background()

	ok, err := c.Set(ctx, "key", "value", nil, 0)
	require.NoError(t, err)
	assert.True(t, ok)

	v, found, err := c.Get(ctx, "key", 0)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "value", v)
}

// Scenario 2.
func TestScenarioAddRefusesSecondWrite(t *testing.T) {
	c := newTestCache(t, 3, false)
	ctx := context.Background()

	ok, err := c.Add(ctx, "k", "a", nil, 0)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Add(ctx, "k", "b", nil, 0)
	require.NoError(t, err)
	assert.False(t, ok)

	v, found, err := c.Get(ctx, "k", 0)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "a", v)
}

// Scenario 3.
func TestScenarioGetManyOmitsMisses(t *testing.T) {
	c := newTestCache(t, 4, false)
	ctx := context.Background()

	for _, p := range []struct{ k, v string }{{"a", "a"}, {"b", "b"}, {"c", "c"}, {"d", "d"}} {
		_, err := c.Set(ctx, p.k, p.v, nil, 0)
		require.NoError(t, err)
	}

	got, err := c.GetMany(ctx, []string{"a", "c", "d"}, 0)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": "a", "c": "c", "d": "d"}, got)
}

// Scenario 4.
func TestScenarioIncrAndMissingKeyErrors(t *testing.T) {
	c := newTestCache(t, 3, false)
	ctx := context.Background()

	_, err := c.Set(ctx, "n", int64(41), nil, 0)
	require.NoError(t, err)

	n, err := c.Incr(ctx, "n", 1, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)

	v, found, err := c.Get(ctx, "n", 0)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(42), v)

	n, err = c.Incr(ctx, "n", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(52), n)

	_, err = c.Incr(ctx, "missing", 1, 0)
	assert.ErrorIs(t, err, cacheerrors.ErrValueError)
}

// Scenario 5.
func TestScenarioTTLExpiryAndNonPositiveTTLDoesNotStore(t *testing.T) {
	c := newTestCache(t, 3, false)
	ctx := context.Background()

	ttl := 50 * time.Millisecond
	ok, err := c.Set(ctx, "k", "v", &ttl, 0)
	require.NoError(t, err)
	assert.True(t, ok)

	time.Sleep(150 * time.Millisecond)
	_, found, err := c.Get(ctx, "k", 0)
	require.NoError(t, err)
	assert.False(t, found)

	zero := time.Duration(0)
	ok, err = c.Set(ctx, "k", "v", &zero, 0)
	require.NoError(t, err)
	assert.False(t, ok, "ttl<=0 must refuse to store")

	_, found, err = c.Get(ctx, "k", 0)
	require.NoError(t, err)
	assert.False(t, found)
}

// Scenario 6.
func TestScenarioVersionedKeysAndIncrVersion(t *testing.T) {
	c := newTestCache(t, 3, false)
	ctx := context.Background()

	noExpiry := NoExpiry
	_, err := c.Set(ctx, "answer", int64(42), &noExpiry, 2)
	require.NoError(t, err)

	_, found, err := c.Get(ctx, "answer", 0)
	require.NoError(t, err)
	assert.False(t, found, "default version must not see version 2's value")

	v, found, err := c.Get(ctx, "answer", 2)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(42), v)

	newVersion, err := c.IncrVersion(ctx, "answer", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, newVersion)

	v, found, err = c.Get(ctx, "answer", 3)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(42), v)

	_, found, err = c.Get(ctx, "answer", 2)
	require.NoError(t, err)
	assert.False(t, found, "old version must be gone after the rename")
}

// Scenario 7.
func TestScenarioTaggedKeysColocateOnOneNodeOneBucket(t *testing.T) {
	c := newTestCache(t, 5, true)
	ctx := context.Background()

	for _, k := range []string{"{T}-a", "{T}-b", "{T}-c"} {
		_, err := c.Set(ctx, k, k, nil, 0)
		require.NoError(t, err)
	}

	keys, err := c.Keys(ctx, "*")
	require.NoError(t, err)

	var buckets []string
	for _, k := range keys {
		if k == "{T}" {
			buckets = append(buckets, k)
		}
	}
	assert.Equal(t, []string{"{T}"}, buckets)
}

// Scenario 8.
func TestScenarioDeleteThenDeleteTagRemovesRest(t *testing.T) {
	c := newTestCache(t, 5, true)
	ctx := context.Background()

	for _, k := range []string{"{T}-a", "{T}-b", "{T}-c"} {
		_, err := c.Set(ctx, k, "x", nil, 0)
		require.NoError(t, err)
	}

	n, err := c.Delete(ctx, "{T}-a", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "deleting one field of a shared bucket removes just that field")

	n, err = c.DeleteTag(ctx, "T")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	keys, err := c.Keys(ctx, "*")
	require.NoError(t, err)
	for _, k := range keys {
		assert.NotEqual(t, "{T}", k)
	}
}

// Scenario 9.
func TestScenarioDeleteTagRejectsBraceInTag(t *testing.T) {
	c := newTestCache(t, 3, true)
	_, err := c.DeleteTag(context.Background(), "{bad}")
	assert.ErrorIs(t, err, cacheerrors.ErrInvalidKey)
}

func TestClearBroadcastsFlushdb(t *testing.T) {
	c := newTestCache(t, 3, false)
	ctx := context.Background()

	_, err := c.Set(ctx, "k", "v", nil, 0)
	require.NoError(t, err)

	require.NoError(t, c.Clear(ctx))

	_, found, err := c.Get(ctx, "k", 0)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCloseIsIdempotent(t *testing.T) {
	c := newTestCache(t, 3, false)
	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
}

func TestSetManyStoresEveryPair(t *testing.T) {
	c := newTestCache(t, 4, false)
	ctx := context.Background()

	err := c.SetMany(ctx, map[string]any{"a": "1", "b": "2", "c": "3"}, nil, 0)
	require.NoError(t, err)

	got, err := c.GetMany(ctx, []string{"a", "b", "c"}, 0)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": "1", "b": "2", "c": "3"}, got)
}

func TestDeleteManyFansOut(t *testing.T) {
	c := newTestCache(t, 5, false)
	ctx := context.Background()

	for _, k := range []string{"x", "y", "z"} {
		_, err := c.Set(ctx, k, "v", nil, 0)
		require.NoError(t, err)
	}

	n, err := c.DeleteMany(ctx, []string{"x", "y", "z", "missing"}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestHasKey(t *testing.T) {
	c := newTestCache(t, 3, false)
	ctx := context.Background()

	ok, err := c.HasKey(ctx, "absent", 0)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = c.Set(ctx, "present", "v", nil, 0)
	require.NoError(t, err)

	ok, err = c.HasKey(ctx, "present", 0)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPingCoversEveryNode(t *testing.T) {
	c := newTestCache(t, 4, false)
	pongs, err := c.Ping(context.Background())
	require.NoError(t, err)
	assert.Len(t, pongs, 4)
	for _, ok := range pongs {
		assert.True(t, ok)
	}
}

func TestDecrIsIncrWithNegatedDelta(t *testing.T) {
	c := newTestCache(t, 3, false)
	ctx := context.Background()

	_, err := c.Set(ctx, "n", int64(10), nil, 0)
	require.NoError(t, err)

	n, err := c.Decr(ctx, "n", 3, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
}
