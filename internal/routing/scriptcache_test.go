package routing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/shardcache/internal/driver"
)

func TestScriptCacheLoadsOnceThenEvalsSha(t *testing.T) {
	conn := driver.NewMemConn("n1")
	sc := newScriptCache()
	ctx := context.Background()

	script := "return redis.call('GET', KEYS[1])"

	_, err := sc.EvalSha(ctx, conn, script, []string{"k"})
	require.NoError(t, err)

	sha, err := conn.ScriptLoad(ctx, script)
	require.NoError(t, err)
	assert.Equal(t, sha1Hex(script), sha, "digest computed locally must match the one MemConn would assign")

	_, err = sc.EvalSha(ctx, conn, script, []string{"k"})
	require.NoError(t, err)
}

func TestScriptCacheTracksLoadedPerNode(t *testing.T) {
	connA := driver.NewMemConn("a")
	connB := driver.NewMemConn("b")
	sc := newScriptCache()
	ctx := context.Background()
	script := "return 1"

	_, err := sc.EvalSha(ctx, connA, script, nil)
	require.NoError(t, err)

	sc.mu.Lock()
	_, loadedOnB := sc.loaded[script][connB.Name()]
	_, loadedOnA := sc.loaded[script][connA.Name()]
	sc.mu.Unlock()

	assert.True(t, loadedOnA)
	assert.False(t, loadedOnB, "loading on one node must not mark another node as loaded")
}
