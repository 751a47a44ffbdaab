// Package driver defines the downstream key-value protocol that the routing
// layer dispatches onto. The protocol itself — the wire format, connection
// pooling, and auth handshake of any one backend — belongs to the backend
// client library; this package only pins down the primitive command surface
// that every Conn implementation, real or fake, must expose.
package driver

import (
	"context"
	"time"
)

// NodeName identifies one backend instance. Under the plain ring client this
// is a "host:port" string; under the failover-aware client it is a stable
// logical shard name (e.g. "mymaster3") whose underlying endpoint may change.
type NodeName string

// Conn is the primitive command set a single backend node exposes. The
// routing client never talks to a backend except through this interface, so
// swapping the production go-redis-backed implementation for the in-memory
// fake used by this module's own tests requires no changes above this
// package.
type Conn interface {
	Name() NodeName

	Get(ctx context.Context, key string) ([]byte, error)
	// Set stores val under key. When nx is true the write only happens if
	// key is absent. ex of zero means no expiry. The bool result reports
	// whether the value was actually written (always true unless nx failed).
	Set(ctx context.Context, key string, val []byte, nx bool, ex time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) (int64, error)
	Exists(ctx context.Context, key string) (bool, error)
	IncrBy(ctx context.Context, key string, delta int64) (int64, error)
	GetSet(ctx context.Context, key string, val []byte) ([]byte, error)
	MGet(ctx context.Context, keys ...string) ([][]byte, error)
	Keys(ctx context.Context, pattern string) ([]string, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error

	FlushDB(ctx context.Context) error
	DBSize(ctx context.Context) (int64, error)
	Info(ctx context.Context) (string, error)
	Ping(ctx context.Context) error

	// Hash-map analogs, used for the tag-rewriting bucket storage.
	// field is the storage key within the bucket.
	HGet(ctx context.Context, bucket, field string) ([]byte, error)
	HSet(ctx context.Context, bucket, field string, val []byte, nx bool) (bool, error)
	HMGet(ctx context.Context, bucket string, fields ...string) ([][]byte, error)
	HDel(ctx context.Context, bucket string, fields ...string) (int64, error)
	HExists(ctx context.Context, bucket, field string) (bool, error)
	HIncrBy(ctx context.Context, bucket, field string, delta int64) (int64, error)
	HLen(ctx context.Context, bucket string) (int64, error)
	HKeys(ctx context.Context, bucket string) ([]string, error)

	ScriptLoad(ctx context.Context, script string) (string, error)
	EvalSha(ctx context.Context, sha string, keys []string, args ...any) (any, error)

	Close() error
}

// ErrNil reports a nil server reply that is not a plain cache miss — a
// missing Get/HGet reads as (nil, nil), but MemConn's EvalSha on a script
// that node has never loaded returns ErrNil. RedisConn does not use it: its
// EvalSha passes go-redis's own error through unchanged. It is never
// surfaced to callers of the Cache facade.
var ErrNil = errNil{}

type errNil struct{}

func (errNil) Error() string { return "driver: key does not exist" }
