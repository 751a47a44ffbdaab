package driver

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConn adapts a *redis.Client (or a failover-aware client created via
// redis.NewFailoverClient, see internal/failover) to the Conn interface.
// It is the production driver; it does no routing or tagging of its own,
// it simply forwards each primitive to the go-redis client for a single
// named node.
type RedisConn struct {
	name   NodeName
	client *redis.Client
}

// NewRedisConn wraps an already-configured *redis.Client under name. The
// caller owns dial options (address, auth, DB index, socket timeout); this
// type only adds the node-name identity the ring and routing layers key on.
func NewRedisConn(name NodeName, client *redis.Client) *RedisConn {
	return &RedisConn{name: name, client: client}
}

func (r *RedisConn) Name() NodeName { return r.name }

func nilToNoError(err error) error {
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

func (r *RedisConn) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return b, err
}

func (r *RedisConn) Set(ctx context.Context, key string, val []byte, nx bool, ex time.Duration) (bool, error) {
	if nx {
		return r.client.SetNX(ctx, key, val, ex).Result()
	}
	err := r.client.Set(ctx, key, val, ex).Err()
	return err == nil, err
}

func (r *RedisConn) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	return r.client.Del(ctx, keys...).Result()
}

func (r *RedisConn) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, key).Result()
	return n > 0, err
}

func (r *RedisConn) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	return r.client.IncrBy(ctx, key, delta).Result()
}

func (r *RedisConn) GetSet(ctx context.Context, key string, val []byte) ([]byte, error) {
	b, err := r.client.GetSet(ctx, key, val).Bytes()
	return b, nilToNoError(err)
}

func (r *RedisConn) MGet(ctx context.Context, keys ...string) ([][]byte, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		if v == nil {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		out[i] = []byte(s)
	}
	return out, nil
}

func (r *RedisConn) Keys(ctx context.Context, pattern string) ([]string, error) {
	return r.client.Keys(ctx, pattern).Result()
}

func (r *RedisConn) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return r.client.Expire(ctx, key, ttl).Err()
}

func (r *RedisConn) FlushDB(ctx context.Context) error {
	return r.client.FlushDB(ctx).Err()
}

func (r *RedisConn) DBSize(ctx context.Context) (int64, error) {
	return r.client.DBSize(ctx).Result()
}

func (r *RedisConn) Info(ctx context.Context) (string, error) {
	return r.client.Info(ctx).Result()
}

func (r *RedisConn) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisConn) HGet(ctx context.Context, bucket, field string) ([]byte, error) {
	b, err := r.client.HGet(ctx, bucket, field).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return b, err
}

func (r *RedisConn) HSet(ctx context.Context, bucket, field string, val []byte, nx bool) (bool, error) {
	if nx {
		return r.client.HSetNX(ctx, bucket, field, val).Result()
	}
	_, err := r.client.HSet(ctx, bucket, field, val).Result()
	return err == nil, err
}

func (r *RedisConn) HMGet(ctx context.Context, bucket string, fields ...string) ([][]byte, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	vals, err := r.client.HMGet(ctx, bucket, fields...).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, len(vals))
	for i, v := range vals {
		if v == nil {
			continue
		}
		if s, ok := v.(string); ok {
			out[i] = []byte(s)
		}
	}
	return out, nil
}

func (r *RedisConn) HDel(ctx context.Context, bucket string, fields ...string) (int64, error) {
	if len(fields) == 0 {
		return 0, nil
	}
	return r.client.HDel(ctx, bucket, fields...).Result()
}

func (r *RedisConn) HExists(ctx context.Context, bucket, field string) (bool, error) {
	return r.client.HExists(ctx, bucket, field).Result()
}

func (r *RedisConn) HIncrBy(ctx context.Context, bucket, field string, delta int64) (int64, error) {
	return r.client.HIncrBy(ctx, bucket, field, delta).Result()
}

func (r *RedisConn) HLen(ctx context.Context, bucket string) (int64, error) {
	return r.client.HLen(ctx, bucket).Result()
}

func (r *RedisConn) HKeys(ctx context.Context, bucket string) ([]string, error) {
	return r.client.HKeys(ctx, bucket).Result()
}

func (r *RedisConn) ScriptLoad(ctx context.Context, script string) (string, error) {
	return r.client.ScriptLoad(ctx, script).Result()
}

func (r *RedisConn) EvalSha(ctx context.Context, sha string, keys []string, args ...any) (any, error) {
	return r.client.EvalSha(ctx, sha, keys, args...).Result()
}

func (r *RedisConn) Close() error {
	return r.client.Close()
}
