// Package failover implements the supervisor-backed routing client:
// given a list of Sentinel supervisors, it asks each
// in turn for the masters it knows about until one answers, takes that
// answer's master set as-is, and hands each master off to a
// redis.FailoverClient that tracks the primary for us from then on.
package failover

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// masterInfo is the subset of a SENTINEL MASTERS entry this package cares
// about: enough to dial a redis.FailoverClient for the shard.
type masterInfo struct {
	name string
	ip   string
	port string
}

// sentinelQuerier is the subset of *redis.SentinelClient this package
// depends on. It exists so the bootstrap logic can be exercised against a
// fake supervisor in tests instead of a real redis-server/sentinel pair.
type sentinelQuerier interface {
	Masters(ctx context.Context) ([]map[string]string, error)
	Close() error
}

// goRedisSentinel adapts a *redis.SentinelClient to sentinelQuerier. The
// wire shape of SENTINEL MASTERS is an array of flattened key/value pairs
// per entry (the raw RESP2 shape for this admin command); flattenKV below
// reassembles each entry into a map.
type goRedisSentinel struct {
	client *redis.SentinelClient
}

func dialSentinel(addr string, password string, dialTimeout time.Duration) sentinelQuerier {
	return &goRedisSentinel{client: redis.NewSentinelClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DialTimeout: dialTimeout,
	})}
}

func (g *goRedisSentinel) Masters(ctx context.Context) ([]map[string]string, error) {
	raw, err := g.client.Masters(ctx).Result()
	if err != nil {
		return nil, err
	}
	return flattenAll(raw), nil
}

func (g *goRedisSentinel) Close() error {
	return g.client.Close()
}

// flattenAll converts the []interface{} SENTINEL MASTERS result into one
// map per entry.
func flattenAll(raw []interface{}) []map[string]string {
	out := make([]map[string]string, 0, len(raw))
	for _, entry := range raw {
		if m, ok := flattenKV(entry); ok {
			out = append(out, m)
		}
	}
	return out
}

// flattenKV turns a []interface{}{"k1", "v1", "k2", "v2", ...} entry, the
// shape go-redis hands back for each SENTINEL MASTERS record, into a map.
// Non-string elements are skipped rather than erroring, since a handful of
// fields (e.g. flags) are sometimes nested arrays we don't need.
func flattenKV(entry interface{}) (map[string]string, bool) {
	kv, ok := entry.([]interface{})
	if !ok || len(kv)%2 != 0 {
		return nil, false
	}
	m := make(map[string]string, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, kok := kv[i].(string)
		v, vok := kv[i+1].(string)
		if kok && vok {
			m[k] = v
		}
	}
	return m, true
}

var errMasterMissingFields = errors.New("failover: master entry missing name/ip/port")

func toMasterInfo(m map[string]string) (masterInfo, error) {
	name, ip, port := m["name"], m["ip"], m["port"]
	if name == "" || ip == "" || port == "" {
		return masterInfo{}, errMasterMissingFields
	}
	return masterInfo{name: name, ip: ip, port: port}, nil
}
