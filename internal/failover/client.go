package failover

import (
	"context"
	"fmt"
	"math/rand"
	"sort"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/exp/slices"

	"github.com/dreamware/shardcache/internal/cacheerrors"
	"github.com/dreamware/shardcache/internal/config"
	"github.com/dreamware/shardcache/internal/driver"
	"github.com/dreamware/shardcache/internal/routing"
	"github.com/dreamware/shardcache/internal/tagging"
)

// Client is the failover-aware routing client: a
// *routing.Client built not over fixed host:port nodes but over one
// redis.FailoverClient handle per shard, each of which tracks its own
// current primary via the supervisor pool from here on. The ring and
// tag-rewriting logic are entirely delegated to the embedded
// *routing.Client, which never sees anything except the stable shard
// names.
type Client struct {
	*routing.Client
	supervisors []sentinelQuerier
}

// Bootstrap dials each of the supervisor addresses (shuffled, so repeated
// bootstraps don't hammer the same supervisor first every time) and asks
// each in turn for SENTINEL MASTERS. The first supervisor to answer
// successfully wins: its reported set of master names becomes the shard
// set, unconditionally.
// Each master becomes one shard, dialed through redis.NewFailoverClient so
// the shard transparently follows its primary from then on.
func Bootstrap(ctx context.Context, supervisorAddrs []string, opt config.Options, tags *tagging.Extractor, v int, log *zap.Logger) (*Client, error) {
	return bootstrap(ctx, supervisorAddrs, opt, tags, v, log, func(addr string) sentinelQuerier {
		return dialSentinel(addr, opt.SentinelPassword, opt.SocketTimeout)
	})
}

type dialFunc func(addr string) sentinelQuerier

func bootstrap(ctx context.Context, supervisorAddrs []string, opt config.Options, tags *tagging.Extractor, v int, log *zap.Logger, dial dialFunc) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if len(supervisorAddrs) == 0 {
		return nil, fmt.Errorf("%w: no supervisor addresses configured", cacheerrors.ErrImproperlyConfigured)
	}

	shuffled := slices.Clone(supervisorAddrs)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	var (
		supervisors []sentinelQuerier
		masters     map[string]masterInfo
		responded   bool
		lastErr     error
	)
	for _, addr := range shuffled {
		sup := dial(addr)
		supervisors = append(supervisors, sup)

		raw, err := sup.Masters(ctx)
		if err != nil {
			log.Warn("supervisor unreachable, skipping", zap.String("addr", addr), zap.Error(err))
			lastErr = err
			continue
		}

		responded = true
		masters = make(map[string]masterInfo, len(raw))
		for _, m := range raw {
			mi, err := toMasterInfo(m)
			if err != nil {
				continue
			}
			masters[mi.name] = mi
		}
		break
	}

	if !responded {
		for _, s := range supervisors {
			_ = s.Close()
		}
		return nil, fmt.Errorf("%w: %v", cacheerrors.ErrMastersUnavailable, lastErr)
	}
	if len(masters) == 0 {
		for _, s := range supervisors {
			_ = s.Close()
		}
		return nil, fmt.Errorf("%w: sentinel reported no masters", cacheerrors.ErrNoMastersConfigured)
	}

	names := make([]string, 0, len(masters))
	for name := range masters {
		names = append(names, name)
	}
	sort.Strings(names)

	conns := make([]driver.Conn, 0, len(names))
	for _, name := range names {
		mi := masters[name]
		fc := redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:       mi.name,
			SentinelAddrs:    supervisorAddrs,
			SentinelPassword: opt.SentinelPassword,
			Password:         opt.Password,
			DB:               opt.Database,
			DialTimeout:      opt.SocketTimeout,
		})
		conns = append(conns, driver.NewRedisConn(driver.NodeName(mi.name), fc))
	}

	rc, err := routing.New(conns, v, tags, log)
	if err != nil {
		for _, s := range supervisors {
			_ = s.Close()
		}
		return nil, err
	}

	return &Client{Client: rc, supervisors: supervisors}, nil
}

// Close closes every shard connection and every supervisor handle this
// Client dialed during bootstrap.
func (c *Client) Close() error {
	err := c.Client.Close()
	for _, s := range c.supervisors {
		if serr := s.Close(); serr != nil && err == nil {
			err = serr
		}
	}
	return err
}
