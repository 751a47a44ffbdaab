// Package config parses and validates the cache client's LOCATION string
// and OPTIONS block: the options arrive as a plain string map (the way
// they would out of any settings loader), and Parse turns them into a
// validated, typed Options value.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/dreamware/shardcache/internal/cacheerrors"
)

// ClientClass selects which routing client a Cache is built over.
type ClientClass string

const (
	// ClientClassRing is the plain consistent-hash ring client.
	ClientClassRing ClientClass = "ring"
	// ClientClassFailover is the supervisor-quorum-backed client.
	ClientClassFailover ClientClass = "sentinel_ring"
)

// Options holds every recognized OPTIONS key, validated via struct tags
// with github.com/go-playground/validator.
type Options struct {
	ClientClass      ClientClass   `validate:"required,oneof=ring sentinel_ring"`
	Database         int           `validate:"gte=0"`
	Password         string        `validate:""`
	SentinelPassword string        `validate:""`
	SocketTimeout    time.Duration `validate:"gt=0"`
	// MinSentinels is accepted and validated, but internal/failover does
	// not currently enforce it: go-redis's FailoverClient exposes no
	// peer-count threshold on its long-lived Sentinel connection, so
	// there is nothing to pass it to.
	MinSentinels    int  `validate:"gte=0"`
	MinSentinelsSet bool `validate:"-"`
	Compress        bool   `validate:""`
	EnableTagging   bool   `validate:""`
	TagRegex        string `validate:""`
}

// DefaultSocketTimeout is OPTIONS.SOCKET_TIMEOUT's default, 200ms.
const DefaultSocketTimeout = 200 * time.Millisecond

var validate = validator.New()

// Locations splits the ";"-delimited LOCATION string into individual
// "host:port" entries, trimming surrounding whitespace.
func Locations(location string) ([]string, error) {
	var out []string
	for _, part := range strings.Split(location, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: `LOCATION` must provide at least one host", cacheerrors.ErrImproperlyConfigured)
	}
	return out, nil
}

// Parse builds and validates Options from raw OPTIONS entries (a flat
// string map, matching how values arrive out of most settings loaders).
// numSupervisors is the number of hosts in LOCATION, used as the default
// for MIN_SENTINELS (floor(n/2)).
func Parse(raw map[string]string, numSupervisors int) (Options, error) {
	opt := Options{
		ClientClass:   ClientClassRing,
		SocketTimeout: DefaultSocketTimeout,
		MinSentinels:  numSupervisors / 2,
		TagRegex:      "",
	}

	if v, ok := raw["CLIENT_CLASS"]; ok && v != "" {
		opt.ClientClass = ClientClass(v)
	}
	if v, ok := raw["DATABASE"]; ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Options{}, fmt.Errorf("%w: `DATABASE` must be a valid integer", cacheerrors.ErrImproperlyConfigured)
		}
		opt.Database = n
	}
	if v, ok := raw["PASSWORD"]; ok {
		opt.Password = v
	}
	if v, ok := raw["SENTINEL_PASSWORD"]; ok {
		opt.SentinelPassword = v
	}
	if v, ok := raw["SOCKET_TIMEOUT"]; ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Options{}, fmt.Errorf("%w: `SOCKET_TIMEOUT` must be a valid number type", cacheerrors.ErrImproperlyConfigured)
		}
		opt.SocketTimeout = time.Duration(f * float64(time.Second))
	}
	if v, ok := raw["MIN_SENTINELS"]; ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Options{}, fmt.Errorf("%w: `MIN_SENTINELS` must be a valid integer", cacheerrors.ErrImproperlyConfigured)
		}
		opt.MinSentinels = n
		opt.MinSentinelsSet = true
	}
	if v, ok := raw["COMPRESS"]; ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Options{}, fmt.Errorf("%w: `COMPRESS` must be a valid boolean", cacheerrors.ErrImproperlyConfigured)
		}
		opt.Compress = b
	}
	if v, ok := raw["DJREDIS_ENABLE_TAGGING"]; ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Options{}, fmt.Errorf("%w: `DJREDIS_ENABLE_TAGGING` must be a valid boolean", cacheerrors.ErrImproperlyConfigured)
		}
		opt.EnableTagging = b
	}
	if v, ok := raw["DJREDIS_TAG_REGEX"]; ok && v != "" {
		opt.TagRegex = v
	}

	if err := validate.Struct(opt); err != nil {
		return Options{}, fmt.Errorf("%w: %v", cacheerrors.ErrImproperlyConfigured, err)
	}
	return opt, nil
}
