// Package cacheerrors defines the cache client's error taxonomy. Every
// kind is a sentinel error value so callers can use errors.Is against it;
// call sites wrap it with fmt.Errorf("%w: ...", ...) to attach detail.
package cacheerrors

import "errors"

var (
	// ErrImproperlyConfigured is raised at construction when LOCATION is
	// missing or an option value fails to parse.
	ErrImproperlyConfigured = errors.New("shardcache: improperly configured")

	// ErrMastersUnavailable is raised when failover bootstrap could not get
	// a response from any supervisor.
	ErrMastersUnavailable = errors.New("shardcache: masters unavailable")

	// ErrNoMastersConfigured is raised when a supervisor responded but
	// reported no masters at all.
	ErrNoMastersConfigured = errors.New("shardcache: no masters configured")

	// ErrInvalidKey is raised by DeleteTag when the tag itself contains a
	// nested "{...}" group.
	ErrInvalidKey = errors.New("shardcache: invalid key")

	// ErrValueError is raised by Incr/Decr when the target key does not
	// exist.
	ErrValueError = errors.New("shardcache: value error")

	// ErrPickle is raised when a value cannot be encoded by the codec.
	ErrPickle = errors.New("shardcache: pickle error")
)
