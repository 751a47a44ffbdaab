// Package tagging recognizes the "{tag}" segment of a storage key that
// co-locates a group of keys under one map bucket on one node.
package tagging

import "regexp"

// DefaultPattern captures the contents of a key's "{...}" segment, matched
// case-insensitively and greedily. Because the leading ".*" is greedy, a
// key with several "{...}" segments yields the last one.
const DefaultPattern = `.*\{(.*)\}.*`

// Extractor recognizes tagged keys. The zero value is a disabled
// extractor (BucketOf always reports "not tagged"); use New to enable
// tagging with a compiled pattern.
type Extractor struct {
	enabled bool
	re      *regexp.Regexp
}

// New compiles pattern once and returns an Extractor. pattern="" selects
// DefaultPattern. enabled mirrors DJREDIS_ENABLE_TAGGING.
func New(enabled bool, pattern string) (*Extractor, error) {
	if !enabled {
		return &Extractor{}, nil
	}
	if pattern == "" {
		pattern = DefaultPattern
	}
	re, err := regexp.Compile("(?i)" + pattern)
	if err != nil {
		return nil, err
	}
	return &Extractor{enabled: true, re: re}, nil
}

// BucketOf returns the bucket a key belongs to and whether it is tagged.
// When tagging is disabled, or the key does not match the pattern, it
// returns (key, false) — bucket equals the key itself, meaning "not
// tagged".
func (e *Extractor) BucketOf(key string) (bucket string, tagged bool) {
	if e == nil || !e.enabled {
		return key, false
	}
	m := e.re.FindStringSubmatch(key)
	if m == nil {
		return key, false
	}
	return "{" + m[1] + "}", true
}

// Enabled reports whether tagging is active for this extractor.
func (e *Extractor) Enabled() bool {
	return e != nil && e.enabled
}
