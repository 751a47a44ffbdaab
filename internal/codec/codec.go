// Package codec implements the cache's value encoding policy: integers
// (and integral floats) are stored as their plain decimal text so that a
// server-side INCRBY stays valid against them, and everything else is
// gob-serialized and, optionally, zlib-compressed.
package codec

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/klauspost/compress/zlib"
)

// Codec encodes and decodes cache values. The zero value has compression
// disabled; use New to turn it on.
type Codec struct {
	compress bool
}

// New returns a Codec. compress mirrors OPTIONS.COMPRESS.
func New(compress bool) *Codec {
	return &Codec{compress: compress}
}

// envelope carries a non-integer value through gob. Encoding/decoding an
// interface-typed struct field, rather than the bare value, is what makes
// gob emit (and later resolve) the concrete type name on the wire, so an
// arbitrary caller value comes back as the same concrete type. Register
// registers the concrete types this module's own tests and facade
// round-trip through the envelope; callers storing additional concrete
// types must call Register themselves before using a Codec on them,
// exactly as gob requires for any interface value.
type envelope struct {
	V any
}

func init() {
	Register("", false, float64(0), float32(0), []byte(nil), []string(nil), []any(nil), map[string]any(nil), map[string]string(nil))
}

// Register makes gob aware of the concrete types values may arrive as, so
// Loads can reconstruct them. Call it once at startup for any application
// type stored in the cache beyond the built-ins this package already
// registers.
func Register(samples ...any) {
	for _, s := range samples {
		gob.Register(s)
	}
}

// integral reports whether v is a Go integer type (int, int8..int64, uint,
// uint32, uint64) or a float32/float64 equal to its own floor, along with
// that value as an int64.
func integral(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int8:
		return int64(t), true
	case int16:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case uint:
		return int64(t), true
	case uint32:
		return int64(t), true
	case uint64:
		return int64(t), true
	case float32:
		f := float64(t)
		if f == math.Floor(f) {
			return int64(f), true
		}
	case float64:
		if t == math.Floor(t) {
			return int64(t), true
		}
	}
	return 0, false
}

// Dumps encodes v: integral values as decimal text, everything else
// through the gob envelope (compressed when enabled).
func (c *Codec) Dumps(v any) ([]byte, error) {
	if n, ok := integral(v); ok {
		return []byte(strconv.FormatInt(n, 10)), nil
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(envelope{V: v}); err != nil {
		return nil, fmt.Errorf("codec: encode value: %w", err)
	}
	payload := buf.Bytes()
	if c.compress {
		var zbuf bytes.Buffer
		zw := zlib.NewWriter(&zbuf)
		if _, err := zw.Write(payload); err != nil {
			return nil, fmt.Errorf("codec: compress value: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("codec: compress value: %w", err)
		}
		payload = zbuf.Bytes()
	}
	return payload, nil
}

// Loads decodes b, trying an integer parse first so values written by a
// server-side INCRBY round-trip through Get. A nil b decodes to
// (nil, nil), mirroring a cache miss.
func (c *Codec) Loads(b []byte) (any, error) {
	if b == nil {
		return nil, nil
	}
	if n, err := strconv.ParseInt(string(b), 10, 64); err == nil {
		return n, nil
	}
	payload := b
	if c.compress {
		zr, err := zlib.NewReader(bytes.NewReader(b))
		if err != nil {
			return nil, fmt.Errorf("codec: decompress value: %w", err)
		}
		defer zr.Close()
		decoded, err := io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("codec: decompress value: %w", err)
		}
		payload = decoded
	}
	var e envelope
	if err := gob.NewDecoder(bytes.NewReader(payload)).Decode(&e); err != nil {
		return nil, fmt.Errorf("codec: decode value: %w", err)
	}
	return e.V, nil
}
