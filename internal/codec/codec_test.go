package codec

import (
	"strconv"
	"strings"
	"testing"
)

func TestRoundTripString(t *testing.T) {
	c := New(false)
	b, err := c.Dumps("hello world")
	if err != nil {
		t.Fatalf("Dumps: %v", err)
	}
	got, err := c.Loads(b)
	if err != nil {
		t.Fatalf("Loads: %v", err)
	}
	if got != "hello world" {
		t.Fatalf("got %v, want %q", got, "hello world")
	}
}

func TestRoundTripSlice(t *testing.T) {
	c := New(false)
	Register([]string{})
	in := []string{"a", "b", "c"}
	b, err := c.Dumps(in)
	if err != nil {
		t.Fatalf("Dumps: %v", err)
	}
	got, err := c.Loads(b)
	if err != nil {
		t.Fatalf("Loads: %v", err)
	}
	out, ok := got.([]string)
	if !ok {
		t.Fatalf("got %T, want []string", got)
	}
	for i, v := range in {
		if out[i] != v {
			t.Fatalf("out[%d] = %q, want %q", i, out[i], v)
		}
	}
}

func TestLoadsNilIsNil(t *testing.T) {
	c := New(false)
	v, err := c.Loads(nil)
	if err != nil {
		t.Fatalf("Loads(nil): %v", err)
	}
	if v != nil {
		t.Fatalf("Loads(nil) = %v, want nil", v)
	}
}

func TestIntegerStoredAsDecimalString(t *testing.T) {
	c := New(false)
	b, err := c.Dumps(42)
	if err != nil {
		t.Fatalf("Dumps: %v", err)
	}
	if string(b) != "42" {
		t.Fatalf("Dumps(42) = %q, want %q", string(b), "42")
	}
	n, err := strconv.Atoi(string(b))
	if err != nil || n != 42 {
		t.Fatalf("encoded integer did not round-trip through strconv: %q", string(b))
	}
	got, err := c.Loads(b)
	if err != nil {
		t.Fatalf("Loads: %v", err)
	}
	if got != int64(42) {
		t.Fatalf("Loads(%q) = %v (%T), want int64(42)", string(b), got, got)
	}
}

func TestIntegralFloatStoredAsDecimalString(t *testing.T) {
	c := New(false)
	b, err := c.Dumps(42.0)
	if err != nil {
		t.Fatalf("Dumps: %v", err)
	}
	if string(b) != "42" {
		t.Fatalf("Dumps(42.0) = %q, want %q", string(b), "42")
	}
}

func TestNonIntegralFloatIsNotDecimalEncoded(t *testing.T) {
	c := New(false)
	b, err := c.Dumps(3.14)
	if err != nil {
		t.Fatalf("Dumps: %v", err)
	}
	if string(b) == "3" {
		t.Fatalf("non-integral float was truncated to an int encoding")
	}
	got, err := c.Loads(b)
	if err != nil {
		t.Fatalf("Loads: %v", err)
	}
	if got != 3.14 {
		t.Fatalf("got %v, want 3.14", got)
	}
}

func TestCompressionShrinksRepetitiveValues(t *testing.T) {
	plain := New(false)
	compressed := New(true)

	repetitive := strings.Repeat("shard-cache-value-", 200)

	plainBytes, err := plain.Dumps(repetitive)
	if err != nil {
		t.Fatalf("Dumps (plain): %v", err)
	}
	compressedBytes, err := compressed.Dumps(repetitive)
	if err != nil {
		t.Fatalf("Dumps (compressed): %v", err)
	}
	if len(compressedBytes) >= len(plainBytes) {
		t.Fatalf("compressed length %d not smaller than plain length %d", len(compressedBytes), len(plainBytes))
	}

	got, err := compressed.Loads(compressedBytes)
	if err != nil {
		t.Fatalf("Loads: %v", err)
	}
	if got != repetitive {
		t.Fatal("compressed round-trip did not return the original value")
	}
}
