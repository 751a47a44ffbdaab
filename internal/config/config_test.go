package config

import (
	"errors"
	"testing"
	"time"

	"github.com/dreamware/shardcache/internal/cacheerrors"
)

func TestLocationsSplitsOnSemicolon(t *testing.T) {
	got, err := Locations("localhost:9500; localhost:9501 ;localhost:9502")
	if err != nil {
		t.Fatalf("Locations: %v", err)
	}
	want := []string{"localhost:9500", "localhost:9501", "localhost:9502"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestLocationsRejectsEmpty(t *testing.T) {
	if _, err := Locations(""); !errors.Is(err, cacheerrors.ErrImproperlyConfigured) {
		t.Fatalf("Locations(\"\") error = %v, want ErrImproperlyConfigured", err)
	}
	if _, err := Locations("  ; ; "); !errors.Is(err, cacheerrors.ErrImproperlyConfigured) {
		t.Fatalf("Locations of only separators error = %v, want ErrImproperlyConfigured", err)
	}
}

func TestParseDefaults(t *testing.T) {
	opt, err := Parse(nil, 0)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if opt.ClientClass != ClientClassRing {
		t.Errorf("ClientClass = %v, want %v", opt.ClientClass, ClientClassRing)
	}
	if opt.SocketTimeout != DefaultSocketTimeout {
		t.Errorf("SocketTimeout = %v, want %v", opt.SocketTimeout, DefaultSocketTimeout)
	}
	if opt.Database != 0 {
		t.Errorf("Database = %v, want 0", opt.Database)
	}
}

func TestParseMinSentinelsDefaultsToFloorHalf(t *testing.T) {
	opt, err := Parse(nil, 5)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if opt.MinSentinels != 2 {
		t.Fatalf("MinSentinels = %d, want 2", opt.MinSentinels)
	}
}

func TestParseRejectsBadDatabase(t *testing.T) {
	_, err := Parse(map[string]string{"DATABASE": "not-a-number"}, 0)
	if !errors.Is(err, cacheerrors.ErrImproperlyConfigured) {
		t.Fatalf("error = %v, want ErrImproperlyConfigured", err)
	}
}

func TestParseRejectsBadSocketTimeout(t *testing.T) {
	_, err := Parse(map[string]string{"SOCKET_TIMEOUT": "soon"}, 0)
	if !errors.Is(err, cacheerrors.ErrImproperlyConfigured) {
		t.Fatalf("error = %v, want ErrImproperlyConfigured", err)
	}
}

func TestParseSocketTimeoutFraction(t *testing.T) {
	opt, err := Parse(map[string]string{"SOCKET_TIMEOUT": "0.5"}, 0)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if opt.SocketTimeout != 500*time.Millisecond {
		t.Fatalf("SocketTimeout = %v, want 500ms", opt.SocketTimeout)
	}
}

func TestParseClientClassFailover(t *testing.T) {
	opt, err := Parse(map[string]string{"CLIENT_CLASS": "sentinel_ring"}, 3)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if opt.ClientClass != ClientClassFailover {
		t.Fatalf("ClientClass = %v, want %v", opt.ClientClass, ClientClassFailover)
	}
}

func TestParseRejectsUnknownClientClass(t *testing.T) {
	_, err := Parse(map[string]string{"CLIENT_CLASS": "bogus"}, 0)
	if !errors.Is(err, cacheerrors.ErrImproperlyConfigured) {
		t.Fatalf("error = %v, want ErrImproperlyConfigured", err)
	}
}

func TestParseTaggingFlags(t *testing.T) {
	opt, err := Parse(map[string]string{
		"DJREDIS_ENABLE_TAGGING": "true",
		"DJREDIS_TAG_REGEX":      `.*\[(.*)\].*`,
		"COMPRESS":               "1",
	}, 0)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !opt.EnableTagging {
		t.Error("EnableTagging = false, want true")
	}
	if !opt.Compress {
		t.Error("Compress = false, want true")
	}
	if opt.TagRegex != `.*\[(.*)\].*` {
		t.Errorf("TagRegex = %q", opt.TagRegex)
	}
}
