package keyname

import "testing"

func TestStorageKey(t *testing.T) {
	n := New("myapp")
	if got, want := n.StorageKey("answer", 1), "myapp:1:answer"; got != want {
		t.Fatalf("StorageKey = %q, want %q", got, want)
	}
}

func TestStorageKeyDefaultVersion(t *testing.T) {
	n := New("myapp")
	if got, want := n.StorageKey("answer", DefaultVersion), "myapp:1:answer"; got != want {
		t.Fatalf("StorageKey = %q, want %q", got, want)
	}
}

func TestStorageKeyDistinguishesVersions(t *testing.T) {
	n := New("myapp")
	v1 := n.StorageKey("answer", 1)
	v2 := n.StorageKey("answer", 2)
	if v1 == v2 {
		t.Fatalf("different versions produced the same storage key: %q", v1)
	}
}
