// Package keyname derives the fully-qualified storage key from a caller's
// logical key, version, and configured prefix.
package keyname

import "strconv"

// DefaultVersion is the version used when a caller omits one.
const DefaultVersion = 1

// Namer builds storage keys under a fixed prefix.
type Namer struct {
	Prefix string
}

// New returns a Namer using prefix.
func New(prefix string) Namer {
	return Namer{Prefix: prefix}
}

// StorageKey returns "{prefix}:{version}:{logicalKey}", the on-the-wire key
// every node-level command is issued against.
func (n Namer) StorageKey(logicalKey string, version int) string {
	return n.Prefix + ":" + strconv.Itoa(version) + ":" + logicalKey
}
