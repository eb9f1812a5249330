// Package hash provides the 64-bit non-cryptographic hash used throughout
// this module for pattern equality short-circuiting and pattern-store
// bucketing (the role spec.md assigns to SpookyHash; xxhash fills it here
// since it is the hash already present in the dependency stack).
package hash

import "github.com/cespare/xxhash/v2"

// String computes the 64-bit hash of the given string.
func String(data string) uint64 {
	return xxhash.Sum64String(data)
}

// Bytes computes the 64-bit hash of the given byte slice.
func Bytes(data []byte) uint64 {
	return xxhash.Sum64(data)
}
