// Package collision detects and resolves genuine 64-bit hash collisions
// between distinct pattern byte sequences that land in the same store
// bucket. Two different patterns colliding is rare but not impossible over
// a corpus of millions of patterns; aliasing them silently would corrupt
// counts, so pattern stores consult a Tracker to chain distinct keys under
// a shared hash instead of overwriting one with the other.
package collision

import "github.com/patterncore/patterncore/errs"

// Tracker tracks pattern byte keys by their 64-bit hash and detects
// collisions: distinct keys that hash to the same value.
type Tracker struct {
	byHash    map[uint64][][]byte // hash -> distinct keys seen under it, insertion order
	keyCount  int
	collision int
}

// NewTracker creates a new, empty collision tracker.
func NewTracker() *Tracker {
	return &Tracker{
		byHash: make(map[uint64][][]byte),
	}
}

// Track records a key under its hash. existed is true if this exact key
// was already tracked under this hash; collided is true if the hash was
// already in use by a different key when this key was first tracked.
// Track returns errs.ErrInvalidArgument if key is empty.
func (t *Tracker) Track(key []byte, h uint64) (existed bool, collided bool, err error) {
	if len(key) == 0 {
		return false, false, errs.ErrInvalidArgument
	}

	bucket := t.byHash[h]
	for _, k := range bucket {
		if string(k) == string(key) {
			return true, false, nil
		}
	}

	if len(bucket) > 0 {
		t.collision++
		collided = true
	}

	own := make([]byte, len(key))
	copy(own, key)
	t.byHash[h] = append(bucket, own)
	t.keyCount++

	return false, collided, nil
}

// HasCollision reports whether any hash collision has been observed.
func (t *Tracker) HasCollision() bool {
	return t.collision > 0
}

// CollisionCount returns the number of distinct-key collisions observed.
// A bucket holding n>1 distinct keys contributes n-1 to this count.
func (t *Tracker) CollisionCount() int {
	return t.collision
}

// Count returns the number of distinct keys tracked.
func (t *Tracker) Count() int {
	return t.keyCount
}

// Bucket returns the distinct keys tracked under the given hash, in
// insertion order. The returned slice must not be modified.
func (t *Tracker) Bucket(h uint64) [][]byte {
	return t.byHash[h]
}

// Reset clears all tracked keys and collision state, preserving the
// underlying map's capacity for reuse.
func (t *Tracker) Reset() {
	for k := range t.byHash {
		delete(t.byHash, k)
	}
	t.keyCount = 0
	t.collision = 0
}
