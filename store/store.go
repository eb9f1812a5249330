// Package store implements the hash-keyed pattern containers: PatternSet
// (a set of owning patterns) and PatternMap[V] (owning pattern to value),
// both with binary serialisation, load-time filtering, and cross-type
// value coercion. Keys are bucketed by the pattern's 64-bit hash, following
// the teacher's indexMaps[T] generic-map idiom, with genuine hash
// collisions (distinct patterns sharing a bucket) chained explicitly
// rather than silently aliased.
package store

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/patterncore/patterncore/endian"
	"github.com/patterncore/patterncore/errs"
	"github.com/patterncore/patterncore/internal/collision"
	"github.com/patterncore/patterncore/internal/options"
	"github.com/patterncore/patterncore/pattern"
)

// entry pairs an owning pattern's raw bytes with its stored value.
type entry[V any] struct {
	key   []byte
	value V
}

// PatternMap is a hash map from owning pattern to value V. The zero value
// is not usable; construct with New.
type PatternMap[V any] struct {
	buckets map[uint64][]entry[V]
	tracker *collision.Tracker
	size    int
}

// New creates an empty PatternMap.
func New[V any]() *PatternMap[V] {
	return &PatternMap[V]{
		buckets: make(map[uint64][]entry[V]),
		tracker: collision.NewTracker(),
	}
}

// Size returns the number of distinct patterns stored.
func (m *PatternMap[V]) Size() int { return m.size }

// HasCollision reports whether two distinct pattern keys have ever hashed
// to the same 64-bit value in this map.
func (m *PatternMap[V]) HasCollision() bool { return m.tracker.HasCollision() }

// find locates the bucket entry for p's key, if present.
func (m *PatternMap[V]) find(p pattern.Pattern) (uint64, []byte, int, error) {
	key, err := p.RawBytes()
	if err != nil {
		return 0, nil, -1, err
	}
	h, err := p.Hash()
	if err != nil {
		return 0, nil, -1, err
	}
	for i, e := range m.buckets[h] {
		if bytes.Equal(e.key, key) {
			return h, key, i, nil
		}
	}
	return h, key, -1, nil
}

// Insert adds p with value v, or overwrites the value if p is already
// present.
func (m *PatternMap[V]) Insert(p pattern.Pattern, v V) error {
	h, key, idx, err := m.find(p)
	if err != nil {
		return err
	}
	if idx >= 0 {
		m.buckets[h][idx].value = v
		return nil
	}

	if _, _, err := m.tracker.Track(key, h); err != nil {
		return err
	}
	owned := make([]byte, len(key))
	copy(owned, key)
	m.buckets[h] = append(m.buckets[h], entry[V]{key: owned, value: v})
	m.size++
	return nil
}

// Get retrieves the value stored for p.
func (m *PatternMap[V]) Get(p pattern.Pattern) (V, bool, error) {
	h, _, idx, err := m.find(p)
	if err != nil {
		var zero V
		return zero, false, err
	}
	if idx < 0 {
		var zero V
		return zero, false, nil
	}
	return m.buckets[h][idx].value, true, nil
}

// Contains reports whether p is stored.
func (m *PatternMap[V]) Contains(p pattern.Pattern) (bool, error) {
	_, _, idx, err := m.find(p)
	return idx >= 0, err
}

// Erase removes p, reporting whether it was present.
func (m *PatternMap[V]) Erase(p pattern.Pattern) (bool, error) {
	h, _, idx, err := m.find(p)
	if err != nil {
		return false, err
	}
	if idx < 0 {
		return false, nil
	}
	bucket := m.buckets[h]
	bucket = append(bucket[:idx], bucket[idx+1:]...)
	if len(bucket) == 0 {
		delete(m.buckets, h)
	} else {
		m.buckets[h] = bucket
	}
	m.size--
	return true, nil
}

// Iterate calls fn for every stored (pattern, value) pair in unspecified
// order, stopping early if fn returns keepGoing=false or a non-nil error.
func (m *PatternMap[V]) Iterate(fn func(p pattern.Pattern, v V) (keepGoing bool, err error)) error {
	for _, bucket := range m.buckets {
		for _, e := range bucket {
			keepGoing, err := fn(pattern.FromBytes(e.key), e.value)
			if err != nil {
				return err
			}
			if !keepGoing {
				return nil
			}
		}
	}
	return nil
}

// PatternSet is a hash set of owning patterns.
type PatternSet struct {
	m *PatternMap[struct{}]
}

// NewSet creates an empty PatternSet.
func NewSet() *PatternSet {
	return &PatternSet{m: New[struct{}]()}
}

func (s *PatternSet) Size() int { return s.m.Size() }

func (s *PatternSet) Insert(p pattern.Pattern) error {
	return s.m.Insert(p, struct{}{})
}

func (s *PatternSet) Contains(p pattern.Pattern) (bool, error) {
	return s.m.Contains(p)
}

func (s *PatternSet) Erase(p pattern.Pattern) (bool, error) {
	return s.m.Erase(p)
}

func (s *PatternSet) Iterate(fn func(p pattern.Pattern) (keepGoing bool, err error)) error {
	return s.m.Iterate(func(p pattern.Pattern, _ struct{}) (bool, error) {
		return fn(p)
	})
}

// CategoryMask is a bitmask selecting which pattern categories survive a
// filtered load.
type CategoryMask uint8

const (
	AllowNgram CategoryMask = 1 << iota
	AllowSkipgram
	AllowFlexgram
	AllowAllCategories = AllowNgram | AllowSkipgram | AllowFlexgram
)

func (m CategoryMask) allows(c pattern.Category) bool {
	switch c {
	case pattern.CategoryNgram:
		return m&AllowNgram != 0
	case pattern.CategorySkipgram:
		return m&AllowSkipgram != 0
	case pattern.CategoryFlexgram:
		return m&AllowFlexgram != 0
	default:
		return false
	}
}

// loadConfig holds Load's filtering options.
type loadConfig struct {
	filter        *PatternSet
	minTokens     int
	maxTokens     int
	minOccurrence int
	categories    CategoryMask
	reset         bool
}

// LoadOption configures Load.
type LoadOption = options.Option[*loadConfig]

// WithFilter retains only patterns present in filter.
func WithFilter(filter *PatternSet) LoadOption {
	return options.NoError[*loadConfig](func(c *loadConfig) { c.filter = filter })
}

// WithTokenRange retains only patterns whose token count falls in
// [min, max]; max <= 0 means unbounded.
func WithTokenRange(min, max int) LoadOption {
	return options.NoError[*loadConfig](func(c *loadConfig) { c.minTokens, c.maxTokens = min, max })
}

// WithMinOccurrence retains only values whose Count() is at least min.
// Has no effect if the loaded value type does not implement Counter.
func WithMinOccurrence(min int) LoadOption {
	return options.NoError[*loadConfig](func(c *loadConfig) { c.minOccurrence = min })
}

// WithCategories restricts the loaded pattern categories.
func WithCategories(mask CategoryMask) LoadOption {
	return options.NoError[*loadConfig](func(c *loadConfig) { c.categories = mask })
}

// WithReset loads the pattern structure only, discarding stored values in
// favour of the value type's zero value.
func WithReset() LoadOption {
	return options.NoError[*loadConfig](func(c *loadConfig) { c.reset = true })
}

func newLoadConfig(opts []LoadOption) (*loadConfig, error) {
	cfg := &loadConfig{categories: AllowAllCategories}
	if err := options.Apply(cfg, opts...); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *loadConfig) keep(p pattern.Pattern, v Counter) (bool, error) {
	if c.filter != nil {
		ok, err := c.filter.Contains(p)
		if err != nil || !ok {
			return false, err
		}
	}
	n := p.N()
	if n < c.minTokens {
		return false, nil
	}
	if c.maxTokens > 0 && n > c.maxTokens {
		return false, nil
	}
	if !c.categories.allows(p.Category()) {
		return false, nil
	}
	if c.minOccurrence > 0 && v != nil && v.Count() < c.minOccurrence {
		return false, nil
	}
	return true, nil
}

// readPatternBytes reads one owning pattern's raw bytes (per-token varint
// encodings followed by the single-byte delimiter sentinel) from r. The
// sentinel is unambiguous: 0x00 encodes only class 0, and it never
// appears as a continuation byte or as the last byte of a multi-byte
// encoding.
func readPatternBytes(r io.ByteReader) ([]byte, error) {
	var buf []byte
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		buf = append(buf, b)
		if b == 0 {
			return buf, nil
		}
	}
}

// Save writes m to w: a little-endian uint64 record count, then for each
// record the pattern's raw bytes (through its sentinel) followed by its
// value's encoded form via handler. A nil handler writes no value bytes
// (suitable for a PatternSet-shaped map such as PatternMap[struct{}]).
func Save[V any](w io.Writer, m *PatternMap[V], handler ValueEncoder[V]) error {
	countBuf := endian.GetLittleEndianEngine().AppendUint64(nil, uint64(m.Size()))
	if _, err := w.Write(countBuf); err != nil {
		return err
	}

	return m.Iterate(func(p pattern.Pattern, v V) (bool, error) {
		key, err := p.RawBytes()
		if err != nil {
			return false, err
		}
		if _, err := w.Write(key); err != nil {
			return false, err
		}
		if handler != nil {
			if err := handler.Encode(w, v); err != nil {
				return false, err
			}
		}
		return true, nil
	})
}

// SaveSet writes s to w using Save's record format with no value bytes.
func SaveSet(w io.Writer, s *PatternSet) error {
	return Save[struct{}](w, s.m, nil)
}

// Load reads a PatternMap previously written by Save, decoding each
// value with handler (nil if the stored records carry no value bytes),
// applying opts as load-time filters.
func Load[V any](r io.Reader, handler ValueDecoder[V], opts ...LoadOption) (*PatternMap[V], error) {
	cfg, err := newLoadConfig(opts)
	if err != nil {
		return nil, err
	}

	br := bufio.NewReader(r)
	var countBuf [8]byte
	if _, err := io.ReadFull(br, countBuf[:]); err != nil {
		return nil, fmt.Errorf("store: load: header: %w", errs.ErrMalformedData)
	}
	count := endian.GetLittleEndianEngine().Uint64(countBuf[:])

	m := New[V]()
	for i := uint64(0); i < count; i++ {
		key, err := readPatternBytes(br)
		if err != nil {
			return nil, fmt.Errorf("store: load: record %d key: %w", i, errs.ErrMalformedData)
		}

		var value V
		if handler != nil {
			decoded, err := handler.Decode(br)
			if err != nil {
				return nil, fmt.Errorf("store: load: record %d value: %w", i, err)
			}
			if !cfg.reset {
				value = decoded
			}
		}

		p := pattern.FromBytes(key)
		var counter Counter
		if c, ok := any(value).(Counter); ok {
			counter = c
		}
		ok, err := cfg.keep(p, counter)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if err := m.Insert(p, value); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// LoadCoerced reads a PatternMap stored under value type SrcV and
// produces a PatternMap[DstV] by applying coerce to each decoded value,
// per the stored-type-to-target-type coercion rule in the store format.
func LoadCoerced[SrcV, DstV any](r io.Reader, srcHandler ValueDecoder[SrcV], coerce func(SrcV) DstV, opts ...LoadOption) (*PatternMap[DstV], error) {
	cfg, err := newLoadConfig(opts)
	if err != nil {
		return nil, err
	}

	br := bufio.NewReader(r)
	var countBuf [8]byte
	if _, err := io.ReadFull(br, countBuf[:]); err != nil {
		return nil, fmt.Errorf("store: load_coerced: header: %w", errs.ErrMalformedData)
	}
	count := endian.GetLittleEndianEngine().Uint64(countBuf[:])

	m := New[DstV]()
	for i := uint64(0); i < count; i++ {
		key, err := readPatternBytes(br)
		if err != nil {
			return nil, fmt.Errorf("store: load_coerced: record %d key: %w", i, errs.ErrMalformedData)
		}

		srcValue, err := srcHandler.Decode(br)
		if err != nil {
			return nil, fmt.Errorf("store: load_coerced: record %d value: %w", i, err)
		}

		var dstValue DstV
		if !cfg.reset {
			dstValue = coerce(srcValue)
		}

		p := pattern.FromBytes(key)
		var counter Counter
		if c, ok := any(dstValue).(Counter); ok {
			counter = c
		}
		ok, err := cfg.keep(p, counter)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if err := m.Insert(p, dstValue); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// LoadSet reads a PatternSet previously written by SaveSet.
func LoadSet(r io.Reader, opts ...LoadOption) (*PatternSet, error) {
	m, err := Load[struct{}](r, nil, opts...)
	if err != nil {
		return nil, err
	}
	return &PatternSet{m: m}, nil
}
