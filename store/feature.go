package store

import (
	"bufio"
	"fmt"
	"io"

	"github.com/patterncore/patterncore/endian"
	"github.com/patterncore/patterncore/errs"
	"github.com/patterncore/patterncore/pattern"
)

// FeatureVector is a fixed-width vector of auxiliary per-pattern
// statistics (e.g. positions within a sentence), stored alongside a
// pattern's core count/index value rather than overloading it.
type FeatureVector[T any] []T

// FeatureMap is a hash map from owning pattern to FeatureVector[T],
// following PatternMap's bucket-by-hash storage and binary format: a
// little-endian uint64 record count, then per record the pattern's raw
// bytes through its sentinel, a little-endian uint32 feature count, and
// that many fixed-width encoded features.
type FeatureMap[T any] struct {
	values *PatternMap[FeatureVector[T]]
	encode func(T) [8]byte
}

// NewFeatureMap creates an empty FeatureMap using encode to convert each
// feature to its fixed 8-byte binary form (e.g. a float64 bit pattern, or
// a zero-padded uint64) for Save.
func NewFeatureMap[T any](encode func(T) [8]byte) *FeatureMap[T] {
	return &FeatureMap[T]{
		values: New[FeatureVector[T]](),
		encode: encode,
	}
}

func (f *FeatureMap[T]) Size() int { return f.values.Size() }

func (f *FeatureMap[T]) Insert(p pattern.Pattern, v FeatureVector[T]) error {
	return f.values.Insert(p, v)
}

func (f *FeatureMap[T]) Get(p pattern.Pattern) (FeatureVector[T], bool, error) {
	return f.values.Get(p)
}

func (f *FeatureMap[T]) Append(p pattern.Pattern, feature T) error {
	existing, _, err := f.values.Get(p)
	if err != nil {
		return err
	}
	return f.values.Insert(p, append(existing, feature))
}

// Save writes f to w in FeatureMap's binary format.
func (f *FeatureMap[T]) Save(w io.Writer) error {
	countBuf := endian.GetLittleEndianEngine().AppendUint64(nil, uint64(f.values.Size()))
	if _, err := w.Write(countBuf); err != nil {
		return err
	}

	return f.values.Iterate(func(p pattern.Pattern, v FeatureVector[T]) (bool, error) {
		key, err := p.RawBytes()
		if err != nil {
			return false, err
		}
		if _, err := w.Write(key); err != nil {
			return false, err
		}

		lenBuf := endian.GetLittleEndianEngine().AppendUint32(nil, uint32(len(v)))
		if _, err := w.Write(lenBuf); err != nil {
			return false, err
		}
		for _, feature := range v {
			enc := f.encode(feature)
			if _, err := w.Write(enc[:]); err != nil {
				return false, err
			}
		}
		return true, nil
	})
}

// LoadFeatureMap reads a FeatureMap previously written by Save.
func LoadFeatureMap[T any](r io.Reader, encode func(T) [8]byte, decode func([8]byte) T) (*FeatureMap[T], error) {
	f := NewFeatureMap(encode)

	br := bufio.NewReader(r)
	var countBuf [8]byte
	if _, err := io.ReadFull(br, countBuf[:]); err != nil {
		return nil, fmt.Errorf("store: feature_map: header: %w", errs.ErrMalformedData)
	}
	count := endian.GetLittleEndianEngine().Uint64(countBuf[:])

	for i := uint64(0); i < count; i++ {
		key, err := readPatternBytes(br)
		if err != nil {
			return nil, fmt.Errorf("store: feature_map: record %d key: %w", i, errs.ErrMalformedData)
		}

		var lenBuf [4]byte
		if _, err := io.ReadFull(br, lenBuf[:]); err != nil {
			return nil, fmt.Errorf("store: feature_map: record %d length: %w", i, errs.ErrMalformedData)
		}
		n := endian.GetLittleEndianEngine().Uint32(lenBuf[:])

		vec := make(FeatureVector[T], n)
		var featBuf [8]byte
		for j := uint32(0); j < n; j++ {
			if _, err := io.ReadFull(br, featBuf[:]); err != nil {
				return nil, fmt.Errorf("store: feature_map: record %d feature %d: %w", i, j, errs.ErrMalformedData)
			}
			vec[j] = decode(featBuf)
		}

		if err := f.values.Insert(pattern.FromBytes(key), vec); err != nil {
			return nil, err
		}
	}
	return f, nil
}
