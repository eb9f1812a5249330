package store

import (
	"fmt"
	"io"

	"github.com/patterncore/patterncore/endian"
	"github.com/patterncore/patterncore/errs"
	"github.com/patterncore/patterncore/internal/deltaidx"
)

// Counter is implemented by value types whose magnitude can be read as an
// occurrence count, used by load-time minimum-occurrence filtering.
type Counter interface {
	Count() int
}

// ValueEncoder writes a single value's binary form.
type ValueEncoder[V any] interface {
	Encode(w io.Writer, v V) error
}

// ValueDecoder reads a single value's binary form.
type ValueDecoder[V any] interface {
	Decode(r io.Reader) (V, error)
}

// ValueHandler both encodes and decodes a value type for store
// serialisation.
type ValueHandler[V any] interface {
	ValueEncoder[V]
	ValueDecoder[V]
}

// CountValue is the unindexed canonical model value: a plain occurrence
// counter.
type CountValue uint32

// Count implements Counter.
func (v CountValue) Count() int { return int(v) }

// ToIndex coerces an unindexed count to an indexed value. Per spec, the
// occurrence positions are unknown from a bare count, so the result is
// always empty — the count itself is lost in this direction.
func (v CountValue) ToIndex() IndexValue { return IndexValue{} }

// IndexValue is the indexed canonical model value: a sorted sequence of
// corpus occurrences.
type IndexValue []deltaidx.IndexReference

// Count implements Counter as the number of recorded occurrences.
func (v IndexValue) Count() int { return len(v) }

// ToCount coerces an indexed value down to its occurrence count.
func (v IndexValue) ToCount() CountValue { return CountValue(len(v)) }

// CountHandler is the ValueHandler for CountValue: a single little-endian
// uint32.
type CountHandler struct{}

func (CountHandler) Encode(w io.Writer, v CountValue) error {
	buf := endian.GetLittleEndianEngine().AppendUint32(nil, uint32(v))
	_, err := w.Write(buf)
	return err
}

func (CountHandler) Decode(r io.Reader) (CountValue, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("store: count value: %w", errs.ErrMalformedData)
	}
	return CountValue(endian.GetLittleEndianEngine().Uint32(buf[:])), nil
}

// IndexHandler is the ValueHandler for IndexValue: a little-endian uint32
// occurrence count, a little-endian uint32 byte length, then exactly that
// many bytes of delta-varint-encoded IndexReference entries.
type IndexHandler struct{}

func (IndexHandler) Encode(w io.Writer, v IndexValue) error {
	body := deltaidx.Encode(nil, v)

	header := endian.GetLittleEndianEngine().AppendUint32(nil, uint32(len(v)))
	header = endian.GetLittleEndianEngine().AppendUint32(header, uint32(len(body)))
	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

func (IndexHandler) Decode(r io.Reader) (IndexValue, error) {
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("store: index value header: %w", errs.ErrMalformedData)
	}
	eng := endian.GetLittleEndianEngine()
	count := int(eng.Uint32(header[:4]))
	byteLen := int(eng.Uint32(header[4:]))

	body := make([]byte, byteLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("store: index value body: %w", errs.ErrMalformedData)
	}

	refs, _, ok := deltaidx.Decode(body, count)
	if !ok {
		return nil, fmt.Errorf("store: index value: %w", errs.ErrMalformedData)
	}
	return refs, nil
}

// FixedIndexHandler is the canonical, always-supported ValueHandler for
// IndexValue: a little-endian uint32 occurrence count, followed by
// exactly that many fixed-width (sentence uint32, token uint16) pairs
// per spec.md §3.4/§6.1. IndexHandler's delta-varint form is denser and
// is selected as an optional model-file sub-format; this handler is the
// fallback every reader must support.
type FixedIndexHandler struct{}

func (FixedIndexHandler) Encode(w io.Writer, v IndexValue) error {
	eng := endian.GetLittleEndianEngine()
	header := eng.AppendUint32(nil, uint32(len(v)))
	if _, err := w.Write(header); err != nil {
		return err
	}
	buf := make([]byte, 0, len(v)*6)
	for _, ref := range v {
		buf = eng.AppendUint32(buf, ref.Sentence)
		buf = eng.AppendUint16(buf, ref.Token)
	}
	_, err := w.Write(buf)
	return err
}

func (FixedIndexHandler) Decode(r io.Reader) (IndexValue, error) {
	eng := endian.GetLittleEndianEngine()
	var countBuf [4]byte
	if _, err := io.ReadFull(r, countBuf[:]); err != nil {
		return nil, fmt.Errorf("store: fixed index value header: %w", errs.ErrMalformedData)
	}
	count := int(eng.Uint32(countBuf[:]))

	refs := make(IndexValue, count)
	var entry [6]byte
	for i := 0; i < count; i++ {
		if _, err := io.ReadFull(r, entry[:]); err != nil {
			return nil, fmt.Errorf("store: fixed index value entry %d: %w", i, errs.ErrMalformedData)
		}
		refs[i] = deltaidx.IndexReference{
			Sentence: eng.Uint32(entry[:4]),
			Token:    eng.Uint16(entry[4:]),
		}
	}
	return refs, nil
}
