// Package deltaidx implements a compact delta-varint encoding for sorted
// index-reference lists, adapted from the delta-of-delta timestamp encoding
// technique: a sorted list of (sentence, token) pairs compresses well because
// consecutive sentence numbers repeat or increase by small amounts as a
// pattern recurs across nearby sentences.
//
// Encoding format, one entry at a time, in ascending (sentence, token) order:
//   - sentence delta: uvarint, always >= 0 since the list is sorted
//   - token value: uvarint (not delta-encoded; token resets every sentence)
//
// The first entry encodes its sentence number directly as a delta from zero.
package deltaidx

import "encoding/binary"

// IndexReference is a reference to a single token occurrence: the sentence
// it appears in and its zero-based token offset within that sentence.
type IndexReference struct {
	Sentence uint32
	Token    uint16
}

// Less reports whether r sorts before o in (sentence, token) lexicographic
// order.
func (r IndexReference) Less(o IndexReference) bool {
	if r.Sentence != o.Sentence {
		return r.Sentence < o.Sentence
	}
	return r.Token < o.Token
}

// Encode appends the delta-varint encoding of refs to dst and returns the
// extended slice. refs must already be sorted in ascending order; Encode
// does not verify this.
func Encode(dst []byte, refs []IndexReference) []byte {
	var prevSentence uint32
	for _, r := range refs {
		delta := uint64(r.Sentence - prevSentence)
		dst = binary.AppendUvarint(dst, delta)
		dst = binary.AppendUvarint(dst, uint64(r.Token))
		prevSentence = r.Sentence
	}
	return dst
}

// Decode decodes count delta-varint encoded IndexReference entries from
// data. It returns the decoded references and the number of bytes consumed.
// ok is false if data is malformed or truncated.
func Decode(data []byte, count int) (refs []IndexReference, consumed int, ok bool) {
	if count == 0 {
		return nil, 0, true
	}

	refs = make([]IndexReference, 0, count)

	var sentence uint32
	offset := 0
	for i := 0; i < count; i++ {
		deltaVal, n := binary.Uvarint(data[offset:])
		if n <= 0 {
			return nil, 0, false
		}
		offset += n

		tokenVal, n := binary.Uvarint(data[offset:])
		if n <= 0 {
			return nil, 0, false
		}
		offset += n

		sentence += uint32(deltaVal) //nolint:gosec
		refs = append(refs, IndexReference{Sentence: sentence, Token: uint16(tokenVal)}) //nolint:gosec
	}

	return refs, offset, true
}

// EncodedSize returns the number of bytes Encode would produce for refs,
// without allocating the output.
func EncodedSize(refs []IndexReference) int {
	var n int
	var prevSentence uint32
	var buf [binary.MaxVarintLen64]byte
	for _, r := range refs {
		delta := uint64(r.Sentence - prevSentence)
		n += binary.PutUvarint(buf[:], delta)
		n += binary.PutUvarint(buf[:], uint64(r.Token))
		prevSentence = r.Sentence
	}
	return n
}
