// Package varint implements the base-128 variable-length class ID encoding
// used throughout pattern byte streams: the low 7 bits of each byte carry
// data, the high bit is set on every continuation byte and clear on the
// final byte of the group. A class ID of 0 (the reserved delimiter class)
// therefore encodes as the single sentinel byte 0x00.
package varint

// MaxBytes is the largest number of bytes a single uint32 class ID can
// expand to under this encoding.
const MaxBytes = 5

// Append encodes class as a base-128 variable-length integer and appends
// the result to dst.
func Append(dst []byte, class uint32) []byte {
	for class >= 0x80 {
		dst = append(dst, byte(class)|0x80)
		class >>= 7
	}
	return append(dst, byte(class))
}

// Decode reads one varint-encoded class ID from data starting at offset.
// It returns the decoded class, the number of bytes consumed, and ok=false
// if data is truncated before a terminating byte or the encoding exceeds
// MaxBytes (malformed input).
func Decode(data []byte, offset int) (class uint32, n int, ok bool) {
	var result uint32
	var shift uint
	for i := 0; i < MaxBytes; i++ {
		if offset+i >= len(data) {
			return 0, 0, false
		}
		b := data[offset+i]
		result |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, i + 1, true
		}
		shift += 7
	}
	return 0, 0, false
}

// IsContinuation reports whether b is a continuation byte of a multi-byte
// class encoding (high bit set).
func IsContinuation(b byte) bool {
	return b&0x80 != 0
}

// IsSentinel reports whether b is the pattern-terminating delimiter byte.
func IsSentinel(b byte) bool {
	return b == 0
}

// Scan walks data starting at offset and returns the offset of the byte
// immediately following the next complete token (the first byte whose high
// bit is clear), or -1 if the data ends mid-token.
func Scan(data []byte, offset int) int {
	for i := offset; i < len(data); i++ {
		if !IsContinuation(data[i]) {
			return i + 1
		}
	}
	return -1
}

// Skip advances n complete tokens from offset, returning the resulting
// offset, or -1 if data is exhausted before n tokens are consumed.
func Skip(data []byte, offset, n int) int {
	for i := 0; i < n; i++ {
		offset = Scan(data, offset)
		if offset < 0 {
			return -1
		}
	}
	return offset
}
