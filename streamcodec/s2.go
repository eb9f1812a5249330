package streamcodec

import "github.com/klauspost/compress/s2"

// S2Codec wraps github.com/klauspost/compress/s2, a fast Snappy-compatible
// algorithm well suited to round-tripping large encoded corpora before
// indexing, where compression/decompression speed matters more than ratio.
type S2Codec struct{}

var _ Codec = S2Codec{}

func (S2Codec) Compress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	return s2.Encode(nil, data), nil
}

func (S2Codec) Decompress(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	return s2.Decode(nil, data)
}
