package streamcodec

import "fmt"

// CompressionType identifies which codec compressed a stream, stored as a
// single byte in a model file's header.
type CompressionType uint8

const (
	None CompressionType = iota
	Zstd
	S2
	LZ4
)

func (t CompressionType) String() string {
	switch t {
	case None:
		return "none"
	case Zstd:
		return "zstd"
	case S2:
		return "s2"
	case LZ4:
		return "lz4"
	default:
		return "unknown"
	}
}

// Codec compresses and decompresses whole byte streams: a complete
// encoded corpus or the body of a model file.
type Codec interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

var builtin = map[CompressionType]Codec{
	None: NoOpCodec{},
	Zstd: ZstdCodec{},
	S2:   S2Codec{},
	LZ4:  LZ4Codec{},
}

// Get retrieves the built-in Codec for t.
func Get(t CompressionType) (Codec, error) {
	c, ok := builtin[t]
	if !ok {
		return nil, fmt.Errorf("streamcodec: unsupported compression type %d", t)
	}
	return c, nil
}
