// Package streamcodec provides optional compression codecs for encoded
// corpus and model-file streams.
//
// Plain (uncompressed) corpora and models are the default and fully
// spec-compliant; a codec here is an additive wrapper a writer may choose
// for archival or bandwidth-constrained use, recorded as a single
// CompressionType byte so a reader selects the matching decompressor.
//
//	codec, _ := streamcodec.Get(streamcodec.Zstd)
//	compressed, err := codec.Compress(modelBytes)
package streamcodec
