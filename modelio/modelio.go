// Package modelio implements the versioned binary model file format
// (spec.md §6.1): a fixed header identifying the model's value-type
// variant, optional embedded corpus bytes for the pointer variants,
// total-token/total-type counters, and the pattern-store payload
// (package store), with cross-type coercion between the indexed and
// unindexed value types on load.
package modelio

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/patterncore/patterncore/corpus"
	"github.com/patterncore/patterncore/endian"
	"github.com/patterncore/patterncore/errs"
	"github.com/patterncore/patterncore/internal/options"
	"github.com/patterncore/patterncore/model"
	"github.com/patterncore/patterncore/store"
	"github.com/patterncore/patterncore/streamcodec"
)

// Type is the model-file type byte, identifying which value shape and
// whether a corpus is embedded.
type Type uint8

const (
	TypeUnindexed        Type = 10
	TypeUnindexedPointer Type = 11
	TypeIndexed          Type = 20
	TypeIndexedPointer   Type = 21
	TypeSet              Type = 30
	// TypeAlignment is reserved for colibri-core's pattern-to-pattern
	// alignment models (original_source/include/patternmodel.h). No
	// component of this implementation produces or requires alignment
	// models, so Load rejects this byte explicitly rather than
	// misinterpreting its payload as a count or index store.
	TypeAlignment Type = 40
)

func (t Type) isPointer() bool { return t == TypeUnindexedPointer || t == TypeIndexedPointer }
func (t Type) isIndexed() bool { return t == TypeIndexed || t == TypeIndexedPointer }

// fileMagic is the fixed first header byte.
const fileMagic byte = 0x00

// formatVersion is the model-file format version this package writes and
// the newest version it can read without a warning.
const formatVersion byte = 1

// Header flag bits, packed into the byte immediately following the
// version byte.
const (
	flagBitCompressed uint8 = 1 << 0
	flagBitDeltaIndex uint8 = 1 << 1
)

// RequestedValue selects how Load coerces a stored model's value type,
// per spec.md §6.1's cross-type coercion rule.
type RequestedValue int

const (
	// AsStored preserves whatever value type the file declares.
	AsStored RequestedValue = iota
	// AsUnindexed coerces an indexed file's occurrence lists down to
	// their lengths.
	AsUnindexed
	// AsIndexed coerces an unindexed file's counts up to empty
	// occurrence lists, per spec.md §3.5 ("counts are lost").
	AsIndexed
)

// saveConfig holds Save's options.
type saveConfig struct {
	pointer    bool
	compressor streamcodec.CompressionType
	deltaIndex bool
}

// SaveOption configures Save.
type SaveOption = options.Option[*saveConfig]

// WithPointer embeds the model's bound corpus bytes in the file, letting
// a loader reconstruct an indexed corpus without a separate corpus file.
// It fails Save if the model has no bound corpus.
func WithPointer() SaveOption {
	return options.NoError[*saveConfig](func(c *saveConfig) { c.pointer = true })
}

// WithCompression selects a streamcodec.CompressionType to wrap the
// file body in. Defaults to streamcodec.None.
func WithCompression(t streamcodec.CompressionType) SaveOption {
	return options.NoError[*saveConfig](func(c *saveConfig) { c.compressor = t })
}

// WithDeltaIndex selects the delta-varint IndexValue sub-format for an
// indexed model's occurrence lists instead of the canonical fixed-width
// (sentence, token) pairs. Has no effect on an unindexed model.
func WithDeltaIndex() SaveOption {
	return options.NoError[*saveConfig](func(c *saveConfig) { c.deltaIndex = true })
}

// Save writes m to w in the versioned binary model format. The model
// type (unindexed/indexed, plain/pointer) is derived from m.IsIndexed()
// and the options given, except WithPointer also requires m.Corpus() to
// be non-nil.
func Save(w io.Writer, m *model.Model, opts ...SaveOption) error {
	cfg := &saveConfig{}
	if err := options.Apply(cfg, opts...); err != nil {
		return err
	}

	var typ Type
	switch {
	case m.IsIndexed() && cfg.pointer:
		typ = TypeIndexedPointer
	case m.IsIndexed():
		typ = TypeIndexed
	case cfg.pointer:
		typ = TypeUnindexedPointer
	default:
		typ = TypeUnindexed
	}
	if cfg.pointer && m.Corpus() == nil {
		return fmt.Errorf("modelio: save: pointer variant requested but model has no bound corpus: %w", errs.ErrInvalidArgument)
	}

	var flags uint8
	if cfg.compressor != streamcodec.None {
		flags |= flagBitCompressed
	}
	if cfg.deltaIndex {
		flags |= flagBitDeltaIndex
	}

	header := []byte{fileMagic, byte(typ), formatVersion, flags}
	if flags&flagBitCompressed != 0 {
		header = append(header, byte(cfg.compressor))
	}
	if _, err := w.Write(header); err != nil {
		return err
	}

	var body bytes.Buffer
	if err := writeBody(&body, m, typ, cfg); err != nil {
		return err
	}

	if flags&flagBitCompressed == 0 {
		_, err := w.Write(body.Bytes())
		return err
	}

	codec, err := streamcodec.Get(cfg.compressor)
	if err != nil {
		return fmt.Errorf("modelio: save: %w", err)
	}
	compressed, err := codec.Compress(body.Bytes())
	if err != nil {
		return fmt.Errorf("modelio: save: compress: %w", err)
	}
	_, err = w.Write(compressed)
	return err
}

func writeBody(body *bytes.Buffer, m *model.Model, typ Type, cfg *saveConfig) error {
	eng := endian.GetLittleEndianEngine()

	if typ.isPointer() {
		var corpusBuf bytes.Buffer
		if err := corpus.WriteEncoded(&corpusBuf, m.Corpus().Bytes()); err != nil {
			return err
		}
		lenBuf := eng.AppendUint32(nil, uint32(corpusBuf.Len()))
		body.Write(lenBuf)
		body.Write(corpusBuf.Bytes())
	}

	body.Write(eng.AppendUint64(nil, m.TotalTokens()))
	body.Write(eng.AppendUint64(nil, m.TotalTypes()))

	if typ.isIndexed() {
		handler := store.ValueEncoder[store.IndexValue](store.FixedIndexHandler{})
		if cfg.deltaIndex {
			handler = store.IndexHandler{}
		}
		return store.Save(body, m.IndexedStore(), handler)
	}
	return store.Save(body, m.UnindexedStore(), store.CountHandler{})
}

// SaveSet writes s to w as a TypeSet model file: structure only, no
// values, no corpus, no totals.
func SaveSet(w io.Writer, s *store.PatternSet) error {
	header := []byte{fileMagic, byte(TypeSet), formatVersion, 0}
	if _, err := w.Write(header); err != nil {
		return err
	}
	return store.SaveSet(w, s)
}

// loadConfig holds Load's options.
type loadConfig struct {
	requested RequestedValue
	corpus    *corpus.IndexedCorpus
	storeOpts []store.LoadOption
}

// LoadOption configures Load.
type LoadOption = options.Option[*loadConfig]

// WithRequestedValue selects the coercion Load applies to the stored
// value type. Defaults to AsStored.
func WithRequestedValue(r RequestedValue) LoadOption {
	return options.NoError[*loadConfig](func(c *loadConfig) { c.requested = r })
}

// WithCorpus binds c as the indexed model's corpus, for a non-pointer
// indexed file whose relation queries need a separately-loaded corpus.
func WithCorpus(c *corpus.IndexedCorpus) LoadOption {
	return options.NoError[*loadConfig](func(cfg *loadConfig) { cfg.corpus = c })
}

// WithStoreOptions passes through load-time pattern-store filters
// (store.WithFilter, store.WithTokenRange, and so on).
func WithStoreOptions(opts ...store.LoadOption) LoadOption {
	return options.NoError[*loadConfig](func(c *loadConfig) { c.storeOpts = append(c.storeOpts, opts...) })
}

// Load reads a model file written by Save, reconstructing a *model.Model
// or, for a TypeSet file, a *store.PatternSet (returned as the second
// value; the first is nil in that case, and vice versa).
func Load(r io.Reader, opts ...LoadOption) (*model.Model, *store.PatternSet, error) {
	cfg := &loadConfig{}
	if err := options.Apply(cfg, opts...); err != nil {
		return nil, nil, err
	}

	br := bufio.NewReader(r)
	header := make([]byte, 4)
	if _, err := io.ReadFull(br, header); err != nil {
		return nil, nil, fmt.Errorf("modelio: load: header: %w", errs.ErrMalformedData)
	}
	if header[0] != fileMagic {
		return nil, nil, fmt.Errorf("modelio: load: bad magic byte: %w", errs.ErrMalformedData)
	}
	typ := Type(header[1])
	version := header[2]
	flags := header[3]

	if version > formatVersion {
		return nil, nil, fmt.Errorf("modelio: load: file version %d newer than supported version %d: %w", version, formatVersion, errs.ErrVersionUnsupported)
	}
	if typ == TypeAlignment {
		return nil, nil, fmt.Errorf("modelio: load: alignment models are not supported: %w", errs.ErrVersionUnsupported)
	}

	var body io.Reader = br
	if flags&flagBitCompressed != 0 {
		ctByte, err := br.ReadByte()
		if err != nil {
			return nil, nil, fmt.Errorf("modelio: load: compression type: %w", errs.ErrMalformedData)
		}
		codec, err := streamcodec.Get(streamcodec.CompressionType(ctByte))
		if err != nil {
			return nil, nil, fmt.Errorf("modelio: load: %w", err)
		}
		compressed, err := io.ReadAll(br)
		if err != nil {
			return nil, nil, err
		}
		decompressed, err := codec.Decompress(compressed)
		if err != nil {
			return nil, nil, fmt.Errorf("modelio: load: decompress: %w", err)
		}
		body = bytes.NewReader(decompressed)
	}

	if typ == TypeSet {
		set, err := store.LoadSet(body, cfg.storeOpts...)
		return nil, set, err
	}

	m, err := loadModel(body, typ, flags, cfg)
	return m, nil, err
}

func loadModel(body io.Reader, typ Type, flags uint8, cfg *loadConfig) (*model.Model, error) {
	eng := endian.GetLittleEndianEngine()
	br := bufio.NewReader(body)

	bound := cfg.corpus
	if typ.isPointer() {
		var lenBuf [4]byte
		if _, err := io.ReadFull(br, lenBuf[:]); err != nil {
			return nil, fmt.Errorf("modelio: load: corpus length: %w", errs.ErrMalformedData)
		}
		corpusLen := eng.Uint32(lenBuf[:])
		corpusBytes := make([]byte, corpusLen)
		if _, err := io.ReadFull(br, corpusBytes); err != nil {
			return nil, fmt.Errorf("modelio: load: corpus bytes: %w", errs.ErrMalformedData)
		}
		c, err := corpus.Load(bytes.NewReader(corpusBytes))
		if err != nil {
			return nil, fmt.Errorf("modelio: load: embedded corpus: %w", err)
		}
		bound = c
	}

	var totalsBuf [16]byte
	if _, err := io.ReadFull(br, totalsBuf[:]); err != nil {
		return nil, fmt.Errorf("modelio: load: totals: %w", errs.ErrMalformedData)
	}
	totalTokens := eng.Uint64(totalsBuf[:8])
	totalTypes := eng.Uint64(totalsBuf[8:])

	requested := cfg.requested
	if requested == AsStored {
		if typ.isIndexed() {
			requested = AsIndexed
		} else {
			requested = AsUnindexed
		}
	}

	if typ.isIndexed() {
		handler := store.ValueDecoder[store.IndexValue](store.FixedIndexHandler{})
		if flags&flagBitDeltaIndex != 0 {
			handler = store.IndexHandler{}
		}
		if requested == AsUnindexed {
			m, err := store.LoadCoerced(br, handler, store.IndexValue.ToCount, cfg.storeOpts...)
			if err != nil {
				return nil, err
			}
			return model.FromUnindexedStore(m, totalTokens, totalTypes), nil
		}
		m, err := store.Load(br, handler, cfg.storeOpts...)
		if err != nil {
			return nil, err
		}
		return model.FromIndexedStore(m, bound, totalTokens, totalTypes), nil
	}

	if requested == AsIndexed {
		m, err := store.LoadCoerced(br, store.CountHandler{}, store.CountValue.ToIndex, cfg.storeOpts...)
		if err != nil {
			return nil, err
		}
		return model.FromIndexedStore(m, bound, totalTokens, totalTypes), nil
	}
	m, err := store.Load(br, store.CountHandler{}, cfg.storeOpts...)
	if err != nil {
		return nil, err
	}
	return model.FromUnindexedStore(m, totalTokens, totalTypes), nil
}
