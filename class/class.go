// Package class implements the bidirectional token ↔ class ID mapping used
// to turn whitespace-tokenised text into the byte streams patterns are built
// from: a Builder counts token frequencies across one or more corpora, then
// Build assigns small positive integer IDs in descending-frequency order
// (ties broken by first-seen order). A Codec encodes and decodes sentences
// against a built or loaded mapping, and persists to the plain-text class
// file format.
package class

import (
	"bufio"
	"compress/bzip2"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/patterncore/patterncore/errs"
	"github.com/patterncore/patterncore/internal/options"
	"github.com/patterncore/patterncore/varint"
)

// Reserved class IDs. These are never assigned to text tokens.
const (
	Delimiter       uint32 = 0
	Unknown         uint32 = 1
	Skip            uint32 = 2
	Flex            uint32 = 3
	Boundary        uint32 = 4
	FirstAssignable uint32 = 6
)

// Builder accumulates token frequencies across one or more corpora before
// Build assigns class IDs. A Builder is not safe for concurrent use.
type Builder struct {
	counts map[string]int
	order  []string
	seen   map[string]bool
}

// NewBuilder creates an empty frequency builder.
func NewBuilder() *Builder {
	return &Builder{
		counts: make(map[string]int),
		seen:   make(map[string]bool),
	}
}

// OpenCorpus opens path for reading and transparently wraps it in a
// compress/bzip2 reader when the filename ends in ".bz2", matching the
// suffix-based detection the original classencoder.cpp applies before
// building a frequency list. The returned ReadCloser's Close always
// closes the underlying file; bzip2.NewReader has no Close of its own.
func OpenCorpus(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(path, ".bz2") {
		return struct {
			io.Reader
			io.Closer
		}{bzip2.NewReader(f), f}, nil
	}
	return f, nil
}

// ProcessCorpus reads whitespace-tokenised, newline-delimited sentences from
// r and accumulates token frequencies. Callers wrap r in a bzip2 reader
// (compress/bzip2) for compressed corpora, or use OpenCorpus to have that
// done automatically by filename suffix.
func (b *Builder) ProcessCorpus(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		for _, tok := range strings.Fields(scanner.Text()) {
			if !b.seen[tok] {
				b.seen[tok] = true
				b.order = append(b.order, tok)
			}
			b.counts[tok]++
		}
	}

	return scanner.Err()
}

// buildConfig holds Build's options.
type buildConfig struct {
	minCount          int
	belowThresholdUnk bool
}

// BuildOption configures Build.
type BuildOption = options.Option[*buildConfig]

// WithMinCount sets the occurrence threshold below which a token receives
// no class ID (or maps to Unknown, see WithBelowThresholdUnknown). Default 1
// (every seen token gets an ID).
func WithMinCount(n int) BuildOption {
	return options.NoError[*buildConfig](func(c *buildConfig) { c.minCount = n })
}

// WithBelowThresholdUnknown makes tokens below the minimum count encode as
// Unknown instead of being silently unrepresentable.
func WithBelowThresholdUnknown() BuildOption {
	return options.NoError[*buildConfig](func(c *buildConfig) { c.belowThresholdUnk = true })
}

// Build assigns class IDs to accumulated tokens in descending frequency
// order, breaking ties by first-seen order, and returns a ready-to-use
// Codec. Build does not reset the Builder; ProcessCorpus may be called
// again and Build invoked repeatedly to produce progressively larger
// codecs from a growing corpus set.
func (b *Builder) Build(opts ...BuildOption) (*Codec, error) {
	cfg := &buildConfig{minCount: 1}
	if err := options.Apply(cfg, opts...); err != nil {
		return nil, err
	}

	type entry struct {
		token string
		count int
	}
	entries := make([]entry, len(b.order))
	for i, tok := range b.order {
		entries[i] = entry{token: tok, count: b.counts[tok]}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].count > entries[j].count
	})

	c := &Codec{
		idOf:       make(map[string]uint32, len(entries)),
		tokenOf:    make(map[uint32]string, len(entries)),
		belowThreshUnk: cfg.belowThresholdUnk,
	}

	nextID := FirstAssignable
	for _, e := range entries {
		if e.count < cfg.minCount {
			continue
		}
		c.idOf[e.token] = nextID
		c.tokenOf[nextID] = e.token
		nextID++
	}
	if nextID > FirstAssignable {
		c.highest = nextID - 1
	}

	return c, nil
}

// Codec maps tokens to class IDs and back, and encodes/decodes sentences
// into pattern-style byte streams.
type Codec struct {
	idOf           map[string]uint32
	tokenOf        map[uint32]string
	highest        uint32
	belowThreshUnk bool
}

// NewEmptyCodec creates a Codec with only the reserved classes, suitable for
// building up via autoAdd during Encode.
func NewEmptyCodec() *Codec {
	return &Codec{
		idOf:    make(map[string]uint32),
		tokenOf: make(map[uint32]string),
		highest: FirstAssignable - 1,
	}
}

// Size returns the number of assigned (non-reserved) classes.
func (c *Codec) Size() int {
	return len(c.idOf)
}

// Highest returns the highest assigned class ID, or FirstAssignable-1 if
// none are assigned.
func (c *Codec) Highest() uint32 {
	return c.highest
}

// ID looks up the class ID for token.
func (c *Codec) ID(token string) (uint32, bool) {
	id, ok := c.idOf[token]
	return id, ok
}

// Token looks up the token for a non-reserved class ID.
func (c *Codec) Token(id uint32) (string, bool) {
	tok, ok := c.tokenOf[id]
	return tok, ok
}

// add assigns a fresh class ID to token, extending the codec in place.
// Not safe for concurrent use, matching the underlying build algorithm.
func (c *Codec) add(token string) uint32 {
	c.highest++
	id := c.highest
	c.idOf[token] = id
	c.tokenOf[id] = token
	return id
}

var fixedGapPattern = regexp.MustCompile(`^\{\*(\d+)\*\}$`)

// specialToken recognises the syntactic gap/unknown markers and returns the
// sequence of reserved classes they expand to.
func specialToken(tok string) ([]uint32, bool) {
	switch tok {
	case "{*}":
		return []uint32{Skip}, true
	case "{**}":
		return []uint32{Flex}, true
	case "{?}":
		return []uint32{Unknown}, true
	}

	if m := fixedGapPattern.FindStringSubmatch(tok); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil || n <= 0 {
			return nil, false
		}
		ids := make([]uint32, n)
		for i := range ids {
			ids[i] = Skip
		}
		return ids, true
	}

	return nil, false
}

// EncodeOptions controls how Encode handles tokens absent from the codec.
type EncodeOptions struct {
	// AllowUnknown maps unrecognised tokens to the Unknown class instead of
	// failing.
	AllowUnknown bool
	// AutoAddUnknown extends the codec in place with a fresh class ID for
	// each unrecognised token. Takes precedence over AllowUnknown. Not safe
	// for concurrent use.
	AutoAddUnknown bool
}

// Encode converts a single whitespace-tokenised line into its
// varint-class-encoded, delimiter-terminated byte form.
func (c *Codec) Encode(line string, opts EncodeOptions) ([]byte, error) {
	var buf []byte

	for _, tok := range strings.Fields(line) {
		if ids, ok := specialToken(tok); ok {
			for _, id := range ids {
				buf = varint.Append(buf, id)
			}
			continue
		}

		id, ok := c.idOf[tok]
		if !ok {
			switch {
			case opts.AutoAddUnknown:
				id = c.add(tok)
			case c.belowThreshUnk:
				id = Unknown
			case opts.AllowUnknown:
				id = Unknown
			default:
				return nil, fmt.Errorf("class: token %q: %w", tok, errs.ErrUnknownToken)
			}
		}
		buf = varint.Append(buf, id)
	}

	buf = varint.Append(buf, Delimiter)

	return buf, nil
}

// reservedToken renders a reserved class ID back to its syntactic form.
func reservedToken(id uint32) (string, bool) {
	switch id {
	case Unknown:
		return "{?}", true
	case Skip:
		return "{*}", true
	case Flex:
		return "{**}", true
	case Boundary:
		return "{bound}", true
	}
	return "", false
}

// DecodeSentence decodes one delimiter-terminated sentence starting at
// offset in data, returning its tokens, the offset just past the
// terminating delimiter, and ok=false on malformed (non-terminated or
// invalid varint) data.
func (c *Codec) DecodeSentence(data []byte, offset int) (tokens []string, next int, ok bool) {
	for {
		cls, n, good := varint.Decode(data, offset)
		if !good {
			return nil, 0, false
		}
		offset += n

		if cls == Delimiter {
			return tokens, offset, true
		}

		if tok, isReserved := reservedToken(cls); isReserved {
			tokens = append(tokens, tok)
			continue
		}

		if tok, found := c.tokenOf[cls]; found {
			tokens = append(tokens, tok)
		} else {
			tokens = append(tokens, "{?}")
		}
	}
}

// Save writes the class file: one "class_id\ttoken" line per assigned
// class, UTF-8, LF-terminated, sorted by class ID. Reserved classes are not
// persisted.
func (c *Codec) Save(w io.Writer) error {
	ids := make([]uint32, 0, len(c.tokenOf))
	for id := range c.tokenOf {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	bw := bufio.NewWriter(w)
	for _, id := range ids {
		if _, err := fmt.Fprintf(bw, "%d\t%s\n", id, c.tokenOf[id]); err != nil {
			return err
		}
	}

	return bw.Flush()
}

// Load reads a class file produced by Save and returns the reconstructed
// Codec.
func Load(r io.Reader) (*Codec, error) {
	c := NewEmptyCodec()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}

		parts := strings.SplitN(line, "\t", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("class: malformed class file line %q: %w", line, errs.ErrMalformedData)
		}

		id, err := strconv.ParseUint(parts[0], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("class: malformed class id %q: %w", parts[0], errs.ErrMalformedData)
		}

		c.idOf[parts[1]] = uint32(id)
		c.tokenOf[uint32(id)] = parts[1]
		if uint32(id) > c.highest {
			c.highest = uint32(id)
		}
	}

	return c, scanner.Err()
}
