// Package pattern implements the compact byte-encoded pattern primitive:
// owning patterns hold their own buffer (including the terminating
// sentinel byte); views ("pattern pointers") borrow a slice of someone
// else's buffer (typically an indexed corpus) and carry an explicit gap
// mask instead of materialised skip/flex bytes. Both representations
// support the same operation set, following the blobBase-style shared
// embedding used by the reference encoder this package is adapted from.
package pattern

import (
	"bytes"
	"fmt"

	"github.com/patterncore/patterncore/class"
	"github.com/patterncore/patterncore/errs"
	"github.com/patterncore/patterncore/internal/hash"
	"github.com/patterncore/patterncore/internal/pool"
	"github.com/patterncore/patterncore/varint"
)

// Category classifies a pattern by the kind of gaps it contains.
type Category int

const (
	CategoryNgram Category = iota
	CategorySkipgram
	CategoryFlexgram
)

func (c Category) String() string {
	switch c {
	case CategoryNgram:
		return "ngram"
	case CategorySkipgram:
		return "skipgram"
	case CategoryFlexgram:
		return "flexgram"
	default:
		return "unknown"
	}
}

// flexFlag is mask bit 31, distinguishing a flexgram view from a fixed
// skipgram view.
const flexFlag uint32 = 1 << 31

// FlexFlag exposes flexFlag for callers outside the package (e.g. an
// indexed corpus) that need to build a mask for a freshly matched
// flexgram view.
const FlexFlag = flexFlag

// maxViewTokens is the largest token count a view's mask can address.
const maxViewTokens = 31

// Pattern is either an owning pattern (data holds the full byte stream
// including the trailing delimiter sentinel) or a non-owning view over
// someone else's buffer (data holds exactly the view's byte span, no
// sentinel, and mask records gap positions). The zero Pattern is an empty
// owning pattern missing its sentinel and must not be used directly; use
// FromBytes or NewView.
type Pattern struct {
	data   []byte
	mask   uint32
	isView bool
}

// FromBytes wraps an existing byte stream — per-token varint encodings
// followed by the delimiter sentinel — as an owning pattern. It does not
// copy data.
func FromBytes(data []byte) Pattern {
	return Pattern{data: data}
}

// NewView wraps a slice of corpus bytes spanning exactly n tokens (no
// sentinel) as a non-owning pattern view. mask must be zero for an
// n-gram view, or have bit i set for every gap token i (i < 31), with
// bit 31 additionally set for a flexgram view.
func NewView(data []byte, mask uint32) Pattern {
	return Pattern{data: data, mask: mask, isView: true}
}

// WithMask returns a copy of view p with its gap mask replaced by mask.
// It fails if p is an owning pattern, which carries no mask of its own.
func WithMask(p Pattern, mask uint32) (Pattern, error) {
	if !p.isView {
		return Pattern{}, fmt.Errorf("pattern: with_mask: owning patterns carry no mask: %w", errs.ErrInvalidArgument)
	}
	return Pattern{data: p.data, mask: mask, isView: true}, nil
}

// IsView reports whether p borrows its bytes from another buffer.
func (p Pattern) IsView() bool { return p.isView }

// IsOwning reports whether p holds its own byte buffer.
func (p Pattern) IsOwning() bool { return !p.isView }

// Mask returns the view's gap mask. It is always 0 for owning patterns;
// use MaskOf to compute an equivalent mask for an owning pattern.
func (p Pattern) Mask() uint32 { return p.mask }

// sentinelOffset scans owning pattern bytes for the terminating
// delimiter and returns its offset.
func (p Pattern) sentinelOffset() (int, bool) {
	offset := 0
	for offset < len(p.data) {
		cls, n, ok := varint.Decode(p.data, offset)
		if !ok {
			return 0, false
		}
		if cls == class.Delimiter {
			return offset, true
		}
		offset += n
	}
	return 0, false
}

// ByteSize returns the offset of the sentinel for owning patterns, or the
// view's byte length.
func (p Pattern) ByteSize() int {
	if p.isView {
		return len(p.data)
	}
	off, ok := p.sentinelOffset()
	if !ok {
		return len(p.data)
	}
	return off
}

// tokenBoundaries returns the n+1 byte offsets bounding each token within
// the pattern's addressable bytes (up to the sentinel for owning
// patterns, up to the full slice for views).
func (p Pattern) tokenBoundaries() ([]int, bool) {
	limit := len(p.data)
	if !p.isView {
		sentinelOff, ok := p.sentinelOffset()
		if !ok {
			return nil, false
		}
		limit = sentinelOff
	}

	offsets := make([]int, 1, 8)
	offsets[0] = 0
	off := 0
	for off < limit {
		next := varint.Scan(p.data, off)
		if next < 0 || next > limit {
			return nil, false
		}
		offsets = append(offsets, next)
		off = next
	}
	return offsets, true
}

// N returns the pattern's token count, or 0 if the bytes are malformed.
func (p Pattern) N() int {
	offsets, ok := p.tokenBoundaries()
	if !ok {
		return 0
	}
	return len(offsets) - 1
}

// gapFlags reports, per token index, whether that token occupies a gap:
// for views, the corresponding mask bit; for owning patterns, whether
// the literal class byte at that position is skip or flex.
func (p Pattern) gapFlags() ([]bool, error) {
	n := p.N()
	flags := make([]bool, n)

	if p.isView {
		for i := 0; i < n; i++ {
			flags[i] = p.mask&(1<<uint(i)) != 0
		}
		return flags, nil
	}

	offset := 0
	for i := 0; i < n; i++ {
		cls, step, ok := varint.Decode(p.data, offset)
		if !ok {
			return nil, fmt.Errorf("pattern: gapFlags: %w", errs.ErrMalformedData)
		}
		offset += step
		flags[i] = cls == class.Skip || cls == class.Flex
	}
	return flags, nil
}

// Category classifies the pattern by scanning owning bytes for skip/flex
// class bytes, or by inspecting the view's mask.
func (p Pattern) Category() Category {
	if p.isView {
		if p.mask == 0 {
			return CategoryNgram
		}
		if p.mask&flexFlag != 0 {
			return CategoryFlexgram
		}
		return CategorySkipgram
	}

	offset := 0
	hasSkip := false
	for offset < len(p.data) {
		cls, n, ok := varint.Decode(p.data, offset)
		if !ok {
			break
		}
		if cls == class.Delimiter {
			break
		}
		offset += n
		if cls == class.Flex {
			return CategoryFlexgram
		}
		if cls == class.Skip {
			hasSkip = true
		}
	}
	if hasSkip {
		return CategorySkipgram
	}
	return CategoryNgram
}

// MaskOf computes the 32-bit gap mask for an owning pattern, the same
// shape a view over its bytes would carry. It fails if the pattern has
// more than 31 tokens, the limit a mask can address.
func (p Pattern) MaskOf() (uint32, error) {
	if p.isView {
		return p.mask, nil
	}

	flags, err := p.gapFlags()
	if err != nil {
		return 0, err
	}
	if len(flags) > maxViewTokens {
		return 0, fmt.Errorf("pattern: mask_of: pattern has %d tokens, exceeds view limit of %d: %w", len(flags), maxViewTokens, errs.ErrOutOfRange)
	}

	var mask uint32
	for i, gap := range flags {
		if gap {
			mask |= 1 << uint(i)
		}
	}
	if p.Category() == CategoryFlexgram {
		mask |= flexFlag
	}
	return mask, nil
}

// canonicalBytes appends the pattern's canonical owning byte form to dst:
// non-gap tokens copied verbatim, gap runs collapsed to a single flex
// byte (flexgram) or one skip byte per gapped token (skipgram), followed
// by the delimiter sentinel. This is the byte form used for equality and
// hashing, and is idempotent on an already-canonical owning pattern.
func (p Pattern) canonicalBytes(dst []byte) ([]byte, error) {
	flags, err := p.gapFlags()
	if err != nil {
		return nil, err
	}
	offsets, ok := p.tokenBoundaries()
	if !ok {
		return nil, fmt.Errorf("pattern: canonicalBytes: %w", errs.ErrMalformedData)
	}
	isFlex := p.Category() == CategoryFlexgram

	i := 0
	for i < len(flags) {
		if flags[i] {
			if isFlex {
				dst = varint.Append(dst, class.Flex)
				for i < len(flags) && flags[i] {
					i++
				}
			} else {
				dst = varint.Append(dst, class.Skip)
				i++
			}
			continue
		}
		dst = append(dst, p.data[offsets[i]:offsets[i+1]]...)
		i++
	}
	dst = varint.Append(dst, class.Delimiter)
	return dst, nil
}

// ToOwned materialises a view into a standalone owning pattern, with skip
// bits substituted as literal skip bytes and consecutive flex gaps
// collapsed into one. Called on an owning pattern it returns an
// equivalent, collapsed copy.
func (p Pattern) ToOwned() (Pattern, error) {
	data, err := p.canonicalBytes(nil)
	if err != nil {
		return Pattern{}, err
	}
	return Pattern{data: data}, nil
}

// RawBytes returns the owning byte form suitable for persistence (e.g. as
// a pattern store key): p's own bytes if it is owning, or a materialised
// copy if it is a view.
func (p Pattern) RawBytes() ([]byte, error) {
	if !p.isView {
		return p.data, nil
	}
	owned, err := p.ToOwned()
	if err != nil {
		return nil, err
	}
	return owned.data, nil
}

// Equal reports whether a and b denote the same pattern: after
// materialising skip bits into literal skip bytes and collapsing
// consecutive flex gaps, their byte streams are byte-identical.
func Equal(a, b Pattern) (bool, error) {
	aBuf := pool.GetPatternBuffer()
	defer pool.PutPatternBuffer(aBuf)
	bBuf := pool.GetPatternBuffer()
	defer pool.PutPatternBuffer(bBuf)

	aCanon, err := a.canonicalBytes(aBuf.B[:0])
	if err != nil {
		return false, err
	}
	bCanon, err := b.canonicalBytes(bBuf.B[:0])
	if err != nil {
		return false, err
	}
	return bytes.Equal(aCanon, bCanon), nil
}

// Equal is a convenience method equivalent to Equal(p, other).
func (p Pattern) Equal(other Pattern) (bool, error) {
	return Equal(p, other)
}

// Hash computes a 64-bit non-cryptographic hash of the pattern's
// canonical byte form, so that a view and the owning pattern obtained by
// materialising it always hash equal.
func (p Pattern) Hash() (uint64, error) {
	buf := pool.GetPatternBuffer()
	defer pool.PutPatternBuffer(buf)

	data, err := p.canonicalBytes(buf.B[:0])
	if err != nil {
		return 0, err
	}
	return hash.Bytes(data), nil
}

// shiftMask derives the gap mask for the token sub-range [begin,
// begin+length) of a view carrying mask.
func shiftMask(mask uint32, begin, length int) uint32 {
	flex := mask & flexFlag
	bits := uint64(mask &^ flexFlag)
	sub := uint32((bits >> uint(begin)) & ((uint64(1) << uint(length)) - 1))
	return sub | flex
}

// Slice extracts the by-token range [begin, begin+length) from p. An
// owning pattern yields an owning copy with a fresh sentinel; a view
// yields a sub-view over the same backing bytes, inheriting the
// corresponding mask bits.
func (p Pattern) Slice(begin, length int) (Pattern, error) {
	offsets, ok := p.tokenBoundaries()
	if !ok {
		return Pattern{}, fmt.Errorf("pattern: slice: %w", errs.ErrMalformedData)
	}
	n := len(offsets) - 1
	if begin < 0 || length < 0 || begin+length > n {
		return Pattern{}, fmt.Errorf("pattern: slice(%d,%d) of %d-token pattern: %w", begin, length, n, errs.ErrOutOfRange)
	}

	startByte, endByte := offsets[begin], offsets[begin+length]

	if p.isView {
		return Pattern{
			data:   p.data[startByte:endByte],
			mask:   shiftMask(p.mask, begin, length),
			isView: true,
		}, nil
	}

	out := make([]byte, endByte-startByte, endByte-startByte+1)
	copy(out, p.data[startByte:endByte])
	out = varint.Append(out, class.Delimiter)
	return Pattern{data: out}, nil
}

// Concat byte-concatenates one or more owning patterns, dropping all but
// a single trailing sentinel. Concat fails if any argument is a view.
func Concat(patterns ...Pattern) (Pattern, error) {
	var out []byte
	for i, p := range patterns {
		if p.isView {
			return Pattern{}, fmt.Errorf("pattern: concat: argument %d is a view, owning patterns required: %w", i, errs.ErrInvalidArgument)
		}
		end, ok := p.sentinelOffset()
		if !ok {
			return Pattern{}, fmt.Errorf("pattern: concat: argument %d: %w", i, errs.ErrMalformedData)
		}
		out = append(out, p.data[:end]...)
	}
	out = varint.Append(out, class.Delimiter)
	return Pattern{data: out}, nil
}

// AddContext returns the owning pattern formed by concatenating left, p,
// and right in order, materialising p first if it is a view.
func (p Pattern) AddContext(left, right Pattern) (Pattern, error) {
	mid := p
	if p.isView {
		owned, err := p.ToOwned()
		if err != nil {
			return Pattern{}, err
		}
		mid = owned
	}
	return Concat(left, mid, right)
}

// Contains reports whether q's byte sequence appears contiguously within
// p, a naive byte-level search restricted to n-gram patterns.
func (p Pattern) Contains(q Pattern) (bool, error) {
	pBytes, err := p.ngramBytes()
	if err != nil {
		return false, err
	}
	qBytes, err := q.ngramBytes()
	if err != nil {
		return false, err
	}
	if len(qBytes) == 0 {
		return true, nil
	}
	return bytes.Contains(pBytes, qBytes), nil
}

// ngramBytes returns the raw class bytes (no sentinel) of an n-gram
// pattern, failing for skipgrams and flexgrams.
func (p Pattern) ngramBytes() ([]byte, error) {
	if p.Category() != CategoryNgram {
		return nil, fmt.Errorf("pattern: contains is only defined for n-grams: %w", errs.ErrInvalidArgument)
	}
	if p.isView {
		return p.data, nil
	}
	end, ok := p.sentinelOffset()
	if !ok {
		return nil, fmt.Errorf("pattern: ngramBytes: %w", errs.ErrMalformedData)
	}
	return p.data[:end], nil
}

// NgramWindow is one contiguous length-n window produced by Ngrams,
// paired with its starting token offset within the source pattern.
type NgramWindow struct {
	Pattern     Pattern
	TokenOffset int
}

// Ngrams returns every contiguous length-n window of p, propagating mask
// bits (for views) so skipgram/flexgram windows are faithfully
// represented. Returns nil if n is out of [1, N(p)].
func (p Pattern) Ngrams(n int) ([]NgramWindow, error) {
	total := p.N()
	if n <= 0 || n > total {
		return nil, nil
	}

	windows := make([]NgramWindow, 0, total-n+1)
	for start := 0; start+n <= total; start++ {
		sub, err := p.Slice(start, n)
		if err != nil {
			return nil, err
		}
		windows = append(windows, NgramWindow{Pattern: sub, TokenOffset: start})
	}
	return windows, nil
}

// SubNgrams returns the union of Ngrams(p, n) for every n in [min, max].
func (p Pattern) SubNgrams(min, max int) ([]NgramWindow, error) {
	var all []NgramWindow
	for n := min; n <= max; n++ {
		ws, err := p.Ngrams(n)
		if err != nil {
			return nil, err
		}
		all = append(all, ws...)
	}
	return all, nil
}

// Parts returns the maximal contiguous non-gap runs of p, as owning
// copies or sub-views per p's own representation.
func (p Pattern) Parts() ([]Pattern, error) {
	flags, err := p.gapFlags()
	if err != nil {
		return nil, err
	}

	var parts []Pattern
	i := 0
	for i < len(flags) {
		if flags[i] {
			i++
			continue
		}
		start := i
		for i < len(flags) && !flags[i] {
			i++
		}
		sub, err := p.Slice(start, i-start)
		if err != nil {
			return nil, err
		}
		parts = append(parts, sub)
	}
	return parts, nil
}

// Gap is a single gap run: the token index it starts at and its length
// in tokens.
type Gap struct {
	Start  int
	Length int
}

// Gaps returns every gap run in p as (start_token, length) pairs.
func (p Pattern) Gaps() ([]Gap, error) {
	flags, err := p.gapFlags()
	if err != nil {
		return nil, err
	}

	var gaps []Gap
	i := 0
	for i < len(flags) {
		if !flags[i] {
			i++
			continue
		}
		start := i
		for i < len(flags) && flags[i] {
			i++
		}
		gaps = append(gaps, Gap{Start: start, Length: i - start})
	}
	return gaps, nil
}

// ToFlexgram returns a pattern equal in parts to p but with every gap run
// (of any width) replaced by a single flex gap.
func (p Pattern) ToFlexgram() (Pattern, error) {
	flags, err := p.gapFlags()
	if err != nil {
		return Pattern{}, err
	}
	offsets, ok := p.tokenBoundaries()
	if !ok {
		return Pattern{}, fmt.Errorf("pattern: to_flexgram: %w", errs.ErrMalformedData)
	}

	var out []byte
	i := 0
	for i < len(flags) {
		if flags[i] {
			out = varint.Append(out, class.Flex)
			for i < len(flags) && flags[i] {
				i++
			}
			continue
		}
		out = append(out, p.data[offsets[i]:offsets[i+1]]...)
		i++
	}
	out = varint.Append(out, class.Delimiter)
	return Pattern{data: out}, nil
}

// SkipRange is a by-token range to be masked as a fixed-width gap by
// AddSkip/AddSkips.
type SkipRange struct {
	Start  int
	Length int
}

// AddSkips produces a skipgram from p by masking the given token ranges
// as gaps. An owning p yields an owning pattern with literal skip bytes
// at each gapped token; a view yields a new view with the corresponding
// mask bits set (and fails if p has more than 31 tokens).
func (p Pattern) AddSkips(ranges []SkipRange) (Pattern, error) {
	total := p.N()
	for _, r := range ranges {
		if r.Start < 0 || r.Length <= 0 || r.Start+r.Length > total {
			return Pattern{}, fmt.Errorf("pattern: add_skips: range [%d,%d) out of bounds for %d-token pattern: %w", r.Start, r.Start+r.Length, total, errs.ErrOutOfRange)
		}
	}

	if p.isView {
		if total > maxViewTokens {
			return Pattern{}, fmt.Errorf("pattern: add_skips: view has %d tokens, exceeds limit of %d: %w", total, maxViewTokens, errs.ErrOutOfRange)
		}
		mask := p.mask
		for _, r := range ranges {
			for i := r.Start; i < r.Start+r.Length; i++ {
				mask |= 1 << uint(i)
			}
		}
		return Pattern{data: p.data, mask: mask, isView: true}, nil
	}

	offsets, ok := p.tokenBoundaries()
	if !ok {
		return Pattern{}, fmt.Errorf("pattern: add_skips: %w", errs.ErrMalformedData)
	}
	gapAt := make([]bool, total)
	for _, r := range ranges {
		for i := r.Start; i < r.Start+r.Length; i++ {
			gapAt[i] = true
		}
	}

	var out []byte
	for i := 0; i < total; i++ {
		if gapAt[i] {
			out = varint.Append(out, class.Skip)
			continue
		}
		out = append(out, p.data[offsets[i]:offsets[i+1]]...)
	}
	out = varint.Append(out, class.Delimiter)
	return Pattern{data: out}, nil
}

// AddSkip is a convenience wrapper over AddSkips for a single range.
func (p Pattern) AddSkip(start, length int) (Pattern, error) {
	return p.AddSkips([]SkipRange{{Start: start, Length: length}})
}

// ExtractSkipContent returns the owning pattern containing exactly the
// tokens of fullNgram occupying the gap positions of skipgram. The
// caller must ensure skipgram.N() == fullNgram.N().
func ExtractSkipContent(skipgram, fullNgram Pattern) (Pattern, error) {
	flags, err := skipgram.gapFlags()
	if err != nil {
		return Pattern{}, err
	}
	offsets, ok := fullNgram.tokenBoundaries()
	if !ok {
		return Pattern{}, fmt.Errorf("pattern: extract_skipcontent: %w", errs.ErrMalformedData)
	}

	var out []byte
	for i, gap := range flags {
		if !gap {
			continue
		}
		if i+1 >= len(offsets) {
			return Pattern{}, fmt.Errorf("pattern: extract_skipcontent: gap position %d beyond full_ngram length: %w", i, errs.ErrOutOfRange)
		}
		out = append(out, fullNgram.data[offsets[i]:offsets[i+1]]...)
	}
	out = varint.Append(out, class.Delimiter)
	return Pattern{data: out}, nil
}

// InstanceOf reports whether candidate is an instance of template:
// replacing template's gap positions with candidate's tokens at the same
// positions yields exact equality on every non-gap position, and the two
// patterns have equal token counts. This rule covers both fixed
// skipgram and flexgram templates: since n must already match, a
// flexgram's variable-width gaps collapse to the same positional
// comparison as a skipgram's fixed ones.
func InstanceOf(candidate, template Pattern) (bool, error) {
	if candidate.N() != template.N() {
		return false, nil
	}

	tFlags, err := template.gapFlags()
	if err != nil {
		return false, err
	}
	tOffsets, ok := template.tokenBoundaries()
	if !ok {
		return false, fmt.Errorf("pattern: instance_of: template: %w", errs.ErrMalformedData)
	}
	cOffsets, ok := candidate.tokenBoundaries()
	if !ok {
		return false, fmt.Errorf("pattern: instance_of: candidate: %w", errs.ErrMalformedData)
	}

	for i, gap := range tFlags {
		if gap {
			continue
		}
		tTok := template.data[tOffsets[i]:tOffsets[i+1]]
		cTok := candidate.data[cOffsets[i]:cOffsets[i+1]]
		if !bytes.Equal(tTok, cTok) {
			return false, nil
		}
	}
	return true, nil
}

// Reverse returns the token-reversed owning pattern.
func (p Pattern) Reverse() (Pattern, error) {
	offsets, ok := p.tokenBoundaries()
	if !ok {
		return Pattern{}, fmt.Errorf("pattern: reverse: %w", errs.ErrMalformedData)
	}
	n := len(offsets) - 1

	out := make([]byte, 0, p.ByteSize()+1)
	for i := n - 1; i >= 0; i-- {
		out = append(out, p.data[offsets[i]:offsets[i+1]]...)
	}
	out = varint.Append(out, class.Delimiter)
	return Pattern{data: out}, nil
}

// Render decodes p back into a human-readable, whitespace-joined token
// string using codec, rendering gaps with the same syntax class.Encode
// accepts ({*}, {**}).
func (p Pattern) Render(codec *class.Codec) (string, error) {
	flags, err := p.gapFlags()
	if err != nil {
		return "", err
	}
	offsets, ok := p.tokenBoundaries()
	if !ok {
		return "", fmt.Errorf("pattern: render: %w", errs.ErrMalformedData)
	}
	isFlex := p.Category() == CategoryFlexgram

	var out bytes.Buffer
	i := 0
	for i < len(flags) {
		if i > 0 {
			out.WriteByte(' ')
		}
		if flags[i] {
			if isFlex {
				out.WriteString("{**}")
				for i < len(flags) && flags[i] {
					i++
				}
			} else {
				out.WriteString("{*}")
				i++
			}
			continue
		}
		cls, _, ok := varint.Decode(p.data, offsets[i])
		if !ok {
			return "", fmt.Errorf("pattern: render: %w", errs.ErrMalformedData)
		}
		if tok, found := codec.Token(cls); found {
			out.WriteString(tok)
		} else {
			out.WriteString("{?}")
		}
		i++
	}
	return out.String(), nil
}
