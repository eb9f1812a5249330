// Package corpus implements the encoded corpus file format and the
// indexed corpus: a positional reverse index loaded once into memory,
// exposing read-only pattern views at arbitrary sentence/token
// positions. It mirrors the "decode the whole buffer once, hand out
// slices into it" shape used for columnar blob payloads in the reference
// encoder this package is adapted from.
package corpus

import (
	"errors"
	"fmt"
	"io"

	"github.com/patterncore/patterncore/class"
	"github.com/patterncore/patterncore/errs"
	"github.com/patterncore/patterncore/internal/deltaidx"
	"github.com/patterncore/patterncore/pattern"
	"github.com/patterncore/patterncore/varint"
)

// MagicByte1 and MagicByte2 identify a version 2 encoded corpus file.
const (
	MagicByte1 byte = 0xA2
	MagicByte2 byte = 0x02
)

// Version 1 used magic byte values in place of the reserved skip/flex
// classes, since it predates the reserved-class scheme entirely.
const (
	v1SkipByte uint32 = 128
	v1FlexByte uint32 = 129
)

// ReadEncoded reads an encoded corpus from r in either on-disk version and
// returns its canonical byte stream: per-token varint class encodings
// terminated by delimiter sentinels, one sentence after another. A
// version 1 stream is transparently upgraded to version 2's encoding in
// memory; the magic bytes themselves are not part of the returned
// stream.
func ReadEncoded(r io.Reader) ([]byte, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("corpus: read_encoded: %w", err)
	}
	if len(raw) >= 2 && raw[0] == MagicByte1 && raw[1] == MagicByte2 {
		return raw[2:], nil
	}
	return upgradeV1(raw)
}

// upgradeV1 transcodes a version 1 byte stream (1-byte length-prefixed
// tokens, 0-byte sentence terminator, skip/flex as magic byte values
// 128/129) into version 2's varint-encoded, sentinel-terminated form.
func upgradeV1(raw []byte) ([]byte, error) {
	out := make([]byte, 0, len(raw))
	offset := 0
	for offset < len(raw) {
		length := int(raw[offset])
		offset++
		if length == 0 {
			out = varint.Append(out, class.Delimiter)
			continue
		}
		if offset+length > len(raw) {
			return nil, fmt.Errorf("corpus: upgrade_v1: truncated token at byte %d: %w", offset, errs.ErrMalformedData)
		}

		var id uint32
		for i := 0; i < length; i++ {
			id |= uint32(raw[offset+i]) << uint(8*i)
		}
		offset += length

		switch id {
		case v1SkipByte:
			id = class.Skip
		case v1FlexByte:
			id = class.Flex
		}
		out = varint.Append(out, id)
	}
	return out, nil
}

// WriteEncoded writes data (a canonical byte stream as returned by
// ReadEncoded) to w as a version 2 encoded corpus file.
func WriteEncoded(w io.Writer, data []byte) error {
	if _, err := w.Write([]byte{MagicByte1, MagicByte2}); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

// IndexedCorpus is a fully-loaded, read-only positional reverse index
// over an encoded corpus: the decoded byte stream plus a sentence
// number → byte offset index built in a single scan at load time.
// Sentences are 1-indexed, matching IndexReference.Sentence.
type IndexedCorpus struct {
	data    []byte
	starts  []int    // starts[i] is the byte offset sentence i begins at; index 0 unused.
	lengths []int    // lengths[i] is sentence i's token count; index 0 unused.
	masks   []uint32 // masks[i] is the view mask for any skip/flex classes literally present in sentence i's own bytes; index 0 unused.
}

// Load reads an encoded corpus (either file version) fully into memory
// and builds its sentence index. A sentence's view mask is computed
// during this same scan, so that a sentence deliberately containing
// literal skip/flex tokens (e.g. pre-annotated gap placeholders) is
// still classified correctly by the view GetSentence returns, rather
// than defaulting every corpus view to an n-gram.
func Load(r io.Reader) (*IndexedCorpus, error) {
	data, err := ReadEncoded(r)
	if err != nil {
		return nil, err
	}

	starts := make([]int, 1, 1024)
	lengths := make([]int, 1, 1024)
	masks := make([]uint32, 1, 1024)

	offset := 0
	for offset < len(data) {
		sentStart := offset
		n := 0
		hasFlex := false
		var mask uint32
		for {
			cls, step, ok := varint.Decode(data, offset)
			if !ok {
				return nil, fmt.Errorf("corpus: load: sentence %d: %w", len(starts), errs.ErrMalformedData)
			}
			offset += step
			if cls == class.Delimiter {
				break
			}
			if cls == class.Skip || cls == class.Flex {
				if n < 31 {
					mask |= 1 << uint(n)
				}
				if cls == class.Flex {
					hasFlex = true
				}
			}
			n++
		}
		if hasFlex {
			mask |= pattern.FlexFlag
		}
		starts = append(starts, sentStart)
		lengths = append(lengths, n)
		masks = append(masks, mask)
	}

	return &IndexedCorpus{data: data, starts: starts, lengths: lengths, masks: masks}, nil
}

// SentenceCount returns the number of sentences in the corpus.
func (c *IndexedCorpus) SentenceCount() int { return len(c.starts) - 1 }

// sentenceSpan returns the byte range [start, end) of sentence i's
// tokens, excluding the trailing delimiter sentinel (always exactly one
// byte, 0x00).
func (c *IndexedCorpus) sentenceSpan(i int) (start, end int, ok bool) {
	if i < 1 || i >= len(c.starts) {
		return 0, 0, false
	}
	start = c.starts[i]
	sentinelEnd := len(c.data)
	if i+1 < len(c.starts) {
		sentinelEnd = c.starts[i+1]
	}
	return start, sentinelEnd - 1, true
}

// SentenceLength returns the token count of sentence i.
func (c *IndexedCorpus) SentenceLength(i int) (int, error) {
	if i < 1 || i >= len(c.lengths) {
		return 0, fmt.Errorf("corpus: sentence_length(%d): %w", i, errs.ErrNotFound)
	}
	return c.lengths[i], nil
}

// GetSentence returns a view of the i-th sentence in its entirety.
func (c *IndexedCorpus) GetSentence(i int) (pattern.Pattern, error) {
	start, end, ok := c.sentenceSpan(i)
	if !ok {
		return pattern.Pattern{}, fmt.Errorf("corpus: get_sentence(%d): %w", i, errs.ErrNotFound)
	}
	return pattern.NewView(c.data[start:end], c.masks[i]), nil
}

// GetPattern returns a view of length tokens starting at ref. It fails
// with ErrNotFound if the sentence does not exist, or ErrOutOfRange if
// the range overflows the sentence.
func (c *IndexedCorpus) GetPattern(ref deltaidx.IndexReference, length int) (pattern.Pattern, error) {
	sentence, err := c.GetSentence(int(ref.Sentence))
	if err != nil {
		return pattern.Pattern{}, err
	}
	p, err := sentence.Slice(int(ref.Token), length)
	if err != nil {
		return pattern.Pattern{}, fmt.Errorf("corpus: get_pattern(%v,%d): %w", ref, length, err)
	}
	return p, nil
}

// FindPattern returns a view anchored at ref that matches template,
// carrying a mask built under resultCategory. For an n-gram template
// the view is compared directly; for a skipgram template, each
// non-gap part is compared positionally and the result carries
// template's mask (or the flexgram bit, if resultCategory is
// pattern.CategoryFlexgram); for a flexgram template, template's parts
// are matched greedily left to right, and the result mask is computed
// from the matched gap widths. FindPattern fails with ErrNotFound if
// ref's sentence is missing or no match exists at that anchor.
func (c *IndexedCorpus) FindPattern(ref deltaidx.IndexReference, template pattern.Pattern, resultCategory pattern.Category) (pattern.Pattern, error) {
	sentence, err := c.GetSentence(int(ref.Sentence))
	if err != nil {
		return pattern.Pattern{}, err
	}

	switch template.Category() {
	case pattern.CategoryNgram:
		return c.findNgram(sentence, ref, template)
	case pattern.CategorySkipgram:
		return c.findSkipgram(sentence, ref, template, resultCategory)
	case pattern.CategoryFlexgram:
		return c.findFlexgram(sentence, ref, template)
	default:
		return pattern.Pattern{}, fmt.Errorf("corpus: find_pattern: unknown template category: %w", errs.ErrInvalidArgument)
	}
}

func (c *IndexedCorpus) findNgram(sentence pattern.Pattern, ref deltaidx.IndexReference, template pattern.Pattern) (pattern.Pattern, error) {
	candidate, err := sentence.Slice(int(ref.Token), template.N())
	if err != nil {
		return pattern.Pattern{}, fmt.Errorf("corpus: find_pattern: %w", errs.ErrNotFound)
	}
	eq, err := candidate.Equal(template)
	if err != nil {
		return pattern.Pattern{}, err
	}
	if !eq {
		return pattern.Pattern{}, fmt.Errorf("corpus: find_pattern: %w", errs.ErrNotFound)
	}
	return candidate, nil
}

func (c *IndexedCorpus) findSkipgram(sentence pattern.Pattern, ref deltaidx.IndexReference, template pattern.Pattern, resultCategory pattern.Category) (pattern.Pattern, error) {
	candidate, err := sentence.Slice(int(ref.Token), template.N())
	if err != nil {
		return pattern.Pattern{}, fmt.Errorf("corpus: find_pattern: %w", errs.ErrNotFound)
	}
	ok, err := pattern.InstanceOf(candidate, template)
	if err != nil {
		return pattern.Pattern{}, err
	}
	if !ok {
		return pattern.Pattern{}, fmt.Errorf("corpus: find_pattern: %w", errs.ErrNotFound)
	}

	mask, err := template.MaskOf()
	if err != nil {
		return pattern.Pattern{}, err
	}
	result, err := pattern.WithMask(candidate, mask)
	if err != nil {
		return pattern.Pattern{}, err
	}
	if resultCategory == pattern.CategoryFlexgram {
		return result.ToFlexgram()
	}
	return result, nil
}

func (c *IndexedCorpus) findFlexgram(sentence pattern.Pattern, ref deltaidx.IndexReference, template pattern.Pattern) (pattern.Pattern, error) {
	parts, err := template.Parts()
	if err != nil {
		return pattern.Pattern{}, err
	}
	if len(parts) == 0 {
		return pattern.Pattern{}, fmt.Errorf("corpus: find_pattern: flexgram template has no non-gap parts: %w", errs.ErrInvalidArgument)
	}

	total := sentence.N()
	anchor := int(ref.Token)
	cursor := anchor
	var gaps []pattern.Gap

	for i, part := range parts {
		partLen := part.N()
		matched := false
		for pos := cursor; pos+partLen <= total; pos++ {
			if i == 0 && pos > anchor {
				break
			}
			candidate, err := sentence.Slice(pos, partLen)
			if err != nil {
				return pattern.Pattern{}, err
			}
			eq, err := candidate.Equal(part)
			if err != nil {
				return pattern.Pattern{}, err
			}
			if !eq {
				continue
			}
			if i > 0 && pos > cursor {
				gaps = append(gaps, pattern.Gap{Start: cursor - anchor, Length: pos - cursor})
			}
			cursor = pos + partLen
			matched = true
			break
		}
		if !matched {
			return pattern.Pattern{}, fmt.Errorf("corpus: find_pattern: %w", errs.ErrNotFound)
		}
	}

	span := cursor - anchor
	full, err := sentence.Slice(anchor, span)
	if err != nil {
		return pattern.Pattern{}, err
	}

	var mask uint32
	for _, g := range gaps {
		for i := g.Start; i < g.Start+g.Length; i++ {
			mask |= 1 << uint(i)
		}
	}
	mask |= pattern.FlexFlag
	return pattern.WithMask(full, mask)
}

// Match is one (position, view) pair produced by FindPatternAll.
type Match struct {
	Ref     deltaidx.IndexReference
	Pattern pattern.Pattern
}

// FindPatternAll scans every anchor position of sentence (or of every
// sentence, when sentence is 0) and returns every match against
// template, carrying template's own category as the result category.
func (c *IndexedCorpus) FindPatternAll(template pattern.Pattern, sentence int) ([]Match, error) {
	lo, hi := sentence, sentence
	if sentence == 0 {
		lo, hi = 1, c.SentenceCount()
	} else if sentence < 1 || sentence >= len(c.starts) {
		return nil, fmt.Errorf("corpus: find_pattern: sentence %d: %w", sentence, errs.ErrNotFound)
	}

	resultCategory := template.Category()
	var matches []Match
	for s := lo; s <= hi; s++ {
		sent, err := c.GetSentence(s)
		if err != nil {
			return nil, err
		}
		n := sent.N()
		for tok := 0; tok < n; tok++ {
			ref := deltaidx.IndexReference{Sentence: uint32(s), Token: uint16(tok)} //nolint:gosec
			m, err := c.FindPattern(ref, template, resultCategory)
			if err != nil {
				if errors.Is(err, errs.ErrNotFound) || errors.Is(err, errs.ErrOutOfRange) {
					continue
				}
				return nil, err
			}
			matches = append(matches, Match{Ref: ref, Pattern: m})
		}
	}
	return matches, nil
}

// Bytes returns the corpus's raw decoded byte stream, for callers that
// need to re-save it verbatim (e.g. rewriting a version 1 file as
// version 2).
func (c *IndexedCorpus) Bytes() []byte { return c.data }
