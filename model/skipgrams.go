package model

import (
	"fmt"

	"github.com/patterncore/patterncore/class"
	"github.com/patterncore/patterncore/corpus"
	"github.com/patterncore/patterncore/errs"
	"github.com/patterncore/patterncore/internal/deltaidx"
	"github.com/patterncore/patterncore/model/skipgram"
	"github.com/patterncore/patterncore/pattern"
	"github.com/patterncore/patterncore/store"
	"github.com/patterncore/patterncore/varint"
)

// maskToRanges converts a skipgram.Masks bit mask into the SkipRange
// list AddSkips expects.
func maskToRanges(mask uint32, n int) []pattern.SkipRange {
	runs := skipgram.Runs(mask, n)
	ranges := make([]pattern.SkipRange, len(runs))
	for i, r := range runs {
		ranges[i] = pattern.SkipRange{Start: r.Start, Length: r.Length}
	}
	return ranges
}

// shiftMaskForRange derives the gap mask a sub-range [begin, begin+length)
// of an n-token mask would carry on its own.
func shiftMaskForRange(mask uint32, begin, length int) uint32 {
	return (mask >> uint(begin)) & ((uint32(1) << uint(length)) - 1)
}

// extractIndexedSkipgrams runs the indexed skipgram extraction pass
// (spec §4.7) over every admitted n-gram of order >= 3: for each valid
// gap mask at that order, the candidate skipgram is accepted either
// because it satisfies a supplied constraint model, or because its
// back-off sub-skipgrams and single-token-context gap windows are
// themselves already present in the model. Accepted skipgrams inherit
// the source n-gram's occurrence list.
func extractIndexedSkipgrams(m *Model, c *corpus.IndexedCorpus, cfg *trainConfig) error {
	if !m.IsIndexed() {
		return fmt.Errorf("model: extract_indexed_skipgrams: requires an indexed model: %w", errs.ErrInvalidArgument)
	}

	maxN := 0
	if err := m.Iterate(func(p pattern.Pattern, _ int) (bool, error) {
		if p.Category() == pattern.CategoryNgram && p.N() > maxN {
			maxN = p.N()
		}
		return true, nil
	}); err != nil {
		return err
	}

	for n := 3; n <= maxN; n++ {
		masks := skipgram.Masks(n, cfg.maxSkips)
		if len(masks) == 0 {
			continue
		}

		var ngrams []pattern.Pattern
		if err := m.Iterate(func(p pattern.Pattern, _ int) (bool, error) {
			if p.Category() == pattern.CategoryNgram && p.N() == n {
				ngrams = append(ngrams, p)
			}
			return true, nil
		}); err != nil {
			return err
		}

		for _, ng := range ngrams {
			occ, _, err := m.Occurrences(ng)
			if err != nil {
				return err
			}

			for _, mask := range masks {
				skip, err := ng.AddSkips(maskToRanges(mask, n))
				if err != nil {
					return err
				}

				if cfg.constraint != nil {
					ok, err := cfg.constraint.Contains(skip)
					if err != nil {
						return err
					}
					if !ok {
						continue
					}
				} else {
					ok, err := validateSkipgram(m, ng, mask, n, cfg.maxBackoffLength)
					if err != nil {
						return err
					}
					if !ok {
						continue
					}
				}

				if err := mergeOccurrences(m, skip, occ); err != nil {
					return err
				}
			}
		}
	}

	return postFilterSkipgrams(m, c, cfg)
}

// validateSkipgram implements the two-step admission rule for a
// candidate skipgram mask over full (order n):
//  1. each (n-1)-length sub-skipgram obtained by dropping the first or
//     last token must already be present in the model, unless that drop
//     would itself leave a leading or trailing gap (in which case that
//     side's check is skipped rather than failed);
//  2. each gap run, together with one token of context on either side
//     (or just the one available side, at a pattern boundary), must be
//     present in the model as its own skipgram.
func validateSkipgram(m *Model, full pattern.Pattern, mask uint32, n, maxBackoffLength int) (bool, error) {
	if n-1 <= maxBackoffLength {
		for _, begin := range [2]int{0, 1} {
			subMask := shiftMaskForRange(mask, begin, n-1)
			if subMask&1 != 0 || subMask&(1<<uint(n-2)) != 0 {
				continue
			}
			sub, err := full.Slice(begin, n-1)
			if err != nil {
				return false, err
			}
			subSkip, err := sub.AddSkips(maskToRanges(subMask, n-1))
			if err != nil {
				return false, err
			}
			ok, err := m.Contains(subSkip)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
	}

	for _, g := range skipgram.Runs(mask, n) {
		ctxStart := g.Start - 1
		ctxLen := g.Length + 2
		if ctxStart < 0 {
			ctxStart = g.Start
			ctxLen = g.Length + 1
		}
		if ctxStart+ctxLen > n {
			ctxLen = n - ctxStart
		}
		ctx, err := full.Slice(ctxStart, ctxLen)
		if err != nil {
			return false, err
		}
		ctxMask := shiftMaskForRange(mask, ctxStart, ctxLen)
		ctxSkip, err := ctx.AddSkips(maskToRanges(ctxMask, ctxLen))
		if err != nil {
			return false, err
		}
		ok, err := m.Contains(ctxSkip)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// mergeOccurrences appends occ to skip's existing occurrence list,
// inserting skip fresh if it is not yet stored.
func mergeOccurrences(m *Model, skip pattern.Pattern, occ store.IndexValue) error {
	existing, _, err := m.indexed.Get(skip)
	if err != nil {
		return err
	}
	if err := m.indexed.Insert(skip, append(existing, occ...)); err != nil {
		return err
	}
	m.invalidateCoverage()
	return nil
}

// exhaustiveSkipgramsAt is WithSkipgramsExhaustive's inline companion to
// the multi-pass n-gram loop: for each valid gap mask at ngram's order,
// it records the resulting skipgram's occurrence directly, with no
// back-off validation (the n-gram itself was already admitted).
func exhaustiveSkipgramsAt(m *Model, ngram pattern.Pattern, ref deltaidx.IndexReference, cfg *trainConfig) error {
	n := ngram.N()
	for _, mask := range skipgram.Masks(n, cfg.maxSkips) {
		skip, err := ngram.AddSkips(maskToRanges(mask, n))
		if err != nil {
			return err
		}
		if err := m.record(skip, ref); err != nil {
			return err
		}
	}
	return nil
}

// postFilterSkipgrams drops every skipgram whose total occurrence count
// falls below min_tokens_skipgrams, or — when a corpus is bound — whose
// gap content does not exhibit at least min_skip_types distinct filler
// sequences across its occurrences.
func postFilterSkipgrams(m *Model, c *corpus.IndexedCorpus, cfg *trainConfig) error {
	var toErase []pattern.Pattern
	err := m.Iterate(func(p pattern.Pattern, count int) (bool, error) {
		if p.Category() != pattern.CategorySkipgram {
			return true, nil
		}
		if count < cfg.minTokensSkipgrams {
			toErase = append(toErase, p)
			return true, nil
		}
		if c == nil || cfg.minSkipTypes <= 1 {
			return true, nil
		}

		occ, _, err := m.Occurrences(p)
		if err != nil {
			return false, err
		}
		fillers := map[string]bool{}
		for _, ref := range occ {
			full, err := c.GetPattern(ref, p.N())
			if err != nil {
				continue
			}
			content, err := pattern.ExtractSkipContent(p, full)
			if err != nil {
				continue
			}
			raw, err := content.RawBytes()
			if err != nil {
				continue
			}
			fillers[string(raw)] = true
		}
		if len(fillers) < cfg.minSkipTypes {
			toErase = append(toErase, p)
		}
		return true, nil
	})
	if err != nil {
		return err
	}
	for _, p := range toErase {
		if err := m.erase(p); err != nil {
			return err
		}
	}
	return nil
}

// ComputeFlexgramsFromSkipgrams derives a flexgram for every stored
// skipgram by collapsing each of its gap runs into a single flex gap,
// merging occurrence lists across skipgrams that collapse to the same
// flexgram. It requires an indexed model.
func (m *Model) ComputeFlexgramsFromSkipgrams() error {
	if !m.IsIndexed() {
		return fmt.Errorf("model: compute_flexgrams_from_skipgrams: requires an indexed model: %w", errs.ErrNotLoaded)
	}

	grouped := map[string]store.IndexValue{}
	flexByKey := map[string]pattern.Pattern{}
	var order []string

	err := m.Iterate(func(p pattern.Pattern, _ int) (bool, error) {
		if p.Category() != pattern.CategorySkipgram {
			return true, nil
		}
		flex, err := p.ToFlexgram()
		if err != nil {
			return false, err
		}
		key, err := flex.RawBytes()
		if err != nil {
			return false, err
		}
		occ, _, err := m.Occurrences(p)
		if err != nil {
			return false, err
		}
		if _, exists := grouped[string(key)]; !exists {
			order = append(order, string(key))
			flexByKey[string(key)] = flex
		}
		grouped[string(key)] = append(grouped[string(key)], occ...)
		return true, nil
	})
	if err != nil {
		return err
	}

	for _, key := range order {
		if err := m.indexed.Insert(flexByKey[key], grouped[key]); err != nil {
			return err
		}
	}
	m.invalidateCoverage()
	return nil
}

// ComputeFlexgramsFromCooc derives a flexgram "A {**} B" for every pair
// of stored n-grams whose right-co-occurrence NPMI score reaches
// threshold, using A's own occurrence positions as the flexgram's
// occurrence list. It requires an indexed model with a bound corpus.
func (m *Model) ComputeFlexgramsFromCooc(threshold float64) error {
	if err := m.requireIndexed(); err != nil {
		return err
	}

	var patterns []pattern.Pattern
	if err := m.Iterate(func(p pattern.Pattern, _ int) (bool, error) {
		if p.Category() == pattern.CategoryNgram {
			patterns = append(patterns, p)
		}
		return true, nil
	}); err != nil {
		return err
	}

	type pair struct {
		a, b pattern.Pattern
	}
	var toAdd []pair

	for _, a := range patterns {
		rel, err := m.RightCooc(a, 0)
		if err != nil {
			return err
		}
		countA, _, err := m.Count(a)
		if err != nil {
			return err
		}
		for _, r := range rel {
			countB, _, err := m.Count(r.Pattern)
			if err != nil {
				return err
			}
			score := NPMI(countA, countB, r.Count, int(m.totalTokens))
			if score >= threshold {
				toAdd = append(toAdd, pair{a: a, b: r.Pattern})
			}
		}
	}

	for _, pr := range toAdd {
		flex, err := buildCoocFlexgram(pr.a, pr.b)
		if err != nil {
			return err
		}
		occ, _, err := m.Occurrences(pr.a)
		if err != nil {
			return err
		}
		if err := m.indexed.Insert(flex, occ); err != nil {
			return err
		}
	}
	m.invalidateCoverage()
	return nil
}

// buildCoocFlexgram builds the owning flexgram pattern "a {**} b": a and
// b's token bytes, verbatim, with a single flex gap spliced between
// them and a fresh delimiter sentinel appended. Unlike AddSkips, this
// gap occupies no token position of either source pattern — it is an
// inserted placeholder for whatever co-occurring material separates a
// and b in the corpus, not a masked-over original token.
func buildCoocFlexgram(a, b pattern.Pattern) (pattern.Pattern, error) {
	aRaw, err := a.RawBytes()
	if err != nil {
		return pattern.Pattern{}, err
	}
	bRaw, err := b.RawBytes()
	if err != nil {
		return pattern.Pattern{}, err
	}

	out := make([]byte, 0, len(aRaw)+len(bRaw)+1)
	out = append(out, aRaw[:len(aRaw)-1]...) // drop a's delimiter sentinel
	out = varint.Append(out, class.Flex)
	out = append(out, bRaw[:len(bRaw)-1]...) // drop b's delimiter sentinel
	out = varint.Append(out, class.Delimiter)
	return pattern.FromBytes(out), nil
}
