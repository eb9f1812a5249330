package model

import "github.com/patterncore/patterncore/pattern"

// CoverageKey identifies one (category, token length) coverage group.
type CoverageKey struct {
	Category pattern.Category
	Size     int
}

// Coverage summarises one (category, token length) group's footprint
// over the corpus: how many occurrences it accounts for, how many
// distinct patterns make up that group, how many distinct underlying
// word types appear across those patterns, and — for indexed models —
// how many distinct token positions they cover.
type Coverage struct {
	TotalOccurrences  int
	DistinctPatterns  int
	DistinctWordTypes int
	DistinctPositions int
}

// invalidateCoverage drops the cached coverage table, forcing the next
// Coverage call to recompute it. Every mutating operation on m calls
// this.
func (m *Model) invalidateCoverage() { m.coverage = nil }

// Coverage returns the coverage statistics for the (category, size)
// group, computing and caching the full table on first use after the
// last mutation.
func (m *Model) Coverage(category pattern.Category, size int) (Coverage, error) {
	if m.coverage == nil {
		if err := m.computeCoverage(); err != nil {
			return Coverage{}, err
		}
	}
	return m.coverage[CoverageKey{Category: category, Size: size}], nil
}

func (m *Model) computeCoverage() error {
	type builder struct {
		cov       Coverage
		wordTypes map[string]bool
		positions map[string]bool
	}
	groups := map[CoverageKey]*builder{}

	err := m.Iterate(func(p pattern.Pattern, count int) (bool, error) {
		key := CoverageKey{Category: p.Category(), Size: p.N()}
		g, ok := groups[key]
		if !ok {
			g = &builder{wordTypes: map[string]bool{}, positions: map[string]bool{}}
			groups[key] = g
		}
		g.cov.TotalOccurrences += count
		g.cov.DistinctPatterns++

		unigrams, err := p.Ngrams(1)
		if err != nil {
			return false, err
		}
		for _, w := range unigrams {
			raw, err := w.Pattern.RawBytes()
			if err != nil {
				return false, err
			}
			g.wordTypes[string(raw)] = true
		}

		if m.IsIndexed() {
			occ, _, err := m.Occurrences(p)
			if err != nil {
				return false, err
			}
			for _, ref := range occ {
				for i := 0; i < p.N(); i++ {
					g.positions[positionKey(ref.Sentence, int(ref.Token)+i)] = true
				}
			}
		}
		return true, nil
	})
	if err != nil {
		return err
	}

	table := make(map[CoverageKey]Coverage, len(groups))
	for key, g := range groups {
		g.cov.DistinctWordTypes = len(g.wordTypes)
		g.cov.DistinctPositions = len(g.positions)
		table[key] = g.cov
	}
	m.coverage = table
	return nil
}

func positionKey(sentence uint32, token int) string {
	buf := make([]byte, 0, 12)
	buf = appendUint32(buf, sentence)
	buf = append(buf, ':')
	buf = appendUint32(buf, uint32(token)) //nolint:gosec
	return string(buf)
}

func appendUint32(dst []byte, v uint32) []byte {
	if v == 0 {
		return append(dst, '0')
	}
	var tmp [10]byte
	i := len(tmp)
	for v > 0 {
		i--
		tmp[i] = byte('0' + v%10)
		v /= 10
	}
	return append(dst, tmp[i:]...)
}
