package model

import (
	"bytes"
	"fmt"
	"math"
	"sort"

	"github.com/patterncore/patterncore/errs"
	"github.com/patterncore/patterncore/internal/deltaidx"
	"github.com/patterncore/patterncore/pattern"
)

// Relation pairs a related pattern with how many times the relation
// held, as returned by the Model relation queries below.
type Relation struct {
	Pattern pattern.Pattern
	Count   int
}

// requireIndexed fails unless m is indexed and has a bound corpus, the
// two things every relation query needs to resolve occurrence
// positions back to surrounding context.
func (m *Model) requireIndexed() error {
	if !m.IsIndexed() {
		return fmt.Errorf("model: relation: requires an indexed model: %w", errs.ErrNotLoaded)
	}
	if m.corpus == nil {
		return fmt.Errorf("model: relation: requires a bound corpus: %w", errs.ErrNotLoaded)
	}
	return nil
}

// toRelations filters counts by minOccurrence and sorts the survivors
// by descending count, then ascending byte order, for a stable result.
func toRelations(counts map[string]int, patterns map[string]pattern.Pattern, minOccurrence int) []Relation {
	rel := make([]Relation, 0, len(counts))
	for key, c := range counts {
		if c < minOccurrence {
			continue
		}
		rel = append(rel, Relation{Pattern: patterns[key], Count: c})
	}
	sort.Slice(rel, func(i, j int) bool {
		if rel[i].Count != rel[j].Count {
			return rel[i].Count > rel[j].Count
		}
		ai, _ := rel[i].Pattern.RawBytes()
		aj, _ := rel[j].Pattern.RawBytes()
		return bytes.Compare(ai, aj) < 0
	})
	return rel
}

// SubChildren returns every n-gram in the model that occurs, as a
// contiguous byte sequence, inside some occurrence of p.
func (m *Model) SubChildren(p pattern.Pattern, minOccurrence int) ([]Relation, error) {
	if err := m.requireIndexed(); err != nil {
		return nil, err
	}
	occ, found, err := m.Occurrences(p)
	if err != nil || !found {
		return nil, err
	}

	counts := map[string]int{}
	patterns := map[string]pattern.Pattern{}
	for _, ref := range occ {
		full, err := m.corpus.GetPattern(ref, p.N())
		if err != nil {
			continue
		}
		err = m.Iterate(func(q pattern.Pattern, _ int) (bool, error) {
			if q.Category() != pattern.CategoryNgram || q.N() >= p.N() {
				return true, nil
			}
			ok, err := full.Contains(q)
			if err != nil {
				return false, err
			}
			if ok {
				key, err := q.RawBytes()
				if err != nil {
					return false, err
				}
				counts[string(key)]++
				patterns[string(key)] = q
			}
			return true, nil
		})
		if err != nil {
			return nil, err
		}
	}
	return toRelations(counts, patterns, minOccurrence), nil
}

// SubParents returns every n-gram in the model, longer than p, that
// contains p's byte sequence, weighted by that parent's own total
// occurrence count.
func (m *Model) SubParents(p pattern.Pattern, minOccurrence int) ([]Relation, error) {
	if err := m.requireIndexed(); err != nil {
		return nil, err
	}

	counts := map[string]int{}
	patterns := map[string]pattern.Pattern{}
	err := m.Iterate(func(q pattern.Pattern, count int) (bool, error) {
		if q.Category() != pattern.CategoryNgram || q.N() <= p.N() {
			return true, nil
		}
		ok, err := q.Contains(p)
		if err != nil {
			return false, err
		}
		if ok {
			key, err := q.RawBytes()
			if err != nil {
				return false, err
			}
			counts[string(key)] = count
			patterns[string(key)] = q
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return toRelations(counts, patterns, minOccurrence), nil
}

// LeftNeighbours and RightNeighbours return the single-token unigrams
// immediately preceding, respectively following, each occurrence of p.
func (m *Model) LeftNeighbours(p pattern.Pattern, minOccurrence int) ([]Relation, error) {
	return m.neighbours(p, -1, minOccurrence)
}
func (m *Model) RightNeighbours(p pattern.Pattern, minOccurrence int) ([]Relation, error) {
	return m.neighbours(p, 1, minOccurrence)
}

func (m *Model) neighbours(p pattern.Pattern, direction, minOccurrence int) ([]Relation, error) {
	if err := m.requireIndexed(); err != nil {
		return nil, err
	}
	occ, found, err := m.Occurrences(p)
	if err != nil || !found {
		return nil, err
	}

	counts := map[string]int{}
	patterns := map[string]pattern.Pattern{}
	for _, ref := range occ {
		pos := int(ref.Token)
		if direction < 0 {
			pos--
		} else {
			pos += p.N()
		}
		if pos < 0 {
			continue
		}
		neighbour, err := m.corpus.GetPattern(deltaidx.IndexReference{Sentence: ref.Sentence, Token: uint16(pos)}, 1) //nolint:gosec
		if err != nil {
			continue
		}
		key, err := neighbour.RawBytes()
		if err != nil {
			return nil, err
		}
		counts[string(key)]++
		patterns[string(key)] = pattern.FromBytes(key)
	}
	return toRelations(counts, patterns, minOccurrence), nil
}

// LeftCooc, RightCooc and Cooc return non-overlapping model n-grams that
// share a sentence with some occurrence of p, restricted to the left,
// to the right, or either side respectively. Each co-occurrence counts
// at most once per occurrence of p.
func (m *Model) LeftCooc(p pattern.Pattern, minOccurrence int) ([]Relation, error) {
	return m.cooc(p, -1, minOccurrence)
}
func (m *Model) RightCooc(p pattern.Pattern, minOccurrence int) ([]Relation, error) {
	return m.cooc(p, 1, minOccurrence)
}
func (m *Model) Cooc(p pattern.Pattern, minOccurrence int) ([]Relation, error) {
	return m.cooc(p, 0, minOccurrence)
}

func (m *Model) cooc(p pattern.Pattern, direction, minOccurrence int) ([]Relation, error) {
	if err := m.requireIndexed(); err != nil {
		return nil, err
	}
	occ, found, err := m.Occurrences(p)
	if err != nil || !found {
		return nil, err
	}

	counts := map[string]int{}
	patterns := map[string]pattern.Pattern{}

	for _, ref := range occ {
		sentence, err := m.corpus.GetSentence(int(ref.Sentence))
		if err != nil {
			continue
		}
		start, end := int(ref.Token), int(ref.Token)+p.N()
		seen := map[string]bool{}

		err = m.Iterate(func(q pattern.Pattern, _ int) (bool, error) {
			if q.Category() != pattern.CategoryNgram {
				return true, nil
			}
			eq, err := q.Equal(p)
			if err != nil {
				return false, err
			}
			if eq {
				return true, nil
			}

			positions, err := sentenceMatches(sentence, q)
			if err != nil {
				return false, err
			}
			for _, qStart := range positions {
				qEnd := qStart + q.N()
				if qStart < end && qEnd > start {
					continue // overlapping occurrence, not a co-occurrence
				}
				switch {
				case direction < 0 && qEnd > start:
					continue
				case direction > 0 && qStart < end:
					continue
				}
				key, err := q.RawBytes()
				if err != nil {
					return false, err
				}
				if seen[string(key)] {
					continue
				}
				seen[string(key)] = true
				counts[string(key)]++
				patterns[string(key)] = q
			}
			return true, nil
		})
		if err != nil {
			return nil, err
		}
	}
	return toRelations(counts, patterns, minOccurrence), nil
}

// sentenceMatches returns every token offset in sentence where q occurs
// verbatim.
func sentenceMatches(sentence, q pattern.Pattern) ([]int, error) {
	n := q.N()
	total := sentence.N()
	var positions []int
	for pos := 0; pos+n <= total; pos++ {
		cand, err := sentence.Slice(pos, n)
		if err != nil {
			return nil, err
		}
		eq, err := cand.Equal(q)
		if err != nil {
			return nil, err
		}
		if eq {
			positions = append(positions, pos)
		}
	}
	return positions, nil
}

// Templates returns every skipgram or flexgram in the model, of p's own
// length, that p is an instance of.
func (m *Model) Templates(p pattern.Pattern, minOccurrence int) ([]Relation, error) {
	counts := map[string]int{}
	patterns := map[string]pattern.Pattern{}
	err := m.Iterate(func(q pattern.Pattern, count int) (bool, error) {
		if q.Category() == pattern.CategoryNgram || q.N() != p.N() {
			return true, nil
		}
		ok, err := pattern.InstanceOf(p, q)
		if err != nil {
			return false, err
		}
		if ok {
			key, err := q.RawBytes()
			if err != nil {
				return false, err
			}
			counts[string(key)] = count
			patterns[string(key)] = q
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return toRelations(counts, patterns, minOccurrence), nil
}

// Instances returns every n-gram in the model, of p's own length, that
// is an instance of skipgram/flexgram template p.
func (m *Model) Instances(p pattern.Pattern, minOccurrence int) ([]Relation, error) {
	counts := map[string]int{}
	patterns := map[string]pattern.Pattern{}
	err := m.Iterate(func(q pattern.Pattern, count int) (bool, error) {
		if q.Category() != pattern.CategoryNgram || q.N() != p.N() {
			return true, nil
		}
		ok, err := pattern.InstanceOf(q, p)
		if err != nil {
			return false, err
		}
		if ok {
			key, err := q.RawBytes()
			if err != nil {
				return false, err
			}
			counts[string(key)] = count
			patterns[string(key)] = q
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return toRelations(counts, patterns, minOccurrence), nil
}

// SkipContent returns, for skipgram p, the distinct gap-filling patterns
// observed across its occurrences, each weighted by how many
// occurrences it fills.
func (m *Model) SkipContent(p pattern.Pattern, minOccurrence int) ([]Relation, error) {
	if err := m.requireIndexed(); err != nil {
		return nil, err
	}
	occ, found, err := m.Occurrences(p)
	if err != nil || !found {
		return nil, err
	}

	counts := map[string]int{}
	patterns := map[string]pattern.Pattern{}
	for _, ref := range occ {
		full, err := m.corpus.GetPattern(ref, p.N())
		if err != nil {
			continue
		}
		content, err := pattern.ExtractSkipContent(p, full)
		if err != nil {
			continue
		}
		key, err := content.RawBytes()
		if err != nil {
			return nil, err
		}
		counts[string(key)]++
		patterns[string(key)] = content
	}
	return toRelations(counts, patterns, minOccurrence), nil
}

// NPMI computes normalised pointwise mutual information between two
// patterns with occurrence counts countA and countB, co-occurring joint
// times out of total token positions: log(joint/(countA*countB)) /
// -log(joint/total). Returns -1 for a pair that never co-occurs.
func NPMI(countA, countB, joint, total int) float64 {
	if joint <= 0 || countA <= 0 || countB <= 0 || total <= 0 {
		return -1
	}
	num := math.Log(float64(joint) / (float64(countA) * float64(countB)))
	denom := -math.Log(float64(joint) / float64(total))
	if denom == 0 {
		return 0
	}
	return num / denom
}
