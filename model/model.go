// Package model implements the pattern model: a map from pattern to
// value (occurrence count or index list), its iterative training
// algorithm, pruning, coverage statistics, and corpus-backed relations.
// Exactly one of a model's two underlying stores is active at a time —
// unindexed models count occurrences, indexed models additionally
// remember where each occurrence is.
package model

import (
	"fmt"

	"github.com/patterncore/patterncore/corpus"
	"github.com/patterncore/patterncore/errs"
	"github.com/patterncore/patterncore/internal/deltaidx"
	"github.com/patterncore/patterncore/pattern"
	"github.com/patterncore/patterncore/store"
)

// Model is a map from owning pattern to either a plain occurrence count
// or a sorted list of occurrences, plus an optional backing indexed
// corpus used by skipgram extraction and relation queries.
type Model struct {
	unindexed *store.PatternMap[store.CountValue]
	indexed   *store.PatternMap[store.IndexValue]
	corpus    *corpus.IndexedCorpus

	totalTokens uint64
	totalTypes  uint64

	coverage map[CoverageKey]Coverage
}

// NewUnindexed creates an empty unindexed model.
func NewUnindexed() *Model {
	return &Model{unindexed: store.New[store.CountValue]()}
}

// NewIndexed creates an empty indexed model backed by c, used to
// resolve occurrence positions back to corpus bytes for skipgram
// extraction and relation queries.
func NewIndexed(c *corpus.IndexedCorpus) *Model {
	return &Model{indexed: store.New[store.IndexValue](), corpus: c}
}

// IsIndexed reports whether m records full occurrence positions rather
// than bare counts.
func (m *Model) IsIndexed() bool { return m.indexed != nil }

// Corpus returns the indexed corpus backing m, or nil if none is bound.
func (m *Model) Corpus() *corpus.IndexedCorpus { return m.corpus }

// BindCorpus attaches c as the corpus backing m's relation queries and
// skipgram extraction, without altering stored values.
func (m *Model) BindCorpus(c *corpus.IndexedCorpus) { m.corpus = c }

// UnindexedStore returns the underlying count-valued store, or nil if m
// is indexed. Intended for model-file readers/writers (package modelio)
// that need direct access to serialise or reconstruct m's values.
func (m *Model) UnindexedStore() *store.PatternMap[store.CountValue] { return m.unindexed }

// IndexedStore returns the underlying occurrence-valued store, or nil if
// m is unindexed. Intended for model-file readers/writers.
func (m *Model) IndexedStore() *store.PatternMap[store.IndexValue] { return m.indexed }

// FromUnindexedStore builds an unindexed Model directly from a
// previously populated count store, used by modelio when reconstructing
// a model from its on-disk form.
func FromUnindexedStore(s *store.PatternMap[store.CountValue], totalTokens, totalTypes uint64) *Model {
	return &Model{unindexed: s, totalTokens: totalTokens, totalTypes: totalTypes}
}

// FromIndexedStore builds an indexed Model directly from a previously
// populated occurrence store and optional backing corpus, used by
// modelio when reconstructing a model from its on-disk form.
func FromIndexedStore(s *store.PatternMap[store.IndexValue], c *corpus.IndexedCorpus, totalTokens, totalTypes uint64) *Model {
	return &Model{indexed: s, corpus: c, totalTokens: totalTokens, totalTypes: totalTypes}
}

// Size returns the number of distinct patterns stored.
func (m *Model) Size() int {
	if m.IsIndexed() {
		return m.indexed.Size()
	}
	return m.unindexed.Size()
}

// TotalTokens returns the number of tokens in the corpus m was trained
// against.
func (m *Model) TotalTokens() uint64 { return m.totalTokens }

// TotalTypes returns the number of distinct unigram classes in the
// corpus m was trained against.
func (m *Model) TotalTypes() uint64 { return m.totalTypes }

// Count returns p's occurrence count, regardless of whether m is
// indexed.
func (m *Model) Count(p pattern.Pattern) (int, bool, error) {
	if m.IsIndexed() {
		v, ok, err := m.indexed.Get(p)
		if err != nil || !ok {
			return 0, ok, err
		}
		return v.Count(), true, nil
	}
	v, ok, err := m.unindexed.Get(p)
	if err != nil || !ok {
		return 0, ok, err
	}
	return v.Count(), true, nil
}

// Occurrences returns p's recorded occurrence positions. It fails with
// ErrNotLoaded if m is unindexed.
func (m *Model) Occurrences(p pattern.Pattern) (store.IndexValue, bool, error) {
	if !m.IsIndexed() {
		return nil, false, fmt.Errorf("model: occurrences: %w", errs.ErrNotLoaded)
	}
	return m.indexed.Get(p)
}

// Contains reports whether p is present in m.
func (m *Model) Contains(p pattern.Pattern) (bool, error) {
	if m.IsIndexed() {
		return m.indexed.Contains(p)
	}
	return m.unindexed.Contains(p)
}

// Iterate calls fn for every (pattern, count) pair stored in m, in
// unspecified order.
func (m *Model) Iterate(fn func(p pattern.Pattern, count int) (keepGoing bool, err error)) error {
	if m.IsIndexed() {
		return m.indexed.Iterate(func(p pattern.Pattern, v store.IndexValue) (bool, error) {
			return fn(p, v.Count())
		})
	}
	return m.unindexed.Iterate(func(p pattern.Pattern, v store.CountValue) (bool, error) {
		return fn(p, v.Count())
	})
}

// record bumps p's occurrence count (unindexed) or appends ref to its
// occurrence list (indexed).
func (m *Model) record(p pattern.Pattern, ref deltaidx.IndexReference) error {
	m.invalidateCoverage()
	if m.IsIndexed() {
		existing, _, err := m.indexed.Get(p)
		if err != nil {
			return err
		}
		return m.indexed.Insert(p, append(existing, ref))
	}
	existing, _, err := m.unindexed.Get(p)
	if err != nil {
		return err
	}
	return m.unindexed.Insert(p, existing+1)
}

// erase removes p from m.
func (m *Model) erase(p pattern.Pattern) error {
	m.invalidateCoverage()
	if m.IsIndexed() {
		_, err := m.indexed.Erase(p)
		return err
	}
	_, err := m.unindexed.Erase(p)
	return err
}
