package model

import (
	"fmt"

	"github.com/patterncore/patterncore/corpus"
	"github.com/patterncore/patterncore/errs"
	"github.com/patterncore/patterncore/internal/deltaidx"
	"github.com/patterncore/patterncore/internal/logx"
	"github.com/patterncore/patterncore/internal/options"
	"github.com/patterncore/patterncore/pattern"
	"github.com/patterncore/patterncore/store"
	"github.com/patterncore/patterncore/varint"
)

// trainConfig holds Train's assembled options.
type trainConfig struct {
	minTokens          int
	minTokensUnigrams  int
	minTokensSkipgrams int
	minLength          int
	maxLength          int
	maxBackoffLength   int
	onePerLine         bool

	doSkipgrams           bool
	doSkipgramsExhaustive bool
	minSkipTypes          int
	maxSkips              int

	pruneNonSubsumed int

	removeNgrams    bool
	removeSkipgrams bool
	removeFlexgrams bool
	removeIndex     bool

	indexed    bool
	constraint *Model
	filter     *store.PatternSet

	logger *logx.Logger
}

// TrainOption configures Train.
type TrainOption = options.Option[*trainConfig]

func defaultTrainConfig() *trainConfig {
	return &trainConfig{
		minTokens:        2,
		minLength:        1,
		maxLength:        100,
		maxBackoffLength: 100,
		minSkipTypes:     2,
		maxSkips:         3,
	}
}

// WithMinTokens sets the minimum occurrence count an n-gram must reach
// to be retained, the primary pruning threshold of the training pass.
// min must be at least 1, per spec's min_tokens(≥1, default 2).
func WithMinTokens(min int) TrainOption {
	return options.New[*trainConfig](func(c *trainConfig) error {
		if min < 1 {
			return fmt.Errorf("model: min_tokens must be >= 1, got %d: %w", min, errs.ErrInvalidArgument)
		}
		c.minTokens = min
		return nil
	})
}

// WithMinTokensUnigrams sets a separate, typically stricter, occurrence
// threshold that every constituent unigram of a higher-order n-gram must
// already satisfy for that n-gram to be admitted.
func WithMinTokensUnigrams(min int) TrainOption {
	return options.NoError[*trainConfig](func(c *trainConfig) { c.minTokensUnigrams = min })
}

// WithMinTokensSkipgrams sets the occurrence threshold applied to
// extracted skipgrams; defaults to WithMinTokens's value when unset.
func WithMinTokensSkipgrams(min int) TrainOption {
	return options.NoError[*trainConfig](func(c *trainConfig) { c.minTokensSkipgrams = min })
}

// WithLengthRange bounds the n-gram lengths trained, inclusive. min must
// be at least 1 and must not exceed max.
func WithLengthRange(min, max int) TrainOption {
	return options.New[*trainConfig](func(c *trainConfig) error {
		if min < 1 || max < min {
			return fmt.Errorf("model: invalid length range [%d, %d]: %w", min, max, errs.ErrInvalidArgument)
		}
		c.minLength, c.maxLength = min, max
		return nil
	})
}

// WithMaxBackoffLength caps the n at which back-off validation (every
// sub-(n-1)-gram must already be present) is enforced; beyond the cap,
// candidates of that order are admitted without a back-off check.
func WithMaxBackoffLength(max int) TrainOption {
	return options.NoError[*trainConfig](func(c *trainConfig) { c.maxBackoffLength = max })
}

// WithOnePerLine trains a single whole-sentence pattern per corpus line
// instead of enumerating every sub-n-gram.
func WithOnePerLine() TrainOption {
	return options.NoError[*trainConfig](func(c *trainConfig) { c.onePerLine = true })
}

// WithSkipgrams enables indexed skipgram extraction after the n-gram
// pass. It requires an indexed model.
func WithSkipgrams() TrainOption {
	return options.NoError[*trainConfig](func(c *trainConfig) { c.doSkipgrams = true })
}

// WithSkipgramsExhaustive additionally extracts every valid skipgram
// from every admitted n-gram inline during the n-gram pass, rather than
// relying solely on the indexed post-pass.
func WithSkipgramsExhaustive() TrainOption {
	return options.NoError[*trainConfig](func(c *trainConfig) { c.doSkipgramsExhaustive = true })
}

// WithMinSkipTypes sets the minimum number of distinct filler contents a
// skipgram's gaps must exhibit across the corpus to be retained.
func WithMinSkipTypes(min int) TrainOption {
	return options.NoError[*trainConfig](func(c *trainConfig) { c.minSkipTypes = min })
}

// WithMaxSkips bounds the number of distinct gap runs a skipgram mask
// may contain; must be non-negative.
func WithMaxSkips(max int) TrainOption {
	return options.New[*trainConfig](func(c *trainConfig) error {
		if max < 0 {
			return fmt.Errorf("model: max_skips must be >= 0, got %d: %w", max, errs.ErrInvalidArgument)
		}
		c.maxSkips = max
		return nil
	})
}

// WithPruneNonSubsumed walks orders [from, 2] after training, dropping
// any (n-1)-gram that is not a sub-n-gram of some retained n-gram.
func WithPruneNonSubsumed(from int) TrainOption {
	return options.NoError[*trainConfig](func(c *trainConfig) { c.pruneNonSubsumed = from })
}

// WithRemoveNgrams, WithRemoveSkipgrams and WithRemoveFlexgrams drop the
// named category after training completes, for callers building a model
// restricted to the other categories.
func WithRemoveNgrams() TrainOption {
	return options.NoError[*trainConfig](func(c *trainConfig) { c.removeNgrams = true })
}
func WithRemoveSkipgrams() TrainOption {
	return options.NoError[*trainConfig](func(c *trainConfig) { c.removeSkipgrams = true })
}
func WithRemoveFlexgrams() TrainOption {
	return options.NoError[*trainConfig](func(c *trainConfig) { c.removeFlexgrams = true })
}

// WithRemoveIndex converts the trained model from indexed to unindexed
// after training, discarding occurrence positions in favour of counts.
func WithRemoveIndex() TrainOption {
	return options.NoError[*trainConfig](func(c *trainConfig) { c.removeIndex = true })
}

// WithIndexed requests an indexed model (occurrence positions retained).
// Implied by WithConstraint and by WithSkipgrams.
func WithIndexed() TrainOption {
	return options.NoError[*trainConfig](func(c *trainConfig) { c.indexed = true })
}

// WithConstraint restricts training to patterns already present in
// constraint, switching the algorithm to single-pass mode.
func WithConstraint(constraint *Model) TrainOption {
	return options.NoError[*trainConfig](func(c *trainConfig) { c.constraint = constraint })
}

// WithFilter restricts training to candidates matching filter's
// disjunctive sub-pattern rule, for candidates at or above min_length.
func WithFilter(filter *store.PatternSet) TrainOption {
	return options.NoError[*trainConfig](func(c *trainConfig) { c.filter = filter })
}

// WithLogger attaches a progress logger to the outer sentence/n-pass
// loop (spec.md §5's "progress-and-abort hook around the outer sentence
// loop"); in multi-pass mode Train emits one Debugf call per completed
// n-gram order, and in either mode one final Infof summary. Nil (the
// default) disables all logging.
func WithLogger(l *logx.Logger) TrainOption {
	return options.NoError[*trainConfig](func(c *trainConfig) { c.logger = l })
}

// Train builds a pattern model from c. When min_tokens is 1, WithOnePerLine
// is given, or a constraint model is supplied, training runs in a single
// pass over every n-gram length at once (back-off pruning does not apply);
// otherwise it runs iteratively from n=1 up to max_length, pruning each
// order below min_tokens before admitting the next.
func Train(c *corpus.IndexedCorpus, opts ...TrainOption) (*Model, error) {
	cfg := defaultTrainConfig()
	if err := options.Apply(cfg, opts...); err != nil {
		return nil, err
	}
	if cfg.minTokensSkipgrams == 0 {
		cfg.minTokensSkipgrams = cfg.minTokens
	}
	if cfg.doSkipgrams || cfg.doSkipgramsExhaustive || cfg.constraint != nil {
		cfg.indexed = true
	}

	var m *Model
	if cfg.indexed {
		m = NewIndexed(c)
	} else {
		m = NewUnindexed()
	}

	if err := countTotals(m, c); err != nil {
		return nil, err
	}

	singlePass := cfg.minTokens == 1 || cfg.onePerLine || cfg.constraint != nil
	if singlePass {
		if err := trainSinglePass(m, c, cfg); err != nil {
			return nil, err
		}
	} else {
		if err := trainMultiPass(m, c, cfg); err != nil {
			return nil, err
		}
	}

	if cfg.doSkipgrams {
		if err := extractIndexedSkipgrams(m, c, cfg); err != nil {
			return nil, err
		}
	}

	if cfg.pruneNonSubsumed > 0 {
		if err := pruneNonSubsumed(m, cfg.pruneNonSubsumed); err != nil {
			return nil, err
		}
	}
	if cfg.minLength > 1 {
		if err := dropBelowMinLength(m, cfg.minLength); err != nil {
			return nil, err
		}
	}
	if m.IsIndexed() {
		if err := sortIndexLists(m); err != nil {
			return nil, err
		}
	}
	if err := applyPostTrainFilters(m, cfg); err != nil {
		return nil, err
	}

	if cfg.logger != nil {
		cfg.logger.Infof("training complete: %d patterns, %d total tokens", m.Size(), m.totalTokens)
	}

	return m, nil
}

// countTotals scans c once to establish total_tokens (every token in the
// corpus) and total_types (distinct unigram classes), the two counters
// carried in a model file's header alongside its pattern store.
func countTotals(m *Model, c *corpus.IndexedCorpus) error {
	if c == nil {
		return nil
	}
	var total uint64
	types := map[uint32]bool{}

	for s := 1; s <= c.SentenceCount(); s++ {
		n, err := c.SentenceLength(s)
		if err != nil {
			return err
		}
		total += uint64(n)

		sentence, err := c.GetSentence(s)
		if err != nil {
			return err
		}
		unigrams, err := sentence.Ngrams(1)
		if err != nil {
			return err
		}
		for _, w := range unigrams {
			raw, err := w.Pattern.RawBytes()
			if err != nil {
				return err
			}
			cls, _, ok := varint.Decode(raw, 0)
			if ok {
				types[cls] = true
			}
		}
	}
	m.totalTokens = total
	m.totalTypes = uint64(len(types))
	return nil
}

// trainMultiPass enumerates n=1..max_length, pruning every order below
// min_tokens before admitting the next, so that a higher-order n-gram's
// back-off check always sees the final, pruned counts for its order.
func trainMultiPass(m *Model, c *corpus.IndexedCorpus, cfg *trainConfig) error {
	for n := 1; n <= cfg.maxLength; n++ {
		found := false
		for s := 1; s <= c.SentenceCount(); s++ {
			sentence, err := c.GetSentence(s)
			if err != nil {
				return err
			}
			total := sentence.N()
			for tok := 0; tok+n <= total; tok++ {
				found = true
				ngram, err := sentence.Slice(tok, n)
				if err != nil {
					return err
				}

				if n > 1 && cfg.minTokensUnigrams > cfg.minTokens {
					ok, err := unigramsAboveThreshold(m, ngram, cfg.minTokensUnigrams)
					if err != nil {
						return err
					}
					if !ok {
						continue
					}
				}

				if n > 1 {
					ok, err := backoffSatisfied(m, ngram, cfg.maxBackoffLength)
					if err != nil {
						return err
					}
					if !ok {
						continue
					}
				}

				if cfg.filter != nil {
					ok, err := passesFilter(cfg.filter, ngram, cfg.minLength)
					if err != nil {
						return err
					}
					if !ok {
						continue
					}
				}

				ref := deltaidx.IndexReference{Sentence: uint32(s), Token: uint16(tok)} //nolint:gosec
				if err := m.record(ngram, ref); err != nil {
					return err
				}

				if cfg.doSkipgramsExhaustive && n >= 3 {
					if err := exhaustiveSkipgramsAt(m, ngram, ref, cfg); err != nil {
						return err
					}
				}
			}
		}
		if !found {
			break
		}
		if err := pruneOrderBelow(m, n, cfg.minTokens); err != nil {
			return err
		}
		if cfg.logger != nil {
			cfg.logger.Debugf("n=%d: %d patterns retained after pruning", n, m.Size())
		}
	}
	return nil
}

// trainSinglePass enumerates every n-gram up to max_length in one sweep,
// admitting a candidate only if it is allowed by the constraint model
// (when supplied) and the filter; no back-off pruning is performed.
func trainSinglePass(m *Model, c *corpus.IndexedCorpus, cfg *trainConfig) error {
	for s := 1; s <= c.SentenceCount(); s++ {
		sentence, err := c.GetSentence(s)
		if err != nil {
			return err
		}
		total := sentence.N()

		if cfg.onePerLine {
			if err := recordIfAdmitted(m, sentence, deltaidx.IndexReference{Sentence: uint32(s), Token: 0}, cfg); err != nil { //nolint:gosec
				return err
			}
			continue
		}

		maxLen := cfg.maxLength
		if maxLen > total {
			maxLen = total
		}
		for n := 1; n <= maxLen; n++ {
			for tok := 0; tok+n <= total; tok++ {
				ngram, err := sentence.Slice(tok, n)
				if err != nil {
					return err
				}
				ref := deltaidx.IndexReference{Sentence: uint32(s), Token: uint16(tok)} //nolint:gosec
				if err := recordIfAdmitted(m, ngram, ref, cfg); err != nil {
					return err
				}
			}
		}
	}
	if cfg.minTokens > 1 {
		return pruneAllBelow(m, cfg.minTokens)
	}
	return nil
}

func recordIfAdmitted(m *Model, candidate pattern.Pattern, ref deltaidx.IndexReference, cfg *trainConfig) error {
	if cfg.constraint != nil {
		ok, err := cfg.constraint.Contains(candidate)
		if err != nil || !ok {
			return err
		}
	}
	if cfg.filter != nil {
		ok, err := passesFilter(cfg.filter, candidate, cfg.minLength)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
	return m.record(candidate, ref)
}

// unigramsAboveThreshold reports whether every constituent unigram of
// ngram already has a recorded count of at least threshold.
func unigramsAboveThreshold(m *Model, ngram pattern.Pattern, threshold int) (bool, error) {
	windows, err := ngram.Ngrams(1)
	if err != nil {
		return false, err
	}
	for _, w := range windows {
		count, found, err := m.Count(w.Pattern)
		if err != nil {
			return false, err
		}
		if !found || count < threshold {
			return false, nil
		}
	}
	return true, nil
}

// backoffSatisfied reports whether every sub-(n-1)-gram of ngram is
// already present in the model, the back-off requirement that gives the
// training pass its anti-monotone pruning guarantee. Patterns whose
// sub-patterns are longer than maxBackoffLength (n-1 > maxBackoffLength)
// skip the check entirely.
func backoffSatisfied(m *Model, ngram pattern.Pattern, maxBackoffLength int) (bool, error) {
	n := ngram.N()
	if n-1 > maxBackoffLength {
		return true, nil
	}
	subs, err := ngram.Ngrams(n - 1)
	if err != nil {
		return false, err
	}
	for _, s := range subs {
		_, found, err := m.Count(s.Pattern)
		if err != nil {
			return false, err
		}
		if !found {
			return false, nil
		}
	}
	return true, nil
}

// passesFilter implements the disjunctive filter rule: candidates
// shorter than minLength bypass filtering entirely; otherwise the
// candidate is retained if any of its sub-n-grams is a filter member, or
// if it is an instance_of some skipgram/flexgram filter member of equal
// length.
func passesFilter(filter *store.PatternSet, candidate pattern.Pattern, minLength int) (bool, error) {
	if candidate.N() < minLength {
		return true, nil
	}

	subs, err := candidate.SubNgrams(1, candidate.N())
	if err != nil {
		return false, err
	}
	for _, s := range subs {
		ok, err := filter.Contains(s.Pattern)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}

	var instance bool
	err = filter.Iterate(func(p pattern.Pattern) (bool, error) {
		if p.Category() == pattern.CategoryNgram || p.N() != candidate.N() {
			return true, nil
		}
		ok, err := pattern.InstanceOf(candidate, p)
		if err != nil {
			return false, err
		}
		if ok {
			instance = true
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		return false, err
	}
	return instance, nil
}

// pruneOrderBelow removes every order-n pattern whose recorded count is
// below minTokens.
func pruneOrderBelow(m *Model, n, minTokens int) error {
	var toErase []pattern.Pattern
	err := m.Iterate(func(p pattern.Pattern, count int) (bool, error) {
		if p.N() == n && count < minTokens {
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

// pruneAllBelow removes every pattern, of any order, whose recorded
// count is below minTokens.
func pruneAllBelow(m *Model, minTokens int) error {
	var toErase []pattern.Pattern
	err := m.Iterate(func(p pattern.Pattern, count int) (bool, error) {
		if count < minTokens {
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

// pruneNonSubsumed walks orders [from, 2], at each step dropping any
// (n-1)-gram that is not a sub-(n-1)-gram of some retained n-gram.
func pruneNonSubsumed(m *Model, from int) error {
	for n := from; n >= 2; n-- {
		retained := map[string]bool{}
		err := m.Iterate(func(p pattern.Pattern, _ int) (bool, error) {
			if p.Category() != pattern.CategoryNgram || p.N() != n {
				return true, nil
			}
			subs, err := p.Ngrams(n - 1)
			if err != nil {
				return false, err
			}
			for _, s := range subs {
				key, err := s.Pattern.RawBytes()
				if err != nil {
					return false, err
				}
				retained[string(key)] = true
			}
			return true, nil
		})
		if err != nil {
			return err
		}

		var toErase []pattern.Pattern
		err = m.Iterate(func(p pattern.Pattern, _ int) (bool, error) {
			if p.Category() != pattern.CategoryNgram || p.N() != n-1 {
				return true, nil
			}
			key, err := p.RawBytes()
			if err != nil {
				return false, err
			}
			if !retained[string(key)] {
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
	}
	return nil
}

// dropBelowMinLength removes every pattern shorter than minLength, once
// the model contains at least one skipgram or flexgram (an all-n-gram
// model is left alone, since min_length only disciplines the combined
// n-gram/skipgram output of a skipgram-capable training run).
func dropBelowMinLength(m *Model, minLength int) error {
	hasGaps := false
	err := m.Iterate(func(p pattern.Pattern, _ int) (bool, error) {
		if p.Category() != pattern.CategoryNgram {
			hasGaps = true
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		return err
	}
	if !hasGaps {
		return nil
	}

	var toErase []pattern.Pattern
	err = m.Iterate(func(p pattern.Pattern, _ int) (bool, error) {
		if p.N() < minLength {
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

// sortIndexLists sorts every stored occurrence list into canonical
// (sentence, token) order, the order a model file persists them in.
func sortIndexLists(m *Model) error {
	if !m.IsIndexed() {
		return nil
	}
	type update struct {
		p pattern.Pattern
		v store.IndexValue
	}
	var updates []update
	err := m.indexed.Iterate(func(p pattern.Pattern, v store.IndexValue) (bool, error) {
		sorted := append(store.IndexValue(nil), v...)
		sortRefs(sorted)
		updates = append(updates, update{p: p, v: sorted})
		return true, nil
	})
	if err != nil {
		return err
	}
	for _, u := range updates {
		if err := m.indexed.Insert(u.p, u.v); err != nil {
			return err
		}
	}
	return nil
}

// sortRefs sorts refs in place by the ordering IndexReference.Less
// defines (sentence, then token).
func sortRefs(refs store.IndexValue) {
	for i := 1; i < len(refs); i++ {
		for j := i; j > 0 && refs[j].Less(refs[j-1]); j-- {
			refs[j], refs[j-1] = refs[j-1], refs[j]
		}
	}
}

// applyPostTrainFilters drops whole categories and/or converts the
// model to unindexed form, per the corresponding training options.
func applyPostTrainFilters(m *Model, cfg *trainConfig) error {
	if cfg.removeNgrams || cfg.removeSkipgrams || cfg.removeFlexgrams {
		var toErase []pattern.Pattern
		err := m.Iterate(func(p pattern.Pattern, _ int) (bool, error) {
			switch p.Category() {
			case pattern.CategoryNgram:
				if cfg.removeNgrams {
					toErase = append(toErase, p)
				}
			case pattern.CategorySkipgram:
				if cfg.removeSkipgrams {
					toErase = append(toErase, p)
				}
			case pattern.CategoryFlexgram:
				if cfg.removeFlexgrams {
					toErase = append(toErase, p)
				}
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
	}

	if cfg.removeIndex && m.IsIndexed() {
		return convertToUnindexed(m)
	}
	return nil
}

func convertToUnindexed(m *Model) error {
	counts := store.New[store.CountValue]()
	err := m.indexed.Iterate(func(p pattern.Pattern, v store.IndexValue) (bool, error) {
		if err := counts.Insert(p, v.ToCount()); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return err
	}
	m.indexed = nil
	m.unindexed = counts
	m.invalidateCoverage()
	return nil
}
