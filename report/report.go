// Package report formats a trained model for human inspection: plain
// pattern listings, frequency histograms, summary info, reverse-index
// dumps, and model-to-model comparisons, following the teacher's
// plain-text, tabwriter-aligned reporting style.
package report

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/patterncore/patterncore/class"
	"github.com/patterncore/patterncore/model"
	"github.com/patterncore/patterncore/pattern"
)

func newTabWriter(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

// patternCount pairs a pattern with its occurrence count, the common
// unit every report below sorts and renders.
type patternCount struct {
	Pattern pattern.Pattern
	Count   int
}

func collect(m *model.Model) ([]patternCount, error) {
	var all []patternCount
	err := m.Iterate(func(p pattern.Pattern, count int) (bool, error) {
		all = append(all, patternCount{Pattern: p, Count: count})
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Count != all[j].Count {
			return all[i].Count > all[j].Count
		}
		return all[i].Pattern.N() < all[j].Pattern.N()
	})
	return all, nil
}

// Print writes one line per pattern: its rendered text, category, token
// count, and occurrence count. This is spec.md §6.2's `-P` flag.
func Print(w io.Writer, m *model.Model, codec *class.Codec) error {
	all, err := collect(m)
	if err != nil {
		return err
	}

	tw := newTabWriter(w)
	for _, pc := range all {
		text, err := pc.Pattern.Render(codec)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", text, pc.Pattern.Category(), pc.Pattern.N(), pc.Count)
	}
	return tw.Flush()
}

// Histogram writes an occurrence-count → distinct-pattern-count
// histogram, descending by count. This is spec.md §6.2's `-H` flag.
func Histogram(w io.Writer, m *model.Model) error {
	all, err := collect(m)
	if err != nil {
		return err
	}

	counts := map[int]int{}
	for _, pc := range all {
		counts[pc.Count]++
	}

	keys := make([]int, 0, len(counts))
	for c := range counts {
		keys = append(keys, c)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(keys)))

	tw := newTabWriter(w)
	fmt.Fprintf(tw, "occurrences\tdistinct patterns\n")
	for _, c := range keys {
		fmt.Fprintf(tw, "%d\t%d\n", c, counts[c])
	}
	return tw.Flush()
}

// Info writes summary statistics: total tokens, total types, distinct
// pattern count, and per-(category, size) coverage. This is spec.md
// §6.2's `-V` flag ("info").
func Info(w io.Writer, m *model.Model) error {
	tw := newTabWriter(w)
	fmt.Fprintf(tw, "total tokens\t%d\n", m.TotalTokens())
	fmt.Fprintf(tw, "total types\t%d\n", m.TotalTypes())
	fmt.Fprintf(tw, "distinct patterns\t%d\n", m.Size())
	if err := tw.Flush(); err != nil {
		return err
	}

	sizes := map[int]bool{}
	all, err := collect(m)
	if err != nil {
		return err
	}
	for _, pc := range all {
		sizes[pc.Pattern.N()] = true
	}
	sorted := make([]int, 0, len(sizes))
	for n := range sizes {
		sorted = append(sorted, n)
	}
	sort.Ints(sorted)

	tw = newTabWriter(w)
	fmt.Fprintf(tw, "\ncategory\tsize\toccurrences\tdistinct\tword types\tpositions\n")
	for _, n := range sorted {
		for _, cat := range []pattern.Category{pattern.CategoryNgram, pattern.CategorySkipgram, pattern.CategoryFlexgram} {
			cov, err := m.Coverage(cat, n)
			if err != nil {
				return err
			}
			if cov.DistinctPatterns == 0 {
				continue
			}
			fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\n", cat, n, cov.TotalOccurrences, cov.DistinctPatterns, cov.DistinctWordTypes, cov.DistinctPositions)
		}
	}
	return tw.Flush()
}

// Cooccurrences writes every pattern pair whose co-occurrence count
// meets or exceeds minCount, one pair per line. This is spec.md §6.2's
// `-C` flag; it requires an indexed model with a bound corpus.
func Cooccurrences(w io.Writer, m *model.Model, codec *class.Codec, minCount int) error {
	all, err := collect(m)
	if err != nil {
		return err
	}

	tw := newTabWriter(w)
	fmt.Fprintf(tw, "PATTERN_A\tPATTERN_B\tCOOC\n")
	for _, pc := range all {
		if pc.Pattern.Category() != pattern.CategoryNgram {
			continue
		}
		rels, err := m.Cooc(pc.Pattern, minCount)
		if err != nil {
			return err
		}
		for _, rel := range rels {
			a, err := pc.Pattern.Render(codec)
			if err != nil {
				return err
			}
			b, err := rel.Pattern.Render(codec)
			if err != nil {
				return err
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\n", a, b, rel.Count)
		}
	}
	return tw.Flush()
}

// NPMIAbove writes every pattern pair whose normalised pointwise mutual
// information meets or exceeds threshold, one pair per line. This is
// spec.md §6.2's `-Y` flag; it requires an indexed model with a bound
// corpus.
func NPMIAbove(w io.Writer, m *model.Model, codec *class.Codec, threshold float64) error {
	all, err := collect(m)
	if err != nil {
		return err
	}
	total := int(m.TotalTokens())

	tw := newTabWriter(w)
	fmt.Fprintf(tw, "PATTERN_A\tPATTERN_B\tNPMI\n")
	for _, pc := range all {
		if pc.Pattern.Category() != pattern.CategoryNgram {
			continue
		}
		rels, err := m.Cooc(pc.Pattern, 1)
		if err != nil {
			return err
		}
		for _, rel := range rels {
			countB, _, err := m.Count(rel.Pattern)
			if err != nil {
				return err
			}
			npmi := model.NPMI(pc.Count, countB, rel.Count, total)
			if npmi < threshold {
				continue
			}
			a, err := pc.Pattern.Render(codec)
			if err != nil {
				return err
			}
			b, err := rel.Pattern.Render(codec)
			if err != nil {
				return err
			}
			fmt.Fprintf(tw, "%s\t%s\t%.4f\n", a, b, npmi)
		}
	}
	return tw.Flush()
}

// ReverseIndex writes every pattern's recorded occurrences as
// (sentence, token) pairs. It fails with the model's own ErrNotLoaded
// if m is unindexed. This is spec.md §6.2's `-Z` flag.
func ReverseIndex(w io.Writer, m *model.Model, codec *class.Codec) error {
	all, err := collect(m)
	if err != nil {
		return err
	}

	tw := newTabWriter(w)
	for _, pc := range all {
		text, err := pc.Pattern.Render(codec)
		if err != nil {
			return err
		}
		occ, _, err := m.Occurrences(pc.Pattern)
		if err != nil {
			return err
		}
		for _, ref := range occ {
			fmt.Fprintf(tw, "%s\t%d\t%d\n", text, ref.Sentence, ref.Token)
		}
	}
	return tw.Flush()
}
