package report

import (
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/patterncore/patterncore/class"
	"github.com/patterncore/patterncore/model"
	"github.com/patterncore/patterncore/pattern"
)

// Comparison is one pattern's frequency profile across two models,
// following Rayson and Garside's (2000) log-likelihood methodology for
// comparing corpora: a high LogLikelihood marks a pattern whose relative
// frequency differs most between the two models.
type Comparison struct {
	Pattern       pattern.Pattern
	LogLikelihood float64
	OccA, OccB    int
	FreqA, FreqB  float64
}

// loglikelihood computes the G2 statistic for a pattern observed occA
// times in a corpus of totalA tokens and occB times in a corpus of
// totalB tokens.
func loglikelihood(occA, occB int, totalA, totalB uint64) float64 {
	o1, o2 := float64(occA), float64(occB)
	n1, n2 := float64(totalA), float64(totalB)
	if n1 == 0 || n2 == 0 {
		return 0
	}

	e1 := n1 * (o1 + o2) / (n1 + n2)
	e2 := n2 * (o1 + o2) / (n1 + n2)

	var ll float64
	if o1 > 0 && e1 > 0 {
		ll += o1 * math.Log(o1/e1)
	}
	if o2 > 0 && e2 > 0 {
		ll += o2 * math.Log(o2/e2)
	}
	return 2 * ll
}

// Compare returns every pattern present in a, b, or both (conjunctionOnly
// restricts to patterns present in both) with its log-likelihood
// divergence, sorted by descending log-likelihood. a and b must share the
// same class encoding, per the original tool's documented requirement —
// Compare does not itself verify this.
func Compare(a, b *model.Model, conjunctionOnly bool) ([]Comparison, error) {
	seen := map[string]pattern.Pattern{}
	if err := a.Iterate(func(p pattern.Pattern, _ int) (bool, error) {
		key, err := p.RawBytes()
		if err != nil {
			return false, err
		}
		seen[string(key)] = p
		return true, nil
	}); err != nil {
		return nil, err
	}
	if err := b.Iterate(func(p pattern.Pattern, _ int) (bool, error) {
		key, err := p.RawBytes()
		if err != nil {
			return false, err
		}
		if _, ok := seen[string(key)]; !ok {
			seen[string(key)] = p
		}
		return true, nil
	}); err != nil {
		return nil, err
	}

	totalA, totalB := a.TotalTokens(), b.TotalTokens()

	var out []Comparison
	for _, p := range seen {
		occA, _, err := a.Count(p)
		if err != nil {
			return nil, err
		}
		occB, _, err := b.Count(p)
		if err != nil {
			return nil, err
		}
		if conjunctionOnly && (occA == 0 || occB == 0) {
			continue
		}

		var freqA, freqB float64
		if totalA > 0 {
			freqA = float64(occA) / float64(totalA)
		}
		if totalB > 0 {
			freqB = float64(occB) / float64(totalB)
		}

		out = append(out, Comparison{
			Pattern:       p,
			LogLikelihood: loglikelihood(occA, occB, totalA, totalB),
			OccA:          occA,
			OccB:          occB,
			FreqA:         freqA,
			FreqB:         freqB,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].LogLikelihood > out[j].LogLikelihood
	})
	return out, nil
}

// RenderComparisons writes cs as a PATTERN/LOGLIKELIHOOD/OCC/FREQ table.
func RenderComparisons(w io.Writer, cs []Comparison, codec *class.Codec) error {
	tw := newTabWriter(w)
	if _, err := fmt.Fprintf(tw, "PATTERN\tLOGLIKELIHOOD\tOCC_A\tFREQ_A\tOCC_B\tFREQ_B\n"); err != nil {
		return err
	}
	for _, c := range cs {
		text, err := c.Pattern.Render(codec)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(tw, "%s\t%.4f\t%d\t%.6g\t%d\t%.6g\n", text, c.LogLikelihood, c.OccA, c.FreqA, c.OccB, c.FreqB); err != nil {
			return err
		}
	}
	return tw.Flush()
}
