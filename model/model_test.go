package model

import (
	"bytes"
	"strings"
	"testing"

	"github.com/patterncore/patterncore/class"
	"github.com/patterncore/patterncore/corpus"
	"github.com/patterncore/patterncore/errs"
	"github.com/patterncore/patterncore/internal/logx"
	"github.com/patterncore/patterncore/pattern"
	"github.com/stretchr/testify/require"
)

func buildCodec(t *testing.T, text string) *class.Codec {
	t.Helper()
	b := class.NewBuilder()
	require.NoError(t, b.ProcessCorpus(strings.NewReader(text)))
	c, err := b.Build()
	require.NoError(t, err)
	return c
}

func buildCorpus(t *testing.T, codec *class.Codec, lines ...string) *corpus.IndexedCorpus {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, buf.WriteByte(corpus.MagicByte1))
	require.NoError(t, buf.WriteByte(corpus.MagicByte2))
	for _, line := range lines {
		data, err := codec.Encode(line, class.EncodeOptions{})
		require.NoError(t, err)
		buf.Write(data)
	}
	c, err := corpus.Load(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	return c
}

func mustRender(t *testing.T, codec *class.Codec, p pattern.Pattern) string {
	t.Helper()
	s, err := p.Render(codec)
	require.NoError(t, err)
	return s
}

const hamletLines = "to be or not to be\nthat is the question\nto be or not to be that is the question\n"

func TestTrain_InvalidOptionsRejected(t *testing.T) {
	codec := buildCodec(t, hamletLines)
	c := buildCorpus(t, codec, "to be or not to be")

	_, err := Train(c, WithMinTokens(0))
	require.ErrorIs(t, err, errs.ErrInvalidArgument)

	_, err = Train(c, WithLengthRange(0, 5))
	require.ErrorIs(t, err, errs.ErrInvalidArgument)

	_, err = Train(c, WithLengthRange(5, 1))
	require.ErrorIs(t, err, errs.ErrInvalidArgument)

	_, err = Train(c, WithMinTokens(1), WithMaxSkips(-1))
	require.ErrorIs(t, err, errs.ErrInvalidArgument)
}

func TestTrain_MultiPassBackoffPruning(t *testing.T) {
	codec := buildCodec(t, hamletLines)
	c := buildCorpus(t, codec, "to be or not to be", "that is the question")

	m, err := Train(c, WithMinTokens(2), WithLengthRange(1, 6))
	require.NoError(t, err)

	count, found, err := m.Count(mustNgram(t, codec, "to"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 2, count)

	count, found, err = m.Count(mustNgram(t, codec, "be"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 2, count)

	_, found, err = m.Count(mustNgram(t, codec, "question"))
	require.NoError(t, err)
	require.False(t, found, "below min_tokens should be pruned")

	count, found, err = m.Count(mustNgram(t, codec, "to be"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 2, count)
}

func TestTrain_SinglePassWithMinTokensOne(t *testing.T) {
	codec := buildCodec(t, hamletLines)
	c := buildCorpus(t, codec, "to be or not to be")

	m, err := Train(c, WithMinTokens(1), WithLengthRange(1, 3))
	require.NoError(t, err)

	count, found, err := m.Count(mustNgram(t, codec, "question"))
	require.NoError(t, err)
	require.False(t, found)

	count, found, err = m.Count(mustNgram(t, codec, "or not"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, 1, count)
}

func TestTrain_ConstraintModelRestrictsCandidates(t *testing.T) {
	codec := buildCodec(t, hamletLines)
	c := buildCorpus(t, codec, "to be or not to be", "that is the question")

	constraint := NewUnindexed()
	toBe, err := mustNgram(t, codec, "to be").ToOwned()
	require.NoError(t, err)
	require.NoError(t, constraint.unindexed.Insert(toBe, 1))

	m, err := Train(c, WithConstraint(constraint))
	require.NoError(t, err)

	_, found, err := m.Count(mustNgram(t, codec, "to be"))
	require.NoError(t, err)
	require.True(t, found)

	_, found, err = m.Count(mustNgram(t, codec, "or not"))
	require.NoError(t, err)
	require.False(t, found, "constraint excludes anything not already in the constraint model")
}

func TestTrain_IndexedSkipgramExtraction(t *testing.T) {
	codec := buildCodec(t, hamletLines)
	c := buildCorpus(t, codec,
		"to be or not to be",
		"to see or not to see",
		"to go or not to go",
	)

	m, err := Train(c, WithMinTokens(2), WithLengthRange(1, 5), WithIndexed(), WithSkipgrams(), WithMinSkipTypes(2), WithMaxSkips(1))
	require.NoError(t, err)
	require.True(t, m.IsIndexed())

	found := false
	err = m.Iterate(func(p pattern.Pattern, count int) (bool, error) {
		if p.Category() != pattern.CategorySkipgram {
			return true, nil
		}
		rendered := mustRender(t, codec, p)
		if rendered == "to {*} or not to {*}" {
			found = true
			require.Equal(t, 3, count)
		}
		return true, nil
	})
	require.NoError(t, err)
	require.True(t, found, "expected the to {*} or not to {*} skipgram to survive extraction")
}

func TestComputeFlexgramsFromSkipgrams(t *testing.T) {
	codec := buildCodec(t, hamletLines)
	c := buildCorpus(t, codec,
		"to be or not to be",
		"to see or not to see",
		"to go or not to go",
	)

	m, err := Train(c, WithMinTokens(2), WithLengthRange(1, 5), WithIndexed(), WithSkipgrams(), WithMinSkipTypes(2), WithMaxSkips(1))
	require.NoError(t, err)
	require.NoError(t, m.ComputeFlexgramsFromSkipgrams())

	found := false
	err = m.Iterate(func(p pattern.Pattern, _ int) (bool, error) {
		if p.Category() == pattern.CategoryFlexgram {
			rendered := mustRender(t, codec, p)
			if rendered == "to {**} or not to {**}" {
				found = true
			}
		}
		return true, nil
	})
	require.NoError(t, err)
	require.True(t, found)
}

func TestModel_Relations(t *testing.T) {
	codec := buildCodec(t, hamletLines)
	c := buildCorpus(t, codec, "to be or not to be", "that is the question")

	m, err := Train(c, WithMinTokens(1), WithLengthRange(1, 6), WithIndexed())
	require.NoError(t, err)
	m.BindCorpus(c)

	children, err := m.SubChildren(mustNgram(t, codec, "to be or"), 1)
	require.NoError(t, err)
	require.NotEmpty(t, children)

	right, err := m.RightNeighbours(mustNgram(t, codec, "to"), 1)
	require.NoError(t, err)
	require.NotEmpty(t, right)
}

func TestNPMI_NoCooccurrence(t *testing.T) {
	require.Equal(t, -1.0, NPMI(5, 5, 0, 100))
}

func TestTrain_LoggerReceivesProgressAndSummary(t *testing.T) {
	codec := buildCodec(t, hamletLines)
	c := buildCorpus(t, codec, "to be or not to be", "that is the question")

	var buf bytes.Buffer
	log := logx.New(&buf, logx.LevelDebug)

	m, err := Train(c, WithMinTokens(2), WithLengthRange(1, 5), WithLogger(log))
	require.NoError(t, err)
	require.NotNil(t, m)

	require.Contains(t, buf.String(), "n=1:")
	require.Contains(t, buf.String(), "training complete:")
}

// mustNgram builds an owning unigram/n-gram pattern for literal text by
// round-tripping it through the codec's sentence encoding (stripped of
// its own corpus framing), so tests can assert against model entries by
// their rendered surface form rather than hand-built byte streams.
func mustNgram(t *testing.T, codec *class.Codec, text string) pattern.Pattern {
	t.Helper()
	data, err := codec.Encode(text, class.EncodeOptions{})
	require.NoError(t, err)
	return pattern.FromBytes(data)
}
