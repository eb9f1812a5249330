package corpus

import (
	"bytes"
	"strings"
	"testing"

	"github.com/patterncore/patterncore/class"
	"github.com/patterncore/patterncore/internal/deltaidx"
	"github.com/patterncore/patterncore/pattern"
	"github.com/patterncore/patterncore/varint"
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

func encodeV2(t *testing.T, c *class.Codec, lines ...string) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, buf.WriteByte(MagicByte1))
	require.NoError(t, buf.WriteByte(MagicByte2))
	for _, line := range lines {
		data, err := c.Encode(line, class.EncodeOptions{})
		require.NoError(t, err)
		buf.Write(data)
	}
	return buf.Bytes()
}

func TestLoad_V2RoundTrip(t *testing.T) {
	c := buildCodec(t, "to be or not to be\nthat is the question\n")
	raw := encodeV2(t, c, "to be or not to be", "that is the question")

	corpus, err := Load(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Equal(t, 2, corpus.SentenceCount())

	n, err := corpus.SentenceLength(1)
	require.NoError(t, err)
	require.Equal(t, 6, n)

	n, err = corpus.SentenceLength(2)
	require.NoError(t, err)
	require.Equal(t, 4, n)
}

func TestLoad_V1Upgrade(t *testing.T) {
	c := buildCodec(t, "a b c\n")
	idA, _ := c.ID("a")
	idB, _ := c.ID("b")
	idC, _ := c.ID("c")

	var raw []byte
	appendV1Token := func(id uint32) {
		raw = append(raw, 1, byte(id))
	}
	appendV1Token(idA)
	appendV1Token(idB)
	appendV1Token(idC)
	raw = append(raw, 0) // sentence terminator

	corpus, err := Load(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Equal(t, 1, corpus.SentenceCount())

	n, err := corpus.SentenceLength(1)
	require.NoError(t, err)
	require.Equal(t, 3, n)

	sentence, err := corpus.GetSentence(1)
	require.NoError(t, err)
	render, err := sentence.Render(c)
	require.NoError(t, err)
	require.Equal(t, "a b c", render)
}

func TestLoad_V1SkipFlexBytes(t *testing.T) {
	var raw []byte
	raw = append(raw, 1, 128) // skip
	raw = append(raw, 1, 129) // flex
	raw = append(raw, 0)      // terminator

	corpus, err := Load(bytes.NewReader(raw))
	require.NoError(t, err)

	sentence, err := corpus.GetSentence(1)
	require.NoError(t, err)
	require.Equal(t, pattern.CategoryFlexgram, sentence.Category())
}

func TestGetSentence_GetPattern(t *testing.T) {
	c := buildCodec(t, "to be or not to be\n")
	raw := encodeV2(t, c, "to be or not to be")

	corpus, err := Load(bytes.NewReader(raw))
	require.NoError(t, err)

	sentence, err := corpus.GetSentence(1)
	require.NoError(t, err)
	rendered, err := sentence.Render(c)
	require.NoError(t, err)
	require.Equal(t, "to be or not to be", rendered)

	p, err := corpus.GetPattern(deltaidx.IndexReference{Sentence: 1, Token: 1}, 2)
	require.NoError(t, err)
	rendered, err = p.Render(c)
	require.NoError(t, err)
	require.Equal(t, "be or", rendered)
}

func TestGetSentence_NotFound(t *testing.T) {
	c := buildCodec(t, "a b\n")
	raw := encodeV2(t, c, "a b")

	corpus, err := Load(bytes.NewReader(raw))
	require.NoError(t, err)

	_, err = corpus.GetSentence(5)
	require.Error(t, err)

	_, err = corpus.GetPattern(deltaidx.IndexReference{Sentence: 1, Token: 1}, 5)
	require.Error(t, err)
}

func TestFindPattern_Ngram(t *testing.T) {
	c := buildCodec(t, "to be or not to be\n")
	raw := encodeV2(t, c, "to be or not to be")

	corpus, err := Load(bytes.NewReader(raw))
	require.NoError(t, err)

	template, err := c.Encode("be or", class.EncodeOptions{})
	require.NoError(t, err)
	tp := pattern.FromBytes(template)

	m, err := corpus.FindPattern(deltaidx.IndexReference{Sentence: 1, Token: 1}, tp, pattern.CategoryNgram)
	require.NoError(t, err)
	rendered, err := m.Render(c)
	require.NoError(t, err)
	require.Equal(t, "be or", rendered)

	_, err = corpus.FindPattern(deltaidx.IndexReference{Sentence: 1, Token: 0}, tp, pattern.CategoryNgram)
	require.Error(t, err)
}

func TestFindPattern_Skipgram(t *testing.T) {
	c := buildCodec(t, "to be or not to be\n")
	raw := encodeV2(t, c, "to be or not to be")

	corpus, err := Load(bytes.NewReader(raw))
	require.NoError(t, err)

	full, err := c.Encode("to be or", class.EncodeOptions{})
	require.NoError(t, err)
	template, err := pattern.FromBytes(full).AddSkip(1, 1)
	require.NoError(t, err)

	m, err := corpus.FindPattern(deltaidx.IndexReference{Sentence: 1, Token: 0}, template, pattern.CategorySkipgram)
	require.NoError(t, err)
	require.Equal(t, pattern.CategorySkipgram, m.Category())
	rendered, err := m.Render(c)
	require.NoError(t, err)
	require.Equal(t, "to {*} or", rendered)
}

func TestFindPattern_SkipgramPromotedToFlexgram(t *testing.T) {
	c := buildCodec(t, "to be or not to be\n")
	raw := encodeV2(t, c, "to be or not to be")

	corpus, err := Load(bytes.NewReader(raw))
	require.NoError(t, err)

	full, err := c.Encode("to be or", class.EncodeOptions{})
	require.NoError(t, err)
	template, err := pattern.FromBytes(full).AddSkip(1, 1)
	require.NoError(t, err)

	m, err := corpus.FindPattern(deltaidx.IndexReference{Sentence: 1, Token: 0}, template, pattern.CategoryFlexgram)
	require.NoError(t, err)
	require.Equal(t, pattern.CategoryFlexgram, m.Category())
}

func TestFindPattern_Flexgram(t *testing.T) {
	c := buildCodec(t, "to be or not to be\n")
	raw := encodeV2(t, c, "to be or not to be")

	corpus, err := Load(bytes.NewReader(raw))
	require.NoError(t, err)

	left, err := c.Encode("to", class.EncodeOptions{})
	require.NoError(t, err)
	right, err := c.Encode("to be", class.EncodeOptions{})
	require.NoError(t, err)
	var raw2 []byte
	raw2 = append(raw2, left[:len(left)-1]...)
	raw2 = varint.Append(raw2, class.Flex)
	raw2 = append(raw2, right[:len(right)-1]...)
	raw2 = varint.Append(raw2, class.Delimiter)
	template := pattern.FromBytes(raw2)
	require.Equal(t, pattern.CategoryFlexgram, template.Category())

	m, err := corpus.FindPattern(deltaidx.IndexReference{Sentence: 1, Token: 0}, template, pattern.CategoryFlexgram)
	require.NoError(t, err)
	rendered, err := m.Render(c)
	require.NoError(t, err)
	require.Equal(t, "to {**} to be", rendered)
}

func TestFindPatternAll_ScansEverySentence(t *testing.T) {
	c := buildCodec(t, "to be or not to be\nto be is the question\n")
	raw := encodeV2(t, c, "to be or not to be", "to be is the question")

	corpus, err := Load(bytes.NewReader(raw))
	require.NoError(t, err)

	template, err := c.Encode("to be", class.EncodeOptions{})
	require.NoError(t, err)
	tp := pattern.FromBytes(template)

	matches, err := corpus.FindPatternAll(tp, 0)
	require.NoError(t, err)
	require.Len(t, matches, 3)

	refs := make(map[deltaidx.IndexReference]bool)
	for _, m := range matches {
		refs[m.Ref] = true
	}
	require.True(t, refs[deltaidx.IndexReference{Sentence: 1, Token: 0}])
	require.True(t, refs[deltaidx.IndexReference{Sentence: 1, Token: 4}])
	require.True(t, refs[deltaidx.IndexReference{Sentence: 2, Token: 0}])
}

func TestFindPatternAll_SingleSentence(t *testing.T) {
	c := buildCodec(t, "to be or not to be\nto be is the question\n")
	raw := encodeV2(t, c, "to be or not to be", "to be is the question")

	corpus, err := Load(bytes.NewReader(raw))
	require.NoError(t, err)

	template, err := c.Encode("to be", class.EncodeOptions{})
	require.NoError(t, err)
	tp := pattern.FromBytes(template)

	matches, err := corpus.FindPatternAll(tp, 2)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, deltaidx.IndexReference{Sentence: 2, Token: 0}, matches[0].Ref)
}

func TestWriteEncoded_RoundTrip(t *testing.T) {
	c := buildCodec(t, "a b c\n")
	data, err := c.Encode("a b c", class.EncodeOptions{})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteEncoded(&buf, data))

	corpus, err := Load(&buf)
	require.NoError(t, err)
	require.Equal(t, 1, corpus.SentenceCount())
	require.Equal(t, data, corpus.Bytes())
}
