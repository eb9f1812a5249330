package deltaidx

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	refs := []IndexReference{
		{Sentence: 1, Token: 0},
		{Sentence: 1, Token: 5},
		{Sentence: 3, Token: 0},
		{Sentence: 1000, Token: 42},
		{Sentence: 1000, Token: 43},
	}

	data := Encode(nil, refs)
	got, consumed, ok := Decode(data, len(refs))

	require.True(t, ok)
	require.Equal(t, len(data), consumed)
	require.Equal(t, refs, got)
}

func TestEncodeDecode_Empty(t *testing.T) {
	data := Encode(nil, nil)
	require.Empty(t, data)

	got, consumed, ok := Decode(data, 0)
	require.True(t, ok)
	require.Equal(t, 0, consumed)
	require.Empty(t, got)
}

func TestDecode_Truncated(t *testing.T) {
	refs := []IndexReference{{Sentence: 5, Token: 2}, {Sentence: 6, Token: 0}}
	data := Encode(nil, refs)

	_, _, ok := Decode(data[:len(data)-1], len(refs))
	require.False(t, ok)
}

func TestEncodedSize_MatchesEncode(t *testing.T) {
	refs := []IndexReference{
		{Sentence: 0, Token: 0},
		{Sentence: 2, Token: 7},
		{Sentence: 200000, Token: 65535},
	}

	require.Equal(t, len(Encode(nil, refs)), EncodedSize(refs))
}

func TestIndexReference_Less(t *testing.T) {
	a := IndexReference{Sentence: 1, Token: 5}
	b := IndexReference{Sentence: 1, Token: 6}
	c := IndexReference{Sentence: 2, Token: 0}

	require.True(t, a.Less(b))
	require.False(t, b.Less(a))
	require.True(t, b.Less(c))
}
