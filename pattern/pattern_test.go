package pattern

import (
	"strings"
	"testing"

	"github.com/patterncore/patterncore/class"
	"github.com/patterncore/patterncore/errs"
	"github.com/patterncore/patterncore/varint"
	"github.com/stretchr/testify/require"
)

// Token classes used across these tests. Values are arbitrary but stay
// clear of the reserved range (< class.FirstAssignable).
const (
	clsTo  uint32 = 6
	clsBe  uint32 = 7
	clsOr  uint32 = 8
	clsNot uint32 = 9
)

// owning builds an owning pattern's byte stream: the given classes
// followed by the delimiter sentinel.
func owning(classes ...uint32) Pattern {
	var buf []byte
	for _, c := range classes {
		buf = varint.Append(buf, c)
	}
	buf = varint.Append(buf, class.Delimiter)
	return FromBytes(buf)
}

// rawTokens builds a bare byte span (no sentinel) suitable for a view.
func rawTokens(classes ...uint32) []byte {
	var buf []byte
	for _, c := range classes {
		buf = varint.Append(buf, c)
	}
	return buf
}

func buildTestCodec(t *testing.T) *class.Codec {
	t.Helper()
	b := class.NewBuilder()
	require.NoError(t, b.ProcessCorpus(strings.NewReader("to be or not to be\n")))
	c, err := b.Build()
	require.NoError(t, err)
	return c
}

func TestCategory_Owning(t *testing.T) {
	require.Equal(t, CategoryNgram, owning(clsTo, clsBe, clsOr).Category())
	require.Equal(t, CategorySkipgram, owning(clsTo, class.Skip, clsOr).Category())
	require.Equal(t, CategoryFlexgram, owning(clsTo, class.Flex, clsOr).Category())
}

func TestCategory_View(t *testing.T) {
	v := NewView(rawTokens(clsTo, clsBe, clsOr), 0)
	require.Equal(t, CategoryNgram, v.Category())

	v = NewView(rawTokens(clsTo, clsBe, clsOr), 0b010)
	require.Equal(t, CategorySkipgram, v.Category())

	v = NewView(rawTokens(clsTo, clsBe, clsOr), 0b010|flexFlag)
	require.Equal(t, CategoryFlexgram, v.Category())
}

func TestN_ByteSize(t *testing.T) {
	p := owning(clsTo, clsBe, clsOr)
	require.Equal(t, 3, p.N())
	require.Equal(t, 3, p.ByteSize()) // each class here is a single byte

	v := NewView(rawTokens(clsTo, clsBe), 0)
	require.Equal(t, 2, v.N())
	require.Equal(t, 2, v.ByteSize())
}

// TestEqual_OwningVsView reproduces the cross-representation equality
// scenario: an owning pattern "to {*} to be" must equal a view over corpus
// bytes "to be to be" with the second token masked as a gap, and the two
// must hash equal too.
func TestEqual_OwningVsView(t *testing.T) {
	pOwn := owning(clsTo, class.Skip, clsTo, clsBe)
	pView := NewView(rawTokens(clsTo, clsBe, clsTo, clsBe), 0b010)

	eq, err := Equal(pOwn, pView)
	require.NoError(t, err)
	require.True(t, eq)

	hOwn, err := pOwn.Hash()
	require.NoError(t, err)
	hView, err := pView.Hash()
	require.NoError(t, err)
	require.Equal(t, hOwn, hView)
}

func TestEqual_FlexCollapse(t *testing.T) {
	a := owning(clsTo, class.Flex, clsBe)
	b := owning(clsTo, class.Flex, class.Flex, clsBe) // consecutive flex collapses

	eq, err := Equal(a, b)
	require.NoError(t, err)
	require.True(t, eq)
}

func TestEqual_Inequal(t *testing.T) {
	a := owning(clsTo, clsBe)
	b := owning(clsTo, clsOr)

	eq, err := a.Equal(b)
	require.NoError(t, err)
	require.False(t, eq)
}

func TestSlice_Owning(t *testing.T) {
	p := owning(clsTo, clsBe, clsOr, clsNot)
	sub, err := p.Slice(1, 2)
	require.NoError(t, err)
	require.False(t, sub.IsView())
	require.Equal(t, 2, sub.N())

	eq, err := sub.Equal(owning(clsBe, clsOr))
	require.NoError(t, err)
	require.True(t, eq)
}

func TestSlice_View_InheritsMask(t *testing.T) {
	v := NewView(rawTokens(clsTo, clsBe, clsOr, clsNot), 0b0110) // tokens 1,2 are gaps
	sub, err := v.Slice(1, 2)
	require.NoError(t, err)
	require.True(t, sub.IsView())
	require.Equal(t, uint32(0b11), sub.Mask())
}

func TestSlice_OutOfRange(t *testing.T) {
	p := owning(clsTo, clsBe)
	_, err := p.Slice(1, 5)
	require.ErrorIs(t, err, errs.ErrOutOfRange)
}

func TestConcat(t *testing.T) {
	a := owning(clsTo, clsBe)
	b := owning(clsOr)

	got, err := Concat(a, b)
	require.NoError(t, err)

	want := owning(clsTo, clsBe, clsOr)
	eq, err := got.Equal(want)
	require.NoError(t, err)
	require.True(t, eq)
}

func TestConcat_RejectsViews(t *testing.T) {
	v := NewView(rawTokens(clsTo), 0)
	_, err := Concat(v)
	require.ErrorIs(t, err, errs.ErrInvalidArgument)
}

func TestAddContext(t *testing.T) {
	mid := owning(clsBe)
	got, err := mid.AddContext(owning(clsTo), owning(clsOr))
	require.NoError(t, err)

	eq, err := got.Equal(owning(clsTo, clsBe, clsOr))
	require.NoError(t, err)
	require.True(t, eq)
}

func TestContains(t *testing.T) {
	p := owning(clsTo, clsBe, clsOr, clsNot)
	q := owning(clsBe, clsOr)

	ok, err := p.Contains(q)
	require.NoError(t, err)
	require.True(t, ok)

	absent := owning(clsOr, clsBe)
	ok, err = p.Contains(absent)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestContains_RejectsNonNgram(t *testing.T) {
	p := owning(clsTo, class.Skip, clsOr)
	_, err := p.Contains(owning(clsTo))
	require.ErrorIs(t, err, errs.ErrInvalidArgument)
}

func TestNgrams(t *testing.T) {
	p := owning(clsTo, clsBe, clsOr, clsNot)
	windows, err := p.Ngrams(2)
	require.NoError(t, err)
	require.Len(t, windows, 3)
	require.Equal(t, 0, windows[0].TokenOffset)
	require.Equal(t, 2, windows[2].TokenOffset)

	eq, err := windows[0].Pattern.Equal(owning(clsTo, clsBe))
	require.NoError(t, err)
	require.True(t, eq)
}

func TestNgrams_PropagatesMask(t *testing.T) {
	v := NewView(rawTokens(clsTo, clsBe, clsOr, clsNot), 0b0100) // token 2 is a gap
	windows, err := v.Ngrams(3)
	require.NoError(t, err)
	require.Len(t, windows, 2)
	require.Equal(t, CategorySkipgram, windows[0].Pattern.Category())
}

func TestSubNgrams(t *testing.T) {
	p := owning(clsTo, clsBe, clsOr)
	windows, err := p.SubNgrams(1, 2)
	require.NoError(t, err)
	require.Len(t, windows, 3+2) // 3 unigrams + 2 bigrams
}

func TestParts_Gaps(t *testing.T) {
	p := owning(clsTo, class.Skip, clsBe, clsOr, class.Skip, clsNot)

	parts, err := p.Parts()
	require.NoError(t, err)
	require.Len(t, parts, 3)
	eq, err := parts[1].Equal(owning(clsBe, clsOr))
	require.NoError(t, err)
	require.True(t, eq)

	gaps, err := p.Gaps()
	require.NoError(t, err)
	require.Equal(t, []Gap{{Start: 1, Length: 1}, {Start: 4, Length: 1}}, gaps)
}

func TestMaskOf(t *testing.T) {
	p := owning(clsTo, class.Skip, clsBe, class.Flex, clsOr)
	mask, err := p.MaskOf()
	require.NoError(t, err)
	require.Equal(t, uint32(0b01010)|flexFlag, mask)
}

func TestToFlexgram(t *testing.T) {
	p := owning(clsTo, class.Skip, class.Skip, clsBe)
	fg, err := p.ToFlexgram()
	require.NoError(t, err)
	require.Equal(t, CategoryFlexgram, fg.Category())

	eq, err := fg.Equal(owning(clsTo, class.Flex, clsBe))
	require.NoError(t, err)
	require.True(t, eq)
}

func TestAddSkip_Owning(t *testing.T) {
	p := owning(clsTo, clsBe, clsOr)
	sg, err := p.AddSkip(1, 1)
	require.NoError(t, err)

	eq, err := sg.Equal(owning(clsTo, class.Skip, clsOr))
	require.NoError(t, err)
	require.True(t, eq)
}

func TestAddSkips_View(t *testing.T) {
	v := NewView(rawTokens(clsTo, clsBe, clsOr, clsNot), 0)
	sg, err := v.AddSkips([]SkipRange{{Start: 1, Length: 1}, {Start: 3, Length: 1}})
	require.NoError(t, err)
	require.Equal(t, uint32(0b1010), sg.Mask())
}

func TestAddSkips_OutOfRange(t *testing.T) {
	p := owning(clsTo, clsBe)
	_, err := p.AddSkip(1, 5)
	require.ErrorIs(t, err, errs.ErrOutOfRange)
}

func TestExtractSkipContent(t *testing.T) {
	full := owning(clsTo, clsBe, clsOr, clsNot)
	skip, err := full.AddSkip(1, 2)
	require.NoError(t, err)

	content, err := ExtractSkipContent(skip, full)
	require.NoError(t, err)

	eq, err := content.Equal(owning(clsBe, clsOr))
	require.NoError(t, err)
	require.True(t, eq)
}

func TestInstanceOf_Skipgram(t *testing.T) {
	template, err := owning(clsTo, clsBe, clsOr).AddSkip(1, 1)
	require.NoError(t, err)

	candidate := owning(clsTo, clsNot, clsOr) // differs only at the gap position
	ok, err := InstanceOf(candidate, template)
	require.NoError(t, err)
	require.True(t, ok)

	mismatch := owning(clsTo, clsNot, clsNot)
	ok, err = InstanceOf(mismatch, template)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestInstanceOf_Flexgram(t *testing.T) {
	template, err := owning(clsTo, clsBe, clsOr).AddSkip(1, 1)
	require.NoError(t, err)
	template, err = template.ToFlexgram()
	require.NoError(t, err)

	candidate := owning(clsTo, clsNot, clsOr)
	ok, err := InstanceOf(candidate, template)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestInstanceOf_NMismatch(t *testing.T) {
	template := owning(clsTo, clsBe)
	candidate := owning(clsTo, clsBe, clsOr)
	ok, err := InstanceOf(candidate, template)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestReverse(t *testing.T) {
	p := owning(clsTo, clsBe, clsOr)
	rev, err := p.Reverse()
	require.NoError(t, err)

	eq, err := rev.Equal(owning(clsOr, clsBe, clsTo))
	require.NoError(t, err)
	require.True(t, eq)
}

func TestToOwned_View(t *testing.T) {
	v := NewView(rawTokens(clsTo, clsBe, clsOr), 0b010)
	owned, err := v.ToOwned()
	require.NoError(t, err)
	require.False(t, owned.IsView())

	eq, err := owned.Equal(owning(clsTo, class.Skip, clsOr))
	require.NoError(t, err)
	require.True(t, eq)
}

func TestRender(t *testing.T) {
	c := buildTestCodec(t)
	toID, _ := c.ID("to")
	beID, _ := c.ID("be")
	orID, _ := c.ID("or")

	p := owning(toID, class.Skip, beID)
	s, err := p.Render(c)
	require.NoError(t, err)
	require.Equal(t, "to {*} be", s)

	fg, err := owning(toID, class.Flex, orID).Render(c)
	require.NoError(t, err)
	require.Equal(t, "to {**} or", fg)
}

func TestMalformed_TruncatedVarint(t *testing.T) {
	truncated := varint.Append(nil, 300)[:1] // continuation byte, no terminator, no sentinel
	p := FromBytes(truncated)
	require.Equal(t, 0, p.N())

	_, err := p.ToOwned()
	require.ErrorIs(t, err, errs.ErrMalformedData)
}
