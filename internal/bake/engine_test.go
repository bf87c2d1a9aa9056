package bake

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"seehuhn.de/go/pdf"
	"seehuhn.de/go/pdf/pagetree"

	"github.com/inkwell-review/inkwell/internal/annotation"
	"github.com/inkwell-review/inkwell/internal/conf"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(&conf.BakeSettings{}, nil)
	require.NoError(t, err)
	return e
}

// buildFixture creates a minimal document with the given number of pages,
// each carrying one content stream.
func buildFixture(t *testing.T, pages int) []byte {
	t.Helper()

	doc := pdf.NewData(pdf.V1_7)
	pagesRef := doc.Alloc()

	kids := make(pdf.Array, 0, pages)
	for i := 0; i < pages; i++ {
		pageRef := doc.Alloc()
		contentRef := doc.Alloc()

		stm, err := doc.OpenStream(contentRef, nil)
		require.NoError(t, err)
		_, err = stm.Write([]byte("q 0 0 m 100 100 l S Q\n"))
		require.NoError(t, err)
		require.NoError(t, stm.Close())

		require.NoError(t, doc.Put(pageRef, pdf.Dict{
			"Type":   pdf.Name("Page"),
			"Parent": pagesRef,
			"MediaBox": pdf.Array{
				pdf.Integer(0), pdf.Integer(0),
				pdf.Integer(612), pdf.Integer(792),
			},
			"Contents": contentRef,
		}))
		kids = append(kids, pageRef)
	}

	require.NoError(t, doc.Put(pagesRef, pdf.Dict{
		"Type":  pdf.Name("Pages"),
		"Kids":  kids,
		"Count": pdf.Integer(pages),
	}))
	doc.GetMeta().Catalog.Pages = pagesRef

	var buf bytes.Buffer
	require.NoError(t, doc.Write(&buf))
	return buf.Bytes()
}

func readBack(t *testing.T, data []byte) (*pdf.Data, []pdf.Reference) {
	t.Helper()
	doc, err := pdf.Read(bytes.NewReader(data), nil)
	require.NoError(t, err)
	refs, err := pagetree.FindPages(doc)
	require.NoError(t, err)
	return doc, refs
}

func pageResources(t *testing.T, doc *pdf.Data, pageRef pdf.Reference) pdf.Dict {
	t.Helper()
	pageDict, err := pdf.GetDict(doc, pageRef)
	require.NoError(t, err)
	res, err := pdf.GetDict(doc, pageDict["Resources"])
	require.NoError(t, err)
	return res
}

func TestBakeEmptySetCopiesDocument(t *testing.T) {
	e := newTestEngine(t)
	src := buildFixture(t, 3)

	out, err := e.Bake(t.Context(), src, &annotation.Set{})
	require.NoError(t, err)

	_, refs := readBack(t, out)
	assert.Len(t, refs, 3)
}

func TestBakeGarbageInputFails(t *testing.T) {
	e := newTestEngine(t)

	_, err := e.Bake(t.Context(), []byte("this is not a document"), &annotation.Set{})
	require.Error(t, err)
}

func TestBakeInkAddsContentStreams(t *testing.T) {
	e := newTestEngine(t)
	src := buildFixture(t, 3)

	set := &annotation.Set{Annotations: []annotation.Annotation{{
		ID:         "a1",
		Page:       2,
		Kind:       annotation.KindInk,
		PointsNorm: [][2]float64{{0.1, 0.1}, {0.5, 0.5}, {0.9, 0.2}},
		Color:      "#ff0000",
	}}}

	out, err := e.Bake(t.Context(), src, set)
	require.NoError(t, err)

	doc, refs := readBack(t, out)
	require.Len(t, refs, 3)

	// The touched page gets a prepended and an appended stream.
	pageDict, err := pdf.GetDict(doc, refs[1])
	require.NoError(t, err)
	contents, err := pdf.GetArray(doc, pageDict["Contents"])
	require.NoError(t, err)
	assert.Len(t, contents, 3)

	// Untouched pages keep their single stream.
	pageDict, err = pdf.GetDict(doc, refs[0])
	require.NoError(t, err)
	_, isArray := pageDict["Contents"].(pdf.Array)
	assert.False(t, isArray)
}

func TestBakeSkipsAnnotationsOutsideDocument(t *testing.T) {
	e := newTestEngine(t)
	src := buildFixture(t, 2)

	set := &annotation.Set{Annotations: []annotation.Annotation{
		{
			ID:         "far",
			Page:       999,
			Kind:       annotation.KindInk,
			PointsNorm: [][2]float64{{0.1, 0.1}, {0.2, 0.2}},
		},
		{
			ID:         "mystery",
			Page:       1,
			Kind:       annotation.Kind("sticker"),
			PointsNorm: [][2]float64{{0.1, 0.1}},
		},
	}}

	out, err := e.Bake(t.Context(), src, set)
	require.NoError(t, err)

	doc, refs := readBack(t, out)
	require.Len(t, refs, 2)
	for _, ref := range refs {
		pageDict, err := pdf.GetDict(doc, ref)
		require.NoError(t, err)
		_, isArray := pageDict["Contents"].(pdf.Array)
		assert.False(t, isArray, "no page should have been touched")
	}
}

func TestBakeHighlightRegistersAlphaState(t *testing.T) {
	e := newTestEngine(t)
	src := buildFixture(t, 1)

	set := &annotation.Set{Annotations: []annotation.Annotation{{
		ID:        "h1",
		Page:      1,
		Kind:      annotation.KindHighlight,
		Sub:       annotation.HighlightRect,
		RectsNorm: [][4]float64{{0.1, 0.1, 0.3, 0.05}},
	}}}

	out, err := e.Bake(t.Context(), src, set)
	require.NoError(t, err)

	doc, refs := readBack(t, out)
	res := pageResources(t, doc, refs[0])
	gs, err := pdf.GetDict(doc, res["ExtGState"])
	require.NoError(t, err)
	// Default opacity is 0.75.
	require.Contains(t, gs, pdf.Name("IWgs75"))

	state, err := pdf.GetDict(doc, gs["IWgs75"])
	require.NoError(t, err)
	ca, err := pdf.GetNumber(doc, state["ca"])
	require.NoError(t, err)
	assert.InDelta(t, 0.75, float64(ca), 1e-9)
}

func TestBakeFreetextEmbedsFont(t *testing.T) {
	e := newTestEngine(t)
	src := buildFixture(t, 1)

	x, y := 0.1, 0.1
	set := &annotation.Set{Annotations: []annotation.Annotation{{
		ID:    "t1",
		Page:  1,
		Kind:  annotation.KindFreetext,
		XNorm: &x,
		YNorm: &y,
		Text:  "needs review",
	}}}

	out, err := e.Bake(t.Context(), src, set)
	require.NoError(t, err)

	doc, refs := readBack(t, out)
	res := pageResources(t, doc, refs[0])
	fonts, err := pdf.GetDict(doc, res["Font"])
	require.NoError(t, err)
	require.Contains(t, fonts, pdf.Name(fontResourceName))

	fontDict, err := pdf.GetDict(doc, fonts[pdf.Name(fontResourceName)])
	require.NoError(t, err)
	assert.Equal(t, pdf.Name("Type0"), fontDict["Subtype"])
	assert.Equal(t, pdf.Name("Identity-H"), fontDict["Encoding"])

	descendants, err := pdf.GetArray(doc, fontDict["DescendantFonts"])
	require.NoError(t, err)
	require.Len(t, descendants, 1)
	cidFont, err := pdf.GetDict(doc, descendants[0])
	require.NoError(t, err)
	assert.Equal(t, pdf.Name("CIDFontType2"), cidFont["Subtype"])

	descriptor, err := pdf.GetDict(doc, cidFont["FontDescriptor"])
	require.NoError(t, err)
	_, err = pdf.GetStream(doc, descriptor["FontFile2"])
	require.NoError(t, err)
}

func TestBakeFreetextWithoutTextIsDropped(t *testing.T) {
	e := newTestEngine(t)
	src := buildFixture(t, 1)

	x, y := 0.1, 0.1
	set := &annotation.Set{Annotations: []annotation.Annotation{{
		ID:    "empty",
		Page:  1,
		Kind:  annotation.KindFreetext,
		XNorm: &x,
		YNorm: &y,
	}}}

	out, err := e.Bake(t.Context(), src, set)
	require.NoError(t, err)

	doc, refs := readBack(t, out)
	pageDict, err := pdf.GetDict(doc, refs[0])
	require.NoError(t, err)
	_, isArray := pageDict["Contents"].(pdf.Array)
	assert.False(t, isArray)
}

func TestBakeLegacyCoordinatesResolve(t *testing.T) {
	e := newTestEngine(t)
	src := buildFixture(t, 1)

	set := &annotation.Set{Annotations: []annotation.Annotation{{
		ID:     "old",
		Page:   1,
		Kind:   annotation.KindInk,
		Points: [][2]float64{{61.2, 79.2}, {306, 396}},
	}}}

	out, err := e.Bake(t.Context(), src, set)
	require.NoError(t, err)

	doc, refs := readBack(t, out)
	pageDict, err := pdf.GetDict(doc, refs[0])
	require.NoError(t, err)
	contents, err := pdf.GetArray(doc, pageDict["Contents"])
	require.NoError(t, err)
	assert.Len(t, contents, 3)
}
