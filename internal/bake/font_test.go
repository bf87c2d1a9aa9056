package bake

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/goregular"
	"seehuhn.de/go/pdf"
)

func TestLoadFontBytesDefault(t *testing.T) {
	data, err := loadFontBytes("")
	require.NoError(t, err)
	assert.Equal(t, goregular.TTF, data)
}

func TestLoadFontBytesMissingFile(t *testing.T) {
	_, err := loadFontBytes("/nonexistent/font.ttf")
	require.Error(t, err)
}

func TestDocFontEncodeHex(t *testing.T) {
	f, err := newDocFont(goregular.TTF)
	require.NoError(t, err)

	hex := f.encodeHex("Go")
	// Two glyphs, four hex digits each.
	assert.Len(t, hex, 8)

	// Identical runes encode identically.
	assert.Equal(t, f.encodeHex("GG")[:4], f.encodeHex("G")[:4])
}

func TestDocFontMeasureScalesWithSize(t *testing.T) {
	f, err := newDocFont(goregular.TTF)
	require.NoError(t, err)

	w12 := f.measure("hello", 12)
	w24 := f.measure("hello", 24)
	require.Greater(t, w12, 0.0)
	assert.InDelta(t, w12*2, w24, 1e-9)
}

func TestDocFontRejectsGarbage(t *testing.T) {
	_, err := newDocFont([]byte("definitely not a font"))
	require.Error(t, err)
}

func TestWidthsArrayIsSortedByGID(t *testing.T) {
	f, err := newDocFont(goregular.TTF)
	require.NoError(t, err)
	f.encodeHex("zebra apple")

	w := f.widthsArray()
	require.NotEmpty(t, w)
	require.Equal(t, 0, len(w)%2)

	last := -1
	for i := 0; i < len(w); i += 2 {
		gid := int(w[i].(pdf.Integer))
		assert.Greater(t, gid, last)
		last = gid
	}
}
