package bake

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/inkwell-review/inkwell/internal/annotation"
)

func TestParseColor(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  rgbColor
		ok    bool
	}{
		{"long hex", "#ff8000", rgbColor{1, 128.0 / 255, 0}, true},
		{"short hex", "#f80", rgbColor{1, 136.0 / 255, 0}, true},
		{"rgb tuple", "rgb(255, 0, 128)", rgbColor{1, 0, 128.0 / 255}, true},
		{"rgba ignores alpha", "rgba(0, 255, 0, 0.5)", rgbColor{0, 1, 0}, true},
		{"whitespace", "  #000000 ", rgbColor{0, 0, 0}, true},
		{"empty", "", rgbColor{}, false},
		{"bad hex", "#zzz", rgbColor{}, false},
		{"bad length", "#ffff", rgbColor{}, false},
		{"out of range", "rgb(300, 0, 0)", rgbColor{}, false},
		{"wrong arity", "rgb(1, 2)", rgbColor{}, false},
		{"named color", "red", rgbColor{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := parseColor(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want.R, got.R, 1e-9)
				assert.InDelta(t, tt.want.G, got.G, 1e-9)
				assert.InDelta(t, tt.want.B, got.B, 1e-9)
			}
		})
	}
}

func TestColorOrDefault(t *testing.T) {
	c := colorOrDefault("nonsense", colorHighlightYellow)
	assert.Equal(t, colorHighlightYellow, c)

	c = colorOrDefault("#000000", colorHighlightYellow)
	assert.Equal(t, rgbColor{0, 0, 0}, c)
}

func TestPolylineFlipsToBottomOrigin(t *testing.T) {
	w := newOpWriter(0, 0, 792)
	w.polyline([]annotation.Point{{X: 10, Y: 10}, {X: 20, Y: 30}}, colorBlack, 2)

	ops := string(w.bytes())
	// Top-origin y=10 on a 792pt page lands at 782.
	assert.Contains(t, ops, "10.00 782.00 m")
	assert.Contains(t, ops, "20.00 762.00 l")
	assert.Contains(t, ops, "S\n")
}

func TestPolylineRespectsMediaBoxOrigin(t *testing.T) {
	w := newOpWriter(5, 7, 100)
	w.polyline([]annotation.Point{{X: 0, Y: 0}}, colorBlack, 1)

	ops := string(w.bytes())
	assert.Contains(t, ops, "5.00 107.00 m")
}

func TestFillRectsUsesLowerLeftCorner(t *testing.T) {
	w := newOpWriter(0, 0, 792)
	w.fillRects([]annotation.Rect{{X: 100, Y: 50, W: 200, H: 20}}, colorHighlightYellow)

	ops := string(w.bytes())
	// Rect top at y=50 spans down to y=70, so the PDF corner is 792-70=722.
	assert.Contains(t, ops, "100.00 722.00 200.00 20.00 re")
	assert.Contains(t, ops, "f\n")
}

func TestWrapTextBreaksAtWords(t *testing.T) {
	f, err := newDocFont(goregular.TTF)
	require.NoError(t, err)

	lines := wrapText(f, "the quick brown fox jumps over the lazy dog", 12, 100)
	require.Greater(t, len(lines), 1)
	for _, line := range lines {
		assert.LessOrEqual(t, f.measure(line, 12), 100.0)
	}
	assert.Equal(t, "the quick brown fox jumps over the lazy dog",
		strings.Join(lines, " "))
}

func TestWrapTextBreaksOverlongWords(t *testing.T) {
	f, err := newDocFont(goregular.TTF)
	require.NoError(t, err)

	lines := wrapText(f, "incomprehensibilities", 12, 40)
	require.Greater(t, len(lines), 1)
	for _, line := range lines {
		assert.LessOrEqual(t, f.measure(line, 12), 40.0)
	}
	assert.Equal(t, "incomprehensibilities", strings.Join(lines, ""))
}

func TestWrapTextEmpty(t *testing.T) {
	f, err := newDocFont(goregular.TTF)
	require.NoError(t, err)

	assert.Nil(t, wrapText(f, "   ", 12, 100))
}

func TestTextBlockClipsToBox(t *testing.T) {
	f, err := newDocFont(goregular.TTF)
	require.NoError(t, err)

	w := newOpWriter(0, 0, 792)
	// A box tall enough for roughly two lines at size 12.
	box := annotation.Rect{X: 10, Y: 10, W: 80, H: 30}
	w.textBlock(f, "IWfnt", box, true,
		"a very long remark that cannot possibly fit on such a narrow line and keeps going",
		colorBlack, 12)

	ops := string(w.bytes())
	assert.Contains(t, ops, "BT")
	assert.Contains(t, ops, "/IWfnt 12.00 Tf")
	assert.Contains(t, ops, "ET")
	// At 12pt with 1.2 spacing only two baselines fit in 30pt.
	assert.LessOrEqual(t, strings.Count(ops, "Tj"), 2)
}

func TestTextBlockSingleLineWhenUnwrapped(t *testing.T) {
	f, err := newDocFont(goregular.TTF)
	require.NoError(t, err)

	w := newOpWriter(0, 0, 792)
	w.textBlock(f, "IWfnt", annotation.Rect{X: 10, Y: 10}, false,
		"anchored note with several words", colorBlack, 14)

	ops := string(w.bytes())
	assert.Equal(t, 1, strings.Count(ops, "Tj"))
	assert.NotContains(t, ops, "T*")
}
