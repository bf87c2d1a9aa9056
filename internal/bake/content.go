package bake

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/inkwell-review/inkwell/internal/annotation"
)

// Fallback style values for annotations that carry no usable style of their
// own, in page units (points).
const (
	defaultInkWidth       = 2.0
	defaultHighlightWidth = 12.0
	defaultFontSize       = 14.0
	lineSpacing           = 1.2
)

// rgbColor holds components in the 0..1 range used by PDF color operators.
type rgbColor struct {
	R, G, B float64
}

var (
	colorBlack           = rgbColor{0, 0, 0}
	colorHighlightYellow = rgbColor{1, 0.92, 0.23}
)

// parseColor accepts "#rgb", "#rrggbb", "rgb(r, g, b)" and "rgba(r, g, b, a)"
// forms. The alpha component of rgba is ignored; highlight transparency comes
// from the opacity field instead.
func parseColor(s string) (rgbColor, bool) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasPrefix(s, "#"):
		return parseHexColor(s[1:])
	case strings.HasPrefix(s, "rgb(") && strings.HasSuffix(s, ")"):
		return parseRGBTuple(s[4 : len(s)-1], 3)
	case strings.HasPrefix(s, "rgba(") && strings.HasSuffix(s, ")"):
		return parseRGBTuple(s[5:len(s)-1], 4)
	default:
		return rgbColor{}, false
	}
}

func parseHexColor(hex string) (rgbColor, bool) {
	var parts [3]uint64
	switch len(hex) {
	case 3:
		for i := range 3 {
			v, err := strconv.ParseUint(hex[i:i+1], 16, 8)
			if err != nil {
				return rgbColor{}, false
			}
			parts[i] = v*16 + v
		}
	case 6:
		for i := range 3 {
			v, err := strconv.ParseUint(hex[2*i:2*i+2], 16, 8)
			if err != nil {
				return rgbColor{}, false
			}
			parts[i] = v
		}
	default:
		return rgbColor{}, false
	}
	return rgbColor{
		R: float64(parts[0]) / 255,
		G: float64(parts[1]) / 255,
		B: float64(parts[2]) / 255,
	}, true
}

func parseRGBTuple(body string, arity int) (rgbColor, bool) {
	fields := strings.Split(body, ",")
	if len(fields) != arity {
		return rgbColor{}, false
	}
	var vals [3]float64
	for i := range 3 {
		v, err := strconv.ParseFloat(strings.TrimSpace(fields[i]), 64)
		if err != nil || v < 0 || v > 255 {
			return rgbColor{}, false
		}
		vals[i] = v / 255
	}
	return rgbColor{R: vals[0], G: vals[1], B: vals[2]}, true
}

func colorOrDefault(s string, fallback rgbColor) rgbColor {
	if c, ok := parseColor(s); ok {
		return c
	}
	return fallback
}

// num formats a coordinate or style value for a content stream.
func num(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// opWriter accumulates content stream operators for one page. Annotation
// geometry arrives in top-origin page space; the writer flips it to the PDF
// bottom-origin convention as it emits operators.
type opWriter struct {
	buf    bytes.Buffer
	ox, oy float64 // media box lower-left corner
	pageH  float64
}

func newOpWriter(ox, oy, pageH float64) *opWriter {
	return &opWriter{ox: ox, oy: oy, pageH: pageH}
}

func (w *opWriter) empty() bool {
	return w.buf.Len() == 0
}

func (w *opWriter) bytes() []byte {
	return w.buf.Bytes()
}

func (w *opWriter) x(v float64) float64 {
	return w.ox + v
}

func (w *opWriter) y(topY float64) float64 {
	return w.oy + w.pageH - topY
}

func (w *opWriter) writef(format string, args ...any) {
	fmt.Fprintf(&w.buf, format, args...)
}

// polyline strokes the point list with round caps and joins.
func (w *opWriter) polyline(pts []annotation.Point, c rgbColor, width float64) {
	if len(pts) == 0 {
		return
	}
	w.writef("%s %s %s RG %s w 1 J 1 j\n", num(c.R), num(c.G), num(c.B), num(width))
	w.writef("%s %s m\n", num(w.x(pts[0].X)), num(w.y(pts[0].Y)))
	if len(pts) == 1 {
		// A single dot still renders thanks to the round cap.
		w.writef("%s %s l\n", num(w.x(pts[0].X)), num(w.y(pts[0].Y)))
	}
	for _, p := range pts[1:] {
		w.writef("%s %s l\n", num(w.x(p.X)), num(w.y(p.Y)))
	}
	w.writef("S\n")
}

// fillRects fills each rectangle with the given color.
func (w *opWriter) fillRects(rects []annotation.Rect, c rgbColor) {
	w.writef("%s %s %s rg\n", num(c.R), num(c.G), num(c.B))
	for _, r := range rects {
		// "re" takes the lower-left corner.
		w.writef("%s %s %s %s re\n", num(w.x(r.X)), num(w.y(r.Y+r.H)), num(r.W), num(r.H))
	}
	w.writef("f\n")
}

func (w *opWriter) setExtGState(name string) {
	w.writef("/%s gs\n", name)
}

func (w *opWriter) save() {
	w.writef("q\n")
}

func (w *opWriter) restore() {
	w.writef("Q\n")
}

// textBlock lays the text out inside the box, wrapping at word boundaries and
// dropping lines that would fall below the box. A zero-height box renders a
// single unwrapped line.
func (w *opWriter) textBlock(f *docFont, fontName string, box annotation.Rect, wrap bool, text string, c rgbColor, size float64) {
	var lines []string
	if wrap {
		lines = wrapText(f, text, size, box.W)
	} else {
		lines = []string{text}
	}
	if len(lines) == 0 {
		return
	}

	leading := size * lineSpacing
	baseline := w.y(box.Y) - size
	bottom := w.y(box.Y + box.H)

	w.writef("BT\n/%s %s Tf\n%s %s %s rg\n%s TL\n", fontName, num(size), num(c.R), num(c.G), num(c.B), num(leading))
	w.writef("%s %s Td\n", num(w.x(box.X)), num(baseline))
	for i, line := range lines {
		if wrap && i > 0 {
			y := baseline - float64(i)*leading
			if y < bottom {
				break
			}
		}
		if i > 0 {
			w.writef("T*\n")
		}
		w.writef("<%s> Tj\n", f.encodeHex(line))
	}
	w.writef("ET\n")
}

// wrapText splits text into lines no wider than maxW at the given size.
// Words that do not fit on their own line are broken mid-word.
func wrapText(f *docFont, text string, size, maxW float64) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var lines []string
	var cur string
	for _, word := range words {
		candidate := word
		if cur != "" {
			candidate = cur + " " + word
		}
		if f.measure(candidate, size) <= maxW {
			cur = candidate
			continue
		}
		if cur != "" {
			lines = append(lines, cur)
			cur = ""
		}
		if f.measure(word, size) <= maxW {
			cur = word
			continue
		}
		// Overlong word: hard-break by runes.
		part := ""
		for _, r := range word {
			next := part + string(r)
			if part != "" && f.measure(next, size) > maxW {
				lines = append(lines, part)
				part = string(r)
				continue
			}
			part = next
		}
		cur = part
	}
	if cur != "" {
		lines = append(lines, cur)
	}
	return lines
}
