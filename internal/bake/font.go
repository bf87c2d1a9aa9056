package bake

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"sort"

	"golang.org/x/image/font/gofont/goregular"
	"seehuhn.de/go/pdf"
	"seehuhn.de/go/sfnt"
	"seehuhn.de/go/sfnt/cmap"
	"seehuhn.de/go/sfnt/glyph"

	"github.com/inkwell-review/inkwell/internal/errors"
)

// loadFontBytes returns the raw TrueType program used for free text
// rendering. An empty path selects the bundled Go Regular face.
func loadFontBytes(path string) ([]byte, error) {
	if path == "" {
		return goregular.TTF, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to read font file: %w", err)).
			Component("bake").
			Category(errors.CategoryFont).
			Context("path", path).
			Build()
	}
	return data, nil
}

// docFont maps runes to glyphs and measures text for one document being
// baked. The full font program is embedded unsubsetted, so glyph IDs double
// as CIDs and the two-byte Identity-H encoding writes GIDs directly.
type docFont struct {
	ttf  *sfnt.Font
	raw  []byte
	sub  cmap.Subtable
	used map[glyph.ID]float64 // GID -> width in 1000-unit glyph space
}

func newDocFont(raw []byte) (*docFont, error) {
	ttf, err := sfnt.Read(bytes.NewReader(raw))
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to parse font: %w", err)).
			Component("bake").
			Category(errors.CategoryFont).
			Build()
	}
	sub, err := ttf.CMapTable.GetBest()
	if err != nil {
		return nil, errors.New(fmt.Errorf("font has no usable cmap: %w", err)).
			Component("bake").
			Category(errors.CategoryFont).
			Build()
	}
	f := &docFont{
		ttf:  ttf,
		raw:  raw,
		sub:  sub,
		used: make(map[glyph.ID]float64),
	}
	f.used[0] = math.Round(ttf.GlyphWidthPDF(0))
	return f, nil
}

func (f *docFont) gid(r rune) glyph.ID {
	g := f.sub.Lookup(r)
	f.used[g] = math.Round(f.ttf.GlyphWidthPDF(g))
	return g
}

// encodeHex returns the two-byte-per-glyph hex form of s for a Tj operand.
func (f *docFont) encodeHex(s string) string {
	var buf bytes.Buffer
	for _, r := range s {
		fmt.Fprintf(&buf, "%04X", uint16(f.gid(r)))
	}
	return buf.String()
}

// measure returns the width of s in page units at the given font size.
func (f *docFont) measure(s string, size float64) float64 {
	var w float64
	for _, r := range s {
		w += f.ttf.GlyphWidthPDF(f.gid(r))
	}
	return w / 1000 * size
}

// embed writes the font program and its Type0 dictionary chain into the
// document under the given font dictionary reference.
func (f *docFont) embed(d *pdf.Data, fontDictRef pdf.Reference) error {
	cidFontRef := d.Alloc()
	descriptorRef := d.Alloc()
	fontFileRef := d.Alloc()

	baseFont := pdf.Name(f.ttf.PostScriptName())

	q := 1000 / float64(f.ttf.UnitsPerEm)
	ascent := math.Round(float64(f.ttf.Ascent) * q)
	descent := math.Round(float64(f.ttf.Descent) * q)

	fontDict := pdf.Dict{
		"Type":            pdf.Name("Font"),
		"Subtype":         pdf.Name("Type0"),
		"BaseFont":        baseFont,
		"Encoding":        pdf.Name("Identity-H"),
		"DescendantFonts": pdf.Array{cidFontRef},
	}

	cidFontDict := pdf.Dict{
		"Type":     pdf.Name("Font"),
		"Subtype":  pdf.Name("CIDFontType2"),
		"BaseFont": baseFont,
		"CIDSystemInfo": pdf.Dict{
			"Registry":   pdf.String("Adobe"),
			"Ordering":   pdf.String("Identity"),
			"Supplement": pdf.Integer(0),
		},
		"FontDescriptor": descriptorRef,
		"CIDToGIDMap":    pdf.Name("Identity"),
		"DW":             pdf.Number(f.used[0]),
		"W":              f.widthsArray(),
	}

	descriptor := pdf.Dict{
		"Type":        pdf.Name("FontDescriptor"),
		"FontName":    baseFont,
		"Flags":    pdf.Integer(4), // symbolic
		// A loose box is fine here, viewers only use it for fallback
		// metrics.
		"FontBBox":    &pdf.Rectangle{LLx: -200, LLy: descent, URx: 1200, URy: ascent},
		"ItalicAngle": pdf.Number(f.ttf.ItalicAngle),
		"Ascent":      pdf.Number(ascent),
		"Descent":     pdf.Number(descent),
		"CapHeight":   pdf.Number(math.Round(float64(f.ttf.CapHeight) * q)),
		"StemV":       pdf.Integer(80),
		"FontFile2":   fontFileRef,
	}

	for ref, obj := range map[pdf.Reference]pdf.Object{
		fontDictRef:   fontDict,
		cidFontRef:    cidFontDict,
		descriptorRef: descriptor,
	} {
		if err := d.Put(ref, obj); err != nil {
			return err
		}
	}

	// The raw program goes in whole, so Length1 is known upfront.
	stm, err := d.OpenStream(fontFileRef, pdf.Dict{
		"Subtype": pdf.Name("TrueType"),
		"Length1": pdf.Integer(len(f.raw)),
	}, pdf.FilterCompress{})
	if err != nil {
		return err
	}
	if _, err := stm.Write(f.raw); err != nil {
		stm.Close()
		return err
	}
	return stm.Close()
}

// widthsArray encodes the used glyph widths in the compact W form, one
// singleton range per GID.
func (f *docFont) widthsArray() pdf.Array {
	gids := make([]glyph.ID, 0, len(f.used))
	for gid := range f.used {
		gids = append(gids, gid)
	}
	sort.Slice(gids, func(i, j int) bool { return gids[i] < gids[j] })

	var w pdf.Array
	for _, gid := range gids {
		w = append(w, pdf.Integer(gid), pdf.Array{pdf.Number(f.used[gid])})
	}
	return w
}
