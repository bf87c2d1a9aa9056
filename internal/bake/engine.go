// Package bake renders a reviewer's annotation set permanently into the page
// content of a PDF document. The source document is rewritten in place as far
// as possible: untouched objects pass through unchanged, touched pages get
// extra content streams prepended and appended so annotations paint under or
// over the existing content as their kind requires.
package bake

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sort"

	"seehuhn.de/go/pdf"
	"seehuhn.de/go/pdf/pagetree"

	"github.com/inkwell-review/inkwell/internal/annotation"
	"github.com/inkwell-review/inkwell/internal/conf"
	"github.com/inkwell-review/inkwell/internal/errors"
	"github.com/inkwell-review/inkwell/internal/logging"
)

// Resource names registered on touched pages. The IW prefix keeps them out
// of the way of names already present in the document.
const fontResourceName = "IWfnt"

// Engine bakes annotation sets into PDF documents. It is safe for concurrent
// use; per-document state lives in the bake run.
type Engine struct {
	fontData []byte
	log      *slog.Logger
}

// New validates the configured free text font and returns a ready engine.
func New(settings *conf.BakeSettings, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = logging.ForService("bake")
	}
	raw, err := loadFontBytes(settings.FontPath)
	if err != nil {
		return nil, err
	}
	// Fail startup on a broken font rather than every bake request.
	if _, err := newDocFont(raw); err != nil {
		return nil, err
	}
	return &Engine{fontData: raw, log: logger}, nil
}

// Bake returns a copy of src with the annotation set rendered into the page
// content. Annotations on unknown pages or of unknown kinds are skipped; the
// only fatal inputs are documents that cannot be opened or written.
func (e *Engine) Bake(ctx context.Context, src []byte, set *annotation.Set) ([]byte, error) {
	doc, err := pdf.Read(bytes.NewReader(src), nil)
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to open document: %w", err)).
			Component("bake").
			Category(errors.CategoryDocumentParse).
			Build()
	}

	pageRefs, err := pagetree.FindPages(doc)
	if err != nil {
		return nil, errors.New(fmt.Errorf("failed to read page tree: %w", err)).
			Component("bake").
			Category(errors.CategoryDocumentParse).
			Build()
	}

	run := &bakeRun{
		engine:   e,
		doc:      doc,
		gsStates: make(map[string]pdf.Reference),
	}

	byPage := make(map[int][]*annotation.Annotation)
	for i := range set.Annotations {
		a := &set.Annotations[i]
		if !a.KnownKind() {
			e.log.Warn("skipping annotation of unknown kind",
				"id", a.ID, "kind", string(a.Kind))
			continue
		}
		if a.Page < 1 || a.Page > len(pageRefs) {
			e.log.Warn("skipping annotation outside the document",
				"id", a.ID, "page", a.Page, "pages", len(pageRefs))
			continue
		}
		byPage[a.Page] = append(byPage[a.Page], a)
	}

	pages := make([]int, 0, len(byPage))
	for p := range byPage {
		pages = append(pages, p)
	}
	sort.Ints(pages)

	for _, pageNo := range pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := run.bakePage(pageRefs[pageNo-1], byPage[pageNo]); err != nil {
			e.log.Warn("skipping page that could not be baked",
				"page", pageNo, "error", err)
		}
	}

	if run.font != nil && run.fontUsed {
		if err := run.font.embed(doc, run.fontRef); err != nil {
			return nil, errors.New(fmt.Errorf("failed to embed font: %w", err)).
				Component("bake").
				Category(errors.CategoryFont).
				Build()
		}
	}

	var out bytes.Buffer
	if err := doc.Write(&out); err != nil {
		return nil, errors.New(fmt.Errorf("failed to serialize document: %w", err)).
			Component("bake").
			Category(errors.CategoryDocumentParse).
			Build()
	}
	return out.Bytes(), nil
}

// bakeRun is the per-document state of one Bake call.
type bakeRun struct {
	engine *Engine
	doc    *pdf.Data

	// Shared alpha states, keyed by resource name, reused across pages.
	gsStates map[string]pdf.Reference

	font     *docFont
	fontRef  pdf.Reference
	fontUsed bool
}

func (r *bakeRun) bakePage(pageRef pdf.Reference, anns []*annotation.Annotation) error {
	pageDict, err := pdf.GetDict(r.doc, pageRef)
	if err != nil {
		return err
	}
	if pageDict == nil {
		return fmt.Errorf("page dictionary missing")
	}

	box, err := r.mediaBox(pageDict)
	if err != nil {
		return err
	}
	pageW := box.URx - box.LLx
	pageH := box.URy - box.LLy

	under := newOpWriter(box.LLx, box.LLy, pageH)
	over := newOpWriter(box.LLx, box.LLy, pageH)
	pageGS := make(map[string]pdf.Reference)
	pageHasText := false

	for _, a := range anns {
		switch a.Kind {
		case annotation.KindHighlight:
			r.drawHighlight(under, pageGS, a, pageW, pageH)
		case annotation.KindInk:
			r.drawInk(over, a, pageW, pageH)
		case annotation.KindFreetext:
			drawn, err := r.drawFreetext(over, a, pageW, pageH)
			if err != nil {
				return err
			}
			pageHasText = pageHasText || drawn
		}
	}
	if under.empty() && over.empty() {
		return nil
	}

	preRef := r.doc.Alloc()
	postRef := r.doc.Alloc()

	// The prepended stream saves the graphics state after the underlay so
	// the appended one can restore it, leaving the overlay independent of
	// whatever state the original content ends in.
	pre := append(under.bytes(), []byte("q\n")...)
	post := append([]byte("Q\n"), over.bytes()...)
	if err := r.writeContentStream(preRef, pre); err != nil {
		return err
	}
	if err := r.writeContentStream(postRef, post); err != nil {
		return err
	}

	contents, err := r.contentsArray(pageDict["Contents"])
	if err != nil {
		return err
	}
	newContents := make(pdf.Array, 0, len(contents)+2)
	newContents = append(newContents, preRef)
	newContents = append(newContents, contents...)
	newContents = append(newContents, postRef)
	pageDict["Contents"] = newContents

	resources, err := r.mergedResources(pageDict, pageGS, pageHasText)
	if err != nil {
		return err
	}
	pageDict["Resources"] = resources

	return r.doc.Put(pageRef, pageDict)
}

func (r *bakeRun) drawHighlight(w *opWriter, pageGS map[string]pdf.Reference, a *annotation.Annotation, pageW, pageH float64) {
	color := colorOrDefault(a.Color, colorHighlightYellow)
	gsName, gsRef, ok := r.alphaState(a.HighlightOpacity())
	if !ok {
		return
	}

	emitted := false
	w.save()
	w.setExtGState(gsName)
	if a.Sub == annotation.HighlightRect {
		if rects, ok := a.ResolveRects(pageW, pageH); ok {
			w.fillRects(rects, color)
			emitted = true
		}
	} else {
		if pts, ok := a.ResolvePoints(pageW, pageH); ok {
			w.polyline(pts, color, a.StrokeWidth(pageH, defaultHighlightWidth))
			emitted = true
		} else if rects, ok := a.ResolveRects(pageW, pageH); ok {
			w.fillRects(rects, color)
			emitted = true
		}
	}
	w.restore()

	if emitted {
		pageGS[gsName] = gsRef
	}
}

func (r *bakeRun) drawInk(w *opWriter, a *annotation.Annotation, pageW, pageH float64) {
	pts, ok := a.ResolvePoints(pageW, pageH)
	if !ok {
		return
	}
	w.save()
	w.polyline(pts, colorOrDefault(a.Color, colorBlack), a.StrokeWidth(pageH, defaultInkWidth))
	w.restore()
}

func (r *bakeRun) drawFreetext(w *opWriter, a *annotation.Annotation, pageW, pageH float64) (bool, error) {
	if a.Text == "" {
		return false, nil
	}
	box, wrap := a.ResolveBox(pageW, pageH)
	if !wrap {
		anchor, ok := a.ResolveAnchor(pageW, pageH)
		if !ok {
			return false, nil
		}
		box = annotation.Rect{X: anchor.X, Y: anchor.Y}
	}

	if r.font == nil {
		font, err := newDocFont(r.engine.fontData)
		if err != nil {
			return false, err
		}
		r.font = font
		r.fontRef = r.doc.Alloc()
	}

	w.save()
	w.textBlock(r.font, fontResourceName, box, wrap, a.Text,
		colorOrDefault(a.Color, colorBlack), a.TextSize(pageH, defaultFontSize))
	w.restore()
	r.fontUsed = true
	return true, nil
}

// alphaState returns the shared ExtGState for the given fill opacity,
// creating it on first use.
func (r *bakeRun) alphaState(opacity float64) (string, pdf.Reference, bool) {
	name := fmt.Sprintf("IWgs%d", int(opacity*100+0.5))
	if ref, ok := r.gsStates[name]; ok {
		return name, ref, true
	}
	ref := r.doc.Alloc()
	err := r.doc.Put(ref, pdf.Dict{
		"Type": pdf.Name("ExtGState"),
		"ca":   pdf.Number(opacity),
		"CA":   pdf.Number(opacity),
	})
	if err != nil {
		r.engine.log.Warn("failed to write alpha state", "error", err)
		return "", 0, false
	}
	r.gsStates[name] = ref
	return name, ref, true
}

func (r *bakeRun) writeContentStream(ref pdf.Reference, ops []byte) error {
	stm, err := r.doc.OpenStream(ref, nil, pdf.FilterCompress{})
	if err != nil {
		return err
	}
	if _, err := stm.Write(ops); err != nil {
		stm.Close()
		return err
	}
	return stm.Close()
}

// contentsArray normalizes the Contents entry to a slice of stream
// references, preserving the original objects.
func (r *bakeRun) contentsArray(obj pdf.Object) (pdf.Array, error) {
	if obj == nil {
		return nil, nil
	}
	resolved, err := pdf.Resolve(r.doc, obj)
	if err != nil {
		return nil, err
	}
	switch resolved := resolved.(type) {
	case pdf.Array:
		return resolved, nil
	case *pdf.Stream:
		if ref, ok := obj.(pdf.Reference); ok {
			return pdf.Array{ref}, nil
		}
		return nil, fmt.Errorf("page content stream is not indirect")
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("unexpected Contents type %T", resolved)
	}
}

// mergedResources returns the page resource dictionary extended with the
// baked-in ExtGState and Font entries. Inherited resources are flattened
// into a page-local copy first.
func (r *bakeRun) mergedResources(pageDict pdf.Dict, pageGS map[string]pdf.Reference, withFont bool) (pdf.Dict, error) {
	obj, err := r.inherited(pageDict, "Resources")
	if err != nil {
		return nil, err
	}
	existing, err := pdf.GetDict(r.doc, obj)
	if err != nil {
		return nil, err
	}

	resources := make(pdf.Dict, len(existing)+2)
	for k, v := range existing {
		resources[k] = v
	}

	if len(pageGS) > 0 {
		gsDict, err := r.subDict(resources, "ExtGState")
		if err != nil {
			return nil, err
		}
		for name, ref := range pageGS {
			gsDict[pdf.Name(name)] = ref
		}
		resources["ExtGState"] = gsDict
	}

	if withFont {
		fontDict, err := r.subDict(resources, "Font")
		if err != nil {
			return nil, err
		}
		fontDict[pdf.Name(fontResourceName)] = r.fontRef
		resources["Font"] = fontDict
	}

	return resources, nil
}

// subDict returns a mutable copy of a resource sub-dictionary.
func (r *bakeRun) subDict(resources pdf.Dict, key pdf.Name) (pdf.Dict, error) {
	existing, err := pdf.GetDict(r.doc, resources[key])
	if err != nil {
		return nil, err
	}
	out := make(pdf.Dict, len(existing)+1)
	for k, v := range existing {
		out[k] = v
	}
	return out, nil
}

// mediaBox resolves the page size, following the Parent chain for inherited
// boxes and falling back to US Letter.
func (r *bakeRun) mediaBox(pageDict pdf.Dict) (*pdf.Rectangle, error) {
	obj, err := r.inherited(pageDict, "MediaBox")
	if err != nil {
		return nil, err
	}
	if obj != nil {
		box, err := pdf.GetRectangle(r.doc, obj)
		if err != nil {
			return nil, err
		}
		if box != nil && box.URx > box.LLx && box.URy > box.LLy {
			return box, nil
		}
	}
	return &pdf.Rectangle{URx: annotation.LegacyPageWidth, URy: annotation.LegacyPageHeight}, nil
}

func (r *bakeRun) inherited(pageDict pdf.Dict, key pdf.Name) (pdf.Object, error) {
	dict := pageDict
	for range 32 {
		if obj, ok := dict[key]; ok && obj != nil {
			return obj, nil
		}
		parent, ok := dict["Parent"]
		if !ok {
			return nil, nil
		}
		var err error
		dict, err = pdf.GetDict(r.doc, parent)
		if err != nil {
			return nil, err
		}
		if dict == nil {
			return nil, nil
		}
	}
	return nil, fmt.Errorf("page tree too deep")
}
