// Package annotation defines the reviewer annotation model and the store that
// persists one reviewer's annotation set as a JSON sidecar in the object
// store.
//
// All geometry is carried in page-normalized fractional coordinates (0..1 of
// the page width or height, origin at the top-left corner, matching the
// viewer). Records written by older clients carry absolute coordinates tied
// to a reference page size instead; both forms resolve to the same page-space
// values.
package annotation

import (
	"math"
	"time"
)

// Kind identifies the annotation type. Unknown values decode fine and are
// skipped at bake time instead of failing the whole set.
type Kind string

const (
	KindInk       Kind = "ink"
	KindHighlight Kind = "highlight"
	KindFreetext  Kind = "freetext"
)

// Highlight sub-kinds.
const (
	HighlightStroke = "stroke"
	HighlightRect   = "rect"
)

// Reference page size for legacy absolute coordinates (US Letter in points).
const (
	LegacyPageWidth  = 612.0
	LegacyPageHeight = 792.0
)

// DefaultHighlightOpacity is used when a highlight does not specify one.
const DefaultHighlightOpacity = 0.75

// Annotation is one drawn or typed object on one page of one document.
type Annotation struct {
	ID   string `json:"id"`
	Page int    `json:"page"` // 1-based page index
	Kind Kind   `json:"kind"`

	// Sub selects the highlight form: "stroke" or "rect".
	Sub string `json:"sub,omitempty"`

	// Normalized geometry. Points are [x, y] pairs, rects are
	// [x, y, width, height], all as fractions of the page dimensions.
	PointsNorm [][2]float64 `json:"points_norm,omitempty"`
	RectsNorm  [][4]float64 `json:"rects_norm,omitempty"`
	XNorm      *float64     `json:"x_norm,omitempty"`
	YNorm      *float64     `json:"y_norm,omitempty"`
	WNorm      *float64     `json:"w_norm,omitempty"`
	HNorm      *float64     `json:"h_norm,omitempty"`

	// Legacy absolute geometry, in units of the reference page size.
	Points [][2]float64 `json:"points,omitempty"`
	Rects  [][4]float64 `json:"rects,omitempty"`
	X      *float64     `json:"x,omitempty"`
	Y      *float64     `json:"y,omitempty"`
	W      *float64     `json:"w,omitempty"`
	H      *float64     `json:"h,omitempty"`

	// Style.
	Color        string   `json:"color,omitempty"`   // "#rrggbb" or "rgb(...)" / "rgba(...)"
	WidthNorm    *float64 `json:"width_norm,omitempty"` // stroke width as fraction of page height
	Width        *float64 `json:"width,omitempty"`      // legacy stroke width in absolute pixels
	Opacity      *float64 `json:"opacity,omitempty"`    // highlight only
	FontSizeNorm *float64 `json:"font_size_norm,omitempty"`
	FontSize     *float64 `json:"font_size,omitempty"` // legacy absolute

	Text string `json:"text,omitempty"`

	// Provenance, not geometry.
	AuthorID  string    `json:"author_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Set is the ordered collection of annotations for one (document, reviewer)
// pair. Order is significant: later annotations draw over earlier ones.
type Set struct {
	Annotations []Annotation `json:"annotations"`
}

// Point is a resolved page-space coordinate in page units, origin top-left.
type Point struct {
	X, Y float64
}

// Rect is a resolved page-space rectangle in page units, origin top-left.
type Rect struct {
	X, Y, W, H float64
}

// KnownKind reports whether the kind is one this build can render.
func (a *Annotation) KnownKind() bool {
	switch a.Kind {
	case KindInk, KindHighlight, KindFreetext:
		return true
	default:
		return false
	}
}

// ResolvePoints converts the point list to page units. It prefers normalized
// points and falls back to legacy absolute points. The second return value is
// false when no usable geometry is present; points outside the page or
// non-finite are dropped individually.
func (a *Annotation) ResolvePoints(pageW, pageH float64) ([]Point, bool) {
	if len(a.PointsNorm) > 0 {
		return fracPoints(a.PointsNorm, pageW, pageH)
	}
	if len(a.Points) > 0 {
		norm := make([][2]float64, len(a.Points))
		for i, p := range a.Points {
			norm[i] = [2]float64{p[0] / LegacyPageWidth, p[1] / LegacyPageHeight}
		}
		return fracPoints(norm, pageW, pageH)
	}
	return nil, false
}

// ResolveRects converts the rectangle list to page units, preferring
// normalized rects over legacy absolute ones.
func (a *Annotation) ResolveRects(pageW, pageH float64) ([]Rect, bool) {
	norm := a.RectsNorm
	if len(norm) == 0 {
		if len(a.Rects) == 0 {
			return nil, false
		}
		norm = make([][4]float64, len(a.Rects))
		for i, r := range a.Rects {
			norm[i] = [4]float64{
				r[0] / LegacyPageWidth,
				r[1] / LegacyPageHeight,
				r[2] / LegacyPageWidth,
				r[3] / LegacyPageHeight,
			}
		}
	}

	var out []Rect
	for _, r := range norm {
		if !fracRectValid(r) {
			continue
		}
		out = append(out, Rect{
			X: r[0] * pageW,
			Y: r[1] * pageH,
			W: r[2] * pageW,
			H: r[3] * pageH,
		})
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

// ResolveBox returns the free text bounding box in page units, or false when
// the annotation is point-anchored or has no usable geometry.
func (a *Annotation) ResolveBox(pageW, pageH float64) (Rect, bool) {
	x, y, ok := a.anchorFrac()
	if !ok {
		return Rect{}, false
	}
	w, h, ok := a.extentFrac()
	if !ok {
		return Rect{}, false
	}
	if !fracRectValid([4]float64{x, y, w, h}) {
		return Rect{}, false
	}
	return Rect{X: x * pageW, Y: y * pageH, W: w * pageW, H: h * pageH}, true
}

// ResolveAnchor returns the free text anchor point in page units.
func (a *Annotation) ResolveAnchor(pageW, pageH float64) (Point, bool) {
	x, y, ok := a.anchorFrac()
	if !ok || !fracValid(x) || !fracValid(y) {
		return Point{}, false
	}
	return Point{X: x * pageW, Y: y * pageH}, true
}

// StrokeWidth resolves the stroke width in page units. Normalized widths
// scale with page height; legacy widths are absolute pixels taken as points.
func (a *Annotation) StrokeWidth(pageH, fallback float64) float64 {
	if a.WidthNorm != nil && isFinite(*a.WidthNorm) && *a.WidthNorm > 0 {
		return *a.WidthNorm * pageH
	}
	if a.Width != nil && isFinite(*a.Width) && *a.Width > 0 {
		return *a.Width
	}
	return fallback
}

// TextSize resolves the free text font size in page units.
func (a *Annotation) TextSize(pageH, fallback float64) float64 {
	if a.FontSizeNorm != nil && isFinite(*a.FontSizeNorm) && *a.FontSizeNorm > 0 {
		return *a.FontSizeNorm * pageH
	}
	if a.FontSize != nil && isFinite(*a.FontSize) && *a.FontSize > 0 {
		return *a.FontSize
	}
	return fallback
}

// HighlightOpacity returns the opacity for highlight fills, clamped to (0, 1].
func (a *Annotation) HighlightOpacity() float64 {
	if a.Opacity != nil && isFinite(*a.Opacity) && *a.Opacity > 0 && *a.Opacity <= 1 {
		return *a.Opacity
	}
	return DefaultHighlightOpacity
}

func (a *Annotation) anchorFrac() (x, y float64, ok bool) {
	switch {
	case a.XNorm != nil && a.YNorm != nil:
		return *a.XNorm, *a.YNorm, true
	case a.X != nil && a.Y != nil:
		return *a.X / LegacyPageWidth, *a.Y / LegacyPageHeight, true
	default:
		return 0, 0, false
	}
}

func (a *Annotation) extentFrac() (w, h float64, ok bool) {
	switch {
	case a.WNorm != nil && a.HNorm != nil:
		return *a.WNorm, *a.HNorm, true
	case a.W != nil && a.H != nil:
		return *a.W / LegacyPageWidth, *a.H / LegacyPageHeight, true
	default:
		return 0, 0, false
	}
}

func fracPoints(norm [][2]float64, pageW, pageH float64) ([]Point, bool) {
	var out []Point
	for _, p := range norm {
		if !fracValid(p[0]) || !fracValid(p[1]) {
			continue
		}
		out = append(out, Point{X: p[0] * pageW, Y: p[1] * pageH})
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

// fracRectValid requires the rect to lie inside the unit square with positive
// extent.
func fracRectValid(r [4]float64) bool {
	for _, v := range r {
		if !isFinite(v) {
			return false
		}
	}
	x, y, w, h := r[0], r[1], r[2], r[3]
	return w > 0 && h > 0 && fracValid(x) && fracValid(y) && fracValid(x+w) && fracValid(y+h)
}

func fracValid(v float64) bool {
	return isFinite(v) && v >= 0 && v <= 1
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
