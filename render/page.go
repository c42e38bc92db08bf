package render

import (
	"math"

	"github.com/porticus-lab/zplbox"
)

// DefaultDPI is the resolution of most desktop label printers (8 dots/mm).
const DefaultDPI = 203

const (
	pointsPerInch    = 72.0
	cssPixelsPerInch = 96.0
	mmPerInch        = 25.4
)

// DPI limits accepted by [Page.Validate].
const (
	MinDPI = 72
	MaxDPI = 1200
)

// Page describes the label stock a document is rendered onto.
type Page struct {
	// WidthPts is the label width in points (1/72 inch).
	WidthPts float64
	// HeightPts is the label height in points.
	HeightPts float64
	// DPI is the printer resolution in dots per inch. Defaults to 203.
	DPI int
}

// Common label stocks.
var (
	Label4x6 = Page{WidthPts: 288, HeightPts: 432}
	Label4x3 = Page{WidthPts: 288, HeightPts: 216}
	Label4x2 = Page{WidthPts: 288, HeightPts: 144}
	Label2x1 = Page{WidthPts: 144, HeightPts: 72}
)

// PageFromMillimeters returns a Page for stock measured in millimeters.
func PageFromMillimeters(width, height float64, dpi int) Page {
	return Page{WidthPts: mmToPoints(width), HeightPts: mmToPoints(height), DPI: dpi}
}

// DefaultPage returns a 4x6 inch label at 203 dpi.
func DefaultPage() Page {
	p := Label4x6
	p.DPI = DefaultDPI
	return p
}

// resolved returns a Page with all zero values replaced by defaults.
func (p *Page) resolved() Page {
	d := DefaultPage()
	if p == nil {
		return d
	}
	r := *p
	if r.WidthPts == 0 && r.HeightPts == 0 {
		r.WidthPts, r.HeightPts = d.WidthPts, d.HeightPts
	}
	if r.DPI == 0 {
		r.DPI = d.DPI
	}
	return r
}

// Validate reports whether the resolved page can be rendered.
func (p *Page) Validate() error {
	r := p.resolved()
	if !(r.WidthPts > 0) || !(r.HeightPts > 0) || math.IsInf(r.WidthPts, 0) || math.IsInf(r.HeightPts, 0) {
		return zplbox.NewError(zplbox.KindInvalidInput, "label size %gx%g pt must be positive", r.WidthPts, r.HeightPts)
	}
	if r.DPI < MinDPI || r.DPI > MaxDPI {
		return zplbox.NewError(zplbox.KindInvalidInput, "dpi %d outside %d..%d", r.DPI, MinDPI, MaxDPI)
	}
	return nil
}

// Dots returns the bitmap size of the label at its resolution.
func (p *Page) Dots() (width, height int) {
	r := p.resolved()
	return pointsToDots(r.WidthPts, r.DPI), pointsToDots(r.HeightPts, r.DPI)
}

// viewport returns the browser viewport in CSS pixels and the device scale
// factor that makes one device pixel one printer dot.
func (p *Page) viewport() (width, height int64, scale float64) {
	r := p.resolved()
	return int64(math.Ceil(pointsToCSSPixels(r.WidthPts))),
		int64(math.Ceil(pointsToCSSPixels(r.HeightPts))),
		float64(r.DPI) / cssPixelsPerInch
}

func pointsToCSSPixels(pts float64) float64 {
	return pts * cssPixelsPerInch / pointsPerInch
}

func pointsToDots(pts float64, dpi int) int {
	return int(math.Round(pts / pointsPerInch * float64(dpi)))
}

func mmToPoints(mm float64) float64 {
	return mm / mmPerInch * pointsPerInch
}
