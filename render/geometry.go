package render

import (
	"math"

	"github.com/drummonds/pagerender/document"
	"seehuhn.de/go/geom/matrix"
)

// pointsPerInch is the resolution of page space
const pointsPerInch = 72

// CalculateDimensions returns the pixel size of page at dpi, rounding to
// the nearest pixel. A nil page has no size.
func CalculateDimensions(page document.Page, dpi float64) (width, height int) {
	if page == nil {
		return 0, 0
	}
	s := dpi / pointsPerInch
	return int(math.Round(page.Width() * s)), int(math.Round(page.Height() * s))
}

// CalculateScaleToFit returns the largest scale at which page fits in
// maxWidth x maxHeight pixels at 72 DPI. Pages without area scale by 1.
func CalculateScaleToFit(page document.Page, maxWidth, maxHeight int) float64 {
	if page == nil || page.Width() <= 0 || page.Height() <= 0 {
		return 1.0
	}
	return math.Min(float64(maxWidth)/page.Width(), float64(maxHeight)/page.Height())
}

// PageToPixelMatrix maps page points (origin bottom left) onto pixels
// (origin top left) at dpi for a page pageHeight points tall.
func PageToPixelMatrix(dpi, pageHeight float64) matrix.Matrix {
	s := dpi / pointsPerInch
	return matrix.Matrix{s, 0, 0, -s, 0, pageHeight * s}
}

// PixelToPageMatrix is the inverse of PageToPixelMatrix
func PixelToPageMatrix(dpi, pageHeight float64) matrix.Matrix {
	s := pointsPerInch / dpi
	return matrix.Matrix{s, 0, 0, -s, 0, pageHeight}
}

func apply(m matrix.Matrix, x, y float64) (float64, float64) {
	return m[0]*x + m[2]*y + m[4], m[1]*x + m[3]*y + m[5]
}

// PageToPixel converts a page point to pixel coordinates
func PageToPixel(x, y, dpi, pageHeight float64) (px, py float64) {
	return x * dpi / pointsPerInch, (pageHeight - y) * dpi / pointsPerInch
}

// PixelToPage converts pixel coordinates back to page points
func PixelToPage(px, py, dpi, pageHeight float64) (x, y float64) {
	return px * pointsPerInch / dpi, pageHeight - py*pointsPerInch/dpi
}
