package render

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/drummonds/pagerender/document"
	"seehuhn.de/go/geom/rect"
)

// maxPixels bounds the size of a single render
const maxPixels = 1 << 28

// layout maps one page render onto its output
type layout struct {
	fullW, fullH int             // whole page at the requested resolution
	crop         image.Rectangle // region of the full page that is kept
	turn         document.Rotation
	outW, outH   int
}

func computeLayout(page document.Page, opts Options) (layout, error) {
	var l layout
	if page == nil {
		return l, invalidArgf("page is nil")
	}
	if err := opts.Validate(); err != nil {
		return l, err
	}
	l.fullW, l.fullH = CalculateDimensions(page, opts.DPI)
	if l.fullW <= 0 || l.fullH <= 0 {
		return l, invalidArgf("page %v has no area at %v dpi", page.Handle(), opts.DPI)
	}
	if l.fullW*l.fullH > maxPixels {
		return l, invalidArgf("render of %dx%d pixels exceeds the size limit", l.fullW, l.fullH)
	}

	l.crop = image.Rect(0, 0, l.fullW, l.fullH)
	if opts.UseClipRect {
		l.crop = clipPixels(opts.ClipRect, page.Height(), opts.DPI).Intersect(l.crop)
		if l.crop.Empty() {
			return l, invalidArgf("clip rectangle lies outside the page")
		}
	}

	if opts.OverrideRotation {
		l.turn = (opts.Rotation - page.Rotation()).Normalize()
	}
	l.outW, l.outH = l.crop.Dx(), l.crop.Dy()
	if l.turn.Swaps() {
		l.outW, l.outH = l.outH, l.outW
	}
	return l, nil
}

// clipPixels converts a page space rectangle into the pixel rows and columns
// it covers. Edges round independently so neighbouring rectangles share them.
func clipPixels(r rect.Rect, pageHeight, dpi float64) image.Rectangle {
	s := dpi / pointsPerInch
	return image.Rect(
		int(math.Round(r.LLx*s)),
		int(math.Round((pageHeight-r.URy)*s)),
		int(math.Round(r.URx*s)),
		int(math.Round((pageHeight-r.LLy)*s)),
	)
}

// compose places the engine output on a canvas of exactly w x h pixels
func compose(src image.Image, w, h int, opts Options) *image.NRGBA {
	// Engines that round the resolution can miss the layout by more than the
	// one pixel that pasting absorbs.
	if b := src.Bounds(); absInt(b.Dx()-w) > 1 || absInt(b.Dy()-h) > 1 {
		src = imaging.Resize(src, w, h, imaging.Linear)
	}
	if opts.RenderTransparent {
		return imaging.Paste(imaging.New(w, h, color.NRGBA{}), src, image.Pt(0, 0))
	}
	return imaging.Overlay(imaging.New(w, h, opts.Background), src, image.Pt(0, 0), 1.0)
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// finish crops and turns a composed full page
func (l layout) finish(full *image.NRGBA) *image.NRGBA {
	img := full
	if l.crop != full.Bounds() {
		img = imaging.Crop(full, l.crop)
	}
	return turn(img, l.turn)
}

// turn rotates clockwise; imaging rotates counter-clockwise
func turn(img *image.NRGBA, r document.Rotation) *image.NRGBA {
	switch r.Normalize() {
	case document.Rotate90:
		return imaging.Rotate270(img)
	case document.Rotate180:
		return imaging.Rotate180(img)
	case document.Rotate270:
		return imaging.Rotate90(img)
	}
	return img
}

func luma(r, g, b uint8) uint8 {
	return uint8((299*uint32(r) + 587*uint32(g) + 114*uint32(b) + 500) / 1000)
}

// pack converts an image into the output layout selected by opts
func pack(img *image.NRGBA, opts Options) *ImageBuffer {
	format := opts.OutputFormat()
	mono := opts.ColorMode == ColorMonochrome || opts.ImageFormat == FormatMono1
	gray := mono || opts.ColorMode == ColorGrayscale || opts.ImageFormat == FormatGray8

	w, h := img.Rect.Dx(), img.Rect.Dy()
	buf, _ := NewImageBuffer(w, h, format)
	bpp := format.BitsPerPixel() / 8

	for y := 0; y < h; y++ {
		src := img.Pix[y*img.Stride:]
		dst := buf.data[y*buf.stride:]
		if format == FormatMono1 {
			for i := range dst[:buf.stride] {
				dst[i] = 0
			}
		}
		for x := 0; x < w; x++ {
			p := src[x*4 : x*4+4]
			r, g, b, a := p[0], p[1], p[2], p[3]
			if gray {
				v := luma(r, g, b)
				if mono {
					if v >= 128 {
						v = 0xff
					} else {
						v = 0
					}
				}
				r, g, b = v, v, v
			}
			switch format {
			case FormatGray8:
				dst[x] = r
			case FormatMono1:
				if r != 0 {
					dst[x>>3] |= 0x80 >> (x & 7)
				}
			default:
				o := dst[x*bpp:]
				if format.bgr() {
					o[0], o[1], o[2] = b, g, r
				} else {
					o[0], o[1], o[2] = r, g, b
				}
				if bpp == 4 {
					o[3] = a
				}
			}
		}
	}
	return buf
}

// resample scales img to exactly w x h
func resample(img image.Image, w, h int) *image.NRGBA {
	if b := img.Bounds(); b.Dx() == w && b.Dy() == h {
		return imaging.Clone(img)
	}
	return imaging.Resize(img, w, h, imaging.Linear)
}
