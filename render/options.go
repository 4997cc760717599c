package render

import (
	"image/color"
	"math"

	"github.com/drummonds/pagerender/document"
	"seehuhn.de/go/geom/rect"
)

// AntiAliasing selects which content the engine smooths
type AntiAliasing int

const (
	AntiAliasNone AntiAliasing = iota
	AntiAliasText
	AntiAliasGraphics
	AntiAliasAll
)

// ColorMode selects the colour model of the output
type ColorMode int

const (
	ColorRGB ColorMode = iota
	ColorCMYK
	ColorGrayscale
	ColorMonochrome
)

func (m ColorMode) String() string {
	switch m {
	case ColorRGB:
		return "rgb"
	case ColorCMYK:
		return "cmyk"
	case ColorGrayscale:
		return "grayscale"
	case ColorMonochrome:
		return "monochrome"
	}
	return "unknown"
}

// ImageFormat is the pixel layout of an ImageBuffer
type ImageFormat int

const (
	FormatRGB24 ImageFormat = iota
	FormatRGBA32
	FormatBGR24
	FormatBGRA32
	FormatGray8
	FormatMono1
)

func (f ImageFormat) String() string {
	switch f {
	case FormatRGB24:
		return "RGB24"
	case FormatRGBA32:
		return "RGBA32"
	case FormatBGR24:
		return "BGR24"
	case FormatBGRA32:
		return "BGRA32"
	case FormatGray8:
		return "Gray8"
	case FormatMono1:
		return "Mono1"
	}
	return "unknown"
}

// BitsPerPixel of the packed layout
func (f ImageFormat) BitsPerPixel() int {
	switch f {
	case FormatRGBA32, FormatBGRA32:
		return 32
	case FormatRGB24, FormatBGR24:
		return 24
	case FormatGray8:
		return 8
	case FormatMono1:
		return 1
	}
	return 0
}

// HasAlpha reports whether the layout carries an alpha channel
func (f ImageFormat) HasAlpha() bool {
	return f == FormatRGBA32 || f == FormatBGRA32
}

func (f ImageFormat) valid() bool {
	return f >= FormatRGB24 && f <= FormatMono1
}

func (f ImageFormat) bgr() bool {
	return f == FormatBGR24 || f == FormatBGRA32
}

// MinStride is the smallest row size in bytes for width pixels
func (f ImageFormat) MinStride(width int) int {
	return (width*f.BitsPerPixel() + 7) / 8
}

// Quality presets map to resolutions
type Quality int

const (
	QualityDraft    Quality = 72
	QualityLow      Quality = 96
	QualityMedium   Quality = 150
	QualityHigh     Quality = 300
	QualityVeryHigh Quality = 600
)

// DPI of the preset
func (q Quality) DPI() float64 { return float64(q) }

// Options controls one rasterization. Options is comparable and two renders
// of the same page share a cache entry only when their options are equal.
type Options struct {
	DPI               float64
	AntiAliasing      AntiAliasing
	ColorMode         ColorMode
	ImageFormat       ImageFormat
	RenderAnnotations bool
	RenderForms       bool
	RenderXFAForms    bool
	RenderTransparent bool
	Background        color.RGBA

	// ClipRect is in page points, origin bottom left, and only applies when
	// UseClipRect is set
	ClipRect    rect.Rect
	UseClipRect bool

	// Rotation replaces the page's own rotation when OverrideRotation is set
	Rotation         document.Rotation
	OverrideRotation bool
}

// DefaultOptions renders opaque RGB at 150 DPI on white
func DefaultOptions() Options {
	return Options{
		DPI:               QualityMedium.DPI(),
		AntiAliasing:      AntiAliasAll,
		ColorMode:         ColorRGB,
		ImageFormat:       FormatRGB24,
		RenderAnnotations: true,
		RenderForms:       true,
		Background:        color.RGBA{R: 255, G: 255, B: 255, A: 255},
	}
}

// OptionsForQuality returns the defaults at the preset resolution
func OptionsForQuality(q Quality) Options {
	opts := DefaultOptions()
	opts.DPI = q.DPI()
	return opts
}

// WithDPI returns a copy rendering at dpi
func (o Options) WithDPI(dpi float64) Options {
	o.DPI = dpi
	return o
}

// Validate checks the options independent of any page
func (o Options) Validate() error {
	if math.IsNaN(o.DPI) || math.IsInf(o.DPI, 0) || o.DPI <= 0 {
		return invalidArgf("dpi must be positive, got %v", o.DPI)
	}
	if !o.ImageFormat.valid() {
		return invalidArgf("unknown image format %d", o.ImageFormat)
	}
	if o.ColorMode < ColorRGB || o.ColorMode > ColorMonochrome {
		return invalidArgf("unknown color mode %d", o.ColorMode)
	}
	if o.OverrideRotation && !o.Rotation.Valid() {
		return invalidArgf("rotation must be a multiple of 90, got %d", o.Rotation)
	}
	if o.UseClipRect && (o.ClipRect.Dx() <= 0 || o.ClipRect.Dy() <= 0) {
		return invalidArgf("clip rectangle is empty")
	}
	return nil
}

// OutputFormat is the layout RenderPage produces. Transparent renders get an
// alpha layout; otherwise the colour mode or a single channel ImageFormat
// decides. BGR formats keep their byte order.
func (o Options) OutputFormat() ImageFormat {
	bgr := o.ImageFormat.bgr()
	if o.RenderTransparent {
		if bgr {
			return FormatBGRA32
		}
		return FormatRGBA32
	}
	switch {
	case o.ColorMode == ColorMonochrome || o.ImageFormat == FormatMono1:
		return FormatMono1
	case o.ColorMode == ColorGrayscale || o.ImageFormat == FormatGray8:
		return FormatGray8
	}
	if bgr {
		return FormatBGR24
	}
	return FormatRGB24
}
