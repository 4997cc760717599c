package render

import (
	"fmt"
	"image"
	"image/color"
	"io"

	"github.com/disintegration/imaging"
)

// ImageBuffer holds rendered pixels. The caller owns a returned buffer; the
// renderer keeps its own copies.
type ImageBuffer struct {
	width, height int
	stride        int
	format        ImageFormat
	data          []byte
}

// NewImageBuffer allocates a zeroed buffer with the minimum stride
func NewImageBuffer(width, height int, format ImageFormat) (*ImageBuffer, error) {
	if width < 0 || height < 0 {
		return nil, invalidArgf("invalid buffer size %dx%d", width, height)
	}
	if !format.valid() {
		return nil, invalidArgf("unknown image format %d", format)
	}
	stride := format.MinStride(width)
	return &ImageBuffer{
		width:  width,
		height: height,
		stride: stride,
		format: format,
		data:   make([]byte, stride*height),
	}, nil
}

// WrapImageBuffer adopts existing pixel memory
func WrapImageBuffer(data []byte, width, height, stride int, format ImageFormat) (*ImageBuffer, error) {
	if width < 0 || height < 0 || !format.valid() {
		return nil, invalidArgf("invalid buffer geometry %dx%d %s", width, height, format)
	}
	if stride < format.MinStride(width) {
		return nil, invalidArgf("stride %d too small for %d pixels of %s", stride, width, format)
	}
	if len(data) < stride*height {
		return nil, invalidArgf("buffer holds %d bytes, need %d", len(data), stride*height)
	}
	return &ImageBuffer{width: width, height: height, stride: stride, format: format, data: data[:stride*height]}, nil
}

func (b *ImageBuffer) Width() int          { return b.width }
func (b *ImageBuffer) Height() int         { return b.height }
func (b *ImageBuffer) Stride() int         { return b.stride }
func (b *ImageBuffer) Format() ImageFormat { return b.format }

// Data exposes the pixel memory, stride bytes per row
func (b *ImageBuffer) Data() []byte { return b.data }

// Len is the size of the pixel memory in bytes
func (b *ImageBuffer) Len() int { return len(b.data) }

// Bytes returns a copy of the pixel memory
func (b *ImageBuffer) Bytes() []byte {
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

// Clone deep copies the buffer
func (b *ImageBuffer) Clone() *ImageBuffer {
	c := *b
	c.data = b.Bytes()
	return &c
}

// CopyTo writes the pixels into dst with the buffer's stride. It returns
// false and leaves dst untouched when dst is too small.
func (b *ImageBuffer) CopyTo(dst []byte) bool {
	if len(dst) < len(b.data) {
		return false
	}
	copy(dst, b.data)
	return true
}

func (b *ImageBuffer) row(y int) []byte {
	return b.data[y*b.stride : y*b.stride+b.format.MinStride(b.width)]
}

// Image converts the buffer into a standard library image. Colour layouts
// become *image.NRGBA, single channel layouts *image.Gray.
func (b *ImageBuffer) Image() image.Image {
	r := image.Rect(0, 0, b.width, b.height)
	switch b.format {
	case FormatGray8:
		img := image.NewGray(r)
		for y := 0; y < b.height; y++ {
			copy(img.Pix[y*img.Stride:], b.row(y))
		}
		return img
	case FormatMono1:
		img := image.NewGray(r)
		for y := 0; y < b.height; y++ {
			row := b.row(y)
			for x := 0; x < b.width; x++ {
				if row[x>>3]&(0x80>>(x&7)) != 0 {
					img.Pix[y*img.Stride+x] = 0xff
				}
			}
		}
		return img
	}

	img := image.NewNRGBA(r)
	bpp := b.format.BitsPerPixel() / 8
	for y := 0; y < b.height; y++ {
		row := b.row(y)
		out := img.Pix[y*img.Stride:]
		for x := 0; x < b.width; x++ {
			p := row[x*bpp:]
			o := out[x*4 : x*4+4]
			if b.format.bgr() {
				o[0], o[1], o[2] = p[2], p[1], p[0]
			} else {
				o[0], o[1], o[2] = p[0], p[1], p[2]
			}
			if bpp == 4 {
				o[3] = p[3]
			} else {
				o[3] = 0xff
			}
		}
	}
	return img
}

// At returns the colour of one pixel
func (b *ImageBuffer) At(x, y int) color.Color {
	if x < 0 || y < 0 || x >= b.width || y >= b.height {
		return color.NRGBA{}
	}
	row := b.row(y)
	switch b.format {
	case FormatGray8:
		return color.Gray{Y: row[x]}
	case FormatMono1:
		if row[x>>3]&(0x80>>(x&7)) != 0 {
			return color.Gray{Y: 0xff}
		}
		return color.Gray{}
	}
	bpp := b.format.BitsPerPixel() / 8
	p := row[x*bpp:]
	c := color.NRGBA{R: p[0], G: p[1], B: p[2], A: 0xff}
	if b.format.bgr() {
		c.R, c.B = p[2], p[0]
	}
	if bpp == 4 {
		c.A = p[3]
	}
	return c
}

// Encode writes the buffer in an image file format
func (b *ImageBuffer) Encode(w io.Writer, format imaging.Format, opts ...imaging.EncodeOption) error {
	if b.width == 0 || b.height == 0 {
		return invalidArgf("cannot encode an empty image")
	}
	if err := imaging.Encode(w, b.Image(), format, opts...); err != nil {
		return fmt.Errorf("unable to encode %s: %w", format, err)
	}
	return nil
}

// Save writes the buffer to path, choosing the file format from the extension
func (b *ImageBuffer) Save(path string, opts ...imaging.EncodeOption) error {
	if b.width == 0 || b.height == 0 {
		return invalidArgf("cannot save an empty image")
	}
	if err := imaging.Save(b.Image(), path, opts...); err != nil {
		return fmt.Errorf("unable to save %s: %w", path, err)
	}
	return nil
}

func (b *ImageBuffer) saveAs(path string, format imaging.Format, opts ...imaging.EncodeOption) error {
	if b.width == 0 || b.height == 0 {
		return invalidArgf("cannot save an empty image")
	}
	if got, err := imaging.FormatFromFilename(path); err != nil || got != format {
		return invalidArgf("%s does not name a %s file", path, format)
	}
	return b.Save(path, opts...)
}

// SavePNG writes a PNG file
func (b *ImageBuffer) SavePNG(path string) error {
	return b.saveAs(path, imaging.PNG)
}

// SaveJPEG writes a JPEG file at quality 1-100
func (b *ImageBuffer) SaveJPEG(path string, quality int) error {
	if quality < 1 || quality > 100 {
		return invalidArgf("jpeg quality must be within 1-100, got %d", quality)
	}
	return b.saveAs(path, imaging.JPEG, imaging.JPEGQuality(quality))
}

// SaveBMP writes a BMP file
func (b *ImageBuffer) SaveBMP(path string) error {
	return b.saveAs(path, imaging.BMP)
}

// SaveTIFF writes a TIFF file
func (b *ImageBuffer) SaveTIFF(path string) error {
	return b.saveAs(path, imaging.TIFF)
}
