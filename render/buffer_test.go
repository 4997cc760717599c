package render

import (
	"bytes"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
)

func TestNewImageBuffer(t *testing.T) {
	buf, err := NewImageBuffer(10, 4, FormatMono1)
	if err != nil {
		t.Fatalf("NewImageBuffer failed: %v", err)
	}
	if buf.Stride() != 2 || buf.Len() != 8 {
		t.Errorf("Expected stride 2 and 8 bytes, got %d/%d", buf.Stride(), buf.Len())
	}
	_, err = NewImageBuffer(-1, 4, FormatRGB24)
	assertKind(t, err, ErrInvalidArgument)
}

func TestWrapImageBuffer(t *testing.T) {
	data := make([]byte, 64)
	buf, err := WrapImageBuffer(data, 4, 4, 16, FormatRGBA32)
	if err != nil {
		t.Fatalf("WrapImageBuffer failed: %v", err)
	}
	buf.Data()[0] = 7
	if data[0] != 7 {
		t.Error("Wrapped buffer should share memory")
	}
	_, err = WrapImageBuffer(data, 4, 4, 12, FormatRGBA32)
	assertKind(t, err, ErrInvalidArgument)
	_, err = WrapImageBuffer(data[:63], 4, 4, 16, FormatRGBA32)
	assertKind(t, err, ErrInvalidArgument)
}

func TestImageBuffer_CloneAndCopy(t *testing.T) {
	buf, _ := NewImageBuffer(2, 2, FormatGray8)
	copy(buf.Data(), []byte{1, 2, 3, 4})

	c := buf.Clone()
	c.Data()[0] = 9
	if buf.Data()[0] != 1 {
		t.Error("Clone shares memory")
	}

	short := []byte{0xee, 0xee, 0xee}
	if buf.CopyTo(short) {
		t.Error("CopyTo should refuse a short buffer")
	}
	if !bytes.Equal(short, []byte{0xee, 0xee, 0xee}) {
		t.Error("Short buffer was modified")
	}
	if b := buf.Bytes(); !bytes.Equal(b, []byte{1, 2, 3, 4}) {
		t.Errorf("Unexpected bytes %v", b)
	}
}

func TestPack_GrayAndMono(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 9, 1))
	for x := 0; x < 9; x++ {
		v := uint8(0)
		if x%2 == 0 {
			v = 255
		}
		img.SetNRGBA(x, 0, color.NRGBA{R: v, G: v, B: v, A: 255})
	}

	opts := DefaultOptions()
	opts.ColorMode = ColorMonochrome
	mono := pack(img, opts)
	if mono.Stride() != 2 {
		t.Fatalf("Expected stride 2, got %d", mono.Stride())
	}
	if mono.Data()[0] != 0xaa || mono.Data()[1] != 0x80 {
		t.Errorf("Expected packed bits aa 80, got %x %x", mono.Data()[0], mono.Data()[1])
	}

	opts.ColorMode = ColorGrayscale
	gray := pack(img, opts)
	if gray.Data()[0] != 255 || gray.Data()[1] != 0 {
		t.Errorf("Unexpected gray values %v", gray.Data()[:2])
	}

	if got := luma(255, 0, 0); got != 76 {
		t.Errorf("Expected luma 76 for red, got %d", got)
	}
}

func TestImageBuffer_Image(t *testing.T) {
	buf, _ := NewImageBuffer(2, 1, FormatBGRA32)
	copy(buf.Data(), []byte{1, 2, 3, 4, 5, 6, 7, 8})
	img := buf.Image().(*image.NRGBA)
	if got := img.NRGBAAt(0, 0); got != (color.NRGBA{R: 3, G: 2, B: 1, A: 4}) {
		t.Errorf("Unexpected first pixel %v", got)
	}
	if got := buf.At(1, 0); got != (color.NRGBA{R: 7, G: 6, B: 5, A: 8}) {
		t.Errorf("Unexpected second pixel %v", got)
	}
}

func TestImageBuffer_Save(t *testing.T) {
	dir := t.TempDir()
	buf, _ := NewImageBuffer(8, 8, FormatRGB24)
	for i := range buf.Data() {
		buf.Data()[i] = uint8(i)
	}

	tests := []struct {
		name string
		save func(string) error
	}{
		{"page.png", buf.SavePNG},
		{"page.jpg", func(p string) error { return buf.SaveJPEG(p, 90) }},
		{"page.bmp", buf.SaveBMP},
		{"page.tif", buf.SaveTIFF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name)
			if err := tt.save(path); err != nil {
				t.Fatalf("Save failed: %v", err)
			}
			img, err := imaging.Open(path)
			if err != nil {
				t.Fatalf("Failed to read back %s: %v", tt.name, err)
			}
			if b := img.Bounds(); b.Dx() != 8 || b.Dy() != 8 {
				t.Errorf("Read back %v", b)
			}
		})
	}

	assertKind(t, buf.SavePNG(filepath.Join(dir, "page.jpg")), ErrInvalidArgument)
	assertKind(t, buf.SaveJPEG(filepath.Join(dir, "q.jpg"), 0), ErrInvalidArgument)

	var out bytes.Buffer
	if err := buf.Encode(&out, imaging.PNG); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if out.Len() == 0 {
		t.Error("Encode wrote nothing")
	}

	empty, _ := NewImageBuffer(0, 0, FormatRGB24)
	if err := empty.Save(filepath.Join(dir, "empty.png")); err == nil {
		t.Error("Expected error saving an empty image")
	}
	if _, err := os.Stat(filepath.Join(dir, "empty.png")); err == nil {
		t.Error("Empty image should not create a file")
	}
}
