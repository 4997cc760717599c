package pdfrenderer

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/gogpu/gg"
)

// DraftEngine produces layout previews with gg: the page area filled with the
// background and outlined, with no content interpreted. It needs no native
// library and is used for previews and tests.
type DraftEngine struct{}

// NewDraftEngine creates the gg-backed draft engine
func NewDraftEngine() *DraftEngine {
	return &DraftEngine{}
}

func (e *DraftEngine) Backend() Backend { return BackendDraft }

func (e *DraftEngine) NewContext() (Context, error) {
	return &DraftContext{}, nil
}

func (e *DraftEngine) Close() error { return nil }

// GPUAvailable reports whether gg has a registered GPU accelerator
func GPUAvailable() bool {
	return gg.Accelerator() != nil
}

// DraftContext paints page frames
type DraftContext struct {
	// Frames counts rendered pages
	Frames int
}

// RenderPage paints the page rectangle at the requested size
func (c *DraftContext) RenderPage(ctx context.Context, req Request) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.Width < 0 || req.Height < 0 {
		return nil, fmt.Errorf("invalid page size %dx%d", req.Width, req.Height)
	}
	if req.Width == 0 || req.Height == 0 {
		return image.NewRGBA(image.Rect(0, 0, req.Width, req.Height)), nil
	}

	dc := gg.NewContext(req.Width, req.Height)
	defer dc.Close()

	if req.Transparent {
		dc.Clear()
	} else {
		dc.ClearWithColor(gg.FromColor(req.Background))
	}

	w, h := float64(req.Width), float64(req.Height)
	lw := math.Max(1, req.DPI/72)
	dc.SetRGB(0.55, 0.55, 0.55)
	dc.SetLineWidth(lw)
	dc.DrawRectangle(lw/2, lw/2, w-lw, h-lw)
	if err := dc.Stroke(); err != nil {
		return nil, fmt.Errorf("unable to draw page frame: %w", err)
	}
	if err := dc.FlushGPU(); err != nil {
		return nil, fmt.Errorf("unable to flush page frame: %w", err)
	}
	c.Frames++
	return dc.Image(), nil
}

func (c *DraftContext) Close() error { return nil }
