package render

import (
	"context"
	"errors"
	"image"
	"image/color"
	"sync/atomic"
	"testing"

	"github.com/drummonds/pagerender/document"
	"github.com/drummonds/pagerender/engine/pdfrenderer"
)

// fakeEngine paints a gradient so crops and rotations can be checked by
// pixel value. It can block, fail or panic on demand.
type fakeEngine struct {
	calls    atomic.Int64
	contexts atomic.Int64
	closed   atomic.Int64
	fail     error
	panics   bool
	block    chan struct{}
	started  chan struct{}
}

func (e *fakeEngine) Backend() pdfrenderer.Backend { return "fake" }

func (e *fakeEngine) NewContext() (pdfrenderer.Context, error) {
	e.contexts.Add(1)
	return &fakeContext{engine: e}, nil
}

func (e *fakeEngine) Close() error { return nil }

type fakeContext struct {
	engine *fakeEngine
}

func (c *fakeContext) RenderPage(ctx context.Context, req pdfrenderer.Request) (image.Image, error) {
	e := c.engine
	e.calls.Add(1)
	if e.started != nil {
		select {
		case e.started <- struct{}{}:
		default:
		}
	}
	if e.block != nil {
		select {
		case <-e.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if e.panics {
		panic("engine exploded")
	}
	if e.fail != nil {
		return nil, e.fail
	}
	img := image.NewRGBA(image.Rect(0, 0, req.Width, req.Height))
	for y := 0; y < req.Height; y++ {
		for x := 0; x < req.Width; x++ {
			img.SetRGBA(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	return img, nil
}

func (c *fakeContext) Close() error {
	c.engine.closed.Add(1)
	return nil
}

func newTestRenderer(t *testing.T, engine pdfrenderer.Engine, cfg Config) *Renderer {
	t.Helper()
	r := NewRenderer(engine, cfg)
	t.Cleanup(func() {
		if err := r.Close(); err != nil {
			t.Errorf("Failed to close renderer: %v", err)
		}
	})
	return r
}

func letterDoc(pages int) *document.Fixed {
	sizes := make([]document.Size, pages)
	for i := range sizes {
		sizes[i] = document.Letter
	}
	return document.NewFixed("letter", sizes...)
}

func uncachedConfig() Config {
	cfg := DefaultConfig()
	cfg.CacheEnabled = false
	return cfg
}

func assertKind(t *testing.T, err, kind error) {
	t.Helper()
	if err == nil {
		t.Fatalf("Expected %v, got nil", kind)
	}
	if !errors.Is(err, kind) {
		t.Fatalf("Expected %v, got %v", kind, err)
	}
}
