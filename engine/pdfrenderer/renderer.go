// Package pdfrenderer wraps the rasterization engines. Each engine hands out
// Contexts; a Context is owned by one goroutine at a time and keeps whatever
// per-document state the engine needs between calls.
package pdfrenderer

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"log/slog"

	"github.com/drummonds/pagerender/document"
)

// Logger is global since we will need it everywhere
var Logger = slog.New(slog.DiscardHandler)

// Backend names a rasterization engine
type Backend string

const (
	// BackendPDFium renders with PDFium compiled to WebAssembly (pure Go, no CGo)
	BackendPDFium Backend = "pdfium"
	// BackendFitz renders with MuPDF through go-fitz (requires CGo)
	BackendFitz Backend = "fitz"
	// BackendDraft paints page frames with gg, without interpreting content
	BackendDraft Backend = "draft"
)

// Request describes one full-page rasterization
type Request struct {
	Page document.Handle
	DPI  float64
	// Width and Height are the expected pixel size; engines that size their
	// own output may differ by rounding
	Width, Height int
	Background    color.RGBA
	Transparent   bool
	AntiAlias     bool
	Annotations   bool
	Forms         bool
}

// Context renders pages. It is not safe for concurrent use.
type Context interface {
	// RenderPage rasterizes the page with its own rotation applied
	RenderPage(ctx context.Context, req Request) (image.Image, error)

	// Close releases documents and engine instances held by the context
	Close() error
}

// Engine creates render contexts for one backend
type Engine interface {
	Backend() Backend
	NewContext() (Context, error)
	Close() error
}

// New creates the engine for the backend
func New(backend Backend) (Engine, error) {
	switch backend {
	case BackendPDFium, "":
		return NewPDFiumEngine()
	case BackendFitz:
		return NewFitzEngine(), nil
	case BackendDraft:
		return NewDraftEngine(), nil
	default:
		return nil, fmt.Errorf("unknown render backend %q", backend)
	}
}

// Check creates and closes one context to verify the backend works here
func Check(e Engine) error {
	c, err := e.NewContext()
	if err != nil {
		return fmt.Errorf("backend %s unavailable: %w", e.Backend(), err)
	}
	return c.Close()
}
