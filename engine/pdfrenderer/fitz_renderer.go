package pdfrenderer

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/drummonds/pagerender/document"
	"github.com/gen2brain/go-fitz"
)

// FitzEngine renders with go-fitz (requires CGo and MuPDF)
type FitzEngine struct{}

// NewFitzEngine creates a new Fitz-based engine
func NewFitzEngine() *FitzEngine {
	return &FitzEngine{}
}

func (e *FitzEngine) Backend() Backend { return BackendFitz }

func (e *FitzEngine) NewContext() (Context, error) {
	return &FitzContext{
		docs: newOpenDocuments(maxOpenDocuments, func(doc *fitz.Document) error { return doc.Close() }),
	}, nil
}

// Close is a no-op as documents belong to contexts
func (e *FitzEngine) Close() error {
	return nil
}

// FitzContext keeps recently used MuPDF documents open
type FitzContext struct {
	docs *openDocuments[*fitz.Document]
}

func (c *FitzContext) open(src *document.Source) (*fitz.Document, error) {
	if doc, ok := c.docs.get(src); ok {
		return doc, nil
	}
	if src == nil || len(src.Data) == 0 {
		return nil, errors.New("page has no document data")
	}
	doc, err := fitz.NewFromMemory(src.Data)
	if err != nil {
		return nil, fmt.Errorf("unable to open PDF document: %w", err)
	}
	c.docs.add(src, doc)
	return doc, nil
}

// RenderPage renders one page at the requested DPI using go-fitz
func (c *FitzContext) RenderPage(ctx context.Context, req Request) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := c.open(req.Page.Source)
	if err != nil {
		return nil, err
	}
	if req.Page.Index < 0 || req.Page.Index >= doc.NumPage() {
		return nil, fmt.Errorf("page %d out of range", req.Page.Index)
	}
	img, err := doc.ImageDPI(req.Page.Index, req.DPI)
	if err != nil {
		return nil, fmt.Errorf("unable to render page %d: %w", req.Page.Index, err)
	}
	return img, nil
}

// Close closes every open document
func (c *FitzContext) Close() error {
	return c.docs.closeAll()
}
