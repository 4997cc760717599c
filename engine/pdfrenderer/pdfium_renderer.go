package pdfrenderer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"math"
	"sync"
	"time"

	"github.com/drummonds/pagerender/document"
	"github.com/hashicorp/go-multierror"
	"github.com/klippa-app/go-pdfium"
	"github.com/klippa-app/go-pdfium/requests"
	"github.com/klippa-app/go-pdfium/responses"
	"github.com/klippa-app/go-pdfium/webassembly"
)

// PDFiumEngine owns the WebAssembly worker pool; every context holds one instance
type PDFiumEngine struct {
	mu   sync.Mutex
	pool pdfium.Pool
}

// NewPDFiumEngine initializes PDFium with WebAssembly (pure Go, no CGo)
func NewPDFiumEngine() (*PDFiumEngine, error) {
	pool, err := webassembly.Init(webassembly.Config{
		MinIdle:  1,
		MaxIdle:  4,
		MaxTotal: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PDFium WebAssembly: %w", err)
	}
	return &PDFiumEngine{pool: pool}, nil
}

func (e *PDFiumEngine) Backend() Backend { return BackendPDFium }

// NewContext takes a PDFium instance from the pool
func (e *PDFiumEngine) NewContext() (Context, error) {
	e.mu.Lock()
	pool := e.pool
	e.mu.Unlock()
	if pool == nil {
		return nil, errors.New("PDFium engine is closed")
	}

	instance, err := pool.GetInstance(time.Second * 30)
	if err != nil {
		return nil, fmt.Errorf("failed to get PDFium instance: %w", err)
	}
	Logger.Debug("PDFium instance acquired")
	c := &PDFiumContext{instance: instance}
	c.docs = newOpenDocuments(maxOpenDocuments, c.closeDocument)
	return c, nil
}

// Close shuts down the WebAssembly pool
func (e *PDFiumEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pool == nil {
		return nil
	}
	err := e.pool.Close()
	e.pool = nil
	return err
}

// PDFiumContext renders with a single PDFium instance
type PDFiumContext struct {
	instance pdfium.Pdfium
	docs     *openDocuments[*responses.OpenDocument]
}

func (c *PDFiumContext) open(src *document.Source) (*responses.OpenDocument, error) {
	if doc, ok := c.docs.get(src); ok {
		return doc, nil
	}
	if src == nil || len(src.Data) == 0 {
		return nil, errors.New("page has no document data")
	}
	doc, err := c.instance.OpenDocument(&requests.OpenDocument{
		File: &src.Data,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to open PDF document: %w", err)
	}
	c.docs.add(src, doc)
	return doc, nil
}

func (c *PDFiumContext) closeDocument(doc *responses.OpenDocument) error {
	_, err := c.instance.FPDF_CloseDocument(&requests.FPDF_CloseDocument{
		Document: doc.Document,
	})
	return err
}

// RenderPage renders one page with PDFium
func (c *PDFiumContext) RenderPage(ctx context.Context, req Request) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	doc, err := c.open(req.Page.Source)
	if err != nil {
		return nil, err
	}

	pageCountResp, err := c.instance.FPDF_GetPageCount(&requests.FPDF_GetPageCount{
		Document: doc.Document,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to get page count: %w", err)
	}
	if req.Page.Index < 0 || req.Page.Index >= pageCountResp.PageCount {
		return nil, fmt.Errorf("page %d out of range", req.Page.Index)
	}

	pageRender, err := c.instance.RenderPageInDPI(&requests.RenderPageInDPI{
		DPI: int(math.Round(req.DPI)),
		Page: requests.Page{
			ByIndex: &requests.PageByIndex{
				Document: doc.Document,
				Index:    req.Page.Index,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("unable to render page %d: %w", req.Page.Index, err)
	}
	defer pageRender.Cleanup()

	// the image lives in WebAssembly memory released by Cleanup
	src := pageRender.Result.Image
	dst := image.NewRGBA(src.Bounds())
	draw.Draw(dst, dst.Rect, src, src.Bounds().Min, draw.Src)
	return dst, nil
}

// Close closes open documents and returns the instance to the pool
func (c *PDFiumContext) Close() error {
	var result *multierror.Error
	if err := c.docs.closeAll(); err != nil {
		result = multierror.Append(result, err)
	}
	if c.instance != nil {
		if err := c.instance.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("closing PDFium instance: %w", err))
		}
		c.instance = nil
	}
	return result.ErrorOrNil()
}
