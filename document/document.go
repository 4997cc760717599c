// Package document describes the paginated inputs the renderer consumes.
// A Document only has to report its page count and hand out pages; a Page
// reports its displayed size in points, its intrinsic rotation and an opaque
// handle the rasterization engines understand.
package document

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/oklog/ulid/v2"
)

// Logger is global since we will need it everywhere
var Logger = slog.New(slog.DiscardHandler)

// Rotation is a clockwise page rotation in degrees, one of 0, 90, 180 or 270
type Rotation int

const (
	Rotate0   Rotation = 0
	Rotate90  Rotation = 90
	Rotate180 Rotation = 180
	Rotate270 Rotation = 270
)

// Normalize folds any multiple of 90 degrees into [0, 360)
func (r Rotation) Normalize() Rotation {
	n := int(r) % 360
	if n < 0 {
		n += 360
	}
	return Rotation(n)
}

// Valid reports whether r is a quarter turn
func (r Rotation) Valid() bool {
	return int(r)%90 == 0
}

// Swaps reports whether the rotation exchanges width and height
func (r Rotation) Swaps() bool {
	n := r.Normalize()
	return n == Rotate90 || n == Rotate270
}

// Source is the raw document data shared by all pages of one document.
// Engines key their open documents on the *Source pointer.
type Source struct {
	ID   string
	Name string
	Data []byte
}

// NewSource wraps document bytes with a fresh identifier
func NewSource(name string, data []byte) *Source {
	return &Source{ID: ulid.Make().String(), Name: name, Data: data}
}

// Handle identifies one page of one source. Handles are comparable and are
// used as the render cache key.
type Handle struct {
	Source *Source
	Index  int
}

func (h Handle) String() string {
	if h.Source == nil {
		return fmt.Sprintf("<nil>#%d", h.Index)
	}
	return fmt.Sprintf("%s#%d", h.Source.ID, h.Index)
}

// Page is a single renderable page
type Page interface {
	// Width is the displayed width in points after the page's own rotation
	Width() float64
	// Height is the displayed height in points after the page's own rotation
	Height() float64
	Rotation() Rotation
	Handle() Handle
}

// Document is an ordered set of pages
type Document interface {
	PageCount() int
	// Page returns nil when index is out of range
	Page(index int) Page
}

// Pages collects the pages of doc, skipping any the document cannot produce
func Pages(doc Document) []Page {
	if doc == nil {
		return nil
	}
	pages := make([]Page, 0, doc.PageCount())
	for i := 0; i < doc.PageCount(); i++ {
		if p := doc.Page(i); p != nil {
			pages = append(pages, p)
		}
	}
	return pages
}

// Open reads a document from disk
func Open(path string) (*PDF, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read document: %w", err)
	}
	return OpenMemory(path, data)
}
