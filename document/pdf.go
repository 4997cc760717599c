package document

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"github.com/ledongthuc/pdf"
	"seehuhn.de/go/geom/rect"
)

// letter is used when a page tree carries no MediaBox at all
var letter = rect.Rect{URx: 612, URy: 792}

// PDF is a document whose page geometry was read from a PDF file
type PDF struct {
	src   *Source
	pages []*PDFPage
}

// PDFPage is one page of a PDF
type PDFPage struct {
	handle   Handle
	box      rect.Rect
	rotation Rotation
}

// OpenMemory parses the page tree of an in-memory PDF
func OpenMemory(name string, data []byte) (doc *PDF, err error) {
	// the parser panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			doc = nil
			err = fmt.Errorf("unable to parse PDF %s: %v", name, r)
		}
	}()

	if len(data) == 0 {
		return nil, errors.New("empty document")
	}
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("unable to parse PDF %s: %w", name, err)
	}

	src := NewSource(name, data)
	doc = &PDF{src: src}
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		v := reader.Page(i).V
		box := pageBox(v, "CropBox")
		if box.IsZero() {
			box = pageBox(v, "MediaBox")
		}
		if box.IsZero() {
			box = letter
		}
		rot := Rotation(inherited(v, "Rotate").Int64())
		if !rot.Valid() {
			Logger.Warn("Ignoring invalid page rotation", "document", name, "page", i, "rotate", int(rot))
			rot = Rotate0
		}
		doc.pages = append(doc.pages, &PDFPage{
			handle:   Handle{Source: src, Index: i - 1},
			box:      box,
			rotation: rot.Normalize(),
		})
	}
	Logger.Debug("Opened document", "name", name, "pages", numPages, "id", src.ID)
	return doc, nil
}

// inherited looks a page attribute up the page tree
func inherited(v pdf.Value, key string) pdf.Value {
	for depth := 0; depth < 32 && !v.IsNull(); depth++ {
		if attr := v.Key(key); !attr.IsNull() {
			return attr
		}
		v = v.Key("Parent")
	}
	return pdf.Value{}
}

func pageBox(v pdf.Value, key string) rect.Rect {
	arr := inherited(v, key)
	if arr.Len() != 4 {
		return rect.Rect{}
	}
	x0, y0 := arr.Index(0).Float64(), arr.Index(1).Float64()
	x1, y1 := arr.Index(2).Float64(), arr.Index(3).Float64()
	r := rect.Rect{
		LLx: math.Min(x0, x1), LLy: math.Min(y0, y1),
		URx: math.Max(x0, x1), URy: math.Max(y0, y1),
	}
	if r.Dx() <= 0 || r.Dy() <= 0 {
		return rect.Rect{}
	}
	return r
}

// Source returns the bytes the document was opened from
func (d *PDF) Source() *Source { return d.src }

func (d *PDF) PageCount() int { return len(d.pages) }

func (d *PDF) Page(index int) Page {
	if index < 0 || index >= len(d.pages) {
		return nil
	}
	return d.pages[index]
}

func (p *PDFPage) Width() float64 {
	if p.rotation.Swaps() {
		return p.box.Dy()
	}
	return p.box.Dx()
}

func (p *PDFPage) Height() float64 {
	if p.rotation.Swaps() {
		return p.box.Dx()
	}
	return p.box.Dy()
}

func (p *PDFPage) Rotation() Rotation { return p.rotation }

func (p *PDFPage) Handle() Handle { return p.handle }

// Box is the unrotated visible area of the page in default user space
func (p *PDFPage) Box() rect.Rect { return p.box }
