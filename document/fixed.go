package document

// Fixed is a document built from known page sizes. It backs blank documents
// for the draft engine and documents whose geometry was computed elsewhere.
type Fixed struct {
	src   *Source
	pages []*FixedPage
}

// FixedPage is a page with explicit geometry
type FixedPage struct {
	handle        Handle
	width, height float64
	rotation      Rotation
}

// Size is an unrotated page size in points
type Size struct {
	Width, Height float64
}

// Common page sizes
var (
	Letter = Size{612, 792}
	A4     = Size{595, 842}
)

// NewFixed creates a document with one page per size
func NewFixed(name string, sizes ...Size) *Fixed {
	d := &Fixed{src: NewSource(name, nil)}
	for _, s := range sizes {
		d.Add(s, Rotate0)
	}
	return d
}

// Add appends a page and returns it
func (d *Fixed) Add(s Size, rot Rotation) *FixedPage {
	rot = rot.Normalize()
	p := &FixedPage{
		handle:   Handle{Source: d.src, Index: len(d.pages)},
		width:    s.Width,
		height:   s.Height,
		rotation: rot,
	}
	if rot.Swaps() {
		p.width, p.height = s.Height, s.Width
	}
	d.pages = append(d.pages, p)
	return p
}

func (d *Fixed) Source() *Source { return d.src }

func (d *Fixed) PageCount() int { return len(d.pages) }

func (d *Fixed) Page(index int) Page {
	if index < 0 || index >= len(d.pages) {
		return nil
	}
	return d.pages[index]
}

func (p *FixedPage) Width() float64     { return p.width }
func (p *FixedPage) Height() float64    { return p.height }
func (p *FixedPage) Rotation() Rotation { return p.rotation }
func (p *FixedPage) Handle() Handle     { return p.handle }
