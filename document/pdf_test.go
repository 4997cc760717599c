package document

import (
	"fmt"
	"testing"
)

func TestOpenMemory_PageGeometry(t *testing.T) {
	data := buildPDF([][4]float64{
		{0, 0, 612, 792},
		{0, 0, 595, 842},
		{10, 20, 310, 420},
	}, []int{0, 90, 0}, 0)

	doc, err := OpenMemory("geometry.pdf", data)
	if err != nil {
		t.Fatalf("Failed to open PDF: %v", err)
	}
	if doc.PageCount() != 3 {
		t.Fatalf("Expected 3 pages, got %d", doc.PageCount())
	}

	tests := []struct {
		index         int
		width, height float64
		rotation      Rotation
	}{
		{0, 612, 792, Rotate0},
		{1, 842, 595, Rotate90},
		{2, 300, 400, Rotate0},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("page %d", tt.index), func(t *testing.T) {
			p := doc.Page(tt.index)
			if p == nil {
				t.Fatal("Expected page, got nil")
			}
			if p.Width() != tt.width || p.Height() != tt.height {
				t.Errorf("Expected %vx%v, got %vx%v", tt.width, tt.height, p.Width(), p.Height())
			}
			if p.Rotation() != tt.rotation {
				t.Errorf("Expected rotation %d, got %d", tt.rotation, p.Rotation())
			}
			if h := p.Handle(); h.Index != tt.index || h.Source != doc.Source() {
				t.Errorf("Unexpected handle %v", h)
			}
		})
	}
}

func TestOpenMemory_InheritedRotation(t *testing.T) {
	doc, err := OpenMemory("inherit.pdf", buildPDF([][4]float64{{0, 0, 612, 792}}, nil, -90))
	if err != nil {
		t.Fatalf("Failed to open PDF: %v", err)
	}
	p := doc.Page(0)
	if p.Rotation() != Rotate270 {
		t.Errorf("Expected inherited rotation 270, got %d", p.Rotation())
	}
	if p.Width() != 792 || p.Height() != 612 {
		t.Errorf("Expected swapped extents, got %vx%v", p.Width(), p.Height())
	}
}

func TestOpenMemory_MissingPage(t *testing.T) {
	doc, err := OpenMemory("one.pdf", buildPDF([][4]float64{{0, 0, 100, 100}}, nil, 0))
	if err != nil {
		t.Fatalf("Failed to open PDF: %v", err)
	}
	if doc.Page(1) != nil || doc.Page(-1) != nil {
		t.Error("Expected nil for out of range pages")
	}
}

func TestOpenMemory_Garbage(t *testing.T) {
	if _, err := OpenMemory("junk.pdf", []byte("this is not a pdf")); err == nil {
		t.Error("Expected error for garbage input")
	}
	if _, err := OpenMemory("empty.pdf", nil); err == nil {
		t.Error("Expected error for empty input")
	}
}

func TestRotation(t *testing.T) {
	if Rotation(450).Normalize() != Rotate90 {
		t.Error("450 should normalize to 90")
	}
	if Rotation(-180).Normalize() != Rotate180 {
		t.Error("-180 should normalize to 180")
	}
	if Rotation(45).Valid() {
		t.Error("45 is not a quarter turn")
	}
	if !Rotate270.Swaps() || Rotate180.Swaps() {
		t.Error("Unexpected Swaps result")
	}
}

func TestFixed(t *testing.T) {
	doc := NewFixed("blank", Letter, A4)
	rotated := doc.Add(Letter, Rotate90)

	if doc.PageCount() != 3 {
		t.Fatalf("Expected 3 pages, got %d", doc.PageCount())
	}
	if rotated.Width() != 792 || rotated.Height() != 612 {
		t.Errorf("Expected rotated extents 792x612, got %vx%v", rotated.Width(), rotated.Height())
	}
	if doc.Page(0).Handle() == doc.Page(1).Handle() {
		t.Error("Handles of different pages must differ")
	}
	if got := len(Pages(doc)); got != 3 {
		t.Errorf("Expected 3 pages from Pages, got %d", got)
	}
}

func TestNewBlank(t *testing.T) {
	doc, err := NewBlank("blank.pdf", Letter, A4)
	if err != nil {
		t.Fatalf("NewBlank failed: %v", err)
	}
	if doc.PageCount() != 2 {
		t.Fatalf("Expected 2 pages, got %d", doc.PageCount())
	}
	if p := doc.Page(1); p.Width() != A4.Width || p.Height() != A4.Height {
		t.Errorf("page 1 is %gx%g, want A4", p.Width(), p.Height())
	}
	if len(doc.Source().Data) == 0 {
		t.Error("blank document has no data")
	}
}
