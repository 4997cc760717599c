package document

import (
	"bytes"
	"fmt"
)

// NewBlank returns an in-memory PDF with one empty page per size
func NewBlank(name string, sizes ...Size) (*PDF, error) {
	boxes := make([][4]float64, len(sizes))
	for i, s := range sizes {
		boxes[i] = [4]float64{0, 0, s.Width, s.Height}
	}
	return OpenMemory(name, buildPDF(boxes, nil, 0))
}

// buildPDF writes a minimal PDF with one page per MediaBox entry. A non-zero
// rotate is written as /Rotate on the page, parentRotate goes on the tree root.
func buildPDF(boxes [][4]float64, rotates []int, parentRotate int) []byte {
	var buf bytes.Buffer
	var offsets []int
	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.7\n")
	obj("<< /Type /Catalog /Pages 2 0 R >>")

	kids := ""
	for i := range boxes {
		kids += fmt.Sprintf("%d 0 R ", i+3)
	}
	root := fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d", kids, len(boxes))
	if parentRotate != 0 {
		root += fmt.Sprintf(" /Rotate %d", parentRotate)
	}
	obj(root + " >>")

	for i, b := range boxes {
		page := fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [%g %g %g %g]", b[0], b[1], b[2], b[3])
		if rotates != nil && rotates[i] != 0 {
			page += fmt.Sprintf(" /Rotate %d", rotates[i])
		}
		obj(page + " >>")
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", len(offsets)+1)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return buf.Bytes()
}
