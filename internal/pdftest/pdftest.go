// Package pdftest builds small, well-formed PDF documents for tests.
package pdftest

import (
	"bytes"
	"fmt"
)

// Letter page size in points
const (
	PageWidth  = 612
	PageHeight = 792
)

// blackBox is drawn on pages without symbols so that they render to something
const blackBox = "0 0 0 rg 72 700 100 20 re f"

// Modules is a grid of dark and light modules, such as a gozxing BitMatrix
type Modules interface {
	GetWidth() int
	GetHeight() int
	Get(x, y int) bool
}

// Symbol places a barcode on the first page. X and Y locate its top left
// corner in points from the top left of the page.
type Symbol struct {
	Modules Modules
	X, Y    float64
	Module  float64 // side of one module in points
}

// Document returns an uncompressed PDF with the given number of letter pages.
// Every page carries a small black box.
func Document(pages int) []byte {
	return build(pages, blackBox)
}

// DocumentWithSymbols is like Document, but the first page carries the
// given symbols drawn as filled rectangles instead of the black box.
func DocumentWithSymbols(pages int, symbols ...Symbol) []byte {
	var content bytes.Buffer
	content.WriteString("0 0 0 rg\n")
	for _, s := range symbols {
		m := s.Modules
		for y := 0; y < m.GetHeight(); y++ {
			top := PageHeight - s.Y - float64(y+1)*s.Module
			for x := 0; x < m.GetWidth(); {
				if !m.Get(x, y) {
					x++
					continue
				}
				run := x
				for run < m.GetWidth() && m.Get(run, y) {
					run++
				}
				fmt.Fprintf(&content, "%g %g %g %g re\n", s.X+float64(x)*s.Module, top, float64(run-x)*s.Module, s.Module)
				x = run
			}
		}
	}
	content.WriteString("f")

	return build(pages, content.String())
}

// build writes the document; first is the content of page 1
func build(pages int, first string) []byte {
	var buf bytes.Buffer
	var offsets []int

	obj := func(body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	buf.WriteString("%PDF-1.4\n")
	obj("<< /Type /Catalog /Pages 2 0 R >>")

	var kids bytes.Buffer
	for i := 0; i < pages; i++ {
		fmt.Fprintf(&kids, "%d 0 R ", 3+2*i)
	}
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", kids.String(), pages))

	for i := 0; i < pages; i++ {
		content := blackBox
		if i == 0 {
			content = first
		}
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %d %d] /Resources << >> /Contents %d 0 R >>",
			PageWidth, PageHeight, 4+2*i))
		obj(fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}

	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)

	return buf.Bytes()
}
