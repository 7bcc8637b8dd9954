// Package render rasterizes PDF pages for barcode detection.
package render

import (
	"bytes"
	"fmt"
	"image"

	"github.com/gen2brain/go-fitz"
)

// DPI is the resolution pages are rendered at. PDF user space is 72 DPI,
// so this is a 300/72 scale over the page's intrinsic size.
const DPI = 300

// headerWindow is how far into the file the %PDF- marker may appear
const headerWindow = 1024

// DocumentFormatError is returned when the input is not a usable PDF
type DocumentFormatError struct {
	Message string
	Err     error
}

func (e *DocumentFormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid document: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("invalid document: %s", e.Message)
}

func (e *DocumentFormatError) Unwrap() error {
	return e.Err
}

// Renderer renders PDF pages with MuPDF
type Renderer struct {
	dpi float64
}

// NewRenderer creates a renderer at the default resolution
func NewRenderer() *Renderer {
	return &Renderer{dpi: DPI}
}

// FirstPage renders page 1 of pdf
func (r *Renderer) FirstPage(pdf []byte) (image.Image, error) {
	if len(pdf) == 0 {
		return nil, &DocumentFormatError{Message: "empty document"}
	}

	// MuPDF opens images and text too; only PDFs are accepted here
	head := pdf[:min(len(pdf), headerWindow)]
	if !bytes.Contains(head, []byte("%PDF-")) {
		return nil, &DocumentFormatError{Message: "missing PDF header"}
	}

	doc, err := fitz.NewFromMemory(pdf)
	if err != nil {
		return nil, &DocumentFormatError{Message: "failed to open PDF", Err: err}
	}
	defer doc.Close()

	if doc.NumPage() == 0 {
		return nil, &DocumentFormatError{Message: "PDF has no pages"}
	}

	img, err := doc.ImageDPI(0, r.dpi)
	if err != nil {
		return nil, fmt.Errorf("failed to render first page: %w", err)
	}

	return img, nil
}
