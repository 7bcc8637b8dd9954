package watermark

import "fmt"

// Overlay geometry in PDF points
const (
	LeftMargin  = 75.0 // x of every watermark line
	FirstLineY  = 50.0 // baseline of the first watermark line
	LineSpacing = 15.0 // each following line sits this much lower
	FooterInset = 62.0 // distance of the footer's right edge from the page's right edge (x=550 on letter)
	FooterY     = 50.0

	FontName  = "Helvetica"
	FontSize  = 12
	TextColor = "#9b9b9b"
)

// Corner is the page corner a stamp offset is measured from
type Corner string

const (
	BottomLeft  Corner = "bl"
	BottomRight Corner = "br"
)

// Stamp is a single line of overlay text
type Stamp struct {
	Text   string
	Corner Corner
	DX, DY float64
}

// Options selects which overlays are applied
type Options struct {
	ReceivedWatermark bool
	PageNumbers       bool
}

// Layout returns the stamps for every page; index 0 holds page 1.
// Watermark lines are the same on every page, the footer is built per page.
func Layout(pageCount int, lines []string, opts Options) [][]Stamp {
	pages := make([][]Stamp, pageCount)

	var mark []Stamp
	if opts.ReceivedWatermark {
		y := FirstLineY
		for _, line := range lines {
			mark = append(mark, Stamp{Text: line, Corner: BottomLeft, DX: LeftMargin, DY: y})
			y -= LineSpacing
		}
	}

	for i := range pages {
		stamps := append([]Stamp(nil), mark...)
		if opts.PageNumbers {
			stamps = append(stamps, Stamp{
				Text:   PageLabel(i+1, pageCount),
				Corner: BottomRight,
				DX:     -FooterInset,
				DY:     FooterY,
			})
		}
		pages[i] = stamps
	}

	return pages
}

// PageLabel returns the footer text for a page
func PageLabel(page, total int) string {
	return fmt.Sprintf("Page %d of %d", page, total)
}
