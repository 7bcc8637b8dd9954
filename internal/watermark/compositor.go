// Package watermark stamps provenance text and page numbers onto ingested PDFs.
package watermark

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// ErrUnsafeName is returned when an output name is not a plain file name
var ErrUnsafeName = errors.New("unsafe output file name")

// ErrUnstampableText is returned for overlay text that pdfcpu would read as
// a page or time placeholder (%p, %P, %t, %v)
var ErrUnstampableText = errors.New("overlay text contains a placeholder")

func init() {
	// pdfcpu would otherwise create a config dir under the user's home
	api.DisableConfigDir()
}

// Compositor applies overlays and writes the result to the output directory
type Compositor struct {
	dir  string
	opts Options
	conf *model.Configuration
}

// NewCompositor creates a compositor writing into dir
func NewCompositor(dir string, opts Options) *Compositor {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed

	return &Compositor{
		dir:  dir,
		opts: opts,
		conf: conf,
	}
}

// Compose stamps pdf and writes it to {dir}/{name}.pdf, replacing any existing file.
// It returns the written path.
func (c *Compositor) Compose(pdf []byte, name string, lines []string) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}

	out, err := c.Apply(pdf, lines)
	if err != nil {
		return "", err
	}

	path := filepath.Join(c.dir, name+".pdf")
	if err := writeFile(path, out); err != nil {
		return "", err
	}

	return path, nil
}

// Apply returns pdf with the configured overlays merged onto every page
func (c *Compositor) Apply(pdf []byte, lines []string) ([]byte, error) {
	if !c.opts.ReceivedWatermark && !c.opts.PageNumbers {
		return pdf, nil
	}

	if c.opts.ReceivedWatermark {
		for _, line := range lines {
			if _, err := escapeText(line); err != nil {
				return nil, err
			}
		}
	}

	pageCount, err := api.PageCount(bytes.NewReader(pdf), c.conf)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF: %w", err)
	}

	stamps := make(map[int][]*model.Watermark, pageCount)
	for i, page := range Layout(pageCount, lines, c.opts) {
		for _, s := range page {
			text, err := escapeText(s.Text)
			if err != nil {
				return nil, err
			}
			wm, err := api.TextWatermark(text, description(s), true, false, types.POINTS)
			if err != nil {
				return nil, fmt.Errorf("failed to build overlay %q: %w", s.Text, err)
			}
			stamps[i+1] = append(stamps[i+1], wm)
		}
	}

	if len(stamps) == 0 {
		return pdf, nil
	}

	var buf bytes.Buffer
	if err := api.AddWatermarksSliceMap(bytes.NewReader(pdf), &buf, stamps, c.conf); err != nil {
		return nil, fmt.Errorf("failed to merge overlays: %w", err)
	}

	return buf.Bytes(), nil
}

// PageCount returns the number of pages in pdf
func (c *Compositor) PageCount(pdf []byte) (int, error) {
	return api.PageCount(bytes.NewReader(pdf), c.conf)
}

func description(s Stamp) string {
	return fmt.Sprintf("fontname:%s, points:%d, position:%s, offset:%g %g, scalefactor:1 abs, rotation:0, fillcolor:%s, opacity:1",
		FontName, FontSize, s.Corner, s.DX, s.DY, TextColor)
}

// escapeText prepares text for pdfcpu, which prints a run of n percent signs
// as n-1 and expands a run followed by p, P, t or v. Each run gets one extra
// percent sign; text holding a placeholder is refused.
func escapeText(text string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(text); i++ {
		if text[i] != '%' {
			b.WriteByte(text[i])
			continue
		}
		j := i
		for j < len(text) && text[j] == '%' {
			j++
		}
		if j < len(text) && strings.IndexByte("pPtv", text[j]) >= 0 {
			return "", fmt.Errorf("%w: %q", ErrUnstampableText, text)
		}
		b.WriteString(strings.Repeat("%", j-i+1))
		i = j - 1
	}
	return b.String(), nil
}

// checkName refuses names that would leave the output directory
func checkName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, "/\\\x00") {
		return fmt.Errorf("%w: %q", ErrUnsafeName, name)
	}
	return nil
}

// writeFile replaces path atomically so readers never see a partial PDF
func writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".ingest-*.pdf")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return fmt.Errorf("failed to set permissions on %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	return nil
}
