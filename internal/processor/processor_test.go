package processor

import (
	"context"
	"errors"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mixelka/pdfingest/internal/barcode"
	"github.com/mixelka/pdfingest/internal/pdftest"
	"github.com/mixelka/pdfingest/internal/render"
	"github.com/mixelka/pdfingest/internal/watermark"
	"github.com/mixelka/pdfingest/pkg/models"
)

type fakeRenderer struct {
	calls int
	err   error
}

func (f *fakeRenderer) FirstPage([]byte) (image.Image, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return image.NewGray(image.Rect(0, 0, 10, 10)), nil
}

type fakeValidator struct {
	symbols []barcode.Symbol
	err     error
}

func (f *fakeValidator) Valid(image.Image) ([]barcode.Symbol, error) {
	return f.symbols, f.err
}

type fakeCompositor struct {
	calls int
	name  string
	lines []string
	err   error
}

func (f *fakeCompositor) Compose(_ []byte, name string, lines []string) (string, error) {
	f.calls++
	f.name, f.lines = name, lines
	if f.err != nil {
		return "", f.err
	}
	return "/scans/" + name + ".pdf", nil
}

type fixture struct {
	renderer   *fakeRenderer
	validator  *fakeValidator
	compositor *fakeCompositor
	proc       *Processor
}

func newFixture(domains ...string) *fixture {
	if len(domains) == 0 {
		domains = []string{"a.com"}
	}
	f := &fixture{
		renderer:   &fakeRenderer{},
		validator:  &fakeValidator{symbols: []barcode.Symbol{{Type: "QRCODE", Data: []byte("CASE-0001")}}},
		compositor: &fakeCompositor{},
	}
	anySender := len(domains) == 1 && domains[0] == "*"
	f.proc = New(Config{AnySender: anySender, AllowedDomains: domains, Location: time.UTC},
		f.renderer, f.validator, f.compositor, slog.New(slog.NewTextHandler(io.Discard, nil)))
	f.proc.now = func() time.Time { return time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC) }
	return f
}

func pdfMessage(from string) *models.InboundMessage {
	return &models.InboundMessage{
		From:    from,
		Subject: "Scan",
		Attachments: []models.Attachment{
			{ContentType: models.PDFContentType, Filename: "scan.pdf", Data: []byte("%PDF-1.4")},
		},
	}
}

func TestProcessAccepts(t *testing.T) {
	f := newFixture()

	out, err := f.proc.Process(context.Background(), pdfMessage("clerk@a.com"))
	require.NoError(t, err)

	assert.Equal(t, models.OutcomeAccepted, out.Kind)
	assert.Equal(t, "CASE-0001", out.Barcode)
	assert.Equal(t, "/scans/CASE-0001.pdf", out.Path)
	assert.False(t, out.Notifies())

	assert.Equal(t, "CASE-0001", f.compositor.name)
	assert.Equal(t, []string{"CASE-0001", "01/02/2026 03:04:05 PM by clerk"}, f.compositor.lines)
}

func TestProcessTimestampUsesZone(t *testing.T) {
	f := newFixture()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	f.proc.loc = loc

	_, err = f.proc.Process(context.Background(), pdfMessage("clerk@a.com"))
	require.NoError(t, err)
	assert.Equal(t, "01/02/2026 10:04:05 AM by clerk", f.compositor.lines[1])
}

func TestProcessDropsEmptySender(t *testing.T) {
	f := newFixture()

	out, err := f.proc.Process(context.Background(), pdfMessage(""))
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeDropped, out.Kind)
	assert.False(t, out.Notifies())
	assert.Zero(t, f.renderer.calls)
}

func TestProcessSenderDomain(t *testing.T) {
	tests := []struct {
		name    string
		domains []string
		from    string
		want    models.OutcomeKind
	}{
		{"listed", []string{"a.com", "b.org"}, "clerk@b.org", models.OutcomeAccepted},
		{"case insensitive", []string{"A.com"}, "clerk@a.COM", models.OutcomeAccepted},
		{"not listed", []string{"a.com"}, "clerk@evil.com", models.OutcomeDropped},
		{"subdomain not listed", []string{"a.com"}, "clerk@scan.a.com", models.OutcomeDropped},
		{"no at sign", []string{"a.com"}, "a.com", models.OutcomeDropped},
		{"wildcard", []string{"*"}, "anyone@anywhere.net", models.OutcomeAccepted},
		{"wildcard without at sign", []string{"*"}, "scanner", models.OutcomeAccepted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(tt.domains...)
			out, err := f.proc.Process(context.Background(), pdfMessage(tt.from))
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Kind)
			if tt.want == models.OutcomeDropped {
				assert.Zero(t, f.renderer.calls)
			}
		})
	}
}

func TestProcessAttachmentCount(t *testing.T) {
	for _, n := range []int{0, 2} {
		f := newFixture()
		msg := pdfMessage("clerk@a.com")
		msg.Attachments = nil
		for i := 0; i < n; i++ {
			msg.Attachments = append(msg.Attachments, models.Attachment{ContentType: models.PDFContentType})
		}

		out, err := f.proc.Process(context.Background(), msg)
		require.NoError(t, err)
		assert.Equal(t, models.OutcomeRejected, out.Kind)
		assert.Equal(t, models.RejectAttachmentCount, out.Reason)
		assert.True(t, out.Notifies())
		assert.Zero(t, f.renderer.calls)
	}
}

func TestProcessAttachmentType(t *testing.T) {
	f := newFixture()
	msg := pdfMessage("clerk@a.com")
	msg.Attachments[0].ContentType = "image/png"

	out, err := f.proc.Process(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, models.RejectAttachmentType, out.Reason)
	assert.Zero(t, f.renderer.calls)
}

func TestProcessBarcodeCount(t *testing.T) {
	tests := []struct {
		name    string
		symbols []barcode.Symbol
	}{
		{"none", nil},
		{"two", []barcode.Symbol{{Type: "QRCODE", Data: []byte("A")}, {Type: "QRCODE", Data: []byte("B")}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			f.validator.symbols = tt.symbols

			out, err := f.proc.Process(context.Background(), pdfMessage("clerk@a.com"))
			require.NoError(t, err)
			assert.Equal(t, models.OutcomeRejected, out.Kind)
			assert.Equal(t, models.RejectBarcode, out.Reason)
			assert.Zero(t, f.compositor.calls)
		})
	}
}

func TestProcessFaultsAreErrors(t *testing.T) {
	t.Run("render", func(t *testing.T) {
		f := newFixture()
		f.renderer.err = errors.New("corrupt")
		_, err := f.proc.Process(context.Background(), pdfMessage("clerk@a.com"))
		assert.ErrorContains(t, err, "corrupt")
	})

	t.Run("validate", func(t *testing.T) {
		f := newFixture()
		f.validator.err = errors.New("decoder crashed")
		_, err := f.proc.Process(context.Background(), pdfMessage("clerk@a.com"))
		assert.ErrorContains(t, err, "decoder crashed")
	})

	t.Run("compose", func(t *testing.T) {
		f := newFixture()
		f.compositor.err = errors.New("disk full")
		_, err := f.proc.Process(context.Background(), pdfMessage("clerk@a.com"))
		assert.ErrorContains(t, err, "disk full")
	})
}

// qrSymbol places a QR code with 4pt modules at x, y points from the top left
func qrSymbol(t *testing.T, text string, x, y float64) pdftest.Symbol {
	t.Helper()
	m, err := qrcode.NewQRCodeWriter().Encode(text, gozxing.BarcodeFormat_QR_CODE, 0, 0, nil)
	require.NoError(t, err)
	return pdftest.Symbol{Modules: m, X: x, Y: y, Module: 4}
}

// newPipeline wires a processor to the real renderer, decoder and compositor
func newPipeline(t *testing.T, dir string) *Processor {
	t.Helper()
	dec, err := barcode.NewZXingDecoder([]string{"QRCODE"})
	require.NoError(t, err)

	p := New(Config{AllowedDomains: []string{"a.com"}, Location: time.UTC},
		render.NewRenderer(),
		barcode.NewValidator(dec, []string{"QRCODE"}, regexp.MustCompile(`^CASE-\d{4}`)),
		watermark.NewCompositor(dir, watermark.Options{ReceivedWatermark: true, PageNumbers: true}),
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	p.now = func() time.Time { return time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC) }
	return p
}

func TestProcessWritesStampedScan(t *testing.T) {
	dir := t.TempDir()
	p := newPipeline(t, dir)

	msg := pdfMessage("clerk@a.com")
	msg.Attachments[0].Data = pdftest.DocumentWithSymbols(3, qrSymbol(t, "CASE-0042", 72, 72))

	out, err := p.Process(context.Background(), msg)
	require.NoError(t, err)
	require.Equal(t, models.OutcomeAccepted, out.Kind, out.Detail)
	assert.Equal(t, "CASE-0042", out.Barcode)
	assert.Equal(t, filepath.Join(dir, "CASE-0042.pdf"), out.Path)

	written, err := os.ReadFile(out.Path)
	require.NoError(t, err)
	count, err := watermark.NewCompositor(dir, watermark.Options{}).PageCount(written)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestProcessRejectsTwoBarcodesOnPage(t *testing.T) {
	dir := t.TempDir()
	p := newPipeline(t, dir)

	msg := pdfMessage("clerk@a.com")
	msg.Attachments[0].Data = pdftest.DocumentWithSymbols(1,
		qrSymbol(t, "CASE-0042", 72, 72),
		qrSymbol(t, "CASE-0043", 360, 72))

	out, err := p.Process(context.Background(), msg)
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeRejected, out.Kind)
	assert.Equal(t, models.RejectBarcode, out.Reason)
	assert.Contains(t, out.Detail, "found 2")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
