// Package processor decides what happens to one inbound scan.
package processor

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"strings"
	"time"

	"github.com/mixelka/pdfingest/internal/barcode"
	"github.com/mixelka/pdfingest/internal/mailbox"
	"github.com/mixelka/pdfingest/pkg/models"
)

// TimestampLayout is the layout of the received stamp
const TimestampLayout = "01/02/2006 03:04:05 PM"

// Renderer rasterizes the first page of a PDF
type Renderer interface {
	FirstPage(pdf []byte) (image.Image, error)
}

// Validator returns the valid barcodes on an image
type Validator interface {
	Valid(img image.Image) ([]barcode.Symbol, error)
}

// Compositor stamps a PDF and saves it under name
type Compositor interface {
	Compose(pdf []byte, name string, lines []string) (string, error)
}

// Config holds the processor settings
type Config struct {
	AnySender      bool           // skip the domain check
	AllowedDomains []string       // Sender domains accepted when AnySender is off
	Location       *time.Location // Zone of the received stamp
}

// Processor runs the decision tree for a message
type Processor struct {
	renderer   Renderer
	validator  Validator
	compositor Compositor
	anyDomain  bool
	domains    map[string]bool
	loc        *time.Location
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a processor
func New(cfg Config, renderer Renderer, validator Validator, compositor Compositor, logger *slog.Logger) *Processor {
	p := &Processor{
		renderer:   renderer,
		validator:  validator,
		compositor: compositor,
		anyDomain:  cfg.AnySender,
		domains:    make(map[string]bool, len(cfg.AllowedDomains)),
		loc:        cfg.Location,
		logger:     logger.With("component", "processor"),
		now:        time.Now,
	}
	if p.loc == nil {
		p.loc = time.UTC
	}

	for _, d := range cfg.AllowedDomains {
		p.domains[strings.ToLower(strings.TrimSpace(d))] = true
	}

	return p
}

// Process decides the outcome for msg. Rejections are returned as outcomes;
// an error means the message could not be processed at all.
func (p *Processor) Process(ctx context.Context, msg *models.InboundMessage) (models.Outcome, error) {
	if msg.From == "" {
		return models.Dropped("message has no sender"), nil
	}

	// Unknown senders are dropped without a reply so the intake address
	// never answers spam.
	if !p.senderAllowed(msg.From) {
		return models.Dropped(fmt.Sprintf("sender domain not allowed: %s", msg.From)), nil
	}

	if len(msg.Attachments) != 1 {
		return models.Rejected(models.RejectAttachmentCount,
			fmt.Sprintf("expected 1 attachment, got %d", len(msg.Attachments))), nil
	}

	att := msg.Attachments[0]
	if !strings.EqualFold(att.ContentType, models.PDFContentType) {
		return models.Rejected(models.RejectAttachmentType,
			fmt.Sprintf("attachment %q has type %s", att.Filename, att.ContentType)), nil
	}

	if err := ctx.Err(); err != nil {
		return models.Outcome{}, err
	}

	img, err := p.renderer.FirstPage(att.Data)
	if err != nil {
		return models.Outcome{}, fmt.Errorf("failed to render %q: %w", att.Filename, err)
	}

	symbols, err := p.validator.Valid(img)
	if err != nil {
		return models.Outcome{}, fmt.Errorf("failed to validate barcodes: %w", err)
	}
	if len(symbols) != 1 {
		return models.Rejected(models.RejectBarcode,
			fmt.Sprintf("expected 1 valid barcode, found %d", len(symbols))), nil
	}

	code := symbols[0].Text()
	lines := []string{
		code,
		fmt.Sprintf("%s by %s", p.now().In(p.loc).Format(TimestampLayout), mailbox.LocalPart(msg.From)),
	}

	path, err := p.compositor.Compose(att.Data, code, lines)
	if err != nil {
		return models.Outcome{}, fmt.Errorf("failed to save %s: %w", code, err)
	}

	p.logger.Debug("stamped document saved", "barcode", code, "path", path)

	return models.Accepted(code, path), nil
}

func (p *Processor) senderAllowed(from string) bool {
	if p.anyDomain {
		return true
	}
	domain := mailbox.DomainOf(from)
	if domain == "" {
		return false
	}
	return p.domains[domain]
}
