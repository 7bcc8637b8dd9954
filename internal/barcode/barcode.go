// Package barcode finds the symbols on a rendered page that identify a scanned document.
package barcode

import (
	"fmt"
	"image"
	"regexp"
	"strings"
)

// Symbol is one decoded barcode
type Symbol struct {
	Type string // zbar style type tag, e.g. QRCODE or CODE128
	Data []byte // Decoded payload
}

// Text returns the payload decoded as UTF-8
func (s Symbol) Text() string {
	return string(s.Data)
}

// Decoder detects and decodes every symbol in an image
type Decoder interface {
	Decode(img image.Image) ([]Symbol, error)
}

// Validator keeps the decoded symbols that pass the type allowlist and the content pattern
type Validator struct {
	decoder Decoder
	types   map[string]bool
	pattern *regexp.Regexp
}

// NewValidator creates a validator. pattern is applied with MatchString, so it should be
// anchored by the caller.
func NewValidator(decoder Decoder, types []string, pattern *regexp.Regexp) *Validator {
	allowed := make(map[string]bool, len(types))
	for _, t := range types {
		allowed[strings.ToUpper(strings.TrimSpace(t))] = true
	}
	return &Validator{
		decoder: decoder,
		types:   allowed,
		pattern: pattern,
	}
}

// Valid returns the valid symbols in decoder order
func (v *Validator) Valid(img image.Image) ([]Symbol, error) {
	symbols, err := v.decoder.Decode(img)
	if err != nil {
		return nil, fmt.Errorf("failed to decode barcodes: %w", err)
	}

	var valid []Symbol
	for _, sym := range symbols {
		// the decoder reads more types than the intake accepts
		if !v.types[sym.Type] {
			continue
		}
		if !v.pattern.MatchString(sym.Text()) {
			continue
		}
		valid = append(valid, sym)
	}

	return valid, nil
}
