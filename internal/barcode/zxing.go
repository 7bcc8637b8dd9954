package barcode

import (
	"fmt"
	"image"
	"image/draw"
	"strings"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/datamatrix"
	multiqr "github.com/makiuchi-d/gozxing/multi/qrcode"
	"github.com/makiuchi-d/gozxing/oned"
)

// Region search limits for formats without a native multi reader
const (
	maxSearchDepth = 4
	minRegionSize  = 100 // pixels
)

type symbology struct {
	format    gozxing.BarcodeFormat
	newReader func() gozxing.Reader // nil for QRCODE, which has a multi reader
}

// symbologies maps the configured type tags to ZXing formats
var symbologies = map[string]symbology{
	"QRCODE":     {gozxing.BarcodeFormat_QR_CODE, nil},
	"CODE128":    {gozxing.BarcodeFormat_CODE_128, func() gozxing.Reader { return oned.NewCode128Reader() }},
	"CODE39":     {gozxing.BarcodeFormat_CODE_39, func() gozxing.Reader { return oned.NewCode39Reader() }},
	"CODE93":     {gozxing.BarcodeFormat_CODE_93, func() gozxing.Reader { return oned.NewCode93Reader() }},
	"EAN13":      {gozxing.BarcodeFormat_EAN_13, func() gozxing.Reader { return oned.NewEAN13Reader() }},
	"EAN8":       {gozxing.BarcodeFormat_EAN_8, func() gozxing.Reader { return oned.NewEAN8Reader() }},
	"UPCA":       {gozxing.BarcodeFormat_UPC_A, func() gozxing.Reader { return oned.NewUPCAReader() }},
	"UPCE":       {gozxing.BarcodeFormat_UPC_E, func() gozxing.Reader { return oned.NewUPCEReader() }},
	"I25":        {gozxing.BarcodeFormat_ITF, func() gozxing.Reader { return oned.NewITFReader() }},
	"CODABAR":    {gozxing.BarcodeFormat_CODABAR, func() gozxing.Reader { return oned.NewCodaBarReader() }},
	"DATAMATRIX": {gozxing.BarcodeFormat_DATA_MATRIX, func() gozxing.Reader { return datamatrix.NewDataMatrixReader() }},
}

// multiReader finds every symbol of one format in an image
type multiReader interface {
	decodeAll(img *image.Gray, hints map[gozxing.DecodeHintType]interface{}) ([]*gozxing.Result, error)
}

type namedReader struct {
	name   string
	reader multiReader
}

// ZXingDecoder decodes symbols with gozxing, one multi-symbol pass per configured type
type ZXingDecoder struct {
	readers []namedReader
	hints   map[gozxing.DecodeHintType]interface{}
}

// NewZXingDecoder creates a decoder for the given type tags
func NewZXingDecoder(types []string) (*ZXingDecoder, error) {
	d := &ZXingDecoder{
		hints: map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_TRY_HARDER: true,
		},
	}

	seen := make(map[string]bool)
	for _, t := range types {
		name := strings.ToUpper(strings.TrimSpace(t))
		if name == "" || seen[name] {
			continue
		}
		sym, ok := symbologies[name]
		if !ok {
			return nil, fmt.Errorf("unsupported barcode type %q", t)
		}
		seen[name] = true

		var r multiReader
		if sym.newReader == nil {
			r = qrReader{reader: multiqr.NewQRCodeMultiReader()}
		} else {
			r = &regionReader{reader: sym.newReader()}
		}
		d.readers = append(d.readers, namedReader{name: name, reader: r})
	}

	if len(d.readers) == 0 {
		return nil, fmt.Errorf("no barcode types configured")
	}

	return d, nil
}

// Decode implements Decoder
func (d *ZXingDecoder) Decode(img image.Image) ([]Symbol, error) {
	gray := toGray(img, img.Bounds())

	var symbols []Symbol
	for _, r := range d.readers {
		results, err := r.reader.decodeAll(gray, d.hints)
		if err != nil {
			return nil, fmt.Errorf("%s reader: %w", r.name, err)
		}
		for _, res := range results {
			symbols = append(symbols, Symbol{
				Type: typeName(res.GetBarcodeFormat(), r.name),
				Data: []byte(res.GetText()),
			})
		}
	}

	return symbols, nil
}

// multipleDecoder is satisfied by the gozxing multi readers
type multipleDecoder interface {
	DecodeMultiple(bmp *gozxing.BinaryBitmap, hints map[gozxing.DecodeHintType]interface{}) ([]*gozxing.Result, error)
}

type qrReader struct {
	reader multipleDecoder
}

func (q qrReader) decodeAll(img *image.Gray, hints map[gozxing.DecodeHintType]interface{}) ([]*gozxing.Result, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return nil, fmt.Errorf("failed to binarize image: %w", err)
	}

	results, err := q.reader.DecodeMultiple(bmp, hints)
	if err != nil {
		if isNotReadable(err) {
			return nil, nil
		}
		return nil, err
	}
	return results, nil
}

// regionReader finds several symbols with a single-result reader: after a hit
// it searches the regions left of, above, right of and below the symbol.
type regionReader struct {
	reader gozxing.Reader
}

func (r *regionReader) decodeAll(img *image.Gray, hints map[gozxing.DecodeHintType]interface{}) ([]*gozxing.Result, error) {
	var found []*gozxing.Result
	if err := r.search(img, img.Bounds(), hints, &found, 0); err != nil {
		return nil, err
	}
	return found, nil
}

func (r *regionReader) search(img *image.Gray, rect image.Rectangle, hints map[gozxing.DecodeHintType]interface{},
	found *[]*gozxing.Result, depth int) error {
	if depth > maxSearchDepth || rect.Empty() {
		return nil
	}

	bmp, err := gozxing.NewBinaryBitmapFromImage(toGray(img, rect))
	if err != nil {
		return fmt.Errorf("failed to binarize image: %w", err)
	}

	res, err := r.reader.Decode(bmp, hints)
	if err != nil {
		if isNotReadable(err) {
			return nil
		}
		return err
	}

	if !seenText(*found, res.GetText()) {
		*found = append(*found, res)
	}

	points := res.GetResultPoints()
	if len(points) == 0 {
		return nil
	}

	// bounding box of the symbol, relative to rect
	minX, minY := float64(rect.Dx()), float64(rect.Dy())
	maxX, maxY := 0.0, 0.0
	for _, p := range points {
		if p == nil {
			continue
		}
		minX, maxX = min(minX, p.GetX()), max(maxX, p.GetX())
		minY, maxY = min(minY, p.GetY()), max(maxY, p.GetY())
	}

	x0, y0 := rect.Min.X, rect.Min.Y
	if minX > minRegionSize {
		sub := image.Rect(x0, y0, x0+int(minX), rect.Max.Y)
		if err := r.search(img, sub, hints, found, depth+1); err != nil {
			return err
		}
	}
	if minY > minRegionSize {
		sub := image.Rect(x0, y0, rect.Max.X, y0+int(minY))
		if err := r.search(img, sub, hints, found, depth+1); err != nil {
			return err
		}
	}
	if maxX < float64(rect.Dx()-minRegionSize) {
		sub := image.Rect(x0+int(maxX), y0, rect.Max.X, rect.Max.Y)
		if err := r.search(img, sub, hints, found, depth+1); err != nil {
			return err
		}
	}
	if maxY < float64(rect.Dy()-minRegionSize) {
		sub := image.Rect(x0, y0+int(maxY), rect.Max.X, rect.Max.Y)
		if err := r.search(img, sub, hints, found, depth+1); err != nil {
			return err
		}
	}

	return nil
}

// seenText reports whether a symbol with the same payload was already found
func seenText(results []*gozxing.Result, text string) bool {
	for _, r := range results {
		if r.GetText() == text {
			return true
		}
	}
	return false
}

// isNotReadable reports whether err means nothing readable of this type.
// NotFound, Checksum and Format exceptions all are.
func isNotReadable(err error) bool {
	_, ok := err.(gozxing.ReaderException)
	return ok
}

// toGray copies rect of img into a new grayscale image with its origin at 0,0
func toGray(img image.Image, rect image.Rectangle) *image.Gray {
	gray := image.NewGray(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(gray, gray.Bounds(), img, rect.Min, draw.Src)
	return gray
}

func typeName(format gozxing.BarcodeFormat, fallback string) string {
	for name, sym := range symbologies {
		if sym.format == format {
			return name
		}
	}
	return fallback
}
