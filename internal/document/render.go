// Package document renders certificate PDFs with an embedded QR payload and
// extracts that payload from uploaded documents.
package document

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"

	"github.com/go-pdf/fpdf"
	logging "github.com/ipfs/go-log/v2"
	"github.com/skip2/go-qrcode"

	"github.com/storacha/certifier/internal/certificate"
)

var log = logging.Logger("document")

const (
	pageWidth  = 11.0
	pageHeight = 8.5
	qrSize     = 1.6
	qrPixels   = 512
)

// Renderer draws landscape letter-size certificates.
type Renderer struct {
	template string
}

type RendererOption func(*Renderer)

// WithTemplate draws a PNG or JPEG background under the certificate text.
func WithTemplate(path string) RendererOption {
	return func(r *Renderer) { r.template = path }
}

func NewRenderer(opts ...RendererOption) *Renderer {
	r := &Renderer{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Render returns the PDF for rec. The QR code carries rec's payload.
func (r *Renderer) Render(rec certificate.Record) ([]byte, error) {
	payload, err := rec.Payload().Marshal()
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR payload: %w", err)
	}
	qr, err := QRCode(payload)
	if err != nil {
		return nil, err
	}

	pdf := fpdf.New("L", "in", "Letter", "")
	pdf.SetTitle("Certificate of Completion", true)
	pdf.SetSubject(rec.Fingerprint, false)
	pdf.SetCreator("certifier", false)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	if r.template != "" {
		pdf.ImageOptions(r.template, 0, 0, pageWidth, pageHeight, false, fpdf.ImageOptions{}, 0, "")
	}

	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont("Helvetica", "B", 40)
	pdf.SetXY(0, 3.2)
	pdf.CellFormat(pageWidth, 0.6, rec.StudentName, "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 16)
	for i, line := range []string{
		"Registration Number: " + rec.RegistrationNo,
		"Course: " + rec.CourseName,
		"Institution: " + rec.Institution,
	} {
		pdf.SetXY(0, 4.2+float64(i)*0.4)
		pdf.CellFormat(pageWidth, 0.35, line, "", 1, "C", false, 0, "")
	}

	opts := fpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("qr", opts, bytes.NewReader(qr))
	pdf.ImageOptions("qr", 0.5, pageHeight-qrSize-0.5, qrSize, qrSize, false, opts, 0, "")

	if date := rec.IssueDateString(); date != "" {
		pdf.SetFont("Helvetica", "", 14)
		pdf.SetXY(pageWidth-3.5, pageHeight-1.0)
		pdf.CellFormat(3.0, 0.3, "Issued: "+date, "", 0, "R", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render certificate: %w", err)
	}
	log.Debugw("Rendered certificate", "fingerprint", rec.Fingerprint, "size", buf.Len())
	return buf.Bytes(), nil
}

// QRCode encodes data as an 8-bit grayscale PNG QR code.
func QRCode(data []byte) ([]byte, error) {
	q, err := qrcode.New(string(data), qrcode.Low)
	if err != nil {
		return nil, fmt.Errorf("failed to encode QR code: %w", err)
	}
	src := q.Image(qrPixels)
	gray := image.NewGray(src.Bounds())
	draw.Draw(gray, gray.Bounds(), src, src.Bounds().Min, draw.Src)

	var buf bytes.Buffer
	if err := png.Encode(&buf, gray); err != nil {
		return nil, fmt.Errorf("failed to encode QR image: %w", err)
	}
	return buf.Bytes(), nil
}
