package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"sync"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/storacha/certifier/internal/certificate"
)

var (
	ErrNoPayload           = errors.New("no certificate payload found in document")
	ErrUnsupportedDocument = errors.New("unsupported document type")
)

var disableConfigDir sync.Once

// Decoder finds the certificate QR code in PDFs and images.
type Decoder struct {
	conf *model.Configuration
}

func NewDecoder() *Decoder {
	disableConfigDir.Do(api.DisableConfigDir)
	return &Decoder{conf: model.NewDefaultConfiguration()}
}

// DecodePayload returns the first valid certificate payload embedded in doc.
func (d *Decoder) DecodePayload(ctx context.Context, doc []byte) (*certificate.Payload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if bytes.HasPrefix(doc, []byte("%PDF")) {
		return d.decodePDF(doc)
	}
	img, _, err := image.Decode(bytes.NewReader(doc))
	if err != nil {
		return nil, ErrUnsupportedDocument
	}
	return DecodeImage(img)
}

func (d *Decoder) decodePDF(doc []byte) (*certificate.Payload, error) {
	var found *certificate.Payload
	err := api.ExtractImages(bytes.NewReader(doc), nil, func(img model.Image, singleImgPerPage bool, maxPageDigits int) error {
		if found != nil {
			return nil
		}
		decoded, _, err := image.Decode(img)
		if err != nil {
			log.Debugw("Skipping undecodable image", "name", img.Name, "type", img.FileType, "error", err)
			return nil
		}
		if p, err := DecodeImage(decoded); err == nil {
			found = p
		}
		return nil
	}, d.conf)
	if err != nil {
		return nil, fmt.Errorf("failed to read PDF images: %w", err)
	}
	if found == nil {
		return nil, ErrNoPayload
	}
	return found, nil
}

// DecodeImage reads a QR code from img and parses it as a certificate payload.
func DecodeImage(img image.Image) (*certificate.Payload, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoPayload, err)
	}
	res, err := qrcode.NewQRCodeReader().Decode(bmp, nil)
	if err != nil {
		return nil, ErrNoPayload
	}
	p, err := certificate.ParsePayload([]byte(res.GetText()))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNoPayload, err)
	}
	return p, nil
}
