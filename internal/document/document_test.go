package document

import (
	"bytes"
	"context"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/storacha/certifier/internal/certificate"
)

func testRecord() certificate.Record {
	fields := certificate.Fields{
		RegistrationNo: "REG001",
		StudentName:    "JOHN DOE",
		CourseName:     "Intro to Systems",
		Institution:    "ACME UNIVERSITY",
	}
	return certificate.NewRecord(fields, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC))
}

func TestRender(t *testing.T) {
	doc, err := NewRenderer().Render(testRecord())
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(doc, []byte("%PDF")))
}

func TestQRCodeRoundTrip(t *testing.T) {
	rec := testRecord()
	payload, err := rec.Payload().Marshal()
	require.NoError(t, err)

	qr, err := QRCode(payload)
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(qr))
	require.NoError(t, err)

	got, err := DecodeImage(img)
	require.NoError(t, err)
	require.Equal(t, rec.Payload(), *got)

	// image uploads are accepted as well as PDFs
	got, err = NewDecoder().DecodePayload(context.Background(), qr)
	require.NoError(t, err)
	require.Equal(t, rec.Fingerprint, got.Fingerprint)
}

func TestDecodeRenderedPDF(t *testing.T) {
	rec := testRecord()
	doc, err := NewRenderer().Render(rec)
	require.NoError(t, err)

	got, err := NewDecoder().DecodePayload(context.Background(), doc)
	require.NoError(t, err)
	require.Equal(t, rec.Payload(), *got)
}

func TestDecodeRejectsOtherQRContent(t *testing.T) {
	qr, err := QRCode([]byte("https://example.com"))
	require.NoError(t, err)

	_, err = NewDecoder().DecodePayload(context.Background(), qr)
	require.ErrorIs(t, err, ErrNoPayload)
}

func TestDecodeUnsupported(t *testing.T) {
	_, err := NewDecoder().DecodePayload(context.Background(), []byte("plain text"))
	require.ErrorIs(t, err, ErrUnsupportedDocument)
}
