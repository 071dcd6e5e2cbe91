// Package verifier checks certificate claims against the ledger.
package verifier

import (
	"context"
	"errors"
	"fmt"

	logging "github.com/ipfs/go-log/v2"
	"go.uber.org/fx"

	"github.com/storacha/certifier/internal/certificate"
	"github.com/storacha/certifier/internal/ledger"
	"github.com/storacha/certifier/internal/metrics"
)

var log = logging.Logger("service/verifier")

type Status string

const (
	StatusVerified    Status = "VERIFIED"
	StatusNotVerified Status = "NOT_VERIFIED"
)

type Mode string

const (
	ModeFingerprint Mode = "fingerprint"
	ModePayload     Mode = "payload"
	ModeDocument    Mode = "document"
)

const (
	ReasonNotFound = "does not exist or was revoked"
	ReasonMismatch = "details mismatch"
)

// Mismatch describes one field whose claimed value differs from the ledger.
type Mismatch struct {
	Field   string `json:"field"`
	Ledger  string `json:"ledger"`
	Claimed string `json:"claimed"`
}

// Result is the outcome of a verification. A NOT_VERIFIED result is a
// defined answer, not an error.
type Result struct {
	Status      Status              `json:"status"`
	Mode        Mode                `json:"mode"`
	Fingerprint string              `json:"fingerprint"`
	Reason      string              `json:"reason,omitempty"`
	Mismatches  []Mismatch          `json:"mismatches,omitempty"`
	Record      *certificate.Record `json:"record,omitempty"`
}

func (r *Result) Verified() bool {
	return r.Status == StatusVerified
}

// Decoder extracts the QR payload embedded in an uploaded document.
type Decoder interface {
	DecodePayload(ctx context.Context, document []byte) (*certificate.Payload, error)
}

var ErrNoDecoder = errors.New("document decoding is not configured")

type Verifier struct {
	ledger  ledger.Ledger
	decoder Decoder
	metrics *metrics.Metrics
}

type Params struct {
	fx.In

	Ledger  ledger.Ledger
	Decoder Decoder          `optional:"true"`
	Metrics *metrics.Metrics `optional:"true"`
}

func New(p Params) *Verifier {
	return &Verifier{
		ledger:  p.Ledger,
		decoder: p.Decoder,
		metrics: p.Metrics,
	}
}

// VerifyFingerprint checks a fingerprint entered by hand. Only existence on
// the ledger is checked since no field values are claimed.
func (v *Verifier) VerifyFingerprint(ctx context.Context, fingerprint string) (*Result, error) {
	res, _, err := v.lookup(ctx, ModeFingerprint, fingerprint)
	if err != nil {
		return nil, err
	}
	v.observe(res)
	return res, nil
}

// VerifyPayload checks a decoded QR payload. The fingerprint must be on the
// ledger and all four fields must match the ledger byte for byte.
func (v *Verifier) VerifyPayload(ctx context.Context, payload certificate.Payload) (*Result, error) {
	res, err := v.verifyPayload(ctx, ModePayload, payload)
	if err != nil {
		return nil, err
	}
	v.observe(res)
	return res, nil
}

// VerifyDocument decodes the payload embedded in a document and verifies it.
func (v *Verifier) VerifyDocument(ctx context.Context, document []byte) (*Result, error) {
	if v.decoder == nil {
		return nil, ErrNoDecoder
	}
	payload, err := v.decoder.DecodePayload(ctx, document)
	if err != nil {
		return nil, fmt.Errorf("failed to decode certificate payload: %w", err)
	}
	res, err := v.verifyPayload(ctx, ModeDocument, *payload)
	if err != nil {
		return nil, err
	}
	v.observe(res)
	return res, nil
}

func (v *Verifier) verifyPayload(ctx context.Context, mode Mode, payload certificate.Payload) (*Result, error) {
	res, entry, err := v.lookup(ctx, mode, payload.Fingerprint)
	if err != nil || entry == nil {
		return res, err
	}

	claimed := payload.Fields()
	diff := entry.Fields.Diff(claimed)
	if len(diff) == 0 {
		return res, nil
	}

	mismatches := make([]Mismatch, 0, len(diff))
	for _, field := range diff {
		mismatches = append(mismatches, Mismatch{
			Field:   field,
			Ledger:  entry.Fields.Value(field),
			Claimed: claimed.Value(field),
		})
	}
	log.Warnw("Certificate details mismatch", "fingerprint", res.Fingerprint, "fields", diff)
	return &Result{
		Status:      StatusNotVerified,
		Mode:        mode,
		Fingerprint: res.Fingerprint,
		Reason:      ReasonMismatch,
		Mismatches:  mismatches,
	}, nil
}

// lookup reads the ledger. It returns a NOT_VERIFIED result and a nil entry
// when the fingerprint is unknown or revoked.
func (v *Verifier) lookup(ctx context.Context, mode Mode, fingerprint string) (*Result, *ledger.Entry, error) {
	fingerprint = certificate.NormalizeFingerprint(fingerprint)
	notFound := &Result{
		Status:      StatusNotVerified,
		Mode:        mode,
		Fingerprint: fingerprint,
		Reason:      ReasonNotFound,
	}
	if !certificate.IsFingerprint(fingerprint) {
		return notFound, nil, nil
	}

	entry, err := v.ledger.Read(ctx, fingerprint)
	if errors.Is(err, ledger.ErrNotFound) {
		return notFound, nil, nil
	}
	if err != nil {
		log.Errorw("Ledger lookup failed", "fingerprint", fingerprint, "error", err)
		return nil, nil, fmt.Errorf("failed to read certificate from ledger: %w", err)
	}

	return &Result{
		Status:      StatusVerified,
		Mode:        mode,
		Fingerprint: fingerprint,
		Record: &certificate.Record{
			Fields:         entry.Fields,
			ContentAddress: entry.ContentAddress,
			Fingerprint:    fingerprint,
		},
	}, entry, nil
}

func (v *Verifier) observe(res *Result) {
	v.metrics.Verification(string(res.Mode), string(res.Status))
}
