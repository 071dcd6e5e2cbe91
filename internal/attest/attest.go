// Package attest signs verification results so that a verifier can hand a
// receipt to a third party who checks it offline.
package attest

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/multiformats/go-multibase"
	"github.com/storacha/go-ucanto/principal"
	edverifier "github.com/storacha/go-ucanto/principal/ed25519/verifier"
	"github.com/storacha/go-ucanto/principal/signer"
	"github.com/storacha/go-ucanto/ucan/crypto/signature"

	"github.com/storacha/certifier/internal/verifier"
)

var (
	ErrInvalidReceipt   = errors.New("invalid receipt")
	ErrInvalidSignature = errors.New("receipt signature does not match")
)

// Receipt is a signed statement of one verification result.
type Receipt struct {
	// Issuer is the DID of the service, possibly a did:web.
	Issuer string `json:"issuer"`
	// Key is the did:key the receipt was signed with.
	Key         string          `json:"key"`
	Fingerprint string          `json:"fingerprint"`
	Mode        verifier.Mode   `json:"mode"`
	Status      verifier.Status `json:"status"`
	Reason      string          `json:"reason,omitempty"`
	CheckedAt   time.Time       `json:"checked_at"`
	// Signature is the multibase encoded ed25519 signature over the other
	// fields.
	Signature string `json:"signature"`
}

// claims is the signed part of a receipt.
type claims struct {
	Issuer      string          `json:"issuer"`
	Key         string          `json:"key"`
	Fingerprint string          `json:"fingerprint"`
	Mode        verifier.Mode   `json:"mode"`
	Status      verifier.Status `json:"status"`
	Reason      string          `json:"reason,omitempty"`
	CheckedAt   string          `json:"checked_at"`
}

func (r *Receipt) message() ([]byte, error) {
	return json.Marshal(claims{
		Issuer:      r.Issuer,
		Key:         r.Key,
		Fingerprint: r.Fingerprint,
		Mode:        r.Mode,
		Status:      r.Status,
		Reason:      r.Reason,
		CheckedAt:   r.CheckedAt.UTC().Format(time.RFC3339Nano),
	})
}

type Attestor struct {
	id  principal.Signer
	now func() time.Time
}

func New(id principal.Signer) *Attestor {
	return &Attestor{id: id, now: time.Now}
}

// ID is the identity receipts are issued by.
func (a *Attestor) ID() principal.Signer {
	return a.id
}

// Sign issues a receipt for a verification result.
func (a *Attestor) Sign(res *verifier.Result) (*Receipt, error) {
	key := a.id.DID().String()
	if w, ok := a.id.(signer.WrappedSigner); ok {
		key = w.Unwrap().DID().String()
	}

	r := &Receipt{
		Issuer:      a.id.DID().String(),
		Key:         key,
		Fingerprint: res.Fingerprint,
		Mode:        res.Mode,
		Status:      res.Status,
		Reason:      res.Reason,
		CheckedAt:   a.now().UTC(),
	}
	msg, err := r.message()
	if err != nil {
		return nil, fmt.Errorf("failed to encode receipt: %w", err)
	}
	sig := a.id.Sign(msg)
	r.Signature, err = multibase.Encode(multibase.Base64, sig.Raw())
	if err != nil {
		return nil, fmt.Errorf("failed to encode signature: %w", err)
	}
	return r, nil
}

// Check verifies the receipt signature against its key. A did:web issuer
// must be resolved by the caller to confirm it controls the key.
func Check(r *Receipt) error {
	if strings.HasPrefix(r.Issuer, "did:key:") && r.Issuer != r.Key {
		return fmt.Errorf("%w: key does not belong to issuer", ErrInvalidReceipt)
	}
	v, err := edverifier.Parse(r.Key)
	if err != nil {
		return fmt.Errorf("%w: bad key: %w", ErrInvalidReceipt, err)
	}
	_, raw, err := multibase.Decode(r.Signature)
	if err != nil {
		return fmt.Errorf("%w: bad signature encoding: %w", ErrInvalidReceipt, err)
	}
	msg, err := r.message()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidReceipt, err)
	}
	if !v.Verify(msg, signature.NewSignature(signature.EdDSA, raw)) {
		return ErrInvalidSignature
	}
	return nil
}
