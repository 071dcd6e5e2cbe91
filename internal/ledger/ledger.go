// Package ledger records certificate fingerprints and their fields in an
// authoritative, append-mostly store.
package ledger

import (
	"context"
	"errors"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"github.com/storacha/certifier/internal/certificate"
)

var log = logging.Logger("ledger")

var (
	// ErrNotFound is returned when a fingerprint is absent or was invalidated.
	ErrNotFound = errors.New("certificate does not exist or was revoked")
	// ErrAlreadyExists is returned when writing a fingerprint the ledger has seen.
	ErrAlreadyExists = errors.New("certificate with this ID already exists")
	// ErrRejected is returned when the ledger refused a write or invalidation.
	ErrRejected = errors.New("ledger rejected the transaction")
	// ErrUnavailable wraps transport failures talking to the ledger.
	ErrUnavailable = errors.New("ledger unavailable")
)

// Entry is the ledger's view of one certificate.
type Entry struct {
	Fingerprint    string             `json:"fingerprint"`
	Fields         certificate.Fields `json:"fields"`
	ContentAddress string             `json:"content_address"`
	Revoked        bool               `json:"revoked,omitempty"`
	RecordedAt     time.Time          `json:"recorded_at,omitempty"`
}

// Ledger is implemented by the contract adapter and the local badger ledger.
type Ledger interface {
	// Write records a new certificate. It fails with ErrAlreadyExists if the
	// fingerprint was ever written.
	Write(ctx context.Context, fingerprint string, fields certificate.Fields, contentAddress string) error
	// Read returns the active entry for a fingerprint or ErrNotFound.
	Read(ctx context.Context, fingerprint string) (*Entry, error)
	// Invalidate revokes an active fingerprint.
	Invalidate(ctx context.Context, fingerprint string) error
	// Exists reports whether the fingerprint is recorded and not revoked.
	Exists(ctx context.Context, fingerprint string) (bool, error)
}
