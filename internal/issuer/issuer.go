// Package issuer creates and revokes certificates. An issue renders the
// certificate document, pins it, records the fingerprint on the ledger and
// indexes the record for listing and duplicate checks.
package issuer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"go.uber.org/fx"

	"github.com/storacha/certifier/internal/certificate"
	"github.com/storacha/certifier/internal/config"
	"github.com/storacha/certifier/internal/content"
	"github.com/storacha/certifier/internal/ledger"
	"github.com/storacha/certifier/internal/metrics"
	"github.com/storacha/certifier/internal/notifier"
	"github.com/storacha/certifier/internal/store"
)

var log = logging.Logger("service/issuer")

var (
	ErrInvalidRequest        = errors.New("incomplete details")
	ErrDuplicateRegistration = errors.New("duplicate registration number")
	ErrDuplicateEmail        = errors.New("duplicate email")
	ErrUnknownInstitution    = errors.New("unknown institution")
	// ErrAlreadyIssued is the ledger's answer for a fingerprint it has seen.
	ErrAlreadyIssued = ledger.ErrAlreadyExists
	// ErrIndexFailed means the certificate is on the ledger but could not be
	// added to the index.
	ErrIndexFailed = errors.New("certificate recorded but not indexed")
)

// Renderer produces the certificate document for a record.
type Renderer interface {
	Render(rec certificate.Record) ([]byte, error)
}

// Request asks for one certificate.
type Request struct {
	certificate.Fields
	Email string
	// IssueDate defaults to today.
	IssueDate time.Time
	// Line is the source row of a bulk request, used in reports only.
	Line int
}

// Issued is a successfully issued certificate.
type Issued struct {
	Record certificate.Record `json:"record"`
	Email  string             `json:"email"`
	URL    string             `json:"url"`
	// Notified is false when the notifier failed. The certificate stands.
	Notified    bool   `json:"notified"`
	NotifyError string `json:"notify_error,omitempty"`
}

// Revocation is the outcome of revoking one certificate.
type Revocation struct {
	Fingerprint string `json:"fingerprint"`
	Unpinned    bool   `json:"unpinned"`
	UnpinError  string `json:"unpin_error,omitempty"`
	// IndexError is set when the certificate was revoked on the ledger but
	// is still listed in the index.
	IndexError string `json:"index_error,omitempty"`
	// Error is set by RevokeAll for a certificate that could not be revoked.
	Error string `json:"error,omitempty"`
}

type Params struct {
	fx.In

	Store    store.Store
	Ledger   ledger.Ledger
	Content  content.Store
	Renderer Renderer
	Notifier notifier.Notifier `optional:"true"`
	Metrics  *metrics.Metrics  `optional:"true"`
	Config   *config.Config    `optional:"true"`
}

type Service struct {
	store       store.Store
	ledger      ledger.Ledger
	content     content.Store
	renderer    Renderer
	notifier    notifier.Notifier
	metrics     *metrics.Metrics
	concurrency int
	now         func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
}

func New(p Params) *Service {
	s := &Service{
		store:       p.Store,
		ledger:      p.Ledger,
		content:     p.Content,
		renderer:    p.Renderer,
		notifier:    p.Notifier,
		metrics:     p.Metrics,
		concurrency: 1,
		now:         time.Now,
		inflight:    make(map[string]struct{}),
	}
	if s.notifier == nil {
		s.notifier = notifier.NewLogNotifier()
	}
	if p.Config != nil && p.Config.Issuer.Concurrency > 0 {
		s.concurrency = p.Config.Issuer.Concurrency
	}
	return s
}

// Issue creates a single certificate. Validation and duplicate failures are
// returned before anything is written anywhere.
func (s *Service) Issue(ctx context.Context, req Request) (*Issued, error) {
	fields := req.Fields.Normalize()
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if err := fields.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	if email == "" {
		return nil, fmt.Errorf("%w: missing required field(s): email", ErrInvalidRequest)
	}

	if err := s.checkInstitution(ctx, fields.Institution); err != nil {
		return nil, err
	}

	release, err := s.reserve(fields.RegistrationNo, email)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := s.checkDuplicates(ctx, fields.RegistrationNo, email); err != nil {
		return nil, err
	}

	issueDate := req.IssueDate
	if issueDate.IsZero() {
		issueDate = s.now()
	}
	issueDate = issueDate.UTC().Truncate(24 * time.Hour)
	rec := certificate.NewRecord(fields, issueDate)

	exists, err := s.ledger.Exists(ctx, rec.Fingerprint)
	if err != nil {
		return nil, fmt.Errorf("failed to check ledger: %w", err)
	}
	if exists {
		return nil, ErrAlreadyIssued
	}

	doc, err := s.renderer.Render(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to render certificate: %w", err)
	}

	addr, err := s.content.Upload(ctx, rec.Fingerprint+".pdf", doc)
	if err != nil {
		return nil, err
	}
	rec.ContentAddress = addr

	if fp := rec.Fields.Fingerprint(); fp != rec.Fingerprint {
		if uerr := s.content.Unpin(ctx, addr); uerr != nil {
			log.Warnw("Failed to unpin document", "cid", addr, "error", uerr)
		}
		return nil, fmt.Errorf("fingerprint changed during issuance: %s != %s", fp, rec.Fingerprint)
	}

	if err := s.ledger.Write(ctx, rec.Fingerprint, rec.Fields, addr); err != nil {
		log.Errorw("Ledger write failed, unpinning document", "fingerprint", rec.Fingerprint, "cid", addr, "error", err)
		if uerr := s.content.Unpin(ctx, addr); uerr != nil {
			log.Warnw("Failed to unpin document", "cid", addr, "error", uerr)
		}
		return nil, fmt.Errorf("failed to record certificate on ledger: %w", err)
	}

	if err := s.store.AddCertificate(ctx, store.NewCertificate(rec, email)); err != nil {
		log.Errorw("Certificate recorded on ledger but not indexed", "fingerprint", rec.Fingerprint, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrIndexFailed, err)
	}
	s.metrics.Issued()
	log.Infow("Issued certificate", "fingerprint", rec.Fingerprint, "registration_no", rec.RegistrationNo, "cid", addr)

	out := &Issued{
		Record:   rec,
		Email:    email,
		URL:      s.content.URL(addr),
		Notified: true,
	}
	err = s.notifier.Notify(ctx, notifier.Notification{
		Address:        email,
		Fingerprint:    rec.Fingerprint,
		ContentAddress: addr,
		DownloadURL:    out.URL,
		Institution:    rec.Institution,
	})
	if err != nil {
		log.Warnw("Failed to notify recipient", "fingerprint", rec.Fingerprint, "error", err)
		out.Notified = false
		out.NotifyError = err.Error()
	}
	return out, nil
}

// Revoke invalidates a certificate on the ledger, drops it from the index
// and unpins its document.
func (s *Service) Revoke(ctx context.Context, fingerprint string) (*Revocation, error) {
	fingerprint = certificate.NormalizeFingerprint(fingerprint)
	if !certificate.IsFingerprint(fingerprint) {
		return nil, ledger.ErrNotFound
	}

	entry, err := s.ledger.Read(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	if err := s.ledger.Invalidate(ctx, fingerprint); err != nil {
		return nil, fmt.Errorf("failed to invalidate certificate: %w", err)
	}
	s.metrics.Revoked()

	rev := &Revocation{Fingerprint: fingerprint}
	if err := s.store.RemoveCertificate(ctx, fingerprint); err != nil && !errors.Is(err, store.ErrNotFound) {
		log.Warnw("Failed to remove revoked certificate from index", "fingerprint", fingerprint, "error", err)
		rev.IndexError = err.Error()
	}

	if entry.ContentAddress != "" {
		if err := s.content.Unpin(ctx, entry.ContentAddress); err != nil {
			log.Warnw("Failed to unpin revoked certificate", "fingerprint", fingerprint, "cid", entry.ContentAddress, "error", err)
			rev.UnpinError = err.Error()
		} else {
			rev.Unpinned = true
		}
	}
	log.Infow("Revoked certificate", "fingerprint", fingerprint)
	return rev, nil
}

// RevokeAll revokes every indexed certificate. Index entries the ledger no
// longer knows are dropped. A certificate that cannot be revoked is reported
// with its error and the rest are still attempted. It stops early only when
// the ledger is unreachable, returning what was revoked so far.
func (s *Service) RevokeAll(ctx context.Context) ([]Revocation, error) {
	certs, err := s.store.ListCertificates(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list certificates: %w", err)
	}

	out := make([]Revocation, 0, len(certs))
	for _, c := range certs {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		rev, err := s.Revoke(ctx, c.Fingerprint)
		switch {
		case err == nil:
			out = append(out, *rev)
		case errors.Is(err, ledger.ErrNotFound):
			log.Warnw("Dropping index entry unknown to the ledger", "fingerprint", c.Fingerprint)
			if err := s.store.RemoveCertificate(ctx, c.Fingerprint); err != nil && !errors.Is(err, store.ErrNotFound) {
				out = append(out, Revocation{Fingerprint: c.Fingerprint, IndexError: err.Error()})
			}
		case errors.Is(err, ledger.ErrUnavailable), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return out, err
		default:
			log.Errorw("Failed to revoke certificate", "fingerprint", c.Fingerprint, "error", err)
			out = append(out, Revocation{Fingerprint: c.Fingerprint, Error: err.Error()})
		}
	}
	return out, nil
}

// Certificates lists the indexed certificates.
func (s *Service) Certificates(ctx context.Context) ([]store.Certificate, error) {
	return s.store.ListCertificates(ctx)
}

func (s *Service) checkInstitution(ctx context.Context, name string) error {
	registered, err := s.store.ListInstitutions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list institutions: %w", err)
	}
	if len(registered) == 0 {
		return nil
	}
	for _, inst := range registered {
		if strings.EqualFold(inst.Name, name) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownInstitution, name)
}

func (s *Service) checkDuplicates(ctx context.Context, registrationNo, email string) error {
	_, err := s.store.FindCertificate(ctx, store.ByRegistrationNo(registrationNo))
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s", ErrDuplicateRegistration, registrationNo)
	case !errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("failed to check registration number: %w", err)
	}

	_, err = s.store.FindCertificate(ctx, store.ByEmail(email))
	switch {
	case err == nil:
		return fmt.Errorf("%w: %s", ErrDuplicateEmail, email)
	case !errors.Is(err, store.ErrNotFound):
		return fmt.Errorf("failed to check email: %w", err)
	}
	return nil
}

// reserve holds the registration number and email until release is called
// so that concurrent issues for the same student cannot both pass the
// duplicate check.
func (s *Service) reserve(registrationNo, email string) (func(), error) {
	regKey := "reg:" + registrationNo
	emailKey := "email:" + email

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inflight[regKey]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateRegistration, registrationNo)
	}
	if _, ok := s.inflight[emailKey]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateEmail, email)
	}
	s.inflight[regKey] = struct{}{}
	s.inflight[emailKey] = struct{}{}

	return func() {
		s.mu.Lock()
		delete(s.inflight, regKey)
		delete(s.inflight, emailKey)
		s.mu.Unlock()
	}, nil
}
