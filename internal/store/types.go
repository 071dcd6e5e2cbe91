package store

import (
	"context"
	"errors"
	"time"

	"github.com/storacha/certifier/internal/certificate"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("already exists")
)

// Certificate is the index entry kept for every active certificate.
type Certificate struct {
	// Fingerprint is the ledger key of the certificate.
	Fingerprint string `json:"fingerprint" gorm:"primaryKey;size:64"`
	// RegistrationNo is unique across active certificates.
	RegistrationNo string `json:"registration_no" gorm:"uniqueIndex;not null"`
	StudentName    string `json:"student_name" gorm:"not null"`
	CourseName     string `json:"course_name" gorm:"not null"`
	Institution    string `json:"institution" gorm:"index;not null"`
	// Email is where the certificate was sent, unique across active certificates.
	Email string `json:"email" gorm:"uniqueIndex;not null"`
	// IssueDate is the date printed on the certificate.
	IssueDate time.Time `json:"issue_date"`
	// ContentAddress is the CID of the pinned document.
	ContentAddress string `json:"content_address"`
	// InsertedAt is the time this entry was created.
	InsertedAt time.Time `json:"inserted_at" gorm:"autoCreateTime"`
}

// NewCertificate builds the index entry for an issued record.
func NewCertificate(rec certificate.Record, email string) Certificate {
	return Certificate{
		Fingerprint:    rec.Fingerprint,
		RegistrationNo: rec.RegistrationNo,
		StudentName:    rec.StudentName,
		CourseName:     rec.CourseName,
		Institution:    rec.Institution,
		Email:          email,
		IssueDate:      rec.IssueDate,
		ContentAddress: rec.ContentAddress,
	}
}

func (c Certificate) Record() certificate.Record {
	return certificate.Record{
		Fields: certificate.Fields{
			RegistrationNo: c.RegistrationNo,
			StudentName:    c.StudentName,
			CourseName:     c.CourseName,
			Institution:    c.Institution,
		},
		IssueDate:      c.IssueDate,
		ContentAddress: c.ContentAddress,
		Fingerprint:    c.Fingerprint,
	}
}

// Institution is a registered issuing institution.
type Institution struct {
	Name      string    `json:"name" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// KeyKind selects the field a certificate lookup matches on.
type KeyKind string

const (
	KeyFingerprint    KeyKind = "fingerprint"
	KeyRegistrationNo KeyKind = "registration_no"
	KeyEmail          KeyKind = "email"
)

type Key struct {
	Kind  KeyKind
	Value string
}

func ByFingerprint(v string) Key    { return Key{Kind: KeyFingerprint, Value: v} }
func ByRegistrationNo(v string) Key { return Key{Kind: KeyRegistrationNo, Value: v} }
func ByEmail(v string) Key          { return Key{Kind: KeyEmail, Value: v} }

// CertificateStore indexes active certificates. It is never consulted to
// decide whether a certificate is valid.
type CertificateStore interface {
	ListCertificates(ctx context.Context) ([]Certificate, error)
	// AddCertificate fails with ErrDuplicate when the fingerprint, registration
	// number or email is already indexed.
	AddCertificate(ctx context.Context, c Certificate) error
	RemoveCertificate(ctx context.Context, fingerprint string) error
	FindCertificate(ctx context.Context, key Key) (*Certificate, error)
}

type InstitutionStore interface {
	ListInstitutions(ctx context.Context) ([]Institution, error)
	AddInstitution(ctx context.Context, name string) error
	RenameInstitution(ctx context.Context, from, to string) error
	RemoveInstitution(ctx context.Context, name string) error
}

type Store interface {
	CertificateStore
	InstitutionStore
}
