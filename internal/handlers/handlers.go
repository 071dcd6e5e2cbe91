package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	logging "github.com/ipfs/go-log/v2"
	"github.com/labstack/echo/v4"
	"github.com/storacha/go-ucanto/principal/signer"

	"github.com/storacha/certifier/internal/attest"
	"github.com/storacha/certifier/internal/certificate"
	"github.com/storacha/certifier/internal/content"
	"github.com/storacha/certifier/internal/document"
	"github.com/storacha/certifier/internal/importer"
	"github.com/storacha/certifier/internal/issuer"
	"github.com/storacha/certifier/internal/ledger"
	"github.com/storacha/certifier/internal/session"
	"github.com/storacha/certifier/internal/store"
	"github.com/storacha/certifier/internal/verifier"
)

var log = logging.Logger("handlers")

type Handlers struct {
	attestor *attest.Attestor
	issuer   *issuer.Service
	verifier *verifier.Verifier
	auth     *session.Authenticator
}

func NewHandlers(a *attest.Attestor, is *issuer.Service, v *verifier.Verifier, auth *session.Authenticator) *Handlers {
	return &Handlers{
		attestor: a,
		issuer:   is,
		verifier: v,
		auth:     auth,
	}
}

func (h *Handlers) HealthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// DIDDocumentResponse is a did document that describes a did subject.
// See https://www.w3.org/TR/did-core/#dfn-did-documents.
type DIDDocumentResponse struct {
	Context            []string             `json:"@context"` // https://w3id.org/did/v1
	ID                 string               `json:"id"`
	Controller         []string             `json:"controller,omitempty"`
	VerificationMethod []VerificationMethod `json:"verificationMethod,omitempty"`
	Authentication     []string             `json:"authentication,omitempty"`
	AssertionMethod    []string             `json:"assertionMethod,omitempty"`
}

// VerificationMethod describes how to authenticate or authorize interactions
// with a did subject.
// See https://www.w3.org/TR/did-core/#dfn-verification-method.
type VerificationMethod struct {
	ID                 string `json:"id,omitempty"`
	Type               string `json:"type,omitempty"`
	Controller         string `json:"controller,omitempty"`
	PublicKeyMultibase string `json:"publicKeyMultibase,omitempty"`
}

// DIDDocument publishes the key verification receipts are signed with.
func (h *Handlers) DIDDocument(c echo.Context) error {
	id := h.attestor.ID()
	doc := DIDDocumentResponse{
		Context: []string{"https://w3id.org/did/v1"},
		ID:      id.DID().String(),
	}

	key := id.DID().String()
	if s, ok := id.(signer.WrappedSigner); ok {
		key = s.Unwrap().DID().String()
	}
	vid := fmt.Sprintf("%s#owner", id.DID())
	doc.VerificationMethod = []VerificationMethod{
		{
			ID:                 vid,
			Type:               "Ed25519VerificationKey2020",
			Controller:         id.DID().String(),
			PublicKeyMultibase: strings.TrimPrefix(key, "did:key:"),
		},
	}
	doc.AssertionMethod = []string{vid}

	return c.JSON(http.StatusOK, doc)
}

// FingerprintRequest holds the four identifying fields of a certificate.
type FingerprintRequest struct {
	RegistrationNo string `json:"registration_no" validate:"required"`
	StudentName    string `json:"student_name" validate:"required"`
	CourseName     string `json:"course_name" validate:"required"`
	Institution    string `json:"institution" validate:"required"`
}

func (r FingerprintRequest) fields() certificate.Fields {
	return certificate.Fields{
		RegistrationNo: r.RegistrationNo,
		StudentName:    r.StudentName,
		CourseName:     r.CourseName,
		Institution:    r.Institution,
	}
}

type FingerprintResponse struct {
	Fingerprint string             `json:"fingerprint"`
	Fields      certificate.Fields `json:"fields"`
}

// Fingerprint computes the fingerprint of normalized fields without touching
// the ledger.
func (h *Handlers) Fingerprint(c echo.Context) error {
	var req FingerprintRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}
	fields := req.fields().Normalize()
	if err := fields.Validate(); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, FingerprintResponse{
		Fingerprint: fields.Fingerprint(),
		Fields:      fields,
	})
}

// bindAndValidate decodes the body into req and runs its validate tags.
func bindAndValidate(c echo.Context, req interface{}) error {
	if err := c.Bind(req); err != nil {
		return fmt.Errorf("%w: invalid request body", issuer.ErrInvalidRequest)
	}
	if err := c.Validate(req); err != nil {
		return fmt.Errorf("%w: %w", issuer.ErrInvalidRequest, err)
	}
	return nil
}

// readUpload returns the contents and name of the multipart "file" field.
func readUpload(c echo.Context) ([]byte, string, error) {
	fh, err := c.FormFile("file")
	if err != nil {
		return nil, "", fmt.Errorf("%w: missing file upload", issuer.ErrInvalidRequest)
	}
	f, err := fh.Open()
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read upload: %w", err)
	}
	return data, fh.Filename, nil
}

// writeError maps service errors to HTTP responses.
func writeError(c echo.Context, err error) error {
	status := statusFor(c, err)
	return c.JSON(status, map[string]string{
		"error": err.Error(),
	})
}

// statusFor maps an error onto its HTTP status, logging server side failures.
func statusFor(c echo.Context, err error) int {
	var status int
	switch {
	case errors.Is(err, issuer.ErrInvalidRequest),
		errors.Is(err, certificate.ErrInvalidFields),
		errors.Is(err, certificate.ErrInvalidPayload),
		errors.Is(err, importer.ErrUnsupportedFormat),
		errors.Is(err, importer.ErrNoColumns),
		errors.Is(err, importer.ErrEmpty),
		errors.Is(err, session.ErrUnknownRole):
		status = http.StatusBadRequest
	case errors.Is(err, session.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, ledger.ErrNotFound),
		errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, issuer.ErrDuplicateRegistration),
		errors.Is(err, issuer.ErrDuplicateEmail),
		errors.Is(err, issuer.ErrAlreadyIssued),
		errors.Is(err, store.ErrDuplicate):
		status = http.StatusConflict
	case errors.Is(err, issuer.ErrUnknownInstitution),
		errors.Is(err, document.ErrNoPayload),
		errors.Is(err, document.ErrUnsupportedDocument):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, ledger.ErrRejected),
		errors.Is(err, content.ErrUploadFailed):
		status = http.StatusBadGateway
	case errors.Is(err, verifier.ErrNoDecoder):
		status = http.StatusNotImplemented
	default:
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		log.Errorw("Request failed", "path", c.Path(), "status", status, "error", err)
	}
	return status
}
