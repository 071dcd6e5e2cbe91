package handlers

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/storacha/certifier/internal/certificate"
	"github.com/storacha/certifier/internal/importer"
	"github.com/storacha/certifier/internal/issuer"
	"github.com/storacha/certifier/internal/session"
	"github.com/storacha/certifier/internal/store"
)

type IssueRequest struct {
	RegistrationNo string `json:"registration_no" validate:"required"`
	StudentName    string `json:"student_name" validate:"required"`
	CourseName     string `json:"course_name" validate:"required"`
	// Institution defaults to the one selected for the session.
	Institution string `json:"institution"`
	Email       string `json:"email" validate:"required,email"`
	// IssueDate is a YYYY-MM-DD date, today when empty.
	IssueDate string `json:"issue_date" validate:"omitempty,datetime=2006-01-02"`
}

type ListCertificatesResponse struct {
	Certificates []store.Certificate `json:"certificates"`
}

type RevokeAllResponse struct {
	Revoked []issuer.Revocation `json:"revoked"`
	// Error is set when the run stopped early. Revoked still lists what was
	// done before it stopped.
	Error string `json:"error,omitempty"`
}

func (h *Handlers) ListCertificates(c echo.Context) error {
	certs, err := h.issuer.Certificates(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	if certs == nil {
		certs = []store.Certificate{}
	}
	return c.JSON(http.StatusOK, ListCertificatesResponse{Certificates: certs})
}

func (h *Handlers) IssueCertificate(c echo.Context) error {
	var req IssueRequest
	if err := bindAndValidate(c, &req); err != nil {
		return writeError(c, err)
	}

	var date time.Time
	if req.IssueDate != "" {
		var err error
		date, err = time.Parse(certificate.DateLayout, req.IssueDate)
		if err != nil {
			return writeError(c, fmt.Errorf("%w: invalid issue date", issuer.ErrInvalidRequest))
		}
	}

	issued, err := h.issuer.Issue(c.Request().Context(), issuer.Request{
		Fields: certificate.Fields{
			RegistrationNo: req.RegistrationNo,
			StudentName:    req.StudentName,
			CourseName:     req.CourseName,
			Institution:    institutionFor(c, req.Institution),
		},
		Email:     req.Email,
		IssueDate: date,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, issued)
}

// IssueBulk issues one certificate per row of an uploaded .xlsx, .csv or
// .docx file. Rows take the institution from the "institution" form field or
// the session.
func (h *Handlers) IssueBulk(c echo.Context) error {
	data, name, err := readUpload(c)
	if err != nil {
		return writeError(c, err)
	}
	rows, err := importer.Parse(name, bytes.NewReader(data))
	if err != nil {
		return writeError(c, err)
	}

	institution := institutionFor(c, c.FormValue("institution"))
	reqs := make([]issuer.Request, 0, len(rows))
	for _, row := range rows {
		reqs = append(reqs, issuer.Request{
			Fields: certificate.Fields{
				RegistrationNo: row.RegistrationNo,
				StudentName:    row.FullName,
				CourseName:     row.Course,
				Institution:    institution,
			},
			Email: row.Email,
			Line:  row.Line,
		})
	}

	res, err := h.issuer.IssueBatch(c.Request().Context(), reqs)
	if err != nil && res == nil {
		return writeError(c, err)
	}
	// an aborted batch still reports the rows it issued
	return c.JSON(http.StatusOK, res)
}

func (h *Handlers) RevokeCertificate(c echo.Context) error {
	rev, err := h.issuer.Revoke(c.Request().Context(), c.Param("fingerprint"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, rev)
}

func (h *Handlers) RevokeAllCertificates(c echo.Context) error {
	revs, err := h.issuer.RevokeAll(c.Request().Context())
	if err != nil && revs == nil {
		return writeError(c, err)
	}
	if err != nil {
		return c.JSON(statusFor(c, err), RevokeAllResponse{Revoked: revs, Error: err.Error()})
	}
	return c.JSON(http.StatusOK, RevokeAllResponse{Revoked: revs})
}

func institutionFor(c echo.Context, given string) string {
	if strings.TrimSpace(given) != "" {
		return given
	}
	return session.Load(c).Institution
}
