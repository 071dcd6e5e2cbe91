// Package certificate holds the certificate identity model: the fields that
// identify a certificate, the fingerprint derived from them and the payload
// embedded in a certificate's QR code.
package certificate

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar date format printed on certificates.
const DateLayout = "2006-01-02"

// Field names used when reporting validation failures and mismatches.
const (
	FieldRegistrationNo = "registration_no"
	FieldStudentName    = "student_name"
	FieldCourseName     = "course_name"
	FieldInstitution    = "institution"
)

var ErrInvalidFields = errors.New("invalid certificate fields")

// ValidationError lists the fields that failed validation.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing required field(s): %s", strings.Join(e.Missing, ", "))
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidFields
}

// Fields are the four values a fingerprint is computed from.
type Fields struct {
	RegistrationNo string `json:"registration_no"`
	StudentName    string `json:"student_name"`
	CourseName     string `json:"course_name"`
	Institution    string `json:"institution"`
}

// Normalize trims and upper-cases the registration number, the student name
// and the institution. The course name is kept exactly as supplied.
func (f Fields) Normalize() Fields {
	return Fields{
		RegistrationNo: strings.ToUpper(strings.TrimSpace(f.RegistrationNo)),
		StudentName:    strings.ToUpper(strings.TrimSpace(f.StudentName)),
		CourseName:     f.CourseName,
		Institution:    strings.ToUpper(strings.TrimSpace(f.Institution)),
	}
}

// Validate returns a *ValidationError naming every empty field.
func (f Fields) Validate() error {
	var missing []string
	if strings.TrimSpace(f.RegistrationNo) == "" {
		missing = append(missing, FieldRegistrationNo)
	}
	if strings.TrimSpace(f.StudentName) == "" {
		missing = append(missing, FieldStudentName)
	}
	if strings.TrimSpace(f.CourseName) == "" {
		missing = append(missing, FieldCourseName)
	}
	if strings.TrimSpace(f.Institution) == "" {
		missing = append(missing, FieldInstitution)
	}
	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	return nil
}

// Fingerprint is shorthand for ComputeFingerprint over f. The fields are used
// as given; call Normalize first.
func (f Fields) Fingerprint() string {
	return ComputeFingerprint(f.RegistrationNo, f.StudentName, f.CourseName, f.Institution)
}

// Diff returns the names of the fields that differ between f and other.
func (f Fields) Diff(other Fields) []string {
	var diff []string
	if f.RegistrationNo != other.RegistrationNo {
		diff = append(diff, FieldRegistrationNo)
	}
	if f.StudentName != other.StudentName {
		diff = append(diff, FieldStudentName)
	}
	if f.CourseName != other.CourseName {
		diff = append(diff, FieldCourseName)
	}
	if f.Institution != other.Institution {
		diff = append(diff, FieldInstitution)
	}
	return diff
}

// Value returns the value of the named field.
func (f Fields) Value(name string) string {
	switch name {
	case FieldRegistrationNo:
		return f.RegistrationNo
	case FieldStudentName:
		return f.StudentName
	case FieldCourseName:
		return f.CourseName
	case FieldInstitution:
		return f.Institution
	}
	return ""
}

// ComputeFingerprint returns the lowercase hex SHA-256 digest of the four
// fields concatenated in order with no separator.
func ComputeFingerprint(registrationNo, studentName, courseName, institution string) string {
	h := sha256.New()
	h.Write([]byte(registrationNo))
	h.Write([]byte(studentName))
	h.Write([]byte(courseName))
	h.Write([]byte(institution))
	return hex.EncodeToString(h.Sum(nil))
}

// NormalizeFingerprint trims a fingerprint and lower-cases its hex digits so
// IDs entered by hand match the ledger key.
func NormalizeFingerprint(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// IsFingerprint reports whether s has the shape of a fingerprint.
func IsFingerprint(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

// Record is one issued certificate.
type Record struct {
	Fields
	IssueDate      time.Time `json:"issue_date"`
	ContentAddress string    `json:"content_address,omitempty"`
	Fingerprint    string    `json:"fingerprint"`
}

// NewRecord builds a record for already normalized fields.
func NewRecord(fields Fields, issueDate time.Time) Record {
	return Record{
		Fields:      fields,
		IssueDate:   issueDate,
		Fingerprint: fields.Fingerprint(),
	}
}

// Payload returns the QR payload describing r.
func (r Record) Payload() Payload {
	return Payload{
		Fingerprint:    r.Fingerprint,
		RegistrationNo: r.RegistrationNo,
		StudentName:    r.StudentName,
		CourseName:     r.CourseName,
		Institution:    r.Institution,
	}
}

// IssueDateString formats the issue date the way it is printed.
func (r Record) IssueDateString() string {
	if r.IssueDate.IsZero() {
		return ""
	}
	return r.IssueDate.Format(DateLayout)
}
