package certificate

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrInvalidPayload = errors.New("invalid certificate payload")

// Payload is the claim embedded in a certificate's QR code.
type Payload struct {
	Fingerprint    string `json:"certificate_id"`
	RegistrationNo string `json:"registration_no"`
	StudentName    string `json:"student_name"`
	CourseName     string `json:"course_name"`
	Institution    string `json:"institution"`
}

// Fields returns the identifying fields claimed by the payload.
func (p Payload) Fields() Fields {
	return Fields{
		RegistrationNo: p.RegistrationNo,
		StudentName:    p.StudentName,
		CourseName:     p.CourseName,
		Institution:    p.Institution,
	}
}

// Validate checks that every key is present and the fingerprint is well formed.
func (p Payload) Validate() error {
	if !IsFingerprint(p.Fingerprint) {
		return fmt.Errorf("%w: malformed certificate_id", ErrInvalidPayload)
	}
	if err := p.Fields().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	return nil
}

// Marshal encodes the payload as it is embedded in a QR code.
func (p Payload) Marshal() ([]byte, error) {
	return json.Marshal(p)
}

// ParsePayload decodes and validates a QR payload.
func ParsePayload(data []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}
	p.Fingerprint = NormalizeFingerprint(p.Fingerprint)
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}
