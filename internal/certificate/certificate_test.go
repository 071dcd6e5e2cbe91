package certificate

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeFingerprintExample(t *testing.T) {
	sum := sha256.Sum256([]byte("REG001JOHN DOEINTRO TO SYSTEMSACME UNIVERSITY"))
	want := hex.EncodeToString(sum[:])

	got := ComputeFingerprint("REG001", "JOHN DOE", "INTRO TO SYSTEMS", "ACME UNIVERSITY")
	require.Equal(t, want, got)
	require.True(t, IsFingerprint(got))
}

func TestComputeFingerprintDeterministic(t *testing.T) {
	f := Fields{RegistrationNo: "R1", StudentName: "ANA", CourseName: "Go 101", Institution: "MIT"}
	require.Equal(t, f.Fingerprint(), f.Fingerprint())
	require.Equal(t, f.Fingerprint(), ComputeFingerprint("R1", "ANA", "Go 101", "MIT"))
}

func TestComputeFingerprintDistinct(t *testing.T) {
	base := Fields{RegistrationNo: "R1", StudentName: "ANA", CourseName: "Go 101", Institution: "MIT"}
	variants := []Fields{
		{RegistrationNo: "R2", StudentName: "ANA", CourseName: "Go 101", Institution: "MIT"},
		{RegistrationNo: "R1", StudentName: "ANNA", CourseName: "Go 101", Institution: "MIT"},
		{RegistrationNo: "R1", StudentName: "ANA", CourseName: "Go 102", Institution: "MIT"},
		{RegistrationNo: "R1", StudentName: "ANA", CourseName: "Go 101", Institution: "CMU"},
		{RegistrationNo: "R1", StudentName: "ANA", CourseName: "go 101", Institution: "MIT"},
	}

	seen := map[string]bool{base.Fingerprint(): true}
	for _, v := range variants {
		fp := v.Fingerprint()
		assert.False(t, seen[fp], "collision for %+v", v)
		seen[fp] = true
	}
}

func TestNormalize(t *testing.T) {
	f := Fields{
		RegistrationNo: " reg001 ",
		StudentName:    "john doe",
		CourseName:     " Intro to Systems",
		Institution:    "acme university",
	}.Normalize()

	require.Equal(t, Fields{
		RegistrationNo: "REG001",
		StudentName:    "JOHN DOE",
		CourseName:     " Intro to Systems",
		Institution:    "ACME UNIVERSITY",
	}, f)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		fields  Fields
		missing []string
	}{
		{
			name:   "complete",
			fields: Fields{RegistrationNo: "R", StudentName: "N", CourseName: "C", Institution: "I"},
		},
		{
			name:    "blank name",
			fields:  Fields{RegistrationNo: "R", StudentName: "  ", CourseName: "C", Institution: "I"},
			missing: []string{FieldStudentName},
		},
		{
			name:    "empty",
			fields:  Fields{},
			missing: []string{FieldRegistrationNo, FieldStudentName, FieldCourseName, FieldInstitution},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fields.Validate()
			if tt.missing == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidFields)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			require.Equal(t, tt.missing, verr.Missing)
		})
	}
}

func TestDiff(t *testing.T) {
	a := Fields{RegistrationNo: "R", StudentName: "N", CourseName: "C", Institution: "I"}
	b := a
	require.Empty(t, a.Diff(b))

	b.Institution = "J"
	b.CourseName = "D"
	require.Equal(t, []string{FieldCourseName, FieldInstitution}, a.Diff(b))
	require.Equal(t, "J", b.Value(FieldInstitution))
}

func TestRecordPayload(t *testing.T) {
	fields := Fields{RegistrationNo: "REG001", StudentName: "JOHN DOE", CourseName: "Intro", Institution: "ACME"}
	rec := NewRecord(fields, time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC))

	require.Equal(t, "2024-03-09", rec.IssueDateString())
	require.Equal(t, fields.Fingerprint(), rec.Fingerprint)

	data, err := rec.Payload().Marshal()
	require.NoError(t, err)

	var raw map[string]string
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Equal(t, rec.Fingerprint, raw["certificate_id"])
	require.Equal(t, "REG001", raw["registration_no"])
	require.Equal(t, "JOHN DOE", raw["student_name"])
	require.Equal(t, "Intro", raw["course_name"])
	require.Equal(t, "ACME", raw["institution"])

	parsed, err := ParsePayload(data)
	require.NoError(t, err)
	require.Equal(t, rec.Payload(), *parsed)
}

func TestParsePayloadRejectsBadInput(t *testing.T) {
	valid := ComputeFingerprint("R", "N", "C", "I")
	tests := []struct {
		name string
		data string
	}{
		{"not json", "certificate"},
		{"bad fingerprint", `{"certificate_id":"xyz","registration_no":"R","student_name":"N","course_name":"C","institution":"I"}`},
		{"upper hex fingerprint", `{"certificate_id":"` + toUpper(valid) + `","registration_no":"R","student_name":"N","course_name":"C","institution":"I"}`},
		{"missing institution", `{"certificate_id":"` + valid + `","registration_no":"R","student_name":"N","course_name":"C"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePayload([]byte(tt.data))
			require.ErrorIs(t, err, ErrInvalidPayload)
		})
	}
}

func toUpper(s string) string {
	out := []byte(s)
	for i, c := range out {
		if c >= 'a' && c <= 'f' {
			out[i] = c - 'a' + 'A'
		}
	}
	return string(out)
}
