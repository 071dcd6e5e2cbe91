package verifier

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/storacha/certifier/internal/certificate"
	"github.com/storacha/certifier/internal/ledger"
)

var fields = certificate.Fields{
	RegistrationNo: "REG001",
	StudentName:    "JOHN DOE",
	CourseName:     "INTRO TO SYSTEMS",
	Institution:    "ACME UNIVERSITY",
}

func setup(t *testing.T) (*Verifier, *ledger.BadgerLedger, string) {
	t.Helper()
	l, err := ledger.OpenBadger("")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	fp := fields.Fingerprint()
	require.NoError(t, l.Write(context.Background(), fp, fields, "bafycontent"))
	return New(Params{Ledger: l}), l, fp
}

func payloadFor(fp string, f certificate.Fields) certificate.Payload {
	return certificate.Payload{
		Fingerprint:    fp,
		RegistrationNo: f.RegistrationNo,
		StudentName:    f.StudentName,
		CourseName:     f.CourseName,
		Institution:    f.Institution,
	}
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	v, _, fp := setup(t)

	res, err := v.VerifyFingerprint(ctx, fp)
	require.NoError(t, err)
	require.Equal(t, StatusVerified, res.Status)
	require.Equal(t, ModeFingerprint, res.Mode)
	require.NotNil(t, res.Record)
	require.Equal(t, fields, res.Record.Fields)
	require.Equal(t, "bafycontent", res.Record.ContentAddress)

	res, err = v.VerifyPayload(ctx, payloadFor(fp, fields))
	require.NoError(t, err)
	require.True(t, res.Verified())
	require.Empty(t, res.Mismatches)
}

func TestInstitutionMismatch(t *testing.T) {
	v, _, fp := setup(t)

	forged := fields
	forged.Institution = "EVIL UNIVERSITY"
	res, err := v.VerifyPayload(context.Background(), payloadFor(fp, forged))
	require.NoError(t, err)
	require.Equal(t, StatusNotVerified, res.Status)
	require.Equal(t, ReasonMismatch, res.Reason)
	require.Equal(t, []Mismatch{{
		Field:   certificate.FieldInstitution,
		Ledger:  "ACME UNIVERSITY",
		Claimed: "EVIL UNIVERSITY",
	}}, res.Mismatches)
	require.Nil(t, res.Record)
}

func TestCaseIsSignificant(t *testing.T) {
	v, _, fp := setup(t)

	claimed := fields
	claimed.StudentName = "John Doe"
	res, err := v.VerifyPayload(context.Background(), payloadFor(fp, claimed))
	require.NoError(t, err)
	require.Equal(t, ReasonMismatch, res.Reason)
	require.Equal(t, certificate.FieldStudentName, res.Mismatches[0].Field)
}

func TestUnknownFingerprint(t *testing.T) {
	ctx := context.Background()
	v, _, _ := setup(t)
	unknown := certificate.ComputeFingerprint("A", "B", "C", "D")

	for _, fp := range []string{unknown, "not-a-fingerprint", ""} {
		res, err := v.VerifyFingerprint(ctx, fp)
		require.NoError(t, err)
		require.Equal(t, StatusNotVerified, res.Status)
		require.Equal(t, ReasonNotFound, res.Reason)
	}

	res, err := v.VerifyPayload(ctx, payloadFor(unknown, fields))
	require.NoError(t, err)
	require.Equal(t, ReasonNotFound, res.Reason)
}

func TestRevoked(t *testing.T) {
	ctx := context.Background()
	v, l, fp := setup(t)

	require.NoError(t, l.Invalidate(ctx, fp))

	exists, err := l.Exists(ctx, fp)
	require.NoError(t, err)
	require.False(t, exists)

	res, err := v.VerifyFingerprint(ctx, fp)
	require.NoError(t, err)
	require.Equal(t, StatusNotVerified, res.Status)
	require.Equal(t, ReasonNotFound, res.Reason)

	res, err = v.VerifyPayload(ctx, payloadFor(fp, fields))
	require.NoError(t, err)
	require.Equal(t, ReasonNotFound, res.Reason)
}

func TestFingerprintIsNormalized(t *testing.T) {
	ctx := context.Background()
	v, _, fp := setup(t)

	typed := "  " + strings.ToUpper(fp) + "\n"
	res, err := v.VerifyFingerprint(ctx, typed)
	require.NoError(t, err)
	require.Equal(t, StatusVerified, res.Status)
	require.Equal(t, fp, res.Fingerprint)

	res, err = v.VerifyPayload(ctx, payloadFor(strings.ToUpper(fp), fields))
	require.NoError(t, err)
	require.True(t, res.Verified())
}

type brokenLedger struct{ ledger.Ledger }

func (brokenLedger) Read(context.Context, string) (*ledger.Entry, error) {
	return nil, ledger.ErrUnavailable
}

func TestLedgerFailureIsAnError(t *testing.T) {
	v := New(Params{Ledger: brokenLedger{}})
	_, err := v.VerifyFingerprint(context.Background(), fields.Fingerprint())
	require.ErrorIs(t, err, ledger.ErrUnavailable)
}

type stubDecoder struct {
	payload *certificate.Payload
	err     error
}

func (d stubDecoder) DecodePayload(context.Context, []byte) (*certificate.Payload, error) {
	return d.payload, d.err
}

func TestVerifyDocument(t *testing.T) {
	ctx := context.Background()
	_, l, fp := setup(t)

	p := payloadFor(fp, fields)
	v := New(Params{Ledger: l, Decoder: stubDecoder{payload: &p}})
	res, err := v.VerifyDocument(ctx, []byte("%PDF"))
	require.NoError(t, err)
	require.Equal(t, ModeDocument, res.Mode)
	require.True(t, res.Verified())

	errNoPayload := errors.New("no payload")
	v = New(Params{Ledger: l, Decoder: stubDecoder{err: errNoPayload}})
	_, err = v.VerifyDocument(ctx, []byte("%PDF"))
	require.ErrorIs(t, err, errNoPayload)

	v = New(Params{Ledger: l})
	_, err = v.VerifyDocument(ctx, nil)
	require.ErrorIs(t, err, ErrNoDecoder)
}
