package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/storacha/certifier/internal/certificate"
)

func newTestLedger(t *testing.T) *BadgerLedger {
	t.Helper()
	l, err := OpenBadger("")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

var testFields = certificate.Fields{
	RegistrationNo: "REG001",
	StudentName:    "JOHN DOE",
	CourseName:     "INTRO TO SYSTEMS",
	Institution:    "ACME UNIVERSITY",
}

func TestBadgerWriteRead(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	fp := testFields.Fingerprint()

	exists, err := l.Exists(ctx, fp)
	require.NoError(t, err)
	require.False(t, exists)

	_, err = l.Read(ctx, fp)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, l.Write(ctx, fp, testFields, "bafkcontent"))

	exists, err = l.Exists(ctx, fp)
	require.NoError(t, err)
	require.True(t, exists)

	entry, err := l.Read(ctx, fp)
	require.NoError(t, err)
	require.Equal(t, fp, entry.Fingerprint)
	require.Equal(t, testFields, entry.Fields)
	require.Equal(t, "bafkcontent", entry.ContentAddress)
	require.False(t, entry.Revoked)
	require.False(t, entry.RecordedAt.IsZero())
}

func TestBadgerRejectsDuplicateWrite(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	fp := testFields.Fingerprint()

	require.NoError(t, l.Write(ctx, fp, testFields, "a"))
	require.ErrorIs(t, l.Write(ctx, fp, testFields, "b"), ErrAlreadyExists)

	entry, err := l.Read(ctx, fp)
	require.NoError(t, err)
	require.Equal(t, "a", entry.ContentAddress)
}

func TestBadgerRejectsInconsistentFingerprint(t *testing.T) {
	l := newTestLedger(t)
	other := certificate.ComputeFingerprint("X", "Y", "Z", "W")
	require.ErrorIs(t, l.Write(context.Background(), other, testFields, "a"), ErrRejected)
}

func TestBadgerInvalidate(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t)
	fp := testFields.Fingerprint()

	require.ErrorIs(t, l.Invalidate(ctx, fp), ErrNotFound)

	require.NoError(t, l.Write(ctx, fp, testFields, "a"))
	require.NoError(t, l.Invalidate(ctx, fp))

	exists, err := l.Exists(ctx, fp)
	require.NoError(t, err)
	require.False(t, exists)

	_, err = l.Read(ctx, fp)
	require.ErrorIs(t, err, ErrNotFound)

	// revoked records are never resurrected
	require.ErrorIs(t, l.Write(ctx, fp, testFields, "b"), ErrAlreadyExists)
	require.ErrorIs(t, l.Invalidate(ctx, fp), ErrNotFound)
}
