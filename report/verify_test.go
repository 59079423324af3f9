package report_test

import (
	"crypto/ecdsa"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ruteri/sev-launch-kit/interfaces"
	"github.com/ruteri/sev-launch-kit/report"
	"github.com/ruteri/sev-launch-kit/session"
	"github.com/ruteri/sev-launch-kit/sptest"
)

var testBuild = session.Build{
	Version: session.FirmwareVersion{Major: 1, Minor: 49},
	Build:   6,
}

func signedReport(t *testing.T) (*report.AttestationReport, *sptest.Firmware) {
	t.Helper()
	fw, err := sptest.NewFirmware(testBuild)
	require.NoError(t, err)

	var reportData [64]byte
	copy(reportData[:], "nonce chosen by the relying party")
	r := fw.NewReport(reportData)
	require.NoError(t, fw.SignReport(r))
	return r, fw
}

func TestReportVerify(t *testing.T) {
	r, fw := signedReport(t)
	require.NoError(t, r.Verify(fw.Chain()), "a freshly signed report must verify")
}

func TestReportVerifyTamperedBody(t *testing.T) {
	r, fw := signedReport(t)

	r.Measurement[0] ^= 0x01
	err := r.Verify(fw.Chain())
	require.ErrorIs(t, err, interfaces.ErrVerification, "a modified measurement must break the signature")
}

func TestReportVerifyTamperedSignature(t *testing.T) {
	r, fw := signedReport(t)

	r.Signature.R[0] ^= 0x01
	err := r.Verify(fw.Chain())
	require.ErrorIs(t, err, interfaces.ErrVerification)
}

func TestReportVerifyUnsignedTail(t *testing.T) {
	r, fw := signedReport(t)

	// The signature reserved region sits past the covered bytes.
	r.Signature.Reserved[10] = 0xff
	require.NoError(t, r.Verify(fw.Chain()), "bytes outside the covered region must not affect verification")
}

func TestReportVerifyWrongChain(t *testing.T) {
	r, _ := signedReport(t)

	other, err := sptest.NewFirmware(testBuild)
	require.NoError(t, err)
	err = r.Verify(other.Chain())
	require.ErrorIs(t, err, interfaces.ErrVerification, "another platform's VCEK must not verify the report")
}

func TestVerifyBytes(t *testing.T) {
	r, fw := signedReport(t)
	raw := r.Marshal()

	require.NoError(t, report.VerifyBytes(raw[:], fw.Chain()))

	err := report.VerifyBytes(raw[:report.Size-1], fw.Chain())
	require.ErrorIs(t, err, interfaces.ErrVerification, "truncated input must be rejected before any crypto")
}

type staticKey struct {
	key *ecdsa.PublicKey
}

func (s staticKey) VerifyingKey() (*ecdsa.PublicKey, error) { return s.key, nil }

func TestReportVerifyBareKey(t *testing.T) {
	r, fw := signedReport(t)

	key, err := fw.Chain().VerifyingKey()
	require.NoError(t, err)
	require.NoError(t, r.Verify(staticKey{key}), "any VerifyingKeySource must be accepted")
}
