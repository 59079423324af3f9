package session_test

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/sev-launch-kit/session"
	"github.com/ruteri/sev-launch-kit/sptest"
)

var testBuild = session.Build{
	Version: session.FirmwareVersion{Major: 1, Minor: 49},
	Build:   6,
}

func TestLaunchRoundTrip(t *testing.T) {
	fw, err := sptest.NewFirmware(testBuild)
	require.NoError(t, err, "firmware setup must succeed")

	policy := session.Policy{Flags: session.PolicyNoDebug | session.PolicySEV}
	s, err := session.NewSession(policy, nil)
	require.NoError(t, err)

	start, err := s.Start(fw.PlatformDH())
	require.NoError(t, err, "start packet generation must succeed")
	assert.Equal(t, policy, start.Policy)
	require.Len(t, start.Cert, 97, "ephemeral key must be an uncompressed P-384 point")

	launchData := []byte("kernel, initrd, cmdline")
	digest := sha256.Sum256(launchData)
	msr, err := fw.Launch(start, digest[:])
	require.NoError(t, err, "the firmware must accept our start packet")

	m, err := s.Measure()
	require.NoError(t, err)
	require.NoError(t, m.UpdateData(launchData))

	v, err := m.Verify(fw.Build, msr)
	require.NoError(t, err, "the firmware measurement must verify against our own digest")
	assert.Equal(t, msr, v.Measurement())

	// Inject a secret and check the firmware side can open it.
	plaintext := []byte("root volume passphrase")
	secret, err := v.Secret(0, plaintext)
	require.NoError(t, err)

	tek, _ := fw.TransportKeys()
	opened, err := tek.CTR(secret.Header.IV, secret.Ciphertext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened, "the firmware must recover the injected secret")
}

func TestLaunchTamperedPolicy(t *testing.T) {
	fw, err := sptest.NewFirmware(testBuild)
	require.NoError(t, err)

	s, err := session.NewSession(session.Policy{Flags: session.PolicyNoDebug}, nil)
	require.NoError(t, err)

	start, err := s.Start(fw.PlatformDH())
	require.NoError(t, err)

	// A hypervisor stripping the no-debug bit must be caught by the
	// policy MAC.
	start.Policy.Flags &^= session.PolicyNoDebug

	digest := sha256.Sum256(nil)
	_, err = fw.Launch(start, digest[:])
	require.Error(t, err, "a relaxed policy must fail the policy MAC check")
}

func TestLaunchTamperedWrap(t *testing.T) {
	fw, err := sptest.NewFirmware(testBuild)
	require.NoError(t, err)

	s, err := session.NewSession(session.Policy{}, nil)
	require.NoError(t, err)

	start, err := s.Start(fw.PlatformDH())
	require.NoError(t, err)
	start.Session.WrapTK[3] ^= 0x80

	digest := sha256.Sum256(nil)
	_, err = fw.Launch(start, digest[:])
	require.Error(t, err, "modified wrapped keys must fail the wrap MAC check")
}

func TestLaunchWrongFirmware(t *testing.T) {
	fw, err := sptest.NewFirmware(testBuild)
	require.NoError(t, err)

	s, err := session.NewSession(session.Policy{}, nil)
	require.NoError(t, err)

	start, err := s.Start(fw.PlatformDH())
	require.NoError(t, err)

	digest := sha256.Sum256(nil)
	msr, err := fw.Launch(start, digest[:])
	require.NoError(t, err)

	m, err := s.Measure()
	require.NoError(t, err)

	other := session.Build{Version: session.FirmwareVersion{Major: 1, Minor: 51}, Build: 2}
	_, err = m.Verify(other, msr)
	require.Error(t, err, "a measurement from a different firmware build must not verify")
}
