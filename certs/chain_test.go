package certs_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/sev-launch-kit/certs"
	"github.com/ruteri/sev-launch-kit/interfaces"
	"github.com/ruteri/sev-launch-kit/session"
	"github.com/ruteri/sev-launch-kit/sptest"
)

var testBuild = session.Build{
	Version: session.FirmwareVersion{Major: 1, Minor: 49},
	Build:   6,
}

func TestChainVerifyingKey(t *testing.T) {
	fw, err := sptest.NewFirmware(testBuild)
	require.NoError(t, err)

	key, err := fw.Chain().VerifyingKey()
	require.NoError(t, err, "a well-formed chain must validate")
	assert.Equal(t, elliptic.P384(), key.Curve)
}

func TestChainIncomplete(t *testing.T) {
	fw, err := sptest.NewFirmware(testBuild)
	require.NoError(t, err)
	good := fw.Chain()

	for _, chain := range []*certs.Chain{
		certs.NewChain(nil, good.ASK, good.VCEK),
		certs.NewChain(good.ARK, nil, good.VCEK),
		certs.NewChain(good.ARK, good.ASK, nil),
	} {
		_, err := chain.VerifyingKey()
		require.ErrorIs(t, err, interfaces.ErrTrust, "a chain with a missing link must be rejected")
	}
}

func TestChainBrokenLink(t *testing.T) {
	fw1, err := sptest.NewFirmware(testBuild)
	require.NoError(t, err)
	fw2, err := sptest.NewFirmware(testBuild)
	require.NoError(t, err)

	// Mix two unrelated chains so no link signature holds.
	mixed := certs.NewChain(fw1.Chain().ARK, fw2.Chain().ASK, fw1.Chain().VCEK)
	_, err = mixed.VerifyingKey()
	require.ErrorIs(t, err, interfaces.ErrTrust, "cross-chain links must not validate")
}

func TestChainExpired(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "expired ARK"},
		NotBefore:             time.Now().Add(-48 * time.Hour),
		NotAfter:              time.Now().Add(-24 * time.Hour),
		BasicConstraintsValid: true,
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	expired, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	chain := certs.NewChain(expired, expired, expired)
	_, err = chain.VerifyingKey()
	require.ErrorIs(t, err, interfaces.ErrTrust, "expired certificates must be rejected")
}

func TestChainWrongCurve(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "p256 chain"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		BasicConstraintsValid: true,
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	chain := certs.NewChain(cert, cert, cert)
	_, err = chain.VerifyingKey()
	require.ErrorIs(t, err, interfaces.ErrTrust, "a P-256 leaf key must be rejected")
}

func TestChainFromKDS(t *testing.T) {
	fw, err := sptest.NewFirmware(testBuild)
	require.NoError(t, err)
	good := fw.Chain()

	// The KDS serves the product chain as ASK PEM followed by ARK PEM.
	chainPEM := append(
		pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: good.ASK.Raw}),
		pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: good.ARK.Raw})...,
	)

	chain, err := certs.ChainFromKDS(good.VCEK.Raw, chainPEM)
	require.NoError(t, err, "KDS wire formats must parse")

	key, err := chain.VerifyingKey()
	require.NoError(t, err)
	assert.True(t, key.Equal(good.VCEK.PublicKey), "the leaf key must survive the KDS round trip")
}

func TestChainFromKDSMalformed(t *testing.T) {
	fw, err := sptest.NewFirmware(testBuild)
	require.NoError(t, err)

	_, err = certs.ChainFromKDS(fw.Chain().VCEK.Raw, []byte("not pem"))
	require.ErrorIs(t, err, interfaces.ErrTrust, "a malformed product chain must be rejected")

	chainPEM := append(
		pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: fw.Chain().ASK.Raw}),
		pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: fw.Chain().ARK.Raw})...,
	)
	_, err = certs.ChainFromKDS([]byte("not der"), chainPEM)
	require.ErrorIs(t, err, interfaces.ErrTrust, "a malformed VCEK must be rejected")
}

func TestPlatformDH(t *testing.T) {
	fw, err := sptest.NewFirmware(testBuild)
	require.NoError(t, err)

	key, err := fw.PlatformDH().PlatformKey()
	require.NoError(t, err, "the platform certificate must validate")
	assert.NotNil(t, key)
}

func TestPlatformDHFromPEM(t *testing.T) {
	fw, err := sptest.NewFirmware(testBuild)
	require.NoError(t, err)

	raw := fw.PlatformDH()
	key, err := raw.PlatformKey()
	require.NoError(t, err)

	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: raw.Certificate().Raw})
	parsed, err := certs.PlatformDHFromPEM(pemBytes)
	require.NoError(t, err)

	parsedKey, err := parsed.PlatformKey()
	require.NoError(t, err)
	assert.True(t, key.Equal(parsedKey), "the key must survive a PEM round trip")

	_, err = certs.PlatformDHFromPEM([]byte("junk"))
	require.ErrorIs(t, err, interfaces.ErrTrust)
}

func TestPlatformDHWrongCurve(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "p256 pdh"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	_, err = certs.NewPlatformDH(cert).PlatformKey()
	require.ErrorIs(t, err, interfaces.ErrTrust, "a non-P-384 platform key must be rejected")
}
