// Package sptest provides a fake security processor for exercising the
// launch handshake and attestation verification without hardware. It
// unwraps transport keys from start packets, produces launch
// measurements, and signs attestation reports with a throwaway
// endorsement chain.
package sptest

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha512"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/sev-launch-kit/certs"
	"github.com/ruteri/sev-launch-kit/report"
	"github.com/ruteri/sev-launch-kit/session"
)

// Firmware mimics the measurement and report-signing duties of the
// security processor.
type Firmware struct {
	// Build is the firmware version mixed into measurements.
	Build session.Build

	signer *ecdsa.PrivateKey
	pdh    *ecdsa.PrivateKey
	chain  *certs.Chain
	pdhCrt *x509.Certificate

	// transport keys recovered from the last Launch call
	tek *session.Key
	tik *session.Key
}

// NewFirmware generates a firmware instance with a fresh endorsement
// chain and platform Diffie-Hellman key.
func NewFirmware(build session.Build) (*Firmware, error) {
	signer, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	if err != nil {
		return nil, err
	}
	pdh, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	if err != nil {
		return nil, err
	}

	f := &Firmware{Build: build, signer: signer, pdh: pdh}
	if f.chain, err = newChain(signer); err != nil {
		return nil, err
	}
	if f.pdhCrt, err = newCert("sptest platform DH", pdh, nil, nil, false); err != nil {
		return nil, err
	}
	return f, nil
}

// Chain returns the throwaway ARK/ASK/VCEK chain whose leaf key signs
// this firmware's reports.
func (f *Firmware) Chain() *certs.Chain { return f.chain }

// PlatformDH returns the platform Diffie-Hellman certificate for the
// launch handshake.
func (f *Firmware) PlatformDH() *certs.PlatformDH {
	return certs.NewPlatformDH(f.pdhCrt)
}

// Launch plays the security processor's side of the handshake: it
// recovers the transport keys from the start packet, checks both MACs,
// and returns the measurement for the given launch digest.
func (f *Firmware) Launch(start *session.Start, digest []byte) (session.Measurement, error) {
	eph, err := ecdh.P384().NewPublicKey(start.Cert)
	if err != nil {
		return session.Measurement{}, fmt.Errorf("parsing tenant ephemeral key: %w", err)
	}
	pdhKey, err := f.pdh.ECDH()
	if err != nil {
		return session.Measurement{}, err
	}
	shared, err := pdhKey.ECDH(eph)
	if err != nil {
		return session.Measurement{}, err
	}

	master, err := session.NewKey(shared).Derive(16, start.Session.Nonce[:], "sev-master-secret")
	if err != nil {
		return session.Measurement{}, err
	}
	kek, err := master.Derive(16, nil, "sev-kek")
	if err != nil {
		return session.Measurement{}, err
	}
	kik, err := master.Derive(16, nil, "sev-kik")
	if err != nil {
		return session.Measurement{}, err
	}

	wrapMAC, err := kik.MAC(start.Session.WrapTK[:])
	if err != nil {
		return session.Measurement{}, err
	}
	if !hmac.Equal(wrapMAC, start.Session.WrapMAC[:]) {
		return session.Measurement{}, errors.New("wrap MAC mismatch")
	}

	keys, err := kek.CTR(start.Session.WrapIV, start.Session.WrapTK[:])
	if err != nil {
		return session.Measurement{}, err
	}
	f.tek = session.NewKey(keys[0:16])
	f.tik = session.NewKey(keys[16:32])

	policyBytes := start.Policy.Bytes()
	policyMAC, err := f.tik.MAC(policyBytes[:])
	if err != nil {
		return session.Measurement{}, err
	}
	if !hmac.Equal(policyMAC, start.Session.PolicyMAC[:]) {
		return session.Measurement{}, errors.New("policy MAC mismatch")
	}

	return f.Measure(f.tik, start.Policy, digest)
}

// Measure returns the measurement the security processor would produce
// for the given transport integrity key, policy, and launch digest. The
// firmware nonce is freshly generated.
func (f *Firmware) Measure(tik *session.Key, policy session.Policy, digest []byte) (session.Measurement, error) {
	var m session.Measurement
	mnonce := uuid.New()
	copy(m.MNonce[:], mnonce[:])

	policyBytes := policy.Bytes()
	msg := make([]byte, 0, 4+4+len(digest)+16)
	msg = append(msg, 0x04, f.Build.Version.Major, f.Build.Version.Minor, f.Build.Build)
	msg = append(msg, policyBytes[:]...)
	msg = append(msg, digest...)
	msg = append(msg, m.MNonce[:]...)

	mac, err := tik.MAC(msg)
	if err != nil {
		return session.Measurement{}, err
	}
	copy(m.Measure[:], mac)
	return m, nil
}

// TransportKeys exposes the keys recovered by the last Launch call, for
// asserting secret-packet round trips.
func (f *Firmware) TransportKeys() (tek, tik *session.Key) { return f.tek, f.tik }

// NewReport builds a version-2 report carrying reportData, with fresh
// report IDs and the policy's reserved bit set the way the firmware
// writes it. The report is unsigned until SignReport is called.
func (f *Firmware) NewReport(reportData [64]byte) *report.AttestationReport {
	r := &report.AttestationReport{
		Version:      2,
		Policy:       report.GuestPolicy(report.GuestPolicy(0).Wire()), // reserved bit 17 set, as the firmware writes it
		SigAlgo:      1, // ECDSA P-384 with SHA-384
		ReportData:   reportData,
		CurrentBuild: f.Build.Build,
		CurrentMinor: f.Build.Version.Minor,
		CurrentMajor: f.Build.Version.Major,
	}
	id := uuid.New()
	copy(r.ReportID[0:16], id[:])
	id = uuid.New()
	copy(r.ReportID[16:32], id[:])
	return r
}

// SignReport signs the report's covered region with the firmware's
// endorsement key, filling in the signature field.
func (f *Firmware) SignReport(r *report.AttestationReport) error {
	raw := r.Marshal()
	digest := sha512.Sum384(raw[:report.SignedSize])
	sigR, sigS, err := ecdsa.Sign(rand.Reader, f.signer, digest[:])
	if err != nil {
		return err
	}
	r.Signature = report.NewSignature(sigR, sigS)
	return nil
}

func newChain(vcekKey *ecdsa.PrivateKey) (*certs.Chain, error) {
	arkKey, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	if err != nil {
		return nil, err
	}
	askKey, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	if err != nil {
		return nil, err
	}

	ark, err := newCert("sptest ARK", arkKey, nil, nil, true)
	if err != nil {
		return nil, err
	}
	ask, err := newCert("sptest ASK", askKey, ark, arkKey, true)
	if err != nil {
		return nil, err
	}
	vcek, err := newCert("sptest VCEK", vcekKey, ask, askKey, false)
	if err != nil {
		return nil, err
	}
	return certs.NewChain(ark, ask, vcek), nil
}

// newCert issues a certificate for key's public key. A nil parent makes
// it self-signed.
func newCert(cn string, key *ecdsa.PrivateKey, parent *x509.Certificate, parentKey *ecdsa.PrivateKey, isCA bool) (*x509.Certificate, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, err
	}
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		BasicConstraintsValid: true,
		IsCA:                  isCA,
	}
	if isCA {
		template.KeyUsage = x509.KeyUsageCertSign
	}
	if parent == nil {
		parent, parentKey = template, key
	}
	der, err := x509.CreateCertificate(rand.Reader, template, parent, &key.PublicKey, parentKey)
	if err != nil {
		return nil, err
	}
	return x509.ParseCertificate(der)
}
