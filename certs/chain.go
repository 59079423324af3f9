// Package certs implements the certificate collaborators the session and
// report packages consume: the versioned-endorsement-key chain that signs
// attestation reports, and the platform Diffie-Hellman certificate used
// in the launch handshake. All validation failures wrap
// interfaces.ErrTrust so callers can distinguish an untrusted key source
// from a failed verification.
package certs

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/x509"
	"fmt"
	"time"

	"github.com/google/go-sev-guest/kds"
	"github.com/ruteri/sev-launch-kit/interfaces"
)

// Chain is the ARK -> ASK -> VCEK endorsement chain: the self-signed AMD
// root key certificate, the SEV signing key certificate it signs, and
// the versioned chip endorsement key certificate that signs attestation
// reports.
type Chain struct {
	ARK  *x509.Certificate
	ASK  *x509.Certificate
	VCEK *x509.Certificate
}

// NewChain builds a chain from already-parsed certificates.
func NewChain(ark, ask, vcek *x509.Certificate) *Chain {
	return &Chain{ARK: ark, ASK: ask, VCEK: vcek}
}

// ChainFromKDS builds a chain from the formats AMD's Key Distribution
// Service serves: the DER-encoded VCEK certificate and the PEM product
// cert chain carrying the ASK and ARK.
func ChainFromKDS(vcekDER, chainPEM []byte) (*Chain, error) {
	askDER, arkDER, err := kds.ParseProductCertChain(chainPEM)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing product cert chain: %v", interfaces.ErrTrust, err)
	}
	ask, err := x509.ParseCertificate(askDER)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing ASK certificate: %v", interfaces.ErrTrust, err)
	}
	ark, err := x509.ParseCertificate(arkDER)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing ARK certificate: %v", interfaces.ErrTrust, err)
	}
	vcek, err := x509.ParseCertificate(vcekDER)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing VCEK certificate: %v", interfaces.ErrTrust, err)
	}
	return &Chain{ARK: ark, ASK: ask, VCEK: vcek}, nil
}

// VerifyingKey validates the chain and returns the VCEK public key. The
// ARK must be self-signed, each link must sign the next, every
// certificate must be within its validity window, and the leaf key must
// be ECDSA on curve P-384.
func (c *Chain) VerifyingKey() (*ecdsa.PublicKey, error) {
	if c.ARK == nil || c.ASK == nil || c.VCEK == nil {
		return nil, fmt.Errorf("%w: incomplete certificate chain", interfaces.ErrTrust)
	}

	now := time.Now()
	for _, link := range []struct {
		role string
		cert *x509.Certificate
	}{
		{"ARK", c.ARK},
		{"ASK", c.ASK},
		{"VCEK", c.VCEK},
	} {
		if now.Before(link.cert.NotBefore) || now.After(link.cert.NotAfter) {
			return nil, fmt.Errorf("%w: %s certificate outside its validity window", interfaces.ErrTrust, link.role)
		}
	}

	if err := c.ARK.CheckSignatureFrom(c.ARK); err != nil {
		return nil, fmt.Errorf("%w: ARK is not self-signed: %v", interfaces.ErrTrust, err)
	}
	if err := c.ASK.CheckSignatureFrom(c.ARK); err != nil {
		return nil, fmt.Errorf("%w: ARK does not sign ASK: %v", interfaces.ErrTrust, err)
	}
	if err := c.VCEK.CheckSignatureFrom(c.ASK); err != nil {
		return nil, fmt.Errorf("%w: ASK does not sign VCEK: %v", interfaces.ErrTrust, err)
	}

	key, ok := c.VCEK.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: VCEK public key is not ECDSA", interfaces.ErrTrust)
	}
	if key.Curve != elliptic.P384() {
		return nil, fmt.Errorf("%w: VCEK public key curve is %s, want P-384", interfaces.ErrTrust, key.Curve.Params().Name)
	}
	return key, nil
}
