package certs

import (
	"crypto/ecdh"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"time"

	"github.com/ruteri/sev-launch-kit/interfaces"
)

// PlatformDH wraps the certificate carrying the platform's
// Diffie-Hellman public key (PDH), the key the launch handshake agrees
// against. It implements session.PlatformKeySource.
type PlatformDH struct {
	cert *x509.Certificate
}

// NewPlatformDH wraps an already-parsed platform certificate.
func NewPlatformDH(cert *x509.Certificate) *PlatformDH {
	return &PlatformDH{cert: cert}
}

// PlatformDHFromPEM parses a PEM-encoded platform certificate.
func PlatformDHFromPEM(data []byte) (*PlatformDH, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("%w: no certificate PEM block", interfaces.ErrTrust)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing platform certificate: %v", interfaces.ErrTrust, err)
	}
	return &PlatformDH{cert: cert}, nil
}

// Certificate returns the wrapped platform certificate.
func (p *PlatformDH) Certificate() *x509.Certificate { return p.cert }

// PlatformKey validates the certificate and returns its P-384 public key
// in ECDH form.
func (p *PlatformDH) PlatformKey() (*ecdh.PublicKey, error) {
	if p.cert == nil {
		return nil, fmt.Errorf("%w: no platform certificate", interfaces.ErrTrust)
	}
	now := time.Now()
	if now.Before(p.cert.NotBefore) || now.After(p.cert.NotAfter) {
		return nil, fmt.Errorf("%w: platform certificate outside its validity window", interfaces.ErrTrust)
	}

	pub, ok := p.cert.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: platform public key is not ECDSA", interfaces.ErrTrust)
	}
	if pub.Curve != elliptic.P384() {
		return nil, fmt.Errorf("%w: platform public key curve is %s, want P-384", interfaces.ErrTrust, pub.Curve.Params().Name)
	}
	key, err := pub.ECDH()
	if err != nil {
		return nil, fmt.Errorf("%w: converting platform key: %v", interfaces.ErrTrust, err)
	}
	return key, nil
}
