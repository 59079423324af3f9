package report

import (
	"crypto/ecdsa"
	"crypto/sha512"
	"fmt"

	"github.com/ruteri/sev-launch-kit/interfaces"
	"golang.org/x/crypto/cryptobyte"
	casn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// VerifyingKeySource yields the public key whose certificate endorses
// attestation reports, typically the leaf of a validated VCEK or VLEK
// chain. Sources report their own validation failures wrapping
// interfaces.ErrTrust.
type VerifyingKeySource interface {
	VerifyingKey() (*ecdsa.PublicKey, error)
}

// Verify checks the report's embedded signature: the report is
// serialized to its canonical form, the first SignedSize bytes are
// hashed with SHA-384, and the ECDSA P-384 signature is verified against
// the key from src. A trust failure from src is returned unchanged; a
// signature that does not validate is interfaces.ErrVerification.
func (r *AttestationReport) Verify(src VerifyingKeySource) error {
	key, err := src.VerifyingKey()
	if err != nil {
		return err
	}

	raw := r.Marshal()
	digest := sha512.Sum384(raw[:SignedSize])

	der, err := r.Signature.DER()
	if err != nil {
		return err
	}
	if !ecdsa.VerifyASN1(key, digest[:], der) {
		return fmt.Errorf("%w: endorsement key does not sign the attestation report", interfaces.ErrVerification)
	}
	return nil
}

// VerifyBytes parses a serialized report and verifies its signature. A
// report whose size differs from the fixed layout is rejected before any
// key material is consulted.
func VerifyBytes(data []byte, src VerifyingKeySource) error {
	r, err := Unmarshal(data)
	if err != nil {
		return err
	}
	return r.Verify(src)
}

// DER converts the little-endian R/S pair into an ASN.1 DER ECDSA
// signature suitable for ecdsa.VerifyASN1.
func (s *Signature) DER() ([]byte, error) {
	r, ss := s.RS()

	var b cryptobyte.Builder
	b.AddASN1(casn1.SEQUENCE, func(c *cryptobyte.Builder) {
		c.AddASN1BigInt(r)
		c.AddASN1BigInt(ss)
	})
	der, err := b.Bytes()
	if err != nil {
		return nil, fmt.Errorf("%w: encoding signature: %v", interfaces.ErrCrypto, err)
	}
	return der, nil
}
