// Package session implements the tenant side of the SEV launch handshake:
// transport-key generation, the start packet that wraps them for the
// security processor, measurement verification, and secret injection.
//
// A launch walks a session through three phases. A Session begins
// Initialized; Measure moves it to a MeasuringSession accumulating launch
// data; Verify produces a VerifiedSession once the security processor's
// measurement matches our own. Each transition consumes its receiver, so
// a stale phase can never be reused: the only way to reach a later phase
// is through the value returned by the previous one.
package session

import (
	"crypto/ecdh"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"

	"github.com/ruteri/sev-launch-kit/interfaces"
)

// ErrSessionSpent is returned when an operation is attempted on a session
// phase that a consuming transition has already invalidated.
var ErrSessionSpent = errors.New("session phase already consumed")

// PlatformKeySource yields the platform's Diffie-Hellman public key (PDH)
// after validating whatever certificate material backs it. Validation
// failures are reported wrapping interfaces.ErrTrust.
type PlatformKeySource interface {
	PlatformKey() (*ecdh.PublicKey, error)
}

// Session is a launch session in its initial phase, holding the freshly
// generated transport encryption and integrity keys.
type Session struct {
	policy  Policy
	tek     *Key
	tik     *Key
	entropy interfaces.EntropySource
	spent   bool
}

// NewSession creates a session for the given policy, drawing the 16-byte
// transport encryption and integrity keys from src. A nil src selects the
// system CSPRNG.
func NewSession(policy Policy, src interfaces.EntropySource) (*Session, error) {
	if src == nil {
		src = interfaces.SystemEntropy{}
	}
	tek, err := RandomKey(16, src)
	if err != nil {
		return nil, fmt.Errorf("generating transport encryption key: %w", err)
	}
	tik, err := RandomKey(16, src)
	if err != nil {
		return nil, fmt.Errorf("generating transport integrity key: %w", err)
	}
	return &Session{policy: policy, tek: tek, tik: tik, entropy: src}, nil
}

func (s *Session) consume() error {
	if s.spent {
		return ErrSessionSpent
	}
	s.spent = true
	return nil
}

// params derives the session descriptor: the master secret from the
// shared secret z and nonce, the KEK and KIK from the master, and the
// transport keys wrapped under AES-128-CTR with the wrap MAC and policy
// MAC binding everything together.
func (s *Session) params(nonce, iv [16]byte, z *Key) (Params, error) {
	master, err := z.Derive(16, nonce[:], "sev-master-secret")
	if err != nil {
		return Params{}, err
	}
	kek, err := master.Derive(16, nil, "sev-kek")
	if err != nil {
		return Params{}, err
	}
	kik, err := master.Derive(16, nil, "sev-kik")
	if err != nil {
		return Params{}, err
	}

	plain := make([]byte, 0, 32)
	plain = append(plain, s.tek.material...)
	plain = append(plain, s.tik.material...)
	wrapped, err := kek.CTR(iv, plain)
	if err != nil {
		return Params{}, err
	}
	var wrap [32]byte
	copy(wrap[:], wrapped)

	wrapMAC, err := kik.MAC(wrap[:])
	if err != nil {
		return Params{}, err
	}
	policyBytes := s.policy.Bytes()
	policyMAC, err := s.tik.MAC(policyBytes[:])
	if err != nil {
		return Params{}, err
	}

	p := Params{WrapTK: wrap, WrapIV: iv, Nonce: nonce}
	copy(p.WrapMAC[:], wrapMAC)
	copy(p.PolicyMAC[:], policyMAC)
	return p, nil
}

// Start produces the packet that initiates the launch sequence, using the
// platform key from src. Trust failures from src abort the start and are
// returned unchanged.
func (s *Session) Start(src PlatformKeySource) (*Start, error) {
	pdh, err := src.PlatformKey()
	if err != nil {
		return nil, err
	}
	return s.StartPDH(pdh)
}

// StartPDH is Start for callers that already hold a validated platform
// Diffie-Hellman public key. It generates an ephemeral P-384 key pair,
// agrees on a shared secret with the platform, and wraps the transport
// keys under keys derived from it. The nonce and wrap IV are 16 fresh
// random bytes each, never reused across calls.
func (s *Session) StartPDH(pdh *ecdh.PublicKey) (*Start, error) {
	if s.spent {
		return nil, ErrSessionSpent
	}

	priv, err := ecdh.P384().GenerateKey(entropyReader{s.entropy})
	if err != nil {
		if errors.Is(err, interfaces.ErrEntropy) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: generating ephemeral key: %v", interfaces.ErrCrypto, err)
	}
	shared, err := priv.ECDH(pdh)
	if err != nil {
		return nil, fmt.Errorf("%w: key agreement: %v", interfaces.ErrCrypto, err)
	}
	z := NewKey(shared)

	var nonce, iv [16]byte
	if err := s.entropy.Fill(nonce[:]); err != nil {
		return nil, err
	}
	if err := s.entropy.Fill(iv[:]); err != nil {
		return nil, err
	}

	params, err := s.params(nonce, iv, z)
	if err != nil {
		return nil, err
	}
	return &Start{
		Policy:  s.policy,
		Cert:    priv.PublicKey().Bytes(),
		Session: params,
	}, nil
}

// Measure consumes the session and begins accumulating launch data for
// comparison against the security processor's measurement.
func (s *Session) Measure() (*MeasuringSession, error) {
	if err := s.consume(); err != nil {
		return nil, err
	}
	return &MeasuringSession{
		policy:  s.policy,
		tek:     s.tek,
		tik:     s.tik,
		entropy: s.entropy,
		digest:  sha256.New(),
	}, nil
}

// Verify consumes the session and checks the security processor's
// measurement against an externally computed launch digest. On mismatch
// the session is gone and the launch attempt must restart from a new
// session.
func (s *Session) Verify(digest []byte, build Build, msr Measurement) (*VerifiedSession, error) {
	if err := s.consume(); err != nil {
		return nil, err
	}
	return s.verifyDigest(digest, build, msr)
}

func (s *Session) verifyDigest(digest []byte, build Build, msr Measurement) (*VerifiedSession, error) {
	expected, err := measurementMAC(s.tik, build, s.policy, digest, msr.MNonce)
	if err != nil {
		return nil, err
	}
	if !hmac.Equal(expected, msr.Measure[:]) {
		return nil, fmt.Errorf("%w: measurement does not match", interfaces.ErrVerification)
	}
	return &VerifiedSession{
		policy:      s.policy,
		tek:         s.tek,
		tik:         s.tik,
		entropy:     s.entropy,
		measurement: msr,
	}, nil
}

// measurementMAC computes the MAC the security processor reports as its
// launch measurement: HMAC-SHA-256 over the 0x04 tag, the firmware build,
// the 4-byte policy wire form, the launch digest, and the firmware nonce.
func measurementMAC(tik *Key, build Build, policy Policy, digest []byte, mnonce [16]byte) ([]byte, error) {
	policyBytes := policy.Bytes()
	msg := make([]byte, 0, 4+len(policyBytes)+len(digest)+len(mnonce))
	msg = append(msg, 0x04, build.Version.Major, build.Version.Minor, build.Build)
	msg = append(msg, policyBytes[:]...)
	msg = append(msg, digest...)
	msg = append(msg, mnonce[:]...)
	return tik.MAC(msg)
}

// Unsafe exposes the escape hatches that skip protocol checks. It exists
// so the bypass is a visible, auditable opt-in at the call site and can
// never be reached through the regular phase transitions.
func (s *Session) Unsafe() UnsafeSession { return UnsafeSession{s} }

// UnsafeSession wraps a Session for operations restricted to tests and
// unattested workflows.
type UnsafeSession struct {
	s *Session
}

// MockVerify consumes the session and accepts msr without checking the
// measurement MAC. It must never be used on a production launch path.
func (u UnsafeSession) MockVerify(msr Measurement) (*VerifiedSession, error) {
	if err := u.s.consume(); err != nil {
		return nil, err
	}
	return &VerifiedSession{
		policy:      u.s.policy,
		tek:         u.s.tek,
		tik:         u.s.tik,
		entropy:     u.s.entropy,
		measurement: msr,
	}, nil
}

// MeasuringSession is a launch session accumulating the data the
// security processor measures.
type MeasuringSession struct {
	policy  Policy
	tek     *Key
	tik     *Key
	entropy interfaces.EntropySource
	digest  hash.Hash
	spent   bool
}

func (m *MeasuringSession) consume() error {
	if m.spent {
		return ErrSessionSpent
	}
	m.spent = true
	return nil
}

// UpdateData appends data to the running launch digest. Callers must feed
// exactly the bytes the security processor measured, in the same order;
// the session cannot enforce that contract.
func (m *MeasuringSession) UpdateData(data []byte) error {
	if m.spent {
		return ErrSessionSpent
	}
	m.digest.Write(data)
	return nil
}

// Verify consumes the session and checks msr against the accumulated
// digest.
func (m *MeasuringSession) Verify(build Build, msr Measurement) (*VerifiedSession, error) {
	if err := m.consume(); err != nil {
		return nil, err
	}
	s := &Session{policy: m.policy, tek: m.tek, tik: m.tik, entropy: m.entropy}
	return s.verifyDigest(m.digest.Sum(nil), build, msr)
}

// VerifyWithDigest consumes the session and checks msr against an
// externally computed digest, ignoring the accumulated one.
func (m *MeasuringSession) VerifyWithDigest(build Build, msr Measurement, digest []byte) (*VerifiedSession, error) {
	if err := m.consume(); err != nil {
		return nil, err
	}
	s := &Session{policy: m.policy, tek: m.tek, tik: m.tik, entropy: m.entropy}
	return s.verifyDigest(digest, build, msr)
}

// VerifiedSession is a launch session whose measurement agreed with the
// security processor's. It can encrypt and authenticate secrets for
// injection into the guest.
type VerifiedSession struct {
	policy      Policy
	tek         *Key
	tik         *Key
	entropy     interfaces.EntropySource
	measurement Measurement
}

// Measurement returns the agreed launch measurement.
func (v *VerifiedSession) Measurement() Measurement { return v.measurement }

// Secret encrypts data under the transport encryption key with a fresh
// random IV and authenticates it, together with the agreed measurement,
// under the transport integrity key. The plaintext is neither truncated
// nor padded.
func (v *VerifiedSession) Secret(flags HeaderFlags, data []byte) (*Secret, error) {
	var iv [16]byte
	if err := v.entropy.Fill(iv[:]); err != nil {
		return nil, err
	}

	ciphertext, err := v.tek.CTR(iv, data)
	if err != nil {
		return nil, err
	}

	flagBytes := flags.Bytes()
	msg := make([]byte, 0, 1+4+16+4+4+len(ciphertext)+32)
	msg = append(msg, 0x01)
	msg = append(msg, flagBytes[:]...)
	msg = append(msg, iv[:]...)
	msg = binary.LittleEndian.AppendUint32(msg, uint32(len(data)))
	msg = binary.LittleEndian.AppendUint32(msg, uint32(len(ciphertext)))
	msg = append(msg, ciphertext...)
	msg = append(msg, v.measurement.Measure[:]...)

	mac, err := v.tik.MAC(msg)
	if err != nil {
		return nil, err
	}

	secret := &Secret{Header: SecretHeader{Flags: flags, IV: iv}, Ciphertext: ciphertext}
	copy(secret.Header.MAC[:], mac)
	return secret, nil
}

// entropyReader adapts an EntropySource to io.Reader for key generation.
type entropyReader struct {
	src interfaces.EntropySource
}

func (r entropyReader) Read(p []byte) (int, error) {
	if err := r.src.Fill(p); err != nil {
		return 0, err
	}
	return len(p), nil
}
