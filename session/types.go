package session

import "encoding/binary"

// PolicyFlags restrict what the platform may do with the launched guest.
type PolicyFlags uint16

const (
	// PolicyNoDebug disallows debugging of the guest.
	PolicyNoDebug PolicyFlags = 1 << iota
	// PolicyNoKeySharing disallows sharing keys with other guests.
	PolicyNoKeySharing
	// PolicyEncryptedState requires SEV-ES.
	PolicyEncryptedState
	// PolicyNoSend disallows sending the guest to another platform.
	PolicyNoSend
	// PolicyDomain disallows transmission outside the platform domain.
	PolicyDomain
	// PolicySEV disallows transmission to non-SEV platforms.
	PolicySEV
)

// FirmwareVersion is a major.minor security-processor firmware version.
type FirmwareVersion struct {
	Major uint8
	Minor uint8
}

// Build identifies a firmware release: version plus build number. It is
// bound into the measurement MAC.
type Build struct {
	Version FirmwareVersion
	Build   uint8
}

// Policy is the guest policy bound into a launch. It is immutable once a
// session is created from it.
type Policy struct {
	Flags PolicyFlags
	MinFW FirmwareVersion
}

// Bytes returns the stable 4-byte wire form: flags as little-endian
// uint16 followed by the minimum firmware major and minor. This explicit
// serialization is the only representation fed into MACs.
func (p Policy) Bytes() [4]byte {
	var b [4]byte
	binary.LittleEndian.PutUint16(b[0:2], uint16(p.Flags))
	b[2] = p.MinFW.Major
	b[3] = p.MinFW.Minor
	return b
}

// Measurement is the launch measurement produced by the security
// processor: a MAC over the firmware build, policy, and launch digest,
// plus the nonce the firmware mixed in.
type Measurement struct {
	Measure [32]byte
	MNonce  [16]byte
}

// Params is the session descriptor of the start packet: the wrapped
// transport keys and the MACs binding them to the policy.
type Params struct {
	PolicyMAC [32]byte
	WrapMAC   [32]byte
	WrapTK    [32]byte
	WrapIV    [16]byte
	Nonce     [16]byte
}

// Start is the packet that initiates the launch sequence on the
// security processor.
type Start struct {
	Policy Policy
	// Cert carries the tenant's ephemeral Diffie-Hellman public key as
	// an uncompressed point.
	Cert    []byte
	Session Params
}

// HeaderFlags qualify an injected secret.
type HeaderFlags uint32

// HeaderCompressed indicates the guest must decompress the secret after
// decryption.
const HeaderCompressed HeaderFlags = 1 << 0

// Bytes returns the fixed little-endian 4-byte wire form of the flags.
func (f HeaderFlags) Bytes() [4]byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(f))
	return b
}

// SecretHeader authenticates a secret packet.
type SecretHeader struct {
	Flags HeaderFlags
	IV    [16]byte
	MAC   [32]byte
}

// Secret carries an encrypted secret for injection into the guest. The
// ciphertext length always equals the plaintext length.
type Secret struct {
	Header     SecretHeader
	Ciphertext []byte
}
