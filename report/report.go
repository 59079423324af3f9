// Package report implements the fixed-layout SEV-SNP attestation report:
// the 1184-byte versioned record the security processor firmware signs
// with its versioned endorsement key, the bit-packed metadata records it
// carries, and verification of the embedded signature.
package report

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ruteri/sev-launch-kit/interfaces"
)

const (
	// Size is the exact serialized size of an attestation report.
	Size = 1184

	// SignedSize is the number of leading bytes of the serialized report
	// covered by the signature. Everything from this offset on, the
	// signature included, is excluded from what is signed.
	SignedSize = 0x2A0

	// SignatureComponentSize is the zero-padded size of each of the
	// signature's R and S components on the wire.
	SignatureComponentSize = 72
)

// TCBVersion is the security patch level vector of the platform's
// trusted computing base. Serialized it is 8 bytes, boot loader first.
type TCBVersion struct {
	BootLoader uint8
	TEE        uint8
	Reserved   [4]byte
	SNP        uint8
	Microcode  uint8
}

// Uint64 returns the TCB version as the little-endian integer the
// firmware compares, boot loader in the low byte.
func (t TCBVersion) Uint64() uint64 {
	var b [8]byte
	b[0] = t.BootLoader
	b[1] = t.TEE
	copy(b[2:6], t.Reserved[:])
	b[6] = t.SNP
	b[7] = t.Microcode
	return binary.LittleEndian.Uint64(b[:])
}

// Signature is the ECDSA P-384 signature block at the tail of the
// report. R and S are zero-padded little-endian integers.
type Signature struct {
	R        [SignatureComponentSize]byte
	S        [SignatureComponentSize]byte
	Reserved [368]byte
}

// NewSignature packs big-endian R and S integers into the wire form.
func NewSignature(r, s *big.Int) Signature {
	var sig Signature
	putReversed(sig.R[:], r.Bytes())
	putReversed(sig.S[:], s.Bytes())
	return sig
}

// RS returns the signature components as big integers.
func (s *Signature) RS() (*big.Int, *big.Int) {
	return new(big.Int).SetBytes(reversed(s.R[:])), new(big.Int).SetBytes(reversed(s.S[:]))
}

// putReversed writes src into dst reversed. Components wider than dst
// keep their low-order bytes.
func putReversed(dst, src []byte) {
	if len(src) > len(dst) {
		src = src[len(src)-len(dst):]
	}
	for i, b := range src {
		dst[len(src)-1-i] = b
	}
}

func reversed(b []byte) []byte {
	out := make([]byte, len(b))
	putReversed(out, b)
	return out
}

// AttestationReport is the fixed-layout record the firmware produces for
// a guest. Field order matches the wire layout exactly; reserved regions
// are preserved byte for byte through (de)serialization and comparison.
type AttestationReport struct {
	// Version of the report layout. 2 for this layout.
	Version uint32
	// GuestSVN is the guest security version number.
	GuestSVN uint32
	// Policy is the guest policy bound at launch.
	Policy GuestPolicy
	// FamilyID provided at launch.
	FamilyID [16]byte
	// ImageID provided at launch.
	ImageID [16]byte
	// VMPL of the attestation report request.
	VMPL uint32
	// SigAlgo is the algorithm the report is signed with.
	SigAlgo uint32
	// CurrentTCB is the current TCB version.
	CurrentTCB TCBVersion
	// PlatformInfo describes the platform.
	PlatformInfo PlatformInfo
	// KeyInfo describes the signing key.
	KeyInfo   KeyInfo
	Reserved0 uint32
	// ReportData is the guest-provided 512 bits of data.
	ReportData [64]byte
	// Measurement calculated at launch.
	Measurement [48]byte
	// HostData provided by the hypervisor at launch.
	HostData [32]byte
	// IDKeyDigest is the SHA-384 digest of the ID public key.
	IDKeyDigest [48]byte
	// AuthorKeyDigest is the SHA-384 digest of the author public key.
	AuthorKeyDigest [48]byte
	// ReportID of this guest.
	ReportID [32]byte
	// ReportIDMA is the report ID of the guest's migration agent.
	ReportIDMA [32]byte
	// ReportedTCB is the TCB version used to derive the signing VCEK.
	ReportedTCB TCBVersion
	Reserved1   [24]byte
	// ChipID is the chip-unique identifier, or zero if masked.
	ChipID [64]byte
	// CommittedTCB is the committed TCB version.
	CommittedTCB TCBVersion
	// CurrentBuild, CurrentMinor, CurrentMajor form the current firmware
	// version.
	CurrentBuild uint8
	CurrentMinor uint8
	CurrentMajor uint8
	Reserved2    uint8
	// CommittedBuild, CommittedMinor, CommittedMajor form the committed
	// firmware version.
	CommittedBuild uint8
	CommittedMinor uint8
	CommittedMajor uint8
	Reserved3      uint8
	// LaunchTCB is the TCB version at launch or import.
	LaunchTCB TCBVersion
	Reserved4 [168]byte
	// Signature covers bytes [0, SignedSize) of the serialized report.
	Signature Signature
}

// Marshal serializes the report to its canonical little-endian wire
// form. Every field, reserved regions included, is written in layout
// order with no padding.
func (r *AttestationReport) Marshal() [Size]byte {
	buf := bytes.NewBuffer(make([]byte, 0, Size))
	// All fields are fixed-size, so encoding cannot fail.
	_ = binary.Write(buf, binary.LittleEndian, r)

	var out [Size]byte
	copy(out[:], buf.Bytes())
	return out
}

// Unmarshal parses a canonical wire-form report. The input must be
// exactly Size bytes; any other length is rejected.
func Unmarshal(data []byte) (*AttestationReport, error) {
	if len(data) != Size {
		return nil, fmt.Errorf("%w: report is %d bytes, want %d", interfaces.ErrVerification, len(data), Size)
	}
	r := new(AttestationReport)
	if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, r); err != nil {
		return nil, fmt.Errorf("%w: decoding report: %v", interfaces.ErrVerification, err)
	}
	return r, nil
}
