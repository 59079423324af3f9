package report

import (
	"encoding/binary"
	"fmt"
)

// The bit-packed records below follow the firmware ABI exactly: each
// named field occupies a documented bit range, accessors touch only their
// assigned bits, and reserved bits round-trip unchanged through any
// read-modify-write or serialization.

func getBits(v uint64, hi, lo uint) uint64 {
	return (v >> lo) & (1<<(hi-lo+1) - 1)
}

func setBits(v uint64, hi, lo uint, x uint64) uint64 {
	mask := uint64(1<<(hi-lo+1)-1) << lo
	return v&^mask | x<<lo&mask
}

// GuestPolicy is the guest policy the firmware binds to a guest at
// launch and reports in the attestation report.
//
//	Bit(s)  Name               Description
//	7:0     ABI_MINOR          Minimum ABI minor version required to run.
//	15:8    ABI_MAJOR          Minimum ABI major version required to run.
//	16      SMT                Host SMT usage allowed.
//	17      -                  Reserved. Must be one on the wire.
//	18      MIGRATE_MA         Migration-agent association allowed.
//	19      DEBUG              Debugging allowed.
//	20      SINGLE_SOCKET      Guest activates on one socket only.
//	21      CXL_ALLOW          CXL may be populated with devices/memory.
//	22      MEM_AES_256_XTS    AES-256-XTS memory encryption required.
//	23      RAPL_DIS           RAPL must be disabled.
//	24      CIPHERTEXT_HIDING  Ciphertext hiding must be enabled.
//	63:25   -                  Reserved. Must be zero.
type GuestPolicy uint64

// guestPolicyReservedOne is bit 17, which the firmware requires set in
// every policy submitted on the wire.
const guestPolicyReservedOne = uint64(1) << 17

// ABIMinor returns the ABI_MINOR field.
func (p GuestPolicy) ABIMinor() uint8 { return uint8(getBits(uint64(p), 7, 0)) }

// SetABIMinor sets the ABI_MINOR field.
func (p *GuestPolicy) SetABIMinor(v uint8) { *p = GuestPolicy(setBits(uint64(*p), 7, 0, uint64(v))) }

// ABIMajor returns the ABI_MAJOR field.
func (p GuestPolicy) ABIMajor() uint8 { return uint8(getBits(uint64(p), 15, 8)) }

// SetABIMajor sets the ABI_MAJOR field.
func (p *GuestPolicy) SetABIMajor(v uint8) { *p = GuestPolicy(setBits(uint64(*p), 15, 8, uint64(v))) }

// SMTAllowed returns the SMT field.
func (p GuestPolicy) SMTAllowed() uint8 { return uint8(getBits(uint64(p), 16, 16)) }

// SetSMTAllowed sets the SMT field.
func (p *GuestPolicy) SetSMTAllowed(v uint8) {
	*p = GuestPolicy(setBits(uint64(*p), 16, 16, uint64(v)))
}

// MigrateMAAllowed returns the MIGRATE_MA field.
func (p GuestPolicy) MigrateMAAllowed() uint8 { return uint8(getBits(uint64(p), 18, 18)) }

// SetMigrateMAAllowed sets the MIGRATE_MA field.
func (p *GuestPolicy) SetMigrateMAAllowed(v uint8) {
	*p = GuestPolicy(setBits(uint64(*p), 18, 18, uint64(v)))
}

// DebugAllowed returns the DEBUG field.
func (p GuestPolicy) DebugAllowed() uint8 { return uint8(getBits(uint64(p), 19, 19)) }

// SetDebugAllowed sets the DEBUG field.
func (p *GuestPolicy) SetDebugAllowed(v uint8) {
	*p = GuestPolicy(setBits(uint64(*p), 19, 19, uint64(v)))
}

// SingleSocketRequired returns the SINGLE_SOCKET field.
func (p GuestPolicy) SingleSocketRequired() uint8 { return uint8(getBits(uint64(p), 20, 20)) }

// SetSingleSocketRequired sets the SINGLE_SOCKET field.
func (p *GuestPolicy) SetSingleSocketRequired(v uint8) {
	*p = GuestPolicy(setBits(uint64(*p), 20, 20, uint64(v)))
}

// CXLAllowed returns the CXL_ALLOW field.
func (p GuestPolicy) CXLAllowed() uint8 { return uint8(getBits(uint64(p), 21, 21)) }

// SetCXLAllowed sets the CXL_ALLOW field.
func (p *GuestPolicy) SetCXLAllowed(v uint8) {
	*p = GuestPolicy(setBits(uint64(*p), 21, 21, uint64(v)))
}

// MemAES256XTS returns the MEM_AES_256_XTS field.
func (p GuestPolicy) MemAES256XTS() uint8 { return uint8(getBits(uint64(p), 22, 22)) }

// SetMemAES256XTS sets the MEM_AES_256_XTS field.
func (p *GuestPolicy) SetMemAES256XTS(v uint8) {
	*p = GuestPolicy(setBits(uint64(*p), 22, 22, uint64(v)))
}

// RAPLDisabled returns the RAPL_DIS field.
func (p GuestPolicy) RAPLDisabled() uint8 { return uint8(getBits(uint64(p), 23, 23)) }

// SetRAPLDisabled sets the RAPL_DIS field.
func (p *GuestPolicy) SetRAPLDisabled(v uint8) {
	*p = GuestPolicy(setBits(uint64(*p), 23, 23, uint64(v)))
}

// CiphertextHiding returns the CIPHERTEXT_HIDING field.
func (p GuestPolicy) CiphertextHiding() uint8 { return uint8(getBits(uint64(p), 24, 24)) }

// SetCiphertextHiding sets the CIPHERTEXT_HIDING field.
func (p *GuestPolicy) SetCiphertextHiding(v uint8) {
	*p = GuestPolicy(setBits(uint64(*p), 24, 24, uint64(v)))
}

// Wire returns the integer submitted to the firmware. Bit 17 is reserved
// must-be-one and is forced on regardless of the stored value.
func (p GuestPolicy) Wire() uint64 {
	return uint64(p) | guestPolicyReservedOne
}

// MarshalBinary returns the stored value as a little-endian uint64,
// reserved bits included.
func (p GuestPolicy) MarshalBinary() ([]byte, error) {
	return binary.LittleEndian.AppendUint64(nil, uint64(p)), nil
}

// UnmarshalBinary parses a little-endian uint64.
func (p *GuestPolicy) UnmarshalBinary(data []byte) error {
	if len(data) != 8 {
		return fmt.Errorf("guest policy is %d bytes, want 8", len(data))
	}
	*p = GuestPolicy(binary.LittleEndian.Uint64(data))
	return nil
}

// PlatformInfo reports properties of the platform the guest runs on.
//
//	Bit(s)  Name               Description
//	0       SMT_EN             SMT is enabled.
//	1       TSME_EN            TSME is enabled.
//	2       ECC_EN             The platform uses ECC memory.
//	3       RAPL_DIS           RAPL is disabled.
//	4       CIPHERTEXT_HIDING  Ciphertext hiding is enabled.
//	63:5    -                  Reserved.
type PlatformInfo uint64

// SMTEnabled returns the SMT_EN field.
func (i PlatformInfo) SMTEnabled() uint8 { return uint8(getBits(uint64(i), 0, 0)) }

// TSMEEnabled returns the TSME_EN field.
func (i PlatformInfo) TSMEEnabled() uint8 { return uint8(getBits(uint64(i), 1, 1)) }

// ECCEnabled returns the ECC_EN field.
func (i PlatformInfo) ECCEnabled() uint8 { return uint8(getBits(uint64(i), 2, 2)) }

// RAPLDisabled returns the RAPL_DIS field.
func (i PlatformInfo) RAPLDisabled() uint8 { return uint8(getBits(uint64(i), 3, 3)) }

// CiphertextHidingEnabled returns the CIPHERTEXT_HIDING field.
func (i PlatformInfo) CiphertextHidingEnabled() uint8 { return uint8(getBits(uint64(i), 4, 4)) }

// Reserved returns the reserved bits 63:5.
func (i PlatformInfo) Reserved() uint64 { return getBits(uint64(i), 63, 5) }

// MarshalBinary returns the value as a little-endian uint64.
func (i PlatformInfo) MarshalBinary() ([]byte, error) {
	return binary.LittleEndian.AppendUint64(nil, uint64(i)), nil
}

// UnmarshalBinary parses a little-endian uint64.
func (i *PlatformInfo) UnmarshalBinary(data []byte) error {
	if len(data) != 8 {
		return fmt.Errorf("platform info is %d bytes, want 8", len(data))
	}
	*i = PlatformInfo(binary.LittleEndian.Uint64(data))
	return nil
}

// Values of the KeyInfo SIGNING_KEY field.
const (
	SigningKeyVCEK = 0
	SigningKeyVLEK = 1
	SigningKeyNone = 7
)

// KeyInfo describes the key that signed an attestation report.
//
//	Bit(s)  Name           Description
//	0       AUTHOR_KEY_EN  Author key digest present in the report.
//	1       MASK_CHIP_KEY  Firmware wrote zeroes instead of a signature.
//	4:2     SIGNING_KEY    Key used to sign the report (VCEK/VLEK/none).
//	31:5    -              Reserved. Must be zero.
type KeyInfo uint32

// AuthorKeyEn reports whether the author key digest is present.
func (k KeyInfo) AuthorKeyEn() bool { return getBits(uint64(k), 0, 0) == 1 }

// MaskChipKey returns the MASK_CHIP_KEY field.
func (k KeyInfo) MaskChipKey() uint8 { return uint8(getBits(uint64(k), 1, 1)) }

// SigningKey returns the SIGNING_KEY field.
func (k KeyInfo) SigningKey() uint8 { return uint8(getBits(uint64(k), 4, 2)) }

// Reserved returns the reserved bits 31:5.
func (k KeyInfo) Reserved() uint32 { return uint32(getBits(uint64(k), 31, 5)) }

// MarshalBinary returns the value as a little-endian uint32.
func (k KeyInfo) MarshalBinary() ([]byte, error) {
	return binary.LittleEndian.AppendUint32(nil, uint32(k)), nil
}

// UnmarshalBinary parses a little-endian uint32.
func (k *KeyInfo) UnmarshalBinary(data []byte) error {
	if len(data) != 4 {
		return fmt.Errorf("key info is %d bytes, want 4", len(data))
	}
	*k = KeyInfo(binary.LittleEndian.Uint32(data))
	return nil
}

// GuestFieldSelect names the guest fields the firmware mixes into a
// derived key.
//
//	Bit(s)  Name          Description
//	0       GUEST_POLICY  Mix in the guest policy.
//	1       IMAGE_ID      Mix in the image ID.
//	2       FAMILY_ID     Mix in the family ID.
//	3       MEASUREMENT   Mix in the launch measurement.
//	4       GUEST_SVN     Mix in the guest-provided SVN.
//	5       TCB_VERSION   Mix in the guest-provided TCB version.
//	63:6    -             Reserved. Must be zero.
type GuestFieldSelect uint64

// GuestPolicy returns the GUEST_POLICY field.
func (g GuestFieldSelect) GuestPolicy() uint8 { return uint8(getBits(uint64(g), 0, 0)) }

// SetGuestPolicy sets the GUEST_POLICY field.
func (g *GuestFieldSelect) SetGuestPolicy(v uint8) {
	*g = GuestFieldSelect(setBits(uint64(*g), 0, 0, uint64(v)))
}

// ImageID returns the IMAGE_ID field.
func (g GuestFieldSelect) ImageID() uint8 { return uint8(getBits(uint64(g), 1, 1)) }

// SetImageID sets the IMAGE_ID field.
func (g *GuestFieldSelect) SetImageID(v uint8) {
	*g = GuestFieldSelect(setBits(uint64(*g), 1, 1, uint64(v)))
}

// FamilyID returns the FAMILY_ID field.
func (g GuestFieldSelect) FamilyID() uint8 { return uint8(getBits(uint64(g), 2, 2)) }

// SetFamilyID sets the FAMILY_ID field.
func (g *GuestFieldSelect) SetFamilyID(v uint8) {
	*g = GuestFieldSelect(setBits(uint64(*g), 2, 2, uint64(v)))
}

// Measurement returns the MEASUREMENT field.
func (g GuestFieldSelect) Measurement() uint8 { return uint8(getBits(uint64(g), 3, 3)) }

// SetMeasurement sets the MEASUREMENT field.
func (g *GuestFieldSelect) SetMeasurement(v uint8) {
	*g = GuestFieldSelect(setBits(uint64(*g), 3, 3, uint64(v)))
}

// GuestSVN returns the GUEST_SVN field.
func (g GuestFieldSelect) GuestSVN() uint8 { return uint8(getBits(uint64(g), 4, 4)) }

// SetGuestSVN sets the GUEST_SVN field.
func (g *GuestFieldSelect) SetGuestSVN(v uint8) {
	*g = GuestFieldSelect(setBits(uint64(*g), 4, 4, uint64(v)))
}

// TCBVersion returns the TCB_VERSION field.
func (g GuestFieldSelect) TCBVersion() uint8 { return uint8(getBits(uint64(g), 5, 5)) }

// SetTCBVersion sets the TCB_VERSION field.
func (g *GuestFieldSelect) SetTCBVersion(v uint8) {
	*g = GuestFieldSelect(setBits(uint64(*g), 5, 5, uint64(v)))
}

// MarshalBinary returns the value as a little-endian uint64.
func (g GuestFieldSelect) MarshalBinary() ([]byte, error) {
	return binary.LittleEndian.AppendUint64(nil, uint64(g)), nil
}

// UnmarshalBinary parses a little-endian uint64.
func (g *GuestFieldSelect) UnmarshalBinary(data []byte) error {
	if len(data) != 8 {
		return fmt.Errorf("guest field select is %d bytes, want 8", len(data))
	}
	*g = GuestFieldSelect(binary.LittleEndian.Uint64(data))
	return nil
}

// DerivedKeySize is the wire size of a derived-key request.
const DerivedKeySize = 32

// DerivedKey describes what the firmware mixes into a hardware-derived
// key: the root key to derive from, the guest fields to fold in, the
// VMPL, the guest SVN, and the TCB version.
type DerivedKey struct {
	rootKeySelect uint32
	reserved0     uint32

	GuestFieldSelect GuestFieldSelect

	// VMPL must be greater than or equal to the current VMPL.
	VMPL uint32

	// GuestSVN must not exceed the guest SVN provided at launch.
	GuestSVN uint32

	// TCBVersion must not exceed the committed TCB.
	TCBVersion uint64
}

// NewDerivedKey builds a derived-key request. vmrk selects the VM root
// key as the derivation root instead of the VCEK.
func NewDerivedKey(vmrk bool, fields GuestFieldSelect, vmpl, guestSVN uint32, tcbVersion uint64) DerivedKey {
	var root uint32
	if vmrk {
		root = 1
	}
	return DerivedKey{
		rootKeySelect:    root,
		GuestFieldSelect: fields,
		VMPL:             vmpl,
		GuestSVN:         guestSVN,
		TCBVersion:       tcbVersion,
	}
}

// RootKeySelect returns the root key selector: 0 for VCEK, 1 for VMRK.
func (d DerivedKey) RootKeySelect() uint32 { return d.rootKeySelect }

// Marshal returns the 32-byte little-endian firmware request.
func (d DerivedKey) Marshal() [DerivedKeySize]byte {
	var out [DerivedKeySize]byte
	binary.LittleEndian.PutUint32(out[0:4], d.rootKeySelect)
	binary.LittleEndian.PutUint32(out[4:8], d.reserved0)
	binary.LittleEndian.PutUint64(out[8:16], uint64(d.GuestFieldSelect))
	binary.LittleEndian.PutUint32(out[16:20], d.VMPL)
	binary.LittleEndian.PutUint32(out[20:24], d.GuestSVN)
	binary.LittleEndian.PutUint64(out[24:32], d.TCBVersion)
	return out
}
