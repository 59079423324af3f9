package report

import (
	"fmt"
	"strings"
)

// String renders the guest policy fields for human consumption.
func (p GuestPolicy) String() string {
	return fmt.Sprintf("Guest Policy (0x%x): ABI %d.%d, SMT %d, Migrate MA %d, Debug %d, Single Socket %d",
		uint64(p), p.ABIMajor(), p.ABIMinor(), p.SMTAllowed(), p.MigrateMAAllowed(),
		p.DebugAllowed(), p.SingleSocketRequired())
}

// String renders the platform info fields for human consumption.
func (i PlatformInfo) String() string {
	return fmt.Sprintf("Platform Info (0x%x): SMT %d, TSME %d, ECC %d, RAPL Disabled %d, Ciphertext Hiding %d",
		uint64(i), i.SMTEnabled(), i.TSMEEnabled(), i.ECCEnabled(), i.RAPLDisabled(),
		i.CiphertextHidingEnabled())
}

// String renders the signing-key info for human consumption.
func (k KeyInfo) String() string {
	signer := "unknown"
	switch k.SigningKey() {
	case SigningKeyVCEK:
		signer = "vcek"
	case SigningKeyVLEK:
		signer = "vlek"
	case SigningKeyNone:
		signer = "none"
	}
	return fmt.Sprintf("Key Info: author key %v, mask chip key %d, signing key %s",
		k.AuthorKeyEn(), k.MaskChipKey(), signer)
}

// String renders the TCB component versions.
func (t TCBVersion) String() string {
	return fmt.Sprintf("TCB Version: Microcode %d, SNP %d, TEE %d, Boot Loader %d",
		t.Microcode, t.SNP, t.TEE, t.BootLoader)
}

// String renders the full report, one field per line.
func (r *AttestationReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Attestation Report (%d bytes):\n", Size)
	fmt.Fprintf(&b, "Version:                   %d\n", r.Version)
	fmt.Fprintf(&b, "Guest SVN:                 %d\n", r.GuestSVN)
	fmt.Fprintf(&b, "%s\n", r.Policy)
	fmt.Fprintf(&b, "Family ID:                 %x\n", r.FamilyID)
	fmt.Fprintf(&b, "Image ID:                  %x\n", r.ImageID)
	fmt.Fprintf(&b, "VMPL:                      %d\n", r.VMPL)
	fmt.Fprintf(&b, "Signature Algorithm:       %d\n", r.SigAlgo)
	fmt.Fprintf(&b, "Current TCB:               %s\n", r.CurrentTCB)
	fmt.Fprintf(&b, "%s\n", r.PlatformInfo)
	fmt.Fprintf(&b, "%s\n", r.KeyInfo)
	fmt.Fprintf(&b, "Report Data:               %x\n", r.ReportData)
	fmt.Fprintf(&b, "Measurement:               %x\n", r.Measurement)
	fmt.Fprintf(&b, "Host Data:                 %x\n", r.HostData)
	fmt.Fprintf(&b, "ID Key Digest:             %x\n", r.IDKeyDigest)
	fmt.Fprintf(&b, "Author Key Digest:         %x\n", r.AuthorKeyDigest)
	fmt.Fprintf(&b, "Report ID:                 %x\n", r.ReportID)
	fmt.Fprintf(&b, "Report ID Migration Agent: %x\n", r.ReportIDMA)
	fmt.Fprintf(&b, "Reported TCB:              %s\n", r.ReportedTCB)
	fmt.Fprintf(&b, "Chip ID:                   %x\n", r.ChipID)
	fmt.Fprintf(&b, "Committed TCB:             %s\n", r.CommittedTCB)
	fmt.Fprintf(&b, "Current Version:           %d.%d.%d\n", r.CurrentMajor, r.CurrentMinor, r.CurrentBuild)
	fmt.Fprintf(&b, "Committed Version:         %d.%d.%d\n", r.CommittedMajor, r.CommittedMinor, r.CommittedBuild)
	fmt.Fprintf(&b, "Launch TCB:                %s\n", r.LaunchTCB)
	fmt.Fprintf(&b, "Signature R:               %x\n", r.Signature.R)
	fmt.Fprintf(&b, "Signature S:               %x\n", r.Signature.S)
	return b.String()
}
