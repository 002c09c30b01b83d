package descriptor

import "strings"

// RiskLevel is the ordinal risk classification of a command.
type RiskLevel uint8

const (
	RiskSafe RiskLevel = iota
	RiskLow
	RiskMedium
	RiskHigh
	RiskCritical
)

func (r RiskLevel) String() string {
	switch r {
	case RiskSafe:
		return "safe"
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	case RiskCritical:
		return "critical"
	}
	return "unknown"
}

// ParseRiskLevel maps a risk name to its level. Unknown names resolve to
// CRITICAL: a classification we cannot interpret is never treated as safe.
func ParseRiskLevel(s string) RiskLevel {
	switch strings.ToLower(s) {
	case "safe":
		return RiskSafe
	case "low":
		return RiskLow
	case "medium":
		return RiskMedium
	case "high":
		return RiskHigh
	case "critical":
		return RiskCritical
	}
	return RiskCritical
}

// Capability is a bit index into the capability region of the flags word.
// Capability bit i occupies wire bit i+riskBits of security_flags.
//
// This is the single versioned flag table. Changing the meaning or position
// of any bit requires bumping Version in the flat codec; decoders dispatch
// on version and never infer flag intent from context.
type Capability uint8

const (
	CapRequiresSudo Capability = iota
	CapRequiresRoot
	CapDestructive
	CapNetworkAccess
	CapFileModification
	CapSystemModification
	CapPrivilegeEscalation
	CapKernelModule
	CapContainerEscape
	CapCryptoOperation
	CapAuditLogging

	numCapabilities = 11
)

var capabilityNames = [numCapabilities]string{
	"requires_sudo",
	"requires_root",
	"destructive",
	"network_access",
	"file_modification",
	"system_modification",
	"privilege_escalation",
	"kernel_module",
	"container_escape",
	"crypto_operation",
	"audit_logging",
}

func (c Capability) String() string {
	if int(c) < len(capabilityNames) {
		return capabilityNames[c]
	}
	return "unknown"
}

// ParseCapability resolves a capability name from the flag table.
func ParseCapability(s string) (Capability, bool) {
	for i, name := range capabilityNames {
		if name == s {
			return Capability(i), true
		}
	}
	return 0, false
}

// CapabilitySet is an independent bitmask of capabilities. Bit i corresponds
// to Capability(i). Any subset is representable.
type CapabilitySet uint32

const (
	// riskBits is the width of the one-hot risk region at the bottom of
	// the flags word. Capability bits start above it, leaving room for
	// 27 capability positions in 32 bits.
	riskBits = 5

	riskMask = (1 << riskBits) - 1
)

// NewCapabilitySet builds a set from individual capabilities.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	var s CapabilitySet
	for _, c := range caps {
		s = s.With(c)
	}
	return s
}

func (s CapabilitySet) With(c Capability) CapabilitySet { return s | 1<<c }
func (s CapabilitySet) Has(c Capability) bool           { return s&(1<<c) != 0 }

// Contains reports whether every capability in other is also in s.
func (s CapabilitySet) Contains(other CapabilitySet) bool {
	return s&other == other
}

// Names returns the set's capability names in bit order.
func (s CapabilitySet) Names() []string {
	var names []string
	for i := Capability(0); i < numCapabilities; i++ {
		if s.Has(i) {
			names = append(names, i.String())
		}
	}
	return names
}

// EncodeFlags packs a risk level and capability set into the 32-bit
// security_flags word: one-hot risk in bits 0-4, capabilities above.
// The one-hot encoding makes "at most one risk level" structural.
func EncodeFlags(risk RiskLevel, caps CapabilitySet) uint32 {
	if risk > RiskCritical {
		risk = RiskCritical
	}
	return uint32(1)<<risk | uint32(caps)<<riskBits
}

// DecodeFlags unpacks a security_flags word. It is total: a malformed risk
// region (zero or multiple bits set) resolves to the highest-severity bit
// present, and to CRITICAL when no bit is set at all. Resolution is
// fail-closed; a corrupted risk region never decodes to something safer
// than what the bits can support.
func DecodeFlags(flags uint32) (RiskLevel, CapabilitySet) {
	caps := CapabilitySet(flags >> riskBits)

	riskRegion := flags & riskMask
	if riskRegion == 0 {
		return RiskCritical, caps
	}
	for level := RiskCritical; ; level-- {
		if riskRegion&(1<<level) != 0 {
			return level, caps
		}
		if level == RiskSafe {
			break
		}
	}
	return RiskCritical, caps
}
