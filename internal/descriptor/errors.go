package descriptor

import "fmt"

// LengthError reports input that is not the exact wire size for its format.
type LengthError struct {
	Want int
	Got  int
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("descriptor length %d, want %d", e.Got, e.Want)
}

// FormatError reports input whose magic bytes do not identify any known
// descriptor format. The input is not a descriptor at all.
type FormatError struct {
	Magic [4]byte
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("unrecognized descriptor magic %q", e.Magic[:])
}

// VersionError reports a well-formed descriptor of a version this decoder
// does not speak. There is no best-effort parsing of foreign versions.
type VersionError struct {
	Version uint16
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("unsupported descriptor version %d", e.Version)
}

// CorruptDescriptor reports a checksum mismatch. The record is structurally
// well-formed but bit-corrupted; no field in it can be trusted.
type CorruptDescriptor struct {
	Want uint16
	Got  uint16
}

func (e *CorruptDescriptor) Error() string {
	return fmt.Sprintf("descriptor checksum mismatch: stored 0x%04x, computed 0x%04x", e.Got, e.Want)
}

// FamilyConsistencyError reports a delta that cannot be reconciled with its
// claimed parent (risk sum out of range, flag overlap, name mismatch).
type FamilyConsistencyError struct {
	Reason string
}

func (e *FamilyConsistencyError) Error() string {
	return "family consistency: " + e.Reason
}
