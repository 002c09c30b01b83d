// Package hierarchy implements the second-order descriptor encoding: one
// 16-byte parent record for a tool plus a 6-byte delta per subcommand,
// exploiting the structure shared across a tool family. Risk level and
// capability flags survive the round trip bit-for-bit; performance hints
// are quantized to log2 buckets and do not round-trip exactly.
package hierarchy

import (
	"bytes"
	"encoding/binary"
	"math/bits"

	"github.com/triage-ai/tcp/internal/descriptor"
)

const (
	// ParentSize is the fixed wire size of a parent descriptor.
	ParentSize = 16
	// DeltaSize is the wire size of one member delta.
	DeltaSize = 6

	parentChecksumOffset = 14

	// Log bucket units, from the flat descriptor's millisecond/megabyte
	// fields: bucket n covers unit*2^n.
	execTimeUnit = 100 // ms
	memoryUnit   = 10  // MB
)

var parentMagic = [4]byte{'T', 'C', 'P', 0x03}

// Family property bits carried in the parent's family_props field.
const (
	FamilyLarge          uint16 = 1 << 0 // more than 10 subcommands
	FamilyHasDestructive uint16 = 1 << 1 // at least one destructive member
	FamilyHasSafe        uint16 = 1 << 2 // at least one SAFE member
)

// Parent is a decoded 16-byte parent descriptor: the properties every
// member of a tool family has in common.
type Parent struct {
	ToolHash        [4]byte
	CommonFlags     descriptor.CapabilitySet // low 16 capability bits only
	SubcommandCount uint8
	RiskFloor       descriptor.RiskLevel
	FamilyProps     uint16
}

// Delta is a decoded member delta: what one subcommand adds on top of its
// parent.
type Delta struct {
	SubcommandHash uint8 // fingerprint hint, never an identity
	RiskDelta      uint8
	SpecificFlags  descriptor.CapabilitySet
	TimeMemoryLog  uint8
	CmdLen         uint8
}

// Member pairs a subcommand name with its flat descriptor for family
// encoding.
type Member struct {
	Subcommand string
	Flat       *descriptor.Flat
}

// Encoded is the result of compressing one tool family.
type Encoded struct {
	Tool   string
	Parent [ParentSize]byte
	Deltas map[string][DeltaSize]byte

	// Standalone holds members that could not be consistently expressed
	// as deltas; they must be kept as flat descriptors.
	Standalone []string
}

// CompressedSize returns the total wire size of the hierarchical encoding,
// excluding standalone members.
func (e *Encoded) CompressedSize() int {
	return ParentSize + len(e.Deltas)*DeltaSize
}

// EncodeFamily compresses the flat descriptors of one tool's subcommands.
//
// common_flags is the bitwise AND of every member's capability set — only
// the capabilities that hold for all members — and risk_floor is the
// minimum risk level across members. Each delta then carries the member's
// distance from that floor. Members whose capability set cannot be
// expressed in the 16-bit delta field are listed as standalone rather than
// forced into an inconsistent delta.
func EncodeFamily(tool string, members []Member) (*Encoded, error) {
	if len(members) == 0 {
		return nil, &descriptor.FamilyConsistencyError{Reason: "empty family"}
	}

	common := members[0].Flat.Capabilities
	floor := members[0].Flat.Risk
	var props uint16
	for _, m := range members[1:] {
		common &= m.Flat.Capabilities
		if m.Flat.Risk < floor {
			floor = m.Flat.Risk
		}
	}
	// Capabilities above bit 15 cannot ride in the 16-bit common_flags
	// field; drop them from the shared set so they fall through to the
	// (equally 16-bit) specific flags, where oversized members are caught
	// below and encoded standalone.
	common &= 0xFFFF

	enc := &Encoded{
		Tool:   tool,
		Deltas: make(map[string][DeltaSize]byte, len(members)),
	}

	count := 0
	for _, m := range members {
		if m.Flat.Risk == descriptor.RiskSafe {
			props |= FamilyHasSafe
		}
		if m.Flat.Capabilities.Has(descriptor.CapDestructive) {
			props |= FamilyHasDestructive
		}

		// Structurally guaranteed by the AND above, but verified anyway:
		// a member that does not carry every common capability, or whose
		// specific flags overflow 16 bits, is excluded from the family.
		specific := m.Flat.Capabilities &^ common
		if !m.Flat.Capabilities.Contains(common) || uint32(specific) > 0xFFFF {
			enc.Standalone = append(enc.Standalone, m.Subcommand)
			continue
		}
		riskDelta := uint8(m.Flat.Risk - floor)

		cmdLen := len(m.Subcommand)
		if cmdLen > 0xFF {
			cmdLen = 0xFF
		}

		var d [DeltaSize]byte
		d[0] = subcommandHash(m.Subcommand)
		d[1] = riskDelta
		binary.BigEndian.PutUint16(d[2:4], uint16(specific))
		d[4] = packTimeMemory(m.Flat.Performance.ExecTimeMs, m.Flat.Performance.MemoryMB)
		d[5] = uint8(cmdLen)
		enc.Deltas[m.Subcommand] = d
		count++
	}

	if count > 10 {
		props |= FamilyLarge
	}
	saturatedCount := count
	if saturatedCount > 0xFF {
		saturatedCount = 0xFF
	}

	var p [ParentSize]byte
	copy(p[0:4], parentMagic[:])
	fp := descriptor.Fingerprint(tool)
	copy(p[4:8], fp[:])
	binary.BigEndian.PutUint16(p[8:10], uint16(common))
	p[10] = uint8(saturatedCount)
	p[11] = uint8(floor)
	binary.BigEndian.PutUint16(p[12:14], props)
	binary.BigEndian.PutUint16(p[14:16], descriptor.CRC16(p[:parentChecksumOffset]))
	enc.Parent = p

	return enc, nil
}

// DecodeParent parses and validates a 16-byte parent descriptor. As with
// the flat codec, the checksum gates every other field.
func DecodeParent(data []byte) (*Parent, error) {
	if len(data) != ParentSize {
		return nil, &descriptor.LengthError{Want: ParentSize, Got: len(data)}
	}
	if !bytes.Equal(data[0:4], parentMagic[:]) {
		var m [4]byte
		copy(m[:], data[0:4])
		return nil, &descriptor.FormatError{Magic: m}
	}
	want := descriptor.CRC16(data[:parentChecksumOffset])
	got := binary.BigEndian.Uint16(data[14:16])
	if want != got {
		return nil, &descriptor.CorruptDescriptor{Want: want, Got: got}
	}

	p := &Parent{
		CommonFlags:     descriptor.CapabilitySet(binary.BigEndian.Uint16(data[8:10])),
		SubcommandCount: data[10],
		RiskFloor:       descriptor.RiskLevel(data[11]),
		FamilyProps:     binary.BigEndian.Uint16(data[12:14]),
	}
	copy(p.ToolHash[:], data[4:8])
	if p.RiskFloor > descriptor.RiskCritical {
		return nil, &descriptor.FamilyConsistencyError{Reason: "risk floor out of range"}
	}
	return p, nil
}

// DecodeDelta parses a 6-byte member delta.
func DecodeDelta(data []byte) (*Delta, error) {
	if len(data) != DeltaSize {
		return nil, &descriptor.LengthError{Want: DeltaSize, Got: len(data)}
	}
	return &Delta{
		SubcommandHash: data[0],
		RiskDelta:      data[1],
		SpecificFlags:  descriptor.CapabilitySet(binary.BigEndian.Uint16(data[2:4])),
		TimeMemoryLog:  data[4],
		CmdLen:         data[5],
	}, nil
}

// DecodeMember reconstructs a member's flat descriptor from its parent and
// delta. Risk level and capability set are exact; performance hints come
// back log-bucketed.
func DecodeMember(parent *Parent, delta *Delta, subcommand string) (*descriptor.Flat, error) {
	risk := descriptor.RiskLevel(uint8(parent.RiskFloor) + delta.RiskDelta)
	if risk > descriptor.RiskCritical {
		return nil, &descriptor.FamilyConsistencyError{Reason: "risk floor plus delta exceeds CRITICAL"}
	}
	if delta.SpecificFlags&parent.CommonFlags != 0 {
		return nil, &descriptor.FamilyConsistencyError{Reason: "specific flags overlap common flags"}
	}
	if delta.SubcommandHash != subcommandHash(subcommand) {
		return nil, &descriptor.FamilyConsistencyError{Reason: "subcommand hash hint mismatch"}
	}

	execTime, memory := unpackTimeMemory(delta.TimeMemoryLog)
	return &descriptor.Flat{
		CommandHash:  descriptor.Fingerprint(subcommand),
		Risk:         risk,
		Capabilities: parent.CommonFlags | delta.SpecificFlags,
		Performance: descriptor.PerformanceHints{
			ExecTimeMs: execTime,
			MemoryMB:   memory,
		},
	}, nil
}

func subcommandHash(name string) uint8 {
	fp := descriptor.Fingerprint(name)
	return fp[0]
}

// packTimeMemory quantizes execution time and memory into two 4-bit log2
// buckets: high nibble time, low nibble memory. Bucket n spans unit*2^n,
// clamped to bucket 15. Deliberately lossy.
func packTimeMemory(execTimeMs, memoryMB uint16) uint8 {
	return logBucket(execTimeMs, execTimeUnit)<<4 | logBucket(memoryMB, memoryUnit)
}

func unpackTimeMemory(packed uint8) (execTimeMs, memoryMB uint16) {
	return unbucket(packed>>4, execTimeUnit), unbucket(packed&0x0F, memoryUnit)
}

func logBucket(v uint16, unit uint16) uint8 {
	scaled := uint(v / unit)
	if scaled < 1 {
		return 0
	}
	b := uint8(bits.Len(scaled) - 1)
	if b > 15 {
		return 15
	}
	return b
}

func unbucket(b uint8, unit uint16) uint16 {
	return descriptor.SaturateU16(uint64(unit) << b)
}
