package hierarchy

import (
	"errors"
	"testing"

	"github.com/triage-ai/tcp/internal/descriptor"
)

// bcachefsFamily builds the flat descriptors for 8 bcachefs subcommands,
// the common multi-tool case.
func bcachefsFamily(t *testing.T) []Member {
	t.Helper()

	base := descriptor.NewCapabilitySet(descriptor.CapRequiresRoot, descriptor.CapFileModification)
	specs := []struct {
		sub  string
		risk descriptor.RiskLevel
		caps descriptor.CapabilitySet
		perf descriptor.PerformanceHints
	}{
		{"format", descriptor.RiskCritical, base.With(descriptor.CapDestructive).With(descriptor.CapSystemModification), descriptor.PerformanceHints{ExecTimeMs: 30000, MemoryMB: 500, OutputKB: 10}},
		{"fsck", descriptor.RiskHigh, base.With(descriptor.CapSystemModification), descriptor.PerformanceHints{ExecTimeMs: 60000, MemoryMB: 1000, OutputKB: 100}},
		{"migrate", descriptor.RiskCritical, base.With(descriptor.CapDestructive), descriptor.PerformanceHints{ExecTimeMs: 60000, MemoryMB: 2000, OutputKB: 50}},
		{"device add", descriptor.RiskHigh, base.With(descriptor.CapSystemModification), descriptor.PerformanceHints{ExecTimeMs: 5000, MemoryMB: 200, OutputKB: 5}},
		{"device remove", descriptor.RiskHigh, base.With(descriptor.CapDestructive), descriptor.PerformanceHints{ExecTimeMs: 10000, MemoryMB: 200, OutputKB: 5}},
		{"subvolume create", descriptor.RiskMedium, base, descriptor.PerformanceHints{ExecTimeMs: 1000, MemoryMB: 100, OutputKB: 2}},
		{"show-super", descriptor.RiskLow, base, descriptor.PerformanceHints{ExecTimeMs: 200, MemoryMB: 50, OutputKB: 20}},
		{"list", descriptor.RiskLow, base, descriptor.PerformanceHints{ExecTimeMs: 100, MemoryMB: 20, OutputKB: 50}},
	}

	members := make([]Member, 0, len(specs))
	for _, s := range specs {
		buf := descriptor.Encode("bcachefs "+s.sub, s.risk, s.caps, s.perf)
		flat, err := descriptor.Decode(buf[:])
		if err != nil {
			t.Fatal(err)
		}
		members = append(members, Member{Subcommand: s.sub, Flat: flat})
	}
	return members
}

func TestEncodeFamily_CompressionRatio(t *testing.T) {
	members := bcachefsFamily(t)
	enc, err := EncodeFamily("bcachefs", members)
	if err != nil {
		t.Fatal(err)
	}
	if len(enc.Standalone) != 0 {
		t.Fatalf("unexpected standalone members: %v", enc.Standalone)
	}

	flatSize := len(members) * descriptor.FlatSize
	if flatSize != 192 {
		t.Fatalf("flat size %d, want 192", flatSize)
	}
	if got := enc.CompressedSize(); got != 64 {
		t.Fatalf("compressed size %d, want 16 + 8*6 = 64", got)
	}
	if ratio := float64(flatSize) / float64(enc.CompressedSize()); ratio != 3.0 {
		t.Fatalf("compression ratio %.2f, want 3.0", ratio)
	}
}

func TestEncodeFamily_ParentFields(t *testing.T) {
	members := bcachefsFamily(t)
	enc, err := EncodeFamily("bcachefs", members)
	if err != nil {
		t.Fatal(err)
	}

	parent, err := DecodeParent(enc.Parent[:])
	if err != nil {
		t.Fatal(err)
	}
	if parent.SubcommandCount != 8 {
		t.Fatalf("subcommand count %d, want 8", parent.SubcommandCount)
	}
	if parent.RiskFloor != descriptor.RiskLow {
		t.Fatalf("risk floor %v, want %v", parent.RiskFloor, descriptor.RiskLow)
	}
	// Every member requires root and touches files; nothing else is
	// universal.
	wantCommon := descriptor.NewCapabilitySet(descriptor.CapRequiresRoot, descriptor.CapFileModification)
	if parent.CommonFlags != wantCommon {
		t.Fatalf("common flags %v, want %v", parent.CommonFlags.Names(), wantCommon.Names())
	}
	if parent.FamilyProps&FamilyHasDestructive == 0 {
		t.Fatal("expected FamilyHasDestructive")
	}
	if parent.FamilyProps&FamilyLarge != 0 {
		t.Fatal("8 members must not set FamilyLarge")
	}
}

func TestDecodeMember_Lossless(t *testing.T) {
	members := bcachefsFamily(t)
	enc, err := EncodeFamily("bcachefs", members)
	if err != nil {
		t.Fatal(err)
	}
	parent, err := DecodeParent(enc.Parent[:])
	if err != nil {
		t.Fatal(err)
	}

	for _, m := range members {
		deltaBytes, ok := enc.Deltas[m.Subcommand]
		if !ok {
			t.Fatalf("missing delta for %q", m.Subcommand)
		}
		delta, err := DecodeDelta(deltaBytes[:])
		if err != nil {
			t.Fatal(err)
		}
		flat, err := DecodeMember(parent, delta, m.Subcommand)
		if err != nil {
			t.Fatalf("%q: %v", m.Subcommand, err)
		}
		// Risk and capabilities are lossless.
		if flat.Risk != m.Flat.Risk {
			t.Fatalf("%q: risk %v, want %v", m.Subcommand, flat.Risk, m.Flat.Risk)
		}
		if flat.Capabilities != m.Flat.Capabilities {
			t.Fatalf("%q: caps %v, want %v", m.Subcommand, flat.Capabilities.Names(), m.Flat.Capabilities.Names())
		}
		// Performance is lossy but order-of-magnitude preserved: the
		// bucket floor never exceeds the original estimate.
		if flat.Performance.ExecTimeMs > m.Flat.Performance.ExecTimeMs {
			t.Fatalf("%q: reconstructed time %d exceeds original %d", m.Subcommand, flat.Performance.ExecTimeMs, m.Flat.Performance.ExecTimeMs)
		}
	}
}

func TestDecodeMember_RiskSumOutOfRange(t *testing.T) {
	parent := &Parent{RiskFloor: descriptor.RiskHigh}
	delta := &Delta{RiskDelta: 3, SubcommandHash: 0}
	_, err := DecodeMember(parent, delta, "x")
	var famErr *descriptor.FamilyConsistencyError
	if !errors.As(err, &famErr) {
		t.Fatalf("got %v, want FamilyConsistencyError", err)
	}
}

func TestDecodeMember_OverlappingFlags(t *testing.T) {
	common := descriptor.NewCapabilitySet(descriptor.CapRequiresRoot)
	parent := &Parent{RiskFloor: descriptor.RiskSafe, CommonFlags: common}
	delta := &Delta{SpecificFlags: common}
	_, err := DecodeMember(parent, delta, "x")
	var famErr *descriptor.FamilyConsistencyError
	if !errors.As(err, &famErr) {
		t.Fatalf("got %v, want FamilyConsistencyError", err)
	}
}

func TestDecodeParent_Corrupt(t *testing.T) {
	members := bcachefsFamily(t)
	enc, err := EncodeFamily("bcachefs", members)
	if err != nil {
		t.Fatal(err)
	}
	buf := enc.Parent
	buf[9] ^= 0x01
	_, err = DecodeParent(buf[:])
	var corrupt *descriptor.CorruptDescriptor
	if !errors.As(err, &corrupt) {
		t.Fatalf("got %v, want CorruptDescriptor", err)
	}
}

func TestEncodeFamily_Empty(t *testing.T) {
	_, err := EncodeFamily("tool", nil)
	var famErr *descriptor.FamilyConsistencyError
	if !errors.As(err, &famErr) {
		t.Fatalf("got %v, want FamilyConsistencyError", err)
	}
}

func TestEncodeFamily_SingleMember(t *testing.T) {
	buf := descriptor.Encode("git status", descriptor.RiskSafe, 0, descriptor.PerformanceHints{ExecTimeMs: 50})
	flat, err := descriptor.Decode(buf[:])
	if err != nil {
		t.Fatal(err)
	}
	enc, err := EncodeFamily("git", []Member{{Subcommand: "status", Flat: flat}})
	if err != nil {
		t.Fatal(err)
	}
	parent, err := DecodeParent(enc.Parent[:])
	if err != nil {
		t.Fatal(err)
	}
	if parent.SubcommandCount != 1 || parent.RiskFloor != descriptor.RiskSafe {
		t.Fatalf("unexpected parent: %+v", parent)
	}
	if parent.FamilyProps&FamilyHasSafe == 0 {
		t.Fatal("expected FamilyHasSafe")
	}
}

func TestLogBuckets_Monotone(t *testing.T) {
	prev := uint16(0)
	for _, ms := range []uint16{0, 50, 100, 250, 1000, 5000, 30000, 65535} {
		packed := packTimeMemory(ms, 0)
		got, _ := unpackTimeMemory(packed)
		if got < prev {
			t.Fatalf("bucket floor went backwards at %d ms: %d < %d", ms, got, prev)
		}
		if got > ms && ms >= execTimeUnit {
			t.Fatalf("bucket floor %d exceeds input %d", got, ms)
		}
		prev = got
	}
}
