package registry

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/triage-ai/tcp/internal/descriptor"
)

func populate(t *testing.T, reg *Registry) {
	t.Helper()
	seeds := []struct {
		cmd  string
		risk descriptor.RiskLevel
	}{
		{"rm -rf /", descriptor.RiskCritical},
		{"apt install", descriptor.RiskMedium},
		{"ls", descriptor.RiskSafe},
		{"dd", descriptor.RiskCritical},
		{"curl", descriptor.RiskMedium},
	}
	for _, s := range seeds {
		desc := encodeCmd(t, s.cmd, s.risk, 0)
		if _, err := reg.Ingest(context.Background(), s.cmd, desc, "proven_research", 0.9); err != nil {
			t.Fatal(err)
		}
	}
}

func TestExport_Deterministic(t *testing.T) {
	reg := newTestRegistry()
	populate(t, reg)

	first, err := reg.Export(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	second, err := reg.Export(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(first, second) {
		t.Fatal("identical entry set must export byte-identically")
	}
}

func TestExport_SortedByCommand(t *testing.T) {
	reg := newTestRegistry()
	populate(t, reg)

	data, err := reg.Export(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	entries, err := decodeEntries(data)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 5 {
		t.Fatalf("entries %d, want 5", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i-1].Command >= entries[i].Command {
			t.Fatalf("entries out of order: %q before %q", entries[i-1].Command, entries[i].Command)
		}
	}
}

func TestExport_IngestionOrderIrrelevant(t *testing.T) {
	a := New(Config{Store: NewMemoryStore(), Logger: zap.NewNop()})
	b := New(Config{Store: NewMemoryStore(), Logger: zap.NewNop()})

	descLs := encodeCmd(t, "ls", descriptor.RiskSafe, 0)
	descRm := encodeCmd(t, "rm", descriptor.RiskCritical, 0)

	// Same entries, opposite ingestion order. The timestamps must match
	// for byte-identical output, so pin them after ingest.
	ctx := context.Background()
	if _, err := a.Ingest(ctx, "ls", descLs, "proven_research", 0.9); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Ingest(ctx, "rm", descRm, "proven_research", 0.9); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Ingest(ctx, "rm", descRm, "proven_research", 0.9); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Ingest(ctx, "ls", descLs, "proven_research", 0.9); err != nil {
		t.Fatal(err)
	}

	aEntries, err := a.store.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	bEntries, err := b.store.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for i := range aEntries {
		bEntries[i].CreatedAt = aEntries[i].CreatedAt
		bEntries[i].UpdatedAt = aEntries[i].UpdatedAt
		bEntries[i].Provenance = aEntries[i].Provenance
	}

	aBytes, err := encodeEntries(aEntries)
	if err != nil {
		t.Fatal(err)
	}
	bBytes, err := encodeEntries(bEntries)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(aBytes, bBytes) {
		t.Fatal("export must not depend on ingestion order")
	}
}

func TestSnapshot_RoundTrip(t *testing.T) {
	reg := newTestRegistry()
	populate(t, reg)
	path := filepath.Join(t.TempDir(), "registry.tcp.zst")

	if err := reg.SaveSnapshot(context.Background(), path); err != nil {
		t.Fatal(err)
	}

	restored := newTestRegistry()
	n, err := restored.LoadSnapshot(context.Background(), path)
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 {
		t.Fatalf("restored %d entries, want 5", n)
	}

	entry, err := restored.Query(context.Background(), "rm -rf /")
	if err != nil {
		t.Fatal(err)
	}
	if entry == nil {
		t.Fatal("expected entry after restore")
	}
	flat, err := descriptor.Decode(entry.Descriptor)
	if err != nil {
		t.Fatal(err)
	}
	if flat.Risk != descriptor.RiskCritical {
		t.Fatalf("risk %v, want critical", flat.Risk)
	}

	// A snapshot of the restored registry is byte-identical to a fresh
	// export of the original.
	origExport, err := reg.Export(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	restoredExport, err := restored.Export(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(origExport, restoredExport) {
		t.Fatal("restore must preserve export bytes")
	}
}

func TestLoadSnapshot_MissingFile(t *testing.T) {
	reg := newTestRegistry()
	n, err := reg.LoadSnapshot(context.Background(), filepath.Join(t.TempDir(), "absent.zst"))
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("restored %d entries from a missing file", n)
	}
}
