package registry

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/triage-ai/tcp/internal/descriptor"
)

// countingStore wraps a MemoryStore and counts Get calls.
type countingStore struct {
	*MemoryStore
	gets int
}

func (s *countingStore) Get(ctx context.Context, key string) (*Entry, error) {
	s.gets++
	return s.MemoryStore.Get(ctx, key)
}

func TestQuery_CacheHit(t *testing.T) {
	store := &countingStore{MemoryStore: NewMemoryStore()}
	reg := New(Config{Store: store, Logger: zap.NewNop(), CacheTTL: 30 * time.Second})

	desc := encodeCmd(t, "ssh", descriptor.RiskMedium, descriptor.NewCapabilitySet(descriptor.CapNetworkAccess))
	if _, err := reg.Ingest(context.Background(), "ssh", desc, "proven_research", 0.9); err != nil {
		t.Fatal(err)
	}
	getsAfterIngest := store.gets

	// First query — cache miss, hits the store.
	if _, err := reg.Query(context.Background(), "ssh"); err != nil {
		t.Fatal(err)
	}
	if store.gets != getsAfterIngest+1 {
		t.Fatalf("expected one store read, got %d", store.gets-getsAfterIngest)
	}

	// Second query — cache hit, no store read.
	entry, err := reg.Query(context.Background(), "ssh")
	if err != nil {
		t.Fatal(err)
	}
	if entry == nil || entry.Command != "ssh" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if store.gets != getsAfterIngest+1 {
		t.Fatalf("expected cache hit, store reads went to %d", store.gets-getsAfterIngest)
	}
}

func TestQuery_NegativeCache(t *testing.T) {
	store := &countingStore{MemoryStore: NewMemoryStore()}
	reg := New(Config{Store: store, Logger: zap.NewNop(), CacheTTL: 30 * time.Second})

	if _, err := reg.Query(context.Background(), "unknown"); err != nil {
		t.Fatal(err)
	}
	first := store.gets

	entry, err := reg.Query(context.Background(), "unknown")
	if err != nil {
		t.Fatal(err)
	}
	if entry != nil {
		t.Fatal("expected nil from negative cache")
	}
	if store.gets != first {
		t.Fatal("negative result should be served from cache")
	}
}

func TestIngest_InvalidatesCache(t *testing.T) {
	store := &countingStore{MemoryStore: NewMemoryStore()}
	reg := New(Config{Store: store, Logger: zap.NewNop(), CacheTTL: 30 * time.Second})

	// Prime the negative cache, then ingest.
	if _, err := reg.Query(context.Background(), "wget"); err != nil {
		t.Fatal(err)
	}
	desc := encodeCmd(t, "wget", descriptor.RiskMedium, descriptor.NewCapabilitySet(descriptor.CapNetworkAccess))
	if _, err := reg.Ingest(context.Background(), "wget", desc, "proven_research", 0.9); err != nil {
		t.Fatal(err)
	}

	entry, err := reg.Query(context.Background(), "wget")
	if err != nil {
		t.Fatal(err)
	}
	if entry == nil {
		t.Fatal("ingest must invalidate the stale negative cache entry")
	}
}

func TestEntryCache_StaleRefreshCAS(t *testing.T) {
	c := newEntryCache(time.Millisecond)
	c.set("k", &Entry{Command: "x"})
	time.Sleep(5 * time.Millisecond)

	first := c.get("k")
	if !first.hit || !first.needsRefresh {
		t.Fatalf("expected stale hit with refresh signal, got %+v", first)
	}
	// Only one caller wins the refresh CAS.
	second := c.get("k")
	if !second.hit || second.needsRefresh {
		t.Fatalf("expected stale hit without refresh signal, got %+v", second)
	}
}
