package registry

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/triage-ai/tcp/internal/descriptor"
)

func newRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client)
}

func TestRedisStore_PutGet(t *testing.T) {
	store := newRedisStore(t)
	now := time.Now().UTC().Truncate(time.Second)
	entry := &Entry{
		Command:         "rm -rf /",
		Descriptor:      encodeCmd(t, "rm -rf /", descriptor.RiskCritical, descriptor.NewCapabilitySet(descriptor.CapDestructive)),
		Family:          "rm",
		Source:          "proven_research",
		Confidence:      0.99,
		ValidationCount: 1,
		Provenance:      []Provenance{{SourceID: "proven_research", Confidence: 0.99, Timestamp: now}},
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	key := Key(entry.Command)
	if err := store.Put(context.Background(), key, entry); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get(context.Background(), key)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("expected entry")
	}
	if got.Command != entry.Command || got.Source != entry.Source || got.Confidence != entry.Confidence {
		t.Fatalf("round-trip mismatch: %+v", got)
	}
	flat, err := descriptor.Decode(got.Descriptor)
	if err != nil {
		t.Fatal(err)
	}
	if flat.Risk != descriptor.RiskCritical {
		t.Fatalf("risk %v, want critical", flat.Risk)
	}
}

func TestRedisStore_GetMissing(t *testing.T) {
	store := newRedisStore(t)
	got, err := store.Get(context.Background(), Key("never seen"))
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatal("expected nil for missing key")
	}
}

func TestRedisStore_ListSorted(t *testing.T) {
	store := newRedisStore(t)
	now := time.Now().UTC().Truncate(time.Second)
	for _, cmd := range []string{"zfs destroy", "apt install", "mkfs", "curl"} {
		entry := &Entry{
			Command:         cmd,
			Descriptor:      encodeCmd(t, cmd, descriptor.RiskMedium, 0),
			Source:          "pattern_generation",
			Confidence:      0.85,
			ValidationCount: 1,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := store.Put(context.Background(), Key(cmd), entry); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := store.List(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 4 {
		t.Fatalf("entries %d, want 4", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i-1].Command >= entries[i].Command {
			t.Fatalf("list out of order: %q before %q", entries[i-1].Command, entries[i].Command)
		}
	}

	n, err := store.Count(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Fatalf("count %d, want 4", n)
	}
}

func TestRedisStore_UpsertReplaces(t *testing.T) {
	store := newRedisStore(t)
	now := time.Now().UTC().Truncate(time.Second)
	entry := &Entry{
		Command:    "mount",
		Descriptor: encodeCmd(t, "mount", descriptor.RiskHigh, 0),
		Source:     "pattern_generation",
		Confidence: 0.85,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	key := Key("mount")
	if err := store.Put(context.Background(), key, entry); err != nil {
		t.Fatal(err)
	}
	entry.Source = "expert_validation"
	entry.Confidence = 0.95
	if err := store.Put(context.Background(), key, entry); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get(context.Background(), key)
	if err != nil {
		t.Fatal(err)
	}
	if got.Source != "expert_validation" || got.Confidence != 0.95 {
		t.Fatalf("upsert did not replace: %+v", got)
	}
	n, err := store.Count(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("count %d after upsert, want 1", n)
	}
}

func TestRegistry_OverRedis(t *testing.T) {
	store := newRedisStore(t)
	reg := New(Config{Store: store, Logger: zap.NewNop()})

	desc := encodeCmd(t, "zpool destroy", descriptor.RiskCritical, descriptor.NewCapabilitySet(descriptor.CapDestructive))
	if _, err := reg.Ingest(context.Background(), "zpool destroy", desc, "proven_research", 0.8); err != nil {
		t.Fatal(err)
	}
	res, err := reg.Ingest(context.Background(), "zpool destroy", desc, "proven_research", 0.9)
	if err != nil {
		t.Fatal(err)
	}
	if res.Outcome != OutcomeMerged {
		t.Fatalf("outcome %v, want merged", res.Outcome)
	}

	entry, err := reg.Query(context.Background(), "zpool destroy")
	if err != nil {
		t.Fatal(err)
	}
	if entry == nil || entry.ValidationCount != 2 {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}
