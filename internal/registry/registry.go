// Package registry stores validated command descriptors keyed by the
// SHA-256 of the command string, merges classifications from multiple
// sources under an explicit trust order, and exports deterministically.
package registry

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/triage-ai/tcp/internal/descriptor"
)

// Outcome describes what an ingest did to the registry.
type Outcome string

const (
	OutcomeStored      Outcome = "stored"      // new entry created
	OutcomeMerged      Outcome = "merged"      // equal tier, noisy-OR confidence
	OutcomeOverwritten Outcome = "overwritten" // higher tier replaced the descriptor
	OutcomeRecorded    Outcome = "recorded"    // lower tier, provenance only
	OutcomeConflict    Outcome = "conflict"    // equal tier, risk/capability disagreement
	OutcomeRejected    Outcome = "rejected"    // descriptor failed validation
)

// IngestResult reports the outcome of one ingest attempt.
type IngestResult struct {
	Outcome Outcome
	Key     string
	Entry   *Entry // nil when rejected
}

// Registry is the explicit store handle for all descriptor operations.
// There is no package-level singleton: callers create one at process start
// and pass it around.
type Registry struct {
	store  Store
	cache  *entryCache // nil when caching is disabled
	logger *zap.Logger

	locks keyedLocks

	mu        sync.Mutex
	conflicts uint64
	rejected  uint64
}

// Config configures a Registry.
type Config struct {
	Store  Store
	Logger *zap.Logger

	// CacheTTL enables a read cache for Query against remote stores.
	// Zero disables caching; the in-memory store does not need one.
	CacheTTL time.Duration
}

// New creates a Registry over the given store.
func New(cfg Config) *Registry {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		store:  cfg.Store,
		logger: logger,
	}
	if cfg.CacheTTL > 0 {
		r.cache = newEntryCache(cfg.CacheTTL)
	}
	return r
}

// Ingest validates a descriptor and upserts it under the command's
// canonical key.
//
// Merge rule when an entry already exists:
//   - higher-trust source: overwrite the descriptor outright; confidence
//     resets to the incoming value.
//   - equal trust: noisy-OR confidence (1 - (1-old)*(1-new), never
//     decreases); the stored descriptor is kept, and a risk/capability
//     disagreement is logged as a conflict rather than averaged away.
//   - lower trust: provenance is recorded, nothing else changes.
//
// A descriptor that fails validation is rejected in full — logged, never
// partially stored — and the rejection affects no other entry. Ingests for
// the same key are serialized; the merge rule is order-sensitive and
// non-commutative under trust overwrite. Distinct keys proceed in
// parallel, up to stripe collisions in the lock table.
func (r *Registry) Ingest(ctx context.Context, command string, desc []byte, sourceID string, confidence float64) (*IngestResult, error) {
	key := Key(command)

	incoming, err := descriptor.Decode(desc)
	if err != nil {
		r.mu.Lock()
		r.rejected++
		r.mu.Unlock()
		r.logger.Warn("descriptor rejected at ingest",
			zap.String("command", command),
			zap.String("source", sourceID),
			zap.Error(err),
		)
		return &IngestResult{Outcome: OutcomeRejected, Key: key}, fmt.Errorf("Ingest: %w", err)
	}
	if confidence < 0 || confidence > 1 {
		r.mu.Lock()
		r.rejected++
		r.mu.Unlock()
		return &IngestResult{Outcome: OutcomeRejected, Key: key}, fmt.Errorf("Ingest: confidence %v outside [0,1]", confidence)
	}

	unlock := r.locks.lock(key)
	defer unlock()

	now := time.Now().UTC()
	prov := Provenance{SourceID: sourceID, Confidence: confidence, Timestamp: now}

	existing, err := r.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("Ingest: %w", err)
	}

	if existing == nil {
		entry := &Entry{
			Command:         command,
			Descriptor:      append([]byte(nil), desc...),
			Family:          familyOf(command),
			Source:          sourceID,
			Confidence:      confidence,
			ValidationCount: 1,
			Provenance:      []Provenance{prov},
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := r.store.Put(ctx, key, entry); err != nil {
			return nil, fmt.Errorf("Ingest: %w", err)
		}
		if r.cache != nil {
			r.cache.invalidate(key)
		}
		return &IngestResult{Outcome: OutcomeStored, Key: key, Entry: entry}, nil
	}

	outcome := r.merge(existing, desc, incoming, sourceID, confidence)
	existing.Provenance = append(existing.Provenance, prov)
	existing.ValidationCount++
	existing.UpdatedAt = now

	if err := r.store.Put(ctx, key, existing); err != nil {
		return nil, fmt.Errorf("Ingest: %w", err)
	}
	if r.cache != nil {
		r.cache.invalidate(key)
	}
	return &IngestResult{Outcome: outcome, Key: key, Entry: existing}, nil
}

// familyOf derives the tool family for a multi-word command: "apt install"
// belongs to family "apt". Single-word commands have no family.
func familyOf(command string) string {
	if tool, _, ok := strings.Cut(command, " "); ok {
		return tool
	}
	return ""
}

// merge applies the trust-ordered merge rule to an existing entry, mutating
// it in place, and returns the outcome. The caller holds the key lock.
func (r *Registry) merge(existing *Entry, desc []byte, incoming *descriptor.Flat, sourceID string, confidence float64) Outcome {
	storedTier := TierForSource(existing.Source)
	incomingTier := TierForSource(sourceID)

	switch {
	case incomingTier > storedTier:
		existing.Descriptor = append([]byte(nil), desc...)
		existing.Source = sourceID
		existing.Confidence = confidence
		return OutcomeOverwritten

	case incomingTier < storedTier:
		return OutcomeRecorded

	default:
		// Noisy-OR: agreement between independent equal-trust sources
		// only ever raises confidence.
		existing.Confidence = 1 - (1-existing.Confidence)*(1-confidence)

		stored, err := descriptor.Decode(existing.Descriptor)
		if err != nil {
			// The store handed back something the codec rejects; keep
			// the incoming validated descriptor instead.
			r.logger.Error("stored descriptor failed validation during merge",
				zap.String("command", existing.Command),
				zap.Error(err),
			)
			existing.Descriptor = append([]byte(nil), desc...)
			existing.Source = sourceID
			return OutcomeMerged
		}
		if stored.Risk != incoming.Risk || stored.Capabilities != incoming.Capabilities {
			r.mu.Lock()
			r.conflicts++
			r.mu.Unlock()
			r.logger.Warn("equal-trust classification conflict, keeping stored descriptor",
				zap.String("command", existing.Command),
				zap.String("stored_source", existing.Source),
				zap.String("incoming_source", sourceID),
				zap.String("stored_risk", stored.Risk.String()),
				zap.String("incoming_risk", incoming.Risk.String()),
				zap.Strings("stored_caps", stored.Capabilities.Names()),
				zap.Strings("incoming_caps", incoming.Capabilities.Names()),
			)
			return OutcomeConflict
		}
		return OutcomeMerged
	}
}

// Query returns the entry for a command via exact canonical-key lookup, or
// nil if absent. There is no fuzzy or prefix matching, and a command that
// was rejected at ingest is indistinguishable here from one never seen;
// the audit stream is where that difference lives.
func (r *Registry) Query(ctx context.Context, command string) (*Entry, error) {
	key := Key(command)

	if r.cache != nil {
		if res := r.cache.get(key); res.hit {
			if res.needsRefresh {
				go r.refreshInBackground(key)
			}
			return res.entry, nil
		}
	}

	entry, err := r.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("Query: %w", err)
	}
	if r.cache != nil {
		r.cache.set(key, entry)
	}
	return entry, nil
}

func (r *Registry) refreshInBackground(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	entry, err := r.store.Get(ctx, key)
	if err != nil {
		r.logger.Warn("background registry cache refresh failed",
			zap.String("key", key),
			zap.Error(err),
		)
		return
	}
	r.cache.set(key, entry)
}

// Stats summarizes the registry for observability. Not correctness-bearing.
type Stats struct {
	Entries       int            `json:"entries"`
	BySource      map[string]int `json:"by_source"`
	ByRisk        map[string]int `json:"by_risk"`
	ConfidenceMin float64        `json:"confidence_min"`
	ConfidenceAvg float64        `json:"confidence_avg"`
	ConfidenceMax float64        `json:"confidence_max"`
	Conflicts     uint64         `json:"conflicts"`
	Rejected      uint64         `json:"rejected"`
}

// CollectStats aggregates counts and the confidence distribution.
func (r *Registry) CollectStats(ctx context.Context) (*Stats, error) {
	entries, err := r.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("CollectStats: %w", err)
	}

	st := &Stats{
		Entries:  len(entries),
		BySource: make(map[string]int),
		ByRisk:   make(map[string]int),
	}
	r.mu.Lock()
	st.Conflicts = r.conflicts
	st.Rejected = r.rejected
	r.mu.Unlock()

	if len(entries) == 0 {
		return st, nil
	}

	st.ConfidenceMin = entries[0].Confidence
	var sum float64
	for _, e := range entries {
		st.BySource[e.Source]++
		if flat, err := descriptor.Decode(e.Descriptor); err == nil {
			st.ByRisk[flat.Risk.String()]++
		}
		if e.Confidence < st.ConfidenceMin {
			st.ConfidenceMin = e.Confidence
		}
		if e.Confidence > st.ConfidenceMax {
			st.ConfidenceMax = e.Confidence
		}
		sum += e.Confidence
	}
	st.ConfidenceAvg = sum / float64(len(entries))
	return st, nil
}

// keyedLocks serializes ingests per canonical key through a fixed table of
// lock stripes, so memory stays constant no matter how many distinct
// commands pass through. Two keys on the same stripe serialize against
// each other; correctness only needs same-key serialization, and with
// uniformly distributed SHA-256 keys the collision cost is noise.
type keyedLocks struct {
	stripes [lockStripes]sync.Mutex
}

const lockStripes = 256

func (k *keyedLocks) lock(key string) (unlock func()) {
	h := fnv.New32a()
	h.Write([]byte(key)) //nolint:errcheck // fnv never fails
	mu := &k.stripes[h.Sum32()%lockStripes]
	mu.Lock()
	return mu.Unlock
}
