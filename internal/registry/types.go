package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// SourceTier is the explicit trust precedence among classification sources.
// It arbitrates merges independently of numeric confidence: a higher tier
// overwrites, confidence never gets a vote across tiers.
type SourceTier uint8

const (
	TierUnknown SourceTier = iota
	TierPatternGeneration
	TierProvenResearch
	TierExpertValidation
)

func (t SourceTier) String() string {
	switch t {
	case TierPatternGeneration:
		return "pattern_generation"
	case TierProvenResearch:
		return "proven_research"
	case TierExpertValidation:
		return "expert_validation"
	}
	return "unknown"
}

// TierForSource maps a source id to its trust tier. Sources we have never
// heard of rank below every named tier.
func TierForSource(sourceID string) SourceTier {
	switch sourceID {
	case "expert_validation":
		return TierExpertValidation
	case "proven_research":
		return TierProvenResearch
	case "pattern_generation":
		return TierPatternGeneration
	}
	return TierUnknown
}

// Provenance records one classification source's contribution to an entry.
type Provenance struct {
	SourceID   string    `json:"source_id" cbor:"source_id"`
	Confidence float64   `json:"confidence" cbor:"confidence"`
	Timestamp  time.Time `json:"timestamp" cbor:"timestamp"`
}

// Entry is one registered command and its validated descriptor.
type Entry struct {
	Command         string       `json:"command" cbor:"command"`
	Descriptor      []byte       `json:"descriptor" cbor:"descriptor"`
	Family          string       `json:"family,omitempty" cbor:"family,omitempty"`
	Source          string       `json:"source" cbor:"source"`
	Confidence      float64      `json:"confidence" cbor:"confidence"`
	ValidationCount int          `json:"validation_count" cbor:"validation_count"`
	Provenance      []Provenance `json:"provenance" cbor:"provenance"`
	CreatedAt       time.Time    `json:"created_at" cbor:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at" cbor:"updated_at"`
}

// Key returns the canonical registry key for a command: the hex SHA-256 of
// the exact command string. This is the only authoritative lookup key; the
// 4-byte hash embedded in the descriptor is a fingerprint, never a key.
func Key(command string) string {
	sum := sha256.Sum256([]byte(command))
	return hex.EncodeToString(sum[:])
}

// clone returns a deep copy so callers can never mutate stored state.
func (e *Entry) clone() *Entry {
	cp := *e
	cp.Descriptor = append([]byte(nil), e.Descriptor...)
	cp.Provenance = append([]Provenance(nil), e.Provenance...)
	return &cp
}
