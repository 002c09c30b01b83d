package classifier

import (
	"context"

	"github.com/triage-ai/tcp/internal/descriptor"
)

// Analyzer is the interface every command analyzer must implement.
// Implementations must respect context deadlines and return quickly.
type Analyzer interface {
	// Name returns the analyzer's unique identifier.
	Name() string

	// Analyze inspects the full command line for patterns the base rule
	// table cannot see. Must respect ctx deadline.
	Analyze(ctx context.Context, command string) (*Finding, error)
}

// Finding is the outcome of a single analyzer run. A triggered finding can
// only escalate a classification: raise the risk level, add capabilities,
// or raise confidence. It can never lower any of them.
type Finding struct {
	Triggered    bool
	Risk         descriptor.RiskLevel
	Capabilities descriptor.CapabilitySet
	Confidence   float64 // 0.0 – 1.0
	Details      string
}
