// Package classifier produces risk classifications for commands. The
// registry treats every classifier as opaque, untrusted input: whatever a
// classifier says is encoded to a descriptor and must still pass codec
// validation before it is stored.
package classifier

import (
	"context"

	"github.com/triage-ai/tcp/internal/descriptor"
)

// Classification is one source's opinion about a command.
type Classification struct {
	Risk         descriptor.RiskLevel
	Capabilities descriptor.CapabilitySet
	Performance  descriptor.PerformanceHints
	Confidence   float64
	SourceID     string
}

// Classifier classifies a command string.
type Classifier interface {
	Classify(ctx context.Context, command string) (*Classification, error)
}

// EncodeClassification builds the flat descriptor for a classification.
func EncodeClassification(command string, c *Classification) []byte {
	buf := descriptor.Encode(command, c.Risk, c.Capabilities, c.Performance)
	return buf[:]
}
