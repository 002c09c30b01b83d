package analyzers

import (
	"context"
	"strings"

	"github.com/triage-ai/tcp/internal/classifier"
	"github.com/triage-ai/tcp/internal/descriptor"
)

// escalationTools run commands as another user; the rule table only knows
// "sudo" and "su" as command words, not mid-pipeline or wrapped uses.
var escalationTools = []string{"sudo", "doas", "pkexec", "su"}

// setuidPatterns grant the setuid/setgid bit, a persistent escalation path.
var setuidPatterns = []string{"u+s", "g+s", "+4000", "+2000", "setcap"}

// PrivilegeAnalyzer detects privilege escalation anywhere in the command
// line, including setuid-bit grants.
type PrivilegeAnalyzer struct{}

func NewPrivilegeAnalyzer() *PrivilegeAnalyzer {
	return &PrivilegeAnalyzer{}
}

func (a *PrivilegeAnalyzer) Name() string {
	return "privilege"
}

func (a *PrivilegeAnalyzer) Analyze(_ context.Context, command string) (*classifier.Finding, error) {
	fields := strings.Fields(command)

	for _, field := range fields {
		for _, tool := range escalationTools {
			if field == tool {
				return &classifier.Finding{
					Triggered:    true,
					Risk:         descriptor.RiskHigh,
					Capabilities: descriptor.NewCapabilitySet(descriptor.CapRequiresSudo, descriptor.CapPrivilegeEscalation),
					Confidence:   0.9,
					Details:      "privilege escalation via " + tool,
				}, nil
			}
		}
	}

	if len(fields) > 0 && (fields[0] == "chmod" || fields[0] == "setcap") {
		for _, pattern := range setuidPatterns {
			if strings.Contains(command, pattern) {
				return &classifier.Finding{
					Triggered:    true,
					Risk:         descriptor.RiskHigh,
					Capabilities: descriptor.NewCapabilitySet(descriptor.CapPrivilegeEscalation, descriptor.CapSystemModification),
					Confidence:   0.85,
					Details:      "setuid/capability grant: " + pattern,
				}, nil
			}
		}
	}

	return &classifier.Finding{}, nil
}
