package analyzers

import (
	"context"
	"strings"

	"github.com/triage-ai/tcp/internal/classifier"
	"github.com/triage-ai/tcp/internal/descriptor"
)

// escapePatterns are container invocations that collapse the isolation
// boundary between container and host.
var escapePatterns = []string{
	"--privileged",
	"--pid=host",
	"--net=host",
	"--cap-add=sys_admin",
	"--cap-add=SYS_ADMIN",
	"/var/run/docker.sock",
	"nsenter",
}

// ContainerAnalyzer detects container breakout vectors in docker/podman/
// nerdctl invocations and direct namespace entry.
type ContainerAnalyzer struct{}

func NewContainerAnalyzer() *ContainerAnalyzer {
	return &ContainerAnalyzer{}
}

func (a *ContainerAnalyzer) Name() string {
	return "container"
}

func (a *ContainerAnalyzer) Analyze(_ context.Context, command string) (*classifier.Finding, error) {
	for _, pattern := range escapePatterns {
		if strings.Contains(command, pattern) {
			return &classifier.Finding{
				Triggered:    true,
				Risk:         descriptor.RiskCritical,
				Capabilities: descriptor.NewCapabilitySet(descriptor.CapContainerEscape, descriptor.CapPrivilegeEscalation),
				Confidence:   0.9,
				Details:      "container isolation bypass: " + pattern,
			}, nil
		}
	}
	return &classifier.Finding{}, nil
}
