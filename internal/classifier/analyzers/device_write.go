package analyzers

import (
	"context"
	"strings"

	"github.com/triage-ai/tcp/internal/classifier"
	"github.com/triage-ai/tcp/internal/descriptor"
)

// devicePatterns are argument shapes that write directly to block devices,
// bypassing the filesystem entirely.
var devicePatterns = []string{
	"of=/dev/",
	"> /dev/sd",
	"> /dev/nvme",
	"> /dev/vd",
	"tee /dev/sd",
	"tee /dev/nvme",
}

// DeviceWriteAnalyzer detects raw writes to block devices. The base rule
// table sees the command word ("dd", "tee"); this analyzer sees the target.
type DeviceWriteAnalyzer struct{}

func NewDeviceWriteAnalyzer() *DeviceWriteAnalyzer {
	return &DeviceWriteAnalyzer{}
}

func (a *DeviceWriteAnalyzer) Name() string {
	return "device_write"
}

func (a *DeviceWriteAnalyzer) Analyze(_ context.Context, command string) (*classifier.Finding, error) {
	for _, pattern := range devicePatterns {
		if strings.Contains(command, pattern) {
			return &classifier.Finding{
				Triggered:    true,
				Risk:         descriptor.RiskCritical,
				Capabilities: descriptor.NewCapabilitySet(descriptor.CapDestructive, descriptor.CapSystemModification, descriptor.CapRequiresRoot),
				Confidence:   0.95,
				Details:      "raw write to block device: " + pattern,
			}, nil
		}
	}
	return &classifier.Finding{}, nil
}
