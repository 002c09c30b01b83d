package analyzers

import (
	"context"
	"strings"

	"github.com/triage-ai/tcp/internal/classifier"
	"github.com/triage-ai/tcp/internal/descriptor"
)

// downloaders fetch remote content; shells execute it. A command that pipes
// one into the other runs code nobody has reviewed.
var (
	downloaders = []string{"curl", "wget", "fetch"}
	shells      = []string{"sh", "bash", "zsh", "dash", "ksh"}
)

// RemoteExecAnalyzer detects download-to-shell pipelines such as
// "curl https://... | sh" and "bash <(wget -qO- ...)".
type RemoteExecAnalyzer struct{}

func NewRemoteExecAnalyzer() *RemoteExecAnalyzer {
	return &RemoteExecAnalyzer{}
}

func (a *RemoteExecAnalyzer) Name() string {
	return "remote_exec"
}

func (a *RemoteExecAnalyzer) Analyze(_ context.Context, command string) (*classifier.Finding, error) {
	if !hasDownloader(command) {
		return &classifier.Finding{}, nil
	}

	// Pipe into a shell: any segment after a | whose first word is a shell.
	segments := strings.Split(command, "|")
	for _, seg := range segments[1:] {
		if isShellWord(firstWord(seg)) {
			return remoteExecFinding("remote content piped into a shell"), nil
		}
	}

	// Process substitution: "bash <(curl ...)".
	if isShellWord(firstWord(command)) && strings.Contains(command, "<(") {
		return remoteExecFinding("shell executing process substitution of remote content"), nil
	}

	return &classifier.Finding{}, nil
}

func remoteExecFinding(details string) *classifier.Finding {
	return &classifier.Finding{
		Triggered:    true,
		Risk:         descriptor.RiskCritical,
		Capabilities: descriptor.NewCapabilitySet(descriptor.CapNetworkAccess, descriptor.CapDestructive),
		Confidence:   0.95,
		Details:      details,
	}
}

func hasDownloader(command string) bool {
	for _, field := range strings.Fields(command) {
		// Substitution syntax glues onto the command word: the field
		// for "bash <(wget ...)" is "<(wget".
		field = strings.TrimPrefix(field, "<(")
		field = strings.TrimPrefix(field, "$(")
		for _, d := range downloaders {
			if field == d {
				return true
			}
		}
	}
	return false
}

func isShellWord(word string) bool {
	word = strings.TrimPrefix(word, "/bin/")
	word = strings.TrimPrefix(word, "/usr/bin/")
	for _, s := range shells {
		if word == s {
			return true
		}
	}
	return false
}

func firstWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}
