package classifier

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/triage-ai/tcp/internal/descriptor"
)

//go:embed rules.yaml
var defaultRules []byte

// ruleTable is the YAML shape of the pattern rule table.
type ruleTable struct {
	Categories []ruleCategory `yaml:"categories"`
	Modifiers  []ruleModifier `yaml:"modifiers"`
}

type ruleCategory struct {
	Risk         string          `yaml:"risk"`
	Capabilities []string        `yaml:"capabilities"`
	Performance  rulePerformance `yaml:"performance"`
	Commands     []string        `yaml:"commands"`
}

type rulePerformance struct {
	ExecTimeMs uint16 `yaml:"exec_time_ms"`
	MemoryMB   uint16 `yaml:"memory_mb"`
	OutputKB   uint16 `yaml:"output_kb"`
}

type ruleModifier struct {
	Contains     string   `yaml:"contains"`
	MinRisk      string   `yaml:"min_risk"`
	Capabilities []string `yaml:"capabilities"`
}

type compiledCategory struct {
	risk descriptor.RiskLevel
	caps descriptor.CapabilitySet
	perf descriptor.PerformanceHints
}

type compiledModifier struct {
	contains string
	minRisk  descriptor.RiskLevel
	caps     descriptor.CapabilitySet
}

// RuleClassifier is the built-in pattern_generation source: a static rule
// table mapping known commands to risk categories, with argument modifiers
// on top. Unknown commands classify as CRITICAL with low confidence —
// fail closed, let a stronger source lower the rating later.
type RuleClassifier struct {
	byCommand map[string]compiledCategory
	modifiers []compiledModifier
}

// RuleSourceID is the source id the rule classifier reports.
const RuleSourceID = "pattern_generation"

const (
	knownConfidence   = 0.85
	unknownConfidence = 0.30
)

// NewRuleClassifier compiles the embedded rule table.
func NewRuleClassifier() (*RuleClassifier, error) {
	return NewRuleClassifierFromYAML(defaultRules)
}

// NewRuleClassifierFromYAML compiles a caller-supplied rule table.
func NewRuleClassifierFromYAML(data []byte) (*RuleClassifier, error) {
	var table ruleTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("NewRuleClassifierFromYAML: %w", err)
	}

	rc := &RuleClassifier{byCommand: make(map[string]compiledCategory)}
	for _, cat := range table.Categories {
		caps, err := parseCapabilities(cat.Capabilities)
		if err != nil {
			return nil, fmt.Errorf("NewRuleClassifierFromYAML: %w", err)
		}
		compiled := compiledCategory{
			risk: descriptor.ParseRiskLevel(cat.Risk),
			caps: caps,
			perf: descriptor.PerformanceHints{
				ExecTimeMs: cat.Performance.ExecTimeMs,
				MemoryMB:   cat.Performance.MemoryMB,
				OutputKB:   cat.Performance.OutputKB,
			},
		}
		for _, cmd := range cat.Commands {
			// First category wins; the table is ordered most severe
			// first.
			if _, seen := rc.byCommand[cmd]; !seen {
				rc.byCommand[cmd] = compiled
			}
		}
	}
	for _, mod := range table.Modifiers {
		caps, err := parseCapabilities(mod.Capabilities)
		if err != nil {
			return nil, fmt.Errorf("NewRuleClassifierFromYAML: %w", err)
		}
		rc.modifiers = append(rc.modifiers, compiledModifier{
			contains: mod.Contains,
			minRisk:  descriptor.ParseRiskLevel(mod.MinRisk),
			caps:     caps,
		})
	}
	return rc, nil
}

func parseCapabilities(names []string) (descriptor.CapabilitySet, error) {
	var caps descriptor.CapabilitySet
	for _, name := range names {
		c, ok := descriptor.ParseCapability(name)
		if !ok {
			return 0, fmt.Errorf("unknown capability %q in rule table", name)
		}
		caps = caps.With(c)
	}
	return caps, nil
}

func (rc *RuleClassifier) Classify(_ context.Context, command string) (*Classification, error) {
	base := strings.TrimSpace(command)
	if base == "" {
		return nil, fmt.Errorf("Classify: empty command")
	}
	tool, _, _ := strings.Cut(base, " ")

	cls := &Classification{
		Risk:       descriptor.RiskCritical,
		Confidence: unknownConfidence,
		SourceID:   RuleSourceID,
		Performance: descriptor.PerformanceHints{
			ExecTimeMs: 1000,
			MemoryMB:   100,
			OutputKB:   20,
		},
	}
	if cat, ok := rc.byCommand[tool]; ok {
		cls.Risk = cat.risk
		cls.Capabilities = cat.caps
		cls.Performance = cat.perf
		cls.Confidence = knownConfidence
	}

	for _, mod := range rc.modifiers {
		if strings.Contains(base, mod.contains) {
			if mod.minRisk > cls.Risk {
				cls.Risk = mod.minRisk
			}
			cls.Capabilities |= mod.caps
		}
	}
	return cls, nil
}
