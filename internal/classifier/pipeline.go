package classifier

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DefaultAnalyzeTimeout is the max time analyzers get to complete.
const DefaultAnalyzeTimeout = 25 * time.Millisecond

// Pipeline classifies a command with the rule table, then fans the command
// out to all registered analyzers in parallel and folds their findings in.
// Findings escalate only: risk can rise, capabilities accumulate, and
// confidence rises when an analyzer at or above the final risk level is
// more certain than the base classification.
type Pipeline struct {
	base      *RuleClassifier
	analyzers []Analyzer
	timeout   time.Duration
	logger    *zap.Logger
}

// NewPipeline creates a pipeline with the given analyzers and timeout.
func NewPipeline(base *RuleClassifier, analyzers []Analyzer, timeout time.Duration, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		base:      base,
		analyzers: analyzers,
		timeout:   timeout,
		logger:    logger,
	}
}

// analyzerOutput holds a single analyzer's finding alongside its metadata.
type analyzerOutput struct {
	name    string
	finding *Finding
	err     error
}

// Classify runs the base rule table, then the analyzers in parallel.
// Analyzers that exceed the timeout are skipped: a slow analyzer can cost
// an escalation, never a classification.
//
// Each goroutine sends its finding through a buffered channel, so the main
// goroutine can safely read completed findings without racing against
// in-flight writes. When the deadline fires, we stop reading and fold in
// whatever has been collected.
func (p *Pipeline) Classify(ctx context.Context, command string) (*Classification, error) {
	cls, err := p.base.Classify(ctx, command)
	if err != nil {
		return nil, err
	}
	if len(p.analyzers) == 0 {
		return cls, nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	ch := make(chan analyzerOutput, len(p.analyzers))
	for _, a := range p.analyzers {
		go func(a Analyzer) {
			finding, err := a.Analyze(ctx, command)
			ch <- analyzerOutput{name: a.Name(), finding: finding, err: err}
		}(a)
	}

	collected := make([]analyzerOutput, 0, len(p.analyzers))
	remaining := len(p.analyzers)
	for remaining > 0 {
		select {
		case out := <-ch:
			collected = append(collected, out)
			remaining--
		case <-ctx.Done():
			p.logger.Warn("analyzer timeout exceeded, classifying on partial findings",
				zap.Duration("timeout", p.timeout),
			)
			remaining = 0
		}
	}

	triggered := collected[:0]
	for _, out := range collected {
		if out.err != nil {
			// An analyzer failure can only cost an escalation; the
			// base verdict stands.
			p.logger.Warn("analyzer error",
				zap.String("analyzer", out.name),
				zap.Error(out.err),
			)
			continue
		}
		if out.finding == nil || !out.finding.Triggered {
			continue
		}
		triggered = append(triggered, out)
	}

	// Final risk is the max over base and findings; confidence then rises
	// to the most certain finding at that level, so the order findings
	// arrive in never changes the result.
	for _, out := range triggered {
		if out.finding.Risk > cls.Risk {
			cls.Risk = out.finding.Risk
		}
		cls.Capabilities |= out.finding.Capabilities
	}
	for _, out := range triggered {
		if out.finding.Risk == cls.Risk && out.finding.Confidence > cls.Confidence {
			cls.Confidence = out.finding.Confidence
		}
	}

	return cls, nil
}
