package storage

import (
	"time"

	"go.uber.org/zap"
)

// EventWriter is the interface for writing ingest audit events.
// Write() must NEVER block the caller.
type EventWriter interface {
	Write(event *IngestEvent)
	Close()
}

// IngestEvent records one ingest attempt against the registry. The audit
// stream is what distinguishes "command never seen" from "command rejected
// at ingest" — the query API deliberately does not.
type IngestEvent struct {
	RequestID   string
	Timestamp   time.Time
	CommandHash string // canonical hex SHA-256 key
	Family      string
	Outcome     string // "stored", "merged", "overwritten", "recorded", "conflict", "rejected"
	Source      string
	SourceTier  string
	Confidence  float64
	RiskLevel   string
	Error       string // reject reason, empty otherwise
	LatencyMs   float32
}

// LogWriter is a fallback EventWriter for local development.
type LogWriter struct {
	logger *zap.Logger
}

// NewLogWriter creates a LogWriter that outputs events to the given logger.
func NewLogWriter(logger *zap.Logger) *LogWriter {
	return &LogWriter{logger: logger}
}

func (w *LogWriter) Write(event *IngestEvent) {
	w.logger.Info("ingest_event",
		zap.String("request_id", event.RequestID),
		zap.String("command_hash", event.CommandHash),
		zap.String("family", event.Family),
		zap.String("outcome", event.Outcome),
		zap.String("source", event.Source),
		zap.String("source_tier", event.SourceTier),
		zap.Float64("confidence", event.Confidence),
		zap.String("risk_level", event.RiskLevel),
		zap.String("error", event.Error),
		zap.Float32("latency_ms", event.LatencyMs),
	)
}

func (w *LogWriter) Close() {}
