package api

import "time"

// --- POST /v1/descriptors ---

// IngestRequest is the JSON body for POST /v1/descriptors. Descriptor is
// the base64-encoded 24-byte record; when omitted, the server runs its
// configured classifier and encodes the result (which still has to pass
// descriptor validation before it is stored).
type IngestRequest struct {
	Command    string  `json:"command"`
	Descriptor string  `json:"descriptor,omitempty"`
	Source     string  `json:"source,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// IngestResponse reports what the ingest did.
type IngestResponse struct {
	Outcome    string  `json:"outcome"`
	Key        string  `json:"key"`
	RequestID  string  `json:"request_id"`
	Confidence float64 `json:"confidence,omitempty"`
	LatencyMs  float64 `json:"latency_ms"`
}

// --- GET /v1/descriptors?command= ---

// EntryResponse is the JSON view of a registry entry.
type EntryResponse struct {
	Command         string           `json:"command"`
	Key             string           `json:"key"`
	Descriptor      string           `json:"descriptor"` // base64
	Family          string           `json:"family,omitempty"`
	Source          string           `json:"source"`
	Confidence      float64          `json:"confidence"`
	ValidationCount int              `json:"validation_count"`
	RiskLevel       string           `json:"risk_level"`
	Capabilities    []string         `json:"capabilities"`
	Performance     PerformanceView  `json:"performance"`
	Provenance      []ProvenanceView `json:"provenance"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// PerformanceView renders the descriptor's performance hints.
type PerformanceView struct {
	ExecTimeMs uint16 `json:"exec_time_ms"`
	MemoryMB   uint16 `json:"memory_mb"`
	OutputKB   uint16 `json:"output_kb"`
}

// ProvenanceView renders one source contribution.
type ProvenanceView struct {
	SourceID   string    `json:"source_id"`
	Confidence float64   `json:"confidence"`
	Timestamp  time.Time `json:"timestamp"`
}

// ErrorResp is the uniform JSON error body.
type ErrorResp struct {
	Detail string `json:"detail"`
}
