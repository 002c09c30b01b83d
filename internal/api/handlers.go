package api

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/triage-ai/tcp/internal/classifier"
	"github.com/triage-ai/tcp/internal/descriptor"
	"github.com/triage-ai/tcp/internal/registry"
	"github.com/triage-ai/tcp/internal/storage"
)

// handleIngest implements POST /v1/descriptors.
func (d *Dependencies) handleIngest(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req IngestRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.Command == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "command is required"})
		return
	}

	// A source-bound API key submits as its own source, nothing else.
	if principal := principalFromContext(r.Context()); principal != nil && principal.Source != "" {
		if req.Source != "" && req.Source != principal.Source {
			writeJSON(w, http.StatusForbidden, ErrorResp{Detail: "API key is not authorized to submit as source " + req.Source})
			return
		}
		req.Source = principal.Source
	}

	var (
		desc       []byte
		source     = req.Source
		confidence = req.Confidence
	)
	switch {
	case req.Descriptor != "":
		var err error
		desc, err = base64.StdEncoding.DecodeString(req.Descriptor)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "descriptor is not valid base64"})
			return
		}
		if source == "" {
			writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "source is required with a descriptor"})
			return
		}
	case d.Classifier != nil:
		cls, err := d.Classifier.Classify(r.Context(), req.Command)
		if err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, ErrorResp{Detail: "classification failed: " + err.Error()})
			return
		}
		desc = classifier.EncodeClassification(req.Command, cls)
		source = cls.SourceID
		confidence = cls.Confidence
	default:
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "descriptor is required (no classifier configured)"})
		return
	}

	requestID := uuid.New().String()
	res, err := d.Registry.Ingest(r.Context(), req.Command, desc, source, confidence)
	latencyMs := float64(time.Since(start)) / float64(time.Millisecond)

	d.writeEvent(requestID, req.Command, res, source, confidence, err, latencyMs)

	if err != nil {
		if res != nil && res.Outcome == registry.OutcomeRejected {
			writeJSON(w, http.StatusUnprocessableEntity, ErrorResp{Detail: "descriptor rejected: " + err.Error()})
			return
		}
		d.Logger.Error("ingest failed", zap.String("request_id", requestID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "ingest failed"})
		return
	}

	resp := IngestResponse{
		Outcome:   string(res.Outcome),
		Key:       res.Key,
		RequestID: requestID,
		LatencyMs: latencyMs,
	}
	if res.Entry != nil {
		resp.Confidence = res.Entry.Confidence
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleQuery implements GET /v1/descriptors?command=<cmd>. Lookup is
// exact-match on the canonical hash key; "not found" is uniform whether
// the command was never seen or was rejected at ingest.
func (d *Dependencies) handleQuery(w http.ResponseWriter, r *http.Request) {
	command := r.URL.Query().Get("command")
	if command == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "command query parameter is required"})
		return
	}

	entry, err := d.Registry.Query(r.Context(), command)
	if err != nil {
		d.Logger.Error("query failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "query failed"})
		return
	}
	if entry == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "command not registered"})
		return
	}

	flat, err := descriptor.Decode(entry.Descriptor)
	if err != nil {
		// Stored bytes no longer decode — surface as an integrity
		// incident rather than fabricating a plausible response.
		d.Logger.Error("stored descriptor failed validation at query",
			zap.String("command", entry.Command),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "stored descriptor failed integrity check"})
		return
	}

	resp := EntryResponse{
		Command:         entry.Command,
		Key:             registry.Key(entry.Command),
		Descriptor:      base64.StdEncoding.EncodeToString(entry.Descriptor),
		Family:          entry.Family,
		Source:          entry.Source,
		Confidence:      entry.Confidence,
		ValidationCount: entry.ValidationCount,
		RiskLevel:       flat.Risk.String(),
		Capabilities:    flat.Capabilities.Names(),
		Performance: PerformanceView{
			ExecTimeMs: flat.Performance.ExecTimeMs,
			MemoryMB:   flat.Performance.MemoryMB,
			OutputKB:   flat.Performance.OutputKB,
		},
		CreatedAt: entry.CreatedAt,
		UpdatedAt: entry.UpdatedAt,
	}
	for _, p := range entry.Provenance {
		resp.Provenance = append(resp.Provenance, ProvenanceView{
			SourceID:   p.SourceID,
			Confidence: p.Confidence,
			Timestamp:  p.Timestamp,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleExport implements GET /v1/registry/export, streaming the
// deterministic CBOR export document.
func (d *Dependencies) handleExport(w http.ResponseWriter, r *http.Request) {
	data, err := d.Registry.Export(r.Context())
	if err != nil {
		d.Logger.Error("export failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "export failed"})
		return
	}
	w.Header().Set("Content-Type", "application/cbor")
	w.WriteHeader(http.StatusOK)
	w.Write(data) //nolint:errcheck
}

// handleStats implements GET /v1/registry/stats.
func (d *Dependencies) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := d.Registry.CollectStats(r.Context())
	if err != nil {
		d.Logger.Error("stats collection failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResp{Detail: "stats collection failed"})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (d *Dependencies) writeEvent(requestID, command string, res *registry.IngestResult, source string, confidence float64, ingestErr error, latencyMs float64) {
	if d.Writer == nil {
		return
	}
	event := &storage.IngestEvent{
		RequestID:  requestID,
		Timestamp:  time.Now(),
		Source:     source,
		SourceTier: registry.TierForSource(source).String(),
		Confidence: confidence,
		LatencyMs:  float32(latencyMs),
	}
	if res != nil {
		event.CommandHash = res.Key
		event.Outcome = string(res.Outcome)
		if res.Entry != nil {
			event.Family = res.Entry.Family
			if flat, err := descriptor.Decode(res.Entry.Descriptor); err == nil {
				event.RiskLevel = flat.Risk.String()
			}
		}
	} else {
		event.CommandHash = registry.Key(command)
	}
	if ingestErr != nil {
		event.Error = ingestErr.Error()
	}
	d.Writer.Write(event)
}

// writeJSON writes v as the JSON response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// readJSON decodes a JSON request body into the given pointer.
func readJSON(r *http.Request, v interface{}) error {
	defer func() { _ = r.Body.Close() }()
	return json.NewDecoder(r.Body).Decode(v)
}
