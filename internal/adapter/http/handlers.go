package http

import (
	"io"
	"net/http"
	"strconv"

	"github.com/runlens/runlens/internal/domain/event"
	"github.com/runlens/runlens/internal/domain/run"
	"github.com/runlens/runlens/internal/domain/workflow"
	"github.com/runlens/runlens/internal/export"
	"github.com/runlens/runlens/internal/port/archive"
	"github.com/runlens/runlens/internal/service"
)

const maxRequestBodySize = 1 << 20 // 1 MB

// maxBatchBodySize bounds an ingested event batch. Image chunk streams
// carry base64 payloads, so this is deliberately generous.
const maxBatchBodySize = 32 << 20

// Handlers holds the HTTP handler dependencies. Archive is optional; the
// archived-run listing returns empty without it.
type Handlers struct {
	Runs      *service.RunService
	Workflows *service.DescriptorService
	Archive   archive.Store
}

// --- Workflows ---

// ListWorkflows handles GET /api/v1/workflows
func (h *Handlers) ListWorkflows(w http.ResponseWriter, _ *http.Request) {
	descs := h.Workflows.List()
	if descs == nil {
		descs = []workflow.Descriptor{}
	}
	writeJSON(w, http.StatusOK, descs)
}

// RegisterWorkflow handles POST /api/v1/workflows
func (h *Handlers) RegisterWorkflow(w http.ResponseWriter, r *http.Request) {
	desc, ok := readJSON[workflow.Descriptor](w, r, maxRequestBodySize)
	if !ok {
		return
	}

	if err := h.Workflows.Register(&desc); err != nil {
		writeDomainError(w, err, "workflow registration failed")
		return
	}
	writeJSON(w, http.StatusCreated, desc)
}

// GetWorkflow handles GET /api/v1/workflows/{key}
func (h *Handlers) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	key := urlParam(r, "key")
	desc, err := h.Workflows.Descriptor(key)
	if err != nil {
		writeDomainError(w, err, "workflow not found")
		return
	}
	writeJSON(w, http.StatusOK, desc)
}

// ListWorkflowNodes handles GET /api/v1/workflows/{key}/nodes
func (h *Handlers) ListWorkflowNodes(w http.ResponseWriter, r *http.Request) {
	key := urlParam(r, "key")
	idx, err := h.Workflows.Index(key)
	if err != nil {
		writeDomainError(w, err, "workflow not found")
		return
	}
	writeJSON(w, http.StatusOK, idx.Nodes())
}

// --- Runs ---

// ListRuns handles GET /api/v1/runs. With ?archived=true the listing
// comes from the archive instead of the live registry.
func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("archived") == "true" {
		h.listArchivedRuns(w, r)
		return
	}
	runs := h.Runs.Runs()
	if runs == nil {
		runs = []run.Info{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *Handlers) listArchivedRuns(w http.ResponseWriter, r *http.Request) {
	if h.Archive == nil {
		writeJSON(w, http.StatusOK, []archive.RunRecord{})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := h.Archive.ListRuns(r.Context(), limit)
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if records == nil {
		records = []archive.RunRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// GetRun handles GET /api/v1/runs/{runID}
func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := urlParam(r, "runID")
	info, err := h.Runs.Run(r.Context(), runID)
	if err != nil {
		writeDomainError(w, err, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// GetTranscript handles GET /api/v1/runs/{runID}/transcript.
// The default response is JSON; ?format=markdown and ?format=text render
// the transcript as a document instead.
func (h *Handlers) GetTranscript(w http.ResponseWriter, r *http.Request) {
	runID := urlParam(r, "runID")

	switch r.URL.Query().Get("format") {
	case "", "json":
		data, err := h.Runs.TranscriptJSON(r.Context(), runID)
		if err != nil {
			writeDomainError(w, err, "run not found")
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)

	case "markdown":
		segs, err := h.Runs.Transcript(r.Context(), runID)
		if err != nil {
			writeDomainError(w, err, "run not found")
			return
		}
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, export.Markdown(segs))

	case "text":
		segs, err := h.Runs.Transcript(r.Context(), runID)
		if err != nil {
			writeDomainError(w, err, "run not found")
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, export.Text(segs, 0))

	default:
		writeError(w, http.StatusBadRequest, "unknown format")
	}
}

// ListRunNodes handles GET /api/v1/runs/{runID}/nodes
func (h *Handlers) ListRunNodes(w http.ResponseWriter, r *http.Request) {
	runID := urlParam(r, "runID")
	nodes, err := h.Runs.Nodes(runID)
	if err != nil {
		writeDomainError(w, err, "run not found")
		return
	}
	writeJSON(w, http.StatusOK, nodes)
}

// GetNodePreview handles GET /api/v1/runs/{runID}/nodes/{nodeID}/preview
func (h *Handlers) GetNodePreview(w http.ResponseWriter, r *http.Request) {
	runID := urlParam(r, "runID")
	nodeID := workflow.NodeID(urlParam(r, "nodeID"))

	snap, err := h.Runs.NodePreview(runID, nodeID)
	if err != nil {
		writeDomainError(w, err, "node not found")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// IngestEvents handles POST /api/v1/runs/{runID}/events. The body is an
// event batch (JSON array or NDJSON), the same wire format the feed
// carries; producers without a feed connection post here.
func (h *Handlers) IngestEvents(w http.ResponseWriter, r *http.Request) {
	runID := urlParam(r, "runID")

	r.Body = http.MaxBytesReader(w, r.Body, maxBatchBodySize)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		if err.Error() == "http: request body too large" {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		} else {
			writeError(w, http.StatusBadRequest, "unreadable request body")
		}
		return
	}

	events, err := event.DecodeBatch(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed event batch")
		return
	}

	if err := h.Runs.Ingest(r.Context(), runID, events); err != nil {
		writeDomainError(w, err, "run not found")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"events": len(events)})
}

// ResetRun handles POST /api/v1/runs/{runID}/reset
func (h *Handlers) ResetRun(w http.ResponseWriter, r *http.Request) {
	runID := urlParam(r, "runID")
	if err := h.Runs.ResetRun(r.Context(), runID); err != nil {
		writeDomainError(w, err, "run not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
