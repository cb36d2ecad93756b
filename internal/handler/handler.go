package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"

	"meshmap/internal/codec"
	"meshmap/internal/service"
)

// TopologyHandler handles topology API requests
type TopologyHandler struct {
	svc      *service.TopologyService
	reloader service.Reloader
}

// NewTopologyHandler creates a new topology handler
func NewTopologyHandler(svc *service.TopologyService) *TopologyHandler {
	return &TopologyHandler{svc: svc}
}

// SetReloader enables POST /api/mesh/reload
func (h *TopologyHandler) SetReloader(r service.Reloader) {
	h.reloader = r
}

// Register adds the topology routes to mux
func (h *TopologyHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/topology", h.GetTopology)
	mux.HandleFunc("GET /api/topology/text", h.GetTopologyText)
	mux.HandleFunc("GET /api/nodes", h.ListNodes)
	mux.HandleFunc("GET /api/export/{format}", h.Export)
	mux.HandleFunc("GET /api/journal", h.GetJournal)
	mux.HandleFunc("POST /api/mesh/reload", h.ReloadMesh)
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// GetTopology returns the snapshot, tree and sweep cursor
func (h *TopologyHandler) GetTopology(w http.ResponseWriter, r *http.Request) {
	view, err := h.svc.GetTopology(r.Context())
	if err != nil {
		log.Printf("[http] failed to get topology: %v", err)
		h.writeError(w, "Failed to get topology", err.Error(), http.StatusServiceUnavailable)
		return
	}

	h.writeJSON(w, view, http.StatusOK)
}

// GetTopologyText returns the tree as the console prints it
func (h *TopologyHandler) GetTopologyText(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if err := h.svc.WriteText(r.Context(), w); err != nil {
		log.Printf("[http] failed to render topology: %v", err)
		h.writeError(w, "Failed to render topology", err.Error(), http.StatusServiceUnavailable)
	}
}

// ListNodes returns the registry in index order
func (h *TopologyHandler) ListNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := h.svc.ListNodes(r.Context())
	if err != nil {
		log.Printf("[http] failed to list nodes: %v", err)
		h.writeError(w, "Failed to list nodes", err.Error(), http.StatusServiceUnavailable)
		return
	}

	h.writeJSON(w, nodes, http.StatusOK)
}

// Export writes the topology in the format named by the path
func (h *TopologyHandler) Export(w http.ResponseWriter, r *http.Request) {
	exp, err := codec.ForFormat(r.PathValue("format"))
	if err != nil {
		h.writeError(w, "Unsupported format", err.Error(), http.StatusNotFound)
		return
	}

	var buf bytes.Buffer
	if err := h.svc.Export(r.Context(), exp, &buf); err != nil {
		log.Printf("[http] failed to export %s: %v", exp.Format(), err)
		h.writeError(w, "Failed to export topology", err.Error(), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", exp.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=topology.%s", exp.Format()))
	if _, err := buf.WriteTo(w); err != nil {
		log.Printf("[http] failed to write %s export: %v", exp.Format(), err)
	}
}

// GetJournal returns recent journal entries
func (h *TopologyHandler) GetJournal(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.writeError(w, "Invalid limit", "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := h.svc.RecentEvents(r.Context(), limit)
	if errors.Is(err, service.ErrJournalDisabled) {
		h.writeError(w, "Journal disabled", "set journal.path to enable", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("[http] failed to read journal: %v", err)
		h.writeError(w, "Failed to read journal", err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, entries, http.StatusOK)
}

// ReloadMesh asks the mapper to re-read the mesh state file
func (h *TopologyHandler) ReloadMesh(w http.ResponseWriter, r *http.Request) {
	if h.reloader == nil {
		h.writeError(w, "Reload not configured", "no mesh state file", http.StatusServiceUnavailable)
		return
	}
	h.reloader.Reload()
	h.writeJSON(w, map[string]string{"status": "reload_requested"}, http.StatusAccepted)
}

// Helper methods

func (h *TopologyHandler) writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("[http] failed to encode JSON: %v", err)
	}
}

func (h *TopologyHandler) writeError(w http.ResponseWriter, error, details string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Details: details,
	}); err != nil {
		log.Printf("[http] failed to encode error response: %v", err)
	}
}
