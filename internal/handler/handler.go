package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"netconform/internal/domain"
	"netconform/internal/evidence"
	"netconform/internal/service"
)

// maxEventBody bounds a single submitted event
const maxEventBody = 1 << 20

// maxImportBody bounds a JSON Lines import
const maxImportBody = 64 << 20

// ReconcileHandler serves the reconciliation API
type ReconcileHandler struct {
	rec *service.Reconciler
}

// NewReconcileHandler creates a handler over a started reconciler
func NewReconcileHandler(rec *service.Reconciler) *ReconcileHandler {
	return &ReconcileHandler{rec: rec}
}

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ResetRequest is the body of POST /api/reset
type ResetRequest struct {
	// Filter overrides the enabled state of source labels
	Filter map[string]bool `json:"filter,omitempty"`
	// Replay rebuilds from the event log after the reset, default true
	Replay *bool `json:"replay,omitempty"`
}

// ResetResponse reports the number of replayed events
type ResetResponse struct {
	Replayed int `json:"replayed"`
}

// ImportResponse reports the number of imported events
type ImportResponse struct {
	Imported int `json:"imported"`
}

// Routes registers the API on mux
func (h *ReconcileHandler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/report", h.GetReport)
	mux.HandleFunc("GET /api/entities/{id}", h.GetEntity)
	mux.HandleFunc("GET /api/identities", h.ListIdentities)
	mux.HandleFunc("GET /api/sources", h.ListSources)
	mux.HandleFunc("POST /api/events", h.SubmitEvent)
	mux.HandleFunc("POST /api/import", h.ImportEvents)
	mux.HandleFunc("POST /api/reset", h.Reset)
	mux.Handle("GET /metrics", h.rec.Metrics().Handler())
}

// GetReport returns the verdict report
func (h *ReconcileHandler) GetReport(w http.ResponseWriter, r *http.Request) {
	rep, err := h.rec.Report(r.Context())
	if err != nil {
		h.writeFailure(w, "Failed to build report", err)
		return
	}
	h.writeJSON(w, rep, http.StatusOK)
}

// GetEntity returns one entity by durable ID
func (h *ReconcileHandler) GetEntity(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || id <= 0 {
		h.writeError(w, "Invalid entity ID", "entity ID must be a positive integer", http.StatusBadRequest)
		return
	}

	e, err := h.rec.Entity(r.Context(), id)
	if err != nil {
		h.writeFailure(w, "Failed to get entity", err)
		return
	}
	h.writeJSON(w, e, http.StatusOK)
}

// ListIdentities returns the durable IDs of all entities
func (h *ReconcileHandler) ListIdentities(w http.ResponseWriter, r *http.Request) {
	ids, err := h.rec.Identities(r.Context())
	if err != nil {
		h.writeFailure(w, "Failed to list identities", err)
		return
	}
	h.writeJSON(w, ids, http.StatusOK)
}

// ListSources returns the source labels of the event log
func (h *ReconcileHandler) ListSources(w http.ResponseWriter, r *http.Request) {
	labels, err := h.rec.Labels(r.Context())
	if err != nil {
		h.writeFailure(w, "Failed to list sources", err)
		return
	}
	h.writeJSON(w, labels, http.StatusOK)
}

// SubmitEvent consumes one JSON encoded event. Events without a source
// are attributed to the source and label query parameters.
func (h *ReconcileHandler) SubmitEvent(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxEventBody))
	if err != nil {
		h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	res, err := h.rec.SubmitEncoded(r.Context(), data, requestSource(r))
	if err != nil {
		h.writeFailure(w, "Failed to submit event", err)
		return
	}
	h.writeJSON(w, res, http.StatusAccepted)
}

// ImportEvents consumes a JSON Lines body
func (h *ReconcileHandler) ImportEvents(w http.ResponseWriter, r *http.Request) {
	body := io.LimitReader(r.Body, maxImportBody)
	n, err := h.rec.Import(r.Context(), h.rec.NewLinesReader(body, requestSource(r)))
	if err != nil {
		slog.Warn("Handler: import stopped", "imported", n, "error", err)
		h.writeFailure(w, "Failed to import events", err)
		return
	}
	h.writeJSON(w, ImportResponse{Imported: n}, http.StatusAccepted)
}

// Reset returns the graph to the declared model and by default replays
// the enabled part of the event log
func (h *ReconcileHandler) Reset(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			h.writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
			return
		}
	}

	if req.Replay != nil && !*req.Replay {
		if err := h.rec.Reset(r.Context(), req.Filter); err != nil {
			h.writeFailure(w, "Failed to reset", err)
			return
		}
		h.writeJSON(w, ResetResponse{}, http.StatusOK)
		return
	}

	n, err := h.rec.Rebuild(r.Context(), req.Filter)
	if err != nil {
		h.writeFailure(w, "Failed to reset", err)
		return
	}
	h.writeJSON(w, ResetResponse{Replayed: n}, http.StatusOK)
}

func requestSource(r *http.Request) *evidence.Source {
	q := r.URL.Query()
	name := q.Get("source")
	if name == "" {
		name = "api"
	}
	return evidence.NewSource(name, q.Get("label"))
}

// statusFor maps engine errors to HTTP status codes
func statusFor(err error) int {
	var syntax *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrMalformedAddress),
		errors.Is(err, domain.ErrUnknownEvent),
		errors.As(err, &syntax),
		errors.As(err, &typeErr):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAmbiguousMatch),
		errors.Is(err, domain.ErrDuplicateAddress),
		errors.Is(err, domain.ErrUnresolvedPlaceholder):
		return http.StatusConflict
	case errors.Is(err, service.ErrStopped):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (h *ReconcileHandler) writeFailure(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		slog.Error("Handler: "+msg, "error", err)
	}
	h.writeError(w, msg, err.Error(), status)
}

func (h *ReconcileHandler) writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Handler: failed to encode JSON", "error", err)
	}
}

func (h *ReconcileHandler) writeError(w http.ResponseWriter, error, details string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Details: details,
	}); err != nil {
		slog.Error("Handler: failed to encode error response", "error", err)
	}
}
