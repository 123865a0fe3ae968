package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/paddy-dryer-core/internal/audit"
	"github.com/nerrad567/paddy-dryer-core/internal/batch"
)

// batchResponse is returned by operations that may carry advisories.
type batchResponse struct {
	Batch    *batch.Batch    `json:"batch"`
	Reading  *batch.Reading  `json:"reading,omitempty"`
	Warnings []batch.Warning `json:"warnings"`
}

func newBatchResponse(b *batch.Batch, r *batch.Reading, warnings []batch.Warning) batchResponse {
	if warnings == nil {
		warnings = []batch.Warning{}
	}
	return batchResponse{Batch: b, Reading: r, Warnings: warnings}
}

// dryerResponse is the response body for GET /dryers/{n}/batch.
type dryerResponse struct {
	DryerNumber   int            `json:"dryer_number"`
	Batch         *batch.Batch   `json:"batch"`
	LatestReading *batch.Reading `json:"latest_reading,omitempty"`
}

// cancelRequest is the optional request body for POST /batches/{id}/cancel.
type cancelRequest struct {
	Reason string `json:"reason"`
}

// dryerParam parses the {n} URL parameter. Range checks are left to the
// lifecycle so every caller gets the same validation error.
func dryerParam(r *http.Request) (int, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, "n"))
	if err != nil {
		return 0, false
	}
	return n, true
}

// handleDashboard returns one tile per dryer.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	tiles, err := s.batches.Dashboard(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"dryers": tiles,
		"count":  len(tiles),
	})
}

// handleActiveBatch returns the active batch on a dryer, or a null batch
// when the dryer is available.
func (s *Server) handleActiveBatch(w http.ResponseWriter, r *http.Request) {
	n, ok := dryerParam(r)
	if !ok {
		writeBadRequest(w, "dryer number must be an integer")
		return
	}

	b, err := s.batches.ActiveBatch(r.Context(), n)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	resp := dryerResponse{DryerNumber: n, Batch: b}
	if b != nil {
		latest, err := s.batches.LatestReading(r.Context(), b.ID)
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		resp.LatestReading = latest
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleNextCode suggests the code for a batch started on a dryer now.
func (s *Server) handleNextCode(w http.ResponseWriter, r *http.Request) {
	n, ok := dryerParam(r)
	if !ok {
		writeBadRequest(w, "dryer number must be an integer")
		return
	}

	code, err := s.batches.NextCode(r.Context(), n)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"dryer_number": n,
		"batch_code":   code,
	})
}

// handleStartBatch starts a batch on the dryer named in the URL.
func (s *Server) handleStartBatch(w http.ResponseWriter, r *http.Request) {
	n, ok := dryerParam(r)
	if !ok {
		writeBadRequest(w, "dryer number must be an integer")
		return
	}

	var req batch.NewBatch
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	req.DryerNumber = n

	b, warnings, err := s.batches.Start(r.Context(), req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newBatchResponse(b, nil, warnings))
}

// handleGetBatch returns a batch by ID.
func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	b, err := s.batches.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// handleEditBatch applies a partial update to an active batch.
func (s *Server) handleEditBatch(w http.ResponseWriter, r *http.Request) {
	var req batch.EditFields
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	b, err := s.batches.Edit(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// handleDeleteBatch removes a batch.
func (s *Server) handleDeleteBatch(w http.ResponseWriter, r *http.Request) {
	if err := s.batches.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListReadings returns a batch's readings, newest first.
func (s *Server) handleListReadings(w http.ResponseWriter, r *http.Request) {
	readings, err := s.batches.Readings(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if readings == nil {
		readings = []batch.Reading{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"readings": readings,
		"count":    len(readings),
	})
}

// handleRecordReading appends a reading to a batch.
func (s *Server) handleRecordReading(w http.ResponseWriter, r *http.Request) {
	var req batch.NewReading
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	reading, b, warnings, err := s.batches.RecordReading(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newBatchResponse(b, reading, warnings))
}

// handleCompleteBatch finishes a batch from its latest reading.
func (s *Server) handleCompleteBatch(w http.ResponseWriter, r *http.Request) {
	b, warnings, err := s.batches.Complete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newBatchResponse(b, nil, warnings))
}

// handleCancelBatch abandons a batch. The body is optional.
func (s *Server) handleCancelBatch(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	b, err := s.batches.Cancel(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newBatchResponse(b, nil, nil))
}

// handleBatchHistory lists the audit entries of one batch.
func (s *Server) handleBatchHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.batches.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

// handleSearchHistory pages through history across batches.
//
// Query parameters: batch_id, change_type, limit, offset.
func (s *Server) handleSearchHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeInternal, "edit history is disabled")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{
		BatchID:    q.Get("batch_id"),
		ChangeType: batch.ChangeType(q.Get("change_type")),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "limit must be an integer")
			return
		}
		filter.Limit = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeBadRequest(w, "offset must be an integer")
			return
		}
		filter.Offset = n
	}

	result, err := s.history.Query(r.Context(), filter)
	if err != nil {
		s.logger.Error("history query failed", "error", err)
		writeInternalError(w, "failed to query history")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
