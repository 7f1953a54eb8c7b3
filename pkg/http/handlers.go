package http

import (
	"encoding/json"
	"io"
	"net/http"

	"intake-server/pkg/database"
	apperrors "intake-server/pkg/errors"
	"intake-server/pkg/transcript"
)

// maxPayloadBytes bounds webhook bodies; hour-long transcripts fit well
// under this.
const maxPayloadBytes = 4 << 20

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// CallEndedHandler accepts one call-ended webhook delivery and runs the
// intake pipeline synchronously, so a non-2xx tells the platform to retry
// the whole event.
func (s *Server) CallEndedHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body", "")
		return
	}

	result, err := s.processor.ProcessCallEnded(r.Context(), body)
	if err != nil {
		if apperrors.IsErrorType(err, apperrors.ErrInvalidPayload) {
			s.logger.WithError(err).Warn("Rejected invalid webhook payload")
			writeError(w, http.StatusBadRequest, err.Error(), apperrors.GetErrorCode(err))
			return
		}

		s.logger.WithError(err).Error("Failed to process call-ended event")
		writeError(w, http.StatusInternalServerError, "failed to process event", apperrors.GetErrorCode(err))
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// ClassifyHandler reports the caller type for a (tenant, phone) pair
func (s *Server) ClassifyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}

	if s.directory == nil {
		writeError(w, http.StatusServiceUnavailable, "classification unavailable", "")
		return
	}

	tenantID := r.URL.Query().Get("tenant_id")
	phone := transcript.NormalizePhone(r.URL.Query().Get("phone"))
	category := r.URL.Query().Get("category")

	if tenantID == "" || phone == "" {
		writeError(w, http.StatusBadRequest, "tenant_id and phone are required", "")
		return
	}

	callerType, err := s.directory.ClassifyCaller(r.Context(), tenantID, phone, category)
	if err != nil {
		s.logger.WithError(err).Error("Failed to classify caller")
		writeError(w, http.StatusInternalServerError, "failed to classify caller", "")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"tenant_id":    tenantID,
		"phone_number": phone,
		"caller_type":  callerType,
	})
}

// FactsHandler returns the full fact history for a (tenant, phone) pair,
// superseded values included, oldest first.
func (s *Server) FactsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "")
		return
	}

	if s.directory == nil {
		writeError(w, http.StatusServiceUnavailable, "caller lookup unavailable", "")
		return
	}

	tenantID := r.URL.Query().Get("tenant_id")
	phone := transcript.NormalizePhone(r.URL.Query().Get("phone"))

	if tenantID == "" || phone == "" {
		writeError(w, http.StatusBadRequest, "tenant_id and phone are required", "")
		return
	}

	facts, err := s.directory.FactHistory(r.Context(), tenantID, phone)
	if err != nil {
		if apperrors.IsErrorType(err, apperrors.ErrCallerNotFound) {
			writeError(w, http.StatusNotFound, "caller not found", apperrors.GetErrorCode(err))
			return
		}

		s.logger.WithError(err).Error("Failed to load caller facts")
		writeError(w, http.StatusInternalServerError, "failed to load caller facts", "")
		return
	}

	if facts == nil {
		facts = []*database.CallerFact{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tenant_id":    tenantID,
		"phone_number": phone,
		"facts":        facts,
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}
