package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/AaronLay10/AdventureEngine/internal/adventure"
	"github.com/AaronLay10/AdventureEngine/internal/attempt"
	"github.com/AaronLay10/AdventureEngine/internal/judge"
)

const maxBodyBytes = 1 << 20

var validate = validator.New()

type errorResponse struct {
	Error         string   `json:"error"`
	Code          string   `json:"code"`
	Kind          string   `json:"kind,omitempty"`
	NodeIDs       []string `json:"node_ids,omitempty"`
	EdgeIDs       []string `json:"edge_ids,omitempty"`
	CurrentNodeID string   `json:"current_node_id,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decode reads a JSON body into dst and runs its validation tags.
func decode(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := validate.Struct(dst); err != nil {
		return formatValidationError(err)
	}
	return nil
}

func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		field := strings.ToLower(e.Field())
		switch e.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", field, e.Param()))
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s", field, e.Param()))
		default:
			msgs = append(msgs, field+" is invalid")
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

func (s *Server) badRequest(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "bad_request"})
}

// writeError maps domain errors onto HTTP statuses. Anything unrecognised
// is logged and reported as a 500 without detail.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		violation *adventure.Violation
		mismatch  *attempt.OutcomeMismatchError
	)
	switch {
	case errors.As(err, &violation):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{
			Error:   violation.Message,
			Code:    "invalid_adventure",
			Kind:    string(violation.Kind),
			NodeIDs: violation.NodeIDs,
			EdgeIDs: violation.EdgeIDs,
		})
	case errors.As(err, &mismatch):
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:         err.Error(),
			Code:          "stale_submission",
			CurrentNodeID: mismatch.CurrentNodeID,
		})
	case errors.Is(err, attempt.ErrVersionConflict):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Code: "version_conflict"})
	case errors.Is(err, attempt.ErrAttemptCompleted):
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Code: "attempt_completed"})
	case errors.Is(err, attempt.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found", Code: "not_found"})
	case errors.Is(err, attempt.ErrWrongKind),
		errors.Is(err, attempt.ErrInvalidSession),
		errors.Is(err, adventure.ErrUnknownNode),
		errors.Is(err, adventure.ErrInvalidOutcome):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "bad_request"})
	case errors.Is(err, judge.ErrUnsupportedLanguage):
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Code: "unsupported_language"})
	case errors.Is(err, judge.ErrUnavailable):
		w.Header().Set("Retry-After", "30")
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "code execution is temporarily unavailable", Code: "judge_unavailable"})
	default:
		s.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error", Code: "internal"})
	}
}
