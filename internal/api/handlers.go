package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/AaronLay10/AdventureEngine/internal/adventure"
	"github.com/AaronLay10/AdventureEngine/internal/attempt"
)

type saveAdventureRequest struct {
	Name        string          `json:"name" validate:"required,max=200"`
	Description string          `json:"description" validate:"max=2000"`
	Graph       adventure.Graph `json:"graph_data"`
}

type submitRequest struct {
	NodeID string `json:"node_id" validate:"required"`
	Code   string `json:"code" validate:"required,max=65536"`
}

type guestSubmitRequest struct {
	Attempt attempt.Session `json:"attempt"`
	NodeID  string          `json:"node_id" validate:"required"`
	Code    string          `json:"code" validate:"required,max=65536"`
}

// ValidateResponse reports the first structural violation, if any.
type ValidateResponse struct {
	Valid   bool     `json:"valid"`
	Kind    string   `json:"kind,omitempty"`
	Message string   `json:"message,omitempty"`
	NodeIDs []string `json:"node_ids,omitempty"`
	EdgeIDs []string `json:"edge_ids,omitempty"`
}

// AttemptResponse carries a session plus the code last submitted at its
// current node, for the editor to preload.
type AttemptResponse struct {
	Attempt  attempt.Session `json:"attempt"`
	Status   attempt.Status  `json:"status"`
	LastCode string          `json:"last_code,omitempty"`
}

func newAttemptResponse(s attempt.Session) AttemptResponse {
	code, _ := s.LastCode(s.CurrentNodeID)
	return AttemptResponse{Attempt: s, Status: s.Status(), LastCode: code}
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var g adventure.Graph
	if err := decode(w, r, &g); err != nil {
		s.badRequest(w, err)
		return
	}
	v := s.service.Validate(g)
	if v == nil {
		writeJSON(w, http.StatusOK, ValidateResponse{Valid: true})
		return
	}
	writeJSON(w, http.StatusOK, ValidateResponse{
		Kind:    string(v.Kind),
		Message: v.Message,
		NodeIDs: v.NodeIDs,
		EdgeIDs: v.EdgeIDs,
	})
}

func (s *Server) handleSaveAdventure(w http.ResponseWriter, r *http.Request) {
	var req saveAdventureRequest
	if err := decode(w, r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	p, _ := PrincipalFrom(r.Context())

	adv, err := s.service.SaveAdventure(r.Context(), adventure.Draft{
		Name:        req.Name,
		Description: req.Description,
		CreatorID:   p.Subject,
		Graph:       req.Graph,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, adv)
}

func (s *Server) handleAdventureByCode(w http.ResponseWriter, r *http.Request) {
	adv, err := s.service.AdventureByCode(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, adv)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			s.badRequest(w, errors.New("limit must be a positive integer"))
			return
		}
		limit = n
	}
	board, err := s.service.Leaderboard(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if board == nil {
		board = []attempt.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, board)
}

func (s *Server) handleGetOrStart(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	sess, err := s.service.GetOrStart(r.Context(), chi.URLParam(r, "id"), p.Subject)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAttemptResponse(sess))
}

func (s *Server) handleGetAttempt(w http.ResponseWriter, r *http.Request) {
	p, _ := PrincipalFrom(r.Context())
	sess, err := s.service.Attempt(r.Context(), chi.URLParam(r, "id"), p.Subject)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newAttemptResponse(sess))
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decode(w, r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	p, _ := PrincipalFrom(r.Context())

	res, err := s.service.Submit(r.Context(), chi.URLParam(r, "id"), p.Subject, req.NodeID, req.Code)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleStartGuest(w http.ResponseWriter, r *http.Request) {
	sess, err := s.service.StartGuest(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newAttemptResponse(sess))
}

func (s *Server) handleSubmitGuest(w http.ResponseWriter, r *http.Request) {
	var req guestSubmitRequest
	if err := decode(w, r, &req); err != nil {
		s.badRequest(w, err)
		return
	}
	if req.Attempt.ID == "" {
		s.badRequest(w, errors.New("attempt is required"))
		return
	}
	if req.Attempt.AdventureID != chi.URLParam(r, "id") {
		s.badRequest(w, errors.New("attempt belongs to a different adventure"))
		return
	}

	res, err := s.service.SubmitGuest(r.Context(), req.Attempt, req.NodeID, req.Code)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
