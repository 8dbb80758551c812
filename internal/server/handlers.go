package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ppiankov/seomancer/internal/model"
)

// analyzeRequest accepts either a URL to fetch or raw HTML to analyze in
// place. Exactly one of the two must be set.
type analyzeRequest struct {
	URL  string `json:"url,omitempty"`
	HTML string `json:"html,omitempty"`
}

type suggestRequest struct {
	RuleID     string     `json:"ruleId"`
	Position   model.Span `json:"position"`
	Regenerate bool       `json:"regenerate,omitempty"`
}

type applyRequest struct {
	Fingerprints []string `json:"fingerprints"`
}

type applyResponse struct {
	HTML    string         `json:"html"`
	Applied model.PatchSet `json:"applied"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if (req.URL == "") == (req.HTML == "") {
		s.respondError(w, http.StatusBadRequest, "exactly one of url or html is required")
		return
	}

	var (
		report *model.Report
		err    error
	)
	if req.URL != "" {
		report, err = s.analyzer.AnalyzeURL(r.Context(), req.URL)
	} else {
		report, err = s.analyzer.AnalyzeHTML(r.Context(), []byte(req.HTML), "text/html; charset=utf-8")
	}
	if err != nil {
		var malformed *model.MalformedMarkupError
		if errors.As(err, &malformed) {
			s.respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		s.logger.Error("analyze failed", zap.Error(err))
		s.respondError(w, http.StatusBadGateway, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.respondError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	reports, err := s.analyzer.ListReports(r.Context(), limit)
	if err != nil {
		s.logger.Error("list reports failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"reports": reports})
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	report, err := s.analyzer.GetReport(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "report not found")
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleSuggestPatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req suggestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.RuleID == "" {
		s.respondError(w, http.StatusBadRequest, "ruleId is required")
		return
	}

	p, err := s.analyzer.SuggestPatch(r.Context(), id, req.RuleID, req.Position, req.Regenerate)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrSuggestionUnavailable):
			s.respondError(w, http.StatusServiceUnavailable, err.Error())
		case errors.Is(err, model.ErrPatchRejected):
			// The rejected patch is part of the answer: clients need the
			// reason and the fingerprint to decide whether to regenerate.
			s.respondJSON(w, http.StatusUnprocessableEntity, p)
		default:
			s.respondError(w, http.StatusNotFound, err.Error())
		}
		return
	}

	s.respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleApplyPatches(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req applyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	html, set, err := s.analyzer.ApplyPatches(id, req.Fingerprints)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrOverlappingPatches):
			s.respondError(w, http.StatusConflict, err.Error())
		case errors.Is(err, model.ErrPatchRejected):
			s.respondError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			s.respondError(w, http.StatusNotFound, err.Error())
		}
		return
	}

	s.respondJSON(w, http.StatusOK, applyResponse{HTML: html, Applied: *set})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status":         "ok",
		"ruleSetVersion": s.analyzer.RuleSetVersion(),
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
