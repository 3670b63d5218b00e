package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/wonny/alphalens/internal/contracts"
	"github.com/wonny/alphalens/internal/selection"
	"github.com/wonny/alphalens/pkg/logger"
)

// Screener is the selection surface exposed over HTTP
type Screener interface {
	Select(ctx context.Context, universe []string, criteria contracts.ScreeningCriteria) (*selection.Selection, error)
	DefaultCriteria() contracts.ScreeningCriteria
}

// Diagnoser is the diagnosis surface exposed over HTTP
type Diagnoser interface {
	Diagnose(ctx context.Context, symbol string) (*selection.Diagnosis, error)
}

// SelectionHistory returns persisted screening runs
type SelectionHistory interface {
	LatestSelection(ctx context.Context) (*selection.Selection, error)
}

// ScreeningHandler handles screening and diagnosis endpoints
type ScreeningHandler struct {
	screener  Screener
	diagnoser Diagnoser
	history   SelectionHistory // nil: 저장소 없음
	logger    *logger.Logger
}

// NewScreeningHandler creates a new screening handler
func NewScreeningHandler(screener Screener, diagnoser Diagnoser, log *logger.Logger) *ScreeningHandler {
	return &ScreeningHandler{
		screener:  screener,
		diagnoser: diagnoser,
		logger:    log,
	}
}

// WithHistory enables GET /api/screening/latest
func (h *ScreeningHandler) WithHistory(history SelectionHistory) *ScreeningHandler {
	h.history = history
	return h
}

// SelectRequest is the screening request; nil criteria uses the profile defaults
type SelectRequest struct {
	Universe []string                     `json:"universe"`
	Criteria *contracts.ScreeningCriteria `json:"criteria"`
}

// Select ranks instruments that pass the criteria
// POST /api/screening/select
func (h *ScreeningHandler) Select(w http.ResponseWriter, r *http.Request) {
	var req SelectRequest
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req)
	if err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	criteria := h.screener.DefaultCriteria()
	if req.Criteria != nil {
		criteria = *req.Criteria
	}

	sel, err := h.screener.Select(r.Context(), req.Universe, criteria)
	if err != nil {
		h.logger.WithError(err).Error("Screening failed")
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sel)
}

// Diagnose returns the qualitative report for one symbol
// GET /api/screening/diagnose/{symbol}
func (h *ScreeningHandler) Diagnose(w http.ResponseWriter, r *http.Request) {
	diag, err := h.diagnoser.Diagnose(r.Context(), mux.Vars(r)["symbol"])
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, diag)
}

// Latest returns the most recent persisted screening run
// GET /api/screening/latest
func (h *ScreeningHandler) Latest(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		respondErr(w, fmt.Errorf("screening history requires a database: %w", contracts.ErrNotFound))
		return
	}
	sel, err := h.history.LatestSelection(r.Context())
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sel)
}
