// Package handlers provides HTTP handlers for the settlement engine.
package handlers

import (
	"net/http"

	"github.com/aristath/sarraf/internal/modules/settlement"
	"github.com/aristath/sarraf/internal/utils"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler exposes manual settlement controls
type Handler struct {
	engine *settlement.Engine
	log    zerolog.Logger
}

// NewHandler creates a new settlement handler
func NewHandler(engine *settlement.Engine, log zerolog.Logger) *Handler {
	return &Handler{
		engine: engine,
		log:    log.With().Str("handler", "settlement").Logger(),
	}
}

// RegisterRoutes registers settlement routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/settlement", func(r chi.Router) {
		r.Post("/receipts/{id}/process", h.HandleProcessReceipt)
		r.Post("/reprocess", h.HandleReprocess)
	})
}

// HandleProcessReceipt handles POST /api/settlement/receipts/{id}/process
func (h *Handler) HandleProcessReceipt(w http.ResponseWriter, r *http.Request) {
	id, err := utils.URLParamID(r, "id")
	if err != nil {
		utils.WriteError(w, err, h.log)
		return
	}

	result, err := h.engine.ProcessReceipt(r.Context(), id)
	if err != nil {
		utils.WriteError(w, err, h.log)
		return
	}

	utils.WriteData(w, http.StatusOK, result, map[string]interface{}{
		"allocations": result.AllocationCount(),
	}, h.log)
}

// HandleReprocess handles POST /api/settlement/reprocess
func (h *Handler) HandleReprocess(w http.ResponseWriter, r *http.Request) {
	result, err := h.engine.ReprocessAllReceipts(r.Context())
	if err != nil {
		utils.WriteError(w, err, h.log)
		return
	}

	utils.WriteData(w, http.StatusOK, result, nil, h.log)
}
