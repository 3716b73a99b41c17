// Package handlers provides HTTP handlers for payment receipts.
package handlers

import (
	"net/http"

	"github.com/aristath/sarraf/internal/modules/receipts"
	"github.com/aristath/sarraf/internal/utils"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler serves the receipts API
type Handler struct {
	service *receipts.Service
	log     zerolog.Logger
}

// NewHandler creates a new receipts handler
func NewHandler(service *receipts.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "receipts").Logger(),
	}
}

// RegisterRoutes registers receipt routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/receipts", func(r chi.Router) {
		r.Post("/", h.HandleCreate)
		r.Get("/", h.HandleList)
		r.Get("/{id}", h.HandleGet)
		r.Delete("/{id}", h.HandleDelete)
		r.Post("/{id}/restore", h.HandleRestore)
	})
}

// HandleCreate handles POST /api/receipts
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req receipts.CreateReceiptRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, err, h.log)
		return
	}

	result, err := h.service.Create(r.Context(), req)
	if err != nil {
		utils.WriteError(w, err, h.log)
		return
	}

	utils.WriteData(w, http.StatusCreated, result, nil, h.log)
}

// HandleList handles GET /api/receipts
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	var filter receipts.ReceiptFilter
	var err error

	if filter.CounterpartyID, err = utils.QueryInt64(r, "counterparty_id"); err != nil {
		utils.WriteError(w, err, h.log)
		return
	}
	if filter.Currency, err = utils.QueryCurrency(r, "currency"); err != nil {
		utils.WriteError(w, err, h.log)
		return
	}
	if filter.From, err = utils.QueryDate(r, "from"); err != nil {
		utils.WriteError(w, err, h.log)
		return
	}
	if filter.To, err = utils.QueryDateEnd(r, "to"); err != nil {
		utils.WriteError(w, err, h.log)
		return
	}
	filter.IncludeDeleted = r.URL.Query().Get("include_deleted") == "true"
	page := utils.QueryPagination(r)

	views, total, err := h.service.List(r.Context(), filter, page)
	if err != nil {
		utils.WriteError(w, err, h.log)
		return
	}

	utils.WriteData(w, http.StatusOK, views, map[string]interface{}{
		"total":     total,
		"page":      page.Page,
		"page_size": page.PageSize,
	}, h.log)
}

// HandleGet handles GET /api/receipts/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := utils.URLParamID(r, "id")
	if err != nil {
		utils.WriteError(w, err, h.log)
		return
	}

	detail, err := h.service.Get(r.Context(), id)
	if err != nil {
		utils.WriteError(w, err, h.log)
		return
	}

	utils.WriteData(w, http.StatusOK, detail, nil, h.log)
}

// HandleDelete handles DELETE /api/receipts/{id} with body {"reason": "..."}
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := utils.URLParamID(r, "id")
	if err != nil {
		utils.WriteError(w, err, h.log)
		return
	}

	var req receipts.DeleteReceiptRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, err, h.log)
		return
	}

	result, err := h.service.Delete(r.Context(), id, req.Reason)
	if err != nil {
		utils.WriteError(w, err, h.log)
		return
	}

	utils.WriteData(w, http.StatusOK, result, nil, h.log)
}

// HandleRestore handles POST /api/receipts/{id}/restore
func (h *Handler) HandleRestore(w http.ResponseWriter, r *http.Request) {
	id, err := utils.URLParamID(r, "id")
	if err != nil {
		utils.WriteError(w, err, h.log)
		return
	}

	result, err := h.service.Restore(r.Context(), id)
	if err != nil {
		utils.WriteError(w, err, h.log)
		return
	}

	utils.WriteData(w, http.StatusOK, result, nil, h.log)
}
