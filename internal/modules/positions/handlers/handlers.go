// Package handlers provides HTTP handlers for the position book.
package handlers

import (
	"net/http"

	"github.com/aristath/sarraf/internal/modules/positions"
	"github.com/aristath/sarraf/internal/utils"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// Handler serves outstanding inventory lots
type Handler struct {
	book *positions.Book
	log  zerolog.Logger
}

// NewHandler creates a new positions handler
func NewHandler(book *positions.Book, log zerolog.Logger) *Handler {
	return &Handler{
		book: book,
		log:  log.With().Str("handler", "positions").Logger(),
	}
}

// RegisterRoutes registers position routes.
// Selling from a lot is a trade and lives with the trading routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/positions", h.HandleGetOutstanding)
}

// HandleGetOutstanding handles GET /api/positions[?currency=AED]
func (h *Handler) HandleGetOutstanding(w http.ResponseWriter, r *http.Request) {
	currency, err := utils.QueryCurrency(r, "currency")
	if err != nil {
		utils.WriteError(w, err, h.log)
		return
	}

	out, err := h.book.GetOutstandingPositions(r.Context(), currency)
	if err != nil {
		utils.WriteError(w, err, h.log)
		return
	}

	utils.WriteData(w, http.StatusOK, out, map[string]interface{}{
		"policy": map[string]bool{"allow_short_sell": h.book.Policy().AllowShortSell},
	}, h.log)
}
