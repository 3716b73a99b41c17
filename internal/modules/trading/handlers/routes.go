package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all trading routes
func (h *TradingHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/trades", func(r chi.Router) {
		r.Post("/", h.HandleCreateTrade)
		r.Get("/", h.HandleGetTrades)
		r.Get("/profit-summary", h.HandleProfitSummary)
		r.Get("/{id}", h.HandleGetTrade)
	})

	r.Post("/positions/{id}/sell", h.HandleSellPosition)
}
