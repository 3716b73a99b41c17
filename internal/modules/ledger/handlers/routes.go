package handlers

import (
	"github.com/aristath/sarraf/internal/domain"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all ledger routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/journal", func(r chi.Router) {
		r.Get("/balances", h.HandleGetBalances)
		r.Get("/entries", h.HandleGetEntries)
		r.Get("/entries/{id}", h.HandleGetEntry)
		r.Get("/imbalances", h.HandleGetImbalances)
	})

	r.Route("/parties", func(r chi.Router) {
		r.Post("/", h.HandleCreateParty)
		r.Get("/", h.HandleGetParties)
		r.Get("/{id}", h.HandleGetParty)
		r.Get("/{id}/balances", h.HandleGetPartyBalances)
		r.Get("/{id}/statement", h.HandleGetStatement)
		r.Get("/{id}/statement/verify", h.HandleVerifyStatement)
	})

	r.Route("/bank-accounts", func(r chi.Router) {
		r.Post("/", h.HandleCreateBankAccount)
		r.Get("/", h.HandleGetBankAccounts)
		r.Get("/{id}", h.HandleGetBankAccount)
	})
}

func currenciesOrAll(c domain.Currency) []domain.Currency {
	if c != "" {
		return []domain.Currency{c}
	}
	return []domain.Currency{domain.CurrencyAED, domain.CurrencyToman}
}
