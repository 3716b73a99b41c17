// Package handlers provides HTTP handlers for the trade ledger.
package handlers

import (
	"net/http"

	"github.com/aristath/sarraf/internal/domain"
	"github.com/aristath/sarraf/internal/modules/trading"
	"github.com/aristath/sarraf/internal/utils"
	"github.com/rs/zerolog"
)

// TradingHandlers contains HTTP handlers for the trading API
type TradingHandlers struct {
	service *trading.Service
	log     zerolog.Logger
}

// NewTradingHandlers creates a new trading handlers instance
func NewTradingHandlers(service *trading.Service, log zerolog.Logger) *TradingHandlers {
	return &TradingHandlers{
		service: service,
		log:     log.With().Str("handler", "trading").Logger(),
	}
}

// HandleCreateTrade handles POST /api/trades
func (h *TradingHandlers) HandleCreateTrade(w http.ResponseWriter, r *http.Request) {
	var req trading.CreateTradeRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, err, h.log)
		return
	}

	trade, err := h.service.CreateTrade(r.Context(), req)
	if err != nil {
		utils.WriteError(w, err, h.log)
		return
	}

	utils.WriteData(w, http.StatusCreated, trade, nil, h.log)
}

// HandleGetTrades handles GET /api/trades
func (h *TradingHandlers) HandleGetTrades(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		utils.WriteError(w, err, h.log)
		return
	}
	page := utils.QueryPagination(r)

	trades, total, err := h.service.GetTrades(r.Context(), filter, page)
	if err != nil {
		utils.WriteError(w, err, h.log)
		return
	}

	utils.WriteData(w, http.StatusOK, trades, map[string]interface{}{
		"total":     total,
		"page":      page.Page,
		"page_size": page.PageSize,
	}, h.log)
}

// HandleGetTrade handles GET /api/trades/{id}
func (h *TradingHandlers) HandleGetTrade(w http.ResponseWriter, r *http.Request) {
	id, err := utils.URLParamID(r, "id")
	if err != nil {
		utils.WriteError(w, err, h.log)
		return
	}

	trade, err := h.service.GetTradeByID(r.Context(), id)
	if err != nil {
		utils.WriteError(w, err, h.log)
		return
	}

	utils.WriteData(w, http.StatusOK, trade, nil, h.log)
}

// HandleProfitSummary handles GET /api/trades/profit-summary
func (h *TradingHandlers) HandleProfitSummary(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		utils.WriteError(w, err, h.log)
		return
	}

	summaries, err := h.service.ProfitSummary(r.Context(), filter)
	if err != nil {
		utils.WriteError(w, err, h.log)
		return
	}

	utils.WriteData(w, http.StatusOK, summaries, nil, h.log)
}

// HandleSellPosition handles POST /api/positions/{id}/sell
func (h *TradingHandlers) HandleSellPosition(w http.ResponseWriter, r *http.Request) {
	positionID, err := utils.URLParamID(r, "id")
	if err != nil {
		utils.WriteError(w, err, h.log)
		return
	}

	var req trading.SellPositionRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, err, h.log)
		return
	}

	trade, err := h.service.SellPosition(r.Context(), positionID, req)
	if err != nil {
		utils.WriteError(w, err, h.log)
		return
	}

	utils.WriteData(w, http.StatusCreated, trade, nil, h.log)
}

func parseFilter(r *http.Request) (trading.TradeFilter, error) {
	var filter trading.TradeFilter
	var err error

	q := r.URL.Query()
	filter.Status = domain.TradeStatus(q.Get("status"))
	filter.Type = domain.TradeType(q.Get("type"))

	if filter.CounterpartyID, err = utils.QueryInt64(r, "counterparty_id"); err != nil {
		return filter, err
	}
	if filter.Currency, err = utils.QueryCurrency(r, "currency"); err != nil {
		return filter, err
	}
	if filter.BaseCurrency, err = utils.QueryCurrency(r, "base_currency"); err != nil {
		return filter, err
	}
	if filter.From, err = utils.QueryDate(r, "from"); err != nil {
		return filter, err
	}
	if filter.To, err = utils.QueryDateEnd(r, "to"); err != nil {
		return filter, err
	}

	return filter, nil
}
