// Package handlers provides HTTP handlers for the books: the journal,
// trading parties with their balances and statements, and bank accounts.
package handlers

import (
	"database/sql"
	"fmt"
	"net/http"

	"github.com/aristath/sarraf/internal/modules/counterparts"
	"github.com/aristath/sarraf/internal/modules/journal"
	"github.com/aristath/sarraf/internal/utils"
	"github.com/rs/zerolog"
)

// Handler handles ledger HTTP requests
type Handler struct {
	ledgerDB  *sql.DB
	journal   *journal.Journal
	ledger    *counterparts.Ledger
	directory *counterparts.Directory
	log       zerolog.Logger
}

// NewHandler creates a new ledger handler
func NewHandler(
	ledgerDB *sql.DB,
	j *journal.Journal,
	ledger *counterparts.Ledger,
	directory *counterparts.Directory,
	log zerolog.Logger,
) *Handler {
	return &Handler{
		ledgerDB:  ledgerDB,
		journal:   j,
		ledger:    ledger,
		directory: directory,
		log:       log.With().Str("handler", "ledger").Logger(),
	}
}

// HandleGetBalances handles GET /api/journal/balances[?currency&account&as_of]
func (h *Handler) HandleGetBalances(w http.ResponseWriter, r *http.Request) {
	var filter journal.BalanceFilter
	var err error

	filter.AccountCode = r.URL.Query().Get("account")
	if filter.Currency, err = utils.QueryCurrency(r, "currency"); err != nil {
		utils.WriteError(w, err, h.log)
		return
	}
	if filter.AsOf, err = utils.QueryDateEnd(r, "as_of"); err != nil {
		utils.WriteError(w, err, h.log)
		return
	}

	balances, err := h.journal.GetBalances(r.Context(), filter)
	if err != nil {
		utils.WriteError(w, err, h.log)
		return
	}

	utils.WriteData(w, http.StatusOK, balances, nil, h.log)
}

// HandleGetEntries handles GET /api/journal/entries
func (h *Handler) HandleGetEntries(w http.ResponseWriter, r *http.Request) {
	var filter journal.EntryFilter
	var err error

	filter.EntryType = journal.EntryType(r.URL.Query().Get("entry_type"))
	if filter.TradeID, err = utils.QueryInt64(r, "trade_id"); err != nil {
		utils.WriteError(w, err, h.log)
		return
	}
	if filter.ReceiptID, err = utils.QueryInt64(r, "receipt_id"); err != nil {
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
	page := utils.QueryPagination(r)

	entries, total, err := h.journal.GetEntries(r.Context(), filter, page)
	if err != nil {
		utils.WriteError(w, err, h.log)
		return
	}

	utils.WriteData(w, http.StatusOK, entries, map[string]interface{}{
		"total":     total,
		"page":      page.Page,
		"page_size": page.PageSize,
	}, h.log)
}

// HandleGetEntry handles GET /api/journal/entries/{id}
func (h *Handler) HandleGetEntry(w http.ResponseWriter, r *http.Request) {
	id, err := utils.URLParamID(r, "id")
	if err != nil {
		utils.WriteError(w, err, h.log)
		return
	}

	entry, err := h.journal.GetEntry(r.Context(), id)
	if err != nil {
		utils.WriteError(w, err, h.log)
		return
	}

	utils.WriteData(w, http.StatusOK, entry, nil, h.log)
}

// HandleGetImbalances handles GET /api/journal/imbalances
func (h *Handler) HandleGetImbalances(w http.ResponseWriter, r *http.Request) {
	imbalances, err := h.journal.FindImbalances(r.Context())
	if err != nil {
		utils.WriteError(w, err, h.log)
		return
	}

	utils.WriteData(w, http.StatusOK, imbalances, map[string]interface{}{
		"balanced": len(imbalances) == 0,
	}, h.log)
}

// HandleCreateParty handles POST /api/parties
func (h *Handler) HandleCreateParty(w http.ResponseWriter, r *http.Request) {
	var req counterparts.CreatePartyRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, err, h.log)
		return
	}

	party, err := h.directory.CreateParty(r.Context(), req)
	if err != nil {
		utils.WriteError(w, err, h.log)
		return
	}

	utils.WriteData(w, http.StatusCreated, party, nil, h.log)
}

// HandleGetParties handles GET /api/parties
func (h *Handler) HandleGetParties(w http.ResponseWriter, r *http.Request) {
	parties, err := h.directory.ListParties(r.Context())
	if err != nil {
		utils.WriteError(w, err, h.log)
		return
	}

	utils.WriteData(w, http.StatusOK, parties, map[string]interface{}{
		"count": len(parties),
	}, h.log)
}

// HandleGetParty handles GET /api/parties/{id}
func (h *Handler) HandleGetParty(w http.ResponseWriter, r *http.Request) {
	id, err := utils.URLParamID(r, "id")
	if err != nil {
		utils.WriteError(w, err, h.log)
		return
	}

	party, err := h.directory.GetParty(r.Context(), id)
	if err != nil {
		utils.WriteError(w, err, h.log)
		return
	}

	utils.WriteData(w, http.StatusOK, party, nil, h.log)
}

// HandleGetPartyBalances handles GET /api/parties/{id}/balances
func (h *Handler) HandleGetPartyBalances(w http.ResponseWriter, r *http.Request) {
	id, ok := h.partyID(w, r)
	if !ok {
		return
	}

	balances, err := h.ledger.GetBalances(r.Context(), id)
	if err != nil {
		utils.WriteError(w, err, h.log)
		return
	}

	utils.WriteData(w, http.StatusOK, balances, nil, h.log)
}

// HandleGetStatement handles GET /api/parties/{id}/statement[?currency&from&to&format=csv]
func (h *Handler) HandleGetStatement(w http.ResponseWriter, r *http.Request) {
	id, ok := h.partyID(w, r)
	if !ok {
		return
	}

	filter := counterparts.StatementFilter{CounterpartID: id}
	var err error
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

	lines, err := h.ledger.GetStatement(r.Context(), filter)
	if err != nil {
		utils.WriteError(w, err, h.log)
		return
	}

	if r.URL.Query().Get("format") == "csv" {
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=statement_%d.csv", id))
		if err := counterparts.WriteStatementCSV(w, lines); err != nil {
			h.log.Error().Err(err).Int64("party_id", id).Msg("Failed to write statement CSV")
		}
		return
	}

	utils.WriteData(w, http.StatusOK, lines, map[string]interface{}{
		"count": len(lines),
	}, h.log)
}

// HandleVerifyStatement handles GET /api/parties/{id}/statement/verify?currency=AED
func (h *Handler) HandleVerifyStatement(w http.ResponseWriter, r *http.Request) {
	id, ok := h.partyID(w, r)
	if !ok {
		return
	}

	currency, err := utils.QueryCurrency(r, "currency")
	if err != nil {
		utils.WriteError(w, err, h.log)
		return
	}

	var checks []*counterparts.StatementCheck
	for _, c := range currenciesOrAll(currency) {
		check, err := h.ledger.VerifyStatement(r.Context(), id, c)
		if err != nil {
			utils.WriteError(w, err, h.log)
			return
		}
		checks = append(checks, check)
	}

	utils.WriteData(w, http.StatusOK, checks, nil, h.log)
}

// HandleCreateBankAccount handles POST /api/bank-accounts
func (h *Handler) HandleCreateBankAccount(w http.ResponseWriter, r *http.Request) {
	var req counterparts.CreateBankAccountRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, err, h.log)
		return
	}

	account, err := h.directory.CreateBankAccount(r.Context(), req)
	if err != nil {
		utils.WriteError(w, err, h.log)
		return
	}

	utils.WriteData(w, http.StatusCreated, account, nil, h.log)
}

// HandleGetBankAccounts handles GET /api/bank-accounts[?counterpart_id]
func (h *Handler) HandleGetBankAccounts(w http.ResponseWriter, r *http.Request) {
	counterpartID, err := utils.QueryInt64(r, "counterpart_id")
	if err != nil {
		utils.WriteError(w, err, h.log)
		return
	}

	accounts, err := h.directory.ListBankAccounts(r.Context(), counterpartID)
	if err != nil {
		utils.WriteError(w, err, h.log)
		return
	}

	utils.WriteData(w, http.StatusOK, accounts, nil, h.log)
}

// HandleGetBankAccount handles GET /api/bank-accounts/{id}
func (h *Handler) HandleGetBankAccount(w http.ResponseWriter, r *http.Request) {
	id, err := utils.URLParamID(r, "id")
	if err != nil {
		utils.WriteError(w, err, h.log)
		return
	}

	account, err := h.directory.GetBankAccount(r.Context(), h.ledgerDB, id)
	if err != nil {
		utils.WriteError(w, err, h.log)
		return
	}

	utils.WriteData(w, http.StatusOK, account, nil, h.log)
}

// partyID parses the route id and checks the party exists, writing the error response otherwise
func (h *Handler) partyID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := utils.URLParamID(r, "id")
	if err != nil {
		utils.WriteError(w, err, h.log)
		return 0, false
	}
	if _, err := h.directory.GetParty(r.Context(), id); err != nil {
		utils.WriteError(w, err, h.log)
		return 0, false
	}
	return id, true
}
