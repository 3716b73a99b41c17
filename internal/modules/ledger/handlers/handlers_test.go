package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aristath/sarraf/internal/database"
	"github.com/aristath/sarraf/internal/domain"
	"github.com/aristath/sarraf/internal/modules/counterparts"
	"github.com/aristath/sarraf/internal/modules/journal"
	testingpkg "github.com/aristath/sarraf/internal/testing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testEnv struct {
	router http.Handler
	db     *sql.DB
	party  int64
}

// setupTestEnv builds a router over a migrated database holding one party,
// one receipt-style journal entry and the matching statement line.
func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, "ledger_handlers")
	t.Cleanup(cleanup)

	logger := zerolog.New(nil).Level(zerolog.Disabled)
	conn := db.Conn()
	clock := testingpkg.NewClock()

	j := journal.New(journal.NewRepository(conn, logger), clock, &testingpkg.SequenceIDs{}, nil, logger)
	ledger := counterparts.NewLedger(conn, clock, logger)
	directory := counterparts.NewDirectory(conn, clock, logger)

	party := testingpkg.InsertParty(t, conn, "Karimi Exchange")
	amount := decimal.RequireFromString("500")

	err := database.WithTransaction(context.Background(), conn, func(tx *sql.Tx) error {
		if _, err := j.PostEntry(context.Background(), tx, journal.EntryInput{
			EntryType:   journal.EntryReceipt,
			Description: "Receipt from Karimi",
			Lines: []journal.Line{
				journal.Debit(journal.AccountCashBank, domain.CurrencyAED, amount),
				journal.Credit(journal.AccountReceivable, domain.CurrencyAED, amount),
			},
		}); err != nil {
			return err
		}
		_, err := ledger.UpdateBalance(context.Background(), tx, counterparts.BalanceUpdate{
			CounterpartID: party,
			Currency:      domain.CurrencyAED,
			Amount:        amount,
			Type:          domain.TransactionReceipt,
			Description:   "Receipt from Karimi",
		})
		return err
	})
	require.NoError(t, err)

	router := chi.NewRouter()
	NewHandler(conn, j, ledger, directory, logger).RegisterRoutes(router)

	return &testEnv{router: router, db: conn, party: party}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	return response
}

func TestHandleGetBalances(t *testing.T) {
	env := setupTestEnv(t)

	w := env.do(t, "GET", "/journal/balances?currency=AED", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	response := decode(t, w)
	assert.Contains(t, response, "metadata")
	balances := response["data"].([]interface{})
	require.Len(t, balances, 2)

	cash := balances[0].(map[string]interface{})
	assert.Equal(t, journal.AccountCashBank.Code, cash["account_code"])
	assert.Equal(t, "500", cash["balance"])

	w = env.do(t, "GET", "/journal/balances?currency=USD", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleGetEntries(t *testing.T) {
	env := setupTestEnv(t)

	w := env.do(t, "GET", "/journal/entries?entry_type=RECEIPT&page_size=10", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	response := decode(t, w)
	entries := response["data"].([]interface{})
	require.Len(t, entries, 1)
	metadata := response["metadata"].(map[string]interface{})
	assert.Equal(t, float64(1), metadata["total"])
	assert.Equal(t, float64(10), metadata["page_size"])

	entry := entries[0].(map[string]interface{})
	assert.Equal(t, "JE-000001", entry["entry_number"])
	assert.Len(t, entry["lines"], 2)
}

func TestHandleGetEntry(t *testing.T) {
	env := setupTestEnv(t)

	w := env.do(t, "GET", "/journal/entries/1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	data := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "RECEIPT", data["entry_type"])

	w = env.do(t, "GET", "/journal/entries/99", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, decode(t, w)["error"], "not found")

	w = env.do(t, "GET", "/journal/entries/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleParties(t *testing.T) {
	env := setupTestEnv(t)

	w := env.do(t, "POST", "/parties", map[string]string{"name": "Dubai Desk", "phone": "+971"})
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "Dubai Desk", created["name"])

	w = env.do(t, "POST", "/parties", map[string]string{"name": ""})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, "POST", "/parties", map[string]string{"name": "X", "nickname": "Y"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, "GET", "/parties", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["data"], 2)

	w = env.do(t, "GET", "/parties/99", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleGetPartyBalancesAndStatement(t *testing.T) {
	env := setupTestEnv(t)

	w := env.do(t, "GET", "/parties/1/balances", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	balances := decode(t, w)["data"].([]interface{})
	require.Len(t, balances, 1)
	assert.Equal(t, "500", balances[0].(map[string]interface{})["balance"])

	w = env.do(t, "GET", "/parties/1/statement?currency=AED", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	lines := decode(t, w)["data"].([]interface{})
	require.Len(t, lines, 1)
	assert.Equal(t, "500", lines[0].(map[string]interface{})["credit_amount"])

	w = env.do(t, "GET", "/parties/1/statement?format=csv", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	records, err := csv.NewReader(w.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "balance_after", records[0][9])
	assert.Equal(t, "500", records[1][9])

	w = env.do(t, "GET", "/parties/1/statement/verify", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	for _, c := range decode(t, w)["data"].([]interface{}) {
		assert.Equal(t, true, c.(map[string]interface{})["ok"])
	}

	w = env.do(t, "GET", "/parties/42/statement", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleBankAccounts(t *testing.T) {
	env := setupTestEnv(t)

	w := env.do(t, "POST", "/bank-accounts", map[string]interface{}{
		"counterpart_id": env.party,
		"bank_name":      "Mellat",
		"account_number": "6104-3377",
		"currency":       "TOMAN",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	account := decode(t, w)["data"].(map[string]interface{})
	assert.Equal(t, float64(env.party), account["counterpart_id"])

	w = env.do(t, "GET", "/bank-accounts?counterpart_id=1", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["data"], 1)

	w = env.do(t, "GET", "/bank-accounts/1", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, "GET", "/bank-accounts/7", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouteIntegration(t *testing.T) {
	env := setupTestEnv(t)

	tests := []struct {
		name           string
		method         string
		path           string
		expectedStatus int
	}{
		{"get balances", "GET", "/journal/balances", http.StatusOK},
		{"get entries", "GET", "/journal/entries", http.StatusOK},
		{"get entry", "GET", "/journal/entries/1", http.StatusOK},
		{"get imbalances", "GET", "/journal/imbalances", http.StatusOK},
		{"get parties", "GET", "/parties", http.StatusOK},
		{"get party", "GET", "/parties/1", http.StatusOK},
		{"get party balances", "GET", "/parties/1/balances", http.StatusOK},
		{"get statement", "GET", "/parties/1/statement", http.StatusOK},
		{"verify statement", "GET", "/parties/1/statement/verify", http.StatusOK},
		{"get bank accounts", "GET", "/bank-accounts", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, tt.method, tt.path, nil)
			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}
