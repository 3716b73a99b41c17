package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aristath/sarraf/internal/database"
	"github.com/aristath/sarraf/internal/domain"
	"github.com/aristath/sarraf/internal/events"
	"github.com/aristath/sarraf/internal/modules/counterparts"
	"github.com/aristath/sarraf/internal/modules/receipts"
	"github.com/aristath/sarraf/internal/modules/settlement"
	"github.com/aristath/sarraf/internal/modules/trading"
	testingpkg "github.com/aristath/sarraf/internal/testing"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupRouter seeds one open BUY trade and one unprocessed TOMAN payment
// that covers its quote leg exactly.
func setupRouter(t *testing.T) http.Handler {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, "settlement_handlers")
	t.Cleanup(cleanup)

	logger := zerolog.New(nil).Level(zerolog.Disabled)
	conn := db.Conn()
	clock := testingpkg.NewClock()
	receiptRepo := receipts.NewRepository(conn, logger)

	engine := settlement.NewEngine(settlement.Deps{
		LedgerDB: conn,
		Gate:     database.NewGate(),
		Repo:     settlement.NewRepository(conn, logger),
		Trades:   trading.NewTradeRepository(conn, logger),
		Receipts: receiptRepo,
		Owners:   counterparts.NewDirectory(conn, clock, logger),
		Events:   events.NewManager(events.NewBus(logger), clock, &testingpkg.SequenceIDs{}, logger),
		Clock:    clock,
	}, logger)

	party := testingpkg.InsertParty(t, conn, "Karimi Exchange")
	testingpkg.InsertTrade(t, conn, "BUY", party, "1000", "3")

	now := clock.Now()
	require.NoError(t, receiptRepo.Insert(context.Background(), conn, &domain.Receipt{
		Currency:    domain.CurrencyToman,
		Amount:      decimal.RequireFromString("3000"),
		Obligor:     domain.PartyReceipt{Direction: domain.DirectionPay, TradingPartyID: party},
		ReceiptDate: now,
		CreatedAt:   now,
	}))

	router := chi.NewRouter()
	NewHandler(engine, logger).RegisterRoutes(router)
	return router
}

func post(t *testing.T, router http.Handler, path string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", path, nil))
	var response map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	return w, response
}

func TestHandleProcessReceipt(t *testing.T) {
	router := setupRouter(t)

	w, response := post(t, router, "/settlement/receipts/1/process")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), response["metadata"].(map[string]interface{})["allocations"])

	data := response["data"].(map[string]interface{})
	assert.Equal(t, float64(1), data["receipt_id"])
	applications := data["applications"].([]interface{})
	require.Len(t, applications, 1)
	assert.Equal(t, "3000", applications[0].(map[string]interface{})["applied"])

	// The receipt already carries allocations
	w, response = post(t, router, "/settlement/receipts/1/process")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, response["error"], "already")

	w, _ = post(t, router, "/settlement/receipts/99/process")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = post(t, router, "/settlement/receipts/zero/process")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleReprocess(t *testing.T) {
	router := setupRouter(t)

	w, _ := post(t, router, "/settlement/receipts/1/process")
	require.Equal(t, http.StatusOK, w.Code)

	// Rebuilding from scratch lands on the same single allocation
	for i := 0; i < 2; i++ {
		w, response := post(t, router, "/settlement/reprocess")
		require.Equal(t, http.StatusOK, w.Code)
		data := response["data"].(map[string]interface{})
		assert.Equal(t, float64(1), data["receipts"])
		assert.Equal(t, float64(1), data["allocations"])
		assert.Equal(t, float64(1), data["allocations_cleared"])
	}
}
