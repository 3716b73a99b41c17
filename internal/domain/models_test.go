package domain

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestCurrency(t *testing.T) {
	assert.True(t, CurrencyAED.Valid())
	assert.True(t, CurrencyToman.Valid())
	assert.False(t, Currency("USD").Valid())
	assert.False(t, Currency("").Valid())

	assert.Equal(t, CurrencyToman, CurrencyAED.Other())
	assert.Equal(t, CurrencyAED, CurrencyToman.Other())
}

func TestTrade_DeriveStatus(t *testing.T) {
	tests := []struct {
		name        string
		baseSettled string
		quoteSettle string
		want        TradeStatus
		wantBase    bool
		wantQuote   bool
	}{
		{name: "nothing settled", baseSettled: "0", quoteSettle: "0", want: TradeStatusPending},
		{name: "base leg started", baseSettled: "10", quoteSettle: "0", want: TradeStatusPartial},
		{name: "quote leg started", baseSettled: "0", quoteSettle: "1", want: TradeStatusPartial},
		{name: "base covered only", baseSettled: "100", quoteSettle: "0", want: TradeStatusPartial, wantBase: true},
		{name: "both covered", baseSettled: "100", quoteSettle: "300", want: TradeStatusCompleted, wantBase: true, wantQuote: true},
		{name: "over-settled", baseSettled: "150", quoteSettle: "400", want: TradeStatusCompleted, wantBase: true, wantQuote: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trade := &Trade{
				Amount:             dec("100"),
				TotalValue:         dec("300"),
				BaseSettledAmount:  dec(tt.baseSettled),
				QuoteSettledAmount: dec(tt.quoteSettle),
			}
			assert.Equal(t, tt.want, trade.DeriveStatus())
			assert.Equal(t, tt.wantBase, trade.IsBaseFullySettled)
			assert.Equal(t, tt.wantQuote, trade.IsQuoteFullySettled)
		})
	}
}

func TestTrade_UnsettledAndProfit(t *testing.T) {
	profit := dec("42")
	trade := &Trade{
		QuoteCurrency:      CurrencyToman,
		Amount:             dec("100"),
		TotalValue:         dec("300"),
		BaseSettledAmount:  dec("40"),
		QuoteSettledAmount: dec("100"),
		ProfitToman:        &profit,
	}

	assert.True(t, trade.BaseUnsettled().Equal(dec("60")))
	assert.True(t, trade.QuoteUnsettled().Equal(dec("200")))
	require.NotNil(t, trade.Profit())
	assert.True(t, trade.Profit().Equal(profit))

	trade.QuoteCurrency = CurrencyAED
	assert.Nil(t, trade.Profit())
}

func TestTrade_SettlementTracked(t *testing.T) {
	tests := []struct {
		tradeType TradeType
		status    TradeStatus
		want      bool
	}{
		{TradeTypeBuy, TradeStatusPending, true},
		{TradeTypeSell, TradeStatusPartial, true},
		{TradeTypeBuySell, TradeStatusCompleted, false},
		{TradeTypeBuy, TradeStatusCancelled, false},
	}

	for _, tt := range tests {
		trade := &Trade{TradeType: tt.tradeType, Status: tt.status}
		assert.Equal(t, tt.want, trade.SettlementTracked(), "%s/%s", tt.tradeType, tt.status)
	}
}

func TestReceipt_Kind(t *testing.T) {
	transfer := &Receipt{Obligor: TomanTransfer{PayerID: 1, ReceiverAccountID: 2}}
	party := &Receipt{Obligor: PartyReceipt{Direction: DirectionReceive, TradingPartyID: 3}}

	assert.Equal(t, ReceiptKindTransfer, transfer.Kind())
	assert.Equal(t, ReceiptKindParty, party.Kind())
}

func TestErrorCategories(t *testing.T) {
	tests := []struct {
		err      error
		category error
		not      error
	}{
		{ErrTradeNotFound, ErrNotFound, ErrInvalidState},
		{ErrReceiptAlreadyDeleted, ErrInvalidState, ErrNotFound},
		{ErrInsufficientPool, ErrInsufficientInventory, ErrInvalidState},
		{ErrUnbalancedEntry, ErrInvariant, ErrValidation},
		{Invalid("amount must be positive"), ErrValidation, ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.True(t, errors.Is(tt.err, tt.category))
			assert.False(t, errors.Is(tt.err, tt.not))
		})
	}

	// Two categories at once
	assert.ErrorIs(t, ErrInsufficientPositionAmount, ErrInvalidState)
	assert.ErrorIs(t, ErrInsufficientPositionAmount, ErrInsufficientInventory)
}

func TestPagination(t *testing.T) {
	tests := []struct {
		name       string
		in         Pagination
		wantOffset int
		wantLimit  int
	}{
		{name: "zero value", in: Pagination{}, wantOffset: 0, wantLimit: DefaultPageSize},
		{name: "third page", in: Pagination{Page: 3, PageSize: 20}, wantOffset: 40, wantLimit: 20},
		{name: "clamped size", in: Pagination{Page: 2, PageSize: 10000}, wantOffset: MaxPageSize, wantLimit: MaxPageSize},
		{name: "negative page", in: Pagination{Page: -4, PageSize: 5}, wantOffset: 0, wantLimit: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantOffset, tt.in.Offset())
			assert.Equal(t, tt.wantLimit, tt.in.Limit())
		})
	}
}

func TestValidateStruct(t *testing.T) {
	type request struct {
		Currency Currency `validate:"required,oneof=AED TOMAN"`
		Notes    string   `validate:"max=5"`
	}

	require.NoError(t, ValidateStruct(request{Currency: CurrencyAED}))

	err := ValidateStruct(request{Currency: "USD", Notes: "too long"})
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "Currency must satisfy oneof=AED TOMAN")
	assert.Contains(t, err.Error(), "Notes must satisfy max=5")
}
