package settlement

import (
	"github.com/aristath/sarraf/internal/domain"
	"github.com/shopspring/decimal"
)

// Allocation is a stored settlement allocation together with the state of the
// receipt that produced it.
type Allocation struct {
	domain.TradeSettlement
	ReceiptDeleted bool `json:"receipt_deleted"`
}

var one = decimal.NewFromInt(1)

// ComputeProgress returns, per trade, the fraction of each leg that live
// allocations have extinguished. Allocations of deleted receipts and
// allocations of trades not in trades are ignored. It reads its inputs only.
func ComputeProgress(trades []domain.Trade, allocations []Allocation) map[int64]domain.SettlementProgress {
	type legs struct {
		base  decimal.Decimal
		quote decimal.Decimal
	}

	settled := make(map[int64]legs, len(trades))
	for _, a := range allocations {
		if a.ReceiptDeleted {
			continue
		}
		l := settled[a.TradeID]
		switch a.SettlementType {
		case domain.SettlementBase:
			l.base = l.base.Add(a.SettledAmount)
		case domain.SettlementQuote:
			l.quote = l.quote.Add(a.SettledAmount)
		}
		settled[a.TradeID] = l
	}

	out := make(map[int64]domain.SettlementProgress, len(trades))
	for _, t := range trades {
		p := domain.SettlementProgress{
			TradeID:         t.ID,
			BaseObligation:  t.Amount,
			QuoteObligation: t.TotalValue,
		}

		// a matched BUY_SELL never carries an open obligation
		if t.TradeType == domain.TradeTypeBuySell {
			p.BaseSettled = t.Amount
			p.QuoteSettled = t.TotalValue
			p.BaseProgress = one
			p.QuoteProgress = one
			out[t.ID] = p
			continue
		}

		l := settled[t.ID]
		p.BaseSettled = l.base
		p.QuoteSettled = l.quote
		p.BaseProgress = fraction(l.base, t.Amount)
		p.QuoteProgress = fraction(l.quote, t.TotalValue)
		out[t.ID] = p
	}

	return out
}

func fraction(settled, obligation decimal.Decimal) decimal.Decimal {
	if !obligation.IsPositive() {
		return one
	}
	f := settled.Div(obligation)
	if f.GreaterThan(one) {
		return one
	}
	if f.IsNegative() {
		return decimal.Zero
	}
	return f
}
