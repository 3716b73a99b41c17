package positions

import (
	"context"
	"database/sql"
	"testing"

	"github.com/aristath/sarraf/internal/domain"
	testingpkg "github.com/aristath/sarraf/internal/testing"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func setupBook(t *testing.T, policy Policy) (*Book, *sql.DB) {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, "positions")
	t.Cleanup(cleanup)
	return NewBook(db.Conn(), testingpkg.NewClock(), policy, zerolog.Nop()), db.Conn()
}

func open(t *testing.T, b *Book, db *sql.DB, amount, rate string) *domain.Position {
	t.Helper()
	tradeID := testingpkg.InsertTrade(t, db, "BUY", 0, amount, rate)
	pos, err := b.OpenPosition(context.Background(), db, tradeID, domain.CurrencyAED, dec(amount), dec(rate))
	require.NoError(t, err)
	return pos
}

func TestConsume_FIFOCostBasis(t *testing.T) {
	tests := []struct {
		name          string
		lots          [][2]string
		sell          string
		wantCost      string
		wantRemaining []string
	}{
		{
			name:          "partial first lot",
			lots:          [][2]string{{"1000", "3"}},
			sell:          "600",
			wantCost:      "1800",
			wantRemaining: []string{"400"},
		},
		{
			name:          "spans two lots",
			lots:          [][2]string{{"100", "3"}, {"100", "3.5"}},
			sell:          "150",
			wantCost:      "475",
			wantRemaining: []string{"0", "50"},
		},
		{
			name:          "exactly drains the pool",
			lots:          [][2]string{{"10", "2"}, {"5", "4"}},
			sell:          "15",
			wantCost:      "40",
			wantRemaining: []string{"0", "0"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, db := setupBook(t, Policy{})
			ctx := context.Background()

			var ids []int64
			for _, lot := range tt.lots {
				ids = append(ids, open(t, b, db, lot[0], lot[1]).ID)
			}

			got, err := b.Consume(ctx, db, domain.CurrencyAED, dec(tt.sell))
			require.NoError(t, err)
			assert.True(t, got.CostBasis.Equal(dec(tt.wantCost)), "cost basis %s", got.CostBasis)
			assert.True(t, got.Consumed.Equal(dec(tt.sell)))
			assert.True(t, got.Shortfall.IsZero())

			for i, id := range ids {
				pos, err := b.GetPosition(ctx, db, id)
				require.NoError(t, err)
				assert.True(t, pos.RemainingAmount.Equal(dec(tt.wantRemaining[i])), "lot %d remaining %s", i, pos.RemainingAmount)
				assert.True(t, pos.RemainingAmount.GreaterThanOrEqual(decimal.Zero))
				assert.True(t, pos.RemainingAmount.LessThanOrEqual(pos.OriginalAmount))
			}
		})
	}
}

func TestConsume_ShortSellPolicy(t *testing.T) {
	t.Run("disallowed leaves lots untouched", func(t *testing.T) {
		b, db := setupBook(t, Policy{AllowShortSell: false})
		pos := open(t, b, db, "100", "3")

		_, err := b.Consume(context.Background(), db, domain.CurrencyAED, dec("150"))
		require.ErrorIs(t, err, domain.ErrInsufficientPool)
		assert.ErrorIs(t, err, domain.ErrInsufficientInventory)

		got, err := b.GetPosition(context.Background(), db, pos.ID)
		require.NoError(t, err)
		assert.True(t, got.RemainingAmount.Equal(dec("100")))
	})

	t.Run("allowed records the shortfall", func(t *testing.T) {
		b, db := setupBook(t, Policy{AllowShortSell: true})
		open(t, b, db, "100", "3")

		got, err := b.Consume(context.Background(), db, domain.CurrencyAED, dec("150"))
		require.NoError(t, err)
		assert.True(t, got.Consumed.Equal(dec("100")))
		assert.True(t, got.Shortfall.Equal(dec("50")))
		assert.True(t, got.CostBasis.Equal(dec("300")))
		require.Len(t, got.Lots, 1)
	})

	t.Run("empty pool", func(t *testing.T) {
		b, db := setupBook(t, Policy{AllowShortSell: true})

		got, err := b.Consume(context.Background(), db, domain.CurrencyAED, dec("10"))
		require.NoError(t, err)
		assert.True(t, got.CostBasis.IsZero())
		assert.True(t, got.Shortfall.Equal(dec("10")))
		assert.Empty(t, got.Lots)
	})
}

func TestSellFromPosition(t *testing.T) {
	b, db := setupBook(t, Policy{})
	ctx := context.Background()
	older := open(t, b, db, "100", "3")
	newer := open(t, b, db, "100", "4")

	got, err := b.SellFromPosition(ctx, db, newer.ID, dec("40"))
	require.NoError(t, err)
	assert.True(t, got.CostBasis.Equal(dec("160")))

	// FIFO order is bypassed: the older lot is untouched
	pos, err := b.GetPosition(ctx, db, older.ID)
	require.NoError(t, err)
	assert.True(t, pos.RemainingAmount.Equal(dec("100")))

	_, err = b.SellFromPosition(ctx, db, newer.ID, dec("61"))
	assert.ErrorIs(t, err, domain.ErrInsufficientPositionAmount)
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = b.SellFromPosition(ctx, db, 999, dec("1"))
	assert.ErrorIs(t, err, domain.ErrPositionNotFound)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = b.SellFromPosition(ctx, db, newer.ID, dec("0"))
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestGetOutstandingPositions(t *testing.T) {
	b, db := setupBook(t, Policy{})
	ctx := context.Background()
	open(t, b, db, "100", "3")
	open(t, b, db, "300", "4")
	drained := open(t, b, db, "50", "9")

	_, err := b.SellFromPosition(ctx, db, drained.ID, dec("50"))
	require.NoError(t, err)

	out, err := b.GetOutstandingPositions(ctx, "")
	require.NoError(t, err)
	assert.Len(t, out.Positions, 2)
	require.Len(t, out.Summaries, 1)

	summary := out.Summaries[0]
	assert.Equal(t, domain.CurrencyAED, summary.Currency)
	assert.Equal(t, 2, summary.Lots)
	assert.True(t, summary.TotalRemaining.Equal(dec("400")))
	assert.True(t, summary.WeightedAverageRate.Equal(dec("3.75")), "weighted rate %s", summary.WeightedAverageRate)

	toman, err := b.GetOutstandingPositions(ctx, domain.CurrencyToman)
	require.NoError(t, err)
	assert.Empty(t, toman.Positions)
	assert.Empty(t, toman.Summaries)
}
