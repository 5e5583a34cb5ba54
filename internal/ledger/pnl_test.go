package ledger

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestUnrealizedPnL(t *testing.T) {
	long := &Position{Side: Long, EntryPrice: d("100"), Quantity: d("1")}
	assert.True(t, long.UnrealizedPnL(d("110")).Equal(d("10")))
	assert.True(t, long.UnrealizedPnL(d("90")).Equal(d("-10")))
	assert.True(t, long.UnrealizedPnL(d("100")).IsZero())

	short := &Position{Side: Short, EntryPrice: d("100"), Quantity: d("1")}
	assert.True(t, short.UnrealizedPnL(d("110")).Equal(d("-10")))
	assert.True(t, short.UnrealizedPnL(d("90")).Equal(d("10")))
}

func TestLiquidationPrice(t *testing.T) {
	long := &Position{Side: Long, EntryPrice: d("100"), Leverage: 10}
	assert.True(t, long.LiquidationPrice().Equal(d("90")), "long liq = %s", long.LiquidationPrice())

	short := &Position{Side: Short, EntryPrice: d("100"), Leverage: 10}
	assert.True(t, short.LiquidationPrice().Equal(d("110")))

	// 1x: the entire entry move wipes the margin.
	flat := &Position{Side: Long, EntryPrice: d("100"), Leverage: 1}
	assert.True(t, flat.LiquidationPrice().IsZero())
}

func TestNotional(t *testing.T) {
	pos := &Position{Quantity: d("0.2")}
	assert.True(t, pos.Notional(d("50000")).Equal(d("10000")))
}

func TestSummarize(t *testing.T) {
	positions := map[string]*Position{
		"BTCUSDT": {Side: Long, EntryPrice: d("100"), Quantity: d("1"), Margin: d("100")},
		"ETHUSDT": {Side: Short, EntryPrice: d("2000"), Quantity: d("0.5"), Margin: d("200")},
	}
	prices := map[string]decimal.Decimal{
		"BTCUSDT": d("110"),  // +10
		"ETHUSDT": d("2100"), // -50
	}

	s := Summarize(d("1000"), positions, prices)
	assert.True(t, s.UsedMargin.Equal(d("300")))
	assert.True(t, s.TotalPnL.Equal(d("-40")))
	assert.True(t, s.Equity.Equal(d("1260")))
}

func TestSummarizeMissingPrice(t *testing.T) {
	positions := map[string]*Position{
		"BTCUSDT": {Side: Long, EntryPrice: d("100"), Quantity: d("1"), Margin: d("100")},
	}

	// No price: margin still reserved, pnl contribution zero.
	s := Summarize(d("1000"), positions, map[string]decimal.Decimal{})
	assert.True(t, s.UsedMargin.Equal(d("100")))
	assert.True(t, s.TotalPnL.IsZero())
	assert.True(t, s.Equity.Equal(d("1100")))
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(d("1000"), map[string]*Position{}, nil)
	assert.True(t, s.Equity.Equal(d("1000")))
	assert.True(t, s.TotalPnL.IsZero())
	assert.True(t, s.UsedMargin.IsZero())
}
