package risk

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perpsim/internal/ledger"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func dp(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

// stubFeed is a fixed price table.
type stubFeed map[string]decimal.Decimal

func (f stubFeed) GetPrice(symbol string) decimal.Decimal {
	return f[symbol]
}

// closeCapture records forced-close notifications.
type closeCapture struct {
	reasons []ledger.CloseReason
}

func (c *closeCapture) NotifyClose(pos *ledger.Position, price, pnl decimal.Decimal, reason ledger.CloseReason) {
	c.reasons = append(c.reasons, reason)
}

func newAccount(t *testing.T) *ledger.Ledger {
	t.Helper()
	return ledger.New(ledger.DefaultSymbols, ledger.InitialBalance)
}

func lastClose(t *testing.T, l *ledger.Ledger) ledger.Transaction {
	t.Helper()
	txs := l.Transactions(1)
	require.NotEmpty(t, txs)
	require.Equal(t, ledger.TxClose, txs[0].Type)
	return txs[0]
}

func TestLiquidationTriggerAtExactPrice(t *testing.T) {
	l := newAccount(t)
	require.NoError(t, l.Open("BTCUSDT", ledger.Long, d("1000"), 10, d("100"), nil, nil))

	m := NewMonitor(l, stubFeed{"BTCUSDT": d("90")}, time.Second)
	m.Sweep()

	assert.Nil(t, l.Position("BTCUSDT"))
	tx := lastClose(t, l)
	assert.Equal(t, ledger.ReasonLiquidation, tx.Reason)
	assert.True(t, tx.Price.Equal(d("90")))
}

func TestStopLossTakesPrecedenceOverLiquidation(t *testing.T) {
	l := newAccount(t)
	// Entry 100 at 10x: liquidation at 90. A straight drop to 80 satisfies
	// both the stop at 95 and liquidation, but the stop is checked first.
	require.NoError(t, l.Open("BTCUSDT", ledger.Long, d("1000"), 10, d("100"), dp("95"), dp("110")))

	m := NewMonitor(l, stubFeed{"BTCUSDT": d("80")}, time.Second)
	m.Sweep()

	tx := lastClose(t, l)
	assert.Equal(t, ledger.ReasonStopLoss, tx.Reason)
	assert.True(t, tx.Price.Equal(d("80")), "fills at the trigger price, not the stop level")
}

func TestTakeProfitLong(t *testing.T) {
	l := newAccount(t)
	require.NoError(t, l.Open("BTCUSDT", ledger.Long, d("1000"), 10, d("100"), dp("95"), dp("110")))

	m := NewMonitor(l, stubFeed{"BTCUSDT": d("110")}, time.Second)
	m.Sweep()

	assert.Equal(t, ledger.ReasonTakeProfit, lastClose(t, l).Reason)
}

func TestShortTriggersMirrored(t *testing.T) {
	cases := []struct {
		name   string
		sl, tp *decimal.Decimal
		price  decimal.Decimal
		reason ledger.CloseReason
	}{
		{"stop above entry", dp("105"), dp("80"), d("106"), ledger.ReasonStopLoss},
		{"take profit below entry", dp("120"), dp("90"), d("89"), ledger.ReasonTakeProfit},
		{"liquidation at entry plus move", nil, nil, d("110"), ledger.ReasonLiquidation},
		{"stop precedence over liquidation", dp("105"), nil, d("115"), ledger.ReasonStopLoss},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			l := newAccount(t)
			require.NoError(t, l.Open("ETHUSDT", ledger.Short, d("1000"), 10, d("100"), tc.sl, tc.tp))

			m := NewMonitor(l, stubFeed{"ETHUSDT": tc.price}, time.Second)
			m.Sweep()

			assert.Equal(t, tc.reason, lastClose(t, l).Reason)
		})
	}
}

func TestNoTriggerInsideBand(t *testing.T) {
	l := newAccount(t)
	require.NoError(t, l.Open("BTCUSDT", ledger.Long, d("1000"), 10, d("100"), dp("95"), dp("110")))

	m := NewMonitor(l, stubFeed{"BTCUSDT": d("100")}, time.Second)
	m.Sweep()

	assert.NotNil(t, l.Position("BTCUSDT"))
}

func TestMissingPriceSkipsSymbol(t *testing.T) {
	l := newAccount(t)
	require.NoError(t, l.Open("BTCUSDT", ledger.Long, d("1000"), 10, d("100"), dp("95"), nil))

	// No price at all: the position must survive even though any price
	// below 95 would stop it out.
	m := NewMonitor(l, stubFeed{}, time.Second)
	m.Sweep()

	assert.NotNil(t, l.Position("BTCUSDT"))
}

func TestSweepEvaluatesEverySymbol(t *testing.T) {
	l := newAccount(t)
	require.NoError(t, l.Open("BTCUSDT", ledger.Long, d("1000"), 10, d("100"), dp("95"), nil))
	require.NoError(t, l.Open("ETHUSDT", ledger.Long, d("1000"), 10, d("2000"), dp("1900"), nil))
	require.NoError(t, l.Open("SOLUSDT", ledger.Long, d("1000"), 10, d("150"), nil, nil))

	capture := &closeCapture{}
	m := NewMonitor(l, stubFeed{
		"BTCUSDT": d("94"),   // stop
		"ETHUSDT": d("1850"), // stop
		"SOLUSDT": d("151"),  // no trigger
	}, time.Second)
	m.SetNotifier(capture)
	m.Sweep()

	// The first trigger must not short-circuit the rest of the batch.
	assert.Nil(t, l.Position("BTCUSDT"))
	assert.Nil(t, l.Position("ETHUSDT"))
	assert.NotNil(t, l.Position("SOLUSDT"))
	assert.Len(t, capture.reasons, 2)
}

func TestEvaluateClosedPositionIsHarmless(t *testing.T) {
	l := newAccount(t)
	require.NoError(t, l.Open("BTCUSDT", ledger.Long, d("1000"), 10, d("100"), dp("95"), nil))

	m := NewMonitor(l, stubFeed{"BTCUSDT": d("90")}, time.Second)
	m.Evaluate("BTCUSDT", d("90"))
	balanceAfter := l.Balance()

	// Second evaluation sees no position and does nothing.
	m.Evaluate("BTCUSDT", d("90"))
	assert.True(t, l.Balance().Equal(balanceAfter))
	assert.Len(t, l.Transactions(0), 2)
}

func TestTriggerPure(t *testing.T) {
	pos := &ledger.Position{
		Side:       ledger.Long,
		EntryPrice: d("100"),
		Leverage:   10,
		StopLoss:   dp("95"),
		TakeProfit: dp("110"),
	}

	reason, fired := Trigger(pos, d("95"))
	assert.True(t, fired)
	assert.Equal(t, ledger.ReasonStopLoss, reason)

	reason, fired = Trigger(pos, d("110"))
	assert.True(t, fired)
	assert.Equal(t, ledger.ReasonTakeProfit, reason)

	_, fired = Trigger(pos, d("100"))
	assert.False(t, fired)

	// Without a stop, the same drop liquidates instead.
	pos.StopLoss = nil
	reason, fired = Trigger(pos, d("90"))
	assert.True(t, fired)
	assert.Equal(t, ledger.ReasonLiquidation, reason)
}
