package risk

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"perpsim/internal/ledger"
)

// ═══════════════════════════════════════════════════════════════════════════════
// RISK MONITOR - Forced-close trigger evaluation
// ═══════════════════════════════════════════════════════════════════════════════
//
// Per symbol, first match wins:
//   1. stop-loss
//   2. take-profit
//   3. liquidation
//
// The trigger price is used as the fill price; no slippage model.
//
// ═══════════════════════════════════════════════════════════════════════════════

// PriceSource supplies the last trade price per symbol. Zero means no price
// is available yet.
type PriceSource interface {
	GetPrice(symbol string) decimal.Decimal
}

// CloseNotifier is told about every forced close (Telegram, UI).
type CloseNotifier interface {
	NotifyClose(pos *ledger.Position, price, pnl decimal.Decimal, reason ledger.CloseReason)
}

// Monitor scans open positions against live prices and issues forced closes
// through the ledger. It is driven two ways: per-tick via Evaluate, and by a
// periodic full sweep that catches symbols whose stream went quiet.
type Monitor struct {
	mu       sync.Mutex
	ledger   *ledger.Ledger
	feed     PriceSource
	interval time.Duration
	notifier CloseNotifier
	running  bool
	stopCh   chan struct{}
}

// NewMonitor creates a monitor sweeping at the given interval.
func NewMonitor(l *ledger.Ledger, feed PriceSource, interval time.Duration) *Monitor {
	return &Monitor{
		ledger:   l,
		feed:     feed,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// SetNotifier sets the forced-close callback.
func (m *Monitor) SetNotifier(n CloseNotifier) {
	m.notifier = n
}

// Start begins the sweep loop.
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	m.running = true
	m.mu.Unlock()

	go m.sweepLoop()
	log.Info().Dur("interval", m.interval).Msg("⚡ Risk monitor started")
}

// Stop stops the sweep loop.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	m.running = false
	close(m.stopCh)
	log.Info().Msg("Risk monitor stopped")
}

func (m *Monitor) sweepLoop() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Sweep evaluates every supported symbol. One symbol triggering never skips
// the rest of the batch.
func (m *Monitor) Sweep() {
	for _, symbol := range m.ledger.Symbols() {
		m.Evaluate(symbol, m.feed.GetPrice(symbol))
	}
}

// Evaluate checks a single symbol at the given price and force-closes its
// position when a trigger fires. Symbols without a price or a position are
// skipped. A close that fails because the position is already gone (closed
// between read and act) is swallowed.
func (m *Monitor) Evaluate(symbol string, price decimal.Decimal) {
	if !price.IsPositive() {
		return
	}
	pos := m.ledger.Position(symbol)
	if pos == nil {
		return
	}

	reason, fired := Trigger(pos, price)
	if !fired {
		return
	}

	pnl := pos.UnrealizedPnL(price)
	if err := m.ledger.Close(symbol, price, reason); err != nil {
		if !errors.Is(err, ledger.ErrNoOpenPosition) {
			log.Warn().Err(err).Str("symbol", symbol).Msg("Forced close failed")
		} else {
			log.Debug().Str("symbol", symbol).Msg("Position already closed, trigger skipped")
		}
		return
	}

	log.Info().
		Str("symbol", symbol).
		Str("reason", string(reason)).
		Str("price", price.String()).
		Str("pnl", pnl.StringFixed(2)).
		Msg("🚨 Trigger fired")

	if m.notifier != nil {
		m.notifier.NotifyClose(pos, price, pnl, reason)
	}
}

// Trigger decides whether price force-closes pos and with which reason.
// Pure function; the precedence order is fixed.
func Trigger(pos *ledger.Position, price decimal.Decimal) (ledger.CloseReason, bool) {
	if pos.Side == ledger.Short {
		if pos.StopLoss != nil && price.GreaterThanOrEqual(*pos.StopLoss) {
			return ledger.ReasonStopLoss, true
		}
		if pos.TakeProfit != nil && price.LessThanOrEqual(*pos.TakeProfit) {
			return ledger.ReasonTakeProfit, true
		}
		if price.GreaterThanOrEqual(pos.LiquidationPrice()) {
			return ledger.ReasonLiquidation, true
		}
		return "", false
	}

	if pos.StopLoss != nil && price.LessThanOrEqual(*pos.StopLoss) {
		return ledger.ReasonStopLoss, true
	}
	if pos.TakeProfit != nil && price.GreaterThanOrEqual(*pos.TakeProfit) {
		return ledger.ReasonTakeProfit, true
	}
	if price.LessThanOrEqual(pos.LiquidationPrice()) {
		return ledger.ReasonLiquidation, true
	}
	return "", false
}
