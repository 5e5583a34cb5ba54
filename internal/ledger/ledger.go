package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ═══════════════════════════════════════════════════════════════════════════════
// LEDGER - Paper account state & mutations
// ═══════════════════════════════════════════════════════════════════════════════
//
// Single owner of balance, position slots and the transaction log. Every
// mutation runs to completion under one mutex, so a forced close racing a
// manual close fails cleanly with ErrNoOpenPosition instead of corrupting
// the balance.
//
// ═══════════════════════════════════════════════════════════════════════════════

const (
	MinLeverage = 1
	MaxLeverage = 50
)

// InitialBalance is the USDT seed applied on first run and on reset.
var InitialBalance = decimal.NewFromInt(50000)

// DefaultSymbols is the standard instrument set. The ledger works with any
// finite symbol set; this is just the one the app ships with.
var DefaultSymbols = []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "DOGEUSDT", "ADAUSDT"}

// Ledger owns the paper account: cash balance, one position slot per
// supported symbol (nil = flat) and the newest-first transaction log.
type Ledger struct {
	mu           sync.Mutex
	symbols      []string
	seed         decimal.Decimal
	balance      decimal.Decimal
	positions    map[string]*Position
	transactions []Transaction
}

// New creates a ledger with empty position slots for the given symbols and
// the seed amount as starting balance.
func New(symbols []string, seed decimal.Decimal) *Ledger {
	l := &Ledger{
		symbols:   append([]string(nil), symbols...),
		seed:      seed,
		balance:   seed,
		positions: make(map[string]*Position, len(symbols)),
	}
	for _, s := range symbols {
		l.positions[s] = nil
	}
	return l
}

// Open opens a leveraged position. Validation order: margin, price, leverage,
// slot free, funds. The first failure wins and nothing is mutated. StopLoss
// and takeProfit are stored as given; their ordering relative to the entry
// price is deliberately not checked.
func (l *Ledger) Open(symbol string, side Side, margin decimal.Decimal, leverage int, price decimal.Decimal, stopLoss, takeProfit *decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	slot, ok := l.positions[symbol]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSymbol, symbol)
	}
	if !margin.IsPositive() {
		return ErrInvalidMargin
	}
	if !price.IsPositive() {
		return ErrPriceUnavailable
	}
	if leverage < MinLeverage || leverage > MaxLeverage {
		return ErrInvalidLeverage
	}
	if slot != nil {
		return ErrPositionAlreadyOpen
	}
	if margin.GreaterThan(l.balance) {
		return ErrInsufficientFunds
	}

	quantity := margin.Mul(decimal.NewFromInt(int64(leverage))).Div(price)
	now := time.Now().UTC()

	l.balance = l.balance.Sub(margin)
	l.positions[symbol] = &Position{
		Symbol:     symbol,
		Side:       side,
		Quantity:   quantity,
		EntryPrice: price,
		Leverage:   leverage,
		Margin:     margin,
		StopLoss:   cloneDecimal(stopLoss),
		TakeProfit: cloneDecimal(takeProfit),
		OpenedAt:   now,
	}

	txType := TxOpenLong
	if side == Short {
		txType = TxOpenShort
	}
	l.prepend(Transaction{
		ID:        uuid.NewString(),
		Type:      txType,
		Symbol:    symbol,
		Price:     price,
		Quantity:  quantity,
		Leverage:  leverage,
		Margin:    margin,
		Timestamp: now,
	})

	log.Info().
		Str("symbol", symbol).
		Str("side", string(side)).
		Str("margin", margin.StringFixed(2)).
		Int("leverage", leverage).
		Str("entry", price.String()).
		Msg("✅ Position opened")

	return nil
}

// Close closes the open position for symbol at the given fill price and
// releases margin plus realized pnl back to the balance. The release is not
// clamped: a loss beyond the margin drives the balance down accordingly.
func (l *Ledger) Close(symbol string, price decimal.Decimal, reason CloseReason) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !price.IsPositive() {
		return ErrPriceUnavailable
	}
	pos := l.positions[symbol]
	if pos == nil {
		return fmt.Errorf("%w: %s", ErrNoOpenPosition, symbol)
	}

	pnl := pos.UnrealizedPnL(price)
	l.balance = l.balance.Add(pos.Margin).Add(pnl)
	l.positions[symbol] = nil

	l.prepend(Transaction{
		ID:        uuid.NewString(),
		Type:      TxClose,
		Symbol:    symbol,
		Price:     price,
		Quantity:  pos.Quantity,
		PnL:       &pnl,
		Reason:    reason,
		Timestamp: time.Now().UTC(),
	})

	log.Info().
		Str("symbol", symbol).
		Str("side", string(pos.Side)).
		Str("exit", price.String()).
		Str("pnl", pnl.StringFixed(2)).
		Str("reason", string(reason)).
		Msg("📊 Position closed")

	return nil
}

// UpdateRisk replaces both risk fields wholesale; a nil value clears the
// corresponding trigger. No-op when the symbol has no open position. The
// values are not validated against side or entry price.
func (l *Ledger) UpdateRisk(symbol string, stopLoss, takeProfit *decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos := l.positions[symbol]
	if pos == nil {
		return
	}
	pos.StopLoss = cloneDecimal(stopLoss)
	pos.TakeProfit = cloneDecimal(takeProfit)
}

// Reset wipes the account back to its seeded state: balance restored, all
// slots flat, transaction log emptied. Irreversible.
func (l *Ledger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.balance = l.seed
	for s := range l.positions {
		l.positions[s] = nil
	}
	l.transactions = nil

	log.Info().Str("balance", l.seed.StringFixed(2)).Msg("🔄 Account reset")
}

// Balance returns the free cash balance (reserved margin excluded).
func (l *Ledger) Balance() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance
}

// Symbols returns the supported symbol set in its configured order.
func (l *Ledger) Symbols() []string {
	return append([]string(nil), l.symbols...)
}

// Position returns a copy of the open position for symbol, or nil when flat.
func (l *Ledger) Position(symbol string) *Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	return clonePosition(l.positions[symbol])
}

// OpenPositions returns copies of all open positions keyed by symbol.
func (l *Ledger) OpenPositions() map[string]*Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]*Position)
	for s, p := range l.positions {
		if p != nil {
			out[s] = clonePosition(p)
		}
	}
	return out
}

// Transactions returns up to limit entries from the log, newest first.
// limit <= 0 returns everything.
func (l *Ledger) Transactions(limit int) []Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := len(l.transactions)
	if limit > 0 && limit < n {
		n = limit
	}
	return append([]Transaction(nil), l.transactions[:n]...)
}

// Snapshot returns a value copy of the full account state.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	snap := Snapshot{
		Balance:      l.balance,
		Positions:    make(map[string]*Position),
		Transactions: append([]Transaction(nil), l.transactions...),
	}
	for s, p := range l.positions {
		if p != nil {
			snap.Positions[s] = clonePosition(p)
		}
	}
	return snap
}

// Restore replaces the account state with a previously taken snapshot.
// Snapshot positions for symbols outside the configured set are dropped.
func (l *Ledger) Restore(snap Snapshot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.balance = snap.Balance
	for s := range l.positions {
		l.positions[s] = nil
	}
	for s, p := range snap.Positions {
		if _, ok := l.positions[s]; ok {
			l.positions[s] = clonePosition(p)
		}
	}
	l.transactions = append([]Transaction(nil), snap.Transactions...)
}

// prepend keeps the log newest-first. Caller holds the lock.
func (l *Ledger) prepend(tx Transaction) {
	l.transactions = append([]Transaction{tx}, l.transactions...)
}
