package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a position.
type Side string

const (
	Long  Side = "LONG"
	Short Side = "SHORT"
)

// TxType identifies what a transaction recorded.
type TxType string

const (
	TxOpenLong  TxType = "OPEN_LONG"
	TxOpenShort TxType = "OPEN_SHORT"
	TxClose     TxType = "CLOSE"
)

// CloseReason records why a position was closed.
type CloseReason string

const (
	ReasonManual      CloseReason = "MANUAL"
	ReasonStopLoss    CloseReason = "STOP_LOSS"
	ReasonTakeProfit  CloseReason = "TAKE_PROFIT"
	ReasonLiquidation CloseReason = "LIQUIDATION"
)

// Position represents an open leveraged position. Quantity and entry price are
// fixed at open; only StopLoss and TakeProfit may change afterwards.
type Position struct {
	Symbol     string
	Side       Side
	Quantity   decimal.Decimal
	EntryPrice decimal.Decimal
	Leverage   int
	Margin     decimal.Decimal
	StopLoss   *decimal.Decimal // nil = not set
	TakeProfit *decimal.Decimal // nil = not set
	OpenedAt   time.Time
}

// Transaction is an immutable log entry. Leverage and Margin are only set on
// opens; PnL and Reason only on closes.
type Transaction struct {
	ID        string
	Type      TxType
	Symbol    string
	Price     decimal.Decimal
	Quantity  decimal.Decimal
	Leverage  int
	Margin    decimal.Decimal
	PnL       *decimal.Decimal
	Reason    CloseReason
	Timestamp time.Time
}

// Snapshot is a value copy of the full account state, used for persistence
// and for read-side display without holding the ledger lock.
type Snapshot struct {
	Balance      decimal.Decimal
	Positions    map[string]*Position // open positions only
	Transactions []Transaction        // newest first
}

func clonePosition(p *Position) *Position {
	if p == nil {
		return nil
	}
	c := *p
	c.StopLoss = cloneDecimal(p.StopLoss)
	c.TakeProfit = cloneDecimal(p.TakeProfit)
	return &c
}

func cloneDecimal(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}
