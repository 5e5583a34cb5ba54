package ledger

import "github.com/shopspring/decimal"

// UnrealizedPnL marks the position to price: (price-entry)*qty for longs,
// (entry-price)*qty for shorts. Also used as realized pnl at close time with
// the fill price.
func (p *Position) UnrealizedPnL(price decimal.Decimal) decimal.Decimal {
	if p.Side == Short {
		return p.EntryPrice.Sub(price).Mul(p.Quantity)
	}
	return price.Sub(p.EntryPrice).Mul(p.Quantity)
}

// LiquidationPrice is derived, never stored: the adverse move of
// entry/leverage that consumes the entire margin.
func (p *Position) LiquidationPrice() decimal.Decimal {
	move := p.EntryPrice.Div(decimal.NewFromInt(int64(p.Leverage)))
	if p.Side == Short {
		return p.EntryPrice.Add(move)
	}
	return p.EntryPrice.Sub(move)
}

// Notional is the position's market value at price.
func (p *Position) Notional(price decimal.Decimal) decimal.Decimal {
	return p.Quantity.Mul(price)
}

// Summary is derived account state for display.
type Summary struct {
	Equity     decimal.Decimal
	TotalPnL   decimal.Decimal
	UsedMargin decimal.Decimal
}

// Summarize combines balance, open positions and current prices into derived
// state. Pure function, recomputed on demand. A position whose symbol has no
// price contributes its margin but zero pnl.
func Summarize(balance decimal.Decimal, positions map[string]*Position, prices map[string]decimal.Decimal) Summary {
	s := Summary{
		TotalPnL:   decimal.Zero,
		UsedMargin: decimal.Zero,
	}
	for sym, pos := range positions {
		if pos == nil {
			continue
		}
		s.UsedMargin = s.UsedMargin.Add(pos.Margin)
		if price, ok := prices[sym]; ok && price.IsPositive() {
			s.TotalPnL = s.TotalPnL.Add(pos.UnrealizedPnL(price))
		}
	}
	s.Equity = balance.Add(s.UsedMargin).Add(s.TotalPnL)
	return s
}
