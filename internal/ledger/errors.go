package ledger

import "errors"

// Validation errors returned by ledger operations. All of them leave the
// account untouched; none are fatal. Callers surface the message as-is.
var (
	ErrInvalidMargin       = errors.New("margin must be a positive amount")
	ErrPriceUnavailable    = errors.New("no valid price available")
	ErrInvalidLeverage     = errors.New("leverage must be between 1x and 50x")
	ErrPositionAlreadyOpen = errors.New("a position is already open for this symbol")
	ErrInsufficientFunds   = errors.New("margin exceeds available balance")
	ErrNoOpenPosition      = errors.New("no open position for this symbol")
	ErrUnknownSymbol       = errors.New("symbol is not supported")
)
