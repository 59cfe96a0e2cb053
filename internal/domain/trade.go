package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TradeType represents the side of a trade
type TradeType string

const (
	TradeTypeBuy  TradeType = "BUY"
	TradeTypeSell TradeType = "SELL"
)

// Trade represents a single buy or sell recorded against a portfolio.
// Trades are immutable once created; they can only be deleted.
type Trade struct {
	ID          uuid.UUID
	PortfolioID uuid.UUID
	Type        TradeType
	Instrument  string
	Date        time.Time
	Price       decimal.Decimal
	Quantity    decimal.Decimal
	Fee         decimal.Decimal
}

// Validate ensures the trade can enter ledger sums.
// Non-positive prices or quantities are rejected, never coerced to zero.
func (t *Trade) Validate() error {
	if t.Type != TradeTypeBuy && t.Type != TradeTypeSell {
		return fmt.Errorf("%w: trade type must be BUY or SELL, got %q", ErrInvalidInput, t.Type)
	}
	if t.Instrument == "" {
		return fmt.Errorf("%w: trade instrument cannot be empty", ErrInvalidInput)
	}
	if t.Price.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: trade price must be positive", ErrInvalidInput)
	}
	if t.Quantity.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: trade quantity must be positive", ErrInvalidInput)
	}
	if t.Fee.IsNegative() {
		return fmt.Errorf("%w: trade fee cannot be negative", ErrInvalidInput)
	}
	return nil
}

// SignedQuantity returns the quantity with the sign of its effect on holdings:
// buys add, sells subtract.
func (t Trade) SignedQuantity() decimal.Decimal {
	if t.Type == TradeTypeSell {
		return t.Quantity.Neg()
	}
	return t.Quantity
}

// Gross returns price × quantity.
func (t Trade) Gross() decimal.Decimal {
	return t.Price.Mul(t.Quantity)
}
