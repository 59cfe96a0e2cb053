package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SaleEntry is one user-edited final-sale row, normally one per held instrument
type SaleEntry struct {
	Instrument string
	Quantity   decimal.Decimal
	Price      decimal.Decimal
	Fee        decimal.Decimal
}

// Validate rejects entries that cannot enter the settlement sums
func (e SaleEntry) Validate() error {
	if e.Instrument == "" {
		return fmt.Errorf("%w: sale entry instrument cannot be empty", ErrInvalidInput)
	}
	if e.Price.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: sale price for %s must be positive", ErrInvalidInput, e.Instrument)
	}
	if e.Quantity.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("%w: sale quantity for %s must be positive", ErrInvalidInput, e.Instrument)
	}
	if e.Fee.IsNegative() {
		return fmt.Errorf("%w: sale fee for %s cannot be negative", ErrInvalidInput, e.Instrument)
	}
	return nil
}

// SettlementInput is what the user submits when terminating a portfolio
type SettlementInput struct {
	Entries       []SaleEntry
	AdditionalFee decimal.Decimal // portfolio-level, optional
}

// SettlementResult is the terminal accounting record. It is displayed once and
// never persisted as such; only its effects are.
type SettlementResult struct {
	Portfolio       *Portfolio
	TotalInvested   decimal.Decimal
	AlreadyRealized decimal.Decimal
	// FinalSellAmountNet is Σ(price × qty − fee) − additionalFee; it feeds TotalReturn.
	FinalSellAmountNet decimal.Decimal
	// FinalSellAmountGross is FinalSellAmountNet + additionalFee; this is the persisted value.
	FinalSellAmountGross decimal.Decimal
	TotalReturn          decimal.Decimal
	Profit               decimal.Decimal
	YieldRate            decimal.Decimal // percent
}

// HistoryRecord is the append-only audit row written for each settlement
type HistoryRecord struct {
	ID             uuid.UUID
	PortfolioID    uuid.UUID
	UserID         uuid.UUID
	PortfolioName  string
	TotalInvested  decimal.Decimal
	TotalReturn    decimal.Decimal
	TotalProfit    decimal.Decimal
	YieldRate      decimal.Decimal
	StartDate      time.Time
	EndDate        time.Time
	StrategyDetail string
}
