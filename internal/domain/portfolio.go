package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Strategy describes how the periodic buys of a portfolio are placed
type Strategy struct {
	Instruments     []string
	DipThresholdPct decimal.Decimal // buy only when the previous close dropped by at least this much
	Description     string
}

// AlarmConfig configures the daily reminder for a portfolio.
// Time is "HH:MM" in the business timezone. An empty Weekdays means Monday to Friday.
type AlarmConfig struct {
	Enabled  bool
	Time     string
	Weekdays []time.Weekday
}

// Portfolio represents one accumulation strategy and the trades it owns.
//
// Once IsClosed is true it never reverts, and the only trades appended after
// that point are the synthetic sells produced by settlement.
type Portfolio struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	Name           string
	DailyBuyAmount decimal.Decimal
	StartDate      time.Time
	FeeRate        decimal.Decimal // fraction of gross, e.g. 0.0025
	Strategy       Strategy
	Trades         []Trade
	IsClosed       bool
	ClosedAt       *time.Time
	// FinalSellAmountGross is the settlement proceeds before the additional fee
	// is deducted. It is set by settlement only.
	FinalSellAmountGross *decimal.Decimal
	AlarmConfig          *AlarmConfig
}

// Validate ensures the portfolio adheres to domain rules
func (p *Portfolio) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: portfolio name cannot be empty", ErrInvalidInput)
	}
	if p.DailyBuyAmount.IsNegative() {
		return fmt.Errorf("%w: daily buy amount cannot be negative", ErrInvalidInput)
	}
	if p.FeeRate.IsNegative() || p.FeeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: fee rate must be in [0, 1)", ErrInvalidInput)
	}
	if p.AlarmConfig != nil && p.AlarmConfig.Enabled {
		if _, err := time.Parse("15:04", p.AlarmConfig.Time); err != nil {
			return fmt.Errorf("%w: alarm time must be HH:MM", ErrInvalidInput)
		}
	}
	return nil
}

// Close applies the terminal settlement transition.
// It fails with ErrPortfolioClosed if the portfolio is already closed.
func (p *Portfolio) Close(at time.Time, finalSellAmountGross decimal.Decimal, settlementTrades []Trade) error {
	if p.IsClosed {
		return ErrPortfolioClosed
	}
	if len(settlementTrades) == 0 {
		return errors.New("settlement must produce at least one trade")
	}
	p.Trades = append(p.Trades, settlementTrades...)
	p.IsClosed = true
	closedAt := at
	p.ClosedAt = &closedAt
	gross := finalSellAmountGross
	p.FinalSellAmountGross = &gross
	return nil
}
