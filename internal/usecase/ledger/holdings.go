// Package ledger reduces trade lists into holdings and performance figures.
// Every function is pure: results depend only on the trades and prices passed in.
package ledger

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/simaogato/dipledger-backend/internal/domain"
)

// NegativeHoldingError reports instruments whose net quantity went below zero,
// which means more was sold than was ever bought.
type NegativeHoldingError struct {
	Instruments map[string]decimal.Decimal
}

func (e *NegativeHoldingError) Error() string {
	symbols := make([]string, 0, len(e.Instruments))
	for symbol := range e.Instruments {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	parts := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		parts = append(parts, fmt.Sprintf("%s=%s", symbol, e.Instruments[symbol].String()))
	}
	return fmt.Sprintf("%s: %s", domain.ErrNegativeHolding, strings.Join(parts, ", "))
}

func (e *NegativeHoldingError) Unwrap() error { return domain.ErrNegativeHolding }

// AggregateHoldings reduces trades into net quantity per instrument.
//
// Logic:
//   - quantity[instrument] += signed quantity (buys add, sells subtract)
//   - the result does not depend on trade order
//   - instruments netting to exactly zero are omitted
//
// Negative positions are not clamped: the holdings are returned together with a
// *NegativeHoldingError so callers can surface the integrity problem.
func AggregateHoldings(trades []domain.Trade) (domain.Holdings, error) {
	holdings := make(domain.Holdings)
	for _, trade := range trades {
		current := holdings[trade.Instrument]
		holdings[trade.Instrument] = current.Add(trade.SignedQuantity())
	}

	var negative map[string]decimal.Decimal
	for symbol, qty := range holdings {
		switch {
		case qty.IsZero():
			delete(holdings, symbol)
		case qty.IsNegative():
			if negative == nil {
				negative = make(map[string]decimal.Decimal)
			}
			negative[symbol] = qty
		}
	}

	if negative != nil {
		return holdings, &NegativeHoldingError{Instruments: negative}
	}
	return holdings, nil
}

// AggregateAcross sums the holdings of every open portfolio.
// Closed portfolios are skipped. The first integrity error met is returned
// alongside the partial sum of the healthy portfolios.
func AggregateAcross(portfolios []*domain.Portfolio) (domain.Holdings, error) {
	total := make(domain.Holdings)
	var firstErr error

	for _, p := range portfolios {
		if p == nil || p.IsClosed {
			continue
		}
		holdings, err := AggregateHoldings(p.Trades)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("portfolio %s: %w", p.ID, err)
			}
			continue
		}
		for symbol, qty := range holdings {
			total[symbol] = total[symbol].Add(qty)
		}
	}

	return total, firstErr
}
