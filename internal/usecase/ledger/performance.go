package ledger

import (
	"github.com/shopspring/decimal"
	"github.com/simaogato/dipledger-backend/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// TotalInvested returns Σ(price × quantity + fee) over buy trades.
// Fees are a cost on the buy side.
func TotalInvested(trades []domain.Trade) decimal.Decimal {
	total := decimal.Zero
	for _, trade := range trades {
		if trade.Type == domain.TradeTypeBuy {
			total = total.Add(trade.Gross().Add(trade.Fee))
		}
	}
	return total
}

// AlreadyRealized returns Σ(price × quantity − fee) over sell trades.
func AlreadyRealized(trades []domain.Trade) decimal.Decimal {
	total := decimal.Zero
	for _, trade := range trades {
		if trade.Type == domain.TradeTypeSell {
			total = total.Add(trade.Gross().Sub(trade.Fee))
		}
	}
	return total
}

// ChangePct returns (current − previous) / previous × 100, or 0 when previous is 0.
func ChangePct(current, previous decimal.Decimal) decimal.Decimal {
	if previous.IsZero() {
		return decimal.Zero
	}
	return current.Sub(previous).Div(previous).Mul(hundred)
}

// Valuate prices holdings against a quote map.
//
// Symbols missing from prices are excluded from both sums rather than counted as
// zero. A missing previous close falls back to the current price so that the
// day-over-day delta of a new instrument is zero.
func Valuate(holdings domain.Holdings, prices domain.PriceMap) domain.Valuation {
	current := decimal.Zero
	previous := decimal.Zero

	for symbol, qty := range holdings {
		if !qty.IsPositive() {
			continue
		}
		quote, ok := prices[symbol]
		if !ok {
			continue
		}
		prev := quote.Previous
		if prev.IsZero() {
			prev = quote.Current
		}
		current = current.Add(qty.Mul(quote.Current))
		previous = previous.Add(qty.Mul(prev))
	}

	return domain.Valuation{
		Current:   current,
		Previous:  previous,
		Delta:     current.Sub(previous),
		ChangePct: ChangePct(current, previous),
	}
}

// Summary is the per-portfolio performance card
type Summary struct {
	Holdings        domain.Holdings
	TotalInvested   decimal.Decimal
	AlreadyRealized decimal.Decimal
	Valuation       domain.Valuation
	// Profit is Valuation.Current + AlreadyRealized − TotalInvested
	Profit    decimal.Decimal
	ReturnPct decimal.Decimal
}

// Summarize computes the performance of a single portfolio against prices
func Summarize(portfolio *domain.Portfolio, prices domain.PriceMap) (*Summary, error) {
	holdings, err := AggregateHoldings(portfolio.Trades)
	if err != nil {
		return nil, err
	}

	invested := TotalInvested(portfolio.Trades)
	realized := AlreadyRealized(portfolio.Trades)
	valuation := Valuate(holdings, prices)
	profit := valuation.Current.Add(realized).Sub(invested)

	returnPct := decimal.Zero
	if invested.IsPositive() {
		returnPct = profit.Div(invested).Mul(hundred)
	}

	return &Summary{
		Holdings:        holdings,
		TotalInvested:   invested,
		AlreadyRealized: realized,
		Valuation:       valuation,
		Profit:          profit,
		ReturnPct:       returnPct,
	}, nil
}
