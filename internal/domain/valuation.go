package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Holdings maps an instrument symbol to its net open quantity.
// It is always derived from trades and never persisted.
type Holdings map[string]decimal.Decimal

// Symbols returns the instruments with a strictly positive quantity, sorted
func (h Holdings) Symbols() []string {
	symbols := make([]string, 0, len(h))
	for symbol, qty := range h {
		if qty.IsPositive() {
			symbols = append(symbols, symbol)
		}
	}
	sort.Strings(symbols)
	return symbols
}

// Quote is the price-feed output for one instrument
type Quote struct {
	Current  decimal.Decimal `json:"current"`
	Previous decimal.Decimal `json:"previous"`
}

// PriceMap maps an instrument symbol to its latest quote
type PriceMap map[string]Quote

// ValuationSnapshot is one business day's cached price map
type ValuationSnapshot struct {
	Date          string    `json:"date"` // YYYY-MM-DD in the business timezone
	LastUpdatedAt time.Time `json:"lastUpdatedAt"`
	Prices        PriceMap  `json:"prices"`
	// Requested lists every symbol asked of the feed for Date, including the
	// ones it did not know
	Requested []string `json:"requested,omitempty"`
}

// Valuation is the aggregate market value of a set of holdings
type Valuation struct {
	Current      decimal.Decimal
	Previous     decimal.Decimal
	Delta        decimal.Decimal
	ChangePct    decimal.Decimal
	SnapshotDate string
	// Stale is set when the values come from an older snapshot because a fetch failed
	Stale bool
}

// ClosePrice is one stored daily close of an instrument
type ClosePrice struct {
	Symbol    string
	TradeDate time.Time
	Close     decimal.Decimal
	FetchedAt time.Time
}
