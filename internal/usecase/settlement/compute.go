// Package settlement closes a portfolio: it computes the terminal accounting
// record and persists its effects with a history-then-close write order.
package settlement

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/simaogato/dipledger-backend/internal/domain"
	"github.com/simaogato/dipledger-backend/internal/usecase/ledger"
)

var hundred = decimal.NewFromInt(100)

// Compute produces the settlement result and the synthetic sell trades for a
// portfolio without touching it.
//
// Logic, in order:
//  1. totalInvested      = Σ buy (price × qty + fee) over all trades
//  2. alreadyRealized    = Σ sell (price × qty − fee) over all trades before settlement
//  3. finalSellAmountNet = Σ entries (price × qty − fee) − additionalFee
//  4. totalReturn        = alreadyRealized + finalSellAmountNet
//  5. profit             = totalReturn − totalInvested
//  6. yieldRate          = (totalReturn / totalInvested − 1) × 100, or 0 without investment
//
// Every precondition is checked before anything is computed: the portfolio must
// be open, entries must be valid and the sale must not oversell any holding.
func Compute(portfolio *domain.Portfolio, input domain.SettlementInput, at time.Time) (*domain.SettlementResult, []domain.Trade, error) {
	if portfolio.IsClosed {
		return nil, nil, domain.ErrPortfolioClosed
	}
	if len(input.Entries) == 0 {
		return nil, nil, fmt.Errorf("%w: settlement needs at least one sale entry", domain.ErrInvalidInput)
	}
	if input.AdditionalFee.IsNegative() {
		return nil, nil, fmt.Errorf("%w: additional fee cannot be negative", domain.ErrInvalidInput)
	}
	for _, entry := range input.Entries {
		if err := entry.Validate(); err != nil {
			return nil, nil, err
		}
	}

	if _, err := ledger.AggregateHoldings(portfolio.Trades); err != nil {
		return nil, nil, fmt.Errorf("ledger of portfolio %s is inconsistent: %w", portfolio.ID, err)
	}

	sells := make([]domain.Trade, 0, len(input.Entries))
	for _, entry := range input.Entries {
		sells = append(sells, domain.Trade{
			ID:          uuid.New(),
			PortfolioID: portfolio.ID,
			Type:        domain.TradeTypeSell,
			Instrument:  entry.Instrument,
			Date:        at,
			Price:       entry.Price,
			Quantity:    entry.Quantity,
			Fee:         entry.Fee,
		})
	}

	after := make([]domain.Trade, 0, len(portfolio.Trades)+len(sells))
	after = append(after, portfolio.Trades...)
	after = append(after, sells...)
	if _, err := ledger.AggregateHoldings(after); err != nil {
		return nil, nil, fmt.Errorf("sale exceeds holdings: %w", err)
	}

	totalInvested := ledger.TotalInvested(portfolio.Trades)
	alreadyRealized := ledger.AlreadyRealized(portfolio.Trades)

	finalSellNet := decimal.Zero
	for _, entry := range input.Entries {
		finalSellNet = finalSellNet.Add(entry.Price.Mul(entry.Quantity).Sub(entry.Fee))
	}
	finalSellNet = finalSellNet.Sub(input.AdditionalFee)

	totalReturn := alreadyRealized.Add(finalSellNet)
	profit := totalReturn.Sub(totalInvested)

	yieldRate := decimal.Zero
	if totalInvested.IsPositive() {
		yieldRate = totalReturn.Div(totalInvested).Sub(decimal.NewFromInt(1)).Mul(hundred)
	}

	return &domain.SettlementResult{
		Portfolio:            portfolio,
		TotalInvested:        totalInvested,
		AlreadyRealized:      alreadyRealized,
		FinalSellAmountNet:   finalSellNet,
		FinalSellAmountGross: finalSellNet.Add(input.AdditionalFee),
		TotalReturn:          totalReturn,
		Profit:               profit,
		YieldRate:            yieldRate,
	}, sells, nil
}

// DraftEntries pre-populates the final-sale form: one row per held instrument
// at its full quantity and current price, with the portfolio fee rate applied.
// Instruments without a quote get a zero price that the user has to fill in.
func DraftEntries(portfolio *domain.Portfolio, prices domain.PriceMap) ([]domain.SaleEntry, error) {
	holdings, err := ledger.AggregateHoldings(portfolio.Trades)
	if err != nil {
		return nil, err
	}

	symbols := holdings.Symbols()
	sort.Strings(symbols)

	entries := make([]domain.SaleEntry, 0, len(symbols))
	for _, symbol := range symbols {
		qty := holdings[symbol]
		price := prices[symbol].Current
		entries = append(entries, domain.SaleEntry{
			Instrument: symbol,
			Quantity:   qty,
			Price:      price,
			Fee:        price.Mul(qty).Mul(portfolio.FeeRate).Round(2),
		})
	}
	return entries, nil
}

// HistoryRecordFor builds the audit row of a settlement result
func HistoryRecordFor(result *domain.SettlementResult, endDate time.Time) *domain.HistoryRecord {
	p := result.Portfolio
	return &domain.HistoryRecord{
		ID:             uuid.New(),
		PortfolioID:    p.ID,
		UserID:         p.UserID,
		PortfolioName:  p.Name,
		TotalInvested:  result.TotalInvested,
		TotalReturn:    result.TotalReturn,
		TotalProfit:    result.Profit,
		YieldRate:      result.YieldRate,
		StartDate:      p.StartDate,
		EndDate:        endDate,
		StrategyDetail: describeStrategy(p),
	}
}

func describeStrategy(p *domain.Portfolio) string {
	parts := []string{
		"instruments=" + strings.Join(p.Strategy.Instruments, ","),
		"daily_buy=" + p.DailyBuyAmount.String(),
		"fee_rate=" + p.FeeRate.String(),
	}
	if !p.Strategy.DipThresholdPct.IsZero() {
		parts = append(parts, "dip_threshold_pct="+p.Strategy.DipThresholdPct.String())
	}
	if p.Strategy.Description != "" {
		parts = append(parts, "description="+p.Strategy.Description)
	}
	return strings.Join(parts, "; ")
}
