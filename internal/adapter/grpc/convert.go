package grpc

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/simaogato/dipledger-backend/internal/adapter/repository/rowmap"
	"github.com/simaogato/dipledger-backend/internal/domain"
	"github.com/simaogato/dipledger-backend/internal/usecase/calendar"
	"github.com/simaogato/dipledger-backend/internal/usecase/ledger"
)

func requestRow(in *structpb.Struct) rowmap.Row {
	if in == nil {
		return rowmap.Row{}
	}
	return rowmap.Row(in.AsMap())
}

func requireUUID(row rowmap.Row, snake, camel string) (uuid.UUID, error) {
	raw := row.String(snake, camel, "")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, status.Errorf(codes.InvalidArgument, "invalid %s format: %v", snake, err)
	}
	return id, nil
}

// withID gives a request object an id when the caller did not send one
func withID(row rowmap.Row) rowmap.Row {
	if row == nil {
		row = rowmap.Row{}
	}
	if row.String("id", "id", "") == "" {
		row["id"] = uuid.NewString()
	}
	return row
}

// settlementInput reads the sale rows of a settlement request. A present but
// unparsable number rejects the whole request.
func settlementInput(row rowmap.Row) (domain.SettlementInput, error) {
	var input domain.SettlementInput
	var err error
	if input.AdditionalFee, err = row.Decimal("additional_fee", "additionalFee", decimal.Zero); err != nil {
		return domain.SettlementInput{}, err
	}

	for i, e := range row.Objects("entries", "entries") {
		entry := domain.SaleEntry{Instrument: e.String("instrument", "instrument", "")}
		if entry.Quantity, err = e.Decimal("quantity", "quantity", decimal.Zero); err != nil {
			return domain.SettlementInput{}, fmt.Errorf("entry %d: %w", i, err)
		}
		if entry.Price, err = e.Decimal("price", "price", decimal.Zero); err != nil {
			return domain.SettlementInput{}, fmt.Errorf("entry %d: %w", i, err)
		}
		if entry.Fee, err = e.Decimal("fee", "fee", decimal.Zero); err != nil {
			return domain.SettlementInput{}, fmt.Errorf("entry %d: %w", i, err)
		}
		input.Entries = append(input.Entries, entry)
	}
	return input, nil
}

func response(m map[string]any) (*structpb.Struct, error) {
	out, err := structpb.NewStruct(m)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "failed to encode response: %v", err)
	}
	return out, nil
}

func dateString(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(calendar.DateFormat)
}

func tradeMap(t domain.Trade) map[string]any {
	return map[string]any{
		"id":           t.ID.String(),
		"portfolio_id": t.PortfolioID.String(),
		"type":         string(t.Type),
		"instrument":   t.Instrument,
		"date":         dateString(t.Date),
		"price":        t.Price.String(),
		"quantity":     t.Quantity.String(),
		"fee":          t.Fee.String(),
	}
}

func holdingsMap(h domain.Holdings) map[string]any {
	out := make(map[string]any, len(h))
	for symbol, qty := range h {
		out[symbol] = qty.String()
	}
	return out
}

func valuationMap(v domain.Valuation) map[string]any {
	return map[string]any{
		"current":       v.Current.String(),
		"previous":      v.Previous.String(),
		"delta":         v.Delta.String(),
		"change_pct":    v.ChangePct.StringFixed(2),
		"snapshot_date": v.SnapshotDate,
		"stale":         v.Stale,
	}
}

func portfolioMap(p *domain.Portfolio, summary *ledger.Summary) map[string]any {
	trades := make([]any, 0, len(p.Trades))
	for _, t := range p.Trades {
		trades = append(trades, tradeMap(t))
	}
	instruments := make([]any, 0, len(p.Strategy.Instruments))
	for _, s := range p.Strategy.Instruments {
		instruments = append(instruments, s)
	}

	m := map[string]any{
		"id":               p.ID.String(),
		"user_id":          p.UserID.String(),
		"name":             p.Name,
		"daily_buy_amount": p.DailyBuyAmount.String(),
		"start_date":       dateString(p.StartDate),
		"fee_rate":         p.FeeRate.String(),
		"strategy": map[string]any{
			"instruments":       instruments,
			"dip_threshold_pct": p.Strategy.DipThresholdPct.String(),
			"description":       p.Strategy.Description,
		},
		"is_closed": p.IsClosed,
		"trades":    trades,
	}
	if p.ClosedAt != nil {
		m["closed_at"] = p.ClosedAt.UTC().Format(time.RFC3339)
	}
	if p.FinalSellAmountGross != nil {
		m["final_sell_amount"] = p.FinalSellAmountGross.String()
	}
	if cfg := p.AlarmConfig; cfg != nil {
		days := make([]any, 0, len(cfg.Weekdays))
		for _, d := range cfg.Weekdays {
			days = append(days, float64(d))
		}
		m["alarm_config"] = map[string]any{
			"enabled":  cfg.Enabled,
			"time":     cfg.Time,
			"weekdays": days,
		}
	}
	if summary != nil {
		m["summary"] = map[string]any{
			"holdings":         holdingsMap(summary.Holdings),
			"total_invested":   summary.TotalInvested.String(),
			"already_realized": summary.AlreadyRealized.String(),
			"valuation":        valuationMap(summary.Valuation),
			"profit":           summary.Profit.String(),
			"return_pct":       summary.ReturnPct.StringFixed(2),
		}
	}
	return m
}

func settlementMap(r *domain.SettlementResult) map[string]any {
	m := map[string]any{
		"total_invested":          r.TotalInvested.String(),
		"already_realized":        r.AlreadyRealized.String(),
		"final_sell_amount_net":   r.FinalSellAmountNet.String(),
		"final_sell_amount_gross": r.FinalSellAmountGross.String(),
		"total_return":            r.TotalReturn.String(),
		"profit":                  r.Profit.String(),
		"yield_rate":              r.YieldRate.StringFixed(2),
	}
	if r.Portfolio != nil {
		m["portfolio_id"] = r.Portfolio.ID.String()
		m["is_closed"] = r.Portfolio.IsClosed
	}
	return m
}

func saleEntryMap(e domain.SaleEntry) map[string]any {
	return map[string]any{
		"instrument": e.Instrument,
		"quantity":   e.Quantity.String(),
		"price":      e.Price.String(),
		"fee":        e.Fee.String(),
	}
}

func historyMap(h *domain.HistoryRecord) map[string]any {
	return map[string]any{
		"id":              h.ID.String(),
		"portfolio_id":    h.PortfolioID.String(),
		"user_id":         h.UserID.String(),
		"portfolio_name":  h.PortfolioName,
		"total_invested":  h.TotalInvested.String(),
		"total_return":    h.TotalReturn.String(),
		"total_profit":    h.TotalProfit.String(),
		"yield_rate":      h.YieldRate.StringFixed(2),
		"start_date":      dateString(h.StartDate),
		"end_date":        dateString(h.EndDate),
		"strategy_detail": h.StrategyDetail,
	}
}

func marketStatusMap(s calendar.MarketStatus) map[string]any {
	return map[string]any{
		"date":                  s.Date,
		"open":                  s.Open,
		"reason":                s.Reason,
		"holiday":               s.Holiday,
		"fresh_close_available": s.FreshCloseAvailable,
	}
}

func holidaysMap(year int) map[string]any {
	holidays := calendar.Holidays(year)
	sort.Slice(holidays, func(i, j int) bool { return holidays[i].Observed.Before(holidays[j].Observed) })

	items := make([]any, 0, len(holidays))
	for _, h := range holidays {
		items = append(items, map[string]any{
			"name":     h.Name,
			"actual":   dateString(h.Actual),
			"observed": dateString(h.Observed),
		})
	}
	return map[string]any{"year": float64(year), "holidays": items}
}

func yearOf(row rowmap.Row, fallback int) (int, error) {
	raw, err := row.Decimal("year", "year", decimal.NewFromInt(int64(fallback)))
	if err != nil || !raw.IsInteger() || raw.LessThan(decimal.NewFromInt(1900)) || raw.GreaterThan(decimal.NewFromInt(2200)) {
		return 0, status.Errorf(codes.InvalidArgument, "invalid year: %s", row.String("year", "year", raw.String()))
	}
	return int(raw.IntPart()), nil
}

func instantOf(row rowmap.Row, fallback time.Time) (time.Time, error) {
	if row.String("at", "at", "") == "" {
		return fallback, nil
	}
	t, ok := row.Time("at", "at")
	if !ok {
		return time.Time{}, status.Error(codes.InvalidArgument, fmt.Sprintf("invalid at: %q", row.String("at", "at", "")))
	}
	return t, nil
}
