package rowmap

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/simaogato/dipledger-backend/internal/domain"
)

// Strategy maps a strategy object
func Strategy(r Row) (domain.Strategy, error) {
	threshold, err := r.Decimal("dip_threshold_pct", "dipThresholdPct", decimal.Zero)
	if err != nil {
		return domain.Strategy{}, err
	}
	return domain.Strategy{
		Instruments:     r.Strings("instruments", "instruments"),
		DipThresholdPct: threshold,
		Description:     r.String("description", "description", ""),
	}, nil
}

// StrategyRow is the canonical stored form of a strategy
func StrategyRow(s domain.Strategy) Row {
	instruments := s.Instruments
	if instruments == nil {
		instruments = []string{}
	}
	return Row{
		"instruments":       instruments,
		"dip_threshold_pct": s.DipThresholdPct.String(),
		"description":       s.Description,
	}
}

// AlarmConfig maps an alarm object; a nil row means no alarm is configured
func AlarmConfig(r Row) *domain.AlarmConfig {
	if r == nil {
		return nil
	}
	return &domain.AlarmConfig{
		Enabled:  r.Bool("enabled", "enabled", false),
		Time:     r.String("time", "time", ""),
		Weekdays: weekdays(r),
	}
}

// AlarmConfigRow is the canonical stored form of an alarm, nil when cfg is nil
func AlarmConfigRow(cfg *domain.AlarmConfig) Row {
	if cfg == nil {
		return nil
	}
	days := make([]int, 0, len(cfg.Weekdays))
	for _, d := range cfg.Weekdays {
		days = append(days, int(d))
	}
	return Row{
		"enabled":  cfg.Enabled,
		"time":     cfg.Time,
		"weekdays": days,
	}
}

// weekdays accepts day numbers (0 = Sunday) and English day names
func weekdays(r Row) []time.Weekday {
	v, ok := r.lookup("weekdays", "weekdays")
	if !ok {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}

	var out []time.Weekday
	for _, item := range items {
		var s string
		switch d := item.(type) {
		case string:
			s = d
		case float64:
			s = strconv.Itoa(int(d))
		case fmt.Stringer:
			s = d.String()
		default:
			continue
		}
		if day, ok := parseWeekday(s); ok {
			out = append(out, day)
		}
	}
	return out
}

func parseWeekday(s string) (time.Weekday, bool) {
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 || n > 6 {
			return 0, false
		}
		return time.Weekday(n), true
	}
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) < 3 {
		return 0, false
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.HasPrefix(strings.ToLower(d.String()), s[:3]) {
			return d, true
		}
	}
	return 0, false
}

// Trade maps a trade object
func Trade(r Row) (domain.Trade, error) {
	id, err := parseUUID(r, "id", "id", true)
	if err != nil {
		return domain.Trade{}, err
	}
	portfolioID, err := parseUUID(r, "portfolio_id", "portfolioId", false)
	if err != nil {
		return domain.Trade{}, err
	}
	date, _ := r.Time("date", "date")

	d := decimals{row: r}
	t := domain.Trade{
		ID:          id,
		PortfolioID: portfolioID,
		Type:        domain.TradeType(strings.ToUpper(r.String("type", "type", ""))),
		Instrument:  r.String("instrument", "instrument", ""),
		Date:        date,
		Price:       d.get("price", "price"),
		Quantity:    d.get("quantity", "quantity"),
		Fee:         d.get("fee", "fee"),
	}
	if d.err != nil {
		return domain.Trade{}, fmt.Errorf("trade %s: %w", id, d.err)
	}
	return t, nil
}

// Portfolio maps a portfolio object including its nested trades.
// A trade row without portfolio id inherits the portfolio's.
func Portfolio(r Row) (*domain.Portfolio, error) {
	id, err := parseUUID(r, "id", "id", true)
	if err != nil {
		return nil, err
	}
	userID, err := parseUUID(r, "user_id", "userId", false)
	if err != nil {
		return nil, err
	}
	startDate, _ := r.Time("start_date", "startDate")
	strategy, err := Strategy(r.Object("strategy", "strategy"))
	if err != nil {
		return nil, fmt.Errorf("portfolio %s: %w", id, err)
	}

	d := decimals{row: r}
	p := &domain.Portfolio{
		ID:             id,
		UserID:         userID,
		Name:           r.String("name", "name", ""),
		DailyBuyAmount: d.get("daily_buy_amount", "dailyBuyAmount"),
		StartDate:      startDate,
		FeeRate:        d.get("fee_rate", "feeRate"),
		Strategy:       strategy,
		IsClosed:       r.Bool("is_closed", "isClosed", false),
		AlarmConfig:    AlarmConfig(r.Object("alarm_config", "alarmConfig")),
	}

	if closedAt, ok := r.Time("closed_at", "closedAt"); ok {
		p.ClosedAt = &closedAt
	}
	if _, ok := r.lookup("final_sell_amount", "finalSellAmount"); ok {
		gross := d.get("final_sell_amount", "finalSellAmount")
		p.FinalSellAmountGross = &gross
	}
	if d.err != nil {
		return nil, fmt.Errorf("portfolio %s: %w", id, d.err)
	}

	for _, tr := range r.Objects("trades", "trades") {
		trade, err := Trade(tr)
		if err != nil {
			return nil, fmt.Errorf("portfolio %s: %w", id, err)
		}
		if trade.PortfolioID == uuid.Nil {
			trade.PortfolioID = id
		}
		p.Trades = append(p.Trades, trade)
	}
	return p, nil
}

func parseUUID(r Row, snake, camel string, required bool) (uuid.UUID, error) {
	raw := r.String(snake, camel, "")
	if raw == "" {
		if required {
			return uuid.Nil, fmt.Errorf("%w: %s is required", domain.ErrInvalidInput, snake)
		}
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s: %v", domain.ErrInvalidInput, snake, err)
	}
	return id, nil
}
