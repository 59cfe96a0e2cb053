package rowmap

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/simaogato/dipledger-backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup_SnakeCaseWins(t *testing.T) {
	row, err := Parse([]byte(`{"fee_rate": "0.0025", "feeRate": "0.01", "isClosed": true, "name": null}`))
	require.NoError(t, err)
	feeRate, err := row.Decimal("fee_rate", "feeRate", decimal.Zero)
	require.NoError(t, err)

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"Both spellings present", feeRate.String(), "0.0025"},
		{"Only camelCase present", row.Bool("is_closed", "isClosed", false), true},
		{"Null falls back to default", row.String("name", "name", "untitled"), "untitled"},
		{"Missing falls back to default", row.String("description", "description", "-"), "-"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestDecimal_AcceptsNumbersAndStrings(t *testing.T) {
	row, err := Parse([]byte(`{"a": 0.1, "b": "12.345", "d": 100, "e": null}`))
	require.NoError(t, err)

	tests := []struct {
		key  string
		def  decimal.Decimal
		want string
	}{
		{"a", decimal.Zero, "0.1"},
		{"b", decimal.Zero, "12.345"},
		{"d", decimal.Zero, "100"},
		{"e", decimal.NewFromInt(7), "7"},
		{"missing", decimal.NewFromInt(7), "7"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := row.Decimal(tt.key, tt.key, tt.def)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestDecimal_RejectsUnparsableValues(t *testing.T) {
	row, err := Parse([]byte(`{"comma": "2,5", "word": "abc", "flag": true, "list": [1]}`))
	require.NoError(t, err)

	for _, key := range []string{"comma", "word", "flag", "list"} {
		t.Run(key, func(t *testing.T) {
			_, err := row.Decimal(key, key, decimal.Zero)
			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestTrade_UnparsableFeeIsRejected(t *testing.T) {
	row, err := Parse([]byte(`{"id": "` + uuid.NewString() + `", "type": "BUY", "instrument": "QQQ", "price": "100", "quantity": "1", "fee": "abc"}`))
	require.NoError(t, err)

	_, err = Trade(row)

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestParse_Empty(t *testing.T) {
	for _, raw := range []string{"", "null", "  "} {
		row, err := Parse([]byte(raw))
		require.NoError(t, err)
		assert.Nil(t, row)
	}

	_, err := Parse([]byte("{"))
	assert.Error(t, err)
}

func TestPortfolio_MixedSpellings(t *testing.T) {
	id := uuid.New()
	userID := uuid.New()
	tradeID := uuid.New()
	raw := `{
		"id": "` + id.String() + `",
		"userId": "` + userID.String() + `",
		"name": "Nasdaq dips",
		"daily_buy_amount": "100",
		"dailyBuyAmount": "999",
		"startDate": "2024-01-02",
		"fee_rate": 0.0025,
		"strategy": {"instruments": ["QQQ", "TQQQ"], "dipThresholdPct": "1.5"},
		"is_closed": true,
		"closed_at": "2024-07-03T09:00:00Z",
		"finalSellAmount": "2098",
		"alarmConfig": {"enabled": true, "time": "08:30", "weekdays": [1, "wed", "Friday"]},
		"trades": [
			{"id": "` + tradeID.String() + `", "type": "buy", "instrument": "QQQ", "date": "2024-01-02", "price": "100", "quantity": 10, "fee": "1"}
		]
	}`

	row, err := Parse([]byte(raw))
	require.NoError(t, err)
	p, err := Portfolio(row)
	require.NoError(t, err)

	assert.Equal(t, id, p.ID)
	assert.Equal(t, userID, p.UserID)
	assert.Equal(t, "100", p.DailyBuyAmount.String())
	assert.Equal(t, "0.0025", p.FeeRate.String())
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), p.StartDate)
	assert.Equal(t, []string{"QQQ", "TQQQ"}, p.Strategy.Instruments)
	assert.Equal(t, "1.5", p.Strategy.DipThresholdPct.String())
	assert.True(t, p.IsClosed)
	require.NotNil(t, p.ClosedAt)
	require.NotNil(t, p.FinalSellAmountGross)
	assert.Equal(t, "2098", p.FinalSellAmountGross.String())

	require.NotNil(t, p.AlarmConfig)
	assert.Equal(t, []time.Weekday{time.Monday, time.Wednesday, time.Friday}, p.AlarmConfig.Weekdays)

	require.Len(t, p.Trades, 1)
	assert.Equal(t, domain.TradeTypeBuy, p.Trades[0].Type)
	assert.Equal(t, id, p.Trades[0].PortfolioID)
	assert.Equal(t, "10", p.Trades[0].Quantity.String())
}

func TestPortfolio_OpenHasNoClosingFields(t *testing.T) {
	row, err := Parse([]byte(`{"id": "` + uuid.NewString() + `", "name": "x"}`))
	require.NoError(t, err)

	p, err := Portfolio(row)
	require.NoError(t, err)

	assert.False(t, p.IsClosed)
	assert.Nil(t, p.ClosedAt)
	assert.Nil(t, p.FinalSellAmountGross)
	assert.Nil(t, p.AlarmConfig)
}

func TestPortfolio_InvalidFields(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"Missing id", `{"name": "x"}`},
		{"Malformed id", `{"id": "nope"}`},
		{"Malformed user id", `{"id": "` + uuid.NewString() + `", "user_id": "nope"}`},
		{"Malformed trade id", `{"id": "` + uuid.NewString() + `", "trades": [{"id": "nope"}]}`},
		{"Unparsable fee rate", `{"id": "` + uuid.NewString() + `", "fee_rate": "0,25"}`},
		{"Unparsable threshold", `{"id": "` + uuid.NewString() + `", "strategy": {"dipThresholdPct": "x"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row, err := Parse([]byte(tt.raw))
			require.NoError(t, err)

			_, err = Portfolio(row)

			assert.ErrorIs(t, err, domain.ErrInvalidInput)
		})
	}
}

func TestCanonicalRows_RoundTrip(t *testing.T) {
	strategy := domain.Strategy{Instruments: []string{"SPY"}, DipThresholdPct: decimal.RequireFromString("2"), Description: "SPY on dips"}
	alarm := &domain.AlarmConfig{Enabled: true, Time: "21:00", Weekdays: []time.Weekday{time.Saturday}}

	rawStrategy, err := json.Marshal(StrategyRow(strategy))
	require.NoError(t, err)
	assert.Contains(t, string(rawStrategy), `"dip_threshold_pct"`)
	rawAlarm, err := json.Marshal(AlarmConfigRow(alarm))
	require.NoError(t, err)

	strategyRow, err := Parse(rawStrategy)
	require.NoError(t, err)
	alarmRow, err := Parse(rawAlarm)
	require.NoError(t, err)

	gotStrategy, err := Strategy(strategyRow)
	require.NoError(t, err)
	assert.Equal(t, strategy.Instruments, gotStrategy.Instruments)
	assert.True(t, strategy.DipThresholdPct.Equal(gotStrategy.DipThresholdPct))
	assert.Equal(t, strategy.Description, gotStrategy.Description)
	assert.Equal(t, alarm, AlarmConfig(alarmRow))

	assert.Nil(t, AlarmConfigRow(nil))
}
