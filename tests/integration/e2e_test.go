//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	grpcadapter "github.com/simaogato/dipledger-backend/internal/adapter/grpc"
	"github.com/simaogato/dipledger-backend/internal/adapter/repository/postgres"
	"github.com/simaogato/dipledger-backend/internal/domain"
)

var (
	db         *postgres.DB
	grpcClient *grpcadapter.LedgerServiceClient
	grpcConn   *grpc.ClientConn
)

// TestMain connects to the database and to a running server
func TestMain(m *testing.M) {
	ctx := context.Background()

	// 1. Connect to Database
	var err error
	db, err = postgres.NewDB(ctx, getDBConnectionString(), postgres.PoolOptions{MaxOpenConns: 4})
	if err != nil {
		panic(fmt.Sprintf("Failed to connect to database: %v", err))
	}

	// 2. Self-Healing Setup: the server normally creates the tables, but the
	// repository tests below may run before it ever started
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		panic(fmt.Sprintf("Failed to apply schema: %v", err))
	}

	// 3. Connect to gRPC Server
	grpcConn, err = grpc.NewClient(getGRPCAddress(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		panic(fmt.Sprintf("Failed to connect to gRPC server: %v", err))
	}
	grpcClient = grpcadapter.NewLedgerServiceClient(grpcConn)

	code := m.Run()

	grpcConn.Close()
	db.Close()
	os.Exit(code)
}

func getAuthContext() context.Context {
	token := os.Getenv("API_TOKEN")
	if token == "" {
		token = "dev-token"
	}
	md := metadata.New(map[string]string{
		"authorization": "Bearer " + token,
	})
	return metadata.NewOutgoingContext(context.Background(), md)
}

// getDBConnectionString returns the database connection string from environment or defaults
func getDBConnectionString() string {
	if connStr := os.Getenv("DB_CONN_STR"); connStr != "" {
		return connStr
	}

	getenv := func(key, fallback string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return fallback
	}

	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		getenv("DB_HOST", "localhost"),
		getenv("DB_PORT", "5432"),
		getenv("DB_USER", "postgres"),
		getenv("DB_PASSWORD", "postgres"),
		getenv("DB_NAME", "dipledger"))
}

// getGRPCAddress returns the gRPC server address from environment or defaults
func getGRPCAddress() string {
	addr := os.Getenv("GRPC_ADDRESS")
	if addr == "" {
		addr = "localhost:8080"
	}
	return addr
}

func call(t *testing.T, method string, req map[string]any) *structpb.Struct {
	t.Helper()
	resp, err := callErr(t, method, req)
	require.NoError(t, err, "%s should succeed", method)
	return resp
}

func callErr(t *testing.T, method string, req map[string]any) (*structpb.Struct, error) {
	t.Helper()
	in, err := structpb.NewStruct(req)
	require.NoError(t, err)
	return grpcClient.Call(getAuthContext(), method, in)
}

// TestEndToEndFlow creates a portfolio, buys twice, previews and settles it
func TestEndToEndFlow(t *testing.T) {
	userID := uuid.New()

	created := call(t, "CreatePortfolio", map[string]any{
		"user_id":        userID.String(),
		"name":           "Nasdaq dips",
		"dailyBuyAmount": "1000",
		"fee_rate":       "0.001",
		"strategy":       map[string]any{"instruments": []any{"QQQ"}, "dip_threshold_pct": "1.5"},
		"alarmConfig":    map[string]any{"enabled": true, "time": "08:30", "weekdays": []any{1, 2, 3, 4, 5}},
	}).AsMap()
	portfolioID, ok := created["id"].(string)
	require.True(t, ok, "CreatePortfolio should return an id")

	for _, price := range []string{"100", "90"} {
		call(t, "AddTrade", map[string]any{
			"portfolio_id": portfolioID,
			"trade": map[string]any{
				"type":       "BUY",
				"instrument": "QQQ",
				"price":      price,
				"quantity":   "10",
				"fee":        "1",
			},
		})
	}

	t.Run("Draft", func(t *testing.T) {
		resp := call(t, "DraftSettlement", map[string]any{"portfolio_id": portfolioID}).AsMap()
		entries, ok := resp["entries"].([]any)
		require.True(t, ok)
		require.Len(t, entries, 1)
		entry := entries[0].(map[string]any)
		assert.Equal(t, "QQQ", entry["instrument"])
		assert.Equal(t, "20", entry["quantity"])
	})

	settleReq := map[string]any{
		"portfolio_id": portfolioID,
		"entries": []any{
			map[string]any{"instrument": "QQQ", "quantity": "20", "price": "105", "fee": "2"},
		},
	}

	t.Run("Preview", func(t *testing.T) {
		resp := call(t, "PreviewSettlement", settleReq).AsMap()
		assert.Equal(t, "1902", resp["total_invested"])
		assert.Equal(t, "196", resp["profit"])
		assert.Equal(t, "10.30", resp["yield_rate"])
	})

	t.Run("Settle", func(t *testing.T) {
		resp := call(t, "Settle", settleReq).AsMap()
		assert.Equal(t, "2098", resp["total_return"])
		assert.Equal(t, true, resp["is_closed"])
	})

	t.Run("SettleTwice", func(t *testing.T) {
		_, err := callErr(t, "Settle", settleReq)
		require.Error(t, err)
		assert.Equal(t, codes.FailedPrecondition, status.Code(err))
	})

	t.Run("TradeOnClosedPortfolio", func(t *testing.T) {
		_, err := callErr(t, "AddTrade", map[string]any{
			"portfolio_id": portfolioID,
			"trade":        map[string]any{"type": "BUY", "instrument": "QQQ", "price": "100", "quantity": "1"},
		})
		require.Error(t, err)
		assert.Equal(t, codes.FailedPrecondition, status.Code(err))
	})

	t.Run("History", func(t *testing.T) {
		resp := call(t, "ListSettlementHistory", map[string]any{"user_id": userID.String()}).AsMap()
		history, ok := resp["history"].([]any)
		require.True(t, ok)
		require.Len(t, history, 1)
		record := history[0].(map[string]any)
		assert.Equal(t, portfolioID, record["portfolio_id"])
		assert.Equal(t, "Nasdaq dips", record["portfolio_name"])
		assert.Equal(t, "196", record["total_profit"])
	})

	t.Run("StoredClosingFields", func(t *testing.T) {
		p, err := postgres.NewPortfolioRepository(db).GetByID(context.Background(), uuid.MustParse(portfolioID))
		require.NoError(t, err)
		assert.True(t, p.IsClosed)
		require.NotNil(t, p.FinalSellAmountGross)
		assert.True(t, decimal.RequireFromString("2098").Equal(*p.FinalSellAmountGross))
		require.NotNil(t, p.AlarmConfig)
		assert.Equal(t, "08:30", p.AlarmConfig.Time)
		// two buys plus the settlement sell
		assert.Len(t, p.Trades, 3)
	})
}

func TestNegativeScenarios(t *testing.T) {
	t.Run("UnknownPortfolio", func(t *testing.T) {
		_, err := callErr(t, "GetPortfolio", map[string]any{"portfolio_id": uuid.NewString()})
		require.Error(t, err)
		assert.Equal(t, codes.NotFound, status.Code(err))
	})

	t.Run("InvalidUUID", func(t *testing.T) {
		_, err := callErr(t, "GetPortfolio", map[string]any{"portfolio_id": "not-a-uuid"})
		require.Error(t, err)
		assert.Equal(t, codes.InvalidArgument, status.Code(err))
	})

	t.Run("MissingToken", func(t *testing.T) {
		_, err := grpcClient.Call(context.Background(), "GetMarketStatus", nil)
		require.Error(t, err)
		assert.Equal(t, codes.Unauthenticated, status.Code(err))
	})

	t.Run("Oversell", func(t *testing.T) {
		created := call(t, "CreatePortfolio", map[string]any{
			"user_id":          uuid.NewString(),
			"name":             "Oversell",
			"daily_buy_amount": "100",
		}).AsMap()
		portfolioID := created["id"].(string)
		call(t, "AddTrade", map[string]any{
			"portfolio_id": portfolioID,
			"trade":        map[string]any{"type": "BUY", "instrument": "SPY", "price": "500", "quantity": "1"},
		})

		_, err := callErr(t, "AddTrade", map[string]any{
			"portfolio_id": portfolioID,
			"trade":        map[string]any{"type": "SELL", "instrument": "SPY", "price": "510", "quantity": "2"},
		})
		require.Error(t, err)
		assert.Equal(t, codes.FailedPrecondition, status.Code(err))
	})
}

func TestReadFlow(t *testing.T) {
	t.Run("MarketStatus", func(t *testing.T) {
		resp := call(t, "GetMarketStatus", map[string]any{"at": "2024-07-04T12:00:00+09:00"}).AsMap()
		assert.Equal(t, false, resp["open"])
		assert.Equal(t, "holiday", resp["reason"])
	})

	t.Run("Holidays", func(t *testing.T) {
		resp := call(t, "ListHolidays", map[string]any{"year": 2024}).AsMap()
		holidays, ok := resp["holidays"].([]any)
		require.True(t, ok)
		assert.NotEmpty(t, holidays)
	})
}

// TestClosePriceRepository exercises the stored-close feed directly
func TestClosePriceRepository(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewClosePriceRepository(db)
	symbol := "IT" + uuid.NewString()[:6]
	fetchedAt := time.Now().UTC()

	closes := []domain.ClosePrice{
		{Symbol: symbol, TradeDate: time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), Close: decimal.RequireFromString("10"), FetchedAt: fetchedAt},
		{Symbol: symbol, TradeDate: time.Date(2024, 7, 2, 0, 0, 0, 0, time.UTC), Close: decimal.RequireFromString("11"), FetchedAt: fetchedAt},
	}
	require.NoError(t, repo.Upsert(ctx, closes))

	// re-running a day overwrites instead of duplicating
	closes[1].Close = decimal.RequireFromString("12")
	require.NoError(t, repo.Upsert(ctx, closes[1:]))

	prices, err := repo.Fetch(ctx, []string{symbol})
	require.NoError(t, err)
	require.Contains(t, prices, symbol)
	assert.True(t, decimal.RequireFromString("12").Equal(prices[symbol].Current))
	assert.True(t, decimal.RequireFromString("10").Equal(prices[symbol].Previous))
}
