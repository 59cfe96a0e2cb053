package grpc

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/simaogato/dipledger-backend/internal/adapter/repository/rowmap"
	"github.com/simaogato/dipledger-backend/internal/common"
	"github.com/simaogato/dipledger-backend/internal/usecase/alarm"
	"github.com/simaogato/dipledger-backend/internal/usecase/calendar"
	"github.com/simaogato/dipledger-backend/internal/usecase/ledger"
	"github.com/simaogato/dipledger-backend/internal/usecase/portfolio"
	"github.com/simaogato/dipledger-backend/internal/usecase/settlement"
	"github.com/simaogato/dipledger-backend/internal/usecase/valuation"
)

// Server implements LedgerServiceServer
type Server struct {
	PortfolioService  *portfolio.PortfolioService
	SettlementService *settlement.SettlementService
	ValuationService  *valuation.ValuationService
	Calendar          *calendar.Calendar
	Logger            *common.Logger
	Now               func() time.Time
}

// NewServer creates a new gRPC server instance
func NewServer(
	portfolioService *portfolio.PortfolioService,
	settlementService *settlement.SettlementService,
	valuationService *valuation.ValuationService,
	cal *calendar.Calendar,
	logger *common.Logger,
) *Server {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &Server{
		PortfolioService:  portfolioService,
		SettlementService: settlementService,
		ValuationService:  valuationService,
		Calendar:          cal,
		Logger:            logger,
		Now:               time.Now,
	}
}

// CreatePortfolio handles the CreatePortfolio RPC
func (s *Server) CreatePortfolio(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	p, err := rowmap.Portfolio(withID(requestRow(in)))
	if err != nil {
		return nil, mapError(err)
	}
	// trades and closing fields are never accepted on create
	p.Trades = nil

	created, err := s.PortfolioService.Create(ctx, p)
	if err != nil {
		return nil, mapError(err)
	}
	return response(portfolioMap(created, nil))
}

// GetPortfolio handles the GetPortfolio RPC. The summary is valued with the
// active price snapshot.
func (s *Server) GetPortfolio(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := requireUUID(requestRow(in), "portfolio_id", "portfolioId")
	if err != nil {
		return nil, err
	}

	p, err := s.PortfolioService.Get(ctx, id)
	if err != nil {
		return nil, mapError(err)
	}

	var summary *ledger.Summary
	holdings, err := ledger.AggregateHoldings(p.Trades)
	if err != nil {
		s.Logger.Warn().Err(err).Str("portfolio_id", id.String()).Msg("holdings integrity warning")
	} else {
		prices := s.ValuationService.Prices(ctx, holdings.Symbols())
		summary, _ = ledger.Summarize(p, prices)
	}
	return response(portfolioMap(p, summary))
}

// ListPortfolios handles the ListPortfolios RPC
func (s *Server) ListPortfolios(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	userID, err := requireUUID(requestRow(in), "user_id", "userId")
	if err != nil {
		return nil, err
	}

	portfolios, err := s.PortfolioService.List(ctx, userID)
	if err != nil {
		return nil, mapError(err)
	}

	items := make([]any, 0, len(portfolios))
	for _, p := range portfolios {
		items = append(items, portfolioMap(p, nil))
	}
	return response(map[string]any{"portfolios": items})
}

// AddTrade handles the AddTrade RPC
func (s *Server) AddTrade(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	row := requestRow(in)
	portfolioID, err := requireUUID(row, "portfolio_id", "portfolioId")
	if err != nil {
		return nil, err
	}

	trade, err := rowmap.Trade(withID(row.Object("trade", "trade")))
	if err != nil {
		return nil, mapError(err)
	}

	added, err := s.PortfolioService.AddTrade(ctx, portfolioID, trade)
	if err != nil {
		return nil, mapError(err)
	}
	return response(map[string]any{"trade": tradeMap(*added)})
}

// DeleteTrade handles the DeleteTrade RPC
func (s *Server) DeleteTrade(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	row := requestRow(in)
	portfolioID, err := requireUUID(row, "portfolio_id", "portfolioId")
	if err != nil {
		return nil, err
	}
	tradeID, err := requireUUID(row, "trade_id", "tradeId")
	if err != nil {
		return nil, err
	}

	if err := s.PortfolioService.DeleteTrade(ctx, portfolioID, tradeID); err != nil {
		return nil, mapError(err)
	}
	return response(map[string]any{"deleted": true})
}

// DraftSettlement handles the DraftSettlement RPC: one editable sale row per
// held instrument at the active snapshot's current price
func (s *Server) DraftSettlement(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := requireUUID(requestRow(in), "portfolio_id", "portfolioId")
	if err != nil {
		return nil, err
	}

	p, err := s.PortfolioService.Get(ctx, id)
	if err != nil {
		return nil, mapError(err)
	}
	holdings, err := ledger.AggregateHoldings(p.Trades)
	if err != nil {
		return nil, mapError(err)
	}

	entries, err := s.SettlementService.Draft(ctx, id, s.ValuationService.Prices(ctx, holdings.Symbols()))
	if err != nil {
		return nil, mapError(err)
	}

	items := make([]any, 0, len(entries))
	for _, e := range entries {
		items = append(items, saleEntryMap(e))
	}
	return response(map[string]any{"entries": items, "additional_fee": decimal.Zero.String()})
}

// PreviewSettlement handles the PreviewSettlement RPC
func (s *Server) PreviewSettlement(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	row := requestRow(in)
	id, err := requireUUID(row, "portfolio_id", "portfolioId")
	if err != nil {
		return nil, err
	}

	input, err := settlementInput(row)
	if err != nil {
		return nil, mapError(err)
	}

	result, err := s.SettlementService.Preview(ctx, id, input)
	if err != nil {
		return nil, mapError(err)
	}
	return response(settlementMap(result))
}

// Settle handles the Settle RPC
func (s *Server) Settle(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	row := requestRow(in)
	id, err := requireUUID(row, "portfolio_id", "portfolioId")
	if err != nil {
		return nil, err
	}

	input, err := settlementInput(row)
	if err != nil {
		return nil, mapError(err)
	}

	result, err := s.SettlementService.Settle(ctx, id, input)
	if err != nil {
		return nil, mapError(err)
	}
	return response(settlementMap(result))
}

// ListSettlementHistory handles the ListSettlementHistory RPC
func (s *Server) ListSettlementHistory(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	userID, err := requireUUID(requestRow(in), "user_id", "userId")
	if err != nil {
		return nil, err
	}

	records, err := s.SettlementService.History(ctx, userID)
	if err != nil {
		return nil, mapError(err)
	}

	items := make([]any, 0, len(records))
	for _, r := range records {
		items = append(items, historyMap(r))
	}
	return response(map[string]any{"history": items})
}

// GetValuation handles the GetValuation RPC. Price-feed failures never fail
// the call; the result is flagged stale instead.
func (s *Server) GetValuation(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	userID, err := requireUUID(requestRow(in), "user_id", "userId")
	if err != nil {
		return nil, err
	}

	portfolios, err := s.PortfolioService.List(ctx, userID)
	if err != nil {
		return nil, mapError(err)
	}

	v := s.ValuationService.Refresh(ctx, portfolios)
	holdings, _ := ledger.AggregateAcross(portfolios)

	m := valuationMap(v)
	m["holdings"] = holdingsMap(holdings)
	m["market"] = marketStatusMap(s.ValuationService.MarketStatus())
	return response(m)
}

// GetMarketStatus handles the GetMarketStatus RPC
func (s *Server) GetMarketStatus(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	at, err := instantOf(requestRow(in), s.Now())
	if err != nil {
		return nil, err
	}
	return response(marketStatusMap(s.Calendar.Status(at)))
}

// ListHolidays handles the ListHolidays RPC
func (s *Server) ListHolidays(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	year, err := yearOf(requestRow(in), s.Now().In(s.Calendar.Location()).Year())
	if err != nil {
		return nil, err
	}
	return response(holidaysMap(year))
}

// ListDueAlarms handles the ListDueAlarms RPC: the open portfolios of a user
// whose reminder fires in the current minute
func (s *Server) ListDueAlarms(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	row := requestRow(in)
	userID, err := requireUUID(row, "user_id", "userId")
	if err != nil {
		return nil, err
	}
	at, err := instantOf(row, s.Now())
	if err != nil {
		return nil, err
	}

	portfolios, err := s.PortfolioService.List(ctx, userID)
	if err != nil {
		return nil, mapError(err)
	}

	due := alarm.Due(portfolios, at, s.Calendar.Location())
	items := make([]any, 0, len(due))
	for _, p := range due {
		items = append(items, map[string]any{"portfolio_id": p.ID.String(), "name": p.Name})
	}
	return response(map[string]any{"due": items})
}

var _ LedgerServiceServer = (*Server)(nil)
