package portfolio

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/simaogato/dipledger-backend/internal/common"
	"github.com/simaogato/dipledger-backend/internal/domain"
	"github.com/simaogato/dipledger-backend/internal/usecase/ledger"
)

// PortfolioService handles portfolio and trade bookkeeping
type PortfolioService struct {
	PortfolioRepo domain.PortfolioRepository
	Logger        *common.Logger
	Now           func() time.Time
}

// NewPortfolioService creates a new PortfolioService instance
func NewPortfolioService(portfolioRepo domain.PortfolioRepository, logger *common.Logger) *PortfolioService {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &PortfolioService{
		PortfolioRepo: portfolioRepo,
		Logger:        logger,
		Now:           time.Now,
	}
}

// Create validates and stores a new open portfolio.
// Trades must be added one by one afterwards.
func (s *PortfolioService) Create(ctx context.Context, p *domain.Portfolio) (*domain.Portfolio, error) {
	if p.UserID == uuid.Nil {
		return nil, fmt.Errorf("%w: portfolio must belong to a user", domain.ErrInvalidInput)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.StartDate.IsZero() {
		p.StartDate = s.Now()
	}
	p.IsClosed = false
	p.ClosedAt = nil
	p.FinalSellAmountGross = nil
	p.Trades = nil

	if err := s.PortfolioRepo.Create(ctx, p); err != nil {
		return nil, err
	}
	s.Logger.Info().Str("portfolio_id", p.ID.String()).Str("name", p.Name).Msg("portfolio created")
	return p, nil
}

// Get returns a portfolio with its trades
func (s *PortfolioService) Get(ctx context.Context, id uuid.UUID) (*domain.Portfolio, error) {
	return s.PortfolioRepo.GetByID(ctx, id)
}

// List returns every portfolio of a user, open and closed
func (s *PortfolioService) List(ctx context.Context, userID uuid.UUID) ([]*domain.Portfolio, error) {
	return s.PortfolioRepo.ListByUser(ctx, userID)
}

// AddTrade records a buy or sell against an open portfolio.
// A sell that would take any holding below zero is rejected before anything is written.
func (s *PortfolioService) AddTrade(ctx context.Context, portfolioID uuid.UUID, trade domain.Trade) (*domain.Trade, error) {
	if err := trade.Validate(); err != nil {
		return nil, err
	}

	p, err := s.PortfolioRepo.GetByID(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	if p.IsClosed {
		return nil, domain.ErrPortfolioClosed
	}

	if trade.ID == uuid.Nil {
		trade.ID = uuid.New()
	}
	trade.PortfolioID = portfolioID
	if trade.Date.IsZero() {
		trade.Date = s.Now()
	}

	next := append(slices.Clone(p.Trades), trade)
	if _, err := ledger.AggregateHoldings(next); err != nil {
		return nil, err
	}

	if err := s.PortfolioRepo.AddTrade(ctx, &trade); err != nil {
		return nil, err
	}
	s.Logger.Debug().
		Str("portfolio_id", portfolioID.String()).
		Str("type", string(trade.Type)).
		Str("instrument", trade.Instrument).
		Str("quantity", trade.Quantity.String()).
		Msg("trade recorded")
	return &trade, nil
}

// DeleteTrade removes a trade from an open portfolio.
// Deleting a buy that later sells depend on is rejected.
func (s *PortfolioService) DeleteTrade(ctx context.Context, portfolioID, tradeID uuid.UUID) error {
	p, err := s.PortfolioRepo.GetByID(ctx, portfolioID)
	if err != nil {
		return err
	}
	if p.IsClosed {
		return domain.ErrPortfolioClosed
	}

	idx := slices.IndexFunc(p.Trades, func(t domain.Trade) bool { return t.ID == tradeID })
	if idx < 0 {
		return fmt.Errorf("%w: trade %s in portfolio %s", domain.ErrNotFound, tradeID, portfolioID)
	}

	remaining := slices.Delete(slices.Clone(p.Trades), idx, idx+1)
	if _, err := ledger.AggregateHoldings(remaining); err != nil {
		return err
	}

	if err := s.PortfolioRepo.DeleteTrade(ctx, portfolioID, tradeID); err != nil {
		return err
	}
	s.Logger.Debug().Str("portfolio_id", portfolioID.String()).Str("trade_id", tradeID.String()).Msg("trade deleted")
	return nil
}

// Summaries returns per-portfolio performance figures for a user valued at prices
// Portfolios whose ledger fails the integrity check are logged and left out.
func (s *PortfolioService) Summaries(ctx context.Context, userID uuid.UUID, prices domain.PriceMap) (map[uuid.UUID]*ledger.Summary, error) {
	portfolios, err := s.PortfolioRepo.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	summaries := make(map[uuid.UUID]*ledger.Summary, len(portfolios))
	for _, p := range portfolios {
		summary, err := ledger.Summarize(p, prices)
		if err != nil {
			s.Logger.Warn().Err(err).Str("portfolio_id", p.ID.String()).Msg("holdings integrity warning")
			continue
		}
		summaries[p.ID] = summary
	}
	return summaries, nil
}
