package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/simaogato/dipledger-backend/internal/common"
	"github.com/simaogato/dipledger-backend/internal/domain"
)

// SettlementService handles the one-time termination of a portfolio
type SettlementService struct {
	PortfolioRepo domain.PortfolioRepository
	HistoryRepo   domain.HistoryRepository
	Logger        *common.Logger
	Now           func() time.Time
}

// NewSettlementService creates a new SettlementService instance
func NewSettlementService(portfolioRepo domain.PortfolioRepository, historyRepo domain.HistoryRepository, logger *common.Logger) *SettlementService {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &SettlementService{
		PortfolioRepo: portfolioRepo,
		HistoryRepo:   historyRepo,
		Logger:        logger,
		Now:           time.Now,
	}
}

// Preview loads a portfolio and computes its settlement without persisting anything
func (s *SettlementService) Preview(ctx context.Context, portfolioID uuid.UUID, input domain.SettlementInput) (*domain.SettlementResult, error) {
	portfolio, err := s.PortfolioRepo.GetByID(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	result, _, err := Compute(portfolio, input, s.Now())
	return result, err
}

// Draft returns the pre-populated final-sale entries of a portfolio
func (s *SettlementService) Draft(ctx context.Context, portfolioID uuid.UUID, prices domain.PriceMap) ([]domain.SaleEntry, error) {
	portfolio, err := s.PortfolioRepo.GetByID(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	if portfolio.IsClosed {
		return nil, domain.ErrPortfolioClosed
	}
	return DraftEntries(portfolio, prices)
}

// Settle terminates a portfolio.
//
// Logic:
//   - reject closed portfolios and invalid input before any write
//   - step 1: append the history record; if it fails, stop (step 2 never runs,
//     nothing to undo)
//   - step 2: persist the closed portfolio conditionally on it still being open;
//     if it fails, delete the history record written in step 1
//   - if that delete fails too, report ErrOrphanedHistory instead of the close
//     failure; the record stays behind and is not safe to retry over
//
// Either both the history record and the closed portfolio exist, or neither
// does, except for the ErrOrphanedHistory case.
func (s *SettlementService) Settle(ctx context.Context, portfolioID uuid.UUID, input domain.SettlementInput) (*domain.SettlementResult, error) {
	portfolio, err := s.PortfolioRepo.GetByID(ctx, portfolioID)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	result, sells, err := Compute(portfolio, input, now)
	if err != nil {
		s.Logger.Warn().Err(err).Str("portfolio_id", portfolioID.String()).Msg("settlement rejected")
		return nil, err
	}

	record := HistoryRecordFor(result, now)
	if err := s.HistoryRepo.Append(ctx, record); err != nil {
		s.Logger.Error().Err(err).Str("portfolio_id", portfolioID.String()).Msg("settlement history write failed, portfolio left open")
		return nil, fmt.Errorf("%w: %v", domain.ErrHistoryWrite, err)
	}

	if err := portfolio.Close(now, result.FinalSellAmountGross, sells); err != nil {
		return nil, s.compensate(ctx, record, err)
	}

	if err := s.PortfolioRepo.Close(ctx, portfolio, sells); err != nil {
		s.Logger.Error().Err(err).Str("portfolio_id", portfolioID.String()).Msg("portfolio close failed after history write")
		if !errors.Is(err, domain.ErrPortfolioClosed) && !errors.Is(err, domain.ErrNegativeHolding) {
			err = fmt.Errorf("%w: %v", domain.ErrCloseWrite, err)
		}
		return nil, s.compensate(ctx, record, err)
	}

	s.Logger.Info().
		Str("portfolio_id", portfolioID.String()).
		Str("total_return", result.TotalReturn.String()).
		Str("profit", result.Profit.String()).
		Str("yield_rate", result.YieldRate.StringFixed(2)).
		Msg("portfolio settled")

	return result, nil
}

// compensate removes the history record of a failed settlement and returns
// the error the caller should report for cause
func (s *SettlementService) compensate(ctx context.Context, record *domain.HistoryRecord, cause error) error {
	err := s.HistoryRepo.Delete(ctx, record.ID)
	if err == nil {
		return cause
	}
	s.Logger.Error().
		Err(err).
		Str("history_id", record.ID.String()).
		Str("portfolio_id", record.PortfolioID.String()).
		AnErr("cause", cause).
		Msg("failed to remove orphaned settlement history")
	return fmt.Errorf("%w: history %s: %v (settlement failed: %v)", domain.ErrOrphanedHistory, record.ID, err, cause)
}

// History returns the settlement history of a user
func (s *SettlementService) History(ctx context.Context, userID uuid.UUID) ([]*domain.HistoryRecord, error) {
	return s.HistoryRepo.ListByUser(ctx, userID)
}
