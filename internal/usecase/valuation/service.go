package valuation

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/simaogato/dipledger-backend/internal/common"
	"github.com/simaogato/dipledger-backend/internal/domain"
	"github.com/simaogato/dipledger-backend/internal/usecase/calendar"
	"github.com/simaogato/dipledger-backend/internal/usecase/ledger"
)

const defaultFetchTimeout = 10 * time.Second

// ValuationService values open holdings fetching each symbol at most once per
// business day.
type ValuationService struct {
	Feed         domain.PriceFeed
	Cache        *SnapshotCache
	Calendar     *calendar.Calendar
	FetchTimeout time.Duration
	Logger       *common.Logger

	mu sync.Mutex
}

// NewValuationService creates a new ValuationService instance
func NewValuationService(feed domain.PriceFeed, cache *SnapshotCache, cal *calendar.Calendar, logger *common.Logger) *ValuationService {
	if logger == nil {
		logger = common.NewSilentLogger()
	}
	return &ValuationService{
		Feed:         feed,
		Cache:        cache,
		Calendar:     cal,
		FetchTimeout: defaultFetchTimeout,
		Logger:       logger,
	}
}

// Snapshot returns the price snapshot to value symbols with.
//
// Logic:
//   - a snapshot dated today is reused when it already covers symbols,
//     whatever the time of day
//   - symbols today's snapshot was never asked for are fetched alone and
//     merged into it, so each symbol is fetched at most once per business day
//   - without a snapshot for today all symbols are fetched and stored as
//     today's snapshot
//   - if the fetch fails, the last known snapshot is returned flagged stale,
//     or nil when there is none; the fetch error never reaches the caller
func (s *ValuationService) Snapshot(ctx context.Context, symbols []string) (snapshot *domain.ValuationSnapshot, stale bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cached, err := s.Cache.Load(ctx)
	if err != nil {
		s.Logger.Warn().Err(err).Msg("ignoring unreadable valuation snapshot")
		cached = nil
	}

	want := symbols
	prices := domain.PriceMap{}
	var requested []string
	if s.Cache.IsCurrent(cached) {
		want = s.Cache.Missing(cached, symbols)
		if len(want) == 0 {
			return cached, false
		}
		maps.Copy(prices, cached.Prices)
		requested = append(requested, cached.Requested...)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.FetchTimeout)
	defer cancel()

	fetched, err := s.Feed.Fetch(fetchCtx, want)
	if err != nil {
		s.Logger.Warn().Err(err).Int("symbols", len(want)).Msg("price fetch failed, using last known prices")
		return cached, true
	}
	maps.Copy(prices, fetched)
	requested = append(requested, want...)

	fresh, err := s.Cache.Save(ctx, prices, requested)
	if err != nil {
		// the prices are still good for this pass
		s.Logger.Warn().Err(err).Msg("valuation snapshot not persisted")
		if fresh == nil {
			return cached, true
		}
	}
	s.Logger.Debug().Str("date", fresh.Date).Int("fetched", len(fetched)).Int("symbols", len(prices)).Msg("valuation snapshot refreshed")
	return fresh, false
}

// Refresh values the aggregate holdings of all open portfolios.
// It never fails: integrity problems and fetch failures are logged and the
// best available numbers are returned.
func (s *ValuationService) Refresh(ctx context.Context, portfolios []*domain.Portfolio) domain.Valuation {
	holdings, err := ledger.AggregateAcross(portfolios)
	if err != nil {
		s.Logger.Warn().Err(err).Msg("holdings integrity warning")
	}

	symbols := holdings.Symbols()
	if len(symbols) == 0 {
		return ledger.Valuate(holdings, nil)
	}

	snapshot, stale := s.Snapshot(ctx, symbols)
	if snapshot == nil {
		zero := ledger.Valuate(holdings, nil)
		zero.Stale = true
		return zero
	}

	valuation := ledger.Valuate(holdings, snapshot.Prices)
	valuation.SnapshotDate = snapshot.Date
	valuation.Stale = stale
	return valuation
}

// Prices returns the quotes of the active snapshot, or nil when none is available
func (s *ValuationService) Prices(ctx context.Context, symbols []string) domain.PriceMap {
	if len(symbols) == 0 {
		return nil
	}
	snapshot, _ := s.Snapshot(ctx, symbols)
	if snapshot == nil {
		return nil
	}
	return snapshot.Prices
}

// MarketStatus returns the calendar status at the cache clock's current time
func (s *ValuationService) MarketStatus() calendar.MarketStatus {
	return s.Calendar.Status(s.Cache.Now())
}
