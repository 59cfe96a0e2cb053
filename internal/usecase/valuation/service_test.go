package valuation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/simaogato/dipledger-backend/internal/domain"
	"github.com/simaogato/dipledger-backend/internal/usecase/calendar"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockPriceFeed is a mock implementation of PriceFeed for testing
type MockPriceFeed struct {
	mock.Mock
}

func (m *MockPriceFeed) Fetch(ctx context.Context, symbols []string) (domain.PriceMap, error) {
	args := m.Called(ctx, symbols)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(domain.PriceMap), args.Error(1)
}

// memoryStore is an in-memory KeyValueStore
type memoryStore struct {
	mu     sync.Mutex
	values map[string]string
	setErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: make(map[string]string)}
}

func (s *memoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok {
		return "", domain.ErrNotFound
	}
	return v, nil
}

func (s *memoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return s.setErr
	}
	s.values[key] = value
	return nil
}

func (s *memoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	feed    *MockPriceFeed
	store   *memoryStore
	now     time.Time
	service *ValuationService
}

func newFixture(start time.Time) *fixture {
	f := &fixture{feed: new(MockPriceFeed), store: newMemoryStore(), now: start}
	cal := calendar.Default()
	cache := NewSnapshotCache(f.store, cal)
	cache.Now = func() time.Time { return f.now }
	f.service = NewValuationService(f.feed, cache, cal, nil)
	return f
}

func kst(s string) time.Time {
	t, err := time.ParseInLocation("2006-01-02 15:04", s, calendar.BusinessTimezone)
	if err != nil {
		panic(err)
	}
	return t
}

func holding(symbol, qty string) *domain.Portfolio {
	return &domain.Portfolio{
		ID: uuid.New(),
		Trades: []domain.Trade{
			{ID: uuid.New(), Type: domain.TradeTypeBuy, Instrument: symbol, Quantity: dec(qty), Price: dec("1")},
		},
	}
}

func assertSameValuation(t *testing.T, want, got domain.Valuation) {
	t.Helper()
	assert.True(t, want.Current.Equal(got.Current), "current: %s != %s", want.Current, got.Current)
	assert.True(t, want.Previous.Equal(got.Previous), "previous: %s != %s", want.Previous, got.Previous)
	assert.Equal(t, want.SnapshotDate, got.SnapshotDate)
	assert.Equal(t, want.Stale, got.Stale)
}

var qqqPrices = domain.PriceMap{"QQQ": {Current: dec("110"), Previous: dec("100")}}

func TestRefresh_SameDayFetchesOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(kst("2024-07-03 09:00"))
	f.feed.On("Fetch", mock.Anything, mock.Anything).Return(qqqPrices, nil)

	portfolios := []*domain.Portfolio{holding("QQQ", "5"), holding("QQQ", "5")}

	first := f.service.Refresh(ctx, portfolios)
	f.now = kst("2024-07-03 23:59")
	second := f.service.Refresh(ctx, portfolios)

	f.feed.AssertNumberOfCalls(t, "Fetch", 1)
	assert.True(t, first.Current.Equal(dec("1100")))
	assert.True(t, first.Previous.Equal(dec("1000")))
	assert.True(t, first.Delta.Equal(dec("100")))
	assert.True(t, first.ChangePct.Equal(dec("10")))
	assert.Equal(t, "2024-07-03", first.SnapshotDate)
	assert.False(t, first.Stale)
	assertSameValuation(t, first, second)
}

func TestRefresh_FreshCloseDoesNotForceRefetch(t *testing.T) {
	ctx := context.Background()
	// fetched before the 07:20 cutoff, re-read after it: still date-keyed
	f := newFixture(kst("2024-07-03 06:00"))
	f.feed.On("Fetch", mock.Anything, mock.Anything).Return(qqqPrices, nil)
	portfolios := []*domain.Portfolio{holding("QQQ", "1")}

	f.service.Refresh(ctx, portfolios)
	f.now = kst("2024-07-03 08:00")
	require.True(t, f.service.Calendar.HasFreshCloseAvailable(f.now))
	f.service.Refresh(ctx, portfolios)

	f.feed.AssertNumberOfCalls(t, "Fetch", 1)
}

func TestRefresh_MidnightForcesOneRefetch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(kst("2024-07-03 23:50"))
	f.feed.On("Fetch", mock.Anything, mock.Anything).Return(qqqPrices, nil).Once()
	f.feed.On("Fetch", mock.Anything, mock.Anything).Return(domain.PriceMap{"QQQ": {Current: dec("120"), Previous: dec("110")}}, nil).Once()
	portfolios := []*domain.Portfolio{holding("QQQ", "1")}

	f.service.Refresh(ctx, portfolios)
	f.now = kst("2024-07-04 00:10")
	next := f.service.Refresh(ctx, portfolios)
	f.now = kst("2024-07-04 12:00")
	again := f.service.Refresh(ctx, portfolios)

	f.feed.AssertNumberOfCalls(t, "Fetch", 2)
	assert.Equal(t, "2024-07-04", next.SnapshotDate)
	assert.True(t, next.Current.Equal(dec("120")))
	assertSameValuation(t, next, again)
}

func TestRefresh_FetchFailureWithoutSnapshotIsZero(t *testing.T) {
	ctx := context.Background()
	f := newFixture(kst("2024-07-03 09:00"))
	f.feed.On("Fetch", mock.Anything, mock.Anything).Return(nil, errors.New("feed unavailable"))

	v := f.service.Refresh(ctx, []*domain.Portfolio{holding("QQQ", "1")})

	assert.True(t, v.Current.IsZero())
	assert.True(t, v.ChangePct.IsZero())
	assert.True(t, v.Stale)
}

func TestRefresh_FetchFailureFallsBackToLastKnown(t *testing.T) {
	ctx := context.Background()
	f := newFixture(kst("2024-07-02 09:00"))
	f.feed.On("Fetch", mock.Anything, mock.Anything).Return(qqqPrices, nil).Once()
	f.feed.On("Fetch", mock.Anything, mock.Anything).Return(nil, context.DeadlineExceeded)
	portfolios := []*domain.Portfolio{holding("QQQ", "2")}

	f.service.Refresh(ctx, portfolios)
	f.now = kst("2024-07-03 09:00")
	v := f.service.Refresh(ctx, portfolios)

	assert.True(t, v.Stale)
	assert.Equal(t, "2024-07-02", v.SnapshotDate)
	assert.True(t, v.Current.Equal(dec("220")))

	// no snapshot was stored for today, so the next pass tries again
	f.service.Refresh(ctx, portfolios)
	f.feed.AssertNumberOfCalls(t, "Fetch", 3)
}

func TestRefresh_NoHoldingsSkipsFetch(t *testing.T) {
	f := newFixture(kst("2024-07-03 09:00"))

	v := f.service.Refresh(context.Background(), nil)

	assert.True(t, v.Current.IsZero())
	f.feed.AssertNotCalled(t, "Fetch", mock.Anything, mock.Anything)
}

func TestRefresh_StoreWriteFailureStillValues(t *testing.T) {
	f := newFixture(kst("2024-07-03 09:00"))
	f.store.setErr = errors.New("disk full")
	f.feed.On("Fetch", mock.Anything, mock.Anything).Return(qqqPrices, nil)

	v := f.service.Refresh(context.Background(), []*domain.Portfolio{holding("QQQ", "1")})

	assert.True(t, v.Current.Equal(dec("110")))
	assert.False(t, v.Stale)
}

func TestRefresh_CorruptSnapshotIsRefetched(t *testing.T) {
	f := newFixture(kst("2024-07-03 09:00"))
	f.store.values[SnapshotKey] = "{not json"
	f.feed.On("Fetch", mock.Anything, mock.Anything).Return(qqqPrices, nil)

	v := f.service.Refresh(context.Background(), []*domain.Portfolio{holding("QQQ", "1")})

	assert.True(t, v.Current.Equal(dec("110")))
	f.feed.AssertNumberOfCalls(t, "Fetch", 1)
}

func TestSnapshotCache_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore()
	cache := NewSnapshotCache(store, calendar.Default())
	cache.Now = func() time.Time { return time.Date(2024, 7, 3, 16, 0, 0, 0, time.UTC) }

	missing, err := cache.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, missing)

	_, err = cache.Save(ctx, qqqPrices, []string{"QQQ", "QQQ"})
	require.NoError(t, err)

	loaded, err := cache.Load(ctx)
	require.NoError(t, err)
	// 16:00 UTC is already the next day in the business timezone
	assert.Equal(t, "2024-07-04", loaded.Date)
	assert.True(t, loaded.Prices["QQQ"].Current.Equal(dec("110")))
	assert.True(t, cache.IsCurrent(loaded))
	assert.Equal(t, []string{"QQQ"}, loaded.Requested)
	assert.Contains(t, store.values[SnapshotKey], `"lastUpdatedAt"`)
}

func TestPrices_UsesActiveSnapshot(t *testing.T) {
	f := newFixture(kst("2024-07-03 09:00"))
	f.feed.On("Fetch", mock.Anything, []string{"QQQ"}).Return(qqqPrices, nil)

	prices := f.service.Prices(context.Background(), []string{"QQQ"})

	assert.True(t, prices["QQQ"].Previous.Equal(dec("100")))
	assert.Equal(t, calendar.ReasonOpen, f.service.MarketStatus().Reason)
}

func TestRefresh_LaterSymbolsAreFetchedAndMerged(t *testing.T) {
	ctx := context.Background()
	f := newFixture(kst("2024-07-03 09:00"))
	f.feed.On("Fetch", mock.Anything, []string{"QQQ"}).Return(qqqPrices, nil).Once()
	f.feed.On("Fetch", mock.Anything, []string{"SPY"}).
		Return(domain.PriceMap{"SPY": {Current: dec("500"), Previous: dec("490")}}, nil).Once()

	f.service.Prices(ctx, []string{"QQQ"})
	v := f.service.Refresh(ctx, []*domain.Portfolio{holding("SPY", "2")})

	assert.True(t, v.Current.Equal(dec("1000")), "current: %s", v.Current)
	assert.True(t, v.Previous.Equal(dec("980")))
	assert.False(t, v.Stale)

	// both symbols now come from today's snapshot
	prices := f.service.Prices(ctx, []string{"QQQ", "SPY"})
	assert.True(t, prices["QQQ"].Current.Equal(dec("110")))
	assert.True(t, prices["SPY"].Current.Equal(dec("500")))
	f.feed.AssertNumberOfCalls(t, "Fetch", 2)
}

func TestRefresh_UnknownSymbolIsNotRefetchedSameDay(t *testing.T) {
	ctx := context.Background()
	f := newFixture(kst("2024-07-03 09:00"))
	f.feed.On("Fetch", mock.Anything, []string{"QQQ", "ZZZZ"}).Return(qqqPrices, nil).Once()
	portfolios := []*domain.Portfolio{holding("QQQ", "1"), holding("ZZZZ", "3")}

	first := f.service.Refresh(ctx, portfolios)
	second := f.service.Refresh(ctx, portfolios)

	f.feed.AssertNumberOfCalls(t, "Fetch", 1)
	assert.True(t, first.Current.Equal(dec("110")))
	assertSameValuation(t, first, second)
}

func TestRefresh_MissingSymbolFetchFailureIsStale(t *testing.T) {
	ctx := context.Background()
	f := newFixture(kst("2024-07-03 09:00"))
	f.feed.On("Fetch", mock.Anything, []string{"QQQ"}).Return(qqqPrices, nil).Once()
	f.feed.On("Fetch", mock.Anything, []string{"SPY"}).Return(nil, errors.New("feed unavailable"))

	f.service.Prices(ctx, []string{"QQQ"})
	v := f.service.Refresh(ctx, []*domain.Portfolio{holding("QQQ", "1"), holding("SPY", "1")})

	assert.True(t, v.Stale)
	assert.True(t, v.Current.Equal(dec("110")))
	assert.Equal(t, "2024-07-03", v.SnapshotDate)
}
