package domain

import (
	"context"

	"github.com/google/uuid"
)

// PortfolioRepository defines the interface for portfolio persistence operations
type PortfolioRepository interface {
	// GetByID retrieves a portfolio with all of its trades
	GetByID(ctx context.Context, id uuid.UUID) (*Portfolio, error)

	// ListByUser retrieves every portfolio owned by a user, trades included
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*Portfolio, error)

	// Create creates a new portfolio
	Create(ctx context.Context, portfolio *Portfolio) error

	// AddTrade inserts a trade for an open portfolio
	AddTrade(ctx context.Context, trade *Trade) error

	// DeleteTrade removes a trade from an open portfolio
	DeleteTrade(ctx context.Context, portfolioID, tradeID uuid.UUID) error

	// Close persists the settlement transition of an already-closed in-memory
	// portfolio: closing fields plus the appended settlement trades.
	// It must be conditional on the stored row still being open and return
	// ErrPortfolioClosed otherwise.
	Close(ctx context.Context, portfolio *Portfolio, settlementTrades []Trade) error
}

// HistoryRepository defines the interface for the settlement audit trail
type HistoryRepository interface {
	// Append writes a settlement history record
	Append(ctx context.Context, record *HistoryRecord) error

	// Delete removes a history record. It is only used to compensate a failed close.
	Delete(ctx context.Context, id uuid.UUID) error

	// ListByUser retrieves the settlement history of a user, newest first
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*HistoryRecord, error)
}

// PriceFeed returns current and previous-close prices for a set of symbols.
// Symbols the feed does not know are simply absent from the result.
type PriceFeed interface {
	Fetch(ctx context.Context, symbols []string) (PriceMap, error)
}

// KeyValueStore is a durable string-keyed, string-valued store local to the client.
// Get returns ErrNotFound for a missing key.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// ClosePriceRepository stores daily closes, one row per symbol and trade date
type ClosePriceRepository interface {
	// Upsert inserts closes, replacing any row with the same symbol and trade date
	Upsert(ctx context.Context, closes []ClosePrice) error

	// Latest returns, per symbol, the most recent close as current and the one
	// before it as previous. Symbols without stored closes are absent.
	Latest(ctx context.Context, symbols []string) (PriceMap, error)
}
