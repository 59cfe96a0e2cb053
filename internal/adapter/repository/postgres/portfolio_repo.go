package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/simaogato/dipledger-backend/internal/adapter/repository/rowmap"
	"github.com/simaogato/dipledger-backend/internal/domain"
)

const portfolioColumns = `id, user_id, name, daily_buy_amount, start_date, fee_rate, strategy,
		is_closed, closed_at, final_sell_amount, alarm_config`

// portfolioRepository implements domain.PortfolioRepository
type portfolioRepository struct {
	db *DB
}

// NewPortfolioRepository creates a new portfolio repository
func NewPortfolioRepository(db *DB) domain.PortfolioRepository {
	return &portfolioRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPortfolio(row rowScanner) (*domain.Portfolio, error) {
	var p domain.Portfolio
	var dailyBuyStr, feeRateStr string
	var strategyRaw, alarmRaw []byte
	var closedAt sql.NullTime
	var finalSell sql.NullString

	if err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.Name,
		&dailyBuyStr,
		&p.StartDate,
		&feeRateStr,
		&strategyRaw,
		&p.IsClosed,
		&closedAt,
		&finalSell,
		&alarmRaw,
	); err != nil {
		return nil, err
	}

	var err error
	if p.DailyBuyAmount, err = decimal.NewFromString(dailyBuyStr); err != nil {
		return nil, fmt.Errorf("failed to parse daily_buy_amount: %w", err)
	}
	if p.FeeRate, err = decimal.NewFromString(feeRateStr); err != nil {
		return nil, fmt.Errorf("failed to parse fee_rate: %w", err)
	}

	strategy, err := rowmap.Parse(strategyRaw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse strategy: %w", err)
	}
	if p.Strategy, err = rowmap.Strategy(strategy); err != nil {
		return nil, fmt.Errorf("failed to parse strategy: %w", err)
	}

	alarm, err := rowmap.Parse(alarmRaw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse alarm_config: %w", err)
	}
	p.AlarmConfig = rowmap.AlarmConfig(alarm)

	if closedAt.Valid {
		t := closedAt.Time
		p.ClosedAt = &t
	}
	if finalSell.Valid {
		gross, err := decimal.NewFromString(finalSell.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse final_sell_amount: %w", err)
		}
		p.FinalSellAmountGross = &gross
	}

	return &p, nil
}

// GetByID retrieves a portfolio and its trades
func (r *portfolioRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Portfolio, error) {
	query := `SELECT ` + portfolioColumns + ` FROM portfolios WHERE id = $1`

	p, err := scanPortfolio(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: portfolio %s", domain.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get portfolio by ID: %w", err)
	}

	trades, err := r.tradesFor(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	p.Trades = trades[id]
	return p, nil
}

// ListByUser retrieves all portfolios of a user, oldest first, with their trades
func (r *portfolioRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Portfolio, error) {
	query := `SELECT ` + portfolioColumns + ` FROM portfolios WHERE user_id = $1 ORDER BY start_date, id`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list portfolios: %w", err)
	}
	defer rows.Close()

	var portfolios []*domain.Portfolio
	var ids []uuid.UUID
	for rows.Next() {
		p, err := scanPortfolio(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan portfolio: %w", err)
		}
		portfolios = append(portfolios, p)
		ids = append(ids, p.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate portfolios: %w", err)
	}
	if len(ids) == 0 {
		return portfolios, nil
	}

	trades, err := r.tradesFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, p := range portfolios {
		p.Trades = trades[p.ID]
	}
	return portfolios, nil
}

func (r *portfolioRepository) tradesFor(ctx context.Context, portfolioIDs []uuid.UUID) (map[uuid.UUID][]domain.Trade, error) {
	query := `
		SELECT id, portfolio_id, type, instrument, date, price, quantity, fee
		FROM trades
		WHERE portfolio_id = ANY($1)
		ORDER BY date, id
	`

	ids := make([]string, len(portfolioIDs))
	for i, id := range portfolioIDs {
		ids[i] = id.String()
	}

	rows, err := r.db.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]domain.Trade, len(portfolioIDs))
	for rows.Next() {
		var t domain.Trade
		var typ, priceStr, qtyStr, feeStr string
		if err := rows.Scan(&t.ID, &t.PortfolioID, &typ, &t.Instrument, &t.Date, &priceStr, &qtyStr, &feeStr); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.Type = domain.TradeType(typ)

		if t.Price, err = decimal.NewFromString(priceStr); err != nil {
			return nil, fmt.Errorf("failed to parse trade price: %w", err)
		}
		if t.Quantity, err = decimal.NewFromString(qtyStr); err != nil {
			return nil, fmt.Errorf("failed to parse trade quantity: %w", err)
		}
		if t.Fee, err = decimal.NewFromString(feeStr); err != nil {
			return nil, fmt.Errorf("failed to parse trade fee: %w", err)
		}
		out[t.PortfolioID] = append(out[t.PortfolioID], t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate trades: %w", err)
	}
	return out, nil
}

// Create creates a new portfolio row; trades are written separately
func (r *portfolioRepository) Create(ctx context.Context, p *domain.Portfolio) error {
	query := `
		INSERT INTO portfolios (id, user_id, name, daily_buy_amount, start_date, fee_rate, strategy, is_closed, alarm_config)
		VALUES ($1, $2, $3, $4, $5, $6, $7, false, $8)
	`

	strategy, err := json.Marshal(rowmap.StrategyRow(p.Strategy))
	if err != nil {
		return fmt.Errorf("failed to encode strategy: %w", err)
	}

	var alarm any
	if row := rowmap.AlarmConfigRow(p.AlarmConfig); row != nil {
		raw, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("failed to encode alarm_config: %w", err)
		}
		alarm = raw
	}

	_, err = r.db.ExecContext(ctx, query,
		p.ID,
		p.UserID,
		p.Name,
		p.DailyBuyAmount.String(),
		p.StartDate,
		p.FeeRate.String(),
		strategy,
		alarm,
	)
	if err != nil {
		return fmt.Errorf("failed to create portfolio: %w", err)
	}
	return nil
}

// lockOpen locks the portfolio row for the rest of tx and checks it is still open
func lockOpen(ctx context.Context, tx *sql.Tx, id uuid.UUID) error {
	var isClosed bool
	err := tx.QueryRowContext(ctx, "SELECT is_closed FROM portfolios WHERE id = $1 FOR UPDATE", id).Scan(&isClosed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: portfolio %s", domain.ErrNotFound, id)
		}
		return fmt.Errorf("failed to lock portfolio: %w", err)
	}
	if isClosed {
		return domain.ErrPortfolioClosed
	}
	return nil
}

// checkHolding fails when the trades visible to tx net instrument below zero.
// Callers hold the portfolio lock, so concurrent writers cannot pass it with
// stale holdings.
func checkHolding(ctx context.Context, tx *sql.Tx, portfolioID uuid.UUID, instrument string) error {
	query := `
		SELECT COALESCE(SUM(CASE WHEN type = 'BUY' THEN quantity ELSE -quantity END), 0)::text
		FROM trades
		WHERE portfolio_id = $1 AND instrument = $2
	`
	var netStr string
	if err := tx.QueryRowContext(ctx, query, portfolioID, instrument).Scan(&netStr); err != nil {
		return fmt.Errorf("failed to check holding: %w", err)
	}
	net, err := decimal.NewFromString(netStr)
	if err != nil {
		return fmt.Errorf("failed to parse holding: %w", err)
	}
	if net.IsNegative() {
		return fmt.Errorf("%w: %s=%s", domain.ErrNegativeHolding, instrument, net.String())
	}
	return nil
}

func insertTrade(ctx context.Context, tx *sql.Tx, t *domain.Trade) error {
	query := `
		INSERT INTO trades (id, portfolio_id, type, instrument, date, price, quantity, fee)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := tx.ExecContext(ctx, query,
		t.ID,
		t.PortfolioID,
		string(t.Type),
		t.Instrument,
		t.Date,
		t.Price.String(),
		t.Quantity.String(),
		t.Fee.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert trade: %w", err)
	}
	return nil
}

// AddTrade inserts a trade while holding the portfolio row lock. A sell is
// checked against the holdings as of the lock, not as the caller last read them.
func (r *portfolioRepository) AddTrade(ctx context.Context, t *domain.Trade) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := lockOpen(ctx, tx, t.PortfolioID); err != nil {
		return err
	}
	if err := insertTrade(ctx, tx, t); err != nil {
		return err
	}
	if t.Type == domain.TradeTypeSell {
		if err := checkHolding(ctx, tx, t.PortfolioID, t.Instrument); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// DeleteTrade removes a trade while holding the portfolio row lock. Removing a
// buy that later sells depend on is rejected.
func (r *portfolioRepository) DeleteTrade(ctx context.Context, portfolioID, tradeID uuid.UUID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := lockOpen(ctx, tx, portfolioID); err != nil {
		return err
	}

	var instrument string
	err = tx.QueryRowContext(ctx,
		"DELETE FROM trades WHERE id = $1 AND portfolio_id = $2 RETURNING instrument",
		tradeID, portfolioID,
	).Scan(&instrument)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: trade %s", domain.ErrNotFound, tradeID)
		}
		return fmt.Errorf("failed to delete trade: %w", err)
	}
	if err := checkHolding(ctx, tx, portfolioID, instrument); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Close flips the portfolio to closed and appends the settlement trades.
// The update only matches an open row, so a concurrent settlement loses with
// ErrPortfolioClosed instead of closing twice.
func (r *portfolioRepository) Close(ctx context.Context, p *domain.Portfolio, settlementTrades []domain.Trade) error {
	if p.ClosedAt == nil || p.FinalSellAmountGross == nil {
		return fmt.Errorf("%w: portfolio %s has no closing fields", domain.ErrInvalidInput, p.ID)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		UPDATE portfolios
		SET is_closed = true, closed_at = $2, final_sell_amount = $3
		WHERE id = $1 AND is_closed = false
	`
	res, err := tx.ExecContext(ctx, query, p.ID, p.ClosedAt.UTC().Truncate(time.Microsecond), p.FinalSellAmountGross.String())
	if err != nil {
		return fmt.Errorf("failed to close portfolio: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to close portfolio: %w", err)
	}
	if n == 0 {
		return domain.ErrPortfolioClosed
	}

	for i := range settlementTrades {
		if err := insertTrade(ctx, tx, &settlementTrades[i]); err != nil {
			return err
		}
	}
	for i := range settlementTrades {
		if err := checkHolding(ctx, tx, p.ID, settlementTrades[i].Instrument); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
