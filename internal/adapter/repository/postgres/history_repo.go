package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/simaogato/dipledger-backend/internal/domain"
)

// historyRepository implements domain.HistoryRepository
type historyRepository struct {
	db *DB
}

// NewHistoryRepository creates a new settlement history repository
func NewHistoryRepository(db *DB) domain.HistoryRepository {
	return &historyRepository{db: db}
}

// Append inserts a settlement history record
func (r *historyRepository) Append(ctx context.Context, h *domain.HistoryRecord) error {
	query := `
		INSERT INTO settlement_history (id, portfolio_id, user_id, portfolio_name, total_invested,
			total_return, total_profit, yield_rate, start_date, end_date, strategy_detail)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.ExecContext(ctx, query,
		h.ID,
		h.PortfolioID,
		h.UserID,
		h.PortfolioName,
		h.TotalInvested.String(),
		h.TotalReturn.String(),
		h.TotalProfit.String(),
		h.YieldRate.String(),
		h.StartDate,
		h.EndDate,
		h.StrategyDetail,
	)
	if err != nil {
		return fmt.Errorf("failed to insert settlement history: %w", err)
	}
	return nil
}

// Delete removes a history record by ID
func (r *historyRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM settlement_history WHERE id = $1", id); err != nil {
		return fmt.Errorf("failed to delete settlement history: %w", err)
	}
	return nil
}

// ListByUser retrieves the settlement history of a user, newest first
func (r *historyRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*domain.HistoryRecord, error) {
	query := `
		SELECT id, portfolio_id, user_id, portfolio_name, total_invested, total_return,
			total_profit, yield_rate, start_date, end_date, strategy_detail
		FROM settlement_history
		WHERE user_id = $1
		ORDER BY end_date DESC, id
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list settlement history: %w", err)
	}
	defer rows.Close()

	var records []*domain.HistoryRecord
	for rows.Next() {
		var h domain.HistoryRecord
		var invested, ret, profit, yield string
		if err := rows.Scan(
			&h.ID,
			&h.PortfolioID,
			&h.UserID,
			&h.PortfolioName,
			&invested,
			&ret,
			&profit,
			&yield,
			&h.StartDate,
			&h.EndDate,
			&h.StrategyDetail,
		); err != nil {
			return nil, fmt.Errorf("failed to scan settlement history: %w", err)
		}

		for _, f := range []struct {
			src string
			dst *decimal.Decimal
		}{
			{invested, &h.TotalInvested},
			{ret, &h.TotalReturn},
			{profit, &h.TotalProfit},
			{yield, &h.YieldRate},
		} {
			d, err := decimal.NewFromString(f.src)
			if err != nil {
				return nil, fmt.Errorf("failed to parse settlement amount: %w", err)
			}
			*f.dst = d
		}
		records = append(records, &h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate settlement history: %w", err)
	}
	return records, nil
}
