package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	ContributionConfirmed = "CONFIRMED"
)

type WelfareContribution struct {
	ID            int64           `json:"id"`
	UserID        int64           `json:"user_id"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method"`
	Reference     string          `json:"reference"`
	Receipt       sql.NullString  `json:"receipt,omitempty" swaggertype:"string"`
	Status        string          `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
}

type WelfareStore struct {
	db *pgxpool.Pool
}

// Record inserts a confirmed contribution. Reference is the checkout request
// id; the unique constraint absorbs replayed provider callbacks.
func (s *WelfareStore) Record(ctx context.Context, c *WelfareContribution) error {
	query := `
	  INSERT INTO welfare_contributions (user_id, amount, payment_method, reference, receipt, status)
	  VALUES ($1, $2, $3, $4, $5, $6)
	  ON CONFLICT (reference) DO NOTHING
	  RETURNING id, created_at
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	if c.Status == "" {
		c.Status = ContributionConfirmed
	}
	if c.PaymentMethod == "" {
		c.PaymentMethod = "MPESA"
	}

	err := s.db.QueryRow(
		ctx, query,
		c.UserID, c.Amount, c.PaymentMethod, c.Reference, c.Receipt, c.Status,
	).Scan(&c.ID, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Conflict path: the contribution was already recorded.
		return nil
	}
	return err
}

func (s *WelfareStore) HasContributedThisMonth(ctx context.Context, userID int64) (bool, error) {
	query := `
	  SELECT EXISTS (
	    SELECT 1 FROM welfare_contributions
	    WHERE user_id = $1 AND status = $2
	      AND date_trunc('month', created_at) = date_trunc('month', now())
	  )
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var exists bool
	err := s.db.QueryRow(ctx, query, userID, ContributionConfirmed).Scan(&exists)
	return exists, err
}

func (s *WelfareStore) ListByMember(ctx context.Context, userID int64, limit int) ([]WelfareContribution, error) {
	query := `
	  SELECT id, user_id, amount, payment_method, reference, receipt, status, created_at
	  FROM welfare_contributions WHERE user_id = $1
	  ORDER BY created_at DESC LIMIT $2
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	rows, err := s.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var contributions []WelfareContribution
	for rows.Next() {
		var c WelfareContribution
		if err := rows.Scan(
			&c.ID, &c.UserID, &c.Amount, &c.PaymentMethod,
			&c.Reference, &c.Receipt, &c.Status, &c.CreatedAt,
		); err != nil {
			return nil, err
		}
		contributions = append(contributions, c)
	}
	return contributions, rows.Err()
}

func (s *WelfareStore) FundTotal(ctx context.Context) (decimal.Decimal, error) {
	query := `SELECT COALESCE(SUM(amount), 0) FROM welfare_contributions WHERE status = $1`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var total decimal.Decimal
	err := s.db.QueryRow(ctx, query, ContributionConfirmed).Scan(&total)
	return total, err
}
