package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type SharePurchase struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"user_id"`
	Count     int             `json:"count"`
	UnitValue decimal.Decimal `json:"unit_value"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference"`
	CreatedAt time.Time       `json:"created_at"`
}

type ShareSummary struct {
	TotalShares int64           `json:"total_shares"`
	TotalValue  decimal.Decimal `json:"total_value"`
	Purchases   int64           `json:"purchases"`
}

type SharesStore struct {
	db *pgxpool.Pool
}

// Credit records a completed share purchase. Reference is the M-Pesa
// checkout request id, unique per purchase, so replayed callbacks insert
// nothing twice.
func (s *SharesStore) Credit(ctx context.Context, userID int64, count int, unitValue decimal.Decimal, reference string) error {
	query := `
	  INSERT INTO share_purchases (user_id, count, unit_value, amount, reference)
	  VALUES ($1, $2, $3, $4, $5)
	  ON CONFLICT (reference) DO NOTHING
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	amount := unitValue.Mul(decimal.NewFromInt(int64(count)))
	_, err := s.db.Exec(ctx, query, userID, count, unitValue, amount, reference)
	return err
}

func (s *SharesStore) Summary(ctx context.Context, userID int64) (*ShareSummary, error) {
	query := `
	  SELECT COALESCE(SUM(count), 0), COALESCE(SUM(amount), 0), COUNT(*)
	  FROM share_purchases WHERE user_id = $1
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var summary ShareSummary
	err := s.db.QueryRow(ctx, query, userID).Scan(
		&summary.TotalShares, &summary.TotalValue, &summary.Purchases,
	)
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

func (s *SharesStore) ListPurchases(ctx context.Context, userID int64, limit int) ([]SharePurchase, error) {
	query := `
	  SELECT id, user_id, count, unit_value, amount, reference, created_at
	  FROM share_purchases WHERE user_id = $1
	  ORDER BY created_at DESC LIMIT $2
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	rows, err := s.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var purchases []SharePurchase
	for rows.Next() {
		var p SharePurchase
		if err := rows.Scan(&p.ID, &p.UserID, &p.Count, &p.UnitValue, &p.Amount, &p.Reference, &p.CreatedAt); err != nil {
			return nil, err
		}
		purchases = append(purchases, p)
	}
	return purchases, rows.Err()
}
