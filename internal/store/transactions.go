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

// Transaction statuses. PENDING is the only non-terminal one; a row moves
// out of PENDING exactly once.
const (
	TxPending   = "PENDING"
	TxCompleted = "COMPLETED"
	TxFailed    = "FAILED"
	TxCancelled = "CANCELLED"
	TxTimeout   = "TIMEOUT"
	TxNotFound  = "NOT_FOUND"
)

type Transaction struct {
	ID                int64           `json:"id"`
	UserID            int64           `json:"user_id"`
	Category          string          `json:"category"`
	Amount            decimal.Decimal `json:"amount"`
	Phone             string          `json:"phone_number"`
	CheckoutRequestID string          `json:"checkout_request_id"`
	MerchantRequestID string          `json:"merchant_request_id"`
	ResultCode        sql.NullString  `json:"result_code,omitempty" swaggertype:"string"`
	MpesaReceipt      sql.NullString  `json:"mpesa_receipt,omitempty" swaggertype:"string"`
	Status            string          `json:"status"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

type TransactionsStore struct {
	db *pgxpool.Pool
}

func (s *TransactionsStore) Create(ctx context.Context, tx *Transaction) error {
	query := `
	  INSERT INTO mpesa_transactions
	    (user_id, category, amount, phone_number, checkout_request_id, merchant_request_id, status)
	  VALUES ($1, $2, $3, $4, $5, $6, $7)
	  RETURNING id, created_at, updated_at
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	if tx.Status == "" {
		tx.Status = TxPending
	}

	return s.db.QueryRow(
		ctx, query,
		tx.UserID, tx.Category, tx.Amount, tx.Phone,
		tx.CheckoutRequestID, tx.MerchantRequestID, tx.Status,
	).Scan(&tx.ID, &tx.CreatedAt, &tx.UpdatedAt)
}

func (s *TransactionsStore) GetByCheckoutID(ctx context.Context, checkoutRequestID string) (*Transaction, error) {
	query := `
	  SELECT id, user_id, category, amount, phone_number, checkout_request_id,
	         merchant_request_id, result_code, mpesa_receipt, status, created_at, updated_at
	  FROM mpesa_transactions WHERE checkout_request_id = $1
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var tx Transaction
	err := s.db.QueryRow(ctx, query, checkoutRequestID).Scan(
		&tx.ID, &tx.UserID, &tx.Category, &tx.Amount, &tx.Phone,
		&tx.CheckoutRequestID, &tx.MerchantRequestID, &tx.ResultCode,
		&tx.MpesaReceipt, &tx.Status, &tx.CreatedAt, &tx.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &tx, nil
}

// MarkTerminal moves a pending transaction to a terminal status. It returns
// false when the row was already terminal, which makes callback handling
// idempotent: a transaction reaches exactly one terminal state no matter how
// many times the provider reports it.
func (s *TransactionsStore) MarkTerminal(ctx context.Context, checkoutRequestID, status, resultCode, receipt string) (bool, error) {
	query := `
	  UPDATE mpesa_transactions
	  SET status = $2, result_code = $3, mpesa_receipt = NULLIF($4, ''), updated_at = now()
	  WHERE checkout_request_id = $1 AND status = $5
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	tag, err := s.db.Exec(ctx, query, checkoutRequestID, status, resultCode, receipt, TxPending)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *TransactionsStore) HasPendingForUser(ctx context.Context, userID int64, category string) (bool, error) {
	query := `
	  SELECT EXISTS (
	    SELECT 1 FROM mpesa_transactions
	    WHERE user_id = $1 AND category = $2 AND status = $3
	      AND created_at > now() - interval '2 minutes'
	  )
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var exists bool
	err := s.db.QueryRow(ctx, query, userID, category, TxPending).Scan(&exists)
	return exists, err
}

func (s *TransactionsStore) ListByUser(ctx context.Context, userID int64, limit int) ([]Transaction, error) {
	query := `
	  SELECT id, user_id, category, amount, phone_number, checkout_request_id,
	         merchant_request_id, result_code, mpesa_receipt, status, created_at, updated_at
	  FROM mpesa_transactions WHERE user_id = $1
	  ORDER BY created_at DESC LIMIT $2
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	rows, err := s.db.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []Transaction
	for rows.Next() {
		var tx Transaction
		if err := rows.Scan(
			&tx.ID, &tx.UserID, &tx.Category, &tx.Amount, &tx.Phone,
			&tx.CheckoutRequestID, &tx.MerchantRequestID, &tx.ResultCode,
			&tx.MpesaReceipt, &tx.Status, &tx.CreatedAt, &tx.UpdatedAt,
		); err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}
