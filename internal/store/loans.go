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
	LoanPending  = "PENDING"
	LoanApproved = "APPROVED"
	LoanRejected = "REJECTED"
	LoanRepaid   = "REPAID"
)

type Loan struct {
	ID         int64           `json:"id"`
	UserID     int64           `json:"user_id"`
	Amount     decimal.Decimal `json:"amount"`
	TermMonths int             `json:"term_months"`
	Purpose    string          `json:"purpose"`
	Status     string          `json:"status"`
	ReviewerID sql.NullInt64   `json:"reviewer_id,omitempty" swaggertype:"integer"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type LoansStore struct {
	db *pgxpool.Pool
}

func (s *LoansStore) Apply(ctx context.Context, loan *Loan) error {
	query := `
	  INSERT INTO loans (user_id, amount, term_months, purpose, status)
	  VALUES ($1, $2, $3, $4, $5)
	  RETURNING id, created_at, updated_at
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	if loan.Status == "" {
		loan.Status = LoanPending
	}

	return s.db.QueryRow(
		ctx, query,
		loan.UserID, loan.Amount, loan.TermMonths, loan.Purpose, loan.Status,
	).Scan(&loan.ID, &loan.CreatedAt, &loan.UpdatedAt)
}

func (s *LoansStore) GetByID(ctx context.Context, loanID int64) (*Loan, error) {
	query := `
	  SELECT id, user_id, amount, term_months, purpose, status, reviewer_id, created_at, updated_at
	  FROM loans WHERE id = $1
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var loan Loan
	err := s.db.QueryRow(ctx, query, loanID).Scan(
		&loan.ID, &loan.UserID, &loan.Amount, &loan.TermMonths,
		&loan.Purpose, &loan.Status, &loan.ReviewerID,
		&loan.CreatedAt, &loan.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &loan, nil
}

func (s *LoansStore) ListByMember(ctx context.Context, userID int64) ([]Loan, error) {
	query := `
	  SELECT id, user_id, amount, term_months, purpose, status, reviewer_id, created_at, updated_at
	  FROM loans WHERE user_id = $1 ORDER BY created_at DESC
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanLoans(rows)
}

func (s *LoansStore) ListByStatus(ctx context.Context, status string, limit int) ([]Loan, error) {
	query := `
	  SELECT id, user_id, amount, term_months, purpose, status, reviewer_id, created_at, updated_at
	  FROM loans WHERE status = $1 ORDER BY created_at ASC LIMIT $2
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	rows, err := s.db.Query(ctx, query, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanLoans(rows)
}

// SetStatus moves a pending loan to APPROVED or REJECTED. Decisions are
// final; a decided loan cannot be re-decided.
func (s *LoansStore) SetStatus(ctx context.Context, loanID int64, status string, reviewerID int64) error {
	query := `
	  UPDATE loans SET status = $2, reviewer_id = $3, updated_at = now()
	  WHERE id = $1 AND status = $4
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	tag, err := s.db.Exec(ctx, query, loanID, status, reviewerID, LoanPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func scanLoans(rows pgx.Rows) ([]Loan, error) {
	var loans []Loan
	for rows.Next() {
		var loan Loan
		if err := rows.Scan(
			&loan.ID, &loan.UserID, &loan.Amount, &loan.TermMonths,
			&loan.Purpose, &loan.Status, &loan.ReviewerID,
			&loan.CreatedAt, &loan.UpdatedAt,
		); err != nil {
			return nil, err
		}
		loans = append(loans, loan)
	}
	return loans, rows.Err()
}
