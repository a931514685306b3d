package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("resource not found")
	ErrConflict          = errors.New("resource already exists")
	QueryTimeoutDuration = time.Second * 5
)

type Storage struct {
	Users interface {
		Create(context.Context, *User) error
		GetByID(context.Context, int64) (*User, error)
		GetByEmail(context.Context, string) (*User, error)
		List(context.Context, int, int) ([]User, error)
		Count(context.Context) (int, error)
		UpdateUser(context.Context, int64, map[string]interface{}) error
		SetOTP(ctx context.Context, userID int64, otpHash string, expires time.Time) error
		VerifyOTP(ctx context.Context, userID int64, otpHash string) error
		SetRegistrationPaid(context.Context, int64) error
		SetRefreshToken(ctx context.Context, userID int64, tokenHash string) error
		ClearRefreshToken(ctx context.Context, userID int64) error
	}
	Transactions interface {
		Create(context.Context, *Transaction) error
		GetByCheckoutID(context.Context, string) (*Transaction, error)
		MarkTerminal(ctx context.Context, checkoutRequestID, status, resultCode, receipt string) (bool, error)
		HasPendingForUser(ctx context.Context, userID int64, category string) (bool, error)
		ListByUser(ctx context.Context, userID int64, limit int) ([]Transaction, error)
	}
	Shares interface {
		Credit(ctx context.Context, userID int64, count int, unitValue decimal.Decimal, reference string) error
		Summary(ctx context.Context, userID int64) (*ShareSummary, error)
		ListPurchases(ctx context.Context, userID int64, limit int) ([]SharePurchase, error)
	}
	Welfare interface {
		Record(context.Context, *WelfareContribution) error
		HasContributedThisMonth(ctx context.Context, userID int64) (bool, error)
		ListByMember(ctx context.Context, userID int64, limit int) ([]WelfareContribution, error)
		FundTotal(ctx context.Context) (decimal.Decimal, error)
	}
	Loans interface {
		Apply(context.Context, *Loan) error
		GetByID(context.Context, int64) (*Loan, error)
		ListByMember(ctx context.Context, userID int64) ([]Loan, error)
		ListByStatus(ctx context.Context, status string, limit int) ([]Loan, error)
		SetStatus(ctx context.Context, loanID int64, status string, reviewerID int64) error
	}
	Documents interface {
		Create(context.Context, *Document) error
		ListByUser(ctx context.Context, userID int64) ([]Document, error)
		ListByStatus(ctx context.Context, status string, limit int) ([]Document, error)
		SetStatus(ctx context.Context, documentID int64, status, note string, reviewerID int64) error
	}
}

func NewStorage(db *pgxpool.Pool) Storage {
	return Storage{
		Users:        &UsersStore{db},
		Transactions: &TransactionsStore{db},
		Shares:       &SharesStore{db},
		Welfare:      &WelfareStore{db},
		Loans:        &LoansStore{db},
		Documents:    &DocumentsStore{db},
	}
}
