package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	DocumentPending  = "PENDING"
	DocumentVerified = "VERIFIED"
	DocumentRejected = "REJECTED"
)

const (
	DocumentTypeNationalID = "NATIONAL_ID"
	DocumentTypePassport   = "PASSPORT"
	DocumentTypePayslip    = "PAYSLIP"
)

// Document is a KYC upload (national ID, passport photo) awaiting admin
// verification.
type Document struct {
	ID         int64          `json:"id"`
	UserID     int64          `json:"user_id"`
	Type       string         `json:"type"`
	URL        string         `json:"url"`
	Status     string         `json:"status"`
	Note       sql.NullString `json:"note,omitempty" swaggertype:"string"`
	ReviewerID sql.NullInt64  `json:"reviewer_id,omitempty" swaggertype:"integer"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

type DocumentsStore struct {
	db *pgxpool.Pool
}

func (s *DocumentsStore) Create(ctx context.Context, doc *Document) error {
	query := `
	  INSERT INTO documents (user_id, type, url, status)
	  VALUES ($1, $2, $3, $4)
	  RETURNING id, created_at, updated_at
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	if doc.Status == "" {
		doc.Status = DocumentPending
	}

	return s.db.QueryRow(
		ctx, query, doc.UserID, doc.Type, doc.URL, doc.Status,
	).Scan(&doc.ID, &doc.CreatedAt, &doc.UpdatedAt)
}

func (s *DocumentsStore) ListByUser(ctx context.Context, userID int64) ([]Document, error) {
	query := `
	  SELECT id, user_id, type, url, status, note, reviewer_id, created_at, updated_at
	  FROM documents WHERE user_id = $1 ORDER BY created_at DESC
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	rows, err := s.db.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanDocuments(rows)
}

func (s *DocumentsStore) ListByStatus(ctx context.Context, status string, limit int) ([]Document, error) {
	query := `
	  SELECT id, user_id, type, url, status, note, reviewer_id, created_at, updated_at
	  FROM documents WHERE status = $1 ORDER BY created_at ASC LIMIT $2
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	rows, err := s.db.Query(ctx, query, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanDocuments(rows)
}

func (s *DocumentsStore) SetStatus(ctx context.Context, documentID int64, status, note string, reviewerID int64) error {
	query := `
	  UPDATE documents
	  SET status = $2, note = NULLIF($3, ''), reviewer_id = $4, updated_at = now()
	  WHERE id = $1
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	tag, err := s.db.Exec(ctx, query, documentID, status, note, reviewerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanDocuments(rows pgx.Rows) ([]Document, error) {
	var docs []Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(
			&doc.ID, &doc.UserID, &doc.Type, &doc.URL, &doc.Status,
			&doc.Note, &doc.ReviewerID, &doc.CreatedAt, &doc.UpdatedAt,
		); err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}
