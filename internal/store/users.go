package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrDuplicateEmail    = errors.New("a member with that email already exists")
	ErrDuplicatePhone    = errors.New("a member with that phone number already exists")
	ErrDuplicateIDNumber = errors.New("a member with that ID number already exists")
	ErrOTPInvalid        = errors.New("verification code is invalid or has expired")
)

const (
	RoleMember = "MEMBER"
	RoleAdmin  = "ADMIN"
)

type User struct {
	ID               int64          `json:"id"`
	MemberNumber     string         `json:"member_number"`
	FirstName        string         `json:"first_name"`
	LastName         string         `json:"last_name"`
	Email            string         `json:"email"`
	Phone            string         `json:"phone"`
	IDNumber         string         `json:"id_number"`
	Role             string         `json:"role"`
	Password         password       `json:"-"`
	RegistrationPaid bool           `json:"registration_paid"`
	IsActive         bool           `json:"is_active"`
	RefreshToken     sql.NullString `json:"-"`
	OTPHash          sql.NullString `json:"-"`
	OTPExpires       sql.NullTime   `json:"-"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// password keeps the plaintext out of JSON and the hash out of handlers.
type password struct {
	text *string
	hash []byte
}

func (p *password) Set(text string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(text), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	p.text = &text
	p.hash = hash

	return nil
}

func (p *password) Compare(text string) error {
	return bcrypt.CompareHashAndPassword(p.hash, []byte(text))
}

type UsersStore struct {
	db *pgxpool.Pool
}

func (s *UsersStore) Create(ctx context.Context, user *User) error {
	query := `
	  INSERT INTO users (member_number, first_name, last_name, email, phone, id_number, password, role)
	  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	  RETURNING id, created_at, updated_at
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	role := user.Role
	if role == "" {
		role = RoleMember
	}

	err := s.db.QueryRow(
		ctx, query,
		user.MemberNumber, user.FirstName, user.LastName, user.Email,
		user.Phone, user.IDNumber, user.Password.hash, role,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		switch {
		case strings.Contains(err.Error(), "users_email_key"):
			return ErrDuplicateEmail
		case strings.Contains(err.Error(), "users_phone_key"):
			return ErrDuplicatePhone
		case strings.Contains(err.Error(), "users_id_number_key"):
			return ErrDuplicateIDNumber
		default:
			return err
		}
	}
	user.Role = role
	return nil
}

func (s *UsersStore) GetByID(ctx context.Context, userID int64) (*User, error) {
	query := `
	  SELECT id, member_number, first_name, last_name, email, phone, id_number,
	         password, role, registration_paid, is_active, refresh_token,
	         created_at, updated_at
	  FROM users WHERE id = $1
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var user User
	err := s.db.QueryRow(ctx, query, userID).Scan(
		&user.ID, &user.MemberNumber, &user.FirstName, &user.LastName,
		&user.Email, &user.Phone, &user.IDNumber, &user.Password.hash,
		&user.Role, &user.RegistrationPaid, &user.IsActive, &user.RefreshToken,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *UsersStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	query := `
	  SELECT id, member_number, first_name, last_name, email, phone, id_number,
	         password, role, registration_paid, is_active, otp_hash, otp_expires,
	         created_at, updated_at
	  FROM users WHERE email = $1
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var user User
	err := s.db.QueryRow(ctx, query, email).Scan(
		&user.ID, &user.MemberNumber, &user.FirstName, &user.LastName,
		&user.Email, &user.Phone, &user.IDNumber, &user.Password.hash,
		&user.Role, &user.RegistrationPaid, &user.IsActive,
		&user.OTPHash, &user.OTPExpires,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *UsersStore) List(ctx context.Context, limit, offset int) ([]User, error) {
	query := `
	  SELECT id, member_number, first_name, last_name, email, phone, id_number,
	         role, registration_paid, is_active, created_at, updated_at
	  FROM users ORDER BY created_at DESC LIMIT $1 OFFSET $2
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	rows, err := s.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var user User
		if err := rows.Scan(
			&user.ID, &user.MemberNumber, &user.FirstName, &user.LastName,
			&user.Email, &user.Phone, &user.IDNumber, &user.Role,
			&user.RegistrationPaid, &user.IsActive, &user.CreatedAt, &user.UpdatedAt,
		); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *UsersStore) Count(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	var total int
	if err := s.db.QueryRow(ctx, `SELECT count(*) FROM users`).Scan(&total); err != nil {
		return 0, err
	}
	return total, nil
}

// UpdateUser applies a partial update. Only whitelisted columns may change
// this way; everything sensitive has its own method.
func (s *UsersStore) UpdateUser(ctx context.Context, userID int64, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}

	allowed := map[string]bool{
		"first_name": true,
		"last_name":  true,
		"phone":      true,
		"is_active":  true,
		"role":       true,
	}

	setClauses := make([]string, 0, len(updates))
	args := make([]interface{}, 0, len(updates)+1)
	i := 1
	for col, val := range updates {
		if !allowed[col] {
			return fmt.Errorf("column %q cannot be updated", col)
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", col, i))
		args = append(args, val)
		i++
	}
	args = append(args, userID)

	query := fmt.Sprintf(
		"UPDATE users SET %s, updated_at = now() WHERE id = $%d",
		strings.Join(setClauses, ", "), i,
	)

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	tag, err := s.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *UsersStore) SetOTP(ctx context.Context, userID int64, otpHash string, expires time.Time) error {
	query := `UPDATE users SET otp_hash = $1, otp_expires = $2 WHERE id = $3`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	_, err := s.db.Exec(ctx, query, otpHash, expires, userID)
	return err
}

// VerifyOTP activates the account when the hashed code matches and has not
// expired. The code is single-use: a successful match clears it.
func (s *UsersStore) VerifyOTP(ctx context.Context, userID int64, otpHash string) error {
	query := `
	  UPDATE users
	  SET is_active = true, otp_hash = NULL, otp_expires = NULL, updated_at = now()
	  WHERE id = $1 AND otp_hash = $2 AND otp_expires > now()
	`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	tag, err := s.db.Exec(ctx, query, userID, otpHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOTPInvalid
	}
	return nil
}

func (s *UsersStore) SetRegistrationPaid(ctx context.Context, userID int64) error {
	query := `UPDATE users SET registration_paid = true, updated_at = now() WHERE id = $1`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	tag, err := s.db.Exec(ctx, query, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *UsersStore) SetRefreshToken(ctx context.Context, userID int64, tokenHash string) error {
	query := `UPDATE users SET refresh_token = $1 WHERE id = $2`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	_, err := s.db.Exec(ctx, query, tokenHash, userID)
	return err
}

func (s *UsersStore) ClearRefreshToken(ctx context.Context, userID int64) error {
	query := `UPDATE users SET refresh_token = NULL WHERE id = $1`

	ctx, cancel := context.WithTimeout(ctx, QueryTimeoutDuration)
	defer cancel()

	_, err := s.db.Exec(ctx, query, userID)
	return err
}
