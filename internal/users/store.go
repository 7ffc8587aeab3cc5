package users

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"towfleet/internal/fault"
)

// Store is the persistence surface the user service needs.
type Store interface {
	EmailExists(ctx context.Context, email string) (bool, error)
	Insert(ctx context.Context, u *User) error
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	PendingApprovals(ctx context.Context) ([]User, error)
	Approve(ctx context.Context, id string) (bool, error)
}

// PgStore implements Store on PostgreSQL.
type PgStore struct {
	db *pgxpool.Pool
}

func NewPgStore(db *pgxpool.Pool) *PgStore {
	return &PgStore{db: db}
}

func (s *PgStore) EmailExists(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM users WHERE email=$1)", email).Scan(&exists)
	return exists, err
}

func (s *PgStore) Insert(ctx context.Context, u *User) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO users (id,email,full_name,phone,password_hash,role,is_active,is_approved,created_at,updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		u.ID, u.Email, u.FullName, u.Phone, u.PasswordHash, string(u.Role),
		u.IsActive, u.IsApproved, u.CreatedAt, u.UpdatedAt)
	return err
}

func (s *PgStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	return s.scanOne(s.db.QueryRow(ctx,
		`SELECT id,email,full_name,phone,password_hash,role,is_active,is_approved,created_at,updated_at
		 FROM users WHERE email=$1`, email))
}

func (s *PgStore) GetByID(ctx context.Context, id string) (*User, error) {
	return s.scanOne(s.db.QueryRow(ctx,
		`SELECT id,email,full_name,phone,password_hash,role,is_active,is_approved,created_at,updated_at
		 FROM users WHERE id=$1`, id))
}

func (s *PgStore) PendingApprovals(ctx context.Context) ([]User, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id,email,full_name,phone,password_hash,role,is_active,is_approved,created_at,updated_at
		 FROM users
		 WHERE is_approved=false AND role IN ('driver','tow_company')
		 ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := scanUser(rows, &u); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *PgStore) Approve(ctx context.Context, id string) (bool, error) {
	tag, err := s.db.Exec(ctx,
		`UPDATE users SET is_approved=true, updated_at=$1 WHERE id=$2`, time.Now(), id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PgStore) scanOne(row pgx.Row) (*User, error) {
	var u User
	err := scanUser(row, &u)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fault.NotFound("user")
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func scanUser(row rowScanner, u *User) error {
	var phone *string
	err := row.Scan(&u.ID, &u.Email, &u.FullName, &phone, &u.PasswordHash,
		&u.Role, &u.IsActive, &u.IsApproved, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return err
	}
	if phone != nil {
		u.Phone = *phone
	}
	return nil
}
