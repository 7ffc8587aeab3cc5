package negotiation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OfferStore persists price offers.
type OfferStore interface {
	Insert(ctx context.Context, o *PriceOffer) error
	Latest(ctx context.Context, requestID string) (*PriceOffer, error)
	List(ctx context.Context, requestID string) ([]PriceOffer, error)
	SetStatus(ctx context.Context, offerID string, status OfferStatus) error
	ExpirePending(ctx context.Context, now time.Time) (int64, error)
}

// PgOfferStore is the Postgres-backed OfferStore.
type PgOfferStore struct {
	pool *pgxpool.Pool
}

func NewPgOfferStore(pool *pgxpool.Pool) *PgOfferStore {
	return &PgOfferStore{pool: pool}
}

const offerColumns = `id, request_id, COALESCE(user_id, ''), offer_type, amount, message, status, expires_at, created_at`

func (s *PgOfferStore) Insert(ctx context.Context, o *PriceOffer) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO price_offers (id, request_id, user_id, offer_type, amount, message, status, expires_at, created_at)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9)`,
		o.ID, o.RequestID, o.UserID, o.OfferType, o.Amount, o.Message, o.Status, o.ExpiresAt, o.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert offer: %w", err)
	}
	return nil
}

// Latest returns the newest offer on a request, nil when there are none.
func (s *PgOfferStore) Latest(ctx context.Context, requestID string) (*PriceOffer, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+offerColumns+` FROM price_offers WHERE request_id = $1 ORDER BY created_at DESC LIMIT 1`,
		requestID)
	o, err := scanOffer(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest offer: %w", err)
	}
	return o, nil
}

// List returns a request's offers, newest first.
func (s *PgOfferStore) List(ctx context.Context, requestID string) ([]PriceOffer, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+offerColumns+` FROM price_offers WHERE request_id = $1 ORDER BY created_at DESC`,
		requestID)
	if err != nil {
		return nil, fmt.Errorf("list offers: %w", err)
	}
	defer rows.Close()

	var out []PriceOffer
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan offer: %w", err)
		}
		out = append(out, *o)
	}
	return out, rows.Err()
}

func (s *PgOfferStore) SetStatus(ctx context.Context, offerID string, status OfferStatus) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE price_offers SET status = $2 WHERE id = $1`, offerID, status)
	if err != nil {
		return fmt.Errorf("set offer status: %w", err)
	}
	return nil
}

// ExpirePending marks overdue pending offers expired and reports how many.
func (s *PgOfferStore) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE price_offers SET status = 'expired' WHERE status = 'pending' AND expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("expire offers: %w", err)
	}
	return tag.RowsAffected(), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOffer(row rowScanner) (*PriceOffer, error) {
	var o PriceOffer
	err := row.Scan(&o.ID, &o.RequestID, &o.UserID, &o.OfferType, &o.Amount,
		&o.Message, &o.Status, &o.ExpiresAt, &o.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}
