package pricing

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the persistence surface the pricing engine needs. Both lookups
// return (nil, nil) when no row exists so the engine can fall through its
// resolution order.
type Store interface {
	CurrentConfig(ctx context.Context) (*Config, error)
	InsertConfig(ctx context.Context, c *Config) error
	DriverPricing(ctx context.Context, driverID string) (*DriverPricing, error)
	UpsertDriverPricing(ctx context.Context, p *DriverPricing) error
}

// PgStore implements Store on PostgreSQL.
type PgStore struct {
	db *pgxpool.Pool
}

func NewPgStore(db *pgxpool.Pool) *PgStore {
	return &PgStore{db: db}
}

func (s *PgStore) CurrentConfig(ctx context.Context) (*Config, error) {
	var c Config
	err := s.db.QueryRow(ctx,
		`SELECT id,price_per_mile,price_per_hour,pickup_fee,created_by,created_at
		 FROM pricing_configs ORDER BY created_at DESC LIMIT 1`).
		Scan(&c.ID, &c.PricePerMile, &c.PricePerHour, &c.PickupFee, &c.CreatedBy, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *PgStore) InsertConfig(ctx context.Context, c *Config) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO pricing_configs (id,price_per_mile,price_per_hour,pickup_fee,created_by,created_at)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		c.ID, c.PricePerMile, c.PricePerHour, c.PickupFee, c.CreatedBy, c.CreatedAt)
	return err
}

func (s *PgStore) DriverPricing(ctx context.Context, driverID string) (*DriverPricing, error) {
	var p DriverPricing
	err := s.db.QueryRow(ctx,
		`SELECT id,driver_id,price_per_mile,pickup_fee,is_using_base_pricing,updated_at
		 FROM driver_pricing WHERE driver_id=$1`, driverID).
		Scan(&p.ID, &p.DriverID, &p.PricePerMile, &p.PickupFee, &p.IsUsingBasePricing, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PgStore) UpsertDriverPricing(ctx context.Context, p *DriverPricing) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO driver_pricing (id,driver_id,price_per_mile,pickup_fee,is_using_base_pricing,updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6)
		 ON CONFLICT (driver_id) DO UPDATE SET
		   price_per_mile=EXCLUDED.price_per_mile,
		   pickup_fee=EXCLUDED.pickup_fee,
		   is_using_base_pricing=EXCLUDED.is_using_base_pricing,
		   updated_at=EXCLUDED.updated_at`,
		p.ID, p.DriverID, p.PricePerMile, p.PickupFee, p.IsUsingBasePricing, p.UpdatedAt)
	return err
}
