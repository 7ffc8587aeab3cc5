package requests

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"towfleet/internal/fault"
)

const requestColumns = `id, client_id, pickup_address, pickup_lat, pickup_lng,
	dropoff_address, dropoff_lat, dropoff_lng, vehicle_info, vehicle_photos, notes,
	proposed_price, distance_miles, calculated_price, final_agreed_price,
	status, negotiation_status, current_driver_id, assigned_driver_id,
	accepted_by_company_id, offer_expires_at, driver_location_lat, driver_location_lng,
	created_at, updated_at`

// Store persists tow requests.
type Store interface {
	Insert(ctx context.Context, t *TowRequest) error
	Get(ctx context.Context, id string) (*TowRequest, error)
	ListByClient(ctx context.Context, clientID string) ([]TowRequest, error)
	ListForDriver(ctx context.Context, driverID string) ([]TowRequest, error)
	ListAll(ctx context.Context) ([]TowRequest, error)
	ListPending(ctx context.Context) ([]TowRequest, error)
	ApplyUpdate(ctx context.Context, id string, u UpdateRequest) error
	DirectAccept(ctx context.Context, id string, driverID, companyID *string) (bool, error)
	AgreeAssign(ctx context.Context, id, driverID string, finalPrice float64) (bool, error)
	SetNegotiation(ctx context.Context, id string, status NegotiationStatus, currentDriverID *string, distanceMiles, calculatedPrice *float64, offerExpiresAt *time.Time) error
	SetProposedPrice(ctx context.Context, id string, amount float64) error
	ListExpiredNegotiations(ctx context.Context, now time.Time) ([]TowRequest, error)
}

// PgStore is the Postgres-backed Store.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) Insert(ctx context.Context, t *TowRequest) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tow_requests (
			id, client_id, pickup_address, pickup_lat, pickup_lng,
			dropoff_address, dropoff_lat, dropoff_lng, vehicle_info, vehicle_photos,
			notes, proposed_price, status, negotiation_status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		t.ID, t.ClientID, t.PickupAddress, t.PickupLat, t.PickupLng,
		t.DropoffAddress, t.DropoffLat, t.DropoffLng, t.VehicleInfo, t.VehiclePhotos,
		t.Notes, t.ProposedPrice, t.Status, t.NegotiationStatus, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert tow request: %w", err)
	}
	return nil
}

func (s *PgStore) Get(ctx context.Context, id string) (*TowRequest, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM tow_requests WHERE id = $1`, id)
	t, err := scanRequest(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fault.NotFound("tow request")
	}
	if err != nil {
		return nil, fmt.Errorf("get tow request: %w", err)
	}
	return t, nil
}

func (s *PgStore) ListByClient(ctx context.Context, clientID string) ([]TowRequest, error) {
	return s.list(ctx,
		`SELECT `+requestColumns+` FROM tow_requests WHERE client_id = $1 ORDER BY created_at DESC`,
		clientID)
}

// ListForDriver returns the driver's assigned work plus every pending
// request, which is how drivers discover jobs outside the nearby feed.
func (s *PgStore) ListForDriver(ctx context.Context, driverID string) ([]TowRequest, error) {
	return s.list(ctx,
		`SELECT `+requestColumns+` FROM tow_requests
		 WHERE assigned_driver_id = $1 OR current_driver_id = $1 OR status = 'pending'
		 ORDER BY created_at DESC`,
		driverID)
}

func (s *PgStore) ListAll(ctx context.Context) ([]TowRequest, error) {
	return s.list(ctx,
		`SELECT `+requestColumns+` FROM tow_requests ORDER BY created_at DESC`)
}

func (s *PgStore) ListPending(ctx context.Context) ([]TowRequest, error) {
	return s.list(ctx,
		`SELECT `+requestColumns+` FROM tow_requests WHERE status = 'pending' ORDER BY created_at DESC`)
}

func (s *PgStore) ApplyUpdate(ctx context.Context, id string, u UpdateRequest) error {
	var status *string
	if u.Status != nil {
		v := string(*u.Status)
		status = &v
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE tow_requests SET
			status = COALESCE($2, status),
			notes = COALESCE($3, notes),
			driver_location_lat = COALESCE($4, driver_location_lat),
			driver_location_lng = COALESCE($5, driver_location_lng),
			updated_at = NOW()
		WHERE id = $1`,
		id, status, u.Notes, u.DriverLocationLat, u.DriverLocationLng)
	if err != nil {
		return fmt.Errorf("update tow request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fault.NotFound("tow request")
	}
	return nil
}

// DirectAccept flips a pending request to accepted. The status guard in the
// WHERE clause is the serialization point when two acceptors race.
func (s *PgStore) DirectAccept(ctx context.Context, id string, driverID, companyID *string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tow_requests SET
			status = 'accepted',
			negotiation_status = 'price_agreed',
			assigned_driver_id = COALESCE($2, assigned_driver_id),
			accepted_by_company_id = COALESCE($3, accepted_by_company_id),
			current_driver_id = NULL,
			offer_expires_at = NULL,
			updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`,
		id, driverID, companyID)
	if err != nil {
		return false, fmt.Errorf("direct accept: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// AgreeAssign records an agreed price and assigns the driver, guarded on the
// request still being pending.
func (s *PgStore) AgreeAssign(ctx context.Context, id, driverID string, finalPrice float64) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tow_requests SET
			status = 'accepted',
			negotiation_status = 'price_agreed',
			assigned_driver_id = $2,
			final_agreed_price = $3,
			current_driver_id = NULL,
			offer_expires_at = NULL,
			updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`,
		id, driverID, finalPrice)
	if err != nil {
		return false, fmt.Errorf("agree assign: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PgStore) SetNegotiation(ctx context.Context, id string, status NegotiationStatus, currentDriverID *string, distanceMiles, calculatedPrice *float64, offerExpiresAt *time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE tow_requests SET
			negotiation_status = $2,
			current_driver_id = $3,
			distance_miles = COALESCE($4, distance_miles),
			calculated_price = COALESCE($5, calculated_price),
			offer_expires_at = $6,
			updated_at = NOW()
		WHERE id = $1`,
		id, status, currentDriverID, distanceMiles, calculatedPrice, offerExpiresAt)
	if err != nil {
		return fmt.Errorf("set negotiation state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fault.NotFound("tow request")
	}
	return nil
}

func (s *PgStore) SetProposedPrice(ctx context.Context, id string, amount float64) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE tow_requests SET proposed_price = $2, updated_at = NOW() WHERE id = $1`,
		id, amount)
	if err != nil {
		return fmt.Errorf("set proposed price: %w", err)
	}
	return nil
}

func (s *PgStore) ListExpiredNegotiations(ctx context.Context, now time.Time) ([]TowRequest, error) {
	return s.list(ctx,
		`SELECT `+requestColumns+` FROM tow_requests
		 WHERE status = 'pending'
		   AND negotiation_status IN ('awaiting_driver', 'negotiating')
		   AND offer_expires_at IS NOT NULL
		   AND offer_expires_at < $1
		 ORDER BY offer_expires_at`,
		now)
}

func (s *PgStore) list(ctx context.Context, query string, args ...any) ([]TowRequest, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tow requests: %w", err)
	}
	defer rows.Close()

	var out []TowRequest
	for rows.Next() {
		t, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tow request: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*TowRequest, error) {
	var t TowRequest
	err := row.Scan(
		&t.ID, &t.ClientID, &t.PickupAddress, &t.PickupLat, &t.PickupLng,
		&t.DropoffAddress, &t.DropoffLat, &t.DropoffLng, &t.VehicleInfo, &t.VehiclePhotos,
		&t.Notes, &t.ProposedPrice, &t.DistanceMiles, &t.CalculatedPrice, &t.FinalAgreedPrice,
		&t.Status, &t.NegotiationStatus, &t.CurrentDriverID, &t.AssignedDriverID,
		&t.AcceptedByCompanyID, &t.OfferExpiresAt, &t.DriverLocationLat, &t.DriverLocationLng,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
