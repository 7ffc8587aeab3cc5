package drivers

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"towfleet/internal/fault"
)

// Store is the persistence surface the driver service needs.
type Store interface {
	CreateForUser(ctx context.Context, userID string) error
	GetByUser(ctx context.Context, userID string) (*Profile, error)
	UpdateStatus(ctx context.Context, userID string, status Status) error
	UpdateLocation(ctx context.Context, userID string, lat, lng float64) error
	UpdateInfo(ctx context.Context, userID string, upd ProfileUpdate) error
	IncrementJobs(ctx context.Context, userID string) error
	// ListAvailable returns profiles of approved, active driver accounts
	// whose status is available and whose location is known, in
	// account-creation order.
	ListAvailable(ctx context.Context) ([]Profile, error)
}

// PgStore implements Store on PostgreSQL.
type PgStore struct {
	db *pgxpool.Pool
}

func NewPgStore(db *pgxpool.Pool) *PgStore {
	return &PgStore{db: db}
}

// CreateForUser seeds an empty profile at driver registration; license and
// vehicle details are filled in later by the driver.
func (s *PgStore) CreateForUser(ctx context.Context, userID string) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO driver_profiles (id,user_id,license_number,vehicle_info,status,rating,total_jobs,created_at)
		 VALUES ($1,$2,'','',$3,5.0,0,$4)`,
		uuid.New().String(), userID, string(StatusOffline), time.Now())
	return err
}

func (s *PgStore) GetByUser(ctx context.Context, userID string) (*Profile, error) {
	var p Profile
	err := s.db.QueryRow(ctx,
		`SELECT id,user_id,license_number,vehicle_info,tow_company_id,status,
		        current_location_lat,current_location_lng,rating,total_jobs,created_at
		 FROM driver_profiles WHERE user_id=$1`, userID).
		Scan(&p.ID, &p.UserID, &p.LicenseNumber, &p.VehicleInfo, &p.TowCompanyID,
			&p.Status, &p.Lat, &p.Lng, &p.Rating, &p.TotalJobs, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fault.NotFound("driver profile")
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PgStore) UpdateStatus(ctx context.Context, userID string, status Status) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE driver_profiles SET status=$1 WHERE user_id=$2`, string(status), userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fault.NotFound("driver profile")
	}
	return nil
}

func (s *PgStore) UpdateLocation(ctx context.Context, userID string, lat, lng float64) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE driver_profiles SET current_location_lat=$1, current_location_lng=$2 WHERE user_id=$3`,
		lat, lng, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fault.NotFound("driver profile")
	}
	return nil
}

func (s *PgStore) UpdateInfo(ctx context.Context, userID string, upd ProfileUpdate) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE driver_profiles SET license_number=$1, vehicle_info=$2, tow_company_id=$3 WHERE user_id=$4`,
		upd.LicenseNumber, upd.VehicleInfo, upd.TowCompanyID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fault.NotFound("driver profile")
	}
	return nil
}

func (s *PgStore) IncrementJobs(ctx context.Context, userID string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE driver_profiles SET total_jobs = total_jobs + 1 WHERE user_id=$1`, userID)
	return err
}

func (s *PgStore) ListAvailable(ctx context.Context) ([]Profile, error) {
	rows, err := s.db.Query(ctx,
		`SELECT p.id,p.user_id,p.license_number,p.vehicle_info,p.tow_company_id,p.status,
		        p.current_location_lat,p.current_location_lng,p.rating,p.total_jobs,p.created_at
		 FROM driver_profiles p
		 JOIN users u ON u.id = p.user_id
		 WHERE u.role='driver' AND u.is_approved AND u.is_active
		   AND p.status='available'
		   AND p.current_location_lat IS NOT NULL AND p.current_location_lng IS NOT NULL
		 ORDER BY u.created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Profile
	for rows.Next() {
		var p Profile
		if err := rows.Scan(&p.ID, &p.UserID, &p.LicenseNumber, &p.VehicleInfo, &p.TowCompanyID,
			&p.Status, &p.Lat, &p.Lng, &p.Rating, &p.TotalJobs, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
