package drivers

import (
	"context"
	"log"
	"sort"

	"towfleet/internal/fault"
	"towfleet/internal/geo"
	"towfleet/pkg/validation"
)

// LocationCache mirrors last reported driver positions for fast radius
// lookups. Implemented by pkg/redis.
type LocationCache interface {
	SetDriverLocation(ctx context.Context, driverID string, lat, lng float64) error
	GetNearbyDriverIDs(ctx context.Context, lat, lng, radiusKm float64, count int) ([]string, error)
	RemoveDriverLocation(ctx context.Context, driverID string) error
}

// Service contains driver profile logic and the candidate locator.
type Service struct {
	store Store
	cache LocationCache
}

// NewService creates a driver service. cache may be nil in tests.
func NewService(store Store, cache LocationCache) *Service {
	return &Service{store: store, cache: cache}
}

// GetProfile fetches the profile owned by a driver account.
func (s *Service) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	return s.store.GetByUser(ctx, userID)
}

// UpdateProfile sets license/vehicle/company details.
func (s *Service) UpdateProfile(ctx context.Context, userID string, upd ProfileUpdate) (*Profile, error) {
	if err := s.store.UpdateInfo(ctx, userID, upd); err != nil {
		return nil, err
	}
	return s.store.GetByUser(ctx, userID)
}

// UpdateStatus changes driver availability and keeps the location cache's
// available pool in sync.
func (s *Service) UpdateStatus(ctx context.Context, userID string, status Status) error {
	if !ValidStatus(status) {
		return fault.Invalid("status")
	}
	if err := s.store.UpdateStatus(ctx, userID, status); err != nil {
		return err
	}
	if s.cache == nil {
		return nil
	}
	if status == StatusAvailable {
		if p, err := s.store.GetByUser(ctx, userID); err == nil && p.HasLocation() {
			if err := s.cache.SetDriverLocation(ctx, userID, *p.Lat, *p.Lng); err != nil {
				log.Printf("[drivers] location cache add failed for %s: %v", userID, err)
			}
		}
	} else {
		if err := s.cache.RemoveDriverLocation(ctx, userID); err != nil {
			log.Printf("[drivers] location cache remove failed for %s: %v", userID, err)
		}
	}
	return nil
}

// UpdateLocation records the driver's position in the profile row and
// mirrors it into the cache.
func (s *Service) UpdateLocation(ctx context.Context, userID string, lat, lng float64) error {
	if !validation.ValidateCoordinates(lat, lng) {
		return fault.Invalid("coordinates")
	}
	if err := s.store.UpdateLocation(ctx, userID, lat, lng); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.SetDriverLocation(ctx, userID, lat, lng); err != nil {
			log.Printf("[drivers] location cache update failed for %s: %v", userID, err)
		}
	}
	return nil
}

// SetStatus is UpdateStatus without validation, for internal transitions
// (negotiation marking a driver on_mission, the stats consumer freeing one).
func (s *Service) SetStatus(ctx context.Context, userID string, status Status) error {
	return s.UpdateStatus(ctx, userID, status)
}

// CompleteJob increments the driver's completed-job count and frees the
// profile for new work.
func (s *Service) CompleteJob(ctx context.Context, userID string) error {
	if err := s.store.IncrementJobs(ctx, userID); err != nil {
		return err
	}
	return s.UpdateStatus(ctx, userID, StatusAvailable)
}

// FindNearby scans active, approved, available drivers with a known
// location, keeps those within maxKm of origin, and returns them sorted
// ascending by distance. Ties keep account-creation order. excludeUserID
// (may be empty) is skipped; rotation uses it so a rejecting driver is not
// immediately re-selected.
func (s *Service) FindNearby(ctx context.Context, origin geo.LatLng, maxKm float64, excludeUserID string) ([]Candidate, error) {
	profiles, err := s.store.ListAvailable(ctx)
	if err != nil {
		return nil, err
	}

	cands := make([]Candidate, 0, len(profiles))
	for _, p := range profiles {
		if p.UserID == excludeUserID {
			continue
		}
		d := geo.DistanceKm(origin, geo.LatLng{Lat: *p.Lat, Lng: *p.Lng})
		if d <= maxKm {
			cands = append(cands, Candidate{Profile: p, DistanceKm: d})
		}
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].DistanceKm < cands[j].DistanceKm })
	return cands, nil
}

// FindNearest returns the closest candidate within maxKm, or nil when the
// available pool is empty in range.
func (s *Service) FindNearest(ctx context.Context, origin geo.LatLng, maxKm float64, excludeUserID string) (*Candidate, error) {
	cands, err := s.FindNearby(ctx, origin, maxKm, excludeUserID)
	if err != nil {
		return nil, err
	}
	if len(cands) == 0 {
		return nil, nil
	}
	return &cands[0], nil
}

// NearbyIDs serves the ops endpoint from the Redis GEO mirror.
func (s *Service) NearbyIDs(ctx context.Context, lat, lng, radiusKm float64) ([]string, error) {
	if s.cache == nil {
		return nil, nil
	}
	return s.cache.GetNearbyDriverIDs(ctx, lat, lng, radiusKm, 10)
}
