package pricing

import (
	"context"
	"time"

	"github.com/google/uuid"

	"towfleet/internal/fault"
	"towfleet/internal/geo"
	"towfleet/pkg/validation"
)

// Defaults used when neither a driver override nor an admin config exists.
type Defaults struct {
	PricePerMile float64
	PickupFee    float64
}

// Service resolves per-mile rates and computes quoted totals.
type Service struct {
	store    Store
	defaults Defaults
}

// NewService creates a pricing service.
func NewService(store Store, defaults Defaults) *Service {
	return &Service{store: store, defaults: defaults}
}

// Quote prices a route. driverID may be empty; when set and the driver has
// an active override, the override wins over the admin config.
// price_per_hour is tracked on configs but does not enter the total.
func (s *Service) Quote(ctx context.Context, pickup, dropoff geo.LatLng, driverID string) (*Quote, error) {
	rate := s.defaults.PricePerMile
	fee := s.defaults.PickupFee

	if cfg, err := s.store.CurrentConfig(ctx); err != nil {
		return nil, err
	} else if cfg != nil {
		rate = cfg.PricePerMile
		fee = cfg.PickupFee
	}

	if driverID != "" {
		dp, err := s.store.DriverPricing(ctx, driverID)
		if err != nil {
			return nil, err
		}
		if dp != nil && !dp.IsUsingBasePricing {
			rate = dp.PricePerMile
			fee = dp.PickupFee
		}
	}

	miles := geo.Round2(geo.KmToMiles(geo.DistanceKm(pickup, dropoff)))
	return &Quote{
		DistanceMiles: miles,
		PricePerMile:  rate,
		PickupFee:     fee,
		TotalPrice:    geo.Round2(fee + miles*rate),
	}, nil
}

// CurrentConfig returns the admin config in force, or the defaults when
// none has been set yet.
func (s *Service) CurrentConfig(ctx context.Context) (*Config, error) {
	cfg, err := s.store.CurrentConfig(ctx)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return &Config{
			PricePerMile: s.defaults.PricePerMile,
			PickupFee:    s.defaults.PickupFee,
		}, nil
	}
	return cfg, nil
}

// UpdateConfig records a new admin config. History is retained; each update
// inserts a new row.
func (s *Service) UpdateConfig(ctx context.Context, adminID string, upd ConfigUpdate) (*Config, error) {
	if !validation.ValidateAmount(upd.PricePerMile) || !validation.ValidateAmount(upd.PickupFee) {
		return nil, fault.Invalid("pricing values must be positive")
	}
	if upd.PricePerHour < 0 {
		return nil, fault.Invalid("price_per_hour must not be negative")
	}
	cfg := &Config{
		ID:           uuid.New().String(),
		PricePerMile: upd.PricePerMile,
		PricePerHour: upd.PricePerHour,
		PickupFee:    upd.PickupFee,
		CreatedBy:    adminID,
		CreatedAt:    time.Now(),
	}
	if err := s.store.InsertConfig(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GetDriverPricing returns the driver's pricing row, synthesising a
// defer-to-base row when the driver has never set one.
func (s *Service) GetDriverPricing(ctx context.Context, driverID string) (*DriverPricing, error) {
	dp, err := s.store.DriverPricing(ctx, driverID)
	if err != nil {
		return nil, err
	}
	if dp == nil {
		return &DriverPricing{DriverID: driverID, IsUsingBasePricing: true}, nil
	}
	return dp, nil
}

// UpdateDriverPricing upserts the driver's override.
func (s *Service) UpdateDriverPricing(ctx context.Context, driverID string, upd DriverPricingUpdate) (*DriverPricing, error) {
	if !upd.IsUsingBasePricing {
		if !validation.ValidateAmount(upd.PricePerMile) || !validation.ValidateAmount(upd.PickupFee) {
			return nil, fault.Invalid("pricing values must be positive")
		}
	}
	dp := &DriverPricing{
		ID:                 uuid.New().String(),
		DriverID:           driverID,
		PricePerMile:       upd.PricePerMile,
		PickupFee:          upd.PickupFee,
		IsUsingBasePricing: upd.IsUsingBasePricing,
		UpdatedAt:          time.Now(),
	}
	if err := s.store.UpsertDriverPricing(ctx, dp); err != nil {
		return nil, err
	}
	return dp, nil
}
