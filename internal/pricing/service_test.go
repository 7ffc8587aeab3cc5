package pricing

import (
	"context"
	"math"
	"testing"

	"towfleet/internal/geo"
)

type fakeStore struct {
	config    *Config
	overrides map[string]*DriverPricing
	inserted  []*Config
}

func (f *fakeStore) CurrentConfig(_ context.Context) (*Config, error) { return f.config, nil }

func (f *fakeStore) InsertConfig(_ context.Context, c *Config) error {
	f.inserted = append(f.inserted, c)
	f.config = c
	return nil
}

func (f *fakeStore) DriverPricing(_ context.Context, driverID string) (*DriverPricing, error) {
	return f.overrides[driverID], nil
}

func (f *fakeStore) UpsertDriverPricing(_ context.Context, p *DriverPricing) error {
	if f.overrides == nil {
		f.overrides = make(map[string]*DriverPricing)
	}
	f.overrides[p.DriverID] = p
	return nil
}

var (
	pickup  = geo.LatLng{Lat: 40.7128, Lng: -74.0060}
	dropoff = geo.LatLng{Lat: 40.7589, Lng: -73.9851}
)

func TestQuoteWithDefaults(t *testing.T) {
	svc := NewService(&fakeStore{}, Defaults{PricePerMile: 2.50, PickupFee: 25.00})

	q, err := svc.Quote(context.Background(), pickup, dropoff, "")
	if err != nil {
		t.Fatal(err)
	}
	// 5.42 km -> 3.37 mi -> 25 + 3.37*2.50 = 33.43 (rounded)
	if q.PricePerMile != 2.50 || q.PickupFee != 25.00 {
		t.Errorf("rate resolution: got %v/%v, want defaults", q.PricePerMile, q.PickupFee)
	}
	if math.Abs(q.DistanceMiles-3.37) > 0.01 {
		t.Errorf("DistanceMiles = %v, want ~3.37", q.DistanceMiles)
	}
	want := geo.Round2(25.00 + q.DistanceMiles*2.50)
	if q.TotalPrice != want {
		t.Errorf("TotalPrice = %v, want %v", q.TotalPrice, want)
	}
}

func TestQuoteZeroDistanceIsPickupFee(t *testing.T) {
	svc := NewService(&fakeStore{}, Defaults{PricePerMile: 2.50, PickupFee: 25.00})

	q, err := svc.Quote(context.Background(), pickup, pickup, "")
	if err != nil {
		t.Fatal(err)
	}
	if q.DistanceMiles != 0 {
		t.Errorf("DistanceMiles = %v, want 0", q.DistanceMiles)
	}
	if q.TotalPrice != 25.00 {
		t.Errorf("TotalPrice = %v, want 25.00", q.TotalPrice)
	}
}

func TestQuoteAdminConfigBeatsDefaults(t *testing.T) {
	store := &fakeStore{config: &Config{PricePerMile: 3.00, PickupFee: 40.00}}
	svc := NewService(store, Defaults{PricePerMile: 2.50, PickupFee: 25.00})

	q, err := svc.Quote(context.Background(), pickup, dropoff, "")
	if err != nil {
		t.Fatal(err)
	}
	if q.PricePerMile != 3.00 || q.PickupFee != 40.00 {
		t.Errorf("got %v/%v, want admin config 3.00/40.00", q.PricePerMile, q.PickupFee)
	}
}

func TestQuoteDriverOverrideBeatsConfig(t *testing.T) {
	store := &fakeStore{
		config: &Config{PricePerMile: 3.00, PickupFee: 40.00},
		overrides: map[string]*DriverPricing{
			"drv-1": {DriverID: "drv-1", PricePerMile: 5.00, PickupFee: 10.00, IsUsingBasePricing: false},
			"drv-2": {DriverID: "drv-2", PricePerMile: 9.99, PickupFee: 99.99, IsUsingBasePricing: true},
		},
	}
	svc := NewService(store, Defaults{PricePerMile: 2.50, PickupFee: 25.00})

	q, err := svc.Quote(context.Background(), pickup, dropoff, "drv-1")
	if err != nil {
		t.Fatal(err)
	}
	if q.PricePerMile != 5.00 || q.PickupFee != 10.00 {
		t.Errorf("got %v/%v, want driver override 5.00/10.00", q.PricePerMile, q.PickupFee)
	}

	// A driver deferring to base pricing falls through to the admin config.
	q, err = svc.Quote(context.Background(), pickup, dropoff, "drv-2")
	if err != nil {
		t.Fatal(err)
	}
	if q.PricePerMile != 3.00 || q.PickupFee != 40.00 {
		t.Errorf("got %v/%v, want admin config 3.00/40.00", q.PricePerMile, q.PickupFee)
	}
}

func TestQuoteMonotonicInDistance(t *testing.T) {
	svc := NewService(&fakeStore{}, Defaults{PricePerMile: 2.50, PickupFee: 25.00})

	near, err := svc.Quote(context.Background(), pickup, geo.LatLng{Lat: 40.7500, Lng: -73.9900}, "")
	if err != nil {
		t.Fatal(err)
	}
	far, err := svc.Quote(context.Background(), pickup, dropoff, "")
	if err != nil {
		t.Fatal(err)
	}
	if far.TotalPrice <= near.TotalPrice {
		t.Errorf("longer trip priced %v, shorter %v", far.TotalPrice, near.TotalPrice)
	}
}

func TestUpdateConfigValidatesAndAppends(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(store, Defaults{PricePerMile: 2.50, PickupFee: 25.00})

	cfg, err := svc.UpdateConfig(context.Background(), "admin-1", ConfigUpdate{PricePerMile: 3.25, PickupFee: 30.00})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.PricePerMile != 3.25 || cfg.PickupFee != 30.00 {
		t.Errorf("config = %v/%v, want 3.25/30.00", cfg.PricePerMile, cfg.PickupFee)
	}
	if cfg.CreatedBy != "admin-1" {
		t.Errorf("CreatedBy = %q, want admin-1", cfg.CreatedBy)
	}
	if len(store.inserted) != 1 {
		t.Fatalf("inserted %d configs, want 1", len(store.inserted))
	}

	if _, err := svc.UpdateConfig(context.Background(), "admin-1", ConfigUpdate{PricePerMile: -1, PickupFee: 30.00}); err == nil {
		t.Error("negative price_per_mile accepted")
	}
}
