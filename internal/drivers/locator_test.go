package drivers

import (
	"context"
	"testing"

	"towfleet/internal/geo"
)

type fakeStore struct {
	available []Profile
}

func (f *fakeStore) CreateForUser(_ context.Context, _ string) error { return nil }
func (f *fakeStore) GetByUser(_ context.Context, _ string) (*Profile, error) {
	return nil, nil
}
func (f *fakeStore) UpdateStatus(_ context.Context, _ string, _ Status) error       { return nil }
func (f *fakeStore) UpdateLocation(_ context.Context, _ string, _, _ float64) error { return nil }
func (f *fakeStore) UpdateInfo(_ context.Context, _ string, _ ProfileUpdate) error  { return nil }
func (f *fakeStore) IncrementJobs(_ context.Context, _ string) error                { return nil }
func (f *fakeStore) ListAvailable(_ context.Context) ([]Profile, error) {
	return f.available, nil
}

func located(userID string, lat, lng float64) Profile {
	return Profile{
		ID:     "profile-" + userID,
		UserID: userID,
		Status: StatusAvailable,
		Lat:    &lat,
		Lng:    &lng,
	}
}

// Pickup in lower Manhattan; the LA driver sits ~3900 km away.
var pickupPoint = geo.LatLng{Lat: 40.7128, Lng: -74.0060}

func TestFindNearbyFiltersAndSorts(t *testing.T) {
	store := &fakeStore{available: []Profile{
		located("midtown", 40.7500, -73.9900),  // ~4.4 km
		located("brooklyn", 40.6782, -73.9442), // ~6.5 km
		located("la", 34.0522, -118.2437),      // ~3936 km, out of range
		located("harlem", 40.8116, -73.9465),   // ~11.9 km
	}}
	svc := NewService(store, nil)

	got, err := svc.FindNearby(context.Background(), pickupPoint, 50, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d candidates, want 3", len(got))
	}
	order := []string{"midtown", "brooklyn", "harlem"}
	for i, want := range order {
		if got[i].Profile.UserID != want {
			t.Errorf("candidate[%d] = %s, want %s", i, got[i].Profile.UserID, want)
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i].DistanceKm < got[i-1].DistanceKm {
			t.Errorf("candidates not sorted ascending at index %d", i)
		}
	}
}

func TestFindNearbyExcludesDriver(t *testing.T) {
	store := &fakeStore{available: []Profile{
		located("midtown", 40.7500, -73.9900),
		located("brooklyn", 40.6782, -73.9442),
	}}
	svc := NewService(store, nil)

	got, err := svc.FindNearby(context.Background(), pickupPoint, 50, "midtown")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Profile.UserID != "brooklyn" {
		t.Fatalf("exclusion failed: %+v", got)
	}
}

func TestFindNearestPicksClosest(t *testing.T) {
	store := &fakeStore{available: []Profile{
		located("brooklyn", 40.6782, -73.9442),
		located("midtown", 40.7500, -73.9900),
	}}
	svc := NewService(store, nil)

	cand, err := svc.FindNearest(context.Background(), pickupPoint, 80, "")
	if err != nil {
		t.Fatal(err)
	}
	if cand == nil || cand.Profile.UserID != "midtown" {
		t.Fatalf("FindNearest = %+v, want midtown", cand)
	}
}

func TestFindNearestNoneInRange(t *testing.T) {
	store := &fakeStore{available: []Profile{
		located("la", 34.0522, -118.2437),
	}}
	svc := NewService(store, nil)

	cand, err := svc.FindNearest(context.Background(), pickupPoint, 80, "")
	if err != nil {
		t.Fatal(err)
	}
	if cand != nil {
		t.Fatalf("FindNearest = %+v, want nil", cand)
	}
}

func TestFindNearbyStableTies(t *testing.T) {
	// Two drivers at the same spot keep account-creation order.
	store := &fakeStore{available: []Profile{
		located("first", 40.7500, -73.9900),
		located("second", 40.7500, -73.9900),
	}}
	svc := NewService(store, nil)

	got, err := svc.FindNearby(context.Background(), pickupPoint, 50, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Profile.UserID != "first" || got[1].Profile.UserID != "second" {
		t.Fatalf("tie order broken: %+v", got)
	}
}
