package negotiation

import (
	"context"
	"errors"
	"testing"
	"time"

	"towfleet/internal/drivers"
	"towfleet/internal/fault"
	"towfleet/internal/geo"
	"towfleet/internal/pricing"
	"towfleet/internal/requests"
	"towfleet/internal/users"
)

type fakeOffers struct {
	offers []*PriceOffer
}

func (f *fakeOffers) Insert(_ context.Context, o *PriceOffer) error {
	cp := *o
	f.offers = append(f.offers, &cp)
	return nil
}

func (f *fakeOffers) Latest(_ context.Context, requestID string) (*PriceOffer, error) {
	for i := len(f.offers) - 1; i >= 0; i-- {
		if f.offers[i].RequestID == requestID {
			cp := *f.offers[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeOffers) List(_ context.Context, requestID string) ([]PriceOffer, error) {
	var out []PriceOffer
	for i := len(f.offers) - 1; i >= 0; i-- {
		if f.offers[i].RequestID == requestID {
			out = append(out, *f.offers[i])
		}
	}
	return out, nil
}

func (f *fakeOffers) SetStatus(_ context.Context, offerID string, status OfferStatus) error {
	for _, o := range f.offers {
		if o.ID == offerID {
			o.Status = status
			return nil
		}
	}
	return fault.NotFound("offer")
}

func (f *fakeOffers) ExpirePending(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for _, o := range f.offers {
		if o.Status == OfferPending && o.ExpiresAt.Before(now) {
			o.Status = OfferExpired
			n++
		}
	}
	return n, nil
}

type fakeReqs struct {
	byID map[string]*requests.TowRequest
}

func (f *fakeReqs) Get(_ context.Context, id string) (*requests.TowRequest, error) {
	t, ok := f.byID[id]
	if !ok {
		return nil, fault.NotFound("tow request")
	}
	cp := *t
	return &cp, nil
}

func (f *fakeReqs) SetNegotiation(_ context.Context, id string, status requests.NegotiationStatus, currentDriverID *string, distanceMiles, calculatedPrice *float64, offerExpiresAt *time.Time) error {
	t, ok := f.byID[id]
	if !ok {
		return fault.NotFound("tow request")
	}
	t.NegotiationStatus = status
	t.CurrentDriverID = currentDriverID
	if distanceMiles != nil {
		t.DistanceMiles = distanceMiles
	}
	if calculatedPrice != nil {
		t.CalculatedPrice = calculatedPrice
	}
	t.OfferExpiresAt = offerExpiresAt
	return nil
}

func (f *fakeReqs) SetProposedPrice(_ context.Context, id string, amount float64) error {
	t, ok := f.byID[id]
	if !ok {
		return fault.NotFound("tow request")
	}
	t.ProposedPrice = &amount
	return nil
}

func (f *fakeReqs) AgreeAssign(_ context.Context, id, driverID string, finalPrice float64) (bool, error) {
	t, ok := f.byID[id]
	if !ok {
		return false, fault.NotFound("tow request")
	}
	if t.Status != requests.StatusPending {
		return false, nil
	}
	t.Status = requests.StatusAccepted
	t.NegotiationStatus = requests.NegotiationPriceAgreed
	t.AssignedDriverID = &driverID
	t.FinalAgreedPrice = &finalPrice
	t.CurrentDriverID = nil
	t.OfferExpiresAt = nil
	return true, nil
}

func (f *fakeReqs) ListExpiredNegotiations(_ context.Context, now time.Time) ([]requests.TowRequest, error) {
	var out []requests.TowRequest
	for _, t := range f.byID {
		if t.Status == requests.StatusPending && t.NegotiationOpen() &&
			t.OfferExpiresAt != nil && t.OfferExpiresAt.Before(now) {
			out = append(out, *t)
		}
	}
	return out, nil
}

// fakeLocator returns the first candidate not excluded, modelling a fixed
// available pool ordered by distance.
type fakeLocator struct {
	pool []drivers.Candidate
}

func (f *fakeLocator) FindNearest(_ context.Context, _ geo.LatLng, _ float64, excludeUserID string) (*drivers.Candidate, error) {
	for i := range f.pool {
		if f.pool[i].Profile.UserID != excludeUserID {
			cp := f.pool[i]
			return &cp, nil
		}
	}
	return nil, nil
}

type fakeQuoter struct{ total float64 }

func (f *fakeQuoter) Quote(_ context.Context, _, _ geo.LatLng, _ string) (*pricing.Quote, error) {
	return &pricing.Quote{DistanceMiles: 3.37, PricePerMile: 2.50, PickupFee: 25.00, TotalPrice: f.total}, nil
}

type fakeStatus struct {
	statuses map[string]drivers.Status
}

func (f *fakeStatus) SetStatus(_ context.Context, userID string, status drivers.Status) error {
	if f.statuses == nil {
		f.statuses = map[string]drivers.Status{}
	}
	f.statuses[userID] = status
	return nil
}

func candidate(userID string, distKm float64) drivers.Candidate {
	return drivers.Candidate{
		Profile:    drivers.Profile{ID: "profile-" + userID, UserID: userID, Status: drivers.StatusAvailable},
		DistanceKm: distKm,
	}
}

func pendingRequest(id, clientID string) *requests.TowRequest {
	return &requests.TowRequest{
		ID:                id,
		ClientID:          clientID,
		PickupAddress:     "12 Canal St",
		PickupLat:         40.7128,
		PickupLng:         -74.0060,
		DropoffAddress:    "5th Ave",
		DropoffLat:        40.7589,
		DropoffLng:        -73.9851,
		Status:            requests.StatusPending,
		NegotiationStatus: requests.NegotiationAwaitingDriver,
		CreatedAt:         time.Now(),
		UpdatedAt:         time.Now(),
	}
}

type harness struct {
	svc    *Service
	offers *fakeOffers
	reqs   *fakeReqs
	status *fakeStatus
}

func newHarness(pool ...drivers.Candidate) *harness {
	offers := &fakeOffers{}
	reqs := &fakeReqs{byID: map[string]*requests.TowRequest{}}
	status := &fakeStatus{}
	svc := NewService(offers, reqs, &fakeLocator{pool: pool}, &fakeQuoter{total: 33.43}, status, nil, nil,
		Config{
			SearchRadiusKm: 80,
			DriverOfferTTL: 5 * time.Minute,
			NegotiationTTL: 10 * time.Minute,
			SweepInterval:  30 * time.Second,
		})
	return &harness{svc: svc, offers: offers, reqs: reqs, status: status}
}

var (
	owner       = users.Actor{ID: "client-1", Role: users.RoleClient}
	otherClient = users.Actor{ID: "client-2", Role: users.RoleClient}
	driverA     = users.Actor{ID: "driver-a", Role: users.RoleDriver}
	driverB     = users.Actor{ID: "driver-b", Role: users.RoleDriver}
)

func (h *harness) open(t *testing.T, id string) *requests.TowRequest {
	t.Helper()
	req := pendingRequest(id, owner.ID)
	h.reqs.byID[id] = req
	if err := h.svc.Open(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	return h.reqs.byID[id]
}

func TestOpenNoDriversAvailable(t *testing.T) {
	h := newHarness()
	req := h.open(t, "req-1")

	if req.NegotiationStatus != requests.NegotiationNoDrivers {
		t.Errorf("negotiation_status = %s, want no_drivers_available", req.NegotiationStatus)
	}
	if req.CurrentDriverID != nil {
		t.Errorf("current_driver_id = %v, want nil", *req.CurrentDriverID)
	}
}

func TestOpenOffersNearestDriver(t *testing.T) {
	h := newHarness(candidate("driver-a", 4.4), candidate("driver-b", 6.5))
	req := h.open(t, "req-1")

	if req.NegotiationStatus != requests.NegotiationAwaitingDriver {
		t.Fatalf("negotiation_status = %s", req.NegotiationStatus)
	}
	if req.CurrentDriverID == nil || *req.CurrentDriverID != "driver-a" {
		t.Fatalf("current_driver_id = %v, want driver-a", req.CurrentDriverID)
	}
	if req.CalculatedPrice == nil || *req.CalculatedPrice != 33.43 {
		t.Errorf("calculated_price = %v, want 33.43", req.CalculatedPrice)
	}
	if req.OfferExpiresAt == nil || !req.OfferExpiresAt.After(time.Now()) {
		t.Error("offer_expires_at not set in the future")
	}

	latest, _ := h.offers.Latest(context.Background(), "req-1")
	if latest == nil || latest.OfferType != OfferSystem {
		t.Fatalf("latest offer = %+v, want system quote", latest)
	}
}

func TestMakeOfferAuthorization(t *testing.T) {
	h := newHarness(candidate("driver-a", 4.4))
	h.open(t, "req-1")

	if _, err := h.svc.MakeOffer(context.Background(), otherClient, "req-1", MakeOfferRequest{Amount: 50}); !errors.Is(err, fault.ErrForbidden) {
		t.Errorf("foreign client offer error = %v, want forbidden", err)
	}
	if _, err := h.svc.MakeOffer(context.Background(), driverB, "req-1", MakeOfferRequest{Amount: 50}); !errors.Is(err, fault.ErrForbidden) {
		t.Errorf("non-current driver offer error = %v, want forbidden", err)
	}
	if _, err := h.svc.MakeOffer(context.Background(), owner, "req-1", MakeOfferRequest{Amount: -5}); !errors.Is(err, fault.ErrValidation) {
		t.Errorf("negative amount error = %v, want validation", err)
	}
}

func TestClientOfferMovesToNegotiating(t *testing.T) {
	h := newHarness(candidate("driver-a", 4.4))
	h.open(t, "req-1")

	offer, err := h.svc.MakeOffer(context.Background(), owner, "req-1", MakeOfferRequest{Amount: 28.999})
	if err != nil {
		t.Fatal(err)
	}
	if offer.OfferType != OfferClient {
		t.Errorf("offer_type = %s, want client_offer", offer.OfferType)
	}
	if offer.Amount != 29.00 {
		t.Errorf("amount = %v, want 29.00 after rounding", offer.Amount)
	}

	req := h.reqs.byID["req-1"]
	if req.NegotiationStatus != requests.NegotiationNegotiating {
		t.Errorf("negotiation_status = %s, want negotiating", req.NegotiationStatus)
	}
	if req.ProposedPrice == nil || *req.ProposedPrice != 29.00 {
		t.Errorf("proposed_price = %v, want 29.00", req.ProposedPrice)
	}
	if req.CurrentDriverID == nil || *req.CurrentDriverID != "driver-a" {
		t.Errorf("current driver changed: %v", req.CurrentDriverID)
	}
}

func TestDriverAcceptsClientOffer(t *testing.T) {
	h := newHarness(candidate("driver-a", 4.4))
	h.open(t, "req-1")

	if _, err := h.svc.MakeOffer(context.Background(), owner, "req-1", MakeOfferRequest{Amount: 30}); err != nil {
		t.Fatal(err)
	}

	// The owning client cannot accept their own offer.
	if _, err := h.svc.AcceptOffer(context.Background(), owner, "req-1"); !errors.Is(err, fault.ErrForbidden) {
		t.Errorf("self accept error = %v, want forbidden", err)
	}

	req, err := h.svc.AcceptOffer(context.Background(), driverA, "req-1")
	if err != nil {
		t.Fatal(err)
	}
	if req.Status != requests.StatusAccepted || req.NegotiationStatus != requests.NegotiationPriceAgreed {
		t.Errorf("status = %s/%s", req.Status, req.NegotiationStatus)
	}
	if req.AssignedDriverID == nil || *req.AssignedDriverID != "driver-a" {
		t.Errorf("assigned_driver_id = %v", req.AssignedDriverID)
	}
	if req.FinalAgreedPrice == nil || *req.FinalAgreedPrice != 30 {
		t.Errorf("final_agreed_price = %v, want 30", req.FinalAgreedPrice)
	}
	if req.CurrentDriverID != nil {
		t.Error("current_driver_id should be cleared after agreement")
	}
	if h.status.statuses["driver-a"] != drivers.StatusOnMission {
		t.Errorf("driver status = %s, want on_mission", h.status.statuses["driver-a"])
	}

	// A second accept on the settled request must fail, not double-assign.
	if _, err := h.svc.AcceptOffer(context.Background(), driverA, "req-1"); !errors.Is(err, fault.ErrInvalidState) {
		t.Errorf("second accept error = %v, want invalid state", err)
	}
}

func TestClientAcceptsDriverCounter(t *testing.T) {
	h := newHarness(candidate("driver-a", 4.4))
	h.open(t, "req-1")

	if _, err := h.svc.MakeOffer(context.Background(), driverA, "req-1", MakeOfferRequest{Amount: 45}); err != nil {
		t.Fatal(err)
	}

	// The countering driver cannot accept their own counter.
	if _, err := h.svc.AcceptOffer(context.Background(), driverA, "req-1"); !errors.Is(err, fault.ErrForbidden) {
		t.Errorf("self accept error = %v, want forbidden", err)
	}
	if _, err := h.svc.AcceptOffer(context.Background(), otherClient, "req-1"); !errors.Is(err, fault.ErrForbidden) {
		t.Errorf("foreign client accept error = %v, want forbidden", err)
	}

	req, err := h.svc.AcceptOffer(context.Background(), owner, "req-1")
	if err != nil {
		t.Fatal(err)
	}
	if req.FinalAgreedPrice == nil || *req.FinalAgreedPrice != 45 {
		t.Errorf("final_agreed_price = %v, want 45", req.FinalAgreedPrice)
	}
	if req.AssignedDriverID == nil || *req.AssignedDriverID != "driver-a" {
		t.Errorf("assigned_driver_id = %v", req.AssignedDriverID)
	}
}

func TestSystemQuoteIsNotAcceptable(t *testing.T) {
	h := newHarness(candidate("driver-a", 4.4))
	h.open(t, "req-1")

	if _, err := h.svc.AcceptOffer(context.Background(), owner, "req-1"); !errors.Is(err, fault.ErrInvalidState) {
		t.Errorf("accepting system quote error = %v, want invalid state", err)
	}
}

func TestAcceptLapsedOfferIsRejected(t *testing.T) {
	h := newHarness(candidate("driver-a", 4.4))
	h.open(t, "req-1")

	if _, err := h.svc.MakeOffer(context.Background(), owner, "req-1", MakeOfferRequest{Amount: 29.00}); err != nil {
		t.Fatal(err)
	}
	// Lapse the offer before the sweeper gets to it.
	h.offers.offers[len(h.offers.offers)-1].ExpiresAt = time.Now().Add(-time.Minute)

	if _, err := h.svc.AcceptOffer(context.Background(), driverA, "req-1"); !errors.Is(err, fault.ErrInvalidState) {
		t.Errorf("accepting lapsed offer error = %v, want invalid state", err)
	}
}

func TestDriverRejectRotatesToNextDriver(t *testing.T) {
	h := newHarness(candidate("driver-a", 4.4), candidate("driver-b", 6.5))
	h.open(t, "req-1")

	if _, err := h.svc.MakeOffer(context.Background(), owner, "req-1", MakeOfferRequest{Amount: 100}); err != nil {
		t.Fatal(err)
	}

	req, err := h.svc.RejectOffer(context.Background(), driverA, "req-1")
	if err != nil {
		t.Fatal(err)
	}
	if req.NegotiationStatus != requests.NegotiationAwaitingDriver {
		t.Errorf("negotiation_status = %s, want awaiting_driver", req.NegotiationStatus)
	}
	if req.CurrentDriverID == nil || *req.CurrentDriverID == "driver-a" {
		t.Fatalf("rotation reselected the rejecting driver: %v", req.CurrentDriverID)
	}
	if *req.CurrentDriverID != "driver-b" {
		t.Errorf("current_driver_id = %s, want driver-b", *req.CurrentDriverID)
	}

	offers, _ := h.offers.List(context.Background(), "req-1")
	// Newest first: fresh system quote for driver-b, then the rejected
	// client offer, then the original system quote.
	if offers[0].OfferType != OfferSystem || offers[0].Status != OfferPending {
		t.Errorf("head offer = %+v, want fresh system quote", offers[0])
	}
	if offers[1].OfferType != OfferClient || offers[1].Status != OfferRejected {
		t.Errorf("client offer = %+v, want rejected", offers[1])
	}
}

func TestDriverRejectWithNoFallbackExhausts(t *testing.T) {
	h := newHarness(candidate("driver-a", 4.4))
	h.open(t, "req-1")

	req, err := h.svc.RejectOffer(context.Background(), driverA, "req-1")
	if err != nil {
		t.Fatal(err)
	}
	if req.NegotiationStatus != requests.NegotiationNoDrivers {
		t.Errorf("negotiation_status = %s, want no_drivers_available", req.NegotiationStatus)
	}
	if req.CurrentDriverID != nil {
		t.Errorf("current_driver_id = %v, want nil", *req.CurrentDriverID)
	}
}

func TestClientRejectKeepsDriver(t *testing.T) {
	h := newHarness(candidate("driver-a", 4.4))
	h.open(t, "req-1")

	if _, err := h.svc.MakeOffer(context.Background(), driverA, "req-1", MakeOfferRequest{Amount: 60}); err != nil {
		t.Fatal(err)
	}

	req, err := h.svc.RejectOffer(context.Background(), owner, "req-1")
	if err != nil {
		t.Fatal(err)
	}
	if req.NegotiationStatus != requests.NegotiationAwaitingDriver {
		t.Errorf("negotiation_status = %s, want awaiting_driver", req.NegotiationStatus)
	}
	if req.CurrentDriverID == nil || *req.CurrentDriverID != "driver-a" {
		t.Errorf("current_driver_id = %v, want driver-a retained", req.CurrentDriverID)
	}

	latest, _ := h.offers.Latest(context.Background(), "req-1")
	if latest.Status != OfferRejected {
		t.Errorf("latest offer status = %s, want rejected", latest.Status)
	}
}

func TestRejectAuthorization(t *testing.T) {
	h := newHarness(candidate("driver-a", 4.4))
	h.open(t, "req-1")

	if _, err := h.svc.RejectOffer(context.Background(), otherClient, "req-1"); !errors.Is(err, fault.ErrForbidden) {
		t.Errorf("foreign client reject error = %v, want forbidden", err)
	}
	if _, err := h.svc.RejectOffer(context.Background(), driverB, "req-1"); !errors.Is(err, fault.ErrForbidden) {
		t.Errorf("non-current driver reject error = %v, want forbidden", err)
	}
}

func TestSweeperRotatesLapsedRequests(t *testing.T) {
	h := newHarness(candidate("driver-a", 4.4), candidate("driver-b", 6.5))
	req := h.open(t, "req-1")

	// Backdate the deadline so the driver counts as unresponsive.
	past := time.Now().Add(-time.Minute)
	req.OfferExpiresAt = &past
	h.offers.offers[0].ExpiresAt = past

	h.svc.sweep(context.Background())

	req = h.reqs.byID["req-1"]
	if req.CurrentDriverID == nil || *req.CurrentDriverID != "driver-b" {
		t.Fatalf("lapsed request not rotated: %v", req.CurrentDriverID)
	}
	if req.NegotiationStatus != requests.NegotiationAwaitingDriver {
		t.Errorf("negotiation_status = %s", req.NegotiationStatus)
	}

	// The stale system quote was marked expired by the sweep.
	offers, _ := h.offers.List(context.Background(), "req-1")
	last := offers[len(offers)-1]
	if last.Status != OfferExpired {
		t.Errorf("original quote status = %s, want expired", last.Status)
	}
}

func TestSweeperExpiresLapsedCounterOffers(t *testing.T) {
	h := newHarness(candidate("driver-a", 4.4), candidate("driver-b", 6.5))
	h.open(t, "req-1")

	if _, err := h.svc.MakeOffer(context.Background(), owner, "req-1", MakeOfferRequest{Amount: 40}); err != nil {
		t.Fatal(err)
	}
	past := time.Now().Add(-time.Minute)
	h.reqs.byID["req-1"].OfferExpiresAt = &past

	h.svc.sweep(context.Background())

	req := h.reqs.byID["req-1"]
	if req.NegotiationStatus != requests.NegotiationExpired {
		t.Errorf("negotiation_status = %s, want expired", req.NegotiationStatus)
	}
	if req.CurrentDriverID != nil {
		t.Errorf("current_driver_id = %v, want nil", *req.CurrentDriverID)
	}
}

func TestMakeOfferOnClosedNegotiation(t *testing.T) {
	h := newHarness()
	h.open(t, "req-1") // exhausts immediately, no drivers

	if _, err := h.svc.MakeOffer(context.Background(), owner, "req-1", MakeOfferRequest{Amount: 50}); !errors.Is(err, fault.ErrInvalidState) {
		t.Errorf("offer on closed negotiation error = %v, want invalid state", err)
	}
}
