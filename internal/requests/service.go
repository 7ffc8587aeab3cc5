package requests

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"

	"towfleet/internal/drivers"
	"towfleet/internal/events"
	"towfleet/internal/fault"
	"towfleet/internal/geo"
	"towfleet/internal/observability"
	"towfleet/internal/users"
	"towfleet/pkg/kafka"
	"towfleet/pkg/validation"
)

// NegotiationOpener starts the price negotiation for a freshly created
// request. Implemented by the negotiation service; wired in main.
type NegotiationOpener interface {
	Open(ctx context.Context, t *TowRequest) error
}

// DriverDirectory exposes the driver profile lookups the request flow needs.
type DriverDirectory interface {
	GetProfile(ctx context.Context, userID string) (*drivers.Profile, error)
}

// Publisher emits domain events. May be nil in tests.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value any) error
}

// RequestCache mirrors hot request fields into Redis. May be nil in tests.
type RequestCache interface {
	CacheRequest(ctx context.Context, id string, fields map[string]string) error
}

// Service implements the tow request operations.
type Service struct {
	store     Store
	opener    NegotiationOpener
	directory DriverDirectory
	publisher Publisher
	cache     RequestCache

	directAcceptRadiusKm float64
	nearbyRadiusKm       float64
}

func NewService(store Store, opener NegotiationOpener, directory DriverDirectory, publisher Publisher, cache RequestCache, directAcceptRadiusKm, nearbyRadiusKm float64) *Service {
	return &Service{
		store:                store,
		opener:               opener,
		directory:            directory,
		publisher:            publisher,
		cache:                cache,
		directAcceptRadiusKm: directAcceptRadiusKm,
		nearbyRadiusKm:       nearbyRadiusKm,
	}
}

// Create validates and stores a new tow request, then opens its negotiation.
func (s *Service) Create(ctx context.Context, actor users.Actor, req CreateRequest) (*TowRequest, error) {
	if !users.CanCreateRequest(actor.Role) {
		return nil, fault.Forbidden("only clients and dealers can create tow requests")
	}
	if !validation.ValidateAddress(req.PickupAddress) {
		return nil, fault.Invalid("invalid pickup_address")
	}
	if !validation.ValidateAddress(req.DropoffAddress) {
		return nil, fault.Invalid("invalid dropoff_address")
	}
	if !validation.ValidateCoordinates(req.PickupLat, req.PickupLng) {
		return nil, fault.Invalid("invalid pickup coordinates")
	}
	if !validation.ValidateCoordinates(req.DropoffLat, req.DropoffLng) {
		return nil, fault.Invalid("invalid dropoff coordinates")
	}
	if req.ProposedPrice != nil && !validation.ValidateAmount(*req.ProposedPrice) {
		return nil, fault.Invalid("invalid proposed_price")
	}

	now := time.Now()
	t := &TowRequest{
		ID:                uuid.New().String(),
		ClientID:          actor.ID,
		PickupAddress:     req.PickupAddress,
		PickupLat:         req.PickupLat,
		PickupLng:         req.PickupLng,
		DropoffAddress:    req.DropoffAddress,
		DropoffLat:        req.DropoffLat,
		DropoffLng:        req.DropoffLng,
		VehicleInfo:       req.VehicleInfo,
		VehiclePhotos:     req.VehiclePhotos,
		Notes:             req.Notes,
		ProposedPrice:     req.ProposedPrice,
		Status:            StatusPending,
		NegotiationStatus: NegotiationAwaitingDriver,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if t.VehiclePhotos == nil {
		t.VehiclePhotos = []string{}
	}
	if err := s.store.Insert(ctx, t); err != nil {
		return nil, err
	}
	if err := s.opener.Open(ctx, t); err != nil {
		return nil, fmt.Errorf("open negotiation: %w", err)
	}
	observability.RequestsCreatedTotal.Inc()

	evt := events.TowRequestedEvent{
		RequestID:   t.ID,
		ClientID:    t.ClientID,
		Pickup:      events.LatLng{Lat: t.PickupLat, Lng: t.PickupLng},
		Dropoff:     events.LatLng{Lat: t.DropoffLat, Lng: t.DropoffLng},
		RequestedAt: t.CreatedAt.Format(time.RFC3339),
	}
	if t.CalculatedPrice != nil {
		evt.CalculatedPrice = *t.CalculatedPrice
	}
	if t.CurrentDriverID != nil {
		evt.CurrentDriverID = *t.CurrentDriverID
	}
	s.mirror(t)
	s.publish(kafka.TopicTowRequested, t.ID, evt)
	return t, nil
}

// List returns the requests visible to the actor's role.
func (s *Service) List(ctx context.Context, actor users.Actor) ([]TowRequest, error) {
	switch {
	case users.IsRequester(actor.Role):
		return s.store.ListByClient(ctx, actor.ID)
	case actor.Role == users.RoleDriver:
		return s.store.ListForDriver(ctx, actor.ID)
	case users.CanViewAllRequests(actor.Role):
		return s.store.ListAll(ctx)
	default:
		return nil, fault.Forbidden("role cannot list tow requests")
	}
}

// Get returns one request. Requesters may only see their own.
func (s *Service) Get(ctx context.Context, actor users.Actor, id string) (*TowRequest, error) {
	t, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if users.IsRequester(actor.Role) && t.ClientID != actor.ID {
		return nil, fault.Forbidden("not your tow request")
	}
	return t, nil
}

// Update applies mutable fields. Drivers may only move their assigned
// request through the job states and report their position.
func (s *Service) Update(ctx context.Context, actor users.Actor, id string, upd UpdateRequest) (*TowRequest, error) {
	t, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	switch actor.Role {
	case users.RoleDriver:
		if t.AssignedDriverID == nil || *t.AssignedDriverID != actor.ID {
			return nil, fault.Forbidden("request is not assigned to you")
		}
		if upd.Status != nil {
			switch *upd.Status {
			case StatusAccepted, StatusOnMission, StatusCompleted:
			default:
				return nil, fault.Invalid("drivers can only set accepted, on_mission or completed")
			}
		}
	case users.RoleTowCompany, users.RoleAdmin:
	default:
		return nil, fault.Forbidden("role cannot update tow requests")
	}
	if upd.Status != nil && !validStatus(*upd.Status) {
		return nil, fault.Invalid("unknown status")
	}
	if (upd.DriverLocationLat == nil) != (upd.DriverLocationLng == nil) {
		return nil, fault.Invalid("driver location requires both coordinates")
	}
	if upd.DriverLocationLat != nil && !validation.ValidateCoordinates(*upd.DriverLocationLat, *upd.DriverLocationLng) {
		return nil, fault.Invalid("invalid driver location")
	}
	prevStatus := t.Status
	if err := s.store.ApplyUpdate(ctx, id, upd); err != nil {
		return nil, err
	}
	t, err = s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	// Completion fires once; a repeated completed update must not
	// re-credit the driver's job stats downstream.
	if t.Status == StatusCompleted && prevStatus != StatusCompleted {
		s.onCompleted(t)
	}
	s.mirror(t)
	return t, nil
}

// DirectAccept takes a pending request as-is, skipping negotiation. The
// compare-and-set in the store decides races between acceptors.
func (s *Service) DirectAccept(ctx context.Context, actor users.Actor, id string) (*TowRequest, error) {
	if !users.CanAcceptRequest(actor.Role) {
		return nil, fault.Forbidden("only drivers and tow companies can accept requests")
	}
	t, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status != StatusPending {
		return nil, fault.InvalidState("request is not pending")
	}

	var driverID, companyID *string
	if actor.Role == users.RoleDriver {
		profile, err := s.directory.GetProfile(ctx, actor.ID)
		if err != nil {
			return nil, err
		}
		if profile.Status != drivers.StatusAvailable {
			return nil, fault.InvalidState("driver is not available")
		}
		if profile.HasLocation() {
			dist := geo.DistanceKm(geo.LatLng{Lat: *profile.Lat, Lng: *profile.Lng}, t.Pickup())
			if dist > s.directAcceptRadiusKm {
				return nil, fault.InvalidState("pickup is outside your service radius")
			}
		}
		driverID = &actor.ID
	} else {
		companyID = &actor.ID
	}

	ok, err := s.store.DirectAccept(ctx, id, driverID, companyID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fault.InvalidState("request is no longer pending")
	}
	observability.DirectAcceptsTotal.Inc()

	t, err = s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.mirror(t)
	s.publish(kafka.TopicTowAccepted, t.ID, events.TowAcceptedEvent{
		RequestID:  t.ID,
		AcceptorID: actor.ID,
		Role:       string(actor.Role),
	})
	return t, nil
}

// Nearby lists pending requests around the driver's last reported position,
// closest first.
func (s *Service) Nearby(ctx context.Context, actor users.Actor, radiusKm float64) ([]NearbyItem, error) {
	if actor.Role != users.RoleDriver {
		return nil, fault.Forbidden("only drivers can browse nearby requests")
	}
	profile, err := s.directory.GetProfile(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	if !profile.HasLocation() {
		return nil, fault.InvalidState("no reported location, update your position first")
	}
	if radiusKm <= 0 {
		radiusKm = s.nearbyRadiusKm
	}
	origin := geo.LatLng{Lat: *profile.Lat, Lng: *profile.Lng}

	pending, err := s.store.ListPending(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]NearbyItem, 0)
	for i := range pending {
		dist := geo.DistanceKm(origin, pending[i].Pickup())
		if dist <= radiusKm {
			items = append(items, NearbyItem{Request: &pending[i], DistanceKm: geo.Round2(dist)})
		}
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].DistanceKm < items[j].DistanceKm
	})
	return items, nil
}

// onCompleted publishes the completion event; the stats consumer picks it
// up to credit the driver and free their profile.
func (s *Service) onCompleted(t *TowRequest) {
	price := 0.0
	if t.FinalAgreedPrice != nil {
		price = *t.FinalAgreedPrice
	} else if t.CalculatedPrice != nil {
		price = *t.CalculatedPrice
	}
	driverID := ""
	if t.AssignedDriverID != nil {
		driverID = *t.AssignedDriverID
	}
	s.publish(kafka.TopicTowCompleted, t.ID, events.TowCompletedEvent{
		RequestID:   t.ID,
		DriverID:    driverID,
		ClientID:    t.ClientID,
		FinalPrice:  price,
		CompletedAt: time.Now().Format(time.RFC3339),
	})
}

func (s *Service) mirror(t *TowRequest) {
	if s.cache == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		fields := map[string]string{
			"status":             string(t.Status),
			"negotiation_status": string(t.NegotiationStatus),
			"client_id":          t.ClientID,
			"pickup_lat":         strconv.FormatFloat(t.PickupLat, 'f', -1, 64),
			"pickup_lng":         strconv.FormatFloat(t.PickupLng, 'f', -1, 64),
		}
		if err := s.cache.CacheRequest(ctx, t.ID, fields); err != nil {
			log.Printf("[requests] cache request %s: %v", t.ID, err)
		}
	}()
}

func (s *Service) publish(topic, key string, value any) {
	if s.publisher == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.publisher.Publish(ctx, topic, key, value); err != nil {
			log.Printf("[requests] publish %s: %v", topic, err)
		}
	}()
}

func validStatus(s Status) bool {
	switch s {
	case StatusPending, StatusAccepted, StatusOnMission, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}
