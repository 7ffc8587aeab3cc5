package negotiation

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"towfleet/internal/drivers"
	"towfleet/internal/events"
	"towfleet/internal/fault"
	"towfleet/internal/geo"
	"towfleet/internal/observability"
	"towfleet/internal/pricing"
	"towfleet/internal/requests"
	"towfleet/internal/users"
	"towfleet/pkg/kafka"
	"towfleet/pkg/validation"
)

// RequestStore is the slice of the request store the negotiation needs.
type RequestStore interface {
	Get(ctx context.Context, id string) (*requests.TowRequest, error)
	SetNegotiation(ctx context.Context, id string, status requests.NegotiationStatus, currentDriverID *string, distanceMiles, calculatedPrice *float64, offerExpiresAt *time.Time) error
	SetProposedPrice(ctx context.Context, id string, amount float64) error
	AgreeAssign(ctx context.Context, id, driverID string, finalPrice float64) (bool, error)
	ListExpiredNegotiations(ctx context.Context, now time.Time) ([]requests.TowRequest, error)
}

// Locator finds candidate drivers around a pickup point.
type Locator interface {
	FindNearest(ctx context.Context, origin geo.LatLng, maxKm float64, excludeUserID string) (*drivers.Candidate, error)
}

// Quoter prices a trip for a specific driver.
type Quoter interface {
	Quote(ctx context.Context, pickup, dropoff geo.LatLng, driverID string) (*pricing.Quote, error)
}

// DriverStatusSetter flips a driver's availability once a job is taken.
type DriverStatusSetter interface {
	SetStatus(ctx context.Context, userID string, status drivers.Status) error
}

// Publisher emits domain events. May be nil in tests.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value any) error
}

// Notifier pushes live updates to connected clients. May be nil.
type Notifier interface {
	Broadcast(requestID string, payload any)
}

// Config carries the negotiation timing knobs.
type Config struct {
	SearchRadiusKm float64
	DriverOfferTTL time.Duration
	NegotiationTTL time.Duration
	SweepInterval  time.Duration
}

// Service runs the price negotiation state machine.
type Service struct {
	offers    OfferStore
	reqs      RequestStore
	locator   Locator
	quoter    Quoter
	drv       DriverStatusSetter
	publisher Publisher
	notifier  Notifier
	cfg       Config
}

func NewService(offers OfferStore, reqs RequestStore, locator Locator, quoter Quoter, drv DriverStatusSetter, publisher Publisher, notifier Notifier, cfg Config) *Service {
	return &Service{
		offers:    offers,
		reqs:      reqs,
		locator:   locator,
		quoter:    quoter,
		drv:       drv,
		publisher: publisher,
		notifier:  notifier,
		cfg:       cfg,
	}
}

// Open starts the negotiation for a new request: locate the nearest
// available driver, quote the trip with that driver's pricing and offer it
// to them. The request struct is updated in place for the caller.
func (s *Service) Open(ctx context.Context, t *requests.TowRequest) error {
	cand, err := s.locator.FindNearest(ctx, t.Pickup(), s.cfg.SearchRadiusKm, "")
	if err != nil {
		return err
	}
	if cand == nil {
		t.NegotiationStatus = requests.NegotiationNoDrivers
		t.CurrentDriverID = nil
		t.OfferExpiresAt = nil
		observability.NegotiationsExhaustedTotal.Inc()
		return s.reqs.SetNegotiation(ctx, t.ID, requests.NegotiationNoDrivers, nil, nil, nil, nil)
	}
	return s.offerTo(ctx, t, cand)
}

// offerTo quotes the trip for a candidate and moves the request to
// awaiting_driver with a fresh response deadline.
func (s *Service) offerTo(ctx context.Context, t *requests.TowRequest, cand *drivers.Candidate) error {
	quote, err := s.quoter.Quote(ctx, t.Pickup(), t.Dropoff(), cand.Profile.UserID)
	if err != nil {
		return fmt.Errorf("quote for driver %s: %w", cand.Profile.UserID, err)
	}
	now := time.Now()
	expires := now.Add(s.cfg.DriverOfferTTL)
	driverID := cand.Profile.UserID

	t.NegotiationStatus = requests.NegotiationAwaitingDriver
	t.CurrentDriverID = &driverID
	t.DistanceMiles = &quote.DistanceMiles
	t.CalculatedPrice = &quote.TotalPrice
	t.OfferExpiresAt = &expires

	if err := s.reqs.SetNegotiation(ctx, t.ID, requests.NegotiationAwaitingDriver, &driverID, &quote.DistanceMiles, &quote.TotalPrice, &expires); err != nil {
		return err
	}

	offer := &PriceOffer{
		ID:        uuid.New().String(),
		RequestID: t.ID,
		OfferType: OfferSystem,
		Amount:    quote.TotalPrice,
		Status:    OfferPending,
		ExpiresAt: expires,
		CreatedAt: now,
	}
	if err := s.offers.Insert(ctx, offer); err != nil {
		return err
	}
	observability.OffersTotal.WithLabelValues(string(OfferSystem)).Inc()
	s.broadcast(t.ID, map[string]any{
		"type":              "driver_offered",
		"current_driver_id": driverID,
		"calculated_price":  quote.TotalPrice,
		"expires_at":        expires,
	})
	return nil
}

// MakeOffer records a proposal from the request's client or its current
// driver and moves the negotiation to negotiating.
func (s *Service) MakeOffer(ctx context.Context, actor users.Actor, requestID string, req MakeOfferRequest) (*PriceOffer, error) {
	if !validation.ValidateAmount(req.Amount) {
		return nil, fault.Invalid("invalid offer amount")
	}
	t, err := s.reqs.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if t.Status != requests.StatusPending || !t.NegotiationOpen() {
		return nil, fault.InvalidState("negotiation is closed")
	}

	var offerType OfferType
	switch {
	case users.IsRequester(actor.Role):
		if t.ClientID != actor.ID {
			return nil, fault.Forbidden("not your tow request")
		}
		offerType = OfferClient
	case actor.Role == users.RoleDriver:
		if t.CurrentDriverID == nil || *t.CurrentDriverID != actor.ID {
			return nil, fault.Forbidden("request is not offered to you")
		}
		offerType = OfferDriver
	default:
		return nil, fault.Forbidden("role cannot make offers")
	}

	now := time.Now()
	expires := now.Add(s.cfg.NegotiationTTL)
	offer := &PriceOffer{
		ID:        uuid.New().String(),
		RequestID: t.ID,
		UserID:    actor.ID,
		OfferType: offerType,
		Amount:    geo.Round2(req.Amount),
		Message:   req.Message,
		Status:    OfferPending,
		ExpiresAt: expires,
		CreatedAt: now,
	}
	if err := s.offers.Insert(ctx, offer); err != nil {
		return nil, err
	}
	if offerType == OfferClient {
		if err := s.reqs.SetProposedPrice(ctx, t.ID, offer.Amount); err != nil {
			return nil, err
		}
	}
	if err := s.reqs.SetNegotiation(ctx, t.ID, requests.NegotiationNegotiating, t.CurrentDriverID, nil, nil, &expires); err != nil {
		return nil, err
	}
	observability.OffersTotal.WithLabelValues(string(offerType)).Inc()

	s.publish(kafka.TopicOfferMade, t.ID, events.OfferMadeEvent{
		RequestID: t.ID,
		OfferID:   offer.ID,
		UserID:    actor.ID,
		OfferType: string(offerType),
		Amount:    offer.Amount,
	})
	s.broadcast(t.ID, map[string]any{
		"type":       "offer_made",
		"offer_type": string(offerType),
		"amount":     offer.Amount,
		"user_id":    actor.ID,
	})
	return offer, nil
}

// AcceptOffer closes the negotiation on the latest pending offer. Only the
// counterparty can accept: the current driver takes a client_offer, the
// owning client takes a driver_counter.
func (s *Service) AcceptOffer(ctx context.Context, actor users.Actor, requestID string) (*requests.TowRequest, error) {
	t, err := s.reqs.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	latest, err := s.offers.Latest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, fault.InvalidState("no offer to accept")
	}
	if latest.Status != OfferPending {
		return nil, fault.InvalidState("offer is no longer open")
	}
	// The sweeper may not have visited yet; a lapsed deadline closes the
	// offer regardless.
	if time.Now().After(latest.ExpiresAt) {
		return nil, fault.InvalidState("offer has expired")
	}

	var driverID string
	switch latest.OfferType {
	case OfferClient:
		if actor.Role != users.RoleDriver || t.CurrentDriverID == nil || *t.CurrentDriverID != actor.ID {
			return nil, fault.Forbidden("only the current driver can accept this offer")
		}
		driverID = actor.ID
	case OfferDriver:
		if !users.IsRequester(actor.Role) || t.ClientID != actor.ID {
			return nil, fault.Forbidden("only the request owner can accept this offer")
		}
		if t.CurrentDriverID == nil {
			return nil, fault.InvalidState("no driver attached to this negotiation")
		}
		driverID = *t.CurrentDriverID
	default:
		return nil, fault.InvalidState("offer is not acceptable")
	}

	ok, err := s.reqs.AgreeAssign(ctx, t.ID, driverID, latest.Amount)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fault.InvalidState("request is no longer pending")
	}
	if err := s.offers.SetStatus(ctx, latest.ID, OfferAccepted); err != nil {
		return nil, err
	}
	if err := s.drv.SetStatus(ctx, driverID, drivers.StatusOnMission); err != nil {
		log.Printf("[negotiation] set driver %s on_mission: %v", driverID, err)
	}
	observability.NegotiationsAgreedTotal.Inc()

	s.publish(kafka.TopicPriceAgreed, t.ID, events.PriceAgreedEvent{
		RequestID:   t.ID,
		DriverID:    driverID,
		ClientID:    t.ClientID,
		AgreedPrice: latest.Amount,
		AgreedAt:    time.Now().Format(time.RFC3339),
	})
	s.broadcast(t.ID, map[string]any{
		"type":         "price_agreed",
		"driver_id":    driverID,
		"agreed_price": latest.Amount,
	})
	return s.reqs.Get(ctx, t.ID)
}

// RejectOffer declines the latest pending offer. A driver rejection hands
// the request to the next nearest driver; a client rejection reopens the
// negotiation with the same driver.
func (s *Service) RejectOffer(ctx context.Context, actor users.Actor, requestID string) (*requests.TowRequest, error) {
	t, err := s.reqs.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if t.Status != requests.StatusPending || !t.NegotiationOpen() {
		return nil, fault.InvalidState("negotiation is closed")
	}

	isDriver := actor.Role == users.RoleDriver && t.CurrentDriverID != nil && *t.CurrentDriverID == actor.ID
	isOwner := users.IsRequester(actor.Role) && t.ClientID == actor.ID
	if !isDriver && !isOwner {
		return nil, fault.Forbidden("only the current driver or the request owner can reject")
	}

	latest, err := s.offers.Latest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return t, nil
	}
	if latest.Status == OfferPending {
		if err := s.offers.SetStatus(ctx, latest.ID, OfferRejected); err != nil {
			return nil, err
		}
	}

	if isDriver {
		if err := s.rotate(ctx, t, actor.ID); err != nil {
			return nil, err
		}
	} else {
		expires := time.Now().Add(s.cfg.DriverOfferTTL)
		if err := s.reqs.SetNegotiation(ctx, t.ID, requests.NegotiationAwaitingDriver, t.CurrentDriverID, nil, nil, &expires); err != nil {
			return nil, err
		}
		s.broadcast(t.ID, map[string]any{"type": "offer_rejected", "by": "client"})
	}
	return s.reqs.Get(ctx, t.ID)
}

// ListOffers returns a request's offer history, newest first.
func (s *Service) ListOffers(ctx context.Context, actor users.Actor, requestID string) ([]PriceOffer, error) {
	t, err := s.reqs.Get(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if users.IsRequester(actor.Role) && t.ClientID != actor.ID {
		return nil, fault.Forbidden("not your tow request")
	}
	return s.offers.List(ctx, requestID)
}

// rotate re-runs the driver search excluding the driver who just declined
// or lapsed.
func (s *Service) rotate(ctx context.Context, t *requests.TowRequest, excludeDriverID string) error {
	cand, err := s.locator.FindNearest(ctx, t.Pickup(), s.cfg.SearchRadiusKm, excludeDriverID)
	if err != nil {
		return err
	}
	if cand == nil {
		observability.NegotiationsExhaustedTotal.Inc()
		if err := s.reqs.SetNegotiation(ctx, t.ID, requests.NegotiationNoDrivers, nil, nil, nil, nil); err != nil {
			return err
		}
		s.broadcast(t.ID, map[string]any{"type": "no_drivers_available"})
		return nil
	}
	observability.DriverRotationsTotal.Inc()
	return s.offerTo(ctx, t, cand)
}

// RunExpirySweeper periodically expires overdue offers and rotates requests
// whose current driver never responded. Runs until the context is cancelled.
func (s *Service) RunExpirySweeper(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()
	log.Printf("[negotiation] expiry sweeper running every %s", s.cfg.SweepInterval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Service) sweep(ctx context.Context) {
	now := time.Now()
	n, err := s.offers.ExpirePending(ctx, now)
	if err != nil {
		log.Printf("[negotiation] expire offers: %v", err)
	} else if n > 0 {
		observability.OffersExpiredTotal.Add(float64(n))
	}

	lapsed, err := s.reqs.ListExpiredNegotiations(ctx, now)
	if err != nil {
		log.Printf("[negotiation] list lapsed negotiations: %v", err)
		return
	}
	for i := range lapsed {
		t := &lapsed[i]
		// A lapsed counter-offer ends the haggle; a driver who never
		// responded to the initial quote just gets skipped over.
		if t.NegotiationStatus == requests.NegotiationNegotiating {
			if err := s.reqs.SetNegotiation(ctx, t.ID, requests.NegotiationExpired, nil, nil, nil, nil); err != nil {
				log.Printf("[negotiation] expire request %s: %v", t.ID, err)
				continue
			}
			s.broadcast(t.ID, map[string]any{"type": "negotiation_expired"})
			continue
		}
		exclude := ""
		if t.CurrentDriverID != nil {
			exclude = *t.CurrentDriverID
		}
		if err := s.rotate(ctx, t, exclude); err != nil {
			log.Printf("[negotiation] rotate request %s: %v", t.ID, err)
		}
	}
}

func (s *Service) publish(topic, key string, value any) {
	if s.publisher == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.publisher.Publish(ctx, topic, key, value); err != nil {
			log.Printf("[negotiation] publish %s: %v", topic, err)
		}
	}()
}

func (s *Service) broadcast(requestID string, payload any) {
	if s.notifier == nil {
		return
	}
	s.notifier.Broadcast(requestID, payload)
}
