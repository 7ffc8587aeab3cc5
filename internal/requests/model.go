package requests

import (
	"time"

	"towfleet/internal/geo"
)

// Status is the lifecycle state of a tow request.
type Status string

const (
	StatusPending   Status = "pending"
	StatusAccepted  Status = "accepted"
	StatusOnMission Status = "on_mission"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// NegotiationStatus tracks the price negotiation independently of Status.
type NegotiationStatus string

const (
	NegotiationAwaitingDriver NegotiationStatus = "awaiting_driver"
	NegotiationNegotiating    NegotiationStatus = "negotiating"
	NegotiationPriceAgreed    NegotiationStatus = "price_agreed"
	NegotiationNoDrivers      NegotiationStatus = "no_drivers_available"
	NegotiationExpired        NegotiationStatus = "expired"
)

// TowRequest is the central job record. CurrentDriverID is the driver the
// negotiation is presently offered to; AssignedDriverID is only set once a
// price is agreed or the request is accepted directly.
type TowRequest struct {
	ID             string  `json:"id"`
	ClientID       string  `json:"client_id"`
	PickupAddress  string  `json:"pickup_address"`
	PickupLat      float64 `json:"pickup_lat"`
	PickupLng      float64 `json:"pickup_lng"`
	DropoffAddress string  `json:"dropoff_address"`
	DropoffLat     float64 `json:"dropoff_lat"`
	DropoffLng     float64 `json:"dropoff_lng"`

	VehicleInfo   string   `json:"vehicle_info"`
	VehiclePhotos []string `json:"vehicle_photos"`
	Notes         string   `json:"notes,omitempty"`

	ProposedPrice    *float64 `json:"proposed_price,omitempty"`
	DistanceMiles    *float64 `json:"distance_miles,omitempty"`
	CalculatedPrice  *float64 `json:"calculated_price,omitempty"`
	FinalAgreedPrice *float64 `json:"final_agreed_price,omitempty"`

	Status            Status            `json:"status"`
	NegotiationStatus NegotiationStatus `json:"negotiation_status"`

	CurrentDriverID     *string    `json:"current_driver_id,omitempty"`
	AssignedDriverID    *string    `json:"assigned_driver_id,omitempty"`
	AcceptedByCompanyID *string    `json:"accepted_by_company_id,omitempty"`
	OfferExpiresAt      *time.Time `json:"offer_expires_at,omitempty"`

	DriverLocationLat *float64 `json:"driver_location_lat,omitempty"`
	DriverLocationLng *float64 `json:"driver_location_lng,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (t *TowRequest) Pickup() geo.LatLng {
	return geo.LatLng{Lat: t.PickupLat, Lng: t.PickupLng}
}

func (t *TowRequest) Dropoff() geo.LatLng {
	return geo.LatLng{Lat: t.DropoffLat, Lng: t.DropoffLng}
}

// NegotiationOpen reports whether the negotiation can still move.
func (t *TowRequest) NegotiationOpen() bool {
	return t.NegotiationStatus == NegotiationAwaitingDriver || t.NegotiationStatus == NegotiationNegotiating
}

// CreateRequest is the body for POST /tow-requests.
type CreateRequest struct {
	PickupAddress  string   `json:"pickup_address"`
	PickupLat      float64  `json:"pickup_lat"`
	PickupLng      float64  `json:"pickup_lng"`
	DropoffAddress string   `json:"dropoff_address"`
	DropoffLat     float64  `json:"dropoff_lat"`
	DropoffLng     float64  `json:"dropoff_lng"`
	VehicleInfo    string   `json:"vehicle_info"`
	VehiclePhotos  []string `json:"vehicle_photos"`
	Notes          string   `json:"notes"`
	ProposedPrice  *float64 `json:"proposed_price"`
}

// UpdateRequest is the body for PUT /tow-requests/{id}. Nil fields are
// left untouched.
type UpdateRequest struct {
	Status            *Status  `json:"status"`
	Notes             *string  `json:"notes"`
	DriverLocationLat *float64 `json:"driver_location_lat"`
	DriverLocationLng *float64 `json:"driver_location_lng"`
}

// NearbyItem is a pending request annotated with its distance from the
// querying driver.
type NearbyItem struct {
	Request    *TowRequest `json:"request"`
	DistanceKm float64     `json:"distance_km"`
}
