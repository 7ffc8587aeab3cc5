package negotiation

import "time"

// OfferType identifies who proposed an amount.
type OfferType string

const (
	OfferClient OfferType = "client_offer"
	OfferDriver OfferType = "driver_counter"
	OfferSystem OfferType = "system_calculated"
)

// OfferStatus is the lifecycle state of a single offer.
type OfferStatus string

const (
	OfferPending  OfferStatus = "pending"
	OfferAccepted OfferStatus = "accepted"
	OfferRejected OfferStatus = "rejected"
	OfferExpired  OfferStatus = "expired"
)

// PriceOffer is one proposal on a request. System offers carry no user ID.
type PriceOffer struct {
	ID        string      `json:"id"`
	RequestID string      `json:"request_id"`
	UserID    string      `json:"user_id,omitempty"`
	OfferType OfferType   `json:"offer_type"`
	Amount    float64     `json:"amount"`
	Message   string      `json:"message,omitempty"`
	Status    OfferStatus `json:"status"`
	ExpiresAt time.Time   `json:"expires_at"`
	CreatedAt time.Time   `json:"created_at"`
}

// MakeOfferRequest is the body for POST /tow-requests/{id}/offer.
type MakeOfferRequest struct {
	Amount  float64 `json:"amount"`
	Message string  `json:"message"`
}
