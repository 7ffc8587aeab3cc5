package events

// LatLng is a coordinate pair used in event payloads.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// TowRequestedEvent is published to tow.requested.
type TowRequestedEvent struct {
	RequestID       string  `json:"request_id"`
	ClientID        string  `json:"client_id"`
	Pickup          LatLng  `json:"pickup"`
	Dropoff         LatLng  `json:"dropoff"`
	CalculatedPrice float64 `json:"calculated_price,omitempty"`
	CurrentDriverID string  `json:"current_driver_id,omitempty"`
	RequestedAt     string  `json:"requested_at"`
}

// OfferMadeEvent is published to tow.offer_made.
type OfferMadeEvent struct {
	RequestID string  `json:"request_id"`
	OfferID   string  `json:"offer_id"`
	UserID    string  `json:"user_id"`
	OfferType string  `json:"offer_type"`
	Amount    float64 `json:"amount"`
}

// PriceAgreedEvent is published to tow.price_agreed.
type PriceAgreedEvent struct {
	RequestID   string  `json:"request_id"`
	DriverID    string  `json:"driver_id"`
	ClientID    string  `json:"client_id"`
	AgreedPrice float64 `json:"agreed_price"`
	AgreedAt    string  `json:"agreed_at"`
}

// TowAcceptedEvent is published to tow.accepted (direct accept path).
type TowAcceptedEvent struct {
	RequestID  string `json:"request_id"`
	AcceptorID string `json:"acceptor_id"`
	Role       string `json:"role"`
}

// TowCompletedEvent is published to tow.completed.
type TowCompletedEvent struct {
	RequestID   string  `json:"request_id"`
	DriverID    string  `json:"driver_id"`
	ClientID    string  `json:"client_id"`
	FinalPrice  float64 `json:"final_price,omitempty"`
	CompletedAt string  `json:"completed_at"`
}
