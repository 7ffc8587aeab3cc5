package pricing

import "time"

// Config is the admin-controlled base pricing. Rows are append-only; the
// most recently created row is the one in force.
type Config struct {
	ID           string    `json:"id"`
	PricePerMile float64   `json:"price_per_mile"`
	PricePerHour float64   `json:"price_per_hour"`
	PickupFee    float64   `json:"pickup_fee"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
}

// DriverPricing is a per-driver override. When IsUsingBasePricing is true
// the driver defers to the admin Config and the override fields are ignored.
type DriverPricing struct {
	ID                 string    `json:"id"`
	DriverID           string    `json:"driver_id"`
	PricePerMile       float64   `json:"price_per_mile"`
	PickupFee          float64   `json:"pickup_fee"`
	IsUsingBasePricing bool      `json:"is_using_base_pricing"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Quote is the priced route returned by the engine.
type Quote struct {
	DistanceMiles float64 `json:"distance_miles"`
	PricePerMile  float64 `json:"price_per_mile"`
	PickupFee     float64 `json:"pickup_fee"`
	TotalPrice    float64 `json:"total_price"`
}

// ConfigUpdate is the body for PUT /admin/pricing-config.
type ConfigUpdate struct {
	PricePerMile float64 `json:"price_per_mile"`
	PricePerHour float64 `json:"price_per_hour"`
	PickupFee    float64 `json:"pickup_fee"`
}

// DriverPricingUpdate is the body for PUT /drivers/pricing.
type DriverPricingUpdate struct {
	PricePerMile       float64 `json:"price_per_mile"`
	PickupFee          float64 `json:"pickup_fee"`
	IsUsingBasePricing bool    `json:"is_using_base_pricing"`
}
