package drivers

import "time"

// Status enumerates driver availability states.
type Status string

const (
	StatusOffline   Status = "offline"
	StatusAvailable Status = "available"
	StatusOnMission Status = "on_mission"
)

// ValidStatus reports whether s is a recognised driver status.
func ValidStatus(s Status) bool {
	return s == StatusOffline || s == StatusAvailable || s == StatusOnMission
}

// Profile holds driver operational state, owned by the driver's user account.
type Profile struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	LicenseNumber string    `json:"license_number"`
	VehicleInfo   string    `json:"vehicle_info"`
	TowCompanyID  *string   `json:"tow_company_id,omitempty"` // nil for independents
	Status        Status    `json:"status"`
	Lat           *float64  `json:"current_location_lat,omitempty"`
	Lng           *float64  `json:"current_location_lng,omitempty"`
	Rating        float64   `json:"rating"`
	TotalJobs     int       `json:"total_jobs"`
	CreatedAt     time.Time `json:"created_at"`
}

// HasLocation reports whether the driver has ever reported a position.
func (p *Profile) HasLocation() bool {
	return p.Lat != nil && p.Lng != nil
}

// Candidate is a located driver returned by the locator, closest first.
type Candidate struct {
	Profile    Profile `json:"profile"`
	DistanceKm float64 `json:"distance_km"`
}

// LocationUpdate is the body for PUT /drivers/location.
type LocationUpdate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// StatusUpdate is the body for PUT /drivers/status.
type StatusUpdate struct {
	Status Status `json:"status"`
}

// ProfileUpdate is the body for PUT /drivers/profile.
type ProfileUpdate struct {
	LicenseNumber string  `json:"license_number"`
	VehicleInfo   string  `json:"vehicle_info"`
	TowCompanyID  *string `json:"tow_company_id,omitempty"`
}
