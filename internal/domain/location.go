package domain

import "time"

// LocationSample is the latest known position of one driver.
// SampledAt is the server receipt time.
type LocationSample struct {
	DriverID  string    `json:"driverId"`
	RideID    string    `json:"rideId,omitempty"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Speed     float64   `json:"speed"`
	Heading   float64   `json:"heading"`
	SampledAt time.Time `json:"-"`
}
