package router

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/cwrk-planet/ride-hub/internal/domain"
)

const (
	KindAuth                 = "auth"
	KindJoinRide             = "join_ride"
	KindLeaveRide            = "leave_ride"
	KindDriverLocationUpdate = "driver_location_update"
	KindRideStatusUpdate     = "ride_status_update"
	KindDriverAvailability   = "driver_availability"
	KindRideRequest          = "ride_request"
	KindAcceptRide           = "accept_ride"
	KindCancelRide           = "cancel_ride"
	KindRideMessage          = "ride_message"
	KindError                = "error"

	ackSuffix = "_ack"
)

// Envelope is an inbound client frame.
type Envelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Frame is an outbound broker frame. Timestamp is ms since epoch.
type Frame struct {
	Kind      string `json:"kind"`
	Data      any    `json:"data"`
	Timestamp int64  `json:"timestamp"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Ref     string `json:"ref,omitempty"`
}

type authAck struct {
	ConnectionID string `json:"connectionId"`
	UserID       string `json:"userId"`
	Role         string `json:"role"`
}

type rideAck struct {
	RideID string `json:"rideId"`
}

type locationUpdate struct {
	RideID  string   `json:"rideId"`
	Lat     *float64 `json:"lat"`
	Lng     *float64 `json:"lng"`
	Speed   float64  `json:"speed"`
	Heading float64  `json:"heading"`
}

type locationBroadcast struct {
	domain.LocationSample
	SampledAt int64 `json:"sampledAt"`
}

func encode(kind string, data any, now time.Time) ([]byte, error) {
	return json.Marshal(Frame{Kind: kind, Data: data, Timestamp: now.UnixMilli()})
}

func rawString(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

// Error codes sent in error frames.
const (
	CodeInvalidCredential    = "invalid_credential"
	CodeAlreadyAuthenticated = "already_authenticated"
	CodeNotAuthenticated     = "not_authenticated"
	CodeUnknownKind          = "unknown_kind"
	CodeMalformedEnvelope    = "malformed_envelope"
	CodeNotADriver           = "not_a_driver"
	CodeNotARider            = "not_a_rider"
	CodeRateLimited          = "rate_limited"
	CodeInternal             = "internal"
)

func codeFor(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidCredential):
		return CodeInvalidCredential
	case errors.Is(err, domain.ErrAlreadyAuthenticated):
		return CodeAlreadyAuthenticated
	case errors.Is(err, domain.ErrNotAuthenticated):
		return CodeNotAuthenticated
	case errors.Is(err, domain.ErrUnknownMessageKind):
		return CodeUnknownKind
	case errors.Is(err, domain.ErrMalformedEnvelope):
		return CodeMalformedEnvelope
	case errors.Is(err, domain.ErrNotADriver):
		return CodeNotADriver
	case errors.Is(err, domain.ErrNotARider):
		return CodeNotARider
	case errors.Is(err, domain.ErrRateLimited):
		return CodeRateLimited
	case errors.Is(err, domain.ErrInternal):
		return CodeInternal
	default:
		return CodeInternal
	}
}
