// Package router decodes client envelopes and fans events out to connections.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cwrk-planet/ride-hub/internal/domain"

	"github.com/tidwall/gjson"
)

type Registry interface {
	Authenticate(ctx context.Context, id, credential string) (domain.Identity, error)
	Lookup(id string) (domain.Connection, error)
	Peer(id string) (domain.Peer, bool)
	TrackRide(id, rideID string) error
	UntrackRide(id, rideID string)
	ByRole(role domain.Role) []string
}

type Rooms interface {
	Join(rideID, connID string)
	Leave(rideID, connID string)
	MembersOf(rideID string) []string
}

type Locations interface {
	Update(driverID string, s domain.LocationSample)
	Remove(driverID string)
}

// Evictor tears down a connection that can no longer be written to.
type Evictor interface {
	Evict(connID string, reason error) bool
}

// Session identifies the connection an envelope arrived on. Credential is
// the one presented at upgrade time.
type Session struct {
	ConnID     string
	Credential string
}

type handlerFunc func(ctx context.Context, s Session, conn domain.Connection, data json.RawMessage) error

type route struct {
	authenticated bool
	role          domain.Role
	handle        handlerFunc
}

type Router struct {
	log     *slog.Logger
	reg     Registry
	rooms   Rooms
	locs    Locations
	evictor Evictor
	now     func() time.Time
	routes  map[string]route
}

func New(reg Registry, rooms Rooms, locs Locations, ev Evictor, log *slog.Logger) *Router {
	r := &Router{
		log:     log.With(slog.String("component", "router")),
		reg:     reg,
		rooms:   rooms,
		locs:    locs,
		evictor: ev,
		now:     time.Now,
	}
	r.routes = map[string]route{
		KindAuth:                 {handle: r.handleAuth},
		KindJoinRide:             {authenticated: true, handle: r.handleJoin},
		KindLeaveRide:            {authenticated: true, handle: r.handleLeave},
		KindDriverLocationUpdate: {authenticated: true, role: domain.RoleDriver, handle: r.handleLocation},
		KindRideStatusUpdate:     {authenticated: true, handle: r.relay(KindRideStatusUpdate)},
		KindDriverAvailability:   {authenticated: true, role: domain.RoleDriver, handle: r.handleAvailability},
		KindRideRequest:          {authenticated: true, role: domain.RoleRider, handle: r.handleRideRequest},
		KindAcceptRide:           {authenticated: true, role: domain.RoleDriver, handle: r.relay(KindAcceptRide)},
		KindCancelRide:           {authenticated: true, handle: r.relay(KindCancelRide)},
		KindRideMessage:          {authenticated: true, handle: r.relay(KindRideMessage)},
	}
	return r
}

// Handle processes one inbound frame. Per-envelope failures are reported to
// the sender as error frames and returned; they never close the connection.
func (r *Router) Handle(ctx context.Context, s Session, raw []byte) error {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return r.Fail(s.ConnID, "", fmt.Errorf("%w: %v", domain.ErrMalformedEnvelope, err))
	}
	if env.Kind == "" {
		return r.Fail(s.ConnID, "", fmt.Errorf("%w: kind is required", domain.ErrMalformedEnvelope))
	}

	rt, ok := r.routes[env.Kind]
	if !ok {
		r.log.Warn("unknown message kind", "conn_id", s.ConnID, "kind", env.Kind)
		return r.Fail(s.ConnID, env.Kind, fmt.Errorf("%w: %q", domain.ErrUnknownMessageKind, env.Kind))
	}

	conn, err := r.reg.Lookup(s.ConnID)
	if err != nil {
		// evicted while the frame was in flight
		return domain.ErrUnknownConnection
	}
	if rt.authenticated && !conn.Authenticated() {
		return r.Fail(s.ConnID, env.Kind, domain.ErrNotAuthenticated)
	}
	if rt.role != "" && conn.Role != rt.role {
		return r.Fail(s.ConnID, env.Kind, roleErr(rt.role))
	}

	if err := rt.handle(ctx, s, conn, env.Data); err != nil {
		if errors.Is(err, domain.ErrUnknownConnection) {
			return err
		}
		return r.Fail(s.ConnID, env.Kind, err)
	}
	return nil
}

// Fail sends an error frame to connID and returns err.
func (r *Router) Fail(connID, ref string, err error) error {
	r.send(connID, KindError, ErrorData{Code: codeFor(err), Message: err.Error(), Ref: ref})
	return err
}

func (r *Router) handleAuth(ctx context.Context, s Session, conn domain.Connection, data json.RawMessage) error {
	if conn.Authenticated() {
		return domain.ErrAlreadyAuthenticated
	}
	token := strings.TrimSpace(gjson.GetBytes(data, "token").String())
	if token == "" {
		token = s.Credential
	}
	if token == "" {
		return fmt.Errorf("%w: no token", domain.ErrInvalidCredential)
	}

	ident, err := r.reg.Authenticate(ctx, s.ConnID, token)
	if err != nil {
		r.log.Info("authentication rejected", "conn_id", s.ConnID, "err", err)
		return err
	}
	r.log.Info("connection authenticated", "conn_id", s.ConnID, "user_id", ident.UserID, "role", ident.Role)

	r.send(s.ConnID, KindAuth+ackSuffix, authAck{
		ConnectionID: s.ConnID,
		UserID:       ident.UserID,
		Role:         string(ident.Role),
	})
	return nil
}

func (r *Router) handleJoin(_ context.Context, s Session, _ domain.Connection, data json.RawMessage) error {
	rideID, err := rideIDOf(data)
	if err != nil {
		return err
	}
	r.rooms.Join(rideID, s.ConnID)
	if err := r.reg.TrackRide(s.ConnID, rideID); err != nil {
		// evicted between Join and TrackRide; the cascade may have missed this room
		r.rooms.Leave(rideID, s.ConnID)
		return err
	}
	r.send(s.ConnID, KindJoinRide+ackSuffix, rideAck{RideID: rideID})
	return nil
}

func (r *Router) handleLeave(_ context.Context, s Session, _ domain.Connection, data json.RawMessage) error {
	rideID, err := rideIDOf(data)
	if err != nil {
		return err
	}
	r.rooms.Leave(rideID, s.ConnID)
	r.reg.UntrackRide(s.ConnID, rideID)
	r.send(s.ConnID, KindLeaveRide+ackSuffix, rideAck{RideID: rideID})
	return nil
}

func (r *Router) handleLocation(_ context.Context, s Session, conn domain.Connection, data json.RawMessage) error {
	var u locationUpdate
	if err := json.Unmarshal(data, &u); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedEnvelope, err)
	}
	if strings.TrimSpace(u.RideID) == "" {
		return fmt.Errorf("%w: data.rideId must be a non-empty string", domain.ErrMalformedEnvelope)
	}
	if u.Lat == nil || u.Lng == nil {
		return fmt.Errorf("%w: data.lat and data.lng are required", domain.ErrMalformedEnvelope)
	}
	if *u.Lat < -90 || *u.Lat > 90 || *u.Lng < -180 || *u.Lng > 180 {
		return fmt.Errorf("%w: coordinates out of range", domain.ErrMalformedEnvelope)
	}

	sample := domain.LocationSample{
		DriverID:  conn.UserID,
		RideID:    u.RideID,
		Lat:       *u.Lat,
		Lng:       *u.Lng,
		Speed:     u.Speed,
		Heading:   u.Heading,
		SampledAt: r.now(),
	}
	r.locs.Update(conn.UserID, sample)
	if _, err := r.reg.Lookup(s.ConnID); err != nil {
		// evicted after the snapshot; the cascade's Remove may have run first
		r.locs.Remove(conn.UserID)
		return domain.ErrUnknownConnection
	}

	r.fanOut(r.rooms.MembersOf(u.RideID), s.ConnID, KindDriverLocationUpdate, locationBroadcast{
		LocationSample: sample,
		SampledAt:      sample.SampledAt.UnixMilli(),
	})
	return nil
}

func (r *Router) handleAvailability(_ context.Context, s Session, _ domain.Connection, data json.RawMessage) error {
	if _, err := objectOf(data); err != nil {
		return err
	}
	r.send(s.ConnID, KindDriverAvailability+ackSuffix, objectOrEmpty(data))
	return nil
}

func (r *Router) handleRideRequest(_ context.Context, s Session, conn domain.Connection, data json.RawMessage) error {
	fields, err := objectOf(data)
	if err != nil {
		return err
	}
	fields["riderId"] = rawString(conn.UserID)

	n := r.fanOut(r.reg.ByRole(domain.RoleDriver), s.ConnID, KindRideRequest, fields)
	r.log.Debug("ride request broadcast", "conn_id", s.ConnID, "rider_id", conn.UserID, "drivers", n)
	return nil
}

// relay forwards the sender's data to the other members of the ride's room.
func (r *Router) relay(kind string) handlerFunc {
	return func(_ context.Context, s Session, conn domain.Connection, data json.RawMessage) error {
		rideID, err := rideIDOf(data)
		if err != nil {
			return err
		}
		fields, err := objectOf(data)
		if err != nil {
			return err
		}
		fields["senderId"] = rawString(conn.UserID)
		fields["senderRole"] = rawString(string(conn.Role))

		r.fanOut(r.rooms.MembersOf(rideID), s.ConnID, kind, fields)
		return nil
	}
}

// fanOut delivers one encoded frame to every target except the sender and
// returns the number of successful enqueues.
func (r *Router) fanOut(targets []string, except, kind string, data any) int {
	frame, err := encode(kind, data, r.now())
	if err != nil {
		r.log.Error("encode frame", "kind", kind, "err", err)
		return 0
	}
	n := 0
	for _, id := range targets {
		if id == except {
			continue
		}
		if r.deliver(id, frame) {
			n++
		}
	}
	return n
}

func (r *Router) send(connID, kind string, data any) {
	frame, err := encode(kind, data, r.now())
	if err != nil {
		r.log.Error("encode frame", "kind", kind, "err", err)
		return
	}
	r.deliver(connID, frame)
}

// deliver never blocks. A peer that cannot take the frame is evicted.
func (r *Router) deliver(connID string, frame []byte) bool {
	peer, ok := r.reg.Peer(connID)
	if !ok {
		return false
	}
	if peer.Enqueue(frame) {
		return true
	}
	r.log.Warn("peer unreachable, evicting", "conn_id", connID)
	r.evictor.Evict(connID, domain.ErrUnreachablePeer)
	return false
}

func rideIDOf(data json.RawMessage) (string, error) {
	v := gjson.GetBytes(data, "rideId")
	if v.Type != gjson.String || strings.TrimSpace(v.Str) == "" {
		return "", fmt.Errorf("%w: data.rideId must be a non-empty string", domain.ErrMalformedEnvelope)
	}
	return v.Str, nil
}

func objectOf(data json.RawMessage) (map[string]json.RawMessage, error) {
	fields := make(map[string]json.RawMessage)
	if len(data) == 0 || string(data) == "null" {
		return fields, nil
	}
	if !gjson.ParseBytes(data).IsObject() {
		return nil, fmt.Errorf("%w: data must be an object", domain.ErrMalformedEnvelope)
	}
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedEnvelope, err)
	}
	return fields, nil
}

func objectOrEmpty(data json.RawMessage) json.RawMessage {
	if len(data) == 0 || string(data) == "null" {
		return json.RawMessage("{}")
	}
	return data
}

func roleErr(role domain.Role) error {
	if role == domain.RoleDriver {
		return domain.ErrNotADriver
	}
	return domain.ErrNotARider
}
