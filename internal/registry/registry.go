// Package registry owns the set of live connections and their identities.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cwrk-planet/ride-hub/internal/domain"
	"github.com/cwrk-planet/ride-hub/internal/security"

	"github.com/google/uuid"
)

type entry struct {
	conn  domain.Connection
	rides map[string]struct{}
	peer  domain.Peer
}

func (e *entry) snapshot() domain.Connection {
	c := e.conn
	c.JoinedRides = make([]string, 0, len(e.rides))
	for id := range e.rides {
		c.JoinedRides = append(c.JoinedRides, id)
	}
	sort.Strings(c.JoinedRides)
	return c
}

type Registry struct {
	verifier security.Verifier
	now      func() time.Time

	mu    sync.RWMutex
	conns map[string]*entry
}

func New(v security.Verifier) *Registry {
	return &Registry{
		verifier: v,
		now:      time.Now,
		conns:    make(map[string]*entry),
	}
}

// Register admits an unauthenticated connection and returns its id.
func (r *Registry) Register(peer domain.Peer, remoteAddr string) string {
	id := uuid.NewString()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[id] = &entry{
		conn: domain.Connection{
			ID:          id,
			Role:        domain.RoleUnauthenticated,
			RemoteAddr:  remoteAddr,
			ConnectedAt: r.now(),
		},
		rides: make(map[string]struct{}),
		peer:  peer,
	}
	return id
}

// Authenticate verifies credential and promotes the connection exactly once.
// The verifier runs outside the lock.
func (r *Registry) Authenticate(ctx context.Context, id, credential string) (domain.Identity, error) {
	r.mu.RLock()
	e, ok := r.conns[id]
	var authed bool
	if ok {
		authed = e.conn.Authenticated()
	}
	r.mu.RUnlock()

	if !ok {
		return domain.Identity{}, domain.ErrUnknownConnection
	}
	if authed {
		return domain.Identity{}, domain.ErrAlreadyAuthenticated
	}

	ident, err := r.verifier.Verify(ctx, credential)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %w", domain.ErrInvalidCredential, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok = r.conns[id]
	if !ok {
		return domain.Identity{}, domain.ErrUnknownConnection
	}
	if e.conn.Authenticated() {
		return domain.Identity{}, domain.ErrAlreadyAuthenticated
	}
	e.conn.UserID = ident.UserID
	e.conn.Role = ident.Role
	return ident, nil
}

func (r *Registry) Lookup(id string) (domain.Connection, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.conns[id]
	if !ok {
		return domain.Connection{}, domain.ErrNotFound
	}
	return e.snapshot(), nil
}

// Peer returns the outbound side of a live connection.
func (r *Registry) Peer(id string) (domain.Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.conns[id]
	if !ok {
		return nil, false
	}
	return e.peer, true
}

// Evict removes the connection. Only the call that actually removed the entry
// gets removed=true; repeated calls are no-ops.
func (r *Registry) Evict(id string) (conn domain.Connection, peer domain.Peer, removed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[id]
	if !ok {
		return domain.Connection{}, nil, false
	}
	delete(r.conns, id)
	return e.snapshot(), e.peer, true
}

// TrackRide records rideID in the connection's joined set.
func (r *Registry) TrackRide(id, rideID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.conns[id]
	if !ok {
		return domain.ErrUnknownConnection
	}
	e.rides[rideID] = struct{}{}
	return nil
}

func (r *Registry) UntrackRide(id, rideID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.conns[id]; ok {
		delete(e.rides, rideID)
	}
}

// ByRole returns the ids of authenticated connections holding role.
func (r *Registry) ByRole(role domain.Role) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0)
	for id, e := range r.conns {
		if e.conn.Role == role {
			out = append(out, id)
		}
	}
	return out
}

// IDs returns every live connection id.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.conns))
	for id := range r.conns {
		out = append(out, id)
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
