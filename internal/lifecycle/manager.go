// Package lifecycle admits connections and tears them down exactly once.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/cwrk-planet/ride-hub/internal/domain"
)

type Registry interface {
	Register(peer domain.Peer, remoteAddr string) string
	Evict(id string) (domain.Connection, domain.Peer, bool)
	IDs() []string
}

type Rooms interface {
	Leave(rideID, connID string)
	RoomsOf(connID string) []string
}

type Locations interface {
	Remove(driverID string)
}

type Manager struct {
	log   *slog.Logger
	reg   Registry
	rooms Rooms
	locs  Locations
}

func New(reg Registry, rooms Rooms, locs Locations, log *slog.Logger) *Manager {
	return &Manager{
		log:   log.With(slog.String("component", "lifecycle")),
		reg:   reg,
		rooms: rooms,
		locs:  locs,
	}
}

// Admit registers a freshly accepted connection.
func (m *Manager) Admit(peer domain.Peer, remoteAddr string) string {
	id := m.reg.Register(peer, remoteAddr)
	m.log.Debug("connection admitted", "conn_id", id, "remote", remoteAddr)
	return id
}

// Evict runs the cleanup cascade registry -> rooms -> location cache and
// closes the peer. Only the caller that removed the registry entry runs it;
// it reports whether this call did.
func (m *Manager) Evict(id string, reason error) bool {
	conn, peer, removed := m.reg.Evict(id)
	if !removed {
		return false
	}

	// RoomsOf catches a join that landed after the registry snapshot.
	rides := union(conn.JoinedRides, m.rooms.RoomsOf(id))
	for _, rideID := range rides {
		m.rooms.Leave(rideID, id)
	}
	if conn.Role == domain.RoleDriver && conn.UserID != "" {
		m.locs.Remove(conn.UserID)
	}
	if peer != nil {
		_ = peer.Close()
	}

	level := slog.LevelInfo
	if reason != nil && !errors.Is(reason, domain.ErrConnectionLost) && !errors.Is(reason, domain.ErrShuttingDown) {
		level = slog.LevelWarn
	}
	m.log.Log(context.Background(), level, "connection evicted",
		"conn_id", id,
		"user_id", conn.UserID,
		"role", conn.Role,
		"rides", len(rides),
		"reason", errString(reason))
	return true
}

// Shutdown evicts every live connection.
func (m *Manager) Shutdown(ctx context.Context) error {
	ids := m.reg.IDs()
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.Evict(id, domain.ErrShuttingDown)
	}
	m.log.Info("all connections closed", "count", len(ids))
	return nil
}

func union(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, v := range list {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
