package domain

import "time"

type Role string

const (
	RoleUnauthenticated Role = "unauthenticated"
	RoleRider           Role = "rider"
	RoleDriver          Role = "driver"
)

// ParseRole accepts only the roles a credential may grant.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleRider, RoleDriver:
		return Role(s), true
	default:
		return "", false
	}
}

// Identity is what a verified credential resolves to.
type Identity struct {
	UserID string
	Role   Role
}

// Connection is a point-in-time copy of a registry entry.
type Connection struct {
	ID          string
	UserID      string
	Role        Role
	JoinedRides []string
	RemoteAddr  string
	ConnectedAt time.Time
}

func (c Connection) Authenticated() bool {
	return c.Role == RoleRider || c.Role == RoleDriver
}

// Peer is the outbound half of a live connection.
type Peer interface {
	// Enqueue hands a frame to the connection writer without blocking.
	// It reports false if the frame was dropped.
	Enqueue(frame []byte) bool
	Close() error
}
