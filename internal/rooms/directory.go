// Package rooms maps rides to the connections subscribed to them.
package rooms

import "sync"

type set map[string]struct{}

func (s set) slice() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	return out
}

// Directory keeps a forward (ride -> members) and reverse (conn -> rides)
// index under one lock. Empty rooms are never kept.
type Directory struct {
	mu     sync.RWMutex
	rooms  map[string]set // rideID -> connIDs
	byConn map[string]set // connID -> rideIDs
}

func NewDirectory() *Directory {
	return &Directory{
		rooms:  make(map[string]set),
		byConn: make(map[string]set),
	}
}

func (d *Directory) Join(rideID, connID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	add(d.rooms, rideID, connID)
	add(d.byConn, connID, rideID)
}

func (d *Directory) Leave(rideID, connID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	remove(d.rooms, rideID, connID)
	remove(d.byConn, connID, rideID)
}

// MembersOf is empty for a ride nobody joined.
func (d *Directory) MembersOf(rideID string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.rooms[rideID].slice()
}

func (d *Directory) RoomsOf(connID string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.byConn[connID].slice()
}

// Len is the number of live rooms.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rooms)
}

func add(idx map[string]set, key, member string) {
	s, ok := idx[key]
	if !ok {
		s = make(set)
		idx[key] = s
	}
	s[member] = struct{}{}
}

func remove(idx map[string]set, key, member string) {
	s, ok := idx[key]
	if !ok {
		return
	}
	delete(s, member)
	if len(s) == 0 {
		delete(idx, key)
	}
}
