package websocket

import (
	"sort"
	"sync"

	"nexa/pkg/interfaces"
)

// Registry tracks live authenticated connections and which course rooms each
// one has joined. Membership is process memory only.
type Registry struct {
	mu          sync.RWMutex
	connections map[string]interfaces.Connection            // connID -> Connection
	rooms       map[string]map[string]interfaces.Connection // courseID -> connID -> Connection
	memberships map[string]map[string]struct{}              // connID -> courseIDs
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]interfaces.Connection),
		rooms:       make(map[string]map[string]interfaces.Connection),
		memberships: make(map[string]map[string]struct{}),
	}
}

// RegisterConnection records a live authenticated connection. A user may
// hold several connections at once.
func (r *Registry) RegisterConnection(conn interfaces.Connection) error {
	if conn == nil {
		return ErrNilConnection
	}
	if conn.Identity() == nil {
		return ErrConnectionNotAuthenticated
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.connections[conn.ID()] = conn
	return nil
}

// UnregisterConnection forgets a connection and drops all its memberships.
// It returns the rooms the connection was still in.
func (r *Registry) UnregisterConnection(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.connections, connID)
	return r.dismissAllLocked(connID)
}

// Admit adds a registered connection to a room. It reports whether the
// connection was newly admitted; admitting a member again changes nothing.
func (r *Registry) Admit(conn interfaces.Connection, courseID string) (bool, error) {
	if conn == nil {
		return false, ErrNilConnection
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	connID := conn.ID()
	if _, ok := r.connections[connID]; !ok {
		return false, ErrConnectionNotRegistered
	}

	members := r.rooms[courseID]
	if members == nil {
		members = make(map[string]interfaces.Connection)
		r.rooms[courseID] = members
	}
	if _, ok := members[connID]; ok {
		return false, nil
	}
	members[connID] = conn

	rooms := r.memberships[connID]
	if rooms == nil {
		rooms = make(map[string]struct{})
		r.memberships[connID] = rooms
	}
	rooms[courseID] = struct{}{}
	return true, nil
}

// Dismiss removes a connection from one room. It reports whether the
// connection was a member.
func (r *Registry) Dismiss(connID, courseID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.dismissLocked(connID, courseID)
}

// DismissAll removes a connection from every room it joined and returns
// those rooms, sorted.
func (r *Registry) DismissAll(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.dismissAllLocked(connID)
}

func (r *Registry) dismissLocked(connID, courseID string) bool {
	members, ok := r.rooms[courseID]
	if !ok {
		return false
	}
	if _, ok := members[connID]; !ok {
		return false
	}

	delete(members, connID)
	if len(members) == 0 {
		delete(r.rooms, courseID)
	}

	if rooms, ok := r.memberships[connID]; ok {
		delete(rooms, courseID)
		if len(rooms) == 0 {
			delete(r.memberships, connID)
		}
	}
	return true
}

func (r *Registry) dismissAllLocked(connID string) []string {
	rooms := r.memberships[connID]
	if len(rooms) == 0 {
		return nil
	}

	courseIDs := make([]string, 0, len(rooms))
	for courseID := range rooms {
		courseIDs = append(courseIDs, courseID)
	}
	sort.Strings(courseIDs)

	for _, courseID := range courseIDs {
		r.dismissLocked(connID, courseID)
	}
	return courseIDs
}

// MembersOf returns a snapshot of a room's members for fan-out. The slice is
// owned by the caller; membership changes after the call do not affect it.
func (r *Registry) MembersOf(courseID string) []interfaces.Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := r.rooms[courseID]
	if len(members) == 0 {
		return nil
	}

	snapshot := make([]interfaces.Connection, 0, len(members))
	for _, conn := range members {
		snapshot = append(snapshot, conn)
	}
	return snapshot
}

// IsMember reports whether connID is currently in courseID's room.
func (r *Registry) IsMember(connID, courseID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.rooms[courseID][connID]
	return ok
}

// RoomsOf returns the rooms a connection is in, sorted.
func (r *Registry) RoomsOf(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rooms := r.memberships[connID]
	courseIDs := make([]string, 0, len(rooms))
	for courseID := range rooms {
		courseIDs = append(courseIDs, courseID)
	}
	sort.Strings(courseIDs)
	return courseIDs
}

// GetStats returns registry statistics for monitoring and debugging
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	memberships := 0
	for _, members := range r.rooms {
		memberships += len(members)
	}

	return map[string]int{
		"total_connections": len(r.connections),
		"active_rooms":      len(r.rooms),
		"room_memberships":  memberships,
	}
}

// CloseAll closes every registered connection and returns how many it
// closed. Each handler unregisters its own connection as it exits.
func (r *Registry) CloseAll() int {
	r.mu.RLock()
	conns := make([]interfaces.Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		conns = append(conns, conn)
	}
	r.mu.RUnlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
	return len(conns)
}
