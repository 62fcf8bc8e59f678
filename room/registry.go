// Package room tracks which live connection is viewing which report.
package room

import "sync"

// Registry maps each member to at most one room. Rooms are virtual: they
// exist only as a grouping label, joining a room that no report backs is
// fine, the room is simply inert. All operations are total, there are no
// error conditions.
type Registry[M comparable] struct {
	mu      sync.RWMutex
	current map[M]string
	rooms   map[string]map[M]struct{}
}

func NewRegistry[M comparable]() *Registry[M] {
	return &Registry[M]{
		current: make(map[M]string),
		rooms:   make(map[string]map[M]struct{}),
	}
}

// Join registers m in roomId's room. If m already belongs to a room it leaves
// that one first, so a member is never in two rooms at once.
func (r *Registry[M]) Join(m M, roomId string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leave(m)
	r.current[m] = roomId
	members, ok := r.rooms[roomId]
	if !ok {
		members = make(map[M]struct{})
		r.rooms[roomId] = members
	}
	members[m] = struct{}{}
}

// Leave removes m's membership if present, no-op otherwise.
func (r *Registry[M]) Leave(m M) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leave(m)
}

func (r *Registry[M]) leave(m M) {
	roomId, ok := r.current[m]
	if !ok {
		return
	}
	delete(r.current, m)
	if members, ok := r.rooms[roomId]; ok {
		delete(members, m)
		if len(members) == 0 {
			delete(r.rooms, roomId)
		}
	}
}

// Room returns the room m currently belongs to.
func (r *Registry[M]) Room(m M) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roomId, ok := r.current[m]
	return roomId, ok
}

// Members returns the current members of roomId's room.
func (r *Registry[M]) Members(roomId string) []M {
	r.mu.RLock()
	defer r.mu.RUnlock()
	members := make([]M, 0, len(r.rooms[roomId]))
	for m := range r.rooms[roomId] {
		members = append(members, m)
	}
	return members
}
