package ws

import (
	"sort"
	"sync"
)

// Rooms is the registry of room memberships of the live connections. A room exists as long as it has at least
// one member, room keys are derived (see types.CommunityRoom and types.UserRoom).
type Rooms struct {
	members map[string]map[*Client]struct{}
	joined  map[*Client]map[string]struct{}

	sync.RWMutex
}

func NewRooms() *Rooms {
	return &Rooms{
		members: make(map[string]map[*Client]struct{}),
		joined:  make(map[*Client]map[string]struct{}),
	}
}

// Join adds c to the room key. It returns false if c already was a member or c is closed. A closed client is
// never added, so a handler finishing after the disconnect cleanup does not leave c behind.
func (r *Rooms) Join(c *Client, key string) bool {
	r.Lock()
	defer r.Unlock()
	select {
	case <-c.done:
		return false
	default:
	}
	members, ok := r.members[key]
	if !ok {
		members = make(map[*Client]struct{})
		r.members[key] = members
	}
	if _, ok := members[c]; ok {
		return false
	}
	members[c] = struct{}{}
	rooms, ok := r.joined[c]
	if !ok {
		rooms = make(map[string]struct{})
		r.joined[c] = rooms
	}
	rooms[key] = struct{}{}
	return true
}

// Leave removes c from the room key. It returns false if c was not a member.
func (r *Rooms) Leave(c *Client, key string) bool {
	r.Lock()
	defer r.Unlock()
	return r.leave(c, key)
}

func (r *Rooms) leave(c *Client, key string) bool {
	members, ok := r.members[key]
	if !ok {
		return false
	}
	if _, ok := members[c]; !ok {
		return false
	}
	delete(members, c)
	if len(members) == 0 {
		delete(r.members, key)
	}
	if rooms, ok := r.joined[c]; ok {
		delete(rooms, key)
		if len(rooms) == 0 {
			delete(r.joined, c)
		}
	}
	return true
}

// LeaveAll removes c from every room in one step and returns the rooms it was a member of.
func (r *Rooms) LeaveAll(c *Client) []string {
	r.Lock()
	defer r.Unlock()
	left := make([]string, 0, len(r.joined[c]))
	for key := range r.joined[c] {
		left = append(left, key)
	}
	for _, key := range left {
		r.leave(c, key)
	}
	sort.Strings(left)
	return left
}

// Members returns a snapshot of the members of the room key.
func (r *Rooms) Members(key string) []*Client {
	r.RLock()
	defer r.RUnlock()
	members := make([]*Client, 0, len(r.members[key]))
	for c := range r.members[key] {
		members = append(members, c)
	}
	return members
}

// RoomsOf returns the sorted keys of the rooms c is a member of.
func (r *Rooms) RoomsOf(c *Client) []string {
	r.RLock()
	defer r.RUnlock()
	rooms := make([]string, 0, len(r.joined[c]))
	for key := range r.joined[c] {
		rooms = append(rooms, key)
	}
	sort.Strings(rooms)
	return rooms
}

// IsMember reports whether c is a member of the room key.
func (r *Rooms) IsMember(c *Client, key string) bool {
	r.RLock()
	defer r.RUnlock()
	_, ok := r.members[key][c]
	return ok
}

// NoRooms returns the number of non-empty rooms.
func (r *Rooms) NoRooms() int {
	r.RLock()
	defer r.RUnlock()
	return len(r.members)
}
