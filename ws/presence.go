package ws

import (
	"sort"
	"sync"
)

// Presence counts the live connections per user. A user is online while the count is positive, so several
// simultaneous sessions of one user are fine.
type Presence struct {
	connections map[string]int

	sync.RWMutex
}

func NewPresence() *Presence {
	return &Presence{connections: make(map[string]int)}
}

// Connect records a new connection of userId and reports whether it is the first one.
func (p *Presence) Connect(userId string) bool {
	p.Lock()
	defer p.Unlock()
	p.connections[userId]++
	return p.connections[userId] == 1
}

// Disconnect records a closed connection of userId and reports whether it was the last one.
func (p *Presence) Disconnect(userId string) bool {
	p.Lock()
	defer p.Unlock()
	n, ok := p.connections[userId]
	if !ok {
		return false
	}
	if n <= 1 {
		delete(p.connections, userId)
		return true
	}
	p.connections[userId] = n - 1
	return false
}

func (p *Presence) IsOnline(userId string) bool {
	p.RLock()
	defer p.RUnlock()
	return p.connections[userId] > 0
}

// Connections returns the number of live connections of userId.
func (p *Presence) Connections(userId string) int {
	p.RLock()
	defer p.RUnlock()
	return p.connections[userId]
}

// OnlineUsers returns a sorted snapshot of the online users.
func (p *Presence) OnlineUsers() []string {
	p.RLock()
	defer p.RUnlock()
	users := make([]string, 0, len(p.connections))
	for userId := range p.connections {
		users = append(users, userId)
	}
	sort.Strings(users)
	return users
}
