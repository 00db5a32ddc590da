package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/tcriess/terrace-buddy/chat"
	"github.com/tcriess/terrace-buddy/config"
	"github.com/tcriess/terrace-buddy/globals"
	"github.com/tcriess/terrace-buddy/persistence"
	"github.com/tcriess/terrace-buddy/types"
)

const (
	defaultSendBufferSize = 256
	defaultInboxSize      = 64
)

// Hub owns the live connections of the process together with their room memberships and the presence view.
type Hub struct {
	// Registered clients.
	clients map[*Client]struct{}

	rooms       *Rooms
	presence    *Presence
	broadcaster *Broadcaster
	chat        *chat.Service

	// nil if community membership is not verified on the live channel
	membership *persistence.MembershipChecker

	// global configuration
	Cfg *config.Config

	// persistence
	Persister persistence.Persister

	// mutex for manipulating the clients
	sync.RWMutex
}

func NewHub(cfg *config.Config, persister persistence.Persister, membership *persistence.MembershipChecker) *Hub {
	hub := &Hub{
		clients:   make(map[*Client]struct{}),
		rooms:     NewRooms(),
		presence:  NewPresence(),
		Cfg:       cfg,
		Persister: persister,
	}
	hub.broadcaster = NewBroadcaster(hub.rooms, hub)
	var checker chat.MembershipChecker
	if cfg.RealtimeConfig.VerifyMembership && membership != nil {
		hub.membership = membership
		checker = membership
	}
	hub.chat = chat.NewService(persister, checker, hub.broadcaster)
	return hub
}

func (h *Hub) Rooms() *Rooms {
	return h.rooms
}

func (h *Hub) Presence() *Presence {
	return h.presence
}

func (h *Hub) Broadcaster() *Broadcaster {
	return h.broadcaster
}

// Chat returns the message service that persists and broadcasts through this hub.
func (h *Hub) Chat() *chat.Service {
	return h.chat
}

// NoClients returns the number of clients registered
func (h *Hub) NoClients() int {
	h.RLock()
	defer h.RUnlock()
	return len(h.clients)
}

// Clients returns a snapshot of the registered clients.
func (h *Hub) Clients() []*Client {
	h.RLock()
	defer h.RUnlock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	return clients
}

// Register admits c: it joins the personal room of its identity before any of its events is handled, and
// user-online is broadcast if this is the first connection of the user.
func (h *Hub) Register(c *Client) {
	h.Lock()
	h.clients[c] = struct{}{}
	h.Unlock()
	h.rooms.Join(c, types.UserRoom(c.identity.Id))
	globals.AppLogger.Debug("registered client", "user", c.identity.Id)
	if h.presence.Connect(c.identity.Id) {
		err := h.broadcaster.BroadcastAll(types.EventUserOnline, types.PresencePayload{UserId: c.identity.Id})
		if err != nil {
			globals.AppLogger.Error("could not broadcast presence", "user", c.identity.Id, "error", err)
		}
	}
}

// Unregister releases all room memberships of c. If it was the last connection of the user, user-offline is
// broadcast and the last-online time of the user is updated.
func (h *Hub) Unregister(c *Client) {
	h.Lock()
	if _, ok := h.clients[c]; !ok {
		h.Unlock()
		return
	}
	delete(h.clients, c)
	h.Unlock()
	c.Close()
	left := h.rooms.LeaveAll(c)
	globals.AppLogger.Debug("unregistered client", "user", c.identity.Id, "rooms", left)
	if h.presence.Disconnect(c.identity.Id) {
		err := h.broadcaster.BroadcastAll(types.EventUserOffline, types.PresencePayload{UserId: c.identity.Id})
		if err != nil {
			globals.AppLogger.Error("could not broadcast presence", "user", c.identity.Id, "error", err)
		}
		h.touchUser(c.identity.Id)
	}
}

func (h *Hub) touchUser(userId string) {
	if h.Persister == nil {
		return
	}
	user := types.User{Id: userId}
	err := h.Persister.GetUser(&user)
	if errors.Is(err, persistence.ErrNotFound) {
		return
	}
	if err != nil {
		globals.AppLogger.Error("could not get user", "user", userId, "error", err)
		return
	}
	user.LastOnline = time.Now().UTC()
	err = h.Persister.StoreUser(user)
	if err != nil {
		globals.AppLogger.Error("could not store user", "user", userId, "error", err)
	}
}

// Run blocks until ctx is done and closes all connections afterwards.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	clients := h.Clients()
	globals.AppLogger.Info("closing live connections", "count", len(clients))
	for _, c := range clients {
		c.Close()
	}
}
