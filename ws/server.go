package ws

import (
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/tcriess/terrace-buddy/auth"
	"github.com/tcriess/terrace-buddy/globals"
)

// Handler upgrades authenticated requests to websocket connections. It must be wrapped by auth.Gate, requests
// without an identity in their context are rejected.
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

func NewHandler(hub *Hub) *Handler {
	h := &Handler{hub: hub}
	allowed := hub.Cfg.ServerConfig.AllowedOrigins
	if len(allowed) > 0 {
		// without allowed origins the upgrader only accepts same-origin and non-browser clients
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, o := range allowed {
				if o == "*" || strings.EqualFold(o, origin) {
					return true
				}
			}
			return false
		}
	}
	return h
}

// Handle incoming websockets
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())
	if identity == nil {
		auth.RejectPlain(w, r, auth.ErrMissingToken)
		return
	}

	// Upgrade HTTP request to Websocket
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		globals.AppLogger.Error("websocket upgrade error", "error", err)
		return
	}

	c := NewClient(h.hub, conn, identity)
	h.hub.Register(c)
	c.Add(3)
	go c.ReadLoop()
	go c.HandleLoop()
	go c.WriteLoop()

	<-c.Closed()
	// a handler still running may join rooms, so the cleanup runs after all loops are done
	c.Wait()
	h.hub.Unregister(c)
	globals.AppLogger.Debug("connection closed, exiting ws handler", "user", identity.Id)
}
