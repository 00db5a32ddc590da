package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/tcriess/terrace-buddy/globals"
	"github.com/tcriess/terrace-buddy/types"
	"golang.org/x/time/rate"
)

const (
	maxMessageSize = 16384
	pongWait       = 2 * time.Minute
	pingPeriod     = time.Minute
	writeWait      = 10 * time.Second
)

// Client is a middleman between the websocket connection and the hub. The identity is fixed when the connection
// is admitted and never changes.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	identity *types.Identity

	// Buffered channel of outbound frames. It is never closed, writers check done instead.
	send chan []byte

	// Inbound frames, consumed by HandleLoop only, so the events of one connection are handled strictly in order.
	inbox chan *types.WebsocketMessage

	limiter *rate.Limiter

	done      chan struct{}
	closeOnce sync.Once

	// WaitGroup which keeps track of the running loops.
	sync.WaitGroup
}

func NewClient(hub *Hub, conn *websocket.Conn, identity *types.Identity) *Client {
	rc := hub.Cfg.RealtimeConfig
	sendBufferSize := rc.SendBufferSize
	if sendBufferSize <= 0 {
		sendBufferSize = defaultSendBufferSize
	}
	inboxSize := rc.InboxSize
	if inboxSize <= 0 {
		inboxSize = defaultInboxSize
	}
	limit := rate.Inf
	if rc.EventsPerSecond > 0 {
		limit = rate.Limit(rc.EventsPerSecond)
	}
	burst := rc.EventBurst
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		hub:      hub,
		conn:     conn,
		identity: identity,
		send:     make(chan []byte, sendBufferSize),
		inbox:    make(chan *types.WebsocketMessage, inboxSize),
		limiter:  rate.NewLimiter(limit, burst),
		done:     make(chan struct{}),
	}
}

func (c *Client) Identity() *types.Identity {
	return c.identity
}

// Closed returns a channel that is closed once the connection is closed.
func (c *Client) Closed() <-chan struct{} {
	return c.done
}

// Close closes the connection. It is safe to call Close more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// deliver enqueues frame without blocking. It returns false if the connection is closed or its send buffer
// is full.
func (c *Client) deliver(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	case <-c.done:
		return false
	default:
		globals.AppLogger.Warn("send buffer full, dropping frame", "user", c.identity.Id)
		return false
	}
}

// ReadLoop pumps frames from the websocket connection to the inbox.
//
// The application runs ReadLoop in a per-connection goroutine. The application
// ensures that there is at most one reader on a connection by executing all
// reads from this goroutine.
func (c *Client) ReadLoop() {
	defer func() {
		c.Close()
		c.WaitGroup.Done()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { return c.conn.SetReadDeadline(time.Now().Add(pongWait)) })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				globals.AppLogger.Info("ws closed unexpectedly", "user", c.identity.Id, "error", err)
			}
			return
		}
		message := &types.WebsocketMessage{}
		err = json.Unmarshal(raw, message)
		if err != nil || message.Event == "" {
			globals.AppLogger.Warn("could not unmarshal ws message, ignoring", "user", c.identity.Id, "error", err)
			continue
		}
		if !c.limiter.Allow() {
			globals.AppLogger.Warn("event rate exceeded, dropping event", "user", c.identity.Id, "event", message.Event)
			continue
		}
		select {
		case c.inbox <- message:
		case <-c.done:
			return
		}
	}
}

// HandleLoop handles the inbound events one after the other.
func (c *Client) HandleLoop() {
	defer c.WaitGroup.Done()
	for {
		select {
		case <-c.done:
			return
		case message := <-c.inbox:
			c.handle(message)
		}
	}
}

// WriteLoop pumps frames from the send buffer to the websocket connection.
//
// A goroutine running WriteLoop is started for each connection. The
// application ensures that there is at most one writer to a connection by
// executing all writes from this goroutine.
func (c *Client) WriteLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
		c.WaitGroup.Done()
	}()
	for {
		select {
		case frame := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				globals.AppLogger.Debug("could not write to ws connection, exiting write loop", "user", c.identity.Id, "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				globals.AppLogger.Debug("could not send ping message, exiting write loop", "user", c.identity.Id)
				return
			}

		case <-c.done:
			return
		}
	}
}
