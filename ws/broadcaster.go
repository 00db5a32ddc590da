package ws

import (
	"errors"
	"sync"

	"github.com/tcriess/terrace-buddy/globals"
	"github.com/tcriess/terrace-buddy/types"
)

var ErrChannelRequired = errors.New("community id and channel id are required")

type clientLister interface {
	Clients() []*Client
}

// Broadcaster resolves messages, notifications and presence changes to their target rooms and enqueues the
// frames for the member connections. Delivery is fire-and-forget: a connection whose send buffer is full misses
// the frame. Fan-out passes are serialized, so all receivers see broadcasts in the same order.
type Broadcaster struct {
	rooms   *Rooms
	clients clientLister

	sync.Mutex
}

func NewBroadcaster(rooms *Rooms, clients clientLister) *Broadcaster {
	return &Broadcaster{rooms: rooms, clients: clients}
}

// emit enqueues frame for every connection in targets except skip and returns the number of connections it
// reached.
func (b *Broadcaster) emit(event string, targets []*Client, frame []byte, skip *Client) int {
	b.Lock()
	defer b.Unlock()
	n := 0
	for _, c := range targets {
		if c == skip {
			continue
		}
		if c.deliver(frame) {
			n++
		}
	}
	globals.AppLogger.Trace("broadcast", "event", event, "receivers", n)
	return n
}

func (b *Broadcaster) emitToRoom(key, event string, payload interface{}, skip *Client) error {
	frame, err := types.NewWebsocketMessage(event, payload)
	if err != nil {
		globals.AppLogger.Error("could not marshal frame", "event", event, "error", err)
		return err
	}
	b.emit(event, b.rooms.Members(key), frame, skip)
	return nil
}

// BroadcastChannelMessage emits new-message to the community room. Both ids are required, every channel
// message goes through here regardless of the path it was sent on.
func (b *Broadcaster) BroadcastChannelMessage(communityId, channelId string, msg *types.Message) error {
	if communityId == "" || channelId == "" {
		return ErrChannelRequired
	}
	return b.emitToRoom(types.CommunityRoom(communityId), types.EventNewMessage, msg, nil)
}

// BroadcastDirectMessage emits direct-message to the personal room of the receiver and direct-message-sent to
// the personal room of the sender, so the other sessions of the sender see the message, too. A message to
// oneself is delivered twice.
func (b *Broadcaster) BroadcastDirectMessage(senderId, receiverId string, msg *types.Message) error {
	err := b.emitToRoom(types.UserRoom(receiverId), types.EventDirectMessage, msg, nil)
	if err != nil {
		return err
	}
	return b.emitToRoom(types.UserRoom(senderId), types.EventDirectMessageSent, msg, nil)
}

// BroadcastNotification emits new-notification to the personal room of userId.
func (b *Broadcaster) BroadcastNotification(userId string, n *types.Notification) error {
	return b.emitToRoom(types.UserRoom(userId), types.EventNewNotification, n, nil)
}

// BroadcastTyping relays a typing indicator to the community room, the sending connection is skipped.
func (b *Broadcaster) BroadcastTyping(sender *Client, communityId, event string, payload types.UserTypingPayload) error {
	return b.emitToRoom(types.CommunityRoom(communityId), event, payload, sender)
}

// BroadcastAll emits to every live connection.
func (b *Broadcaster) BroadcastAll(event string, payload interface{}) error {
	frame, err := types.NewWebsocketMessage(event, payload)
	if err != nil {
		globals.AppLogger.Error("could not marshal frame", "event", event, "error", err)
		return err
	}
	b.emit(event, b.clients.Clients(), frame, nil)
	return nil
}
