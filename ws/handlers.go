package ws

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mitchellh/mapstructure"
	"github.com/tcriess/terrace-buddy/chat"
	"github.com/tcriess/terrace-buddy/globals"
	"github.com/tcriess/terrace-buddy/types"
)

var (
	ErrUnknownEvent   = errors.New("unknown event")
	ErrInvalidPayload = errors.New("invalid payload")
	ErrNotJoined      = errors.New("not joined to the community")
)

type eventHandler func(c *Client, event string, data json.RawMessage) error

var eventHandlers map[string]eventHandler

func init() {
	eventHandlers = map[string]eventHandler{
		types.EventJoinCommunity:     handleJoinCommunity,
		types.EventLeaveCommunity:    handleLeaveCommunity,
		types.EventSendMessage:       handleSendMessage,
		types.EventSendDirectMessage: handleSendDirectMessage,
		types.EventJoinNotifications: handleJoinNotifications,
		types.EventTyping:            handleTyping,
		types.EventStopTyping:        handleTyping,
		types.EventSetOnline:         handlePresence,
		types.EventSetOffline:        handlePresence,
	}
}

// handle runs the handler of message. Errors are logged and the event is dropped, nothing is sent back.
func (c *Client) handle(message *types.WebsocketMessage) {
	handler, ok := eventHandlers[message.Event]
	if !ok {
		globals.AppLogger.Warn("ignoring event", "user", c.identity.Id, "event", message.Event, "error", ErrUnknownEvent)
		return
	}
	err := handler(c, message.Event, message.Data)
	if err != nil {
		globals.AppLogger.Warn("dropping event", "user", c.identity.Id, "event", message.Event, "error", err)
	}
}

// decodePayload weakly decodes data into v, so ids may arrive as numbers.
func decodePayload(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: no data", ErrInvalidPayload)
	}
	m := make(map[string]interface{})
	err := json.Unmarshal(data, &m)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidPayload, err)
	}
	err = mapstructure.WeakDecode(m, v)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidPayload, err)
	}
	return nil
}

// decodeCommunityId accepts a bare id (string or number) as well as {"communityId": ...}.
func decodeCommunityId(data json.RawMessage) (string, error) {
	var raw interface{}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &raw); err != nil {
			return "", fmt.Errorf("%w: %s", ErrInvalidPayload, err)
		}
	}
	communityId := ""
	var err error
	if m, ok := raw.(map[string]interface{}); ok {
		payload := types.TypingPayload{}
		err = mapstructure.WeakDecode(m, &payload)
		communityId = payload.CommunityId
	} else if raw != nil {
		err = mapstructure.WeakDecode(raw, &communityId)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidPayload, err)
	}
	if communityId == "" {
		return "", fmt.Errorf("%w: community id is required", ErrInvalidPayload)
	}
	return communityId, nil
}

func handleJoinCommunity(c *Client, _ string, data json.RawMessage) error {
	communityId, err := decodeCommunityId(data)
	if err != nil {
		return err
	}
	if c.hub.membership != nil {
		isMember, err := c.hub.membership.IsMember(communityId, c.identity.Id)
		if err != nil {
			return err
		}
		if !isMember {
			return chat.ErrNotMember
		}
	}
	c.hub.rooms.Join(c, types.CommunityRoom(communityId))
	return nil
}

func handleLeaveCommunity(c *Client, _ string, data json.RawMessage) error {
	communityId, err := decodeCommunityId(data)
	if err != nil {
		return err
	}
	c.hub.rooms.Leave(c, types.CommunityRoom(communityId))
	return nil
}

func handleSendMessage(c *Client, _ string, data json.RawMessage) error {
	payload := types.SendMessagePayload{}
	err := decodePayload(data, &payload)
	if err != nil {
		return err
	}
	_, err = c.hub.chat.SendChannelMessage(c.identity, payload.CommunityId, payload.ChannelId, payload.Content, "")
	return err
}

func handleSendDirectMessage(c *Client, _ string, data json.RawMessage) error {
	payload := types.SendDirectMessagePayload{}
	err := decodePayload(data, &payload)
	if err != nil {
		return err
	}
	_, err = c.hub.chat.SendDirectMessage(c.identity, payload.ReceiverId, payload.Content)
	return err
}

func handleJoinNotifications(c *Client, _ string, _ json.RawMessage) error {
	c.hub.rooms.Join(c, types.UserRoom(c.identity.Id))
	return nil
}

// handleTyping relays typing and stop-typing to the other connections in the community room. Only connections
// that joined the room may relay to it.
func handleTyping(c *Client, event string, data json.RawMessage) error {
	payload := types.TypingPayload{}
	err := decodePayload(data, &payload)
	if err != nil {
		return err
	}
	if payload.CommunityId == "" {
		return fmt.Errorf("%w: community id is required", ErrInvalidPayload)
	}
	if !c.hub.rooms.IsMember(c, types.CommunityRoom(payload.CommunityId)) {
		return ErrNotJoined
	}
	relayed := types.EventUserTyping
	if event == types.EventStopTyping {
		relayed = types.EventUserStopTyping
	}
	return c.hub.broadcaster.BroadcastTyping(c, payload.CommunityId, relayed, types.UserTypingPayload{
		UserId:    c.identity.Id,
		Username:  c.identity.DisplayName,
		ChannelId: payload.ChannelId,
	})
}

// handlePresence broadcasts an explicit presence change. set-offline does not disconnect anything.
func handlePresence(c *Client, event string, _ json.RawMessage) error {
	relayed := types.EventUserOnline
	if event == types.EventSetOffline {
		relayed = types.EventUserOffline
	}
	return c.hub.broadcaster.BroadcastAll(relayed, types.PresencePayload{UserId: c.identity.Id})
}
