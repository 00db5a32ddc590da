package types

import "encoding/json"

// Events sent by the client.
const (
	EventJoinCommunity     = "join-community"
	EventLeaveCommunity    = "leave-community"
	EventSendMessage       = "send-message"
	EventSendDirectMessage = "send-direct-message"
	EventJoinNotifications = "join-notifications"
	EventTyping            = "typing"
	EventStopTyping        = "stop-typing"
	EventSetOnline         = "set-online"
	EventSetOffline        = "set-offline"
)

// Events sent by the server.
const (
	EventNewMessage        = "new-message"
	EventDirectMessage     = "direct-message"
	EventDirectMessageSent = "direct-message-sent"
	EventNewNotification   = "new-notification"
	EventUserTyping        = "user-typing"
	EventUserStopTyping    = "user-stop-typing"
	EventUserOnline        = "user-online"
	EventUserOffline       = "user-offline"
)

// JSON-serialized WebsocketMessage is what is actually sent via the Websocket connection, in both directions.
type WebsocketMessage struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewWebsocketMessage wraps payload into the wire envelope.
func NewWebsocketMessage(event string, payload interface{}) ([]byte, error) {
	m := WebsocketMessage{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		m.Data = data
	}
	return json.Marshal(m)
}

// The payloads sent by the client. The mapstructure tags are used to weakly decode the data part.

type SendMessagePayload struct {
	CommunityId string `json:"communityId" mapstructure:"communityId"`
	ChannelId   string `json:"channelId" mapstructure:"channelId"`
	Content     string `json:"content" mapstructure:"content"`
}

type SendDirectMessagePayload struct {
	ReceiverId string `json:"receiverId" mapstructure:"receiverId"`
	Content    string `json:"content" mapstructure:"content"`
}

type TypingPayload struct {
	CommunityId string `json:"communityId" mapstructure:"communityId"`
	ChannelId   string `json:"channelId" mapstructure:"channelId"`
}

// The payloads sent by the server (besides the persisted messages and notifications).

type UserTypingPayload struct {
	UserId    string `json:"userId"`
	Username  string `json:"username"`
	ChannelId string `json:"channelId"`
}

type PresencePayload struct {
	UserId string `json:"userId"`
}
