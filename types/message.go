package types

import (
	"errors"
	"time"
)

const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
)

var (
	ErrMissingRecipient   = errors.New("message has neither a channel nor a receiver")
	ErrAmbiguousRecipient = errors.New("message has both a channel and a receiver")
	ErrEmptyContent       = errors.New("message content is required")
	ErrMissingSender      = errors.New("message has no sender")
)

// Message is a persisted chat message. Exactly one of (CommunityId, ChannelId) or ReceiverId is set, IsDirect
// is true iff ReceiverId is set.
type Message struct {
	Id          string       `json:"id" gorm:"primaryKey"`
	CommunityId string       `json:"communityId,omitempty" gorm:"index:idx_messages_channel"`
	ChannelId   string       `json:"channelId,omitempty" gorm:"index:idx_messages_channel"`
	SenderId    string       `json:"senderId" gorm:"index"`
	ReceiverId  string       `json:"receiverId,omitempty" gorm:"index"`
	Content     string       `json:"content"`
	ImageUrl    string       `json:"imageUrl,omitempty"`
	Type        string       `json:"type"`
	IsDirect    bool         `json:"isDirect"`
	Read        bool         `json:"read"`
	CreatedAt   time.Time    `json:"createdAt" gorm:"index"`
	Sender      *UserSummary `json:"sender,omitempty" gorm:"-"`
}

// Validate checks the recipient invariant and the required fields.
func (m *Message) Validate() error {
	if m.SenderId == "" {
		return ErrMissingSender
	}
	if m.Content == "" && m.ImageUrl == "" {
		return ErrEmptyContent
	}
	hasChannel := m.CommunityId != "" && m.ChannelId != ""
	hasReceiver := m.ReceiverId != ""
	switch {
	case hasChannel && hasReceiver:
		return ErrAmbiguousRecipient
	case !hasChannel && !hasReceiver:
		return ErrMissingRecipient
	case hasReceiver != m.IsDirect:
		return ErrAmbiguousRecipient
	}
	return nil
}
