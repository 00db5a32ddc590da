// Package chat implements sending messages: every message is persisted first and broadcast only after the
// write succeeded. Both the live channel and the HTTP endpoints send through the same Service.
package chat

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tcriess/terrace-buddy/globals"
	"github.com/tcriess/terrace-buddy/persistence"
	"github.com/tcriess/terrace-buddy/types"
)

var (
	ErrInvalidMessage = errors.New("invalid message")
	ErrNotMember      = errors.New("not a member of the community")
)

// Broadcaster is the live fan-out the service hands persisted messages to.
type Broadcaster interface {
	BroadcastChannelMessage(communityId, channelId string, msg *types.Message) error
	BroadcastDirectMessage(senderId, receiverId string, msg *types.Message) error
}

// MembershipChecker answers whether a user may post to a community.
type MembershipChecker interface {
	IsMember(communityId, userId string) (bool, error)
}

type Service struct {
	persister   persistence.Persister
	membership  MembershipChecker // nil: no membership verification
	broadcaster Broadcaster
}

func NewService(persister persistence.Persister, membership MembershipChecker, broadcaster Broadcaster) *Service {
	return &Service{
		persister:   persister,
		membership:  membership,
		broadcaster: broadcaster,
	}
}

// SendChannelMessage persists a message to the channel of a community and broadcasts it to the community room.
// imageUrl is optional, a message with an image and no text is an image message.
func (s *Service) SendChannelMessage(sender *types.Identity, communityId, channelId, content, imageUrl string) (*types.Message, error) {
	content = strings.TrimSpace(content)
	if communityId == "" || channelId == "" {
		return nil, fmt.Errorf("%w: community and channel are required", ErrInvalidMessage)
	}
	if s.membership != nil {
		isMember, err := s.membership.IsMember(communityId, sender.Id)
		if err != nil {
			return nil, err
		}
		if !isMember {
			return nil, ErrNotMember
		}
	}
	msg := &types.Message{
		SenderId:    sender.Id,
		CommunityId: communityId,
		ChannelId:   channelId,
		Content:     content,
		ImageUrl:    imageUrl,
	}
	if imageUrl != "" {
		msg.Type = types.MessageTypeImage
	}
	err := s.store(msg)
	if err != nil {
		return nil, err
	}
	err = s.broadcaster.BroadcastChannelMessage(communityId, channelId, msg)
	if err != nil {
		// the message is persisted, live delivery is best effort
		globals.AppLogger.Warn("could not broadcast channel message", "id", msg.Id, "error", err)
	}
	return msg, nil
}

// SendDirectMessage persists a direct message and broadcasts it to the personal rooms of receiver and sender.
func (s *Service) SendDirectMessage(sender *types.Identity, receiverId, content string) (*types.Message, error) {
	content = strings.TrimSpace(content)
	if receiverId == "" {
		return nil, fmt.Errorf("%w: receiver is required", ErrInvalidMessage)
	}
	msg := &types.Message{
		SenderId:   sender.Id,
		ReceiverId: receiverId,
		Content:    content,
		IsDirect:   true,
	}
	err := s.store(msg)
	if err != nil {
		return nil, err
	}
	err = s.broadcaster.BroadcastDirectMessage(sender.Id, receiverId, msg)
	if err != nil {
		globals.AppLogger.Warn("could not broadcast direct message", "id", msg.Id, "error", err)
	}
	return msg, nil
}

func (s *Service) store(msg *types.Message) error {
	if err := msg.Validate(); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidMessage, err)
	}
	if err := s.persister.StoreMessage(msg); err != nil {
		return fmt.Errorf("could not persist message: %w", err)
	}
	return nil
}
