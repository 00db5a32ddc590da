package persistence

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/tcriess/terrace-buddy/config"
	"github.com/tcriess/terrace-buddy/types"
)

var ErrNotFound = errors.New("not found")

// Persister is implemented by all storage backends. History queries return the newest limit records created
// strictly before the given time, in chronological order (oldest first). A zero before means "now".
type Persister interface {
	StoreUser(types.User) error
	GetUser(*types.User) error
	GetUsers() ([]*types.User, error)
	StoreCommunity(types.Community) error
	GetCommunity(*types.Community) error
	GetCommunities() ([]*types.Community, error)
	AddMember(communityId, userId string) error
	RemoveMember(communityId, userId string) error
	IsMember(communityId, userId string) (bool, error)
	GetMembers(communityId string) ([]string, error)
	StoreMessage(*types.Message) error
	GetMessage(*types.Message) error
	DeleteMessage(*types.Message) error
	GetChannelHistory(communityId, channelId string, before time.Time, limit int) ([]*types.Message, error)
	GetDirectHistory(userId, otherUserId string, before time.Time, limit int) ([]*types.Message, error)
	MarkMessagesRead(receiverId string, ids []string) error
	StoreNotification(*types.Notification) error
	GetNotifications(userId string, limit int) ([]*types.Notification, error)
	CountUnreadNotifications(userId string) (int, error)
	MarkNotificationRead(userId, notificationId string) (*types.Notification, error)
	MarkAllNotificationsRead(userId string) error
	DeleteNotification(userId, notificationId string) error
	PurgeNotifications(before time.Time) (int, error)
	Close() error
}

// NewPersister returns the backend selected by the persistence section of the configuration.
func NewPersister(cfg *config.Config) (Persister, error) {
	switch cfg.PersistenceConfig.Type {
	case "buntdb", "":
		return NewBuntPersister(cfg)
	case "sqlite", "postgres":
		return NewGormPersister(cfg)
	}
	return nil, fmt.Errorf("unknown persistence type %q", cfg.PersistenceConfig.Type)
}

// prepareMessage validates msg and fills in the fields assigned on storage.
func prepareMessage(msg *types.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if msg.Id == "" {
		msg.Id = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	msg.CreatedAt = msg.CreatedAt.UTC()
	if msg.Type == "" {
		msg.Type = types.MessageTypeText
		if msg.Content == "" && msg.ImageUrl != "" {
			msg.Type = types.MessageTypeImage
		}
	}
	return nil
}

func prepareNotification(n *types.Notification) error {
	if n.UserId == "" {
		return fmt.Errorf("notification without user")
	}
	if !types.ValidNotificationType(n.Type) {
		return fmt.Errorf("invalid notification type %q", n.Type)
	}
	if n.Id == "" {
		n.Id = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	n.CreatedAt = n.CreatedAt.UTC()
	return nil
}

// populateSenders sets the Sender summary of each message. Unknown senders get a summary with the id only.
func populateSenders(getUser func(*types.User) error, msgs ...*types.Message) {
	cache := make(map[string]*types.UserSummary)
	for _, msg := range msgs {
		summary, ok := cache[msg.SenderId]
		if !ok {
			user := types.User{Id: msg.SenderId}
			if err := getUser(&user); err != nil {
				summary = &types.UserSummary{Id: msg.SenderId}
			} else {
				summary = user.Summary()
			}
			cache[msg.SenderId] = summary
		}
		msg.Sender = summary
	}
}

func historyBefore(before time.Time) time.Time {
	if before.IsZero() {
		return time.Now().Add(time.Second).UTC()
	}
	return before.UTC()
}

func reverseMessages(msgs []*types.Message) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
