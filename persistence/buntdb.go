package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/gofrs/flock"
	"github.com/tcriess/terrace-buddy/config"
	"github.com/tcriess/terrace-buddy/globals"
	"github.com/tcriess/terrace-buddy/types"
	"github.com/tidwall/buntdb"
)

const (
	messagesIndex          = "messages_sort"
	notificationsIndex     = "notifications_sort"
	userNotificationsIndex = "notifications_user_sort"
)

// messageRecord and notificationRecord carry a numeric sort key next to the entity, RFC3339 timestamps with
// a variable number of fractional digits do not sort lexicographically.
type messageRecord struct {
	types.Message
	Sort int64 `json:"sort"`
}

type notificationRecord struct {
	types.Notification
	Sort int64 `json:"sort"`
}

type BuntDBPersist struct {
	db   *buntdb.DB
	lock *flock.Flock
}

func NewBuntPersister(cfg *config.Config) (Persister, error) {
	var fileLock *flock.Flock
	if cfg.PersistenceConfig.FlockPath != "" {
		fileLock = flock.New(cfg.PersistenceConfig.FlockPath)
		locked, err := fileLock.TryLock()
		if err != nil {
			return nil, err
		}
		if !locked {
			return nil, fmt.Errorf("database %s is locked by another process", cfg.PersistenceConfig.DSN)
		}
	}
	db, err := setupBuntDB(cfg)
	if err != nil {
		if fileLock != nil {
			fileLock.Unlock()
		}
		return nil, err
	}
	return &BuntDBPersist{db: db, lock: fileLock}, nil
}

func setupBuntDB(cfg *config.Config) (*buntdb.DB, error) {
	fileName := cfg.PersistenceConfig.DSN
	if fileName == "" {
		fileName = ":memory:"
	}
	db, err := buntdb.Open(fileName)
	if err != nil {
		return nil, err
	}
	err = db.CreateIndex(messagesIndex, "message:*", buntdb.IndexJSON("sort"))
	if err != nil {
		db.Close()
		return nil, err
	}
	err = db.CreateIndex(notificationsIndex, "notification:*", buntdb.IndexJSON("sort"))
	if err != nil {
		db.Close()
		return nil, err
	}
	// groups the notifications by user, newest last within a user
	err = db.CreateIndex(userNotificationsIndex, "notification:*", buntdb.IndexJSONCaseSensitive("userId"), buntdb.IndexJSON("sort"))
	if err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func sortPivot(ts time.Time) string {
	return `{"sort":` + strconv.FormatInt(ts.UnixNano(), 10) + `}`
}

// userPivot is the position right after the newest notification of userId in the user notifications index.
func userPivot(userId string) (string, error) {
	pivot, err := json.Marshal(struct {
		UserId string `json:"userId"`
		Sort   int64  `json:"sort"`
	}{userId, math.MaxInt64})
	return string(pivot), err
}

func notificationKey(userId, notificationId string) string {
	return "notification:" + userId + ":" + notificationId
}

func notFound(err error) error {
	if errors.Is(err, buntdb.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func (p *BuntDBPersist) set(key string, value interface{}) error {
	v, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return p.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key, string(v), nil)
		return err
	})
}

func (p *BuntDBPersist) get(key string, value interface{}) error {
	err := p.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(key)
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(v), value)
	})
	return notFound(err)
}

func (p *BuntDBPersist) StoreUser(user types.User) error {
	if user.Id == "" {
		return fmt.Errorf("no user id")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	return p.set("user:"+user.Id, user)
}

func (p *BuntDBPersist) GetUser(user *types.User) error {
	if user.Id == "" {
		return fmt.Errorf("no user id")
	}
	return p.get("user:"+user.Id, user)
}

func (p *BuntDBPersist) GetUsers() ([]*types.User, error) {
	users := make([]*types.User, 0)
	err := p.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("user:*", func(key, value string) bool {
			user := &types.User{}
			if err := json.Unmarshal([]byte(value), user); err == nil {
				users = append(users, user)
			}
			return true
		})
	})
	return users, err
}

func (p *BuntDBPersist) StoreCommunity(community types.Community) error {
	if community.Id == "" {
		return fmt.Errorf("no community id")
	}
	if community.CreatedAt.IsZero() {
		community.CreatedAt = time.Now().UTC()
	}
	return p.set("community:"+community.Id, community)
}

func (p *BuntDBPersist) GetCommunity(community *types.Community) error {
	if community.Id == "" {
		return fmt.Errorf("no community id")
	}
	return p.get("community:"+community.Id, community)
}

func (p *BuntDBPersist) GetCommunities() ([]*types.Community, error) {
	communities := make([]*types.Community, 0)
	err := p.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys("community:*", func(key, value string) bool {
			community := &types.Community{}
			if err := json.Unmarshal([]byte(value), community); err == nil {
				communities = append(communities, community)
			}
			return true
		})
	})
	return communities, err
}

func memberKey(communityId, userId string) string {
	return "member:" + communityId + ":" + userId
}

func (p *BuntDBPersist) AddMember(communityId, userId string) error {
	if communityId == "" || userId == "" {
		return fmt.Errorf("community id and user id are required")
	}
	return p.set(memberKey(communityId, userId), types.CommunityMember{
		CommunityId: communityId,
		UserId:      userId,
		JoinedAt:    time.Now().UTC(),
	})
}

func (p *BuntDBPersist) RemoveMember(communityId, userId string) error {
	err := p.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(memberKey(communityId, userId))
		return err
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return nil
	}
	return err
}

func (p *BuntDBPersist) IsMember(communityId, userId string) (bool, error) {
	err := p.db.View(func(tx *buntdb.Tx) error {
		_, err := tx.Get(memberKey(communityId, userId))
		return err
	})
	if errors.Is(err, buntdb.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (p *BuntDBPersist) GetMembers(communityId string) ([]string, error) {
	members := make([]string, 0)
	err := p.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendKeys(memberKey(communityId, "*"), func(key, value string) bool {
			member := types.CommunityMember{}
			if err := json.Unmarshal([]byte(value), &member); err == nil && member.CommunityId == communityId {
				members = append(members, member.UserId)
			}
			return true
		})
	})
	return members, err
}

func (p *BuntDBPersist) StoreMessage(msg *types.Message) error {
	err := prepareMessage(msg)
	if err != nil {
		return err
	}
	msg.Sender = nil
	err = p.set("message:"+msg.Id, messageRecord{Message: *msg, Sort: msg.CreatedAt.UnixNano()})
	if err != nil {
		globals.AppLogger.Error("could not store message", "id", msg.Id, "error", err)
		return err
	}
	populateSenders(p.GetUser, msg)
	return nil
}

func (p *BuntDBPersist) GetMessage(msg *types.Message) error {
	if msg.Id == "" {
		return fmt.Errorf("no message id")
	}
	record := messageRecord{}
	err := p.get("message:"+msg.Id, &record)
	if err != nil {
		return err
	}
	*msg = record.Message
	populateSenders(p.GetUser, msg)
	return nil
}

func (p *BuntDBPersist) DeleteMessage(msg *types.Message) error {
	err := p.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete("message:" + msg.Id)
		return err
	})
	return notFound(err)
}

// messageHistory walks the messages index from before into the past and collects up to limit messages
// matching match. Messages created at before are excluded.
func (p *BuntDBPersist) messageHistory(before time.Time, limit int, match func(*types.Message) bool) ([]*types.Message, error) {
	msgs := make([]*types.Message, 0)
	end := historyBefore(before).UnixNano()
	err := p.db.View(func(tx *buntdb.Tx) error {
		return tx.DescendLessOrEqual(messagesIndex, sortPivot(time.Unix(0, end-1)), func(key, value string) bool {
			record := messageRecord{}
			if err := json.Unmarshal([]byte(value), &record); err != nil {
				globals.AppLogger.Warn("could not unmarshal message", "key", key, "error", err)
				return true
			}
			if record.Sort >= end || !match(&record.Message) {
				return true
			}
			msg := record.Message
			msgs = append(msgs, &msg)
			return limit <= 0 || len(msgs) < limit
		})
	})
	if err != nil {
		return nil, err
	}
	reverseMessages(msgs)
	populateSenders(p.GetUser, msgs...)
	return msgs, nil
}

func (p *BuntDBPersist) GetChannelHistory(communityId, channelId string, before time.Time, limit int) ([]*types.Message, error) {
	return p.messageHistory(before, limit, func(msg *types.Message) bool {
		return !msg.IsDirect && msg.CommunityId == communityId && msg.ChannelId == channelId
	})
}

func (p *BuntDBPersist) GetDirectHistory(userId, otherUserId string, before time.Time, limit int) ([]*types.Message, error) {
	return p.messageHistory(before, limit, func(msg *types.Message) bool {
		return msg.IsDirect && ((msg.SenderId == userId && msg.ReceiverId == otherUserId) ||
			(msg.SenderId == otherUserId && msg.ReceiverId == userId))
	})
}

func (p *BuntDBPersist) MarkMessagesRead(receiverId string, ids []string) error {
	return p.db.Update(func(tx *buntdb.Tx) error {
		for _, id := range ids {
			value, err := tx.Get("message:" + id)
			if errors.Is(err, buntdb.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			record := messageRecord{}
			if err := json.Unmarshal([]byte(value), &record); err != nil {
				return err
			}
			if record.ReceiverId != receiverId || record.Read {
				continue
			}
			record.Read = true
			v, err := json.Marshal(record)
			if err != nil {
				return err
			}
			if _, _, err := tx.Set("message:"+id, string(v), nil); err != nil {
				return err
			}
		}
		return nil
	})
}

func (p *BuntDBPersist) StoreNotification(n *types.Notification) error {
	err := prepareNotification(n)
	if err != nil {
		return err
	}
	return p.set(notificationKey(n.UserId, n.Id), notificationRecord{Notification: *n, Sort: n.CreatedAt.UnixNano()})
}

// userNotifications walks the notifications of userId from the newest to the oldest, other users'
// notifications are not visited.
func (p *BuntDBPersist) userNotifications(userId string, limit int, match func(*types.Notification) bool) ([]*types.Notification, error) {
	notifications := make([]*types.Notification, 0)
	pivot, err := userPivot(userId)
	if err != nil {
		return nil, err
	}
	err = p.db.View(func(tx *buntdb.Tx) error {
		return tx.DescendLessOrEqual(userNotificationsIndex, pivot, func(key, value string) bool {
			record := notificationRecord{}
			if err := json.Unmarshal([]byte(value), &record); err != nil {
				globals.AppLogger.Warn("could not unmarshal notification", "key", key, "error", err)
				return true
			}
			if record.UserId != userId {
				return false
			}
			if match != nil && !match(&record.Notification) {
				return true
			}
			n := record.Notification
			notifications = append(notifications, &n)
			return limit <= 0 || len(notifications) < limit
		})
	})
	return notifications, err
}

func (p *BuntDBPersist) GetNotifications(userId string, limit int) ([]*types.Notification, error) {
	return p.userNotifications(userId, limit, nil)
}

func (p *BuntDBPersist) CountUnreadNotifications(userId string) (int, error) {
	unread, err := p.userNotifications(userId, 0, func(n *types.Notification) bool {
		return !n.IsRead
	})
	return len(unread), err
}

// updateNotification applies update to the notification of userId with the given id inside tx.
func updateNotification(tx *buntdb.Tx, key, userId string, update func(*notificationRecord)) (*notificationRecord, error) {
	value, err := tx.Get(key)
	if err != nil {
		return nil, err
	}
	record := &notificationRecord{}
	if err := json.Unmarshal([]byte(value), record); err != nil {
		return nil, err
	}
	if record.UserId != userId {
		return nil, buntdb.ErrNotFound
	}
	update(record)
	v, err := json.Marshal(record)
	if err != nil {
		return nil, err
	}
	_, _, err = tx.Set(key, string(v), nil)
	return record, err
}

func (p *BuntDBPersist) MarkNotificationRead(userId, notificationId string) (*types.Notification, error) {
	var n *types.Notification
	err := p.db.Update(func(tx *buntdb.Tx) error {
		record, err := updateNotification(tx, notificationKey(userId, notificationId), userId, func(r *notificationRecord) {
			r.IsRead = true
		})
		if err != nil {
			return err
		}
		n = &record.Notification
		return nil
	})
	if err != nil {
		return nil, notFound(err)
	}
	return n, nil
}

func (p *BuntDBPersist) MarkAllNotificationsRead(userId string) error {
	unread, err := p.userNotifications(userId, 0, func(n *types.Notification) bool {
		return !n.IsRead
	})
	if err != nil {
		return err
	}
	return p.db.Update(func(tx *buntdb.Tx) error {
		for _, n := range unread {
			_, err := updateNotification(tx, notificationKey(userId, n.Id), userId, func(r *notificationRecord) {
				r.IsRead = true
			})
			if err != nil && !errors.Is(err, buntdb.ErrNotFound) {
				return err
			}
		}
		return nil
	})
}

// DeleteNotification deletes the notification, the key is scoped to userId, so other users' notifications are
// not found.
func (p *BuntDBPersist) DeleteNotification(userId, notificationId string) error {
	err := p.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(notificationKey(userId, notificationId))
		return err
	})
	return notFound(err)
}

func (p *BuntDBPersist) PurgeNotifications(before time.Time) (int, error) {
	keys := make([]string, 0)
	err := p.db.View(func(tx *buntdb.Tx) error {
		return tx.AscendLessThan(notificationsIndex, sortPivot(before), func(key, value string) bool {
			record := notificationRecord{}
			if err := json.Unmarshal([]byte(value), &record); err == nil && record.IsRead {
				keys = append(keys, key)
			}
			return true
		})
	})
	if err != nil {
		return 0, err
	}
	err = p.db.Update(func(tx *buntdb.Tx) error {
		for _, key := range keys {
			if _, err := tx.Delete(key); err != nil && !errors.Is(err, buntdb.ErrNotFound) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

func (p *BuntDBPersist) Close() error {
	err := p.db.Close()
	if p.lock != nil {
		if unlockErr := p.lock.Unlock(); unlockErr != nil {
			globals.AppLogger.Warn("could not release database lock", "error", unlockErr)
		}
	}
	return err
}
