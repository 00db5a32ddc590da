package persistence

import (
	"errors"
	"fmt"
	"time"

	"github.com/tcriess/terrace-buddy/config"
	"github.com/tcriess/terrace-buddy/globals"
	"github.com/tcriess/terrace-buddy/types"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type GormPersist struct {
	db *gorm.DB
}

func NewGormPersister(cfg *config.Config) (Persister, error) {
	db, err := setupGormDB(cfg)
	if err != nil {
		return nil, err
	}
	p := GormPersist{db: db}
	return &p, nil
}

func setupGormDB(cfg *config.Config) (*gorm.DB, error) {
	if cfg.PersistenceConfig.DSN == "" {
		return nil, fmt.Errorf("no dsn configured for %s", cfg.PersistenceConfig.Type)
	}
	var dial gorm.Dialector
	switch cfg.PersistenceConfig.Type {
	case "postgres":
		dial = postgres.Open(cfg.PersistenceConfig.DSN)

	case "sqlite":
		dial = sqlite.Open(cfg.PersistenceConfig.DSN)

	default:
		return nil, fmt.Errorf("invalid gorm configuration")
	}
	db, err := gorm.Open(dial, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, err
	}
	err = db.AutoMigrate(&types.User{}, &types.Community{}, &types.CommunityMember{}, &types.Message{}, &types.Notification{})
	if err != nil {
		return nil, err
	}
	return db, nil
}

func gormNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (p *GormPersist) StoreUser(user types.User) error {
	if user.Id == "" {
		return fmt.Errorf("no user id")
	}
	return p.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&user).Error
}

func (p *GormPersist) GetUser(user *types.User) error {
	if user.Id == "" {
		return fmt.Errorf("no user id")
	}
	return gormNotFound(p.db.Where("id = ?", user.Id).First(user).Error)
}

func (p *GormPersist) GetUsers() ([]*types.User, error) {
	users := make([]*types.User, 0)
	err := p.db.Order("id").Find(&users).Error
	return users, err
}

func (p *GormPersist) StoreCommunity(community types.Community) error {
	if community.Id == "" {
		return fmt.Errorf("no community id")
	}
	return p.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&community).Error
}

func (p *GormPersist) GetCommunity(community *types.Community) error {
	if community.Id == "" {
		return fmt.Errorf("no community id")
	}
	return gormNotFound(p.db.Where("id = ?", community.Id).First(community).Error)
}

func (p *GormPersist) GetCommunities() ([]*types.Community, error) {
	communities := make([]*types.Community, 0)
	err := p.db.Order("id").Find(&communities).Error
	return communities, err
}

func (p *GormPersist) AddMember(communityId, userId string) error {
	if communityId == "" || userId == "" {
		return fmt.Errorf("community id and user id are required")
	}
	member := types.CommunityMember{CommunityId: communityId, UserId: userId, JoinedAt: time.Now().UTC()}
	return p.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&member).Error
}

func (p *GormPersist) RemoveMember(communityId, userId string) error {
	return p.db.Where("community_id = ? AND user_id = ?", communityId, userId).Delete(&types.CommunityMember{}).Error
}

func (p *GormPersist) IsMember(communityId, userId string) (bool, error) {
	var count int64
	err := p.db.Model(&types.CommunityMember{}).Where("community_id = ? AND user_id = ?", communityId, userId).Count(&count).Error
	return count > 0, err
}

func (p *GormPersist) GetMembers(communityId string) ([]string, error) {
	members := make([]string, 0)
	err := p.db.Model(&types.CommunityMember{}).Where("community_id = ?", communityId).Order("user_id").Pluck("user_id", &members).Error
	return members, err
}

func (p *GormPersist) StoreMessage(msg *types.Message) error {
	err := prepareMessage(msg)
	if err != nil {
		return err
	}
	msg.Sender = nil
	err = p.db.Create(msg).Error
	if err != nil {
		globals.AppLogger.Error("could not store message", "id", msg.Id, "error", err)
		return err
	}
	populateSenders(p.GetUser, msg)
	return nil
}

func (p *GormPersist) GetMessage(msg *types.Message) error {
	if msg.Id == "" {
		return fmt.Errorf("no message id")
	}
	err := p.db.Where("id = ?", msg.Id).First(msg).Error
	if err != nil {
		return gormNotFound(err)
	}
	populateSenders(p.GetUser, msg)
	return nil
}

func (p *GormPersist) DeleteMessage(msg *types.Message) error {
	res := p.db.Where("id = ?", msg.Id).Delete(&types.Message{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *GormPersist) messageHistory(query *gorm.DB, before time.Time, limit int) ([]*types.Message, error) {
	msgs := make([]*types.Message, 0)
	query = query.Where("created_at < ?", historyBefore(before)).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	reverseMessages(msgs)
	populateSenders(p.GetUser, msgs...)
	return msgs, nil
}

func (p *GormPersist) GetChannelHistory(communityId, channelId string, before time.Time, limit int) ([]*types.Message, error) {
	query := p.db.Where("is_direct = ? AND community_id = ? AND channel_id = ?", false, communityId, channelId)
	return p.messageHistory(query, before, limit)
}

func (p *GormPersist) GetDirectHistory(userId, otherUserId string, before time.Time, limit int) ([]*types.Message, error) {
	query := p.db.Where("is_direct = ? AND ((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))",
		true, userId, otherUserId, otherUserId, userId)
	return p.messageHistory(query, before, limit)
}

func (p *GormPersist) MarkMessagesRead(receiverId string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return p.db.Model(&types.Message{}).Where("receiver_id = ? AND id IN ?", receiverId, ids).Update("read", true).Error
}

func (p *GormPersist) StoreNotification(n *types.Notification) error {
	err := prepareNotification(n)
	if err != nil {
		return err
	}
	return p.db.Create(n).Error
}

func (p *GormPersist) GetNotifications(userId string, limit int) ([]*types.Notification, error) {
	notifications := make([]*types.Notification, 0)
	query := p.db.Where("user_id = ?", userId).Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&notifications).Error
	return notifications, err
}

func (p *GormPersist) CountUnreadNotifications(userId string) (int, error) {
	var count int64
	err := p.db.Model(&types.Notification{}).Where("user_id = ? AND is_read = ?", userId, false).Count(&count).Error
	return int(count), err
}

func (p *GormPersist) MarkNotificationRead(userId, notificationId string) (*types.Notification, error) {
	n := &types.Notification{}
	err := p.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Where("id = ? AND user_id = ?", notificationId, userId).First(n).Error
		if err != nil {
			return err
		}
		n.IsRead = true
		return tx.Model(n).Update("is_read", true).Error
	})
	if err != nil {
		return nil, gormNotFound(err)
	}
	return n, nil
}

func (p *GormPersist) MarkAllNotificationsRead(userId string) error {
	return p.db.Model(&types.Notification{}).Where("user_id = ? AND is_read = ?", userId, false).Update("is_read", true).Error
}

func (p *GormPersist) DeleteNotification(userId, notificationId string) error {
	res := p.db.Where("id = ? AND user_id = ?", notificationId, userId).Delete(&types.Notification{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *GormPersist) PurgeNotifications(before time.Time) (int, error) {
	res := p.db.Where("is_read = ? AND created_at < ?", true, before.UTC()).Delete(&types.Notification{})
	return int(res.RowsAffected), res.Error
}

func (p *GormPersist) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
