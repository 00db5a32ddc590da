package types

import "time"

const (
	VisibilityPublic  = "public"
	VisibilityPrivate = "private"
)

// Community is a group of gardeners with its own channels. Membership is stored separately as
// CommunityMember rows.
type Community struct {
	Id          string    `json:"id" gorm:"primaryKey"`
	Name        string    `json:"name" gorm:"uniqueIndex"`
	Description string    `json:"description"`
	AdminId     string    `json:"adminId"`
	Visibility  string    `json:"visibility"`
	CreatedAt   time.Time `json:"createdAt"`
}

type CommunityMember struct {
	CommunityId string    `json:"communityId" gorm:"primaryKey"`
	UserId      string    `json:"userId" gorm:"primaryKey"`
	JoinedAt    time.Time `json:"joinedAt"`
}
