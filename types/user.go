package types

import "time"

const (
	RoleUser           = "user"
	RoleCommunityAdmin = "community_admin"
	RolePlatformAdmin  = "platform_admin"
)

// Identity is the authenticated principal of a connection or request, derived from a verified credential.
// It never changes during the lifetime of a connection.
type Identity struct {
	Id          string `json:"id"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
}

// User is a registered account. Only the fields required by the messaging side are kept here.
type User struct {
	Id           string    `json:"id" gorm:"primaryKey"`
	Name         string    `json:"name"`
	Email        string    `json:"email" gorm:"index"`
	Role         string    `json:"role"`
	ProfileImage string    `json:"profileImage"`
	LastOnline   time.Time `json:"lastOnline"`
	CreatedAt    time.Time `json:"createdAt"`
}

// UserSummary is the part of a user that is embedded into messages ("populated sender").
type UserSummary struct {
	Id           string `json:"id"`
	Name         string `json:"name"`
	ProfileImage string `json:"profileImage"`
}

func (u *User) Summary() *UserSummary {
	return &UserSummary{
		Id:           u.Id,
		Name:         u.Name,
		ProfileImage: u.ProfileImage,
	}
}
