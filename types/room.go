package types

import "strings"

const (
	communityRoomPrefix = "community-channel:"
	userRoomPrefix      = "user:"
)

// CommunityRoom returns the broadcast room key for the live scope of a community.
func CommunityRoom(communityId string) string {
	return communityRoomPrefix + communityId
}

// UserRoom returns the personal room key of a user (direct messages, notifications).
func UserRoom(userId string) string {
	return userRoomPrefix + userId
}

// IsUserRoom reports whether key is the personal room of some user.
func IsUserRoom(key string) bool {
	return strings.HasPrefix(key, userRoomPrefix)
}
