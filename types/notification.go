package types

import "time"

const (
	NotificationCommunityJoinRequest = "community_join_request"
	NotificationCommunityApproved    = "community_approved"
	NotificationNewMessage           = "new_message"
	NotificationMarketplaceInterest  = "marketplace_interest"
	NotificationWeatherAlert         = "weather_alert"
)

var NotificationTypes = []string{
	NotificationCommunityJoinRequest,
	NotificationCommunityApproved,
	NotificationNewMessage,
	NotificationMarketplaceInterest,
	NotificationWeatherAlert,
}

// Notification is always persisted, live delivery is best effort.
type Notification struct {
	Id          string    `json:"id" gorm:"primaryKey"`
	UserId      string    `json:"userId" gorm:"index"`
	Type        string    `json:"type"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	RelatedId   string    `json:"relatedId,omitempty"`
	RelatedType string    `json:"relatedType,omitempty"`
	IsRead      bool      `json:"isRead"`
	CreatedAt   time.Time `json:"createdAt" gorm:"index"`
}

func ValidNotificationType(t string) bool {
	for _, nt := range NotificationTypes {
		if nt == t {
			return true
		}
	}
	return false
}
