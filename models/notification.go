package models

import "time"

// Notification type values
const (
	NotificationTypeEmail = "Email"
	NotificationTypeInApp = "InApp"
)

type Notification struct {
	NotificationID    int        `gorm:"primaryKey;column:notification_id" json:"notification_id"`
	UserID            int        `gorm:"column:user_id" json:"user_id"`
	Message           string     `gorm:"column:message" json:"message"`
	NotificationType  string     `gorm:"column:notification_type" json:"notification_type"` // Email|InApp
	SentDate          time.Time  `gorm:"column:sent_date" json:"sent_date"`
	IsRead            bool       `gorm:"column:is_read" json:"is_read"`
	RelatedEntityType string     `gorm:"column:related_entity_type" json:"related_entity_type"`
	RelatedEntityID   int        `gorm:"column:related_entity_id" json:"related_entity_id"`
	CreateAt          *time.Time `gorm:"column:created_at" json:"created_at"`
	UpdateAt          *time.Time `gorm:"column:updated_at" json:"-"`
}

func (Notification) TableName() string { return "notifications" }
