package controllers

import (
	"net/http"
	"time"

	"pfe-management-api/config"
	"pfe-management-api/middleware"
	"pfe-management-api/models"

	"github.com/gin-gonic/gin"
)

// GetNotifications lists the current user's notifications, newest first.
func GetNotifications(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User context missing"})
		return
	}

	var notifications []models.Notification
	if err := config.DB.Where("user_id = ?", user.UserID).
		Order("sent_date DESC").
		Find(&notifications).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch notifications"})
		return
	}

	unread := 0
	for i := range notifications {
		if !notifications[i].IsRead {
			unread++
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"notifications": notifications,
		"total":         len(notifications),
		"unread":        unread,
	})
}

// MarkNotificationRead flags one of the user's notifications as read.
func MarkNotificationRead(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User context missing"})
		return
	}

	notificationID, err := parseIDParam(c)
	if err != nil {
		return
	}

	var notification models.Notification
	if err := config.DB.Where("notification_id = ? AND user_id = ?", notificationID, user.UserID).
		First(&notification).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Notification not found"})
		return
	}

	now := time.Now()
	if err := config.DB.Model(&models.Notification{}).
		Where("notification_id = ?", notification.NotificationID).
		Updates(map[string]interface{}{
			"is_read":    true,
			"updated_at": now,
		}).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update notification"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
