package controllers

import (
	"net/http"
	"time"

	"pfe-management-api/config"
	"pfe-management-api/middleware"
	"pfe-management-api/models"

	"github.com/gin-gonic/gin"
)

type createPairRequest struct {
	PartnerID int `json:"partner_id" binding:"required"`
}

// CreateStudentPair sends a pair request from the current student to
// another one.
func CreateStudentPair(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok || user.Student == nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only students can form pairs"})
		return
	}

	var req createPairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if req.PartnerID == user.Student.StudentID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot pair with yourself", "field": "partner_id"})
		return
	}

	var partner models.Student
	if err := config.DB.Where("student_id = ?", req.PartnerID).First(&partner).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Partner student not found"})
		return
	}

	// One pending or accepted pair per student, either side.
	var existing int64
	if err := config.DB.Model(&models.StudentPair{}).
		Where("(student1_id = ? OR student2_id = ? OR student1_id = ? OR student2_id = ?) AND status <> ?",
			user.Student.StudentID, user.Student.StudentID, req.PartnerID, req.PartnerID, models.PairStatusRejected).
		Count(&existing).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check existing pairs"})
		return
	}
	if existing > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "One of the students already belongs to an active pair"})
		return
	}

	pair := models.StudentPair{
		Student1ID:   user.Student.StudentID,
		Student2ID:   req.PartnerID,
		Status:       models.PairStatusProposed,
		ProposedDate: time.Now(),
	}
	if err := config.DB.Create(&pair).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create pair request"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"pair":    pair,
	})
}

type respondToPairRequest struct {
	Response string `json:"response" binding:"required"`
}

// RespondToStudentPair lets the requested student accept or reject.
func RespondToStudentPair(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok || user.Student == nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only students can respond to pair requests"})
		return
	}

	pairID, err := parseIDParam(c)
	if err != nil {
		return
	}

	var req respondToPairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}
	if req.Response != models.PairStatusAccepted && req.Response != models.PairStatusRejected {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Response must be 'Accepted' or 'Rejected'", "field": "response"})
		return
	}

	var pair models.StudentPair
	if err := config.DB.Where("pair_id = ?", pairID).First(&pair).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Pair request not found"})
		return
	}

	if pair.Student2ID != user.Student.StudentID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the requested student can respond"})
		return
	}
	if pair.Status != models.PairStatusProposed {
		c.JSON(http.StatusConflict, gin.H{"error": "This pair request has already been processed"})
		return
	}

	now := time.Now()
	if err := config.DB.Model(&models.StudentPair{}).
		Where("pair_id = ?", pair.PairID).
		Updates(map[string]interface{}{
			"status":       req.Response,
			"updated_date": now,
		}).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update pair request"})
		return
	}

	pair.Status = req.Response
	pair.UpdatedDate = &now

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"pair":    pair,
	})
}

// DeleteStudentPair removes a pair request. Accepted pairs are locked.
func DeleteStudentPair(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User context missing"})
		return
	}

	pairID, err := parseIDParam(c)
	if err != nil {
		return
	}

	var pair models.StudentPair
	if err := config.DB.Where("pair_id = ?", pairID).First(&pair).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Pair request not found"})
		return
	}

	if user.Role != models.RoleAdministrator {
		if user.Student == nil ||
			(pair.Student1ID != user.Student.StudentID && pair.Student2ID != user.Student.StudentID) {
			c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
			return
		}
	}

	if pair.Status == models.PairStatusAccepted {
		c.JSON(http.StatusConflict, gin.H{"error": "Cannot delete an accepted pair"})
		return
	}

	if err := config.DB.Where("pair_id = ?", pair.PairID).
		Delete(&models.StudentPair{}).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete pair request"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
