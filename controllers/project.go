package controllers

import (
	"net/http"
	"time"

	"pfe-management-api/config"
	"pfe-management-api/middleware"
	"pfe-management-api/models"

	"github.com/gin-gonic/gin"
)

var projectTypesByRole = map[string]map[string]bool{
	models.RoleTeacher: {
		models.ProjectTypeClassical:  true,
		models.ProjectTypeInnovative: true,
	},
	models.RoleStudent: {
		models.ProjectTypeInnovative: true,
		models.ProjectTypeStartUp:    true,
		models.ProjectTypePatent:     true,
	},
	models.RoleCompany: {
		models.ProjectTypeInternship: true,
	},
}

// GetProjects lists all projects with their submitter and active proposal.
func GetProjects(c *gin.Context) {
	var projects []models.Project
	if err := config.DB.Preload("Submitter").Preload("Proposal").
		Order("project_id DESC").Find(&projects).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch projects"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"projects": projects,
		"total":    len(projects),
	})
}

// GetProject returns one project.
func GetProject(c *gin.Context) {
	projectID, err := parseIDParam(c)
	if err != nil {
		return
	}

	var project models.Project
	if err := config.DB.Preload("Submitter").Preload("Proposal").
		Where("project_id = ?", projectID).
		First(&project).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"project": project,
	})
}

type createProjectRequest struct {
	Title         string  `json:"title" binding:"required"`
	Summary       string  `json:"summary" binding:"required"`
	Technologies  string  `json:"technologies" binding:"required"`
	MaterialNeeds *string `json:"material_needs"`
	Type          string  `json:"type" binding:"required"`
	Option        string  `json:"option" binding:"required"`
}

// CreateProject records a new project in Proposed state. The legal type
// values depend on the submitting role.
func CreateProject(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User context missing"})
		return
	}

	allowedTypes, ok := projectTypesByRole[user.Role]
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{"error": "Unauthorized to propose projects"})
		return
	}

	var req createProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if !allowedTypes[req.Type] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Project type not allowed for your role", "field": "type"})
		return
	}
	if !models.ValidOptionValue(req.Option) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown department track", "field": "option"})
		return
	}

	now := time.Now()
	project := models.Project{
		Title:           req.Title,
		Summary:         req.Summary,
		Technologies:    req.Technologies,
		MaterialNeeds:   req.MaterialNeeds,
		Type:            req.Type,
		Option:          req.Option,
		Status:          models.ProjectStatusProposed,
		SubmittedBy:     user.UserID,
		SubmissionDate:  now,
		LastUpdatedDate: now,
		CreateAt:        &now,
		UpdateAt:        &now,
	}

	if err := config.DB.Create(&project).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create project"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"project": project,
	})
}

type updateProjectRequest struct {
	Title         *string `json:"title"`
	Summary       *string `json:"summary"`
	Technologies  *string `json:"technologies"`
	MaterialNeeds *string `json:"material_needs"`
	Option        *string `json:"option"`
}

// UpdateProject changes descriptive fields. Validated projects are frozen;
// only the assignment and defense workflows may touch them afterwards.
func UpdateProject(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User context missing"})
		return
	}

	projectID, err := parseIDParam(c)
	if err != nil {
		return
	}

	var project models.Project
	if err := config.DB.Where("project_id = ?", projectID).First(&project).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Project not found"})
		return
	}

	if project.SubmittedBy != user.UserID && user.Role != models.RoleAdministrator {
		c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
		return
	}

	if project.IsValidated() {
		c.JSON(http.StatusConflict, gin.H{"error": "Validated projects can no longer be modified"})
		return
	}

	var req updateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	now := time.Now()
	updates := map[string]interface{}{
		"last_updated_date": now,
		"updated_at":        now,
	}
	if req.Title != nil {
		updates["title"] = *req.Title
	}
	if req.Summary != nil {
		updates["summary"] = *req.Summary
	}
	if req.Technologies != nil {
		updates["technologies"] = *req.Technologies
	}
	if req.MaterialNeeds != nil {
		updates["material_needs"] = *req.MaterialNeeds
	}
	if req.Option != nil {
		if !models.ValidOptionValue(*req.Option) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown department track", "field": "option"})
			return
		}
		updates["option"] = *req.Option
	}

	if err := config.DB.Model(&models.Project{}).
		Where("project_id = ?", project.ProjectID).
		Updates(updates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update project"})
		return
	}

	if err := config.DB.Where("project_id = ?", project.ProjectID).First(&project).Error; err == nil {
		c.JSON(http.StatusOK, gin.H{"success": true, "project": project})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
