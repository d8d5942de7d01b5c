package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"pfe-management-api/config"
	"pfe-management-api/middleware"
	"pfe-management-api/models"
	"pfe-management-api/services"

	"github.com/gin-gonic/gin"
)

func proposalService() *services.ProposalService {
	return services.NewProposalService(config.DB, services.NewNotificationService(config.DB))
}

// GetProposals lists proposals. Administrators and teachers see the whole
// pool; students and companies only their own submissions.
func GetProposals(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User context missing"})
		return
	}

	query := config.DB.Preload("Project").Preload("Submitter")
	if user.Role == models.RoleStudent || user.Role == models.RoleCompany {
		query = query.Where("submitted_by = ?", user.UserID)
	}

	var proposals []models.ProjectProposal
	if err := query.Order("proposal_id DESC").Find(&proposals).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch proposals"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"proposals": proposals,
		"total":     len(proposals),
	})
}

// GetProposal returns one proposal with its project and submitter.
func GetProposal(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User context missing"})
		return
	}

	proposalID, err := parseIDParam(c)
	if err != nil {
		return
	}

	var proposal models.ProjectProposal
	if err := config.DB.Preload("Project").Preload("Submitter").Preload("Editor").
		Where("proposal_id = ?", proposalID).
		First(&proposal).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Proposal not found"})
		return
	}

	if user.Role == models.RoleStudent || user.Role == models.RoleCompany {
		if proposal.SubmittedBy != user.UserID {
			c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"proposal": proposal,
	})
}

// CreateProposal opens a new proposal negotiation for a project.
func CreateProposal(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User context missing"})
		return
	}

	var req services.CreateProposalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	proposal, err := proposalService().Create(user, &req)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":  true,
		"proposal": proposal,
	})
}

// SubmitProposalEdit lets a reviewing teacher suggest changes.
func SubmitProposalEdit(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User context missing"})
		return
	}

	proposalID, err := parseIDParam(c)
	if err != nil {
		return
	}

	var req services.EditProposalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	proposal, err := proposalService().SubmitEdit(user, proposalID, &req)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"message":  "Changes submitted for the submitter's review",
		"proposal": proposal,
	})
}

type respondToEditRequest struct {
	Accept    *bool  `json:"accept" binding:"required"`
	Comment   string `json:"comment"`
	MarkFinal bool   `json:"mark_final"`
}

// RespondToProposalEdit applies the submitter's accept/reject answer.
func RespondToProposalEdit(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User context missing"})
		return
	}

	proposalID, err := parseIDParam(c)
	if err != nil {
		return
	}

	var req respondToEditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	proposal, err := proposalService().RespondToEdit(user, proposalID, *req.Accept, req.Comment, req.MarkFinal)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	message := "Edit accepted"
	if !*req.Accept {
		message = "Edit rejected, proposal restored to its previous version"
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"message":  message,
		"proposal": proposal,
	})
}

type decideRequest struct {
	Decision string `json:"decision" binding:"required"`
	Comment  string `json:"comment"`
}

// DecideProposal handles approve/reject decisions from responsible teachers.
func DecideProposal(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User context missing"})
		return
	}

	proposalID, err := parseIDParam(c)
	if err != nil {
		return
	}

	var req decideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	meta := services.AuditMeta{
		IPAddress: c.ClientIP(),
		UserAgent: c.GetHeader("User-Agent"),
	}

	proposal, err := proposalService().Decide(user, proposalID, req.Decision, req.Comment, meta)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"message":  "Decision recorded",
		"proposal": proposal,
	})
}

// MarkProposalFinal designates the submitter's single final version.
func MarkProposalFinal(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User context missing"})
		return
	}

	proposalID, err := parseIDParam(c)
	if err != nil {
		return
	}

	proposal, err := proposalService().MarkFinal(user, proposalID)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"message":  "Proposal marked as final version",
		"proposal": proposal,
	})
}

// WithdrawProposal deletes a proposal that is not locked by acceptance or
// approval.
func WithdrawProposal(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User context missing"})
		return
	}

	proposalID, err := parseIDParam(c)
	if err != nil {
		return
	}

	if err := proposalService().Withdraw(user, proposalID); err != nil {
		respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Proposal withdrawn",
	})
}

func parseIDParam(c *gin.Context) (int, error) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid ID"})
		return 0, errInvalidID
	}
	return id, nil
}

var errInvalidID = errors.New("invalid id parameter")

// respondServiceError maps the service error taxonomy onto HTTP statuses.
func respondServiceError(c *gin.Context, err error) {
	var validationErr *services.ValidationError
	var quotaErr *services.QuotaError
	var authErr *services.AuthorizationError
	var stateErr *services.StateError
	var persistenceErr *services.PersistenceError

	switch {
	case errors.Is(err, services.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Not found"})
	case errors.As(err, &validationErr):
		body := gin.H{"success": false, "error": validationErr.Message}
		if validationErr.Field != "" {
			body["field"] = validationErr.Field
		}
		c.JSON(http.StatusBadRequest, body)
	case errors.As(err, &quotaErr):
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"error":   quotaErr.Error(),
			"limit":   quotaErr.Limit,
		})
	case errors.As(err, &authErr):
		c.JSON(http.StatusForbidden, gin.H{"success": false, "error": authErr.Message})
	case errors.As(err, &stateErr):
		c.JSON(http.StatusConflict, gin.H{"success": false, "error": stateErr.Message})
	case errors.As(err, &persistenceErr):
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Operation failed, please retry"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Unexpected error"})
	}
}
