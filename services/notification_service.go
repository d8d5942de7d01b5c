package services

import (
	"fmt"
	"log"
	"time"

	"pfe-management-api/config"
	"pfe-management-api/models"

	"gorm.io/gorm"
)

// NotificationService is the notification sink. Everything here is
// best-effort and runs after the lifecycle transaction has committed:
// failures are logged, never propagated back to the caller.
type NotificationService struct {
	db       *gorm.DB
	sendMail func(to []string, subject, html string) error
}

func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{db: db, sendMail: config.SendMail}
}

// ProposalSubmitted informs every responsible teacher that a new proposal
// is waiting for review.
func (n *NotificationService) ProposalSubmitted(proposal *models.ProjectProposal) {
	var reviewers []models.User
	if err := n.db.Joins("JOIN teachers ON teachers.user_id = users.user_id").
		Where("teachers.is_responsible = ?", true).
		Find(&reviewers).Error; err != nil {
		log.Printf("notification: failed to load responsible teachers: %v", err)
		return
	}

	message := fmt.Sprintf("A new project proposal (#%d) is awaiting review.", proposal.ProposalID)
	for i := range reviewers {
		n.deliver(&reviewers[i], message, proposal.ProposalID)
	}
}

// ProposalEdited tells the submitter a teacher suggested changes.
func (n *NotificationService) ProposalEdited(proposal *models.ProjectProposal) {
	message := fmt.Sprintf("A teacher suggested changes to your proposal #%d. Please review them.", proposal.ProposalID)
	n.notifyUserID(proposal.SubmittedBy, message, proposal.ProposalID)
}

// EditResponded tells the editing teacher how the submitter answered.
func (n *NotificationService) EditResponded(proposal *models.ProjectProposal, editorID int, accepted bool) {
	if editorID == 0 {
		return
	}
	verdict := "accepted"
	if !accepted {
		verdict = "rejected"
	}
	message := fmt.Sprintf("The submitter %s your suggested changes on proposal #%d.", verdict, proposal.ProposalID)
	n.notifyUserID(editorID, message, proposal.ProposalID)
}

// ProposalDecided tells the submitter about the authority decision.
func (n *NotificationService) ProposalDecided(proposal *models.ProjectProposal, decision string) {
	message := fmt.Sprintf("Your project proposal #%d has been %s.", proposal.ProposalID, proposal.ProposalStatus)
	if decision == DecisionReject {
		message += " You may submit a new proposal."
	}
	n.notifyUserID(proposal.SubmittedBy, message, proposal.ProposalID)
}

func (n *NotificationService) notifyUserID(userID int, message string, proposalID int) {
	var user models.User
	if err := n.db.Where("user_id = ?", userID).First(&user).Error; err != nil {
		log.Printf("notification: failed to load user %d: %v", userID, err)
		return
	}
	n.deliver(&user, message, proposalID)
}

func (n *NotificationService) deliver(user *models.User, message string, proposalID int) {
	now := time.Now()
	notification := models.Notification{
		UserID:            user.UserID,
		Message:           message,
		NotificationType:  models.NotificationTypeInApp,
		SentDate:          now,
		RelatedEntityType: "project_proposal",
		RelatedEntityID:   proposalID,
		CreateAt:          &now,
	}
	if err := n.db.Create(&notification).Error; err != nil {
		log.Printf("notification: failed to store notification for user %d: %v", user.UserID, err)
	}

	if user.Email == "" {
		return
	}
	html := fmt.Sprintf("<p>%s</p>", message)
	if err := n.sendMail([]string{user.Email}, "PFE proposal update", html); err != nil {
		log.Printf("notification: failed to email user %d: %v", user.UserID, err)
	}
}
