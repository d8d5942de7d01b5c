package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"pfe-management-api/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Decision values accepted by Decide.
const (
	DecisionApprove = "Approve"
	DecisionReject  = "Reject"
)

// EditProposalRequest carries the fields a reviewing teacher wants to
// change, plus an explanation for the submitter. Nil fields are left
// untouched.
type EditProposalRequest struct {
	CoSupervisorName    *string                `json:"co_supervisor_name"`
	CoSupervisorSurname *string                `json:"co_supervisor_surname"`
	AdditionalDetails   map[string]interface{} `json:"additional_details"`
	Comment             string                 `json:"comment"`
}

// AuditMeta carries request metadata recorded with authority decisions.
type AuditMeta struct {
	IPAddress string
	UserAgent string
}

// ProposalService is the proposal lifecycle engine. Every operation is a
// single database transaction; notifications go out only after commit.
type ProposalService struct {
	db       *gorm.DB
	notifier *NotificationService
}

func NewProposalService(db *gorm.DB, notifier *NotificationService) *ProposalService {
	return &ProposalService{db: db, notifier: notifier}
}

// Create validates a submission against the role policy and quota, then
// opens a new negotiation in Pending state.
func (s *ProposalService) Create(actor *models.User, req *CreateProposalRequest) (*models.ProjectProposal, error) {
	tx := s.db.Begin()
	if tx.Error != nil {
		return nil, persistenceErr(tx.Error)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	proposal, err := s.createTx(tx, actor, req)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, persistenceErr(err)
	}

	s.notifier.ProposalSubmitted(proposal)
	return proposal, nil
}

func (s *ProposalService) createTx(tx *gorm.DB, actor *models.User, req *CreateProposalRequest) (*models.ProjectProposal, error) {
	var project models.Project
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("project_id = ?", req.ProjectID).
		First(&project).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, validationErr("project_id", "project not found")
		}
		return nil, persistenceErr(err)
	}

	if !project.IsOpenForProposals() {
		return nil, stateErr("project is no longer open for proposals")
	}

	if err := ValidateProposalPayload(actor, &project, req); err != nil {
		return nil, err
	}

	if err := CheckStudentQuota(tx, actor); err != nil {
		return nil, err
	}

	if actor.Role == models.RoleStudent && req.PartnerID != nil {
		var partner models.Student
		if err := tx.Where("student_id = ?", *req.PartnerID).First(&partner).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, validationErr("partner_id", "partner student not found")
			}
			return nil, persistenceErr(err)
		}
	}

	// One active negotiation per project.
	var existing int64
	if err := tx.Model(&models.ProjectProposal{}).
		Where("project_id = ? AND proposal_status <> ?", project.ProjectID, models.ProposalStatusRejected).
		Count(&existing).Error; err != nil {
		return nil, persistenceErr(err)
	}
	if existing > 0 {
		return nil, stateErr("project already has an active proposal")
	}

	order, err := NextProposalOrder(tx, actor.UserID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	proposal := models.ProjectProposal{
		ProjectID:           project.ProjectID,
		SubmittedBy:         actor.UserID,
		ProposerType:        actor.Role,
		CoSupervisorName:    req.CoSupervisorName,
		CoSupervisorSurname: req.CoSupervisorSurname,
		AdditionalDetails:   BuildAdditionalDetails(actor, req),
		ProposalOrder:       order,
		ProposalStatus:      models.ProposalStatusPending,
		CreateAt:            &now,
		UpdateAt:            &now,
	}

	if err := tx.Create(&proposal).Error; err != nil {
		return nil, persistenceErr(err)
	}

	return &proposal, nil
}

// SubmitEdit lets a non-submitting teacher suggest changes. The pre-edit
// field values are snapshotted so the submitter can reject the edit and
// get them back exactly.
func (s *ProposalService) SubmitEdit(actor *models.User, proposalID int, req *EditProposalRequest) (*models.ProjectProposal, error) {
	tx := s.db.Begin()
	if tx.Error != nil {
		return nil, persistenceErr(tx.Error)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	proposal, err := s.submitEditTx(tx, actor, proposalID, req)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, persistenceErr(err)
	}

	s.notifier.ProposalEdited(proposal)
	return proposal, nil
}

func (s *ProposalService) submitEditTx(tx *gorm.DB, actor *models.User, proposalID int, req *EditProposalRequest) (*models.ProjectProposal, error) {
	proposal, err := loadProposal(tx, proposalID)
	if err != nil {
		return nil, err
	}

	if actor.Role != models.RoleTeacher {
		return nil, authorizationErr("only teachers can suggest changes to a proposal")
	}
	if actor.UserID == proposal.SubmittedBy {
		return nil, authorizationErr("the submitter cannot edit their own proposal through review")
	}
	if !proposal.CanBeEditedBy(actor) {
		return nil, stateErr("proposal can no longer be edited")
	}

	snapshot := proposal.Snapshot()
	now := time.Now()
	accepted := false

	if req.CoSupervisorName != nil {
		proposal.CoSupervisorName = req.CoSupervisorName
	}
	if req.CoSupervisorSurname != nil {
		proposal.CoSupervisorSurname = req.CoSupervisorSurname
	}
	if req.AdditionalDetails != nil {
		proposal.AdditionalDetails = models.JSONMap(req.AdditionalDetails)
	}
	proposal.ProposalStatus = models.ProposalStatusEdited
	proposal.EditedBy = &actor.UserID
	proposal.EditedAt = &now
	proposal.EditAccepted = &accepted
	proposal.LastEditedVersion = snapshot
	if req.Comment != "" {
		proposal.ReviewComments = &req.Comment
	}
	proposal.UpdateAt = &now

	if err := tx.Model(&models.ProjectProposal{}).
		Where("proposal_id = ?", proposal.ProposalID).
		Updates(map[string]interface{}{
			"co_supervisor_name":    proposal.CoSupervisorName,
			"co_supervisor_surname": proposal.CoSupervisorSurname,
			"additional_details":    proposal.AdditionalDetails,
			"proposal_status":       proposal.ProposalStatus,
			"edited_by":             actor.UserID,
			"edited_at":             now,
			"edit_accepted":         false,
			"last_edited_version":   snapshot,
			"review_comments":       proposal.ReviewComments,
			"updated_at":            now,
		}).Error; err != nil {
		return nil, persistenceErr(err)
	}

	return proposal, nil
}

// RespondToEdit applies the submitter's answer to a pending teacher edit.
// Accepting keeps the edited fields and may mark the proposal final;
// rejecting restores the snapshot taken before the edit.
func (s *ProposalService) RespondToEdit(actor *models.User, proposalID int, accept bool, comment string, markFinal bool) (*models.ProjectProposal, error) {
	tx := s.db.Begin()
	if tx.Error != nil {
		return nil, persistenceErr(tx.Error)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	proposal, editorID, err := s.respondToEditTx(tx, actor, proposalID, accept, comment, markFinal)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, persistenceErr(err)
	}

	s.notifier.EditResponded(proposal, editorID, accept)
	return proposal, nil
}

func (s *ProposalService) respondToEditTx(tx *gorm.DB, actor *models.User, proposalID int, accept bool, comment string, markFinal bool) (*models.ProjectProposal, int, error) {
	proposal, err := loadProposal(tx, proposalID)
	if err != nil {
		return nil, 0, err
	}

	if actor.UserID != proposal.SubmittedBy {
		return nil, 0, authorizationErr("only the submitter can respond to a suggested edit")
	}
	if !proposal.NeedsSubmitterReview() {
		return nil, 0, stateErr("proposal has no edit awaiting review")
	}

	editorID := 0
	if proposal.EditedBy != nil {
		editorID = *proposal.EditedBy
	}

	now := time.Now()

	if accept {
		accepted := true
		proposal.EditAccepted = &accepted
		proposal.ProposalStatus = models.ProposalStatusAccepted
		if comment != "" {
			proposal.ReviewComments = &comment
		}
		proposal.UpdateAt = &now

		updates := map[string]interface{}{
			"edit_accepted":   true,
			"proposal_status": models.ProposalStatusAccepted,
			"updated_at":      now,
		}
		if comment != "" {
			updates["review_comments"] = comment
		}
		if err := tx.Model(&models.ProjectProposal{}).
			Where("proposal_id = ?", proposal.ProposalID).
			Updates(updates).Error; err != nil {
			return nil, 0, persistenceErr(err)
		}

		if markFinal {
			if err := applyFinalVersion(tx, proposal, now); err != nil {
				return nil, 0, err
			}
		}
		return proposal, editorID, nil
	}

	if err := proposal.RestoreSnapshot(); err != nil {
		return nil, 0, stateErr(err.Error())
	}
	proposal.ProposalStatus = models.ProposalStatusPending
	proposal.EditedBy = nil
	proposal.EditedAt = nil
	proposal.EditAccepted = nil
	proposal.LastEditedVersion = nil
	if comment != "" {
		proposal.ReviewComments = &comment
	} else {
		proposal.ReviewComments = nil
	}
	proposal.UpdateAt = &now

	if err := tx.Model(&models.ProjectProposal{}).
		Where("proposal_id = ?", proposal.ProposalID).
		Updates(map[string]interface{}{
			"co_supervisor_name":    proposal.CoSupervisorName,
			"co_supervisor_surname": proposal.CoSupervisorSurname,
			"additional_details":    proposal.AdditionalDetails,
			"proposal_status":       models.ProposalStatusPending,
			"edited_by":             nil,
			"edited_at":             nil,
			"edit_accepted":         nil,
			"last_edited_version":   nil,
			"review_comments":       proposal.ReviewComments,
			"updated_at":            now,
		}).Error; err != nil {
		return nil, 0, persistenceErr(err)
	}

	return proposal, editorID, nil
}

// Decide applies a responsible teacher's terminal decision. Approval also
// validates the parent project inside the same transaction; rejection
// leaves the project open and frees the submitter's quota slot.
func (s *ProposalService) Decide(actor *models.User, proposalID int, decision, comment string, meta AuditMeta) (*models.ProjectProposal, error) {
	tx := s.db.Begin()
	if tx.Error != nil {
		return nil, persistenceErr(tx.Error)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	proposal, err := s.decideTx(tx, actor, proposalID, decision, comment, meta)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, persistenceErr(err)
	}

	s.notifier.ProposalDecided(proposal, decision)
	return proposal, nil
}

func (s *ProposalService) decideTx(tx *gorm.DB, actor *models.User, proposalID int, decision, comment string, meta AuditMeta) (*models.ProjectProposal, error) {
	if decision != DecisionApprove && decision != DecisionReject {
		return nil, validationErr("decision", "decision must be either 'Approve' or 'Reject'")
	}
	if !actor.IsResponsibleTeacher() {
		return nil, authorizationErr("only responsible teachers can approve or reject proposals")
	}

	proposal, err := loadProposal(tx, proposalID)
	if err != nil {
		return nil, err
	}

	// Idempotency guard: a second decision on a terminal proposal fails
	// without re-touching the project.
	if proposal.IsTerminal() {
		return nil, stateErr(fmt.Sprintf("proposal is already %s", proposal.ProposalStatus))
	}
	if !proposal.CanBeDecided() {
		return nil, stateErr("proposal has an edit awaiting the submitter's response")
	}

	now := time.Now()
	targetStatus := models.ProposalStatusApproved
	if decision == DecisionReject {
		targetStatus = models.ProposalStatusRejected
	}

	proposal.ProposalStatus = targetStatus
	if comment != "" {
		proposal.ReviewComments = &comment
	}
	proposal.UpdateAt = &now

	updates := map[string]interface{}{
		"proposal_status": targetStatus,
		"updated_at":      now,
	}
	if comment != "" {
		updates["review_comments"] = comment
	}
	if err := tx.Model(&models.ProjectProposal{}).
		Where("proposal_id = ?", proposal.ProposalID).
		Updates(updates).Error; err != nil {
		return nil, persistenceErr(err)
	}

	if decision == DecisionApprove {
		if err := tx.Model(&models.Project{}).
			Where("project_id = ?", proposal.ProjectID).
			Updates(map[string]interface{}{
				"last_updated_date": now,
				"status":            models.ProjectStatusValidated,
			}).Error; err != nil {
			return nil, persistenceErr(err)
		}
	}

	if err := writeDecisionAudit(tx, actor, proposal, decision, comment, meta, now); err != nil {
		return nil, persistenceErr(err)
	}

	return proposal, nil
}

func writeDecisionAudit(tx *gorm.DB, actor *models.User, proposal *models.ProjectProposal, decision, comment string, meta AuditMeta, now time.Time) error {
	values := map[string]interface{}{
		"decision":        decision,
		"comment":         comment,
		"proposal_status": proposal.ProposalStatus,
	}
	serialized, _ := json.Marshal(values)
	payload := string(serialized)
	entityID := proposal.ProposalID
	description := fmt.Sprintf("Proposal %d %s by responsible teacher", proposal.ProposalID, proposal.ProposalStatus)

	audit := models.AuditLog{
		UserID:      actor.UserID,
		Action:      "decide",
		EntityType:  "project_proposal",
		EntityID:    &entityID,
		NewValues:   &payload,
		Description: &description,
		IPAddress:   meta.IPAddress,
		CreateAt:    now,
	}
	if meta.UserAgent != "" {
		ua := meta.UserAgent
		audit.UserAgent = &ua
	}
	return tx.Create(&audit).Error
}

// MarkFinal designates this proposal as the submitter's single final
// version. The flag is cleared on every other proposal owned by the same
// submitter in the same transaction.
func (s *ProposalService) MarkFinal(actor *models.User, proposalID int) (*models.ProjectProposal, error) {
	tx := s.db.Begin()
	if tx.Error != nil {
		return nil, persistenceErr(tx.Error)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	proposal, err := s.markFinalTx(tx, actor, proposalID)
	if err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, persistenceErr(err)
	}

	return proposal, nil
}

func (s *ProposalService) markFinalTx(tx *gorm.DB, actor *models.User, proposalID int) (*models.ProjectProposal, error) {
	proposal, err := loadProposal(tx, proposalID)
	if err != nil {
		return nil, err
	}

	if actor.UserID != proposal.SubmittedBy {
		return nil, authorizationErr("only the submitter can mark a proposal as final")
	}
	if proposal.IsTerminal() {
		return nil, stateErr("a decided proposal cannot be marked as final")
	}
	if proposal.IsFinalVersion {
		return nil, stateErr("proposal is already the final version")
	}

	now := time.Now()
	if err := applyFinalVersion(tx, proposal, now); err != nil {
		return nil, err
	}
	return proposal, nil
}

// applyFinalVersion enforces single-final-version exclusivity: one UPDATE
// clears the flag on the submitter's other proposals, a second sets it on
// the target, both inside the caller's transaction.
func applyFinalVersion(tx *gorm.DB, proposal *models.ProjectProposal, now time.Time) error {
	if err := tx.Model(&models.ProjectProposal{}).
		Where("submitted_by = ? AND proposal_id <> ?", proposal.SubmittedBy, proposal.ProposalID).
		Update("is_final_version", false).Error; err != nil {
		return persistenceErr(err)
	}
	if err := tx.Model(&models.ProjectProposal{}).
		Where("proposal_id = ?", proposal.ProposalID).
		Update("is_final_version", true).Error; err != nil {
		return persistenceErr(err)
	}
	proposal.IsFinalVersion = true
	proposal.UpdateAt = &now
	return nil
}

// Withdraw deletes a proposal that has not been locked by acceptance or
// approval. Mirrors the accepted-pair deletion guard.
func (s *ProposalService) Withdraw(actor *models.User, proposalID int) error {
	tx := s.db.Begin()
	if tx.Error != nil {
		return persistenceErr(tx.Error)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err := s.withdrawTx(tx, actor, proposalID); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit().Error; err != nil {
		return persistenceErr(err)
	}
	return nil
}

func (s *ProposalService) withdrawTx(tx *gorm.DB, actor *models.User, proposalID int) error {
	proposal, err := loadProposal(tx, proposalID)
	if err != nil {
		return err
	}

	if actor.UserID != proposal.SubmittedBy && actor.Role != models.RoleAdministrator {
		return authorizationErr("only the submitter can withdraw a proposal")
	}
	if !proposal.CanBeWithdrawn() {
		return stateErr(fmt.Sprintf("cannot withdraw a proposal in %s state", proposal.ProposalStatus))
	}

	if err := tx.Where("proposal_id = ?", proposal.ProposalID).
		Delete(&models.ProjectProposal{}).Error; err != nil {
		return persistenceErr(err)
	}
	return nil
}

// loadProposal takes a row lock so the state guards that follow hold
// until the transaction commits. Two concurrent decisions serialize here
// and the second one sees the terminal status.
func loadProposal(tx *gorm.DB, proposalID int) (*models.ProjectProposal, error) {
	var proposal models.ProjectProposal
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("proposal_id = ?", proposalID).
		First(&proposal).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("proposal %d: %w", proposalID, ErrNotFound)
		}
		return nil, persistenceErr(err)
	}
	return &proposal, nil
}
