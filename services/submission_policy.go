package services

import (
	"pfe-management-api/models"

	"gorm.io/gorm"
)

// Internship duration bounds in months for company proposals.
const (
	MinInternshipMonths = 4
	MaxInternshipMonths = 12
)

// InternshipDetails is the structured payload companies must attach.
type InternshipDetails struct {
	Duration int      `json:"duration"`
	Location string   `json:"location"`
	Salary   *float64 `json:"salary,omitempty"`
}

// CreateProposalRequest is the payload accepted by the create operation.
// Role-specific fields are validated by the submission policy before the
// lifecycle engine runs.
type CreateProposalRequest struct {
	ProjectID           int                    `json:"project_id" binding:"required"`
	CoSupervisorName    *string                `json:"co_supervisor_name"`
	CoSupervisorSurname *string                `json:"co_supervisor_surname"`
	PartnerID           *int                   `json:"partner_id"`
	AdditionalDetails   map[string]interface{} `json:"additional_details"`
	InternshipDetails   *InternshipDetails     `json:"internship_details"`
}

var teacherProjectTypes = map[string]bool{
	models.ProjectTypeClassical:  true,
	models.ProjectTypeInnovative: true,
}

var studentProjectTypes = map[string]bool{
	models.ProjectTypeInnovative: true,
	models.ProjectTypeStartUp:    true,
	models.ProjectTypePatent:     true,
}

// ValidateProposalPayload applies the role-specific shape rules from the
// submission policy. It does not touch the database; reference checks such
// as partner existence happen inside the create transaction.
func ValidateProposalPayload(actor *models.User, project *models.Project, req *CreateProposalRequest) error {
	switch actor.Role {
	case models.RoleTeacher:
		return validateTeacherPayload(project, req)
	case models.RoleStudent:
		return validateStudentPayload(actor, project, req)
	case models.RoleCompany:
		return validateCompanyPayload(project, req)
	default:
		return authorizationErr("only students, teachers and companies can submit proposals")
	}
}

func validateTeacherPayload(project *models.Project, req *CreateProposalRequest) error {
	if !teacherProjectTypes[project.Type] {
		return validationErr("type", "teachers can only submit Classical or Innovative projects")
	}
	// Co-supervisor names are optional, but one without the other is a
	// half-filled record.
	hasName := req.CoSupervisorName != nil && *req.CoSupervisorName != ""
	hasSurname := req.CoSupervisorSurname != nil && *req.CoSupervisorSurname != ""
	if hasName != hasSurname {
		return validationErr("co_supervisor_surname", "co-supervisor name and surname must be provided together")
	}
	return nil
}

func validateStudentPayload(actor *models.User, project *models.Project, req *CreateProposalRequest) error {
	if !studentProjectTypes[project.Type] {
		return validationErr("type", "students can only submit Innovative, StartUp or Patent projects")
	}
	if req.PartnerID != nil && actor.Student != nil && *req.PartnerID == actor.Student.StudentID {
		return validationErr("partner_id", "cannot partner with yourself")
	}
	return nil
}

func validateCompanyPayload(project *models.Project, req *CreateProposalRequest) error {
	if project.Type != models.ProjectTypeInternship {
		return validationErr("type", "companies can only submit Internship projects")
	}
	if req.InternshipDetails == nil {
		return validationErr("internship_details", "internship details are required")
	}
	if req.InternshipDetails.Duration < MinInternshipMonths || req.InternshipDetails.Duration > MaxInternshipMonths {
		return validationErr("internship_details.duration", "internship duration must be between 4 and 12 months")
	}
	if req.InternshipDetails.Location == "" {
		return validationErr("internship_details.location", "internship location is required")
	}
	return nil
}

// BuildAdditionalDetails assembles the JSON payload persisted with the
// proposal. Company internship details are folded in so the stored shape
// matches the proposer type.
func BuildAdditionalDetails(actor *models.User, req *CreateProposalRequest) models.JSONMap {
	details := models.JSONMap{}
	for k, v := range req.AdditionalDetails {
		details[k] = v
	}
	if actor.Role == models.RoleStudent && req.PartnerID != nil {
		details["partner_id"] = *req.PartnerID
	}
	if actor.Role == models.RoleCompany && req.InternshipDetails != nil {
		internship := map[string]interface{}{
			"duration": req.InternshipDetails.Duration,
			"location": req.InternshipDetails.Location,
		}
		if req.InternshipDetails.Salary != nil {
			internship["salary"] = *req.InternshipDetails.Salary
		}
		details["internship_details"] = internship
	}
	if len(details) == 0 {
		return nil
	}
	return details
}

// CheckStudentQuota enforces the non-rejected proposal limit for student
// submitters. Rejected proposals fall out of the count, so resubmission
// after a rejection is always possible.
func CheckStudentQuota(tx *gorm.DB, actor *models.User) error {
	if actor.Role != models.RoleStudent {
		return nil
	}
	count, err := countActiveProposals(tx, actor.UserID)
	if err != nil {
		return persistenceErr(err)
	}
	if count >= models.MaxStudentProposals {
		return &QuotaError{Limit: models.MaxStudentProposals}
	}
	return nil
}

// NextProposalOrder computes the 1-based sequence number for a new
// proposal among the submitter's active proposals.
func NextProposalOrder(tx *gorm.DB, userID int) (int, error) {
	count, err := countActiveProposals(tx, userID)
	if err != nil {
		return 0, persistenceErr(err)
	}
	return int(count) + 1, nil
}

func countActiveProposals(tx *gorm.DB, userID int) (int64, error) {
	var count int64
	err := tx.Model(&models.ProjectProposal{}).
		Where("submitted_by = ? AND proposal_status <> ?", userID, models.ProposalStatusRejected).
		Count(&count).Error
	return count, err
}
