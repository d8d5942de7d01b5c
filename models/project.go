package models

import "time"

// Project status values
const (
	ProjectStatusProposed   = "Proposed"
	ProjectStatusValidated  = "Validated"
	ProjectStatusAssigned   = "Assigned"
	ProjectStatusInProgress = "InProgress"
	ProjectStatusCompleted  = "Completed"
)

// Project type values
const (
	ProjectTypeClassical  = "Classical"
	ProjectTypeInnovative = "Innovative"
	ProjectTypeStartUp    = "StartUp"
	ProjectTypePatent     = "Patent"
	ProjectTypeInternship = "Internship"
)

// ProjectOptions lists the department tracks a project can belong to.
var ProjectOptions = []string{"GL", "IA", "RSD", "SIC"}

// Project represents the projects table
type Project struct {
	ProjectID       int        `gorm:"primaryKey;column:project_id" json:"project_id"`
	Title           string     `gorm:"column:title" json:"title"`
	Summary         string     `gorm:"column:summary" json:"summary"`
	Technologies    string     `gorm:"column:technologies" json:"technologies"`
	MaterialNeeds   *string    `gorm:"column:material_needs" json:"material_needs,omitempty"`
	Type            string     `gorm:"column:type" json:"type"`
	Option          string     `gorm:"column:option" json:"option"`
	Status          string     `gorm:"column:status" json:"status"`
	SubmittedBy     int        `gorm:"column:submitted_by" json:"submitted_by"`
	SubmissionDate  time.Time  `gorm:"column:submission_date" json:"submission_date"`
	LastUpdatedDate time.Time  `gorm:"column:last_updated_date" json:"last_updated_date"`
	CreateAt        *time.Time `gorm:"column:created_at" json:"created_at"`
	UpdateAt        *time.Time `gorm:"column:updated_at" json:"updated_at"`

	// Relations
	Submitter *User            `gorm:"foreignKey:SubmittedBy;references:UserID" json:"submitter,omitempty"`
	Proposal  *ProjectProposal `gorm:"foreignKey:ProjectID;references:ProjectID" json:"proposal,omitempty"`
}

// TableName overrides the table name for Project
func (Project) TableName() string {
	return "projects"
}

// IsValidated reports whether the project has been validated by a
// responsible teacher. Validated projects keep their descriptive fields
// frozen; only downstream assignment and defense workflows touch them.
func (p *Project) IsValidated() bool {
	return p.Status == ProjectStatusValidated
}

// IsOpenForProposals reports whether the project can still receive a
// proposal negotiation.
func (p *Project) IsOpenForProposals() bool {
	return p.Status == ProjectStatusProposed
}

// ValidOptionValue checks a department track value against the known set.
func ValidOptionValue(option string) bool {
	for _, o := range ProjectOptions {
		if o == option {
			return true
		}
	}
	return false
}
