package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Proposal status values
const (
	ProposalStatusPending  = "Pending"
	ProposalStatusEdited   = "Edited"
	ProposalStatusAccepted = "Accepted"
	ProposalStatusApproved = "Approved"
	ProposalStatusRejected = "Rejected"
)

// MaxStudentProposals is the submission quota: a student may hold at most
// this many proposals that have not been rejected.
const MaxStudentProposals = 3

// JSONMap maps a MySQL JSON column onto a generic object.
type JSONMap map[string]interface{}

// Value implements driver.Valuer.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type for JSONMap: %T", value)
	}
	if len(data) == 0 {
		*m = nil
		return nil
	}
	return json.Unmarshal(data, m)
}

// ProjectProposal represents the project_proposals table
type ProjectProposal struct {
	ProposalID          int        `gorm:"primaryKey;column:proposal_id" json:"proposal_id"`
	ProjectID           int        `gorm:"column:project_id" json:"project_id"`
	SubmittedBy         int        `gorm:"column:submitted_by" json:"submitted_by"`
	ProposerType        string     `gorm:"column:proposer_type" json:"proposer_type"`
	CoSupervisorName    *string    `gorm:"column:co_supervisor_name" json:"co_supervisor_name,omitempty"`
	CoSupervisorSurname *string    `gorm:"column:co_supervisor_surname" json:"co_supervisor_surname,omitempty"`
	AdditionalDetails   JSONMap    `gorm:"column:additional_details;type:json" json:"additional_details,omitempty"`
	ProposalOrder       int        `gorm:"column:proposal_order" json:"proposal_order"`
	ProposalStatus      string     `gorm:"column:proposal_status" json:"proposal_status"`
	ReviewComments      *string    `gorm:"column:review_comments" json:"review_comments,omitempty"`
	IsFinalVersion      bool       `gorm:"column:is_final_version" json:"is_final_version"`
	EditedBy            *int       `gorm:"column:edited_by" json:"edited_by,omitempty"`
	EditedAt            *time.Time `gorm:"column:edited_at" json:"edited_at,omitempty"`
	EditAccepted        *bool      `gorm:"column:edit_accepted" json:"edit_accepted,omitempty"`
	LastEditedVersion   JSONMap    `gorm:"column:last_edited_version;type:json" json:"last_edited_version,omitempty"`
	CreateAt            *time.Time `gorm:"column:created_at" json:"created_at"`
	UpdateAt            *time.Time `gorm:"column:updated_at" json:"updated_at"`

	// Relations
	Project   *Project `gorm:"foreignKey:ProjectID;references:ProjectID" json:"project,omitempty"`
	Submitter *User    `gorm:"foreignKey:SubmittedBy;references:UserID" json:"submitter,omitempty"`
	Editor    *User    `gorm:"foreignKey:EditedBy;references:UserID" json:"editor,omitempty"`
}

// TableName overrides the table name for ProjectProposal
func (ProjectProposal) TableName() string {
	return "project_proposals"
}

func (p *ProjectProposal) IsPending() bool {
	return p.ProposalStatus == ProposalStatusPending
}

func (p *ProjectProposal) IsApproved() bool {
	return p.ProposalStatus == ProposalStatusApproved
}

func (p *ProjectProposal) IsRejected() bool {
	return p.ProposalStatus == ProposalStatusRejected
}

// IsTerminal reports whether the proposal has reached a final decision.
// Approved and Rejected end the negotiation for this proposal instance.
func (p *ProjectProposal) IsTerminal() bool {
	return p.IsApproved() || p.IsRejected()
}

// NeedsSubmitterReview reports whether a teacher edit is awaiting the
// submitter's accept/reject response.
func (p *ProjectProposal) NeedsSubmitterReview() bool {
	return p.ProposalStatus == ProposalStatusEdited &&
		p.EditAccepted != nil && !*p.EditAccepted
}

// CanBeModified reports whether content fields may still change. Final
// versions and terminal proposals are frozen.
func (p *ProjectProposal) CanBeModified() bool {
	return (p.IsPending() || p.NeedsSubmitterReview()) && !p.IsFinalVersion
}

// CanBeEditedBy reports whether the given user may suggest changes.
// Only a teacher who is not the submitter may edit, and only while the
// proposal is still negotiable.
func (p *ProjectProposal) CanBeEditedBy(user *User) bool {
	return user.Role == RoleTeacher &&
		user.UserID != p.SubmittedBy &&
		(p.IsPending() || p.NeedsSubmitterReview()) &&
		!p.IsTerminal() &&
		!p.IsFinalVersion
}

// CanBeDecided reports whether a responsible teacher may still approve or
// reject the proposal. Accepted is deliberately non-terminal here.
func (p *ProjectProposal) CanBeDecided() bool {
	return p.ProposalStatus == ProposalStatusPending ||
		p.ProposalStatus == ProposalStatusAccepted
}

// CanBeWithdrawn reports whether the submitter may still delete the
// proposal. Accepted and Approved proposals are locked.
func (p *ProjectProposal) CanBeWithdrawn() bool {
	return p.ProposalStatus != ProposalStatusAccepted &&
		p.ProposalStatus != ProposalStatusApproved
}

// Snapshot captures the editable content fields so a rejected edit can be
// reverted exactly.
func (p *ProjectProposal) Snapshot() JSONMap {
	snap := JSONMap{
		"co_supervisor_name":    nil,
		"co_supervisor_surname": nil,
		"additional_details":    nil,
	}
	if p.CoSupervisorName != nil {
		snap["co_supervisor_name"] = *p.CoSupervisorName
	}
	if p.CoSupervisorSurname != nil {
		snap["co_supervisor_surname"] = *p.CoSupervisorSurname
	}
	if p.AdditionalDetails != nil {
		snap["additional_details"] = map[string]interface{}(p.AdditionalDetails)
	}
	return snap
}

// RestoreSnapshot writes the captured content fields back onto the
// proposal. It fails if no snapshot is stored.
func (p *ProjectProposal) RestoreSnapshot() error {
	if p.LastEditedVersion == nil {
		return errors.New("proposal has no stored pre-edit version")
	}
	p.CoSupervisorName = snapshotString(p.LastEditedVersion, "co_supervisor_name")
	p.CoSupervisorSurname = snapshotString(p.LastEditedVersion, "co_supervisor_surname")
	if raw, ok := p.LastEditedVersion["additional_details"].(map[string]interface{}); ok {
		p.AdditionalDetails = JSONMap(raw)
	} else {
		p.AdditionalDetails = nil
	}
	return nil
}

func snapshotString(snap JSONMap, key string) *string {
	if raw, ok := snap[key].(string); ok {
		return &raw
	}
	return nil
}
