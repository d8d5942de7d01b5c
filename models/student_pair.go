package models

import "time"

// Pair status values
const (
	PairStatusProposed = "Proposed"
	PairStatusAccepted = "Accepted"
	PairStatusRejected = "Rejected"
)

type StudentPair struct {
	PairID       int        `gorm:"primaryKey;column:pair_id" json:"pair_id"`
	Student1ID   int        `gorm:"column:student1_id" json:"student1_id"`
	Student2ID   int        `gorm:"column:student2_id" json:"student2_id"`
	Status       string     `gorm:"column:status" json:"status"`
	ProposedDate time.Time  `gorm:"column:proposed_date" json:"proposed_date"`
	UpdatedDate  *time.Time `gorm:"column:updated_date" json:"updated_date,omitempty"`

	// Relations
	Student1 *Student `gorm:"foreignKey:Student1ID;references:StudentID" json:"student1,omitempty"`
	Student2 *Student `gorm:"foreignKey:Student2ID;references:StudentID" json:"student2,omitempty"`
}

func (StudentPair) TableName() string { return "student_pairs" }
