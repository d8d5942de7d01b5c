package models

import (
	"time"
)

// Role values stored in users.role
const (
	RoleAdministrator = "Administrator"
	RoleTeacher       = "Teacher"
	RoleStudent       = "Student"
	RoleCompany       = "Company"
)

type User struct {
	UserID                      int        `gorm:"primaryKey;column:user_id" json:"user_id"`
	Email                       string     `gorm:"column:email;unique" json:"email"`
	Password                    string     `gorm:"column:password" json:"-"`
	TemporaryPassword           *string    `gorm:"column:temporary_password" json:"-"`
	TemporaryPasswordExpiration *time.Time `gorm:"column:temporary_password_expiration" json:"-"`
	Role                        string     `gorm:"column:role" json:"role"`
	IsActive                    bool       `gorm:"column:is_active" json:"is_active"`
	MustChangePassword          bool       `gorm:"column:must_change_password" json:"must_change_password"`
	ProfilePictureURL           *string    `gorm:"column:profile_picture_url" json:"profile_picture_url,omitempty"`
	LanguagePreference          string     `gorm:"column:language_preference" json:"language_preference"`
	DateOfBirth                 *time.Time `gorm:"column:date_of_birth" json:"date_of_birth,omitempty"`
	LastLogin                   *time.Time `gorm:"column:last_login" json:"last_login,omitempty"`
	CreateAt                    *time.Time `gorm:"column:created_at" json:"created_at"`
	UpdateAt                    *time.Time `gorm:"column:updated_at" json:"updated_at"`

	// Relations
	Teacher *Teacher `gorm:"foreignKey:UserID;references:UserID" json:"teacher,omitempty"`
	Student *Student `gorm:"foreignKey:UserID;references:UserID" json:"student,omitempty"`
	Company *Company `gorm:"foreignKey:UserID;references:UserID" json:"company,omitempty"`
}

type Teacher struct {
	TeacherID       int        `gorm:"primaryKey;column:teacher_id" json:"teacher_id"`
	UserID          int        `gorm:"column:user_id;unique" json:"user_id"`
	Name            string     `gorm:"column:name" json:"name"`
	Surname         string     `gorm:"column:surname" json:"surname"`
	RecruitmentDate *time.Time `gorm:"column:recruitment_date" json:"recruitment_date,omitempty"`
	Grade           string     `gorm:"column:grade" json:"grade"`
	IsResponsible   bool       `gorm:"column:is_responsible" json:"is_responsible"`
	ResearchDomain  *string    `gorm:"column:research_domain" json:"research_domain,omitempty"`
	CreateAt        *time.Time `gorm:"column:created_at" json:"created_at"`
	UpdateAt        *time.Time `gorm:"column:updated_at" json:"updated_at"`
}

type Student struct {
	StudentID      int        `gorm:"primaryKey;column:student_id" json:"student_id"`
	UserID         int        `gorm:"column:user_id;unique" json:"user_id"`
	Name           string     `gorm:"column:name" json:"name"`
	Surname        string     `gorm:"column:surname" json:"surname"`
	MasterOption   string     `gorm:"column:master_option" json:"master_option"`
	OverallAverage float64    `gorm:"column:overall_average" json:"overall_average"`
	AdmissionYear  int        `gorm:"column:admission_year" json:"admission_year"`
	CreateAt       *time.Time `gorm:"column:created_at" json:"created_at"`
	UpdateAt       *time.Time `gorm:"column:updated_at" json:"updated_at"`
}

type Company struct {
	CompanyID      int        `gorm:"primaryKey;column:company_id" json:"company_id"`
	UserID         int        `gorm:"column:user_id;unique" json:"user_id"`
	CompanyName    string     `gorm:"column:company_name" json:"company_name"`
	ContactName    string     `gorm:"column:contact_name" json:"contact_name"`
	ContactSurname string     `gorm:"column:contact_surname" json:"contact_surname"`
	Industry       string     `gorm:"column:industry" json:"industry"`
	Address        string     `gorm:"column:address" json:"address"`
	CreateAt       *time.Time `gorm:"column:created_at" json:"created_at"`
	UpdateAt       *time.Time `gorm:"column:updated_at" json:"updated_at"`
}

// TableName overrides
func (User) TableName() string {
	return "users"
}

func (Teacher) TableName() string {
	return "teachers"
}

func (Student) TableName() string {
	return "students"
}

func (Company) TableName() string {
	return "companies"
}

// IsResponsibleTeacher reports whether the user carries the responsible
// teacher capability. The Teacher relation must be preloaded.
func (u *User) IsResponsibleTeacher() bool {
	return u.Role == RoleTeacher && u.Teacher != nil && u.Teacher.IsResponsible
}
