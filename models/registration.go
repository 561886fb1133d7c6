package models

import "time"

// Registration review statuses (shared with AccessRequest).
const (
	RegistrationPending  = "pending"
	RegistrationApproved = "approved"
	RegistrationRejected = "rejected"
)

// ContractorRegistration is a pending contractor sign-up submitted through a
// project invite code, awaiting supervisor review.
type ContractorRegistration struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	ProjectID       uint       `gorm:"not null;index" json:"project_id"`
	ContractorID    *uint      `json:"contractor_id"`
	CompanyName     string     `gorm:"type:varchar(100);not null" json:"company_name"`
	ContactPerson   string     `gorm:"type:varchar(100);not null" json:"contact_person"`
	ContactEmail    string     `gorm:"type:varchar(120);not null" json:"contact_email"`
	Status          string     `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	RejectionReason string     `gorm:"type:text" json:"rejection_reason,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	ReviewedAt      *time.Time `json:"reviewed_at"`
	ReviewedBy      *uint      `json:"reviewed_by"`
}
