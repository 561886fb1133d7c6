package models

import "time"

// User roles.
const (
	RoleAdmin      = "admin"
	RoleSupervisor = "supervisor"
	RoleContractor = "contractor"
)

type User struct {
	ID           uint        `gorm:"primaryKey" json:"id"`
	Username     string      `gorm:"type:varchar(80);unique;not null" json:"username"`
	Email        string      `gorm:"type:varchar(120);unique;not null" json:"email"`
	PasswordHash string      `gorm:"type:varchar(256);not null" json:"-"`
	Role         string      `gorm:"type:varchar(20);not null;default:'contractor'" json:"role"`
	ContractorID *uint       `json:"contractor_id"`
	Contractor   *Contractor `gorm:"foreignKey:ContractorID" json:"contractor,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
}
