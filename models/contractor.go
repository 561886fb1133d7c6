package models

import "time"

// Contractor is a company entity referenced by penetrations, users and
// access tokens. References are non-owning; the merge operation reassigns
// them rather than transferring ownership.
type Contractor struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Name          string    `gorm:"type:varchar(100);unique;not null" json:"name"`
	ContactPerson string    `gorm:"type:varchar(100)" json:"contact_person"`
	ContactEmail  string    `gorm:"type:varchar(120)" json:"contact_email"`
	ContactPhone  string    `gorm:"type:varchar(20)" json:"contact_phone"`
	Active        bool      `gorm:"default:true" json:"active"`
	CreatedAt     time.Time `json:"created_at"`
}
