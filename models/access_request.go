package models

import "time"

// AccessRequest is a request for platform access submitted from the public
// landing page, reviewed by an admin.
type AccessRequest struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	Name        string     `gorm:"type:varchar(100);not null" json:"name"`
	Email       string     `gorm:"type:varchar(120);not null;index" json:"email"`
	Company     string     `gorm:"type:varchar(200);not null" json:"company"`
	Role        string     `gorm:"type:varchar(100);not null" json:"role"`
	DrydockDate string     `gorm:"type:varchar(50)" json:"drydock_date,omitempty"`
	ReadyToTest bool       `gorm:"default:false" json:"ready_to_test"`
	Message     string     `gorm:"type:text" json:"message,omitempty"`
	Status      string     `gorm:"type:varchar(20);not null;default:'pending'" json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	ReviewedAt  *time.Time `json:"reviewed_at"`
	ReviewedBy  *uint      `json:"reviewed_by"`
	Notes       string     `gorm:"type:text" json:"notes,omitempty"`
}
