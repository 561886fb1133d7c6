package models

import "time"

// Project is the drydock-period container: one ship, one maintenance window,
// one supervisor, many penetrations.
type Project struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	Name             string     `gorm:"type:varchar(200);not null" json:"name"`
	ShipName         string     `gorm:"type:varchar(200);not null" json:"ship_name"`
	DrydockLocation  string     `gorm:"type:varchar(200);not null" json:"drydock_location"`
	StartDate        time.Time  `gorm:"not null" json:"start_date"`
	EmbarkationDate  time.Time  `gorm:"not null" json:"embarkation_date"`
	Status           string     `gorm:"type:varchar(50);not null;default:'active'" json:"status"`
	Notes            string     `gorm:"type:text" json:"notes"`
	SupervisorID     *uint      `gorm:"index" json:"supervisor_id"`
	Supervisor       *User      `gorm:"foreignKey:SupervisorID" json:"-"`
	InviteCode       string     `gorm:"type:varchar(32);uniqueIndex" json:"invite_code"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`

	Penetrations []Penetration `gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE" json:"-"`
}

// ProjectStats is the per-status rollup shown on project listings.
type ProjectStats struct {
	Total      int64 `json:"total_penetrations"`
	NotStarted int64 `json:"not_started"`
	Open       int64 `json:"open"`
	Closed     int64 `json:"closed"`
	Verified   int64 `json:"verified"`
}
