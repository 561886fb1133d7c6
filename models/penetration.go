package models

import "time"

// Penetration statuses. The lifecycle is an unordered graph: a pen may move
// from any status to any other (reopening a badly sealed pen is routine).
const (
	StatusNotStarted = "not_started"
	StatusOpen       = "open"
	StatusClosed     = "closed"
	StatusVerified   = "verified"
)

// Penetration priorities.
const (
	PriorityCritical  = "critical"
	PriorityImportant = "important"
	PriorityRoutine   = "routine"
)

// MinClosePhotos is the minimum number of photos that must be attached
// before a penetration may be marked closed.
const MinClosePhotos = 2

// Penetration is one physical hull/fire-zone seal location tracked through
// its repair and inspection lifecycle.
type Penetration struct {
	ID           uint        `gorm:"primaryKey" json:"id"`
	ProjectID    uint        `gorm:"not null;uniqueIndex:uniq_pen_per_contractor" json:"project_id"`
	PenID        string      `gorm:"type:varchar(20);not null;uniqueIndex:uniq_pen_per_contractor" json:"pen_id"`
	Deck         string      `gorm:"type:varchar(50);not null" json:"deck"`
	FireZone     string      `gorm:"type:varchar(20)" json:"fire_zone"`
	Frame        string      `gorm:"type:varchar(20)" json:"frame"`
	Location     string      `gorm:"type:varchar(200)" json:"location"`
	PenType      string      `gorm:"type:varchar(50)" json:"pen_type"`
	Size         string      `gorm:"type:varchar(50)" json:"size"`
	ContractorID *uint       `gorm:"uniqueIndex:uniq_pen_per_contractor" json:"contractor_id"`
	Contractor   *Contractor `gorm:"foreignKey:ContractorID" json:"contractor,omitempty"`
	Status       string      `gorm:"type:varchar(20);not null;default:'not_started'" json:"status"`
	Priority     string      `gorm:"type:varchar(20);not null;default:'routine'" json:"priority"`
	OpenedAt     *time.Time  `json:"opened_at"`
	CompletedAt  *time.Time  `json:"completed_at"`
	Notes        string      `gorm:"type:text" json:"notes"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`

	Activities []PenActivity `gorm:"foreignKey:PenetrationID;constraint:OnDelete:CASCADE" json:"activities,omitempty"`
	Photos     []Photo       `gorm:"foreignKey:PenetrationID;constraint:OnDelete:CASCADE" json:"photos,omitempty"`
}

// ValidStatus reports whether s is one of the four lifecycle statuses.
func ValidStatus(s string) bool {
	switch s {
	case StatusNotStarted, StatusOpen, StatusClosed, StatusVerified:
		return true
	}
	return false
}

// ValidPriority reports whether p is a known priority.
func ValidPriority(p string) bool {
	switch p {
	case PriorityCritical, PriorityImportant, PriorityRoutine:
		return true
	}
	return false
}
