package models

import "time"

// Activity action kinds. Authenticated status changes are recorded as
// status_changed; magic-link submissions keep the original opened/closed
// wording; a same-status request is recorded as note_added.
const (
	ActionStatusChanged = "status_changed"
	ActionNoteAdded     = "note_added"
	ActionOpened        = "opened"
	ActionClosed        = "closed"
)

// PenActivity is one immutable audit row per status change or note. Rows are
// only ever appended; exactly one of UserID / ContractorName is populated
// (ContractorName is the attribution snapshot for magic-link submissions).
type PenActivity struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	PenetrationID  uint      `gorm:"not null;index" json:"penetration_id"`
	UserID         *uint     `json:"user_id"`
	User           *User     `gorm:"foreignKey:UserID" json:"-"`
	ContractorName string    `gorm:"type:varchar(100)" json:"contractor_name,omitempty"`
	Action         string    `gorm:"type:varchar(20);not null" json:"action"`
	PreviousStatus string    `gorm:"type:varchar(20)" json:"previous_status"`
	NewStatus      string    `gorm:"type:varchar(20)" json:"new_status"`
	Notes          string    `gorm:"type:text" json:"notes"`
	Timestamp      time.Time `gorm:"autoCreateTime;index" json:"timestamp"`
}

// ActorName returns the display name for the acting principal: the username
// for authenticated users, otherwise the contractor-name snapshot.
func (a *PenActivity) ActorName() string {
	if a.User != nil {
		return a.User.Username
	}
	return a.ContractorName
}
