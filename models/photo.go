package models

import "time"

// Photo categories.
const (
	PhotoBefore  = "before"
	PhotoAfter   = "after"
	PhotoIssue   = "issue"
	PhotoGeneral = "general"
)

// Photo is evidence attached to a penetration. UserID is nil when the photo
// arrived through a magic link. The row count per penetration feeds the
// photo evidence gate.
type Photo struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	PenetrationID uint      `gorm:"not null;index" json:"penetration_id"`
	UserID        *uint     `json:"user_id"`
	Filename      string    `gorm:"type:varchar(255);not null" json:"filename"`
	Filepath      string    `gorm:"type:varchar(500);not null" json:"filepath"`
	Caption       string    `gorm:"type:varchar(200)" json:"caption"`
	PhotoType     string    `gorm:"type:varchar(20);not null;default:'general'" json:"photo_type"`
	UploadedAt    time.Time `gorm:"autoCreateTime" json:"uploaded_at"`
}
