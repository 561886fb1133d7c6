package models

import (
	"crypto/rand"
	"encoding/base64"
	"time"
)

// ContractorAccessToken is a magic link: a capability letting an anonymous
// bearer act as one contractor within one project. ContractorID may be nil
// until the first successful use binds it (see services.AccessService).
// Tokens are deactivated on regeneration, never deleted.
type ContractorAccessToken struct {
	ID           uint        `gorm:"primaryKey" json:"id"`
	ProjectID    uint        `gorm:"not null;index" json:"project_id"`
	ContractorID *uint       `gorm:"index" json:"contractor_id"`
	Contractor   *Contractor `gorm:"foreignKey:ContractorID" json:"contractor,omitempty"`
	Token        string      `gorm:"type:varchar(64);uniqueIndex;not null" json:"token"`
	Active       bool        `gorm:"default:true" json:"active"`
	ExpiresAt    *time.Time  `json:"expires_at"`
	CreatedAt    time.Time   `json:"created_at"`
	LastUsedAt   *time.Time  `json:"last_used_at"`
}

// GenerateAccessToken returns a URL-safe random token string.
func GenerateAccessToken() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

// IsValid reports whether the token may still be used.
func (t *ContractorAccessToken) IsValid() bool {
	if !t.Active {
		return false
	}
	if t.ExpiresAt != nil && time.Now().After(*t.ExpiresAt) {
		return false
	}
	return true
}
