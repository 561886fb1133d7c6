package utils

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// Error taxonomy surfaced by the core services. Controllers map these onto
// HTTP status codes; nothing is swallowed on the way out.
var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrNotFound        = errors.New("not found")
	ErrInvalidStatus   = errors.New("invalid status")
	ErrTokenInvalid    = errors.New("access link is invalid, expired or revoked")
	ErrStorageConflict = errors.New("conflicting concurrent update, please retry")
)

// DuplicateIdentifierError reports a pen_id collision within its
// (project, contractor) scope.
type DuplicateIdentifierError struct {
	PenID          string
	ContractorName string
}

func (e *DuplicateIdentifierError) Error() string {
	who := e.ContractorName
	if who == "" {
		who = "this contractor"
	}
	return fmt.Sprintf("pen %s already exists for %s in this project", e.PenID, who)
}

// InsufficientEvidenceError is returned when a close is attempted with fewer
// than the required number of photos. It carries the current count so the
// client can say exactly how many more are needed.
type InsufficientEvidenceError struct {
	PhotoCount int
	Required   int
}

func (e *InsufficientEvidenceError) Error() string {
	return fmt.Sprintf("cannot close: only %d photo(s) attached, minimum %d photos required",
		e.PhotoCount, e.Required)
}

// IsDuplicateKey reports whether err is a unique-constraint violation, either
// in gorm's translated form or in the raw driver wording (SQLite in dev and
// tests, MySQL in production).
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "Duplicate entry")
}
