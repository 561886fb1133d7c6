package services

import (
	"errors"
	"time"

	"github.com/penlog-io/penlog/models"
	"github.com/penlog-io/penlog/utils"
	"gorm.io/gorm"
)

// PenetrationService owns the penetration lifecycle: it validates a requested
// status transition, applies timestamp side effects and appends the audit
// activity, all inside a single transaction.
type PenetrationService struct {
	DB *gorm.DB
}

func NewPenetrationService(db *gorm.DB) *PenetrationService {
	return &PenetrationService{DB: db}
}

// TransitionResult is the snapshot returned after a successful transition.
type TransitionResult struct {
	Penetration models.Penetration `json:"penetration"`
	Activity    models.PenActivity `json:"activity"`
}

// CheckPhotoEvidence counts photos attached to the penetration and reports
// whether the close gate is satisfied. The count is taken inside the caller's
// transaction so a photo deleted mid-flight cannot slip past the gate.
func (s *PenetrationService) CheckPhotoEvidence(tx *gorm.DB, penID uint) (bool, int, error) {
	var count int64
	if err := tx.Model(&models.Photo{}).Where("penetration_id = ?", penID).Count(&count).Error; err != nil {
		return false, 0, err
	}
	return count >= models.MinClosePhotos, int(count), nil
}

// RequestTransition moves a penetration into newStatus on behalf of the
// principal. Re-requesting the current status is not an error: it records a
// note_added activity and leaves the pen untouched, so notes are first-class
// audited events. The status write is guarded on the previously observed
// status; a lost race returns ErrStorageConflict instead of double-applying.
func (s *PenetrationService) RequestTransition(penID uint, newStatus, notes string, p *Principal) (*TransitionResult, error) {
	if !models.ValidStatus(newStatus) {
		return nil, utils.ErrInvalidStatus
	}

	var result TransitionResult
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var pen models.Penetration
		if err := tx.Preload("Contractor").First(&pen, penID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrNotFound
			}
			return err
		}

		if err := p.CanTransition(&pen, newStatus); err != nil {
			return err
		}

		if newStatus == models.StatusClosed {
			ok, count, err := s.CheckPhotoEvidence(tx, pen.ID)
			if err != nil {
				return err
			}
			if !ok {
				return &utils.InsufficientEvidenceError{PhotoCount: count, Required: models.MinClosePhotos}
			}
		}

		prev := pen.Status
		now := time.Now().UTC()
		openedAt := pen.OpenedAt
		completedAt := pen.CompletedAt

		switch newStatus {
		case models.StatusOpen:
			if openedAt == nil {
				openedAt = &now
			}
			if prev == models.StatusClosed || prev == models.StatusVerified {
				completedAt = nil
			}
		case models.StatusClosed, models.StatusVerified:
			if completedAt == nil {
				completedAt = &now
			}
		case models.StatusNotStarted:
			openedAt = nil
			completedAt = nil
		}

		res := tx.Model(&models.Penetration{}).
			Where("id = ? AND status = ?", pen.ID, prev).
			Updates(map[string]interface{}{
				"status":       newStatus,
				"opened_at":    openedAt,
				"completed_at": completedAt,
				"updated_at":   now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Another request won the race; the caller sees the conflict and
			// can re-read the updated pen.
			return utils.ErrStorageConflict
		}

		activity := models.PenActivity{
			PenetrationID:  pen.ID,
			UserID:         p.UserID,
			Action:         transitionAction(prev, newStatus, p),
			PreviousStatus: prev,
			NewStatus:      newStatus,
			Notes:          notes,
		}
		if p.ViaToken {
			activity.ContractorName = p.ContractorName
		}
		if err := tx.Create(&activity).Error; err != nil {
			return err
		}

		pen.Status = newStatus
		pen.OpenedAt = openedAt
		pen.CompletedAt = completedAt
		pen.UpdatedAt = now
		result.Penetration = pen
		result.Activity = activity
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// transitionAction picks the audit action kind. Magic-link submissions keep
// the opened/closed wording of the reporting form; authenticated changes are
// status_changed; a same-status request is a note.
func transitionAction(prev, next string, p *Principal) string {
	if prev == next {
		return models.ActionNoteAdded
	}
	if p.ViaToken {
		switch next {
		case models.StatusOpen:
			return models.ActionOpened
		case models.StatusClosed:
			return models.ActionClosed
		}
	}
	return models.ActionStatusChanged
}
