package services

import (
	"errors"
	"strings"
	"time"

	"github.com/penlog-io/penlog/models"
	"github.com/penlog-io/penlog/utils"
	"gorm.io/gorm"
)

// AccessService resolves magic-link tokens and handles the one-way binding
// of an unbound token to a contractor on first use.
type AccessService struct {
	DB *gorm.DB
}

func NewAccessService(db *gorm.DB) *AccessService {
	return &AccessService{DB: db}
}

// ResolveToken looks up and validates an opaque bearer token. Unknown,
// revoked and expired tokens all come back as ErrTokenInvalid.
func (s *AccessService) ResolveToken(token string) (*models.ContractorAccessToken, error) {
	var tok models.ContractorAccessToken
	err := s.DB.Preload("Contractor").Where("token = ?", token).First(&tok).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrTokenInvalid
		}
		return nil, err
	}
	if !tok.IsValid() {
		return nil, utils.ErrTokenInvalid
	}
	return &tok, nil
}

// TouchLastUsed records a successful use of the token.
func (s *AccessService) TouchLastUsed(tok *models.ContractorAccessToken) {
	now := time.Now().UTC()
	if err := s.DB.Model(&models.ContractorAccessToken{}).
		Where("id = ?", tok.ID).
		Update("last_used_at", now).Error; err != nil {
		utils.ErrorLogger.Printf("failed to update token last_used_at: %v", err)
		return
	}
	tok.LastUsedAt = &now
}

// ResolveContractorOnAccess materializes the contractor identity for a token.
// For a bound token it simply returns the bound contractor. For an unbound
// token it finds or creates a contractor matching companyName and binds it
// with a compare-and-set: only the first commit wins, and a loser re-reads
// the token and proceeds against whoever won. The bind is irreversible except
// through the explicit contractor merge operation.
func (s *AccessService) ResolveContractorOnAccess(tx *gorm.DB, tok *models.ContractorAccessToken, companyName string) (*models.Contractor, error) {
	if tok.ContractorID != nil {
		var contractor models.Contractor
		if err := tx.First(&contractor, *tok.ContractorID).Error; err != nil {
			return nil, err
		}
		return &contractor, nil
	}

	companyName = strings.TrimSpace(companyName)
	if companyName == "" {
		return nil, errors.New("company name required to activate this access link")
	}

	var contractor models.Contractor
	created := false
	err := tx.Where("name = ?", companyName).First(&contractor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		contractor = models.Contractor{Name: companyName, Active: true}
		if err := tx.Create(&contractor).Error; err != nil {
			// Unique-name race: someone created the same contractor between
			// our read and write. Re-read and continue with theirs.
			if reread := tx.Where("name = ?", companyName).First(&contractor).Error; reread != nil {
				return nil, err
			}
		} else {
			created = true
		}
	} else if err != nil {
		return nil, err
	}

	res := tx.Model(&models.ContractorAccessToken{}).
		Where("id = ? AND contractor_id IS NULL", tok.ID).
		Update("contractor_id", contractor.ID)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// Lost the first-use race: the token is bound now. Honor the winner,
		// and drop the contractor row we just minted for the losing name so
		// it does not linger unreferenced.
		if created {
			if err := tx.Delete(&contractor).Error; err != nil {
				return nil, err
			}
		}
		var bound models.ContractorAccessToken
		if err := tx.First(&bound, tok.ID).Error; err != nil {
			return nil, err
		}
		if bound.ContractorID == nil {
			return nil, utils.ErrStorageConflict
		}
		tok.ContractorID = bound.ContractorID
		var winner models.Contractor
		if err := tx.First(&winner, *bound.ContractorID).Error; err != nil {
			return nil, err
		}
		return &winner, nil
	}

	tok.ContractorID = &contractor.ID
	return &contractor, nil
}

// MergeContractors reassigns every penetration, user and access token from
// the source contractor to the target, then deletes the source. All or
// nothing.
func (s *AccessService) MergeContractors(sourceID, targetID uint) (*models.Contractor, error) {
	if sourceID == targetID {
		return nil, errors.New("cannot merge contractor with itself")
	}

	var target models.Contractor
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		var source models.Contractor
		if err := tx.First(&source, sourceID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrNotFound
			}
			return err
		}
		if err := tx.First(&target, targetID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrNotFound
			}
			return err
		}

		if err := tx.Model(&models.Penetration{}).
			Where("contractor_id = ?", sourceID).
			Update("contractor_id", targetID).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.User{}).
			Where("contractor_id = ?", sourceID).
			Update("contractor_id", targetID).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.ContractorAccessToken{}).
			Where("contractor_id = ?", sourceID).
			Update("contractor_id", targetID).Error; err != nil {
			return err
		}

		return tx.Delete(&source).Error
	})
	if err != nil {
		return nil, err
	}
	return &target, nil
}
