package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/penlog-io/penlog/feed"
	"github.com/penlog-io/penlog/models"
	"github.com/penlog-io/penlog/services"
	"github.com/penlog-io/penlog/utils"
)

// ReportController serves the public magic-link surface: no login, just a
// bearer token scoped to one project and (once bound) one contractor.
type ReportController struct {
	DB      *gorm.DB
	Access  *services.AccessService
	Service *services.PenetrationService
}

func NewReportController(db *gorm.DB) *ReportController {
	return &ReportController{
		DB:      db,
		Access:  services.NewAccessService(db),
		Service: services.NewPenetrationService(db),
	}
}

func (rc *ReportController) resolveToken(c *gin.Context) *models.ContractorAccessToken {
	tok, err := rc.Access.ResolveToken(c.Param("token"))
	if err != nil {
		if errors.Is(err, utils.ErrTokenInvalid) {
			utils.RespondError(c, http.StatusForbidden, err)
		} else {
			utils.RespondError(c, http.StatusInternalServerError, err)
		}
		return nil
	}
	return tok
}

// GetReportForm returns the data the contractor reporting form needs:
// project info, contractor (nil until the token is bound) and the
// contractor's pens.
func (rc *ReportController) GetReportForm(c *gin.Context) {
	tok := rc.resolveToken(c)
	if tok == nil {
		return
	}

	var project models.Project
	if err := rc.DB.First(&project, tok.ProjectID).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	var pens []models.Penetration
	if tok.ContractorID != nil {
		if err := rc.DB.Where("project_id = ? AND contractor_id = ?", tok.ProjectID, *tok.ContractorID).
			Find(&pens).Error; err != nil {
			utils.RespondError(c, http.StatusInternalServerError, err)
			return
		}
	}

	rc.Access.TouchLastUsed(tok)

	utils.RespondJSON(c, http.StatusOK, "Report form", gin.H{
		"project": gin.H{
			"id":               project.ID,
			"name":             project.Name,
			"ship_name":        project.ShipName,
			"drydock_location": project.DrydockLocation,
		},
		"contractor":   tok.Contractor,
		"penetrations": pens,
	})
}

// CreatePenViaToken lets a contractor add a pen they discovered on board,
// pre-assigned to the token's contractor. An unbound token is bound here on
// first use via the submitted company name.
func (rc *ReportController) CreatePenViaToken(c *gin.Context) {
	tok := rc.resolveToken(c)
	if tok == nil {
		return
	}

	var req struct {
		PenID       string `json:"pen_id" binding:"required"`
		Deck        string `json:"deck" binding:"required"`
		Location    string `json:"location" binding:"required"`
		FireZone    string `json:"fire_zone"`
		Frame       string `json:"frame"`
		PenType     string `json:"pen_type"`
		CompanyName string `json:"company_name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	var pen *models.Penetration
	err := rc.DB.Transaction(func(tx *gorm.DB) error {
		contractor, err := rc.Access.ResolveContractorOnAccess(tx, tok, req.CompanyName)
		if err != nil {
			return err
		}

		var existing models.Penetration
		err = tx.Where("project_id = ? AND contractor_id = ? AND pen_id = ?",
			tok.ProjectID, contractor.ID, req.PenID).First(&existing).Error
		if err == nil {
			return &utils.DuplicateIdentifierError{PenID: req.PenID, ContractorName: contractor.Name}
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		pen = &models.Penetration{
			ProjectID:    tok.ProjectID,
			ContractorID: &contractor.ID,
			PenID:        req.PenID,
			Deck:         req.Deck,
			Location:     req.Location,
			FireZone:     req.FireZone,
			Frame:        req.Frame,
			PenType:      req.PenType,
			Status:       models.StatusNotStarted,
			Priority:     models.PriorityRoutine,
		}
		if err := tx.Create(pen).Error; err != nil {
			// Lost a concurrent insert of the same pen_id to the unique
			// index; surface it as the duplicate it is.
			if utils.IsDuplicateKey(err) {
				return &utils.DuplicateIdentifierError{PenID: req.PenID, ContractorName: contractor.Name}
			}
			return err
		}
		return nil
	})
	if err != nil {
		var dup *utils.DuplicateIdentifierError
		if errors.As(err, &dup) {
			utils.RespondError(c, http.StatusBadRequest, err)
			return
		}
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	rc.Access.TouchLastUsed(tok)
	utils.RespondJSON(c, http.StatusCreated, "Penetration created", pen)
}

// SubmitReport applies an open/close report from the contractor form. The
// transition goes through the same state machine as authenticated updates;
// attribution in the ledger is by contractor-name snapshot.
func (rc *ReportController) SubmitReport(c *gin.Context) {
	tok := rc.resolveToken(c)
	if tok == nil {
		return
	}

	penID, err := strconv.ParseUint(c.Param("pen_id"), 10, 64)
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, errors.New("invalid penetration id"))
		return
	}

	var req struct {
		Action      string `json:"action" binding:"required"`
		Notes       string `json:"notes"`
		CompanyName string `json:"company_name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	var newStatus string
	switch req.Action {
	case "open":
		newStatus = models.StatusOpen
	case "close":
		newStatus = models.StatusClosed
	default:
		utils.RespondError(c, http.StatusBadRequest, errors.New(`invalid action, must be "open" or "close"`))
		return
	}

	// Bind the token first if this is its first use; the bind is its own
	// compare-and-set transaction, the transition another.
	var contractor *models.Contractor
	err = rc.DB.Transaction(func(tx *gorm.DB) error {
		var err error
		contractor, err = rc.Access.ResolveContractorOnAccess(tx, tok, req.CompanyName)
		return err
	})
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	principal := services.TokenPrincipal(tok)
	principal.ContractorID = &contractor.ID
	principal.ContractorName = contractor.Name

	result, err := rc.Service.RequestTransition(uint(penID), newStatus, req.Notes, principal)
	if err != nil {
		respondTransitionError(c, err)
		return
	}

	rc.Access.TouchLastUsed(tok)
	feed.BroadcastActivity(result.Activity, result.Penetration)
	utils.RespondJSON(c, http.StatusOK, "Report submitted", result)
}

// UploadPhotoViaToken attaches evidence to one of the contractor's pens.
func (rc *ReportController) UploadPhotoViaToken(c *gin.Context) {
	tok := rc.resolveToken(c)
	if tok == nil {
		return
	}
	if tok.ContractorID == nil {
		utils.RespondError(c, http.StatusBadRequest, errors.New("access link not yet activated, submit a report first"))
		return
	}

	var pen models.Penetration
	if err := rc.DB.First(&pen, c.Param("pen_id")).Error; err != nil {
		utils.RespondError(c, http.StatusNotFound, utils.ErrNotFound)
		return
	}
	if pen.ContractorID == nil || *pen.ContractorID != *tok.ContractorID {
		utils.RespondError(c, http.StatusForbidden, errors.New("you are not assigned to this penetration"))
		return
	}

	photo, err := storeUploadedPhoto(c, pen.ID, nil)
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	if err := rc.DB.Create(photo).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	rc.Access.TouchLastUsed(tok)
	utils.RespondJSON(c, http.StatusCreated, "Photo uploaded", photo)
}
