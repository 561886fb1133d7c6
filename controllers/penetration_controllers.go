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

type PenetrationController struct {
	DB      *gorm.DB
	Service *services.PenetrationService
}

func NewPenetrationController(db *gorm.DB) *PenetrationController {
	return &PenetrationController{
		DB:      db,
		Service: services.NewPenetrationService(db),
	}
}

// GetAllPenetrations lists pens with optional filters. Contractor accounts
// only ever see their own contractor's pens.
func (pc *PenetrationController) GetAllPenetrations(c *gin.Context) {
	principal, err := services.CurrentPrincipal(c, pc.DB)
	if err != nil {
		utils.RespondError(c, http.StatusUnauthorized, err)
		return
	}

	query := pc.DB.Model(&models.Penetration{}).Preload("Contractor")

	if principal.Role == models.RoleContractor {
		if principal.ContractorID == nil {
			utils.RespondJSON(c, http.StatusOK, "List of penetrations", []models.Penetration{})
			return
		}
		query = query.Where("contractor_id = ?", *principal.ContractorID)
	} else if contractorID := c.Query("contractor_id"); contractorID != "" {
		query = query.Where("contractor_id = ?", contractorID)
	}

	if projectID := c.Query("project_id"); projectID != "" {
		query = query.Where("project_id = ?", projectID)
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if deck := c.Query("deck"); deck != "" {
		query = query.Where("deck = ?", deck)
	}
	if priority := c.Query("priority"); priority != "" {
		query = query.Where("priority = ?", priority)
	}

	var pens []models.Penetration
	if err := query.Find(&pens).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "List of penetrations", pens)
}

// GetPenetrationByID returns one pen with activity history (newest first)
// and photos.
func (pc *PenetrationController) GetPenetrationByID(c *gin.Context) {
	id := c.Param("pen_id")

	var pen models.Penetration
	err := pc.DB.Preload("Contractor").
		Preload("Activities", func(db *gorm.DB) *gorm.DB {
			return db.Order("timestamp DESC").Preload("User")
		}).
		Preload("Photos", func(db *gorm.DB) *gorm.DB {
			return db.Order("uploaded_at DESC")
		}).
		First(&pen, id).Error
	if err != nil {
		utils.RespondError(c, http.StatusNotFound, utils.ErrNotFound)
		return
	}

	utils.RespondJSON(c, http.StatusOK, "Penetration detail", pen)
}

type createPenRequest struct {
	ProjectID    uint   `json:"project_id" binding:"required"`
	PenID        string `json:"pen_id" binding:"required"`
	Deck         string `json:"deck" binding:"required"`
	FireZone     string `json:"fire_zone"`
	Frame        string `json:"frame"`
	Location     string `json:"location"`
	PenType      string `json:"pen_type"`
	Size         string `json:"size"`
	ContractorID *uint  `json:"contractor_id"`
	Priority     string `json:"priority"`
	Notes        string `json:"notes"`
}

// CreatePenetration creates a pen (supervisor/admin).
func (pc *PenetrationController) CreatePenetration(c *gin.Context) {
	principal, err := services.CurrentPrincipal(c, pc.DB)
	if err != nil {
		utils.RespondError(c, http.StatusUnauthorized, err)
		return
	}
	if err := principal.CanManage(); err != nil {
		utils.RespondError(c, http.StatusForbidden, err)
		return
	}

	var req createPenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	if req.Priority == "" {
		req.Priority = models.PriorityRoutine
	}
	if !models.ValidPriority(req.Priority) {
		utils.RespondError(c, http.StatusBadRequest, errors.New("invalid priority"))
		return
	}

	pen, err := pc.insertPen(pc.DB, &req, models.StatusNotStarted)
	if err != nil {
		var dup *utils.DuplicateIdentifierError
		if errors.As(err, &dup) {
			utils.RespondError(c, http.StatusBadRequest, err)
			return
		}
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	utils.RespondJSON(c, http.StatusCreated, "Penetration created", pen)
}

// insertPen checks the (project, contractor, pen_id) scope for duplicates and
// creates the row. The composite unique index backs the check under races.
func (pc *PenetrationController) insertPen(tx *gorm.DB, req *createPenRequest, status string) (*models.Penetration, error) {
	dupQuery := tx.Where("project_id = ? AND pen_id = ?", req.ProjectID, req.PenID)
	if req.ContractorID != nil {
		dupQuery = dupQuery.Where("contractor_id = ?", *req.ContractorID)
	} else {
		dupQuery = dupQuery.Where("contractor_id IS NULL")
	}

	var existing models.Penetration
	if err := dupQuery.Preload("Contractor").First(&existing).Error; err == nil {
		name := ""
		if existing.Contractor != nil {
			name = existing.Contractor.Name
		}
		return nil, &utils.DuplicateIdentifierError{PenID: req.PenID, ContractorName: name}
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	pen := models.Penetration{
		ProjectID:    req.ProjectID,
		PenID:        req.PenID,
		Deck:         req.Deck,
		FireZone:     req.FireZone,
		Frame:        req.Frame,
		Location:     req.Location,
		PenType:      req.PenType,
		Size:         req.Size,
		ContractorID: req.ContractorID,
		Status:       status,
		Priority:     req.Priority,
		Notes:        req.Notes,
	}
	if err := tx.Create(&pen).Error; err != nil {
		// A concurrent insert can slip past the read above; the composite
		// unique index catches it, so report it as the same duplicate.
		if utils.IsDuplicateKey(err) {
			return nil, &utils.DuplicateIdentifierError{PenID: req.PenID}
		}
		return nil, err
	}
	return &pen, nil
}

// UpdatePenetration edits pen fields. pen_id, contractor assignment and
// priority are supervisor-only.
func (pc *PenetrationController) UpdatePenetration(c *gin.Context) {
	principal, err := services.CurrentPrincipal(c, pc.DB)
	if err != nil {
		utils.RespondError(c, http.StatusUnauthorized, err)
		return
	}

	var pen models.Penetration
	if err := pc.DB.First(&pen, c.Param("pen_id")).Error; err != nil {
		utils.RespondError(c, http.StatusNotFound, utils.ErrNotFound)
		return
	}

	if err := principal.CanEditPen(&pen); err != nil {
		utils.RespondError(c, http.StatusForbidden, err)
		return
	}

	type updateReq struct {
		PenID        *string `json:"pen_id"`
		Deck         *string `json:"deck"`
		FireZone     *string `json:"fire_zone"`
		Frame        *string `json:"frame"`
		Location     *string `json:"location"`
		PenType      *string `json:"pen_type"`
		Size         *string `json:"size"`
		ContractorID *uint   `json:"contractor_id"`
		Priority     *string `json:"priority"`
		Notes        *string `json:"notes"`
	}
	var req updateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	if !principal.IsStaff() && (req.PenID != nil || req.ContractorID != nil || req.Priority != nil) {
		utils.RespondError(c, http.StatusForbidden, errors.New("unauthorized to modify these fields"))
		return
	}

	changes := map[string]interface{}{}
	if req.PenID != nil {
		changes["pen_id"] = *req.PenID
	}
	if req.Deck != nil {
		changes["deck"] = *req.Deck
	}
	if req.FireZone != nil {
		changes["fire_zone"] = *req.FireZone
	}
	if req.Frame != nil {
		changes["frame"] = *req.Frame
	}
	if req.Location != nil {
		changes["location"] = *req.Location
	}
	if req.PenType != nil {
		changes["pen_type"] = *req.PenType
	}
	if req.Size != nil {
		changes["size"] = *req.Size
	}
	if req.ContractorID != nil {
		changes["contractor_id"] = *req.ContractorID
	}
	if req.Priority != nil {
		if !models.ValidPriority(*req.Priority) {
			utils.RespondError(c, http.StatusBadRequest, errors.New("invalid priority"))
			return
		}
		changes["priority"] = *req.Priority
	}
	if req.Notes != nil {
		changes["notes"] = *req.Notes
	}

	if len(changes) > 0 {
		if err := pc.DB.Model(&pen).Updates(changes).Error; err != nil {
			utils.RespondError(c, http.StatusInternalServerError, err)
			return
		}
	}

	if err := pc.DB.Preload("Contractor").First(&pen, pen.ID).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	feed.BroadcastPenUpdate(pen)
	utils.RespondJSON(c, http.StatusOK, "Penetration updated", pen)
}

// UpdateStatus runs a lifecycle transition through the state machine and
// logs the activity.
func (pc *PenetrationController) UpdateStatus(c *gin.Context) {
	principal, err := services.CurrentPrincipal(c, pc.DB)
	if err != nil {
		utils.RespondError(c, http.StatusUnauthorized, err)
		return
	}

	penID, err := strconv.ParseUint(c.Param("pen_id"), 10, 64)
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, errors.New("invalid penetration id"))
		return
	}

	var req struct {
		Status string `json:"status" binding:"required"`
		Notes  string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	result, err := pc.Service.RequestTransition(uint(penID), req.Status, req.Notes, principal)
	if err != nil {
		respondTransitionError(c, err)
		return
	}

	feed.BroadcastActivity(result.Activity, result.Penetration)
	utils.RespondJSON(c, http.StatusOK, "Status updated", result)
}

// respondTransitionError maps state-machine errors onto HTTP codes.
func respondTransitionError(c *gin.Context, err error) {
	var evidence *utils.InsufficientEvidenceError
	switch {
	case errors.Is(err, utils.ErrNotFound):
		utils.RespondError(c, http.StatusNotFound, err)
	case errors.Is(err, utils.ErrInvalidStatus):
		utils.RespondError(c, http.StatusBadRequest, err)
	case errors.Is(err, utils.ErrUnauthorized):
		utils.RespondError(c, http.StatusForbidden, err)
	case errors.Is(err, utils.ErrStorageConflict):
		utils.RespondError(c, http.StatusConflict, err)
	case errors.As(err, &evidence):
		utils.RespondErrorData(c, http.StatusBadRequest, err, gin.H{
			"photo_count":     evidence.PhotoCount,
			"requires_photos": true,
		})
	default:
		utils.RespondError(c, http.StatusInternalServerError, err)
	}
}

// GetActivities returns the full audit trail for a pen, newest first.
func (pc *PenetrationController) GetActivities(c *gin.Context) {
	id := c.Param("pen_id")

	var pen models.Penetration
	if err := pc.DB.First(&pen, id).Error; err != nil {
		utils.RespondError(c, http.StatusNotFound, utils.ErrNotFound)
		return
	}

	var activities []models.PenActivity
	if err := pc.DB.Preload("User").
		Where("penetration_id = ?", pen.ID).
		Order("timestamp DESC").
		Find(&activities).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	utils.RespondJSON(c, http.StatusOK, "Activity log", activities)
}

// DeletePenetration hard-deletes a pen and its photos/activities.
func (pc *PenetrationController) DeletePenetration(c *gin.Context) {
	principal, err := services.CurrentPrincipal(c, pc.DB)
	if err != nil {
		utils.RespondError(c, http.StatusUnauthorized, err)
		return
	}

	var pen models.Penetration
	if err := pc.DB.First(&pen, c.Param("pen_id")).Error; err != nil {
		utils.RespondError(c, http.StatusNotFound, utils.ErrNotFound)
		return
	}

	var project models.Project
	if err := pc.DB.First(&project, pen.ProjectID).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	if err := principal.CanDeletePen(&project); err != nil {
		utils.RespondError(c, http.StatusForbidden, err)
		return
	}

	err = pc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("penetration_id = ?", pen.ID).Delete(&models.Photo{}).Error; err != nil {
			return err
		}
		if err := tx.Where("penetration_id = ?", pen.ID).Delete(&models.PenActivity{}).Error; err != nil {
			return err
		}
		return tx.Delete(&pen).Error
	})
	if err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	utils.RespondJSON(c, http.StatusOK, "Penetration deleted", gin.H{"pen_id": pen.ID})
}

type bulkImportRow struct {
	PenID        string `json:"pen_id"`
	Deck         string `json:"deck"`
	FireZone     string `json:"fire_zone"`
	Frame        string `json:"frame"`
	Location     string `json:"location"`
	PenType      string `json:"pen_type"`
	Size         string `json:"size"`
	ContractorID *uint  `json:"contractor_id"`
	Priority     string `json:"priority"`
	Status       string `json:"status"`
}

// BulkImport creates pens from spreadsheet rows. Rows succeed or fail
// independently; one bad row never rolls back the others.
func (pc *PenetrationController) BulkImport(c *gin.Context) {
	principal, err := services.CurrentPrincipal(c, pc.DB)
	if err != nil {
		utils.RespondError(c, http.StatusUnauthorized, err)
		return
	}
	if err := principal.CanManage(); err != nil {
		utils.RespondError(c, http.StatusForbidden, err)
		return
	}

	var req struct {
		Penetrations []bulkImportRow `json:"penetrations" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	var project models.Project
	if err := pc.DB.First(&project, c.Param("project_id")).Error; err != nil {
		utils.RespondError(c, http.StatusNotFound, errors.New("project not found"))
		return
	}

	created := []string{}
	importErrors := []string{}

	for _, row := range req.Penetrations {
		if row.PenID == "" || row.Deck == "" {
			importErrors = append(importErrors, row.PenID+": pen_id and deck are required")
			continue
		}
		status := row.Status
		if status == "" {
			status = models.StatusNotStarted
		}
		if !models.ValidStatus(status) {
			importErrors = append(importErrors, row.PenID+": invalid status")
			continue
		}
		priority := row.Priority
		if priority == "" {
			priority = models.PriorityRoutine
		}

		_, err := pc.insertPen(pc.DB, &createPenRequest{
			ProjectID:    project.ID,
			PenID:        row.PenID,
			Deck:         row.Deck,
			FireZone:     row.FireZone,
			Frame:        row.Frame,
			Location:     row.Location,
			PenType:      row.PenType,
			Size:         row.Size,
			ContractorID: row.ContractorID,
			Priority:     priority,
		}, status)
		if err != nil {
			importErrors = append(importErrors, row.PenID+": "+err.Error())
			continue
		}
		created = append(created, row.PenID)
	}

	utils.RespondJSON(c, http.StatusOK, "Import finished", gin.H{
		"created": created,
		"errors":  importErrors,
	})
}
