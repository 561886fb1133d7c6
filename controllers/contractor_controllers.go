package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/penlog-io/penlog/models"
	"github.com/penlog-io/penlog/services"
	"github.com/penlog-io/penlog/utils"
)

type ContractorController struct {
	DB     *gorm.DB
	Access *services.AccessService
}

func NewContractorController(db *gorm.DB) *ContractorController {
	return &ContractorController{
		DB:     db,
		Access: services.NewAccessService(db),
	}
}

// GetAllContractors lists contractors, optionally only active ones.
func (cc *ContractorController) GetAllContractors(c *gin.Context) {
	query := cc.DB.Model(&models.Contractor{})
	if c.Query("active_only") == "true" {
		query = query.Where("active = ?", true)
	}

	var contractors []models.Contractor
	if err := query.Find(&contractors).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "List of contractors", contractors)
}

func (cc *ContractorController) GetContractorByID(c *gin.Context) {
	var contractor models.Contractor
	if err := cc.DB.First(&contractor, c.Param("contractor_id")).Error; err != nil {
		utils.RespondError(c, http.StatusNotFound, utils.ErrNotFound)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Contractor detail", contractor)
}

// CreateContractor (supervisor/admin).
func (cc *ContractorController) CreateContractor(c *gin.Context) {
	var req struct {
		Name          string `json:"name" binding:"required"`
		ContactPerson string `json:"contact_person"`
		ContactEmail  string `json:"contact_email"`
		ContactPhone  string `json:"contact_phone"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	contractor := models.Contractor{
		Name:          req.Name,
		ContactPerson: req.ContactPerson,
		ContactEmail:  req.ContactEmail,
		ContactPhone:  req.ContactPhone,
		Active:        true,
	}
	if err := cc.DB.Create(&contractor).Error; err != nil {
		utils.RespondError(c, http.StatusBadRequest, errors.New("contractor already exists"))
		return
	}

	utils.RespondJSON(c, http.StatusCreated, "Contractor created", contractor)
}

// UpdateContractor (supervisor/admin).
func (cc *ContractorController) UpdateContractor(c *gin.Context) {
	var contractor models.Contractor
	if err := cc.DB.First(&contractor, c.Param("contractor_id")).Error; err != nil {
		utils.RespondError(c, http.StatusNotFound, utils.ErrNotFound)
		return
	}

	var req struct {
		Name          *string `json:"name"`
		ContactPerson *string `json:"contact_person"`
		ContactEmail  *string `json:"contact_email"`
		ContactPhone  *string `json:"contact_phone"`
		Active        *bool   `json:"active"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	changes := map[string]interface{}{}
	if req.Name != nil {
		changes["name"] = *req.Name
	}
	if req.ContactPerson != nil {
		changes["contact_person"] = *req.ContactPerson
	}
	if req.ContactEmail != nil {
		changes["contact_email"] = *req.ContactEmail
	}
	if req.ContactPhone != nil {
		changes["contact_phone"] = *req.ContactPhone
	}
	if req.Active != nil {
		changes["active"] = *req.Active
	}

	if len(changes) > 0 {
		if err := cc.DB.Model(&contractor).Updates(changes).Error; err != nil {
			utils.RespondError(c, http.StatusInternalServerError, err)
			return
		}
	}

	utils.RespondJSON(c, http.StatusOK, "Contractor updated", contractor)
}

// GetContractorStats returns the per-status breakdown for one contractor.
func (cc *ContractorController) GetContractorStats(c *gin.Context) {
	var contractor models.Contractor
	if err := cc.DB.First(&contractor, c.Param("contractor_id")).Error; err != nil {
		utils.RespondError(c, http.StatusNotFound, utils.ErrNotFound)
		return
	}

	type statusCount struct {
		Status string
		Count  int64
	}
	var rows []statusCount
	if err := cc.DB.Model(&models.Penetration{}).
		Select("status, count(id) as count").
		Where("contractor_id = ?", contractor.ID).
		Group("status").
		Scan(&rows).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	breakdown := map[string]int64{}
	var total int64
	for _, row := range rows {
		breakdown[row.Status] = row.Count
		total += row.Count
	}

	completionRate := 0.0
	if total > 0 {
		completionRate = float64(breakdown[models.StatusVerified]) / float64(total) * 100
	}

	utils.RespondJSON(c, http.StatusOK, "Contractor stats", gin.H{
		"contractor":         contractor,
		"total_penetrations": total,
		"status_breakdown":   breakdown,
		"completion_rate":    completionRate,
	})
}

// GenerateAccessLink creates a magic link for a contractor within a project.
// Returns the existing active link if one is already out there.
func (cc *ContractorController) GenerateAccessLink(c *gin.Context) {
	var contractor models.Contractor
	if err := cc.DB.First(&contractor, c.Param("contractor_id")).Error; err != nil {
		utils.RespondError(c, http.StatusNotFound, utils.ErrNotFound)
		return
	}

	var req struct {
		ProjectID uint `json:"project_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	var project models.Project
	if err := cc.DB.First(&project, req.ProjectID).Error; err != nil {
		utils.RespondError(c, http.StatusNotFound, errors.New("project not found"))
		return
	}

	var existing models.ContractorAccessToken
	err := cc.DB.Where("project_id = ? AND contractor_id = ? AND active = ?",
		project.ID, contractor.ID, true).First(&existing).Error
	if err == nil {
		utils.RespondJSON(c, http.StatusOK, "Access link already exists", existing)
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	embarkation := project.EmbarkationDate
	token := models.ContractorAccessToken{
		ProjectID:    project.ID,
		ContractorID: &contractor.ID,
		Token:        models.GenerateAccessToken(),
		Active:       true,
		ExpiresAt:    &embarkation,
	}
	if err := cc.DB.Create(&token).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	utils.RespondJSON(c, http.StatusCreated, "Access link generated", token)
}

// GenerateUnboundLink creates a magic link scoped to a project only; the
// contractor is resolved on first use.
func (cc *ContractorController) GenerateUnboundLink(c *gin.Context) {
	var req struct {
		ProjectID uint `json:"project_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	var project models.Project
	if err := cc.DB.First(&project, req.ProjectID).Error; err != nil {
		utils.RespondError(c, http.StatusNotFound, errors.New("project not found"))
		return
	}

	embarkation := project.EmbarkationDate
	token := models.ContractorAccessToken{
		ProjectID: project.ID,
		Token:     models.GenerateAccessToken(),
		Active:    true,
		ExpiresAt: &embarkation,
	}
	if err := cc.DB.Create(&token).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	utils.RespondJSON(c, http.StatusCreated, "Access link generated", token)
}

// GetProjectAccessLinks lists active magic links for a project.
func (cc *ContractorController) GetProjectAccessLinks(c *gin.Context) {
	var tokens []models.ContractorAccessToken
	if err := cc.DB.Preload("Contractor").
		Where("project_id = ? AND active = ?", c.Param("project_id"), true).
		Find(&tokens).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Access links", tokens)
}

// RegenerateAccessLink deactivates the current link and issues a fresh one.
// Old tokens are kept (inactive) so their audit trail survives.
func (cc *ContractorController) RegenerateAccessLink(c *gin.Context) {
	projectID := c.Param("project_id")
	contractorID := c.Param("contractor_id")

	var token models.ContractorAccessToken
	err := cc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.ContractorAccessToken{}).
			Where("project_id = ? AND contractor_id = ? AND active = ?", projectID, contractorID, true).
			Update("active", false).Error; err != nil {
			return err
		}

		var contractor models.Contractor
		if err := tx.First(&contractor, contractorID).Error; err != nil {
			return utils.ErrNotFound
		}
		var project models.Project
		if err := tx.First(&project, projectID).Error; err != nil {
			return utils.ErrNotFound
		}

		token = models.ContractorAccessToken{
			ProjectID:    project.ID,
			ContractorID: &contractor.ID,
			Token:        models.GenerateAccessToken(),
			Active:       true,
		}
		return tx.Create(&token).Error
	})
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			utils.RespondError(c, http.StatusNotFound, err)
			return
		}
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	utils.RespondJSON(c, http.StatusOK, "Access link regenerated", token)
}

// MergeContractors folds the contractor in the path into the target,
// reassigning all references atomically.
func (cc *ContractorController) MergeContractors(c *gin.Context) {
	sourceID, err := strconv.ParseUint(c.Param("contractor_id"), 10, 64)
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, errors.New("invalid contractor id"))
		return
	}

	var req struct {
		TargetContractorID uint `json:"target_contractor_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	target, err := cc.Access.MergeContractors(uint(sourceID), req.TargetContractorID)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			utils.RespondError(c, http.StatusNotFound, err)
			return
		}
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	utils.RespondJSON(c, http.StatusOK, fmt.Sprintf("Merged into %s", target.Name), target)
}
