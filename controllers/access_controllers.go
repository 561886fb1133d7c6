package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/penlog-io/penlog/models"
	"github.com/penlog-io/penlog/services"
	"github.com/penlog-io/penlog/utils"
)

// AccessRequestController handles landing-page access requests.
type AccessRequestController struct {
	DB *gorm.DB
}

func NewAccessRequestController(db *gorm.DB) *AccessRequestController {
	return &AccessRequestController{DB: db}
}

// CreateAccessRequest is the public intake endpoint. Resubmitting the same
// email is acknowledged, not duplicated.
func (arc *AccessRequestController) CreateAccessRequest(c *gin.Context) {
	var req struct {
		Name        string `json:"name" binding:"required"`
		Email       string `json:"email" binding:"required,email"`
		Company     string `json:"company" binding:"required"`
		Role        string `json:"role" binding:"required"`
		DrydockDate string `json:"drydock_date"`
		ReadyToTest bool   `json:"ready_to_test"`
		Message     string `json:"message"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))

	var existing models.AccessRequest
	if err := arc.DB.Where("email = ?", email).First(&existing).Error; err == nil {
		utils.RespondJSON(c, http.StatusOK, "Access request already submitted", gin.H{"id": existing.ID})
		return
	}

	accessRequest := models.AccessRequest{
		Name:        strings.TrimSpace(req.Name),
		Email:       email,
		Company:     strings.TrimSpace(req.Company),
		Role:        strings.TrimSpace(req.Role),
		DrydockDate: strings.TrimSpace(req.DrydockDate),
		ReadyToTest: req.ReadyToTest,
		Message:     strings.TrimSpace(req.Message),
		Status:      models.RegistrationPending,
	}
	if err := arc.DB.Create(&accessRequest).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	utils.RespondJSON(c, http.StatusCreated, "Access request submitted", gin.H{"id": accessRequest.ID})
}

// GetAccessRequests lists requests (admin only, via route middleware).
func (arc *AccessRequestController) GetAccessRequests(c *gin.Context) {
	query := arc.DB.Model(&models.AccessRequest{})
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var requests []models.AccessRequest
	if err := query.Order("created_at DESC").Find(&requests).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Access requests", requests)
}

// UpdateAccessRequest records the review outcome (admin only).
func (arc *AccessRequestController) UpdateAccessRequest(c *gin.Context) {
	principal, err := services.CurrentPrincipal(c, arc.DB)
	if err != nil {
		utils.RespondError(c, http.StatusUnauthorized, err)
		return
	}

	var accessRequest models.AccessRequest
	if err := arc.DB.First(&accessRequest, c.Param("request_id")).Error; err != nil {
		utils.RespondError(c, http.StatusNotFound, utils.ErrNotFound)
		return
	}

	var req struct {
		Status *string `json:"status"`
		Notes  *string `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	if req.Status != nil {
		now := time.Now().UTC()
		accessRequest.Status = *req.Status
		accessRequest.ReviewedAt = &now
		accessRequest.ReviewedBy = principal.UserID
	}
	if req.Notes != nil {
		accessRequest.Notes = *req.Notes
	}

	if err := arc.DB.Save(&accessRequest).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	utils.RespondJSON(c, http.StatusOK, "Request updated", accessRequest)
}
