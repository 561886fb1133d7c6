package controllers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/penlog-io/penlog/models"
	"github.com/penlog-io/penlog/services"
	"github.com/penlog-io/penlog/utils"
)

// RegistrationController handles the contractor sign-up intake: a public
// invite-code form and the supervisor review queue.
type RegistrationController struct {
	DB *gorm.DB
}

func NewRegistrationController(db *gorm.DB) *RegistrationController {
	return &RegistrationController{DB: db}
}

func (rgc *RegistrationController) projectByInviteCode(c *gin.Context) *models.Project {
	var project models.Project
	err := rgc.DB.Where("invite_code = ?", c.Param("invite_code")).First(&project).Error
	if err != nil {
		utils.RespondError(c, http.StatusNotFound, errors.New("invalid or expired invite code"))
		return nil
	}
	return &project
}

// GetJoinForm returns the project info shown on the registration form.
func (rgc *RegistrationController) GetJoinForm(c *gin.Context) {
	project := rgc.projectByInviteCode(c)
	if project == nil {
		return
	}

	utils.RespondJSON(c, http.StatusOK, "Registration form", gin.H{
		"project": gin.H{
			"id":               project.ID,
			"name":             project.Name,
			"ship_name":        project.ShipName,
			"drydock_location": project.DrydockLocation,
		},
	})
}

// SubmitRegistration files a pending registration for supervisor review.
func (rgc *RegistrationController) SubmitRegistration(c *gin.Context) {
	project := rgc.projectByInviteCode(c)
	if project == nil {
		return
	}

	var req struct {
		Name    string `json:"name" binding:"required"`
		Email   string `json:"email" binding:"required,email"`
		Company string `json:"company" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	var existing models.ContractorRegistration
	err := rgc.DB.Where("project_id = ? AND contact_email = ?", project.ID, req.Email).
		First(&existing).Error
	if err == nil {
		utils.RespondError(c, http.StatusBadRequest, errors.New("you have already registered for this project"))
		return
	}

	registration := models.ContractorRegistration{
		ProjectID:     project.ID,
		CompanyName:   req.Company,
		ContactPerson: req.Name,
		ContactEmail:  req.Email,
		Status:        models.RegistrationPending,
	}
	if err := rgc.DB.Create(&registration).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	utils.RespondJSON(c, http.StatusCreated,
		"Registration submitted, you will be notified once approved",
		gin.H{"status": registration.Status})
}

// GetPendingRegistrations lists the review queue (supervisor/admin).
func (rgc *RegistrationController) GetPendingRegistrations(c *gin.Context) {
	query := rgc.DB.Where("status = ?", models.RegistrationPending)
	if projectID := c.Query("project_id"); projectID != "" {
		query = query.Where("project_id = ?", projectID)
	}

	var registrations []models.ContractorRegistration
	if err := query.Order("created_at DESC").Find(&registrations).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Pending registrations", registrations)
}

// ReviewRegistration approves or rejects a pending registration. Approval
// finds or creates the contractor company and links it to the registration.
func (rgc *RegistrationController) ReviewRegistration(c *gin.Context) {
	principal, err := services.CurrentPrincipal(c, rgc.DB)
	if err != nil {
		utils.RespondError(c, http.StatusUnauthorized, err)
		return
	}

	var registration models.ContractorRegistration
	if err := rgc.DB.First(&registration, c.Param("registration_id")).Error; err != nil {
		utils.RespondError(c, http.StatusNotFound, utils.ErrNotFound)
		return
	}
	if registration.Status != models.RegistrationPending {
		utils.RespondError(c, http.StatusBadRequest, errors.New("registration already reviewed"))
		return
	}

	var req struct {
		Approve bool   `json:"approve"`
		Reason  string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	now := time.Now().UTC()
	err = rgc.DB.Transaction(func(tx *gorm.DB) error {
		if !req.Approve {
			registration.Status = models.RegistrationRejected
			registration.RejectionReason = req.Reason
			registration.ReviewedAt = &now
			registration.ReviewedBy = principal.UserID
			return tx.Save(&registration).Error
		}

		var contractor models.Contractor
		err := tx.Where("name = ?", registration.CompanyName).First(&contractor).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			contractor = models.Contractor{
				Name:          registration.CompanyName,
				ContactPerson: registration.ContactPerson,
				ContactEmail:  registration.ContactEmail,
				Active:        true,
			}
			if err := tx.Create(&contractor).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		registration.Status = models.RegistrationApproved
		registration.ContractorID = &contractor.ID
		registration.ReviewedAt = &now
		registration.ReviewedBy = principal.UserID
		return tx.Save(&registration).Error
	})
	if err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	utils.RespondJSON(c, http.StatusOK, "Registration reviewed", registration)
}
