package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/penlog-io/penlog/models"
	"github.com/penlog-io/penlog/services"
	"github.com/penlog-io/penlog/utils"
)

type ProjectController struct {
	DB *gorm.DB
}

func NewProjectController(db *gorm.DB) *ProjectController {
	return &ProjectController{DB: db}
}

func (prc *ProjectController) projectStats(projectID uint) (models.ProjectStats, error) {
	var stats models.ProjectStats
	base := prc.DB.Model(&models.Penetration{}).Where("project_id = ?", projectID)

	if err := base.Session(&gorm.Session{}).Count(&stats.Total).Error; err != nil {
		return stats, err
	}
	counts := map[string]*int64{
		models.StatusNotStarted: &stats.NotStarted,
		models.StatusOpen:       &stats.Open,
		models.StatusClosed:     &stats.Closed,
		models.StatusVerified:   &stats.Verified,
	}
	for status, dst := range counts {
		if err := base.Session(&gorm.Session{}).Where("status = ?", status).Count(dst).Error; err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// GetAllProjects lists projects. Supervisors see their own; admins see all.
func (prc *ProjectController) GetAllProjects(c *gin.Context) {
	principal, err := services.CurrentPrincipal(c, prc.DB)
	if err != nil {
		utils.RespondError(c, http.StatusUnauthorized, err)
		return
	}

	query := prc.DB.Model(&models.Project{})
	if principal.Role == models.RoleSupervisor {
		query = query.Where("supervisor_id = ?", *principal.UserID)
	}

	var projects []models.Project
	if err := query.Find(&projects).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	type projectWithStats struct {
		models.Project
		Stats models.ProjectStats `json:"stats"`
	}
	out := make([]projectWithStats, 0, len(projects))
	for _, p := range projects {
		stats, err := prc.projectStats(p.ID)
		if err != nil {
			utils.RespondError(c, http.StatusInternalServerError, err)
			return
		}
		out = append(out, projectWithStats{Project: p, Stats: stats})
	}

	utils.RespondJSON(c, http.StatusOK, "List of projects", out)
}

func (prc *ProjectController) GetProjectByID(c *gin.Context) {
	var project models.Project
	if err := prc.DB.First(&project, c.Param("project_id")).Error; err != nil {
		utils.RespondError(c, http.StatusNotFound, utils.ErrNotFound)
		return
	}

	stats, err := prc.projectStats(project.ID)
	if err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	utils.RespondJSON(c, http.StatusOK, "Project detail", gin.H{
		"project": project,
		"stats":   stats,
	})
}

// CreateProject creates a drydock project owned by the creating supervisor.
func (prc *ProjectController) CreateProject(c *gin.Context) {
	principal, err := services.CurrentPrincipal(c, prc.DB)
	if err != nil {
		utils.RespondError(c, http.StatusUnauthorized, err)
		return
	}

	var req struct {
		Name            string    `json:"name" binding:"required"`
		ShipName        string    `json:"ship_name" binding:"required"`
		DrydockLocation string    `json:"drydock_location" binding:"required"`
		StartDate       time.Time `json:"start_date" binding:"required"`
		EmbarkationDate time.Time `json:"embarkation_date" binding:"required"`
		Notes           string    `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	project := models.Project{
		Name:            req.Name,
		ShipName:        req.ShipName,
		DrydockLocation: req.DrydockLocation,
		StartDate:       req.StartDate,
		EmbarkationDate: req.EmbarkationDate,
		Status:          "active",
		Notes:           req.Notes,
		SupervisorID:    principal.UserID,
		InviteCode:      models.GenerateAccessToken()[:22],
	}
	if err := prc.DB.Create(&project).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	utils.RespondJSON(c, http.StatusCreated, "Project created", project)
}

func (prc *ProjectController) UpdateProject(c *gin.Context) {
	principal, err := services.CurrentPrincipal(c, prc.DB)
	if err != nil {
		utils.RespondError(c, http.StatusUnauthorized, err)
		return
	}

	var project models.Project
	if err := prc.DB.First(&project, c.Param("project_id")).Error; err != nil {
		utils.RespondError(c, http.StatusNotFound, utils.ErrNotFound)
		return
	}

	if err := principal.CanManageProject(&project); err != nil {
		utils.RespondError(c, http.StatusForbidden, utils.ErrUnauthorized)
		return
	}

	var req struct {
		Name            *string    `json:"name"`
		ShipName        *string    `json:"ship_name"`
		DrydockLocation *string    `json:"drydock_location"`
		StartDate       *time.Time `json:"start_date"`
		EmbarkationDate *time.Time `json:"embarkation_date"`
		Status          *string    `json:"status"`
		Notes           *string    `json:"notes"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	changes := map[string]interface{}{}
	if req.Name != nil {
		changes["name"] = *req.Name
	}
	if req.ShipName != nil {
		changes["ship_name"] = *req.ShipName
	}
	if req.DrydockLocation != nil {
		changes["drydock_location"] = *req.DrydockLocation
	}
	if req.StartDate != nil {
		changes["start_date"] = *req.StartDate
	}
	if req.EmbarkationDate != nil {
		changes["embarkation_date"] = *req.EmbarkationDate
	}
	if req.Status != nil {
		changes["status"] = *req.Status
	}
	if req.Notes != nil {
		changes["notes"] = *req.Notes
	}

	if len(changes) > 0 {
		if err := prc.DB.Model(&project).Updates(changes).Error; err != nil {
			utils.RespondError(c, http.StatusInternalServerError, err)
			return
		}
	}

	utils.RespondJSON(c, http.StatusOK, "Project updated", project)
}

// DeleteProject removes a project and everything under it.
func (prc *ProjectController) DeleteProject(c *gin.Context) {
	principal, err := services.CurrentPrincipal(c, prc.DB)
	if err != nil {
		utils.RespondError(c, http.StatusUnauthorized, err)
		return
	}

	var project models.Project
	if err := prc.DB.First(&project, c.Param("project_id")).Error; err != nil {
		utils.RespondError(c, http.StatusNotFound, utils.ErrNotFound)
		return
	}

	if err := principal.CanManageProject(&project); err != nil {
		utils.RespondError(c, http.StatusForbidden, utils.ErrUnauthorized)
		return
	}

	err = prc.DB.Transaction(func(tx *gorm.DB) error {
		var penIDs []uint
		if err := tx.Model(&models.Penetration{}).
			Where("project_id = ?", project.ID).
			Pluck("id", &penIDs).Error; err != nil {
			return err
		}
		if len(penIDs) > 0 {
			if err := tx.Where("penetration_id IN ?", penIDs).Delete(&models.Photo{}).Error; err != nil {
				return err
			}
			if err := tx.Where("penetration_id IN ?", penIDs).Delete(&models.PenActivity{}).Error; err != nil {
				return err
			}
			if err := tx.Where("project_id = ?", project.ID).Delete(&models.Penetration{}).Error; err != nil {
				return err
			}
		}
		if err := tx.Where("project_id = ?", project.ID).Delete(&models.ContractorAccessToken{}).Error; err != nil {
			return err
		}
		return tx.Delete(&project).Error
	})
	if err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	utils.RespondJSON(c, http.StatusOK, "Project deleted", gin.H{"project_id": project.ID})
}

// RegenerateInviteCode issues a new contractor-registration invite code.
func (prc *ProjectController) RegenerateInviteCode(c *gin.Context) {
	principal, err := services.CurrentPrincipal(c, prc.DB)
	if err != nil {
		utils.RespondError(c, http.StatusUnauthorized, err)
		return
	}

	var project models.Project
	if err := prc.DB.First(&project, c.Param("project_id")).Error; err != nil {
		utils.RespondError(c, http.StatusNotFound, utils.ErrNotFound)
		return
	}

	if err := principal.CanManageProject(&project); err != nil {
		utils.RespondError(c, http.StatusForbidden, utils.ErrUnauthorized)
		return
	}

	code := models.GenerateAccessToken()[:22]
	if err := prc.DB.Model(&project).Update("invite_code", code).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	utils.RespondJSON(c, http.StatusOK, "Invite code regenerated", gin.H{"invite_code": code})
}
