package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wcharczuk/go-chart/v2"
	"gorm.io/gorm"

	"github.com/penlog-io/penlog/models"
	"github.com/penlog-io/penlog/services"
	"github.com/penlog-io/penlog/utils"
)

type DashboardController struct {
	DB *gorm.DB
}

func NewDashboardController(db *gorm.DB) *DashboardController {
	return &DashboardController{DB: db}
}

func (dc *DashboardController) scopedQuery(principal *services.Principal) *gorm.DB {
	query := dc.DB.Model(&models.Penetration{})
	if principal.Role == models.RoleContractor && principal.ContractorID != nil {
		query = query.Where("contractor_id = ?", *principal.ContractorID)
	}
	return query
}

// GetOverview returns the dashboard numbers: status and priority breakdown,
// completion rate and recent activity. Contractor accounts are scoped to
// their own pens.
func (dc *DashboardController) GetOverview(c *gin.Context) {
	principal, err := services.CurrentPrincipal(c, dc.DB)
	if err != nil {
		utils.RespondError(c, http.StatusUnauthorized, err)
		return
	}

	count := func(where ...interface{}) int64 {
		var n int64
		q := dc.scopedQuery(principal)
		if len(where) > 0 {
			q = q.Where(where[0], where[1:]...)
		}
		q.Count(&n)
		return n
	}

	total := count()
	verified := count("status = ?", models.StatusVerified)

	completionRate := 0.0
	if total > 0 {
		completionRate = float64(verified) / float64(total) * 100
	}

	yesterday := time.Now().UTC().Add(-24 * time.Hour)
	var recent []models.PenActivity
	dc.DB.Preload("User").
		Where("timestamp >= ?", yesterday).
		Order("timestamp DESC").
		Limit(10).
		Find(&recent)

	utils.RespondJSON(c, http.StatusOK, "Dashboard overview", gin.H{
		"total_penetrations": total,
		"status_breakdown": gin.H{
			"not_started": count("status = ?", models.StatusNotStarted),
			"open":        count("status = ?", models.StatusOpen),
			"closed":      count("status = ?", models.StatusClosed),
			"verified":    verified,
		},
		"completion_rate": completionRate,
		"priority_breakdown": gin.H{
			"critical":  count("priority = ?", models.PriorityCritical),
			"important": count("priority = ?", models.PriorityImportant),
			"routine":   count("priority = ?", models.PriorityRoutine),
		},
		"recent_activities": recent,
	})
}

// GetByContractor groups pen counts per contractor (supervisor/admin).
func (dc *DashboardController) GetByContractor(c *gin.Context) {
	type row struct {
		ContractorID   uint   `json:"contractor_id"`
		ContractorName string `json:"contractor_name"`
		Status         string `json:"status"`
		Count          int64  `json:"count"`
	}

	var rows []row
	query := dc.DB.Model(&models.Penetration{}).
		Select("contractors.id as contractor_id, contractors.name as contractor_name, penetrations.status, count(penetrations.id) as count").
		Joins("JOIN contractors ON contractors.id = penetrations.contractor_id").
		Group("contractors.id, contractors.name, penetrations.status")

	if projectID := c.Query("project_id"); projectID != "" {
		query = query.Where("penetrations.project_id = ?", projectID)
	}

	if err := query.Scan(&rows).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	grouped := map[uint]gin.H{}
	for _, r := range rows {
		entry, ok := grouped[r.ContractorID]
		if !ok {
			entry = gin.H{
				"contractor_id":   r.ContractorID,
				"contractor_name": r.ContractorName,
				"statuses":        map[string]int64{},
				"total":           int64(0),
			}
			grouped[r.ContractorID] = entry
		}
		entry["statuses"].(map[string]int64)[r.Status] = r.Count
		entry["total"] = entry["total"].(int64) + r.Count
	}

	out := make([]gin.H, 0, len(grouped))
	for _, entry := range grouped {
		out = append(out, entry)
	}

	utils.RespondJSON(c, http.StatusOK, "Penetrations by contractor", out)
}

// GetStatusChart renders the status breakdown as a PNG bar chart.
func (dc *DashboardController) GetStatusChart(c *gin.Context) {
	principal, err := services.CurrentPrincipal(c, dc.DB)
	if err != nil {
		utils.RespondError(c, http.StatusUnauthorized, err)
		return
	}

	statuses := []string{
		models.StatusNotStarted,
		models.StatusOpen,
		models.StatusClosed,
		models.StatusVerified,
	}

	bars := make([]chart.Value, 0, len(statuses))
	for _, status := range statuses {
		var n int64
		dc.scopedQuery(principal).Where("status = ?", status).Count(&n)
		bars = append(bars, chart.Value{Label: status, Value: float64(n)})
	}

	graph := chart.BarChart{
		Title:    "Penetrations by status",
		Height:   400,
		BarWidth: 60,
		Bars:     bars,
	}

	c.Header("Content-Type", "image/png")
	c.Status(http.StatusOK)
	if err := graph.Render(chart.PNG, c.Writer); err != nil {
		utils.ErrorLogger.Printf("failed to render status chart: %v", err)
	}
}
