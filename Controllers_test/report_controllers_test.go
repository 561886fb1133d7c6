package Controllers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/penlog-io/penlog/controllers"
	"github.com/penlog-io/penlog/database"
	"github.com/penlog-io/penlog/models"
	"github.com/penlog-io/penlog/utils"
)

func setupTestDBForReports(t *testing.T) (*gorm.DB, *models.ContractorAccessToken) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	project := models.Project{
		Name:            "MV Report Refit",
		ShipName:        "MV Report",
		DrydockLocation: "Dock 1",
		Status:          "active",
		InviteCode:      "report-test-invite",
		EmbarkationDate: time.Now().Add(30 * 24 * time.Hour),
	}
	db.Create(&project)

	// Unbound link: the contractor identity is resolved on first use.
	token := models.ContractorAccessToken{
		ProjectID: project.ID,
		Token:     models.GenerateAccessToken(),
		Active:    true,
	}
	db.Create(&token)

	return db, &token
}

func setupReportRouter(db *gorm.DB) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	reportCtrl := controllers.NewReportController(db)
	router.GET("/report/:token", reportCtrl.GetReportForm)
	router.POST("/report/:token/pens", reportCtrl.CreatePenViaToken)
	router.POST("/report/:token/pens/:pen_id/status", reportCtrl.SubmitReport)
	return router
}

func postJSON(t *testing.T, router *gin.Engine, url string, payload interface{}) *httptest.ResponseRecorder {
	body, err := json.Marshal(payload)
	assert.NoError(t, err)
	req, err := http.NewRequest("POST", url, bytes.NewBuffer(body))
	assert.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestInvalidTokenRejected(t *testing.T) {
	utils.InitLogger()
	db, tok := setupTestDBForReports(t)
	router := setupReportRouter(db)

	req, _ := http.NewRequest("GET", "/report/not-a-real-token", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// a revoked token is just as dead as an unknown one
	db.Model(&models.ContractorAccessToken{}).Where("id = ?", tok.ID).Update("active", false)
	req, _ = http.NewRequest("GET", "/report/"+tok.Token, nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestUnboundTokenBindsOnFirstUse(t *testing.T) {
	utils.InitLogger()
	db, tok := setupTestDBForReports(t)
	router := setupReportRouter(db)

	w := postJSON(t, router, "/report/"+tok.Token+"/pens", map[string]string{
		"pen_id":       "P-201",
		"deck":         "Deck 6",
		"location":     "engine room fwd bulkhead",
		"company_name": "Harbor Seals Ltd",
	})
	assert.Equal(t, http.StatusCreated, w.Code)

	// the company was materialized and the token bound to it
	var contractor models.Contractor
	assert.NoError(t, db.Where("name = ?", "Harbor Seals Ltd").First(&contractor).Error)

	var bound models.ContractorAccessToken
	db.First(&bound, tok.ID)
	assert.NotNil(t, bound.ContractorID)
	assert.Equal(t, contractor.ID, *bound.ContractorID)

	var pen models.Penetration
	assert.NoError(t, db.Where("pen_id = ?", "P-201").First(&pen).Error)
	assert.Equal(t, models.StatusNotStarted, pen.Status)
	assert.Equal(t, contractor.ID, *pen.ContractorID)

	// same pen_id again for the same contractor is a duplicate
	w = postJSON(t, router, "/report/"+tok.Token+"/pens", map[string]string{
		"pen_id":   "P-201",
		"deck":     "Deck 6",
		"location": "engine room fwd bulkhead",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReportOpenAndCloseFlow(t *testing.T) {
	utils.InitLogger()
	db, tok := setupTestDBForReports(t)
	router := setupReportRouter(db)

	w := postJSON(t, router, "/report/"+tok.Token+"/pens", map[string]string{
		"pen_id":       "P-300",
		"deck":         "Deck 2",
		"location":     "galley overhead",
		"company_name": "Bulkhead Bros",
	})
	assert.Equal(t, http.StatusCreated, w.Code)

	var pen models.Penetration
	db.Where("pen_id = ?", "P-300").First(&pen)

	// open
	w = postJSON(t, router, fmt.Sprintf("/report/%s/pens/%d/status", tok.Token, pen.ID), map[string]interface{}{
		"action": "open",
		"notes":  "removed old collar",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	db.First(&pen, pen.ID)
	assert.Equal(t, models.StatusOpen, pen.Status)
	assert.NotNil(t, pen.OpenedAt)

	// close without photos hits the evidence gate
	w = postJSON(t, router, fmt.Sprintf("/report/%s/pens/%d/status", tok.Token, pen.ID), map[string]interface{}{
		"action": "close",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	db.Create(&models.Photo{PenetrationID: pen.ID, Filename: "before.jpg", Filepath: "uploads/before.jpg"})
	db.Create(&models.Photo{PenetrationID: pen.ID, Filename: "after.jpg", Filepath: "uploads/after.jpg"})

	w = postJSON(t, router, fmt.Sprintf("/report/%s/pens/%d/status", tok.Token, pen.ID), map[string]interface{}{
		"action": "close",
		"notes":  "resealed, fire putty cured",
	})
	assert.Equal(t, http.StatusOK, w.Code)

	db.First(&pen, pen.ID)
	assert.Equal(t, models.StatusClosed, pen.Status)
	assert.NotNil(t, pen.CompletedAt)

	// audit attribution: no user, contractor-name snapshot, form wording
	var activities []models.PenActivity
	db.Where("penetration_id = ?", pen.ID).Order("id").Find(&activities)
	assert.Len(t, activities, 2)
	assert.Equal(t, models.ActionOpened, activities[0].Action)
	assert.Equal(t, models.ActionClosed, activities[1].Action)
	for _, activity := range activities {
		assert.Nil(t, activity.UserID)
		assert.Equal(t, "Bulkhead Bros", activity.ContractorName)
	}

	// invalid action wording is rejected outright
	w = postJSON(t, router, fmt.Sprintf("/report/%s/pens/%d/status", tok.Token, pen.ID), map[string]interface{}{
		"action": "verify",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestReportFormListsOwnPens(t *testing.T) {
	utils.InitLogger()
	db, tok := setupTestDBForReports(t)
	router := setupReportRouter(db)

	contractor := models.Contractor{Name: "Formed Co", Active: true}
	db.Create(&contractor)
	db.Model(&models.ContractorAccessToken{}).Where("id = ?", tok.ID).Update("contractor_id", contractor.ID)

	db.Create(&models.Penetration{
		ProjectID:    tok.ProjectID,
		PenID:        "P-401",
		Deck:         "Deck 1",
		ContractorID: &contractor.ID,
		Status:       models.StatusNotStarted,
		Priority:     models.PriorityRoutine,
	})

	req, _ := http.NewRequest("GET", "/report/"+tok.Token, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	pens := data["penetrations"].([]interface{})
	assert.Len(t, pens, 1)

	// usage is tracked
	var used models.ContractorAccessToken
	db.First(&used, tok.ID)
	assert.NotNil(t, used.LastUsedAt)
}
