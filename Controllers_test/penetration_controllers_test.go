package Controllers_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/penlog-io/penlog/controllers"
	"github.com/penlog-io/penlog/database"
	"github.com/penlog-io/penlog/models"
	"github.com/penlog-io/penlog/utils"
)

func setupTestDBForPens(t *testing.T) *gorm.DB {
	// One named in-memory database per test, so parallel seeds never collide.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	supervisor := models.User{
		Username:     "supervisor1",
		Email:        "supervisor@example.com",
		PasswordHash: "not-used",
		Role:         models.RoleSupervisor,
	}
	db.Create(&supervisor)

	contractor := models.Contractor{Name: "Harbor Seals Ltd", Active: true}
	db.Create(&contractor)

	contractorUser := models.User{
		Username:     "sealworker",
		Email:        "worker@harborseals.example",
		PasswordHash: "not-used",
		Role:         models.RoleContractor,
		ContractorID: &contractor.ID,
	}
	db.Create(&contractorUser)

	project := models.Project{
		Name:            "MV Test Refit 2026",
		ShipName:        "MV Test",
		DrydockLocation: "Dock 3",
		Status:          "active",
		InviteCode:      "pens-test-invite",
	}
	db.Create(&project)

	pen := models.Penetration{
		ProjectID:    project.ID,
		PenID:        "P-101",
		Deck:         "Deck 4",
		ContractorID: &contractor.ID,
		Status:       models.StatusNotStarted,
		Priority:     models.PriorityRoutine,
	}
	db.Create(&pen)

	return db
}

// setupPenRouter mounts the pen routes behind a stub auth layer acting as
// the given user.
func setupPenRouter(db *gorm.DB, userID uint) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("user_id", userID)
		c.Next()
	})
	penCtrl := controllers.NewPenetrationController(db)
	router.GET("/pens/:pen_id", penCtrl.GetPenetrationByID)
	router.POST("/pens/:pen_id/status", penCtrl.UpdateStatus)
	router.GET("/pens/:pen_id/activities", penCtrl.GetActivities)
	return router
}

func postStatus(t *testing.T, router *gin.Engine, penID uint, status, notes string) *httptest.ResponseRecorder {
	payload := map[string]string{"status": status}
	if notes != "" {
		payload["notes"] = notes
	}
	body, err := json.Marshal(payload)
	assert.NoError(t, err)

	req, err := http.NewRequest("POST", fmt.Sprintf("/pens/%d/status", penID), bytes.NewBuffer(body))
	assert.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestStatusLifecycleTimestamps(t *testing.T) {
	utils.InitLogger()
	db := setupTestDBForPens(t)
	router := setupPenRouter(db, 1) // supervisor

	var pen models.Penetration
	db.Where("pen_id = ?", "P-101").First(&pen)

	// not_started -> open sets opened_at
	w := postStatus(t, router, pen.ID, models.StatusOpen, "grinding out old sealant")
	assert.Equal(t, http.StatusOK, w.Code)

	db.First(&pen, pen.ID)
	assert.Equal(t, models.StatusOpen, pen.Status)
	assert.NotNil(t, pen.OpenedAt)
	assert.Nil(t, pen.CompletedAt)
	firstOpenedAt := *pen.OpenedAt

	// close requires 2 photos; gate reports the current count
	w = postStatus(t, router, pen.ID, models.StatusClosed, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var resp map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, float64(0), data["photo_count"])
	assert.Equal(t, true, data["requires_photos"])

	db.Create(&models.Photo{PenetrationID: pen.ID, Filename: "a.jpg", Filepath: "uploads/a.jpg"})
	db.Create(&models.Photo{PenetrationID: pen.ID, Filename: "b.jpg", Filepath: "uploads/b.jpg"})

	w = postStatus(t, router, pen.ID, models.StatusClosed, "sealed and coated")
	assert.Equal(t, http.StatusOK, w.Code)
	db.First(&pen, pen.ID)
	assert.Equal(t, models.StatusClosed, pen.Status)
	assert.NotNil(t, pen.CompletedAt)

	// reopening clears completed_at but keeps the original opened_at
	w = postStatus(t, router, pen.ID, models.StatusOpen, "inspection found a gap")
	assert.Equal(t, http.StatusOK, w.Code)
	// Re-read into a fresh struct: gorm leaves stale pointer fields in place
	// when the column is NULL.
	pen = models.Penetration{ID: pen.ID}
	db.First(&pen, pen.ID)
	assert.Equal(t, models.StatusOpen, pen.Status)
	assert.Nil(t, pen.CompletedAt)
	assert.NotNil(t, pen.OpenedAt)
	assert.Equal(t, firstOpenedAt.Unix(), pen.OpenedAt.Unix())

	// back to not_started wipes both timestamps
	w = postStatus(t, router, pen.ID, models.StatusNotStarted, "rescheduled")
	assert.Equal(t, http.StatusOK, w.Code)
	pen = models.Penetration{ID: pen.ID}
	db.First(&pen, pen.ID)
	assert.Nil(t, pen.OpenedAt)
	assert.Nil(t, pen.CompletedAt)
}

func TestSameStatusRecordsNote(t *testing.T) {
	utils.InitLogger()
	db := setupTestDBForPens(t)
	router := setupPenRouter(db, 1)

	var pen models.Penetration
	db.Where("pen_id = ?", "P-101").First(&pen)

	w := postStatus(t, router, pen.ID, models.StatusOpen, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = postStatus(t, router, pen.ID, models.StatusOpen, "still waiting on cable pull")
	assert.Equal(t, http.StatusOK, w.Code)

	var activities []models.PenActivity
	db.Where("penetration_id = ?", pen.ID).Order("id").Find(&activities)
	assert.Len(t, activities, 2)
	assert.Equal(t, models.ActionStatusChanged, activities[0].Action)
	assert.Equal(t, models.ActionNoteAdded, activities[1].Action)
	assert.Equal(t, "still waiting on cable pull", activities[1].Notes)

	// the pen itself is untouched by the note
	db.First(&pen, pen.ID)
	assert.Equal(t, models.StatusOpen, pen.Status)
}

func TestInvalidStatusRejected(t *testing.T) {
	utils.InitLogger()
	db := setupTestDBForPens(t)
	router := setupPenRouter(db, 1)

	var pen models.Penetration
	db.Where("pen_id = ?", "P-101").First(&pen)

	w := postStatus(t, router, pen.ID, "welded_shut", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = postStatus(t, router, 99999, models.StatusOpen, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestContractorCannotVerify(t *testing.T) {
	utils.InitLogger()
	db := setupTestDBForPens(t)

	var contractorUser models.User
	db.Where("role = ?", models.RoleContractor).First(&contractorUser)
	router := setupPenRouter(db, contractorUser.ID)

	var pen models.Penetration
	db.Where("pen_id = ?", "P-101").First(&pen)

	// own pen: open is allowed
	w := postStatus(t, router, pen.ID, models.StatusOpen, "")
	assert.Equal(t, http.StatusOK, w.Code)

	// verification is an inspection act, staff only
	w = postStatus(t, router, pen.ID, models.StatusVerified, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	// a pen assigned to a different contractor is off limits entirely
	other := models.Contractor{Name: "Other Co", Active: true}
	db.Create(&other)
	otherPen := models.Penetration{
		ProjectID:    pen.ProjectID,
		PenID:        "P-102",
		Deck:         "Deck 2",
		ContractorID: &other.ID,
		Status:       models.StatusNotStarted,
		Priority:     models.PriorityRoutine,
	}
	db.Create(&otherPen)

	w = postStatus(t, router, otherPen.ID, models.StatusOpen, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestActivityLogOrder(t *testing.T) {
	utils.InitLogger()
	db := setupTestDBForPens(t)
	router := setupPenRouter(db, 1)

	var pen models.Penetration
	db.Where("pen_id = ?", "P-101").First(&pen)

	postStatus(t, router, pen.ID, models.StatusOpen, "first")
	db.Create(&models.Photo{PenetrationID: pen.ID, Filename: "a.jpg", Filepath: "uploads/a.jpg"})
	db.Create(&models.Photo{PenetrationID: pen.ID, Filename: "b.jpg", Filepath: "uploads/b.jpg"})
	postStatus(t, router, pen.ID, models.StatusClosed, "second")

	req, _ := http.NewRequest("GET", fmt.Sprintf("/pens/%d/activities", pen.ID), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	activities := resp["data"].([]interface{})
	assert.Len(t, activities, 2)
	newest := activities[0].(map[string]interface{})
	assert.Equal(t, models.StatusClosed, newest["new_status"])
	assert.Equal(t, float64(1), newest["user_id"])
}

// A concurrent insert of the same pen_id slips past the duplicate read and
// hits the composite unique index; that failure has to be recognized so the
// client gets the duplicate message instead of a raw constraint error.
func TestDuplicatePenUniqueIndexDetected(t *testing.T) {
	utils.InitLogger()
	db := setupTestDBForPens(t)

	var existing models.Penetration
	db.Where("pen_id = ?", "P-101").First(&existing)

	clash := models.Penetration{
		ProjectID:    existing.ProjectID,
		PenID:        existing.PenID,
		Deck:         "Deck 4",
		ContractorID: existing.ContractorID,
		Status:       models.StatusNotStarted,
		Priority:     models.PriorityRoutine,
	}
	err := db.Create(&clash).Error
	assert.Error(t, err)
	assert.True(t, utils.IsDuplicateKey(err))

	assert.False(t, utils.IsDuplicateKey(errors.New("connection reset")))
	assert.False(t, utils.IsDuplicateKey(nil))
}
