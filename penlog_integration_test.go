package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/penlog-io/penlog/database"
	"github.com/penlog-io/penlog/models"
	"github.com/penlog-io/penlog/router"
	"github.com/penlog-io/penlog/utils"
)

func TestMain(m *testing.M) {
	utils.InitLogger()
	os.Exit(m.Run())
}

// TestEndToEndDrydockFlow walks the main story of a drydock period:
// 1. Supervisor logs in and creates the project
// 2. Supervisor issues an unbound magic link
// 3. A contractor, via the link, registers a pen they found on board
// 4. Contractor opens it, attaches two photos, closes it
// 5. Supervisor verifies the seal
// 6. The ledger tells the whole story with correct attribution
func TestEndToEndDrydockFlow(t *testing.T) {
	os.Setenv("UPLOAD_FOLDER", t.TempDir())
	db := setupIntegrationDB(t)
	r := router.SetupRouter(db)

	jwt := loginSupervisor(t, r)
	projectID := createProject(t, r, jwt)
	magicToken := createUnboundLink(t, r, jwt, projectID)

	// Contractor side, no login at all.
	penID := createPenViaLink(t, r, magicToken)
	submitReport(t, r, magicToken, penID, "open", "chipped out old compound")

	// Closing before photos are up must bounce.
	w := reportStatus(r, magicToken, penID, "close", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	uploadPhotoViaLink(t, r, magicToken, penID, "before.jpg")
	uploadPhotoViaLink(t, r, magicToken, penID, "after.jpg")

	submitReport(t, r, magicToken, penID, "close", "packed and sealed")

	// Supervisor verifies through the authenticated surface.
	verifyBody, _ := json.Marshal(map[string]string{
		"status": models.StatusVerified,
		"notes":  "inspected, seal intact",
	})
	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/api/pens/%d/status", penID), bytes.NewBuffer(verifyBody))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+jwt)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var pen models.Penetration
	require.NoError(t, db.First(&pen, penID).Error)
	assert.Equal(t, models.StatusVerified, pen.Status)
	assert.NotNil(t, pen.OpenedAt)
	assert.NotNil(t, pen.CompletedAt)

	// Three ledger entries: opened and closed by the contractor snapshot,
	// verified by the supervisor account.
	var activities []models.PenActivity
	require.NoError(t, db.Where("penetration_id = ?", penID).Order("id").Find(&activities).Error)
	require.Len(t, activities, 3)

	assert.Equal(t, models.ActionOpened, activities[0].Action)
	assert.Equal(t, models.ActionClosed, activities[1].Action)
	assert.Equal(t, models.ActionStatusChanged, activities[2].Action)

	assert.Nil(t, activities[0].UserID)
	assert.Equal(t, "Seaside Sealing BV", activities[0].ContractorName)
	assert.Nil(t, activities[1].UserID)
	assert.Equal(t, "Seaside Sealing BV", activities[1].ContractorName)

	require.NotNil(t, activities[2].UserID)
	assert.Empty(t, activities[2].ContractorName)
	assert.Equal(t, models.StatusVerified, activities[2].NewStatus)
}

func setupIntegrationDB(t *testing.T) *gorm.DB {
	gin.SetMode(gin.TestMode)
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	hashed, _ := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.DefaultCost)
	db.Create(&models.User{
		Username:     "dock_supervisor",
		Email:        "supervisor@example.com",
		PasswordHash: string(hashed),
		Role:         models.RoleSupervisor,
	})
	return db
}

func loginSupervisor(t *testing.T, r *gin.Engine) string {
	body, _ := json.Marshal(map[string]string{
		"email":    "supervisor@example.com",
		"password": "secret123",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Data.Token)
	return resp.Data.Token
}

func createProject(t *testing.T, r *gin.Engine, jwt string) uint {
	body, _ := json.Marshal(map[string]interface{}{
		"name":             "MV Noordzee 2026 Refit",
		"ship_name":        "MV Noordzee",
		"drydock_location": "Rotterdam Dock 7",
		"start_date":       time.Now().Format(time.RFC3339),
		"embarkation_date": time.Now().Add(45 * 24 * time.Hour).Format(time.RFC3339),
	})
	req := httptest.NewRequest(http.MethodPost, "/api/projects", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+jwt)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Data struct {
			ID uint `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotZero(t, resp.Data.ID)
	return resp.Data.ID
}

func createUnboundLink(t *testing.T, r *gin.Engine, jwt string, projectID uint) string {
	body, _ := json.Marshal(map[string]uint{"project_id": projectID})
	req := httptest.NewRequest(http.MethodPost, "/api/links", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+jwt)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Data struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Data.Token)
	return resp.Data.Token
}

func createPenViaLink(t *testing.T, r *gin.Engine, magicToken string) uint {
	body, _ := json.Marshal(map[string]string{
		"pen_id":       "FZ2-D4-017",
		"deck":         "Deck 4",
		"fire_zone":    "FZ2",
		"location":     "cable tray above aft stairwell",
		"company_name": "Seaside Sealing BV",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/report/"+magicToken+"/pens", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp struct {
		Data struct {
			ID uint `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotZero(t, resp.Data.ID)
	return resp.Data.ID
}

func reportStatus(r *gin.Engine, magicToken string, penID uint, action, notes string) *httptest.ResponseRecorder {
	payload := map[string]string{"action": action}
	if notes != "" {
		payload["notes"] = notes
	}
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(http.MethodPost,
		fmt.Sprintf("/api/report/%s/pens/%d/status", magicToken, penID), bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func submitReport(t *testing.T, r *gin.Engine, magicToken string, penID uint, action, notes string) {
	w := reportStatus(r, magicToken, penID, action, notes)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func uploadPhotoViaLink(t *testing.T, r *gin.Engine, magicToken string, penID uint, filename string) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = io.WriteString(part, "not-really-a-jpeg")
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost,
		fmt.Sprintf("/api/report/%s/pens/%d/photos", magicToken, penID), &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

// The global per-IP limiter has to sit in front of every registered route;
// middleware attached after registration would never run at all.
func TestGlobalRateLimitGuardsRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	db := setupIntegrationDB(t)
	r := router.SetupRouter(db)

	var last int
	limited := false
	for i := 0; i < 55; i++ {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		last = w.Code
		if i == 0 {
			require.Equal(t, http.StatusOK, w.Code)
		}
		if w.Code == http.StatusTooManyRequests {
			limited = true
		}
	}
	assert.True(t, limited)
	assert.Equal(t, http.StatusTooManyRequests, last)
}
