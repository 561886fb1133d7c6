package Controllers_test

import (
	"bytes"
	"encoding/json"
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

func setupTestDBForUsers(t *testing.T) *gorm.DB {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to connect database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func setupUserRouter(db *gorm.DB) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	userCtrl := controllers.NewUserController(db)
	router.POST("/register", userCtrl.Register)
	router.POST("/login", userCtrl.Login)
	return router
}

func TestRegisterAndLogin(t *testing.T) {
	utils.InitLogger()
	db := setupTestDBForUsers(t)
	router := setupUserRouter(db)

	payload := map[string]string{
		"username": "dockmaster",
		"email":    "Dockmaster@Example.com",
		"password": "supersecret1",
		"role":     models.RoleSupervisor,
	}
	body, _ := json.Marshal(payload)
	req, _ := http.NewRequest("POST", "/register", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusCreated, w.Code)

	// emails are stored lowercased
	var user models.User
	assert.NoError(t, db.Where("email = ?", "dockmaster@example.com").First(&user).Error)
	assert.NotEqual(t, "supersecret1", user.PasswordHash)

	// login with the mixed-case address still works
	login, _ := json.Marshal(map[string]string{
		"email":    "DOCKMASTER@example.com",
		"password": "supersecret1",
	})
	req, _ = http.NewRequest("POST", "/login", bytes.NewBuffer(login))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.NotEmpty(t, data["token"])
	assert.Equal(t, models.RoleSupervisor, data["user_role"])

	// wrong password
	badLogin, _ := json.Marshal(map[string]string{
		"email":    "dockmaster@example.com",
		"password": "wrongpassword",
	})
	req, _ = http.NewRequest("POST", "/login", bytes.NewBuffer(badLogin))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// duplicate registration
	req, _ = http.NewRequest("POST", "/register", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRegisterRejectsBadInput(t *testing.T) {
	utils.InitLogger()
	db := setupTestDBForUsers(t)
	router := setupUserRouter(db)

	cases := []map[string]string{
		{"username": "x", "email": "x@example.com", "password": "short", "role": models.RoleAdmin},
		{"username": "x", "email": "not-an-email", "password": "longenough1", "role": models.RoleAdmin},
		{"username": "x", "email": "x@example.com", "password": "longenough1", "role": "captain"},
	}
	for _, payload := range cases {
		body, _ := json.Marshal(payload)
		req, _ := http.NewRequest("POST", "/register", bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}
}
