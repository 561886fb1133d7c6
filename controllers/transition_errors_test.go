package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/penlog-io/penlog/utils"
)

func TestTransitionErrorStatusCodes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	utils.InitLogger()

	cases := []struct {
		name string
		err  error
		code int
	}{
		{"missing pen", utils.ErrNotFound, http.StatusNotFound},
		{"invalid status", utils.ErrInvalidStatus, http.StatusBadRequest},
		{"forbidden transition", utils.ErrUnauthorized, http.StatusForbidden},
		{"lost concurrent update", utils.ErrStorageConflict, http.StatusConflict},
		{"unexpected failure", errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			respondTransitionError(c, tc.err)
			assert.Equal(t, tc.code, w.Code)
		})
	}
}

func TestTransitionErrorEvidenceGatePayload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	utils.InitLogger()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	respondTransitionError(c, &utils.InsufficientEvidenceError{PhotoCount: 1, Required: 2})

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var resp map[string]interface{}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, float64(1), data["photo_count"])
	assert.Equal(t, true, data["requires_photos"])
}
