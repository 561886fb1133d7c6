package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/penlog-io/penlog/config"
	"github.com/penlog-io/penlog/models"
	"github.com/penlog-io/penlog/services"
	"github.com/penlog-io/penlog/utils"
)

var allowedPhotoExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".heic": true,
}

type PhotoController struct {
	DB *gorm.DB
}

func NewPhotoController(db *gorm.DB) *PhotoController {
	return &PhotoController{DB: db}
}

// storeUploadedPhoto validates the multipart file and writes it under the
// upload dir with a uuid name. userID is nil for magic-link uploads.
func storeUploadedPhoto(c *gin.Context, penetrationID uint, userID *uint) (*models.Photo, error) {
	file, err := c.FormFile("file")
	if err != nil {
		return nil, errors.New("no file provided")
	}

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if !allowedPhotoExtensions[ext] {
		return nil, errors.New("invalid file type, allowed: png, jpg, jpeg, gif, heic")
	}

	photoType := c.PostForm("photo_type")
	if photoType == "" {
		photoType = models.PhotoGeneral
	}

	dir := filepath.Join(config.UploadDir(), fmt.Sprintf("pen_%d", penetrationID))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	stored := filepath.Join(dir, uuid.NewString()+ext)
	if err := c.SaveUploadedFile(file, stored); err != nil {
		return nil, err
	}

	return &models.Photo{
		PenetrationID: penetrationID,
		UserID:        userID,
		Filename:      filepath.Base(file.Filename),
		Filepath:      stored,
		Caption:       c.PostForm("caption"),
		PhotoType:     photoType,
	}, nil
}

// UploadPhoto attaches evidence to a pen (authenticated path).
func (phc *PhotoController) UploadPhoto(c *gin.Context) {
	principal, err := services.CurrentPrincipal(c, phc.DB)
	if err != nil {
		utils.RespondError(c, http.StatusUnauthorized, err)
		return
	}

	var pen models.Penetration
	if err := phc.DB.First(&pen, c.Param("pen_id")).Error; err != nil {
		utils.RespondError(c, http.StatusNotFound, utils.ErrNotFound)
		return
	}

	if err := principal.CanEditPen(&pen); err != nil {
		utils.RespondError(c, http.StatusForbidden, err)
		return
	}

	photo, err := storeUploadedPhoto(c, pen.ID, principal.UserID)
	if err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	if err := phc.DB.Create(photo).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	utils.RespondJSON(c, http.StatusCreated, "Photo uploaded", photo)
}

// GetPhotoInfo returns photo metadata.
func (phc *PhotoController) GetPhotoInfo(c *gin.Context) {
	var photo models.Photo
	if err := phc.DB.First(&photo, c.Param("photo_id")).Error; err != nil {
		utils.RespondError(c, http.StatusNotFound, utils.ErrNotFound)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Photo info", photo)
}

// DeletePhoto removes a photo. Only the uploader or a supervisor/admin may
// delete; a failed file removal is logged and never blocks the record
// delete.
func (phc *PhotoController) DeletePhoto(c *gin.Context) {
	principal, err := services.CurrentPrincipal(c, phc.DB)
	if err != nil {
		utils.RespondError(c, http.StatusUnauthorized, err)
		return
	}

	var photo models.Photo
	if err := phc.DB.First(&photo, c.Param("photo_id")).Error; err != nil {
		utils.RespondError(c, http.StatusNotFound, utils.ErrNotFound)
		return
	}

	isUploader := photo.UserID != nil && principal.UserID != nil && *photo.UserID == *principal.UserID
	if !isUploader && !principal.IsStaff() {
		utils.RespondError(c, http.StatusForbidden, utils.ErrUnauthorized)
		return
	}

	if err := os.Remove(photo.Filepath); err != nil && !os.IsNotExist(err) {
		// Best effort: an orphaned file on disk beats a photo the gate still
		// counts.
		utils.ErrorLogger.Printf("failed to remove photo file %s: %v", photo.Filepath, err)
	}

	if err := phc.DB.Delete(&photo).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	utils.RespondJSON(c, http.StatusOK, "Photo deleted", gin.H{"photo_id": photo.ID})
}

// GetPenetrationPhotos lists photos for a pen, newest first.
func (phc *PhotoController) GetPenetrationPhotos(c *gin.Context) {
	var pen models.Penetration
	if err := phc.DB.First(&pen, c.Param("pen_id")).Error; err != nil {
		utils.RespondError(c, http.StatusNotFound, utils.ErrNotFound)
		return
	}

	var photos []models.Photo
	if err := phc.DB.Where("penetration_id = ?", pen.ID).
		Order("uploaded_at DESC").
		Find(&photos).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	utils.RespondJSON(c, http.StatusOK, "Photos", photos)
}
