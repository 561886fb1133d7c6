package router

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/penlog-io/penlog/config"
	"github.com/penlog-io/penlog/controllers"
	"github.com/penlog-io/penlog/middlewares"
	"github.com/penlog-io/penlog/models"
)

func SetupRouter(db *gorm.DB) *gin.Engine {
	r := gin.Default()

	// Serve uploaded evidence photos, images only.
	r.Static("/uploads", config.UploadDir())
	r.Use(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/uploads/") {
			path := strings.ToLower(c.Request.URL.Path)
			allowed := strings.HasSuffix(path, ".jpg") ||
				strings.HasSuffix(path, ".jpeg") ||
				strings.HasSuffix(path, ".png") ||
				strings.HasSuffix(path, ".gif") ||
				strings.HasSuffix(path, ".heic")
			if !allowed {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
		}
		c.Next()
	})

	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddlewares())
	r.Use(middlewares.LoggerMiddleware())

	// Global per-IP limiter. Gin snapshots the handler chain when a route is
	// registered, so this has to be attached before any route below.
	r.Use(middlewares.NewRateLimiter(50, 1).RateLimit())

	userCtrl := controllers.NewUserController(db)
	projectCtrl := controllers.NewProjectController(db)
	penCtrl := controllers.NewPenetrationController(db)
	photoCtrl := controllers.NewPhotoController(db)
	contractorCtrl := controllers.NewContractorController(db)
	reportCtrl := controllers.NewReportController(db)
	registrationCtrl := controllers.NewRegistrationController(db)
	accessCtrl := controllers.NewAccessRequestController(db)
	dashboardCtrl := controllers.NewDashboardController(db)
	exportCtrl := controllers.NewExportController(db)
	feedCtrl := controllers.NewFeedController(db)

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{"message": "pong"})
	})

	// ----------------------------------------------------------------
	//                      PUBLIC ROUTES
	// ----------------------------------------------------------------
	authGroup := r.Group("/api/auth")
	authGroup.Use(middlewares.NewStrictRateLimiter())
	{
		authGroup.POST("/register", userCtrl.Register)
		authGroup.POST("/login", userCtrl.Login)
	}

	// Magic-link report surface; the token in the path is the only credential.
	report := r.Group("/api/report/:token")
	{
		report.GET("", reportCtrl.GetReportForm)
		report.POST("/pens", reportCtrl.CreatePenViaToken)
		report.POST("/pens/:pen_id/status", reportCtrl.SubmitReport)
		report.POST("/pens/:pen_id/photos", reportCtrl.UploadPhotoViaToken)
	}

	// Contractor registration via project invite code.
	r.GET("/api/join/:invite_code", registrationCtrl.GetJoinForm)
	r.POST("/api/join/:invite_code", registrationCtrl.SubmitRegistration)

	// Landing-page access requests.
	requestGroup := r.Group("/api/access-requests")
	requestGroup.Use(middlewares.NewStrictRateLimiter())
	{
		requestGroup.POST("", accessCtrl.CreateAccessRequest)
	}

	// ----------------------------------------------------------------
	//                      AUTHENTICATED ROUTES
	// ----------------------------------------------------------------
	api := r.Group("/api")
	api.Use(middlewares.AuthMiddleware())

	api.POST("/auth/logout", userCtrl.Logout)
	api.GET("/profile", userCtrl.GetProfile)

	// PENETRATIONS (all roles; contractor accounts scoped in the controller)
	api.GET("/pens", penCtrl.GetAllPenetrations)
	api.GET("/pens/:pen_id", penCtrl.GetPenetrationByID)
	api.PATCH("/pens/:pen_id", penCtrl.UpdatePenetration)
	api.POST("/pens/:pen_id/status", penCtrl.UpdateStatus)
	api.GET("/pens/:pen_id/activities", penCtrl.GetActivities)
	api.POST("/pens/:pen_id/photos", photoCtrl.UploadPhoto)
	api.GET("/pens/:pen_id/photos", photoCtrl.GetPenetrationPhotos)
	api.GET("/photos/:photo_id", photoCtrl.GetPhotoInfo)
	api.DELETE("/photos/:photo_id", photoCtrl.DeletePhoto)

	// DASHBOARD
	api.GET("/dashboard", dashboardCtrl.GetOverview)
	api.GET("/dashboard/chart", dashboardCtrl.GetStatusChart)

	// STAFF (supervisor/admin)
	staff := api.Group("/")
	staff.Use(middlewares.RequireRoles(models.RoleSupervisor))
	{
		staff.POST("/pens", penCtrl.CreatePenetration)
		staff.DELETE("/pens/:pen_id", penCtrl.DeletePenetration)

		staff.GET("/projects", projectCtrl.GetAllProjects)
		staff.POST("/projects", projectCtrl.CreateProject)
		staff.GET("/projects/:project_id", projectCtrl.GetProjectByID)
		staff.PATCH("/projects/:project_id", projectCtrl.UpdateProject)
		staff.DELETE("/projects/:project_id", projectCtrl.DeleteProject)
		staff.POST("/projects/:project_id/invite-code", projectCtrl.RegenerateInviteCode)
		staff.POST("/projects/:project_id/pens/import", penCtrl.BulkImport)
		staff.GET("/projects/:project_id/links", contractorCtrl.GetProjectAccessLinks)
		staff.GET("/projects/:project_id/export/csv", exportCtrl.ExportCSV)
		staff.GET("/projects/:project_id/export/pdf", exportCtrl.ExportPDF)

		staff.GET("/contractors", contractorCtrl.GetAllContractors)
		staff.POST("/contractors", contractorCtrl.CreateContractor)
		staff.GET("/contractors/:contractor_id", contractorCtrl.GetContractorByID)
		staff.PATCH("/contractors/:contractor_id", contractorCtrl.UpdateContractor)
		staff.GET("/contractors/:contractor_id/stats", contractorCtrl.GetContractorStats)
		staff.POST("/contractors/:contractor_id/links", contractorCtrl.GenerateAccessLink)
		staff.POST("/contractors/:contractor_id/merge", contractorCtrl.MergeContractors)
		staff.POST("/links", contractorCtrl.GenerateUnboundLink)
		staff.POST("/projects/:project_id/contractors/:contractor_id/regenerate-link", contractorCtrl.RegenerateAccessLink)

		staff.GET("/registrations", registrationCtrl.GetPendingRegistrations)
		staff.POST("/registrations/:registration_id/review", registrationCtrl.ReviewRegistration)

		staff.GET("/dashboard/by-contractor", dashboardCtrl.GetByContractor)
	}

	// ADMIN
	admin := api.Group("/admin")
	admin.Use(middlewares.RequireRoles(models.RoleAdmin))
	{
		admin.GET("/users", userCtrl.GetAllUsers)
		admin.DELETE("/users/:user_id", userCtrl.DeleteUser)
		admin.GET("/access-requests", accessCtrl.GetAccessRequests)
		admin.PATCH("/access-requests/:request_id", accessCtrl.UpdateAccessRequest)
	}

	// Live activity feed for staff dashboards.
	ws := r.Group("/ws")
	ws.Use(middlewares.AuthMiddleware())
	ws.GET("/feed", feedCtrl.FeedHandler)

	return r
}
