package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"gorm.io/gorm"

	"github.com/penlog-io/penlog/feed"
	"github.com/penlog-io/penlog/services"
	"github.com/penlog-io/penlog/utils"
)

var feedUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type FeedController struct {
	DB *gorm.DB
}

func NewFeedController(db *gorm.DB) *FeedController {
	return &FeedController{DB: db}
}

// FeedHandler upgrades the connection and keeps it registered with the hub
// until the client goes away. Staff only; contractors never see the feed.
func (fc *FeedController) FeedHandler(c *gin.Context) {
	principal, err := services.CurrentPrincipal(c, fc.DB)
	if err != nil {
		utils.RespondError(c, http.StatusUnauthorized, err)
		return
	}
	if !principal.IsStaff() {
		utils.RespondError(c, http.StatusForbidden, utils.ErrUnauthorized)
		return
	}

	conn, err := feedUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		utils.ErrorLogger.Printf("feed upgrade failed: %v", err)
		return
	}

	feed.RegisterClient(conn, principal.Role)
	utils.InfoLogger.Printf("feed client connected: %s (%s)", principal.Username, principal.Role)

	defer func() {
		feed.UnregisterClient(conn)
		utils.InfoLogger.Printf("feed client disconnected: %s", principal.Username)
	}()

	for {
		// Clients only listen; reads just detect disconnects.
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
