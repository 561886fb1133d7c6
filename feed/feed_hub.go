package feed

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/penlog-io/penlog/models"
)

// Event types pushed over the live activity feed.
const (
	EventActivity  = "pen_activity"
	EventPenUpdate = "pen_update"
)

type Message struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Hub holds every connected feed client (supervisor dashboards, mostly) and
// broadcasts activity records as they are written.
type Hub struct {
	clients map[*websocket.Conn]string // conn -> role
	mutex   sync.Mutex
}

var hub = Hub{
	clients: make(map[*websocket.Conn]string),
}

// RegisterClient adds a connection with its role.
func RegisterClient(conn *websocket.Conn, role string) {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	hub.clients[conn] = role
}

// UnregisterClient removes and closes a connection.
func UnregisterClient(conn *websocket.Conn) {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()
	delete(hub.clients, conn)
	conn.Close()
}

// BroadcastActivity pushes a freshly appended activity record together with
// the updated penetration snapshot.
func BroadcastActivity(activity models.PenActivity, pen models.Penetration) {
	broadcast(Message{
		Event: EventActivity,
		Data: map[string]interface{}{
			"activity":    activity,
			"penetration": pen,
		},
	})
}

// BroadcastPenUpdate pushes a penetration field change.
func BroadcastPenUpdate(pen models.Penetration) {
	broadcast(Message{
		Event: EventPenUpdate,
		Data:  pen,
	})
}

func broadcast(msg Message) {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()

	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	for conn := range hub.clients {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			// Dead connection, evict it so the hub does not accumulate
			// stale clients. The mutex is already held here.
			delete(hub.clients, conn)
			conn.Close()
		}
	}
}
