package web

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"webcammonitor/internal/logger"
	"webcammonitor/internal/model"
)

// eventMessage is what viewers receive for each triggered event.
type eventMessage struct {
	Source    string    `json:"source"`
	Class     string    `json:"class"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
	Image     string    `json:"image"` // base64 JPEG
}

// Hub fans triggered events out to connected websocket viewers.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mutex      sync.RWMutex
	log        *logger.Logger
}

// NewHub creates an empty hub.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 8),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		log:        log,
	}
}

// Run pumps registrations and broadcasts until ctx is cancelled, then closes
// every remaining connection.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mutex.Unlock()
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mutex.Unlock()
			h.log.Info("Viewer connected. Total: %d", total)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			total := len(h.clients)
			h.mutex.Unlock()
			h.log.Info("Viewer disconnected. Total: %d", total)

		case message := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
					h.log.Error("Error sending to viewer: %v", err)
					delete(h.clients, client)
					client.Close()
				}
			}
			h.mutex.Unlock()
		}
	}
}

// Register adds a viewer connection.
func (h *Hub) Register(client *websocket.Conn) {
	h.register <- client
}

// Unregister drops a viewer connection.
func (h *Hub) Unregister(client *websocket.Conn) {
	h.unregister <- client
}

// PublishEvent broadcasts a triggered event with its (possibly annotated)
// image. Dropped rather than blocking when the hub is behind; viewers are
// best-effort and must never stall the monitor loop.
func (h *Hub) PublishEvent(event model.Event, image []byte) {
	if len(image) == 0 {
		image = event.Frame.Data
	}
	msg := eventMessage{
		Source:    event.Frame.Source,
		Class:     event.Class,
		Reason:    event.Reason,
		Timestamp: event.Frame.Timestamp,
		Image:     base64.StdEncoding.EncodeToString(image),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("Error encoding event message: %v", err)
		return
	}

	select {
	case h.broadcast <- payload:
	default:
		h.log.Warning("Viewer broadcast queue full, dropping event")
	}
}

// ClientCount returns the number of connected viewers.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
