package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/Criminal-Justice-Comps/Fairness/internal/logging"
	"github.com/Criminal-Justice-Comps/Fairness/internal/scanner"
	"github.com/Criminal-Justice-Comps/Fairness/pkg/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all for local dashboard
	},
}

// Hub maintains the set of active websocket clients and broadcasts messages.
type Hub struct {
	clients   map[*websocket.Conn]bool
	broadcast chan []byte
	mutex     sync.Mutex
	logger    *slog.Logger
}

func NewHub() *Hub {
	return &Hub{
		broadcast: make(chan []byte, 256),
		clients:   make(map[*websocket.Conn]bool),
		logger:    logging.Component("api"),
	}
}

func (h *Hub) Run() {
	for message := range h.broadcast {
		h.mutex.Lock()
		for client := range h.clients {
			// Set write deadline to prevent blocked clients from hanging the hub
			_ = client.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Warn("websocket write failed", "error", err)
				client.Close()
				delete(h.clients, client)
			}
		}
		h.mutex.Unlock()
	}
}

// Clients is the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.clients)
}

// Subscribe handles incoming websocket connections
func (h *Hub) Subscribe(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("failed to upgrade websocket", "error", err)
		return
	}

	h.mutex.Lock()
	h.clients[conn] = true
	total := len(h.clients)
	h.mutex.Unlock()
	h.logger.Info("websocket client connected", "clients", total)

	// We only push, but must read to notice disconnects.
	go func() {
		defer func() {
			h.mutex.Lock()
			delete(h.clients, conn)
			h.mutex.Unlock()
			conn.Close()
			h.logger.Info("websocket client disconnected", "clients", h.Clients())
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
					h.logger.Warn("websocket error", "error", err)
				}
				break
			}
		}
	}()
}

// Broadcast queues data for every client. When the queue is full the message
// is dropped rather than stalling the evaluation that produced it.
func (h *Hub) Broadcast(data []byte) {
	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("stream queue full, dropping message")
	}
}

func (h *Hub) broadcastJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		h.logger.Warn("failed to encode stream message", "error", err)
		return
	}
	h.Broadcast(b)
}

// StreamObserver forwards every evaluation of a run to the hub.
type StreamObserver struct {
	hub *Hub
}

func NewStreamObserver(hub *Hub) *StreamObserver {
	return &StreamObserver{hub: hub}
}

func (o *StreamObserver) ClassifierStarted(classifier string) {
	o.hub.broadcastJSON(gin.H{"type": "classifier_started", "classifier": classifier})
}

func (o *StreamObserver) Evaluated(e models.Evaluation) {
	o.hub.broadcastJSON(gin.H{"type": "evaluation", "evaluation": e})
}

func (o *StreamObserver) ClassifierFinished(classifier string, err error) {
	msg := gin.H{"type": "classifier_finished", "classifier": classifier}
	if err != nil {
		msg["error"] = err.Error()
	}
	o.hub.broadcastJSON(msg)
}

// BroadcastDisparityAlert sends a disparate-impact alert via the hub.
// This is wired as the alertFunc callback for the Scanner.
func BroadcastDisparityAlert(hub *Hub) func(scanner.DisparityAlert) {
	return func(alert scanner.DisparityAlert) {
		hub.broadcastJSON(gin.H{"type": "disparity_alert", "alert": alert})
		hub.logger.Info("disparate impact detected",
			"dataset", alert.Dataset,
			"classifier", alert.Classifier,
			"feature", alert.Feature,
			"minority", alert.MinorityLabel,
			"majority", alert.MajorityLabel,
			"likelihood_ratio", alert.LikelihoodRatio)
	}
}
