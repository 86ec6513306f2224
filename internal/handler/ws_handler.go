package handler

import (
	"log"
	"net/http"

	"erp-conflict-engine/internal/websocket"
	"erp-conflict-engine/pkg/token"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
)

type WebSocketHandler struct {
	manager     *websocket.Manager
	authEnabled bool
	jwtSecret   string
	upgrader    ws.Upgrader
}

func NewWebSocketHandler(manager *websocket.Manager, authEnabled bool, jwtSecret string, readBufferSize, writeBufferSize int) *WebSocketHandler {
	return &WebSocketHandler{
		manager:     manager,
		authEnabled: authEnabled,
		jwtSecret:   jwtSecret,
		upgrader: ws.Upgrader{
			ReadBufferSize:  readBufferSize,
			WriteBufferSize: writeBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// HandleConnection upgrades an operator client onto the notification
// stream.
func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	operatorID := "operator"

	if h.authEnabled {
		raw := r.URL.Query().Get("token")
		if raw == "" {
			raw = r.Header.Get("Authorization")
			if len(raw) > 7 && raw[:7] == "Bearer " {
				raw = raw[7:]
			}
		}

		if raw == "" {
			http.Error(w, "missing authorization token", http.StatusUnauthorized)
			return
		}

		claims, err := token.ValidateToken(raw, h.jwtSecret)
		if err != nil {
			log.Printf("[WebSocket] token validation failed: %v", err)
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		operatorID = claims.UserID
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WebSocket] failed to upgrade connection: %v", err)
		return
	}

	client := websocket.NewClient(uuid.New().String(), operatorID, conn, h.manager)
	h.manager.Register <- client

	go client.ReadPump()
	go client.WritePump()
}
