package services

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"tomodachi-cheki/internal/models"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 10 * time.Second

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type         string  `json:"type"`
	PhotoID      string  `json:"photo_id,omitempty"`
	ReceiverName *string `json:"receiver_name,omitempty"`
	ReceivedAt   *int64  `json:"received_at,omitempty"`
	Message      string  `json:"message,omitempty"`
}

// wsClient serializes writes to one connection; gorilla allows a single
// concurrent writer.
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// WSHub manages WebSocket connections
type WSHub struct {
	mu          sync.RWMutex
	connections map[string]*wsClient
}

// NewWSHub creates a new WebSocket hub
func NewWSHub() *WSHub {
	return &WSHub{
		connections: make(map[string]*wsClient),
	}
}

// Register registers a new WebSocket connection for a user. An older
// connection for the same user is closed.
func (h *WSHub) Register(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if existing, exists := h.connections[userID]; exists {
		existing.conn.Close()
	}

	h.connections[userID] = &wsClient{conn: conn}

	log.Info().Str("user_id", userID).Msg("WebSocket connection registered")
}

// Unregister removes the user's connection if it is still conn.
func (h *WSHub) Unregister(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client, exists := h.connections[userID]; exists && client.conn == conn {
		client.conn.Close()
		delete(h.connections, userID)
		log.Info().Str("user_id", userID).Msg("WebSocket connection unregistered")
	}
}

// SendToUser sends a message to a specific user
func (h *WSHub) SendToUser(userID string, message WSMessage) error {
	h.mu.RLock()
	client, exists := h.connections[userID]
	h.mu.RUnlock()

	if !exists {
		return fmt.Errorf("user %s is not connected", userID)
	}

	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := client.write(data); err != nil {
		h.Unregister(userID, client.conn)
		return fmt.Errorf("failed to send message: %w", err)
	}

	return nil
}

// IsOnline checks if a user is online
func (h *WSHub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, exists := h.connections[userID]
	return exists
}

// NotifyPhotoReceived tells an online owner that their photo was received.
func (h *WSHub) NotifyPhotoReceived(ownerID string, photo *models.Photo) {
	if !h.IsOnline(ownerID) {
		log.Debug().Str("user_id", ownerID).Str("photo_id", photo.ID).Msg("Owner offline, skipping notification")
		return
	}

	message := WSMessage{
		Type:         "photo_received",
		PhotoID:      photo.ID,
		ReceiverName: photo.ReceiverName(),
	}
	if photo.ReceivedAt != nil {
		ms := photo.ReceivedAt.UnixMilli()
		message.ReceivedAt = &ms
	}

	if err := h.SendToUser(ownerID, message); err != nil {
		log.Error().
			Err(err).
			Str("user_id", ownerID).
			Str("photo_id", photo.ID).
			Msg("Failed to notify photo received")
	}
}
