package websocket

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// WatchResolver returns the protected users a connecting client monitors, so
// the hub can subscribe them to the right watch rooms.
type WatchResolver func(ctx context.Context, userID primitive.ObjectID) ([]primitive.ObjectID, error)

type Handler struct {
	hub     *Hub
	resolve WatchResolver
}

func NewHandler(resolve WatchResolver) *Handler {
	hub := NewHub()
	go hub.Run()

	return &Handler{
		hub:     hub,
		resolve: resolve,
	}
}

func (h *Handler) HandleWebSocket(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		return
	}

	userObjectID, ok := userID.(primitive.ObjectID)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	var watching []primitive.ObjectID
	if h.resolve != nil {
		resolved, err := h.resolve(c.Request.Context(), userObjectID)
		if err != nil {
			log.Printf("Failed to resolve watch list for %s: %v", userObjectID.Hex(), err)
		} else {
			watching = resolved
		}
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	client := NewClient(h.hub, conn, userObjectID, watching)
	h.hub.register <- client

	go client.writePump()
	go client.readPump()
}

// SendAlertNotification pushes a new or updated alert into the protected
// user's watch room.
func (h *Handler) SendAlertNotification(protectedID primitive.ObjectID, eventType string, data map[string]interface{}) {
	h.hub.SendToRoom(WatchRoom(protectedID), Message{
		Type:      eventType,
		UserID:    protectedID,
		Timestamp: getCurrentTimestamp(),
		Data:      data,
	})
}

// SendLocationUpdate streams the protected user's live position to monitors.
func (h *Handler) SendLocationUpdate(protectedID primitive.ObjectID, lat, lng, speedKmh float64) {
	h.hub.SendToRoom(WatchRoom(protectedID), Message{
		Type:      "location_update",
		UserID:    protectedID,
		Timestamp: getCurrentTimestamp(),
		Data: map[string]interface{}{
			"latitude":  lat,
			"longitude": lng,
			"speed_kmh": speedKmh,
		},
	})
}

// SendUserNotification delivers to one user's personal room.
func (h *Handler) SendUserNotification(userID primitive.ObjectID, notificationType string, data map[string]interface{}) {
	h.hub.SendToUser(userID, Message{
		Type:      notificationType,
		UserID:    userID,
		Timestamp: getCurrentTimestamp(),
		Data:      data,
	})
}
