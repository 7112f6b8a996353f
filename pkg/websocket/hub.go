package websocket

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Hub fans live events out to connected clients. Every client sits in a
// personal room; monitors additionally join one watch room per protected
// user they follow, which is where alerts and location updates land.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	rooms      map[string]map[*Client]bool
	mutex      sync.RWMutex
}

type Message struct {
	Type      string                 `json:"type"`
	RoomID    string                 `json:"room_id,omitempty"`
	UserID    primitive.ObjectID     `json:"user_id,omitempty"`
	Timestamp int64                  `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		rooms:      make(map[string]map[*Client]bool),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastMessage(message)
		}
	}
}

// UserRoom is the personal room every client joins.
func UserRoom(userID primitive.ObjectID) string {
	return "user_" + userID.Hex()
}

// WatchRoom carries events about one protected user to their monitors.
func WatchRoom(protectedID primitive.ObjectID) string {
	return "watch_" + protectedID.Hex()
}

func (h *Hub) registerClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.clients[client] = true
	log.Printf("Client registered: %s", client.UserID.Hex())

	h.joinRoom(client, UserRoom(client.UserID))
	for _, protectedID := range client.Watching {
		h.joinRoom(client, WatchRoom(protectedID))
	}

	welcomeMsg := Message{
		Type:      "welcome",
		UserID:    client.UserID,
		Timestamp: getCurrentTimestamp(),
		Data: map[string]interface{}{
			"message": "Connected successfully",
		},
	}
	h.sendToClient(client, welcomeMsg)
}

func (h *Hub) unregisterClient(client *Client) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}

	delete(h.clients, client)
	for roomID := range client.rooms {
		if room, ok := h.rooms[roomID]; ok {
			delete(room, client)
			if len(room) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}
	close(client.send)
	log.Printf("Client unregistered: %s", client.UserID.Hex())
}

func (h *Hub) joinRoom(client *Client, roomID string) {
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[*Client]bool)
	}
	h.rooms[roomID][client] = true
	client.rooms[roomID] = true
}

func (h *Hub) broadcastMessage(message []byte) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	for client := range h.clients {
		select {
		case client.send <- message:
		default:
			// Slow consumer, drop the connection.
			go func(c *Client) { h.unregister <- c }(client)
		}
	}
}

// SendToRoom delivers a message to every client in the room.
func (h *Hub) SendToRoom(roomID string, message Message) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("Failed to marshal message: %v", err)
		return
	}

	h.mutex.RLock()
	defer h.mutex.RUnlock()

	for client := range h.rooms[roomID] {
		select {
		case client.send <- data:
		default:
		}
	}
}

// SendToUser delivers a message to the user's personal room.
func (h *Hub) SendToUser(userID primitive.ObjectID, message Message) {
	h.SendToRoom(UserRoom(userID), message)
}

func (h *Hub) sendToClient(client *Client, message Message) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("Failed to marshal message: %v", err)
		return
	}
	select {
	case client.send <- data:
	default:
	}
}

func getCurrentTimestamp() int64 {
	return time.Now().UnixMilli()
}
