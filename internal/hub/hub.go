package hub

import (
	"encoding/json"
	"log"
	"sync"
)

// Client is one connected session. A user may hold several clients at once
// (multiple tabs); pushes fan out to all of them.
type Client struct {
	ID     string
	UserID string
	Send   chan []byte
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

type RegisterMessage struct {
	Action string `json:"action"`
	UserID string `json:"user_id"`
}

func New() *Hub {
	return &Hub{clients: make(map[string]*Client)}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.clients, client.ID)
	close(client.Send)
}

// PushToUser delivers payload to every client registered for userID.
// Slow clients are skipped rather than blocking the poll loop.
func (h *Hub) PushToUser(userID string, payload []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := 0
	for _, client := range h.clients {
		if client.UserID != userID {
			continue
		}
		select {
		case client.Send <- payload:
			delivered++
		default:
			log.Printf("drop message for client %s", client.ID)
		}
	}
	return delivered
}

// Broadcast delivers payload to every connected client regardless of user.
func (h *Hub) Broadcast(payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		select {
		case client.Send <- payload:
		default:
			log.Printf("drop message for client %s", client.ID)
		}
	}
}

func ParseRegister(data []byte) (RegisterMessage, bool) {
	var msg RegisterMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return RegisterMessage{}, false
	}
	if msg.Action != "register" || msg.UserID == "" {
		return RegisterMessage{}, false
	}
	return msg, true
}
