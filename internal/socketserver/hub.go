package socketserver

import (
	"sync"

	"github.com/stefanhoelzl/codehydra-sub002/internal/logger"
)

// Hub maintains the set of active clients and handles broadcasting
type Hub struct {
	clients map[*Client]bool
	mu      sync.RWMutex

	// Outbound notifications for all clients
	broadcast chan *BaseMessage

	// Register/unregister requests from clients
	register   chan *Client
	unregister chan *Client

	done chan struct{}
	once sync.Once

	log *logger.Logger
}

// NewHub creates a new hub
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan *BaseMessage, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log.WithPrefix("hub"),
	}
}

// Run starts the hub's event loop
func (h *Hub) Run() {
	h.log.Debug("Socket hub started")
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			h.broadcastMessage(message)

		case <-h.done:
			h.log.Debug("Socket hub stopped")
			return
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true
	h.log.Info("Socket client registered: %s (total: %d)", client.ID, len(h.clients))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		h.log.Info("Socket client unregistered: %s (total: %d)", client.ID, len(h.clients))
	}
}

func (h *Hub) broadcastMessage(message *BaseMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients {
		select {
		case client.send <- message:
		default:
			// Client's send buffer is full, likely dead connection
			h.log.Warn("Failed to send message to client %s, closing connection", client.ID)
			client.Close()
		}
	}
}

// RegisterClient adds a client (called from client goroutine)
func (h *Hub) RegisterClient(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

// UnregisterClient removes a client (called from client goroutine)
func (h *Hub) UnregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast queues a message for delivery to all connected clients
func (h *Hub) Broadcast(msg *BaseMessage) {
	select {
	case h.broadcast <- msg:
	case <-h.done:
	}
}

// BroadcastWorkspaceRemoved notifies all clients that a workspace is gone
func (h *Hub) BroadcastWorkspaceRemoved(path string) {
	h.Broadcast(NewNotification(MessageTypeWorkspaceRemoved, map[string]string{
		"workspace": path,
	}))
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

// Shutdown stops the event loop and closes all client connections
func (h *Hub) Shutdown() {
	h.once.Do(func() {
		close(h.done)
	})

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		client.Close()
	}
}
