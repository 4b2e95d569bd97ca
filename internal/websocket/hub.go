package websocket

import (
	"context"
	"log"
	"sync"
)

// delivery is a payload addressed to every connection of one user, or to a
// single connection when client is set.
type delivery struct {
	userID  string
	client  *Client
	payload []byte
}

// Hub tracks the live connections of each user and pushes payloads to them.
// A user may be connected from several clients at once.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]bool

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Payloads aimed at a specific user.
	direct chan delivery

	// Closed when Run returns.
	done chan struct{}
}

// NewHub creates a new Hub. Run must be started before clients connect.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		direct:     make(chan delivery, 256),
		done:       make(chan struct{}),
	}
}

// Push queues payload for the connections of userID. It never blocks; the
// payload is dropped when the queue is full. Users without a live connection
// read their notifications over HTTP instead.
func (h *Hub) Push(userID string, payload []byte) {
	select {
	case h.direct <- delivery{userID: userID, payload: payload}:
	default:
		log.Printf("警告: Hub direct channel is full. Dropping push for user %s", userID)
	}
}

// Connections returns the number of live connections of userID.
func (h *Hub) Connections(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Run serves register, unregister and push requests until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	log.Println("WebSocket Hub Run loop started.")
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			log.Println("WebSocket Hub Run loop stopped.")
			return

		case client := <-h.register:
			h.mu.Lock()
			set, ok := h.clients[client.UserID]
			if !ok {
				set = make(map[*Client]bool)
				h.clients[client.UserID] = set
			}
			set[client] = true
			h.mu.Unlock()
			log.Printf("Client registered: user %s (%d connections)", client.UserID, len(set))

		case client := <-h.unregister:
			h.remove(client)

		case d := <-h.direct:
			h.mu.RLock()
			targets := make([]*Client, 0, len(h.clients[d.userID]))
			for c := range h.clients[d.userID] {
				if d.client == nil || d.client == c {
					targets = append(targets, c)
				}
			}
			h.mu.RUnlock()

			for _, client := range targets {
				select {
				case client.send <- d.payload:
				default:
					// The client is too slow to keep up; drop the connection.
					log.Printf("警告: send buffer of user %s is full, removing client.", d.userID)
					h.remove(client)
				}
			}
		}
	}
}

// remove unregisters client and closes its send channel once.
func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[client.UserID]
	if !ok || !set[client] {
		return
	}
	delete(set, client)
	if len(set) == 0 {
		delete(h.clients, client.UserID)
	}
	close(client.send)
	log.Printf("Client unregistered: user %s", client.UserID)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, set := range h.clients {
		for client := range set {
			close(client.send)
		}
		delete(h.clients, userID)
	}
}
