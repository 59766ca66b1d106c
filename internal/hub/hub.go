package hub

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"cipherchat/internal/domain"
)

type request struct {
	client *Client
	done   chan struct{}
}

// Hub maintains the set of active clients and routes messages to them.
type Hub struct {
	log *zap.Logger

	register   chan request
	unregister chan request
	broadcast  chan []byte
	stopped    chan struct{}

	// Written only by Run; read by SendToUser and the counters.
	mu      sync.RWMutex
	clients map[*Client]struct{}
	users   map[domain.UserID]map[*Client]struct{}
}

// New creates a hub. Call Run before registering clients.
func New(log *zap.Logger) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{
		log:        log,
		register:   make(chan request),
		unregister: make(chan request),
		broadcast:  make(chan []byte),
		stopped:    make(chan struct{}),
		clients:    make(map[*Client]struct{}),
		users:      make(map[domain.UserID]map[*Client]struct{}),
	}
}

// Run processes register, unregister and broadcast requests until ctx is
// cancelled, then closes every client queue.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				h.removeLocked(c)
			}
			h.mu.Unlock()
			return

		case req := <-h.register:
			h.mu.Lock()
			h.addLocked(req.client)
			h.mu.Unlock()
			close(req.done)

		case req := <-h.unregister:
			h.mu.Lock()
			h.removeLocked(req.client)
			h.mu.Unlock()
			close(req.done)

		case msg := <-h.broadcast:
			h.mu.RLock()
			var slow []*Client
			for c := range h.clients {
				if !c.enqueue(msg) {
					slow = append(slow, c)
				}
			}
			h.mu.RUnlock()
			if len(slow) > 0 {
				h.mu.Lock()
				for _, c := range slow {
					h.removeLocked(c)
				}
				h.mu.Unlock()
			}
		}
	}
}

func (h *Hub) addLocked(c *Client) {
	if _, ok := h.clients[c]; ok {
		return
	}
	h.clients[c] = struct{}{}
	bucket := h.users[c.userID]
	if bucket == nil {
		bucket = make(map[*Client]struct{})
		h.users[c.userID] = bucket
	}
	bucket[c] = struct{}{}
	h.log.Info("client registered", zap.String("user", c.userID.String()), zap.Int("connections", len(bucket)))
}

func (h *Hub) removeLocked(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	if bucket := h.users[c.userID]; bucket != nil {
		delete(bucket, c)
		if len(bucket) == 0 {
			delete(h.users, c.userID)
		}
	}
	c.closeOnce.Do(func() { close(c.send) })
	h.log.Info("client unregistered", zap.String("user", c.userID.String()))
}

// Register adds c under its user. It returns once the registration is
// visible to SendToUser. Registering with a stopped hub closes c's queue.
func (h *Hub) Register(c *Client) {
	req := request{client: c, done: make(chan struct{})}
	select {
	case h.register <- req:
		<-req.done
	case <-h.stopped:
		c.closeOnce.Do(func() { close(c.send) })
	}
}

// Unregister removes c and closes its queue. It is safe to call any number
// of times, including after the hub stopped.
func (h *Hub) Unregister(c *Client) {
	req := request{client: c, done: make(chan struct{})}
	select {
	case h.unregister <- req:
		<-req.done
	case <-h.stopped:
	}
}

// SendToUser marshals msg once and queues it on every connection of user.
// Connections with a full queue are dropped.
func (h *Hub) SendToUser(user domain.UserID, msg any) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	h.mu.RLock()
	var slow []*Client
	for c := range h.users[user] {
		if !c.enqueue(b) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.log.Warn("dropping slow client", zap.String("user", user.String()))
		go h.Unregister(c)
	}
	return nil
}

// reply queues b on c alone if c is still registered.
func (h *Hub) reply(c *Client, b []byte) bool {
	h.mu.RLock()
	_, ok := h.clients[c]
	queued := ok && c.enqueue(b)
	h.mu.RUnlock()
	if ok && !queued {
		go h.Unregister(c)
	}
	return queued
}

// Broadcast queues msg on every registered connection.
func (h *Hub) Broadcast(msg any) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	select {
	case h.broadcast <- b:
	case <-h.stopped:
	}
	return nil
}

// UserConnections returns the number of live connections of user.
func (h *Hub) UserConnections(user domain.UserID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[user])
}

// Connections returns the number of live connections.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
