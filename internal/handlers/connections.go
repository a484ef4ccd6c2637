package handlers

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// Conn is one live client connection. PlayerID is nil for guests; a guest's
// identity exists only for the connection's lifetime.
type Conn struct {
	ID       uuid.UUID
	PlayerID *uuid.UUID

	sock *websocket.Conn
}

// Identified reports whether the connection belongs to a signed-in player.
func (c *Conn) Identified() bool {
	return c.PlayerID != nil
}

// Send marshals v and writes it to the socket with a write timeout. Safe to
// call with a nil socket (tests); write errors are logged and left for the
// read loop to surface as a disconnect.
func (c *Conn) Send(v interface{}) {
	if c.sock == nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("conn %s: failed to marshal outbound message: %v", c.ID, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := c.sock.Write(ctx, websocket.MessageText, data); err != nil {
		log.Printf("conn %s: write failed: %v", c.ID, err)
	}
}

// Registry tracks every live connection by ID.
type Registry struct {
	mu    sync.Mutex
	conns map[uuid.UUID]*Conn
}

// NewRegistry returns an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[uuid.UUID]*Conn)}
}

// Add registers a connection.
func (r *Registry) Add(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.ID] = c
}

// Remove drops a connection; removing an unknown ID is a no-op.
func (r *Registry) Remove(id uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
}

// Get returns the connection with the given ID, if still live.
func (r *Registry) Get(id uuid.UUID) (*Conn, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[id]
	return c, ok
}

// Resolve maps connection IDs to live connections, skipping any that have
// gone away.
func (r *Registry) Resolve(ids []uuid.UUID) []*Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Conn, 0, len(ids))
	for _, id := range ids {
		if c, ok := r.conns[id]; ok {
			out = append(out, c)
		}
	}
	return out
}
