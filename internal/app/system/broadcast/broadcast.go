// internal/app/system/broadcast/broadcast.go
// Package broadcast fans group state out to the connections joined to
// each group.
package broadcast

import (
	"sort"
	"sync"

	"github.com/dalemusser/groupdrop/internal/domain/models"
	"go.uber.org/zap"
)

// EventGroupLog carries a models.GroupSnapshot.
const EventGroupLog = "group-log"

// Conn is a realtime connection that can receive events.
// Send must not block for long; slow connections should fail fast.
type Conn interface {
	ID() string
	Send(event string, payload any) error
}

// Hub tracks which connections are subscribed to which group.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[string]Conn
	log   *zap.Logger
}

// NewHub returns a hub with no subscriptions.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		rooms: make(map[string]map[string]Conn),
		log:   logger,
	}
}

// Subscribe adds c to the group's channel.
func (h *Hub) Subscribe(code string, c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[code]
	if !ok {
		room = make(map[string]Conn)
		h.rooms[code] = room
	}
	room[c.ID()] = c
}

// Unsubscribe removes a connection from the group's channel.
func (h *Hub) Unsubscribe(code, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room, ok := h.rooms[code]
	if !ok {
		return
	}
	delete(room, connID)
	if len(room) == 0 {
		delete(h.rooms, code)
	}
}

// Drop removes every subscription for a group.
func (h *Hub) Drop(code string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rooms, code)
}

// Subscribers returns the subscribed connection IDs in sorted order.
func (h *Hub) Subscribers(code string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.rooms[code]))
	for id := range h.rooms[code] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Publish sends snap to every subscriber of code and returns how many
// sends succeeded. A failed send is logged; the connection's own teardown
// takes care of unsubscribing it.
func (h *Hub) Publish(code string, snap models.GroupSnapshot) int {
	h.mu.RLock()
	conns := make([]Conn, 0, len(h.rooms[code]))
	for _, c := range h.rooms[code] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range conns {
		if err := c.Send(EventGroupLog, snap); err != nil {
			h.log.Debug("broadcast send failed",
				zap.String("group_code", code),
				zap.String("conn_id", c.ID()),
				zap.Error(err))
			continue
		}
		delivered++
	}
	return delivered
}
