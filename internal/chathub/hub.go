package chathub

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"groupouting/backend/internal/models"
)

// registration is what a connection last announced. A connection that has not
// announced yet has an empty roomID and receives nothing.
type registration struct {
	conn   Connection
	user   models.Identity
	roomID string
}

// Hub is the registry of live connections and the room each one is looking at.
// It is safe for concurrent use; Broadcast never holds the lock while sending.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*registration
	log   logrus.FieldLogger
}

func NewHub(log logrus.FieldLogger) *Hub {
	return &Hub{
		conns: make(map[string]*registration),
		log:   log.WithField("component", "hub"),
	}
}

// Register adds a freshly opened connection with no room.
func (h *Hub) Register(c Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[c.ID()]; !ok {
		h.conns[c.ID()] = &registration{conn: c}
	}
}

// Announce points a registered connection at a room, replacing any earlier
// announcement. It reports false, and changes nothing, for a connection that was
// never registered or has since been unregistered or shut down.
func (h *Hub) Announce(c Connection, user models.Identity, roomID string) bool {
	h.mu.Lock()
	reg, ok := h.conns[c.ID()]
	if ok {
		h.conns[c.ID()] = &registration{conn: reg.conn, user: user, roomID: roomID}
	}
	h.mu.Unlock()

	if !ok {
		h.log.WithField("conn_id", c.ID()).Debug("announce from unregistered connection ignored")
		return false
	}
	h.log.WithFields(logrus.Fields{"conn_id": c.ID(), "room_id": roomID, "user_id": user.ID}).Debug("connection announced")
	return true
}

// Withdraw clears the connection's room but keeps it registered.
func (h *Hub) Withdraw(c Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if reg, ok := h.conns[c.ID()]; ok {
		h.conns[c.ID()] = &registration{conn: reg.conn}
	}
}

// Unregister forgets the connection. Nothing is delivered to it afterwards.
func (h *Hub) Unregister(c Connection) {
	h.mu.Lock()
	delete(h.conns, c.ID())
	h.mu.Unlock()
}

// Broadcast pushes the event to every connection announced to roomID and returns how
// many accepted it. A failed push is logged and skipped.
func (h *Hub) Broadcast(roomID string, event models.Event) int {
	h.mu.RLock()
	targets := make([]Connection, 0, len(h.conns))
	for _, reg := range h.conns {
		if reg.roomID == roomID {
			targets = append(targets, reg.conn)
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if err := h.send(c, event); err != nil {
			h.log.WithError(err).WithFields(logrus.Fields{
				"conn_id": c.ID(),
				"room_id": roomID,
				"event":   event.Type(),
			}).Warn("push skipped")
			continue
		}
		delivered++
	}
	return delivered
}

// send shields the loop from a connection that panics instead of returning an error.
func (h *Hub) send(c Connection, event models.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrConnectionClosed
		}
	}()
	return c.Send(event)
}

// Publish lets the hub serve as the chat notifier on a single instance.
func (h *Hub) Publish(_ context.Context, roomID string, event models.Event) error {
	h.Broadcast(roomID, event)
	return nil
}

// RoomConnections counts connections currently announced to roomID.
func (h *Hub) RoomConnections(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, reg := range h.conns {
		if reg.roomID == roomID {
			n++
		}
	}
	return n
}

// Len is the number of registered connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Shutdown closes every registered connection.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	conns := make([]Connection, 0, len(h.conns))
	for _, reg := range h.conns {
		conns = append(conns, reg.conn)
	}
	h.conns = make(map[string]*registration)
	h.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}
