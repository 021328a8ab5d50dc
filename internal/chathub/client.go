// Package chathub fans room events out to live connections.
package chathub

import (
	"errors"

	"groupouting/backend/internal/models"
)

var (
	// ErrConnectionClosed is returned by Send once the connection has shut down.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrSendBufferFull is returned by Send when the peer is not draining its queue.
	ErrSendBufferFull = errors.New("send buffer full")
)

// Connection is one live client link (WebSocket today). The hub only needs to address
// it and push events to it; reading is the implementation's business.
type Connection interface {
	// ID is unique per connection for the lifetime of the process.
	ID() string
	// Send queues an event for delivery. It must not block.
	Send(event models.Event) error
	// Close shuts the connection down. Safe to call more than once.
	Close()
}
