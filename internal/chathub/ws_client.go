package chathub

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"groupouting/backend/internal/auth"
	"groupouting/backend/internal/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufferSize = 64
)

// TokenVerifier resolves a session token sent in a join announcement.
type TokenVerifier interface {
	Parse(token string) (*auth.Claims, error)
}

// WebSocketClient is a Connection over gorilla/websocket. Outgoing frames go through a
// buffered queue drained by writePump; readPump handles the client's commands.
type WebSocketClient struct {
	id     string
	conn   *websocket.Conn
	hub    *Hub
	tokens TokenVerifier
	log    logrus.FieldLogger

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewWebSocketClient(conn *websocket.Conn, hub *Hub, tokens TokenVerifier, log logrus.FieldLogger) *WebSocketClient {
	id := uuid.NewString()
	return &WebSocketClient{
		id:     id,
		conn:   conn,
		hub:    hub,
		tokens: tokens,
		log:    log.WithField("conn_id", id),
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
	}
}

func (c *WebSocketClient) ID() string { return c.id }

// Send queues the event. It fails instead of blocking when the queue is full.
func (c *WebSocketClient) Send(event models.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	default:
		return ErrSendBufferFull
	}
}

// Close stops the write pump, which closes the socket and in turn ends the read pump.
func (c *WebSocketClient) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// Run registers the connection and starts its pumps.
func (c *WebSocketClient) Run() {
	c.hub.Register(c)
	go c.writePump()
	go c.readPump()
}

func (c *WebSocketClient) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.log.WithError(err).Warn("websocket read failed")
			}
			return
		}
		c.handle(frame)
	}
}

// handle applies one client command. Bad input is answered with an error event and the
// connection stays open.
func (c *WebSocketClient) handle(frame []byte) {
	cmd, err := models.ParseClientCommand(frame)
	if err != nil {
		c.log.WithError(err).Debug("rejected client frame")
		c.reply(models.ErrorEvent{Message: clientErrorMessage(err)})
		return
	}

	switch cmd.Type {
	case models.CommandJoinRoom:
		user, ok := c.identify(cmd)
		if !ok {
			c.reply(models.ErrorEvent{Message: "Invalid token"})
			return
		}
		if !c.hub.Announce(c, user, cmd.RoomID) {
			return
		}
		c.reply(models.JoinedEvent{RoomID: cmd.RoomID})
	case models.CommandLeaveRoom:
		c.hub.Withdraw(c)
	case models.CommandPing:
		c.reply(models.PongEvent{})
	}
}

// identify prefers a session token over a self-declared user object.
func (c *WebSocketClient) identify(cmd models.ClientCommand) (models.Identity, bool) {
	if cmd.Token != "" {
		if c.tokens == nil {
			return models.Identity{}, false
		}
		claims, err := c.tokens.Parse(cmd.Token)
		if err != nil {
			return models.Identity{}, false
		}
		return claims.Identity(), true
	}
	return models.Anonymous(cmd.User.ID, cmd.User.DisplayName, cmd.User.AvatarColor), true
}

func (c *WebSocketClient) reply(event models.Event) {
	if err := c.Send(event); err != nil {
		c.log.WithError(err).Debug("reply dropped")
	}
}

func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func clientErrorMessage(err error) string {
	if errors.Is(err, models.ErrUnknownCommand) {
		return "Unknown message type"
	}
	return "Malformed message"
}
