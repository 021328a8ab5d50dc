package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"groupouting/backend/internal/chathub"
)

func (h *Handler) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || h.AllowedOrigin == "*" || origin == h.AllowedOrigin
		},
	}
}

// ServeWebSocket upgrades the request. The client announces its room and identity
// with a join_room frame once connected.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	conn, err := h.upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already answered the client.
		h.Log.WithError(err).Debug("websocket upgrade failed")
		return
	}

	chathub.NewWebSocketClient(conn, h.Hub, h.Tokens, h.Log).Run()
}
