// Package handler exposes the chat services over HTTP and WebSocket with gin.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"groupouting/backend/internal/auth"
	"groupouting/backend/internal/chat"
	"groupouting/backend/internal/chathub"
	"groupouting/backend/internal/storage"
)

// Handler holds everything the routes need.
type Handler struct {
	Rooms    *chat.RoomService
	Messages *chat.MessageService
	Store    storage.Storage
	Tokens   *auth.TokenManager
	Hasher   *auth.PasswordHasher
	Hub      *chathub.Hub
	Log      logrus.FieldLogger

	// AllowedOrigin is checked on WebSocket upgrades; "*" accepts any origin.
	AllowedOrigin string
	// SecureCookies marks the session cookie Secure (HTTPS deployments).
	SecureCookies bool
}

// Register mounts every route on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/health", h.Health)
	r.GET("/ws", h.ServeWebSocket)

	api := r.Group("/api")
	api.GET("/anonid", h.GetAnonID)

	authGroup := api.Group("/auth")
	authGroup.POST("/signup", h.Signup)
	authGroup.POST("/login", h.Login)
	authGroup.POST("/logout", h.Logout)
	authGroup.GET("/me", h.RequireSession(), h.Me)

	rooms := api.Group("/rooms")

	// anonymous variant: the caller names itself in the body or query
	rooms.POST("/simple", h.CreateRoomSimple)
	rooms.POST("/:roomId/join/simple", h.JoinRoomSimple)
	rooms.POST("/:roomId/leave/simple", h.LeaveRoomSimple)
	rooms.GET("/:roomId/messages/simple", h.ListMessagesSimple)
	rooms.POST("/:roomId/messages/simple", h.PostMessageSimple)
	rooms.GET("/:roomId/participants/simple", h.ListParticipantsSimple)

	rooms.GET("/:roomId", h.GetRoom)

	session := rooms.Group("", h.RequireSession())
	session.POST("", h.CreateRoom)
	session.POST("/:roomId/join", h.JoinRoom)
	session.POST("/:roomId/leave", h.LeaveRoom)
	session.GET("/:roomId/messages", h.ListMessages)
	session.POST("/:roomId/messages", h.PostMessage)
	session.GET("/:roomId/participants", h.ListParticipants)
}

func (h *Handler) Health(c *gin.Context) {
	resp := gin.H{"status": "ok"}
	if h.Hub != nil {
		resp["connections"] = h.Hub.Len()
	}
	c.JSON(http.StatusOK, resp)
}
