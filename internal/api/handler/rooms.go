package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"groupouting/backend/internal/chat"
	"groupouting/backend/internal/models"
)

// clientUser is the anonymous identity a client sends in request bodies.
type clientUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	AvatarColor string `json:"avatar_color"`
}

func (u *clientUser) identity() (models.Identity, error) {
	if u == nil {
		return models.Identity{}, models.ErrMissingUser
	}
	id := models.Anonymous(u.ID, u.DisplayName, u.AvatarColor)
	return id, id.Validate()
}

type createRoomRequest struct {
	Name            string      `json:"name"`
	Password        string      `json:"password"`
	MaxParticipants int         `json:"max_participants"`
	User            *clientUser `json:"user"`
}

type joinRoomRequest struct {
	Password string      `json:"password"`
	User     *clientUser `json:"user"`
}

type postMessageRequest struct {
	Content string      `json:"content"`
	User    *clientUser `json:"user"`
}

type userRequest struct {
	User *clientUser `json:"user"`
}

func (h *Handler) GetRoom(c *gin.Context) {
	room, err := h.Rooms.GetRoom(c.Request.Context(), c.Param("roomId"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

// Session variant.

func (h *Handler) CreateRoom(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	h.createRoom(c, req, currentIdentity(c))
}

func (h *Handler) JoinRoom(c *gin.Context) {
	var req joinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	h.joinRoom(c, req.Password, currentIdentity(c))
}

func (h *Handler) LeaveRoom(c *gin.Context) {
	h.leaveRoom(c, currentIdentity(c))
}

func (h *Handler) ListMessages(c *gin.Context) {
	h.listMessages(c, currentIdentity(c))
}

func (h *Handler) PostMessage(c *gin.Context) {
	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	h.postMessage(c, req.Content, currentIdentity(c))
}

func (h *Handler) ListParticipants(c *gin.Context) {
	h.listParticipants(c, currentIdentity(c))
}

// Anonymous variant.

func (h *Handler) CreateRoomSimple(c *gin.Context) {
	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	user, err := req.User.identity()
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	h.createRoom(c, req, user)
}

func (h *Handler) JoinRoomSimple(c *gin.Context) {
	var req joinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	user, err := req.User.identity()
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	h.joinRoom(c, req.Password, user)
}

func (h *Handler) LeaveRoomSimple(c *gin.Context) {
	var req userRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	user, err := req.User.identity()
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	h.leaveRoom(c, user)
}

func (h *Handler) ListMessagesSimple(c *gin.Context) {
	user, err := queryUser(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	h.listMessages(c, user)
}

func (h *Handler) PostMessageSimple(c *gin.Context) {
	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	user, err := req.User.identity()
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	h.postMessage(c, req.Content, user)
}

func (h *Handler) ListParticipantsSimple(c *gin.Context) {
	user, err := queryUser(c)
	if err != nil {
		badRequest(c, err.Error())
		return
	}
	h.listParticipants(c, user)
}

func queryUser(c *gin.Context) (models.Identity, error) {
	id := models.Anonymous(c.Query("user_id"), "", "")
	if id.ID == "" {
		return id, errors.New("user_id is required")
	}
	return id, id.Validate()
}

// Shared bodies.

func (h *Handler) createRoom(c *gin.Context, req createRoomRequest, creator models.Identity) {
	room, err := h.Rooms.CreateRoom(c.Request.Context(), req.Name, req.Password, creator, req.MaxParticipants)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, room)
}

func (h *Handler) joinRoom(c *gin.Context, password string, user models.Identity) {
	room, err := h.Rooms.JoinRoom(c.Request.Context(), c.Param("roomId"), password, user)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, room)
}

func (h *Handler) leaveRoom(c *gin.Context, user models.Identity) {
	if err := h.Rooms.LeaveRoom(c.Request.Context(), c.Param("roomId"), user); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Left room"})
}

func (h *Handler) listMessages(c *gin.Context, user models.Identity) {
	page, ok := parsePage(c)
	if !ok {
		badRequest(c, "before and limit must be non-negative integers")
		return
	}
	msgs, err := h.Messages.ListMessages(c.Request.Context(), c.Param("roomId"), user, page)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

func (h *Handler) postMessage(c *gin.Context, content string, user models.Identity) {
	msg, err := h.Messages.PostMessage(c.Request.Context(), c.Param("roomId"), user, content)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, msg)
}

func (h *Handler) listParticipants(c *gin.Context, user models.Identity) {
	members, err := h.Rooms.ListParticipants(c.Request.Context(), c.Param("roomId"), user)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, members)
}

func parsePage(c *gin.Context) (chat.Page, bool) {
	var page chat.Page
	if v := c.Query("before"); v != "" {
		before, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return page, false
		}
		page.Before = uint(before)
	}
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			return page, false
		}
		page.Limit = limit
	}
	return page, true
}
