package handler

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"groupouting/backend/internal/auth"
	"groupouting/backend/internal/models"
	"groupouting/backend/internal/storage"
)

var (
	anonNames = []string{
		"ChatMaster", "CoolUser", "MessageSender", "TalkativePerson",
		"QuickTyper", "FriendlyChatter", "ActiveUser", "SocialBee",
		"Communicator", "Networker", "Connector", "SpeechBubble",
		"WordSmith", "TextPro", "ChatExpert", "ConvoKing",
	}
	avatarColors = []string{
		"#1976d2", "#388e3c", "#f57c00", "#d32f2f",
		"#7b1fa2", "#5d4037", "#0288d1", "#689f38",
	}
)

func randomAvatarColor() string {
	return avatarColors[rand.IntN(len(avatarColors))]
}

// GetAnonID mints an anonymous identity and a token vouching for it.
func (h *Handler) GetAnonID(c *gin.Context) {
	id := models.Anonymous(
		"user_"+uuid.NewString(),
		anonNames[rand.IntN(len(anonNames))]+strconv.Itoa(rand.IntN(9999)),
		randomAvatarColor(),
	)

	token, err := h.Tokens.IssueAnonymous(id)
	if err != nil {
		h.Log.WithError(err).Error("sign anonymous token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "anon_id": id.ID, "user": id})
}

type signupRequest struct {
	Email            string `json:"email" binding:"required,email,max=255"`
	Password         string `json:"password" binding:"required,min=6"`
	DisplayName      string `json:"display_name"`
	DisplayNameCamel string `json:"displayName"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *Handler) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "email and a password of at least 6 characters are required")
		return
	}

	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = strings.TrimSpace(req.DisplayNameCamel)
	}
	if displayName == "" {
		badRequest(c, "display name is required")
		return
	}
	if utf8.RuneCountInString(displayName) > models.MaxDisplayNameLength {
		badRequest(c, fmt.Sprintf("display name must be at most %d characters", models.MaxDisplayNameLength))
		return
	}
	if len(req.Password) > auth.MaxPasswordBytes {
		badRequest(c, auth.ErrPasswordTooLong.Error())
		return
	}

	hash, err := h.Hasher.Hash(req.Password)
	if err != nil {
		h.Log.WithError(err).Error("hash password")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Error hashing password"})
		return
	}

	user := &models.User{
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: hash,
		DisplayName:  displayName,
		AvatarColor:  randomAvatarColor(),
	}
	if err := h.Store.CreateUser(c.Request.Context(), user); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			badRequest(c, "Email already exists")
			return
		}
		h.Log.WithError(err).Error("create user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	h.startSession(c, user)
}

func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "email and password are required")
		return
	}

	user, err := h.Store.GetUserByEmail(c.Request.Context(), strings.TrimSpace(req.Email))
	if errors.Is(err, storage.ErrNotFound) {
		badRequest(c, "Invalid credentials")
		return
	}
	if err != nil {
		h.Log.WithError(err).Error("load user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if !h.Hasher.Verify(req.Password, user.PasswordHash) {
		badRequest(c, "Invalid credentials")
		return
	}

	h.startSession(c, user)
}

func (h *Handler) startSession(c *gin.Context, user *models.User) {
	token, err := h.Tokens.IssueForUser(user)
	if err != nil {
		h.Log.WithError(err).Error("sign session token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create token"})
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, token, int(h.Tokens.TTL().Seconds()), "/", "", h.SecureCookies, true)
	c.JSON(http.StatusOK, gin.H{"user": user, "token": token})
}

func (h *Handler) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, "", -1, "/", "", h.SecureCookies, true)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

// Me returns the account behind the session, or the anonymous identity the token
// vouches for.
func (h *Handler) Me(c *gin.Context) {
	claims := currentClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Access token required"})
		return
	}
	if claims.Kind == models.KindAnonymous {
		c.JSON(http.StatusOK, gin.H{"user": claims.Identity()})
		return
	}

	user, err := h.Store.GetUserByID(c.Request.Context(), claims.UserID)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if err != nil {
		h.Log.WithError(err).Error("load user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}
