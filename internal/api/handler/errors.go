package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"groupouting/backend/internal/chat"
)

// respondError maps a service error onto a status code and the {"error": ...} body.
func (h *Handler) respondError(c *gin.Context, err error) {
	var e *chat.Error
	if !errors.As(err, &e) {
		h.Log.WithError(err).Error("unclassified handler error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	status := http.StatusInternalServerError
	switch e.Kind {
	case chat.KindValidation, chat.KindCapacity:
		status = http.StatusBadRequest
	case chat.KindAuth:
		status = http.StatusForbidden
		if errors.Is(err, chat.ErrWrongPassword) {
			status = http.StatusBadRequest
		}
	case chat.KindNotFound:
		status = http.StatusNotFound
	case chat.KindPersistence:
		h.Log.WithError(e.Err).WithFields(logrus.Fields{
			"path": c.FullPath(),
		}).Error(e.Message)
	}
	c.JSON(status, gin.H{"error": e.Message})
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": message})
}
