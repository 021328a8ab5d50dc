package chat

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"groupouting/backend/internal/config"
	"groupouting/backend/internal/models"
	"groupouting/backend/internal/storage"
)

// Page selects a slice of history. Before is an exclusive message id bound
// (0 means the newest page); Limit is clamped to config.MaxMessagePageSize.
type Page struct {
	Before uint
	Limit  int
}

func (p Page) limit() int {
	switch {
	case p.Limit <= 0:
		return config.DefaultMessagePageSize
	case p.Limit > config.MaxMessagePageSize:
		return config.MaxMessagePageSize
	default:
		return p.Limit
	}
}

type MessageService struct {
	store     storage.Storage
	notifier  Notifier
	maxLength int
	log       logrus.FieldLogger
}

func NewMessageService(store storage.Storage, notifier Notifier, maxLength int, log logrus.FieldLogger) *MessageService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &MessageService{
		store:     store,
		notifier:  notifier,
		maxLength: maxLength,
		log:       log.WithField("component", "messages"),
	}
}

// PostMessage stores a message from an active member and then announces it to the room.
// The event carries the stored row, so pushed and fetched copies share an id.
func (s *MessageService) PostMessage(ctx context.Context, roomID string, sender models.Identity, content string) (*models.Message, error) {
	if err := sender.Validate(); err != nil {
		return nil, invalidUser(err)
	}

	room, err := s.store.GetRoomByID(ctx, roomID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil, authError("Not a participant of this room", ErrNotMember)
	case err != nil:
		return nil, persistenceError("failed to load room", err)
	case !room.IsActive:
		return nil, notFoundError("Room not found")
	}

	if err := requireMember(ctx, s.store, roomID, sender, "Not a participant of this room"); err != nil {
		return nil, err
	}

	content = strings.TrimSpace(content)
	if content == "" {
		return nil, validationError("message content is required")
	}
	if utf8.RuneCountInString(content) > s.maxLength {
		return nil, validationError("message must be at most %d characters", s.maxLength)
	}

	msg := &models.Message{
		RoomID:      roomID,
		UserID:      sender.ID,
		UserKind:    sender.Kind,
		DisplayName: sender.DisplayName,
		AvatarColor: sender.AvatarColor,
		Content:     content,
		MessageType: models.MessageTypeText,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.SaveMessage(ctx, msg); err != nil {
		return nil, persistenceError("failed to save message", err)
	}

	s.log.WithFields(logrus.Fields{"room_id": roomID, "message_id": msg.ID}).Debug("message posted")
	publish(ctx, s.notifier, s.log, roomID, models.NewMessageEvent{Message: *msg})
	return msg, nil
}

// ListMessages returns one page of history, oldest first, to an active member.
func (s *MessageService) ListMessages(ctx context.Context, roomID string, requester models.Identity, page Page) ([]models.Message, error) {
	if err := requester.Validate(); err != nil {
		return nil, invalidUser(err)
	}
	if err := requireMember(ctx, s.store, roomID, requester, "Not a participant of this room"); err != nil {
		return nil, err
	}

	msgs, err := s.store.ListMessages(ctx, roomID, page.Before, page.limit())
	if err != nil {
		return nil, persistenceError("failed to load messages", err)
	}
	return msgs, nil
}
