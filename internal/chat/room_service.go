// Package chat holds the room and message services. Both enforce membership against
// storage and hand the resulting events to a Notifier.
package chat

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"

	"groupouting/backend/internal/auth"
	"groupouting/backend/internal/config"
	"groupouting/backend/internal/models"
	"groupouting/backend/internal/storage"
)

type RoomService struct {
	store       storage.Storage
	passwords   auth.RoomPasswords
	notifier    Notifier
	maxCapacity int
	log         logrus.FieldLogger
}

// NewRoomService wires the room service. maxCapacity bounds the participant limit a
// creator may ask for.
func NewRoomService(store storage.Storage, passwords auth.RoomPasswords, notifier Notifier, maxCapacity int, log logrus.FieldLogger) *RoomService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &RoomService{
		store:       store,
		passwords:   passwords,
		notifier:    notifier,
		maxCapacity: maxCapacity,
		log:         log.WithField("component", "rooms"),
	}
}

// CreateRoom persists a room with the creator as its first active member.
// maxParticipants of 0 selects models.DefaultMaxParticipants.
func (s *RoomService) CreateRoom(ctx context.Context, name, password string, creator models.Identity, maxParticipants int) (*models.Room, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validationError("room name is required")
	}
	if utf8.RuneCountInString(name) > config.MaxRoomNameLength {
		return nil, validationError("room name must be at most %d characters", config.MaxRoomNameLength)
	}
	if strings.TrimSpace(password) == "" {
		return nil, validationError("password is required")
	}
	if len(password) > auth.MaxPasswordBytes {
		return nil, validationError("password must be at most %d bytes", auth.MaxPasswordBytes)
	}
	if err := creator.Validate(); err != nil {
		return nil, invalidUser(err)
	}
	if maxParticipants == 0 {
		maxParticipants = models.DefaultMaxParticipants
	}
	if maxParticipants < 1 || maxParticipants > s.maxCapacity {
		return nil, validationError("max participants must be between 1 and %d", s.maxCapacity)
	}

	sealed, err := s.passwords.Seal(password)
	if err != nil {
		return nil, persistenceError("failed to secure room password", err)
	}

	room := &models.Room{
		ID:              models.NewRoomID(),
		Name:            name,
		PasswordHash:    sealed,
		CreatedBy:       creator.ID,
		CreatorKind:     creator.Kind,
		MaxParticipants: maxParticipants,
		IsActive:        true,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.store.CreateRoom(ctx, room, creator); err != nil {
		return nil, persistenceError("failed to create room", err)
	}
	room.ParticipantCount = 1

	s.log.WithFields(logrus.Fields{"room_id": room.ID, "creator": creator.ID}).Info("room created")
	return room, nil
}

// JoinRoom checks the password and capacity and activates the user's membership.
// Joining a room the user is already active in succeeds without side effects.
func (s *RoomService) JoinRoom(ctx context.Context, roomID, password string, user models.Identity) (*models.Room, error) {
	if err := user.Validate(); err != nil {
		return nil, invalidUser(err)
	}

	room, err := s.activeRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if !s.passwords.Match(room.PasswordHash, password) {
		return nil, authError("Invalid password", ErrWrongPassword)
	}

	_, created, err := s.store.AddMember(ctx, roomID, user)
	switch {
	case errors.Is(err, storage.ErrRoomFull):
		return nil, capacityError("Room is full")
	case errors.Is(err, storage.ErrNotFound):
		return nil, notFoundError("Room not found")
	case err != nil:
		return nil, persistenceError("failed to join room", err)
	}

	if created {
		s.log.WithFields(logrus.Fields{"room_id": roomID, "user_id": user.ID, "kind": user.Kind}).Info("participant joined")
		s.publish(ctx, roomID, models.ParticipantJoinedEvent{User: user})
	}

	if count, err := s.store.CountActiveMembers(ctx, roomID); err == nil {
		room.ParticipantCount = count
	}
	return room, nil
}

// LeaveRoom deactivates the user's membership. The row is kept for history.
func (s *RoomService) LeaveRoom(ctx context.Context, roomID string, user models.Identity) error {
	if err := user.Validate(); err != nil {
		return invalidUser(err)
	}

	err := s.store.RemoveMember(ctx, roomID, user)
	if errors.Is(err, storage.ErrNotFound) {
		return notFoundError("No active membership in this room")
	}
	if err != nil {
		return persistenceError("failed to leave room", err)
	}

	s.log.WithFields(logrus.Fields{"room_id": roomID, "user_id": user.ID, "kind": user.Kind}).Info("participant left")
	s.publish(ctx, roomID, models.ParticipantLeftEvent{User: user})
	return nil
}

// ListParticipants returns the active members, earliest join first. The requester
// must be an active member, or the account that created the room.
func (s *RoomService) ListParticipants(ctx context.Context, roomID string, requester models.Identity) ([]models.Membership, error) {
	if err := requester.Validate(); err != nil {
		return nil, invalidUser(err)
	}

	room, err := s.store.GetRoomByID(ctx, roomID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, notFoundError("Room not found")
	}
	if err != nil {
		return nil, persistenceError("failed to load room", err)
	}

	creatorAccount := requester.Kind == models.KindAccount && room.CreatedByIdentity(requester)
	if !creatorAccount {
		if err := s.requireMember(ctx, roomID, requester, "Access denied"); err != nil {
			return nil, err
		}
	}

	members, err := s.store.ListActiveMembers(ctx, roomID)
	if err != nil {
		return nil, persistenceError("failed to list participants", err)
	}
	return members, nil
}

// GetRoom returns the public summary of a room, including its active head count.
func (s *RoomService) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	room, err := s.store.GetRoomByID(ctx, roomID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, notFoundError("Room not found")
	}
	if err != nil {
		return nil, persistenceError("failed to load room", err)
	}

	count, err := s.store.CountActiveMembers(ctx, roomID)
	if err != nil {
		return nil, persistenceError("failed to count participants", err)
	}
	room.ParticipantCount = count
	return room, nil
}

func (s *RoomService) activeRoom(ctx context.Context, roomID string) (*models.Room, error) {
	room, err := s.store.GetRoomByID(ctx, roomID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, notFoundError("Room not found")
	}
	if err != nil {
		return nil, persistenceError("failed to load room", err)
	}
	if !room.IsActive {
		return nil, notFoundError("Room not found")
	}
	return room, nil
}

func (s *RoomService) requireMember(ctx context.Context, roomID string, user models.Identity, message string) error {
	return requireMember(ctx, s.store, roomID, user, message)
}

func (s *RoomService) publish(ctx context.Context, roomID string, event models.Event) {
	publish(ctx, s.notifier, s.log, roomID, event)
}

func requireMember(ctx context.Context, store storage.Storage, roomID string, user models.Identity, message string) error {
	_, err := store.GetActiveMembership(ctx, roomID, user)
	if errors.Is(err, storage.ErrNotFound) {
		return authError(message, ErrNotMember)
	}
	if err != nil {
		return persistenceError("failed to check membership", err)
	}
	return nil
}

func publish(ctx context.Context, n Notifier, log logrus.FieldLogger, roomID string, event models.Event) {
	if err := n.Publish(ctx, roomID, event); err != nil {
		log.WithError(err).WithFields(logrus.Fields{"room_id": roomID, "event": event.Type()}).Warn("event not delivered")
	}
}
