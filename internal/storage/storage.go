package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"groupouting/backend/internal/models"
)

var (
	// ErrNotFound is returned when a row does not exist. Rooms that are inactive
	// count as missing for AddMember.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique constraint (account email) is violated.
	ErrDuplicate = errors.New("record already exists")
	// ErrRoomFull is returned by AddMember when the room has no free seat.
	ErrRoomFull = errors.New("room is full")
)

type Storage interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByID(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	CreateRoom(ctx context.Context, room *models.Room, creator models.Identity) error
	GetRoomByID(ctx context.Context, roomID string) (*models.Room, error)
	SetRoomActive(ctx context.Context, roomID string, active bool) error

	GetActiveMembership(ctx context.Context, roomID string, user models.Identity) (*models.Membership, error)
	CountActiveMembers(ctx context.Context, roomID string) (int64, error)
	AddMember(ctx context.Context, roomID string, user models.Identity) (*models.Membership, bool, error)
	RemoveMember(ctx context.Context, roomID string, user models.Identity) error
	ListActiveMembers(ctx context.Context, roomID string) ([]models.Membership, error)

	SaveMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context, roomID string, before uint, limit int) ([]models.Message, error)
}

// Service is the gorm-backed Storage.
type Service struct {
	DB *gorm.DB
}

// NewStorageService Constructor
func NewStorageService(db *gorm.DB) *Service {
	return &Service{DB: db}
}

func (s *Service) CreateUser(ctx context.Context, user *models.User) error {
	err := s.DB.WithContext(ctx).Create(user).Error
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *Service) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, notFound(err, "get user")
	}
	return &user, nil
}

func (s *Service) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := s.DB.WithContext(ctx).Where("email = ?", strings.ToLower(email)).First(&user).Error; err != nil {
		return nil, notFound(err, "get user by email")
	}
	return &user, nil
}

// CreateRoom stores the room and makes the creator its first active member.
func (s *Service) CreateRoom(ctx context.Context, room *models.Room, creator models.Identity) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(room).Error; err != nil {
			return fmt.Errorf("create room: %w", err)
		}
		member := models.Membership{
			RoomID:      room.ID,
			UserID:      creator.ID,
			UserKind:    creator.Kind,
			DisplayName: creator.DisplayName,
			AvatarColor: creator.AvatarColor,
			IsActive:    true,
			JoinedAt:    room.CreatedAt,
		}
		if err := tx.Create(&member).Error; err != nil {
			return fmt.Errorf("add room creator: %w", err)
		}
		return nil
	})
}

func (s *Service) GetRoomByID(ctx context.Context, roomID string) (*models.Room, error) {
	var room models.Room
	if err := s.DB.WithContext(ctx).Where("id = ?", roomID).First(&room).Error; err != nil {
		return nil, notFound(err, "get room")
	}
	return &room, nil
}

// SetRoomActive opens or closes a room. A closed room accepts no joins or messages.
func (s *Service) SetRoomActive(ctx context.Context, roomID string, active bool) error {
	res := s.DB.WithContext(ctx).Model(&models.Room{}).
		Where("id = ?", roomID).
		Update("is_active", active)
	if res.Error != nil {
		return fmt.Errorf("update room: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Service) GetActiveMembership(ctx context.Context, roomID string, user models.Identity) (*models.Membership, error) {
	var m models.Membership
	err := s.DB.WithContext(ctx).
		Where("room_id = ? AND user_id = ? AND user_kind = ? AND is_active = ?", roomID, user.ID, user.Kind, true).
		First(&m).Error
	if err != nil {
		return nil, notFound(err, "get membership")
	}
	return &m, nil
}

func (s *Service) CountActiveMembers(ctx context.Context, roomID string) (int64, error) {
	return countActive(s.DB.WithContext(ctx), roomID)
}

// AddMember activates the user's membership unless the room is full. The room row is
// locked for the duration so concurrent joins cannot overfill it. The bool result is
// false when the user already held an active membership, in which case nothing changes.
func (s *Service) AddMember(ctx context.Context, roomID string, user models.Identity) (*models.Membership, bool, error) {
	var (
		member  models.Membership
		created bool
	)

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var room models.Room
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND is_active = ?", roomID, true).
			First(&room).Error
		if err != nil {
			return notFound(err, "lock room")
		}

		err = tx.Where("room_id = ? AND user_id = ? AND user_kind = ?", roomID, user.ID, user.Kind).
			First(&member).Error
		exists := err == nil
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("find membership: %w", err)
		}
		if exists && member.IsActive {
			return nil
		}

		count, err := countActive(tx, roomID)
		if err != nil {
			return err
		}
		if count >= int64(room.MaxParticipants) {
			return ErrRoomFull
		}

		now := time.Now().UTC()
		if exists {
			member.IsActive = true
			member.JoinedAt = now
			member.LeftAt = nil
			member.DisplayName = user.DisplayName
			member.AvatarColor = user.AvatarColor
			if err := tx.Save(&member).Error; err != nil {
				return fmt.Errorf("reactivate membership: %w", err)
			}
		} else {
			member = models.Membership{
				RoomID:      roomID,
				UserID:      user.ID,
				UserKind:    user.Kind,
				DisplayName: user.DisplayName,
				AvatarColor: user.AvatarColor,
				IsActive:    true,
				JoinedAt:    now,
			}
			if err := tx.Create(&member).Error; err != nil {
				return fmt.Errorf("create membership: %w", err)
			}
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return &member, created, nil
}

// RemoveMember deactivates an active membership, keeping the row for history.
func (s *Service) RemoveMember(ctx context.Context, roomID string, user models.Identity) error {
	now := time.Now().UTC()
	res := s.DB.WithContext(ctx).Model(&models.Membership{}).
		Where("room_id = ? AND user_id = ? AND user_kind = ? AND is_active = ?", roomID, user.ID, user.Kind, true).
		Updates(map[string]interface{}{
			"is_active": false,
			"left_at":   now,
		})
	if res.Error != nil {
		return fmt.Errorf("deactivate membership: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListActiveMembers returns active members, earliest join first.
func (s *Service) ListActiveMembers(ctx context.Context, roomID string) ([]models.Membership, error) {
	var members []models.Membership
	err := s.DB.WithContext(ctx).
		Where("room_id = ? AND is_active = ?", roomID, true).
		Order("joined_at asc").Order("id asc").
		Find(&members).Error
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return members, nil
}

// SaveMessage persists the message and fills its ID. CreatedAt is assigned here
// when the caller left it zero.
func (s *Service) SaveMessage(ctx context.Context, msg *models.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if msg.MessageType == "" {
		msg.MessageType = models.MessageTypeText
	}
	if err := s.DB.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("save message for room %s: %w", msg.RoomID, err)
	}
	return nil
}

// ListMessages returns up to limit messages of the room that sort before the message
// with id before (before == 0 means from the newest), ordered oldest first. The cursor
// compares on (created_at, id), the same key the page is sorted by, so ids committed
// out of timestamp order are neither skipped nor repeated. A cursor that is not a
// message of the room yields an empty page.
func (s *Service) ListMessages(ctx context.Context, roomID string, before uint, limit int) ([]models.Message, error) {
	q := s.DB.WithContext(ctx).Where("room_id = ?", roomID)
	if before > 0 {
		var cursor models.Message
		err := s.DB.WithContext(ctx).
			Select("id", "created_at").
			Where("id = ? AND room_id = ?", before, roomID).
			First(&cursor).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return []models.Message{}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("load message cursor %d: %w", before, err)
		}
		q = q.Where("created_at < ? OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var page []models.Message
	err := q.Order("created_at desc").Order("id desc").Limit(limit).Find(&page).Error
	if err != nil {
		return nil, fmt.Errorf("list messages for room %s: %w", roomID, err)
	}

	for i, j := 0, len(page)-1; i < j; i, j = i+1, j-1 {
		page[i], page[j] = page[j], page[i]
	}
	return page, nil
}

func countActive(db *gorm.DB, roomID string) (int64, error) {
	var count int64
	err := db.Model(&models.Membership{}).
		Where("room_id = ? AND is_active = ?", roomID, true).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count members: %w", err)
	}
	return count, nil
}

func notFound(err error, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}

// isUniqueViolation recognizes unique-constraint failures from both postgres and sqlite.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "SQLSTATE 23505")
}
