package models

import (
	"time"

	nanoid "github.com/jaevor/go-nanoid"
)

// DefaultMaxParticipants is the capacity of a room created without an explicit limit.
const DefaultMaxParticipants = 10

const roomIDAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

var roomIDGenerator = mustRoomIDGenerator()

func mustRoomIDGenerator() func() string {
	gen, err := nanoid.CustomASCII(roomIDAlphabet, 10)
	if err != nil {
		panic(err)
	}
	return gen
}

// NewRoomID returns a short, human-shareable room identifier.
func NewRoomID() string {
	return roomIDGenerator()
}

// Room is a password-gated chat channel with a capacity limit.
// The password hash never leaves the server.
type Room struct {
	ID              string       `gorm:"primaryKey;size:16" json:"id"`
	Name            string       `gorm:"size:100;not null" json:"name"`
	PasswordHash    string       `gorm:"not null" json:"-"`
	CreatedBy       string       `gorm:"size:64;not null;index" json:"created_by"`
	CreatorKind     IdentityKind `gorm:"size:16;not null" json:"creator_kind"`
	MaxParticipants int          `gorm:"not null;default:10" json:"max_participants"`
	IsActive        bool         `gorm:"not null;default:true" json:"is_active"`
	CreatedAt       time.Time    `json:"created_at"`

	// ParticipantCount is filled on reads that need it; it is not a column.
	ParticipantCount int64 `gorm:"-" json:"participant_count,omitempty"`
}

// CreatedByIdentity reports whether the identity created the room.
func (r *Room) CreatedByIdentity(id Identity) bool {
	return r.CreatedBy == id.ID && r.CreatorKind == id.Kind
}

// Membership is the active/inactive relationship between an identity and a room.
// Rows are never deleted; leaving only clears IsActive.
type Membership struct {
	ID          uint         `gorm:"primaryKey" json:"id"`
	RoomID      string       `gorm:"size:16;not null;uniqueIndex:idx_membership_identity;index:idx_membership_active" json:"room_id"`
	UserID      string       `gorm:"size:64;not null;uniqueIndex:idx_membership_identity" json:"user_id"`
	UserKind    IdentityKind `gorm:"size:16;not null;uniqueIndex:idx_membership_identity" json:"user_kind"`
	DisplayName string       `gorm:"size:100;not null" json:"display_name"`
	AvatarColor string       `gorm:"size:16" json:"avatar_color,omitempty"`
	IsActive    bool         `gorm:"not null;default:true;index:idx_membership_active" json:"is_active"`
	JoinedAt    time.Time    `gorm:"not null" json:"joined_at"`
	LeftAt      *time.Time   `json:"left_at,omitempty"`
}

// Identity returns the member's identity as recorded at join time.
func (m *Membership) Identity() Identity {
	return Identity{
		ID:          m.UserID,
		Kind:        m.UserKind,
		DisplayName: m.DisplayName,
		AvatarColor: m.AvatarColor,
	}
}
