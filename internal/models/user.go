package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// IdentityKind separates durable accounts from client-generated anonymous identities.
// The two kinds are never merged: every membership and message row records the kind
// alongside the user id.
type IdentityKind string

const (
	KindAccount   IdentityKind = "account"
	KindAnonymous IdentityKind = "anonymous"
)

// User is a durable account secured by a bcrypt password hash.
type User struct {
	ID           string    `gorm:"primaryKey;size:36" json:"id"`
	Email        string    `gorm:"uniqueIndex;size:255;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	DisplayName  string    `gorm:"size:100;not null" json:"display_name"`
	AvatarColor  string    `gorm:"size:16" json:"avatar_color,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// BeforeCreate assigns a UUID when the account has no id yet.
func (u *User) BeforeCreate(tx *gorm.DB) (err error) {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return
}

// Identity returns the account as a chat identity.
func (u *User) Identity() Identity {
	return Identity{
		ID:          u.ID,
		Kind:        KindAccount,
		DisplayName: u.DisplayName,
		AvatarColor: u.AvatarColor,
	}
}

// Identity is whoever is acting on a room: an account or an anonymous visitor.
// It is not persisted on its own; memberships and messages copy its display fields.
type Identity struct {
	ID          string       `json:"id"`
	Kind        IdentityKind `json:"kind,omitempty"`
	DisplayName string       `json:"display_name"`
	AvatarColor string       `json:"avatar_color,omitempty"`
}

// Anonymous normalizes a client-supplied identity into the anonymous kind.
// A missing display name falls back to the id.
func Anonymous(id, displayName, avatarColor string) Identity {
	id = strings.TrimSpace(id)
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = id
	}
	return Identity{
		ID:          id,
		Kind:        KindAnonymous,
		DisplayName: displayName,
		AvatarColor: avatarColor,
	}
}

// Column widths shared by every table that copies identity fields.
const (
	MaxUserIDLength      = 64
	MaxDisplayNameLength = 100
	MaxAvatarColorLength = 16
)

var ErrMissingUser = errors.New("user is required")

// Validate reports why the identity cannot be attributed to a row. Lengths are
// counted in characters, matching the varchar columns they are stored in.
func (i Identity) Validate() error {
	switch {
	case i.ID == "":
		return ErrMissingUser
	case i.Kind != KindAccount && i.Kind != KindAnonymous:
		return fmt.Errorf("unknown user kind %q", i.Kind)
	case utf8.RuneCountInString(i.ID) > MaxUserIDLength:
		return fmt.Errorf("user id must be at most %d characters", MaxUserIDLength)
	case utf8.RuneCountInString(i.DisplayName) > MaxDisplayNameLength:
		return fmt.Errorf("display name must be at most %d characters", MaxDisplayNameLength)
	case utf8.RuneCountInString(i.AvatarColor) > MaxAvatarColorLength:
		return fmt.Errorf("avatar color must be at most %d characters", MaxAvatarColorLength)
	}
	return nil
}

// Valid reports whether the identity can be attributed to a row.
func (i Identity) Valid() bool {
	return i.Validate() == nil
}
