package auth

import (
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"groupouting/backend/internal/config"
)

// MaxPasswordBytes is the longest password bcrypt accepts.
const MaxPasswordBytes = 72

// ErrPasswordTooLong is returned by Hash for passwords over MaxPasswordBytes.
var ErrPasswordTooLong = errors.New("password must be at most 72 bytes")

// PasswordHasher hashes account and room passwords with bcrypt.
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher returns a hasher; cost 0 selects bcrypt.DefaultCost.
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &PasswordHasher{cost: cost}
}

func (h *PasswordHasher) Hash(password string) (string, error) {
	if len(password) > MaxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func (h *PasswordHasher) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// RoomPasswords turns a room password into its stored form and checks join attempts.
type RoomPasswords interface {
	Seal(password string) (string, error)
	Match(stored, given string) bool
}

// NewRoomPasswords picks the policy for a config.PasswordMode* value.
func NewRoomPasswords(mode string, hasher *PasswordHasher) RoomPasswords {
	if mode == config.PasswordModePlaintext {
		return plaintextRoomPasswords{}
	}
	return hashedRoomPasswords{hasher: hasher}
}

type hashedRoomPasswords struct {
	hasher *PasswordHasher
}

func (p hashedRoomPasswords) Seal(password string) (string, error) {
	return p.hasher.Hash(password)
}

func (p hashedRoomPasswords) Match(stored, given string) bool {
	return p.hasher.Verify(given, stored)
}

// plaintextRoomPasswords stores room passwords as given and compares them directly.
type plaintextRoomPasswords struct{}

func (plaintextRoomPasswords) Seal(password string) (string, error) {
	return password, nil
}

func (plaintextRoomPasswords) Match(stored, given string) bool {
	return subtle.ConstantTimeCompare([]byte(stored), []byte(given)) == 1
}
