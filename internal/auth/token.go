// Package auth issues and verifies session tokens and hashes passwords.
package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"groupouting/backend/internal/models"
)

const issuer = "groupouting-service"

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// Claims identify the bearer. Anonymous tokens carry the generated id and display fields;
// account tokens carry the account id and email.
type Claims struct {
	UserID      string              `json:"user_id"`
	Kind        models.IdentityKind `json:"kind"`
	Email       string              `json:"email,omitempty"`
	DisplayName string              `json:"name,omitempty"`
	AvatarColor string              `json:"color,omitempty"`
	jwt.RegisteredClaims
}

// Identity converts the claims to the identity they vouch for.
func (c *Claims) Identity() models.Identity {
	return models.Identity{
		ID:          c.UserID,
		Kind:        c.Kind,
		DisplayName: c.DisplayName,
		AvatarColor: c.AvatarColor,
	}
}

// TokenManager signs HS256 session tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), ttl: ttl}
}

// TTL is the lifetime of issued tokens.
func (m *TokenManager) TTL() time.Duration {
	return m.ttl
}

// IssueForUser signs a token for a durable account.
func (m *TokenManager) IssueForUser(u *models.User) (string, error) {
	return m.issue(Claims{
		UserID:      u.ID,
		Kind:        models.KindAccount,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		AvatarColor: u.AvatarColor,
	})
}

// IssueAnonymous signs a token vouching for an anonymous identity.
func (m *TokenManager) IssueAnonymous(id models.Identity) (string, error) {
	return m.issue(Claims{
		UserID:      id.ID,
		Kind:        models.KindAnonymous,
		DisplayName: id.DisplayName,
		AvatarColor: id.AvatarColor,
	})
}

func (m *TokenManager) issue(claims Claims) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   claims.UserID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Parse validates the signature, expiry and issuer of a token.
func (m *TokenManager) Parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return m.secret, nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, ErrInvalidToken
	}
	switch claims.Kind {
	case models.KindAccount, models.KindAnonymous:
	default:
		return nil, ErrInvalidToken
	}
	return claims, nil
}
