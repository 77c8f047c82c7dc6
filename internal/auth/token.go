// Package auth issues and verifies the signed session credential. A credential
// carries exactly the caller's identity, role, and office scope; verification
// reports only two failure kinds so callers cannot probe which check tripped.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

// Claims is the JWT payload for a session credential.
type Claims struct {
	Role     string `json:"role"`
	OfficeID string `json:"officeId"`
	jwt.RegisteredClaims
}

// Identity is the verified, normalized result exposed to request handling.
type Identity struct {
	UserID   string
	Role     string
	OfficeID string
	JTI      string
	Exp      time.Time
}

// Issue signs a credential for the subject with a fixed expiry offset.
func Issue(secret []byte, subject, role, officeID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role:     role,
		OfficeID: officeID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// Verify checks signature and expiry and decodes the three claims. It fails
// with ErrExpiredToken strictly after the embedded expiration and with
// ErrInvalidToken for every other defect.
func Verify(secret []byte, token string) (Identity, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrExpiredToken
		}
		return Identity{}, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}
	if claims.Subject == "" || claims.Role == "" || claims.OfficeID == "" || claims.ExpiresAt == nil {
		return Identity{}, ErrInvalidToken
	}
	if time.Now().After(claims.ExpiresAt.Time) {
		return Identity{}, ErrExpiredToken
	}
	return Identity{
		UserID:   claims.Subject,
		Role:     claims.Role,
		OfficeID: claims.OfficeID,
		JTI:      claims.ID,
		Exp:      claims.ExpiresAt.Time,
	}, nil
}
