package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Session is the authenticated viewer as the client sees it. A zero
// Session means signed out.
type Session struct {
	UserID    string
	Token     string
	ExpiresAt time.Time
}

func (s Session) SignedIn() bool {
	return s.UserID != "" && (s.ExpiresAt.IsZero() || time.Now().Before(s.ExpiresAt))
}

type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Parse validates an access token and extracts the viewer identity.
func Parse(secret, token string) (Session, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(_ *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return Session{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Session{}, errors.New("token invalid")
	}
	s := Session{UserID: claims.UserID, Token: token}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	return s, nil
}

// Sign issues an access token for the given viewer.
func Sign(secret, userID string, ttl time.Duration) (string, error) {
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
