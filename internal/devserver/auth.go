package devserver

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/vowels52/SyncUp-sub000/internal/gateway"
	"github.com/vowels52/SyncUp-sub000/internal/session"
)

const accessTokenTTL = 24 * time.Hour

type SignUpRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
}

type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	UserID      string `json:"user_id"`
}

// AuthService issues JWTs against users stored in the dev gateway. The
// hosted backend owns auth in production; this exists so the client stack
// can run end to end locally.
type AuthService struct {
	gw     gateway.Gateway
	secret string
}

func NewAuthService(gw gateway.Gateway, secret string) *AuthService {
	return &AuthService{gw: gw, secret: secret}
}

func (s *AuthService) SignUp(ctx context.Context, req SignUpRequest) (TokenResponse, error) {
	if req.Email == "" || req.Password == "" {
		return TokenResponse{}, errors.New("email and password required")
	}
	existing, err := s.gw.Query(ctx, "users", gateway.Query{Filter: gateway.Eq("email", req.Email), Limit: 1})
	if err != nil {
		return TokenResponse{}, err
	}
	if len(existing) > 0 {
		return TokenResponse{}, errors.New("email already registered")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return TokenResponse{}, err
	}

	id := uuid.NewString()
	if _, err := s.gw.Insert(ctx, "users", gateway.Row{
		"id":            id,
		"email":         req.Email,
		"password_hash": string(hash),
	}); err != nil {
		return TokenResponse{}, err
	}
	if _, err := s.gw.Insert(ctx, "profiles", gateway.Row{
		"id":           id,
		"display_name": req.DisplayName,
	}); err != nil {
		return TokenResponse{}, err
	}
	return s.issue(id)
}

func (s *AuthService) SignIn(ctx context.Context, req SignInRequest) (TokenResponse, error) {
	rows, err := s.gw.Query(ctx, "users", gateway.Query{Filter: gateway.Eq("email", req.Email), Limit: 1})
	if err != nil {
		return TokenResponse{}, err
	}
	if len(rows) == 0 {
		return TokenResponse{}, errors.New("invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(rows[0].String("password_hash")), []byte(req.Password)); err != nil {
		return TokenResponse{}, errors.New("invalid credentials")
	}
	return s.issue(rows[0].String("id"))
}

func (s *AuthService) issue(userID string) (TokenResponse, error) {
	token, err := session.Sign(s.secret, userID, accessTokenTTL)
	if err != nil {
		return TokenResponse{}, err
	}
	return TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(accessTokenTTL.Seconds()),
		UserID:      userID,
	}, nil
}
