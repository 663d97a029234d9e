package service

import (
	"context"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/garyjia/expense-portal/internal/application/port"
	"github.com/garyjia/expense-portal/internal/domain/entity"
	"github.com/garyjia/expense-portal/pkg/apperr"
)

// LoginResult is a bearer token and the account it was issued for
type LoginResult struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *entity.User `json:"user"`
}

// AuthService verifies credentials and resolves bearer tokens to actors
type AuthService interface {
	Login(ctx context.Context, email, password string) (*LoginResult, error)
	Authenticate(ctx context.Context, token string) (*entity.Actor, error)
}

type authServiceImpl struct {
	userRepo port.UserRepository
	tokens   port.TokenIssuer
	logger   Logger
}

// NewAuthService creates a new AuthService
func NewAuthService(userRepo port.UserRepository, tokens port.TokenIssuer, logger Logger) AuthService {
	return &authServiceImpl{userRepo: userRepo, tokens: tokens, logger: logger}
}

func (s *authServiceImpl) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, apperr.Validation("email and password are required")
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		return nil, apperr.Internal(err, "load user")
	}
	if user == nil || !CheckPassword(user.PasswordHash, password) {
		s.logger.Info("Login rejected", "email", strings.ToLower(strings.TrimSpace(email)))
		return nil, apperr.Unauthorized(msgInvalidCredentials)
	}

	token, expiresAt, err := s.tokens.Issue(user.Actor())
	if err != nil {
		s.logger.Error("Failed to issue token", "error", err, "user_id", user.ID)
		return nil, apperr.Internal(err, "issue token")
	}

	s.logger.Info("User logged in", "user_id", user.ID, "role", user.Role)
	return &LoginResult{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

func (s *authServiceImpl) Authenticate(ctx context.Context, token string) (*entity.Actor, error) {
	if strings.TrimSpace(token) == "" {
		return nil, apperr.Unauthorized("missing bearer token")
	}
	actor, err := s.tokens.Parse(token)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnauthorized, err, "invalid bearer token")
	}
	if !actor.Role.IsValid() {
		return nil, apperr.Unauthorized("invalid role in token")
	}
	return actor, nil
}

// HashPassword hashes a plaintext password with bcrypt
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the bcrypt hash
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
