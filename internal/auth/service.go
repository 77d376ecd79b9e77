package auth

import (
	"context"
	"errors"
	"time"

	"github.com/example/pos-ledger/internal/domain/apperr"
	"github.com/example/pos-ledger/internal/domain/user"
)

type UserFinder interface {
	FindUserByEmail(ctx context.Context, email string) (*user.User, error)
}

type Session struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expires_at"`
	User      *user.User `json:"user"`
}

// Service logs operators in. User management lives outside this module.
type Service struct {
	users UserFinder
	jwt   *JWTService
}

func NewService(users UserFinder, jwtService *JWTService) *Service {
	return &Service{users: users, jwt: jwtService}
}

func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.users.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			CheckPassword(password, unknownOperatorHash())
			return nil, user.ErrInvalidCredentials
		}
		return nil, err
	}
	if !CheckPassword(password, u.PasswordHash) {
		return nil, user.ErrInvalidCredentials
	}
	if !u.IsActive {
		return nil, user.ErrUserDeactivated
	}

	token, expiresAt, err := s.jwt.GenerateAccessToken(u.ID, u.Email, u.Role)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: expiresAt, User: u}, nil
}
