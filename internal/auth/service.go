// Package auth handles account registration and password-based login.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/clientbook/service/internal/config"
	"github.com/clientbook/service/internal/user"
)

// ErrInvalidCredentials is returned when the email/password pair does not match.
var ErrInvalidCredentials = errors.New("invalid email or password")

// Service contains the business logic for credential-based authentication.
type Service struct {
	userSvc *user.Service
	cfg     *config.Config
}

// NewService creates a new auth Service.
func NewService(userSvc *user.Service, cfg *config.Config) *Service {
	return &Service{userSvc: userSvc, cfg: cfg}
}

// Register creates a new user account and issues a JWT token.
func (s *Service) Register(ctx context.Context, email, password string, fullName *string) (string, *user.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", nil, fmt.Errorf("hash password: %w", err)
	}

	u, err := s.userSvc.Create(ctx, email, string(hash), fullName)
	if err != nil {
		return "", nil, err
	}

	token, err := s.issueToken(u.ID, u.Email)
	if err != nil {
		return "", nil, fmt.Errorf("issue token: %w", err)
	}

	return token, u, nil
}

// Login verifies the credentials and issues a JWT token.
// Unknown email and wrong password are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (string, *user.User, error) {
	u, err := s.userSvc.GetByEmail(ctx, email)
	if err != nil {
		if s.userSvc.IsNotFound(err) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, fmt.Errorf("lookup user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	token, err := s.issueToken(u.ID, u.Email)
	if err != nil {
		return "", nil, fmt.Errorf("issue token: %w", err)
	}

	return token, u, nil
}

// issueToken creates a signed JWT for the given user.
func (s *Service) issueToken(userID, email string) (string, error) {
	claims := jwt.MapClaims{
		"sub":   userID,
		"email": email,
		"iat":   time.Now().Unix(),
		"exp":   time.Now().Add(30 * 24 * time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.cfg.JWTSecret))
}
