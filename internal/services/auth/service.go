// Package auth signs in marketplace operators and checks the tokens presented
// by both operators and identity-provider users.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"campusmarket/internal/models"
	"campusmarket/internal/repositories"
	"campusmarket/internal/utils"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionExpired     = errors.New("session expired")
)

type Service interface {
	Login(ctx context.Context, email, password string) (*models.Operator, string, error)
	// Authenticate parses a bearer token. Operator tokens are also checked
	// against the operator's current token version and active flag.
	Authenticate(ctx context.Context, token string) (*models.UserClaims, error)
	Logout(ctx context.Context, operatorID string) error
}

type service struct {
	operators repositories.OperatorRepository
	secret    string
	ttl       time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(operators repositories.OperatorRepository, secret string, ttl time.Duration, logger *slog.Logger) Service {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &service{
		operators: operators,
		secret:    secret,
		ttl:       ttl,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *service) Login(ctx context.Context, email, password string) (*models.Operator, string, error) {
	op, err := s.operators.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if errors.Is(err, repositories.ErrNotFound) {
		s.logger.WarnContext(ctx, "login failed: unknown operator")
		return nil, "", ErrInvalidCredentials
	}
	if err != nil {
		return nil, "", err
	}
	if !op.Active {
		s.logger.WarnContext(ctx, "login failed: operator disabled", "operator_id", op.ID)
		return nil, "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(password)); err != nil {
		s.logger.WarnContext(ctx, "login failed: wrong password", "operator_id", op.ID)
		return nil, "", ErrInvalidCredentials
	}

	now := s.now()
	token, err := utils.GenerateToken(&models.UserClaims{
		UserID:       op.ID,
		Email:        op.Email,
		Role:         op.Role,
		Permissions:  models.GetDefaultPermissions(op.Role),
		TokenVersion: op.TokenVersion,
	}, s.secret, s.ttl, now)
	if err != nil {
		return nil, "", err
	}
	if err := s.operators.TouchLogin(ctx, op.ID, now); err != nil {
		s.logger.WarnContext(ctx, "could not record login time", "operator_id", op.ID, "error", err)
	}
	return op, token, nil
}

func (s *service) Authenticate(ctx context.Context, token string) (*models.UserClaims, error) {
	claims, err := utils.ParseToken(token, s.secret)
	if err != nil {
		return nil, err
	}
	if !claims.IsAdmin() {
		if claims.Role == "" {
			claims.Role = models.RoleUser
		}
		return claims, nil
	}

	op, err := s.operators.FindByID(ctx, claims.UserID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil, utils.ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	if !op.Active || op.TokenVersion != claims.TokenVersion {
		return nil, ErrSessionExpired
	}
	return claims, nil
}

func (s *service) Logout(ctx context.Context, operatorID string) error {
	return s.operators.IncrementTokenVersion(ctx, operatorID)
}
