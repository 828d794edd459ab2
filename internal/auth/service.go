package auth

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/fleetgate/fleetgate/internal/shared"
)

// Service wraps authentication business rules.
type Service struct {
	repo    Repository
	issuer  *TokenIssuer
	revoker *Revoker
	logger  *slog.Logger
}

// NewService constructs a Service.
func NewService(repo Repository, issuer *TokenIssuer, revoker *Revoker, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, issuer: issuer, revoker: revoker, logger: logger}
}

// Login validates credentials and issues an access token. Every failure mode
// collapses into ErrInvalidCredentials so the response leaks nothing about
// which part failed.
func (s *Service) Login(ctx context.Context, username, password string) (string, *Account, error) {
	account, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		return "", nil, shared.ErrInvalidCredentials
	}
	if !account.Active {
		return "", nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return "", nil, shared.ErrInvalidCredentials
	}

	token, _, err := s.issuer.Issue(account)
	if err != nil {
		return "", nil, err
	}
	if err := s.repo.TouchLastLogin(ctx, account.ID.String()); err != nil {
		s.logger.Warn("touch last login", slog.Any("error", err))
	}
	return token, account, nil
}

// Logout revokes the presented token until its natural expiry.
func (s *Service) Logout(ctx context.Context, tokenID string, expiresAt time.Time) error {
	if s.revoker == nil || tokenID == "" {
		return nil
	}
	return s.revoker.Revoke(ctx, tokenID, expiresAt)
}
