package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/choreboard/choreboard/internal/shared"
)

// pinPattern is checked before any repository access.
var pinPattern = regexp.MustCompile(`^\d{4}$`)

// Service wraps credential verification and principal management rules.
type Service struct {
	repo    Repository
	logger  *slog.Logger
	timeout time.Duration
}

// NewService constructs a Service. The timeout bounds every store access so
// infrastructure stalls surface as ErrUnavailable instead of hanging logins.
func NewService(repo Repository, logger *slog.Logger, timeout time.Duration) *Service {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Service{repo: repo, logger: logger, timeout: timeout}
}

// VerifyPassword validates email/password credentials. Unknown email, inactive
// account and wrong password are indistinguishable to the caller.
func (s *Service) VerifyPassword(ctx context.Context, email, password string) (*Principal, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	principal, err := s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, s.unavailable("find principal by email", err)
	}
	if !principal.IsActive || principal.PasswordHash == "" {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(principal.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return principal, nil
}

// VerifyPIN validates a kid's 4-digit PIN. The format check runs before any
// store access. A principal whose role is not kid fails closed even when a
// PIN hash happens to be stored for it.
func (s *Service) VerifyPIN(ctx context.Context, principalID int64, pin string) (*Principal, error) {
	if !pinPattern.MatchString(pin) {
		return nil, fmt.Errorf("%w: pin must be exactly 4 digits", shared.ErrValidation)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	principal, err := s.repo.FindByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrInvalidCredentials
		}
		return nil, s.unavailable("find principal by id", err)
	}
	if principal.Role != RoleKid {
		return nil, shared.ErrInvalidCredentials
	}
	if !principal.IsActive || principal.PINHash == "" {
		return nil, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(principal.PINHash), []byte(pin)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return principal, nil
}

// SetPIN stores a new PIN hash for a kid principal. Rejects non-4-digit input
// with a validation error before touching the store; rejects non-kid targets.
// The write is a single-row UPDATE, so concurrent calls settle last-write-wins.
func (s *Service) SetPIN(ctx context.Context, principalID int64, pin string) error {
	if !pinPattern.MatchString(pin) {
		return fmt.Errorf("%w: pin must be exactly 4 digits", shared.ErrValidation)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	principal, err := s.repo.FindByID(ctx, principalID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.ErrNotFound
		}
		return s.unavailable("find principal by id", err)
	}
	if principal.Role != RoleKid {
		return fmt.Errorf("%w: only kid accounts hold a PIN", shared.ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return s.unavailable("hash pin", err)
	}
	if err := s.repo.UpdatePINHash(ctx, principalID, string(hash)); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.ErrNotFound
		}
		return s.unavailable("update pin hash", err)
	}
	return nil
}

// CreateParent provisions the household's parent account.
func (s *Service) CreateParent(ctx context.Context, name, email, password string) (*Principal, error) {
	if len(password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", shared.ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, s.unavailable("hash password", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	created, err := s.repo.Create(ctx, &Principal{
		Name:         strings.TrimSpace(name),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		Role:         RoleParent,
		PasswordHash: string(hash),
		IsActive:     true,
	})
	if err != nil {
		if errors.Is(err, shared.ErrDuplicate) {
			return nil, shared.ErrDuplicate
		}
		return nil, s.unavailable("create parent", err)
	}
	return created, nil
}

// CreateKid adds a child profile. The kid has no credential until a parent
// sets a PIN.
func (s *Service) CreateKid(ctx context.Context, name, email string) (*Principal, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name required", shared.ErrValidation)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	created, err := s.repo.Create(ctx, &Principal{
		Name:     name,
		Email:    strings.ToLower(strings.TrimSpace(email)),
		Role:     RoleKid,
		IsActive: true,
	})
	if err != nil {
		if errors.Is(err, shared.ErrDuplicate) {
			return nil, shared.ErrDuplicate
		}
		return nil, s.unavailable("create kid", err)
	}
	return created, nil
}

// ListKids returns the household's kid profiles.
func (s *Service) ListKids(ctx context.Context) ([]Principal, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	kids, err := s.repo.ListKids(ctx)
	if err != nil {
		return nil, s.unavailable("list kids", err)
	}
	return kids, nil
}

func (s *Service) unavailable(op string, err error) error {
	if s.logger != nil {
		s.logger.Error("identity store failure", slog.String("op", op), slog.Any("error", err))
	}
	return fmt.Errorf("%w: %s", shared.ErrUnavailable, op)
}
