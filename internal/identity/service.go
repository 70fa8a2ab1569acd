package identity

import (
	"context"
	"time"

	"relay/internal/relayerr"
)

// Service is the façade the HTTP and WebSocket ingress layers call into:
// it wires together the Store, JWTService, PasswordHasher, and
// LoginRateLimiter behind the operations the specification names.
type Service struct {
	store       *Store
	jwt         *JWTService
	hasher      *PasswordHasher
	rateLimiter *LoginRateLimiter
	newID       func() string
}

// NewService constructs a Service. newID mints a fresh unified_user_id
// (the caller supplies this so tests can inject deterministic ids).
func NewService(s *Store, jwt *JWTService, hasher *PasswordHasher, rl *LoginRateLimiter, newID func() string) *Service {
	return &Service{store: s, jwt: jwt, hasher: hasher, rateLimiter: rl, newID: newID}
}

// LoginResult carries what a successful Login returns to the REST layer.
type LoginResult struct {
	Token                 string
	ExpiresAt             time.Time
	Role                  Role
	RequirePasswordChange bool
}

// Login verifies email/password, applying the rolling failed-login rate
// limit before touching the password hash so a locked-out account never
// pays the bcrypt cost.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	allowed, err := s.rateLimiter.Allow(ctx, email)
	if err != nil {
		return nil, relayerr.Wrap(relayerr.KindDependencyError, "rate limiter unavailable", err)
	}
	if !allowed {
		return nil, relayerr.New(relayerr.KindRateLimited, "too many failed attempts")
	}

	user, err := s.store.GetWebUser(ctx, email)
	if err != nil {
		// Record the failure even for an unknown account so the rate-limit
		// behavior does not reveal account existence. This path runs no
		// bcrypt comparison, so it answers faster than a wrong password.
		_ = s.rateLimiter.RecordFailure(ctx, email)
		return nil, relayerr.New(relayerr.KindUnauthorized, "invalid credentials")
	}

	if !user.Enabled {
		_ = s.rateLimiter.RecordFailure(ctx, email)
		return nil, relayerr.New(relayerr.KindUnauthorized, "invalid credentials")
	}

	if err := s.hasher.Verify(user.PasswordHash, password); err != nil {
		_ = s.rateLimiter.RecordFailure(ctx, email)
		return nil, err
	}

	if err := s.rateLimiter.Reset(ctx, email); err != nil {
		return nil, relayerr.Wrap(relayerr.KindDependencyError, "rate limiter unavailable", err)
	}

	token, exp, err := s.jwt.Issue(email, user.Role)
	if err != nil {
		return nil, relayerr.Wrap(relayerr.KindDependencyError, "failed to issue token", err)
	}

	user.LastLogin = time.Now().UTC()
	_ = s.store.PutWebUser(ctx, user)

	return &LoginResult{
		Token:                 token,
		ExpiresAt:             exp,
		Role:                  user.Role,
		RequirePasswordChange: user.RequirePasswordChange,
	}, nil
}

// ChangePassword requires the current password, enforces complexity on the
// new one, rehashes with a fresh salt, and clears RequirePasswordChange.
func (s *Service) ChangePassword(ctx context.Context, email, currentPassword, newPassword string) error {
	user, err := s.store.GetWebUser(ctx, email)
	if err != nil {
		return err
	}

	if err := s.hasher.Verify(user.PasswordHash, currentPassword); err != nil {
		return err
	}

	if err := ValidatePasswordComplexity(newPassword); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return relayerr.Wrap(relayerr.KindDependencyError, "failed to hash password", err)
	}

	user.PasswordHash = hash
	user.RequirePasswordChange = false
	return s.store.PutWebUser(ctx, user)
}

// VerifyToken is a thin pass-through used by every authenticated endpoint
// and the WebSocket $connect handler.
func (s *Service) VerifyToken(tokenString string) (*Claims, error) {
	return s.jwt.Verify(tokenString)
}

// ResolveOrCreateWebUnifiedUser resolves (or lazily mints) the UnifiedUser
// for an authenticated web email, the identity half of $connect.
func (s *Service) ResolveOrCreateWebUnifiedUser(ctx context.Context, email string) (*UnifiedUser, error) {
	return s.store.EnsureUnifiedUserForEmail(ctx, email, s.newID)
}

// Store exposes the underlying Store for components (binding, command
// handlers) that need operations beyond this façade.
func (s *Service) Store() *Store { return s.store }
