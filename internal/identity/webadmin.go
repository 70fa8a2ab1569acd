package identity

import (
	"context"
	"time"

	"relay/internal/relayerr"
)

// CreateWebUser provisions a new web account. Used by POST /admin/users;
// unlike Login's constant-time posture this path can freely report a
// conflict since it is administrator-only.
func (s *Service) CreateWebUser(ctx context.Context, email, password string, role Role) (*WebUser, error) {
	if _, err := s.store.GetWebUser(ctx, email); err == nil {
		return nil, relayerr.New(relayerr.KindConflict, "a user with that email already exists")
	}

	if err := ValidatePasswordComplexity(password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, relayerr.Wrap(relayerr.KindDependencyError, "failed to hash password", err)
	}

	u := &WebUser{
		Email:                 email,
		PasswordHash:          hash,
		Enabled:               true,
		Role:                  role,
		RequirePasswordChange: true,
		CreatedAt:             time.Now().UTC(),
	}
	if err := s.store.PutWebUser(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

// ListWebUsers returns every provisioned web account, for GET /admin/users.
func (s *Service) ListWebUsers(ctx context.Context) ([]WebUser, error) {
	return s.store.ListWebUsers(ctx)
}

// SetWebUserPassword force-resets email's password without requiring the
// current one, for PUT /admin/users/{email}/password.
func (s *Service) SetWebUserPassword(ctx context.Context, email, newPassword string) error {
	user, err := s.store.GetWebUser(ctx, email)
	if err != nil {
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
	user.RequirePasswordChange = true
	return s.store.PutWebUser(ctx, user)
}

// SetWebUserRole promotes/demotes email, for PUT /admin/users/{email}/role.
func (s *Service) SetWebUserRole(ctx context.Context, email string, role Role) error {
	user, err := s.store.GetWebUser(ctx, email)
	if err != nil {
		return err
	}
	user.Role = role
	return s.store.PutWebUser(ctx, user)
}

// ListBindings returns every UnifiedUser record, for GET /admin/bindings.
func (s *Service) ListBindings(ctx context.Context) ([]UnifiedUser, error) {
	return s.store.ListUnifiedUsers(ctx)
}
