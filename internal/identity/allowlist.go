package identity

import (
	"context"

	"relay/internal/relayerr"
)

// IsAllowed reports whether chatID may use the Telegram ingress at all. A
// disabled entry is equivalent to an absent one.
func (s *Service) IsAllowed(ctx context.Context, chatID string) (*AllowlistEntry, bool) {
	e, err := s.store.GetAllowlistEntry(ctx, chatID)
	if err != nil || !e.Enabled {
		return nil, false
	}
	return e, true
}

// IsAdmin reports whether chatID holds the admin role in the allowlist.
func (s *Service) IsAdmin(ctx context.Context, chatID string) bool {
	e, err := s.store.GetAllowlistEntry(ctx, chatID)
	if err != nil || !e.Enabled {
		return false
	}
	return e.Role == RoleAdmin
}

// AllowlistAdd adds or updates an entry, enabled by default.
func (s *Service) AllowlistAdd(ctx context.Context, chatID, username string) error {
	e := &AllowlistEntry{
		ChatID:   chatID,
		Username: username,
		Enabled:  true,
		Role:     RoleUser,
	}
	if existing, err := s.store.GetAllowlistEntry(ctx, chatID); err == nil {
		e.Role = existing.Role
		e.Permissions = existing.Permissions
	}
	return s.store.PutAllowlistEntry(ctx, e)
}

// AllowlistRemove deletes chatID from the allowlist entirely. Refused if
// actorChatID == chatID (self-lockout guard).
func (s *Service) AllowlistRemove(ctx context.Context, actorChatID, chatID string) error {
	if actorChatID == chatID {
		return relayerr.New(relayerr.KindForbidden, "you cannot remove yourself from the allowlist")
	}
	return s.store.DeleteAllowlistEntry(ctx, chatID)
}

// AllowlistSetEnabled flips the enabled flag. Disabling yourself is refused.
func (s *Service) AllowlistSetEnabled(ctx context.Context, actorChatID, chatID string, enabled bool) error {
	if !enabled && actorChatID == chatID {
		return relayerr.New(relayerr.KindForbidden, "you cannot disable yourself")
	}
	e, err := s.store.GetAllowlistEntry(ctx, chatID)
	if err != nil {
		return err
	}
	e.Enabled = enabled
	return s.store.PutAllowlistEntry(ctx, e)
}

// AllowlistSetRole promotes/demotes chatID. Demoting yourself is refused.
func (s *Service) AllowlistSetRole(ctx context.Context, actorChatID, chatID string, role Role) error {
	if role != RoleAdmin && actorChatID == chatID {
		return relayerr.New(relayerr.KindForbidden, "you cannot demote yourself")
	}
	e, err := s.store.GetAllowlistEntry(ctx, chatID)
	if err != nil {
		return err
	}
	e.Role = role
	return s.store.PutAllowlistEntry(ctx, e)
}

// AllowlistSetPermission sets a named permission (e.g. "file_reader") on
// chatID's entry.
func (s *Service) AllowlistSetPermission(ctx context.Context, chatID, permission string, value bool) error {
	e, err := s.store.GetAllowlistEntry(ctx, chatID)
	if err != nil {
		return err
	}
	if e.Permissions == nil {
		e.Permissions = make(map[string]bool)
	}
	e.Permissions[permission] = value
	return s.store.PutAllowlistEntry(ctx, e)
}

// ListAllowlist returns every known entry.
func (s *Service) ListAllowlist(ctx context.Context) ([]AllowlistEntry, error) {
	return s.store.ListAllowlist(ctx)
}

// GetAllowlistEntry returns a single entry regardless of enabled status,
// for /admin info.
func (s *Service) GetAllowlistEntry(ctx context.Context, chatID string) (*AllowlistEntry, error) {
	return s.store.GetAllowlistEntry(ctx, chatID)
}
