package identity

import "context"

// CheckTelegramPermission reports whether chatID satisfies required,
// per the command router's permission gate: ADMIN requires the admin
// role, ALLOWLIST requires an enabled allowlist entry (admins automatically
// satisfy it), NONE always passes.
func (s *Service) CheckTelegramPermission(ctx context.Context, chatID string, required PermissionLevel) bool {
	switch required {
	case PermissionNone:
		return true
	case PermissionAdmin:
		return s.IsAdmin(ctx, chatID)
	case PermissionAllowlist:
		if s.IsAdmin(ctx, chatID) {
			return true
		}
		_, ok := s.IsAllowed(ctx, chatID)
		return ok
	default:
		return false
	}
}
