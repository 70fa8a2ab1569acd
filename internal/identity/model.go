// Package identity owns the unified-identity graph, binding codes, web user
// credentials, and the Telegram allowlist — component C1 of the gateway.
package identity

import "time"

// BindingStatus enumerates how much of the identity graph a UnifiedUser has
// resolved.
type BindingStatus string

const (
	BindingStatusWebOnly      BindingStatus = "web_only"
	BindingStatusTelegramOnly BindingStatus = "telegram_only"
	BindingStatusComplete     BindingStatus = "complete"
)

// Role enumerates the two permission tiers a WebUser can hold.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// PermissionLevel is the gate a CommandHandler may require before it runs.
type PermissionLevel string

const (
	PermissionNone      PermissionLevel = "none"
	PermissionAllowlist PermissionLevel = "allowlist"
	PermissionAdmin     PermissionLevel = "admin"
)

// UnifiedUser is the canonical identity joining a web email and a Telegram
// chat id. Either WebEmail or TelegramChatID may be empty but never both;
// once both are set the pairing is immutable outside administrator action.
type UnifiedUser struct {
	UnifiedUserID   string        `json:"unified_user_id"`
	WebEmail        string        `json:"web_email,omitempty"`
	TelegramChatID  string        `json:"telegram_chat_id,omitempty"`
	BindingStatus   BindingStatus `json:"binding_status"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// WebUser is keyed by email and is never deleted by normal flow, only
// disabled.
type WebUser struct {
	Email                 string    `json:"email"`
	PasswordHash           string    `json:"password_hash"`
	Enabled                bool      `json:"enabled"`
	Role                   Role      `json:"role"`
	RequirePasswordChange  bool      `json:"require_password_change"`
	CreatedAt              time.Time `json:"created_at"`
	LastLogin              time.Time `json:"last_login,omitempty"`
}

// BindingCode is an ephemeral one-time secret that ties a Telegram chat to a
// web account. At most one pending, non-expired code may exist per email.
type BindingCode struct {
	Code      string    `json:"code"`
	WebEmail  string    `json:"web_email"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
	Status    string    `json:"status"` // pending | used | expired
}

// AllowlistEntry is keyed by a channel-native id (Telegram chat id). A
// disabled entry is equivalent to an absent entry for admission purposes.
type AllowlistEntry struct {
	ChatID      string          `json:"chat_id"`
	Username    string          `json:"username,omitempty"`
	Enabled     bool            `json:"enabled"`
	Role        Role            `json:"role"`
	Permissions map[string]bool `json:"permissions,omitempty"`
}

// HasPermission reports whether the entry grants the named permission
// (e.g. "file_reader").
func (e AllowlistEntry) HasPermission(name string) bool {
	if e.Permissions == nil {
		return false
	}
	return e.Permissions[name]
}
