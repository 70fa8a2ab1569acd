package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	jsoniter "github.com/json-iterator/go"

	"relay/internal/relayerr"
	"relay/internal/store"
)

// Store persists the identity graph on top of a store.KV. Keys:
//
//	user:{unified_user_id}           -> JSON UnifiedUser
//	user-by-email:{email}            -> unified_user_id
//	user-by-chat:{chat_id}           -> unified_user_id
//	webuser:{email}                  -> JSON WebUser
//	bindcode:{code}                  -> JSON BindingCode
//	bindcode-by-email:{email}        -> code (for the "pending exists" lookup)
//	allowlist:{chat_id}              -> JSON AllowlistEntry
//	allowlist-index                  -> sorted set of chat ids (for /admin list)
type Store struct {
	kv store.KV
}

// NewStore wraps kv as an identity Store.
func NewStore(kv store.KV) *Store {
	return &Store{kv: kv}
}

func userKey(id string) string         { return "user:" + id }
func userByEmailKey(e string) string    { return "user-by-email:" + e }
func userByChatKey(c string) string     { return "user-by-chat:" + c }
func webUserKey(e string) string        { return "webuser:" + e }
func bindCodeKey(c string) string       { return "bindcode:" + c }
func bindCodeByEmailKey(e string) string { return "bindcode-by-email:" + e }
func allowlistKey(c string) string      { return "allowlist:" + c }

const allowlistIndexKey = "allowlist-index"

func (s *Store) GetUnifiedUser(ctx context.Context, id string) (*UnifiedUser, error) {
	raw, err := s.kv.Get(ctx, userKey(id))
	if errors.Is(err, store.ErrNotFound) {
		return nil, relayerr.New(relayerr.KindNotFound, "user not found")
	}
	if err != nil {
		return nil, relayerr.Wrap(relayerr.KindDependencyError, "identity store unavailable", err)
	}
	var u UnifiedUser
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.UnmarshalFromString(raw, &u); err != nil {
		return nil, relayerr.Wrap(relayerr.KindDependencyError, "corrupt user record", err)
	}
	return &u, nil
}

func (s *Store) putUnifiedUser(ctx context.Context, u *UnifiedUser) error {
	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalToString(u)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, userKey(u.UnifiedUserID), data, 0)
}

// GetUnifiedUserByEmail resolves the UnifiedUser bound to a web email, if any.
func (s *Store) GetUnifiedUserByEmail(ctx context.Context, email string) (*UnifiedUser, error) {
	id, err := s.kv.Get(ctx, userByEmailKey(email))
	if errors.Is(err, store.ErrNotFound) {
		return nil, relayerr.New(relayerr.KindNotFound, "no unified user for email")
	}
	if err != nil {
		return nil, relayerr.Wrap(relayerr.KindDependencyError, "identity store unavailable", err)
	}
	return s.GetUnifiedUser(ctx, id)
}

// GetUnifiedUserByChatID resolves the UnifiedUser bound to a Telegram chat id.
func (s *Store) GetUnifiedUserByChatID(ctx context.Context, chatID string) (*UnifiedUser, error) {
	id, err := s.kv.Get(ctx, userByChatKey(chatID))
	if errors.Is(err, store.ErrNotFound) {
		return nil, relayerr.New(relayerr.KindNotFound, "no unified user for chat id")
	}
	if err != nil {
		return nil, relayerr.Wrap(relayerr.KindDependencyError, "identity store unavailable", err)
	}
	return s.GetUnifiedUser(ctx, id)
}

// EnsureUnifiedUserForEmail resolves the UnifiedUser for email, creating one
// with BindingStatusWebOnly if none exists yet. Used by WebSocket $connect.
func (s *Store) EnsureUnifiedUserForEmail(ctx context.Context, email string, newID func() string) (*UnifiedUser, error) {
	u, err := s.GetUnifiedUserByEmail(ctx, email)
	if err == nil {
		return u, nil
	}
	if !relayerr.Is(err, relayerr.KindNotFound) {
		return nil, err
	}

	now := time.Now().UTC()
	u = &UnifiedUser{
		UnifiedUserID: newID(),
		WebEmail:      email,
		BindingStatus: BindingStatusWebOnly,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.putUnifiedUser(ctx, u); err != nil {
		return nil, relayerr.Wrap(relayerr.KindDependencyError, "failed to create unified user", err)
	}
	if err := s.kv.Set(ctx, userByEmailKey(email), u.UnifiedUserID, 0); err != nil {
		return nil, relayerr.Wrap(relayerr.KindDependencyError, "failed to index unified user", err)
	}
	return u, nil
}

// BindTelegram atomically sets TelegramChatID on the unified user identified
// by unifiedUserID, refusing if it is already set to a different chat id.
// The caller is responsible for the chat-id-already-bound-elsewhere check.
func (s *Store) BindTelegram(ctx context.Context, unifiedUserID, chatID string) error {
	u, err := s.GetUnifiedUser(ctx, unifiedUserID)
	if err != nil {
		return err
	}
	if u.TelegramChatID != "" && u.TelegramChatID != chatID {
		return relayerr.New(relayerr.KindConflict, "unified user already bound to a different Telegram account")
	}

	before, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalToString(u)
	if err != nil {
		return err
	}

	u.TelegramChatID = chatID
	u.BindingStatus = BindingStatusComplete
	u.UpdatedAt = time.Now().UTC()

	after, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalToString(u)
	if err != nil {
		return err
	}

	if err := s.kv.CompareAndSwap(ctx, userKey(unifiedUserID), before, after, 0); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return relayerr.New(relayerr.KindConflict, "binding changed concurrently, please retry")
		}
		return relayerr.Wrap(relayerr.KindDependencyError, "failed to persist binding", err)
	}

	return s.kv.Set(ctx, userByChatKey(chatID), unifiedUserID, 0)
}

// GetWebUser returns the WebUser for email.
func (s *Store) GetWebUser(ctx context.Context, email string) (*WebUser, error) {
	raw, err := s.kv.Get(ctx, webUserKey(email))
	if errors.Is(err, store.ErrNotFound) {
		return nil, relayerr.New(relayerr.KindNotFound, "user not found")
	}
	if err != nil {
		return nil, relayerr.Wrap(relayerr.KindDependencyError, "identity store unavailable", err)
	}
	var u WebUser
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.UnmarshalFromString(raw, &u); err != nil {
		return nil, relayerr.Wrap(relayerr.KindDependencyError, "corrupt web user record", err)
	}
	return &u, nil
}

// PutWebUser creates or overwrites the WebUser record for u.Email.
func (s *Store) PutWebUser(ctx context.Context, u *WebUser) error {
	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalToString(u)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, webUserKey(u.Email), data, 0); err != nil {
		return relayerr.Wrap(relayerr.KindDependencyError, "failed to persist web user", err)
	}
	return nil
}

// GetAllowlistEntry returns the allowlist entry for chatID, or not-found.
func (s *Store) GetAllowlistEntry(ctx context.Context, chatID string) (*AllowlistEntry, error) {
	raw, err := s.kv.Get(ctx, allowlistKey(chatID))
	if errors.Is(err, store.ErrNotFound) {
		return nil, relayerr.New(relayerr.KindNotFound, "not in allowlist")
	}
	if err != nil {
		return nil, relayerr.Wrap(relayerr.KindDependencyError, "identity store unavailable", err)
	}
	var e AllowlistEntry
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.UnmarshalFromString(raw, &e); err != nil {
		return nil, relayerr.Wrap(relayerr.KindDependencyError, "corrupt allowlist record", err)
	}
	return &e, nil
}

// PutAllowlistEntry creates or overwrites an allowlist entry, indexing it
// for /admin list and /admin broadcast.
func (s *Store) PutAllowlistEntry(ctx context.Context, e *AllowlistEntry) error {
	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalToString(e)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, allowlistKey(e.ChatID), data, 0); err != nil {
		return relayerr.Wrap(relayerr.KindDependencyError, "failed to persist allowlist entry", err)
	}
	return s.kv.ZAdd(ctx, allowlistIndexKey, 0, e.ChatID)
}

// DeleteAllowlistEntry removes chatID from the allowlist entirely.
func (s *Store) DeleteAllowlistEntry(ctx context.Context, chatID string) error {
	if err := s.kv.Delete(ctx, allowlistKey(chatID)); err != nil {
		return relayerr.Wrap(relayerr.KindDependencyError, "failed to delete allowlist entry", err)
	}
	return s.kv.ZRem(ctx, allowlistIndexKey, chatID)
}

// ListWebUsers scans every webuser: record, for the admin user listing.
func (s *Store) ListWebUsers(ctx context.Context) ([]WebUser, error) {
	keys, err := s.kv.Scan(ctx, "webuser:")
	if err != nil {
		return nil, relayerr.Wrap(relayerr.KindDependencyError, "identity store unavailable", err)
	}
	users := make([]WebUser, 0, len(keys))
	for _, k := range keys {
		raw, err := s.kv.Get(ctx, k)
		if err != nil {
			continue
		}
		var u WebUser
		if err := jsoniter.ConfigCompatibleWithStandardLibrary.UnmarshalFromString(raw, &u); err != nil {
			continue
		}
		users = append(users, u)
	}
	return users, nil
}

// ListUnifiedUsers scans every user: record, for the admin bindings listing.
func (s *Store) ListUnifiedUsers(ctx context.Context) ([]UnifiedUser, error) {
	keys, err := s.kv.Scan(ctx, "user:")
	if err != nil {
		return nil, relayerr.Wrap(relayerr.KindDependencyError, "identity store unavailable", err)
	}
	out := make([]UnifiedUser, 0, len(keys))
	for _, k := range keys {
		raw, err := s.kv.Get(ctx, k)
		if err != nil {
			continue
		}
		var u UnifiedUser
		if err := jsoniter.ConfigCompatibleWithStandardLibrary.UnmarshalFromString(raw, &u); err != nil {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}

// ListAllowlist returns every known chat id, enabled or not.
func (s *Store) ListAllowlist(ctx context.Context) ([]AllowlistEntry, error) {
	ids, err := s.kv.ZRangeByScore(ctx, allowlistIndexKey, 0, 0)
	if err != nil {
		return nil, relayerr.Wrap(relayerr.KindDependencyError, "failed to list allowlist", err)
	}
	entries := make([]AllowlistEntry, 0, len(ids))
	for _, id := range ids {
		e, err := s.GetAllowlistEntry(ctx, id)
		if err != nil {
			continue
		}
		entries = append(entries, *e)
	}
	return entries, nil
}

// saveBindingCode persists a BindingCode and its email index with a TTL
// equal to ExpiresAt + the storage buffer the specification requires.
func (s *Store) saveBindingCode(ctx context.Context, bc *BindingCode, storageBuffer time.Duration) error {
	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalToString(bc)
	if err != nil {
		return err
	}
	ttl := time.Until(bc.ExpiresAt) + storageBuffer
	if err := s.kv.Set(ctx, bindCodeKey(bc.Code), data, ttl); err != nil {
		return err
	}
	return s.kv.Set(ctx, bindCodeByEmailKey(bc.WebEmail), bc.Code, ttl)
}

// GetBindingCode loads the BindingCode record for code.
func (s *Store) GetBindingCode(ctx context.Context, code string) (*BindingCode, error) {
	raw, err := s.kv.Get(ctx, bindCodeKey(code))
	if errors.Is(err, store.ErrNotFound) {
		return nil, relayerr.New(relayerr.KindNotFound, "binding code not found")
	}
	if err != nil {
		return nil, relayerr.Wrap(relayerr.KindDependencyError, "identity store unavailable", err)
	}
	var bc BindingCode
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.UnmarshalFromString(raw, &bc); err != nil {
		return nil, relayerr.Wrap(relayerr.KindDependencyError, "corrupt binding code record", err)
	}
	return &bc, nil
}

// pendingCodeForEmail returns the still-pending BindingCode record for
// email and true, if the index entry still resolves to a live record.
func (s *Store) pendingCodeForEmail(ctx context.Context, email string) (*BindingCode, bool) {
	code, err := s.kv.Get(ctx, bindCodeByEmailKey(email))
	if err != nil {
		return nil, false
	}
	bc, err := s.GetBindingCode(ctx, code)
	if err != nil {
		return nil, false
	}
	if bc.Status != "pending" || time.Now().UTC().After(bc.ExpiresAt) {
		return nil, false
	}
	return bc, true
}

// markBindingCodeUsed transitions code from pending to used with a
// conditional write, so a code cannot be redeemed twice.
func (s *Store) markBindingCodeUsed(ctx context.Context, bc *BindingCode) error {
	before, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalToString(bc)
	if err != nil {
		return err
	}
	used := *bc
	used.Status = "used"
	after, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalToString(&used)
	if err != nil {
		return err
	}

	ttl := time.Until(bc.ExpiresAt) + 300*time.Second
	if ttl < 0 {
		ttl = 0
	}
	if err := s.kv.CompareAndSwap(ctx, bindCodeKey(bc.Code), before, after, ttl); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return relayerr.New(relayerr.KindConflict, "binding code already used")
		}
		return relayerr.Wrap(relayerr.KindDependencyError, "failed to mark code used", err)
	}
	return nil
}

var errPendingUnavailable = errors.New("no live pending code")

func (s *Store) requirePending(ctx context.Context, code string) (*BindingCode, error) {
	bc, err := s.GetBindingCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if bc.Status != "pending" {
		return nil, fmt.Errorf("%w: status=%s", errPendingUnavailable, bc.Status)
	}
	if time.Now().UTC().After(bc.ExpiresAt) {
		return nil, fmt.Errorf("%w: expired", errPendingUnavailable)
	}
	return bc, nil
}
