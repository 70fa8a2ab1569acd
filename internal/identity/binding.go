package identity

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"relay/internal/relayerr"
)

// BindingCodeTTL is the lifetime of a generated code (300s per spec).
const BindingCodeTTL = 300 * time.Second

// bindingCodeStorageBuffer extends the storage-level TTL past ExpiresAt so
// a just-expired code can still be read back and classified "expired"
// rather than disappearing silently.
const bindingCodeStorageBuffer = 300 * time.Second

// GenerateCode implements step 1 of the binding protocol: if a pending,
// non-expired code already exists for email, it is returned unchanged
// (idempotent regeneration); otherwise a fresh 6-digit code is drawn,
// rejecting collisions against currently live codes.
func (s *Service) GenerateCode(ctx context.Context, email string) (*BindingCode, error) {
	if bc, ok := s.store.pendingCodeForEmail(ctx, email); ok {
		return bc, nil
	}

	code, err := s.drawUniqueCode(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	bc := &BindingCode{
		Code:      code,
		WebEmail:  email,
		CreatedAt: now,
		ExpiresAt: now.Add(BindingCodeTTL),
		Status:    "pending",
	}

	if err := s.store.saveBindingCode(ctx, bc, bindingCodeStorageBuffer); err != nil {
		return nil, relayerr.Wrap(relayerr.KindDependencyError, "failed to persist binding code", err)
	}

	return bc, nil
}

// drawUniqueCode draws a uniformly random 6-digit code, rejection-sampling
// against any code that currently resolves to a live record.
func (s *Service) drawUniqueCode(ctx context.Context) (string, error) {
	for attempt := 0; attempt < 20; attempt++ {
		n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
		if err != nil {
			return "", relayerr.Wrap(relayerr.KindDependencyError, "failed to generate binding code", err)
		}
		code := fmt.Sprintf("%06d", n.Int64())

		if _, err := s.store.GetBindingCode(ctx, code); err != nil {
			if relayerr.Is(err, relayerr.KindNotFound) {
				return code, nil
			}
			return "", err
		}
		// A record exists for this code; try again rather than reuse it
		// even if it has already expired, to keep the space simple.
	}
	return "", relayerr.New(relayerr.KindDependencyError, "failed to allocate a unique binding code")
}

// RedeemCode implements steps 2(a)-(f) of the binding protocol for the
// /bind <code> command. It returns the email the Telegram chat is now
// bound to on success.
func (s *Service) RedeemCode(ctx context.Context, code, telegramChatID string) (string, error) {
	if len(code) != 6 || !isAllDigits(code) {
		return "", relayerr.New(relayerr.KindInvalidInput, "binding code must be 6 digits")
	}

	bc, err := s.store.requirePending(ctx, code)
	if err != nil {
		return "", relayerr.New(relayerr.KindNotFound, "binding code invalid or expired")
	}

	if existing, err := s.store.GetUnifiedUserByChatID(ctx, telegramChatID); err == nil && existing.TelegramChatID != "" {
		return "", relayerr.New(relayerr.KindConflict, "this Telegram account is already bound to another account")
	}

	unifiedUser, err := s.store.GetUnifiedUserByEmail(ctx, bc.WebEmail)
	if err != nil {
		if !relayerr.Is(err, relayerr.KindNotFound) {
			return "", err
		}
		unifiedUser, err = s.store.EnsureUnifiedUserForEmail(ctx, bc.WebEmail, s.newID)
		if err != nil {
			return "", err
		}
	}

	if err := s.store.BindTelegram(ctx, unifiedUser.UnifiedUserID, telegramChatID); err != nil {
		return "", err
	}

	if err := s.store.markBindingCodeUsed(ctx, bc); err != nil {
		// The binding already happened; a failure here only means a retried
		// redemption of the same code might be attempted. BindTelegram's own
		// conflict check on a second attempt (chat id already bound) is the
		// backstop, so the bind is treated as successful rather than
		// surfacing an error for work that already committed.
		slog.Warn("identity: failed to mark binding code used after successful bind", "code", code, "error", err)
	}

	return bc.WebEmail, nil
}

// BindingStatus reports whether email's UnifiedUser has a Telegram side.
func (s *Service) BindingStatus(ctx context.Context, email string) (*UnifiedUser, bool, error) {
	u, err := s.store.GetUnifiedUserByEmail(ctx, email)
	if err != nil {
		if relayerr.Is(err, relayerr.KindNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return u, u.TelegramChatID != "", nil
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
