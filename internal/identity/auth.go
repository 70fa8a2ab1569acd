package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"relay/internal/relayerr"
	"relay/internal/store"
)

// Claims is the payload of a signed web session token: {sub=email, role,
// iat, exp=now+lifetime}.
type Claims struct {
	Email string `json:"email"`
	Role  Role   `json:"role"`
	jwt.RegisteredClaims
}

// JWTService issues and verifies the single 7-day web session token the
// specification calls for (no refresh/rotation pair — unlike a multi-tenant
// API, this gateway's sessions are short-lived enough that rotation is not
// worth the extra endpoint).
type JWTService struct {
	secret   []byte
	lifetime time.Duration
}

// NewJWTService constructs a JWTService signing with HS256.
func NewJWTService(secret string, lifetime time.Duration) *JWTService {
	return &JWTService{secret: []byte(secret), lifetime: lifetime}
}

// Issue signs a token for email/role.
func (s *JWTService) Issue(email string, role Role) (string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(s.lifetime)

	claims := &Claims{
		Email: email,
		Role:  role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, exp, nil
}

// Verify parses and validates tokenString, rejecting any signing method
// other than HMAC so a token cannot downgrade the algorithm.
func (s *JWTService) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, relayerr.Wrap(relayerr.KindUnauthorized, "invalid or expired token", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, relayerr.New(relayerr.KindUnauthorized, "invalid token")
	}
	return claims, nil
}

// PasswordHasher wraps bcrypt with the cost the specification requires
// (≥ 12).
type PasswordHasher struct {
	cost int
}

// NewPasswordHasher constructs a PasswordHasher; cost is clamped up to 12
// if a caller supplies something weaker.
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < 12 {
		cost = 12
	}
	return &PasswordHasher{cost: cost}
}

// Hash bcrypt-hashes password.
func (h *PasswordHasher) Hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(b), nil
}

// Verify reports whether password matches hash. It always returns the same
// generic error on mismatch to avoid leaking which half of (hash, input)
// failed.
func (h *PasswordHasher) Verify(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return relayerr.New(relayerr.KindUnauthorized, "invalid credentials")
	}
	return nil
}

// ValidatePasswordComplexity enforces the specification's minimum length 8
// and presence of upper, lower, and digit.
func ValidatePasswordComplexity(password string) error {
	if len(password) < 8 {
		return relayerr.New(relayerr.KindInvalidInput, "password must be at least 8 characters")
	}
	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasDigit = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit {
		return relayerr.New(relayerr.KindInvalidInput, "password must contain an uppercase letter, a lowercase letter, and a digit")
	}
	return nil
}

// LoginRateLimiter enforces "at most N failed logins per email per rolling
// window" using a Redis-style sorted-set sliding window: each failed
// attempt is a ZADD scored by its own timestamp, old entries fall out of
// the window via ZRemRangeByScore, and ZCard against the remaining window
// decides whether the next attempt is allowed.
type LoginRateLimiter struct {
	kv          store.KV
	maxAttempts int
	window      time.Duration
}

// NewLoginRateLimiter constructs a LoginRateLimiter.
func NewLoginRateLimiter(kv store.KV, maxAttempts int, window time.Duration) *LoginRateLimiter {
	return &LoginRateLimiter{kv: kv, maxAttempts: maxAttempts, window: window}
}

func loginKey(email string) string { return "loginfail:" + email }

// Allow reports whether email may attempt another login right now, given
// failures already recorded within the rolling window.
func (l *LoginRateLimiter) Allow(ctx context.Context, email string) (bool, error) {
	key := loginKey(email)
	now := time.Now()
	windowStart := float64(now.Add(-l.window).UnixNano())

	if err := l.kv.ZRemRangeByScore(ctx, key, 0, windowStart); err != nil {
		return false, err
	}
	count, err := l.kv.ZCard(ctx, key)
	if err != nil {
		return false, err
	}
	return count < int64(l.maxAttempts), nil
}

// RecordFailure records one failed attempt for email.
func (l *LoginRateLimiter) RecordFailure(ctx context.Context, email string) error {
	key := loginKey(email)
	now := time.Now()
	if err := l.kv.ZAdd(ctx, key, float64(now.UnixNano()), fmt.Sprintf("%d", now.UnixNano())); err != nil {
		return err
	}
	return l.kv.Expire(ctx, key, l.window+time.Minute)
}

// Reset clears the failure window for email, called on a successful login.
func (l *LoginRateLimiter) Reset(ctx context.Context, email string) error {
	now := time.Now()
	return l.kv.ZRemRangeByScore(ctx, loginKey(email), 0, float64(now.UnixNano()))
}
