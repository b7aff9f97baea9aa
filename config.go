package authcore

import (
	"errors"
	"time"
)

// Config holds every engine knob. Instances are configured before
// [Builder.Build] and treated as immutable afterwards; the engine works
// on its own clone.
type Config struct {
	Token    TokenConfig
	Session  SessionConfig
	OTP      OTPConfig
	Password PasswordConfig
	Security SecurityConfig
	Cache    CacheConfig
	Audit    AuditConfig
	Metrics  MetricsConfig

	// AdminRole names the role whose access tokens bypass session
	// validation entirely.
	AdminRole string

	// RedisPrefix namespaces every key the engine writes.
	RedisPrefix string
}

// TokenConfig configures the dual JWT issuer. Access and refresh tokens
// use distinct keys; with HS256 the two secrets must differ.
type TokenConfig struct {
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// SigningMethod is "ed25519" (default) or "hs256".
	SigningMethod string

	AccessPrivateKey  []byte
	AccessPublicKey   []byte
	RefreshPrivateKey []byte
	RefreshPublicKey  []byte

	Issuer string
	Leeway time.Duration
}

// SessionConfig controls session rows in Redis.
type SessionConfig struct {
	// Lifetime is the absolute session TTL. Same-device logins inside
	// the window reuse and re-arm the existing row.
	Lifetime time.Duration

	// RetentionAfterLogout keeps revoked rows readable for audit.
	RetentionAfterLogout time.Duration
}

// OTPConfig controls one-time-code challenges.
type OTPConfig struct {
	Digits      int
	TTL         time.Duration
	MaxAttempts int

	// GraceWindow is how long a verified challenge stays consumable by
	// the two-phase reset flow.
	GraceWindow time.Duration

	// SweepInterval paces the background cleanup of expired unconsumed
	// challenges. Zero disables the sweeper; per-key TTLs still apply.
	SweepInterval time.Duration
}

// PasswordConfig carries argon2id cost parameters. Memory is in KiB.
type PasswordConfig struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	// UpgradeOnLogin re-hashes credentials stored under weaker
	// parameters on the next successful login.
	UpgradeOnLogin bool
}

// LimitConfig is one fixed-window counter.
type LimitConfig struct {
	Enabled bool
	Max     int64
	Window  time.Duration
}

// SecurityConfig groups the per-flow rate limiters.
type SecurityConfig struct {
	// Login limits attempts per (identifier, client IP).
	Login LimitConfig
	// OTPRequest limits challenge creation per identifier across
	// registration, resend, and forgot-password.
	OTPRequest LimitConfig
	// Refresh limits token refresh per user.
	Refresh LimitConfig
}

// CacheConfig controls the user snapshot read-model cache.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int

	// DropIfFull sheds events instead of blocking producers when the
	// buffer is full. Dropped counts are observable via
	// [Engine.AuditDropped].
	DropIfFull bool
}

// MetricsConfig controls the lock-free counter set.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the production defaults [New] seeds a Builder
// with. Callers mutate a copy and pass it to [Builder.WithConfig].
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			AccessTTL:     15 * time.Minute,
			RefreshTTL:    7 * 24 * time.Hour,
			SigningMethod: "ed25519",
			Leeway:        30 * time.Second,
		},
		Session: SessionConfig{
			Lifetime:             7 * 24 * time.Hour,
			RetentionAfterLogout: 30 * 24 * time.Hour,
		},
		OTP: OTPConfig{
			Digits:        6,
			TTL:           5 * time.Minute,
			MaxAttempts:   5,
			GraceWindow:   30 * time.Minute,
			SweepInterval: time.Hour,
		},
		Password: PasswordConfig{
			Memory:      64 * 1024,
			Time:        3,
			Parallelism: 2,
			SaltLength:  16,
			KeyLength:   32,
		},
		Security: SecurityConfig{
			Login:      LimitConfig{Enabled: true, Max: 10, Window: 5 * time.Minute},
			OTPRequest: LimitConfig{Enabled: true, Max: 5, Window: 15 * time.Minute},
			Refresh:    LimitConfig{Enabled: true, Max: 30, Window: time.Minute},
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     10 * time.Minute,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		AdminRole:   "admin",
		RedisPrefix: "qm",
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.AccessPrivateKey = cloneBytes(cfg.Token.AccessPrivateKey)
	out.Token.AccessPublicKey = cloneBytes(cfg.Token.AccessPublicKey)
	out.Token.RefreshPrivateKey = cloneBytes(cfg.Token.RefreshPrivateKey)
	out.Token.RefreshPublicKey = cloneBytes(cfg.Token.RefreshPublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Validate rejects configurations the engine cannot run safely.
// Token key material is validated separately by the token manager.
func (c Config) Validate() error {
	if c.Token.AccessTTL <= 0 || c.Token.RefreshTTL <= 0 {
		return errors.New("token TTLs must be positive")
	}
	if c.Token.RefreshTTL <= c.Token.AccessTTL {
		return errors.New("refresh TTL must exceed access TTL")
	}
	if c.Session.Lifetime <= 0 {
		return errors.New("session lifetime must be positive")
	}
	if c.Session.RetentionAfterLogout < 0 {
		return errors.New("session retention must not be negative")
	}
	if c.OTP.Digits < 4 || c.OTP.Digits > 10 {
		return errors.New("otp digits must be between 4 and 10")
	}
	if c.OTP.TTL <= 0 {
		return errors.New("otp ttl must be positive")
	}
	if c.OTP.MaxAttempts < 1 {
		return errors.New("otp max attempts must be >= 1")
	}
	if c.OTP.GraceWindow <= 0 {
		return errors.New("otp grace window must be positive")
	}
	if c.OTP.SweepInterval < 0 {
		return errors.New("otp sweep interval must not be negative")
	}
	for _, l := range []struct {
		name string
		cfg  LimitConfig
	}{
		{"login", c.Security.Login},
		{"otp request", c.Security.OTPRequest},
		{"refresh", c.Security.Refresh},
	} {
		if l.cfg.Enabled && (l.cfg.Max < 1 || l.cfg.Window <= 0) {
			return errors.New(l.name + " limiter requires positive max and window")
		}
	}
	if c.Cache.Enabled && c.Cache.TTL <= 0 {
		return errors.New("cache ttl must be positive when enabled")
	}
	if c.Audit.Enabled && c.Audit.BufferSize < 1 {
		return errors.New("audit buffer size must be >= 1")
	}
	if c.AdminRole == "" {
		return errors.New("admin role must not be empty")
	}
	if c.RedisPrefix == "" {
		return errors.New("redis prefix must not be empty")
	}
	return nil
}
