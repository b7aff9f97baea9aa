package authcore

import (
	"errors"

	"github.com/quickmeds/authcore/internal/audit"
	"github.com/quickmeds/authcore/internal/limiters"
	"github.com/quickmeds/authcore/internal/metrics"
	"github.com/quickmeds/authcore/internal/stores"
	"github.com/quickmeds/authcore/password"
	"github.com/quickmeds/authcore/session"
	"github.com/quickmeds/authcore/token"
	"github.com/redis/go-redis/v9"
)

// Builder assembles an [Engine]. Construction is allocation-only; no
// I/O happens until the first Engine method runs.
type Builder struct {
	config       Config
	redis        redis.UniversalClient
	userProvider UserProvider
	notifier     Notifier
	auditSink    AuditSink

	built bool
}

// New returns a Builder seeded with production defaults.
func New() *Builder {
	return &Builder{config: defaultConfig()}
}

// WithConfig replaces the entire configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client backing sessions, challenges,
// refresh records, limiters, and the snapshot cache.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithUserProvider sets the host's user database adapter. Required.
func (b *Builder) WithUserProvider(up UserProvider) *Builder {
	b.userProvider = up
	return b
}

// WithNotifier sets the one-time-code delivery channel. Required.
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithAuditSink sets the destination for audit events. Without one,
// enabled auditing falls back to a discarding sink.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithMetricsEnabled toggles the counter set.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration, wires the stores, and starts the
// challenge sweeper. A Builder builds at most once.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.redis == nil {
		return nil, errors.New("redis client required")
	}
	if b.userProvider == nil {
		return nil, errors.New("user provider required")
	}
	if b.notifier == nil {
		return nil, errors.New("notifier required")
	}

	tm, err := token.NewManager(token.Config{
		AccessTTL:         cfg.Token.AccessTTL,
		RefreshTTL:        cfg.Token.RefreshTTL,
		SigningMethod:     token.SigningMethod(cfg.Token.SigningMethod),
		AccessPrivateKey:  cloneBytes(cfg.Token.AccessPrivateKey),
		AccessPublicKey:   cloneBytes(cfg.Token.AccessPublicKey),
		RefreshPrivateKey: cloneBytes(cfg.Token.RefreshPrivateKey),
		RefreshPublicKey:  cloneBytes(cfg.Token.RefreshPublicKey),
		Issuer:            cfg.Token.Issuer,
		Leeway:            cfg.Token.Leeway,
	})
	if err != nil {
		return nil, err
	}

	hasher, err := password.NewHasher(password.Params{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	engine := &Engine{
		config:       cfg,
		userProvider: b.userProvider,
		notifier:     b.notifier,
		tokens:       tm,
		hasher:       hasher,
		sessionStore: session.NewStore(b.redis, cfg.RedisPrefix+":s"),
		otpStore:     stores.NewOTPStore(b.redis, cfg.RedisPrefix+":o"),
		refreshStore: stores.NewRefreshStore(b.redis, cfg.RedisPrefix+":r"),
		metrics: metrics.New(metrics.Config{
			Enabled: cfg.Metrics.Enabled,
		}),
		audit: audit.NewDispatcher(audit.Config{
			Enabled:    cfg.Audit.Enabled,
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, b.auditSink),
	}

	if cfg.Cache.Enabled {
		engine.snapshotCache = stores.NewSnapshotCache(b.redis, cfg.RedisPrefix+":c", cfg.Cache.TTL)
	}
	if cfg.Security.Login.Enabled {
		engine.loginLimiter = limiters.NewFixedWindow(b.redis, cfg.RedisPrefix+":l:login", limiters.Config{
			Enabled: true,
			Max:     cfg.Security.Login.Max,
			Window:  cfg.Security.Login.Window,
		})
	}
	if cfg.Security.OTPRequest.Enabled {
		engine.otpLimiter = limiters.NewFixedWindow(b.redis, cfg.RedisPrefix+":l:otp", limiters.Config{
			Enabled: true,
			Max:     cfg.Security.OTPRequest.Max,
			Window:  cfg.Security.OTPRequest.Window,
		})
	}
	if cfg.Security.Refresh.Enabled {
		engine.refreshLimiter = limiters.NewFixedWindow(b.redis, cfg.RedisPrefix+":l:refresh", limiters.Config{
			Enabled: true,
			Max:     cfg.Security.Refresh.Max,
			Window:  cfg.Security.Refresh.Window,
		})
	}

	engine.startSweeper()

	b.built = true
	return engine, nil
}
