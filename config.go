package authcore

import (
	"errors"
	"time"

	"github.com/mwfields/authcore/internal"
	"github.com/mwfields/authcore/password"
	"github.com/mwfields/authcore/session"
)

// Config collects every tunable of the core. Construct it once, hand it to
// the Builder, and treat it as immutable afterwards.
type Config struct {
	Password PasswordConfig
	Session  SessionConfig
	Token    TokenConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

// PasswordConfig sets the argon2id cost target and the hashing pool shape.
// Memory is in KiB. Tune the cost so one verification lands around 0.5–1s
// on the expected hardware; the engine does not auto-tune.
type PasswordConfig struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	// UpgradeOnLogin rehashes a credential with the live parameters when a
	// successful verification reports the stored record is weaker.
	UpgradeOnLogin bool

	// MaxConcurrentHashOps caps in-flight argon2 invocations.
	MaxConcurrentHashOps int

	// QueueOnSaturation makes saturated logins wait (honoring their
	// context) instead of failing with ErrHashCapacity.
	QueueOnSaturation bool
}

// SessionConfig sets the expiry policy.
type SessionConfig struct {
	IdleTimeout time.Duration
	MaxLifetime time.Duration

	// BindingAttributes optionally names attribute keys re-checked on every
	// validation. Off by default; see session.Config.
	BindingAttributes []string
}

// TokenConfig sets session token entropy. Values below 128 bits are raised.
type TokenConfig struct {
	EntropyBits int
}

// AuditConfig controls the asynchronous audit trail.
type AuditConfig struct {
	Enabled    bool
	BufferSize int

	// DropIfFull sheds events under backpressure instead of blocking the
	// request path; drops are counted and reported by Engine.AuditDropped.
	DropIfFull bool
}

// MetricsConfig controls the in-process counter registry.
type MetricsConfig struct {
	Enabled bool
}

// DefaultConfig returns the tuning a single-node deployment starts from:
// the 64 MiB argon2id cost target, a 30 minute idle window under a 12 hour
// ceiling, and audit plus metrics switched on.
func DefaultConfig() Config {
	return Config{
		Password: PasswordConfig{
			Memory:               64 * 1024,
			Time:                 3,
			Parallelism:          1,
			SaltLength:           16,
			KeyLength:            32,
			UpgradeOnLogin:       true,
			MaxConcurrentHashOps: 4,
			QueueOnSaturation:    false,
		},
		Session: SessionConfig{
			IdleTimeout: 30 * time.Minute,
			MaxLifetime: 12 * time.Hour,
		},
		Token: TokenConfig{
			EntropyBits: internal.MinTokenEntropyBits,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

func validateConfig(cfg Config) error {
	if cfg.Session.IdleTimeout <= 0 {
		return errors.New("session idle timeout must be positive")
	}
	if cfg.Session.MaxLifetime < cfg.Session.IdleTimeout {
		return errors.New("session max lifetime must be >= idle timeout")
	}
	if cfg.Password.MaxConcurrentHashOps <= 0 {
		return errors.New("max concurrent hash ops must be positive")
	}
	return nil
}

func (c Config) passwordConfig() password.Config {
	return password.Config{
		Memory:      c.Password.Memory,
		Time:        c.Password.Time,
		Parallelism: c.Password.Parallelism,
		SaltLength:  c.Password.SaltLength,
		KeyLength:   c.Password.KeyLength,
	}
}

func (c Config) sessionConfig() session.Config {
	return session.Config{
		IdleTimeout:       c.Session.IdleTimeout,
		MaxLifetime:       c.Session.MaxLifetime,
		TokenEntropyBits:  c.Token.EntropyBits,
		BindingAttributes: c.Session.BindingAttributes,
	}
}
