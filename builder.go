package authcore

import (
	"errors"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/mwfields/authcore/internal"
	"github.com/mwfields/authcore/password"
	"github.com/mwfields/authcore/session"
)

// Builder assembles an Engine. Options may be chained in any order; Build
// is single-use.
type Builder struct {
	config Config

	store     session.Store
	creds     CredentialSource
	rateCheck RateCheck
	auditSink AuditSink
	logger    *slog.Logger

	built bool
}

// New returns a Builder seeded with the default configuration.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithStore selects the session backend. Exactly one backend is chosen at
// startup; it is never swapped per call.
func (b *Builder) WithStore(store session.Store) *Builder {
	b.store = store
	return b
}

// WithRedis is shorthand for a Redis-backed session store under the "ac"
// key prefix.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.store = session.NewRedisStore(client, "ac")
	return b
}

// WithCredentialSource wires the external identity store adapter.
func (b *Builder) WithCredentialSource(creds CredentialSource) *Builder {
	b.creds = creds
	return b
}

// WithRateCheck installs the pre-hash veto hook.
func (b *Builder) WithRateCheck(check RateCheck) *Builder {
	b.rateCheck = check
	return b
}

// WithAuditSink sets the audit consumer; ignored when auditing is disabled.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the operational logger (default slog.Default()).
func (b *Builder) WithLogger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithMetricsEnabled toggles the counter registry.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build verifies the configuration and the entropy source, prepares the
// decoy credential, and returns a ready Engine. The decoy is hashed at the
// live cost target, so Build intentionally pays one full hash.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	if err := validateConfig(b.config); err != nil {
		return nil, err
	}
	if b.store == nil {
		return nil, errors.New("a session store is required")
	}
	if b.creds == nil {
		return nil, errors.New("a credential source is required")
	}

	if err := internal.CheckEntropy(); err != nil {
		return nil, err
	}

	hasher, err := password.NewArgon2(b.config.passwordConfig())
	if err != nil {
		return nil, err
	}

	decoySecret, err := internal.NewToken(256)
	if err != nil {
		return nil, err
	}
	decoy, err := hasher.Hash(decoySecret)
	if err != nil {
		return nil, err
	}

	sessions, err := session.NewManager(b.store, b.config.sessionConfig())
	if err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	b.built = true

	return &Engine{
		config:    b.config,
		pool:      password.NewPool(hasher, b.config.Password.MaxConcurrentHashOps, b.config.Password.QueueOnSaturation),
		sessions:  sessions,
		store:     b.store,
		creds:     b.creds,
		rateCheck: b.rateCheck,
		audit:     newAuditDispatcher(b.config.Audit, b.auditSink),
		metrics:   newMetrics(b.config.Metrics),
		logger:    logger,
		decoy:     decoy,
	}, nil
}
