package goSession

import (
	"errors"
	"fmt"

	"github.com/MrEthical07/goSession/cert"
	"github.com/MrEthical07/goSession/internal/rate"
	"github.com/MrEthical07/goSession/registry"
	"github.com/MrEthical07/goSession/session"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Builder assembles an Engine. A Builder is single use.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	auditSink AuditSink
	logger    *zerolog.Logger
	idGen     *session.IDGenerator
	certs     *cert.Manager

	built bool
}

// New returns a Builder seeded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithRedis sets the Redis client used for identifier claims.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAuditSink sets the audit sink. It only receives events when auditing
// is enabled in the configuration.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger sets the engine logger. The default discards everything.
func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = &logger
	return b
}

// WithIDGenerator injects the generator for local session identifiers,
// replacing the one built from Session.FirstID.
func (b *Builder) WithIDGenerator(gen *session.IDGenerator) *Builder {
	b.idGen = gen
	return b
}

// WithCertificateManager injects a certificate manager, overriding the
// Certificate section of the configuration.
func (b *Builder) WithCertificateManager(m *cert.Manager) *Builder {
	b.certs = m
	return b
}

// WithMetricsEnabled toggles in-process metrics.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the establish latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns a running Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Claims.Enabled && b.redis == nil {
		return nil, errors.New("Claims require redis client")
	}
	if cfg.Throttle.Enabled && b.redis == nil {
		return nil, errors.New("Throttle requires redis client")
	}

	logger := zerolog.Nop()
	if b.logger != nil {
		logger = *b.logger
	}
	logger = logger.With().Str("component", "gosession").Logger()

	// -------- CERTIFICATES --------
	certs := b.certs
	if certs == nil && cfg.Certificate.Enabled {
		m, err := cert.NewManager(cfg.Certificate.managerConfig())
		if err != nil {
			return nil, fmt.Errorf("certificate manager: %w", err)
		}
		certs = m
	}

	// -------- IDENTIFIERS --------
	gen := b.idGen
	if gen == nil {
		gen = session.NewIDGeneratorAt(cfg.Session.FirstID)
	}

	engine := &Engine{
		config:  cfg,
		idGen:   gen,
		certs:   certs,
		logger:  logger,
		metrics: NewMetrics(cfg.Metrics),
		stop:    make(chan struct{}),
	}

	// -------- REGISTRY --------
	var claims *registry.ClaimStore
	if cfg.Claims.Enabled {
		claims = registry.NewClaimStore(b.redis, cfg.Claims.RedisPrefix, cfg.Claims.TTL, cfg.Claims.Owner)
	}
	engine.registry = registry.New(registry.Config{
		Collision:    cfg.Registry.Collision,
		MaxSessions:  cfg.Registry.MaxSessions,
		OnClaimError: engine.onClaimError,
	}, claims)

	if cfg.Throttle.Enabled {
		engine.throttle = rate.New(b.redis, rate.Config{
			Prefix:      cfg.Claims.RedisPrefix,
			MaxFailures: cfg.Throttle.MaxFailures,
			Cooldown:    cfg.Throttle.Cooldown,
		})
	}

	engine.audit = newAuditDispatcher(cfg.Audit, b.auditSink, engine.onAuditDrop)

	engine.removeReleaseHook = session.SetReleaseHook(engine.onMaterialReleaseError)

	if cfg.Session.SweepInterval > 0 {
		engine.wg.Add(1)
		go engine.sweepLoop(cfg.Session.SweepInterval)
	}

	b.built = true

	logger.Debug().
		Uint16("first_id", gen.Peek()).
		Bool("claims", claims != nil).
		Bool("certificates", certs != nil).
		Bool("throttle", engine.throttle != nil).
		Msg("engine built")

	return engine, nil
}
