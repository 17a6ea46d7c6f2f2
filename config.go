package goSession

import (
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/goSession/cert"
	"github.com/MrEthical07/goSession/crypt"
	"github.com/MrEthical07/goSession/registry"
)

// Config is the complete engine configuration. Build it from DefaultConfig
// and hand it to Builder.WithConfig.
type Config struct {
	Session     SessionConfig
	Registry    RegistryConfig
	Claims      ClaimConfig
	Throttle    ThrottleConfig
	Key         KeyConfig
	Certificate CertificateConfig
	Audit       AuditConfig
	Metrics     MetricsConfig
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig controls identifier assignment and session expiry.
type SessionConfig struct {
	// FirstID is the first identifier handed to local sessions.
	FirstID uint16
	// IdleTimeout is how long a session may go untouched before Sweep
	// removes it. Zero disables expiry.
	IdleTimeout time.Duration
	// SweepInterval runs Sweep in the background. Zero disables the sweeper.
	SweepInterval time.Duration
	// RejectExpiredCertificates makes Establish refuse certificates past
	// their expiry.
	RejectExpiredCertificates bool
	// MaxLocalIDAttempts bounds how many generated identifiers Establish
	// tries when the generator wraps onto identifiers still in use.
	MaxLocalIDAttempts int
}

/*
====================================
REGISTRY CONFIG
====================================
*/

// RegistryConfig controls the session registry.
type RegistryConfig struct {
	Collision   registry.CollisionPolicy
	MaxSessions int
}

// ClaimConfig controls cluster-wide claims of remote identifiers. Claims
// require a Redis client.
type ClaimConfig struct {
	Enabled     bool
	RedisPrefix string
	TTL         time.Duration
	// Owner identifies this node in claims; a random UUID when empty.
	Owner string
}

// ThrottleConfig limits how often a peer may fail to establish a session.
// Peers are keyed by certificate subject and by remote identifier. The
// counters live in Redis under Claims.RedisPrefix.
type ThrottleConfig struct {
	Enabled     bool
	MaxFailures int
	Cooldown    time.Duration
}

/*
====================================
MATERIAL CONFIG
====================================
*/

// KeyConfig controls how Establish produces Blowfish keys when the caller
// does not supply one.
type KeyConfig struct {
	// Generate creates a random key for encrypted sessions established
	// without key material or a shared secret.
	Generate bool
	Size     int
	KDF      crypt.KDFParams
}

// CertificateConfig configures the built-in certificate manager. When
// Enabled is false, a manager can still be supplied with
// Builder.WithCertificateManager.
type CertificateConfig struct {
	Enabled       bool
	TTL           time.Duration
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
}

/*
====================================
OBSERVABILITY CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process metrics.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULTS
====================================
*/

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Session: SessionConfig{
			FirstID:            1,
			IdleTimeout:        30 * time.Minute,
			SweepInterval:      0,
			MaxLocalIDAttempts: 16,
		},
		Registry: RegistryConfig{
			Collision:   registry.CollisionReject,
			MaxSessions: 0,
		},
		Claims: ClaimConfig{
			Enabled:     false,
			RedisPrefix: "gs",
			TTL:         10 * time.Minute,
		},
		Throttle: ThrottleConfig{
			Enabled:     false,
			MaxFailures: 5,
			Cooldown:    time.Minute,
		},
		Key: KeyConfig{
			Generate: false,
			Size:     crypt.DefaultBlowfishKeySize,
			KDF:      crypt.DefaultKDFParams(),
		},
		Certificate: CertificateConfig{
			Enabled:       false,
			TTL:           time.Hour,
			SigningMethod: "ed25519",
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Certificate.PrivateKey = cloneBytes(cfg.Certificate.PrivateKey)
	out.Certificate.PublicKey = cloneBytes(cfg.Certificate.PublicKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (c CertificateConfig) managerConfig() cert.Config {
	return cert.Config{
		TTL:           c.TTL,
		SigningMethod: cert.SigningMethod(c.SigningMethod),
		PrivateKey:    cloneBytes(c.PrivateKey),
		PublicKey:     cloneBytes(c.PublicKey),
		Issuer:        c.Issuer,
		Leeway:        c.Leeway,
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	// Session
	if c.Session.FirstID == 0 {
		return errors.New("Session FirstID must be > 0")
	}
	if c.Session.IdleTimeout < 0 {
		return errors.New("Session IdleTimeout must be >= 0")
	}
	if c.Session.SweepInterval < 0 {
		return errors.New("Session SweepInterval must be >= 0")
	}
	if c.Session.SweepInterval > 0 && c.Session.IdleTimeout == 0 && !c.Claims.Enabled {
		return errors.New("Session SweepInterval requires IdleTimeout or Claims")
	}
	if c.Session.MaxLocalIDAttempts < 1 {
		return errors.New("Session MaxLocalIDAttempts must be >= 1")
	}

	// Registry
	switch c.Registry.Collision {
	case registry.CollisionReject, registry.CollisionReplace:
		// valid
	default:
		return errors.New("Registry Collision policy is invalid")
	}
	if c.Registry.MaxSessions < 0 {
		return errors.New("Registry MaxSessions must be >= 0")
	}
	if c.Registry.MaxSessions > 65535 {
		return errors.New("Registry MaxSessions must be <= 65535")
	}

	// Claims
	if c.Claims.Enabled {
		if strings.TrimSpace(c.Claims.RedisPrefix) == "" {
			return errors.New("Claims RedisPrefix must be set")
		}
		if c.Claims.TTL < time.Second {
			return errors.New("Claims TTL must be >= 1s")
		}
		if c.Session.SweepInterval > 0 && c.Session.SweepInterval >= c.Claims.TTL {
			return errors.New("Session SweepInterval must be shorter than Claims TTL")
		}
	}

	// Throttle
	if c.Throttle.Enabled {
		if c.Throttle.MaxFailures < 1 {
			return errors.New("Throttle MaxFailures must be >= 1")
		}
		if c.Throttle.Cooldown < time.Second {
			return errors.New("Throttle Cooldown must be >= 1s")
		}
		if strings.TrimSpace(c.Claims.RedisPrefix) == "" {
			return errors.New("Throttle requires Claims RedisPrefix")
		}
	}

	// Key
	if c.Key.Size < crypt.MinBlowfishKeySize || c.Key.Size > crypt.MaxBlowfishKeySize {
		return errors.New("Key Size must be between 4 and 56 bytes")
	}
	if err := c.Key.KDF.Validate(); err != nil {
		return errors.New("Key KDF: " + err.Error())
	}

	// Certificate
	if c.Certificate.Enabled {
		if c.Certificate.TTL <= 0 {
			return errors.New("Certificate TTL must be > 0")
		}
		if c.Certificate.SigningMethod != "ed25519" && c.Certificate.SigningMethod != "hs256" {
			return errors.New("unsupported Certificate signing method")
		}
		if c.Certificate.SigningMethod == "ed25519" && len(c.Certificate.PrivateKey) == 0 && len(c.Certificate.PublicKey) == 0 {
			return errors.New("ed25519 requires PrivateKey or PublicKey")
		}
		if c.Certificate.SigningMethod == "hs256" && len(c.Certificate.PrivateKey) < 32 {
			return errors.New("hs256 requires a PrivateKey of at least 256 bits")
		}
		if c.Certificate.Leeway < 0 || c.Certificate.Leeway > 2*time.Minute {
			return errors.New("Certificate Leeway must be between 0 and 2m")
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0")
	}

	// Metrics
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}

	return nil
}

/*
====================================
LINT
====================================
*/

// LintWarning is a configuration that is valid but likely unintended.
type LintWarning struct {
	Code    string
	Message string
}

// LintWarnings is the result of Config.Lint.
type LintWarnings []LintWarning

// Codes returns the warning codes in order.
func (ws LintWarnings) Codes() []string {
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = w.Code
	}
	return out
}

// Lint reports valid but risky settings.
func (c *Config) Lint() LintWarnings {
	var ws LintWarnings
	add := func(code, msg string) {
		ws = append(ws, LintWarning{Code: code, Message: msg})
	}

	if c.Session.IdleTimeout == 0 {
		add("idle_timeout_disabled", "sessions never expire; Sweep removes nothing")
	}
	if c.Session.IdleTimeout > 0 && c.Session.SweepInterval == 0 {
		add("sweeper_disabled", "idle sessions are only removed when Sweep is called")
	}
	if c.Registry.Collision == registry.CollisionReplace {
		add("collision_replace", "a duplicate remote identifier silently replaces the live session")
	}
	if c.Claims.Enabled && c.Session.SweepInterval == 0 {
		add("claims_not_refreshed", "claims expire after Claims TTL unless RefreshClaims is called")
	}
	if c.Audit.Enabled && !c.Audit.DropIfFull {
		add("audit_blocking", "a slow audit sink blocks session establishment")
	}
	if c.Certificate.Enabled && c.Certificate.TTL > 24*time.Hour {
		add("certificate_ttl_long", "certificates live longer than a day")
	}
	if !c.Session.RejectExpiredCertificates {
		add("expired_certificates_accepted", "Establish accepts certificates past their expiry")
	}
	return ws
}
