package goSession

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrEthical07/goSession/cert"
	"github.com/MrEthical07/goSession/crypt"
	"github.com/MrEthical07/goSession/internal/rate"
	"github.com/MrEthical07/goSession/registry"
	"github.com/MrEthical07/goSession/session"
	"github.com/rs/zerolog"
)

// Engine is the entry point for the authentication and encryption protocols.
// It mints sessions, keeps them in a registry, and gates message traffic on
// their sequence numbers. An Engine is safe for concurrent use.
type Engine struct {
	config   Config
	idGen    *session.IDGenerator
	registry *registry.Registry
	certs    *cert.Manager
	throttle *rate.Limiter
	audit    *auditDispatcher
	metrics  *Metrics
	logger   zerolog.Logger

	// removeReleaseHook uninstalls this engine's session release hook.
	removeReleaseHook func()

	closed    atomic.Bool
	closeOnce sync.Once
	stop      chan struct{}
	wg        sync.WaitGroup
}

// EstablishRequest carries the outcome of a successful authentication.
type EstablishRequest struct {
	Attributes session.EncryptAttributes
	// Key and Certificate are handed to the session, which owns them from
	// then on. Establish closes them if it fails.
	Key         session.SymmetricKey
	Certificate session.Certificate
	// RemoteID is the peer-assigned identifier. Zero mints a local one.
	RemoteID uint16
	// Subject is used to issue a certificate when Certificate is nil and the
	// engine has a signing certificate manager.
	Subject string
	// Secret and Salt derive a Blowfish key with argon2id when Key is nil.
	Secret []byte
	Salt   []byte
}

// Close stops the sweeper, releases every registered session, and drains
// the audit queue. It is safe to call more than once.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.closeOnce.Do(func() {
		e.closed.Store(true)
		if e.stop != nil {
			close(e.stop)
		}
		e.wg.Wait()

		if e.registry != nil {
			n := e.registry.Len()
			e.registry.Close(context.Background())
			e.logger.Debug().Int("sessions", n).Msg("engine closed")
		}
		// Later material failures go to the most recently built engine still open.
		if e.removeReleaseHook != nil {
			e.removeReleaseHook()
		}
		if e.audit != nil {
			e.audit.Close()
		}
	})
}

// AuditDropped returns the number of audit events dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine metrics.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) ready() error {
	if e == nil || e.registry == nil || e.idGen == nil {
		return ErrEngineNotReady
	}
	if e.closed.Load() {
		return ErrEngineClosed
	}
	return nil
}

// Establish creates and registers the session for a completed
// authentication and returns a handle owned by the caller.
//
// Local sessions take the next free identifier from the engine generator;
// remote sessions use RemoteID and are subject to the collision policy and,
// when enabled, cluster-wide claims. Sessions that are not usable for their
// encryption mode are rejected with ErrSessionInvalid.
func (e *Engine) Establish(ctx context.Context, req EstablishRequest) (*session.Session, error) {
	if err := e.ready(); err != nil {
		closeRequestMaterial(req)
		return nil, err
	}

	peer := throttleKeys(req)
	if err := e.checkThrottle(ctx, peer); err != nil {
		closeRequestMaterial(req)
		e.metricInc(MetricEstablishThrottled)
		e.emitAudit(ctx, auditEventSessionEstablished, false, req.RemoteID, req.RemoteID > 0, req.Subject, err, nil)
		return nil, err
	}

	start := time.Now()
	s, err := e.establish(ctx, req)
	if e.metrics.LatencyEnabled() {
		e.metrics.Observe(MetricEstablishLatency, time.Since(start))
	}
	e.recordThrottle(ctx, peer, err)
	if err != nil {
		e.metricInc(MetricSessionEstablishFailed)
		e.emitAudit(ctx, auditEventSessionEstablished, false, req.RemoteID, req.RemoteID > 0, req.Subject, err, nil)
		e.logger.Debug().Err(err).Uint16("remote_id", req.RemoteID).Msg("establish failed")
		return nil, err
	}

	e.metricInc(MetricSessionEstablished)
	e.emitAudit(ctx, auditEventSessionEstablished, true, s.ID(), s.IsRemote(), subjectOf(s), nil, func() map[string]string {
		return map[string]string{"attributes": s.Attributes().String()}
	})
	e.logger.Debug().
		Uint16("session_id", s.ID()).
		Bool("remote", s.IsRemote()).
		Stringer("attributes", s.Attributes()).
		Msg("session established")
	return s, nil
}

func (e *Engine) establish(ctx context.Context, req EstablishRequest) (*session.Session, error) {
	key, err := e.resolveKey(req)
	if err != nil {
		closeMaterial(req.Certificate)
		return nil, err
	}

	certificate, err := e.resolveCertificate(req)
	if err != nil {
		closeMaterial(key)
		return nil, err
	}

	// From here the session owns key and certificate; releasing it closes them.
	s := session.New(e.idGen, req.Attributes, key, certificate, req.RemoteID)
	if !s.IsValid() {
		s.Release()
		e.metricInc(MetricInvalidSessionRejected)
		return nil, ErrSessionInvalid
	}

	if err := e.checkCertificate(s); err != nil {
		s.Release()
		return nil, err
	}

	if err := e.register(ctx, s, req, key, certificate); err != nil {
		s.Release()
		return nil, err
	}
	return s, nil
}

// register adds s to the registry. A local session whose generated
// identifier is still in use is re-initialized with the next identifier.
func (e *Engine) register(ctx context.Context, s *session.Session, req EstablishRequest, key session.SymmetricKey, certificate session.Certificate) error {
	attempts := 1
	if !s.IsRemote() {
		attempts = e.config.Session.MaxLocalIDAttempts
	}

	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			s.Init(e.idGen, req.Attributes, key, certificate, 0)
		}
		err = e.registry.Add(ctx, s)
		if err == nil {
			return nil
		}
		if !errors.Is(err, registry.ErrCollision) {
			break
		}
		e.metricInc(MetricIdentifierCollision)
		e.emitAudit(ctx, auditEventIdentifierCollision, false, s.ID(), s.IsRemote(), "", nil, nil)
	}

	switch {
	case errors.Is(err, registry.ErrCollision):
		return fmt.Errorf("%w: %w", ErrIdentifierCollision, err)
	case errors.Is(err, registry.ErrClaimed):
		e.metricInc(MetricIdentifierClaimed)
		return fmt.Errorf("%w: %w", ErrIdentifierClaimed, err)
	case errors.Is(err, registry.ErrClaimUnavailable):
		e.metricInc(MetricClaimFailure)
		e.logger.Warn().Err(err).Uint16("session_id", s.ID()).Msg("identifier claim failed")
		return fmt.Errorf("%w: %w", ErrClaimUnavailable, err)
	case errors.Is(err, registry.ErrFull):
		return fmt.Errorf("%w: %w", ErrSessionLimitExceeded, err)
	case errors.Is(err, registry.ErrInvalidSession):
		return fmt.Errorf("%w: %w", ErrSessionInvalid, err)
	default:
		return err
	}
}

func (e *Engine) resolveKey(req EstablishRequest) (session.SymmetricKey, error) {
	if req.Key != nil {
		return req.Key, nil
	}
	if !req.Attributes.RequiresMaterial() {
		return nil, nil
	}
	if len(req.Secret) > 0 {
		k, err := crypt.DeriveKey(req.Secret, req.Salt, e.config.Key.KDF)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrKeyInvalid, err)
		}
		return k, nil
	}
	if e.config.Key.Generate {
		k, err := crypt.GenerateBlowfishKey(e.config.Key.Size)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrKeyInvalid, err)
		}
		return k, nil
	}
	return nil, nil
}

func (e *Engine) resolveCertificate(req EstablishRequest) (session.Certificate, error) {
	if req.Certificate != nil || req.Subject == "" {
		return req.Certificate, nil
	}
	if e.certs == nil || !e.certs.CanIssue() {
		return nil, ErrCertificateUnavailable
	}
	c, err := e.certs.Issue(req.Subject, req.RemoteID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCertificateInvalid, err)
	}
	return c, nil
}

// checkCertificate enforces binding and expiry of certificates issued by
// this package. Other certificate types are trusted as given.
func (e *Engine) checkCertificate(s *session.Session) error {
	c, ok := s.Certificate().(*cert.Certificate)
	if !ok || c == nil {
		return nil
	}
	if bound := c.SessionID(); bound != 0 && s.IsRemote() && bound != s.ID() {
		return fmt.Errorf("%w: bound to session %d", ErrCertificateInvalid, bound)
	}
	if e.config.Session.RejectExpiredCertificates && c.Expired(time.Now()) {
		return fmt.Errorf("%w: expired", ErrCertificateInvalid)
	}
	return nil
}

// IssueCertificate signs a certificate for subject bound to sessionID.
func (e *Engine) IssueCertificate(subject string, sessionID uint16) (*cert.Certificate, error) {
	if e == nil || e.certs == nil {
		return nil, ErrCertificateUnavailable
	}
	c, err := e.certs.Issue(subject, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCertificateInvalid, err)
	}
	return c, nil
}

// ParseCertificate verifies a certificate token presented by a peer.
func (e *Engine) ParseCertificate(token string) (*cert.Certificate, error) {
	if e == nil || e.certs == nil {
		return nil, ErrCertificateUnavailable
	}
	c, err := e.certs.Parse(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCertificateInvalid, err)
	}
	return c, nil
}

// Lookup returns a new handle to the session registered under id. The
// caller must Release it.
func (e *Engine) Lookup(id uint16) (*session.Session, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	s, ok := e.registry.Get(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// CloseSession unregisters id. Handles still held elsewhere keep the
// session alive until they are released.
func (e *Engine) CloseSession(ctx context.Context, id uint16) error {
	if err := e.ready(); err != nil {
		return err
	}

	s, ok := e.registry.Get(id)
	if !ok {
		return ErrSessionNotFound
	}
	remote, subject := s.IsRemote(), subjectOf(s)
	s.Release()

	if !e.registry.Remove(ctx, id) {
		return ErrSessionNotFound
	}

	e.metricInc(MetricSessionClosed)
	e.emitAudit(ctx, auditEventSessionClosed, true, id, remote, subject, nil, nil)
	e.logger.Debug().Uint16("session_id", id).Msg("session closed")
	return nil
}

// Sweep removes sessions idle for longer than Session.IdleTimeout and
// returns their identifiers.
func (e *Engine) Sweep(ctx context.Context) []uint16 {
	if e.ready() != nil {
		return nil
	}

	swept := e.registry.Sweep(ctx, time.Now(), e.config.Session.IdleTimeout)
	if len(swept) == 0 {
		return nil
	}

	e.metrics.Add(MetricSessionExpired, uint64(len(swept)))
	removed := make([]uint16, len(swept))
	for i, sw := range swept {
		removed[i] = sw.ID
		e.emitAudit(ctx, auditEventSessionExpired, true, sw.ID, sw.Remote, "", nil, nil)
	}
	e.logger.Info().Int("sessions", len(removed)).Msg("idle sessions swept")
	return removed
}

// RefreshClaims extends the claims of registered remote sessions. Sessions
// whose claim was taken over by another node are closed.
func (e *Engine) RefreshClaims(ctx context.Context) error {
	if err := e.ready(); err != nil {
		return err
	}

	lost, err := e.registry.RefreshClaims(ctx)
	for _, id := range lost {
		if e.registry.Remove(ctx, id) {
			e.metricInc(MetricClaimLost)
			e.emitAudit(ctx, auditEventClaimLost, false, id, true, "", ErrIdentifierClaimed, nil)
			e.logger.Warn().Uint16("session_id", id).Msg("identifier claim lost")
		}
	}
	if err != nil {
		e.metricInc(MetricClaimFailure)
		return fmt.Errorf("%w: %w", ErrClaimUnavailable, err)
	}
	return nil
}

func (e *Engine) sweepLoop(interval time.Duration) {
	defer e.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			e.Sweep(ctx)
			if e.registry.Claims() != nil {
				if err := e.RefreshClaims(ctx); err != nil {
					e.logger.Warn().Err(err).Msg("claim refresh failed")
				}
			}
			cancel()
		}
	}
}

// Dump renders the session registered under id.
func (e *Engine) Dump(id uint16, verbose bool) (string, error) {
	s, err := e.Lookup(id)
	if err != nil {
		return "", err
	}
	defer s.Release()
	return s.Dump(verbose), nil
}

// SessionCount returns the number of registered sessions.
func (e *Engine) SessionCount() int {
	if e == nil || e.registry == nil {
		return 0
	}
	return e.registry.Len()
}

// SessionIDs returns the registered identifiers in ascending order.
func (e *Engine) SessionIDs() []uint16 {
	if e == nil || e.registry == nil {
		return nil
	}
	return e.registry.IDs()
}

func (e *Engine) onClaimError(id uint16, err error) {
	e.metricInc(MetricClaimFailure)
	e.logger.Warn().Err(err).Uint16("session_id", id).Msg("identifier claim release failed")
}

func (e *Engine) onMaterialReleaseError(id uint16, err error) {
	e.metricInc(MetricMaterialReleaseFailure)
	e.logger.Warn().Err(err).Uint16("session_id", id).Msg("session material release failed")
}

func (e *Engine) onAuditDrop(total uint64) {
	// Log the first drop and then every 1024th.
	if total == 1 || total%1024 == 0 {
		e.logger.Warn().Uint64("dropped", total).Msg("audit buffer full, events dropped")
	}
}

func subjectOf(s *session.Session) string {
	if c, ok := s.Certificate().(interface{ Subject() string }); ok && c != nil {
		return c.Subject()
	}
	return ""
}

func closeRequestMaterial(req EstablishRequest) {
	closeMaterial(req.Key)
	closeMaterial(req.Certificate)
}

func closeMaterial(m interface{ Close() error }) {
	if m == nil {
		return
	}
	if v := reflect.ValueOf(m); v.Kind() == reflect.Pointer && v.IsNil() {
		return
	}
	_ = m.Close()
}
