package cert

import (
	"fmt"
	"sync"
	"time"
)

// Certificate is a verified authentication certificate.
//
// Once attached to a session the session owns it; Close discards the token.
type Certificate struct {
	mu        sync.RWMutex
	token     string
	id        string
	subject   string
	issuer    string
	sessionID uint16
	issuedAt  time.Time
	expiresAt time.Time
	closed    bool
}

func newCertificate(token string, c *Claims) *Certificate {
	out := &Certificate{
		token:     token,
		id:        c.ID,
		subject:   c.Subject,
		issuer:    c.Issuer,
		sessionID: c.SessionID,
	}
	if c.IssuedAt != nil {
		out.issuedAt = c.IssuedAt.Time
	}
	if c.ExpiresAt != nil {
		out.expiresAt = c.ExpiresAt.Time
	}
	return out
}

// ID returns the unique certificate identifier.
func (c *Certificate) ID() string { return c.id }

// Subject returns the authenticated principal.
func (c *Certificate) Subject() string { return c.subject }

// Issuer returns the certificate issuer, possibly empty.
func (c *Certificate) Issuer() string { return c.issuer }

// SessionID returns the session the certificate is bound to, 0 if unbound.
func (c *Certificate) SessionID() uint16 { return c.sessionID }

// IssuedAt returns the issue time.
func (c *Certificate) IssuedAt() time.Time { return c.issuedAt }

// ExpiresAt returns the expiry time.
func (c *Certificate) ExpiresAt() time.Time { return c.expiresAt }

// Expired reports whether the certificate has expired at now.
func (c *Certificate) Expired(now time.Time) bool {
	return !c.expiresAt.IsZero() && !now.Before(c.expiresAt)
}

// Token returns the signed token, or "" once closed.
func (c *Certificate) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Closed reports whether Close has been called.
func (c *Certificate) Closed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// String summarizes the certificate for verbose session dumps.
func (c *Certificate) String() string {
	return fmt.Sprintf("(Certificate id=%s subject=%s sid=%d expires=%s)",
		c.id, c.subject, c.sessionID, c.expiresAt.UTC().Format(time.RFC3339))
}

// Close discards the signed token. It is safe to call more than once.
func (c *Certificate) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.closed = true
	return nil
}
