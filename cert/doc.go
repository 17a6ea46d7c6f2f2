// Package cert issues and verifies the authentication certificates attached to
// goSession sessions.
//
// A certificate is a signed token (ed25519 by default, hs256 optional) naming
// the authenticated subject and the session it was issued for. [Certificate]
// implements session.Certificate, so a session can take ownership of it.
package cert
