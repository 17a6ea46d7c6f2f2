// Package goSession tracks authenticated sessions for encryption protocols:
// it mints 16-bit session identifiers, owns the negotiated key material and
// certificates, and enforces anti-replay sequence rules on message traffic.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// goSession is the public surface. It exposes [Engine], [Builder], [Config],
// and value types (MetricsSnapshot, AuditEvent). The session record itself
// lives in the session sub-package; registry, cert, and crypt hold the
// collaborators the engine wires together.
//
// # What this package must NOT do
//
//   - Serialize sessions or send them over a wire.
//   - Encrypt or decrypt message payloads; it only gates them.
//   - Perform I/O on the message path. Redis is only contacted when remote
//     identifiers are claimed, released, or refreshed, and by the optional
//     establish throttle.
//
// # Performance contract
//
// CheckInbound and CheckOutbound are the hot path. They take one record lock
// for the sequence test and perform no allocation unless auditing a
// rejection.
package goSession
