// Package session provides the authenticated session record shared by the
// authentication and encryption layers of goSession.
//
// # Model
//
// A [Session] is a handle to a reference-counted record. Many handles may share
// one record: copies are made explicitly with [Session.Clone] or
// [Session.Assign], and every handle is dropped with [Session.Release]. The
// record, and the [SymmetricKey] and [Certificate] it owns, is destroyed
// exactly when the last handle is released.
//
// The identity of a record (identifier, remote flag, [EncryptAttributes], key
// and certificate) is published as one immutable snapshot and can only be
// replaced as a whole by [Session.Init]. Only the last-activity timestamp and
// the send/receive sequence numbers are mutable, and they are guarded by the
// record lock.
//
// # Sequence validation
//
// [Session.TestSetRecvSeq] and [Session.TestSetSendSeq] are the anti-replay
// gate consumed by encryption protocols. On a reliable channel a sequence
// number is accepted only if it is exactly the next value; on an unreliable
// channel it is accepted if it is strictly greater than the stored value.
//
// # Architecture boundaries
//
// This package does NOT perform cryptographic operations, serialize sessions,
// store sessions by identifier, or decide expiry. Those responsibilities belong
// to the crypt, cert and registry packages and to the Engine.
//
// # Invalid sessions
//
// The zero value of [Session] refers to no record. It reports identifier 0 and
// IsValid() == false, and is the representation of "no session".
package session
