// Package crypt provides the symmetric key material attached to goSession
// sessions.
//
// [BlowfishKey] implements session.SymmetricKey. Once a key is handed to a
// session the session owns it and closes it when the last handle is released;
// Close zeroes the key bytes.
//
// # What this package must NOT do
//
//   - Encrypt or decrypt protocol messages (callers use [BlowfishKey.Cipher]).
//   - Import the session package.
package crypt
