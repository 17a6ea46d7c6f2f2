// Package registry indexes live sessions by their 16-bit identifier.
//
// The [Registry] keeps its own handle to every registered session and applies a
// collision policy when an identifier is already present. Remote identifiers
// can additionally be claimed cluster-wide through a Redis-backed
// [ClaimStore], so two nodes never serve the same peer-assigned identifier at
// once.
package registry
