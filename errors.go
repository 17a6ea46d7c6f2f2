package goSession

import "errors"

var (
	// ErrSessionNotFound is returned when no session is registered under an identifier.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionInvalid is returned for sessions that are not usable for their encryption mode.
	ErrSessionInvalid = errors.New("session invalid")
	// ErrSequenceRejected is returned when a message fails anti-replay sequence validation.
	ErrSequenceRejected = errors.New("sequence number rejected")
	// ErrIdentifierCollision is returned when a session identifier is already registered.
	ErrIdentifierCollision = errors.New("session identifier collision")
	// ErrIdentifierClaimed is returned when another node owns a remote session identifier.
	ErrIdentifierClaimed = errors.New("session identifier claimed elsewhere")
	// ErrClaimUnavailable is returned when the identifier claim backend cannot be reached.
	ErrClaimUnavailable = errors.New("identifier claim backend unavailable")
	// ErrSessionLimitExceeded is returned when the registry reached its capacity.
	ErrSessionLimitExceeded = errors.New("session limit exceeded")
	// ErrCertificateInvalid is returned for certificates that fail verification or binding.
	ErrCertificateInvalid = errors.New("certificate invalid")
	// ErrCertificateUnavailable is returned when certificate issuance is not configured.
	ErrCertificateUnavailable = errors.New("certificate manager not configured")
	// ErrKeyInvalid is returned when session key material cannot be created.
	ErrKeyInvalid = errors.New("session key invalid")
	// ErrEstablishThrottled is returned when a peer exhausted its failed establish budget.
	ErrEstablishThrottled = errors.New("establish throttled")
	// ErrEngineClosed is returned by operations on a closed engine.
	ErrEngineClosed = errors.New("engine closed")
	// ErrEngineNotReady is returned when the engine was not built by a Builder.
	ErrEngineNotReady = errors.New("engine not initialized")
)
