package goSession

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventSessionEstablished  = "session_established"
	auditEventSessionClosed       = "session_closed"
	auditEventSessionExpired      = "session_expired"
	auditEventSequenceRejected    = "sequence_rejected"
	auditEventIdentifierCollision = "identifier_collision"
	auditEventClaimLost           = "claim_lost"
)

// AuditErrorCode is the stable error classification recorded in audit events.
type AuditErrorCode string

const (
	auditErrSessionNotFound      AuditErrorCode = "session_not_found"
	auditErrSessionInvalid       AuditErrorCode = "session_invalid"
	auditErrSequenceRejected     AuditErrorCode = "sequence_rejected"
	auditErrIdentifierCollision  AuditErrorCode = "identifier_collision"
	auditErrIdentifierClaimed    AuditErrorCode = "identifier_claimed"
	auditErrSessionLimitExceeded AuditErrorCode = "session_limit_exceeded"
	auditErrCertificateInvalid   AuditErrorCode = "certificate_invalid"
	auditErrKeyInvalid           AuditErrorCode = "key_invalid"
	auditErrThrottled            AuditErrorCode = "throttled"
	auditErrUnavailable          AuditErrorCode = "backend_unavailable"
	auditErrInternal             AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	sessionID uint16,
	remote bool,
	subject string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		SessionID: sessionID,
		Remote:    remote,
		Subject:   subject,
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrSessionNotFound):
		return auditErrSessionNotFound
	case errors.Is(err, ErrSequenceRejected):
		return auditErrSequenceRejected
	case errors.Is(err, ErrIdentifierCollision):
		return auditErrIdentifierCollision
	case errors.Is(err, ErrIdentifierClaimed):
		return auditErrIdentifierClaimed
	case errors.Is(err, ErrSessionLimitExceeded):
		return auditErrSessionLimitExceeded
	case errors.Is(err, ErrCertificateInvalid),
		errors.Is(err, ErrCertificateUnavailable):
		return auditErrCertificateInvalid
	case errors.Is(err, ErrKeyInvalid):
		return auditErrKeyInvalid
	case errors.Is(err, ErrEstablishThrottled):
		return auditErrThrottled
	case errors.Is(err, ErrSessionInvalid):
		return auditErrSessionInvalid
	case errors.Is(err, ErrClaimUnavailable),
		errors.Is(err, ErrEngineClosed):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
