package goSession

import (
	"context"
	"errors"

	"github.com/MrEthical07/goSession/internal/rate"
)

// throttleKeys names the peers an establish attempt is charged to.
func throttleKeys(req EstablishRequest) []string {
	var keys []string
	if req.Subject != "" {
		keys = append(keys, rate.SubjectKey(req.Subject))
	}
	if req.RemoteID > 0 {
		keys = append(keys, rate.RemoteKey(req.RemoteID))
	}
	return keys
}

// checkThrottle refuses peers over their failure budget. Redis errors are
// logged and let the attempt through.
func (e *Engine) checkThrottle(ctx context.Context, keys []string) error {
	if e.throttle == nil || len(keys) == 0 {
		return nil
	}
	err := e.throttle.Check(ctx, keys...)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, rate.ErrRateLimited):
		return ErrEstablishThrottled
	default:
		e.logger.Warn().Err(err).Msg("establish throttle check failed")
		return nil
	}
}

// recordThrottle charges authentication failures to the peer and clears its
// budget on success. Engine and backend failures are not the peer's fault.
func (e *Engine) recordThrottle(ctx context.Context, keys []string, err error) {
	if e.throttle == nil || len(keys) == 0 {
		return
	}

	var rerr error
	switch {
	case err == nil:
		rerr = e.throttle.Reset(ctx, keys...)
	case countsAgainstPeer(err):
		rerr = e.throttle.Fail(ctx, keys...)
	default:
		return
	}
	if rerr != nil {
		e.logger.Warn().Err(rerr).Msg("establish throttle update failed")
	}
}

func countsAgainstPeer(err error) bool {
	return errors.Is(err, ErrSessionInvalid) ||
		errors.Is(err, ErrCertificateInvalid) ||
		errors.Is(err, ErrKeyInvalid) ||
		errors.Is(err, ErrIdentifierCollision) ||
		errors.Is(err, ErrIdentifierClaimed)
}
