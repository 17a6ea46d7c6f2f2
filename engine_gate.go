package goSession

import (
	"context"
	"strconv"

	"github.com/MrEthical07/goSession/session"
)

// Direction names the side of a session a message travels.
type Direction uint8

const (
	// Inbound is traffic received from the peer.
	Inbound Direction = iota
	// Outbound is traffic sent to the peer.
	Outbound
)

// String returns "inbound" or "outbound".
func (d Direction) String() string {
	if d == Outbound {
		return "outbound"
	}
	return "inbound"
}

// CheckInbound gates a received message carrying seq. Reliable messages
// must carry exactly the next sequence number; unreliable ones anything
// newer than the last accepted. Accepted messages touch the session and
// count towards its receive counter.
func (e *Engine) CheckInbound(ctx context.Context, s *session.Session, seq uint16, reliable bool) error {
	return e.check(ctx, s, Inbound, seq, reliable)
}

// CheckOutbound is CheckInbound for messages sent to the peer.
func (e *Engine) CheckOutbound(ctx context.Context, s *session.Session, seq uint16, reliable bool) error {
	return e.check(ctx, s, Outbound, seq, reliable)
}

func (e *Engine) check(ctx context.Context, s *session.Session, dir Direction, seq uint16, reliable bool) error {
	if err := e.ready(); err != nil {
		return err
	}
	if s == nil || !s.IsValid() {
		e.metricInc(MetricInvalidSessionRejected)
		return ErrSessionInvalid
	}

	if s.Attributes().IsSequenced {
		var ok bool
		if dir == Inbound {
			ok = s.TestSetRecvSeq(seq, reliable)
		} else {
			ok = s.TestSetSendSeq(seq, reliable)
		}
		if !ok {
			e.rejectSequence(ctx, s, dir, seq, reliable)
			return ErrSequenceRejected
		}
	}

	s.Touch()
	if dir == Inbound {
		s.AddRecvCount(1)
	} else {
		s.AddSendCount(1)
	}
	e.metricInc(MetricSequenceAccepted)
	return nil
}

func (e *Engine) rejectSequence(ctx context.Context, s *session.Session, dir Direction, seq uint16, reliable bool) {
	last := s.RecvSeq()
	if dir == Outbound {
		last = s.SendSeq()
	}

	e.metricInc(MetricSequenceRejected)
	e.emitAudit(ctx, auditEventSequenceRejected, false, s.ID(), s.IsRemote(), "", ErrSequenceRejected, func() map[string]string {
		return map[string]string{
			"direction": dir.String(),
			"sequence":  strconv.FormatUint(uint64(seq), 10),
			"last":      strconv.FormatUint(uint64(last), 10),
			"reliable":  strconv.FormatBool(reliable),
		}
	})
	e.logger.Debug().
		Uint16("session_id", s.ID()).
		Stringer("direction", dir).
		Uint16("sequence", seq).
		Uint16("last", last).
		Bool("reliable", reliable).
		Msg("sequence rejected")
}

// MarkProcessed counts one fully processed message on s.
func (e *Engine) MarkProcessed(s *session.Session) {
	if s == nil {
		return
	}
	s.AddProcessedCount(1)
}
