package goSession

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/MrEthical07/goSession/session"
)

func establishSequenced(t *testing.T, engine *Engine) *session.Session {
	t.Helper()
	s, err := engine.Establish(context.Background(), EstablishRequest{
		Attributes: session.EncryptAttributes{IsSequenced: true},
	})
	if err != nil {
		t.Fatalf("establish: %v", err)
	}
	return s
}

func TestCheckInboundReliable(t *testing.T) {
	engine, done := buildTestEngine(t, testConfig(), nil)
	defer done()
	ctx := context.Background()
	s := establishSequenced(t, engine)
	defer s.Release()

	for seq := uint16(1); seq <= 3; seq++ {
		if err := engine.CheckInbound(ctx, s, seq, true); err != nil {
			t.Fatalf("seq %d: %v", seq, err)
		}
	}
	if err := engine.CheckInbound(ctx, s, 3, true); !errors.Is(err, ErrSequenceRejected) {
		t.Fatalf("replay must be rejected, got %v", err)
	}
	if err := engine.CheckInbound(ctx, s, 5, true); !errors.Is(err, ErrSequenceRejected) {
		t.Fatalf("gap must be rejected for reliable traffic, got %v", err)
	}
	if s.RecvSeq() != 3 {
		t.Fatalf("rejections must not move the sequence, got %d", s.RecvSeq())
	}
	if s.SendSeq() != 0 {
		t.Fatalf("inbound traffic must not touch the send sequence")
	}

	snap := engine.MetricsSnapshot().Counters
	if snap[MetricSequenceAccepted] != 3 || snap[MetricSequenceRejected] != 2 {
		t.Fatalf("unexpected counters accepted=%d rejected=%d", snap[MetricSequenceAccepted], snap[MetricSequenceRejected])
	}
	if got := s.Counters().Recv; got != 3 {
		t.Fatalf("expected 3 received, got %d", got)
	}
}

func TestCheckOutboundUnreliable(t *testing.T) {
	engine, done := buildTestEngine(t, testConfig(), nil)
	defer done()
	ctx := context.Background()
	s := establishSequenced(t, engine)
	defer s.Release()

	for _, seq := range []uint16{2, 7, 100} {
		if err := engine.CheckOutbound(ctx, s, seq, false); err != nil {
			t.Fatalf("seq %d: %v", seq, err)
		}
	}
	if err := engine.CheckOutbound(ctx, s, 50, false); !errors.Is(err, ErrSequenceRejected) {
		t.Fatalf("older sequence must be rejected, got %v", err)
	}
	if s.SendSeq() != 100 || s.RecvSeq() != 0 {
		t.Fatalf("unexpected sequences send=%d recv=%d", s.SendSeq(), s.RecvSeq())
	}
	if got := s.Counters().Send; got != 3 {
		t.Fatalf("expected 3 sent, got %d", got)
	}
}

func TestCheckReliableSequenceEndsAtMax(t *testing.T) {
	engine, done := buildTestEngine(t, testConfig(), nil)
	defer done()
	ctx := context.Background()
	s := establishSequenced(t, engine)
	defer s.Release()

	if err := engine.CheckInbound(ctx, s, 65535, false); err != nil {
		t.Fatalf("unreliable jump: %v", err)
	}
	if err := engine.CheckInbound(ctx, s, 0, true); !errors.Is(err, ErrSequenceRejected) {
		t.Fatalf("reliable sequence must not wrap to 0, got %v", err)
	}
	if err := engine.CheckInbound(ctx, s, 1, true); !errors.Is(err, ErrSequenceRejected) {
		t.Fatalf("reliable sequence must not wrap to 1, got %v", err)
	}
}

func TestCheckUnsequencedAcceptsAnything(t *testing.T) {
	engine, done := buildTestEngine(t, testConfig(), nil)
	defer done()
	ctx := context.Background()

	s, err := engine.Establish(ctx, EstablishRequest{})
	if err != nil {
		t.Fatalf("establish: %v", err)
	}
	defer s.Release()

	for _, seq := range []uint16{9, 9, 1} {
		if err := engine.CheckInbound(ctx, s, seq, true); err != nil {
			t.Fatalf("unsequenced session rejected %d: %v", seq, err)
		}
	}
	if s.RecvSeq() != 0 {
		t.Fatalf("unsequenced sessions keep their sequence at 0")
	}
}

func TestCheckInvalidSession(t *testing.T) {
	engine, done := buildTestEngine(t, testConfig(), nil)
	defer done()
	ctx := context.Background()

	if err := engine.CheckInbound(ctx, nil, 1, true); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid for nil, got %v", err)
	}
	if err := engine.CheckOutbound(ctx, session.Invalid(), 1, true); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("expected ErrSessionInvalid, got %v", err)
	}

	s := establishSequenced(t, engine)
	s.Release()
	if err := engine.CheckInbound(ctx, s, 1, true); !errors.Is(err, ErrSessionInvalid) {
		t.Fatalf("released handle must be invalid, got %v", err)
	}
	if got := engine.MetricsSnapshot().Counters[MetricInvalidSessionRejected]; got != 3 {
		t.Fatalf("expected 3 invalid rejections, got %d", got)
	}
}

func TestCheckRejectionAudited(t *testing.T) {
	cfg := testConfig()
	cfg.Audit.Enabled = true
	sink := NewChannelSink(16)
	engine, done := buildTestEngine(t, cfg, sink)
	defer done()
	ctx := context.Background()
	s := establishSequenced(t, engine)
	defer s.Release()

	if err := engine.CheckOutbound(ctx, s, 4, true); !errors.Is(err, ErrSequenceRejected) {
		t.Fatalf("expected rejection, got %v", err)
	}

	ev := waitEvent(t, sink, auditEventSequenceRejected)
	if ev.Success || ev.Error != string(auditErrSequenceRejected) {
		t.Fatalf("unexpected event %+v", ev)
	}
	want := map[string]string{"direction": "outbound", "sequence": "4", "last": "0", "reliable": "true"}
	for k, v := range want {
		if ev.Metadata[k] != v {
			t.Fatalf("metadata %s: expected %q, got %q", k, v, ev.Metadata[k])
		}
	}
}

func TestCheckSharedAcrossHandles(t *testing.T) {
	engine, done := buildTestEngine(t, testConfig(), nil)
	defer done()
	ctx := context.Background()
	s := establishSequenced(t, engine)
	defer s.Release()

	found, err := engine.Lookup(s.ID())
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	defer found.Release()

	if err := engine.CheckInbound(ctx, s, 1, true); err != nil {
		t.Fatalf("check: %v", err)
	}
	if err := engine.CheckInbound(ctx, found, 1, true); !errors.Is(err, ErrSequenceRejected) {
		t.Fatalf("handles sharing a record share its sequence, got %v", err)
	}
	if err := engine.CheckInbound(ctx, found, 2, true); err != nil {
		t.Fatalf("check: %v", err)
	}
}

func TestCheckConcurrentReliableAcceptsEachOnce(t *testing.T) {
	engine, done := buildTestEngine(t, testConfig(), nil)
	defer done()
	ctx := context.Background()
	s := establishSequenced(t, engine)
	defer s.Release()

	const n = 200
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted = map[uint16]int{}
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h := s.Clone()
			defer h.Release()
			for seq := uint16(1); seq <= n; {
				err := engine.CheckInbound(ctx, h, seq, true)
				if err == nil {
					mu.Lock()
					accepted[seq]++
					mu.Unlock()
				}
				if cur := h.RecvSeq(); cur >= seq {
					seq = cur + 1
				}
			}
		}()
	}
	wg.Wait()

	if len(accepted) != n {
		t.Fatalf("expected %d accepted sequences, got %d", n, len(accepted))
	}
	for seq, c := range accepted {
		if c != 1 {
			t.Fatalf("sequence %d accepted %d times", seq, c)
		}
	}
}

func TestMarkProcessed(t *testing.T) {
	engine, done := buildTestEngine(t, testConfig(), nil)
	defer done()
	s := establishSequenced(t, engine)
	defer s.Release()

	engine.MarkProcessed(s)
	engine.MarkProcessed(s)
	engine.MarkProcessed(nil)
	if got := s.Counters().Processed; got != 2 {
		t.Fatalf("expected 2 processed, got %d", got)
	}
}
