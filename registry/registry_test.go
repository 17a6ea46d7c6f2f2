package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newClaimStoreTest(t *testing.T, owner string) (*ClaimStore, *miniredis.Miniredis, *redis.Client, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewClaimStore(rdb, "gs", time.Minute, owner)
	return store, mr, rdb, func() {
		rdb.Close()
		mr.Close()
	}
}

func localSession(gen *session.IDGenerator) *session.Session {
	return session.New(gen, session.EncryptAttributes{}, nil, nil, 0)
}

func remoteSession(id uint16) *session.Session {
	return session.New(nil, session.EncryptAttributes{}, nil, nil, id)
}

func TestAddGetRemove(t *testing.T) {
	reg := New(Config{}, nil)
	ctx := context.Background()
	gen := session.NewIDGenerator()

	s := localSession(gen)
	defer s.Release()

	if err := reg.Add(ctx, s); err != nil {
		t.Fatalf("add: %v", err)
	}
	if s.RefCount() != 2 {
		t.Fatalf("registry must hold its own handle, refcount=%d", s.RefCount())
	}

	got, ok := reg.Get(s.ID())
	if !ok {
		t.Fatalf("expected session %d registered", s.ID())
	}
	if !got.SharesRecordWith(s) {
		t.Fatalf("lookup must share the registered record")
	}
	got.Release()

	probe := session.ForLookup(s.ID())
	found, ok := reg.Find(probe)
	probe.Release()
	if !ok || found.ID() != s.ID() {
		t.Fatalf("find by lookup handle failed")
	}
	found.Release()

	if !reg.Remove(ctx, s.ID()) {
		t.Fatalf("expected remove to report registered session")
	}
	if reg.Remove(ctx, s.ID()) {
		t.Fatalf("second remove must report false")
	}
	if s.RefCount() != 1 {
		t.Fatalf("remove must drop the registry handle, refcount=%d", s.RefCount())
	}
	if _, ok := reg.Get(s.ID()); ok {
		t.Fatalf("removed session still visible")
	}
}

func TestAddRejectsInvalid(t *testing.T) {
	reg := New(Config{}, nil)
	var s session.Session
	if err := reg.Add(context.Background(), &s); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}
}

func TestCollisionPolicies(t *testing.T) {
	ctx := context.Background()

	reject := New(Config{}, nil)
	a := remoteSession(7)
	b := remoteSession(7)
	defer a.Release()
	defer b.Release()

	if err := reject.Add(ctx, a); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := reject.Add(ctx, b); !errors.Is(err, ErrCollision) {
		t.Fatalf("expected ErrCollision, got %v", err)
	}

	replace := New(Config{Collision: CollisionReplace}, nil)
	if err := replace.Add(ctx, a); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := replace.Add(ctx, b); err != nil {
		t.Fatalf("replace: %v", err)
	}
	got, _ := replace.Get(7)
	defer got.Release()
	if !got.SharesRecordWith(b) {
		t.Fatalf("replace must keep the newer session")
	}
	// a is still held by the reject registry and by the test.
	if a.RefCount() != 2 {
		t.Fatalf("replaced handle must be released, refcount=%d", a.RefCount())
	}
}

func TestMaxSessions(t *testing.T) {
	reg := New(Config{MaxSessions: 1}, nil)
	ctx := context.Background()
	gen := session.NewIDGenerator()

	a, b := localSession(gen), localSession(gen)
	defer a.Release()
	defer b.Release()

	if err := reg.Add(ctx, a); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := reg.Add(ctx, b); !errors.Is(err, ErrFull) {
		t.Fatalf("expected ErrFull, got %v", err)
	}
}

func TestIDsAndRangeOrdered(t *testing.T) {
	reg := New(Config{}, nil)
	ctx := context.Background()
	for _, id := range []uint16{30, 10, 20} {
		s := remoteSession(id)
		if err := reg.Add(ctx, s); err != nil {
			t.Fatalf("add %d: %v", id, err)
		}
		s.Release()
	}

	ids := reg.IDs()
	if len(ids) != 3 || ids[0] != 10 || ids[1] != 20 || ids[2] != 30 {
		t.Fatalf("unexpected ids %v", ids)
	}

	var seen []uint16
	reg.Range(func(s *session.Session) bool {
		seen = append(seen, s.ID())
		return len(seen) < 2
	})
	if len(seen) != 2 || seen[0] != 10 || seen[1] != 20 {
		t.Fatalf("range must stop early in order, got %v", seen)
	}

	reg.Close(ctx)
	if reg.Len() != 0 {
		t.Fatalf("close must empty the registry")
	}
}

func TestSweepRemovesIdleSessions(t *testing.T) {
	reg := New(Config{}, nil)
	ctx := context.Background()
	gen := session.NewIDGenerator()

	idle := localSession(gen)
	if err := reg.Add(ctx, idle); err != nil {
		t.Fatalf("add: %v", err)
	}
	idleID := idle.ID()
	idle.Release()

	if removed := reg.Sweep(ctx, time.Now(), time.Hour); len(removed) != 0 {
		t.Fatalf("fresh session swept: %v", removed)
	}
	if removed := reg.Sweep(ctx, time.Now(), 0); removed != nil {
		t.Fatalf("zero idle must disable sweeping")
	}

	removed := reg.Sweep(ctx, time.Now().Add(2*time.Hour), time.Hour)
	if len(removed) != 1 || removed[0] != (Swept{ID: idleID}) {
		t.Fatalf("expected local %d swept, got %v", idleID, removed)
	}
	if reg.Len() != 0 {
		t.Fatalf("sweep must remove the session")
	}
}

func TestSweepReportsRemoteSessions(t *testing.T) {
	reg := New(Config{}, nil)
	ctx := context.Background()
	gen := session.NewIDGenerator()

	for _, s := range []*session.Session{localSession(gen), remoteSession(900)} {
		if err := reg.Add(ctx, s); err != nil {
			t.Fatalf("add: %v", err)
		}
		s.Release()
	}

	removed := reg.Sweep(ctx, time.Now().Add(2*time.Hour), time.Hour)
	want := []Swept{{ID: 1}, {ID: 900, Remote: true}}
	if len(removed) != len(want) {
		t.Fatalf("expected %v swept, got %v", want, removed)
	}
	for i := range want {
		if removed[i] != want[i] {
			t.Fatalf("expected %v swept, got %v", want, removed)
		}
	}
}

func TestRemoteClaimsAcrossRegistries(t *testing.T) {
	storeA, mr, rdb, done := newClaimStoreTest(t, "node-a")
	defer done()
	storeB := NewClaimStore(rdb, "gs", time.Minute, "node-b")
	ctx := context.Background()

	regA := New(Config{}, storeA)
	regB := New(Config{}, storeB)

	s := remoteSession(99)
	defer s.Release()

	if err := regA.Add(ctx, s); err != nil {
		t.Fatalf("add on node a: %v", err)
	}
	owner, err := storeA.Owner(ctx, 99)
	if err != nil || owner != "node-a" {
		t.Fatalf("expected node-a claim, got %q err=%v", owner, err)
	}

	other := remoteSession(99)
	defer other.Release()
	if err := regB.Add(ctx, other); !errors.Is(err, ErrClaimed) {
		t.Fatalf("expected ErrClaimed on node b, got %v", err)
	}

	regA.Remove(ctx, 99)
	if mr.Exists("gs:claim:99") {
		t.Fatalf("remove must release the claim")
	}
	if err := regB.Add(ctx, other); err != nil {
		t.Fatalf("node b must claim after release: %v", err)
	}
	regB.Close(ctx)
	if mr.Exists("gs:claim:99") {
		t.Fatalf("close must release claims")
	}
}

func TestLocalSessionsSkipClaims(t *testing.T) {
	store, mr, _, done := newClaimStoreTest(t, "")
	defer done()
	reg := New(Config{}, store)
	ctx := context.Background()

	s := localSession(session.NewIDGenerator())
	defer s.Release()
	if err := reg.Add(ctx, s); err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(mr.Keys()) != 0 {
		t.Fatalf("local sessions must not be claimed, keys=%v", mr.Keys())
	}
}

func TestClaimStoreUnavailable(t *testing.T) {
	store, mr, _, done := newClaimStoreTest(t, "node-a")
	defer done()
	reg := New(Config{}, store)

	mr.Close()

	s := remoteSession(5)
	defer s.Release()
	if err := reg.Add(context.Background(), s); !errors.Is(err, ErrClaimUnavailable) {
		t.Fatalf("expected ErrClaimUnavailable, got %v", err)
	}
	if reg.Len() != 0 {
		t.Fatalf("failed claim must not register the session")
	}
}

func TestConcurrentAddGetRemove(t *testing.T) {
	reg := New(Config{Collision: CollisionReplace}, nil)
	ctx := context.Background()
	gen := session.NewIDGenerator()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				s := localSession(gen)
				if err := reg.Add(ctx, s); err != nil {
					t.Errorf("add: %v", err)
				}
				if got, ok := reg.Get(s.ID()); ok {
					got.Touch()
					got.Release()
				}
				reg.Remove(ctx, s.ID())
				s.Release()
			}
		}()
	}
	wg.Wait()

	if reg.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", reg.Len())
	}
}
