package registry

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/MrEthical07/goSession/session"
)

var (
	// ErrInvalidSession is returned when registering a handle with no identifier.
	ErrInvalidSession = errors.New("session has no identifier")
	// ErrCollision is returned when the identifier is already registered and
	// the collision policy rejects duplicates.
	ErrCollision = errors.New("session identifier already registered")
	// ErrClaimed is returned when another node owns a remote identifier.
	ErrClaimed = errors.New("session identifier claimed by another owner")
	// ErrFull is returned when the registry reached its capacity.
	ErrFull = errors.New("session registry full")
)

// CollisionPolicy decides what Add does with an identifier already present.
type CollisionPolicy int

const (
	// CollisionReject refuses the new session.
	CollisionReject CollisionPolicy = iota
	// CollisionReplace releases the registered session and keeps the new one.
	CollisionReplace
)

// String returns the policy name.
func (p CollisionPolicy) String() string {
	switch p {
	case CollisionReject:
		return "reject"
	case CollisionReplace:
		return "replace"
	default:
		return "unknown"
	}
}

// Config controls registry behavior.
type Config struct {
	Collision CollisionPolicy
	// MaxSessions caps the number of registered sessions; 0 means unbounded.
	MaxSessions int
	// OnClaimError observes claim release failures, which Remove, Sweep and
	// Close do not return.
	OnClaimError func(id uint16, err error)
}

// Swept describes a session removed by Sweep.
type Swept struct {
	ID     uint16
	Remote bool
}

// Registry maps identifiers to sessions. It is safe for concurrent use.
type Registry struct {
	cfg    Config
	claims *ClaimStore

	// claimMu serializes mutations that talk to the claim store so a claim
	// and its release for the same identifier never interleave.
	claimMu sync.Mutex

	mu      sync.RWMutex
	entries map[uint16]*session.Session
}

// New creates a Registry. claims may be nil, in which case remote
// identifiers are only checked locally.
func New(cfg Config, claims *ClaimStore) *Registry {
	return &Registry{
		cfg:     cfg,
		claims:  claims,
		entries: make(map[uint16]*session.Session),
	}
}

// Claims returns the claim store, or nil.
func (r *Registry) Claims() *ClaimStore { return r.claims }

// Add registers s. The registry keeps its own handle; the caller still owns s.
func (r *Registry) Add(ctx context.Context, s *session.Session) error {
	id, remote := s.ID(), s.IsRemote()
	if id == 0 {
		return ErrInvalidSession
	}

	r.claimMu.Lock()
	defer r.claimMu.Unlock()

	r.mu.RLock()
	prev, exists := r.entries[id]
	size := len(r.entries)
	r.mu.RUnlock()

	if exists && r.cfg.Collision != CollisionReplace {
		return fmt.Errorf("%w: %d", ErrCollision, id)
	}
	if !exists && r.cfg.MaxSessions > 0 && size >= r.cfg.MaxSessions {
		return ErrFull
	}

	if remote && r.claims != nil {
		ok, err := r.claims.Claim(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: %d", ErrClaimed, id)
		}
	}

	held := s.Clone()
	if held.ID() == 0 {
		// s was released while the claim was in flight.
		held.Release()
		if remote && !(exists && prev.IsRemote()) {
			r.releaseClaim(ctx, id)
		}
		return ErrInvalidSession
	}

	r.mu.Lock()
	r.entries[id] = held
	r.mu.Unlock()

	if exists {
		if prev.IsRemote() && !remote {
			r.releaseClaim(ctx, id)
		}
		prev.Release()
	}
	return nil
}

// Get returns a new handle to the session registered under id. The caller
// must Release it.
func (r *Registry) Get(id uint16) (*session.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return entry.Clone(), true
}

// Find looks up the session matching probe's identifier, typically a
// session.ForLookup handle.
func (r *Registry) Find(probe *session.Session) (*session.Session, bool) {
	if probe == nil {
		return nil, false
	}
	return r.Get(probe.ID())
}

// Contains reports whether id is registered.
func (r *Registry) Contains(id uint16) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[id]
	return ok
}

// Remove unregisters id and drops the registry's handle. It reports whether
// id was registered.
func (r *Registry) Remove(ctx context.Context, id uint16) bool {
	r.claimMu.Lock()
	defer r.claimMu.Unlock()
	_, ok := r.removeLocked(ctx, id, time.Time{})
	return ok
}

// removeLocked removes id and reports whether the removed entry was remote.
// A non-zero staleBefore only removes an entry whose last action is still
// older than it. Caller holds claimMu.
func (r *Registry) removeLocked(ctx context.Context, id uint16, staleBefore time.Time) (remote, ok bool) {
	r.mu.Lock()
	entry, ok := r.entries[id]
	if ok && !staleBefore.IsZero() && !entry.LastAction().Before(staleBefore) {
		ok = false
	}
	if ok {
		delete(r.entries, id)
	}
	r.mu.Unlock()

	if !ok {
		return false, false
	}
	remote = entry.IsRemote()
	if remote {
		r.releaseClaim(ctx, id)
	}
	entry.Release()
	return remote, true
}

func (r *Registry) releaseClaim(ctx context.Context, id uint16) {
	if r.claims == nil {
		return
	}
	if err := r.claims.Release(ctx, id); err != nil && r.cfg.OnClaimError != nil {
		r.cfg.OnClaimError(id, err)
	}
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// IDs returns the registered identifiers in ascending order.
func (r *Registry) IDs() []uint16 {
	r.mu.RLock()
	ids := make([]uint16, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	slices.Sort(ids)
	return ids
}

// Range calls fn for every registered session in identifier order until fn
// returns false. The handles passed to fn are only valid during the call.
func (r *Registry) Range(fn func(*session.Session) bool) {
	r.mu.RLock()
	handles := make([]*session.Session, 0, len(r.entries))
	for _, entry := range r.entries {
		handles = append(handles, entry.Clone())
	}
	r.mu.RUnlock()

	slices.SortFunc(handles, func(a, b *session.Session) int {
		return int(a.ID()) - int(b.ID())
	})

	defer func() {
		for _, h := range handles {
			h.Release()
		}
	}()
	for _, h := range handles {
		if !fn(h) {
			return
		}
	}
}

// RefreshClaims extends the claims of every registered remote session and
// returns the identifiers whose claim was lost to another owner.
func (r *Registry) RefreshClaims(ctx context.Context) ([]uint16, error) {
	if r.claims == nil {
		return nil, nil
	}

	var remote []uint16
	r.mu.RLock()
	for id, entry := range r.entries {
		if entry.IsRemote() {
			remote = append(remote, id)
		}
	}
	r.mu.RUnlock()
	slices.Sort(remote)

	var lost []uint16
	for _, id := range remote {
		ok, err := r.claims.Refresh(ctx, id)
		if err != nil {
			return lost, err
		}
		if !ok {
			lost = append(lost, id)
		}
	}
	return lost, nil
}

// Sweep removes sessions idle for longer than idle at now and returns them in
// ascending identifier order. A non-positive idle disables sweeping.
func (r *Registry) Sweep(ctx context.Context, now time.Time, idle time.Duration) []Swept {
	if idle <= 0 {
		return nil
	}
	cutoff := now.Add(-idle)

	var stale []uint16
	r.mu.RLock()
	for id, entry := range r.entries {
		if entry.LastAction().Before(cutoff) {
			stale = append(stale, id)
		}
	}
	r.mu.RUnlock()
	if len(stale) == 0 {
		return nil
	}
	slices.Sort(stale)

	r.claimMu.Lock()
	defer r.claimMu.Unlock()

	removed := make([]Swept, 0, len(stale))
	for _, id := range stale {
		if remote, ok := r.removeLocked(ctx, id, cutoff); ok {
			removed = append(removed, Swept{ID: id, Remote: remote})
		}
	}
	return removed
}

// Close unregisters every session and releases their claims.
func (r *Registry) Close(ctx context.Context) {
	r.claimMu.Lock()
	defer r.claimMu.Unlock()

	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[uint16]*session.Session)
	r.mu.Unlock()

	for id, entry := range entries {
		if entry.IsRemote() {
			r.releaseClaim(ctx, id)
		}
		entry.Release()
	}
}
