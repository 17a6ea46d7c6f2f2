package session

import (
	"sync/atomic"
	"time"
)

// Session is a handle to a shared session record.
//
// The zero value refers to no record and represents an invalid session.
// Handles must not be copied by value; use Clone or Assign to share a record
// and Release to drop a handle. All methods are safe for concurrent use by
// different handles sharing a record. Init must not run concurrently with
// other calls on the same handle.
type Session struct {
	rec atomic.Pointer[record]
}

// Counters is a snapshot of the collaborator-maintained traffic counters.
type Counters struct {
	Recv      uint64
	Send      uint64
	Processed uint64
}

// Invalid returns a handle that refers to no session.
func Invalid() *Session {
	return &Session{}
}

// New allocates a session and initializes it as described by [Session.Init].
func New(gen *IDGenerator, attr EncryptAttributes, key SymmetricKey, cert Certificate, explicitID uint16) *Session {
	s := &Session{}
	s.Init(gen, attr, key, cert, explicitID)
	return s
}

// ForLookup returns a handle whose record carries only id. Registries use it
// as a search key; it implies nothing about validity.
func ForLookup(id uint16) *Session {
	r := newRecord()
	r.ident.Store(&identity{id: id})
	s := &Session{}
	s.rec.Store(r)
	return s
}

// Init initializes the session.
//
// An explicitID greater than zero marks the session remote with that
// identifier; uniqueness is not checked. Otherwise the session is local and
// takes gen.Next(); with a nil gen it keeps identifier 0 and stays invalid.
// The session takes ownership of key and cert (either may be nil), resets
// both sequence numbers and the traffic counters, and is touched.
//
// If the record is shared with other handles, Init first detaches and binds a
// fresh record, so other handles never observe the change. An exclusively
// owned record is reused, and material it previously owned that is not
// handed in again is closed.
func (s *Session) Init(gen *IDGenerator, attr EncryptAttributes, key SymmetricKey, cert Certificate, explicitID uint16) {
	if s == nil {
		return
	}

	r := s.rec.Load()
	if r == nil || r.refs.Load() > 1 {
		fresh := newRecord()
		if prev := s.rec.Swap(fresh); prev != nil {
			prev.release()
		}
		r = fresh
	}

	next := &identity{attr: attr}
	if !absent(key) {
		next.key = key
	}
	if !absent(cert) {
		next.cert = cert
	}
	switch {
	case explicitID > 0:
		next.id = explicitID
		next.isRemote = true
	case gen != nil:
		next.id = gen.Next()
	}

	r.mu.Lock()
	r.recvSeq = 0
	r.sendSeq = 0
	r.lastAction = time.Now()
	r.mu.Unlock()

	r.recvCount.Store(0)
	r.sendCount.Store(0)
	r.processedCount.Store(0)

	r.publish(next)
}

// Clone returns a new handle sharing this handle's record. Cloning an invalid
// or already released handle returns an invalid handle.
func (s *Session) Clone() *Session {
	c := &Session{}
	if s == nil {
		return c
	}
	if r := s.rec.Load(); r != nil && r.tryAcquire() {
		c.rec.Store(r)
	}
	return c
}

// Assign rebinds s to the record src refers to. The new record is acquired
// before the previous one is released.
func (s *Session) Assign(src *Session) {
	if s == nil || s == src {
		return
	}

	var next *record
	if src != nil {
		if r := src.rec.Load(); r != nil {
			if r == s.rec.Load() {
				return
			}
			if r.tryAcquire() {
				next = r
			}
		}
	}

	if prev := s.rec.Swap(next); prev != nil {
		prev.release()
	}
}

// Release drops the handle's reference. The record and its key and
// certificate are destroyed when the last handle is released. Release is
// idempotent; afterwards the handle is invalid.
func (s *Session) Release() {
	if s == nil {
		return
	}
	if r := s.rec.Swap(nil); r != nil {
		r.release()
	}
}

func (s *Session) load() *record {
	if s == nil {
		return nil
	}
	return s.rec.Load()
}

func (s *Session) ident() *identity {
	if r := s.load(); r != nil {
		return r.snapshot()
	}
	return zeroIdentity
}

// IsValid reports whether the session can be used: it has a non-zero
// identifier and, unless its mode is ModeNone, both a key and a certificate.
func (s *Session) IsValid() bool {
	id := s.ident()
	if id.id == 0 {
		return false
	}
	if !id.attr.RequiresMaterial() {
		return true
	}
	return id.key != nil && id.cert != nil
}

// ID returns the session identifier, 0 for an invalid session.
func (s *Session) ID() uint16 { return s.ident().id }

// IsRemote reports whether the identifier was assigned by a remote party.
func (s *Session) IsRemote() bool { return s.ident().isRemote }

// Attributes returns the encryption attributes.
func (s *Session) Attributes() EncryptAttributes { return s.ident().attr }

// Key returns the owned symmetric key, or nil. The session keeps ownership.
func (s *Session) Key() SymmetricKey { return s.ident().key }

// Certificate returns the owned certificate, or nil. The session keeps
// ownership.
func (s *Session) Certificate() Certificate { return s.ident().cert }

// Touch records activity on the session.
func (s *Session) Touch() {
	r := s.load()
	if r == nil {
		return
	}
	r.mu.Lock()
	r.lastAction = time.Now()
	r.mu.Unlock()
}

// LastAction returns the time of the last Touch or Init.
func (s *Session) LastAction() time.Time {
	r := s.load()
	if r == nil {
		return time.Time{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastAction
}

// TestSetRecvSeq validates the sequence number of an incoming message and
// stores it if accepted.
func (s *Session) TestSetRecvSeq(seq uint16, reliable bool) bool {
	r := s.load()
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return testSet(&r.recvSeq, seq, reliable)
}

// TestSetSendSeq validates the sequence number of an outgoing message and
// stores it if accepted.
func (s *Session) TestSetSendSeq(seq uint16, reliable bool) bool {
	r := s.load()
	if r == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return testSet(&r.sendSeq, seq, reliable)
}

// testSet accepts exactly stored+1 on a reliable channel and anything greater
// than stored otherwise. The comparison is not modular: once 65535 is stored
// no further value is accepted.
func testSet(stored *uint16, seq uint16, reliable bool) bool {
	var ok bool
	if reliable {
		ok = uint32(seq) == uint32(*stored)+1
	} else {
		ok = seq > *stored
	}
	if ok {
		*stored = seq
	}
	return ok
}

// RecvSeq returns the last accepted incoming sequence number.
func (s *Session) RecvSeq() uint16 {
	r := s.load()
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recvSeq
}

// SendSeq returns the last accepted outgoing sequence number.
func (s *Session) SendSeq() uint16 {
	r := s.load()
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sendSeq
}

// AddRecvCount adds n to the received message counter.
func (s *Session) AddRecvCount(n uint64) {
	if r := s.load(); r != nil {
		r.recvCount.Add(n)
	}
}

// AddSendCount adds n to the sent message counter.
func (s *Session) AddSendCount(n uint64) {
	if r := s.load(); r != nil {
		r.sendCount.Add(n)
	}
}

// AddProcessedCount adds n to the processed message counter.
func (s *Session) AddProcessedCount(n uint64) {
	if r := s.load(); r != nil {
		r.processedCount.Add(n)
	}
}

// Counters returns the traffic counters.
func (s *Session) Counters() Counters {
	r := s.load()
	if r == nil {
		return Counters{}
	}
	return Counters{
		Recv:      r.recvCount.Load(),
		Send:      r.sendCount.Load(),
		Processed: r.processedCount.Load(),
	}
}

// RefCount returns the number of live handles sharing the record, 0 for a
// handle that refers to no record.
func (s *Session) RefCount() int64 {
	r := s.load()
	if r == nil {
		return 0
	}
	return r.refs.Load()
}

// SharesRecordWith reports whether s and other refer to the same record.
func (s *Session) SharesRecordWith(other *Session) bool {
	a, b := s.load(), other.load()
	return a != nil && a == b
}
