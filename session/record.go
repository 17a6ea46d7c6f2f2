package session

import (
	"reflect"
	"sync"
	"sync/atomic"
	"time"
)

// identity is the part of a record that is fixed once initialization
// completes. It is never modified after being published; Init replaces it as
// a whole.
type identity struct {
	id       uint16
	isRemote bool
	attr     EncryptAttributes
	key      SymmetricKey
	cert     Certificate
}

var zeroIdentity = &identity{}

// record is the state shared by every handle that refers to one session.
type record struct {
	refs atomic.Int64

	ident atomic.Pointer[identity]

	// mu guards lastAction, recvSeq and sendSeq.
	mu         sync.Mutex
	lastAction time.Time
	recvSeq    uint16
	sendSeq    uint16

	// Reserved for collaborators; this package only zeroes them.
	recvCount      atomic.Uint64
	sendCount      atomic.Uint64
	processedCount atomic.Uint64

	destroyed atomic.Bool
}

func newRecord() *record {
	r := &record{}
	r.refs.Store(1)
	r.ident.Store(zeroIdentity)
	return r
}

func (r *record) snapshot() *identity {
	return r.ident.Load()
}

// tryAcquire adds a reference unless the record has already dropped to zero.
func (r *record) tryAcquire() bool {
	for {
		n := r.refs.Load()
		if n <= 0 {
			return false
		}
		if r.refs.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

// release drops a reference and destroys the record when none remain.
func (r *record) release() {
	if r.refs.Add(-1) <= 0 {
		r.destroy()
	}
}

func (r *record) destroy() {
	if !r.destroyed.CompareAndSwap(false, true) {
		return
	}
	id := r.ident.Swap(zeroIdentity)
	closeMaterial(id)
}

// publish installs next as the record identity, closing material owned by the
// previous identity that next does not carry over.
func (r *record) publish(next *identity) {
	prev := r.ident.Swap(next)
	if prev == nil || prev == zeroIdentity {
		return
	}
	if prev.key != nil && !sameMaterial(prev.key, next.key) {
		reportRelease(prev.id, "key", prev.key.Close())
	}
	if prev.cert != nil && !sameMaterial(prev.cert, next.cert) {
		reportRelease(prev.id, "certificate", prev.cert.Close())
	}
}

func closeMaterial(id *identity) {
	if id == nil || id == zeroIdentity {
		return
	}
	if id.key != nil {
		reportRelease(id.id, "key", id.key.Close())
	}
	if id.cert != nil {
		reportRelease(id.id, "certificate", id.cert.Close())
	}
}

// sameMaterial reports whether a and b are the same piece of material.
// Reference kinds compare by address, so two distinct values that merely hold
// equal contents are not the same; value types compare field by field.
func sameMaterial(a, b any) bool {
	if a == nil || b == nil {
		return false
	}
	return sameValue(reflect.ValueOf(a), reflect.ValueOf(b))
}

func sameValue(a, b reflect.Value) bool {
	if a.Type() != b.Type() {
		return false
	}
	switch a.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return a.Pointer() == b.Pointer()
	case reflect.Slice:
		return a.Pointer() == b.Pointer() && a.Len() == b.Len()
	case reflect.Interface:
		if a.IsNil() || b.IsNil() {
			return a.IsNil() && b.IsNil()
		}
		return sameValue(a.Elem(), b.Elem())
	case reflect.Struct:
		for i := 0; i < a.NumField(); i++ {
			if !sameValue(a.Field(i), b.Field(i)) {
				return false
			}
		}
		return true
	case reflect.Array:
		for i := 0; i < a.Len(); i++ {
			if !sameValue(a.Index(i), b.Index(i)) {
				return false
			}
		}
		return true
	}
	return a.Equal(b)
}

// absent reports whether v carries no material, treating typed nil pointers
// as absent.
func absent(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
