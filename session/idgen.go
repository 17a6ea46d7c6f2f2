package session

import "sync/atomic"

// IDGenerator hands out non-zero 16-bit identifiers for locally created
// sessions.
//
// Identifiers are unique until the counter wraps after 65535 calls; the
// registry is responsible for rejecting or aging out collisions after a wrap.
// One generator is shared by everything that mints local sessions for a
// process. Next is safe for concurrent use.
type IDGenerator struct {
	next atomic.Uint32
}

// NewIDGenerator returns a generator whose first identifier is 1.
func NewIDGenerator() *IDGenerator {
	return NewIDGeneratorAt(1)
}

// NewIDGeneratorAt returns a generator whose first identifier is start.
// A start of 0 is treated as 1.
func NewIDGeneratorAt(start uint16) *IDGenerator {
	if start == 0 {
		start = 1
	}
	g := &IDGenerator{}
	g.next.Store(uint32(start))
	return g
}

// Next returns the current identifier and advances the counter, skipping 0 on
// wrap.
func (g *IDGenerator) Next() uint16 {
	for {
		loaded := g.next.Load()
		cur := uint16(loaded)
		if cur == 0 {
			// zero value generator
			cur = 1
		}
		nxt := cur + 1
		if nxt == 0 {
			nxt = 1
		}
		if g.next.CompareAndSwap(loaded, uint32(nxt)) {
			return cur
		}
	}
}

// Peek returns the identifier the next call to Next will return.
func (g *IDGenerator) Peek() uint16 {
	cur := uint16(g.next.Load())
	if cur == 0 {
		return 1
	}
	return cur
}
