package session

import (
	"fmt"
	"strings"
	"time"
)

const dumpTimeLayout = time.ANSIC

// Dump renders the session for diagnostics. The compact form carries the
// identifier and last activity; the verbose form adds the attributes,
// sequence numbers and key and certificate summaries. The output is not a
// stable format.
func (s *Session) Dump(verbose bool) string {
	id := s.ident()

	var (
		last      time.Time
		recv, snd uint16
	)
	if r := s.load(); r != nil {
		r.mu.Lock()
		last, recv, snd = r.lastAction, r.recvSeq, r.sendSeq
		r.mu.Unlock()
	}

	if !verbose {
		return fmt.Sprintf("(Session: %d %s)", id.id, last.Format(dumpTimeLayout))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Session (Id=%d)\n", id.id)
	fmt.Fprintf(&b, "  LastAction  = %s\n", last.Format(dumpTimeLayout))
	fmt.Fprintf(&b, "  Remote      = %t\n", id.isRemote)
	fmt.Fprintf(&b, "  EncryptAttr = %s\n", id.attr)
	fmt.Fprintf(&b, "  RecvSeq     = %d\n", recv)
	fmt.Fprintf(&b, "  SendSeq     = %d\n", snd)
	fmt.Fprintf(&b, "  SymmetricKey: %s\n", describeMaterial(id.key))
	fmt.Fprintf(&b, "  Certificate: %s\n", describeMaterial(id.cert))
	return b.String()
}

// String returns the compact dump.
func (s *Session) String() string {
	return s.Dump(false)
}

func describeMaterial(v any) string {
	if absent(v) {
		return "NULL"
	}
	return describe(v)
}
