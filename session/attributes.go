package session

import "strconv"

// EncryptMode identifies the symmetric encryption negotiated for a session.
type EncryptMode uint8

const (
	// ModeNone disables message encryption.
	ModeNone EncryptMode = iota
	// ModeBlowfish encrypts messages with the session's Blowfish key.
	ModeBlowfish
)

// String returns the diagnostic tag of the mode. Values this package does not
// know render as UNKNOWN.
func (m EncryptMode) String() string {
	switch m {
	case ModeNone:
		return "NONE"
	case ModeBlowfish:
		return "BLOWFISH"
	default:
		return "UNKNOWN"
	}
}

// EncryptAttributes describes how messages on a session are protected.
//
// EncryptAttributes is a plain value; it is copied into the session at
// initialization and never changed afterwards.
type EncryptAttributes struct {
	Mode        EncryptMode
	IsSequenced bool
	IsSession   bool
	EncryptAll  bool
}

// RequiresMaterial reports whether a session with these attributes needs both
// a key and a certificate to be usable.
func (a EncryptAttributes) RequiresMaterial() bool {
	return a.Mode != ModeNone
}

// String renders the attributes as "(MODE sequenced session encryptAll)".
func (a EncryptAttributes) String() string {
	b := make([]byte, 0, 32)
	b = append(b, '(')
	b = append(b, a.Mode.String()...)
	b = append(b, ' ')
	b = strconv.AppendBool(b, a.IsSequenced)
	b = append(b, ' ')
	b = strconv.AppendBool(b, a.IsSession)
	b = append(b, ' ')
	b = strconv.AppendBool(b, a.EncryptAll)
	b = append(b, ')')
	return string(b)
}
