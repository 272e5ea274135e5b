package sm

import "fmt"

// sessionState is the two-state machine of spec.md §4.4.5: Ready accepts
// Wrap/Unwrap, Failed is terminal.
type sessionState int

const (
	stateReady sessionState = iota
	stateFailed
)

// Session holds the mutable state of one Secure Messaging channel: the
// session keys, the send-sequence counter, and whether extended-length
// APDUs are in force. A Session must not be shared across goroutines
// (spec.md §5); the caller serializes access.
type Session struct {
	provider Provider

	kEnc []byte
	kMac []byte
	ssc  []byte // fixed-width big-endian counter, block-size wide

	extendedLength bool
	state          sessionState
}

// NewSession creates a Session in the Ready state. kEnc and kMac are
// copied; ssc's length fixes the counter width for the lifetime of the
// session (8 bytes for DES, 16 for AES, per spec.md §3).
func NewSession(provider Provider, kEnc, kMac, initialSSC []byte, extendedLength bool) (*Session, error) {
	if provider == nil {
		return nil, fmt.Errorf("sm: NewSession: nil provider")
	}
	if len(initialSSC) == 0 {
		return nil, fmt.Errorf("sm: NewSession: empty initial SSC")
	}

	s := &Session{
		provider:       provider,
		kEnc:           cloneBytes(kEnc),
		kMac:           cloneBytes(kMac),
		ssc:            cloneBytes(initialSSC),
		extendedLength: extendedLength,
		state:          stateReady,
	}
	return s, nil
}

// SSC returns a read-only copy of the current send-sequence counter, for
// diagnostics only (spec.md §9: "forbid external mutation; provide a
// read-only view for diagnostics only").
func (s *Session) SSC() []byte {
	return cloneBytes(s.ssc)
}

// Failed reports whether the session has entered the terminal Failed
// state.
func (s *Session) Failed() bool {
	return s.state == stateFailed
}

// Close zeroizes the session keys. The Session must not be used
// afterwards.
func (s *Session) Close() {
	zeroize(s.kEnc)
	zeroize(s.kMac)
	s.state = stateFailed
}

// incrementSSC adds 1 to the least-significant byte of the counter,
// carrying left on overflow, and wrapping the whole counter to zero if
// every byte was already 0xFF (spec.md §4.4.4).
func (s *Session) incrementSSC() {
	for i := len(s.ssc) - 1; i >= 0; i-- {
		s.ssc[i]++
		if s.ssc[i] != 0x00 {
			return
		}
		// byte wrapped from 0xFF to 0x00, carry into the next byte
	}
	// every byte wrapped: counter overflowed its full width back to zero
}

func (s *Session) fail() {
	s.state = stateFailed
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
