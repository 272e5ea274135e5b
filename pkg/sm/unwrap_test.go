package sm

import (
	"bytes"
	"errors"
	"testing"

	"github.com/rovanhart/eac-sm/pkg/iso7816"
	"github.com/rovanhart/eac-sm/pkg/tlv"
)

func incrementedCopy(ssc []byte) []byte {
	out := append([]byte{}, ssc...)
	for i := len(out) - 1; i >= 0; i-- {
		out[i]++
		if out[i] != 0x00 {
			break
		}
	}
	return out
}

// buildProtectedResponse assembles a well-formed SM response body the way a
// card would, at the given ssc, using the same provider the Session under
// test holds, so that Unwrap's own increment-then-verify sequence lines up
// (spec.md §4.4.3: the counter advances before verification on both sides).
func buildProtectedResponse(t *testing.T, sess *Session, provider *fakeProvider, ssc, plain []byte, sw1, sw2 byte) []byte {
	t.Helper()

	var do87 tlv.DataObject
	haveDO87 := plain != nil

	if haveDO87 {
		if err := provider.Init(sess.kEnc, ssc); err != nil {
			t.Fatal(err)
		}
		ciphertext, err := provider.Encrypt(plain)
		if err != nil {
			t.Fatal(err)
		}
		value := append([]byte{0x01}, ciphertext...)
		do87 = tlv.DataObject{Tag: tlv.TagEncryptedDataPI, Value: value}
	}
	do99 := tlv.DataObject{Tag: tlv.TagStatusWord, Value: []byte{sw1, sw2}}

	var macInput []byte
	if haveDO87 {
		macInput = append(macInput, do87.Encode()...)
	}
	macInput = append(macInput, do99.Encode()...)

	if err := provider.Init(sess.kMac, ssc); err != nil {
		t.Fatal(err)
	}
	mac, err := provider.GetMAC(macInput)
	if err != nil {
		t.Fatal(err)
	}
	do8e := tlv.DataObject{Tag: tlv.TagChecksum, Value: mac}

	var body []byte
	if haveDO87 {
		body = append(body, do87.Encode()...)
	}
	body = append(body, do99.Encode()...)
	body = append(body, do8e.Encode()...)
	return body
}

func TestUnwrap_NoDataResponse_ReturnsStatusOnly(t *testing.T) {
	sess, provider := newTestSession()
	expectedSSC := incrementedCopy(sess.ssc)

	body := buildProtectedResponse(t, sess, provider, expectedSSC, nil, 0x90, 0x00)

	resp, err := sess.Unwrap(&iso7816.ResponseAPDU{Data: body})
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Data) != 0 {
		t.Fatalf("expected no data, got %X", resp.Data)
	}
	if resp.Status != iso7816.NewStatusWord(0x90, 0x00) {
		t.Fatalf("unexpected status word: %v", resp.Status)
	}
}

func TestUnwrap_WithData_DecryptsAndReturnsPlain(t *testing.T) {
	sess, provider := newTestSession()
	expectedSSC := incrementedCopy(sess.ssc)
	plain := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	body := buildProtectedResponse(t, sess, provider, expectedSSC, plain, 0x90, 0x00)

	resp, err := sess.Unwrap(&iso7816.ResponseAPDU{Data: body})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(resp.Data, plain) {
		t.Fatalf("expected decrypted plaintext %X, got %X", plain, resp.Data)
	}
}

func TestUnwrap_MissingDO99(t *testing.T) {
	sess, _ := newTestSession()
	do8e := tlv.DataObject{Tag: tlv.TagChecksum, Value: bytes.Repeat([]byte{0x00}, 8)}

	_, err := sess.Unwrap(&iso7816.ResponseAPDU{Data: do8e.Encode()})
	if !errors.Is(err, ErrMissingDO99) {
		t.Fatalf("expected ErrMissingDO99, got %v", err)
	}
}

func TestUnwrap_BadMAC_FailsSession(t *testing.T) {
	sess, provider := newTestSession()
	expectedSSC := incrementedCopy(sess.ssc)
	body := buildProtectedResponse(t, sess, provider, expectedSSC, nil, 0x90, 0x00)

	// Corrupt the trailing MAC byte.
	body[len(body)-1] ^= 0xFF

	_, err := sess.Unwrap(&iso7816.ResponseAPDU{Data: body})
	if !errors.Is(err, ErrBadMAC) {
		t.Fatalf("expected ErrBadMAC, got %v", err)
	}
	if !sess.Failed() {
		t.Fatal("session should be Failed after a MAC mismatch")
	}
}

// TestUnwrap_MACBoundToSSC proves the MAC actually authenticates the
// counter (spec.md §3 invariant 5): a response MAC-computed at a different
// SSC than the one Unwrap's own increment reaches must be rejected, even
// though DO99 and the MAC bytes are otherwise well-formed.
func TestUnwrap_MACBoundToSSC(t *testing.T) {
	sess, provider := newTestSession()
	wrongSSC := incrementedCopy(incrementedCopy(sess.ssc))
	body := buildProtectedResponse(t, sess, provider, wrongSSC, nil, 0x90, 0x00)

	_, err := sess.Unwrap(&iso7816.ResponseAPDU{Data: body})
	if !errors.Is(err, ErrBadMAC) {
		t.Fatalf("expected ErrBadMAC for a response MACed at the wrong SSC, got %v", err)
	}
}

func TestUnwrap_SessionFailed_ShortCircuits(t *testing.T) {
	sess, _ := newTestSession()
	sess.state = stateFailed

	_, err := sess.Unwrap(&iso7816.ResponseAPDU{Data: nil})
	if !errors.Is(err, ErrSessionFailed) {
		t.Fatalf("expected ErrSessionFailed, got %v", err)
	}
}

func TestUnwrap_IncrementsSSC(t *testing.T) {
	sess, provider := newTestSession()
	expectedSSC := incrementedCopy(sess.ssc)
	body := buildProtectedResponse(t, sess, provider, expectedSSC, nil, 0x90, 0x00)

	before := sess.SSC()
	if _, err := sess.Unwrap(&iso7816.ResponseAPDU{Data: body}); err != nil {
		t.Fatal(err)
	}
	after := sess.SSC()
	if bytes.Equal(before, after) {
		t.Fatal("ssc must advance across Unwrap")
	}
	if !bytes.Equal(after, expectedSSC) {
		t.Fatalf("expected ssc to reach %X, got %X", expectedSSC, after)
	}
}
