package sm

import (
	"bytes"
	"testing"
)

func TestNewSession_RejectsNilProvider(t *testing.T) {
	_, err := NewSession(nil, []byte{1}, []byte{1}, []byte{0}, false)
	if err == nil {
		t.Fatal("expected error for nil provider")
	}
}

func TestNewSession_RejectsEmptySSC(t *testing.T) {
	provider := &fakeProvider{}
	_, err := NewSession(provider, []byte{1}, []byte{1}, nil, false)
	if err == nil {
		t.Fatal("expected error for empty initial ssc")
	}
}

func TestNewSession_ClonesKeyMaterial(t *testing.T) {
	provider := &fakeProvider{}
	kEnc := []byte{1, 2, 3}
	sess, err := NewSession(provider, kEnc, []byte{4, 5, 6}, []byte{0}, false)
	if err != nil {
		t.Fatal(err)
	}
	kEnc[0] = 0xFF
	if sess.kEnc[0] == 0xFF {
		t.Fatal("session must not alias caller's key slice")
	}
}

func TestSession_IncrementSSC_Carries(t *testing.T) {
	sess, _ := newTestSession()
	sess.ssc = []byte{0x00, 0xFF}

	sess.incrementSSC()
	if !bytes.Equal(sess.ssc, []byte{0x01, 0x00}) {
		t.Fatalf("expected carry into next byte, got %X", sess.ssc)
	}
}

func TestSession_IncrementSSC_FullWraparound(t *testing.T) {
	sess, _ := newTestSession()
	sess.ssc = []byte{0xFF, 0xFF}

	sess.incrementSSC()
	if !bytes.Equal(sess.ssc, []byte{0x00, 0x00}) {
		t.Fatalf("expected full wraparound to zero, got %X", sess.ssc)
	}
}

func TestSession_Close_Zeroizes(t *testing.T) {
	sess, _ := newTestSession()
	sess.Close()

	for _, b := range sess.kEnc {
		if b != 0 {
			t.Fatal("kEnc not zeroized")
		}
	}
	for _, b := range sess.kMac {
		if b != 0 {
			t.Fatal("kMac not zeroized")
		}
	}
	if !sess.Failed() {
		t.Fatal("session should be Failed after Close")
	}
}

func TestSession_SSC_ReturnsCopyNotAlias(t *testing.T) {
	sess, _ := newTestSession()
	view := sess.SSC()
	view[0] = 0xFF
	if sess.ssc[0] == 0xFF {
		t.Fatal("SSC() must return a defensive copy")
	}
}
