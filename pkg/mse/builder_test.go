package mse

import (
	"encoding/hex"
	"strings"
	"testing"
)

func TestBuilder_PACE(t *testing.T) {
	b := NewBuilder(TemplatePACE)
	if err := b.SetProtocol("0.4.0.127.0.7.2.2.4.2.2"); err != nil {
		t.Fatalf("SetProtocol: %v", err)
	}
	if err := b.SetKeyReferenceInteger(KeyReferenceMRZ); err != nil {
		t.Fatalf("SetKeyReferenceInteger: %v", err)
	}

	cmd, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	raw, err := cmd.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}

	got := strings.ToUpper(hex.EncodeToString(raw))
	wantPrefix := "00" + "22" + "C1" + "A4"
	if !strings.HasPrefix(got, wantPrefix) {
		t.Fatalf("header mismatch: got %s, want prefix %s", got, wantPrefix)
	}

	wantBody := "800A04007F00070202040202" + "830101"
	if !strings.Contains(got, wantBody) {
		t.Errorf("body mismatch: got %s, want to contain %s", got, wantBody)
	}
}

func TestBuilder_NoTemplateIsPermissive(t *testing.T) {
	b := NewBuilder(TemplateUnset)
	cmd, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if cmd.P1 != 0x00 {
		t.Errorf("P1 = %02X, want 00", cmd.P1)
	}
	raw, err := cmd.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	if len(raw) != 4 {
		t.Errorf("expected 4-byte header-only APDU, got %d bytes: %X", len(raw), raw)
	}
}

func TestBuilder_CanonicalOrderIgnoresSetterOrder(t *testing.T) {
	// Set fields in reverse canonical order; body must still come out
	// 80, 83, 84, 91, 7F4C.
	b := NewBuilder(TemplateChipAuthentication)
	b.SetCHAT([]byte{0x01, 0x02})
	b.SetEphemeralPublicKey([]byte{0xAA, 0xBB})
	if err := b.SetPrivateKeyReference(2); err != nil {
		t.Fatalf("SetPrivateKeyReference: %v", err)
	}
	if err := b.SetKeyReferenceInteger(KeyReferenceCAN); err != nil {
		t.Fatalf("SetKeyReferenceInteger: %v", err)
	}
	if err := b.SetProtocol("0.4.0.127.0.7.2.2.3.2"); err != nil {
		t.Fatalf("SetProtocol: %v", err)
	}

	cmd, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	body := hex.EncodeToString(cmd.Data)
	order := []string{"80", "83", "84", "91", "7f4c"}
	lastIdx := -1
	for _, tag := range order {
		idx := strings.Index(body, tag)
		if idx == -1 {
			t.Fatalf("tag %s not found in body %s", tag, body)
		}
		if idx < lastIdx {
			t.Errorf("tag %s appeared out of canonical order in body %s", tag, body)
		}
		lastIdx = idx
	}
}

func TestBuilder_BothKeyReferencesEmittedInSetOrder(t *testing.T) {
	b := NewBuilder(TemplatePACE)
	if err := b.SetKeyReferenceInteger(KeyReferenceCAN); err != nil {
		t.Fatalf("SetKeyReferenceInteger: %v", err)
	}
	b.SetKeyReferenceName([]byte("terminal-1"))

	cmd, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	body := hex.EncodeToString(cmd.Data)
	wantSeq := "8301" + "02" + "83" + hex.EncodeToString([]byte{0x0A}) + hex.EncodeToString([]byte("terminal-1"))
	if body != wantSeq {
		t.Errorf("body = %s, want %s", body, wantSeq)
	}
}

func TestBuilder_KeyReferenceIntegerRange(t *testing.T) {
	b := NewBuilder(TemplatePACE)
	if err := b.SetKeyReferenceInteger(5); err == nil {
		t.Error("expected error for key reference 5, out of 1..4 range")
	}
}
