// Package mse builds MANAGE SECURITY ENVIRONMENT : SET Authentication
// Template (MSE:Set AT) command APDUs, as used by TR-03110 to select the
// PACE, Chip Authentication or Terminal Authentication protocol on an
// eMRTD chip before any data is exchanged under that protocol.
package mse

import (
	"fmt"

	"github.com/rovanhart/eac-sm/pkg/iso7816"
	"github.com/rovanhart/eac-sm/pkg/tlv"
)

// MSE:SET AT (ISO 7816-4 §7.5.11, TR-03110 §D.3):
//
// The command body is a concatenation of BER-TLV data objects selecting
// the protocol OID, key references, an optional ephemeral public key, and
// an optional Certificate Holder Authorization Template (CHAT). Which P1
// is used depends on the authentication template being configured:
//
//	PACE -> 0xC1   Chip Authentication -> 0x41   Terminal Authentication -> 0x81
//
// CLA/INS/P2 are always fixed: 0x00 0x22 .. 0xA4.

// Template selects the authentication protocol MSE:Set AT configures.
type Template int

const (
	// TemplateUnset produces P1=0x00, matching the source's permissive
	// behavior when no template has been chosen (spec.md §4.3 Failure).
	TemplateUnset Template = iota
	TemplatePACE
	TemplateChipAuthentication
	TemplateTerminalAuthentication
)

func (t Template) p1() byte {
	switch t {
	case TemplatePACE:
		return 0xC1
	case TemplateChipAuthentication:
		return 0x41
	case TemplateTerminalAuthentication:
		return 0x81
	default:
		return 0x00
	}
}

// Reserved key reference integers (spec.md §4.3).
const (
	KeyReferenceMRZ = 1
	KeyReferenceCAN = 2
	KeyReferencePIN = 3
	KeyReferencePUK = 4
)

// keyRef records one call to SetKeyReferenceInteger/SetKeyReferenceName so
// that both can be tracked and emitted in call order (spec.md §3 invariant:
// "if both are set, both are emitted in builder-set order").
type keyRef struct {
	encoded []byte
}

// Builder accumulates the optional tagged fields of an MSE:Set AT command
// and emits one CommandAPDU on Build(). It is a transient, single-use,
// single-threaded object (spec.md §5): create one, call setters, call
// Build() once.
type Builder struct {
	template Template

	protocolOID []byte   // tag 0x80, DER OID content
	keyRefs     []keyRef // tag 0x83, in builder-set order (integer and/or name)
	privateKey  []byte   // tag 0x84, DER integer content
	ephemeralPK []byte   // tag 0x91, raw compressed point
	chat        []byte   // tag 0x7F4C, caller pre-encoded
}

// NewBuilder creates an empty Builder for the given authentication
// template.
func NewBuilder(template Template) *Builder {
	return &Builder{template: template}
}

// SetTemplate changes the authentication template mid-build. Idempotent,
// last-write-wins.
func (b *Builder) SetTemplate(template Template) *Builder {
	b.template = template
	return b
}

// SetProtocol sets the Cryptographic Mechanism Reference (tag 0x80) from a
// dotted-decimal protocol OID string, e.g. "0.4.0.127.0.7.2.2.4.2.2" for
// PACE-ECDH-GM-AES-CBC-CMAC-128.
func (b *Builder) SetProtocol(oid string) error {
	encoded, err := encodeOID(oid)
	if err != nil {
		return fmt.Errorf("mse: SetProtocol: %w", err)
	}
	b.protocolOID = encoded
	return nil
}

// SetKeyReferenceInteger sets a public/shared-secret key reference (tag
// 0x83) by its reserved integer meaning: MRZ=1, CAN=2, PIN=3, PUK=4.
func (b *Builder) SetKeyReferenceInteger(k int) error {
	if k < 1 || k > 4 {
		return fmt.Errorf("mse: SetKeyReferenceInteger: %d out of range 1..4", k)
	}
	encoded, err := encodeSmallInteger(k)
	if err != nil {
		return fmt.Errorf("mse: SetKeyReferenceInteger: %w", err)
	}
	b.keyRefs = append(b.keyRefs, keyRef{encoded: encoded})
	return nil
}

// SetKeyReferenceName sets a public/shared-secret key reference (tag 0x83)
// by name. name is emitted verbatim; the caller is responsible for
// ISO-8859-1 encoding it if that is what the card expects.
func (b *Builder) SetKeyReferenceName(name []byte) *Builder {
	cp := make([]byte, len(name))
	copy(cp, name)
	b.keyRefs = append(b.keyRefs, keyRef{encoded: cp})
	return b
}

// SetPrivateKeyReference sets a private key / domain parameter reference
// (tag 0x84) as a DER-encoded integer.
func (b *Builder) SetPrivateKeyReference(i int) error {
	if i < 0 {
		return fmt.Errorf("mse: SetPrivateKeyReference: negative index %d", i)
	}
	encoded, err := encodeSmallInteger(i)
	if err != nil {
		return fmt.Errorf("mse: SetPrivateKeyReference: %w", err)
	}
	b.privateKey = encoded
	return nil
}

// SetEphemeralPublicKey sets the ephemeral public key (tag 0x91). pk must
// already be the compressed point encoding per TR-03110 A.2.2.3; this
// package does not validate curve membership.
func (b *Builder) SetEphemeralPublicKey(pk []byte) *Builder {
	cp := make([]byte, len(pk))
	copy(cp, pk)
	b.ephemeralPK = cp
	return b
}

// SetCHAT sets the Certificate Holder Authorization Template (tag 0x7F4C).
// chat must already be BER-TLV encoded by the caller.
func (b *Builder) SetCHAT(chat []byte) *Builder {
	cp := make([]byte, len(chat))
	copy(cp, chat)
	b.chat = cp
	return b
}

// Build emits the MSE:Set AT CommandAPDU. Fields are emitted in the
// canonical order (80, 83, 84, 91, 7F4C) regardless of the order setters
// were called, per spec.md §9's "DO ordering in MSE body" resolution. If
// no template was set, P1 is 0x00 (permissive by design, spec.md §4.3
// Failure — the caller decides whether that's an error).
func (b *Builder) Build() (*iso7816.CommandAPDU, error) {
	var body []byte

	if len(b.protocolOID) > 0 {
		body = append(body, tlv.DataObject{Tag: tlv.TagCryptographicMechanism, Value: b.protocolOID}.Encode()...)
	}
	for _, ref := range b.keyRefs {
		body = append(body, tlv.DataObject{Tag: tlv.TagKeyReference, Value: ref.encoded}.Encode()...)
	}
	if len(b.privateKey) > 0 {
		body = append(body, tlv.DataObject{Tag: tlv.TagPrivateKeyReference, Value: b.privateKey}.Encode()...)
	}
	if len(b.ephemeralPK) > 0 {
		body = append(body, tlv.DataObject{Tag: tlv.TagEphemeralPublicKey, Value: b.ephemeralPK}.Encode()...)
	}
	if len(b.chat) > 0 {
		body = append(body, tlv.DataObject{Tag: tlv.TagCHAT, Value: b.chat}.Encode()...)
	}

	ins, err := iso7816.NewInstruction(iso7816.INS_MANAGE_SECURITY_ENVIRONMENT)
	if err != nil {
		return nil, fmt.Errorf("mse: Build: %w", err)
	}

	cla, err := iso7816.NewClass(0x00)
	if err != nil {
		return nil, fmt.Errorf("mse: Build: %w", err)
	}

	return iso7816.NewCommandAPDU(cla, ins, b.template.p1(), 0xA4, body, 0), nil
}
