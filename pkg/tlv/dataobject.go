package tlv

import (
	"fmt"
)

// BER-TLV DATA OBJECTS (TR-03110 §D.4 / ISO 7816-4):
//
// A Data Object is a (tag, length, value) triple. The length field uses
// the standard BER short/long form:
//
//	0x00-0x7F            -> one byte, the length itself
//	0x80-0xFF             -> 0x81 <len>
//	0x100-0xFFFF          -> 0x82 <len_hi> <len_lo>
//
// This file provides the minimum-length ("DER-compatible") encoder and a
// matching decoder, plus a generic DataObject value used by the Secure
// Messaging engine to build/parse DO85, DO87, DO97, DO99 and DO8E without
// going through the reflection-based struct mapper above (that mapper is
// tuned for descriptive/FCI-style parsing, not for byte-exact protocol
// framing).

// Tag identifiers used by the MSE:Set AT builder and the Secure Messaging
// engine. Long-form tags (two bytes) are represented as their numeric
// value, e.g. TagCHAT = 0x7F4C.
const (
	TagCryptographicMechanism uint16 = 0x80
	TagKeyReference           uint16 = 0x83
	TagPrivateKeyReference    uint16 = 0x84
	TagEphemeralPublicKey     uint16 = 0x91
	TagEncryptedDataNoPI      uint16 = 0x85 // DO85, odd INS, no padding indicator
	TagEncryptedDataPI        uint16 = 0x87 // DO87, even INS, leading 0x01 padding indicator
	TagExpectedLength         uint16 = 0x97 // DO97
	TagStatusWord             uint16 = 0x99 // DO99
	TagChecksum               uint16 = 0x8E // DO8E
	TagCHAT                   uint16 = 0x7F4C
)

// EncodeLength encodes l using minimum-length BER encoding.
func EncodeLength(l int) []byte {
	switch {
	case l < 0:
		return nil
	case l <= 0x7F:
		return []byte{byte(l)}
	case l <= 0xFF:
		return []byte{0x81, byte(l)}
	default:
		return []byte{0x82, byte(l >> 8), byte(l)}
	}
}

// DecodeLength reads a BER length field starting at data[0]. It returns the
// decoded length, the number of bytes the length field itself occupied, and
// an error if data is too short or the form is unsupported (this package
// only supports lengths up to 0xFFFF, which covers every DO used by MSE:Set
// AT and Secure Messaging).
func DecodeLength(data []byte) (length int, consumed int, err error) {
	if len(data) == 0 {
		return 0, 0, fmt.Errorf("tlv: empty length field")
	}

	first := data[0]
	if first < 0x80 {
		return int(first), 1, nil
	}

	switch first {
	case 0x81:
		if len(data) < 2 {
			return 0, 0, fmt.Errorf("tlv: truncated 0x81 length field")
		}
		return int(data[1]), 2, nil
	case 0x82:
		if len(data) < 3 {
			return 0, 0, fmt.Errorf("tlv: truncated 0x82 length field")
		}
		return int(data[1])<<8 | int(data[2]), 3, nil
	default:
		return 0, 0, fmt.Errorf("tlv: unsupported length form 0x%02X", first)
	}
}

// tagBytes returns the wire encoding of a tag. Single-byte tags are
// returned as-is; TagCHAT (0x7F4C) is returned as its two constituent
// bytes.
func tagBytes(tag uint16) []byte {
	if tag > 0xFF {
		return []byte{byte(tag >> 8), byte(tag)}
	}
	return []byte{byte(tag)}
}

// DataObject is a single BER-TLV element identified by a short or
// long-form tag.
type DataObject struct {
	Tag   uint16
	Value []byte
}

// Encode serializes the DataObject as tag || length || value.
func (d DataObject) Encode() []byte {
	tb := tagBytes(d.Tag)
	lb := EncodeLength(len(d.Value))

	out := make([]byte, 0, len(tb)+len(lb)+len(d.Value))
	out = append(out, tb...)
	out = append(out, lb...)
	out = append(out, d.Value...)
	return out
}

// isLongFormFirstByte reports whether b begins a two-byte tag. Per ISO
// 7816-4/BER, a tag's low 5 bits all set to 1 signals a following tag byte;
// the tags this package cares about only ever use the 0x7F prefix.
func isLongFormFirstByte(b byte) bool {
	return b&0x1F == 0x1F
}

// ParseObjects walks a sequence of concatenated BER-TLV data objects,
// stopping at the end of data. It recognizes both single-byte tags and the
// 0x7F-prefixed two-byte form; any tag is accepted; the caller filters for
// the tags it cares about. An object whose declared length would run past
// the end of data is rejected.
func ParseObjects(data []byte) ([]DataObject, error) {
	var out []DataObject

	pos := 0
	for pos < len(data) {
		tagStart := pos
		var tag uint16
		if isLongFormFirstByte(data[pos]) {
			if pos+1 >= len(data) {
				return nil, fmt.Errorf("tlv: truncated long-form tag at offset %d", tagStart)
			}
			tag = uint16(data[pos])<<8 | uint16(data[pos+1])
			pos += 2
		} else {
			tag = uint16(data[pos])
			pos++
		}

		if pos >= len(data) {
			return nil, fmt.Errorf("tlv: missing length field for tag 0x%X at offset %d", tag, tagStart)
		}

		length, consumed, err := DecodeLength(data[pos:])
		if err != nil {
			return nil, fmt.Errorf("tlv: tag 0x%X: %w", tag, err)
		}
		pos += consumed

		if pos+length > len(data) {
			return nil, fmt.Errorf("tlv: tag 0x%X declares length %d beyond remaining %d bytes", tag, length, len(data)-pos)
		}

		value := data[pos : pos+length]
		pos += length

		out = append(out, DataObject{Tag: tag, Value: value})
	}

	return out, nil
}

// Find returns the first DataObject with the given tag, and whether it was
// found.
func Find(objects []DataObject, tag uint16) (DataObject, bool) {
	for _, o := range objects {
		if o.Tag == tag {
			return o, true
		}
	}
	return DataObject{}, false
}
