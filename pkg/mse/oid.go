package mse

import (
	"encoding/asn1"
	"fmt"
)

// ASN.1 PRIMITIVE ENCODING (external collaborator):
//
// The MSE:Set AT body wraps a protocol OID (tag 0x80) and small integers
// (tag 0x83/0x84) using their DER *content* octets only — the context tag
// and length ISO 7816-4 already puts around them stand in for the
// universal OBJECT IDENTIFIER/INTEGER tag-length header ASN.1 would
// otherwise add. This package treats DER primitive encoding itself as an
// out-of-scope collaborator (spec.md §1) and leans on the standard
// library's encoding/asn1 to produce the canonical TLV, then strips the
// universal tag+length header to recover the content — the same content
// bytes a hand-rolled base-128/two's-complement encoder would produce, but
// grounded on the corpus's own choice of encoding/asn1 (remiblancher-qpki,
// mdean75-cms-lib, go-piv-piv-go) rather than reimplemented from scratch.

// encodeOID DER-encodes a dotted-decimal OID string (e.g.
// "0.4.0.127.0.7.2.2.4.2.2") down to its raw content octets, suitable as
// the value of a tag-0x80 Cryptographic Mechanism Reference DO.
func encodeOID(dotted string) ([]byte, error) {
	oid, err := parseOID(dotted)
	if err != nil {
		return nil, err
	}
	full, err := asn1.Marshal(oid)
	if err != nil {
		return nil, fmt.Errorf("mse: DER-encoding OID %q: %w", dotted, err)
	}
	return stripDERHeader(full)
}

// encodeSmallInteger DER-encodes a non-negative integer down to its raw
// content octets, suitable as the value of a tag-0x83/0x84 key reference
// DO.
func encodeSmallInteger(n int) ([]byte, error) {
	full, err := asn1.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("mse: DER-encoding integer %d: %w", n, err)
	}
	return stripDERHeader(full)
}

// stripDERHeader removes the leading universal tag byte and BER length
// field from a complete DER TLV, returning only its content octets.
func stripDERHeader(full []byte) ([]byte, error) {
	if len(full) < 2 {
		return nil, fmt.Errorf("mse: DER value too short to have a header")
	}

	lengthByte := full[1]
	switch {
	case lengthByte < 0x80:
		return full[2:], nil
	case lengthByte == 0x81:
		if len(full) < 3 {
			return nil, fmt.Errorf("mse: truncated 0x81 DER length")
		}
		return full[3:], nil
	case lengthByte == 0x82:
		if len(full) < 4 {
			return nil, fmt.Errorf("mse: truncated 0x82 DER length")
		}
		return full[4:], nil
	default:
		return nil, fmt.Errorf("mse: unsupported DER length form 0x%02X", lengthByte)
	}
}

// ParseOID converts a dotted-decimal string into an asn1.ObjectIdentifier.
// Exported so callers outside this package (e.g. internal/sessionconfig)
// can validate a protocol OID string without duplicating the parser.
func ParseOID(dotted string) (asn1.ObjectIdentifier, error) {
	return parseOID(dotted)
}

// parseOID converts a dotted-decimal string into an asn1.ObjectIdentifier.
func parseOID(dotted string) (asn1.ObjectIdentifier, error) {
	var oid asn1.ObjectIdentifier
	start := 0
	for i := 0; i <= len(dotted); i++ {
		if i == len(dotted) || dotted[i] == '.' {
			if i == start {
				return nil, fmt.Errorf("mse: invalid OID string %q", dotted)
			}
			n, err := parseUint(dotted[start:i])
			if err != nil {
				return nil, fmt.Errorf("mse: invalid OID string %q", dotted)
			}
			oid = append(oid, n)
			start = i + 1
		}
	}
	if len(oid) == 0 {
		return nil, fmt.Errorf("mse: invalid OID string %q", dotted)
	}
	return oid, nil
}

func parseUint(s string) (int, error) {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("mse: not a digit: %q", s)
		}
		n = n*10 + int(c-'0')
	}
	return n, nil
}
