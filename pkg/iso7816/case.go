package iso7816

import "fmt"

// COMMAND APDU CASE CLASSIFICATION (ISO/IEC 7816-3 §12.1):
//
// A serialized command APDU falls into one of seven cases, distinguishable
// purely from its total length and the bytes immediately following the
// four-byte header. This is used by the Secure Messaging engine to decide
// which data objects (DO85/DO87/DO97) a wrap must produce, without needing
// the CommandAPDU struct the caller may not have (SM wraps take a
// caller-assembled plain command).

// APDUCase identifies the ISO 7816-3 case of a serialized command APDU.
type APDUCase int

const (
	CaseMalformed APDUCase = iota
	Case1                  // header only
	Case2Short             // header + Le (1 byte)
	Case3Short             // header + Lc (1 byte) + data
	Case4Short             // header + Lc (1 byte) + data + Le (1 byte)
	Case2Extended          // header + 00 + Le (2 bytes)
	Case3Extended          // header + 00 + Lc (2 bytes) + data
	Case4Extended          // header + 00 + Lc (2 bytes) + data + Le (2 bytes)
)

func (c APDUCase) String() string {
	switch c {
	case Case1:
		return "Case1"
	case Case2Short:
		return "Case2Short"
	case Case3Short:
		return "Case3Short"
	case Case4Short:
		return "Case4Short"
	case Case2Extended:
		return "Case2Extended"
	case Case3Extended:
		return "Case3Extended"
	case Case4Extended:
		return "Case4Extended"
	default:
		return "Malformed"
	}
}

// HasData reports whether the case carries a command data field (Case3/4).
func (c APDUCase) HasData() bool {
	return c == Case3Short || c == Case4Short || c == Case3Extended || c == Case4Extended
}

// ExpectsResponse reports whether the case carries an Le field (Case2/4).
func (c APDUCase) ExpectsResponse() bool {
	return c == Case2Short || c == Case4Short || c == Case2Extended || c == Case4Extended
}

// ClassifyRaw classifies an already-serialized command APDU (CLA INS P1 P2
// [Lc data] [Le]) per ISO 7816-3 §12.1, using only its length and header
// bytes as spec'd:
//
//	L == 4                                           -> Case1
//	L == 5                                           -> Case2Short
//	L == 5+B[4], B[4] != 0                           -> Case3Short
//	L == 6+B[4], B[4] != 0                           -> Case4Short
//	L == 7, B[4] == 0                                -> Case2Extended
//	B[4] == 0, (B[5],B[6]) != (0,0), L == 7+256B5+B6 -> Case3Extended
//	B[4] == 0, (B[5],B[6]) != (0,0), L == 9+256B5+B6 -> Case4Extended
//	otherwise                                        -> malformed (error)
func ClassifyRaw(raw []byte) (APDUCase, error) {
	l := len(raw)

	if l < 4 {
		return CaseMalformed, fmt.Errorf("iso7816: apdu shorter than header (%d bytes)", l)
	}

	if l == 4 {
		return Case1, nil
	}
	if l == 5 {
		return Case2Short, nil
	}

	b4 := int(raw[4])

	if b4 != 0 {
		if l == 5+b4 {
			return Case3Short, nil
		}
		if l == 6+b4 {
			return Case4Short, nil
		}
	}

	if l == 7 && b4 == 0 {
		return Case2Extended, nil
	}

	if b4 == 0 && l >= 7 {
		nc := 256*int(raw[5]) + int(raw[6])
		if !(raw[5] == 0 && raw[6] == 0) {
			if l == 7+nc {
				return Case3Extended, nil
			}
			if l == 9+nc {
				return Case4Extended, nil
			}
		}
	}

	return CaseMalformed, fmt.Errorf("iso7816: apdu of length %d does not match any known case", l)
}
