package tlv

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/moov-io/bertlv"
)

// Describe renders a raw BER-TLV byte string as an indented, human-readable
// tree, for debug/trace output of wrapped and unwrapped APDUs. It is
// deliberately independent of the struct-tag mapper above: SM data objects
// (DO85/DO87/DO97/DO99/DO8E) rarely map cleanly onto a fixed struct, and a
// trace tool needs to render whatever tags actually showed up on the wire,
// known or not.
func Describe(data []byte) string {
	packets, err := bertlv.Decode(data)
	if err != nil {
		return fmt.Sprintf("<undecodable BER-TLV: %v>", err)
	}

	var sb strings.Builder
	describeInto(&sb, packets, 0)
	return strings.TrimRight(sb.String(), "\n")
}

func describeInto(sb *strings.Builder, packets []bertlv.TLV, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, p := range packets {
		if len(p.TLVs) > 0 {
			fmt.Fprintf(sb, "%s%s (constructed)\n", indent, strings.ToUpper(p.Tag))
			describeInto(sb, p.TLVs, depth+1)
			continue
		}
		fmt.Fprintf(sb, "%s%s: %s\n", indent, strings.ToUpper(p.Tag), describeValue(p.Tag, p.Value))
	}
}

// describeValue annotates a handful of well-known TR-03110 tags with their
// meaning; everything else falls back to plain uppercase hex.
func describeValue(tag string, value []byte) string {
	hexVal := strings.ToUpper(hex.EncodeToString(value))
	switch strings.ToUpper(tag) {
	case "97":
		return fmt.Sprintf("%s (Ne)", hexVal)
	case "99":
		if len(value) == 2 {
			return fmt.Sprintf("%s (SW %02X%02X)", hexVal, value[0], value[1])
		}
	case "8E":
		return fmt.Sprintf("%s (MAC)", hexVal)
	case "87":
		if len(value) > 0 {
			return fmt.Sprintf("%s (PI=%02X, %d bytes ciphertext)", hexVal, value[0], len(value)-1)
		}
	case "85":
		return fmt.Sprintf("%s (%d bytes ciphertext, no PI)", hexVal, len(value))
	}
	return hexVal
}
