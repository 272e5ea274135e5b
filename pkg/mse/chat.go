package mse

import (
	"fmt"
	"strings"

	"github.com/rovanhart/eac-sm/pkg/tlv"
)

// CHAT is the decoded content of a Certificate Holder Authorization
// Template (tag 0x7F4C, TR-03110 §C.4): the terminal-type OID (Document
// Verifier, Inspection System, ...) and the relative-authorization bitmask
// granting access to specific eMRTD data groups. Builder.SetCHAT only ever
// takes a pre-encoded blob from the caller (spec.md names no CHAT
// authorization logic); DecodeCHAT is for displaying what a caller is about
// to send, not for building it.
type CHAT struct {
	OID                   []byte `tlv:"06"`
	RelativeAuthorization []byte `tlv:"53" fmt:"int"`
}

// DecodeCHAT parses the value of a CHAT template (the content of tag
// 0x7F4C, not its own tag/length header) using pkg/tlv's reflect-based
// struct mapper.
func DecodeCHAT(data []byte) (*CHAT, error) {
	var chat CHAT
	if err := tlv.Unmarshal(data, &chat); err != nil {
		return nil, fmt.Errorf("mse: DecodeCHAT: %w", err)
	}
	if len(chat.OID) == 0 {
		return nil, fmt.Errorf("mse: DecodeCHAT: missing terminal type OID (tag 06)")
	}
	return &chat, nil
}

// String renders the CHAT's fields for console/log output.
func (c *CHAT) String() string {
	var sb strings.Builder
	tlv.WriteStructFields(&sb, "CHAT", c)
	return sb.String()
}
