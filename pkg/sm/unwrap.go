package sm

import (
	"crypto/subtle"
	"fmt"
	"log/slog"

	"github.com/rovanhart/eac-sm/pkg/iso7816"
	"github.com/rovanhart/eac-sm/pkg/tlv"
)

// Unwrap reverses Wrap for a response APDU (spec.md §4.4.3):
//
//  1. increment SSC
//  2. parse the response data field as a TLV sequence, recognizing
//     DO87/DO99/DO8E and skipping unknown tags per their declared length
//  3. fail with ErrMissingDO99 if DO99 is absent
//  4. compute the expected MAC over DO87? || DO99
//  5. compare it against DO8E in constant time; ErrBadMAC on mismatch
//  6. if DO87 is present, decrypt it and prepend the result to DO99's
//     value; otherwise return DO99's value alone
func (s *Session) Unwrap(resp *iso7816.ResponseAPDU) (*iso7816.ResponseAPDU, error) {
	if s.state == stateFailed {
		return nil, ErrSessionFailed
	}

	// Step 1.
	s.incrementSSC()

	objects, err := tlv.ParseObjects(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedAPDU, err)
	}

	do87, haveDO87 := tlv.Find(objects, tlv.TagEncryptedDataPI)
	do99, haveDO99 := tlv.Find(objects, tlv.TagStatusWord)
	do8e, haveDO8E := tlv.Find(objects, tlv.TagChecksum)

	if !haveDO99 {
		return nil, ErrMissingDO99
	}
	if !haveDO8E {
		return nil, fmt.Errorf("%w: response missing DO8E", ErrMalformedAPDU)
	}
	if len(do99.Value) != 2 {
		return nil, fmt.Errorf("%w: DO99 value must be exactly 2 bytes, got %d", ErrMalformedAPDU, len(do99.Value))
	}

	// Step 4: expected MAC.
	var macInput []byte
	if haveDO87 {
		macInput = append(macInput, do87.Encode()...)
	}
	macInput = append(macInput, do99.Encode()...)

	if err := s.provider.Init(s.kMac, s.ssc); err != nil {
		s.fail()
		return nil, fmt.Errorf("%w: %v", ErrCipherFailure, err)
	}
	computed, err := s.provider.GetMAC(macInput)
	if err != nil {
		s.fail()
		return nil, fmt.Errorf("%w: %v", ErrCipherFailure, err)
	}

	// Step 5: constant-time comparison.
	if subtle.ConstantTimeCompare(computed, do8e.Value) != 1 {
		s.fail()
		slog.Debug("sm unwrap: mac mismatch", "ssc", fmt.Sprintf("%X", s.ssc))
		return nil, ErrBadMAC
	}

	sw1, sw2 := do99.Value[0], do99.Value[1]

	if !haveDO87 {
		return &iso7816.ResponseAPDU{Status: iso7816.NewStatusWord(sw1, sw2)}, nil
	}

	if len(do87.Value) < 1 || do87.Value[0] != 0x01 {
		return nil, fmt.Errorf("%w: DO87 missing padding-content indicator", ErrMalformedAPDU)
	}

	if err := s.provider.Init(s.kEnc, s.ssc); err != nil {
		s.fail()
		return nil, fmt.Errorf("%w: %v", ErrCipherFailure, err)
	}
	plain, err := s.provider.Decrypt(do87.Value[1:])
	if err != nil {
		s.fail()
		return nil, fmt.Errorf("%w: %v", ErrCipherFailure, err)
	}

	slog.Debug("sm unwrap", "ssc", fmt.Sprintf("%X", s.ssc), "plain_len", len(plain))

	return &iso7816.ResponseAPDU{
		Data:   plain,
		Status: iso7816.NewStatusWord(sw1, sw2),
	}, nil
}
