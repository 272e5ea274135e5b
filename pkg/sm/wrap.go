package sm

import (
	"fmt"
	"log/slog"

	"github.com/rovanhart/eac-sm/pkg/iso7816"
	"github.com/rovanhart/eac-sm/pkg/tlv"
)

// Wrap converts a plain command APDU into a Secure-Messaging-protected one
// (spec.md §4.4.2):
//
//  1. increment SSC
//  2. rewrite the header to mark SM (CLA |= 0x0C)
//  3. classify the command's ISO 7816-3 case
//  4. case3*/case4* (data present): encrypt the data into DO85 (odd INS)
//     or DO87 (even INS)
//  5. case2*/case4* (response expected): build DO97 from Ne
//  6. build DO8E over pad(header) || DO85|DO87 || DO97, or over the bare
//     header alone when neither exists (the MAC primitive pads once)
//  7. concatenate DO85|DO87, DO97, DO8E as the new data field
//  8. emit the command with Ne = 65536 (extended) or 256 (short)
func (s *Session) Wrap(cmd *iso7816.CommandAPDU) (*iso7816.CommandAPDU, error) {
	if s.state == stateFailed {
		return nil, ErrSessionFailed
	}

	rawPlain, err := cmd.Bytes()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedAPDU, err)
	}

	apduCase, err := iso7816.ClassifyRaw(rawPlain)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedAPDU, err)
	}

	// Step 1: increment SSC before any cryptographic operation. A
	// malformed command was already rejected above without touching it.
	s.incrementSSC()

	// Step 2: header with the SM bits set.
	header := make([]byte, 4)
	copy(header, rawPlain[:4])
	header[0] |= 0x0C

	var dataDO tlv.DataObject
	haveDataDO := false
	var neDO tlv.DataObject
	haveNeDO := false

	// Step 4: encrypt command data, if any.
	if apduCase.HasData() {
		if err := s.provider.Init(s.kEnc, s.ssc); err != nil {
			s.fail()
			return nil, fmt.Errorf("%w: %v", ErrCipherFailure, err)
		}
		ciphertext, err := s.provider.Encrypt(cmd.Data)
		if err != nil {
			s.fail()
			return nil, fmt.Errorf("%w: %v", ErrCipherFailure, err)
		}

		insOdd := byte(cmd.Instruction.Raw)&0x01 == 0x01
		if insOdd {
			dataDO = tlv.DataObject{Tag: tlv.TagEncryptedDataNoPI, Value: ciphertext}
		} else {
			value := make([]byte, 0, 1+len(ciphertext))
			value = append(value, 0x01)
			value = append(value, ciphertext...)
			dataDO = tlv.DataObject{Tag: tlv.TagEncryptedDataPI, Value: value}
		}
		haveDataDO = true
	}

	// Step 5: DO97 carrying the expected response length.
	if apduCase.ExpectsResponse() {
		neDO = tlv.DataObject{Tag: tlv.TagExpectedLength, Value: encodeNe(cmd.Ne)}
		haveNeDO = true
	}

	// Step 6: build DO8E over the MAC input.
	var macInput []byte
	if haveDataDO || haveNeDO {
		macInput = append(macInput, s.provider.AddPadding(header)...)
		if haveDataDO {
			macInput = append(macInput, dataDO.Encode()...)
		}
		if haveNeDO {
			macInput = append(macInput, neDO.Encode()...)
		}
	} else {
		macInput = header
	}

	if err := s.provider.Init(s.kMac, s.ssc); err != nil {
		s.fail()
		return nil, fmt.Errorf("%w: %v", ErrCipherFailure, err)
	}
	mac, err := s.provider.GetMAC(macInput)
	if err != nil {
		s.fail()
		return nil, fmt.Errorf("%w: %v", ErrCipherFailure, err)
	}
	macDO := tlv.DataObject{Tag: tlv.TagChecksum, Value: mac}

	// Step 7: assemble the new data field.
	var body []byte
	if haveDataDO {
		body = append(body, dataDO.Encode()...)
	}
	if haveNeDO {
		body = append(body, neDO.Encode()...)
	}
	body = append(body, macDO.Encode()...)

	cla, err := iso7816.NewClass(header[0])
	if err != nil {
		s.fail()
		return nil, fmt.Errorf("%w: %v", ErrCipherFailure, err)
	}

	ne := 256
	if s.extendedLength {
		ne = 65536
	}

	wrapped := iso7816.NewCommandAPDU(cla, cmd.Instruction, header[2], header[3], body, ne)

	slog.Debug("sm wrap",
		"case", apduCase.String(),
		"ssc", fmt.Sprintf("%X", s.ssc),
		"have_data_do", haveDataDO,
		"have_ne_do", haveNeDO,
		"mac", fmt.Sprintf("%X", mac))

	return wrapped, nil
}

// encodeNe encodes the expected response length as DO97's value, using the
// minimum width required (spec.md §4.1): 1 byte for Ne<=255, 2 bytes
// big-endian for Ne<=65535, or 3 zero bytes for Ne==65536.
func encodeNe(ne int) []byte {
	switch {
	case ne <= 0xFF:
		return []byte{byte(ne)}
	case ne <= 0xFFFF:
		return []byte{byte(ne >> 8), byte(ne)}
	default:
		return []byte{0x00, 0x00, 0x00}
	}
}
