package iso7816

import (
	"fmt"
)

// CLIENT & PROTOCOL LOGIC:
// The Client acts as a thin driver over the physical connection. It
// implements the automatic handling of ISO 7816-3 transport behaviors that
// are often exposed to the application layer in T=0 protocols:
//
// 1. "61 XX" (Response Available):
//    The card indicates that XX bytes are waiting. The client automatically
//    generates and sends a GET RESPONSE command to retrieve them.
//
// 2. "6C XX" (Wrong Length):
//    The card indicates that the expected length (Le) was incorrect and
//    suggests XX. The client automatically re-sends the original command
//    with Le = XX.
//
// Send() returns the final ResponseAPDU once these retries settle; callers
// that need the eMRTD application selected or its Secure Messaging session
// established build their own CommandAPDUs (pkg/mse, pkg/sm) and pass them
// through here.

// Transmitter abstracts the physical card connection.
type Transmitter interface {
	Transmit(cmd []byte) ([]byte, error)
}

// Client manages the low-level communication with the card.
type Client struct {
	Card Transmitter
}

// NewClient creates a new Client instance.
func NewClient(card Transmitter) *Client {
	return &Client{Card: card}
}

// Send transmits a command and handles protocol logic (61xx, 6Cxx),
// returning the final ResponseAPDU.
func (c *Client) Send(cmd *CommandAPDU) (*ResponseAPDU, error) {
	rawCmd, err := cmd.Bytes()
	if err != nil {
		return nil, fmt.Errorf("encoding error: %w", err)
	}

	rawResp, err := c.Card.Transmit(rawCmd)
	if err != nil {
		return nil, fmt.Errorf("transmission error: %w", err)
	}

	resp, err := ParseResponseAPDU(rawResp)
	if err != nil {
		return nil, err
	}

	sw1 := resp.Status.SW1()
	sw2 := resp.Status.SW2()

	// Case 61XX: More data available -> issue GET RESPONSE.
	if sw1 == 0x61 {
		// ISO 7816-4: GET RESPONSE must use the same logical channel as the
		// original command.
		respCls := cmd.Class
		respCls.IsChained = false

		ins, _ := NewInstruction(INS_GET_RESPONSE)

		// Le = sw2 (number of bytes available).
		return c.Send(NewCommandAPDU(respCls, ins, 0x00, 0x00, nil, int(sw2)))
	}

	// Case 6CXX: Wrong Length -> re-issue original command with corrected Le.
	if sw1 == 0x6C {
		newCmd := *cmd
		newCmd.Ne = int(sw2)
		return c.Send(&newCmd)
	}

	return resp, nil
}
