/*
Package iso7816 implements data structures and logic to interact with smart cards according to the ISO/IEC 7816 standard.

This package provides the fundamental building blocks for APDU (Application Protocol Data Unit) communication: Command and Response structures, Class/Instruction byte decoding, Status Word (SW) analysis, and APDU case classification (pkg/iso7816's own contribution beyond the four textbook cases, used by Secure Messaging to decide which data objects a wrapped command carries).

# Fundamentals

The communication with a smart card is strictly synchronous:
 1. The Host sends a Command APDU (Header + Optional Body).
 2. The Card processes it and returns a Response APDU (Optional Body + Trailer SW1/SW2).

# Status Words

Every response ends with a 2-byte Status Word (SW).
  - 0x9000: Success (OK).
  - 0x61XX: Success, but response data is still available (XX bytes).
  - 0x6CXX: Error, wrong length expectation (XX is the correct length).
  - Other: Various error conditions.

# Usage Example: Selecting an Application and Reading Its Response

	cls, _ := iso7816.NewClass(0x00)
	client := iso7816.NewClient(card)

	resp, err := client.Send(iso7816.SelectByAID(cls, aid))
	if err != nil {
	    log.Fatal(err)
	}

	if resp.Status.IsSuccess() {
	    fmt.Println(tlv.Describe(resp.Data))
	}
*/
package iso7816
