// Command eacdemo drives one PACE + Secure Messaging session against an
// eMRTD chip: select the eMRTD application, read EF.CardAccess, build and
// send an MSE:Set AT for PACE, then wrap and unwrap one further command
// under the resulting Secure Messaging session. Grounded on the teacher's
// main.go (PC/SC connect/release, step-numbered console flow), restructured
// around the eMRTD MSE/SM flow instead of an EMV PSE/AID walk.
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/ebfe/scard"
	"golang.org/x/term"

	"github.com/rovanhart/eac-sm/internal/cipherprovider"
	"github.com/rovanhart/eac-sm/internal/sessionconfig"
	"github.com/rovanhart/eac-sm/pkg/iso7816"
	"github.com/rovanhart/eac-sm/pkg/mse"
	"github.com/rovanhart/eac-sm/pkg/sm"
	"github.com/rovanhart/eac-sm/pkg/tlv"
)

// eMRTD application identifier, ICAO Doc 9303 Part 10.
var eMRTDAID = []byte{0xA0, 0x00, 0x00, 0x02, 0x47, 0x10, 0x01}

func main() {
	configPath := flag.String("config", "session.yaml", "path to the session profile")
	flag.Parse()

	cfg, err := sessionconfig.Load(*configPath)
	if err != nil {
		log.Fatalf("loading session profile: %v", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(cfg.Runtime.LogLevel)})))

	// --- 1. Hardware Setup ---
	ctx, card := connectToCard(*cfg.Reader.Index)
	defer func() {
		if err := ctx.Release(); err != nil {
			log.Printf("Warning: Failed to release context: %v", err)
		}
	}()
	defer func() {
		if err := card.Disconnect(scard.LeaveCard); err != nil {
			log.Printf("Warning: Failed to disconnect card: %v", err)
		}
	}()

	client := iso7816.NewClient(card)
	cls, err := iso7816.NewClass(0x00)
	if err != nil {
		log.Fatalf("building CLA: %v", err)
	}

	// --- 2. Select the eMRTD application ---
	if err := selectEMRTD(client, cls); err != nil {
		log.Fatalf("Step 1 failed: %v", err)
	}

	// --- 3. Read EF.CardAccess (SFI 0x1C) to learn the offered PACE info ---
	readCardAccess(client, cls)

	// --- 4. Build and send MSE:Set AT ---
	if cfg.PACE != nil {
		if err := runPACE(client, cls, cfg.PACE); err != nil {
			log.Fatalf("Step 3 (PACE MSE:Set AT) failed: %v", err)
		}
	}
	if cfg.CA != nil {
		if err := runChipAuthentication(client, cls, cfg.CA); err != nil {
			log.Fatalf("Step 3 (Chip Authentication MSE:Set AT) failed: %v", err)
		}
	}
	if cfg.TA != nil {
		if err := runTerminalAuthentication(client, cls, cfg.TA); err != nil {
			log.Fatalf("Step 3 (Terminal Authentication MSE:Set AT) failed: %v", err)
		}
	}

	// --- 5. Demonstrate Secure Messaging with pre-agreed session keys ---
	if cfg.SM != nil {
		if err := runSecureMessagingDemo(client, cls, cfg.SM, *cfg.Runtime.ExtendedLength); err != nil {
			log.Fatalf("Step 4 (Secure Messaging) failed: %v", err)
		}
	}

	fmt.Println("\n>> Demo Finished Successfully")
}

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func connectToCard(readerIndex int) (*scard.Context, *scard.Card) {
	ctx, err := scard.EstablishContext()
	if err != nil {
		log.Fatalf("Error establishing context: %s", err)
	}

	readers, err := ctx.ListReaders()
	if err != nil || len(readers) <= readerIndex {
		if relErr := ctx.Release(); relErr != nil {
			log.Printf("Warning: Failed to release context during error handling: %v", relErr)
		}
		log.Fatalf("No smart card reader at index %d.", readerIndex)
	}

	fmt.Printf(">> Using reader: %s\n", readers[readerIndex])

	card, err := ctx.Connect(readers[readerIndex], scard.ShareShared, scard.ProtocolT0|scard.ProtocolT1)
	if err != nil {
		if relErr := ctx.Release(); relErr != nil {
			log.Printf("Warning: Failed to release context during error handling: %v", relErr)
		}
		log.Fatalf("Error connecting to card: %s", err)
	}

	return ctx, card
}

func selectEMRTD(client *iso7816.Client, cls iso7816.Class) error {
	fmt.Println("\n=============================================")
	fmt.Println(" Step 1: SELECT eMRTD Application")
	fmt.Println("=============================================")

	cmd := iso7816.SelectByAID(cls, eMRTDAID)
	resp, err := client.Send(cmd)
	if err != nil {
		return fmt.Errorf("transmission failed: %w", err)
	}
	fmt.Printf("SELECT %X -> %s\n", eMRTDAID, resp.Status.Verbose())
	if len(resp.Data) > 0 {
		fmt.Println(tlv.Describe(resp.Data))
	}

	if !resp.Status.IsSuccess() {
		return fmt.Errorf("selection failed with status: %s", resp.Status.Verbose())
	}
	return nil
}

// efCardAccessSFI is the short EF identifier ICAO 9303 reserves for
// EF.CardAccess, the transparent (binary, not record-oriented) file
// carrying the chip's offered PACEInfo/PACEDomainParameterInfo.
const efCardAccessSFI = 0x1C

// readEFShort reads a transparent EF addressed by its short EF identifier
// (P1 bit 8 set, low 5 bits = SFI) in one READ BINARY, per ISO/IEC 7816-4
// §7.2.3 — the addressing EF.CardAccess itself is read with, ICAO 9303 Part
// 11 §3.1.
func readEFShort(client *iso7816.Client, cls iso7816.Class, sfi byte) (*iso7816.ResponseAPDU, error) {
	ins, err := iso7816.NewInstruction(iso7816.INS_READ_BINARY)
	if err != nil {
		return nil, err
	}
	cmd := iso7816.NewCommandAPDU(cls, ins, 0x80|sfi, 0x00, nil, iso7816.MaxShortLe)
	return client.Send(cmd)
}

func readCardAccess(client *iso7816.Client, cls iso7816.Class) {
	fmt.Println("\n=============================================")
	fmt.Println(" Step 2: READ EF.CardAccess")
	fmt.Println("=============================================")

	resp, err := readEFShort(client, cls, efCardAccessSFI)
	if err != nil {
		log.Printf("(!) Communication broken: %v", err)
		return
	}
	fmt.Printf("READ BINARY (SFI %02X) -> %s\n", efCardAccessSFI, resp.Status.Verbose())

	if resp.Status.IsSuccess() {
		fmt.Println("Decoded SecurityInfos:")
		fmt.Println(tlv.Describe(resp.Data))
	}
}

func runPACE(client *iso7816.Client, cls iso7816.Class, cfg *sessionconfig.PACEConfig) error {
	fmt.Println("\n=============================================")
	fmt.Println(" Step 3: MSE:Set AT (PACE)")
	fmt.Println("=============================================")

	b := mse.NewBuilder(mse.TemplatePACE)
	if err := b.SetProtocol(cfg.ProtocolOID); err != nil {
		return err
	}

	switch cfg.PasswordSource {
	case "can":
		if err := b.SetKeyReferenceInteger(mse.KeyReferenceCAN); err != nil {
			return err
		}
		if _, err := promptSecret("Enter CAN: "); err != nil {
			return fmt.Errorf("reading CAN: %w", err)
		}
	case "mrz":
		if err := b.SetKeyReferenceInteger(mse.KeyReferenceMRZ); err != nil {
			return err
		}
	}

	return sendMSE(client, cls, b)
}

func runChipAuthentication(client *iso7816.Client, cls iso7816.Class, cfg *sessionconfig.CAConfig) error {
	fmt.Println("\n=============================================")
	fmt.Println(" Step 3: MSE:Set AT (Chip Authentication)")
	fmt.Println("=============================================")

	keyBytes, err := os.ReadFile(cfg.PrivateKeyKeyFile)
	if err != nil {
		return fmt.Errorf("reading private key reference: %w", err)
	}
	privRef, err := hex.DecodeString(trimNewline(string(keyBytes)))
	if err != nil {
		return fmt.Errorf("decoding private key reference: %w", err)
	}

	b := mse.NewBuilder(mse.TemplateChipAuthentication)
	if err := b.SetProtocol(cfg.ProtocolOID); err != nil {
		return err
	}
	if len(privRef) == 1 {
		if err := b.SetPrivateKeyReference(int(privRef[0])); err != nil {
			return err
		}
	}

	return sendMSE(client, cls, b)
}

func runTerminalAuthentication(client *iso7816.Client, cls iso7816.Class, cfg *sessionconfig.TAConfig) error {
	fmt.Println("\n=============================================")
	fmt.Println(" Step 3: MSE:Set AT (Terminal Authentication)")
	fmt.Println("=============================================")

	chatBytes, err := os.ReadFile(cfg.CHATHexFile)
	if err != nil {
		return fmt.Errorf("reading CHAT: %w", err)
	}
	chat, err := hex.DecodeString(trimNewline(string(chatBytes)))
	if err != nil {
		return fmt.Errorf("decoding CHAT: %w", err)
	}

	if decoded, err := mse.DecodeCHAT(chat); err != nil {
		log.Printf("(!) could not decode CHAT for display: %v", err)
	} else {
		fmt.Println(decoded)
	}

	b := mse.NewBuilder(mse.TemplateTerminalAuthentication)
	if err := b.SetProtocol(cfg.ProtocolOID); err != nil {
		return err
	}
	b.SetCHAT(chat)

	return sendMSE(client, cls, b)
}

func sendMSE(client *iso7816.Client, cls iso7816.Class, b *mse.Builder) error {
	cmd, err := b.Build()
	if err != nil {
		return fmt.Errorf("building MSE:Set AT: %w", err)
	}
	cmd.Class = cls

	resp, err := client.Send(cmd)
	if err != nil {
		return fmt.Errorf("transmission failed: %w", err)
	}
	fmt.Printf("MSE:Set AT -> %s\n", resp.Status.Verbose())
	if !resp.Status.IsSuccess() {
		return fmt.Errorf("MSE:Set AT rejected: %s", resp.Status.Verbose())
	}
	return nil
}

func runSecureMessagingDemo(client *iso7816.Client, cls iso7816.Class, cfg *sessionconfig.SecureMessaging, extendedLength bool) error {
	fmt.Println("\n=============================================")
	fmt.Println(" Step 4: Secure Messaging (SELECT MF under SM)")
	fmt.Println("=============================================")

	kEnc, err := readHexFile(cfg.KEncHexFile)
	if err != nil {
		return fmt.Errorf("reading K_enc: %w", err)
	}
	kMac, err := readHexFile(cfg.KMacHexFile)
	if err != nil {
		return fmt.Errorf("reading K_mac: %w", err)
	}
	ssc, err := hex.DecodeString(cfg.InitialSSCHex)
	if err != nil {
		return fmt.Errorf("decoding initial SSC: %w", err)
	}

	var provider sm.Provider
	switch cfg.Suite {
	case "aes-cmac":
		provider = cipherprovider.NewAESCMACProvider()
	case "des-retail-mac":
		provider = cipherprovider.NewDESRetailMACProvider()
	default:
		return fmt.Errorf("unknown secure messaging suite %q", cfg.Suite)
	}

	session, err := sm.NewSession(provider, kEnc, kMac, ssc, extendedLength)
	if err != nil {
		return fmt.Errorf("creating SM session: %w", err)
	}
	defer session.Close()

	plainCmd := iso7816.SelectMF(cls)
	wrapped, err := session.Wrap(plainCmd)
	if err != nil {
		return fmt.Errorf("wrapping command: %w", err)
	}

	fmt.Printf("Wrapped command data field:\n%s\n", tlv.Describe(wrapped.Data))

	rawResp, err := card_(client).Transmit(mustBytes(wrapped))
	if err != nil {
		return fmt.Errorf("transmission failed: %w", err)
	}
	resp, err := iso7816.ParseResponseAPDU(rawResp)
	if err != nil {
		return err
	}

	unwrapped, err := session.Unwrap(resp)
	if err != nil {
		return fmt.Errorf("unwrapping response: %w", err)
	}

	fmt.Printf("Unwrapped response status: %s\n", unwrapped.Status.Verbose())
	if len(unwrapped.Data) > 0 {
		fmt.Printf("Unwrapped response data:\n%s\n", tlv.Describe(unwrapped.Data))
	}
	return nil
}

// card_ recovers the Transmitter the Client was built with; the demo needs
// direct card access for a single hand-wrapped SM command, bypassing
// Client.Send's automatic 61XX GET RESPONSE and 6CXX re-send handling, whose
// follow-up commands would not be wrapped.
func card_(client *iso7816.Client) iso7816.Transmitter {
	return client.Card
}

func mustBytes(cmd *iso7816.CommandAPDU) []byte {
	raw, err := cmd.Bytes()
	if err != nil {
		log.Fatalf("encoding wrapped command: %v", err)
	}
	return raw
}

func promptSecret(prompt string) (string, error) {
	fmt.Print(prompt)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func readHexFile(path string) ([]byte, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return hex.DecodeString(trimNewline(string(content)))
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r' || s[len(s)-1] == ' ') {
		s = s[:len(s)-1]
	}
	return s
}
