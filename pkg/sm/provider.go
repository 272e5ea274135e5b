// Package sm implements the TR-03110 / ISO 7816-4 §6 Secure Messaging
// wrap/unwrap transform: given session keys and a send-sequence counter, it
// turns a plain command APDU into an authenticated-and-encrypted APDU
// (DO85/DO87/DO97/DO8E) and reverses the transform for response APDUs
// (DO87/DO99/DO8E).
package sm

// Provider is the cipher/MAC capability the Secure Messaging engine
// requires from its caller (spec.md §4.4.1). It is an external
// collaborator boundary: this package never implements DES/AES itself,
// only orchestrates calls to a Provider. See internal/cipherprovider for
// concrete implementations.
type Provider interface {
	// Init configures subsequent Encrypt/Decrypt/GetMAC calls with key and
	// ssc. ssc is used as IV derivation material or as a MAC prefix
	// depending on the provider (TR-03110 leaves this provider-specific).
	Init(key, ssc []byte) error

	// Encrypt applies ISO/IEC 7816-4 padding (0x80 then zero-fill to the
	// block boundary) to plain and CBC-encrypts it.
	Encrypt(plain []byte) ([]byte, error)

	// Decrypt CBC-decrypts ciphertext and strips ISO/IEC 7816-4 padding.
	Decrypt(ciphertext []byte) ([]byte, error)

	// AddPadding exposes the same padding function Encrypt uses, for
	// preparing MAC input.
	AddPadding(data []byte) []byte

	// GetMAC computes the retail-MAC (DES) or CMAC (AES) of the SSC given
	// to Init, prepended to input, returning 8 bytes. Callers pass only the
	// header/DO material; the provider is responsible for the SSC prefix
	// (spec.md §3 invariant 5).
	GetMAC(input []byte) ([]byte, error)
}
