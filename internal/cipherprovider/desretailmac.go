package cipherprovider

import (
	"crypto/cipher"
	"crypto/des"
	"fmt"
)

// DESRetailMACProvider implements sm.Provider using DES-EDE2-CBC for
// confidentiality and the ISO/IEC 9797-1 MAC Algorithm 3 ("retail MAC")
// for authentication, per TR-03110 Annex D.4 for the legacy DES session
// key suite (16-byte double-length keys).
//
// Neither the teacher nor the rest of the example pack imports a
// third-party DES/retail-MAC library; crypto/des is the standard library's
// own DES primitive and is used here directly, one block cipher call at a
// time, in the same manual style the teacher uses for its own byte-level
// encodings (see pkg/iso7816/apdu.go).
//
// IV is the zero block for both CBC encryption and the MAC's initial
// chaining value, per TR-03110's DES-suite convention (distinct from the
// AES suite's SSC-derived IV).
type DESRetailMACProvider struct {
	k1, k2   cipher.Block // K1 = key[:8], K2 = key[8:16]
	edeBlock cipher.Block // 2-key triple DES over the full 16-byte key, used for Encrypt/Decrypt
	ssc      []byte
}

// NewDESRetailMACProvider constructs an unconfigured provider; callers
// must call Init before Encrypt/Decrypt/GetMAC.
func NewDESRetailMACProvider() *DESRetailMACProvider {
	return &DESRetailMACProvider{}
}

func (p *DESRetailMACProvider) Init(key, ssc []byte) error {
	if len(key) != 16 {
		return fmt.Errorf("cipherprovider: DES suite requires a 16-byte double-length key, got %d", len(key))
	}

	k1, err := des.NewCipher(key[:8])
	if err != nil {
		return fmt.Errorf("cipherprovider: des k1: %w", err)
	}
	k2, err := des.NewCipher(key[8:16])
	if err != nil {
		return fmt.Errorf("cipherprovider: des k2: %w", err)
	}

	// 2-key triple DES: K1 || K2 || K1.
	edeKey := make([]byte, 24)
	copy(edeKey[:8], key[:8])
	copy(edeKey[8:16], key[8:16])
	copy(edeKey[16:], key[:8])
	edeBlock, err := des.NewTripleDESCipher(edeKey)
	if err != nil {
		return fmt.Errorf("cipherprovider: des-ede: %w", err)
	}

	p.k1 = k1
	p.k2 = k2
	p.edeBlock = edeBlock
	p.ssc = append([]byte(nil), ssc...)
	return nil
}

// AddPadding applies ISO/IEC 7816-4 padding on the 8-byte DES block
// boundary.
func (p *DESRetailMACProvider) AddPadding(data []byte) []byte {
	padLen := des.BlockSize - (len(data) % des.BlockSize)
	out := make([]byte, len(data)+padLen)
	copy(out, data)
	out[len(data)] = 0x80
	return out
}

func (p *DESRetailMACProvider) Encrypt(plain []byte) ([]byte, error) {
	if p.edeBlock == nil {
		return nil, fmt.Errorf("cipherprovider: Encrypt called before Init")
	}
	padded := p.AddPadding(plain)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(p.edeBlock, zeroIV(des.BlockSize)).CryptBlocks(out, padded)
	return out, nil
}

func (p *DESRetailMACProvider) Decrypt(ciphertext []byte) ([]byte, error) {
	if p.edeBlock == nil {
		return nil, fmt.Errorf("cipherprovider: Decrypt called before Init")
	}
	if len(ciphertext) == 0 || len(ciphertext)%des.BlockSize != 0 {
		return nil, fmt.Errorf("cipherprovider: ciphertext length %d not a multiple of %d", len(ciphertext), des.BlockSize)
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(p.edeBlock, zeroIV(des.BlockSize)).CryptBlocks(out, ciphertext)
	return unpadISO7816(out)
}

// GetMAC computes ISO/IEC 9797-1 MAC Algorithm 3 (retail MAC) over SSC ‖
// input (TR-03110 §D.4's MAC input is always SSC-prefixed, spec.md §3
// invariant 5): CBC-MAC the padded message under K1 with a zero IV, decrypt
// the final block under K2, then re-encrypt it under K1. The result is the
// 8-byte MAC.
func (p *DESRetailMACProvider) GetMAC(input []byte) ([]byte, error) {
	if p.k1 == nil {
		return nil, fmt.Errorf("cipherprovider: GetMAC called before Init")
	}

	msg := make([]byte, 0, len(p.ssc)+len(input))
	msg = append(msg, p.ssc...)
	msg = append(msg, input...)
	padded := p.AddPadding(msg)
	chain := zeroIV(des.BlockSize)
	block := make([]byte, des.BlockSize)

	for off := 0; off < len(padded); off += des.BlockSize {
		xorBlock(block, chain, padded[off:off+des.BlockSize])
		p.k1.Encrypt(chain, block)
	}

	decrypted := make([]byte, des.BlockSize)
	p.k2.Decrypt(decrypted, chain)

	mac := make([]byte, des.BlockSize)
	p.k1.Encrypt(mac, decrypted)
	return mac, nil
}

func zeroIV(size int) []byte {
	return make([]byte, size)
}
