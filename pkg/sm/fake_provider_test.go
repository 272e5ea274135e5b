package sm

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// fakeProvider is a deterministic, test-only Provider. It is not a
// TR-03110 cipher suite; it exists to exercise the wrap/unwrap orchestration
// (DO framing, SSC discipline, MAC placement) independently of any real
// cryptographic primitive. See internal/cipherprovider for the real DES and
// AES suites.
type fakeProvider struct {
	key []byte
	ssc []byte

	failInit    bool
	failEncrypt bool
	failDecrypt bool
	failMAC     bool

	macOverride []byte // when set, GetMAC returns this instead of computing one

	lastMACInput []byte // SSC || input, as last passed into the MAC primitive
}

func (p *fakeProvider) Init(key, ssc []byte) error {
	if p.failInit {
		return fmt.Errorf("fakeProvider: forced init failure")
	}
	p.key = key
	p.ssc = ssc
	return nil
}

func (p *fakeProvider) block() cipher.Block {
	k := make([]byte, 16)
	copy(k, p.key)
	b, err := aes.NewCipher(k)
	if err != nil {
		panic(err)
	}
	return b
}

func (p *fakeProvider) iv() []byte {
	iv := make([]byte, aes.BlockSize)
	copy(iv, p.ssc)
	return iv
}

func (p *fakeProvider) AddPadding(data []byte) []byte {
	padded := append([]byte{}, data...)
	padded = append(padded, 0x80)
	for len(padded)%aes.BlockSize != 0 {
		padded = append(padded, 0x00)
	}
	return padded
}

func unpad(data []byte) ([]byte, error) {
	for i := len(data) - 1; i >= 0; i-- {
		if data[i] == 0x80 {
			return data[:i], nil
		}
		if data[i] != 0x00 {
			return nil, fmt.Errorf("fakeProvider: bad padding")
		}
	}
	return nil, fmt.Errorf("fakeProvider: no padding marker found")
}

func (p *fakeProvider) Encrypt(plain []byte) ([]byte, error) {
	if p.failEncrypt {
		return nil, fmt.Errorf("fakeProvider: forced encrypt failure")
	}
	padded := p.AddPadding(plain)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(p.block(), p.iv()).CryptBlocks(out, padded)
	return out, nil
}

func (p *fakeProvider) Decrypt(ciphertext []byte) ([]byte, error) {
	if p.failDecrypt {
		return nil, fmt.Errorf("fakeProvider: forced decrypt failure")
	}
	if len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("fakeProvider: ciphertext not block-aligned")
	}
	out := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(p.block(), p.iv()).CryptBlocks(out, ciphertext)
	return unpad(out)
}

func (p *fakeProvider) GetMAC(input []byte) ([]byte, error) {
	msg := append([]byte{}, p.ssc...)
	msg = append(msg, input...)
	p.lastMACInput = msg

	if p.failMAC {
		return nil, fmt.Errorf("fakeProvider: forced mac failure")
	}
	if p.macOverride != nil {
		return p.macOverride, nil
	}
	// A deterministic, non-cryptographic 8-byte "mac": CBC-MAC over
	// padded(SSC || input), keeping only the last block's first 8 bytes.
	// Good enough to prove wrap/unwrap wiring, including that the SSC
	// actually flows into the MAC input; not a real MAC.
	padded := p.AddPadding(msg)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(p.block(), make([]byte, aes.BlockSize)).CryptBlocks(out, padded)
	last := out[len(out)-aes.BlockSize:]
	return last[:8], nil
}

func newTestSession() (*Session, *fakeProvider) {
	provider := &fakeProvider{}
	sess, err := NewSession(provider, bytes.Repeat([]byte{0x11}, 16), bytes.Repeat([]byte{0x22}, 16), make([]byte, 16), false)
	if err != nil {
		panic(err)
	}
	return sess, provider
}
