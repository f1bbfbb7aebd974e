// Package adaptive wraps AEAD encryption for snapshot data behind one
// small interface. New picks AES-256-GCM on architectures with hardware
// AES support and ChaCha20-Poly1305 elsewhere; both produce self-framed
// ciphertexts with the nonce prepended.
package adaptive

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"runtime"

	"golang.org/x/crypto/chacha20poly1305"
)

// Cipher seals and opens snapshot payloads with authenticated encryption.
type Cipher interface {
	Encrypt(plaintext, additionalData []byte) ([]byte, error)
	Decrypt(ciphertext, additionalData []byte) ([]byte, error)
}

type aeadCipher struct {
	aead cipher.AEAD
}

// New returns the preferred cipher for this machine: AES-GCM where Go's
// crypto/aes runs on hardware (amd64, arm64), ChaCha20-Poly1305 otherwise.
func New(key []byte) (Cipher, error) {
	switch runtime.GOARCH {
	case "amd64", "arm64":
		return NewAESGCM(key)
	default:
		return NewChaCha20(key)
	}
}

// NewAESGCM builds an AES-GCM cipher. The key selects the AES variant:
// 16, 24 or 32 bytes.
func NewAESGCM(key []byte) (Cipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("adaptive: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("adaptive: %w", err)
	}
	return &aeadCipher{aead: aead}, nil
}

// NewChaCha20 builds a ChaCha20-Poly1305 cipher from a 32-byte key.
func NewChaCha20(key []byte) (Cipher, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("adaptive: %w", err)
	}
	return &aeadCipher{aead: aead}, nil
}

func (c *aeadCipher) Encrypt(plaintext, additionalData []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return c.aead.Seal(nonce, nonce, plaintext, additionalData), nil
}

func (c *aeadCipher) Decrypt(ciphertext, additionalData []byte) ([]byte, error) {
	ns := c.aead.NonceSize()
	if len(ciphertext) < ns {
		return nil, errors.New("adaptive: ciphertext shorter than nonce")
	}
	return c.aead.Open(nil, ciphertext[:ns], ciphertext[ns:], additionalData)
}
