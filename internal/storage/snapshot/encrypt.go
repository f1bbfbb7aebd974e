package snapshot

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"

	"github.com/docrelay/docrelay-go/pkg/crypto/adaptive"
)

// Encryption errors.
var (
	ErrPassphraseTooWeak = errors.New("snapshot: passphrase too weak (minimum 8 characters)")
	ErrDecryptionFailed  = errors.New("snapshot: decryption failed, wrong passphrase or corrupted data")
)

const (
	// MinPassphraseLength is the minimum accepted passphrase length.
	MinPassphraseLength = 8

	// saltLength is the per-store salt size used in key derivation.
	saltLength = 16

	// Argon2id parameters for deriving the snapshot key.
	argon2Time    = 3
	argon2Memory  = 64 * 1024
	argon2Threads = 4
	argon2KeyLen  = 32
)

// deriveCipher derives an encryption cipher from a passphrase and salt
// using Argon2id. The salt must be persisted alongside the ciphertext (it
// lives in each snapshot header) so the same key can be derived for
// decryption. A nil salt generates a fresh one; the caller keeps it.
func deriveCipher(passphrase, salt []byte, algorithm string) (adaptive.Cipher, []byte, error) {
	if len(passphrase) < MinPassphraseLength {
		return nil, nil, ErrPassphraseTooWeak
	}
	if salt == nil {
		salt = make([]byte, saltLength)
		if _, err := rand.Read(salt); err != nil {
			return nil, nil, fmt.Errorf("snapshot: generate salt: %w", err)
		}
	}
	if len(salt) != saltLength {
		return nil, nil, fmt.Errorf("snapshot: salt must be %d bytes, got %d", saltLength, len(salt))
	}

	key := argon2.IDKey(passphrase, salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)

	var (
		c   adaptive.Cipher
		err error
	)
	switch algorithm {
	case "", "auto":
		c, err = adaptive.New(key)
	case "aes-gcm":
		c, err = adaptive.NewAESGCM(key)
	case "chacha20-poly1305":
		c, err = adaptive.NewChaCha20(key)
	default:
		return nil, nil, fmt.Errorf("snapshot: unsupported algorithm: %s", algorithm)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot: create cipher: %w", err)
	}
	return c, salt, nil
}

// zeroKey wipes key material after use.
func zeroKey(key []byte) {
	for i := range key {
		key[i] = 0
	}
}
