package adaptive

import (
	"bytes"
	"testing"
)

func key32() []byte {
	k := make([]byte, 32)
	for i := range k {
		k[i] = byte(i)
	}
	return k
}

func TestRoundTrip(t *testing.T) {
	constructors := map[string]func([]byte) (Cipher, error){
		"auto":     New,
		"aes-gcm":  NewAESGCM,
		"chacha20": NewChaCha20,
	}

	for name, newCipher := range constructors {
		t.Run(name, func(t *testing.T) {
			c, err := newCipher(key32())
			if err != nil {
				t.Fatalf("constructor error = %v", err)
			}

			plaintext := []byte("snapshot payload")
			aad := []byte("doc-1")

			sealed, err := c.Encrypt(plaintext, aad)
			if err != nil {
				t.Fatalf("Encrypt() error = %v", err)
			}
			if bytes.Contains(sealed, plaintext) {
				t.Fatal("ciphertext contains the plaintext")
			}

			opened, err := c.Decrypt(sealed, aad)
			if err != nil {
				t.Fatalf("Decrypt() error = %v", err)
			}
			if !bytes.Equal(opened, plaintext) {
				t.Fatalf("Decrypt() = %q, want %q", opened, plaintext)
			}
		})
	}
}

func TestEncryptNoncesDiffer(t *testing.T) {
	c, err := New(key32())
	if err != nil {
		t.Fatal(err)
	}

	a, _ := c.Encrypt([]byte("same input"), nil)
	b, _ := c.Encrypt([]byte("same input"), nil)
	if bytes.Equal(a, b) {
		t.Fatal("two encryptions of one plaintext produced identical output")
	}
}

func TestDecryptRejectsTampering(t *testing.T) {
	c, err := New(key32())
	if err != nil {
		t.Fatal(err)
	}

	sealed, err := c.Encrypt([]byte("payload"), []byte("aad"))
	if err != nil {
		t.Fatal(err)
	}

	flipped := append([]byte(nil), sealed...)
	flipped[len(flipped)-1] ^= 0x01
	if _, err := c.Decrypt(flipped, []byte("aad")); err == nil {
		t.Error("Decrypt() accepted a tampered ciphertext")
	}

	if _, err := c.Decrypt(sealed, []byte("other-aad")); err == nil {
		t.Error("Decrypt() accepted the wrong additional data")
	}
}

func TestDecryptShortInput(t *testing.T) {
	c, err := New(key32())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Decrypt([]byte{1, 2, 3}, nil); err == nil {
		t.Error("Decrypt() accepted input shorter than a nonce")
	}
}

func TestBadKeySizes(t *testing.T) {
	if _, err := NewAESGCM(make([]byte, 15)); err == nil {
		t.Error("NewAESGCM accepted a 15-byte key")
	}
	if _, err := NewChaCha20(make([]byte, 16)); err == nil {
		t.Error("NewChaCha20 accepted a 16-byte key")
	}
}

func TestAESGCMKeyVariants(t *testing.T) {
	for _, size := range []int{16, 24, 32} {
		if _, err := NewAESGCM(make([]byte, size)); err != nil {
			t.Errorf("NewAESGCM(%d-byte key) error = %v", size, err)
		}
	}
}

func TestCiphersDoNotInterop(t *testing.T) {
	gcm, err := NewAESGCM(key32())
	if err != nil {
		t.Fatal(err)
	}
	cha, err := NewChaCha20(key32())
	if err != nil {
		t.Fatal(err)
	}

	sealed, err := gcm.Encrypt([]byte("payload"), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cha.Decrypt(sealed, nil); err == nil {
		t.Error("ChaCha20 opened an AES-GCM ciphertext")
	}
}
