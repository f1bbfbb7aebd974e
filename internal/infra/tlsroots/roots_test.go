package tlsroots

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewPoolWithCAFile(t *testing.T) {
	dir := t.TempDir()
	caFile := filepath.Join(dir, "ca.pem")
	writeCertPEM(t, caFile)

	pool, err := NewPool(caFile)
	if err != nil {
		t.Fatalf("NewPool() error = %v", err)
	}
	if pool.ClientConfig().RootCAs == nil {
		t.Fatal("ClientConfig().RootCAs is nil")
	}
}

func TestNewPoolMissingFile(t *testing.T) {
	if _, err := NewPool(filepath.Join(t.TempDir(), "absent.pem")); err == nil {
		t.Fatal("NewPool() should fail for a missing CA file")
	}
}

func TestAddPEM(t *testing.T) {
	cert := newTestCertPEM(t)

	tests := []struct {
		name    string
		data    []byte
		wantErr error
	}{
		{"single cert", cert, nil},
		{"two certs", append(append([]byte{}, cert...), newTestCertPEM(t)...), nil},
		{"empty input", nil, ErrNoCerts},
		{"not pem", []byte("plain text"), ErrNoCerts},
		{"key only", newTestKeyPEM(t), ErrNoCerts},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewEmptyPool().AddPEM(tt.data)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("AddPEM() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestAddPEMCorruptCertificate(t *testing.T) {
	bogus := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte("junk")})
	if err := NewEmptyPool().AddPEM(bogus); err == nil {
		t.Fatal("AddPEM() should reject an unparseable certificate")
	}
}

func TestClientConfigMinVersion(t *testing.T) {
	cfg := NewEmptyPool().ClientConfig()
	if cfg.MinVersion != tls.VersionTLS12 {
		t.Errorf("MinVersion = %x, want TLS 1.2", cfg.MinVersion)
	}
}

// writeCertPEM writes a self-signed certificate to path.
func writeCertPEM(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, newTestCertPEM(t), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestCertPEM(t *testing.T) []byte {
	t.Helper()
	certDER, _ := newTestKeyPair(t)
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
}

func newTestKeyPEM(t *testing.T) []byte {
	t.Helper()
	_, keyDER := newTestKeyPair(t)
	return pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
}

// newTestKeyPair generates a self-signed server certificate and returns
// the DER-encoded certificate and private key.
func newTestKeyPair(t *testing.T) (certDER, keyDER []byte) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: "docrelay.test"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	certDER, err = x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err = x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	return certDER, keyDER
}

// writeKeyPair writes a matching certificate and key file.
func writeKeyPair(t *testing.T, certFile, keyFile string) {
	t.Helper()
	certDER, keyDER := newTestKeyPair(t)
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	if err := os.WriteFile(certFile, certPEM, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, keyPEM, 0o600); err != nil {
		t.Fatal(err)
	}
}
