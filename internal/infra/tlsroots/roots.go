package tlsroots

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// ErrNoCerts is returned when PEM input contains no certificate blocks.
var ErrNoCerts = errors.New("tlsroots: no certificates found")

// Pool is the set of root certificates DocRelay trusts when dialing
// remote endpoints such as the backup store.
type Pool struct {
	roots *x509.CertPool
}

// NewPool returns a pool seeded with the system roots plus the
// certificates from each given PEM file. On platforms without an
// accessible system store the pool starts from the extra files alone.
func NewPool(caFiles ...string) (*Pool, error) {
	roots, err := x509.SystemCertPool()
	if err != nil {
		roots = x509.NewCertPool()
	}

	p := &Pool{roots: roots}
	for _, f := range caFiles {
		if err := p.AddFile(f); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// NewEmptyPool returns a pool with no trusted roots. Used by tests and
// deployments that pin a private CA exclusively.
func NewEmptyPool() *Pool {
	return &Pool{roots: x509.NewCertPool()}
}

// AddFile adds every certificate found in the PEM file at path.
func (p *Pool) AddFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("tlsroots: read %s: %w", path, err)
	}
	if err := p.AddPEM(data); err != nil {
		return fmt.Errorf("tlsroots: %s: %w", path, err)
	}
	return nil
}

// AddPEM adds every CERTIFICATE block in data to the pool. Non-certificate
// blocks are skipped; input with no certificate blocks is an error.
func (p *Pool) AddPEM(data []byte) error {
	added := 0
	for len(data) > 0 {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return fmt.Errorf("parse certificate: %w", err)
		}
		p.roots.AddCert(cert)
		added++
	}
	if added == 0 {
		return ErrNoCerts
	}
	return nil
}

// ClientConfig builds a TLS client config that verifies peers against
// this pool.
func (p *Pool) ClientConfig() *tls.Config {
	return &tls.Config{
		RootCAs:    p.roots,
		MinVersion: tls.VersionTLS12,
	}
}
