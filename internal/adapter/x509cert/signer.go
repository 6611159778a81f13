// Package x509cert implements the certificate signing port with an
// X.509 issuing CA using ECDSA keys.
package x509cert

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"os"
	"sync"
	"time"

	"github.com/entgrid/entitled/internal/config"
	"github.com/entgrid/entitled/internal/domain/pool"
	"github.com/entgrid/entitled/internal/domain/product"
)

// Signer mints entitlement certificates signed by an issuing CA. The CA
// material can be swapped at runtime via Reload, so rotation does not
// require a restart; in-flight Sign calls finish under the old CA.
type Signer struct {
	mu       sync.RWMutex
	caCert   *x509.Certificate
	caKey    *ecdsa.PrivateKey
	certPath string
	keyPath  string
	validity time.Duration
	now      func() time.Time // for testing
}

// New builds a Signer from config: the CA is loaded from the configured
// PEM files, or generated ephemerally when no paths are set.
func New(cfg config.Signer) (*Signer, error) {
	if cfg.CACertPath == "" {
		return NewEphemeral(cfg.Validity)
	}
	return Load(cfg.CACertPath, cfg.CAKeyPath, cfg.Validity)
}

// Load reads a PEM-encoded CA certificate and ECDSA key from disk.
func Load(certPath, keyPath string, validity time.Duration) (*Signer, error) {
	caCert, caKey, err := readCA(certPath, keyPath)
	if err != nil {
		return nil, err
	}
	return &Signer{
		caCert:   caCert,
		caKey:    caKey,
		certPath: certPath,
		keyPath:  keyPath,
		validity: validity,
		now:      time.Now,
	}, nil
}

// Reload re-reads the CA files and swaps them in atomically. A read or
// parse failure keeps the current CA. No-op for an ephemeral CA.
func (s *Signer) Reload() error {
	if s.certPath == "" {
		return nil
	}
	caCert, caKey, err := readCA(s.certPath, s.keyPath)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.caCert = caCert
	s.caKey = caKey
	s.mu.Unlock()
	return nil
}

func readCA(certPath, keyPath string) (*x509.Certificate, *ecdsa.PrivateKey, error) {
	certPEM, err := os.ReadFile(certPath) //nolint:gosec // G304: operator-supplied path
	if err != nil {
		return nil, nil, fmt.Errorf("read ca cert: %w", err)
	}
	keyPEM, err := os.ReadFile(keyPath) //nolint:gosec // G304: operator-supplied path
	if err != nil {
		return nil, nil, fmt.Errorf("read ca key: %w", err)
	}

	certBlock, _ := pem.Decode(certPEM)
	if certBlock == nil {
		return nil, nil, errors.New("ca cert: no PEM block")
	}
	caCert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, nil, fmt.Errorf("parse ca cert: %w", err)
	}

	keyBlock, _ := pem.Decode(keyPEM)
	if keyBlock == nil {
		return nil, nil, errors.New("ca key: no PEM block")
	}
	caKey, err := x509.ParseECPrivateKey(keyBlock.Bytes)
	if err != nil {
		return nil, nil, fmt.Errorf("parse ca key: %w", err)
	}
	return caCert, caKey, nil
}

// NewEphemeral generates a throwaway CA. Suitable for development and
// tests only; certificates do not survive a restart's trust chain.
func NewEphemeral(validity time.Duration) (*Signer, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ca key: %w", err)
	}

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "entitled ephemeral ca"},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(10 * 365 * 24 * time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign,
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("self-sign ca: %w", err)
	}
	caCert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parse ca: %w", err)
	}

	return &Signer{caCert: caCert, caKey: key, validity: validity, now: time.Now}, nil
}

// Sign mints certificate material for one entitlement of the given product.
// The serial comes from the store's sequence so re-runs overwrite with a
// fresh serial rather than colliding.
func (s *Signer) Sign(_ context.Context, p *product.Product, e *pool.Entitlement, serial int64) (*pool.Certificate, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate entitlement key: %w", err)
	}

	s.mu.RLock()
	caCert, caKey := s.caCert, s.caKey
	s.mu.RUnlock()

	notBefore := s.now().Add(-time.Minute)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(serial),
		Subject: pkix.Name{
			CommonName:         e.ID,
			Organization:       []string{p.ID},
			OrganizationalUnit: []string{p.Name},
		},
		NotBefore:   notBefore,
		NotAfter:    notBefore.Add(s.validity),
		KeyUsage:    x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, caCert, &key.PublicKey, caKey)
	if err != nil {
		return nil, fmt.Errorf("sign entitlement %s: %w", e.ID, err)
	}

	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("marshal entitlement key: %w", err)
	}

	return &pool.Certificate{
		Serial:    serial,
		Key:       pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}),
		Cert:      pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		UpdatedAt: s.now(),
	}, nil
}
