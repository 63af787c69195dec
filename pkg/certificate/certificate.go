package certificate

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"time"
)

const (
	// DefaultKeyBits is the RSA modulus size of generated keys.
	DefaultKeyBits = 2048
	// DefaultValidity is how long generated certificates are valid.
	DefaultValidity = 3650 * 24 * time.Hour
)

// ErrWeakKey is returned when Options asks for an RSA key below 2048 bits.
var ErrWeakKey = errors.New("rsa keys must be at least 2048 bits")

// ClientCertificate is a data plane identity: a self-signed certificate
// and the key pair it was issued over, PEM encoded.
type ClientCertificate struct {
	CertificatePEM []byte
	PrivateKeyPEM  []byte
	PublicKeyPEM   []byte
}

// Options tunes Generate. The zero value is usable.
type Options struct {
	Bits     int
	Validity time.Duration
	Subject  *pkix.Name
}

// DefaultSubject is the subject of generated certificates.
func DefaultSubject() pkix.Name {
	return pkix.Name{
		Country:            []string{"US"},
		Province:           []string{"State"},
		Locality:           []string{"Toronto"},
		Organization:       []string{"Kong"},
		OrganizationalUnit: []string{"Gateway"},
		CommonName:         "Kong",
	}
}

// Generate creates a fresh RSA key pair and a self-signed client
// certificate over it. Every call draws new key material.
func Generate(opts Options) (*ClientCertificate, error) {
	if opts.Bits == 0 {
		opts.Bits = DefaultKeyBits
	}
	if opts.Bits < DefaultKeyBits {
		return nil, fmt.Errorf("%w: got %d", ErrWeakKey, opts.Bits)
	}
	if opts.Validity <= 0 {
		opts.Validity = DefaultValidity
	}
	subject := DefaultSubject()
	if opts.Subject != nil {
		subject = *opts.Subject
	}

	key, err := rsa.GenerateKey(rand.Reader, opts.Bits)
	if err != nil {
		return nil, fmt.Errorf("generating private key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("generating serial number: %w", err)
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               subject,
		NotBefore:             now.Add(-time.Minute),
		NotAfter:              now.Add(opts.Validity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("creating certificate: %w", err)
	}
	privateDER, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("encoding private key: %w", err)
	}
	publicDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("encoding public key: %w", err)
	}

	return &ClientCertificate{
		CertificatePEM: pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		PrivateKeyPEM:  pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privateDER}),
		PublicKeyPEM:   pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: publicDER}),
	}, nil
}
