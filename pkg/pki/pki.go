// Package pki implements the certificate authority and certificate
// issuance for a cluster. Keys are RSA, certificates are plain x509
// with role specific subject alternative names, nothing exotic. The
// authority's private key only ever lives in memory during one run, it
// is the caller's job to encrypt and persist it.
package pki

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"time"

	"github.com/pkg/errors"
)

const keySize = 2048

var (
	// ErrKeyGeneration is returned when generating an asymmetric key
	// pair fails
	ErrKeyGeneration = errors.New("key generation failed")
	// ErrInvalidSubject is returned when a server certificate is
	// requested without any subject alternative names
	ErrInvalidSubject = errors.New("no subject alternative names for server certificate")
	// ErrCASignature is returned when signing a certificate with the
	// authority key fails
	ErrCASignature = errors.New("certificate signing failed")
)

const (
	certBlockType = "CERTIFICATE"
	keyBlockType  = "RSA PRIVATE KEY"
	csrBlockType  = "CERTIFICATE REQUEST"
)

// PrivateKey wraps an RSA key with PEM serialization
type PrivateKey struct {
	key *rsa.PrivateKey
}

// Bytes returns the PKCS#1 PEM encoding of the key. This is the exact
// byte sequence protected by envelope encryption; the round trip must
// reproduce it bit for bit.
func (k *PrivateKey) Bytes() []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  keyBlockType,
		Bytes: x509.MarshalPKCS1PrivateKey(k.key),
	})
}

// Signer exposes the underlying crypto signer
func (k *PrivateKey) Signer() *rsa.PrivateKey {
	return k.key
}

// ParsePrivateKey reads a PKCS#1 PEM encoded RSA key
func ParsePrivateKey(data []byte) (*PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != keyBlockType {
		return nil, errors.New("data does not contain a PEM encoded RSA private key")
	}

	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse RSA private key")
	}

	return &PrivateKey{key: key}, nil
}

func generateKey() (*PrivateKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, keySize)
	if err != nil {
		return nil, errors.Wrap(ErrKeyGeneration, err.Error())
	}
	return &PrivateKey{key: key}, nil
}

// Certificate is an issued x509 certificate with its PEM encoding
type Certificate struct {
	cert *x509.Certificate
}

// Bytes returns the PEM encoding of the certificate
func (c *Certificate) Bytes() []byte {
	return pem.EncodeToMemory(&pem.Block{
		Type:  certBlockType,
		Bytes: c.cert.Raw,
	})
}

// X509 returns the parsed certificate
func (c *Certificate) X509() *x509.Certificate {
	return c.cert
}

// Verify checks the certificate chains to the given authority
// certificate and nothing else.
func (c *Certificate) Verify(authority *Certificate) error {
	roots := x509.NewCertPool()
	roots.AddCert(authority.cert)

	_, err := c.cert.Verify(x509.VerifyOptions{
		Roots:     roots,
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	return err
}

// ParseCertificate reads a PEM encoded certificate
func ParseCertificate(data []byte) (*Certificate, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != certBlockType {
		return nil, errors.New("data does not contain a PEM encoded certificate")
	}

	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse certificate")
	}

	return &Certificate{cert: cert}, nil
}

func serialNumber() (*big.Int, error) {
	limit := new(big.Int).Lsh(big.NewInt(1), 128)
	return rand.Int(rand.Reader, limit)
}

func template(commonName string, dnsNames []string, ips []net.IP, notBefore time.Time, validity time.Duration) (*x509.Certificate, error) {
	serial, err := serialNumber()
	if err != nil {
		return nil, errors.Wrap(ErrKeyGeneration, err.Error())
	}

	return &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName: commonName,
		},
		DNSNames:              dnsNames,
		IPAddresses:           ips,
		NotBefore:             notBefore,
		NotAfter:              notBefore.Add(validity),
		BasicConstraintsValid: true,
	}, nil
}
