package pki

import (
	"crypto/rand"
	"crypto/x509"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

// AuthorityValidity is the validity window of the root certificate.
// The root outlives every leaf, rotation before expiry is a manual
// operation.
const AuthorityValidity = 10 * 365 * 24 * time.Hour

// Authority is the cluster's trust root: a key pair and a self signed
// certificate. It is owned by a single orchestration run and must not
// be retained after its key is encrypted and persisted.
type Authority struct {
	cert *Certificate
	key  *PrivateKey
}

// CreateAuthority generates a fresh key pair and self signed root
// certificate for a cluster.
func CreateAuthority(cluster string) (*Authority, error) {
	key, err := generateKey()
	if err != nil {
		return nil, err
	}

	tmpl, err := template(fmt.Sprintf("kaws-%s-ca", cluster), nil, nil, time.Now().Add(-5*time.Minute), AuthorityValidity)
	if err != nil {
		return nil, err
	}
	tmpl.IsCA = true
	tmpl.MaxPathLenZero = true
	tmpl.KeyUsage = x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, key.key.Public(), key.key)
	if err != nil {
		return nil, errors.Wrap(ErrCASignature, err.Error())
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, errors.Wrap(ErrCASignature, err.Error())
	}

	return &Authority{
		cert: &Certificate{cert: cert},
		key:  key,
	}, nil
}

// LoadAuthority reconstructs an authority from its PEM encoded
// certificate and decrypted private key.
func LoadAuthority(certPEM, keyPEM []byte) (*Authority, error) {
	cert, err := ParseCertificate(certPEM)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load authority certificate")
	}

	key, err := ParsePrivateKey(keyPEM)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load authority key")
	}

	return &Authority{cert: cert, key: key}, nil
}

// Certificate returns the authority's certificate
func (a *Authority) Certificate() *Certificate {
	return a.cert
}

// Key returns the authority's private key
func (a *Authority) Key() *PrivateKey {
	return a.key
}
