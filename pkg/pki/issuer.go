package pki

import (
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"net"
	"time"

	"github.com/pkg/errors"
)

// DefaultLeafValidity is the validity window of issued certificates
const DefaultLeafValidity = 365 * 24 * time.Hour

// Usage selects the extended key usage of an issued certificate
type Usage int

// Possible certificate usages
const (
	// UsageServer authenticates a server to its clients
	UsageServer Usage = iota
	// UsageClient authenticates a client to a server, used for
	// administrator identities
	UsageClient
	// UsageServerClient covers both directions, needed by etcd peers
	// and kubelets that serve and dial with the same certificate
	UsageServerClient
)

func (u Usage) extKeyUsage() []x509.ExtKeyUsage {
	switch u {
	case UsageServer:
		return []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth}
	case UsageClient:
		return []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}
	case UsageServerClient:
		return []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth}
	}
	return nil
}

// Request describes one certificate to issue
type Request struct {
	CommonName string
	DNSNames   []string
	IPs        []net.IP
	Usage      Usage
	Validity   time.Duration
}

// Issue generates a key pair and a certificate signed by the
// authority. Server certificates must name at least one DNS name or
// address: the static bootstrap depends on peers validating each
// other's identity before any discovery mechanism exists.
func (a *Authority) Issue(req Request) (*Certificate, *PrivateKey, error) {
	if req.Usage != UsageClient && len(req.DNSNames) == 0 && len(req.IPs) == 0 {
		return nil, nil, errors.Wrapf(ErrInvalidSubject, "certificate %q", req.CommonName)
	}

	validity := req.Validity
	if validity == 0 {
		validity = DefaultLeafValidity
	}

	key, err := generateKey()
	if err != nil {
		return nil, nil, err
	}

	tmpl, err := template(req.CommonName, req.DNSNames, req.IPs, time.Now().Add(-5*time.Minute), validity)
	if err != nil {
		return nil, nil, err
	}
	tmpl.KeyUsage = x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature
	tmpl.ExtKeyUsage = req.Usage.extKeyUsage()

	der, err := x509.CreateCertificate(rand.Reader, tmpl, a.cert.cert, key.key.Public(), a.key.key)
	if err != nil {
		return nil, nil, errors.Wrapf(ErrCASignature, "certificate %q: %s", req.CommonName, err)
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, nil, errors.Wrapf(ErrCASignature, "certificate %q: %s", req.CommonName, err)
	}

	return &Certificate{cert: cert}, key, nil
}

// GenerateCSR creates a key pair and a certificate signing request for
// an administrator identity. The CSR travels through the repository to
// whoever holds decrypt permission on the cluster's master key.
func GenerateCSR(commonName string) ([]byte, *PrivateKey, error) {
	key, err := generateKey()
	if err != nil {
		return nil, nil, err
	}

	der, err := x509.CreateCertificateRequest(rand.Reader, &x509.CertificateRequest{
		Subject: pkix.Name{CommonName: commonName},
	}, key.key)
	if err != nil {
		return nil, nil, errors.Wrap(ErrKeyGeneration, err.Error())
	}

	csr := pem.EncodeToMemory(&pem.Block{
		Type:  csrBlockType,
		Bytes: der,
	})

	return csr, key, nil
}

// SignCSR issues a client authentication certificate for a pending
// certificate signing request.
func (a *Authority) SignCSR(csrPEM []byte, validity time.Duration) (*Certificate, error) {
	block, _ := pem.Decode(csrPEM)
	if block == nil || block.Type != csrBlockType {
		return nil, errors.New("data does not contain a PEM encoded certificate request")
	}

	csr, err := x509.ParseCertificateRequest(block.Bytes)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse certificate request")
	}
	if err := csr.CheckSignature(); err != nil {
		return nil, errors.Wrap(err, "certificate request signature does not verify")
	}

	if validity == 0 {
		validity = DefaultLeafValidity
	}

	tmpl, err := template(csr.Subject.CommonName, nil, nil, time.Now().Add(-5*time.Minute), validity)
	if err != nil {
		return nil, err
	}
	tmpl.KeyUsage = x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature
	tmpl.ExtKeyUsage = UsageClient.extKeyUsage()

	der, err := x509.CreateCertificate(rand.Reader, tmpl, a.cert.cert, csr.PublicKey, a.key.key)
	if err != nil {
		return nil, errors.Wrapf(ErrCASignature, "certificate %q: %s", csr.Subject.CommonName, err)
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, errors.Wrapf(ErrCASignature, "certificate %q: %s", csr.Subject.CommonName, err)
	}

	return &Certificate{cert: cert}, nil
}
