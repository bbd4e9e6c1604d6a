package pki

import (
	"crypto/x509"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAuthority(t *testing.T) {
	authority, err := CreateAuthority("staging")
	require.NoError(t, err)

	cert := authority.Certificate().X509()
	assert.Contains(t, cert.Subject.CommonName, "staging")
	assert.True(t, cert.IsCA)
	assert.True(t, cert.BasicConstraintsValid)
	assert.NotZero(t, cert.KeyUsage&x509.KeyUsageCertSign)

	// self signed root verifies against itself
	require.NoError(t, authority.Certificate().Verify(authority.Certificate()))
}

func TestIssueServerCertificate(t *testing.T) {
	authority, err := CreateAuthority("staging")
	require.NoError(t, err)

	cert, key, err := authority.Issue(Request{
		CommonName: "etcd_01-staging",
		DNSNames:   []string{"etcd-01.example.com"},
		IPs:        []net.IP{net.IPv4(10, 0, 1, 4)},
		Usage:      UsageServerClient,
	})
	require.NoError(t, err)
	require.NotNil(t, key)

	require.NoError(t, cert.Verify(authority.Certificate()))

	x := cert.X509()
	assert.Equal(t, "etcd_01-staging", x.Subject.CommonName)
	assert.Contains(t, x.DNSNames, "etcd-01.example.com")
	require.Len(t, x.IPAddresses, 1)
	assert.True(t, x.IPAddresses[0].Equal(net.IPv4(10, 0, 1, 4)))
	assert.Contains(t, x.ExtKeyUsage, x509.ExtKeyUsageServerAuth)
	assert.Contains(t, x.ExtKeyUsage, x509.ExtKeyUsageClientAuth)
}

func TestIssueFailsAgainstOtherAuthority(t *testing.T) {
	authority, err := CreateAuthority("staging")
	require.NoError(t, err)
	other, err := CreateAuthority("production")
	require.NoError(t, err)

	cert, _, err := authority.Issue(Request{
		CommonName: "node-staging",
		DNSNames:   []string{"node.example.com"},
		Usage:      UsageServer,
	})
	require.NoError(t, err)

	require.NoError(t, cert.Verify(authority.Certificate()))
	assert.Error(t, cert.Verify(other.Certificate()))
}

func TestIssueRequiresSubjectForServers(t *testing.T) {
	authority, err := CreateAuthority("staging")
	require.NoError(t, err)

	_, _, err = authority.Issue(Request{
		CommonName: "node-staging",
		Usage:      UsageServer,
	})
	require.ErrorIs(t, err, ErrInvalidSubject)
}

func TestIssueClientCertificate(t *testing.T) {
	authority, err := CreateAuthority("staging")
	require.NoError(t, err)

	cert, _, err := authority.Issue(Request{
		CommonName: "alice-staging",
		Usage:      UsageClient,
	})
	require.NoError(t, err)

	x := cert.X509()
	assert.Empty(t, x.DNSNames)
	assert.Equal(t, []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}, x.ExtKeyUsage)
}

func TestValidityWindow(t *testing.T) {
	authority, err := CreateAuthority("staging")
	require.NoError(t, err)

	validity := 30 * 24 * time.Hour
	cert, _, err := authority.Issue(Request{
		CommonName: "node-staging",
		DNSNames:   []string{"node.example.com"},
		Usage:      UsageServer,
		Validity:   validity,
	})
	require.NoError(t, err)

	x := cert.X509()
	assert.Equal(t, validity, x.NotAfter.Sub(x.NotBefore))
	assert.True(t, x.NotAfter.After(x.NotBefore))
}

func TestPrivateKeyRoundTrip(t *testing.T) {
	authority, err := CreateAuthority("staging")
	require.NoError(t, err)

	_, key, err := authority.Issue(Request{
		CommonName: "node-staging",
		DNSNames:   []string{"node.example.com"},
		Usage:      UsageServer,
	})
	require.NoError(t, err)

	parsed, err := ParsePrivateKey(key.Bytes())
	require.NoError(t, err)
	assert.Equal(t, key.Bytes(), parsed.Bytes())
}

func TestLoadAuthority(t *testing.T) {
	authority, err := CreateAuthority("staging")
	require.NoError(t, err)

	loaded, err := LoadAuthority(authority.Certificate().Bytes(), authority.Key().Bytes())
	require.NoError(t, err)

	cert, _, err := loaded.Issue(Request{
		CommonName: "node-staging",
		DNSNames:   []string{"node.example.com"},
		Usage:      UsageServer,
	})
	require.NoError(t, err)
	require.NoError(t, cert.Verify(authority.Certificate()))
}

func TestCSRSigning(t *testing.T) {
	authority, err := CreateAuthority("staging")
	require.NoError(t, err)

	csr, key, err := GenerateCSR("alice-staging")
	require.NoError(t, err)
	require.NotNil(t, key)

	cert, err := authority.SignCSR(csr, 0)
	require.NoError(t, err)
	require.NoError(t, cert.Verify(authority.Certificate()))

	x := cert.X509()
	assert.Equal(t, "alice-staging", x.Subject.CommonName)
	assert.Equal(t, []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}, x.ExtKeyUsage)
}

func TestSignCSRRejectsGarbage(t *testing.T) {
	authority, err := CreateAuthority("staging")
	require.NoError(t, err)

	_, err = authority.SignCSR([]byte("not a csr"), 0)
	require.Error(t, err)
}
