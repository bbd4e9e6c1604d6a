// Package admin manages administrator identities of a cluster: key
// and signing request creation, signing by the cluster authority, and
// kubeconfig installation. Administrator certificates carry client
// authentication only; access to the cluster's private keys is gated
// by decrypt permission on the customer master key.
package admin

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/kawsproject/kaws/pkg/cluster"
	"github.com/kawsproject/kaws/pkg/pki"
	"github.com/kawsproject/kaws/pkg/secrets"
)

// Manager performs administrator operations against one repository
type Manager struct {
	repo      *cluster.Repository
	encryptor *secrets.Encryptor
}

// NewManager returns a manager using the given repository and
// encryptor.
func NewManager(repo *cluster.Repository, encryptor *secrets.Encryptor) *Manager {
	return &Manager{
		repo:      repo,
		encryptor: encryptor,
	}
}

// Create generates a private key and certificate signing request for a
// new administrator. The key is envelope encrypted before it touches
// disk; the CSR travels through the repository to an existing
// administrator for signing.
func (m *Manager) Create(ctx context.Context, clusterName, name string) error {
	commonName := fmt.Sprintf("%s-%s", name, clusterName)

	csr, key, err := pki.GenerateCSR(commonName)
	if err != nil {
		return errors.Wrapf(err, "failed to create signing request for %q", name)
	}

	secret, err := m.encryptor.Wrap(ctx, key.Bytes())
	if err != nil {
		return errors.Wrapf(err, "failed to encrypt key of %q", name)
	}
	encoded, err := secret.Encode()
	if err != nil {
		return err
	}

	if err := m.repo.MkPKIDir(clusterName); err != nil {
		return err
	}
	if err := cluster.WriteFileAtomic(m.repo.KeyPath(clusterName, name), encoded, 0600); err != nil {
		return err
	}
	if err := cluster.WriteFileAtomic(m.repo.CSRPath(clusterName, name), csr, 0644); err != nil {
		return err
	}

	log.Info().Str("cluster", clusterName).Str("admin", name).Msg("signing request created")
	return nil
}

// Sign issues a client certificate for a pending signing request. The
// caller must hold decrypt permission on the master key to unwrap the
// authority's private key.
func (m *Manager) Sign(ctx context.Context, clusterName, name string) error {
	authority, err := m.loadAuthority(ctx, clusterName)
	if err != nil {
		return err
	}

	csr, err := os.ReadFile(m.repo.CSRPath(clusterName, name))
	if err != nil {
		return errors.Wrapf(err, "failed to read signing request of %q", name)
	}

	cert, err := authority.SignCSR(csr, 0)
	if err != nil {
		return errors.Wrapf(err, "failed to sign request of %q", name)
	}

	if err := cluster.WriteFileAtomic(m.repo.CertPath(clusterName, name), cert.Bytes(), 0644); err != nil {
		return err
	}

	log.Info().Str("cluster", clusterName).Str("admin", name).Msg("client certificate issued")
	return nil
}

// Install writes a kubeconfig for an administrator with the cluster
// CA, client certificate and decrypted client key embedded.
func (m *Manager) Install(ctx context.Context, clusterName, name, domain, path string) error {
	caCert, err := os.ReadFile(m.repo.CertPath(clusterName, "ca"))
	if err != nil {
		return errors.Wrap(err, "failed to read CA certificate")
	}
	clientCert, err := os.ReadFile(m.repo.CertPath(clusterName, name))
	if err != nil {
		return errors.Wrapf(err, "failed to read certificate of %q", name)
	}

	keyData, err := os.ReadFile(m.repo.KeyPath(clusterName, name))
	if err != nil {
		return errors.Wrapf(err, "failed to read encrypted key of %q", name)
	}
	secret, err := secrets.DecodeSecret(keyData)
	if err != nil {
		return err
	}
	clientKey, err := m.encryptor.Unwrap(ctx, secret)
	if err != nil {
		return errors.Wrapf(err, "failed to decrypt key of %q", name)
	}

	user := fmt.Sprintf("%s-%s", name, clusterName)
	config := kubeconfig{
		APIVersion:     "v1",
		Kind:           "Config",
		CurrentContext: clusterName,
		Clusters: []namedCluster{{
			Name: clusterName,
			Cluster: clusterEntry{
				Server:                   fmt.Sprintf("https://kubernetes.%s", domain),
				CertificateAuthorityData: base64.StdEncoding.EncodeToString(caCert),
			},
		}},
		Users: []namedUser{{
			Name: user,
			User: userEntry{
				ClientCertificateData: base64.StdEncoding.EncodeToString(clientCert),
				ClientKeyData:         base64.StdEncoding.EncodeToString(clientKey),
			},
		}},
		Contexts: []namedContext{{
			Name: clusterName,
			Context: contextEntry{
				Cluster: clusterName,
				User:    user,
			},
		}},
	}

	data, err := config.encode()
	if err != nil {
		return err
	}

	if err := cluster.WriteFileAtomic(path, data, 0600); err != nil {
		return err
	}

	log.Info().Str("cluster", clusterName).Str("admin", name).Str("path", path).Msg("kubeconfig installed")
	return nil
}

func (m *Manager) loadAuthority(ctx context.Context, clusterName string) (*pki.Authority, error) {
	caCert, err := os.ReadFile(m.repo.CertPath(clusterName, "ca"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read CA certificate")
	}

	keyData, err := os.ReadFile(m.repo.KeyPath(clusterName, "ca"))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read encrypted CA key")
	}
	secret, err := secrets.DecodeSecret(keyData)
	if err != nil {
		return nil, err
	}

	caKey, err := m.encryptor.Unwrap(ctx, secret)
	if err != nil {
		return nil, errors.Wrap(err, "failed to decrypt CA key")
	}

	return pki.LoadAuthority(caCert, caKey)
}
