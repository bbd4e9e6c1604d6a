package cluster

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	specFile  = "cluster.yml"
	varsFile  = "terraform.tfvars"
	pkiDir    = "pki"
	caName    = "ca"
	encSuffix = "-key.pem.enc"
)

// Repository is the on-disk layout of a kaws repository: a `clusters`
// directory with one subdirectory per cluster holding the spec file,
// the terraform variable file and the PKI material.
type Repository struct {
	root string
}

// NewRepository returns a repository rooted at the given directory
func NewRepository(root string) *Repository {
	return &Repository{root: root}
}

// Dir returns the directory of a cluster
func (r *Repository) Dir(cluster string) string {
	return filepath.Join(r.root, "clusters", cluster)
}

// PKIDir returns the PKI directory of a cluster
func (r *Repository) PKIDir(cluster string) string {
	return filepath.Join(r.Dir(cluster), pkiDir)
}

// MkPKIDir creates the PKI directory of a cluster
func (r *Repository) MkPKIDir(cluster string) error {
	return errors.Wrap(os.MkdirAll(r.PKIDir(cluster), 0700), "failed to create PKI directory")
}

// SpecPath returns the path of a cluster's spec file
func (r *Repository) SpecPath(cluster string) string {
	return filepath.Join(r.Dir(cluster), specFile)
}

// VarsPath returns the path of a cluster's terraform variable file
func (r *Repository) VarsPath(cluster string) string {
	return filepath.Join(r.Dir(cluster), varsFile)
}

// CertPath returns the path of a certificate by name. Names are role
// strings or administrator identities, plus "ca" for the authority.
func (r *Repository) CertPath(cluster, name string) string {
	return filepath.Join(r.PKIDir(cluster), name+".pem")
}

// KeyPath returns the path of an encrypted private key by name
func (r *Repository) KeyPath(cluster, name string) string {
	return filepath.Join(r.PKIDir(cluster), name+encSuffix)
}

// CSRPath returns the path of an administrator certificate signing request
func (r *Repository) CSRPath(cluster, name string) string {
	return filepath.Join(r.Dir(cluster), name+".csr")
}

// Initialized reports whether the cluster already has a certificate
// authority on disk. An init run against an initialized cluster must
// fail instead of silently replacing a production CA.
func (r *Repository) Initialized(cluster string) bool {
	_, err := os.Stat(r.CertPath(cluster, caName))
	return err == nil
}

// EncryptedKeys lists the encrypted private key files of a cluster in
// stable order. Used by reencrypt to rotate every key to a new master
// key.
func (r *Repository) EncryptedKeys(cluster string) ([]string, error) {
	entries, err := os.ReadDir(r.PKIDir(cluster))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list PKI directory of cluster %q", cluster)
	}

	var paths []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), encSuffix) {
			paths = append(paths, filepath.Join(r.PKIDir(cluster), entry.Name()))
		}
	}
	sort.Strings(paths)
	return paths, nil
}

// SaveSpec persists the cluster spec file
func (r *Repository) SaveSpec(spec *Spec) error {
	data, err := yaml.Marshal(spec)
	if err != nil {
		return errors.Wrap(err, "failed to encode cluster spec")
	}

	if err := os.MkdirAll(r.Dir(spec.Cluster), 0755); err != nil {
		return errors.Wrap(err, "failed to create cluster directory")
	}

	return WriteFileAtomic(r.SpecPath(spec.Cluster), data, 0644)
}

// LoadSpec reads the spec file of a cluster
func (r *Repository) LoadSpec(cluster string) (*Spec, error) {
	data, err := os.ReadFile(r.SpecPath(cluster))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read spec of cluster %q", cluster)
	}

	var spec Spec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, errors.Wrapf(err, "failed to decode spec of cluster %q", cluster)
	}

	return &spec, nil
}

// SaveVars renders and persists the terraform variable file consumed
// by the provisioning layer.
func (r *Repository) SaveVars(spec *Spec) error {
	var b strings.Builder

	set := func(key, value string) {
		fmt.Fprintf(&b, "%s = %q\n", key, value)
	}
	setInt := func(key string, value int) {
		fmt.Fprintf(&b, "%s = %d\n", key, value)
	}

	set("cluster", spec.Cluster)
	set("coreos_ami", spec.AMI)
	set("domain", spec.Domain)
	for _, role := range EtcdRoles() {
		// fresh clusters always bootstrap etcd in the "new" state
		set(fmt.Sprintf("%s_initial_cluster_state", role), "new")
	}
	set("etcd_availability_zone", spec.EtcdZone)
	set("instance_size", spec.InstanceSize)
	setInt("masters_max_size", spec.MastersMax)
	setInt("masters_min_size", spec.MastersMin)
	setInt("nodes_max_size", spec.NodesMax)
	setInt("nodes_min_size", spec.NodesMin)
	set("region", spec.Region)
	set("ssh_key", spec.SSHKey)
	set("version", spec.KubernetesVersion)
	set("zone_id", spec.ZoneID)

	return WriteFileAtomic(r.VarsPath(spec.Cluster), []byte(b.String()), 0644)
}

// WriteFileAtomic writes data to a temporary file next to the target
// path and renames it into place so a crash never leaves a half
// written artifact behind.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return errors.Wrap(err, "failed to create temporary file")
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "failed to write %s", path)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "failed to set mode of %s", path)
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "failed to close %s", path)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrapf(err, "failed to place %s", path)
	}

	return nil
}
