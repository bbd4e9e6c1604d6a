package cluster

import (
	"net"

	"github.com/blang/semver"
	"github.com/pkg/errors"
)

var (
	// ErrInvalidSpec is returned when a cluster spec misses required
	// parameters or is internally inconsistent
	ErrInvalidSpec = errors.New("invalid cluster spec")
	// ErrAlreadyInitialized is returned when an init run targets a
	// cluster directory that already holds a certificate authority
	ErrAlreadyInitialized = errors.New("cluster already initialized")
)

// Spec holds every parameter needed to bootstrap a cluster. It is
// written once by `kaws cluster init` and never mutated afterwards;
// re-initialization means a fresh Spec.
type Spec struct {
	Cluster           string   `yaml:"cluster"`
	AccountID         string   `yaml:"account_id"`
	Region            string   `yaml:"region"`
	Domain            string   `yaml:"domain"`
	ZoneID            string   `yaml:"zone_id"`
	AMI               string   `yaml:"coreos_ami"`
	InstanceSize      string   `yaml:"instance_size"`
	EtcdZone          string   `yaml:"etcd_availability_zone"`
	EtcdIPs           []string `yaml:"etcd_ips"`
	MastersMin        int      `yaml:"masters_min_size"`
	MastersMax        int      `yaml:"masters_max_size"`
	NodesMin          int      `yaml:"nodes_min_size"`
	NodesMax          int      `yaml:"nodes_max_size"`
	IAMUsers          []string `yaml:"iam_users"`
	KMSKeyID          string   `yaml:"kms_key_id"`
	SSHKey            string   `yaml:"ssh_key"`
	KubernetesVersion string   `yaml:"kubernetes_version"`
}

// Validate checks that all required parameters are present and
// internally consistent. All failures wrap ErrInvalidSpec.
func (s *Spec) Validate() error {
	required := map[string]string{
		"cluster":            s.Cluster,
		"account-id":         s.AccountID,
		"region":             s.Region,
		"domain":             s.Domain,
		"zone-id":            s.ZoneID,
		"ami":                s.AMI,
		"instance-size":      s.InstanceSize,
		"availability-zone":  s.EtcdZone,
		"kms-key":            s.KMSKeyID,
		"ssh-key":            s.SSHKey,
		"kubernetes-version": s.KubernetesVersion,
	}

	for name, value := range required {
		if value == "" {
			return errors.Wrapf(ErrInvalidSpec, "%s is required", name)
		}
	}

	if _, err := semver.ParseTolerant(s.KubernetesVersion); err != nil {
		return errors.Wrapf(ErrInvalidSpec, "kubernetes-version %q is not a valid version", s.KubernetesVersion)
	}

	if len(s.EtcdIPs) != len(EtcdRoles()) {
		return errors.Wrapf(ErrInvalidSpec, "expected %d etcd addresses, got %d", len(EtcdRoles()), len(s.EtcdIPs))
	}
	for _, ip := range s.EtcdIPs {
		if net.ParseIP(ip) == nil {
			return errors.Wrapf(ErrInvalidSpec, "etcd address %q is not a valid IP", ip)
		}
	}

	if s.MastersMin < 1 || s.NodesMin < 1 {
		return errors.Wrap(ErrInvalidSpec, "autoscaling minimums must be at least 1")
	}
	if s.MastersMin > s.MastersMax {
		return errors.Wrapf(ErrInvalidSpec, "masters minimum %d exceeds maximum %d", s.MastersMin, s.MastersMax)
	}
	if s.NodesMin > s.NodesMax {
		return errors.Wrapf(ErrInvalidSpec, "nodes minimum %d exceeds maximum %d", s.NodesMin, s.NodesMax)
	}

	return nil
}

// Peer is the static network identity of one coordination node, known
// before any instance exists. The fixed peer set is what lets etcd
// bootstrap without a discovery protocol.
type Peer struct {
	Role Role
	Name string
	IP   string
}

// EtcdPeers returns the static peer set of the coordination service in
// cluster order.
func (s *Spec) EtcdPeers() []Peer {
	roles := EtcdRoles()
	peers := make([]Peer, 0, len(roles))
	for i, role := range roles {
		ip := ""
		if i < len(s.EtcdIPs) {
			ip = s.EtcdIPs[i]
		}
		peers = append(peers, Peer{
			Role: role,
			Name: role.DNSName(s.Domain),
			IP:   ip,
		})
	}
	return peers
}

// APIServerURL returns the public endpoint of the Kubernetes API
func (s *Spec) APIServerURL() string {
	return "https://" + RoleMaster.DNSName(s.Domain)
}
