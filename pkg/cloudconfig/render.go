package cloudconfig

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/kawsproject/kaws/pkg/cluster"
)

const (
	sslDir = "/etc/kaws/ssl"

	etcdPeerPort   = 2380
	etcdClientPort = 2379
)

// Material is the credential set available for substitution. The
// renderer never sees plaintext keys: key material is embedded in its
// envelope encrypted form and decrypted on the instance by the agent,
// whose instance profile holds decrypt permission.
type Material struct {
	CACert        []byte
	Certs         map[cluster.Role][]byte
	EncryptedKeys map[cluster.Role][]byte
}

// Render produces the boot document of a role. The coordination node
// documents embed the full static peer list so no discovery protocol
// is needed at boot; master and node documents embed the peer client
// endpoints and the API server name.
func Render(role cluster.Role, spec *cluster.Spec, material *Material) ([]byte, error) {
	var doc *Document
	var err error

	switch role {
	case cluster.RoleBastion:
		doc = bastionDocument(spec)
	case cluster.RoleEtcd01, cluster.RoleEtcd02, cluster.RoleEtcd03:
		doc, err = etcdDocument(role, spec, material)
	case cluster.RoleMaster:
		doc, err = masterDocument(spec, material)
	case cluster.RoleNode:
		doc, err = nodeDocument(spec, material)
	default:
		return nil, errors.Wrapf(ErrMissingValue, "no document for role %q", role)
	}
	if err != nil {
		return nil, err
	}

	return doc.Encode()
}

// credentialFiles builds the write_files entries shared by every role
// that holds a certificate: the CA, the role certificate, and the
// envelope encrypted private key.
func credentialFiles(role cluster.Role, material *Material) ([]File, error) {
	if material == nil || len(material.CACert) == 0 {
		return nil, errors.Wrapf(ErrMissingValue, "CA certificate for role %q", role)
	}
	cert, ok := material.Certs[role]
	if !ok || len(cert) == 0 {
		return nil, errors.Wrapf(ErrMissingValue, "certificate for role %q", role)
	}
	key, ok := material.EncryptedKeys[role]
	if !ok || len(key) == 0 {
		return nil, errors.Wrapf(ErrMissingValue, "encrypted key for role %q", role)
	}

	return []File{
		{
			Path:        fmt.Sprintf("%s/ca.pem", sslDir),
			Permissions: "0644",
			Content:     string(material.CACert),
		},
		{
			Path:        fmt.Sprintf("%s/%s.pem", sslDir, role),
			Permissions: "0644",
			Content:     string(cert),
		},
		{
			Path:        fmt.Sprintf("%s/%s-key.pem.enc", sslDir, role),
			Permissions: "0600",
			Content:     string(key),
		},
	}, nil
}

// agentUnit decrypts the envelope encrypted key on first boot
func agentUnit(role cluster.Role) Unit {
	return Unit{
		Name:    "kaws-agent.service",
		Command: "start",
		Content: fmt.Sprintf(`[Unit]
Description=kaws credential agent
Before=etcd2.service kubelet.service

[Service]
Type=oneshot
RemainAfterExit=true
ExecStart=/opt/kaws/kaws-agent run --role %s
`, role),
	}
}

func initialCluster(peers []cluster.Peer) string {
	entries := make([]string, 0, len(peers))
	for _, peer := range peers {
		entries = append(entries, fmt.Sprintf("%s=https://%s:%d", peer.Role.DNSLabel(), peer.Name, etcdPeerPort))
	}
	return strings.Join(entries, ",")
}

func clientEndpoints(peers []cluster.Peer) string {
	entries := make([]string, 0, len(peers))
	for _, peer := range peers {
		entries = append(entries, fmt.Sprintf("https://%s:%d", peer.Name, etcdClientPort))
	}
	return strings.Join(entries, ",")
}

func bastionDocument(spec *cluster.Spec) *Document {
	return &Document{
		Hostname: cluster.RoleBastion.DNSName(spec.Domain),
		WriteFiles: []File{
			{
				Path:        "/etc/ssh/sshd_config",
				Permissions: "0600",
				Owner:       "root:root",
				Content: `UsePrivilegeSeparation sandbox
Subsystem sftp internal-sftp
PermitRootLogin no
AllowUsers core
PasswordAuthentication no
ChallengeResponseAuthentication no
`,
			},
		},
	}
}

func etcdDocument(role cluster.Role, spec *cluster.Spec, material *Material) (*Document, error) {
	files, err := credentialFiles(role, material)
	if err != nil {
		return nil, err
	}

	peers := spec.EtcdPeers()
	var self cluster.Peer
	for _, peer := range peers {
		if peer.Role == role {
			self = peer
		}
	}

	dropIn := fmt.Sprintf(`[Service]
Environment=ETCD_NAME=%s
Environment=ETCD_INITIAL_CLUSTER=%s
Environment=ETCD_INITIAL_CLUSTER_STATE=new
Environment=ETCD_INITIAL_ADVERTISE_PEER_URLS=https://%s:%d
Environment=ETCD_ADVERTISE_CLIENT_URLS=https://%s:%d
Environment=ETCD_LISTEN_PEER_URLS=https://0.0.0.0:%d
Environment=ETCD_LISTEN_CLIENT_URLS=https://0.0.0.0:%d
Environment=ETCD_CERT_FILE=%s/%s.pem
Environment=ETCD_KEY_FILE=%s/%s-key.pem
Environment=ETCD_PEER_CERT_FILE=%s/%s.pem
Environment=ETCD_PEER_KEY_FILE=%s/%s-key.pem
Environment=ETCD_TRUSTED_CA_FILE=%s/ca.pem
Environment=ETCD_PEER_TRUSTED_CA_FILE=%s/ca.pem
Environment=ETCD_PEER_CLIENT_CERT_AUTH=true
`,
		role.DNSLabel(),
		initialCluster(peers),
		self.Name, etcdPeerPort,
		self.Name, etcdClientPort,
		etcdPeerPort,
		etcdClientPort,
		sslDir, role, sslDir, role,
		sslDir, role, sslDir, role,
		sslDir, sslDir,
	)

	return &Document{
		Hostname:   self.Name,
		WriteFiles: files,
		CoreOS: &CoreOS{
			Units: []interface{}{
				agentUnit(role),
				VendorUnit{
					Name:    "etcd2.service",
					Command: "start",
					DropIns: []DropIn{
						{Name: "20-kaws.conf", Content: dropIn},
					},
				},
			},
		},
	}, nil
}

func masterDocument(spec *cluster.Spec, material *Material) (*Document, error) {
	files, err := credentialFiles(cluster.RoleMaster, material)
	if err != nil {
		return nil, err
	}

	apiserver := fmt.Sprintf(`[Unit]
Description=Kubernetes API Server
Requires=kaws-agent.service
After=kaws-agent.service

[Service]
ExecStart=/opt/kubernetes/%s/kube-apiserver \
  --etcd-servers=%s \
  --etcd-cafile=%s/ca.pem \
  --etcd-certfile=%s/master.pem \
  --etcd-keyfile=%s/master-key.pem \
  --tls-cert-file=%s/master.pem \
  --tls-private-key-file=%s/master-key.pem \
  --client-ca-file=%s/ca.pem \
  --service-account-key-file=%s/master-key.pem \
  --service-cluster-ip-range=10.3.0.0/24 \
  --secure-port=443 \
  --allow-privileged=true
Restart=always
RestartSec=10
`,
		spec.KubernetesVersion,
		clientEndpoints(spec.EtcdPeers()),
		sslDir, sslDir, sslDir, sslDir, sslDir, sslDir, sslDir,
	)

	return &Document{
		Hostname:   cluster.RoleMaster.DNSName(spec.Domain),
		WriteFiles: files,
		CoreOS: &CoreOS{
			Units: []interface{}{
				agentUnit(cluster.RoleMaster),
				Unit{
					Name:    "kube-apiserver.service",
					Command: "start",
					Content: apiserver,
				},
			},
		},
	}, nil
}

func nodeDocument(spec *cluster.Spec, material *Material) (*Document, error) {
	files, err := credentialFiles(cluster.RoleNode, material)
	if err != nil {
		return nil, err
	}

	kubelet := fmt.Sprintf(`[Unit]
Description=Kubernetes Kubelet
Requires=kaws-agent.service
After=kaws-agent.service

[Service]
ExecStart=/opt/kubernetes/%s/kubelet \
  --api-servers=%s \
  --tls-cert-file=%s/node.pem \
  --tls-private-key-file=%s/node-key.pem \
  --kubeconfig=/etc/kaws/kubeconfig \
  --register-node=true \
  --allow-privileged=true \
  --cluster-dns=10.3.0.10 \
  --cluster-domain=cluster.local
Restart=always
RestartSec=10
`,
		spec.KubernetesVersion,
		spec.APIServerURL(),
		sslDir, sslDir,
	)

	return &Document{
		Hostname:   cluster.RoleNode.DNSName(spec.Domain),
		WriteFiles: files,
		CoreOS: &CoreOS{
			Units: []interface{}{
				agentUnit(cluster.RoleNode),
				Unit{
					Name:    "kubelet.service",
					Command: "start",
					Content: kubelet,
				},
			},
		},
	}, nil
}
