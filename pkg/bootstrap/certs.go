package bootstrap

import (
	"fmt"
	"net"
	"time"

	"github.com/kawsproject/kaws/pkg/cluster"
	"github.com/kawsproject/kaws/pkg/pki"
)

// kubernetesServiceIP is the in-cluster address of the API service,
// first address of the 10.3.0.0/24 service range.
var kubernetesServiceIP = net.IPv4(10, 3, 0, 1)

// certificateRequest maps a role to its certificate policy: common
// name, subject alternative names and key usage. The switch is
// exhaustive over the closed role set.
func certificateRequest(spec *cluster.Spec, role cluster.Role, validity time.Duration) pki.Request {
	req := pki.Request{
		CommonName: fmt.Sprintf("%s-%s", role, spec.Cluster),
		Validity:   validity,
	}

	switch role {
	case cluster.RoleBastion:
		req.Usage = pki.UsageServer
		req.DNSNames = []string{role.DNSName(spec.Domain)}
	case cluster.RoleEtcd01, cluster.RoleEtcd02, cluster.RoleEtcd03:
		// each coordination node certificate carries its own DNS name
		// plus the full static address set, so peers can verify each
		// other before the cluster exists
		req.Usage = pki.UsageServerClient
		req.DNSNames = []string{role.DNSName(spec.Domain)}
		for _, peer := range spec.EtcdPeers() {
			if ip := net.ParseIP(peer.IP); ip != nil {
				req.IPs = append(req.IPs, ip)
			}
		}
	case cluster.RoleMaster:
		req.Usage = pki.UsageServerClient
		req.DNSNames = []string{
			cluster.RoleMaster.DNSName(spec.Domain),
			"kubernetes",
			"kubernetes.default",
			"kubernetes.default.svc",
			"kubernetes.default.svc.cluster.local",
		}
		req.IPs = []net.IP{kubernetesServiceIP}
	case cluster.RoleNode:
		req.Usage = pki.UsageServerClient
		req.DNSNames = []string{role.DNSName(spec.Domain)}
	}

	return req
}

// adminRequest is the policy for administrator identities: client
// authentication only, no server names.
func adminRequest(spec *cluster.Spec, name string, validity time.Duration) pki.Request {
	return pki.Request{
		CommonName: fmt.Sprintf("%s-%s", name, spec.Cluster),
		Usage:      pki.UsageClient,
		Validity:   validity,
	}
}
