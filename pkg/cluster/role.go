package cluster

import (
	"fmt"
	"strings"
)

// Role is the identity of a server group inside a cluster. The set is
// closed: kaws provisions a fixed topology of one bastion, three etcd
// nodes and two autoscaling groups.
type Role string

// Possible roles of a cluster server
const (
	RoleBastion Role = "bastion"
	RoleEtcd01  Role = "etcd_01"
	RoleEtcd02  Role = "etcd_02"
	RoleEtcd03  Role = "etcd_03"
	RoleMaster  Role = "master"
	RoleNode    Role = "node"
)

// Roles lists every role in a fixed order. Iteration order matters for
// deterministic output of generated files and logs.
func Roles() []Role {
	return []Role{
		RoleBastion,
		RoleEtcd01,
		RoleEtcd02,
		RoleEtcd03,
		RoleMaster,
		RoleNode,
	}
}

// EtcdRoles lists the three coordination node roles in cluster order.
func EtcdRoles() []Role {
	return []Role{RoleEtcd01, RoleEtcd02, RoleEtcd03}
}

func (r Role) String() string {
	return string(r)
}

// IsEtcd reports whether the role is one of the coordination nodes.
func (r Role) IsEtcd() bool {
	switch r {
	case RoleEtcd01, RoleEtcd02, RoleEtcd03:
		return true
	}
	return false
}

// DNSLabel returns the role as a valid DNS label. Role names use
// underscores for file and object names, DNS does not allow them.
func (r Role) DNSLabel() string {
	return strings.ReplaceAll(string(r), "_", "-")
}

// DNSName returns the fully qualified name a server of this role is
// reachable under. The master role serves the Kubernetes API and uses
// the `kubernetes` endpoint name from the original deployment.
func (r Role) DNSName(domain string) string {
	if r == RoleMaster {
		return fmt.Sprintf("kubernetes.%s", domain)
	}
	return fmt.Sprintf("%s.%s", r.DNSLabel(), domain)
}

// ParseRole converts a string into a Role
func ParseRole(s string) (Role, error) {
	for _, r := range Roles() {
		if string(r) == s {
			return r, nil
		}
	}
	return "", fmt.Errorf("unknown role %q", s)
}
