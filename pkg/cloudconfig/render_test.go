package cloudconfig

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kawsproject/kaws/pkg/cluster"
)

func testSpec() *cluster.Spec {
	return &cluster.Spec{
		Cluster:           "staging",
		AccountID:         "123456789012",
		Region:            "us-east-1",
		Domain:            "example.com",
		ZoneID:            "Z148QEXAMPLE8V",
		AMI:               "ami-0a1b2c3d",
		InstanceSize:      "m3.medium",
		EtcdZone:          "us-east-1a",
		EtcdIPs:           []string{"10.0.1.4", "10.0.1.5", "10.0.1.6"},
		MastersMin:        2,
		MastersMax:        3,
		NodesMin:          2,
		NodesMax:          5,
		KMSKeyID:          "alias/kaws-staging",
		SSHKey:            "deployer",
		KubernetesVersion: "1.4.0",
	}
}

func testMaterial() *Material {
	certs := make(map[cluster.Role][]byte)
	keys := make(map[cluster.Role][]byte)
	for _, role := range cluster.Roles() {
		certs[role] = []byte("CERT-" + string(role))
		keys[role] = []byte(`{"version": 1}`)
	}
	return &Material{
		CACert:        []byte("CA-CERT"),
		Certs:         certs,
		EncryptedKeys: keys,
	}
}

func TestRenderStartsWithHeader(t *testing.T) {
	for _, role := range cluster.Roles() {
		doc, err := Render(role, testSpec(), testMaterial())
		require.NoError(t, err, "role %s", role)
		assert.True(t, strings.HasPrefix(string(doc), "#cloud-config\n"), "role %s", role)
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	for _, role := range cluster.Roles() {
		first, err := Render(role, testSpec(), testMaterial())
		require.NoError(t, err)
		second, err := Render(role, testSpec(), testMaterial())
		require.NoError(t, err)
		assert.Equal(t, first, second, "role %s", role)
	}
}

func TestRenderEtcdPeerList(t *testing.T) {
	doc, err := Render(cluster.RoleEtcd02, testSpec(), testMaterial())
	require.NoError(t, err)

	text := string(doc)
	assert.Contains(t, text, "ETCD_NAME=etcd-02")
	assert.Contains(t, text, "etcd-01=https://etcd-01.example.com:2380")
	assert.Contains(t, text, "etcd-02=https://etcd-02.example.com:2380")
	assert.Contains(t, text, "etcd-03=https://etcd-03.example.com:2380")
	assert.Contains(t, text, "ETCD_INITIAL_ADVERTISE_PEER_URLS=https://etcd-02.example.com:2380")
	assert.Contains(t, text, "hostname: etcd-02.example.com")
}

func TestRenderEtcdCredentials(t *testing.T) {
	doc, err := Render(cluster.RoleEtcd01, testSpec(), testMaterial())
	require.NoError(t, err)

	text := string(doc)
	assert.Contains(t, text, "/etc/kaws/ssl/ca.pem")
	assert.Contains(t, text, "/etc/kaws/ssl/etcd_01.pem")
	assert.Contains(t, text, "/etc/kaws/ssl/etcd_01-key.pem.enc")
	assert.Contains(t, text, "kaws-agent run --role etcd_01")
}

func TestRenderMasterTalksToAllPeers(t *testing.T) {
	doc, err := Render(cluster.RoleMaster, testSpec(), testMaterial())
	require.NoError(t, err)

	text := string(doc)
	assert.Contains(t, text, "--etcd-servers=https://etcd-01.example.com:2379,https://etcd-02.example.com:2379,https://etcd-03.example.com:2379")
	assert.Contains(t, text, "hostname: kubernetes.example.com")
	assert.Contains(t, text, "/opt/kubernetes/1.4.0/kube-apiserver")
}

func TestRenderNodePointsAtAPIServer(t *testing.T) {
	doc, err := Render(cluster.RoleNode, testSpec(), testMaterial())
	require.NoError(t, err)

	text := string(doc)
	assert.Contains(t, text, "--api-servers=https://kubernetes.example.com")
	assert.Contains(t, text, "kubelet.service")
}

func TestRenderBastionCarriesNoCredentials(t *testing.T) {
	doc, err := Render(cluster.RoleBastion, testSpec(), nil)
	require.NoError(t, err)

	text := string(doc)
	assert.Contains(t, text, "hostname: bastion.example.com")
	assert.Contains(t, text, "PermitRootLogin no")
	assert.NotContains(t, text, "ssl")
}

func TestRenderMissingCertificate(t *testing.T) {
	material := testMaterial()
	delete(material.Certs, cluster.RoleMaster)

	_, err := Render(cluster.RoleMaster, testSpec(), material)
	require.ErrorIs(t, err, ErrMissingValue)
}

func TestRenderMissingCA(t *testing.T) {
	material := testMaterial()
	material.CACert = nil

	_, err := Render(cluster.RoleNode, testSpec(), material)
	require.ErrorIs(t, err, ErrMissingValue)
}

func TestRenderUnknownRole(t *testing.T) {
	_, err := Render(cluster.Role("controller"), testSpec(), testMaterial())
	require.ErrorIs(t, err, ErrMissingValue)
}
