package cluster

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBucketName(t *testing.T) {
	assert.Equal(t, "kaws-123456789012-staging", BucketName("123456789012", "staging"))

	// pure function: identical inputs, identical output
	assert.Equal(t, BucketName("123456789012", "staging"), BucketName("123456789012", "staging"))
}

func TestObjectKeys(t *testing.T) {
	expected := map[Role]string{
		RoleBastion: "bastion_cloud_config.yml",
		RoleEtcd01:  "etcd_01_cloud_config.yml",
		RoleEtcd02:  "etcd_02_cloud_config.yml",
		RoleEtcd03:  "etcd_03_cloud_config.yml",
		RoleMaster:  "master_cloud_config.yml",
		RoleNode:    "node_cloud_config.yml",
	}

	assert.Len(t, Roles(), len(expected))
	for role, key := range expected {
		assert.Equal(t, key, ObjectKey(role))
	}
}
