package cluster

import "fmt"

// Deterministic naming of cloud resources. These are pure functions:
// the rest of the system relies on re-running against the same inputs
// producing the same bucket and object names, so publication always
// overwrites instead of duplicating.

// BucketName returns the name of the per-account, per-cluster bucket
// that holds the published cloud config documents.
func BucketName(accountID, cluster string) string {
	return fmt.Sprintf("kaws-%s-%s", accountID, cluster)
}

// ObjectKey returns the object key of the cloud config document for a
// role inside the cluster bucket.
func ObjectKey(role Role) string {
	return fmt.Sprintf("%s_cloud_config.yml", role)
}
