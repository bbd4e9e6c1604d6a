package cluster

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// DefaultTerraformSource is the module source written into a fresh
// repository unless overridden by the user.
const DefaultTerraformSource = "github.com/kawsproject/kaws//terraform"

const mainTF = `module "kaws" {
    source = %q

    cluster = "${var.cluster}"
    coreos_ami = "${var.coreos_ami}"
    domain = "${var.domain}"
    etcd_01_initial_cluster_state = "${var.etcd_01_initial_cluster_state}"
    etcd_02_initial_cluster_state = "${var.etcd_02_initial_cluster_state}"
    etcd_03_initial_cluster_state = "${var.etcd_03_initial_cluster_state}"
    instance_size = "${var.instance_size}"
    masters_max_size = "${var.masters_max_size}"
    masters_min_size = "${var.masters_min_size}"
    nodes_max_size = "${var.nodes_max_size}"
    nodes_min_size = "${var.nodes_min_size}"
    region = "${var.region}"
    ssh_key = "${var.ssh_key}"
    version = "${var.version}"
    zone_id = "${var.zone_id}"
}

variable "cluster" {
  description = "The target cluster's name, e.g. ` + "`production`" + `"
}

variable "coreos_ami" {
  description = "The AMI ID for the CoreOS image to use for servers, e.g. ` + "`ami-1234abcd`" + `"
}

variable "domain" {
  description = "The domain name for the cluster, e.g. ` + "`example.com`" + `"
}

variable "etcd_01_initial_cluster_state" {
  description = "The initial cluster state for the first etcd node. One of ` + "`new`" + ` or ` + "`existing`" + `"
}

variable "etcd_02_initial_cluster_state" {
  description = "The initial cluster state for the second etcd node. One of ` + "`new`" + ` or ` + "`existing`" + `"
}

variable "etcd_03_initial_cluster_state" {
  description = "The initial cluster state for the third etcd node. One of ` + "`new`" + ` or ` + "`existing`" + `"
}

variable "instance_size" {
  description = "The EC2 instance size, e.g. ` + "`m3.medium`" + `"
}

variable "masters_max_size" {
  description = "The maximum number of EC2 instances the Kubernetes masters may autoscale to"
}

variable "masters_min_size" {
  description = "The minimum number of EC2 instances the Kubernetes masters may autoscale to"
}

variable "nodes_max_size" {
  description = "The maximum number of EC2 instances the Kubernetes nodes may autoscale to"
}

variable "nodes_min_size" {
  description = "The minimum number of EC2 instances the Kubernetes nodes may autoscale to"
}

variable "region" {
  description = "The AWS Region where the cluster will live, e.g. ` + "`us-east-1`" + `"
}

variable "ssh_key" {
  description = "Name of the SSH key in AWS that should have access to EC2 instances, e.g. ` + "`jimmy`" + `"
}

variable "version" {
  description = "Version of Kubernetes to use, e.g. ` + "`1.0.0`" + `"
}

variable "zone_id" {
  description = "Zone ID of the Route 53 hosted zone, e.g. ` + "`Z111111QQQQQQQ`" + `"
}
`

// Scaffold creates a new repository directory for managing clusters:
// the clusters directory, the terraform entry point and a .gitignore.
func Scaffold(name, terraformSource string) error {
	if terraformSource == "" {
		terraformSource = DefaultTerraformSource
	}

	if err := os.MkdirAll(filepath.Join(name, "clusters"), 0755); err != nil {
		return errors.Wrap(err, "failed to create clusters directory")
	}
	if err := os.MkdirAll(filepath.Join(name, "terraform", "kaws"), 0755); err != nil {
		return errors.Wrap(err, "failed to create terraform directory")
	}

	gitignore := filepath.Join(name, ".gitignore")
	if err := WriteFileAtomic(gitignore, []byte(".terraform\n"), 0644); err != nil {
		return err
	}

	main := filepath.Join(name, "terraform", "kaws", "main.tf")
	return WriteFileAtomic(main, []byte(fmt.Sprintf(mainTF, terraformSource)), 0644)
}
