// Package cloudconfig renders the boot configuration documents the
// servers consume on first start. Documents are built from typed
// structures and marshalled to YAML, one fixed layout per role; they
// are ephemeral and only live in the object store.
package cloudconfig

import (
	"bytes"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// ErrMissingValue is returned when a required substitution value is
// absent, for example a certificate that was never issued for the
// role. This is always a defect in the caller, never a runtime
// condition, so it is fatal and not retried.
var ErrMissingValue = errors.New("missing substitution value")

const header = "#cloud-config\n\n"

// File is an entry of the write_files section
type File struct {
	Path        string `yaml:"path"`
	Permissions string `yaml:"permissions,omitempty"`
	Owner       string `yaml:"owner,omitempty"`
	Content     string `yaml:"content"`
}

// Unit is a systemd unit managed by the boot process
type Unit struct {
	Name    string `yaml:"name"`
	Command string `yaml:"command,omitempty"`
	Enable  bool   `yaml:"enable,omitempty"`
	Content string `yaml:"content,omitempty"`
}

// DropIn overrides part of a vendor systemd unit
type DropIn struct {
	Name    string `yaml:"name"`
	Content string `yaml:"content"`
}

// VendorUnit is a vendor unit extended with drop-ins
type VendorUnit struct {
	Name    string   `yaml:"name"`
	Command string   `yaml:"command,omitempty"`
	Enable  bool     `yaml:"enable,omitempty"`
	DropIns []DropIn `yaml:"drop-ins,omitempty"`
}

// CoreOS is the coreos specific section of a document
type CoreOS struct {
	Units []interface{} `yaml:"units,omitempty"`
}

// Document is one boot configuration document for one role
type Document struct {
	Hostname   string  `yaml:"hostname,omitempty"`
	WriteFiles []File  `yaml:"write_files,omitempty"`
	CoreOS     *CoreOS `yaml:"coreos,omitempty"`
}

// Encode marshals the document with the cloud-config header line
func (d *Document) Encode() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(header)

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return nil, errors.Wrap(err, "failed to encode cloud config document")
	}
	if err := enc.Close(); err != nil {
		return nil, errors.Wrap(err, "failed to encode cloud config document")
	}

	return buf.Bytes(), nil
}
