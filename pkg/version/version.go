// Package version exposes the build identity of the binary. The
// variables are injected at link time, the in-source values only show
// up in binaries built outside the release process.
package version

import "fmt"

var (
	// Version is the release tag
	Version = "dev"
	// Revision is the VCS revision the binary was built from
	Revision = "unknown"
	// Dirty is non empty when the working tree had uncommitted changes
	Dirty = ""
)

// Current returns the version string reported by the CLI
func Current() string {
	s := fmt.Sprintf("%s (%s)", Version, Revision)
	if Dirty != "" {
		s += " dirty"
	}
	return s
}
