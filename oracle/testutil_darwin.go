//go:build darwin && arm64

package oracle

import "os"

// isCI returns true when running under a CI runner, which typically lacks
// the hypervisor entitlement and so cannot exercise the real framework.
func isCI() bool {
	return os.Getenv("CI") == "true" || os.Getenv("GITHUB_ACTIONS") == "true"
}
