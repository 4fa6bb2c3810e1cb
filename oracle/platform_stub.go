//go:build !darwin || !arm64

package oracle

// Supported always returns false: this build has no execution oracle
// binding for the host platform.
func Supported() (bool, error) {
	return false, ErrUnsupported
}
