//go:build !unix

package fileid

// Get is unsupported on this platform.
func Get(path string) (ID, error) {
	return ID{}, ErrNotOS
}
