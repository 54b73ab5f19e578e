package volumebackup

import "github.com/xuranus/volumebackup/internal/copymeta"

// CopySummary describes one catalog entry: enough to decide whether to
// restore or inspect a copy without loading its full CopyMeta sidecar.
type CopySummary = copymeta.CopySummary

// ListCopies returns every copy registered under metaDir, ordered by
// name. A metaDir with no registry yet (no backup has ever completed
// there) returns an empty list, not an error.
func ListCopies(metaDir string) ([]CopySummary, error) {
	registry, err := copymeta.OpenRegistry(metaDir)
	if err != nil {
		return nil, err
	}
	defer registry.Close()
	return registry.ListCopies()
}

// FindCopy looks up one copy's catalog entry by name.
func FindCopy(metaDir, copyName string) (CopySummary, bool, error) {
	registry, err := copymeta.OpenRegistry(metaDir)
	if err != nil {
		return CopySummary{}, false, err
	}
	defer registry.Close()
	return registry.FindCopy(copyName)
}

// ForgetCopy removes a copy's catalog entry. It does not touch the
// copy's data or meta sidecar; pair it with deleting those yourself.
func ForgetCopy(metaDir, copyName string) error {
	registry, err := copymeta.OpenRegistry(metaDir)
	if err != nil {
		return err
	}
	defer registry.Close()
	return registry.ForgetCopy(copyName)
}
