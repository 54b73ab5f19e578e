package volumebackup

import "github.com/xuranus/volumebackup/internal/mount"

// InspectionMount serves a finished copy's reconstructed bytes read-only
// over WebDAV, for browsing without a full restore.
type InspectionMount struct {
	inner *mount.Mount
}

// OpenInspectionMount builds an InspectionMount for the copy named
// copyName, whose sidecar lives in metaDir and segment data in dataDir.
// Call Serve to start listening, and Close once inspection is done.
func OpenInspectionMount(metaDir, dataDir, copyName string) (*InspectionMount, error) {
	m, err := mount.Open(metaDir, dataDir, copyName)
	if err != nil {
		return nil, newCopyError("inspect", copyName, CopyAccessDenied, err)
	}
	return &InspectionMount{inner: m}, nil
}

// Serve starts listening on addr (e.g. "127.0.0.1:0") and blocks until
// the mount is closed or the listener fails. Run it on its own
// goroutine; read Addr once Serve has had a chance to bind.
func (m *InspectionMount) Serve(addr string) error {
	return m.inner.Serve(addr)
}

// Addr returns the address Serve bound to.
func (m *InspectionMount) Addr() string {
	return m.inner.Addr()
}

// Close shuts down the WebDAV server and releases every open segment
// handle.
func (m *InspectionMount) Close() error {
	return m.inner.Close()
}
