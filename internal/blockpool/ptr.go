package blockpool

import "unsafe"

// ptrDiff returns the number of bytes from *a to *b.
func ptrDiff(a, b *byte) int {
	return int(uintptr(unsafe.Pointer(b)) - uintptr(unsafe.Pointer(a)))
}
