//go:build unix

package volumebackup

import (
	"github.com/xuranus/volumebackup/internal/rawio"
	"golang.org/x/sys/unix"
)

// kernelCopy moves length bytes from source at srcOffset to sink at
// dstOffset using copy_file_range, which lets the kernel perform the
// copy (including reflink/extent-sharing on filesystems that support
// it) without round-tripping the data through a userspace buffer. The
// syscall is repeated after a short copy until length bytes have moved
// or it reports end of file.
func kernelCopy(sink, source *rawio.File, dstOffset, srcOffset, length int64) (int64, error) {
	srcOff := srcOffset
	dstOff := dstOffset
	var moved int64
	for moved < length {
		n, err := unix.CopyFileRange(int(source.Handle().Fd()), &srcOff, int(sink.Handle().Fd()), &dstOff, int(length-moved), 0)
		if err != nil {
			return moved, err
		}
		if n == 0 {
			break
		}
		moved += int64(n)
	}
	return moved, nil
}
