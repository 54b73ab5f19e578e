//go:build !unix

package volumebackup

import "github.com/xuranus/volumebackup/internal/rawio"

// kernelCopy falls back to a buffered ReadAt/WriteAt loop on platforms
// without copy_file_range; still one file-to-file move per call site,
// just without the kernel-side extent-sharing optimization.
func kernelCopy(sink, source *rawio.File, dstOffset, srcOffset, length int64) (int64, error) {
	buf := make([]byte, length)
	n, err := source.ReadAt(buf, srcOffset)
	if err != nil && n == 0 {
		return 0, err
	}
	wn, err := sink.WriteAt(buf[:n], dstOffset)
	return int64(wn), err
}
