package volumebackup

import (
	"fmt"
	"io"
	"os"

	"github.com/xuranus/volumebackup/internal/copymeta"
	"github.com/xuranus/volumebackup/internal/resource"
)

// volumeSize returns path's addressable byte length. Seeking to the end
// works for both plain files and block devices, where os.Stat's Size
// field is unreliable or zero.
func volumeSize(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	size, err := f.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	return size, nil
}

// toResourceFormat converts a copymeta.Format to its resource.Format
// counterpart; the two enums share the same ordinal ordering by
// construction (see copymeta/meta.go and internal/resource/resource.go).
func toResourceFormat(f copymeta.Format) resource.Format {
	return resource.Format(f)
}

func copyNameLengthOK(name string) bool {
	return len(name) > 0 && len(name) <= 32
}

func validateVolumePath(op, path string) (int64, error) {
	size, err := volumeSize(path)
	if err != nil {
		return 0, newVolumeError(op, path, VolumeAccessDenied, err)
	}
	if size <= 0 {
		return 0, newVolumeError(op, path, InvalidVolume, fmt.Errorf("volume has non-positive size %d", size))
	}
	return size, nil
}
