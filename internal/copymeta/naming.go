package copymeta

import "fmt"

// DataFileName returns the copy data file basename for segment index of
// a copy in the given format, per the naming table in the external
// interfaces: single-session bin and every non-fragmented format use one
// fixed name; multi-session bin uses .part{N} for index >= 1.
func DataFileName(copyName string, format Format, index, segmentCount int) string {
	switch format {
	case FormatBin, FormatBinFragmented:
		if index == 0 {
			return fmt.Sprintf("%s.copydata.bin", copyName)
		}
		return fmt.Sprintf("%s.copydata.bin.part%d", copyName, index)
	case FormatImage:
		return fmt.Sprintf("%s.copydata.img", copyName)
	case FormatVHDFixed, FormatVHDDynamic:
		return fmt.Sprintf("%s.copydata.vhd", copyName)
	case FormatVHDXFixed, FormatVHDXDynamic:
		return fmt.Sprintf("%s.copydata.vhdx", copyName)
	default:
		panic(fmt.Sprintf("copymeta: unknown format %d", format))
	}
}

// DigestFileName returns the digest sidecar basename for segment index.
func DigestFileName(copyName string, index int) string {
	return fmt.Sprintf("%s.%d.sha256.meta.bin", copyName, index)
}

// IsFragmented reports whether format splits a copy across multiple
// segment files (as opposed to one file covering the whole volume).
func IsFragmented(format Format) bool {
	return format == FormatBin || format == FormatBinFragmented
}
