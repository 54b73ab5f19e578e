// Package copymeta serializes and deserializes the per-copy descriptor
// (segments, block size, format, volume size) to and from its JSON
// sidecar, the source of truth for everything downstream needs to know
// about a Copy.
package copymeta

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// BackupType mirrors the Copy's backup_type attribute.
type BackupType int

const (
	BackupFull BackupType = iota
	BackupForeverIncremental
)

// Format mirrors the Copy's copy_format attribute.
type Format int

const (
	FormatBin Format = iota
	FormatBinFragmented
	FormatImage
	FormatVHDFixed
	FormatVHDDynamic
	FormatVHDXFixed
	FormatVHDXDynamic
)

// Segment is one file's worth of volume bytes (CopySegment in the data
// model).
type Segment struct {
	Index           int    `json:"index"`
	Offset          uint64 `json:"offset"`
	Length          uint64 `json:"length"`
	CopyDataFile    string `json:"copyDataFile"`
	ChecksumBinFile string `json:"checksumBinFile"`
}

// Meta is the persisted descriptor of one Copy.
type Meta struct {
	CopyName   string     `json:"copyName"`
	BackupType BackupType `json:"backupType"`
	CopyFormat Format     `json:"copyFormat"`
	VolumeSize uint64     `json:"volumeSize"`
	BlockSize  uint32     `json:"blockSize"`
	VolumePath string     `json:"volumePath"`
	Label      string     `json:"label"`
	UUID       string     `json:"uuid"`
	Segments   []Segment  `json:"segments"`
}

// Validate checks the Copy invariants from the data model: segments are
// contiguous, non-overlapping, start at offset 0, and sum to VolumeSize.
func (m *Meta) Validate() error {
	if m.CopyName == "" || len(m.CopyName) > 32 {
		return fmt.Errorf("copymeta: copyName must be 1-32 characters, got %q", m.CopyName)
	}
	if len(m.Segments) == 0 {
		return fmt.Errorf("copymeta: %s has no segments", m.CopyName)
	}
	if m.Segments[0].Offset != 0 {
		return fmt.Errorf("copymeta: %s first segment must start at offset 0", m.CopyName)
	}
	var total uint64
	for i, seg := range m.Segments {
		if seg.Offset != total {
			return fmt.Errorf("copymeta: %s segment %d offset %d, want contiguous %d", m.CopyName, i, seg.Offset, total)
		}
		total += seg.Length
	}
	if total != m.VolumeSize {
		return fmt.Errorf("copymeta: %s segment lengths sum to %d, want volumeSize %d", m.CopyName, total, m.VolumeSize)
	}
	return nil
}

// sidecarName returns the JSON sidecar's basename for copyName.
func sidecarName(copyName string) string {
	return copyName + ".volumecopy.meta.json"
}

// Path returns the full sidecar path for copyName within metaDir.
func Path(metaDir, copyName string) string {
	return filepath.Join(metaDir, sidecarName(copyName))
}

// Save writes m's JSON sidecar into metaDir.
func Save(metaDir string, m *Meta) error {
	if err := m.Validate(); err != nil {
		return err
	}
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(Path(metaDir, m.CopyName), raw, 0o644)
}

// Load reads and parses copyName's JSON sidecar from metaDir. If the
// sidecar parses but carries no segment list, Load falls back to
// recovering one from dataDir's .part* files before validating.
func Load(metaDir, dataDir, copyName string) (*Meta, error) {
	raw, err := os.ReadFile(Path(metaDir, copyName))
	if err != nil {
		return nil, err
	}
	var m Meta
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("copymeta: parse %s: %w", copyName, err)
	}
	if len(m.Segments) == 0 {
		segments, rerr := recoverSegments(dataDir, &m)
		if rerr != nil {
			return nil, fmt.Errorf("copymeta: %s has no segment list and recovery failed: %w", copyName, rerr)
		}
		m.Segments = segments
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// recoverSegments rebuilds m's segment list by globbing dataDir for its
// copy data files when the loaded sidecar's own list is empty — a
// sidecar can lose its segments to a truncated write while the data
// files themselves survive untouched. Segments are ordered by their
// .part{N} suffix, index 0 being the base file.
func recoverSegments(dataDir string, m *Meta) ([]Segment, error) {
	base := DataFileName(m.CopyName, m.CopyFormat, 0, 0)
	pattern := base + "*"

	fsys := os.DirFS(dataDir)
	matches, err := doublestar.Glob(fsys, pattern)
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", pattern, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no copy data files matching %s in %s", pattern, dataDir)
	}

	type found struct {
		index int
		name  string
	}
	var files []found
	for _, name := range matches {
		if name == base {
			files = append(files, found{index: 0, name: name})
			continue
		}
		suffix := strings.TrimPrefix(name, base+".part")
		index, err := strconv.Atoi(suffix)
		if err != nil {
			continue
		}
		files = append(files, found{index: index, name: name})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].index < files[j].index })

	segments := make([]Segment, 0, len(files))
	var offset uint64
	for _, f := range files {
		fi, err := os.Stat(filepath.Join(dataDir, f.name))
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", f.name, err)
		}
		length := uint64(fi.Size())
		segments = append(segments, Segment{
			Index:           f.index,
			Offset:          offset,
			Length:          length,
			CopyDataFile:    f.name,
			ChecksumBinFile: DigestFileName(m.CopyName, f.index),
		})
		offset += length
	}
	return segments, nil
}

// DigestPath returns the digest sidecar path for one of m's segments.
func DigestPath(metaDir string, m *Meta, segmentIndex int) string {
	return filepath.Join(metaDir, fmt.Sprintf("%s.%d.sha256.meta.bin", m.CopyName, segmentIndex))
}

// DataPath returns the on-disk path for one of m's segments, joining
// dataDir with the segment's recorded basename.
func DataPath(dataDir string, seg Segment) string {
	return filepath.Join(dataDir, seg.CopyDataFile)
}

// SplitSegments partitions a volume of volumeSize bytes into segments of
// at most sessionSize bytes each, satisfying Testable Property 1:
// contiguous, non-overlapping, summing to volumeSize, every non-last
// segment exactly sessionSize.
func SplitSegments(volumeSize, sessionSize uint64, blockSize uint32, dataFileName func(index int) string, digestFileName func(index int) string) []Segment {
	if sessionSize == 0 {
		panic("copymeta: sessionSize must be positive")
	}
	var segments []Segment
	var offset uint64
	index := 0
	for offset < volumeSize {
		length := sessionSize
		if remaining := volumeSize - offset; remaining < length {
			length = remaining
		}
		segments = append(segments, Segment{
			Index:           index,
			Offset:          offset,
			Length:          length,
			CopyDataFile:    dataFileName(index),
			ChecksumBinFile: digestFileName(index),
		})
		offset += length
		index++
	}
	if volumeSize == 0 {
		segments = append(segments, Segment{Index: 0, Offset: 0, Length: 0, CopyDataFile: dataFileName(0), ChecksumBinFile: digestFileName(0)})
	}
	return segments
}
